package x509tools

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnpack(t *testing.T) {
	packed := []byte{1, 0, 2, 0}
	sig, err := UnpackEcdsaSignature(packed)
	require.NoError(t, err)
	assert.Equal(t, int64(256), sig.R.Int64())
	assert.Equal(t, int64(512), sig.S.Int64())
	invalid := []byte{1, 2, 3}
	_, err = UnpackEcdsaSignature(invalid)
	require.Error(t, err)
}

func TestPackTo(t *testing.T) {
	sig := EcdsaSignature{
		R: big.NewInt(512),
		S: big.NewInt(255),
	}
	assert.Equal(t, []byte{0, 2, 0, 0, 0, 255}, sig.PackTo(3))
	sig.R, sig.S = sig.S, sig.R
	assert.Equal(t, []byte{0, 0, 255, 0, 2, 0}, sig.PackTo(3))
}

func TestPoint(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	blob := MarshalPoint(&priv.PublicKey)
	assert.Len(t, blob, 97)
	x, y := UnmarshalPoint(elliptic.P384(), blob)
	require.NotNil(t, x)
	assert.Equal(t, 0, x.Cmp(priv.X))
	assert.Equal(t, 0, y.Cmp(priv.Y))
	blob[40] ^= 1
	x, _ = UnmarshalPoint(elliptic.P384(), blob)
	assert.Nil(t, x, "point is no longer on the curve")
	x, _ = UnmarshalPoint(elliptic.P256(), blob)
	assert.Nil(t, x, "wrong length for the curve")
}

func TestCurveByOidString(t *testing.T) {
	def, err := CurveByOidString("1.3.132.0.34")
	require.NoError(t, err)
	assert.Equal(t, uint(384), def.Bits)
	_, err = CurveByOidString("1.3.x")
	assert.Error(t, err)
	_, err = CurveByOidString("1.2.3")
	assert.Error(t, err)
}
