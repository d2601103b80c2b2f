package x509tools_test

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/xmlsec/lib/x509tools"
)

func TestSameKey(t *testing.T) {
	t.Parallel()
	k1, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	k2, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	assert.True(t, x509tools.SameKey(k1, &k1.PublicKey))
	assert.True(t, x509tools.SameKey(&k1.PublicKey, k1))
	assert.False(t, x509tools.SameKey(k1, &k2.PublicKey))
	assert.False(t, x509tools.SameKey(nil, k1))
}

func TestSubjectKeyId(t *testing.T) {
	t.Parallel()
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	ski, err := x509tools.SubjectKeyId(&k.PublicKey)
	require.NoError(t, err)
	assert.Len(t, ski, 20)
}

func TestHashByName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, crypto.SHA256, x509tools.HashByName("SHA-256"))
	assert.Equal(t, crypto.SHA1, x509tools.HashByName("sha1"))
	assert.Equal(t, crypto.SHA3_512, x509tools.HashByName("SHA3-512"))
	assert.Equal(t, crypto.Hash(0), x509tools.HashByName("whirlpool"))
}
