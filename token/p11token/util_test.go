package p11token

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/xmlsec/lib/sigerrors"
	"github.com/sassoftware/xmlsec/token"
)

func TestKeyID(t *testing.T) {
	id, err := parseKeyID("0a:1B:ff")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0a, 0x1b, 0xff}, id)
	assert.Equal(t, "0a:1b:ff", formatKeyID(id))
	_, err = parseKeyID("zz")
	assert.Error(t, err)
}

func TestTokenObjectNotDestroyed(t *testing.T) {
	// objects found on the token must survive Release
	h := &objectHandle{obj: 5}
	assert.NoError(t, h.Release())
}

func TestDuplicateForeignHandle(t *testing.T) {
	tok := &Token{}
	other := &objectHandle{tok: &Token{}, obj: 1}
	_, err := tok.DuplicateNative(other)
	var uerr sigerrors.UnsupportedOperationError
	assert.True(t, errors.As(err, &uerr))
}

func TestTokenCBCSelection(t *testing.T) {
	key := &token.Key{Kind: token.KeySymmetric, Cipher: token.CipherAES}
	assert.True(t, tokenCBC(key, token.ModeCBC))
	assert.False(t, tokenCBC(key, token.ModeGCM))
	key.Cipher = token.CipherTripleDES
	assert.False(t, tokenCBC(key, token.ModeCBC))
}
