package softtoken

import (
	"bytes"
	"crypto"
	"crypto/aes"
	"crypto/dsa" //nolint:staticcheck
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/xmlsec/lib/sigerrors"
	"github.com/sassoftware/xmlsec/token"
)

func sha1sum(s string) []byte {
	d := sha1.Sum([]byte(s))
	return d[:]
}

func TestHMACSignVerify(t *testing.T) {
	p := New()
	key, err := p.NewKey(token.KeyHMAC)
	require.NoError(t, err)
	require.NoError(t, key.SetSecret([]byte("secret")))
	digest := sha1sum("abc")

	sig, err := key.SignBase64(crypto.SHA1, digest)
	require.NoError(t, err)
	m := hmac.New(sha1.New, []byte("secret"))
	m.Write(digest)
	assert.Equal(t, token.EncodeBase64(m.Sum(nil)), sig)

	ok, err := key.VerifyBase64(crypto.SHA1, digest, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	raw, err := token.DecodeBase64(sig)
	require.NoError(t, err)
	raw[0] ^= 1
	ok, err = key.VerifyBase64(crypto.SHA1, digest, token.EncodeBase64(raw))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = key.VerifyBase64(crypto.SHA1, digest, "!!not base64!!")
	require.NoError(t, err)
	assert.False(t, ok, "undecodable signature must not verify")
}

func TestCloneIndependence(t *testing.T) {
	p := New()
	key, err := p.NewKey(token.KeyHMAC)
	require.NoError(t, err)
	require.NoError(t, key.SetSecret([]byte("secret")))
	clone, err := key.Clone()
	require.NoError(t, err)
	digest := sha1sum("abc")
	s1, err := key.SignBase64(crypto.SHA1, digest)
	require.NoError(t, err)

	clone.Secret[0] = 'X'
	s2, err := clone.SignBase64(crypto.SHA1, digest)
	require.NoError(t, err)
	assert.NotEqual(t, s1, s2)
	after, err := key.SignBase64(crypto.SHA1, digest)
	require.NoError(t, err)
	assert.Equal(t, s1, after, "changing the clone must not affect the original")

	// the clone outlives the original
	require.NoError(t, key.Close())
	s3, err := clone.SignBase64(crypto.SHA1, digest)
	require.NoError(t, err)
	assert.Equal(t, s2, s3)
}

type fakeHandle struct{ released *int }

func (h fakeHandle) Release() error {
	*h.released++
	return nil
}

func TestCloneNativeUnsupported(t *testing.T) {
	p := New()
	key, err := p.NewKey(token.KeyRSA)
	require.NoError(t, err)
	var released int
	require.NoError(t, key.SetNative(fakeHandle{&released}))
	_, err = key.Clone()
	var uerr sigerrors.UnsupportedOperationError
	assert.True(t, errors.As(err, &uerr))
	require.NoError(t, key.Close())
	require.NoError(t, key.Close())
	assert.Equal(t, 1, released)
}

func TestIncompleteKey(t *testing.T) {
	p := New()
	key, err := p.NewKey(token.KeyDSA)
	require.NoError(t, err)
	require.NoError(t, key.LoadDSAParam(token.FieldP, "AQAB"))
	_, err = key.SignBase64(crypto.SHA1, sha1sum("abc"))
	var ierr sigerrors.IncompleteKeyError
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, []string{"Q", "G", "Y", "X"}, ierr.Missing)

	assert.Error(t, key.LoadDSAParam(token.FieldQ, ""))
	assert.Error(t, key.LoadRSAParam(token.FieldModulus, "AQAB"))
}

func TestRSA(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	p := New()
	key, err := token.KeyFromPrivate(p, priv)
	require.NoError(t, err)
	digest := sha1sum("abc")
	sig, err := key.SignBase64(crypto.SHA1, digest)
	require.NoError(t, err)

	pubKey, err := token.KeyFromPublic(p, &priv.PublicKey)
	require.NoError(t, err)
	ok, err := pubKey.VerifyBase64(crypto.SHA1, digest, sig)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = pubKey.VerifyBase64(crypto.SHA1, sha1sum("abd"), sig)
	require.NoError(t, err)
	assert.False(t, ok)

	pss := &rsa.PSSOptions{Hash: crypto.SHA1, SaltLength: rsa.PSSSaltLengthEqualsHash}
	raw, err := p.Sign(key, pss, digest)
	require.NoError(t, err)
	ok, err = p.Verify(pubKey, pss, digest, raw)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRSAFromParams(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	p := New()
	key, err := p.NewKey(token.KeyRSA)
	require.NoError(t, err)
	require.NoError(t, key.LoadRSAParam(token.FieldModulus, token.EncodeBase64(priv.N.Bytes())))
	require.NoError(t, key.LoadRSAParam(token.FieldExponent, "AQAB"))
	digest := sha1sum("abc")
	raw, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA1, digest)
	require.NoError(t, err)
	ok, err := key.VerifyBase64(crypto.SHA1, digest, token.EncodeBase64(raw))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDSA(t *testing.T) {
	priv := new(dsa.PrivateKey)
	require.NoError(t, dsa.GenerateParameters(&priv.Parameters, rand.Reader, dsa.L1024N160))
	require.NoError(t, dsa.GenerateKey(priv, rand.Reader))
	p := New()
	key, err := token.KeyFromPrivate(p, priv)
	require.NoError(t, err)
	digest := sha1sum("abc")
	raw, err := p.Sign(key, crypto.SHA1, digest)
	require.NoError(t, err)
	assert.Len(t, raw, 40)
	ok, err := p.Verify(key, crypto.SHA1, digest, raw)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = p.Verify(key, crypto.SHA1, digest, raw[:39])
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestECDSA(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	p := New()
	key, err := token.KeyFromPrivate(p, priv)
	require.NoError(t, err)
	d := crypto.SHA256.New()
	d.Write([]byte("abc"))
	digest := d.Sum(nil)
	sig, err := key.SignBase64(crypto.SHA256, digest)
	require.NoError(t, err)
	raw, err := token.DecodeBase64(sig)
	require.NoError(t, err)
	assert.Len(t, raw, 64)
	ok, err := key.VerifyBase64(crypto.SHA256, digest, sig)
	require.NoError(t, err)
	assert.True(t, ok)
	raw[10] ^= 0x80
	ok, err = key.VerifyBase64(crypto.SHA256, digest, token.EncodeBase64(raw))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDigest(t *testing.T) {
	p := New()
	for _, h := range []crypto.Hash{crypto.SHA1, crypto.SHA256, crypto.SHA512, crypto.SHA3_256, crypto.RIPEMD160} {
		d, err := p.NewDigest(h)
		require.NoError(t, err, h.String())
		_, err = d.Write([]byte("abc"))
		require.NoError(t, err)
		sum, err := d.Finish()
		require.NoError(t, err)
		assert.Len(t, sum, h.Size())
		_, err = d.Finish()
		assert.Error(t, err)
		_, err = d.Write([]byte("x"))
		assert.Error(t, err)
	}
	d, _ := p.NewDigest(crypto.SHA1)
	sum, _ := d.Finish()
	assert.Equal(t, "da39a3ee5e6b4b0d3255bfef95601890afd80709", hex.EncodeToString(sum))
}

func symKey(t *testing.T, cipher token.SymmetricCipher, secret []byte) *token.Key {
	key, err := New().NewKey(token.KeySymmetric)
	require.NoError(t, err)
	require.NoError(t, key.SetSecret(secret))
	key.Cipher = cipher
	return key
}

func TestCipherRoundTrip(t *testing.T) {
	p := New()
	aesKey := symKey(t, token.CipherAES, make([]byte, 32))
	desKey := symKey(t, token.CipherTripleDES, make([]byte, 24))
	for _, msg := range []string{"", "a", "exactly sixteen!", "a much longer message spanning several blocks"} {
		for _, mode := range []token.CipherMode{token.ModeCBC, token.ModeGCM} {
			ct, err := p.Encrypt(aesKey, mode, []byte(msg))
			require.NoError(t, err)
			pt, err := p.Decrypt(aesKey, mode, ct)
			require.NoError(t, err)
			assert.Equal(t, msg, string(pt))
		}
		ct, err := p.Encrypt(desKey, token.ModeCBC, []byte(msg))
		require.NoError(t, err)
		assert.Zero(t, len(ct)%8)
		pt, err := p.Decrypt(desKey, token.ModeCBC, ct)
		require.NoError(t, err)
		assert.Equal(t, msg, string(pt))
	}
	_, err := p.Decrypt(aesKey, token.ModeCBC, make([]byte, 17))
	assert.Error(t, err)
}

func TestAESKeyWrapVector(t *testing.T) {
	kek, _ := hex.DecodeString("000102030405060708090A0B0C0D0E0F")
	data, _ := hex.DecodeString("00112233445566778899AABBCCDDEEFF")
	b, err := aes.NewCipher(kek)
	require.NoError(t, err)
	wrapped, err := aesKeyWrap(b, data)
	require.NoError(t, err)
	assert.Equal(t, "1fa68b0a8112b447aef34bd8fb5a7b829d3e862371d2cfe5", hex.EncodeToString(wrapped))
	unwrapped, err := aesKeyUnwrap(b, wrapped)
	require.NoError(t, err)
	assert.Equal(t, data, unwrapped)
	wrapped[3] ^= 1
	_, err = aesKeyUnwrap(b, wrapped)
	assert.Error(t, err)
	_, err = aesKeyWrap(b, data[:8])
	assert.Error(t, err)

	p := New()
	kekKey := symKey(t, token.CipherAES, kek)
	cek := bytes.Repeat([]byte{0x5a}, 32)
	wrapped, err = p.WrapKey(kekKey, token.WrapAESKW, cek)
	require.NoError(t, err)
	assert.Len(t, wrapped, 40)
	out, err := p.UnwrapKey(kekKey, token.WrapAESKW, wrapped)
	require.NoError(t, err)
	assert.Equal(t, cek, out)
}

func TestRSAKeyTransport(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	p := New()
	key, err := token.KeyFromPrivate(p, priv)
	require.NoError(t, err)
	cek := make([]byte, 16)
	for _, mode := range []token.WrapMode{token.WrapRSA15, token.WrapRSAOAEP} {
		wrapped, err := p.WrapKey(key, mode, cek)
		require.NoError(t, err)
		out, err := p.UnwrapKey(key, mode, wrapped)
		require.NoError(t, err)
		assert.Equal(t, cek, out)
	}
}
