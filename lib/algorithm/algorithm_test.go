package algorithm

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/xmlsec/config"
	"github.com/sassoftware/xmlsec/lib/sigerrors"
	"github.com/sassoftware/xmlsec/lib/transform"
	"github.com/sassoftware/xmlsec/token"
	"github.com/sassoftware/xmlsec/token/softtoken"
)

func TestUnknownDigest(t *testing.T) {
	c := NewContext(softtoken.New())
	c.Register(SHA256, NewDigestMethod(SHA256, crypto.SHA256))
	_, err := c.Lookup("urn:unknown-digest")
	var uerr sigerrors.UnknownAlgorithmError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, "urn:unknown-digest", uerr.URI)

	h, err := c.Digest(SHA256)
	require.NoError(t, err)
	assert.Equal(t, crypto.SHA256, h.Hash())

	// no prefix or case folding
	_, err = c.Lookup(SHA256[:len(SHA256)-1])
	assert.Error(t, err)
	_, err = c.Lookup("HTTP://www.w3.org/2001/04/xmlenc#sha256")
	assert.Error(t, err)
}

func TestReregister(t *testing.T) {
	c := NewContext(softtoken.New())
	c.Register("urn:alg:x", NewDigestMethod("urn:alg:x", crypto.SHA1))
	c.Register("urn:alg:x", NewDigestMethod("urn:alg:x", crypto.SHA512))
	h, err := c.Digest("urn:alg:x")
	require.NoError(t, err)
	assert.Equal(t, crypto.SHA512, h.Hash())
	assert.Equal(t, []string{"urn:alg:x"}, c.URIs())
}

func TestWrongCategory(t *testing.T) {
	c := NewDefaultContext(nil)
	_, err := c.Signature(SHA256)
	var cerr sigerrors.ConfigurationError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, SHA256, cerr.Stage)
	var uerr sigerrors.UnknownAlgorithmError
	assert.False(t, errors.As(err, &uerr), "a registered URI is not unknown")

	_, err = c.Cipher(RSASHA256)
	assert.True(t, errors.As(err, &cerr))
}

func TestInitializeTerminate(t *testing.T) {
	assert.Nil(t, Default())
	c1 := Initialize()
	c2 := Initialize()
	assert.Same(t, c1, c2)
	require.NoError(t, Terminate())
	assert.Same(t, c1, Default())
	_, err := c1.Lookup(RSASHA256)
	assert.NoError(t, err)
	require.NoError(t, Terminate())
	assert.Nil(t, Default())
	_, err = c1.Lookup(RSASHA256)
	assert.Error(t, err, "registry is dropped on final terminate")
	// unbalanced terminate is harmless
	assert.NoError(t, Terminate())
	c3 := Initialize()
	assert.NotSame(t, c1, c3)
	require.NoError(t, Terminate())
}

type closeCounter struct {
	token.Provider
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func TestSetProvider(t *testing.T) {
	first := &closeCounter{Provider: softtoken.New()}
	c := NewDefaultContext(first)
	second := &closeCounter{Provider: softtoken.New()}
	require.NoError(t, c.SetProvider(second))
	assert.Equal(t, 1, first.closed)
	assert.Same(t, second, c.Provider())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, second.closed)
}

func TestSignatureMethods(t *testing.T) {
	c := NewDefaultContext(nil)
	p := c.Provider()
	rsaPriv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	ecPriv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	rsaKey, err := token.KeyFromPrivate(p, rsaPriv)
	require.NoError(t, err)
	ecKey, err := token.KeyFromPrivate(p, ecPriv)
	require.NoError(t, err)
	cases := []struct {
		uri string
		key *token.Key
	}{
		{RSASHA256, rsaKey},
		{RSAPSSSHA256, rsaKey},
		{RSASHA1, rsaKey},
		{ECDSASHA384, ecKey},
	}
	for _, tc := range cases {
		h, err := c.Signature(tc.uri)
		require.NoError(t, err, tc.uri)
		dh, err := c.Digest(mustDigestURI(t, c, h.Hash()))
		require.NoError(t, err)
		dc, err := dh.NewDigest(p)
		require.NoError(t, err)
		dc.Write([]byte("signed info"))
		digest, err := dc.Finish()
		require.NoError(t, err)
		sig, err := h.Sign(tc.key, digest)
		require.NoError(t, err, tc.uri)
		ok, err := h.Verify(tc.key, digest, sig)
		require.NoError(t, err)
		assert.True(t, ok, tc.uri)
		digest[0] ^= 1
		ok, err = h.Verify(tc.key, digest, sig)
		require.NoError(t, err)
		assert.False(t, ok, tc.uri)
	}
	h, _ := c.Signature(DSASHA1)
	_, err = h.Sign(rsaKey, make([]byte, 20))
	var cerr sigerrors.ConfigurationError
	assert.True(t, errors.As(err, &cerr))
}

func mustDigestURI(t *testing.T, c *Context, hash crypto.Hash) string {
	uri, err := c.DigestURI(hash)
	require.NoError(t, err)
	return uri
}

func TestHMACMethod(t *testing.T) {
	c := NewDefaultContext(nil)
	key, err := c.Provider().NewKey(token.KeyHMAC)
	require.NoError(t, err)
	require.NoError(t, key.SetSecret([]byte("secret")))
	h, err := c.Signature(HMACSHA256)
	require.NoError(t, err)
	sig, err := h.Sign(key, []byte("data"))
	require.NoError(t, err)
	ok, err := h.Verify(key, []byte("data"), sig)
	require.NoError(t, err)
	assert.True(t, ok)
	uri, err := c.SignatureURI(token.KeyHMAC, crypto.SHA256)
	require.NoError(t, err)
	assert.Equal(t, HMACSHA256, uri)
}

func TestCipherAndWrap(t *testing.T) {
	c := NewDefaultContext(nil)
	p := c.Provider()
	cek, err := p.NewKey(token.KeySymmetric)
	require.NoError(t, err)
	require.NoError(t, cek.SetSecret(make([]byte, 16)))
	cipher, err := c.Cipher(AES128GCM)
	require.NoError(t, err)
	ct, err := cipher.Encrypt(cek, []byte("plaintext"))
	require.NoError(t, err)
	pt, err := cipher.Decrypt(cek, ct)
	require.NoError(t, err)
	assert.Equal(t, "plaintext", string(pt))

	wrong, _ := c.Cipher(AES256CBC)
	_, err = wrong.Encrypt(cek, []byte("x"))
	assert.Error(t, err)

	kek, _ := p.NewKey(token.KeySymmetric)
	require.NoError(t, kek.SetSecret(make([]byte, 32)))
	kw, err := c.KeyWrap(KWAES256)
	require.NoError(t, err)
	wrapped, err := kw.Wrap(kek, cek.Secret)
	require.NoError(t, err)
	assert.Len(t, wrapped, 24)
	out, err := kw.Unwrap(kek, wrapped)
	require.NoError(t, err)
	assert.Equal(t, cek.Secret, out)
}

func TestTransformHandlers(t *testing.T) {
	c := NewDefaultContext(nil)
	method := etree.NewElement("ds:Transform")
	method.CreateAttr("xmlns:ds", "http://www.w3.org/2000/09/xmldsig#")
	inc := method.CreateElement("ec:InclusiveNamespaces")
	inc.CreateAttr("xmlns:ec", ExcC14N)
	inc.CreateAttr("PrefixList", " a  b ")
	assert.Equal(t, "a b", inclusivePrefixes(method))

	h, err := c.Transform(ExcC14N)
	require.NoError(t, err)
	stage, err := h.NewStage(c.TransformParams(method, nil))
	require.NoError(t, err)
	assert.Equal(t, transform.NodeSet, stage.InputKind())
	assert.Equal(t, "c14n", Kind(h))

	h, _ = c.Transform(EnvelopedSignature)
	_, err = h.NewStage(c.TransformParams(nil, nil))
	assert.Error(t, err)

	h, _ = c.Transform(XSLT)
	xslt := etree.NewElement("Transform")
	xslt.CreateElement("xsl:stylesheet")
	stage, err = h.NewStage(c.TransformParams(xslt, nil))
	require.NoError(t, err)
	// no engine configured, so the stage can not be attached to a chain
	_, err = transform.BuildChain(transform.OctetInput(strings.NewReader("<a/>")), stage)
	assert.Error(t, err)
}

func TestApplyConfig(t *testing.T) {
	c := NewDefaultContext(nil)
	conf := config.Default()
	conf.Algorithms = &config.AlgorithmConfig{Disabled: []string{SHA1, RSASHA1}}
	conf.Verify = &config.VerifyConfig{}
	c.ApplyConfig(conf)
	for _, uri := range []string{SHA1, RSASHA1, XPath} {
		_, err := c.Lookup(uri)
		assert.Error(t, err, uri)
	}
	_, err := c.Lookup(SHA256)
	assert.NoError(t, err)
}

func TestKind(t *testing.T) {
	c := NewDefaultContext(nil)
	for uri, kind := range map[string]string{
		SHA3_256:  "digest",
		HMACSHA1:  "signature",
		AES256CBC: "cipher",
		RSAOAEP:   "keywrap",
		Base64:    "transform",
		C14N11:    "c14n",
	} {
		h, err := c.Lookup(uri)
		require.NoError(t, err)
		assert.Equal(t, kind, Kind(h), uri)
	}
}
