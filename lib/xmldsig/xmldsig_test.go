package xmldsig

import (
	"context"
	"crypto"
	"crypto/dsa" //nolint:staticcheck
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"io"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/xmlsec/lib/algorithm"
	"github.com/sassoftware/xmlsec/lib/sigerrors"
	"github.com/sassoftware/xmlsec/token"
	"github.com/sassoftware/xmlsec/token/softtoken"
)

const testDoc = `<?xml version="1.0"?>
<root xmlns="urn:test" xmlns:x="urn:x">
  <!-- comment -->
  <item id="i1" x:attr="1">hello</item>
  <item id="i2">world</item>
</root>`

func parseDoc(t *testing.T, s string) *etree.Document {
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(s))
	return doc
}

func reparse(t *testing.T, doc *etree.Document) *etree.Document {
	s, err := doc.WriteToString()
	require.NoError(t, err)
	return parseDoc(t, s)
}

func rsaKey(t *testing.T) (*token.Key, *rsa.PrivateKey) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	key, err := token.KeyFromPrivate(softtoken.New(), priv)
	require.NoError(t, err)
	return key, priv
}

func TestEnvelopedRoundTrip(t *testing.T) {
	key, _ := rsaKey(t)
	doc := parseDoc(t, testDoc)
	require.NoError(t, Sign(context.Background(), doc, doc.Root(), key, nil, SignOptions{IncludeKeyValue: true}))
	doc = reparse(t, doc)
	sigs, err := VerifyDocument(context.Background(), doc, VerifyOptions{})
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, algorithm.RSASHA256, sigs[0].SignatureMethod)
	assert.Equal(t, crypto.SHA256, sigs[0].Hash)
	require.Len(t, sigs[0].References, 1)
	assert.Equal(t, "", sigs[0].References[0].URI)
	assert.IsType(t, &rsa.PublicKey{}, sigs[0].PublicKey)

	// comments are not part of a whole-document reference
	tampered := strings.Replace(mustString(t, doc), ">hello<", ">jello<", 1)
	_, err = VerifyDocument(context.Background(), parseDoc(t, tampered), VerifyOptions{})
	assert.True(t, sigerrors.IsVerificationFailed(err), "%v", err)
	commented := strings.Replace(mustString(t, doc), "<!-- comment -->", "<!-- other -->", 1)
	_, err = VerifyDocument(context.Background(), parseDoc(t, commented), VerifyOptions{})
	assert.NoError(t, err)
}

func mustString(t *testing.T, doc *etree.Document) string {
	s, err := doc.WriteToString()
	require.NoError(t, err)
	return s
}

func TestSignatureValueTampered(t *testing.T) {
	key, _ := rsaKey(t)
	doc := parseDoc(t, testDoc)
	require.NoError(t, Sign(context.Background(), doc, doc.Root(), key, nil, SignOptions{IncludeKeyValue: true, Hash: crypto.SHA1}))
	sv := doc.FindElement("//SignatureValue")
	raw, err := token.DecodeBase64(sv.Text())
	require.NoError(t, err)
	raw[5] ^= 0xff
	sv.SetText(token.EncodeBase64(raw))
	_, err = VerifyDocument(context.Background(), reparse(t, doc), VerifyOptions{})
	var verr sigerrors.VerificationFailedError
	require.True(t, errors.As(err, &verr))
	assert.Empty(t, verr.Reference)
}

func TestECDSAAndDSA(t *testing.T) {
	ecPriv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	dsaPriv := new(dsa.PrivateKey)
	require.NoError(t, dsa.GenerateParameters(&dsaPriv.Parameters, rand.Reader, dsa.L1024N160))
	require.NoError(t, dsa.GenerateKey(dsaPriv, rand.Reader))
	for _, tc := range []struct {
		priv crypto.PrivateKey
		hash crypto.Hash
		uri  string
	}{
		{ecPriv, crypto.SHA256, algorithm.ECDSASHA256},
		{dsaPriv, crypto.SHA1, algorithm.DSASHA1},
	} {
		key, err := token.KeyFromPrivate(softtoken.New(), tc.priv)
		require.NoError(t, err)
		doc := parseDoc(t, testDoc)
		require.NoError(t, Sign(context.Background(), doc, doc.Root(), key, nil, SignOptions{IncludeKeyValue: true, Hash: tc.hash}))
		sigs, err := VerifyDocument(context.Background(), reparse(t, doc), VerifyOptions{})
		require.NoError(t, err, tc.uri)
		assert.Equal(t, tc.uri, sigs[0].SignatureMethod)
	}
}

func TestHMAC(t *testing.T) {
	p := softtoken.New()
	key, err := p.NewKey(token.KeyHMAC)
	require.NoError(t, err)
	require.NoError(t, key.SetSecret([]byte("secret")))
	doc := parseDoc(t, testDoc)
	require.NoError(t, Sign(context.Background(), doc, doc.Root(), key, nil, SignOptions{Hash: crypto.SHA1, IncludeKeyValue: true}))
	assert.Nil(t, doc.FindElement("//KeyInfo"))
	doc = reparse(t, doc)
	sigs, err := VerifyDocument(context.Background(), doc, VerifyOptions{Key: key})
	require.NoError(t, err)
	assert.Equal(t, algorithm.HMACSHA1, sigs[0].SignatureMethod)

	wrong, _ := p.NewKey(token.KeyHMAC)
	require.NoError(t, wrong.SetSecret([]byte("guess")))
	_, err = VerifyDocument(context.Background(), doc, VerifyOptions{Key: wrong})
	assert.True(t, sigerrors.IsVerificationFailed(err))

	_, err = VerifyDocument(context.Background(), doc, VerifyOptions{})
	var cerr sigerrors.ConfigurationError
	assert.True(t, errors.As(err, &cerr), "no key to check an HMAC with")
}

func selfSigned(t *testing.T, priv *rsa.PrivateKey) *x509.Certificate {
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(4242),
		Subject:      pkix.Name{CommonName: "signer", Organization: []string{"Example, Inc."}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func TestX509(t *testing.T) {
	key, priv := rsaKey(t)
	cert := selfSigned(t, priv)
	_, otherPriv := rsaKey(t)
	otherCert := selfSigned(t, otherPriv)

	doc := parseDoc(t, testDoc)
	err := Sign(context.Background(), doc, doc.Root(), key, []*x509.Certificate{otherCert}, SignOptions{IncludeX509: true})
	assert.Error(t, err, "certificate must match the key")
	assert.Nil(t, doc.FindElement("//Signature"))

	require.NoError(t, Sign(context.Background(), doc, doc.Root(), key, []*x509.Certificate{cert}, SignOptions{IncludeX509: true, IncludeIssuerSerial: true}))
	name := doc.FindElement("//X509IssuerName")
	require.NotNil(t, name)
	assert.Equal(t, `CN=signer,O=Example\, Inc.`, name.Text())
	sigs, err := VerifyDocument(context.Background(), reparse(t, doc), VerifyOptions{})
	require.NoError(t, err)
	require.NotNil(t, sigs[0].Leaf())
	assert.Equal(t, cert.Raw, sigs[0].Leaf().Raw)

	// without KeyInfo the caller can supply the certificate
	doc = parseDoc(t, testDoc)
	require.NoError(t, Sign(context.Background(), doc, doc.Root(), key, nil, SignOptions{}))
	_, err = VerifyDocument(context.Background(), reparse(t, doc), VerifyOptions{Certificates: []*x509.Certificate{otherCert, cert}})
	require.NoError(t, err)
}

func TestEnveloping(t *testing.T) {
	key, _ := rsaKey(t)
	object := etree.NewElement("Object")
	object.CreateAttr("Id", "obj1")
	object.CreateElement("data").SetText("payload")
	sig, err := SignEnveloping(context.Background(), object, key, nil, SignOptions{IncludeKeyValue: true, C14NMethod: algorithm.C14N11})
	require.NoError(t, err)
	children := sig.ChildElements()
	require.Len(t, children, 4)
	assert.Equal(t, []string{"SignedInfo", "SignatureValue", "KeyInfo", "Object"},
		[]string{children[0].Tag, children[1].Tag, children[2].Tag, children[3].Tag})

	doc := etree.NewDocument()
	doc.SetRoot(sig)
	doc = reparse(t, doc)
	sigs, err := VerifyDocument(context.Background(), doc, VerifyOptions{})
	require.NoError(t, err)
	assert.Equal(t, "#obj1", sigs[0].References[0].URI)
	assert.Equal(t, TypeObject, sigs[0].References[0].Type)

	doc.FindElement("//data").SetText("changed")
	_, err = VerifyDocument(context.Background(), doc, VerifyOptions{})
	var verr sigerrors.VerificationFailedError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "#obj1", verr.Reference)
}

// a detached signature with several references, written by hand so that the
// transforms differ from what Sign produces
const multiRef = `<doc xmlns:ds="http://www.w3.org/2000/09/xmldsig#">
<a Id="a">alpha<!-- c --></a>
<b Id="b">YmV0YQ==</b>
<ds:Signature>
<ds:SignedInfo>
<ds:CanonicalizationMethod Algorithm="http://www.w3.org/2001/10/xml-exc-c14n#"/>
<ds:SignatureMethod Algorithm="http://www.w3.org/2000/09/xmldsig#hmac-sha1"/>
<ds:Reference URI="#a"><ds:DigestMethod Algorithm="http://www.w3.org/2001/04/xmlenc#sha256"/><ds:DigestValue/></ds:Reference>
<ds:Reference URI="#xpointer(id('a'))"><ds:Transforms><ds:Transform Algorithm="http://www.w3.org/2006/12/xml-c14n11#WithComments"/></ds:Transforms><ds:DigestMethod Algorithm="http://www.w3.org/2001/04/xmlenc#sha256"/><ds:DigestValue/></ds:Reference>
<ds:Reference URI="#b"><ds:Transforms><ds:Transform Algorithm="http://www.w3.org/2000/09/xmldsig#base64"/></ds:Transforms><ds:DigestMethod Algorithm="http://www.w3.org/2000/09/xmldsig#sha1"/><ds:DigestValue/></ds:Reference>
<ds:Reference URI="ext.bin"><ds:DigestMethod Algorithm="http://www.w3.org/2000/09/xmldsig#sha1"/><ds:DigestValue/></ds:Reference>
</ds:SignedInfo>
<ds:SignatureValue/>
</ds:Signature>
</doc>`

func resolveExt(uri string) (io.ReadCloser, error) {
	if uri != "ext.bin" {
		return nil, errors.New("not found")
	}
	return io.NopCloser(strings.NewReader("external")), nil
}

func TestMultipleReferences(t *testing.T) {
	doc := parseDoc(t, multiRef)
	sigEl := FindSignatures(doc.Root())[0]
	actx := algorithm.NewDefaultContext(nil)
	rp := &referenceProcessor{actx: actx, provider: actx.Provider(), doc: doc, root: doc.Root(), sig: sigEl, resolver: resolveExt}
	refEls := sigEl.FindElements("./ds:SignedInfo/ds:Reference")
	require.Len(t, refEls, 4)
	expected := []string{
		// inclusive canonicalization carries the ancestor's namespace
		sha(crypto.SHA256, `<a xmlns:ds="http://www.w3.org/2000/09/xmldsig#" Id="a">alpha</a>`),
		sha(crypto.SHA256, `<a xmlns:ds="http://www.w3.org/2000/09/xmldsig#" Id="a">alpha<!-- c --></a>`),
		sha(crypto.SHA1, "beta"),
		sha(crypto.SHA1, "external"),
	}
	for i, refEl := range refEls {
		ref, err := rp.digest(refEl)
		require.NoError(t, err, i)
		assert.Equal(t, expected[i], token.EncodeBase64(ref.Digest), ref.URI)
		refEl.SelectElement("DigestValue").SetText(token.EncodeBase64(ref.Digest))
	}
	// sign SignedInfo by hand with an HMAC key
	key, _ := actx.Provider().NewKey(token.KeyHMAC)
	require.NoError(t, key.SetSecret([]byte("secret")))
	sh, _ := actx.Signature(algorithm.HMACSHA1)
	data, err := signedInfoData(rp, sigEl.SelectElement("SignedInfo"), sh)
	require.NoError(t, err)
	value, err := sh.Sign(key, data)
	require.NoError(t, err)
	sigEl.SelectElement("SignatureValue").SetText(value)

	sig, err := Verify(context.Background(), doc, sigEl, VerifyOptions{Key: key, Context: actx, Resolver: resolveExt})
	require.NoError(t, err)
	assert.Len(t, sig.References, 4)

	_, err = Verify(context.Background(), doc, sigEl, VerifyOptions{Key: key, Context: actx})
	var uerr sigerrors.UnsupportedOperationError
	assert.True(t, errors.As(err, &uerr), "external references need a resolver")

	_, err = Verify(context.Background(), doc, sigEl, VerifyOptions{Key: key, Context: actx, Resolver: resolveExt, MaxReferences: 2})
	var cerr sigerrors.ConfigurationError
	assert.True(t, errors.As(err, &cerr))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Verify(ctx, doc, sigEl, VerifyOptions{Key: key, Context: actx, Resolver: resolveExt})
	assert.ErrorIs(t, err, context.Canceled)
}

func sha(hash crypto.Hash, s string) string {
	d := hash.New()
	d.Write([]byte(s))
	return token.EncodeBase64(d.Sum(nil))
}

func TestUnknownAlgorithm(t *testing.T) {
	key, _ := rsaKey(t)
	doc := parseDoc(t, testDoc)
	require.NoError(t, Sign(context.Background(), doc, doc.Root(), key, nil, SignOptions{IncludeKeyValue: true}))
	doc.FindElement("//DigestMethod").CreateAttr("Algorithm", "urn:unknown-digest")
	_, err := VerifyDocument(context.Background(), doc, VerifyOptions{})
	var uerr sigerrors.UnknownAlgorithmError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, "urn:unknown-digest", uerr.URI)
	assert.False(t, sigerrors.IsVerificationFailed(err))
}

func TestNotSigned(t *testing.T) {
	_, err := VerifyDocument(context.Background(), parseDoc(t, testDoc), VerifyOptions{})
	var nerr sigerrors.NotSignedError
	assert.True(t, errors.As(err, &nerr))
}

func TestMaxTransforms(t *testing.T) {
	key, _ := rsaKey(t)
	doc := parseDoc(t, testDoc)
	require.NoError(t, Sign(context.Background(), doc, doc.Root(), key, nil, SignOptions{IncludeKeyValue: true}))
	_, err := VerifyDocument(context.Background(), doc, VerifyOptions{MaxTransforms: 1})
	var cerr sigerrors.ConfigurationError
	assert.True(t, errors.As(err, &cerr))
}
