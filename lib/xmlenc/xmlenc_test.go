package xmlenc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/xmlsec/lib/algorithm"
	"github.com/sassoftware/xmlsec/lib/sigerrors"
	"github.com/sassoftware/xmlsec/token"
	"github.com/sassoftware/xmlsec/token/softtoken"
)

const testDoc = `<order xmlns="urn:shop" xmlns:pay="urn:pay"><item>book</item><pay:card number="4111">Alice &amp; Bob</pay:card></order>`

func parse(t *testing.T, s string) *etree.Document {
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(s))
	return doc
}

func secretKey(t *testing.T, size int) *token.Key {
	key, err := softtoken.New().NewKey(token.KeySymmetric)
	require.NoError(t, err)
	secret := make([]byte, size)
	_, err = rand.Read(secret)
	require.NoError(t, err)
	require.NoError(t, key.SetSecret(secret))
	return key
}

func canonical(t *testing.T, doc *etree.Document) string {
	s, err := doc.WriteToString()
	require.NoError(t, err)
	return s
}

// reparse serializes and parses the document again so that decryption sees
// only what was written out
func reparse(t *testing.T, doc *etree.Document) *etree.Document {
	return parse(t, canonical(t, doc))
}

func findEncrypted(doc *etree.Document) *etree.Element {
	return doc.FindElement("//EncryptedData")
}

func TestElementRoundTrip(t *testing.T) {
	for _, method := range []string{algorithm.AES128CBC, algorithm.AES256GCM, algorithm.TripleDESCBC} {
		actx := algorithm.NewDefaultContext(nil)
		ch, err := actx.Cipher(method)
		require.NoError(t, err)
		key := secretKey(t, ch.KeySize())
		doc := parse(t, testDoc)
		card := doc.FindElement("//card")
		encData, err := EncryptElement(context.Background(), card, key, EncryptOptions{Context: actx, Method: method, KeyName: "k1", ID: "ed1"})
		require.NoError(t, err, method)
		assert.Equal(t, TypeElement, encData.SelectAttrValue("Type", ""))
		assert.Nil(t, doc.FindElement("//card"))
		assert.NotContains(t, canonical(t, doc), "4111")

		doc = reparse(t, doc)
		tokens, err := DecryptElement(context.Background(), findEncrypted(doc), key, DecryptOptions{Context: actx})
		require.NoError(t, err, method)
		require.Len(t, tokens, 1)
		card = doc.FindElement("//card")
		require.NotNil(t, card)
		assert.Equal(t, "urn:pay", card.NamespaceURI())
		assert.Equal(t, "4111", card.SelectAttrValue("number", ""))
		assert.Equal(t, "Alice & Bob", card.Text())
		assert.Nil(t, findEncrypted(doc))
	}
}

func TestContentRoundTrip(t *testing.T) {
	key := secretKey(t, 32)
	doc := parse(t, testDoc)
	order := doc.Root()
	encData, err := EncryptElement(context.Background(), order, key, EncryptOptions{Content: true})
	require.NoError(t, err)
	assert.Equal(t, TypeContent, encData.SelectAttrValue("Type", ""))
	require.Len(t, order.ChildElements(), 1)

	doc = reparse(t, doc)
	tokens, err := DecryptElement(context.Background(), findEncrypted(doc), key, DecryptOptions{})
	require.NoError(t, err)
	assert.Len(t, tokens, 2)
	children := doc.Root().ChildElements()
	require.Len(t, children, 2)
	assert.Equal(t, "item", children[0].Tag)
	assert.Equal(t, "urn:shop", children[0].NamespaceURI())
	assert.Equal(t, "book", children[0].Text())
	assert.Equal(t, "urn:pay", children[1].NamespaceURI())
}

func TestKeyTransport(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	rsaKey, err := token.KeyFromPrivate(softtoken.New(), priv)
	require.NoError(t, err)
	for _, tc := range []struct {
		transport string
		key       *token.Key
	}{
		{algorithm.RSAOAEP, rsaKey},
		{algorithm.RSA15, rsaKey},
		{algorithm.KWAES128, secretKey(t, 16)},
		{algorithm.KWAES256, secretKey(t, 32)},
	} {
		doc := parse(t, testDoc)
		_, err := EncryptElement(context.Background(), doc.FindElement("//item"), tc.key, EncryptOptions{
			Method:       algorithm.AES128GCM,
			KeyTransport: tc.transport,
			KeyName:      "recipient",
		})
		require.NoError(t, err, tc.transport)
		encKey := doc.FindElement("//EncryptedKey")
		require.NotNil(t, encKey, tc.transport)
		assert.Equal(t, tc.transport, encKey.FindElement("EncryptionMethod").SelectAttrValue("Algorithm", ""))
		assert.Equal(t, "recipient", encKey.FindElement("KeyInfo/KeyName").Text())

		doc = reparse(t, doc)
		_, err = DecryptElement(context.Background(), findEncrypted(doc), tc.key, DecryptOptions{})
		require.NoError(t, err, tc.transport)
		assert.Equal(t, "book", doc.FindElement("//item").Text())
	}
}

func TestWrongKey(t *testing.T) {
	key := secretKey(t, 32)
	doc := parse(t, testDoc)
	_, err := EncryptElement(context.Background(), doc.FindElement("//item"), key, EncryptOptions{})
	require.NoError(t, err)
	_, err = Decrypt(context.Background(), findEncrypted(doc), secretKey(t, 32), DecryptOptions{})
	assert.Error(t, err)
	assert.NotNil(t, findEncrypted(doc), "failed decryption leaves the document alone")

	_, err = Decrypt(context.Background(), findEncrypted(doc), secretKey(t, 16), DecryptOptions{})
	var cerr sigerrors.ConfigurationError
	assert.True(t, errors.As(err, &cerr), "key size is checked against the method")
}

func TestUnknownMethod(t *testing.T) {
	key := secretKey(t, 32)
	doc := parse(t, testDoc)
	_, err := EncryptElement(context.Background(), doc.FindElement("//item"), key, EncryptOptions{Method: "urn:cipher:rot13"})
	var uerr sigerrors.UnknownAlgorithmError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, "urn:cipher:rot13", uerr.URI)
	assert.NotNil(t, doc.FindElement("//item"))

	_, err = EncryptElement(context.Background(), doc.FindElement("//item"), key, EncryptOptions{Method: algorithm.SHA256})
	assert.True(t, errors.As(err, &uerr), "a digest is not a cipher")
}

func TestCipherReference(t *testing.T) {
	doc := parse(t, `<r><EncryptedData xmlns="http://www.w3.org/2001/04/xmlenc#" Type="http://www.w3.org/2001/04/xmlenc#Element">
<EncryptionMethod Algorithm="http://www.w3.org/2001/04/xmlenc#aes256-cbc"/>
<CipherData><CipherReference URI="http://example.com/data"/></CipherData>
</EncryptedData></r>`)
	_, err := DecryptElement(context.Background(), findEncrypted(doc), secretKey(t, 32), DecryptOptions{})
	var uerr sigerrors.UnsupportedOperationError
	assert.True(t, errors.As(err, &uerr))
}

func TestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doc := parse(t, testDoc)
	_, err := EncryptElement(ctx, doc.FindElement("//item"), secretKey(t, 32), EncryptOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}
