package transform

import (
	"bytes"
	"crypto"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/xmlsec/lib/sigerrors"
	"github.com/sassoftware/xmlsec/token/softtoken"
)

const goldenInput = `<r:doc xmlns:r="urn:r"><r:a b="2" a="1">x</r:a><c xmlns="urn:c"/></r:doc>`

func parse(t *testing.T, s string) *etree.Document {
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(s))
	return doc
}

func TestGoldenCanonical(t *testing.T) {
	expected, err := os.ReadFile("testdata/golden_c14n.txt")
	require.NoError(t, err)
	for _, uri := range []string{C14N10, C14N11, ExcC14N} {
		doc := parse(t, goldenInput)
		out, err := Canonicalize(uri, "", NewNodes(doc, doc.Root()))
		require.NoError(t, err, uri)
		assert.Equal(t, string(expected), string(out), uri)
	}
}

func TestCanonicalIdempotent(t *testing.T) {
	doc := parse(t, goldenInput)
	first, err := Canonicalize(ExcC14N, "", NewNodes(doc, doc.Root()))
	require.NoError(t, err)
	doc2 := parse(t, string(first))
	second, err := Canonicalize(ExcC14N, "", NewNodes(doc2, doc2.Root()))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestSubsetInheritsNamespaces(t *testing.T) {
	doc := parse(t, `<r:doc xmlns:r="urn:r" xmlns:u="urn:unused"><r:a>x</r:a></r:doc>`)
	apex := doc.Root().ChildElements()[0]
	out, err := Canonicalize(ExcC14N, "", NewNodes(doc, apex))
	require.NoError(t, err)
	assert.Equal(t, `<r:a xmlns:r="urn:r">x</r:a>`, string(out))
	// the source document is untouched
	assert.Len(t, apex.Attr, 0)
}

func TestExpandNamespacesIdempotent(t *testing.T) {
	doc := parse(t, `<a xmlns="urn:outer" xmlns:p="urn:p"><p:b xmlns:p="urn:inner"><c/></p:b></a>`)
	ns := NewNodes(doc, doc.Root().ChildElements()[0])
	ns.ExpandNamespaces()
	once := serialize(t, ns.Root())
	ns.ExpandNamespaces()
	assert.Equal(t, once, serialize(t, ns.Root()))
	assert.Equal(t, "urn:inner", ns.Root().SelectAttrValue("xmlns:p", ""))
	assert.Equal(t, "urn:outer", ns.Root().SelectAttrValue("xmlns", ""))
}

func serialize(t *testing.T, el *etree.Element) string {
	doc := etree.NewDocument()
	doc.SetRoot(el.Copy())
	s, err := doc.WriteToString()
	require.NoError(t, err)
	return s
}

func TestKindMismatch(t *testing.T) {
	_, err := BuildChain(OctetInput(strings.NewReader("x")), NewEnvelopedSignature(etree.NewElement("Signature")))
	var cerr sigerrors.ConfigurationError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, envelopedName, cerr.Stage)

	doc := parse(t, goldenInput)
	_, err = BuildChain(DocumentInput(doc), NewBase64Decoder())
	assert.True(t, errors.As(err, &cerr))

	_, err = BuildChain(DocumentInput(etree.NewDocument()))
	assert.True(t, errors.As(err, &cerr))
}

func TestEnvelopedSignature(t *testing.T) {
	doc := parse(t, `<doc><item>1</item><!-- note --><Signature><x/></Signature></doc>`)
	sig := doc.FindElement("//Signature")
	c14n, err := NewCanonicalizer(C14N10Comments, "")
	require.NoError(t, err)
	chain, err := BuildChain(NodesInput(NewNodes(doc, doc.Root()).WithoutComments()), NewEnvelopedSignature(sig), c14n)
	require.NoError(t, err)
	out, err := chain.Bytes()
	require.NoError(t, err)
	assert.Equal(t, `<doc><item>1</item></doc>`, string(out))
	assert.NotNil(t, doc.FindElement("//Signature"), "source document must not change")
	assert.Equal(t, "enveloped-signature -> c14n", chain.String())
}

func TestXPathFilter(t *testing.T) {
	doc := parse(t, `<doc xmlns:ds="http://www.w3.org/2000/09/xmldsig#"><a>1</a><ds:Signature><ds:x/></ds:Signature><b>2</b></doc>`)
	xp := etree.NewElement("XPath")
	xp.CreateAttr("xmlns:dsig", "http://www.w3.org/2000/09/xmldsig#")
	c14n, _ := NewCanonicalizer(C14N10, "")
	chain, err := BuildChain(DocumentInput(doc), NewXPathFilter("not(ancestor-or-self::dsig:Signature)", xp, nil), c14n)
	require.NoError(t, err)
	out, err := chain.Bytes()
	require.NoError(t, err)
	assert.Equal(t, `<doc xmlns:ds="http://www.w3.org/2000/09/xmldsig#"><a>1</a><b>2</b></doc>`, string(out))

	_, err = BuildChain(DocumentInput(doc), NewXPathFilter("ancestor-or-self::nope:x", xp, nil))
	assert.Error(t, err)
}

func filterBytes(t *testing.T, doc *etree.Document, expr string, nsContext *etree.Element) string {
	c14n, err := NewCanonicalizer(C14N10, "")
	require.NoError(t, err)
	chain, err := BuildChain(DocumentInput(doc), NewXPathFilter(expr, nsContext, nil), c14n)
	require.NoError(t, err)
	out, err := chain.Bytes()
	require.NoError(t, err)
	return string(out)
}

func TestXPathFilterPerNode(t *testing.T) {
	const input = `<doc><drop>1</drop><keep>2</keep></doc>`
	for expr, expected := range map[string]string{
		"false()":                "",
		"true()":                 input,
		"self::keep":             `<keep>2</keep>`,
		"ancestor-or-self::keep": `<keep>2</keep>`,
		"not(self::drop)":        `<doc><keep>2</keep></doc>`,
	} {
		doc := parse(t, input)
		assert.Equal(t, expected, filterBytes(t, doc, expr, doc.Root()), expr)
	}

	// selected descendants of a dropped element move up into its parent
	doc := parse(t, `<doc><drop>1<keep>2</keep></drop><keep>3</keep></doc>`)
	assert.Equal(t, `<doc><keep>2</keep><keep>3</keep></doc>`, filterBytes(t, doc, "not(self::drop)", doc.Root()))

	// and keep the namespaces they inherited
	doc = parse(t, `<doc xmlns:p="urn:p"><drop><p:keep>2</p:keep></drop></doc>`)
	assert.Equal(t, `<p:keep xmlns:p="urn:p">2</p:keep>`, filterBytes(t, doc, "ancestor-or-self::p:keep", doc.Root()))
	assert.Len(t, doc.FindElements("//drop"), 1, "source document must not change")
}

func TestDocumentLevelNodes(t *testing.T) {
	expected, err := os.ReadFile("testdata/golden_doclevel_c14n.txt")
	require.NoError(t, err)
	const input = "<?xml version=\"1.0\"?>\n<?pi x?><!--c--><a/><?post?>"

	doc := parse(t, input)
	out, err := Canonicalize(C14N10Comments, "", NewNodes(doc, doc.Root()))
	require.NoError(t, err)
	assert.Equal(t, string(expected), string(out))

	out, err = Canonicalize(C14N10, "", NewNodes(doc, doc.Root()))
	require.NoError(t, err)
	assert.Equal(t, "<?pi x?>\n<a></a>\n<?post?>", string(out))

	out, err = Canonicalize(C14N10Comments, "", NewNodes(doc, doc.Root()).WithoutComments())
	require.NoError(t, err)
	assert.Equal(t, "<?pi x?>\n<a></a>\n<?post?>", string(out))

	out, err = Canonicalize(C14N10Comments, "", NewNodes(doc, doc.Root()).Subtree())
	require.NoError(t, err)
	assert.Equal(t, "<a></a>", string(out))

	// an XPath filter decides for document-level nodes as well
	assert.Equal(t, "<?pi x?>\n<a></a>\n<?post?>", filterBytes(t, doc, "not(ancestor-or-self::b)", doc.Root()))
	assert.Equal(t, "<a></a>", filterBytes(t, doc, "self::a", doc.Root()))
}

func TestBase64(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789abcdef"), 1000)
	enc := wrapLines(t, payload)
	chain, err := BuildChain(OctetInput(strings.NewReader(enc)), NewBase64Decoder())
	require.NoError(t, err)
	out, err := chain.Bytes()
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func wrapLines(t *testing.T, payload []byte) string {
	var b strings.Builder
	enc := []byte(strings.TrimSpace(encodeStd(payload)))
	for len(enc) > 76 {
		b.Write(enc[:76])
		b.WriteString("\n  ")
		enc = enc[76:]
	}
	b.Write(enc)
	return b.String()
}

func TestMalformedBase64(t *testing.T) {
	for _, input := range []string{"QUJD!", "QQ==QUJD", "QUJ"} {
		chain, err := BuildChain(OctetInput(strings.NewReader(input)), NewBase64Decoder())
		require.NoError(t, err)
		_, err = chain.Bytes()
		var terr sigerrors.TransformError
		require.True(t, errors.As(err, &terr), input)
		assert.Equal(t, base64Name, terr.Stage)
		// the failure is sticky
		_, err2 := chain.Read(make([]byte, 10))
		assert.Equal(t, err, err2)
		assert.Equal(t, err, chain.Err())
	}
}

func TestEOFIdempotent(t *testing.T) {
	chain, err := BuildChain(OctetInput(strings.NewReader("abc")))
	require.NoError(t, err)
	out, err := chain.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "abc", string(out))
	for i := 0; i < 3; i++ {
		n, err := chain.Read(make([]byte, 8))
		assert.Zero(t, n)
		assert.Equal(t, io.EOF, err)
	}
}

func TestTextThenBase64(t *testing.T) {
	doc := parse(t, `<v>SGVs<b>bG8s</b> IHdvcmxk</v>`)
	chain, err := BuildChain(DocumentInput(doc), NewTextExtractor(), NewBase64Decoder())
	require.NoError(t, err)
	out, err := chain.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", string(out))
}

func TestParseStage(t *testing.T) {
	c14n, _ := NewCanonicalizer(ExcC14N, "")
	chain, err := BuildChain(OctetInput(strings.NewReader(`<a  x="1"><b/></a>`)), NewParser(), c14n)
	require.NoError(t, err)
	out, err := chain.Bytes()
	require.NoError(t, err)
	assert.Equal(t, `<a x="1"><b></b></a>`, string(out))
}

type upperEngine struct{}

func (upperEngine) Transform(_ *etree.Element, input []byte) ([]byte, error) {
	return bytes.ToUpper(input), nil
}

func TestStylesheet(t *testing.T) {
	_, err := BuildChain(OctetInput(strings.NewReader("x")), NewStylesheet(nil, etree.NewElement("xsl")))
	assert.Error(t, err)
	chain, err := BuildChain(OctetInput(strings.NewReader("abc")), NewStylesheet(upperEngine{}, etree.NewElement("xsl")))
	require.NoError(t, err)
	out, err := chain.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "ABC", string(out))
}

func TestDigest(t *testing.T) {
	doc := parse(t, goldenInput)
	c14n, _ := NewCanonicalizer(ExcC14N, "")
	chain, err := BuildChain(DocumentInput(doc), c14n)
	require.NoError(t, err)
	dc, err := softtoken.New().NewDigest(crypto.SHA1)
	require.NoError(t, err)
	sum, err := Digest(chain, dc)
	require.NoError(t, err)
	expected, _ := os.ReadFile("testdata/golden_c14n.txt")
	want := sha1.Sum(expected)
	assert.Equal(t, want[:], sum)

	bad, err := BuildChain(OctetInput(strings.NewReader("QQ=!")), NewBase64Decoder())
	require.NoError(t, err)
	dc, _ = softtoken.New().NewDigest(crypto.SHA1)
	_, err = Digest(bad, dc)
	assert.Error(t, err)
	// the context was not finalized, so it can still be finished
	_, err = dc.Finish()
	assert.NoError(t, err)
}

func encodeStd(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
