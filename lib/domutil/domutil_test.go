package domutil

import (
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `<root xmlns:ds="http://www.w3.org/2000/09/xmldsig#" xmlns:xenc="http://www.w3.org/2001/04/xmlenc#">
  <!-- note -->
  <item Id="one">text<![CDATA[ more]]><b>inner</b> tail</item>
  <ds:Signature><ds:SignedInfo/></ds:Signature>
  <xenc:EncryptedData><xenc:CipherData/></xenc:EncryptedData>
  <Signature/>
</root>`

func parse(t *testing.T) *etree.Element {
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(sample))
	return doc.Root()
}

func TestFindNodes(t *testing.T) {
	root := parse(t)
	sig := FindDSIGNode(root, "Signature")
	require.NotNil(t, sig)
	assert.Equal(t, "ds", sig.Space)
	assert.NotNil(t, FindDSIGNode(root, "SignedInfo"))
	assert.NotNil(t, FindXENCNode(root, "CipherData"))
	assert.Nil(t, FindXENCNode(root, "Signature"))
	// an unqualified Signature is not in the dsig namespace
	assert.Same(t, sig, FindDSIGNode(root, "Signature"))
	assert.Nil(t, FindECNode(root, "InclusiveNamespaces"))
	assert.Same(t, root.SelectElement("item"), FindByID(root, "one"))
}

func TestChildOfType(t *testing.T) {
	root := parse(t)
	first := FirstChildOfType(root, CommentNode)
	require.NotNil(t, first)
	assert.Equal(t, " note ", first.(*etree.Comment).Data)
	elem := FirstChildOfType(root, ElementNode)
	require.NotNil(t, elem)
	assert.Equal(t, "item", elem.(*etree.Element).Tag)
	next := NextChildOfType(elem, ElementNode)
	require.NotNil(t, next)
	assert.Equal(t, "Signature", next.(*etree.Element).Tag)
	assert.Nil(t, NextChildOfType(root.ChildElements()[3], ElementNode))
}

func TestText(t *testing.T) {
	item := parse(t).SelectElement("item")
	assert.Equal(t, "text more tail", GatherChildrenText(item))
	assert.Equal(t, "text moreinner tail", GatherText(item))
	assert.Equal(t, "ds:Signature", MakeQName("ds", "Signature"))
	assert.Equal(t, "Signature", MakeQName("", "Signature"))
}
