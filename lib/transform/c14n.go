/*
 * Copyright (c) SAS Institute Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package transform

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/sassoftware/xmlsec/lib/sigerrors"
)

// Canonicalization method identifiers
const (
	C14N10            = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	C14N10Comments    = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315#WithComments"
	C14N11            = "http://www.w3.org/2006/12/xml-c14n11"
	C14N11Comments    = "http://www.w3.org/2006/12/xml-c14n11#WithComments"
	ExcC14N           = "http://www.w3.org/2001/10/xml-exc-c14n#"
	ExcC14NComments   = "http://www.w3.org/2001/10/xml-exc-c14n#WithComments"
	canonicalizerName = "c14n"
)

// Canonicalizer serializes a node-set to canonical octets
type Canonicalizer struct {
	uri       string
	c14n      dsig.Canonicalizer
	inclusive bool
	exclusive bool
	comments  bool

	src nodeSource
	out *bytes.Reader
	err error
}

// NewCanonicalizer returns a canonicalization stage for the given method.
// prefixes is the InclusiveNamespaces PrefixList and only applies to
// exclusive canonicalization.
func NewCanonicalizer(uri, prefixes string) (*Canonicalizer, error) {
	c := &Canonicalizer{uri: uri}
	switch uri {
	case C14N10:
		c.c14n, c.inclusive = dsig.MakeC14N10RecCanonicalizer(), true
	case C14N10Comments:
		c.c14n, c.inclusive = dsig.MakeC14N10WithCommentsCanonicalizer(), true
	case C14N11:
		c.c14n, c.inclusive = dsig.MakeC14N11Canonicalizer(), true
	case C14N11Comments:
		c.c14n, c.inclusive = dsig.MakeC14N11WithCommentsCanonicalizer(), true
	case ExcC14N:
		c.c14n, c.exclusive = dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList(prefixes), true
	case ExcC14NComments:
		c.c14n, c.exclusive = dsig.MakeC14N10ExclusiveWithCommentsCanonicalizerWithPrefixList(prefixes), true
	default:
		return nil, sigerrors.UnknownAlgorithmError{URI: uri, Reason: "not a canonicalization method"}
	}
	c.comments = strings.HasSuffix(uri, "#WithComments")
	return c, nil
}

// IsCanonicalization reports whether uri names a supported canonicalization
// method
func IsCanonicalization(uri string) bool {
	switch uri {
	case C14N10, C14N10Comments, C14N11, C14N11Comments, ExcC14N, ExcC14NComments:
		return true
	}
	return false
}

func (c *Canonicalizer) Name() string       { return canonicalizerName }
func (c *Canonicalizer) InputKind() Kind    { return NodeSet }
func (c *Canonicalizer) OutputKind() Kind   { return Octets }
func (c *Canonicalizer) NodeType() NodeType { return WholeDocument }
func (c *Canonicalizer) URI() string        { return c.uri }

func (c *Canonicalizer) connect(upstream interface{}) (err error) {
	c.src, err = nodeUpstream(upstream)
	return
}

func (c *Canonicalizer) Read(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.out == nil {
		if c.src == nil {
			return 0, errors.New("canonicalizer is not connected")
		}
		blob, err := c.canonicalize()
		if err != nil {
			c.err = wrapErr(canonicalizerName, err)
			return 0, c.err
		}
		c.out = bytes.NewReader(blob)
	}
	n, err := c.out.Read(p)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (c *Canonicalizer) canonicalize() ([]byte, error) {
	ns, err := c.src.Nodes()
	if err != nil {
		return nil, err
	}
	ns.ExpandNamespaces()
	var buf bytes.Buffer
	before, after := ns.documentLevel()
	for _, tok := range before {
		if c.writeDocumentNode(&buf, tok) {
			buf.WriteByte('\n')
		}
	}
	for i, root := range ns.Roots() {
		// exclusive canonicalization rewrites its input in place
		el := root.Copy()
		if c.inclusive {
			inheritXMLAttrs(el, ns.origins[i])
		}
		blob, err := c.c14n.Canonicalize(el)
		if err != nil {
			return nil, err
		}
		buf.Write(blob)
	}
	for _, tok := range after {
		var node bytes.Buffer
		if c.writeDocumentNode(&node, tok) {
			buf.WriteByte('\n')
			buf.Write(node.Bytes())
		}
	}
	return buf.Bytes(), nil
}

// writeDocumentNode serializes a comment or processing instruction found
// outside the document element. Line breaks separating them from the
// document element are up to the caller.
func (c *Canonicalizer) writeDocumentNode(buf *bytes.Buffer, tok etree.Token) bool {
	switch t := tok.(type) {
	case *etree.ProcInst:
		buf.WriteString("<?")
		buf.WriteString(t.Target)
		if t.Inst != "" {
			buf.WriteByte(' ')
			buf.WriteString(t.Inst)
		}
		buf.WriteString("?>")
	case *etree.Comment:
		if !c.comments {
			return false
		}
		buf.WriteString("<!--")
		buf.WriteString(t.Data)
		buf.WriteString("-->")
	default:
		return false
	}
	return true
}

// Canonicalize is a shortcut for running a single canonicalization over a
// node-set
func Canonicalize(uri, prefixes string, ns *Nodes) ([]byte, error) {
	c, err := NewCanonicalizer(uri, prefixes)
	if err != nil {
		return nil, err
	}
	chain, err := BuildChain(NodesInput(ns), c)
	if err != nil {
		return nil, err
	}
	return chain.Bytes()
}
