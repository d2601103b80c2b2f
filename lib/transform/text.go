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

	"github.com/beevik/etree"
)

const (
	textName  = "text"
	parseName = "parse"
)

// TextExtractor turns a node-set into its string value, the concatenated
// character data. It precedes base64 decoding of element content.
type TextExtractor struct {
	src nodeSource
	out *bytes.Reader
	err error
}

func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

func (t *TextExtractor) Name() string       { return textName }
func (t *TextExtractor) InputKind() Kind    { return NodeSet }
func (t *TextExtractor) OutputKind() Kind   { return Octets }
func (t *TextExtractor) NodeType() NodeType { return WholeDocument }

func (t *TextExtractor) connect(upstream interface{}) (err error) {
	t.src, err = nodeUpstream(upstream)
	return
}

func (t *TextExtractor) Read(p []byte) (int, error) {
	if t.err != nil {
		return 0, t.err
	}
	if t.out == nil {
		ns, err := t.src.Nodes()
		if err != nil {
			t.err = wrapErr(textName, err)
			return 0, t.err
		}
		t.out = bytes.NewReader([]byte(ns.Text()))
	}
	return t.out.Read(p)
}

// Parser reads octets as an XML document and produces the whole document as a
// node-set
type Parser struct {
	src   io.Reader
	nodes *Nodes
}

func NewParser() *Parser {
	return &Parser{}
}

func (x *Parser) Name() string       { return parseName }
func (x *Parser) InputKind() Kind    { return Octets }
func (x *Parser) OutputKind() Kind   { return NodeSet }
func (x *Parser) NodeType() NodeType { return WholeDocument }

func (x *Parser) connect(upstream interface{}) (err error) {
	x.src, err = octetUpstream(upstream)
	return
}

func (x *Parser) Nodes() (*Nodes, error) {
	if x.nodes != nil {
		return x.nodes, nil
	}
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(x.src); err != nil {
		return nil, wrapErr(parseName, err)
	}
	if doc.Root() == nil {
		return nil, wrapErr(parseName, errors.New("document has no root element"))
	}
	x.nodes = NewNodes(doc, doc.Root())
	return x.nodes, nil
}
