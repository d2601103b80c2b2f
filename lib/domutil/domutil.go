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

// Package domutil has namespace-aware lookup helpers over an etree DOM, shared
// by the signature and encryption engines.
package domutil

import (
	"strings"

	"github.com/beevik/etree"
)

const (
	NsDSig     = "http://www.w3.org/2000/09/xmldsig#"
	NsDSig11   = "http://www.w3.org/2009/xmldsig11#"
	NsDSigMore = "http://www.w3.org/2001/04/xmldsig-more#"
	NsXEnc     = "http://www.w3.org/2001/04/xmlenc#"
	NsXEnc11   = "http://www.w3.org/2009/xmlenc11#"
	NsEC       = "http://www.w3.org/2001/10/xml-exc-c14n#"
	NsXPF      = "http://www.w3.org/2002/06/xmldsig-filter2"
	NsXMLNS    = "http://www.w3.org/2000/xmlns/"
	NsXML      = "http://www.w3.org/XML/1998/namespace"
)

// NodeKind selects a kind of child token
type NodeKind int

const (
	ElementNode NodeKind = iota
	TextNode
	CommentNode
	ProcInstNode
	DirectiveNode
)

func kindOf(t etree.Token) NodeKind {
	switch t.(type) {
	case *etree.Element:
		return ElementNode
	case *etree.CharData:
		return TextNode
	case *etree.Comment:
		return CommentNode
	case *etree.ProcInst:
		return ProcInstNode
	default:
		return DirectiveNode
	}
}

// FindNode does a depth-first search from e, inclusive, for an element with
// the given namespace URI and local name
func FindNode(e *etree.Element, ns, local string) *etree.Element {
	if e == nil {
		return nil
	}
	if e.Tag == local && e.NamespaceURI() == ns {
		return e
	}
	for _, child := range e.ChildElements() {
		if found := FindNode(child, ns, local); found != nil {
			return found
		}
	}
	return nil
}

// FindDSIGNode finds an XML Signature element by local name
func FindDSIGNode(e *etree.Element, local string) *etree.Element {
	return FindNode(e, NsDSig, local)
}

// FindXENCNode finds an XML Encryption element by local name
func FindXENCNode(e *etree.Element, local string) *etree.Element {
	return FindNode(e, NsXEnc, local)
}

// FindECNode finds an exclusive canonicalization element, such as
// InclusiveNamespaces
func FindECNode(e *etree.Element, local string) *etree.Element {
	return FindNode(e, NsEC, local)
}

// FindXPFNode finds an XPath Filter 2.0 element
func FindXPFNode(e *etree.Element, local string) *etree.Element {
	return FindNode(e, NsXPF, local)
}

// IsNode reports whether e has the given namespace URI and local name
func IsNode(e *etree.Element, ns, local string) bool {
	return e != nil && e.Tag == local && e.NamespaceURI() == ns
}

// ChildNS returns the first direct child element with the given namespace
// URI and local name
func ChildNS(e *etree.Element, ns, local string) *etree.Element {
	if e == nil {
		return nil
	}
	for _, child := range e.ChildElements() {
		if IsNode(child, ns, local) {
			return child
		}
	}
	return nil
}

// FirstChildOfType returns the first direct child token of the given kind
func FirstChildOfType(e *etree.Element, kind NodeKind) etree.Token {
	for _, child := range e.Child {
		if kindOf(child) == kind {
			return child
		}
	}
	return nil
}

// NextChildOfType returns the next sibling of t with the given kind
func NextChildOfType(t etree.Token, kind NodeKind) etree.Token {
	parent := t.Parent()
	if parent == nil {
		return nil
	}
	for _, sib := range parent.Child[t.Index()+1:] {
		if kindOf(sib) == kind {
			return sib
		}
	}
	return nil
}

// MakeQName joins a prefix and local name
func MakeQName(prefix, local string) string {
	if prefix == "" {
		return local
	}
	return prefix + ":" + local
}

// GatherChildrenText concatenates the text and CDATA children of e. Text
// inside child elements is not included.
func GatherChildrenText(e *etree.Element) string {
	var b strings.Builder
	for _, child := range e.Child {
		if cd, ok := child.(*etree.CharData); ok {
			b.WriteString(cd.Data)
		}
	}
	return b.String()
}

// GatherText concatenates all descendant text of e in document order
func GatherText(e *etree.Element) string {
	var b strings.Builder
	var walk func(*etree.Element)
	walk = func(e *etree.Element) {
		for _, child := range e.Child {
			switch c := child.(type) {
			case *etree.CharData:
				b.WriteString(c.Data)
			case *etree.Element:
				walk(c)
			}
		}
	}
	walk(e)
	return b.String()
}

// FindByID searches the tree rooted at e for an element whose Id, ID or id
// attribute equals id
func FindByID(e *etree.Element, id string) *etree.Element {
	if e == nil {
		return nil
	}
	for _, attr := range e.Attr {
		if attr.Space == "" && (attr.Key == "Id" || attr.Key == "ID" || attr.Key == "id") && attr.Value == id {
			return e
		}
	}
	for _, child := range e.ChildElements() {
		if found := FindByID(child, id); found != nil {
			return found
		}
	}
	return nil
}
