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
	"strings"

	"github.com/beevik/etree"

	"github.com/sassoftware/xmlsec/lib/domutil"
)

// Nodes is a node-set: a subtree of a parsed document, minus the nodes removed
// by filtering stages. Excluding an element removes its whole subtree, while
// dropping an element removes only the element itself, its attributes and its
// direct text; descendants that are still selected move up to the nearest
// selected ancestor. The source document is never modified.
type Nodes struct {
	doc      *etree.Document
	apex     *etree.Element
	omit     map[*etree.Element]bool
	drop     map[*etree.Element]bool
	comments bool
	topLevel bool

	built    bool
	roots    []*etree.Element
	origins  []*etree.Element
	expanded bool
}

// NewNodes selects the subtree at apex, including comments. When apex is the
// document element the comments and processing instructions around it are
// selected too.
func NewNodes(doc *etree.Document, apex *etree.Element) *Nodes {
	return &Nodes{
		doc:      doc,
		apex:     apex,
		comments: true,
		topLevel: doc != nil && apex != nil && apex == doc.Root(),
	}
}

// WithoutComments returns a copy of the node-set that drops comment nodes, as
// for a same-document reference without an XPointer
func (ns *Nodes) WithoutComments() *Nodes {
	out := ns.derive()
	out.comments = false
	return out
}

// Subtree returns a copy of the node-set without the document-level comments
// and processing instructions, as for an ID reference to the document element
func (ns *Nodes) Subtree() *Nodes {
	out := ns.derive()
	out.topLevel = false
	return out
}

// Exclude returns a copy of the node-set with the subtree at el removed. An
// element outside the node-set is ignored.
func (ns *Nodes) Exclude(el *etree.Element) *Nodes {
	out := ns.derive()
	if ns.within(el) {
		out.omit[el] = true
	}
	return out
}

func (ns *Nodes) derive() *Nodes {
	out := &Nodes{
		doc:      ns.doc,
		apex:     ns.apex,
		comments: ns.comments,
		topLevel: ns.topLevel,
		omit:     make(map[*etree.Element]bool, len(ns.omit)+1),
		drop:     make(map[*etree.Element]bool, len(ns.drop)),
	}
	for el := range ns.omit {
		out.omit[el] = true
	}
	for el := range ns.drop {
		out.drop[el] = true
	}
	return out
}

// Document returns the source document
func (ns *Nodes) Document() *etree.Document {
	return ns.doc
}

// Apex returns the top element of the selection within the source document
func (ns *Nodes) Apex() *etree.Element {
	return ns.apex
}

// Type reports whether the node-set is an entire document
func (ns *Nodes) Type() NodeType {
	if ns.topLevel && ns.comments && len(ns.omit) == 0 && len(ns.drop) == 0 {
		return WholeDocument
	}
	return FilteredNodeSet
}

// Contains reports whether el is part of the node-set
func (ns *Nodes) Contains(el *etree.Element) bool {
	return !ns.drop[el] && ns.within(el)
}

// within reports whether el lies under the apex and outside every excluded
// subtree
func (ns *Nodes) within(el *etree.Element) bool {
	for e := el; e != nil; e = e.Parent() {
		if ns.omit[e] {
			return false
		}
		if e == ns.apex {
			return true
		}
	}
	return false
}

// walk visits every element in the node-set in document order. Returning
// false from fn skips that element's children. Dropped elements are not
// visited but their children are.
func (ns *Nodes) walk(fn func(*etree.Element) bool) {
	var visit func(*etree.Element)
	visit = func(el *etree.Element) {
		if ns.omit[el] {
			return
		}
		if !ns.drop[el] && !fn(el) {
			return
		}
		for _, child := range el.ChildElements() {
			visit(child)
		}
	}
	visit(ns.apex)
}

// Roots returns detached copies of the top-level elements of the selection,
// in document order. Usually that is just the apex; if a filter dropped the
// apex it is each selected element nearest to it, and nothing when the
// filter selected no elements at all. The copies are made once and shared
// by later callers, who must not modify them.
func (ns *Nodes) Roots() []*etree.Element {
	if !ns.built {
		ns.built = true
		ns.collect(ns.apex)
	}
	return ns.roots
}

// Root returns the detached copy of the apex, or nil if the apex is not
// selected
func (ns *Nodes) Root() *etree.Element {
	if roots := ns.Roots(); len(roots) == 1 && ns.origins[0] == ns.apex {
		return roots[0]
	}
	return nil
}

func (ns *Nodes) collect(el *etree.Element) {
	if el == nil || ns.omit[el] {
		return
	}
	if ns.drop[el] {
		for _, child := range el.ChildElements() {
			ns.collect(child)
		}
		return
	}
	cp := el.Copy()
	ns.prune(el, cp)
	ns.roots = append(ns.roots, cp)
	ns.origins = append(ns.origins, el)
}

// prune walks the original and the copy in parallel, relying on Copy
// preserving child order. Selected descendants of a dropped child take its
// place.
func (ns *Nodes) prune(orig, cp *etree.Element) {
	for i := len(orig.Child) - 1; i >= 0; i-- {
		switch tok := orig.Child[i].(type) {
		case *etree.Element:
			switch {
			case ns.omit[tok]:
				cp.RemoveChildAt(i)
			case ns.drop[tok]:
				cp.RemoveChildAt(i)
				for j, lifted := range ns.lift(tok) {
					cp.InsertChildAt(i+j, lifted)
				}
			default:
				ns.prune(tok, cp.Child[i].(*etree.Element))
			}
		case *etree.Comment:
			if !ns.comments {
				cp.RemoveChildAt(i)
			}
		}
	}
}

// lift returns copies of the selected descendants of a dropped element. Each
// copy declares the namespaces it inherited in the source document.
func (ns *Nodes) lift(el *etree.Element) []etree.Token {
	var out []etree.Token
	for _, child := range el.ChildElements() {
		switch {
		case ns.omit[child]:
		case ns.drop[child]:
			out = append(out, ns.lift(child)...)
		default:
			cp := child.Copy()
			ns.prune(child, cp)
			inheritNamespaces(cp, child)
			out = append(out, cp)
		}
	}
	return out
}

// ExpandNamespaces copies namespace declarations inherited from the ancestors
// of each top-level element onto its detached copy, so that the copy can be
// serialized on its own. Declarations nearer the element shadow farther ones.
// Calling it more than once has no further effect.
func (ns *Nodes) ExpandNamespaces() {
	roots := ns.Roots()
	if ns.expanded {
		return
	}
	ns.expanded = true
	for i, root := range roots {
		inheritNamespaces(root, ns.origins[i])
	}
}

func inheritNamespaces(cp, orig *etree.Element) {
	declared := make(map[string]bool)
	for _, attr := range cp.Attr {
		if isNamespaceDecl(attr) {
			declared[attr.FullKey()] = true
		}
	}
	for p := orig.Parent(); p != nil; p = p.Parent() {
		for _, attr := range p.Attr {
			key := attr.FullKey()
			if isNamespaceDecl(attr) && !declared[key] {
				cp.CreateAttr(key, attr.Value)
				declared[key] = true
			}
		}
	}
}

// inheritXMLAttrs copies xml:* attributes in scope at orig onto root, as
// inclusive canonicalization does for document subsets
func inheritXMLAttrs(root, orig *etree.Element) {
	seen := make(map[string]bool)
	for _, attr := range root.Attr {
		if attr.Space == "xml" {
			seen[attr.Key] = true
		}
	}
	for p := orig.Parent(); p != nil; p = p.Parent() {
		for _, attr := range p.Attr {
			if attr.Space == "xml" && !seen[attr.Key] {
				root.CreateAttr(attr.FullKey(), attr.Value)
				seen[attr.Key] = true
			}
		}
	}
}

func isNamespaceDecl(attr etree.Attr) bool {
	return attr.Space == "xmlns" || (attr.Space == "" && attr.Key == "xmlns")
}

// Text returns the string value of the node-set: all character data in
// document order
func (ns *Nodes) Text() string {
	var sb strings.Builder
	for _, root := range ns.Roots() {
		sb.WriteString(domutil.GatherText(root))
	}
	return sb.String()
}

// documentLevel returns the comments and processing instructions that sit
// before and after the document element, or nothing if the node-set does not
// reach the document level
func (ns *Nodes) documentLevel() (before, after []etree.Token) {
	if !ns.topLevel || ns.doc == nil {
		return nil, nil
	}
	seenRoot := false
	for _, tok := range ns.doc.Child {
		switch t := tok.(type) {
		case *etree.Element:
			seenRoot = true
			continue
		case *etree.ProcInst:
			if t.Target == "xml" {
				continue
			}
		case *etree.Comment:
			if !ns.comments {
				continue
			}
		default:
			continue
		}
		if seenRoot {
			after = append(after, tok)
		} else {
			before = append(before, tok)
		}
	}
	return before, after
}
