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
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/sassoftware/xmlsec/lib/sigerrors"
)

const xpathName = "xpath"

// Predicate decides whether an element stays in the node-set
type Predicate func(el *etree.Element) (bool, error)

// Evaluator compiles XPath filter expressions. nsContext is the element
// carrying the expression; its in-scope namespace declarations resolve
// prefixes.
type Evaluator interface {
	Compile(expr string, nsContext *etree.Element) (Predicate, error)
}

// XPathFilter keeps the elements of a node-set for which an expression is
// true. An element that fails is dropped along with its attributes and text,
// but its descendants are tested on their own.
type XPathFilter struct {
	expr      string
	nsContext *etree.Element
	eval      Evaluator
	src       nodeSource
	pred      Predicate
}

// NewXPathFilter returns a filtering stage. A nil evaluator selects
// PathEvaluator.
func NewXPathFilter(expr string, nsContext *etree.Element, eval Evaluator) *XPathFilter {
	if eval == nil {
		eval = PathEvaluator{}
	}
	return &XPathFilter{expr: strings.TrimSpace(expr), nsContext: nsContext, eval: eval}
}

func (x *XPathFilter) Name() string       { return xpathName }
func (x *XPathFilter) InputKind() Kind    { return NodeSet }
func (x *XPathFilter) OutputKind() Kind   { return NodeSet }
func (x *XPathFilter) NodeType() NodeType { return FilteredNodeSet }

func (x *XPathFilter) connect(upstream interface{}) (err error) {
	if x.pred, err = x.eval.Compile(x.expr, x.nsContext); err != nil {
		return err
	}
	x.src, err = nodeUpstream(upstream)
	return
}

func (x *XPathFilter) Nodes() (*Nodes, error) {
	ns, err := x.src.Nodes()
	if err != nil {
		return nil, err
	}
	out := ns.derive()
	var evalErr error
	ns.walk(func(el *etree.Element) bool {
		if evalErr != nil {
			return false
		}
		keep, err := x.pred(el)
		if err != nil {
			evalErr = err
			return false
		}
		if !keep {
			out.drop[el] = true
		}
		return true
	})
	if evalErr == nil && out.topLevel {
		// document-level comments and processing instructions have no
		// element ancestors; test them against a detached, unnamed element
		out.topLevel, evalErr = x.pred(etree.NewElement(""))
	}
	if evalErr != nil {
		return nil, sigerrors.TransformError{Stage: xpathName, Err: evalErr}
	}
	return out, nil
}

// PathEvaluator understands the expressions found in practice in XPath
// filter transforms:
//
//	not(EXPR)
//	ancestor-or-self::QNAME
//	self::QNAME
//	true() and false()
//
// Anything else is compiled as an etree path relative to each element and is
// true when it selects at least one element.
type PathEvaluator struct{}

func (PathEvaluator) Compile(expr string, nsContext *etree.Element) (Predicate, error) {
	expr = strings.TrimSpace(expr)
	switch {
	case expr == "true()":
		return func(*etree.Element) (bool, error) { return true, nil }, nil
	case expr == "false()":
		return func(*etree.Element) (bool, error) { return false, nil }, nil
	case strings.HasPrefix(expr, "not(") && strings.HasSuffix(expr, ")"):
		inner, err := PathEvaluator{}.Compile(expr[4:len(expr)-1], nsContext)
		if err != nil {
			return nil, err
		}
		return func(el *etree.Element) (bool, error) {
			ok, err := inner(el)
			return !ok, err
		}, nil
	case strings.HasPrefix(expr, "ancestor-or-self::"):
		match, err := nameTest(strings.TrimPrefix(expr, "ancestor-or-self::"), nsContext)
		if err != nil {
			return nil, err
		}
		return func(el *etree.Element) (bool, error) {
			for e := el; e != nil; e = e.Parent() {
				if match(e) {
					return true, nil
				}
			}
			return false, nil
		}, nil
	case strings.HasPrefix(expr, "self::"):
		match, err := nameTest(strings.TrimPrefix(expr, "self::"), nsContext)
		if err != nil {
			return nil, err
		}
		return func(el *etree.Element) (bool, error) { return match(el), nil }, nil
	}
	path, err := etree.CompilePath(expr)
	if err != nil {
		return nil, sigerrors.UnsupportedOperationError{Op: "xpath", Reason: err.Error()}
	}
	return func(el *etree.Element) (bool, error) {
		return el.FindElementPath(path) != nil, nil
	}, nil
}

// nameTest matches elements by a possibly prefixed name or *
func nameTest(qname string, nsContext *etree.Element) (func(*etree.Element) bool, error) {
	qname = strings.TrimSpace(qname)
	if qname == "*" || qname == "node()" {
		return func(e *etree.Element) bool { return e.Parent() != nil }, nil
	}
	prefix, local := "", qname
	if i := strings.IndexByte(qname, ':'); i >= 0 {
		prefix, local = qname[:i], qname[i+1:]
	}
	if local == "" || strings.ContainsAny(local, "/[]()") {
		return nil, sigerrors.UnsupportedOperationError{Op: "xpath", Reason: fmt.Sprintf("unsupported name test %q", qname)}
	}
	if prefix == "" {
		return func(e *etree.Element) bool { return e.Tag == local && e.NamespaceURI() == "" }, nil
	}
	uri := lookupPrefix(nsContext, prefix)
	if uri == "" {
		return nil, sigerrors.TransformError{Stage: xpathName, Err: fmt.Errorf("undeclared namespace prefix %q", prefix)}
	}
	return func(e *etree.Element) bool { return e.Tag == local && e.NamespaceURI() == uri }, nil
}

func lookupPrefix(el *etree.Element, prefix string) string {
	for e := el; e != nil; e = e.Parent() {
		for _, attr := range e.Attr {
			if attr.Space == "xmlns" && attr.Key == prefix {
				return attr.Value
			}
		}
	}
	return ""
}
