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

// Package transform implements the reference processing pipeline of XML
// Signature: a chain of stages that turns a document, node-set or octet
// stream into the exact octets that get digested.
package transform

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
	"github.com/rs/zerolog/log"

	"github.com/sassoftware/xmlsec/lib/sigerrors"
)

// Kind is the type of data flowing between two stages
type Kind uint8

const (
	Octets Kind = iota + 1
	NodeSet
)

func (k Kind) String() string {
	switch k {
	case Octets:
		return "octets"
	case NodeSet:
		return "node-set"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// NodeType describes which nodes a node-set stage hands on
type NodeType uint8

const (
	WholeDocument NodeType = iota + 1
	FilteredNodeSet
)

// Stage is one step of a chain. The set of stages is closed; use the
// constructors in this package.
type Stage interface {
	Name() string
	InputKind() Kind
	OutputKind() Kind
	NodeType() NodeType
	connect(upstream interface{}) error
}

// nodeSource is implemented by stages producing a node-set
type nodeSource interface {
	Nodes() (*Nodes, error)
}

// Input is the data a chain starts from
type Input struct {
	nodes  *Nodes
	octets io.Reader
	err    error
}

// DocumentInput starts a chain from a whole document, comments included
func DocumentInput(doc *etree.Document) Input {
	if doc == nil || doc.Root() == nil {
		return Input{err: errors.New("document has no root element")}
	}
	return Input{nodes: NewNodes(doc, doc.Root())}
}

// NodesInput starts a chain from a node-set already selected by reference
// processing
func NodesInput(ns *Nodes) Input {
	if ns == nil {
		return Input{err: errors.New("empty node-set")}
	}
	return Input{nodes: ns}
}

// OctetInput starts a chain from raw octets
func OctetInput(r io.Reader) Input {
	return Input{octets: r}
}

func (in Input) kind() Kind {
	if in.octets != nil {
		return Octets
	}
	return NodeSet
}

func (in Input) source() interface{} {
	if in.octets != nil {
		return in.octets
	}
	return staticNodes{in.nodes}
}

type staticNodes struct{ ns *Nodes }

func (s staticNodes) Nodes() (*Nodes, error) { return s.ns, nil }

// Chain is a single-use pull pipeline. Read the terminal octets through the
// io.Reader interface, or call Nodes if it ends in a node-set.
type Chain struct {
	kind   Kind
	tail   interface{}
	stages []Stage
	err    error
	eof    bool
}

// BuildChain assembles stages on top of input. Every stage must accept the
// kind of data its predecessor produces.
func BuildChain(input Input, stages ...Stage) (*Chain, error) {
	if input.err != nil {
		return nil, sigerrors.ConfigurationError{Stage: "input", Reason: input.err.Error()}
	}
	c := &Chain{kind: input.kind(), tail: input.source()}
	for _, stage := range stages {
		if err := c.Append(stage); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Append adds a stage to the end of the chain
func (c *Chain) Append(stage Stage) error {
	if stage.InputKind() != c.kind {
		return sigerrors.ConfigurationError{
			Stage:  stage.Name(),
			Reason: fmt.Sprintf("expects %s input but the chain produces %s", stage.InputKind(), c.kind),
		}
	}
	if err := stage.connect(c.tail); err != nil {
		return sigerrors.ConfigurationError{Stage: stage.Name(), Reason: err.Error()}
	}
	c.stages = append(c.stages, stage)
	c.tail = stage
	c.kind = stage.OutputKind()
	return nil
}

// OutputKind is the kind of data the chain currently produces
func (c *Chain) OutputKind() Kind {
	return c.kind
}

// Stages returns the names of the stages in order
func (c *Chain) String() string {
	names := make([]string, len(c.stages))
	for i, s := range c.stages {
		names[i] = s.Name()
	}
	return strings.Join(names, " -> ")
}

// Read pulls output octets. Once the chain is exhausted every call returns
// io.EOF, and once it fails every call returns the same error.
func (c *Chain) Read(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	} else if c.eof {
		return 0, io.EOF
	}
	r, ok := c.tail.(io.Reader)
	if !ok {
		c.err = sigerrors.ConfigurationError{Stage: "output", Reason: "chain ends in a node-set"}
		return 0, c.err
	}
	n, err := r.Read(p)
	if err == io.EOF {
		c.eof = true
	} else if err != nil {
		c.err = wrapErr("read", err)
		log.Debug().Err(c.err).Str("chain", c.String()).Msg("transform chain aborted")
		return n, c.err
	}
	return n, err
}

// Bytes reads the remaining output
func (c *Chain) Bytes() ([]byte, error) {
	return io.ReadAll(c)
}

// Nodes returns the output of a chain ending in a node-set
func (c *Chain) Nodes() (*Nodes, error) {
	if c.err != nil {
		return nil, c.err
	}
	src, ok := c.tail.(nodeSource)
	if !ok {
		return nil, sigerrors.ConfigurationError{Stage: "output", Reason: "chain ends in octets"}
	}
	ns, err := src.Nodes()
	if err != nil {
		c.err = wrapErr("nodes", err)
		return nil, c.err
	}
	return ns, nil
}

// Err returns the error that aborted the chain, if any
func (c *Chain) Err() error {
	return c.err
}

// wrapErr turns a failure during pulling into a TransformError unless it
// already carries one of the typed errors
func wrapErr(stage string, err error) error {
	var terr sigerrors.TransformError
	var cerr sigerrors.ConfigurationError
	var berr sigerrors.CryptoBackendError
	if errors.As(err, &terr) || errors.As(err, &cerr) || errors.As(err, &berr) {
		return err
	}
	return sigerrors.TransformError{Stage: stage, Err: err}
}

func octetUpstream(upstream interface{}) (io.Reader, error) {
	r, ok := upstream.(io.Reader)
	if !ok {
		return nil, errors.New("upstream does not produce octets")
	}
	return r, nil
}

func nodeUpstream(upstream interface{}) (nodeSource, error) {
	src, ok := upstream.(nodeSource)
	if !ok {
		return nil, errors.New("upstream does not produce a node-set")
	}
	return src, nil
}
