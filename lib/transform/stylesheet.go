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

const stylesheetName = "xslt"

// StylesheetEngine applies an XSLT stylesheet. No engine is built in; callers
// that need XSLT transforms supply one.
type StylesheetEngine interface {
	Transform(stylesheet *etree.Element, input []byte) ([]byte, error)
}

// Stylesheet runs its whole input through a StylesheetEngine
type Stylesheet struct {
	engine     StylesheetEngine
	stylesheet *etree.Element
	src        io.Reader
	out        *bytes.Reader
	err        error
}

// NewStylesheet returns a stylesheet stage
func NewStylesheet(engine StylesheetEngine, stylesheet *etree.Element) *Stylesheet {
	return &Stylesheet{engine: engine, stylesheet: stylesheet}
}

func (s *Stylesheet) Name() string       { return stylesheetName }
func (s *Stylesheet) InputKind() Kind    { return Octets }
func (s *Stylesheet) OutputKind() Kind   { return Octets }
func (s *Stylesheet) NodeType() NodeType { return WholeDocument }

func (s *Stylesheet) connect(upstream interface{}) (err error) {
	if s.engine == nil {
		return errors.New("no stylesheet engine configured")
	} else if s.stylesheet == nil {
		return errors.New("missing stylesheet")
	}
	s.src, err = octetUpstream(upstream)
	return
}

func (s *Stylesheet) Read(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.out == nil {
		input, err := io.ReadAll(s.src)
		if err == nil {
			var output []byte
			output, err = s.engine.Transform(s.stylesheet, input)
			s.out = bytes.NewReader(output)
		}
		if err != nil {
			s.err = wrapErr(stylesheetName, err)
			return 0, s.err
		}
	}
	return s.out.Read(p)
}
