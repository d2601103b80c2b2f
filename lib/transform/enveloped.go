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
	"errors"

	"github.com/beevik/etree"
)

const envelopedName = "enveloped-signature"

// EnvelopedSignature removes the signature element being verified, and
// everything below it, from the node-set
type EnvelopedSignature struct {
	sig *etree.Element
	src nodeSource
}

// NewEnvelopedSignature returns a stage that removes sig
func NewEnvelopedSignature(sig *etree.Element) *EnvelopedSignature {
	return &EnvelopedSignature{sig: sig}
}

func (e *EnvelopedSignature) Name() string       { return envelopedName }
func (e *EnvelopedSignature) InputKind() Kind    { return NodeSet }
func (e *EnvelopedSignature) OutputKind() Kind   { return NodeSet }
func (e *EnvelopedSignature) NodeType() NodeType { return FilteredNodeSet }

func (e *EnvelopedSignature) connect(upstream interface{}) (err error) {
	if e.sig == nil {
		return errors.New("no signature element to remove")
	}
	e.src, err = nodeUpstream(upstream)
	return
}

func (e *EnvelopedSignature) Nodes() (*Nodes, error) {
	ns, err := e.src.Nodes()
	if err != nil {
		return nil, err
	}
	return ns.Exclude(e.sig), nil
}
