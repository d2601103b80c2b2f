//
// Copyright (c) SAS Institute Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package xmldsig

import (
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
	"github.com/rs/zerolog/log"

	"github.com/sassoftware/xmlsec/lib/algorithm"
	"github.com/sassoftware/xmlsec/lib/domutil"
	"github.com/sassoftware/xmlsec/lib/sigerrors"
	"github.com/sassoftware/xmlsec/lib/transform"
	"github.com/sassoftware/xmlsec/token"
)

// Resolver opens a reference URI that does not point into the document
type Resolver func(uri string) (io.ReadCloser, error)

// Reference is one processed ds:Reference
type Reference struct {
	URI          string
	Type         string
	DigestMethod string
	Transforms   []string
	// Digest computed over the transformed data
	Digest []byte
	// Nodes selected by a same-document reference, before transforms
	Nodes *transform.Nodes

	element *etree.Element
}

// referenceProcessor turns ds:Reference elements into transform chains
type referenceProcessor struct {
	actx          *algorithm.Context
	provider      token.Provider
	doc           *etree.Document
	root          *etree.Element
	sig           *etree.Element
	resolver      Resolver
	maxTransforms int
}

// dereference selects the data a reference URI points to. Whole-document and
// bare-name references exclude comments; XPointer references keep them.
func (rp *referenceProcessor) dereference(uri string) (transform.Input, *transform.Nodes, io.Closer, error) {
	switch {
	case uri == "":
		ns := transform.NewNodes(rp.document(), rp.root).WithoutComments()
		return transform.NodesInput(ns), ns, nil, nil
	case uri == "#xpointer(/)":
		ns := transform.NewNodes(rp.document(), rp.root)
		return transform.NodesInput(ns), ns, nil, nil
	case strings.HasPrefix(uri, "#xpointer(id(") && strings.HasSuffix(uri, "))"):
		id := strings.Trim(uri[len("#xpointer(id("):len(uri)-2], "'\"")
		el := domutil.FindByID(rp.root, id)
		if el == nil {
			return transform.Input{}, nil, nil, fmt.Errorf("xmldsig: reference %q not found", uri)
		}
		ns := transform.NewNodes(rp.document(), el).Subtree()
		return transform.NodesInput(ns), ns, nil, nil
	case strings.HasPrefix(uri, "#xpointer("):
		return transform.Input{}, nil, nil, sigerrors.UnsupportedOperationError{Op: "dereference", Reason: "unsupported XPointer " + uri}
	case strings.HasPrefix(uri, "#"):
		el := domutil.FindByID(rp.root, uri[1:])
		if el == nil {
			return transform.Input{}, nil, nil, fmt.Errorf("xmldsig: reference %q not found", uri)
		}
		ns := transform.NewNodes(rp.document(), el).Subtree().WithoutComments()
		return transform.NodesInput(ns), ns, nil, nil
	default:
		if rp.resolver == nil {
			return transform.Input{}, nil, nil, sigerrors.UnsupportedOperationError{Op: "dereference", Reason: "external reference " + uri}
		}
		rc, err := rp.resolver(uri)
		if err != nil {
			return transform.Input{}, nil, nil, fmt.Errorf("xmldsig: reference %q: %w", uri, err)
		}
		return transform.OctetInput(rc), nil, rc, nil
	}
}

func (rp *referenceProcessor) document() *etree.Document {
	return rp.doc
}

// chain builds the transform chain for a reference. Node-set to octet
// conversions the document leaves implicit are filled in: text extraction in
// front of base64, inclusive canonicalization elsewhere, and a final
// canonicalization if the last transform yields a node-set.
func (rp *referenceProcessor) chain(ref *Reference, input transform.Input) (*transform.Chain, error) {
	chain, err := transform.BuildChain(input)
	if err != nil {
		return nil, err
	}
	transforms := domutil.ChildNS(ref.element, NsXMLDsig, "Transforms")
	var list []*etree.Element
	if transforms != nil {
		for _, t := range transforms.ChildElements() {
			if domutil.IsNode(t, NsXMLDsig, "Transform") {
				list = append(list, t)
			}
		}
	}
	if rp.maxTransforms > 0 && len(list) > rp.maxTransforms {
		return nil, sigerrors.ConfigurationError{Stage: "Transforms", Reason: fmt.Sprintf("%d transforms exceed the limit of %d", len(list), rp.maxTransforms)}
	}
	for _, t := range list {
		uri := t.SelectAttrValue("Algorithm", "")
		ref.Transforms = append(ref.Transforms, uri)
		h, err := rp.actx.Transform(uri)
		if err != nil {
			return nil, err
		}
		stage, err := h.NewStage(rp.actx.TransformParams(t, rp.sig))
		if err != nil {
			return nil, sigerrors.ConfigurationError{Stage: uri, Reason: err.Error()}
		}
		if err := adapt(chain, stage.InputKind(), uri == algorithm.Base64); err != nil {
			return nil, err
		}
		if err := chain.Append(stage); err != nil {
			return nil, err
		}
	}
	if err := adapt(chain, transform.Octets, false); err != nil {
		return nil, err
	}
	return chain, nil
}

func adapt(chain *transform.Chain, want transform.Kind, text bool) error {
	have := chain.OutputKind()
	switch {
	case have == want:
		return nil
	case have == transform.NodeSet && text:
		return chain.Append(transform.NewTextExtractor())
	case have == transform.NodeSet:
		c14n, err := transform.NewCanonicalizer(transform.C14N10, "")
		if err != nil {
			return err
		}
		return chain.Append(c14n)
	default:
		return chain.Append(transform.NewParser())
	}
}

// digest runs a reference through its transforms and digest method
func (rp *referenceProcessor) digest(refEl *etree.Element) (*Reference, error) {
	ref := &Reference{
		URI:     refEl.SelectAttrValue("URI", ""),
		Type:    refEl.SelectAttrValue("Type", ""),
		element: refEl,
	}
	dm := domutil.ChildNS(refEl, NsXMLDsig, "DigestMethod")
	if dm == nil {
		return nil, sigerrors.ConfigurationError{Stage: "Reference", Reason: "missing DigestMethod"}
	}
	ref.DigestMethod = dm.SelectAttrValue("Algorithm", "")
	dh, err := rp.actx.Digest(ref.DigestMethod)
	if err != nil {
		return nil, err
	}
	input, nodes, closer, err := rp.dereference(ref.URI)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		defer closer.Close()
	}
	ref.Nodes = nodes
	chain, err := rp.chain(ref, input)
	if err != nil {
		return nil, err
	}
	dc, err := dh.NewDigest(rp.provider)
	if err != nil {
		return nil, err
	}
	ref.Digest, err = transform.Digest(chain, dc)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("uri", ref.URI).
		Str("chain", chain.String()).
		Hex("digest", ref.Digest).
		Msg("reference digested")
	return ref, nil
}

// canonicalSignedInfo serializes SignedInfo with its CanonicalizationMethod
func (rp *referenceProcessor) canonicalSignedInfo(signedInfo *etree.Element) ([]byte, error) {
	cm := domutil.ChildNS(signedInfo, NsXMLDsig, "CanonicalizationMethod")
	if cm == nil {
		return nil, sigerrors.ConfigurationError{Stage: "SignedInfo", Reason: "missing CanonicalizationMethod"}
	}
	uri := cm.SelectAttrValue("Algorithm", "")
	if !transform.IsCanonicalization(uri) {
		return nil, sigerrors.UnknownAlgorithmError{URI: uri, Reason: "not a canonicalization method"}
	}
	h, err := rp.actx.Transform(uri)
	if err != nil {
		return nil, err
	}
	stage, err := h.NewStage(rp.actx.TransformParams(cm, rp.sig))
	if err != nil {
		return nil, err
	}
	chain, err := transform.BuildChain(transform.NodesInput(transform.NewNodes(rp.document(), signedInfo)), stage)
	if err != nil {
		return nil, err
	}
	return chain.Bytes()
}
