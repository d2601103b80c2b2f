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

// Package xmldsig creates and verifies XML signatures. Reference data is run
// through the transform pipeline and the cryptography is dispatched through
// an algorithm context and crypto provider.
package xmldsig

import (
	"context"
	"crypto"
	"crypto/x509"
	"errors"
	"time"

	"github.com/beevik/etree"

	"github.com/sassoftware/xmlsec/lib/algorithm"
	"github.com/sassoftware/xmlsec/lib/domutil"
	"github.com/sassoftware/xmlsec/lib/transform"
	"github.com/sassoftware/xmlsec/lib/x509tools"
	"github.com/sassoftware/xmlsec/token"
)

type SignOptions struct {
	// Algorithm context, defaults as for VerifyOptions
	Context *algorithm.Context
	// Digest for references and signature, defaults to SHA-256
	Hash crypto.Hash
	// Canonicalization for SignedInfo and references, defaults to exclusive
	// canonicalization
	C14NMethod string
	// Add a KeyValue element with the public key
	IncludeKeyValue bool
	// Add the X509 certificate chain to the KeyInfo
	IncludeX509 bool
	// Add an X509IssuerSerial naming the signer certificate
	IncludeIssuerSerial bool
	// Add a KeyName element
	KeyName string
}

func (s SignOptions) c14n() string {
	if s.C14NMethod == "" {
		return transform.ExcC14N
	}
	return s.C14NMethod
}

func (s SignOptions) hash() crypto.Hash {
	if s.Hash == 0 {
		return crypto.SHA256
	}
	return s.Hash
}

func (s SignOptions) context() *algorithm.Context {
	return VerifyOptions{Context: s.Context}.context()
}

// Sign creates an enveloped signature over the document containing parent,
// replacing any existing signature and adding it as the last child of parent.
func Sign(ctx context.Context, doc *etree.Document, parent *etree.Element, key *token.Key, certs []*x509.Certificate, opts SignOptions) (err error) {
	start := time.Now()
	defer func() { record("sign", start, err) }()
	if doc.Root() == nil {
		return errors.New("xmldsig: empty document")
	}
	if err := checkCerts(key, certs); err != nil {
		return err
	}
	RemoveElements(parent, "Signature")
	signature := parent.CreateElement("Signature")
	signature.CreateAttr("xmlns", NsXMLDsig)
	err = finishSignature(ctx, doc, doc.Root(), signature, nil, key, certs, opts)
	if err != nil {
		parent.RemoveChild(signature)
	}
	return err
}

// SignEnveloping builds a Signature element around object, which must be an
// Object element with an Id attribute
func SignEnveloping(ctx context.Context, object *etree.Element, key *token.Key, certs []*x509.Certificate, opts SignOptions) (sig *etree.Element, err error) {
	start := time.Now()
	defer func() { record("sign", start, err) }()
	if err := checkCerts(key, certs); err != nil {
		return nil, err
	}
	if object.Tag != "Object" {
		return nil, errors.New("object must have tag \"Object\"")
	}
	if object.SelectAttrValue("Id", "") == "" {
		return nil, errors.New("object lacks an Id attribute")
	}
	// the object goes in before digesting so it inherits the signature
	// namespace
	doc := etree.NewDocument()
	signature := doc.CreateElement("Signature")
	signature.CreateAttr("xmlns", NsXMLDsig)
	if err := finishSignature(ctx, doc, signature, signature, object, key, certs, opts); err != nil {
		return nil, err
	}
	doc.RemoveChild(signature)
	return signature, nil
}

func checkCerts(key *token.Key, certs []*x509.Certificate) error {
	if key == nil {
		return errors.New("xmldsig: no signing key")
	}
	if len(certs) == 0 || key.Kind == token.KeyHMAC {
		return nil
	}
	pub, err := key.Public()
	if err != nil {
		return err
	}
	if !x509tools.SameKey(pub, certs[0].PublicKey) {
		return errors.New("xmldsig: first certificate must match private key")
	}
	return nil
}

func finishSignature(ctx context.Context, doc *etree.Document, root, signature, object *etree.Element, key *token.Key, certs []*x509.Certificate, opts SignOptions) error {
	actx := opts.context()
	hash := opts.hash()
	digestURI, err := actx.DigestURI(hash)
	if err != nil {
		return err
	}
	sigURI, err := actx.SignatureURI(key.Kind, hash)
	if err != nil {
		return err
	}
	sh, err := actx.Signature(sigURI)
	if err != nil {
		return err
	}
	signedinfo := buildSignedInfo(signature, object, digestURI, sigURI, opts)
	if object != nil {
		signature.AddChild(object)
	}
	rp := &referenceProcessor{
		actx:     actx,
		provider: key.Provider(),
		doc:      doc,
		root:     root,
		sig:      signature,
	}
	refEl := domutil.ChildNS(signedinfo, NsXMLDsig, "Reference")
	ref, err := rp.digest(refEl)
	if err != nil {
		return err
	}
	refEl.SelectElement("DigestValue").SetText(token.EncodeBase64(ref.Digest))
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := signedInfoData(rp, signedinfo, sh)
	if err != nil {
		return err
	}
	sigValue, err := sh.Sign(key, data)
	if err != nil {
		return err
	}
	sv := etree.NewElement("SignatureValue")
	sv.SetText(sigValue)
	insertBeforeObject(signature, object, sv)
	keyinfo := etree.NewElement("KeyInfo")
	if opts.KeyName != "" {
		keyinfo.CreateElement("KeyName").SetText(opts.KeyName)
	}
	if opts.IncludeKeyValue && key.Kind != token.KeyHMAC {
		if err := addKeyValue(keyinfo, key); err != nil {
			return err
		}
	}
	if (opts.IncludeX509 || opts.IncludeIssuerSerial) && len(certs) > 0 {
		addCerts(keyinfo, certs, opts.IncludeIssuerSerial)
	}
	if len(keyinfo.Child) > 0 {
		insertBeforeObject(signature, object, keyinfo)
	}
	return nil
}

func buildSignedInfo(signature, object *etree.Element, digestURI, sigURI string, opts SignOptions) *etree.Element {
	signedinfo := signature.CreateElement("SignedInfo")
	signedinfo.CreateElement("CanonicalizationMethod").CreateAttr("Algorithm", opts.c14n())
	signedinfo.CreateElement("SignatureMethod").CreateAttr("Algorithm", sigURI)
	reference := signedinfo.CreateElement("Reference")
	if object == nil {
		reference.CreateAttr("URI", "")
	} else {
		reference.CreateAttr("URI", "#"+object.SelectAttrValue("Id", ""))
		reference.CreateAttr("Type", TypeObject)
	}
	transforms := reference.CreateElement("Transforms")
	if object == nil {
		transforms.CreateElement("Transform").CreateAttr("Algorithm", algorithm.EnvelopedSignature)
	}
	transforms.CreateElement("Transform").CreateAttr("Algorithm", opts.c14n())
	reference.CreateElement("DigestMethod").CreateAttr("Algorithm", digestURI)
	reference.CreateElement("DigestValue")
	return signedinfo
}

func insertBeforeObject(signature, object, el *etree.Element) {
	if object == nil {
		signature.AddChild(el)
	} else {
		signature.InsertChildAt(object.Index(), el)
	}
}

// RemoveElements removes all child elements with this tag from the element
func RemoveElements(root *etree.Element, tag string) {
	for i := 0; i < len(root.Child); {
		if elem, ok := root.Child[i].(*etree.Element); ok && elem.Tag == tag {
			root.RemoveChildAt(i)
		} else {
			i++
		}
	}
}
