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
	"context"
	"crypto"
	"crypto/hmac"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/beevik/etree"
	"github.com/rs/zerolog/log"

	"github.com/sassoftware/xmlsec/lib/algorithm"
	"github.com/sassoftware/xmlsec/lib/domutil"
	"github.com/sassoftware/xmlsec/lib/sigerrors"
	"github.com/sassoftware/xmlsec/lib/x509tools"
	"github.com/sassoftware/xmlsec/token"
)

type VerifyOptions struct {
	// Algorithm context, defaults to the process-wide one or a fresh
	// built-in context
	Context *algorithm.Context
	// Provider overrides the context's default provider
	Provider token.Provider
	// Key verifies the signature instead of KeyInfo, required for HMAC
	Key *token.Key
	// Extra certificates to try if KeyInfo does not verify
	Certificates []*x509.Certificate
	// Limits on untrusted input, zero for no limit
	MaxReferences int
	MaxTransforms int
	// Resolver opens references outside the document
	Resolver Resolver
}

func (o VerifyOptions) context() *algorithm.Context {
	if o.Context != nil {
		return o.Context
	} else if c := algorithm.Default(); c != nil {
		return c
	}
	return algorithm.NewDefaultContext(nil)
}

func (o VerifyOptions) provider(actx *algorithm.Context) (token.Provider, error) {
	if o.Provider != nil {
		return o.Provider, nil
	} else if p := actx.Provider(); p != nil {
		return p, nil
	}
	return nil, sigerrors.ConfigurationError{Reason: "no crypto provider"}
}

// Signature describes a verified signature
type Signature struct {
	PublicKey       crypto.PublicKey
	Certificates    []*x509.Certificate
	Hash            crypto.Hash
	SignatureMethod string
	SignatureValue  string
	References      []*Reference
	Element         *etree.Element
}

// Leaf returns the certificate holding the signing key, if any
func (s Signature) Leaf() *x509.Certificate {
	for _, cert := range s.Certificates {
		if x509tools.SameKey(cert.PublicKey, s.PublicKey) {
			return cert
		}
	}
	return nil
}

// FindSignatures returns every ds:Signature element under root
func FindSignatures(root *etree.Element) []*etree.Element {
	var sigs []*etree.Element
	var walk func(*etree.Element)
	walk = func(e *etree.Element) {
		if domutil.IsNode(e, NsXMLDsig, "Signature") {
			sigs = append(sigs, e)
			return
		}
		for _, child := range e.ChildElements() {
			walk(child)
		}
	}
	walk(root)
	return sigs
}

// VerifyDocument verifies every signature in doc
func VerifyDocument(ctx context.Context, doc *etree.Document, opts VerifyOptions) ([]*Signature, error) {
	if doc.Root() == nil {
		return nil, errors.New("xmldsig: empty document")
	}
	sigEls := FindSignatures(doc.Root())
	if len(sigEls) == 0 {
		return nil, sigerrors.NotSignedError{Type: "xmldsig"}
	}
	sigs := make([]*Signature, 0, len(sigEls))
	for _, sigEl := range sigEls {
		sig, err := Verify(ctx, doc, sigEl, opts)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

// Verify checks one signature element of doc: every reference digest and the
// signature value over SignedInfo. A document that does not verify yields a
// sigerrors.VerificationFailedError.
func Verify(ctx context.Context, doc *etree.Document, sigEl *etree.Element, opts VerifyOptions) (sig *Signature, err error) {
	start := time.Now()
	defer func() { record("verify", start, err) }()
	if doc.Root() == nil || sigEl == nil {
		return nil, sigerrors.NotSignedError{Type: "xmldsig"}
	}
	actx := opts.context()
	provider, err := opts.provider(actx)
	if err != nil {
		return nil, err
	}
	rp := &referenceProcessor{
		actx:          actx,
		provider:      provider,
		doc:           doc,
		root:          doc.Root(),
		sig:           sigEl,
		resolver:      opts.Resolver,
		maxTransforms: opts.MaxTransforms,
	}
	signedInfo := domutil.ChildNS(sigEl, NsXMLDsig, "SignedInfo")
	sigValueEl := domutil.ChildNS(sigEl, NsXMLDsig, "SignatureValue")
	if signedInfo == nil || sigValueEl == nil {
		return nil, errors.New("xmldsig: invalid signature")
	}
	sm := domutil.ChildNS(signedInfo, NsXMLDsig, "SignatureMethod")
	if sm == nil {
		return nil, errors.New("xmldsig: missing SignatureMethod")
	}
	if domutil.ChildNS(sm, NsXMLDsig, "HMACOutputLength") != nil {
		return nil, sigerrors.UnsupportedOperationError{Op: "verify", Reason: "truncated HMAC output"}
	}
	sig = &Signature{
		SignatureMethod: sm.SelectAttrValue("Algorithm", ""),
		SignatureValue:  domutil.GatherChildrenText(sigValueEl),
		Element:         sigEl,
	}
	sh, err := actx.Signature(sig.SignatureMethod)
	if err != nil {
		return nil, err
	}
	sig.Hash = sh.Hash()

	// references
	var refEls []*etree.Element
	for _, el := range signedInfo.ChildElements() {
		if domutil.IsNode(el, NsXMLDsig, "Reference") {
			refEls = append(refEls, el)
		}
	}
	if len(refEls) == 0 {
		return nil, errors.New("xmldsig: SignedInfo has no references")
	} else if opts.MaxReferences > 0 && len(refEls) > opts.MaxReferences {
		return nil, sigerrors.ConfigurationError{Stage: "SignedInfo", Reason: fmt.Sprintf("%d references exceed the limit of %d", len(refEls), opts.MaxReferences)}
	}
	for _, refEl := range refEls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ref, err := rp.digest(refEl)
		if err != nil {
			return nil, err
		}
		given, err := token.DecodeBase64(domutil.GatherChildrenText(domutil.ChildNS(refEl, NsXMLDsig, "DigestValue")))
		if err != nil || len(given) == 0 {
			return nil, sigerrors.VerificationFailedError{Reference: ref.URI, Reason: "invalid DigestValue"}
		}
		if !hmac.Equal(given, ref.Digest) {
			return nil, sigerrors.VerificationFailedError{
				Reference: ref.URI,
				Reason:    fmt.Sprintf("digest mismatch: calculated %x, found %x", ref.Digest, given),
			}
		}
		sig.References = append(sig.References, ref)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// signature value
	data, err := signedInfoData(rp, signedInfo, sh)
	if err != nil {
		return nil, err
	}
	candidates, certs, err := candidateKeys(sigEl, provider, sh.KeyKind(), opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, key := range candidates {
			if key != opts.Key {
				key.Close()
			}
		}
	}()
	sig.Certificates = certs
	if len(candidates) == 0 {
		return nil, sigerrors.ConfigurationError{Stage: "KeyInfo", Reason: "missing public key"}
	}
	for _, key := range candidates {
		ok, err := sh.Verify(key, data, sig.SignatureValue)
		if err != nil {
			return nil, err
		} else if ok {
			if key.Kind != token.KeyHMAC {
				sig.PublicKey, _ = key.Public()
			}
			log.Debug().
				Str("method", sig.SignatureMethod).
				Int("references", len(sig.References)).
				Msg("signature verified")
			return sig, nil
		}
	}
	return nil, sigerrors.VerificationFailedError{Reason: "signature value does not match SignedInfo"}
}

// signedInfoData returns what the signature method operates on: the digest of
// canonical SignedInfo, or for MACs the canonical octets themselves
func signedInfoData(rp *referenceProcessor, signedInfo *etree.Element, sh algorithm.SignatureHandler) ([]byte, error) {
	canon, err := rp.canonicalSignedInfo(signedInfo)
	if err != nil {
		return nil, err
	}
	if sh.KeyKind() == token.KeyHMAC {
		return canon, nil
	}
	dc, err := rp.provider.NewDigest(sh.Hash())
	if err != nil {
		return nil, err
	}
	if _, err := dc.Write(canon); err != nil {
		return nil, err
	}
	return dc.Finish()
}

// candidateKeys lists the keys that may have made the signature, most
// specific first
func candidateKeys(sigEl *etree.Element, p token.Provider, kind token.KeyKind, opts VerifyOptions) ([]*token.Key, []*x509.Certificate, error) {
	var keys []*token.Key
	add := func(key *token.Key) {
		if key == nil {
			return
		}
		if key.Kind == kind {
			keys = append(keys, key)
		} else if key != opts.Key {
			key.Close()
		}
	}
	add(opts.Key)
	certs := append([]*x509.Certificate(nil), opts.Certificates...)
	if kiEl := domutil.ChildNS(sigEl, NsXMLDsig, "KeyInfo"); kiEl != nil && kind != token.KeyHMAC {
		ki, err := parseKeyInfo(kiEl)
		if err != nil {
			return nil, nil, err
		}
		key, err := ki.publicKey(p)
		if err != nil {
			return nil, nil, err
		}
		add(key)
		embedded, err := ki.certificates()
		if err != nil {
			return nil, nil, err
		}
		certs = append(embedded, certs...)
	}
	if kind != token.KeyHMAC {
		for _, cert := range certs {
			if key, err := token.KeyFromPublic(p, cert.PublicKey); err == nil {
				add(key)
			}
		}
	}
	return keys, certs, nil
}
