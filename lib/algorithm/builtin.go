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

package algorithm

import (
	"crypto"
	"errors"
	"strings"

	"github.com/beevik/etree"

	"github.com/sassoftware/xmlsec/lib/domutil"
	"github.com/sassoftware/xmlsec/lib/transform"
	"github.com/sassoftware/xmlsec/token"
)

var builtinDigests = []struct {
	uri  string
	hash crypto.Hash
}{
	{SHA1, crypto.SHA1},
	{SHA224, crypto.SHA224},
	{SHA256, crypto.SHA256},
	{SHA384, crypto.SHA384},
	{SHA512, crypto.SHA512},
	{RIPEMD160, crypto.RIPEMD160},
	{SHA3_224, crypto.SHA3_224},
	{SHA3_256, crypto.SHA3_256},
	{SHA3_384, crypto.SHA3_384},
	{SHA3_512, crypto.SHA3_512},
}

var builtinSignatures = []struct {
	uri  string
	kind token.KeyKind
	hash crypto.Hash
	pss  bool
}{
	{RSASHA1, token.KeyRSA, crypto.SHA1, false},
	{RSASHA224, token.KeyRSA, crypto.SHA224, false},
	{RSASHA256, token.KeyRSA, crypto.SHA256, false},
	{RSASHA384, token.KeyRSA, crypto.SHA384, false},
	{RSASHA512, token.KeyRSA, crypto.SHA512, false},
	{RSARIPEMD160, token.KeyRSA, crypto.RIPEMD160, false},
	{RSAPSSSHA1, token.KeyRSA, crypto.SHA1, true},
	{RSAPSSSHA224, token.KeyRSA, crypto.SHA224, true},
	{RSAPSSSHA256, token.KeyRSA, crypto.SHA256, true},
	{RSAPSSSHA384, token.KeyRSA, crypto.SHA384, true},
	{RSAPSSSHA512, token.KeyRSA, crypto.SHA512, true},
	{RSAPSSSHA3_256, token.KeyRSA, crypto.SHA3_256, true},
	{RSAPSSSHA3_512, token.KeyRSA, crypto.SHA3_512, true},
	{DSASHA1, token.KeyDSA, crypto.SHA1, false},
	{DSASHA256, token.KeyDSA, crypto.SHA256, false},
	{ECDSASHA1, token.KeyECDSA, crypto.SHA1, false},
	{ECDSASHA224, token.KeyECDSA, crypto.SHA224, false},
	{ECDSASHA256, token.KeyECDSA, crypto.SHA256, false},
	{ECDSASHA384, token.KeyECDSA, crypto.SHA384, false},
	{ECDSASHA512, token.KeyECDSA, crypto.SHA512, false},
	{HMACSHA1, token.KeyHMAC, crypto.SHA1, false},
	{HMACSHA224, token.KeyHMAC, crypto.SHA224, false},
	{HMACSHA256, token.KeyHMAC, crypto.SHA256, false},
	{HMACSHA384, token.KeyHMAC, crypto.SHA384, false},
	{HMACSHA512, token.KeyHMAC, crypto.SHA512, false},
	{HMACRIPEMD160, token.KeyHMAC, crypto.RIPEMD160, false},
}

var builtinCiphers = []struct {
	uri     string
	cipher  token.SymmetricCipher
	mode    token.CipherMode
	keySize int
}{
	{TripleDESCBC, token.CipherTripleDES, token.ModeCBC, 24},
	{AES128CBC, token.CipherAES, token.ModeCBC, 16},
	{AES192CBC, token.CipherAES, token.ModeCBC, 24},
	{AES256CBC, token.CipherAES, token.ModeCBC, 32},
	{AES128GCM, token.CipherAES, token.ModeGCM, 16},
	{AES192GCM, token.CipherAES, token.ModeGCM, 24},
	{AES256GCM, token.CipherAES, token.ModeGCM, 32},
}

var builtinKeyWraps = []struct {
	uri     string
	mode    token.WrapMode
	keySize int
}{
	{RSA15, token.WrapRSA15, 0},
	{RSAOAEP, token.WrapRSAOAEP, 0},
	{KWAES128, token.WrapAESKW, 16},
	{KWAES192, token.WrapAESKW, 24},
	{KWAES256, token.WrapAESKW, 32},
}

func registerBuiltins(c *Context) {
	for _, d := range builtinDigests {
		c.Register(d.uri, NewDigestMethod(d.uri, d.hash))
	}
	for _, s := range builtinSignatures {
		c.Register(s.uri, NewSignatureMethod(s.uri, s.kind, s.hash, s.pss))
	}
	for _, b := range builtinCiphers {
		c.Register(b.uri, NewCipherMethod(b.uri, b.cipher, b.mode, b.keySize))
	}
	for _, w := range builtinKeyWraps {
		c.Register(w.uri, NewKeyWrapMethod(w.uri, w.mode, w.keySize))
	}
	for _, uri := range []string{C14N10, C14N10Comments, C14N11, C14N11Comments, ExcC14N, ExcC14NComments} {
		uri := uri
		c.Register(uri, NewTransformMethod(uri, func(p TransformParams) (transform.Stage, error) {
			return transform.NewCanonicalizer(uri, inclusivePrefixes(p.Element))
		}))
	}
	c.Register(EnvelopedSignature, NewTransformMethod(EnvelopedSignature, func(p TransformParams) (transform.Stage, error) {
		if p.Signature == nil {
			return nil, errors.New("enveloped-signature transform outside of a signature")
		}
		return transform.NewEnvelopedSignature(p.Signature), nil
	}))
	c.Register(Base64, NewTransformMethod(Base64, func(TransformParams) (transform.Stage, error) {
		return transform.NewBase64Decoder(), nil
	}))
	c.Register(XPath, NewTransformMethod(XPath, func(p TransformParams) (transform.Stage, error) {
		xp := domutil.ChildNS(p.Element, domutil.NsDSig, "XPath")
		if xp == nil {
			return nil, errors.New("XPath transform without an XPath element")
		}
		return transform.NewXPathFilter(domutil.GatherChildrenText(xp), xp, p.Evaluator), nil
	}))
	c.Register(XSLT, NewTransformMethod(XSLT, func(p TransformParams) (transform.Stage, error) {
		if p.Element == nil || len(p.Element.ChildElements()) == 0 {
			return nil, errors.New("XSLT transform without a stylesheet")
		}
		return transform.NewStylesheet(p.Stylesheet, p.Element.ChildElements()[0]), nil
	}))
}

// inclusivePrefixes reads the InclusiveNamespaces PrefixList of an exclusive
// canonicalization method
func inclusivePrefixes(el *etree.Element) string {
	if el == nil {
		return ""
	}
	inc := domutil.ChildNS(el, domutil.NsEC, "InclusiveNamespaces")
	if inc == nil {
		return ""
	}
	return strings.Join(strings.Fields(inc.SelectAttrValue("PrefixList", "")), " ")
}
