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

package xmlenc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/beevik/etree"
	"github.com/rs/zerolog/log"

	"github.com/sassoftware/xmlsec/lib/algorithm"
	"github.com/sassoftware/xmlsec/lib/domutil"
	"github.com/sassoftware/xmlsec/lib/sigerrors"
	"github.com/sassoftware/xmlsec/token"
)

type DecryptOptions struct {
	Context *algorithm.Context
}

// Decrypt returns the plaintext of an EncryptedData element. If it carries an
// EncryptedKey then key unwraps the content encryption key, otherwise key
// decrypts the data directly.
func Decrypt(ctx context.Context, encData *etree.Element, key *token.Key, opts DecryptOptions) (plaintext []byte, err error) {
	start := time.Now()
	defer func() { record("decrypt", start, err) }()
	if !domutil.IsNode(encData, NsXMLEnc, "EncryptedData") {
		return nil, errors.New("xmlenc: not an EncryptedData element")
	} else if key == nil {
		return nil, errors.New("xmlenc: no decryption key")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	actx := contextOrDefault(opts.Context)
	method, err := encryptionMethod(encData)
	if err != nil {
		return nil, err
	}
	ch, err := actx.Cipher(method)
	if err != nil {
		return nil, err
	}
	dataKey := key
	if encKey := domutil.ChildNS(domutil.ChildNS(encData, NsDSig, "KeyInfo"), NsXMLEnc, "EncryptedKey"); encKey != nil {
		cek, err := unwrapKey(actx, encKey, key)
		if err != nil {
			return nil, err
		}
		if len(cek) != ch.KeySize() {
			return nil, sigerrors.ConfigurationError{Stage: "EncryptedKey", Reason: fmt.Sprintf("unwrapped key is %d bytes, %s needs %d", len(cek), method, ch.KeySize())}
		}
		dataKey, err = symmetricKey(key.Provider(), cek)
		if err != nil {
			return nil, err
		}
		defer dataKey.Close()
	}
	ciphertext, err := cipherValue(encData)
	if err != nil {
		return nil, err
	}
	plaintext, err = ch.Decrypt(dataKey, ciphertext)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("method", method).Int("length", len(plaintext)).Msg("decrypted data")
	return plaintext, nil
}

// DecryptElement decrypts encData and replaces it in the tree with what it
// held. Data that is neither an element nor element content is left alone and
// an error is returned.
func DecryptElement(ctx context.Context, encData *etree.Element, key *token.Key, opts DecryptOptions) ([]etree.Token, error) {
	typ := encData.SelectAttrValue("Type", "")
	if typ != TypeElement && typ != TypeContent {
		return nil, sigerrors.UnsupportedOperationError{Op: "decrypt", Reason: fmt.Sprintf("EncryptedData of type %q can not be put back into a document", typ)}
	}
	parent := encData.Parent()
	if parent == nil {
		return nil, errors.New("xmlenc: EncryptedData has no parent")
	}
	plaintext, err := Decrypt(ctx, encData, key, opts)
	if err != nil {
		return nil, err
	}
	// parse inside a copy of the parent so that prefixes declared further up
	// still resolve
	wrapper := etree.NewElement(parent.Tag)
	wrapper.Space = parent.Space
	for _, attr := range namespaceContext(parent) {
		wrapper.CreateAttr(attr.FullKey(), attr.Value)
	}
	fragment, err := parseFragment(wrapper, plaintext)
	if err != nil {
		return nil, err
	}
	if typ == TypeElement && (len(fragment) != 1 || !isElement(fragment[0])) {
		return nil, errors.New("xmlenc: decrypted data is not a single element")
	}
	idx := encData.Index()
	parent.RemoveChildAt(idx)
	for i, tok := range fragment {
		parent.InsertChildAt(idx+i, tok)
	}
	return fragment, nil
}

func isElement(tok etree.Token) bool {
	_, ok := tok.(*etree.Element)
	return ok
}

// namespaceContext collects the namespace declarations in scope at el, nearest
// first
func namespaceContext(el *etree.Element) []etree.Attr {
	seen := make(map[string]bool)
	var attrs []etree.Attr
	for e := el; e != nil; e = e.Parent() {
		for _, attr := range e.Attr {
			if (attr.Space == "" && attr.Key == "xmlns") || attr.Space == "xmlns" {
				if !seen[attr.FullKey()] {
					seen[attr.FullKey()] = true
					attrs = append(attrs, attr)
				}
			}
		}
	}
	return attrs
}

func parseFragment(wrapper *etree.Element, plaintext []byte) ([]etree.Token, error) {
	open := etree.NewDocument()
	open.SetRoot(wrapper)
	head, err := open.WriteToString()
	if err != nil {
		return nil, err
	}
	// head is a self-closing tag, open it up around the plaintext
	head = head[:len(head)-2] + ">"
	doc := etree.NewDocument()
	if err := doc.ReadFromString(head + string(plaintext) + "</" + wrapper.FullTag() + ">"); err != nil {
		return nil, fmt.Errorf("xmlenc: decrypted data is not well-formed: %w", err)
	}
	root := doc.Root()
	tokens := append([]etree.Token(nil), root.Child...)
	for len(root.Child) > 0 {
		root.RemoveChildAt(0)
	}
	return tokens, nil
}

func encryptionMethod(el *etree.Element) (string, error) {
	em := domutil.ChildNS(el, NsXMLEnc, "EncryptionMethod")
	if em == nil {
		return "", sigerrors.ConfigurationError{Stage: el.Tag, Reason: "missing EncryptionMethod"}
	}
	return em.SelectAttrValue("Algorithm", ""), nil
}

func cipherValue(el *etree.Element) ([]byte, error) {
	cd := domutil.ChildNS(el, NsXMLEnc, "CipherData")
	if cd == nil {
		return nil, sigerrors.ConfigurationError{Stage: el.Tag, Reason: "missing CipherData"}
	}
	if domutil.ChildNS(cd, NsXMLEnc, "CipherReference") != nil {
		return nil, sigerrors.UnsupportedOperationError{Op: "decrypt", Reason: "CipherReference"}
	}
	cv := domutil.ChildNS(cd, NsXMLEnc, "CipherValue")
	if cv == nil {
		return nil, sigerrors.ConfigurationError{Stage: el.Tag, Reason: "missing CipherValue"}
	}
	raw, err := token.DecodeBase64(domutil.GatherChildrenText(cv))
	if err != nil {
		return nil, fmt.Errorf("xmlenc: invalid CipherValue: %w", err)
	}
	return raw, nil
}

func unwrapKey(actx *algorithm.Context, encKey *etree.Element, key *token.Key) ([]byte, error) {
	method, err := encryptionMethod(encKey)
	if err != nil {
		return nil, err
	}
	kw, err := actx.KeyWrap(method)
	if err != nil {
		return nil, err
	}
	if method == algorithm.RSAOAEP {
		em := domutil.ChildNS(encKey, NsXMLEnc, "EncryptionMethod")
		if dm := domutil.ChildNS(em, NsDSig, "DigestMethod"); dm != nil && dm.SelectAttrValue("Algorithm", "") != algorithm.SHA1 {
			return nil, sigerrors.UnsupportedOperationError{Op: "unwrap", Reason: "OAEP digest other than SHA-1"}
		}
		if p := domutil.ChildNS(em, NsXMLEnc, "OAEPparams"); p != nil && domutil.GatherChildrenText(p) != "" {
			return nil, sigerrors.UnsupportedOperationError{Op: "unwrap", Reason: "OAEP parameters"}
		}
	}
	wrapped, err := cipherValue(encKey)
	if err != nil {
		return nil, err
	}
	return kw.Unwrap(key, wrapped)
}
