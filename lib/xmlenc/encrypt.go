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

// Package xmlenc encrypts and decrypts XML elements and element content. Bulk
// encryption and key transport are dispatched through the algorithm context.
package xmlenc

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/beevik/etree"
	"github.com/rs/zerolog/log"

	"github.com/sassoftware/xmlsec/lib/algorithm"
	"github.com/sassoftware/xmlsec/lib/domutil"
	"github.com/sassoftware/xmlsec/lib/transform"
	"github.com/sassoftware/xmlsec/token"
)

const (
	NsXMLEnc = domutil.NsXEnc
	NsDSig   = domutil.NsDSig

	TypeElement = NsXMLEnc + "Element"
	TypeContent = NsXMLEnc + "Content"
)

type EncryptOptions struct {
	// Algorithm context, defaults to the process-wide one or a fresh
	// built-in context
	Context *algorithm.Context
	// Block encryption method, defaults to AES-256-GCM
	Method string
	// Key transport or key wrap method. When set a random content
	// encryption key is generated and wrapped with the given key, which
	// must be an RSA key or a symmetric key encryption key.
	KeyTransport string
	// Encrypt the children of the element instead of the element itself
	Content bool
	// KeyName to record in KeyInfo
	KeyName string
	// Id attribute of the EncryptedData
	ID string
}

func (o EncryptOptions) method() string {
	if o.Method == "" {
		return algorithm.AES256GCM
	}
	return o.Method
}

func contextOrDefault(actx *algorithm.Context) *algorithm.Context {
	if actx != nil {
		return actx
	} else if c := algorithm.Default(); c != nil {
		return c
	}
	return algorithm.NewDefaultContext(nil)
}

// EncryptElement encrypts el, or its content, and puts an EncryptedData
// element in its place. The EncryptedData element is returned.
func EncryptElement(ctx context.Context, el *etree.Element, key *token.Key, opts EncryptOptions) (encData *etree.Element, err error) {
	start := time.Now()
	defer func() { record("encrypt", start, err) }()
	if el == nil || key == nil {
		return nil, errors.New("xmlenc: nothing to encrypt")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var plaintext []byte
	if opts.Content {
		plaintext, err = serializeContent(el)
	} else {
		if el.Parent() == nil {
			return nil, errors.New("xmlenc: element to encrypt has no parent")
		}
		plaintext, err = serializeElement(el)
	}
	if err != nil {
		return nil, err
	}
	encData, err = Encrypt(ctx, plaintext, key, opts)
	if err != nil {
		return nil, err
	}
	if opts.Content {
		encData.CreateAttr("Type", TypeContent)
		for len(el.Child) > 0 {
			el.RemoveChildAt(0)
		}
		el.AddChild(encData)
	} else {
		encData.CreateAttr("Type", TypeElement)
		parent := el.Parent()
		idx := el.Index()
		parent.RemoveChildAt(idx)
		parent.InsertChildAt(idx, encData)
	}
	return encData, nil
}

// Encrypt returns a detached EncryptedData element holding plaintext
func Encrypt(ctx context.Context, plaintext []byte, key *token.Key, opts EncryptOptions) (*etree.Element, error) {
	actx := contextOrDefault(opts.Context)
	ch, err := actx.Cipher(opts.method())
	if err != nil {
		return nil, err
	}
	dataKey := key
	var encKey *etree.Element
	if opts.KeyTransport != "" {
		kw, err := actx.KeyWrap(opts.KeyTransport)
		if err != nil {
			return nil, err
		}
		cek := make([]byte, ch.KeySize())
		if _, err := io.ReadFull(rand.Reader, cek); err != nil {
			return nil, err
		}
		dataKey, err = symmetricKey(key.Provider(), cek)
		if err != nil {
			return nil, err
		}
		defer dataKey.Close()
		wrapped, err := kw.Wrap(key, cek)
		if err != nil {
			return nil, err
		}
		encKey = newEncryptedKey(kw.URI(), opts.KeyName, wrapped)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ciphertext, err := ch.Encrypt(dataKey, plaintext)
	if err != nil {
		return nil, err
	}

	encData := etree.NewElement("EncryptedData")
	encData.CreateAttr("xmlns", NsXMLEnc)
	if opts.ID != "" {
		encData.CreateAttr("Id", opts.ID)
	}
	encData.CreateElement("EncryptionMethod").CreateAttr("Algorithm", ch.URI())
	if encKey != nil || opts.KeyName != "" {
		keyInfo := encData.CreateElement("KeyInfo")
		keyInfo.CreateAttr("xmlns", NsDSig)
		if encKey != nil {
			keyInfo.AddChild(encKey)
		} else {
			keyInfo.CreateElement("KeyName").SetText(opts.KeyName)
		}
	}
	encData.CreateElement("CipherData").CreateElement("CipherValue").SetText(token.EncodeBase64(ciphertext))
	log.Debug().
		Str("method", ch.URI()).
		Str("transport", opts.KeyTransport).
		Int("length", len(plaintext)).
		Msg("encrypted data")
	return encData, nil
}

func newEncryptedKey(method, keyName string, wrapped []byte) *etree.Element {
	encKey := etree.NewElement("EncryptedKey")
	encKey.CreateAttr("xmlns", NsXMLEnc)
	encKey.CreateElement("EncryptionMethod").CreateAttr("Algorithm", method)
	if keyName != "" {
		ki := encKey.CreateElement("KeyInfo")
		ki.CreateAttr("xmlns", NsDSig)
		ki.CreateElement("KeyName").SetText(keyName)
	}
	encKey.CreateElement("CipherData").CreateElement("CipherValue").SetText(token.EncodeBase64(wrapped))
	return encKey
}

func symmetricKey(p token.Provider, secret []byte) (*token.Key, error) {
	if p == nil {
		return nil, errors.New("xmlenc: key has no provider")
	}
	key, err := p.NewKey(token.KeySymmetric)
	if err != nil {
		return nil, err
	}
	if err := key.SetSecret(secret); err != nil {
		key.Close()
		return nil, err
	}
	return key, nil
}

// serializeElement writes el with the namespaces it inherits declared on it,
// so that it can be parsed again on its own
func serializeElement(el *etree.Element) ([]byte, error) {
	return transform.Canonicalize(transform.C14N10, "", transform.NewNodes(nil, el).WithoutComments())
}

func serializeContent(el *etree.Element) ([]byte, error) {
	var buf bytes.Buffer
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.Element:
			b, err := serializeElement(t)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		case *etree.CharData:
			if err := xml.EscapeText(&buf, []byte(t.Data)); err != nil {
				return nil, err
			}
		}
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("xmlenc: element %s has no content to encrypt", el.FullTag())
	}
	return buf.Bytes(), nil
}
