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
	"crypto/rsa"
	"fmt"

	"github.com/beevik/etree"

	"github.com/sassoftware/xmlsec/lib/sigerrors"
	"github.com/sassoftware/xmlsec/lib/transform"
	"github.com/sassoftware/xmlsec/token"
)

// Handler realizes the algorithm named by a URI. Concrete handlers implement
// one of the narrower interfaces below.
type Handler interface {
	URI() string
}

type DigestHandler interface {
	Handler
	Hash() crypto.Hash
	NewDigest(p token.Provider) (token.DigestContext, error)
}

type SignatureHandler interface {
	Handler
	Hash() crypto.Hash
	KeyKind() token.KeyKind
	// Sign returns the base64 SignatureValue for a digest of SignedInfo
	Sign(key *token.Key, digest []byte) (string, error)
	// Verify checks a base64 SignatureValue. A wrong or malformed signature
	// returns false without an error.
	Verify(key *token.Key, digest []byte, sig string) (bool, error)
}

type CipherHandler interface {
	Handler
	KeySize() int
	Encrypt(key *token.Key, plaintext []byte) ([]byte, error)
	Decrypt(key *token.Key, ciphertext []byte) ([]byte, error)
}

type KeyWrapHandler interface {
	Handler
	// KeySize of the key encryption key, zero for RSA key transport
	KeySize() int
	Wrap(key *token.Key, cek []byte) ([]byte, error)
	Unwrap(key *token.Key, wrapped []byte) ([]byte, error)
}

// TransformParams carries what a transform needs from the document
type TransformParams struct {
	// Transform or CanonicalizationMethod element, may be nil
	Element *etree.Element
	// Signature element enclosing the reference
	Signature  *etree.Element
	Evaluator  transform.Evaluator
	Stylesheet transform.StylesheetEngine
}

type TransformHandler interface {
	Handler
	NewStage(params TransformParams) (transform.Stage, error)
}

type digestMethod struct {
	uri  string
	hash crypto.Hash
}

// NewDigestMethod binds a digest URI to a hash
func NewDigestMethod(uri string, hash crypto.Hash) DigestHandler {
	return digestMethod{uri: uri, hash: hash}
}

func (d digestMethod) URI() string       { return d.uri }
func (d digestMethod) Hash() crypto.Hash { return d.hash }

func (d digestMethod) NewDigest(p token.Provider) (token.DigestContext, error) {
	if p == nil {
		return nil, sigerrors.ConfigurationError{Reason: "no crypto provider"}
	}
	return p.NewDigest(d.hash)
}

type signatureMethod struct {
	uri  string
	kind token.KeyKind
	hash crypto.Hash
	pss  bool
}

// NewSignatureMethod binds a signature URI to a key kind and hash. pss
// selects RSASSA-PSS with a salt as long as the hash.
func NewSignatureMethod(uri string, kind token.KeyKind, hash crypto.Hash, pss bool) SignatureHandler {
	return signatureMethod{uri: uri, kind: kind, hash: hash, pss: pss}
}

func (s signatureMethod) URI() string            { return s.uri }
func (s signatureMethod) Hash() crypto.Hash      { return s.hash }
func (s signatureMethod) KeyKind() token.KeyKind { return s.kind }

func (s signatureMethod) opts() crypto.SignerOpts {
	if s.pss {
		return &rsa.PSSOptions{Hash: s.hash, SaltLength: rsa.PSSSaltLengthEqualsHash}
	}
	return s.hash
}

func (s signatureMethod) check(key *token.Key) error {
	if key == nil {
		return sigerrors.ConfigurationError{Reason: "no key"}
	} else if key.Kind != s.kind {
		return sigerrors.ConfigurationError{Reason: fmt.Sprintf("%s key can not be used with %s", key.Kind, s.uri)}
	}
	return nil
}

func (s signatureMethod) Sign(key *token.Key, digest []byte) (string, error) {
	if err := s.check(key); err != nil {
		return "", err
	}
	return key.SignBase64(s.opts(), digest)
}

func (s signatureMethod) Verify(key *token.Key, digest []byte, sig string) (bool, error) {
	if err := s.check(key); err != nil {
		return false, err
	}
	return key.VerifyBase64(s.opts(), digest, sig)
}

type cipherMethod struct {
	uri     string
	cipher  token.SymmetricCipher
	mode    token.CipherMode
	keySize int
}

// NewCipherMethod binds a block encryption URI to a cipher, mode and key size
// in bytes
func NewCipherMethod(uri string, cipher token.SymmetricCipher, mode token.CipherMode, keySize int) CipherHandler {
	return cipherMethod{uri: uri, cipher: cipher, mode: mode, keySize: keySize}
}

func (c cipherMethod) URI() string  { return c.uri }
func (c cipherMethod) KeySize() int { return c.keySize }

func (c cipherMethod) check(key *token.Key) error {
	if key == nil || key.Kind != token.KeySymmetric {
		return sigerrors.ConfigurationError{Reason: c.uri + " requires a symmetric key"}
	} else if len(key.Secret) != c.keySize {
		return sigerrors.ConfigurationError{Reason: fmt.Sprintf("%s requires a %d byte key, got %d", c.uri, c.keySize, len(key.Secret))}
	}
	key.Cipher = c.cipher
	return nil
}

func (c cipherMethod) Encrypt(key *token.Key, plaintext []byte) ([]byte, error) {
	if err := c.check(key); err != nil {
		return nil, err
	}
	return key.Provider().Encrypt(key, c.mode, plaintext)
}

func (c cipherMethod) Decrypt(key *token.Key, ciphertext []byte) ([]byte, error) {
	if err := c.check(key); err != nil {
		return nil, err
	}
	return key.Provider().Decrypt(key, c.mode, ciphertext)
}

type keyWrapMethod struct {
	uri     string
	mode    token.WrapMode
	cipher  token.SymmetricCipher
	keySize int
}

// NewKeyWrapMethod binds a key transport or key wrap URI
func NewKeyWrapMethod(uri string, mode token.WrapMode, keySize int) KeyWrapHandler {
	return keyWrapMethod{uri: uri, mode: mode, cipher: token.CipherAES, keySize: keySize}
}

func (w keyWrapMethod) URI() string  { return w.uri }
func (w keyWrapMethod) KeySize() int { return w.keySize }

func (w keyWrapMethod) check(key *token.Key) error {
	if key == nil {
		return sigerrors.ConfigurationError{Reason: "no key"}
	}
	if w.mode == token.WrapAESKW {
		if key.Kind != token.KeySymmetric || len(key.Secret) != w.keySize {
			return sigerrors.ConfigurationError{Reason: fmt.Sprintf("%s requires a %d byte symmetric key", w.uri, w.keySize)}
		}
		key.Cipher = w.cipher
	} else if key.Kind != token.KeyRSA {
		return sigerrors.ConfigurationError{Reason: w.uri + " requires an RSA key"}
	}
	return nil
}

func (w keyWrapMethod) Wrap(key *token.Key, cek []byte) ([]byte, error) {
	if err := w.check(key); err != nil {
		return nil, err
	}
	return key.Provider().WrapKey(key, w.mode, cek)
}

func (w keyWrapMethod) Unwrap(key *token.Key, wrapped []byte) ([]byte, error) {
	if err := w.check(key); err != nil {
		return nil, err
	}
	return key.Provider().UnwrapKey(key, w.mode, wrapped)
}

type transformMethod struct {
	uri   string
	build func(TransformParams) (transform.Stage, error)
}

// NewTransformMethod binds a transform URI to a stage constructor
func NewTransformMethod(uri string, build func(TransformParams) (transform.Stage, error)) TransformHandler {
	return transformMethod{uri: uri, build: build}
}

func (t transformMethod) URI() string { return t.uri }

func (t transformMethod) NewStage(params TransformParams) (transform.Stage, error) {
	return t.build(params)
}
