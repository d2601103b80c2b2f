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

// Package token defines the cryptographic provider abstraction. A Provider is
// one backend (software, PKCS#11 token, ...) able to digest, sign, verify,
// MAC, encrypt and wrap keys. Key objects carry the algorithm-specific key
// material and, optionally, a handle to a backend-native key object.
package token

import (
	"crypto"
	"fmt"
	"io"

	"github.com/sassoftware/xmlsec/config"
)

type KeyKind uint8

const (
	KeyDSA KeyKind = iota + 1
	KeyRSA
	KeyECDSA
	KeyHMAC
	KeySymmetric
)

func (k KeyKind) String() string {
	switch k {
	case KeyDSA:
		return "DSA"
	case KeyRSA:
		return "RSA"
	case KeyECDSA:
		return "ECDSA"
	case KeyHMAC:
		return "HMAC"
	case KeySymmetric:
		return "symmetric"
	default:
		return fmt.Sprintf("KeyKind(%d)", uint8(k))
	}
}

// SymmetricCipher selects the block cipher used with a symmetric key
type SymmetricCipher uint8

const (
	CipherAES SymmetricCipher = iota + 1
	CipherTripleDES
)

// CipherMode selects how a symmetric key encrypts bulk data. Ciphertexts are
// always laid out as IV || data (|| tag for GCM), as XML Encryption does.
type CipherMode uint8

const (
	ModeCBC CipherMode = iota + 1
	ModeGCM
)

// WrapMode selects a key transport or key wrap scheme
type WrapMode uint8

const (
	WrapRSA15 WrapMode = iota + 1
	WrapRSAOAEP
	WrapAESKW
)

// DigestContext is an incremental hash computation owned by a provider
type DigestContext interface {
	io.Writer
	Hash() crypto.Hash
	// Finish returns the digest. The context can not be written to afterwards.
	Finish() ([]byte, error)
}

// NativeHandle is a backend-owned key object, such as a PKCS#11 session
// object. The Key holding it releases it exactly once.
type NativeHandle interface {
	Release() error
}

type Provider interface {
	io.Closer
	// Name of the backend, used in errors and metrics
	Name() string
	// Start a new digest computation
	NewDigest(hash crypto.Hash) (DigestContext, error)
	// Create an empty key bound to this provider
	NewKey(kind KeyKind) (*Key, error)
	// Sign a digest. DSA and ECDSA signatures are returned as the fixed width
	// r || s concatenation used by XML signatures.
	Sign(key *Key, opts crypto.SignerOpts, digest []byte) ([]byte, error)
	// Verify a signature over a digest. A malformed signature is not an
	// error, it simply does not verify.
	Verify(key *Key, opts crypto.SignerOpts, digest, sig []byte) (bool, error)
	// Compute a MAC over data with an HMAC key
	MAC(key *Key, hash crypto.Hash, data []byte) ([]byte, error)
	// Encrypt or decrypt bulk data with a symmetric key
	Encrypt(key *Key, mode CipherMode, plaintext []byte) ([]byte, error)
	Decrypt(key *Key, mode CipherMode, ciphertext []byte) ([]byte, error)
	// Wrap or unwrap a content encryption key
	WrapKey(key *Key, mode WrapMode, cek []byte) ([]byte, error)
	UnwrapKey(key *Key, mode WrapMode, wrapped []byte) ([]byte, error)
	// Duplicate a native key handle so that a cloned key has its own
	DuplicateNative(h NativeHandle) (NativeHandle, error)
}

// OpenFunc instantiates a provider from its configuration
type OpenFunc func(conf *config.Config, providerName string) (Provider, error)

// Openers maps provider type names to their constructors. Backends register
// themselves at init time.
var Openers = make(map[string]OpenFunc)
