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

package token

import (
	"bytes"
	"crypto"
	"crypto/elliptic"
	"errors"
	"fmt"

	"github.com/sassoftware/xmlsec/lib/sigerrors"
)

// Field names for key parameters loaded from base64 big numbers
type Field string

const (
	FieldP               Field = "P"
	FieldQ               Field = "Q"
	FieldG               Field = "G"
	FieldY               Field = "Y"
	FieldJ               Field = "J"
	FieldX               Field = "X"
	FieldModulus         Field = "Modulus"
	FieldExponent        Field = "Exponent"
	FieldPrivateExponent Field = "PrivateExponent"
)

// DSAParams are big-endian unsigned integers exactly as decoded
type DSAParams struct {
	P, Q, G, Y, J []byte
	X             []byte
}

// RSAParams are big-endian unsigned integers exactly as decoded. Primes are
// only known for keys loaded from a private key file.
type RSAParams struct {
	Modulus         []byte
	Exponent        []byte
	PrivateExponent []byte
	Primes          [][]byte
}

type ECDSAParams struct {
	Curve elliptic.Curve
	X, Y  []byte
	D     []byte
}

// Key is a closed variant over the key kinds used by XML signature and
// encryption. Only the parameter block matching Kind is meaningful.
type Key struct {
	Kind   KeyKind
	DSA    DSAParams
	RSA    RSAParams
	ECDSA  ECDSAParams
	Secret []byte
	Cipher SymmetricCipher

	provider Provider
	native   NativeHandle
	closed   bool
}

// NewKeyFor returns an empty key of the given kind bound to provider p
func NewKeyFor(p Provider, kind KeyKind) (*Key, error) {
	switch kind {
	case KeyDSA, KeyRSA, KeyECDSA, KeyHMAC, KeySymmetric:
	default:
		return nil, sigerrors.ConfigurationError{Reason: fmt.Sprintf("unknown key kind %s", kind)}
	}
	return &Key{Kind: kind, provider: p}, nil
}

// Provider returns the backend this key performs operations with
func (k *Key) Provider() Provider {
	return k.provider
}

// Rebind routes the key's operations through p, typically a wrapper around
// the backend that created it
func (k *Key) Rebind(p Provider) {
	k.provider = p
}

// LoadDSAParam sets one DSA parameter from its base64 encoding. Loading the
// same field again replaces it.
func (k *Key) LoadDSAParam(field Field, b64 string) error {
	if k.Kind != KeyDSA {
		return sigerrors.ConfigurationError{Reason: fmt.Sprintf("DSA parameter %s on %s key", field, k.Kind)}
	}
	v, err := decodeParam(field, b64)
	if err != nil {
		return err
	}
	switch field {
	case FieldP:
		k.DSA.P = v
	case FieldQ:
		k.DSA.Q = v
	case FieldG:
		k.DSA.G = v
	case FieldY:
		k.DSA.Y = v
	case FieldJ:
		k.DSA.J = v
	case FieldX:
		k.DSA.X = v
	default:
		return sigerrors.ConfigurationError{Reason: fmt.Sprintf("unknown DSA parameter %s", field)}
	}
	return nil
}

// LoadRSAParam sets one RSA parameter from its base64 encoding
func (k *Key) LoadRSAParam(field Field, b64 string) error {
	if k.Kind != KeyRSA {
		return sigerrors.ConfigurationError{Reason: fmt.Sprintf("RSA parameter %s on %s key", field, k.Kind)}
	}
	v, err := decodeParam(field, b64)
	if err != nil {
		return err
	}
	switch field {
	case FieldModulus:
		k.RSA.Modulus = v
	case FieldExponent:
		k.RSA.Exponent = v
	case FieldPrivateExponent:
		k.RSA.PrivateExponent = v
	default:
		return sigerrors.ConfigurationError{Reason: fmt.Sprintf("unknown RSA parameter %s", field)}
	}
	return nil
}

func decodeParam(field Field, b64 string) ([]byte, error) {
	v, err := DecodeBase64(b64)
	if err != nil {
		return nil, fmt.Errorf("parameter %s: %w", field, err)
	} else if len(v) == 0 {
		return nil, fmt.Errorf("parameter %s is empty", field)
	}
	return v, nil
}

// SetSecret sets the octets of an HMAC or symmetric key
func (k *Key) SetSecret(secret []byte) error {
	if k.Kind != KeyHMAC && k.Kind != KeySymmetric {
		return sigerrors.ConfigurationError{Reason: fmt.Sprintf("secret value on %s key", k.Kind)}
	}
	k.Secret = bytes.Clone(secret)
	return nil
}

// Missing lists the parameters that must still be loaded before the key can
// be used. If private is set then the parameters needed to sign are included,
// unless a native handle holds the private half.
func (k *Key) Missing(private bool) []string {
	var missing []string
	if k.native != nil {
		private = false
	}
	need := func(name Field, v []byte) {
		if len(v) == 0 {
			missing = append(missing, string(name))
		}
	}
	switch k.Kind {
	case KeyDSA:
		need(FieldP, k.DSA.P)
		need(FieldQ, k.DSA.Q)
		need(FieldG, k.DSA.G)
		need(FieldY, k.DSA.Y)
		if private {
			need(FieldX, k.DSA.X)
		}
	case KeyRSA:
		need(FieldModulus, k.RSA.Modulus)
		need(FieldExponent, k.RSA.Exponent)
		if private {
			need(FieldPrivateExponent, k.RSA.PrivateExponent)
		}
	case KeyECDSA:
		if k.ECDSA.Curve == nil {
			missing = append(missing, "Curve")
		}
		need("X", k.ECDSA.X)
		need("Y", k.ECDSA.Y)
		if private {
			need("D", k.ECDSA.D)
		}
	case KeyHMAC, KeySymmetric:
		need("Secret", k.Secret)
	}
	return missing
}

// Require returns an IncompleteKeyError if the key is not yet usable
func (k *Key) Require(private bool) error {
	if k.closed {
		return errors.New("key has been closed")
	}
	if missing := k.Missing(private); len(missing) != 0 {
		return sigerrors.IncompleteKeyError{Kind: k.Kind.String(), Missing: missing}
	}
	return nil
}

var errNoOpts = sigerrors.ConfigurationError{Reason: "signer options are required"}

// SignBase64 signs a digest (or, for HMAC keys, MACs it) and returns the
// base64 encoded result. Pass *rsa.PSSOptions as opts for RSA-PSS.
func (k *Key) SignBase64(opts crypto.SignerOpts, digest []byte) (string, error) {
	if opts == nil {
		return "", errNoOpts
	}
	var sig []byte
	var err error
	if k.Kind == KeyHMAC {
		if err := k.Require(false); err != nil {
			return "", err
		}
		sig, err = k.provider.MAC(k, opts.HashFunc(), digest)
	} else {
		if err := k.Require(true); err != nil {
			return "", err
		}
		sig, err = k.provider.Sign(k, opts, digest)
	}
	if err != nil {
		return "", err
	}
	return EncodeBase64(sig), nil
}

// VerifyBase64 checks a base64 encoded signature or MAC over a digest. It
// fails closed: a signature that cannot be decoded or parsed yields false.
func (k *Key) VerifyBase64(opts crypto.SignerOpts, digest []byte, b64sig string) (bool, error) {
	if opts == nil {
		return false, errNoOpts
	}
	if err := k.Require(false); err != nil {
		return false, err
	}
	sig, err := DecodeBase64(b64sig)
	if err != nil || len(sig) == 0 {
		return false, nil
	}
	if k.Kind == KeyHMAC {
		return VerifyMAC(k, opts.HashFunc(), digest, sig)
	}
	return k.provider.Verify(k, opts, digest, sig)
}

// SetNative installs a backend-native handle, releasing any previous one
func (k *Key) SetNative(h NativeHandle) error {
	var err error
	if k.native != nil && k.native != h {
		err = k.native.Release()
	}
	k.native = h
	return err
}

// Native returns the backend-native handle, if any
func (k *Key) Native() NativeHandle {
	return k.native
}

// Clone makes a deep copy of the key material. A native handle is duplicated
// through the provider, and if that is not possible no copy is returned.
func (k *Key) Clone() (*Key, error) {
	if k.closed {
		return nil, errors.New("key has been closed")
	}
	c := &Key{
		Kind: k.Kind,
		DSA: DSAParams{
			P: bytes.Clone(k.DSA.P),
			Q: bytes.Clone(k.DSA.Q),
			G: bytes.Clone(k.DSA.G),
			Y: bytes.Clone(k.DSA.Y),
			J: bytes.Clone(k.DSA.J),
			X: bytes.Clone(k.DSA.X),
		},
		RSA: RSAParams{
			Modulus:         bytes.Clone(k.RSA.Modulus),
			Exponent:        bytes.Clone(k.RSA.Exponent),
			PrivateExponent: bytes.Clone(k.RSA.PrivateExponent),
		},
		ECDSA: ECDSAParams{
			Curve: k.ECDSA.Curve,
			X:     bytes.Clone(k.ECDSA.X),
			Y:     bytes.Clone(k.ECDSA.Y),
			D:     bytes.Clone(k.ECDSA.D),
		},
		Secret:   bytes.Clone(k.Secret),
		Cipher:   k.Cipher,
		provider: k.provider,
	}
	for _, p := range k.RSA.Primes {
		c.RSA.Primes = append(c.RSA.Primes, bytes.Clone(p))
	}
	if k.native != nil {
		dup, err := k.provider.DuplicateNative(k.native)
		if err != nil {
			var uerr sigerrors.UnsupportedOperationError
			if errors.As(err, &uerr) {
				return nil, uerr
			}
			return nil, sigerrors.UnsupportedOperationError{Op: "clone", Reason: err.Error()}
		}
		c.native = dup
	}
	return c, nil
}

// Close releases the native handle. It is safe to call more than once.
func (k *Key) Close() error {
	if k.closed {
		return nil
	}
	k.closed = true
	var err error
	if k.native != nil {
		err = k.native.Release()
		k.native = nil
	}
	return err
}
