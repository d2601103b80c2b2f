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
	"crypto"
	"crypto/dsa" //nolint:staticcheck // DSA is still a registered XML signature method
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/rsa"
	"errors"
	"fmt"
	"math"
	"math/big"
)

// KeyFromPublic builds a key bound to p from a Go public key
func KeyFromPublic(p Provider, pub crypto.PublicKey) (*Key, error) {
	switch pub := pub.(type) {
	case *rsa.PublicKey:
		key, _ := NewKeyFor(p, KeyRSA)
		key.RSA.Modulus = pub.N.Bytes()
		key.RSA.Exponent = big.NewInt(int64(pub.E)).Bytes()
		return key, nil
	case *ecdsa.PublicKey:
		key, _ := NewKeyFor(p, KeyECDSA)
		key.ECDSA.Curve = pub.Curve
		key.ECDSA.X = pub.X.Bytes()
		key.ECDSA.Y = pub.Y.Bytes()
		return key, nil
	case *dsa.PublicKey:
		key, _ := NewKeyFor(p, KeyDSA)
		key.DSA.P = pub.P.Bytes()
		key.DSA.Q = pub.Q.Bytes()
		key.DSA.G = pub.G.Bytes()
		key.DSA.Y = pub.Y.Bytes()
		return key, nil
	default:
		return nil, fmt.Errorf("unsupported public key type %T", pub)
	}
}

// KeyFromPrivate builds a signing key bound to p from a Go private key
func KeyFromPrivate(p Provider, priv crypto.PrivateKey) (*Key, error) {
	switch priv := priv.(type) {
	case *rsa.PrivateKey:
		key, err := KeyFromPublic(p, &priv.PublicKey)
		if err != nil {
			return nil, err
		}
		key.RSA.PrivateExponent = priv.D.Bytes()
		for _, prime := range priv.Primes {
			key.RSA.Primes = append(key.RSA.Primes, prime.Bytes())
		}
		return key, nil
	case *ecdsa.PrivateKey:
		key, err := KeyFromPublic(p, &priv.PublicKey)
		if err != nil {
			return nil, err
		}
		key.ECDSA.D = priv.D.Bytes()
		return key, nil
	case *dsa.PrivateKey:
		key, err := KeyFromPublic(p, &priv.PublicKey)
		if err != nil {
			return nil, err
		}
		key.DSA.X = priv.X.Bytes()
		return key, nil
	default:
		return nil, fmt.Errorf("unsupported private key type %T", priv)
	}
}

func toBig(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

// RSAPublicKey returns the key as a Go RSA public key
func (k *Key) RSAPublicKey() (*rsa.PublicKey, error) {
	if k.Kind != KeyRSA {
		return nil, fmt.Errorf("not an RSA key: %s", k.Kind)
	}
	if err := k.Require(false); err != nil {
		return nil, err
	}
	e := toBig(k.RSA.Exponent)
	if !e.IsInt64() || e.Int64() > math.MaxInt32 || e.Int64() < 3 {
		return nil, errors.New("RSA exponent is out of bounds")
	}
	return &rsa.PublicKey{N: toBig(k.RSA.Modulus), E: int(e.Int64())}, nil
}

// RSAPrivateKey returns the key as a Go RSA private key. The prime factors are
// required by the Go implementation.
func (k *Key) RSAPrivateKey() (*rsa.PrivateKey, error) {
	pub, err := k.RSAPublicKey()
	if err != nil {
		return nil, err
	}
	if err := k.Require(true); err != nil {
		return nil, err
	}
	priv := &rsa.PrivateKey{PublicKey: *pub, D: toBig(k.RSA.PrivateExponent)}
	for _, prime := range k.RSA.Primes {
		priv.Primes = append(priv.Primes, toBig(prime))
	}
	if len(priv.Primes) < 2 {
		return nil, errors.New("RSA private key without prime factors is not supported by this provider")
	}
	priv.Precompute()
	return priv, nil
}

// DSAPublicKey returns the key as a Go DSA public key
func (k *Key) DSAPublicKey() (*dsa.PublicKey, error) {
	if k.Kind != KeyDSA {
		return nil, fmt.Errorf("not a DSA key: %s", k.Kind)
	}
	if err := k.Require(false); err != nil {
		return nil, err
	}
	return &dsa.PublicKey{
		Parameters: dsa.Parameters{P: toBig(k.DSA.P), Q: toBig(k.DSA.Q), G: toBig(k.DSA.G)},
		Y:          toBig(k.DSA.Y),
	}, nil
}

// DSAPrivateKey returns the key as a Go DSA private key
func (k *Key) DSAPrivateKey() (*dsa.PrivateKey, error) {
	pub, err := k.DSAPublicKey()
	if err != nil {
		return nil, err
	}
	if err := k.Require(true); err != nil {
		return nil, err
	}
	return &dsa.PrivateKey{PublicKey: *pub, X: toBig(k.DSA.X)}, nil
}

// ECDSAPublicKey returns the key as a Go ECDSA public key
func (k *Key) ECDSAPublicKey() (*ecdsa.PublicKey, error) {
	if k.Kind != KeyECDSA {
		return nil, fmt.Errorf("not an ECDSA key: %s", k.Kind)
	}
	if err := k.Require(false); err != nil {
		return nil, err
	}
	x, y := toBig(k.ECDSA.X), toBig(k.ECDSA.Y)
	if !k.ECDSA.Curve.IsOnCurve(x, y) {
		return nil, errors.New("ECDSA public key is not on the curve")
	}
	return &ecdsa.PublicKey{Curve: k.ECDSA.Curve, X: x, Y: y}, nil
}

// ECDSAPrivateKey returns the key as a Go ECDSA private key
func (k *Key) ECDSAPrivateKey() (*ecdsa.PrivateKey, error) {
	pub, err := k.ECDSAPublicKey()
	if err != nil {
		return nil, err
	}
	if err := k.Require(true); err != nil {
		return nil, err
	}
	return &ecdsa.PrivateKey{PublicKey: *pub, D: toBig(k.ECDSA.D)}, nil
}

// Public returns the Go public key for asymmetric keys
func (k *Key) Public() (crypto.PublicKey, error) {
	switch k.Kind {
	case KeyRSA:
		return k.RSAPublicKey()
	case KeyDSA:
		return k.DSAPublicKey()
	case KeyECDSA:
		return k.ECDSAPublicKey()
	default:
		return nil, fmt.Errorf("%s key has no public component", k.Kind)
	}
}

// VerifyMAC recomputes a MAC with the key's provider and compares it in
// constant time
func VerifyMAC(k *Key, hash crypto.Hash, data, mac []byte) (bool, error) {
	calc, err := k.provider.MAC(k, hash, data)
	if err != nil {
		return false, err
	}
	return hmac.Equal(calc, mac), nil
}
