/*
 * Copyright (c) SAS Institute Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package x509tools

import (
	"crypto"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
)

type publicKeyEqual interface {
	Equal(crypto.PublicKey) bool
}

// SameKey reports whether two keys, public or private, share a public half
func SameKey(pub1, pub2 interface{}) bool {
	if s, ok := pub1.(crypto.Signer); ok {
		pub1 = s.Public()
	}
	if s, ok := pub2.(crypto.Signer); ok {
		pub2 = s.Public()
	}
	eq, ok := pub1.(publicKeyEqual)
	return ok && eq.Equal(pub2)
}

type pkixPublicKey struct {
	Algo      pkix.AlgorithmIdentifier
	BitString asn1.BitString
}

// SubjectKeyId computes the RFC 5280 method 1 key identifier, the SHA-1 of
// the subjectPublicKey bit string, as carried by X509SKI
func SubjectKeyId(pub crypto.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	// extract the raw "bit string" part of the public key bytes
	var pki pkixPublicKey
	if rest, err := asn1.Unmarshal(der, &pki); err != nil {
		return nil, err
	} else if len(rest) != 0 {
		return nil, errors.New("trailing garbage on public key")
	}
	digest := sha1.Sum(pki.BitString.Bytes)
	return digest[:], nil
}
