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
// Package certloader reads the certificate chains that accompany signing keys
// and are embedded into X509Data elements.
package certloader

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/sassoftware/xmlsec/lib/x509tools"
)

const asn1Magic = 0x30 // weak but good enough?

var ErrNoCerts = errors.New("failed to find any certificates in PEM file")

type Certificate struct {
	Leaf         *x509.Certificate
	Certificates []*x509.Certificate
}

// Chain returns the leaf and intermediates, leaving out a self-signed root
func (s *Certificate) Chain() []*x509.Certificate {
	var chain []*x509.Certificate
	for i, cert := range s.Certificates {
		if i > 0 && bytes.Equal(cert.RawIssuer, cert.RawSubject) {
			// omit root CA
			continue
		}
		chain = append(chain, cert)
	}
	return chain
}

// ParseCertificates parses a list of certificates, PEM or DER
func ParseCertificates(blob []byte) (*Certificate, error) {
	if len(blob) >= 1 && blob[0] == asn1Magic {
		return parseCertificates(blob)
	}
	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, blob = pem.Decode(blob)
		if block == nil {
			break
		} else if block.Type == "CERTIFICATE" {
			newcerts, err := parseCertificates(block.Bytes)
			if err != nil {
				return nil, err
			}
			certs = append(certs, newcerts.Certificates...)
		}
	}
	if len(certs) == 0 {
		return nil, ErrNoCerts
	}
	return &Certificate{Leaf: certs[0], Certificates: certs}, nil
}

func parseCertificates(der []byte) (*Certificate, error) {
	certs, err := x509.ParseCertificates(der)
	if err != nil {
		return nil, err
	} else if len(certs) == 0 {
		return nil, ErrNoCerts
	}
	return &Certificate{Leaf: certs[0], Certificates: certs}, nil
}

// LoadKeyCertificates reads a certificate file and finds the certificate for
// the public half of a signing key. That certificate becomes the leaf and is
// moved to the front of the chain.
func LoadKeyCertificates(pub crypto.PublicKey, path string) (*Certificate, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cert, err := ParseCertificates(blob)
	if err != nil {
		return nil, err
	}
	for i, c := range cert.Certificates {
		if x509tools.SameKey(pub, c.PublicKey) {
			certs := append([]*x509.Certificate{c}, cert.Certificates[:i]...)
			certs = append(certs, cert.Certificates[i+1:]...)
			return &Certificate{Leaf: c, Certificates: certs}, nil
		}
	}
	return nil, errors.New("certificate does not match signing key")
}

// LoadCertificates reads every certificate from a list of PEM or DER files
func LoadCertificates(paths []string) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for _, path := range paths {
		blob, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		parsed, err := ParseCertificates(blob)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		certs = append(certs, parsed.Certificates...)
	}
	return certs, nil
}
