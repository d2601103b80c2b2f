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
	"bytes"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/xml"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/beevik/etree"

	"github.com/sassoftware/xmlsec/lib/transform"
	"github.com/sassoftware/xmlsec/lib/x509tools"
	"github.com/sassoftware/xmlsec/token"
)

func parseKeyInfo(el *etree.Element) (*keyInfo, error) {
	blob, err := transform.Canonicalize(transform.ExcC14N, "", transform.NewNodes(nil, el))
	if err != nil {
		return nil, err
	}
	ki := new(keyInfo)
	if err := xml.Unmarshal(blob, ki); err != nil {
		return nil, fmt.Errorf("xmldsig: invalid KeyInfo: %w", err)
	}
	return ki, nil
}

// publicKey builds a key from KeyValue, or returns nil if there is none
func (ki *keyInfo) publicKey(p token.Provider) (*token.Key, error) {
	kv := ki.KeyValue
	if kv == nil {
		return nil, nil
	}
	switch {
	case kv.RSA != nil:
		key, err := p.NewKey(token.KeyRSA)
		if err != nil {
			return nil, err
		}
		if err := loadParams(key.LoadRSAParam, map[token.Field]string{
			token.FieldModulus:  kv.RSA.Modulus,
			token.FieldExponent: kv.RSA.Exponent,
		}); err != nil {
			return nil, err
		}
		return key, nil
	case kv.DSA != nil:
		key, err := p.NewKey(token.KeyDSA)
		if err != nil {
			return nil, err
		}
		params := map[token.Field]string{
			token.FieldP: kv.DSA.P,
			token.FieldQ: kv.DSA.Q,
			token.FieldG: kv.DSA.G,
			token.FieldY: kv.DSA.Y,
		}
		if kv.DSA.J != "" {
			params[token.FieldJ] = kv.DSA.J
		}
		if err := loadParams(key.LoadDSAParam, params); err != nil {
			return nil, err
		}
		return key, nil
	case kv.EC != nil:
		def, err := curveByURN(kv.EC.NamedCurve.URI)
		if err != nil {
			return nil, err
		}
		point, err := token.DecodeBase64(kv.EC.PublicKey)
		if err != nil {
			return nil, errors.New("xmldsig: invalid public key")
		}
		x, y := x509tools.UnmarshalPoint(def.Curve, point)
		if x == nil {
			return nil, errors.New("xmldsig: invalid public key")
		}
		return ecKey(p, def.Curve, x, y), nil
	case kv.ECDSA != nil:
		urn := kv.ECDSA.NamedCurve.URN
		if urn == "" {
			urn = kv.ECDSA.NamedCurve.URI
		}
		def, err := curveByURN(urn)
		if err != nil {
			return nil, err
		}
		x, ok := new(big.Int).SetString(strings.TrimSpace(kv.ECDSA.X.Value), 10)
		if !ok {
			return nil, errors.New("xmldsig: invalid public key")
		}
		y, ok := new(big.Int).SetString(strings.TrimSpace(kv.ECDSA.Y.Value), 10)
		if !ok {
			return nil, errors.New("xmldsig: invalid public key")
		}
		if !def.Curve.IsOnCurve(x, y) {
			return nil, errors.New("xmldsig: invalid public key")
		}
		return ecKey(p, def.Curve, x, y), nil
	default:
		return nil, errors.New("xmldsig: unsupported KeyValue")
	}
}

func loadParams(load func(token.Field, string) error, params map[token.Field]string) error {
	for field, value := range params {
		if err := load(field, value); err != nil {
			return fmt.Errorf("xmldsig: invalid public key: %w", err)
		}
	}
	return nil
}

func curveByURN(urn string) (*x509tools.CurveDefinition, error) {
	if !strings.HasPrefix(urn, "urn:oid:") {
		return nil, errors.New("xmldsig: unsupported ECDSA curve")
	}
	def, err := x509tools.CurveByOidString(urn[8:])
	if err != nil {
		return nil, fmt.Errorf("xmldsig: %w", err)
	}
	return def, nil
}

func ecKey(p token.Provider, curve elliptic.Curve, x, y *big.Int) *token.Key {
	key, _ := p.NewKey(token.KeyECDSA)
	key.ECDSA.Curve = curve
	key.ECDSA.X = x.Bytes()
	key.ECDSA.Y = y.Bytes()
	return key
}

// certificates decodes every X509Certificate. When an X509IssuerSerial or
// X509SKI names the signer, its certificate is moved to the front.
func (ki *keyInfo) certificates() ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	var serials []issuerSerial
	var skis [][]byte
	for _, data := range ki.X509Data {
		for _, b64 := range data.Certificates {
			der, err := token.DecodeBase64(b64)
			if err != nil {
				return nil, errors.New("xmldsig: invalid X509 certificate")
			}
			cert, err := x509.ParseCertificate(der)
			if err != nil {
				return nil, fmt.Errorf("xmldsig: invalid X509 certificate: %w", err)
			}
			certs = append(certs, cert)
		}
		serials = append(serials, data.IssuerSerial...)
		for _, b64 := range data.SKIs {
			if ski, err := token.DecodeBase64(b64); err == nil {
				skis = append(skis, ski)
			}
		}
	}
	for i, cert := range certs {
		if matchesSigner(cert, serials, skis) {
			certs[0], certs[i] = certs[i], certs[0]
			break
		}
	}
	return certs, nil
}

func matchesSigner(cert *x509.Certificate, serials []issuerSerial, skis [][]byte) bool {
	for _, is := range serials {
		serial, ok := new(big.Int).SetString(strings.TrimSpace(is.SerialNumber), 10)
		if ok && serial.Cmp(cert.SerialNumber) == 0 &&
			strings.EqualFold(strings.TrimSpace(is.IssuerName), x509tools.FormatDName(cert.Issuer.ToRDNSequence())) {
			return true
		}
	}
	for _, ski := range skis {
		if len(cert.SubjectKeyId) != 0 && bytes.Equal(ski, cert.SubjectKeyId) {
			return true
		}
	}
	return false
}

// addKeyValue adds the public half of key to KeyInfo
func addKeyValue(keyinfo *etree.Element, key *token.Key) error {
	keyvalue := keyinfo.CreateElement("KeyValue")
	switch key.Kind {
	case token.KeyRSA:
		rkv := keyvalue.CreateElement("RSAKeyValue")
		rkv.CreateElement("Modulus").SetText(token.EncodeBase64(key.RSA.Modulus))
		rkv.CreateElement("Exponent").SetText(token.EncodeBase64(key.RSA.Exponent))
	case token.KeyDSA:
		dkv := keyvalue.CreateElement("DSAKeyValue")
		for _, f := range []struct {
			name  string
			value []byte
		}{{"P", key.DSA.P}, {"Q", key.DSA.Q}, {"G", key.DSA.G}, {"Y", key.DSA.Y}} {
			dkv.CreateElement(f.name).SetText(token.EncodeBase64(f.value))
		}
	case token.KeyECDSA:
		pub, err := key.ECDSAPublicKey()
		if err != nil {
			return err
		}
		curve, err := x509tools.CurveByCurve(pub.Curve)
		if err != nil {
			return err
		}
		ekv := keyvalue.CreateElement("dsig11:ECKeyValue")
		ekv.CreateAttr("xmlns:dsig11", NsXMLDsig11)
		ekv.CreateElement("dsig11:NamedCurve").CreateAttr("URI", fmt.Sprintf("urn:oid:%s", curve.Oid))
		ekv.CreateElement("dsig11:PublicKey").SetText(token.EncodeBase64(x509tools.MarshalPoint(pub)))
	default:
		return fmt.Errorf("xmldsig: can not publish a %s key", key.Kind)
	}
	return nil
}

func addCerts(keyinfo *etree.Element, certs []*x509.Certificate, issuerSerial bool) {
	x509data := keyinfo.CreateElement("X509Data")
	if issuerSerial {
		is := x509data.CreateElement("X509IssuerSerial")
		is.CreateElement("X509IssuerName").SetText(x509tools.FormatDName(certs[0].Issuer.ToRDNSequence()))
		is.CreateElement("X509SerialNumber").SetText(certs[0].SerialNumber.String())
	}
	for _, cert := range certs {
		x509data.CreateElement("X509Certificate").SetText(token.EncodeBase64(cert.Raw))
	}
}
