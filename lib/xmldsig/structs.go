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
	"encoding/xml"

	"github.com/sassoftware/xmlsec/lib/domutil"
)

const (
	NsXMLDsig   = domutil.NsDSig
	NsXMLDsig11 = domutil.NsDSig11
	NsXsi       = "http://www.w3.org/2001/XMLSchema-instance"

	TypeObject = NsXMLDsig + "Object"
)

// KeyInfo is decoded with encoding/xml from a canonicalized copy, so
// namespace declarations inherited from the document are always present.
type keyInfo struct {
	XMLName  xml.Name   `xml:"http://www.w3.org/2000/09/xmldsig# KeyInfo"`
	KeyName  string     `xml:"KeyName,omitempty"`
	KeyValue *keyValue  `xml:"KeyValue,omitempty"`
	X509Data []x509Data `xml:"X509Data"`
}

type keyValue struct {
	RSA   *rsaKeyValue   `xml:"RSAKeyValue"`
	DSA   *dsaKeyValue   `xml:"DSAKeyValue"`
	ECDSA *ecdsaKeyValue `xml:"ECDSAKeyValue"`
	EC    *ecKeyValue    `xml:"http://www.w3.org/2009/xmldsig11# ECKeyValue"`
}

type rsaKeyValue struct {
	Modulus  string
	Exponent string
}

type dsaKeyValue struct {
	P, Q, G, Y, J string
}

// ECDSAKeyValue from RFC 4050
type ecdsaKeyValue struct {
	NamedCurve namedCurve `xml:"DomainParameters>NamedCurve"`
	X          pointValue `xml:"PublicKey>X"`
	Y          pointValue `xml:"PublicKey>Y"`
}

type namedCurve struct {
	URN string `xml:",attr"`
	URI string `xml:",attr"`
}

type pointValue struct {
	Value string `xml:",attr"`
}

// ECKeyValue from XML Signature 1.1
type ecKeyValue struct {
	NamedCurve namedCurve
	PublicKey  string
}

type x509Data struct {
	Certificates []string       `xml:"X509Certificate"`
	IssuerSerial []issuerSerial `xml:"X509IssuerSerial"`
	SubjectNames []string       `xml:"X509SubjectName"`
	SKIs         []string       `xml:"X509SKI"`
}

type issuerSerial struct {
	IssuerName   string `xml:"X509IssuerName"`
	SerialNumber string `xml:"X509SerialNumber"`
}
