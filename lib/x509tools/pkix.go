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
	"crypto/x509/pkix"
	"encoding/asn1"
	"strings"
)

var (
	// RFC 3279
	OidDigestMD5  = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 5}
	OidDigestSHA1 = asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}
	// RFC 5758
	OidDigestSHA224 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 4}
	OidDigestSHA256 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	OidDigestSHA384 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 2}
	OidDigestSHA512 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 3}
)

var HashOids = map[crypto.Hash]asn1.ObjectIdentifier{
	crypto.MD5:    OidDigestMD5,
	crypto.SHA1:   OidDigestSHA1,
	crypto.SHA224: OidDigestSHA224,
	crypto.SHA256: OidDigestSHA256,
	crypto.SHA384: OidDigestSHA384,
	crypto.SHA512: OidDigestSHA512,
}

// Convert a crypto.Hash to a X.509 AlgorithmIdentifier
func PkixDigestAlgorithm(hash crypto.Hash) (alg pkix.AlgorithmIdentifier, ok bool) {
	if oid, ok2 := HashOids[hash]; ok2 {
		alg.Algorithm = oid
		// some implementations want this to be NULL, not missing entirely
		alg.Parameters = asn1.RawValue{Tag: 5}
		ok = true
	}
	return
}

var hashNames = map[string]crypto.Hash{
	"md5":       crypto.MD5,
	"sha1":      crypto.SHA1,
	"sha224":    crypto.SHA224,
	"sha256":    crypto.SHA256,
	"sha384":    crypto.SHA384,
	"sha512":    crypto.SHA512,
	"sha3224":   crypto.SHA3_224,
	"sha3256":   crypto.SHA3_256,
	"sha3384":   crypto.SHA3_384,
	"sha3512":   crypto.SHA3_512,
	"ripemd160": crypto.RIPEMD160,
}

// HashByName looks up a digest by a name such as "SHA-256" or "sha256".
// Returns 0 if the name is not known.
func HashByName(name string) crypto.Hash {
	name = strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(name))
	return hashNames[name]
}

type digestInfo struct {
	DigestAlgorithm pkix.AlgorithmIdentifier
	Digest          []byte
}

// Pack a digest along with an algorithm identifier. Mainly useful for
// PKCS#1v1.5 padding (RSA).
func MarshalDigest(hash crypto.Hash, digest []byte) (der []byte, ok bool) {
	alg, ok := PkixDigestAlgorithm(hash)
	if !ok {
		return nil, false
	}
	der, err := asn1.Marshal(digestInfo{alg, digest})
	if err != nil {
		return nil, false
	}
	return der, true
}

var attNames = map[int]string{
	3:  "CN",
	5:  "serialNumber",
	6:  "C",
	7:  "L",
	8:  "ST",
	9:  "street",
	10: "O",
	11: "OU",
	13: "description",
	17: "postalCode",
}

// FormatDName renders a certificate name most specific attribute first, the
// way X509IssuerName and X509SubjectName carry it. Attribute values are
// escaped with EncodeDName.
func FormatDName(seq pkix.RDNSequence) string {
	formatted := make([]string, 0, len(seq))
	for i := len(seq) - 1; i >= 0; i-- {
		rdn := seq[i]
		elems := make([]string, 0, len(rdn))
		for _, att := range rdn {
			val, ok := att.Value.(string)
			if !ok {
				continue
			}
			attname := att.Type.String()
			t := att.Type
			if len(t) == 4 && t[0] == 2 && t[1] == 5 && t[2] == 4 {
				if name, ok := attNames[t[3]]; ok {
					attname = name
				}
			}
			elems = append(elems, attname+"="+EncodeDName(val))
		}
		if len(elems) != 0 {
			formatted = append(formatted, strings.Join(elems, "+"))
		}
	}
	return strings.Join(formatted, ",")
}
