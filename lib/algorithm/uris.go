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
	"github.com/sassoftware/xmlsec/lib/domutil"
	"github.com/sassoftware/xmlsec/lib/transform"
)

const nsDSigMore07 = "http://www.w3.org/2007/05/xmldsig-more#"

// Digest methods
const (
	SHA1      = domutil.NsDSig + "sha1"
	SHA224    = domutil.NsDSigMore + "sha224"
	SHA256    = domutil.NsXEnc + "sha256"
	SHA384    = domutil.NsDSigMore + "sha384"
	SHA512    = domutil.NsXEnc + "sha512"
	RIPEMD160 = domutil.NsXEnc + "ripemd160"
	SHA3_224  = nsDSigMore07 + "sha3-224"
	SHA3_256  = nsDSigMore07 + "sha3-256"
	SHA3_384  = nsDSigMore07 + "sha3-384"
	SHA3_512  = nsDSigMore07 + "sha3-512"
)

// Signature methods
const (
	RSASHA1      = domutil.NsDSig + "rsa-sha1"
	RSASHA224    = domutil.NsDSigMore + "rsa-sha224"
	RSASHA256    = domutil.NsDSigMore + "rsa-sha256"
	RSASHA384    = domutil.NsDSigMore + "rsa-sha384"
	RSASHA512    = domutil.NsDSigMore + "rsa-sha512"
	RSARIPEMD160 = domutil.NsDSigMore + "rsa-ripemd160"

	RSAPSSSHA1     = nsDSigMore07 + "sha1-rsa-MGF1"
	RSAPSSSHA224   = nsDSigMore07 + "sha224-rsa-MGF1"
	RSAPSSSHA256   = nsDSigMore07 + "sha256-rsa-MGF1"
	RSAPSSSHA384   = nsDSigMore07 + "sha384-rsa-MGF1"
	RSAPSSSHA512   = nsDSigMore07 + "sha512-rsa-MGF1"
	RSAPSSSHA3_256 = nsDSigMore07 + "sha3-256-rsa-MGF1"
	RSAPSSSHA3_512 = nsDSigMore07 + "sha3-512-rsa-MGF1"

	DSASHA1   = domutil.NsDSig + "dsa-sha1"
	DSASHA256 = domutil.NsDSig11 + "dsa-sha256"

	ECDSASHA1   = domutil.NsDSigMore + "ecdsa-sha1"
	ECDSASHA224 = domutil.NsDSigMore + "ecdsa-sha224"
	ECDSASHA256 = domutil.NsDSigMore + "ecdsa-sha256"
	ECDSASHA384 = domutil.NsDSigMore + "ecdsa-sha384"
	ECDSASHA512 = domutil.NsDSigMore + "ecdsa-sha512"

	HMACSHA1      = domutil.NsDSig + "hmac-sha1"
	HMACSHA224    = domutil.NsDSigMore + "hmac-sha224"
	HMACSHA256    = domutil.NsDSigMore + "hmac-sha256"
	HMACSHA384    = domutil.NsDSigMore + "hmac-sha384"
	HMACSHA512    = domutil.NsDSigMore + "hmac-sha512"
	HMACRIPEMD160 = domutil.NsDSigMore + "hmac-ripemd160"
)

// Block encryption methods
const (
	TripleDESCBC = domutil.NsXEnc + "tripledes-cbc"
	AES128CBC    = domutil.NsXEnc + "aes128-cbc"
	AES192CBC    = domutil.NsXEnc + "aes192-cbc"
	AES256CBC    = domutil.NsXEnc + "aes256-cbc"
	AES128GCM    = domutil.NsXEnc11 + "aes128-gcm"
	AES192GCM    = domutil.NsXEnc11 + "aes192-gcm"
	AES256GCM    = domutil.NsXEnc11 + "aes256-gcm"
)

// Key transport and key wrap methods
const (
	RSA15    = domutil.NsXEnc + "rsa-1_5"
	RSAOAEP  = domutil.NsXEnc + "rsa-oaep-mgf1p"
	KWAES128 = domutil.NsXEnc + "kw-aes128"
	KWAES192 = domutil.NsXEnc + "kw-aes192"
	KWAES256 = domutil.NsXEnc + "kw-aes256"
)

// Transforms. Canonicalization methods share the constants in package
// transform.
const (
	EnvelopedSignature = domutil.NsDSig + "enveloped-signature"
	Base64             = domutil.NsDSig + "base64"
	XPath              = "http://www.w3.org/TR/1999/REC-xpath-19991116"
	XSLT               = "http://www.w3.org/TR/1999/REC-xslt-19991116"

	C14N10          = transform.C14N10
	C14N10Comments  = transform.C14N10Comments
	C14N11          = transform.C14N11
	C14N11Comments  = transform.C14N11Comments
	ExcC14N         = transform.ExcC14N
	ExcC14NComments = transform.ExcC14NComments
)
