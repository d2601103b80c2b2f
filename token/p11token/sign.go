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

package p11token

import (
	"crypto"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/miekg/pkcs11"

	"github.com/sassoftware/xmlsec/lib/sigerrors"
	"github.com/sassoftware/xmlsec/lib/x509tools"
	"github.com/sassoftware/xmlsec/token"
)

var hmacMechs = map[crypto.Hash]uint{
	crypto.MD5:    pkcs11.CKM_MD5_HMAC,
	crypto.SHA1:   pkcs11.CKM_SHA_1_HMAC,
	crypto.SHA224: pkcs11.CKM_SHA224_HMAC,
	crypto.SHA256: pkcs11.CKM_SHA256_HMAC,
	crypto.SHA384: pkcs11.CKM_SHA384_HMAC,
	crypto.SHA512: pkcs11.CKM_SHA512_HMAC,
}

func (tok *Token) Sign(key *token.Key, opts crypto.SignerOpts, digest []byte) ([]byte, error) {
	h, ok := tok.native(key)
	if !ok {
		return tok.soft.Sign(key, opts, digest)
	}
	if opts == nil || opts.HashFunc() == 0 {
		return nil, errors.New("signer options are required")
	}
	tok.mutex.Lock()
	defer tok.mutex.Unlock()
	var mech *pkcs11.Mechanism
	switch h.keyType {
	case pkcs11.CKK_RSA:
		if pss, ok := opts.(*rsa.PSSOptions); ok {
			var err error
			mech, err = newPssMech(key, pss)
			if err != nil {
				return nil, err
			}
		} else {
			var ok bool
			digest, ok = x509tools.MarshalDigest(opts.HashFunc(), digest)
			if !ok {
				return nil, sigerrors.UnsupportedOperationError{Op: "sign", Reason: fmt.Sprintf("hash %s", opts.HashFunc())}
			}
			mech = pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS, nil)
		}
	case pkcs11.CKK_EC:
		// CKM_ECDSA already produces the fixed width r || s form
		mech = pkcs11.NewMechanism(pkcs11.CKM_ECDSA, nil)
	default:
		return nil, sigerrors.UnsupportedOperationError{Op: "sign", Reason: fmt.Sprintf("key type 0x%x", h.keyType)}
	}
	if err := tok.ctx.SignInit(tok.sh, []*pkcs11.Mechanism{mech}, h.obj); err != nil {
		return nil, tok.backendErr("sign", err)
	}
	sig, err := tok.ctx.Sign(tok.sh, digest)
	if err != nil {
		return nil, tok.backendErr("sign", err)
	}
	return sig, nil
}

func newPssMech(key *token.Key, opts *rsa.PSSOptions) (*pkcs11.Mechanism, error) {
	var hashAlg, mgfType uint
	switch opts.Hash {
	case crypto.SHA1:
		hashAlg = pkcs11.CKM_SHA_1
		mgfType = pkcs11.CKG_MGF1_SHA1
	case crypto.SHA224:
		hashAlg = pkcs11.CKM_SHA224
		mgfType = pkcs11.CKG_MGF1_SHA224
	case crypto.SHA256:
		hashAlg = pkcs11.CKM_SHA256
		mgfType = pkcs11.CKG_MGF1_SHA256
	case crypto.SHA384:
		hashAlg = pkcs11.CKM_SHA384
		mgfType = pkcs11.CKG_MGF1_SHA384
	case crypto.SHA512:
		hashAlg = pkcs11.CKM_SHA512
		mgfType = pkcs11.CKG_MGF1_SHA512
	default:
		return nil, errors.New("unsupported hash type for PSS")
	}
	saltLength := opts.SaltLength
	switch saltLength {
	case rsa.PSSSaltLengthAuto:
		saltLength = len(key.RSA.Modulus) - 2 - opts.Hash.Size()
	case rsa.PSSSaltLengthEqualsHash:
		saltLength = opts.Hash.Size()
	}
	args := make([]byte, ulongSize*3)
	putUlong(args, hashAlg)
	putUlong(args[ulongSize:], mgfType)
	putUlong(args[ulongSize*2:], uint(saltLength))
	return pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS_PSS, args), nil
}

// Verify only needs the public half, which is always available as parameters
func (tok *Token) Verify(key *token.Key, opts crypto.SignerOpts, digest, sig []byte) (bool, error) {
	return tok.soft.Verify(key, opts, digest, sig)
}

func (tok *Token) MAC(key *token.Key, hash crypto.Hash, data []byte) ([]byte, error) {
	mech, ok := hmacMechs[hash]
	if !ok || key.Kind != token.KeyHMAC {
		return tok.soft.MAC(key, hash, data)
	}
	if err := key.Require(false); err != nil {
		return nil, err
	}
	tok.mutex.Lock()
	defer tok.mutex.Unlock()
	obj, err := tok.importSecret(key.Secret, pkcs11.CKK_GENERIC_SECRET, pkcs11.CKA_SIGN)
	if err != nil {
		return nil, err
	}
	defer tok.destroySecret(obj)
	if err := tok.ctx.SignInit(tok.sh, []*pkcs11.Mechanism{pkcs11.NewMechanism(mech, nil)}, obj); err != nil {
		return nil, tok.backendErr("mac", err)
	}
	mac, err := tok.ctx.Sign(tok.sh, data)
	if err != nil {
		return nil, tok.backendErr("mac", err)
	}
	return mac, nil
}
