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
	"crypto/rand"
	"io"

	"github.com/miekg/pkcs11"
	"github.com/rs/zerolog/log"

	"github.com/sassoftware/xmlsec/token"
	"github.com/sassoftware/xmlsec/token/softtoken"
)

// Common attributes for temporary secret key objects
var sessionSecretAttrs = []*pkcs11.Attribute{
	pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_SECRET_KEY),
	pkcs11.NewAttribute(pkcs11.CKA_TOKEN, false),
	pkcs11.NewAttribute(pkcs11.CKA_PRIVATE, true),
	pkcs11.NewAttribute(pkcs11.CKA_SENSITIVE, true),
	pkcs11.NewAttribute(pkcs11.CKA_EXTRACTABLE, false),
}

// importSecret creates a session object holding secret, usable for the
// given operation attribute. The caller must hold the token mutex.
func (tok *Token) importSecret(secret []byte, keyType, usage uint) (pkcs11.ObjectHandle, error) {
	attrs := attrConcat(sessionSecretAttrs, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, keyType),
		pkcs11.NewAttribute(pkcs11.CKA_VALUE, secret),
		pkcs11.NewAttribute(usage, true),
	})
	obj, err := tok.ctx.CreateObject(tok.sh, attrs)
	if err != nil {
		return 0, tok.backendErr("import-secret", err)
	}
	return obj, nil
}

func (tok *Token) destroySecret(obj pkcs11.ObjectHandle) {
	if err := tok.ctx.DestroyObject(tok.sh, obj); err != nil {
		log.Warn().Err(err).Str("provider", tok.Name()).Msg("failed to destroy temporary secret key")
	}
}

func attrConcat(attrSets ...[]*pkcs11.Attribute) []*pkcs11.Attribute {
	ret := make([]*pkcs11.Attribute, 0)
	for _, attrs := range attrSets {
		ret = append(ret, attrs...)
	}
	return ret
}

func tokenCBC(key *token.Key, mode token.CipherMode) bool {
	return key.Kind == token.KeySymmetric && mode == token.ModeCBC &&
		(key.Cipher == token.CipherAES || key.Cipher == 0)
}

func (tok *Token) Encrypt(key *token.Key, mode token.CipherMode, plaintext []byte) ([]byte, error) {
	if !tokenCBC(key, mode) {
		return tok.soft.Encrypt(key, mode, plaintext)
	}
	if err := key.Require(false); err != nil {
		return nil, err
	}
	iv := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, err
	}
	tok.mutex.Lock()
	defer tok.mutex.Unlock()
	obj, err := tok.importSecret(key.Secret, pkcs11.CKK_AES, pkcs11.CKA_ENCRYPT)
	if err != nil {
		return nil, err
	}
	defer tok.destroySecret(obj)
	mech := []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_AES_CBC, iv)}
	if err := tok.ctx.EncryptInit(tok.sh, mech, obj); err != nil {
		return nil, tok.backendErr("encrypt", err)
	}
	ct, err := tok.ctx.Encrypt(tok.sh, softtoken.Pad(plaintext, 16))
	if err != nil {
		return nil, tok.backendErr("encrypt", err)
	}
	return append(iv, ct...), nil
}

func (tok *Token) Decrypt(key *token.Key, mode token.CipherMode, ciphertext []byte) ([]byte, error) {
	if !tokenCBC(key, mode) || len(ciphertext) < 32 {
		return tok.soft.Decrypt(key, mode, ciphertext)
	}
	if err := key.Require(false); err != nil {
		return nil, err
	}
	tok.mutex.Lock()
	defer tok.mutex.Unlock()
	obj, err := tok.importSecret(key.Secret, pkcs11.CKK_AES, pkcs11.CKA_DECRYPT)
	if err != nil {
		return nil, err
	}
	defer tok.destroySecret(obj)
	mech := []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_AES_CBC, ciphertext[:16])}
	if err := tok.ctx.DecryptInit(tok.sh, mech, obj); err != nil {
		return nil, tok.backendErr("decrypt", err)
	}
	pt, err := tok.ctx.Decrypt(tok.sh, ciphertext[16:])
	if err != nil {
		return nil, tok.backendErr("decrypt", err)
	}
	return softtoken.Unpad(pt, 16)
}

func (tok *Token) WrapKey(key *token.Key, mode token.WrapMode, cek []byte) ([]byte, error) {
	return tok.soft.WrapKey(key, mode, cek)
}

// UnwrapKey decrypts a transported key with a token-resident RSA key
func (tok *Token) UnwrapKey(key *token.Key, mode token.WrapMode, wrapped []byte) ([]byte, error) {
	h, ok := tok.native(key)
	if !ok || h.keyType != pkcs11.CKK_RSA {
		return tok.soft.UnwrapKey(key, mode, wrapped)
	}
	var mech *pkcs11.Mechanism
	switch mode {
	case token.WrapRSA15:
		mech = pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS, nil)
	case token.WrapRSAOAEP:
		params := pkcs11.NewOAEPParams(pkcs11.CKM_SHA_1, pkcs11.CKG_MGF1_SHA1, pkcs11.CKZ_DATA_SPECIFIED, nil)
		mech = pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS_OAEP, params)
	default:
		return tok.soft.UnwrapKey(key, mode, wrapped)
	}
	tok.mutex.Lock()
	defer tok.mutex.Unlock()
	if err := tok.ctx.DecryptInit(tok.sh, []*pkcs11.Mechanism{mech}, h.obj); err != nil {
		return nil, tok.backendErr("unwrap", err)
	}
	cek, err := tok.ctx.Decrypt(tok.sh, wrapped)
	if err != nil {
		return nil, tok.backendErr("unwrap", err)
	}
	return cek, nil
}
