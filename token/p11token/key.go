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
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/miekg/pkcs11"
	"github.com/rs/zerolog/log"

	"github.com/sassoftware/xmlsec/config"
	"github.com/sassoftware/xmlsec/lib/sigerrors"
	"github.com/sassoftware/xmlsec/lib/x509tools"
	"github.com/sassoftware/xmlsec/token"
)

// objectHandle is a key object living in the token. Objects found on the
// token are left alone on release; session copies made for a cloned key are
// destroyed.
type objectHandle struct {
	tok     *Token
	obj     pkcs11.ObjectHandle
	keyType uint
	session bool
}

func (h *objectHandle) Release() error {
	if !h.session {
		return nil
	}
	h.tok.mutex.Lock()
	defer h.tok.mutex.Unlock()
	if h.tok.ctx == nil {
		return nil
	}
	if err := h.tok.ctx.DestroyObject(h.tok.sh, h.obj); err != nil {
		return h.tok.backendErr("destroy-object", err)
	}
	return nil
}

func (tok *Token) DuplicateNative(h token.NativeHandle) (token.NativeHandle, error) {
	oh, ok := h.(*objectHandle)
	if !ok || oh.tok != tok {
		return nil, sigerrors.UnsupportedOperationError{Op: "duplicate-native", Reason: "key handle belongs to another provider"}
	}
	tok.mutex.Lock()
	defer tok.mutex.Unlock()
	dup, err := tok.ctx.CopyObject(tok.sh, oh.obj, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, false),
	})
	if err != nil {
		return nil, sigerrors.UnsupportedOperationError{Op: "duplicate-native", Reason: err.Error()}
	}
	return &objectHandle{tok: tok, obj: dup, keyType: oh.keyType, session: true}, nil
}

// native returns the token object backing key, if it belongs to this token
func (tok *Token) native(key *token.Key) (*objectHandle, bool) {
	h, ok := key.Native().(*objectHandle)
	if !ok || h.tok != tok {
		return nil, false
	}
	return h, true
}

// LoadKey finds a key pair on the token by the label and ID in the key
// configuration. The returned key carries the public half as parameters and
// the private half as a native handle.
func (tok *Token) LoadKey(keyConf *config.KeyConfig) (*token.Key, error) {
	tok.mutex.Lock()
	defer tok.mutex.Unlock()
	priv, err := tok.findKey(keyConf, pkcs11.CKO_PRIVATE_KEY)
	if err != nil {
		return nil, err
	}
	pubHandle, err := tok.findKey(keyConf, pkcs11.CKO_PUBLIC_KEY)
	if err != nil {
		return nil, err
	}
	keyTypeBlob := tok.getAttribute(priv, pkcs11.CKA_KEY_TYPE)
	if len(keyTypeBlob) == 0 {
		return nil, errors.New("private key: CKA_KEY_TYPE is missing")
	}
	keyType, err := getUlong(keyTypeBlob)
	if err != nil {
		return nil, fmt.Errorf("private key: CKA_KEY_TYPE: %w", err)
	}
	var pub crypto.PublicKey
	switch keyType {
	case pkcs11.CKK_RSA:
		pub, err = tok.toRsaKey(pubHandle)
	case pkcs11.CKK_EC:
		pub, err = tok.toEcdsaKey(pubHandle)
	default:
		return nil, sigerrors.UnsupportedOperationError{Op: "load-key", Reason: fmt.Sprintf("key type 0x%x", keyType)}
	}
	if err != nil {
		return nil, err
	}
	key, err := token.KeyFromPublic(tok, pub)
	if err != nil {
		return nil, err
	}
	if err := key.SetNative(&objectHandle{tok: tok, obj: priv, keyType: keyType}); err != nil {
		return nil, err
	}
	log.Debug().
		Str("provider", tok.Name()).
		Str("key", keyConf.Name()).
		Str("id", formatKeyID(tok.getAttribute(priv, pkcs11.CKA_ID))).
		Msg("loaded token key")
	return key, nil
}

func (tok *Token) findKey(keyConf *config.KeyConfig, class uint) (pkcs11.ObjectHandle, error) {
	attrs := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, class),
	}
	if keyConf.Label != "" {
		attrs = append(attrs, pkcs11.NewAttribute(pkcs11.CKA_LABEL, keyConf.Label))
	}
	if keyConf.ID != "" {
		keyID, err := parseKeyID(keyConf.ID)
		if err != nil {
			return 0, err
		}
		attrs = append(attrs, pkcs11.NewAttribute(pkcs11.CKA_ID, keyID))
	}
	objects, err := tok.findObject(attrs)
	if err != nil {
		return 0, tok.backendErr("find-objects", err)
	} else if len(objects) > 1 {
		return 0, errors.New("multiple token objects with the specified attributes")
	} else if len(objects) == 0 {
		return 0, sigerrors.KeyNotFoundError{}
	}
	return objects[0], nil
}

func (tok *Token) toRsaKey(handle pkcs11.ObjectHandle) (*rsa.PublicKey, error) {
	modulus := tok.getAttribute(handle, pkcs11.CKA_MODULUS)
	exponent := tok.getAttribute(handle, pkcs11.CKA_PUBLIC_EXPONENT)
	if len(modulus) == 0 || len(exponent) == 0 {
		return nil, errors.New("unable to retrieve RSA public key")
	}
	e := new(big.Int).SetBytes(exponent)
	eInt := e.Int64()
	if !e.IsInt64() || eInt > math.MaxInt32 || eInt < 3 {
		return nil, errors.New("RSA exponent is out of bounds")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(modulus), E: int(eInt)}, nil
}

func (tok *Token) toEcdsaKey(handle pkcs11.ObjectHandle) (*ecdsa.PublicKey, error) {
	ecparams := tok.getAttribute(handle, pkcs11.CKA_EC_PARAMS)
	ecpoint := tok.getAttribute(handle, pkcs11.CKA_EC_POINT)
	if len(ecparams) == 0 || len(ecpoint) == 0 {
		return nil, errors.New("unable to retrieve ECDSA public key")
	}
	curve, err := x509tools.CurveByDer(ecparams)
	if err != nil {
		return nil, err
	}
	x, y := x509tools.DerToPoint(curve.Curve, ecpoint)
	if x == nil || y == nil {
		return nil, errors.New("invalid elliptic curve point")
	}
	return &ecdsa.PublicKey{Curve: curve.Curve, X: x, Y: y}, nil
}
