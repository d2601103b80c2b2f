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
	"errors"

	"github.com/miekg/pkcs11"

	"github.com/sassoftware/xmlsec/token"
)

var digestMechs = map[crypto.Hash]uint{
	crypto.MD5:       pkcs11.CKM_MD5,
	crypto.SHA1:      pkcs11.CKM_SHA_1,
	crypto.SHA224:    pkcs11.CKM_SHA224,
	crypto.SHA256:    pkcs11.CKM_SHA256,
	crypto.SHA384:    pkcs11.CKM_SHA384,
	crypto.SHA512:    pkcs11.CKM_SHA512,
	crypto.RIPEMD160: pkcs11.CKM_RIPEMD160,
}

// each digest gets its own session since a session holds at most one active
// digest operation
type digestContext struct {
	tok  *Token
	sh   pkcs11.SessionHandle
	hash crypto.Hash
	done bool
}

func (tok *Token) NewDigest(hash crypto.Hash) (token.DigestContext, error) {
	mech, ok := digestMechs[hash]
	if !ok {
		return tok.soft.NewDigest(hash)
	}
	sh, err := tok.ctx.OpenSession(tok.slot, pkcs11.CKF_SERIAL_SESSION)
	if err != nil {
		return nil, tok.backendErr("digest", err)
	}
	if err := tok.ctx.DigestInit(sh, []*pkcs11.Mechanism{pkcs11.NewMechanism(mech, nil)}); err != nil {
		_ = tok.ctx.CloseSession(sh)
		if rv, ok := err.(pkcs11.Error); ok && rv == pkcs11.CKR_MECHANISM_INVALID {
			return tok.soft.NewDigest(hash)
		}
		return nil, tok.backendErr("digest", err)
	}
	return &digestContext{tok: tok, sh: sh, hash: hash}, nil
}

func (d *digestContext) Hash() crypto.Hash {
	return d.hash
}

func (d *digestContext) Write(data []byte) (int, error) {
	if d.done {
		return 0, errors.New("digest already finished")
	}
	if err := d.tok.ctx.DigestUpdate(d.sh, data); err != nil {
		d.close()
		return 0, d.tok.backendErr("digest", err)
	}
	return len(data), nil
}

func (d *digestContext) Finish() ([]byte, error) {
	if d.done {
		return nil, errors.New("digest already finished")
	}
	defer d.close()
	sum, err := d.tok.ctx.DigestFinal(d.sh)
	if err != nil {
		return nil, d.tok.backendErr("digest", err)
	}
	return sum, nil
}

func (d *digestContext) close() {
	if !d.done {
		d.done = true
		_ = d.tok.ctx.CloseSession(d.sh)
	}
}
