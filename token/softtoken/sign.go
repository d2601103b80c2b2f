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

package softtoken

import (
	"crypto"
	"crypto/dsa" //nolint:staticcheck // DSA is still a registered XML signature method
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"fmt"

	"github.com/sassoftware/xmlsec/lib/sigerrors"
	"github.com/sassoftware/xmlsec/lib/x509tools"
	"github.com/sassoftware/xmlsec/token"
)

func (p *Provider) backendErr(op string, err error) error {
	return sigerrors.CryptoBackendError{Provider: p.name, Op: op, Err: err}
}

func (p *Provider) Sign(key *token.Key, opts crypto.SignerOpts, digest []byte) ([]byte, error) {
	if opts == nil {
		return nil, sigerrors.ConfigurationError{Reason: "signer options are required"}
	}
	switch key.Kind {
	case token.KeyRSA:
		priv, err := key.RSAPrivateKey()
		if err != nil {
			return nil, err
		}
		var sig []byte
		if pss, ok := opts.(*rsa.PSSOptions); ok {
			sig, err = rsa.SignPSS(rand.Reader, priv, pss.Hash, digest, pss)
		} else {
			sig, err = rsa.SignPKCS1v15(rand.Reader, priv, opts.HashFunc(), digest)
		}
		if err != nil {
			return nil, p.backendErr("sign", err)
		}
		return sig, nil
	case token.KeyDSA:
		priv, err := key.DSAPrivateKey()
		if err != nil {
			return nil, err
		}
		r, s, err := dsa.Sign(rand.Reader, priv, truncate(digest, priv.Q.BitLen()))
		if err != nil {
			return nil, p.backendErr("sign", err)
		}
		return x509tools.EcdsaSignature{R: r, S: s}.PackTo((priv.Q.BitLen() + 7) / 8), nil
	case token.KeyECDSA:
		priv, err := key.ECDSAPrivateKey()
		if err != nil {
			return nil, err
		}
		r, s, err := ecdsa.Sign(rand.Reader, priv, digest)
		if err != nil {
			return nil, p.backendErr("sign", err)
		}
		return x509tools.EcdsaSignature{R: r, S: s}.PackTo((priv.Curve.Params().BitSize + 7) / 8), nil
	case token.KeyHMAC:
		return p.MAC(key, opts.HashFunc(), digest)
	default:
		return nil, sigerrors.UnsupportedOperationError{Op: "sign", Reason: fmt.Sprintf("%s keys can not sign", key.Kind)}
	}
}

func (p *Provider) Verify(key *token.Key, opts crypto.SignerOpts, digest, sig []byte) (bool, error) {
	if opts == nil {
		return false, sigerrors.ConfigurationError{Reason: "signer options are required"}
	}
	switch key.Kind {
	case token.KeyRSA:
		pub, err := key.RSAPublicKey()
		if err != nil {
			return false, err
		}
		if pss, ok := opts.(*rsa.PSSOptions); ok {
			err = rsa.VerifyPSS(pub, pss.Hash, digest, sig, pss)
		} else {
			err = rsa.VerifyPKCS1v15(pub, opts.HashFunc(), digest, sig)
		}
		return err == nil, nil
	case token.KeyDSA:
		pub, err := key.DSAPublicKey()
		if err != nil {
			return false, err
		}
		esig, err := x509tools.UnpackEcdsaSignature(sig)
		if err != nil {
			return false, nil
		}
		return dsa.Verify(pub, truncate(digest, pub.Q.BitLen()), esig.R, esig.S), nil
	case token.KeyECDSA:
		pub, err := key.ECDSAPublicKey()
		if err != nil {
			return false, err
		}
		esig, err := x509tools.UnpackEcdsaSignature(sig)
		if err != nil {
			return false, nil
		}
		return ecdsa.Verify(pub, digest, esig.R, esig.S), nil
	case token.KeyHMAC:
		return token.VerifyMAC(key, opts.HashFunc(), digest, sig)
	default:
		return false, sigerrors.UnsupportedOperationError{Op: "verify", Reason: fmt.Sprintf("%s keys can not verify", key.Kind)}
	}
}

func (p *Provider) MAC(key *token.Key, hash crypto.Hash, data []byte) ([]byte, error) {
	if key.Kind != token.KeyHMAC {
		return nil, sigerrors.UnsupportedOperationError{Op: "mac", Reason: fmt.Sprintf("%s keys can not MAC", key.Kind)}
	}
	if err := key.Require(false); err != nil {
		return nil, err
	}
	if !hash.Available() {
		return nil, sigerrors.UnsupportedOperationError{Op: "mac", Reason: fmt.Sprintf("hash %s is not available", hash)}
	}
	m := hmac.New(hash.New, key.Secret)
	m.Write(data)
	return m.Sum(nil), nil
}

// DSA uses the leftmost bits of the digest when it is longer than the
// subgroup order
func truncate(digest []byte, bits int) []byte {
	if n := (bits + 7) / 8; len(digest) > n {
		return digest[:n]
	}
	return digest
}
