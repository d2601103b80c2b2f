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
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"errors"
	"fmt"
	"io"

	josecipher "github.com/go-jose/go-jose/v4/cipher"

	"github.com/sassoftware/xmlsec/lib/sigerrors"
	"github.com/sassoftware/xmlsec/token"
)

func (p *Provider) block(key *token.Key) (cipher.Block, error) {
	if key.Kind != token.KeySymmetric {
		return nil, sigerrors.UnsupportedOperationError{Op: "encrypt", Reason: fmt.Sprintf("%s keys can not encrypt bulk data", key.Kind)}
	}
	if err := key.Require(false); err != nil {
		return nil, err
	}
	var b cipher.Block
	var err error
	switch key.Cipher {
	case token.CipherAES, 0:
		b, err = aes.NewCipher(key.Secret)
	case token.CipherTripleDES:
		b, err = des.NewTripleDESCipher(key.Secret)
	default:
		return nil, sigerrors.UnsupportedOperationError{Op: "encrypt", Reason: "unknown symmetric cipher"}
	}
	if err != nil {
		return nil, sigerrors.ConfigurationError{Reason: err.Error()}
	}
	return b, nil
}

func (p *Provider) Encrypt(key *token.Key, mode token.CipherMode, plaintext []byte) ([]byte, error) {
	b, err := p.block(key)
	if err != nil {
		return nil, err
	}
	switch mode {
	case token.ModeCBC:
		bs := b.BlockSize()
		iv := make([]byte, bs)
		if _, err := io.ReadFull(rand.Reader, iv); err != nil {
			return nil, p.backendErr("encrypt", err)
		}
		body := Pad(plaintext, bs)
		cipher.NewCBCEncrypter(b, iv).CryptBlocks(body, body)
		return append(iv, body...), nil
	case token.ModeGCM:
		aead, err := cipher.NewGCM(b)
		if err != nil {
			return nil, sigerrors.ConfigurationError{Reason: err.Error()}
		}
		nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
		if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
			return nil, p.backendErr("encrypt", err)
		}
		return aead.Seal(nonce, nonce, plaintext, nil), nil
	default:
		return nil, sigerrors.UnsupportedOperationError{Op: "encrypt", Reason: "unknown cipher mode"}
	}
}

func (p *Provider) Decrypt(key *token.Key, mode token.CipherMode, ciphertext []byte) ([]byte, error) {
	b, err := p.block(key)
	if err != nil {
		return nil, err
	}
	switch mode {
	case token.ModeCBC:
		bs := b.BlockSize()
		if len(ciphertext) < 2*bs || len(ciphertext)%bs != 0 {
			return nil, errors.New("ciphertext is not a whole number of blocks")
		}
		body := make([]byte, len(ciphertext)-bs)
		cipher.NewCBCDecrypter(b, ciphertext[:bs]).CryptBlocks(body, ciphertext[bs:])
		return Unpad(body, bs)
	case token.ModeGCM:
		aead, err := cipher.NewGCM(b)
		if err != nil {
			return nil, sigerrors.ConfigurationError{Reason: err.Error()}
		}
		if len(ciphertext) < aead.NonceSize()+aead.Overhead() {
			return nil, errors.New("ciphertext is too short")
		}
		ns := aead.NonceSize()
		return aead.Open(nil, ciphertext[:ns], ciphertext[ns:], nil)
	default:
		return nil, sigerrors.UnsupportedOperationError{Op: "decrypt", Reason: "unknown cipher mode"}
	}
}

func (p *Provider) WrapKey(key *token.Key, mode token.WrapMode, cek []byte) ([]byte, error) {
	switch mode {
	case token.WrapRSA15, token.WrapRSAOAEP:
		pub, err := key.RSAPublicKey()
		if err != nil {
			return nil, err
		}
		var out []byte
		if mode == token.WrapRSA15 {
			out, err = rsa.EncryptPKCS1v15(rand.Reader, pub, cek)
		} else {
			out, err = rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, cek, nil)
		}
		if err != nil {
			return nil, p.backendErr("wrap", err)
		}
		return out, nil
	case token.WrapAESKW:
		b, err := p.block(key)
		if err != nil {
			return nil, err
		}
		return aesKeyWrap(b, cek)
	default:
		return nil, sigerrors.UnsupportedOperationError{Op: "wrap", Reason: "unknown key wrap mode"}
	}
}

func (p *Provider) UnwrapKey(key *token.Key, mode token.WrapMode, wrapped []byte) ([]byte, error) {
	switch mode {
	case token.WrapRSA15, token.WrapRSAOAEP:
		priv, err := key.RSAPrivateKey()
		if err != nil {
			return nil, err
		}
		var out []byte
		if mode == token.WrapRSA15 {
			out, err = rsa.DecryptPKCS1v15(rand.Reader, priv, wrapped)
		} else {
			out, err = rsa.DecryptOAEP(sha1.New(), rand.Reader, priv, wrapped, nil)
		}
		if err != nil {
			return nil, p.backendErr("unwrap", err)
		}
		return out, nil
	case token.WrapAESKW:
		b, err := p.block(key)
		if err != nil {
			return nil, err
		}
		return aesKeyUnwrap(b, wrapped)
	default:
		return nil, sigerrors.UnsupportedOperationError{Op: "unwrap", Reason: "unknown key wrap mode"}
	}
}

// Pad returns a copy of data padded to a multiple of the block size. As in XML
// Encryption only the final octet, the pad length, is significant.
func Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	out[len(out)-1] = byte(padLen)
	return out
}

// Unpad strips padding added by Pad or by any other XML Encryption
// implementation
func Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("decrypted data is not a whole number of blocks")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize {
		return nil, errors.New("invalid padding in decrypted data")
	}
	return data[:len(data)-padLen], nil
}

// RFC 3394 key wrap. At least two 64-bit blocks are required.
func aesKeyWrap(b cipher.Block, plain []byte) ([]byte, error) {
	if len(plain) < 16 || len(plain)%8 != 0 {
		return nil, errors.New("key to wrap must be a multiple of 8 bytes and at least 16")
	}
	return josecipher.KeyWrap(b, plain)
}

func aesKeyUnwrap(b cipher.Block, wrapped []byte) ([]byte, error) {
	if len(wrapped) < 24 || len(wrapped)%8 != 0 {
		return nil, errors.New("wrapped key has an invalid length")
	}
	return josecipher.KeyUnwrap(b, wrapped)
}
