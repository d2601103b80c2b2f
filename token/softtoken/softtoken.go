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

// Package softtoken implements the crypto provider on top of the Go standard
// crypto packages. It holds no native key handles.
package softtoken

import (
	"crypto"
	"fmt"
	"hash"
	"os"

	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"

	_ "golang.org/x/crypto/ripemd160" //nolint:staticcheck // registered XML signature digest
	_ "golang.org/x/crypto/sha3"

	"github.com/sassoftware/xmlsec/config"
	"github.com/sassoftware/xmlsec/lib/sigerrors"
	"github.com/sassoftware/xmlsec/lib/x509tools"
	"github.com/sassoftware/xmlsec/token"
)

const providerName = "software"

func init() {
	token.Openers[config.ProviderSoftware] = Open
}

type Provider struct {
	name string
}

var _ token.Provider = (*Provider)(nil)

// New returns a software provider
func New() *Provider {
	return &Provider{name: providerName}
}

// NewNamed returns a software provider that reports errors and metrics under
// another backend's name
func NewNamed(name string) *Provider {
	return &Provider{name: name}
}

// Open instantiates a software provider from configuration
func Open(conf *config.Config, providerName string) (token.Provider, error) {
	pconf, err := conf.GetProvider(providerName)
	if err != nil {
		return nil, err
	}
	return &Provider{name: pconf.Name()}, nil
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Close() error {
	return nil
}

func (p *Provider) NewKey(kind token.KeyKind) (*token.Key, error) {
	return token.NewKeyFor(p, kind)
}

type digestContext struct {
	hash     crypto.Hash
	h        hash.Hash
	finished bool
}

func (p *Provider) NewDigest(hash crypto.Hash) (token.DigestContext, error) {
	if !hash.Available() {
		return nil, sigerrors.UnsupportedOperationError{Op: "digest", Reason: fmt.Sprintf("hash %s is not available", hash)}
	}
	return &digestContext{hash: hash, h: hash.New()}, nil
}

func (d *digestContext) Write(data []byte) (int, error) {
	if d.finished {
		return 0, fmt.Errorf("digest %s already finished", d.hash)
	}
	return d.h.Write(data)
}

func (d *digestContext) Hash() crypto.Hash {
	return d.hash
}

func (d *digestContext) Finish() ([]byte, error) {
	if d.finished {
		return nil, fmt.Errorf("digest %s already finished", d.hash)
	}
	d.finished = true
	return d.h.Sum(nil), nil
}

// DuplicateNative always fails because software keys never carry handles
func (p *Provider) DuplicateNative(h token.NativeHandle) (token.NativeHandle, error) {
	return nil, sigerrors.UnsupportedOperationError{Op: "duplicate-native", Reason: "software provider has no native keys"}
}

// LoadPrivateKeyFile reads a PEM private key and binds it to provider p
func LoadPrivateKeyFile(p token.Provider, path string) (*token.Key, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	priv, err := x509tools.ParsePEMPrivateKey(blob)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return token.KeyFromPrivate(p, priv)
}
