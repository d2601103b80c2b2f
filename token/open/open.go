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

// Package open instantiates providers and signing keys from configuration.
package open

import (
	"crypto"
	"fmt"

	"github.com/sassoftware/xmlsec/config"
	"github.com/sassoftware/xmlsec/lib/certloader"
	"github.com/sassoftware/xmlsec/lib/sigerrors"
	"github.com/sassoftware/xmlsec/lib/x509tools"
	"github.com/sassoftware/xmlsec/token"
	"github.com/sassoftware/xmlsec/token/p11token"
	"github.com/sassoftware/xmlsec/token/softtoken"
)

// Provider opens the named provider section, or the default provider if name
// is empty
func Provider(conf *config.Config, name string) (token.Provider, error) {
	pconf, err := conf.GetProvider(name)
	if err != nil {
		return nil, err
	}
	opener, ok := token.Openers[pconf.Type]
	if !ok {
		return nil, sigerrors.ConfigurationError{Stage: pconf.Name(), Reason: fmt.Sprintf("unknown provider type %q", pconf.Type)}
	}
	p, err := opener(conf, pconf.Name())
	if err != nil {
		return nil, err
	}
	if pconf.Metrics {
		p = token.Metrics{Provider: p}
	}
	return p, nil
}

// SigningKey is a configured key together with the provider that owns it
type SigningKey struct {
	Name        string
	Key         *token.Key
	Provider    token.Provider
	Hash        crypto.Hash
	Certificate *certloader.Certificate
}

// Close releases the key and then its provider
func (s *SigningKey) Close() error {
	err := s.Key.Close()
	if err2 := s.Provider.Close(); err == nil {
		err = err2
	}
	return err
}

// Key loads the named key section. Keys with a keyfile are read into the
// software provider, others are looked up on a PKCS#11 token.
func Key(conf *config.Config, keyName string) (*SigningKey, error) {
	kconf, err := conf.GetKey(keyName)
	if err != nil {
		return nil, err
	}
	hash := crypto.SHA256
	if kconf.Hash != "" {
		hash = x509tools.HashByName(kconf.Hash)
		if hash == 0 {
			return nil, sigerrors.ConfigurationError{Stage: keyName, Reason: fmt.Sprintf("unsupported digest %q", kconf.Hash)}
		}
	}
	p, err := Provider(conf, kconf.Provider)
	if err != nil {
		return nil, err
	}
	key, err := loadKey(p, kconf)
	if err != nil {
		p.Close()
		return nil, err
	}
	s := &SigningKey{Name: keyName, Key: key, Provider: p, Hash: hash}
	if kconf.X509Certificate != "" {
		pub, err := key.Public()
		if err == nil {
			s.Certificate, err = certloader.LoadKeyCertificates(pub, kconf.X509Certificate)
		}
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("key %s: %w", keyName, err)
		}
	}
	return s, nil
}

func loadKey(p token.Provider, kconf *config.KeyConfig) (*token.Key, error) {
	if kconf.KeyFile != "" {
		return softtoken.LoadPrivateKeyFile(p, kconf.KeyFile)
	}
	backend := p
	if m, ok := p.(token.Metrics); ok {
		backend = m.Provider
	}
	tok, ok := backend.(*p11token.Token)
	if !ok {
		return nil, sigerrors.ConfigurationError{Stage: kconf.Name(), Reason: "key has no keyfile and its provider is not a token"}
	}
	key, err := tok.LoadKey(kconf)
	if err != nil {
		return nil, err
	}
	key.Rebind(p)
	return key, nil
}
