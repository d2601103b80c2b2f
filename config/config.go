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

package config

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

const (
	ProviderSoftware = "software"
	ProviderPkcs11   = "pkcs11"

	defaultMaxTransforms = 16
	defaultMaxReferences = 64
)

var Version = "unknown" // set this at link time

type ProviderConfig struct {
	Type       string  // Provider type, "software" or "pkcs11" (required)
	Provider   string  // Path to PKCS#11 provider module
	Label      string  // Select a token by label
	Serial     string  // Select a token by serial number
	Pin        *string // PIN to use, otherwise will be prompted (optional)
	User       *uint   // PKCS#11 user type, defaults to CKU_USER
	UseKeyring bool    // Read PIN from system keyring
	Metrics    bool    // Record prometheus metrics for provider operations

	name string
}

type KeyConfig struct {
	Provider        string // Provider section to use for this key (required)
	KeyFile         string // Path to a PEM private key, for software providers
	X509Certificate string // Path to a PEM certificate chain for this key
	Label           string // Select a PKCS#11 key by label
	ID              string // Select a PKCS#11 key by ID (hex notation)
	Hash            string // Digest used when signing, defaults to SHA-256

	name string
}

type AlgorithmConfig struct {
	Disabled []string // Algorithm URIs removed from the registry
}

type VerifyConfig struct {
	MaxTransforms int  // Maximum number of transforms per reference
	MaxReferences int  // Maximum number of references per signature
	AllowXPath    bool // Permit XPath filter transforms
}

type LoggingConfig struct {
	Level  string // zerolog level name
	Pretty bool   // Human readable console output
}

type Config struct {
	DefaultProvider string
	Providers       map[string]*ProviderConfig
	Keys            map[string]*KeyConfig
	Algorithms      *AlgorithmConfig
	Verify          *VerifyConfig
	Logging         *LoggingConfig

	path string
}

func ReadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	config, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	config.path = path
	return config, nil
}

func Parse(data []byte) (*Config, error) {
	config := new(Config)
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}
	return config, config.Normalize()
}

// Default returns a configuration with just the software provider
func Default() *Config {
	config := &Config{
		DefaultProvider: ProviderSoftware,
		Providers: map[string]*ProviderConfig{
			ProviderSoftware: {Type: ProviderSoftware},
		},
	}
	_ = config.Normalize()
	return config
}

// Normalize fills in defaults and checks cross references between sections
func (config *Config) Normalize() error {
	var e []error
	if config.Providers == nil {
		config.Providers = make(map[string]*ProviderConfig)
	}
	if _, ok := config.Providers[ProviderSoftware]; !ok {
		config.Providers[ProviderSoftware] = &ProviderConfig{Type: ProviderSoftware}
	}
	for name, pconf := range config.Providers {
		if pconf == nil {
			pconf = new(ProviderConfig)
			config.Providers[name] = pconf
		}
		pconf.name = name
		switch pconf.Type {
		case ProviderSoftware:
		case ProviderPkcs11:
			if pconf.Provider == "" {
				e = append(e, fmt.Errorf("provider %q: missing attribute \"provider\"", name))
			}
		case "":
			e = append(e, fmt.Errorf("provider %q: missing attribute \"type\"", name))
		default:
			e = append(e, fmt.Errorf("provider %q: unknown type %q", name, pconf.Type))
		}
	}
	if config.DefaultProvider == "" {
		config.DefaultProvider = ProviderSoftware
	} else if _, ok := config.Providers[config.DefaultProvider]; !ok {
		e = append(e, fmt.Errorf("default provider %q is not defined", config.DefaultProvider))
	}
	for name, keyConf := range config.Keys {
		if keyConf == nil {
			e = append(e, fmt.Errorf("key %q is empty", name))
			continue
		}
		keyConf.name = name
		if keyConf.Provider == "" {
			keyConf.Provider = config.DefaultProvider
		}
		if _, ok := config.Providers[keyConf.Provider]; !ok {
			e = append(e, fmt.Errorf("key %q: provider %q is not defined", name, keyConf.Provider))
		}
	}
	if config.Algorithms == nil {
		config.Algorithms = new(AlgorithmConfig)
	}
	if config.Verify == nil {
		config.Verify = new(VerifyConfig)
	}
	if config.Verify.MaxTransforms == 0 {
		config.Verify.MaxTransforms = defaultMaxTransforms
	}
	if config.Verify.MaxReferences == 0 {
		config.Verify.MaxReferences = defaultMaxReferences
	}
	if config.Logging == nil {
		config.Logging = new(LoggingConfig)
	}
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	return errors.Join(e...)
}

func (config *Config) Path() string {
	return config.path
}

func (config *Config) GetProvider(providerName string) (*ProviderConfig, error) {
	if providerName == "" {
		providerName = config.DefaultProvider
	}
	pconf, ok := config.Providers[providerName]
	if !ok {
		return nil, fmt.Errorf("provider \"%s\" not found in configuration", providerName)
	}
	return pconf, nil
}

func (config *Config) GetKey(keyName string) (*KeyConfig, error) {
	if config.Keys == nil {
		return nil, errors.New("no keys defined in configuration")
	}
	keyConf, ok := config.Keys[keyName]
	if !ok {
		return nil, fmt.Errorf("key \"%s\" not found in configuration", keyName)
	}
	return keyConf, nil
}

// KeyNames returns the configured key names in sorted order
func (config *Config) KeyNames() []string {
	names := make([]string, 0, len(config.Keys))
	for name := range config.Keys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (pconf *ProviderConfig) Name() string {
	return pconf.name
}

func (keyConf *KeyConfig) Name() string {
	return keyConf.name
}
