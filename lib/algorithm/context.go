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

// Package algorithm maps algorithm identifier URIs to the handlers that
// implement them on top of a crypto provider.
package algorithm

import (
	"crypto"
	"fmt"
	"sort"
	"sync"

	"github.com/beevik/etree"
	"github.com/rs/zerolog/log"

	"github.com/sassoftware/xmlsec/config"
	"github.com/sassoftware/xmlsec/lib/sigerrors"
	"github.com/sassoftware/xmlsec/lib/transform"
	"github.com/sassoftware/xmlsec/token"
	"github.com/sassoftware/xmlsec/token/softtoken"
)

// Context owns an algorithm registry and the default provider used by
// operations that do not name their own. It is safe for concurrent use.
type Context struct {
	mu         sync.RWMutex
	handlers   map[string]Handler
	provider   token.Provider
	evaluator  transform.Evaluator
	stylesheet transform.StylesheetEngine
}

// NewContext returns a context with an empty registry
func NewContext(provider token.Provider) *Context {
	return &Context{
		handlers: make(map[string]Handler),
		provider: provider,
	}
}

// NewDefaultContext returns a context with every built-in algorithm
// registered. A nil provider selects the software provider.
func NewDefaultContext(provider token.Provider) *Context {
	if provider == nil {
		provider = softtoken.New()
	}
	c := NewContext(provider)
	registerBuiltins(c)
	return c
}

// Register binds a URI to a handler, replacing any previous binding
func (c *Context) Register(uri string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.handlers[uri]; ok {
		log.Debug().Str("uri", uri).Msg("replacing algorithm handler")
	}
	c.handlers[uri] = h
}

// Unregister removes a binding. Unknown URIs are ignored.
func (c *Context) Unregister(uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, uri)
}

// Lookup returns the handler bound to exactly uri
func (c *Context) Lookup(uri string) (Handler, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handlers[uri]
	if !ok {
		return nil, sigerrors.UnknownAlgorithmError{URI: uri}
	}
	return h, nil
}

// URIs lists every registered URI in sorted order
func (c *Context) URIs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	uris := make([]string, 0, len(c.handlers))
	for uri := range c.handlers {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return uris
}

func lookupAs[T Handler](c *Context, uri, what string) (T, error) {
	var zero T
	h, err := c.Lookup(uri)
	if err != nil {
		return zero, err
	}
	typed, ok := h.(T)
	if !ok {
		return zero, sigerrors.ConfigurationError{Stage: uri, Reason: fmt.Sprintf("%s is not a %s", Kind(h), what)}
	}
	return typed, nil
}

func (c *Context) Digest(uri string) (DigestHandler, error) {
	return lookupAs[DigestHandler](c, uri, "digest method")
}

func (c *Context) Signature(uri string) (SignatureHandler, error) {
	return lookupAs[SignatureHandler](c, uri, "signature method")
}

func (c *Context) Cipher(uri string) (CipherHandler, error) {
	return lookupAs[CipherHandler](c, uri, "block encryption method")
}

func (c *Context) KeyWrap(uri string) (KeyWrapHandler, error) {
	return lookupAs[KeyWrapHandler](c, uri, "key transport method")
}

func (c *Context) Transform(uri string) (TransformHandler, error) {
	return lookupAs[TransformHandler](c, uri, "transform")
}

// Kind names the category of a handler, for listings
func Kind(h Handler) string {
	switch h.(type) {
	case DigestHandler:
		return "digest"
	case SignatureHandler:
		return "signature"
	case CipherHandler:
		return "cipher"
	case KeyWrapHandler:
		return "keywrap"
	case TransformHandler:
		if transform.IsCanonicalization(h.URI()) {
			return "c14n"
		}
		return "transform"
	default:
		return "other"
	}
}

// DigestURI finds the registered digest method for a hash
func (c *Context) DigestURI(hash crypto.Hash) (string, error) {
	return c.find(func(h Handler) bool {
		d, ok := h.(DigestHandler)
		return ok && d.Hash() == hash
	}, fmt.Sprintf("no digest method for %s", hash))
}

// SignatureURI finds the registered PKCS#1 v1.5, DSA, ECDSA or HMAC signature
// method for a key kind and hash
func (c *Context) SignatureURI(kind token.KeyKind, hash crypto.Hash) (string, error) {
	return c.find(func(h Handler) bool {
		s, ok := h.(signatureMethod)
		return ok && !s.pss && s.kind == kind && s.hash == hash
	}, fmt.Sprintf("no signature method for %s with %s", kind, hash))
}

func (c *Context) find(match func(Handler) bool, reason string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var found []string
	for uri, h := range c.handlers {
		if match(h) {
			found = append(found, uri)
		}
	}
	if len(found) == 0 {
		return "", sigerrors.UnsupportedOperationError{Op: "lookup", Reason: reason}
	}
	// several URIs can name the same algorithm; pick deterministically
	sort.Strings(found)
	return found[0], nil
}

// SetProvider installs a new default provider. The context takes ownership
// of p and closes the one it replaces.
func (c *Context) SetProvider(p token.Provider) error {
	c.mu.Lock()
	prev := c.provider
	c.provider = p
	c.mu.Unlock()
	if prev != nil && prev != p {
		return prev.Close()
	}
	return nil
}

// Provider returns the default provider
func (c *Context) Provider() token.Provider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.provider
}

// SetEvaluator replaces the XPath evaluator used by XPath filter transforms
func (c *Context) SetEvaluator(e transform.Evaluator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evaluator = e
}

// SetStylesheetEngine enables XSLT transforms
func (c *Context) SetStylesheetEngine(e transform.StylesheetEngine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stylesheet = e
}

// TransformParams fills in the context's evaluator and stylesheet engine
func (c *Context) TransformParams(el, sig *etree.Element) TransformParams {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return TransformParams{Element: el, Signature: sig, Evaluator: c.evaluator, Stylesheet: c.stylesheet}
}

// ApplyConfig removes disabled algorithms and, unless permitted, XPath
// filtering
func (c *Context) ApplyConfig(conf *config.Config) {
	if conf == nil {
		return
	}
	if conf.Algorithms != nil {
		for _, uri := range conf.Algorithms.Disabled {
			c.Unregister(uri)
		}
	}
	if conf.Verify != nil && !conf.Verify.AllowXPath {
		c.Unregister(XPath)
	}
}

// Close releases the provider and drops the registry
func (c *Context) Close() error {
	c.mu.Lock()
	prev := c.provider
	c.provider = nil
	c.handlers = make(map[string]Handler)
	c.mu.Unlock()
	if prev != nil {
		return prev.Close()
	}
	return nil
}

var (
	initMu     sync.Mutex
	initCount  int
	defaultCtx *Context
)

// Initialize creates the process-wide default context on first call and
// returns it. Calls are counted; see Terminate.
func Initialize() *Context {
	initMu.Lock()
	defer initMu.Unlock()
	if initCount == 0 {
		defaultCtx = NewDefaultContext(nil)
	}
	initCount++
	return defaultCtx
}

// Terminate undoes one Initialize. The default context is closed only when
// every Initialize has been matched; extra calls do nothing.
func Terminate() error {
	initMu.Lock()
	defer initMu.Unlock()
	if initCount == 0 {
		return nil
	}
	initCount--
	if initCount > 0 {
		return nil
	}
	ctx := defaultCtx
	defaultCtx = nil
	return ctx.Close()
}

// Default returns the process-wide context, or nil outside of
// Initialize/Terminate
func Default() *Context {
	initMu.Lock()
	defer initMu.Unlock()
	return defaultCtx
}
