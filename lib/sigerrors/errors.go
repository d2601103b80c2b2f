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

// Package sigerrors holds the error types shared by the transform pipeline,
// the algorithm registry, the crypto providers and the signature engines.
// Callers match them with errors.As.
package sigerrors

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError is a caller mistake detected before any data flows, such
// as assembling a transform chain whose stage kinds do not line up.
type ConfigurationError struct {
	Stage  string
	Reason string
}

func (e ConfigurationError) Error() string {
	if e.Stage == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error in stage %s: %s", e.Stage, e.Reason)
}

// IncompleteKeyError means a key lacks the parameters needed for the requested
// operation.
type IncompleteKeyError struct {
	Kind    string
	Missing []string
}

func (e IncompleteKeyError) Error() string {
	return fmt.Sprintf("%s key is missing required parameters: %s", e.Kind, strings.Join(e.Missing, ", "))
}

// TransformError aborts a transform chain while data is being pulled through it.
type TransformError struct {
	Stage string
	Err   error
}

func (e TransformError) Error() string {
	return fmt.Sprintf("transform %s failed: %s", e.Stage, e.Err)
}

func (e TransformError) Unwrap() error {
	return e.Err
}

// UnknownAlgorithmError is returned when no handler is bound to an algorithm
// URI, or the bound handler cannot serve the requested purpose.
type UnknownAlgorithmError struct {
	URI    string
	Reason string
}

func (e UnknownAlgorithmError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported algorithm %q: %s", e.URI, e.Reason)
	}
	return fmt.Sprintf("unknown algorithm %q", e.URI)
}

// CryptoBackendError wraps a failure reported by a provider implementation.
type CryptoBackendError struct {
	Provider string
	Op       string
	Err      error
}

func (e CryptoBackendError) Error() string {
	return fmt.Sprintf("%s provider: %s failed: %s", e.Provider, e.Op, e.Err)
}

func (e CryptoBackendError) Unwrap() error {
	return e.Err
}

// UnsupportedOperationError is returned when a backend cannot perform an
// operation at all, for example duplicating a live native key handle.
type UnsupportedOperationError struct {
	Op     string
	Reason string
}

func (e UnsupportedOperationError) Error() string {
	if e.Reason == "" {
		return "unsupported operation: " + e.Op
	}
	return fmt.Sprintf("unsupported operation: %s: %s", e.Op, e.Reason)
}

// VerificationFailedError is the ordinary "document is not valid" outcome: a
// digest or signature did not match.
type VerificationFailedError struct {
	Reference string
	Reason    string
}

func (e VerificationFailedError) Error() string {
	if e.Reference != "" {
		return fmt.Sprintf("verification failed for reference %q: %s", e.Reference, e.Reason)
	}
	return "verification failed: " + e.Reason
}

// NotSignedError is returned when a document has no signature to check.
type NotSignedError struct {
	Type string
}

func (e NotSignedError) Error() string {
	return e.Type + " is not signed"
}

// PinIncorrectError is returned by token logins when the PIN was rejected.
type PinIncorrectError struct{}

func (PinIncorrectError) Error() string {
	return "PIN incorrect"
}

// KeyNotFoundError is returned when a key cannot be located in a token.
type KeyNotFoundError struct{}

func (KeyNotFoundError) Error() string {
	return "key not found"
}

// IsVerificationFailed reports whether err means the document is invalid, as
// opposed to the library or its configuration being broken.
func IsVerificationFailed(err error) bool {
	return errors.As(err, new(VerificationFailedError))
}
