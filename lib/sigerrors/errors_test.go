package sigerrors

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsVerificationFailed(t *testing.T) {
	err := fmt.Errorf("xmldsig: %w", VerificationFailedError{Reference: "#obj", Reason: "digest mismatch"})
	assert.True(t, IsVerificationFailed(err))
	assert.Equal(t, `xmldsig: verification failed for reference "#obj": digest mismatch`, err.Error())

	assert.False(t, IsVerificationFailed(UnknownAlgorithmError{URI: "urn:x"}))
	assert.False(t, IsVerificationFailed(TransformError{Stage: "base64", Err: io.ErrUnexpectedEOF}))
}

func TestUnwrap(t *testing.T) {
	err := fmt.Errorf("chain: %w", TransformError{Stage: "base64", Err: io.ErrUnexpectedEOF})
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	var terr TransformError
	if assert.True(t, errors.As(err, &terr)) {
		assert.Equal(t, "base64", terr.Stage)
	}
	berr := CryptoBackendError{Provider: "pkcs11", Op: "copy-object", Err: io.EOF}
	assert.True(t, errors.Is(berr, io.EOF))
}

func TestMessages(t *testing.T) {
	assert.Equal(t, `unknown algorithm "urn:unknown-digest"`, UnknownAlgorithmError{URI: "urn:unknown-digest"}.Error())
	assert.Equal(t, "RSA key is missing required parameters: Modulus, Exponent",
		IncompleteKeyError{Kind: "RSA", Missing: []string{"Modulus", "Exponent"}}.Error())
	assert.Equal(t, "configuration error in stage c14n: input must be a node-set",
		ConfigurationError{Stage: "c14n", Reason: "input must be a node-set"}.Error())
	assert.Equal(t, "xmldsig is not signed", NotSignedError{Type: "xmldsig"}.Error())
}
