package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
defaultprovider: hsm
providers:
  hsm:
    type: pkcs11
    provider: /usr/lib/softhsm/libsofthsm2.so
    label: xmlsec
    pin: "1234"
keys:
  signer:
    keyfile: ./key.pem
    x509certificate: ./cert.pem
  softsigner:
    provider: software
    keyfile: ./soft.pem
algorithms:
  disabled:
    - http://www.w3.org/2000/09/xmldsig#sha1
verify:
  allowxpath: true
logging:
  level: debug
`

func TestParse(t *testing.T) {
	config, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "hsm", config.DefaultProvider)
	hsm, err := config.GetProvider("")
	require.NoError(t, err)
	assert.Equal(t, "hsm", hsm.Name())
	assert.Equal(t, ProviderPkcs11, hsm.Type)
	if assert.NotNil(t, hsm.Pin) {
		assert.Equal(t, "1234", *hsm.Pin)
	}
	// the software provider is always available
	soft, err := config.GetProvider(ProviderSoftware)
	require.NoError(t, err)
	assert.Equal(t, ProviderSoftware, soft.Type)

	key, err := config.GetKey("signer")
	require.NoError(t, err)
	assert.Equal(t, "hsm", key.Provider)
	assert.Equal(t, "signer", key.Name())
	assert.Equal(t, []string{"signer", "softsigner"}, config.KeyNames())

	assert.Equal(t, []string{"http://www.w3.org/2000/09/xmldsig#sha1"}, config.Algorithms.Disabled)
	assert.True(t, config.Verify.AllowXPath)
	assert.Equal(t, defaultMaxTransforms, config.Verify.MaxTransforms)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("providers:\n  hsm:\n    type: pkcs11\n"))
	assert.ErrorContains(t, err, `provider "hsm": missing attribute "provider"`)
	_, err = Parse([]byte("defaultprovider: nope\n"))
	assert.ErrorContains(t, err, `default provider "nope" is not defined`)
	_, err = Parse([]byte("keys:\n  k:\n    provider: missing\n"))
	assert.ErrorContains(t, err, `key "k": provider "missing" is not defined`)
	_, err = Default().GetKey("k")
	assert.Error(t, err)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xmlsec.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))
	config, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, config.Path())

	t.Setenv("XMLSEC_CONFIG", path)
	assert.Equal(t, path, DefaultConfig())
}
