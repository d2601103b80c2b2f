package x509tools_test

import (
	"crypto/x509/pkix"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/xmlsec/lib/x509tools"
)

func TestEncodeDName(t *testing.T) {
	t.Parallel()
	cases := []struct{ in, out string }{
		{"CN=Test,O=Example", "CN=Test,O=Example"},
		{"CN=Smith, John,O=Example", "CN=Smith\\, John,O=Example"},
		{"CN=a+b;c<d>\"e\"", "CN=a\\+b\\;c\\<d\\>\\\"e\\\""},
		{"#CN=hash", "\\#CN=hash"},
		{"CN=x\x01y", "CN=x\\01y"},
		{"CN=x\x1ay", "CN=x\\1Ay"},
		{"CN=trailing  ", "CN=trailing\\20\\20"},
		{"CN=back\\slash", "CN=back\\\\slash"},
	}
	for _, c := range cases {
		enc := x509tools.EncodeDName(c.in)
		assert.Equal(t, c.out, enc, c.in)
		dec, err := x509tools.DecodeDName(enc)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.in, dec)
	}
}

func TestDecodeDNameErrors(t *testing.T) {
	t.Parallel()
	for _, bad := range []string{"CN=x\\", "CN=x\\q", "CN=x\\21", "CN=x\\0"} {
		_, err := x509tools.DecodeDName(bad)
		assert.Error(t, err, bad)
	}
	dec, err := x509tools.DecodeDName("CN=x\\0a")
	require.NoError(t, err)
	assert.Equal(t, "CN=x\n", dec)
}

func TestFormatDName(t *testing.T) {
	t.Parallel()
	name := pkix.Name{
		Country:      []string{"US"},
		Organization: []string{"Example, Inc."},
		CommonName:   "signer",
	}
	assert.Equal(t, "CN=signer,O=Example\\, Inc.,C=US", x509tools.FormatDName(name.ToRDNSequence()))
}
