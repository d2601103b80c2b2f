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

package verify

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sassoftware/xmlsec/cmdline/shared"
	"github.com/sassoftware/xmlsec/lib/certloader"
	"github.com/sassoftware/xmlsec/lib/xmldsig"
	"github.com/sassoftware/xmlsec/token"
)

var VerifyCmd = &cobra.Command{
	Use:   "verify FILE...",
	Short: "Verify the signatures in XML documents",
	RunE:  verifyCmd,
}

var (
	argNoChain           bool
	argAlsoSystem        bool
	argTrustedCerts      []string
	argIntermediateCerts []string
	argHMACSecret        string
	argResolveDir        string
	argJobs              int

	trustedPool       *x509.CertPool
	intermediateCerts []*x509.Certificate
)

func init() {
	shared.RootCmd.AddCommand(VerifyCmd)
	VerifyCmd.Flags().BoolVar(&argNoChain, "no-trust-chain", false, "Do not test whether the signing certificate is trusted")
	VerifyCmd.Flags().BoolVar(&argAlsoSystem, "system-store", false, "When --cert is used, append rather than replace the system trust store")
	VerifyCmd.Flags().StringArrayVar(&argTrustedCerts, "cert", nil, "Add a trusted root certificate (PEM or DER)")
	VerifyCmd.Flags().StringArrayVar(&argIntermediateCerts, "intermediate-cert", nil, "Add an extra cert to help build the trust chain, or to check documents without KeyInfo")
	VerifyCmd.Flags().StringVar(&argHMACSecret, "hmac-secret", "", "File holding the secret for HMAC signatures")
	VerifyCmd.Flags().StringVar(&argResolveDir, "resolve-dir", "", "Resolve external references to files under this directory")
	VerifyCmd.Flags().IntVarP(&argJobs, "jobs", "j", 4, "Number of documents to verify concurrently")
}

func verifyCmd(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errors.New("expected 1 or more files")
	}
	if err := loadCerts(); err != nil {
		return err
	}
	opts, err := verifyOptions()
	if err != nil {
		return err
	}
	results, failed := verifyAll(cmd.Context(), args, opts)
	if opts.Key != nil {
		opts.Key.Close()
	}
	for _, line := range results {
		fmt.Println(line)
	}
	rc := 0
	if failed {
		fmt.Fprintln(os.Stderr, "ERROR: 1 or more files did not validate")
		rc = 1
	}
	shared.Shutdown()
	os.Exit(rc)
	return nil
}

// verifyAll checks each file concurrently and returns one result line per
// file. Every job works with its own copy of the verification key.
func verifyAll(ctx context.Context, paths []string, opts xmldsig.VerifyOptions) ([]string, bool) {
	results := make([]string, len(paths))
	failed := make([]bool, len(paths))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(argJobs)
	for i, path := range paths {
		i, path := i, path
		eg.Go(func() error {
			msg, err := verifyWithClone(ctx, path, opts)
			if err != nil {
				results[i] = fmt.Sprintf("%s ERROR: %s", path, err)
				failed[i] = true
			} else {
				results[i] = fmt.Sprintf("%s OK - %s", path, msg)
			}
			return nil
		})
	}
	_ = eg.Wait()
	anyFailed := false
	for _, f := range failed {
		anyFailed = anyFailed || f
	}
	return results, anyFailed
}

func verifyWithClone(ctx context.Context, path string, opts xmldsig.VerifyOptions) (string, error) {
	if opts.Key != nil {
		key, err := opts.Key.Clone()
		if err != nil {
			return "", err
		}
		defer key.Close()
		opts.Key = key
	}
	return verifyOne(ctx, path, opts)
}

func verifyOptions() (xmldsig.VerifyOptions, error) {
	actx, err := shared.Context()
	if err != nil {
		return xmldsig.VerifyOptions{}, err
	}
	vconf := shared.CurrentConfig.Verify
	opts := xmldsig.VerifyOptions{
		Context:       actx,
		Certificates:  intermediateCerts,
		MaxReferences: vconf.MaxReferences,
		MaxTransforms: vconf.MaxTransforms,
	}
	if argResolveDir != "" {
		opts.Resolver = fileResolver(argResolveDir)
	}
	if argHMACSecret != "" {
		opts.Key, err = shared.LoadSecret(argHMACSecret, token.KeyHMAC)
		if err != nil {
			return opts, err
		}
	}
	return opts, nil
}

func verifyOne(ctx context.Context, path string, opts xmldsig.VerifyOptions) (string, error) {
	doc, err := shared.ReadDocument(path)
	if err != nil {
		return "", err
	}
	sigs, err := xmldsig.VerifyDocument(ctx, doc, opts)
	if err != nil {
		return "", err
	}
	var signers []string
	for _, sig := range sigs {
		leaf := sig.Leaf()
		if leaf == nil {
			signers = append(signers, "signed with "+sig.SignatureMethod)
			continue
		}
		if err := checkChain(leaf, sig.Certificates); err != nil {
			return "", err
		}
		signers = append(signers, "signed by "+leaf.Subject.String())
	}
	return strings.Join(signers, "; "), nil
}

func checkChain(leaf *x509.Certificate, certs []*x509.Certificate) error {
	if argNoChain || trustedPool == nil {
		return nil
	}
	intermediates := x509.NewCertPool()
	for _, cert := range certs {
		intermediates.AddCert(cert)
	}
	_, err := leaf.Verify(x509.VerifyOptions{
		Roots:         trustedPool,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	return err
}

func loadCerts() error {
	trusted, err := certloader.LoadCertificates(argTrustedCerts)
	if err != nil {
		return err
	}
	if len(trusted) > 0 {
		if argAlsoSystem {
			trustedPool, err = x509.SystemCertPool()
			if err != nil {
				return err
			}
		} else {
			trustedPool = x509.NewCertPool()
		}
		for _, cert := range trusted {
			trustedPool.AddCert(cert)
		}
	}
	intermediateCerts, err = certloader.LoadCertificates(argIntermediateCerts)
	return err
}

// fileResolver opens relative reference URIs under dir
func fileResolver(dir string) xmldsig.Resolver {
	return func(uri string) (io.ReadCloser, error) {
		clean := filepath.Clean(filepath.FromSlash(uri))
		if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") || strings.Contains(uri, ":") {
			return nil, fmt.Errorf("reference %q is outside of %s", uri, dir)
		}
		return os.Open(filepath.Join(dir, clean))
	}
}
