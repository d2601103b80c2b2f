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

package token

import (
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/beevik/etree"
	"github.com/spf13/cobra"

	"github.com/sassoftware/xmlsec/cmdline/shared"
	"github.com/sassoftware/xmlsec/lib/xmldsig"
	"github.com/sassoftware/xmlsec/token/open"
)

var SignCmd = &cobra.Command{
	Use:   "sign FILE",
	Short: "Sign an XML document with a configured key",
	RunE:  signCmd,
}

var (
	argKeyName      string
	argOutput       string
	argC14N         string
	argEnveloping   string
	argKeyValue     bool
	argNoCerts      bool
	argIssuerSerial bool
)

func init() {
	shared.RootCmd.AddCommand(SignCmd)
	SignCmd.Flags().StringVarP(&argKeyName, "key", "k", "", "Name of key section in config file to use")
	SignCmd.Flags().StringVarP(&argOutput, "output", "o", "", "Output file, defaults to stdout")
	SignCmd.Flags().StringVar(&argC14N, "c14n", "", "Canonicalization method URI, defaults to exclusive canonicalization")
	SignCmd.Flags().StringVar(&argEnveloping, "enveloping", "", "Wrap the document in an Object with this Id inside the signature")
	SignCmd.Flags().BoolVar(&argKeyValue, "key-value", false, "Include the public key in KeyInfo")
	SignCmd.Flags().BoolVar(&argNoCerts, "no-certs", false, "Do not include the certificate chain in KeyInfo")
	SignCmd.Flags().BoolVar(&argIssuerSerial, "issuer-serial", false, "Name the signing certificate with X509IssuerSerial")
	shared.AddDigestFlag(SignCmd)
}

func signCmd(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("expected a single file to sign")
	} else if argKeyName == "" {
		return errors.New("--key is required")
	}
	actx, err := shared.Context()
	if err != nil {
		return err
	}
	key, err := open.Key(shared.CurrentConfig, argKeyName)
	if err != nil {
		return err
	}
	defer key.Close()
	hash := key.Hash
	if cmd.Flags().Changed("digest") {
		if hash, err = shared.GetDigest(); err != nil {
			return err
		}
	}
	opts := xmldsig.SignOptions{
		Context:             actx,
		Hash:                hash,
		C14NMethod:          argC14N,
		IncludeKeyValue:     argKeyValue || key.Certificate == nil,
		IncludeX509:         !argNoCerts,
		IncludeIssuerSerial: argIssuerSerial,
	}
	var chain []*x509.Certificate
	if key.Certificate != nil {
		chain = key.Certificate.Chain()
	}
	doc, err := shared.ReadDocument(args[0])
	if err != nil {
		return err
	}
	if argEnveloping != "" {
		object := etree.NewElement("Object")
		object.CreateAttr("Id", argEnveloping)
		object.AddChild(doc.Root())
		sig, err := xmldsig.SignEnveloping(cmd.Context(), object, key.Key, chain, opts)
		if err != nil {
			return fmt.Errorf("signing %s: %w", args[0], err)
		}
		doc = etree.NewDocument()
		doc.SetRoot(sig)
	} else if err := xmldsig.Sign(cmd.Context(), doc, doc.Root(), key.Key, chain, opts); err != nil {
		return fmt.Errorf("signing %s: %w", args[0], err)
	}
	return shared.WriteDocument(doc, argOutput)
}
