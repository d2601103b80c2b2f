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

package tools

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sassoftware/xmlsec/cmdline/shared"
	"github.com/sassoftware/xmlsec/lib/algorithm"
	"github.com/sassoftware/xmlsec/lib/domutil"
	"github.com/sassoftware/xmlsec/lib/transform"
	"github.com/sassoftware/xmlsec/token"
)

var C14NCmd = &cobra.Command{
	Use:   "c14n FILE",
	Short: "Write the canonical form of a document or element",
	RunE:  c14nCmd,
}

var DigestCmd = &cobra.Command{
	Use:   "digest FILE",
	Short: "Print the base64 digest of the canonical form of a document or element",
	RunE:  digestCmd,
}

var AlgorithmsCmd = &cobra.Command{
	Use:   "algorithms",
	Short: "List the registered algorithm URIs",
	RunE:  algorithmsCmd,
}

var (
	argMethod   string
	argPrefixes string
	argID       string
	argDigest   string
)

func init() {
	for _, cmd := range []*cobra.Command{C14NCmd, DigestCmd} {
		shared.RootCmd.AddCommand(cmd)
		cmd.Flags().StringVar(&argMethod, "method", algorithm.ExcC14N, "Canonicalization method URI")
		cmd.Flags().StringVar(&argPrefixes, "prefixes", "", "Inclusive namespace prefixes for exclusive canonicalization")
		cmd.Flags().StringVar(&argID, "id", "", "Canonicalize only the element with this Id")
	}
	DigestCmd.Flags().StringVar(&argDigest, "digest-method", "", "Digest method URI, instead of --digest")
	shared.AddDigestFlag(DigestCmd)
	shared.RootCmd.AddCommand(AlgorithmsCmd)
}

// canonicalChain reads a file and builds a chain that canonicalizes it
func canonicalChain(path string) (*transform.Chain, error) {
	if !transform.IsCanonicalization(argMethod) {
		return nil, fmt.Errorf("%s is not a canonicalization method", argMethod)
	}
	doc, err := shared.ReadDocument(path)
	if err != nil {
		return nil, err
	}
	input := transform.DocumentInput(doc)
	if argID != "" {
		el := domutil.FindByID(doc.Root(), argID)
		if el == nil {
			return nil, fmt.Errorf("%s: no element with Id %q", path, argID)
		}
		input = transform.NodesInput(transform.NewNodes(doc, el).Subtree())
	}
	c14n, err := transform.NewCanonicalizer(argMethod, argPrefixes)
	if err != nil {
		return nil, err
	}
	return transform.BuildChain(input, c14n)
}

func c14nCmd(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("expected a single file")
	}
	chain, err := canonicalChain(args[0])
	if err != nil {
		return err
	}
	if _, err := io.Copy(os.Stdout, chain); err != nil {
		return err
	}
	return chain.Err()
}

func digestCmd(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("expected a single file")
	}
	actx, err := shared.Context()
	if err != nil {
		return err
	}
	uri := argDigest
	if uri == "" {
		hash, err := shared.GetDigest()
		if err != nil {
			return err
		}
		if uri, err = actx.DigestURI(hash); err != nil {
			return err
		}
	}
	dh, err := actx.Digest(uri)
	if err != nil {
		return err
	}
	chain, err := canonicalChain(args[0])
	if err != nil {
		return err
	}
	dc, err := dh.NewDigest(actx.Provider())
	if err != nil {
		return err
	}
	digest, err := transform.Digest(chain, dc)
	if err != nil {
		return err
	}
	fmt.Println(token.EncodeBase64(digest))
	return nil
}

func algorithmsCmd(cmd *cobra.Command, args []string) error {
	actx, err := shared.Context()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	for _, uri := range actx.URIs() {
		h, err := actx.Lookup(uri)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\n", algorithm.Kind(h), uri)
	}
	return w.Flush()
}
