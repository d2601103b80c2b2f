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
	"errors"
	"fmt"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sassoftware/xmlsec/cmdline/shared"
	"github.com/sassoftware/xmlsec/lib/xmlenc"
	"github.com/sassoftware/xmlsec/token"
	"github.com/sassoftware/xmlsec/token/open"
)

var EncryptCmd = &cobra.Command{
	Use:   "encrypt FILE",
	Short: "Encrypt elements of an XML document",
	RunE:  encryptCmd,
}

var DecryptCmd = &cobra.Command{
	Use:   "decrypt FILE",
	Short: "Decrypt the EncryptedData elements of an XML document",
	RunE:  decryptCmd,
}

var (
	argSecretFile string
	argElement    string
	argMethod     string
	argTransport  string
	argContent    bool
	argWithIDs    bool
)

func init() {
	shared.RootCmd.AddCommand(EncryptCmd)
	shared.RootCmd.AddCommand(DecryptCmd)
	addKeyFlags(EncryptCmd.Flags())
	addKeyFlags(DecryptCmd.Flags())
	EncryptCmd.Flags().StringVarP(&argElement, "element", "e", "", "Path of the elements to encrypt, such as //CreditCard")
	EncryptCmd.Flags().StringVar(&argMethod, "method", "", "Block encryption method URI, defaults to AES-256-GCM")
	EncryptCmd.Flags().StringVar(&argTransport, "key-transport", "", "Key transport or key wrap method URI for a generated content key")
	EncryptCmd.Flags().BoolVar(&argContent, "content", false, "Encrypt the content of the elements instead of the elements")
	EncryptCmd.Flags().BoolVar(&argWithIDs, "with-ids", false, "Give each EncryptedData a random Id attribute")
}

func addKeyFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&argKeyName, "key", "k", "", "Name of key section in config file to use")
	fs.StringVar(&argSecretFile, "secret", "", "File holding a raw symmetric key, instead of --key")
	fs.StringVarP(&argOutput, "output", "o", "", "Output file, defaults to stdout")
}

// cipherKey returns the key named by --key or --secret, and a function that
// releases it
func cipherKey() (*token.Key, func(), error) {
	switch {
	case argKeyName != "" && argSecretFile != "":
		return nil, nil, errors.New("--key and --secret are mutually exclusive")
	case argSecretFile != "":
		key, err := shared.LoadSecret(argSecretFile, token.KeySymmetric)
		if err != nil {
			return nil, nil, err
		}
		return key, func() { key.Close() }, nil
	case argKeyName != "":
		if err := shared.InitConfig(); err != nil {
			return nil, nil, err
		}
		sk, err := open.Key(shared.CurrentConfig, argKeyName)
		if err != nil {
			return nil, nil, err
		}
		return sk.Key, func() { sk.Close() }, nil
	default:
		return nil, nil, errors.New("--key or --secret is required")
	}
}

func encryptCmd(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("expected a single file to encrypt")
	} else if argElement == "" {
		return errors.New("--element is required")
	}
	path, err := etree.CompilePath(argElement)
	if err != nil {
		return fmt.Errorf("--element: %w", err)
	}
	actx, err := shared.Context()
	if err != nil {
		return err
	}
	key, release, err := cipherKey()
	if err != nil {
		return err
	}
	defer release()
	doc, err := shared.ReadDocument(args[0])
	if err != nil {
		return err
	}
	targets := doc.FindElementsPath(path)
	if len(targets) == 0 {
		return fmt.Errorf("%s: no elements match %s", args[0], argElement)
	}
	opts := xmlenc.EncryptOptions{
		Context:      actx,
		Method:       argMethod,
		KeyTransport: argTransport,
		Content:      argContent,
		KeyName:      argKeyName,
	}
	for _, el := range targets {
		if argWithIDs {
			opts.ID = "_" + uuid.NewString()
		}
		if _, err := xmlenc.EncryptElement(cmd.Context(), el, key, opts); err != nil {
			return fmt.Errorf("encrypting %s: %w", el.GetPath(), err)
		}
	}
	return shared.WriteDocument(doc, argOutput)
}

func decryptCmd(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("expected a single file to decrypt")
	}
	actx, err := shared.Context()
	if err != nil {
		return err
	}
	key, release, err := cipherKey()
	if err != nil {
		return err
	}
	defer release()
	doc, err := shared.ReadDocument(args[0])
	if err != nil {
		return err
	}
	var encrypted []*etree.Element
	var walk func(*etree.Element)
	walk = func(el *etree.Element) {
		if el.Tag == "EncryptedData" && el.NamespaceURI() == xmlenc.NsXMLEnc {
			encrypted = append(encrypted, el)
			return
		}
		for _, child := range el.ChildElements() {
			walk(child)
		}
	}
	walk(doc.Root())
	if len(encrypted) == 0 {
		return fmt.Errorf("%s: no EncryptedData elements", args[0])
	}
	for _, el := range encrypted {
		if _, err := xmlenc.DecryptElement(cmd.Context(), el, key, xmlenc.DecryptOptions{Context: actx}); err != nil {
			return err
		}
	}
	return shared.WriteDocument(doc, argOutput)
}
