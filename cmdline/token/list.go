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
	"os"

	"github.com/spf13/cobra"

	"github.com/sassoftware/xmlsec/cmdline/shared"
	"github.com/sassoftware/xmlsec/config"
	"github.com/sassoftware/xmlsec/token/p11token"
)

var TokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Inspect crypto providers",
}

var TokensCmd = &cobra.Command{
	Use:   "list",
	Short: "List tokens provided by a PKCS#11 module",
	RunE:  tokensCmd,
}

var (
	argProvider string
	argModule   string
)

func init() {
	shared.RootCmd.AddCommand(TokenCmd)
	TokenCmd.PersistentFlags().StringVarP(&argProvider, "provider", "p", "", "Name of provider section in config file")
	TokenCmd.PersistentFlags().StringVar(&argModule, "module", "", "PKCS#11 module path")
	TokenCmd.AddCommand(TokensCmd)
}

func tokensCmd(cmd *cobra.Command, args []string) error {
	if argProvider == "" && argModule == "" {
		return errors.New("--provider or --module is required")
	}
	if argModule == "" {
		if err := shared.InitConfig(); err != nil {
			return err
		}
		pconf, err := shared.CurrentConfig.GetProvider(argProvider)
		if err != nil {
			return err
		}
		if pconf.Type != config.ProviderPkcs11 {
			return errors.New("provider " + pconf.Name() + " is not a PKCS#11 provider")
		}
		argModule = pconf.Provider
	}
	return shared.Fail(p11token.List(argModule, os.Stdout))
}
