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

package token

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/zalando/go-keyring"
	"golang.org/x/term"

	"github.com/sassoftware/xmlsec/config"
	"github.com/sassoftware/xmlsec/lib/sigerrors"
)

const (
	keyringService = "xmlsec"
	maxAttempts    = 3
)

// LoginFunc attempts a login and reports whether the PIN was accepted
type LoginFunc func(pin string) (bool, error)

// PinPrompt reads a PIN interactively. The default reads from the terminal.
var PinPrompt = func(prompt string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", errors.New("PIN required but stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	pin, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	return string(pin), err
}

// Login authenticates to a provider using the configured PIN, the system
// keyring, or an interactive prompt, in that order
func Login(pconf *config.ProviderConfig, loginFunc LoginFunc, keyringUser, initialPrompt string) error {
	if pconf.Pin != nil {
		ok, err := loginFunc(*pconf.Pin)
		if err != nil {
			return err
		} else if !ok {
			return sigerrors.PinIncorrectError{}
		}
		return nil
	}
	if pconf.UseKeyring {
		pin, err := keyring.Get(keyringService, keyringUser)
		if err == nil {
			ok, err := loginFunc(pin)
			if err != nil {
				return err
			} else if ok {
				return nil
			}
			log.Warn().Str("provider", pconf.Name()).Msg("PIN saved in keyring was rejected")
		} else if !errors.Is(err, keyring.ErrNotFound) {
			log.Warn().Err(err).Msg("unable to read keyring")
		}
	}
	if initialPrompt == "" {
		initialPrompt = fmt.Sprintf("PIN for provider %s: ", pconf.Name())
	}
	prompt := initialPrompt
	for i := 0; i < maxAttempts; i++ {
		pin, err := PinPrompt(prompt)
		if err != nil {
			return err
		}
		ok, err := loginFunc(pin)
		if err != nil {
			return err
		} else if ok {
			if pconf.UseKeyring {
				if err := keyring.Set(keyringService, keyringUser, pin); err != nil {
					log.Warn().Err(err).Msg("unable to save PIN in keyring")
				}
			}
			return nil
		}
		prompt = "Incorrect PIN\r\n" + initialPrompt
	}
	return sigerrors.PinIncorrectError{}
}
