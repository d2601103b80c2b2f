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

// Package p11token implements the crypto provider on a PKCS#11 token. Private
// key operations, HMAC and AES-CBC run inside the token; public key operations
// and anything the token has no mechanism for run in software.
package p11token

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/miekg/pkcs11"
	"github.com/rs/zerolog/log"

	"github.com/sassoftware/xmlsec/config"
	"github.com/sassoftware/xmlsec/lib/sigerrors"
	"github.com/sassoftware/xmlsec/token"
	"github.com/sassoftware/xmlsec/token/softtoken"
)

const (
	CKS_RO_PUBLIC_SESSION = 0
	CKS_RO_USER_FUNCTIONS = 1
	CKS_RW_PUBLIC_SESSION = 2
	CKS_RW_USER_FUNCTIONS = 3
	CKS_RW_SO_FUNCTIONS   = 4
)

func init() {
	token.Openers[config.ProviderPkcs11] = open
}

var providerMap map[string]*pkcs11.Ctx
var providerMutex sync.Mutex

type Token struct {
	config *config.Config
	pconf  *config.ProviderConfig
	ctx    *pkcs11.Ctx
	slot   uint
	sh     pkcs11.SessionHandle
	mutex  sync.Mutex
	soft   *softtoken.Provider
}

var _ token.Provider = (*Token)(nil)

// List prints the tokens present in each slot of a PKCS#11 module
func List(module string, output io.Writer) error {
	ctx := pkcs11.New(module)
	if ctx == nil {
		return errors.New("failed to initialize pkcs11 provider")
	}
	defer ctx.Destroy()
	if err := ctx.Initialize(); err != nil {
		return err
	}
	defer ctx.Finalize()
	slots, err := ctx.GetSlotList(false)
	if err != nil {
		return err
	}
	for _, slot := range slots {
		info, err := ctx.GetTokenInfo(slot)
		if rv, ok := err.(pkcs11.Error); ok && rv == pkcs11.CKR_TOKEN_NOT_PRESENT {
			continue
		} else if err != nil {
			return err
		}
		fmt.Fprintf(output, "slot %d:\n manuf:  %s\n model:  %s\n label:  %s\n serial: %s\n", slot, info.ManufacturerID, info.Model, info.Label, info.SerialNumber)
	}
	return nil
}

// Open loads a PKCS#11 module, opens a session on the selected token, and
// logs in
func Open(conf *config.Config, providerName string) (*Token, error) {
	pconf, err := conf.GetProvider(providerName)
	if err != nil {
		return nil, err
	}
	ctx, err := openLib(pconf)
	if err != nil {
		return nil, err
	}
	tok := &Token{
		config: conf,
		pconf:  pconf,
		ctx:    ctx,
		soft:   softtoken.NewNamed(pconf.Name()),
	}
	runtime.SetFinalizer(tok, (*Token).Close)
	tok.slot, err = tok.findSlot()
	if err != nil {
		tok.Close()
		return nil, err
	}
	mode := uint(pkcs11.CKF_SERIAL_SESSION | pkcs11.CKF_RW_SESSION)
	sh, err := tok.ctx.OpenSession(tok.slot, mode)
	if err != nil {
		tok.Close()
		return nil, tok.backendErr("open-session", err)
	}
	tok.sh = sh
	if err := tok.autoLogIn(); err != nil {
		tok.Close()
		return nil, err
	}
	log.Debug().Str("provider", pconf.Name()).Uint("slot", tok.slot).Msg("opened PKCS#11 token")
	return tok, nil
}

func open(conf *config.Config, providerName string) (token.Provider, error) {
	tok, err := Open(conf, providerName)
	if err != nil {
		return nil, err
	}
	return tok, nil
}

func openLib(pconf *config.ProviderConfig) (*pkcs11.Ctx, error) {
	if pconf.Provider == "" {
		return nil, sigerrors.ConfigurationError{Stage: pconf.Name(), Reason: "missing attribute \"provider\" in provider configuration"}
	}
	providerMutex.Lock()
	defer providerMutex.Unlock()
	if providerMap == nil {
		providerMap = make(map[string]*pkcs11.Ctx)
	}
	ctx, ok := providerMap[pconf.Provider]
	if ok {
		return ctx, nil
	}
	ctx = pkcs11.New(pconf.Provider)
	if ctx == nil {
		return nil, errors.New("failed to initialize pkcs11 provider")
	}
	err := ctx.Initialize()
	if err != nil {
		ctx.Destroy()
		return nil, err
	}
	providerMap[pconf.Provider] = ctx
	return ctx, nil
}

func (tok *Token) Name() string {
	return tok.pconf.Name()
}

// Close the token session
func (tok *Token) Close() error {
	tok.mutex.Lock()
	defer tok.mutex.Unlock()
	var err error
	if tok.ctx != nil {
		if tok.sh != 0 {
			err = tok.ctx.CloseSession(tok.sh)
		}
		tok.ctx = nil
		runtime.SetFinalizer(tok, nil)
	}
	return err
}

func (tok *Token) NewKey(kind token.KeyKind) (*token.Key, error) {
	return token.NewKeyFor(tok, kind)
}

func (tok *Token) backendErr(op string, err error) error {
	if rv, ok := err.(pkcs11.Error); ok && rv == pkcs11.CKR_PIN_INCORRECT {
		return sigerrors.PinIncorrectError{}
	}
	return sigerrors.CryptoBackendError{Provider: tok.Name(), Op: op, Err: err}
}

func (tok *Token) findSlot() (uint, error) {
	pconf := tok.pconf
	slots, err := tok.ctx.GetSlotList(false)
	if err != nil {
		return 0, err
	}
	candidates := make([]uint, 0, len(slots))
	for _, slot := range slots {
		info, err := tok.ctx.GetTokenInfo(slot)
		if err != nil {
			if rv, ok := err.(pkcs11.Error); ok && rv == pkcs11.CKR_TOKEN_NOT_PRESENT {
				continue
			}
			return 0, err
		}
		if pconf.Label != "" && pconf.Label != info.Label {
			continue
		} else if pconf.Serial != "" && pconf.Serial != info.SerialNumber {
			continue
		}
		candidates = append(candidates, slot)
	}
	if len(candidates) == 0 {
		return 0, errors.New("no token found with the specified attributes")
	} else if len(candidates) != 1 {
		return 0, errors.New("multiple tokens matched the specified attributes")
	}
	return candidates[0], nil
}

func (tok *Token) isLoggedIn() (bool, error) {
	tok.mutex.Lock()
	defer tok.mutex.Unlock()
	info, err := tok.ctx.GetSessionInfo(tok.sh)
	if err != nil {
		return false, err
	}
	return (info.State == CKS_RO_USER_FUNCTIONS || info.State == CKS_RW_USER_FUNCTIONS || info.State == CKS_RW_SO_FUNCTIONS), nil
}

func (tok *Token) login(user uint, pin string) error {
	tok.mutex.Lock()
	defer tok.mutex.Unlock()
	if err := tok.ctx.Login(tok.sh, user, pin); err != nil {
		return tok.backendErr("login", err)
	}
	return nil
}

func (tok *Token) autoLogIn() error {
	pconf := tok.pconf
	loggedIn, err := tok.isLoggedIn()
	if err != nil {
		return tok.backendErr("session-info", err)
	}
	if loggedIn {
		return nil
	}
	var user uint = pkcs11.CKU_USER
	if pconf.User != nil {
		user = *pconf.User
	}
	loginFunc := func(pin string) (bool, error) {
		err := tok.login(user, pin)
		var perr sigerrors.PinIncorrectError
		switch {
		case err == nil:
			return true, nil
		case errors.As(err, &perr):
			return false, nil
		default:
			return false, err
		}
	}
	initialPrompt := fmt.Sprintf("PIN for provider %s user %08x: ", pconf.Name(), user)
	keyringUser := fmt.Sprintf("%s.%08x", pconf.Name(), user)
	return token.Login(pconf, loginFunc, keyringUser, initialPrompt)
}

func (tok *Token) getAttribute(handle pkcs11.ObjectHandle, attr uint) []byte {
	attrs, err := tok.ctx.GetAttributeValue(tok.sh, handle, []*pkcs11.Attribute{pkcs11.NewAttribute(attr, nil)})
	if err != nil {
		return nil
	}
	return attrs[0].Value
}

func (tok *Token) findObject(attrs []*pkcs11.Attribute) ([]pkcs11.ObjectHandle, error) {
	if err := tok.ctx.FindObjectsInit(tok.sh, attrs); err != nil {
		return nil, err
	}
	objects, _, err := tok.ctx.FindObjects(tok.sh, 10)
	if err != nil {
		_ = tok.ctx.FindObjectsFinal(tok.sh)
		return nil, err
	}
	if err := tok.ctx.FindObjectsFinal(tok.sh); err != nil {
		return nil, err
	}
	return objects, nil
}
