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

package shared

import (
	"errors"
	"fmt"
	"os"

	"github.com/beevik/etree"

	"github.com/sassoftware/xmlsec/config"
	"github.com/sassoftware/xmlsec/lib/algorithm"
	"github.com/sassoftware/xmlsec/lib/atomicfile"
	"github.com/sassoftware/xmlsec/token/open"
)

var currentContext *algorithm.Context

// InitConfig loads the configuration named by --config. If none was given and
// the default file does not exist, a configuration with only the software
// provider is used.
func InitConfig() error {
	if CurrentConfig != nil {
		return nil
	}
	usedDefault := false
	if ArgConfig == "" {
		ArgConfig = config.DefaultConfig()
		usedDefault = true
	}
	if ArgConfig == "" {
		CurrentConfig = config.Default()
		return nil
	}
	conf, err := config.ReadFile(ArgConfig)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && usedDefault {
			CurrentConfig = config.Default()
			return nil
		}
		return err
	}
	CurrentConfig = conf
	return nil
}

// Context returns the algorithm context for this process, with the default
// provider from the configuration and any disabled algorithms removed
func Context() (*algorithm.Context, error) {
	if currentContext != nil {
		return currentContext, nil
	}
	if err := InitConfig(); err != nil {
		return nil, err
	}
	p, err := open.Provider(CurrentConfig, "")
	if err != nil {
		return nil, err
	}
	actx := algorithm.Initialize()
	if err := actx.SetProvider(p); err != nil {
		algorithm.Terminate()
		return nil, err
	}
	actx.ApplyConfig(CurrentConfig)
	currentContext = actx
	return actx, nil
}

// Shutdown releases the algorithm context, if one was created
func Shutdown() {
	if currentContext != nil {
		algorithm.Terminate()
		currentContext = nil
	}
}

func OpenFile(path string) (*os.File, error) {
	if path == "-" {
		return os.Stdin, nil
	}
	return os.Open(path)
}

// ReadDocument parses an XML file, or stdin if path is "-"
func ReadDocument(path string) (*etree.Document, error) {
	f, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("%s: no document element", path)
	}
	return doc, nil
}

// WriteDocument writes doc to path, or stdout if path is empty or "-". A
// file is only replaced once the whole document has been written.
func WriteDocument(doc *etree.Document, path string) error {
	f, err := atomicfile.WriteAny(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := doc.WriteTo(f); err != nil {
		return err
	}
	return f.Commit()
}

func Fail(err error) error {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(70)
	}
	return err
}
