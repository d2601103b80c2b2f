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
	"os"

	"github.com/sassoftware/xmlsec/token"
)

// LoadSecret reads a file holding raw key octets into a new HMAC or symmetric
// key on the default provider
func LoadSecret(path string, kind token.KeyKind) (*token.Key, error) {
	secret, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	actx, err := Context()
	if err != nil {
		return nil, err
	}
	key, err := actx.Provider().NewKey(kind)
	if err != nil {
		return nil, err
	}
	if err := key.SetSecret(secret); err != nil {
		key.Close()
		return nil, err
	}
	return key, nil
}
