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

package transform

import (
	"io"

	"github.com/sassoftware/xmlsec/token"
)

// Digest drains src into a provider digest context and returns the digest.
// The context is only finalized when the whole input was read successfully.
func Digest(src io.Reader, dc token.DigestContext) ([]byte, error) {
	if _, err := io.Copy(dc, src); err != nil {
		return nil, err
	}
	if c, ok := src.(*Chain); ok && c.Err() != nil {
		return nil, c.Err()
	}
	return dc.Finish()
}
