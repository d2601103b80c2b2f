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

package x509tools

import (
	"errors"
	"math/big"
)

// EcdsaSignature is the (r, s) pair shared by DSA and ECDSA signatures
type EcdsaSignature struct {
	R, S *big.Int
}

// UnpackEcdsaSignature splits a fixed width r || s signature in half
func UnpackEcdsaSignature(packed []byte) (sig EcdsaSignature, err error) {
	if len(packed) == 0 || len(packed)%2 != 0 {
		return sig, errors.New("invalid packed signature length")
	}
	n := len(packed) / 2
	sig.R = new(big.Int).SetBytes(packed[:n])
	sig.S = new(big.Int).SetBytes(packed[n:])
	return sig, nil
}

// PackTo returns r || s with each half padded to size bytes, as XML
// signatures require for a given curve or subgroup order
func (sig EcdsaSignature) PackTo(size int) []byte {
	packed := make([]byte, 2*size)
	sig.R.FillBytes(packed[:size])
	sig.S.FillBytes(packed[size:])
	return packed
}
