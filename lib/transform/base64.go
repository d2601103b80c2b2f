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
	"encoding/base64"
	"errors"
	"io"
)

const (
	base64Name   = "base64"
	base64Window = 2048
)

// Base64Decoder decodes a base64 octet stream, ignoring whitespace. Input is
// consumed in fixed windows so arbitrarily large payloads stream through.
type Base64Decoder struct {
	src    io.Reader
	window [base64Window]byte
	in     []byte
	out    []byte
	eof    bool
	padded bool
	err    error
}

// NewBase64Decoder returns a base64 decoding stage
func NewBase64Decoder() *Base64Decoder {
	return &Base64Decoder{}
}

func (d *Base64Decoder) Name() string       { return base64Name }
func (d *Base64Decoder) InputKind() Kind    { return Octets }
func (d *Base64Decoder) OutputKind() Kind   { return Octets }
func (d *Base64Decoder) NodeType() NodeType { return WholeDocument }

func (d *Base64Decoder) connect(upstream interface{}) (err error) {
	d.src, err = octetUpstream(upstream)
	return
}

func (d *Base64Decoder) Read(p []byte) (int, error) {
	for len(d.out) == 0 {
		if d.err != nil {
			return 0, d.err
		}
		if d.eof {
			if len(d.in) != 0 {
				d.err = wrapErr(base64Name, errors.New("truncated base64 input"))
				return 0, d.err
			}
			return 0, io.EOF
		}
		if err := d.fill(); err != nil {
			d.err = wrapErr(base64Name, err)
			return 0, d.err
		}
	}
	n := copy(p, d.out)
	d.out = d.out[n:]
	return n, nil
}

// fill reads one window and decodes every complete quantum in it
func (d *Base64Decoder) fill() error {
	if d.src == nil {
		return errors.New("base64 decoder is not connected")
	}
	n, err := d.src.Read(d.window[:])
	for _, c := range d.window[:n] {
		switch c {
		case ' ', '\t', '\r', '\n':
		default:
			d.in = append(d.in, c)
		}
	}
	if err == io.EOF {
		d.eof = true
	} else if err != nil {
		return err
	}
	q := len(d.in) / 4 * 4
	if q == 0 {
		return nil
	}
	if d.padded {
		return errors.New("base64 data after padding")
	}
	buf := make([]byte, q/4*3)
	m, err := base64.StdEncoding.Decode(buf, d.in[:q])
	if err != nil {
		return err
	}
	d.padded = d.in[q-1] == '='
	d.out = buf[:m]
	d.in = append(d.in[:0], d.in[q:]...)
	return nil
}
