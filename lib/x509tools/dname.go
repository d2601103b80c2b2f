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
	"fmt"
	"strings"
)

// EncodeDName escapes a distinguished name for use in an X509IssuerName or
// X509SubjectName element. Commas are only escaped when they do not start a
// new attribute, and trailing spaces are written as \20.
func EncodeDName(name string) string {
	body := strings.TrimRight(name, " \t\r\n")
	trailer := name[len(body):]
	var b strings.Builder
	if strings.HasPrefix(body, "#") {
		b.WriteByte('\\')
	}
	for i, c := range body {
		switch {
		case c < 0x20:
			fmt.Fprintf(&b, "\\%02X", c)
		case c == ',':
			if !startsAttribute(body[i+1:]) {
				b.WriteByte('\\')
			}
			b.WriteRune(c)
		case strings.ContainsRune("+\"\\<>;", c):
			b.WriteByte('\\')
			b.WriteRune(c)
		default:
			b.WriteRune(c)
		}
	}
	for _, c := range trailer {
		if c == ' ' {
			b.WriteString("\\20")
		} else {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// an RDN separator is followed by "type=" before any further comma
func startsAttribute(rest string) bool {
	i := strings.IndexAny(rest, ",=")
	return i >= 0 && rest[i] == '='
}

// DecodeDName reverses EncodeDName
func DecodeDName(encoded string) (string, error) {
	var b strings.Builder
	s := encoded
	if strings.HasPrefix(s, "\\#") {
		b.WriteByte('#')
		s = s[2:]
	}
	for len(s) > 0 {
		c := s[0]
		if c != '\\' {
			b.WriteByte(c)
			s = s[1:]
			continue
		}
		if len(s) < 2 {
			return "", errors.New("truncated escape in distinguished name")
		}
		e := s[1]
		switch {
		case e == '0' || e == '1' || e == '2':
			if len(s) < 3 {
				return "", errors.New("truncated escape in distinguished name")
			}
			lo, ok := hexNibble(s[2])
			if !ok || (e == '2' && lo != 0) {
				return "", fmt.Errorf("unexpected escaped character %q in distinguished name", s[:3])
			}
			b.WriteByte((e-'0')<<4 | lo)
			s = s[3:]
		case strings.IndexByte(",+\"\\<>;", e) >= 0:
			b.WriteByte(e)
			s = s[2:]
		default:
			return "", fmt.Errorf("unexpected escaped character %q in distinguished name", s[:2])
		}
	}
	return b.String(), nil
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}
