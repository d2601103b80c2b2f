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

package config

import (
	"os"
	"path/filepath"
)

// DefaultDir returns the per-user configuration directory
func DefaultDir() string {
	if profile := os.Getenv("USERPROFILE"); profile != "" {
		// windows
		return filepath.Join(profile, "xmlsec")
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".config", "xmlsec")
	}
	return ""
}

// DefaultConfig returns the configuration file to use when none was given on
// the command line. XMLSEC_CONFIG takes precedence over the per-user file.
func DefaultConfig() string {
	if env := os.Getenv("XMLSEC_CONFIG"); env != "" {
		return env
	}
	dir := DefaultDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "xmlsec.yml")
}
