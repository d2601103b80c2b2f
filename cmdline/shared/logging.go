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
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// setupLogging applies --debug and the logging section of the configuration.
// A configuration that fails to load is reported later by the commands that
// need it.
func setupLogging() error {
	level := zerolog.InfoLevel
	pretty := term.IsTerminal(int(os.Stderr.Fd()))
	if err := InitConfig(); err == nil && CurrentConfig.Logging != nil {
		parsed, err := zerolog.ParseLevel(CurrentConfig.Logging.Level)
		if err != nil {
			return err
		}
		level = parsed
		pretty = pretty || CurrentConfig.Logging.Pretty
	}
	if argDebug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return nil
}
