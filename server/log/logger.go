// Copyright (C) 2024 Christian Rößner
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

package log

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/croessner/authprobe/server/definitions"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/go-kit/log/term"
)

// ErrWrongLogLevel is returned for a log level that is not one of none, error, warn, info or debug.
var ErrWrongLogLevel = errors.New("wrong log level")

var (
	mu sync.Mutex

	// Logger is used for all messages that are printed to stdout
	Logger = log.NewNopLogger()
)

// SetupLogging initializes the global "Logger" object.
func SetupLogging(logLevel string, formatJSON bool, useColor bool, instance string) error {
	logger, err := New(os.Stdout, logLevel, formatJSON, useColor, instance)
	if err != nil {
		return err
	}

	mu.Lock()

	defer mu.Unlock()

	Logger = logger

	return nil
}

// New builds a leveled go-kit logger writing to w. Color is only applied when requested; callers decide whether
// w is a terminal.
func New(w io.Writer, logLevel string, formatJSON bool, useColor bool, instance string) (log.Logger, error) {
	var logger log.Logger

	option, err := ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}

	newLogger := log.NewLogfmtLogger
	if formatJSON {
		newLogger = log.NewJSONLogger
	}

	if useColor {
		logger = term.NewLogger(w, newLogger, colorFn)
	} else {
		logger = newLogger(log.NewSyncWriter(w))
	}

	logger = level.NewFilter(logger, option)
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	if instance != "" {
		logger = log.With(logger, definitions.LogKeyInstance, instance)
	}

	return logger, nil
}

// ParseLevel maps a configured level name to a go-kit filter option.
func ParseLevel(logLevel string) (level.Option, error) {
	switch logLevel {
	case definitions.LogLevelNone:
		return level.AllowNone(), nil
	case definitions.LogLevelError:
		return level.AllowError(), nil
	case definitions.LogLevelWarn:
		return level.AllowWarn(), nil
	case definitions.LogLevelInfo, "":
		return level.AllowInfo(), nil
	case definitions.LogLevelDebug:
		return level.AllowDebug(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrWrongLogLevel, logLevel)
	}
}

func colorFn(keyvals ...any) term.FgBgColor {
	for i := 0; i < len(keyvals)-1; i += 2 {
		if keyvals[i] != level.Key() {
			continue
		}

		switch keyvals[i+1] {
		case level.DebugValue():
			return term.FgBgColor{Fg: term.DarkBlue}
		case level.InfoValue():
			return term.FgBgColor{Fg: term.Default}
		case level.WarnValue():
			return term.FgBgColor{Fg: term.Yellow}
		case level.ErrorValue():
			return term.FgBgColor{Fg: term.Red}
		default:
			return term.FgBgColor{}
		}
	}

	return term.FgBgColor{}
}
