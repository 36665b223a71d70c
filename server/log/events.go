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
	"io"
	"os"

	"github.com/go-kit/log"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewEventLogger returns the logger for security events. Every event goes to base; when path is set it is also
// appended to path as one JSON object per line, which is what external tooling tails.
func NewEventLogger(base log.Logger, path string) (log.Logger, io.Closer, error) {
	if path == "" {
		return base, nopCloser{}, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, nil, err
	}

	file := log.NewJSONLogger(log.NewSyncWriter(f))
	file = log.With(file, "ts", log.DefaultTimestampUTC)

	return Tee(base, file), f, nil
}

// Tee fans every record out to all loggers and joins their errors.
func Tee(loggers ...log.Logger) log.Logger {
	return log.LoggerFunc(func(keyvals ...any) error {
		var errs []error

		for _, l := range loggers {
			if err := l.Log(keyvals...); err != nil {
				errs = append(errs, err)
			}
		}

		return errors.Join(errs...)
	})
}
