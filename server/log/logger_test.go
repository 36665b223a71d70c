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
	"bytes"
	"strings"
	"testing"

	"github.com/croessner/authprobe/server/definitions"
	"github.com/go-kit/log/level"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		logLevel   string
		formatJSON bool
		want       []string
		notWant    []string
	}{
		{
			name:     "Info logfmt drops debug",
			logLevel: definitions.LogLevelInfo,
			want:     []string{"msg=info", "msg=warn", "msg=error"},
			notWant:  []string{"msg=debug"},
		},
		{
			name:     "Error logfmt",
			logLevel: definitions.LogLevelError,
			want:     []string{"msg=error"},
			notWant:  []string{"msg=info", "msg=warn"},
		},
		{
			name:       "Debug JSON",
			logLevel:   definitions.LogLevelDebug,
			formatJSON: true,
			want:       []string{"\"msg\":\"debug\"", "\"msg\":\"error\""},
		},
		{
			name:     "None",
			logLevel: definitions.LogLevelNone,
			notWant:  []string{"msg="},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}

			logger, err := New(buf, tt.logLevel, tt.formatJSON, false, "test")
			require.NoError(t, err)

			level.Debug(logger).Log(definitions.LogKeyMsg, "debug")
			level.Info(logger).Log(definitions.LogKeyMsg, "info")
			level.Warn(logger).Log(definitions.LogKeyMsg, "warn")
			level.Error(logger).Log(definitions.LogKeyMsg, "error")

			out := buf.String()
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}

			for _, nw := range tt.notWant {
				assert.NotContains(t, out, nw)
			}
		})
	}
}

func TestNewInstanceKey(t *testing.T) {
	buf := &bytes.Buffer{}

	logger, err := New(buf, definitions.LogLevelInfo, false, false, "probe-1")
	require.NoError(t, err)

	level.Info(logger).Log(definitions.LogKeyMsg, "hello")

	assert.True(t, strings.Contains(buf.String(), "instance=probe-1"))
}

func TestParseLevelRejectsUnknown(t *testing.T) {
	_, err := ParseLevel("verbose")

	assert.ErrorIs(t, err, ErrWrongLogLevel)
}

func TestSetupLogging(t *testing.T) {
	require.NoError(t, SetupLogging(definitions.LogLevelWarn, true, false, "global"))
	assert.NotNil(t, Logger)

	assert.Error(t, SetupLogging("loud", false, false, ""))
}
