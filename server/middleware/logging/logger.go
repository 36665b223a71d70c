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

package logging

import (
	"time"

	"github.com/croessner/authprobe/server/definitions"
	"github.com/croessner/authprobe/server/middleware/clientip"
	"github.com/gin-gonic/gin"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// LoggerMiddleware writes one access log line per request. Under load the lines are only emitted at debug level;
// server errors are always logged.
func LoggerMiddleware(logger log.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		ctx.Next()

		logWrapper := level.Debug
		if ctx.Writer.Status() >= 500 && ctx.Writer.Status() != 503 {
			logWrapper = level.Error
		}

		logWrapper(logger).Log(
			definitions.LogKeyMsg, "request",
			definitions.LogKeyMethod, ctx.Request.Method,
			definitions.LogKeyPath, ctx.Request.URL.Path,
			definitions.LogKeyStatus, ctx.Writer.Status(),
			definitions.LogKeyClientIP, clientip.Resolve(ctx),
			definitions.LogKeyUserAgent, ctx.Request.UserAgent(),
			definitions.LogKeyLatency, time.Since(start),
		)
	}
}
