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

// Package clientip resolves the originating client of a request. The target trusts X-Forwarded-For unconditionally
// so that a load generator can present many origins from one host.
package clientip

import (
	"strings"

	"github.com/croessner/authprobe/server/definitions"
	"github.com/gin-gonic/gin"
)

const ctxKey = "authprobe.client_ip"

// Resolve returns the first X-Forwarded-For entry or, without one, the remote address.
func Resolve(ctx *gin.Context) string {
	if v, ok := ctx.Get(ctxKey); ok {
		return v.(string)
	}

	return fromRequest(ctx)
}

func fromRequest(ctx *gin.Context) string {
	if xff := ctx.GetHeader(definitions.HeaderForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	return ctx.RemoteIP()
}

// Middleware resolves the client IP once per request.
func Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Set(ctxKey, fromRequest(ctx))
		ctx.Next()
	}
}
