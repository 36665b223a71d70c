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

package jwks

import (
	"net/http"

	"github.com/croessner/authprobe/server/definitions"
	"github.com/croessner/authprobe/server/signing"
	"github.com/gin-gonic/gin"
)

// Handler publishes the token verification keys.
type Handler struct {
	signer *signing.Signer
}

func New(signer *signing.Signer) *Handler {
	return &Handler{signer: signer}
}

func (h *Handler) Register(router gin.IRouter) {
	router.GET(definitions.PathJWKS, func(ctx *gin.Context) {
		ctx.Header("Cache-Control", "public, max-age=300")
		ctx.JSON(http.StatusOK, h.signer.JWKS())
	})
}
