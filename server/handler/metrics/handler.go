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

package metrics

import (
	"github.com/croessner/authprobe/server/definitions"
	"github.com/croessner/authprobe/server/stats"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler exposes the target's registry in the text exposition format.
type Handler struct {
	metrics *stats.Metrics
}

func New(metrics *stats.Metrics) *Handler {
	return &Handler{metrics: metrics}
}

func (h *Handler) Register(router gin.IRouter) {
	handler := promhttp.HandlerFor(h.metrics.Registry, promhttp.HandlerOpts{Registry: h.metrics.Registry})

	router.GET(definitions.PathMetrics, gin.WrapH(handler))
}
