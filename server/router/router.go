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

package router

import (
	"github.com/croessner/authprobe/server/config"
	"github.com/croessner/authprobe/server/definitions"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Registrar attaches a group of routes to a router.
type Registrar interface {
	Register(router gin.IRouter)
}

// Router is a small builder around gin.Engine to assemble middlewares and routes
// without leaking handler logic into this package.
type Router struct {
	Engine *gin.Engine
	Cfg    *config.Config
}

// NewRouter creates a new Router builder with a fresh gin.Engine.
func NewRouter(cfg *config.Config) *Router {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.ContextWithFallback = true

	return &Router{Engine: engine, Cfg: cfg}
}

// WithMiddlewares appends global middlewares in order.
func (r *Router) WithMiddlewares(middlewares ...gin.HandlerFunc) *Router {
	r.Engine.Use(middlewares...)

	return r
}

// WithTracing starts a server span per request when tracing is enabled.
func (r *Router) WithTracing() *Router {
	if r.Cfg != nil && r.Cfg.Tracing.Enabled {
		r.Engine.Use(otelgin.Middleware(r.Cfg.Tracing.ServiceName))
	}

	return r
}

// WithHandlers registers route groups on the root router.
func (r *Router) WithHandlers(handlers ...Registrar) *Router {
	for _, h := range handlers {
		h.Register(r.Engine)
	}

	return r
}

// WithCompressedHandlers registers route groups behind gzip. The metrics endpoint negotiates its own encoding.
func (r *Router) WithCompressedHandlers(handlers ...Registrar) *Router {
	group := r.Engine.Group("/", gzip.Gzip(gzip.DefaultCompression))

	for _, h := range handlers {
		h.Register(group)
	}

	return r
}

// WithPprof exposes runtime profiles when enabled in the configuration.
func (r *Router) WithPprof() *Router {
	if r.Cfg != nil && r.Cfg.Pprof {
		pprof.Register(r.Engine, definitions.PathPprof)
	}

	return r
}

// Build returns the underlying gin.Engine.
func (r *Router) Build() *gin.Engine {
	return r.Engine
}
