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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/croessner/authprobe/server/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type staticRoute struct {
	path string
	body string
}

func (s staticRoute) Register(router gin.IRouter) {
	router.GET(s.path, func(ctx *gin.Context) {
		ctx.String(http.StatusOK, s.body)
	})
}

func serve(engine *gin.Engine, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	return rec
}

func TestRouterBuilder(t *testing.T) {
	var order []string

	engine := NewRouter(config.Default()).
		WithMiddlewares(
			func(ctx *gin.Context) { order = append(order, "first"); ctx.Next() },
			func(ctx *gin.Context) { order = append(order, "second"); ctx.Next() },
		).
		WithHandlers(staticRoute{path: "/plain", body: "plain"}).
		WithCompressedHandlers(staticRoute{path: "/packed", body: "packed"}).
		WithPprof().
		Build()

	rec := serve(engine, "/plain", map[string]string{"Accept-Encoding": "gzip"})
	assert.Equal(t, "plain", rec.Body.String())
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Equal(t, []string{"first", "second"}, order)

	rec = serve(engine, "/packed", map[string]string{"Accept-Encoding": "gzip"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

	assert.Equal(t, http.StatusNotFound, serve(engine, "/debug/pprof/", nil).Code)
}

func TestRouterPprof(t *testing.T) {
	cfg := config.Default()
	cfg.Pprof = true

	engine := NewRouter(cfg).WithPprof().Build()

	assert.Equal(t, http.StatusOK, serve(engine, "/debug/pprof/", nil).Code)
}
