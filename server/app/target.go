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

// Package app assembles the reference target and manages its lifecycle.
package app

import (
	"fmt"

	"github.com/croessner/authprobe/server/config"
	"github.com/croessner/authprobe/server/handler/auth"
	"github.com/croessner/authprobe/server/handler/health"
	"github.com/croessner/authprobe/server/handler/jwks"
	"github.com/croessner/authprobe/server/handler/metrics"
	"github.com/croessner/authprobe/server/limit"
	"github.com/croessner/authprobe/server/middleware/clientip"
	"github.com/croessner/authprobe/server/middleware/logging"
	mdprom "github.com/croessner/authprobe/server/middleware/metrics"
	"github.com/croessner/authprobe/server/router"
	"github.com/croessner/authprobe/server/signing"
	"github.com/croessner/authprobe/server/stats"
	"github.com/croessner/authprobe/server/store"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log"
)

// Target bundles the HTTP engine with the state tests and the lifecycle need to reach.
type Target struct {
	Engine  *gin.Engine
	Metrics *stats.Metrics
	Signer  *signing.Signer
}

// NewTarget wires every handler of the target. A nil refresh store selects the in-memory one.
func NewTarget(cfg *config.Config, logger, events log.Logger, refresh store.RefreshStore) (*Target, error) {
	signer, err := signing.NewSigner(cfg.Token.KeyBits, cfg.Token.Issuer, cfg.Token.Audience, cfg.Token.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("token signer: %w", err)
	}

	if refresh == nil {
		refresh = store.NewMemoryRefreshStore(cfg.Token.RefreshTTL)
	}

	m := stats.New()

	credentials := store.NewCredentials(store.Argon2Params{
		Time:    cfg.Argon2.Time,
		Memory:  cfg.Argon2.Memory,
		Threads: cfg.Argon2.Threads,
		KeyLen:  cfg.Argon2.KeyLen,
	})

	authHandler := auth.New(auth.Deps{
		Logger:        logger,
		Events:        events,
		Metrics:       m,
		Credentials:   credentials,
		Refresh:       refresh,
		Signer:        signer,
		Hash:          limit.NewHashLimiter(cfg.HashLimit, cfg.HashAcquireTimeout, m.HashInFlight),
		HashCost:      cfg.HashCost,
		RegisterLimit: limit.PerMinute(cfg.RegisterPerMinPerEmail),
		LoginLimit:    limit.PerMinute(cfg.LoginPerMinPerEmail),
		RefreshLimit:  limit.PerMinute(cfg.RefreshPerMinPerToken),
	})

	ipLimit := limit.PerMinute(cfg.IPPerMinute)

	engine := router.NewRouter(cfg).
		WithMiddlewares(gin.Recovery()).
		WithTracing().
		WithMiddlewares(
			clientip.Middleware(),
			mdprom.PrometheusMiddleware(m),
			logging.LoggerMiddleware(logger),
			ipLimit.Middleware(clientip.Resolve, func(scope string) {
				m.RateLimitedTotal.WithLabelValues(scope).Inc()
			}),
		).
		WithHandlers(health.New(), metrics.New(m), authHandler).
		WithCompressedHandlers(jwks.New(signer)).
		WithPprof().
		Build()

	return &Target{Engine: engine, Metrics: m, Signer: signer}, nil
}
