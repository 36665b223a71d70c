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

package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/croessner/authprobe/server/config"
	"github.com/croessner/authprobe/server/definitions"
	svrlog "github.com/croessner/authprobe/server/log"
	"github.com/croessner/authprobe/server/monitoring"
	"github.com/croessner/authprobe/server/store"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pires/go-proxyproto"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"golang.org/x/net/netutil"
)

const shutdownTimeout = 10 * time.Second

// Version is reported as the service version in traces. The main package overrides it at startup.
var Version = "dev"

// Events is the logger for security and overload events. It may tee into a dedicated file.
type Events struct {
	log.Logger
}

// Module provides the complete target: logging, refresh store, HTTP engine and background loops.
func Module(cfg *config.Config) fx.Option {
	return fx.Module("authtarget",
		fx.Supply(cfg),
		fx.Provide(
			NewLogger,
			NewEvents,
			NewRefreshStore,
			func(cfg *config.Config, logger log.Logger, events Events, refresh store.RefreshStore) (*Target, error) {
				return NewTarget(cfg, logger, events.Logger, refresh)
			},
			NewHostService,
		),
		fx.Invoke(RegisterTracing, RegisterHTTPServer, func(lc fx.Lifecycle, svc *HostService) {
			lc.Append(fx.Hook{OnStart: svc.Start, OnStop: svc.Stop})
		}),
	)
}

func NewLogger(cfg *config.Config) (log.Logger, error) {
	return svrlog.New(os.Stdout, cfg.Log.Level, cfg.Log.JSON, cfg.Log.Color, cfg.Instance)
}

func NewEvents(lc fx.Lifecycle, cfg *config.Config, logger log.Logger) (Events, error) {
	events, closer, err := svrlog.NewEventLogger(logger, cfg.Log.EventFile)
	if err != nil {
		return Events{}, err
	}

	lc.Append(fx.StopHook(closer.Close))

	return Events{Logger: events}, nil
}

// NewRefreshStore selects the refresh token backend. The redis client is pinged on start.
func NewRefreshStore(lc fx.Lifecycle, cfg *config.Config, logger log.Logger) store.RefreshStore {
	if cfg.RefreshStore != "redis" {
		return store.NewMemoryRefreshStore(cfg.Token.RefreshTTL)
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Redis.Address},
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return err
			}

			level.Info(logger).Log(definitions.LogKeyMsg, "Redis refresh store connected", "address", cfg.Redis.Address)

			return nil
		},
		OnStop: func(context.Context) error {
			return rdb.Close()
		},
	})

	if cfg.Tracing.Enabled {
		if err := redisotel.InstrumentTracing(rdb); err != nil {
			level.Warn(logger).Log(definitions.LogKeyMsg, "Redis tracing unavailable", definitions.LogKeyError, err)
		}
	}

	return store.NewRedisRefreshStore(rdb, cfg.Redis.Prefix, cfg.Token.RefreshTTL)
}

// TracingConfig maps the tracing section onto the shared telemetry settings.
func TracingConfig(cfg *config.Config) monitoring.Config {
	return monitoring.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRatio: cfg.Tracing.SampleRatio,
		Propagators: cfg.Tracing.Propagators,
	}
}

// RegisterTracing installs the tracer provider before the listener opens and flushes it on stop.
func RegisterTracing(lc fx.Lifecycle, cfg *config.Config, logger log.Logger) {
	tel := monitoring.New(logger)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return tel.Start(ctx, TracingConfig(cfg), Version, cfg.Instance)
		},
		OnStop: tel.Shutdown,
	})
}

// RegisterHTTPServer binds the listener on start so address errors abort startup.
func RegisterHTTPServer(lc fx.Lifecycle, cfg *config.Config, target *Target, logger log.Logger, shutdowner fx.Shutdowner) {
	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           target.Engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", cfg.Address)
			if err != nil {
				return err
			}

			ln = WrapListener(ln, cfg)

			level.Info(logger).Log(
				definitions.LogKeyMsg, "Listening",
				"address", ln.Addr().String(),
				"proxy_protocol", cfg.ProxyProtocol,
				"max_connections", cfg.MaxConnections,
			)

			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					level.Error(logger).Log(definitions.LogKeyMsg, "HTTP server failed", definitions.LogKeyError, err)

					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			return srv.Shutdown(stopCtx)
		},
	})
}

// WrapListener applies the PROXY protocol decoder and the connection cap. The cap sits outermost so
// connections still waiting for a PROXY header count against it.
func WrapListener(ln net.Listener, cfg *config.Config) net.Listener {
	if cfg.ProxyProtocol {
		ln = &proxyproto.Listener{
			Listener:          ln,
			ReadHeaderTimeout: 5 * time.Second,
			ConnPolicy: func(proxyproto.ConnPolicyOptions) (proxyproto.Policy, error) {
				return proxyproto.REQUIRE, nil
			},
		}
	}

	if cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConnections)
	}

	return ln
}
