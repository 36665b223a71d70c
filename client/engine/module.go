package engine

import (
	"github.com/go-kit/log"
	"go.uber.org/fx"
)

// Module provides the fx module for the client engine.
var Module = fx.Module("engine",
	fx.Provide(
		NewDoer,
		NewAuthClient,
		NewPacerFromConfig,
		NewDispatcherFromConfig,
	),
)

// NewDoer provides the HTTP primitive sized for the configured concurrency.
func NewDoer(cfg *Config) Doer {
	return NewHTTPClient(cfg)
}

// NewPacerFromConfig provides an optional Pacer based on the configuration.
func NewPacerFromConfig(cfg *Config) *Pacer {
	return NewPacer(cfg.RPS)
}

func NewDispatcherFromConfig(client *AuthClient, pacer *Pacer, logger log.Logger) *Dispatcher {
	return NewDispatcher(client, pacer, logger)
}
