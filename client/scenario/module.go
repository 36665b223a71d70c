package scenario

import (
	"github.com/croessner/authprobe/client/expo"

	"go.uber.org/fx"
)

// Module provides the metrics fetcher and the scenario runner.
var Module = fx.Module("scenario",
	fx.Provide(
		expo.NewFetcher,
		NewRunner,
	),
)
