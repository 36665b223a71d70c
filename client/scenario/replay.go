package scenario

import (
	"context"
	"net/http"
	"time"

	"github.com/croessner/authprobe/client/engine"
	"github.com/croessner/authprobe/server/definitions"

	"github.com/go-kit/log/level"
)

const eventLogWait = 2 * time.Second

func runReplay(ctx context.Context, r *Runner) Verdict {
	cfg := r.cfg.Replay
	primary := engine.Origin{IP: cfg.PrimaryIP, UserAgent: cfg.PrimaryAgent}
	attacker := engine.Origin{IP: cfg.ReplayIP, UserAgent: cfg.ReplayAgent}

	ident, login, err := r.enroll(ctx, "replay", primary)
	if err != nil {
		return fail("setup failed: %v", err)
	}

	token := login.StringField("refresh_token")
	if token == "" {
		return fail("login response carried no refresh_token")
	}

	var events *eventLog

	if cfg.LogFile != "" {
		if events, err = openEventLog(cfg.LogFile); err != nil {
			level.Warn(r.logger).Log(
				definitions.LogKeyMsg, "Event log unreadable, skipping log check",
				definitions.LogKeyScenario, "replay",
				definitions.LogKeyError, err,
			)
		}
	}

	first := r.dispatcher.Do(ctx, engine.RefreshSpec("replay-rotate", ident.TenantID, token, primary), r.timeout())
	if !first.OK() {
		return fail("legitimate refresh returned %s, expected 2xx", describe(first))
	}

	replayed := r.dispatcher.Do(ctx, engine.RefreshSpec("replay-reuse", ident.TenantID, token, attacker), r.timeout())
	if replayed.Status != http.StatusUnauthorized {
		return fail("reused refresh token returned %s, expected 401", describe(replayed))
	}

	if events == nil {
		return pass("rotation %d, reuse from %s rejected with 401 (event log check skipped)", first.Status, cfg.ReplayIP)
	}

	waitCtx, cancel := context.WithTimeout(ctx, eventLogWait)
	defer cancel()

	if _, found := events.await(waitCtx, 100*time.Millisecond, cfg.EventMarker, cfg.ReplayIP, cfg.ReplayAgent); !found {
		return fail("reuse rejected with 401 but no %q event for %s (%s) in %s", cfg.EventMarker, cfg.ReplayIP, cfg.ReplayAgent, cfg.LogFile)
	}

	return pass("rotation %d, reuse from %s rejected with 401 and logged", first.Status, cfg.ReplayIP)
}
