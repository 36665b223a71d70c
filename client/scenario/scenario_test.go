package scenario

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/croessner/authprobe/client/engine"
	"github.com/croessner/authprobe/client/expo"
	"github.com/croessner/authprobe/client/report"
	"github.com/croessner/authprobe/server/app"
	"github.com/croessner/authprobe/server/config"
	svrlog "github.com/croessner/authprobe/server/log"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTarget(t *testing.T, mutate func(*config.Config)) *httptest.Server {
	t.Helper()

	cfg := config.Default()
	cfg.Token.KeyBits = 1024
	cfg.Argon2.Memory = 64
	cfg.StatsInterval = 0

	if mutate != nil {
		mutate(cfg)
	}

	events, closer, err := svrlog.NewEventLogger(log.NewNopLogger(), cfg.Log.EventFile)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer.Close() })

	target, err := app.NewTarget(cfg, log.NewNopLogger(), events, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(target.Engine)
	t.Cleanup(srv.Close)

	return srv
}

func newRunner(t *testing.T, baseURL string, mutate func(*engine.Config)) *Runner {
	t.Helper()

	cfg := engine.DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.Timeout = 5 * time.Second
	cfg.ScenarioDeadline = 30 * time.Second
	cfg.JWKS.Requests = 20
	cfg.Hash.Requests = 10
	cfg.RateLimit.Delay = 10 * time.Millisecond
	cfg.Latency.Requests = 5
	cfg.Latency.Delay = 0

	if mutate != nil {
		mutate(cfg)
	}

	doer := engine.NewHTTPClient(cfg)

	client, err := engine.NewAuthClient(cfg, doer)
	require.NoError(t, err)

	return NewRunner(cfg, engine.NewDispatcher(client, nil, nil), expo.NewFetcher(doer), nil)
}

func TestJWKSScenario(t *testing.T) {
	srv := startTarget(t, nil)
	res := newRunner(t, srv.URL, nil).Run(context.Background(), "jwks")

	assert.True(t, res.Success, res.Details)
	assert.Equal(t, "JWKS Load", res.Name)
	assert.Contains(t, res.Details, "20/20 valid JWKS responses")
}

func TestHashScenario(t *testing.T) {
	t.Run("saturated pool passes", func(t *testing.T) {
		srv := startTarget(t, func(c *config.Config) {
			c.HashLimit = 2
			c.HashCost = 300 * time.Millisecond
		})

		res := newRunner(t, srv.URL, nil).Run(context.Background(), "hash")

		assert.True(t, res.Success, res.Details)
		assert.Contains(t, res.Details, "auth_hash_busy_total +")
		assert.True(t, res.Metrics.HasFamily("auth_hash_busy_total"))
	})

	t.Run("over-limit batch accounts for every request", func(t *testing.T) {
		srv := startTarget(t, func(c *config.Config) {
			c.HashLimit = 50
			c.HashCost = 500 * time.Millisecond
		})

		r := newRunner(t, srv.URL, func(c *engine.Config) {
			c.Hash.Requests = 60
			c.Hash.ServerLimit = 50
			c.Hash.Strict = true
		})

		specs := make([]engine.RequestSpec, 60)
		for i := range specs {
			specs[i] = engine.RegisterSpec(fmt.Sprintf("batch-%d", i), engine.NewIdentity("t-batch", "batch", r.cfg.Password), engine.Origin{})
		}

		tally := engine.TallyOutcomes(r.dispatcher.FanOut(context.Background(), specs, 0, r.timeout()))

		busy := tally.Count(http.StatusServiceUnavailable)
		assert.Equal(t, 60, tally.Count(http.StatusOK)+busy, tally.String())
		assert.LessOrEqual(t, tally.Count(http.StatusOK), 50, tally.String())
		assert.GreaterOrEqual(t, busy, 10, tally.String())

		res := r.Run(context.Background(), "hash")

		assert.True(t, res.Success, res.Details)
		assert.Contains(t, res.Details, "/60 registrations rejected as busy")
	})

	t.Run("no rejection fails", func(t *testing.T) {
		srv := startTarget(t, nil)

		res := newRunner(t, srv.URL, nil).Run(context.Background(), "hash")

		assert.False(t, res.Success)
		assert.Contains(t, res.Details, "no request was rejected as busy")
	})

	t.Run("strict mode demands enough rejections", func(t *testing.T) {
		srv := startTarget(t, func(c *config.Config) {
			c.HashLimit = 5
			c.HashCost = 300 * time.Millisecond
		})

		res := newRunner(t, srv.URL, func(c *engine.Config) {
			c.Hash.Strict = true
			c.Hash.ServerLimit = 2
		}).Run(context.Background(), "hash")

		assert.False(t, res.Success, res.Details)
		assert.Contains(t, res.Details, "expected at least 8 busy rejections")
	})
}

func TestReplayScenario(t *testing.T) {
	t.Run("with event log", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "events.log")
		require.NoError(t, os.WriteFile(path, []byte("{\"event\":\"older\"}\n"), 0o600))

		srv := startTarget(t, func(c *config.Config) { c.Log.EventFile = path })

		res := newRunner(t, srv.URL, func(c *engine.Config) { c.Replay.LogFile = path }).Run(context.Background(), "replay")

		assert.True(t, res.Success, res.Details)
		assert.Contains(t, res.Details, "rejected with 401 and logged")
	})

	t.Run("without event log", func(t *testing.T) {
		srv := startTarget(t, nil)

		res := newRunner(t, srv.URL, func(c *engine.Config) {
			c.Replay.LogFile = filepath.Join(t.TempDir(), "missing.log")
		}).Run(context.Background(), "replay")

		assert.True(t, res.Success, res.Details)
		assert.Contains(t, res.Details, "event log check skipped")
	})

	t.Run("event missing from log", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "other.log")
		require.NoError(t, os.WriteFile(path, nil, 0o600))

		srv := startTarget(t, nil)

		res := newRunner(t, srv.URL, func(c *engine.Config) { c.Replay.LogFile = path }).Run(context.Background(), "replay")

		assert.False(t, res.Success)
		assert.Contains(t, res.Details, "no \"refresh_replay_detected\" event")
	})
}

func TestRateLimitScenario(t *testing.T) {
	t.Run("limited", func(t *testing.T) {
		srv := startTarget(t, nil)

		res := newRunner(t, srv.URL, nil).Run(context.Background(), "ratelimit")

		assert.True(t, res.Success, res.Details)
		assert.Contains(t, res.Details, "first 429 at attempt 6 of 10")
	})

	t.Run("unlimited target fails", func(t *testing.T) {
		srv := startTarget(t, func(c *config.Config) { c.LoginPerMinPerEmail = 0 })

		res := newRunner(t, srv.URL, nil).Run(context.Background(), "ratelimit")

		assert.False(t, res.Success)
		assert.Contains(t, res.Details, "no 429 at or after attempt 6")
	})
}

func TestMetricsScenario(t *testing.T) {
	srv := startTarget(t, nil)

	res := newRunner(t, srv.URL, nil).Run(context.Background(), "metrics")
	assert.True(t, res.Success, res.Details)
	assert.NotEmpty(t, res.Metrics)

	res = newRunner(t, srv.URL, func(c *engine.Config) {
		c.Metrics.Required = []string{"auth_login_total", "no_such_metric", "other_missing_metric"}
		c.Metrics.MinPresent = 2
	}).Run(context.Background(), "metrics")
	assert.False(t, res.Success)
	assert.Contains(t, res.Details, "1/3 required metric families present, missing no_such_metric, other_missing_metric")

	res = newRunner(t, "http://127.0.0.1:1", nil).Run(context.Background(), "metrics")
	assert.False(t, res.Success)
	assert.Contains(t, res.Details, "metrics endpoint unavailable")
}

func TestLatencyScenario(t *testing.T) {
	srv := startTarget(t, func(c *config.Config) { c.LoginPerMinPerEmail = 0 })

	res := newRunner(t, srv.URL, nil).Run(context.Background(), "latency")
	assert.True(t, res.Success, res.Details)
	assert.Contains(t, res.Details, "5 logins; n=5")

	res = newRunner(t, srv.URL, func(c *engine.Config) { c.Latency.MaxP95 = time.Nanosecond }).Run(context.Background(), "latency")
	assert.False(t, res.Success)
	assert.Contains(t, res.Details, "above 1ns")
}

func TestLatencyScenarioConfiguredIdentity(t *testing.T) {
	srv := startTarget(t, func(c *config.Config) { c.LoginPerMinPerEmail = 0 })

	ident := engine.NewIdentity("t-latency", "fixed", "SecurePass123!@#")

	r := newRunner(t, srv.URL, func(c *engine.Config) {
		c.Latency.TenantID = ident.TenantID
		c.Latency.Email = ident.Email
		c.Latency.Password = ident.Password
	})

	reg := r.dispatcher.Do(context.Background(), engine.RegisterSpec("setup", ident, engine.Origin{}), r.timeout())
	require.True(t, reg.OK(), reg.Status)

	res := r.Run(context.Background(), "latency")
	assert.True(t, res.Success, res.Details)
	assert.Contains(t, res.Details, "5 logins; n=5")

	r.cfg.Latency.TenantID = ""
	r.cfg.TenantID = ident.TenantID

	res = r.Run(context.Background(), "latency")
	assert.True(t, res.Success, res.Details)
}

func TestLatencyScenarioToleratesRateLimit(t *testing.T) {
	srv := startTarget(t, nil)

	res := newRunner(t, srv.URL, func(c *engine.Config) { c.Latency.Requests = 10 }).Run(context.Background(), "latency")
	assert.True(t, res.Success, res.Details)
	assert.Contains(t, res.Details, "10 logins, 5 rate limited")
}

func TestTokenScenario(t *testing.T) {
	srv := startTarget(t, nil)

	res := newRunner(t, srv.URL, nil).Run(context.Background(), "token")
	assert.True(t, res.Success, res.Details)

	res = newRunner(t, srv.URL, func(c *engine.Config) { c.Token.Audience = "someone-else" }).Run(context.Background(), "token")
	assert.False(t, res.Success)
	assert.Contains(t, res.Details, "access token rejected")
}

func TestRunAll(t *testing.T) {
	srv := startTarget(t, func(c *config.Config) {
		c.HashLimit = 2
		c.HashCost = 300 * time.Millisecond
	})

	agg := report.NewAggregator()
	runner := newRunner(t, srv.URL, nil)

	require.NoError(t, runner.RunAll(context.Background(), agg))

	results := agg.Results()
	require.Len(t, results, len(engine.DefaultScenarios))

	for i, name := range engine.DefaultScenarios {
		assert.Equal(t, Title(name), results[i].Name)
		assert.True(t, results[i].Success, "%s: %s", results[i].Name, results[i].Details)
	}

	assert.Equal(t, 0, agg.ExitCode())

	var out strings.Builder
	require.NoError(t, agg.Render(&out, report.RenderOptions{Width: 100}))
	assert.Contains(t, out.String(), "5/5 tests passed")
}

func TestRunAllRejectsUnknownScenario(t *testing.T) {
	agg := report.NewAggregator()
	runner := newRunner(t, "http://127.0.0.1:1", func(c *engine.Config) { c.Scenarios = []string{"jwks", "bogus"} })

	err := runner.RunAll(context.Background(), agg)

	assert.ErrorIs(t, err, ErrUnknownScenario)
	assert.Zero(t, agg.Total())
}

func TestRunRecoversPanics(t *testing.T) {
	catalog["boom"] = entry{title: "Boom", run: func(context.Context, *Runner) Verdict { panic("kaboom") }}
	t.Cleanup(func() { delete(catalog, "boom") })

	res := newRunner(t, "http://127.0.0.1:1", nil).Run(context.Background(), "boom")

	assert.False(t, res.Success)
	assert.Equal(t, "Boom", res.Name)
	assert.Equal(t, "panic: kaboom", res.Details)
}

func TestRunHonoursScenarioDeadline(t *testing.T) {
	catalog["stall"] = entry{title: "Stall", run: func(ctx context.Context, _ *Runner) Verdict {
		<-ctx.Done()

		return fail("stalled")
	}}
	t.Cleanup(func() { delete(catalog, "stall") })

	res := newRunner(t, "http://127.0.0.1:1", func(c *engine.Config) {
		c.ScenarioDeadline = 50 * time.Millisecond
	}).Run(context.Background(), "stall")

	assert.False(t, res.Success)
	assert.Contains(t, res.Details, "scenario deadline 50ms exceeded")
	assert.Less(t, res.Duration, 5*time.Second)
}
