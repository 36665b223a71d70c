// Package scenario composes the dispatcher, the metrics parser and the latency recorder into named pass/fail checks.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/croessner/authprobe/client/engine"
	"github.com/croessner/authprobe/client/expo"
	"github.com/croessner/authprobe/client/report"
	"github.com/croessner/authprobe/server/definitions"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

var ErrUnknownScenario = errors.New("unknown scenario")

// Verdict is what a scenario procedure concludes. The runner turns it into a report.TestResult.
type Verdict struct {
	Success bool
	Details string
	Metrics expo.Snapshot
}

func pass(format string, args ...any) Verdict {
	return Verdict{Success: true, Details: fmt.Sprintf(format, args...)}
}

func fail(format string, args ...any) Verdict {
	return Verdict{Details: fmt.Sprintf(format, args...)}
}

type procedure func(ctx context.Context, r *Runner) Verdict

type entry struct {
	title string
	run   procedure
}

var catalog = map[string]entry{
	"jwks":      {title: "JWKS Load", run: runJWKS},
	"hash":      {title: "Hash Concurrency Limit", run: runHash},
	"replay":    {title: "Refresh Token Replay Detection", run: runReplay},
	"ratelimit": {title: "Login Rate Limit", run: runRateLimit},
	"metrics":   {title: "Metrics Endpoint", run: runMetrics},
	"latency":   {title: "Login Latency", run: runLatency},
	"token":     {title: "Access Token Verification", run: runToken},
}

// Title returns the display name of a scenario.
func Title(name string) string {
	if e, ok := catalog[name]; ok {
		return e.title
	}

	return name
}

// Runner executes scenarios one at a time against the configured target.
type Runner struct {
	cfg        *engine.Config
	dispatcher *engine.Dispatcher
	fetcher    *expo.Fetcher
	logger     log.Logger
}

func NewRunner(cfg *engine.Config, dispatcher *engine.Dispatcher, fetcher *expo.Fetcher, logger log.Logger) *Runner {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &Runner{cfg: cfg, dispatcher: dispatcher, fetcher: fetcher, logger: logger}
}

// RunAll runs the configured scenarios in order and adds every result to agg. It only fails when the scenario list
// names something unknown, in which case nothing runs.
func (r *Runner) RunAll(ctx context.Context, agg *report.Aggregator) error {
	for _, name := range r.cfg.Scenarios {
		if _, ok := catalog[name]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownScenario, name)
		}
	}

	for _, name := range r.cfg.Scenarios {
		agg.Add(r.Run(ctx, name))
	}

	return nil
}

// Run executes one scenario under the scenario deadline. Panics become a failed result.
func (r *Runner) Run(ctx context.Context, name string) (result report.TestResult) {
	e, ok := catalog[name]
	if !ok {
		return report.Fail(name, 0, ErrUnknownScenario.Error())
	}

	logger := log.With(r.logger, definitions.LogKeyScenario, name)
	start := time.Now()

	level.Info(logger).Log(definitions.LogKeyMsg, "Scenario started")

	defer func() {
		if rec := recover(); rec != nil {
			level.Error(logger).Log(definitions.LogKeyMsg, "Scenario panicked", definitions.LogKeyError, rec, "stack", string(debug.Stack()))

			result = report.Fail(e.title, time.Since(start), fmt.Sprintf("panic: %v", rec))
		}

		level.Info(logger).Log(
			definitions.LogKeyMsg, "Scenario finished",
			"success", result.Success,
			definitions.LogKeyLatency, result.Duration,
		)
	}()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.ScenarioDeadline)
	defer cancel()

	verdict := e.run(ctx, r)

	if ctx.Err() != nil && !verdict.Success {
		verdict.Details += fmt.Sprintf(" (scenario deadline %s exceeded)", r.cfg.ScenarioDeadline)
	}

	result = report.Fail(e.title, time.Since(start), verdict.Details)
	if verdict.Success {
		result = report.Pass(e.title, time.Since(start), verdict.Details)
	}

	if verdict.Metrics != nil {
		result = result.WithMetrics(verdict.Metrics)
	}

	return result
}

func (r *Runner) tenant() string {
	if r.cfg.TenantID != "" {
		return r.cfg.TenantID
	}

	return engine.NewTenantID()
}

func (r *Runner) timeout() time.Duration {
	return r.cfg.Timeout
}

// snapshot fetches the metrics endpoint. Failures are logged and yield an empty snapshot.
func (r *Runner) snapshot(ctx context.Context) (expo.Snapshot, error) {
	snap, err := r.fetcher.Fetch(ctx, r.cfg.MetricsURL())
	if err != nil {
		level.Debug(r.logger).Log(definitions.LogKeyMsg, "Metrics snapshot failed", definitions.LogKeyURL, r.cfg.MetricsURL(), definitions.LogKeyError, err)

		return nil, err
	}

	return snap, nil
}

// enroll registers and logs in a fresh identity and returns it with the login outcome.
func (r *Runner) enroll(ctx context.Context, prefix string, origin engine.Origin) (engine.Identity, engine.RequestOutcome, error) {
	ident := engine.NewIdentity(r.tenant(), prefix, r.cfg.Password)

	reg := r.dispatcher.Do(ctx, engine.RegisterSpec(prefix+"-register", ident, origin), r.timeout())
	if !reg.OK() {
		return ident, reg, fmt.Errorf("register returned %s", describe(reg))
	}

	login := r.dispatcher.Do(ctx, engine.LoginSpec(prefix+"-login", ident, origin), r.timeout())
	if !login.OK() {
		return ident, login, fmt.Errorf("login returned %s", describe(login))
	}

	return ident, login, nil
}

// describe renders an outcome for details strings: the status or the failure class.
func describe(o engine.RequestOutcome) string {
	if o.Err != nil {
		return o.Err.Error()
	}

	return fmt.Sprintf("%d", o.Status)
}
