package scenario

import (
	"context"
	"fmt"
	"net/http"

	"github.com/croessner/authprobe/client/engine"
)

func runLatency(ctx context.Context, r *Runner) Verdict {
	cfg := r.cfg.Latency

	tenant := cfg.TenantID
	if tenant == "" {
		tenant = r.cfg.TenantID
	}

	ident := engine.Identity{TenantID: tenant, Email: cfg.Email, Password: cfg.Password}

	if cfg.Email == "" {
		ident = engine.NewIdentity(r.tenant(), "latency", r.cfg.Password)

		reg := r.dispatcher.Do(ctx, engine.RegisterSpec("latency-register", ident, engine.Origin{}), r.timeout())
		if !reg.OK() {
			return fail("setup failed: register returned %s", describe(reg))
		}
	}

	specs := make([]engine.RequestSpec, cfg.Requests)
	for i := range cfg.Requests {
		specs[i] = engine.LoginSpec(fmt.Sprintf("latency-%d", i), ident, engine.Origin{})
	}

	outcomes := r.dispatcher.Sequential(ctx, specs, cfg.Delay, r.timeout())
	tally := engine.TallyOutcomes(outcomes)

	var set engine.LatencySet
	set.AddOutcomes(outcomes)

	summary, err := engine.Summarize(set.Samples())
	if err != nil {
		return fail("no login produced a response (%s)", tally)
	}

	// A 429 still counts as a measured login. Any other status fails the run.
	ok := tally.Count(http.StatusOK)
	limited := tally.Count(http.StatusTooManyRequests)

	if ok == 0 || ok+limited != len(outcomes) {
		return fail("%d/%d logins succeeded (%s); %s", ok, len(outcomes), tally, summary)
	}

	if cfg.MaxP95 > 0 && engine.Duration(summary.P95) > cfg.MaxP95 {
		return fail("p95 %s above %s; %s", engine.Duration(summary.P95), cfg.MaxP95, summary)
	}

	if limited > 0 {
		return pass("%d logins, %d rate limited; %s", len(outcomes), limited, summary)
	}

	return pass("%d logins; %s", len(outcomes), summary)
}
