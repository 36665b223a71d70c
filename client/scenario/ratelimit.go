package scenario

import (
	"context"
	"fmt"
	"net/http"

	"github.com/croessner/authprobe/client/engine"
)

// firstLimited returns the index of the first 429 at or after from, or -1.
func firstLimited(statuses []int, from int) int {
	for i := max(from, 0); i < len(statuses); i++ {
		if statuses[i] == http.StatusTooManyRequests {
			return i
		}
	}

	return -1
}

func runRateLimit(ctx context.Context, r *Runner) Verdict {
	cfg := r.cfg.RateLimit

	ident := engine.NewIdentity(r.tenant(), "ratelimit", r.cfg.Password)

	reg := r.dispatcher.Do(ctx, engine.RegisterSpec("ratelimit-register", ident, engine.Origin{}), r.timeout())
	if !reg.OK() {
		return fail("setup failed: register returned %s", describe(reg))
	}

	specs := make([]engine.RequestSpec, cfg.Attempts)
	for i := range cfg.Attempts {
		specs[i] = engine.LoginSpec(fmt.Sprintf("ratelimit-%d", i), ident, engine.Origin{})
	}

	statuses := engine.Statuses(r.dispatcher.Sequential(ctx, specs, cfg.Delay, r.timeout()))

	idx := firstLimited(statuses, cfg.Threshold)
	if idx < 0 {
		return fail("no 429 at or after attempt %d, statuses %v", cfg.Threshold+1, statuses)
	}

	return pass("first 429 at attempt %d of %d, statuses %v", idx+1, cfg.Attempts, statuses)
}
