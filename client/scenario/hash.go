package scenario

import (
	"context"
	"fmt"
	"net/http"

	"github.com/croessner/authprobe/client/engine"
)

const hashBusyMetric = "auth_hash_busy_total"

// hashBusy reports whether the target rejected the request because its hash pool was saturated.
func hashBusy(o engine.RequestOutcome, marker string) bool {
	return o.Status == http.StatusServiceUnavailable || o.BodyContains(marker)
}

func runHash(ctx context.Context, r *Runner) Verdict {
	n := r.cfg.Hash.Requests
	tenant := r.tenant()

	before, _ := r.snapshot(ctx)

	specs := make([]engine.RequestSpec, n)
	for i := range n {
		ident := engine.NewIdentity(tenant, "hash", r.cfg.Password)
		origin := engine.Origin{IP: engine.SpoofedIP(ident.Email), UserAgent: "authprobe-hash/1.0"}

		specs[i] = engine.RegisterSpec(fmt.Sprintf("hash-%d", i), ident, origin)
	}

	outcomes := r.dispatcher.FanOut(ctx, specs, r.cfg.Concurrency, r.timeout())

	busy := 0
	for _, o := range outcomes {
		if hashBusy(o, r.cfg.Hash.BusyMarker) {
			busy++
		}
	}

	tally := engine.TallyOutcomes(outcomes)
	details := fmt.Sprintf("%d/%d registrations rejected as busy (%s)", busy, n, tally)

	after, err := r.snapshot(ctx)
	if err == nil && after.HasFamily(hashBusyMetric) {
		details += fmt.Sprintf(", %s +%.0f", hashBusyMetric, after.Delta(before, hashBusyMetric, nil))
	}

	verdict := Verdict{Details: details, Metrics: after}

	switch {
	case busy == 0:
		verdict.Details = "no request was rejected as busy: " + details
	case r.cfg.Hash.Strict && busy < n-r.cfg.Hash.ServerLimit:
		verdict.Details = fmt.Sprintf("expected at least %d busy rejections: %s", n-r.cfg.Hash.ServerLimit, details)
	default:
		verdict.Success = true
	}

	return verdict
}
