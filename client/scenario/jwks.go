package scenario

import (
	"context"
	"fmt"

	"github.com/croessner/authprobe/client/engine"
)

// validJWKS reports whether the outcome is a 2xx JSON document with a non-empty keys array.
func validJWKS(o engine.RequestOutcome) bool {
	if !o.OK() {
		return false
	}

	doc, ok := o.JSONObject()
	if !ok {
		return false
	}

	keys, ok := doc["keys"].([]any)

	return ok && len(keys) > 0
}

func runJWKS(ctx context.Context, r *Runner) Verdict {
	n := r.cfg.JWKS.Requests

	specs := make([]engine.RequestSpec, n)
	for i := range n {
		specs[i] = engine.JWKSSpec(fmt.Sprintf("jwks-%d", i))
	}

	r.dispatcher.ResetPeak()

	outcomes := r.dispatcher.FanOut(ctx, specs, r.cfg.Concurrency, r.timeout())

	valid := 0
	for _, o := range outcomes {
		if validJWKS(o) {
			valid++
		}
	}

	var latencies engine.LatencySet
	latencies.AddOutcomes(outcomes)

	timing := "no responses"
	if summary, err := engine.Summarize(latencies.Samples()); err == nil {
		timing = fmt.Sprintf("p95 %.1fms", summary.P95)
	}

	if valid != n {
		return fail("%d/%d valid JWKS responses (%s)", valid, n, engine.TallyOutcomes(outcomes))
	}

	return pass("%d/%d valid JWKS responses, %s, peak in-flight %d", valid, n, timing, r.dispatcher.Peak())
}
