package scenario

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

func runMetrics(ctx context.Context, r *Runner) Verdict {
	required := r.cfg.Metrics.Required

	snap, err := r.snapshot(ctx)
	if err != nil {
		return fail("metrics endpoint unavailable: %v", err)
	}

	present := snap.Present(required)

	var missing []string
	for _, name := range required {
		if !slices.Contains(present, name) {
			missing = append(missing, name)
		}
	}

	details := fmt.Sprintf("%d/%d required metric families present", len(present), len(required))
	if len(missing) > 0 {
		details += ", missing " + strings.Join(missing, ", ")
	}

	return Verdict{
		Success: len(present) >= r.cfg.Metrics.MinPresent,
		Details: details,
		Metrics: snap,
	}
}
