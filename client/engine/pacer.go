package engine

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

// Pacer throttles request issuance with a token bucket. A nil Pacer never waits.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer returns nil for rps <= 0.
func NewPacer(rps float64) *Pacer {
	if rps <= 0 {
		return nil
	}

	return &Pacer{limiter: rate.NewLimiter(rate.Limit(rps), burstFor(rps))}
}

// RPS returns the current rate, 0 for an unlimited pacer.
func (p *Pacer) RPS() float64 {
	if p == nil {
		return 0
	}

	return float64(p.limiter.Limit())
}

// Wait blocks until the next request may be issued or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return ctx.Err()
	}

	return p.limiter.Wait(ctx)
}

// burstFor allows a tenth of a second worth of requests to start together.
func burstFor(rps float64) int {
	return max(1, int(math.Ceil(rps/10)))
}
