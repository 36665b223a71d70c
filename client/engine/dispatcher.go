package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/croessner/authprobe/server/definitions"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/semaphore"
)

// Dispatcher issues batches of requests against the target and turns every request into exactly one outcome.
type Dispatcher struct {
	client *AuthClient
	pacer  *Pacer
	logger log.Logger

	inFlight atomic.Int64
	peak     atomic.Int64
}

func NewDispatcher(client *AuthClient, pacer *Pacer, logger log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &Dispatcher{client: client, pacer: pacer, logger: logger}
}

// FanOut submits all specs at once and returns after every one of them resolved. At most limit requests are
// unresolved at any instant; limit <= 0 means no ceiling beyond the batch size. The result is index-aligned with specs.
func (d *Dispatcher) FanOut(ctx context.Context, specs []RequestSpec, limit int, timeout time.Duration) []RequestOutcome {
	outcomes := make([]RequestOutcome, len(specs))
	if len(specs) == 0 {
		return outcomes
	}

	if limit <= 0 || limit > len(specs) {
		limit = len(specs)
	}

	gate := semaphore.NewWeighted(int64(limit))

	var wg sync.WaitGroup

	for i, spec := range specs {
		if err := d.pacer.Wait(ctx); err != nil {
			outcomes[i] = canceledOutcome(spec, err)

			continue
		}

		if err := gate.Acquire(ctx, 1); err != nil {
			outcomes[i] = canceledOutcome(spec, err)

			continue
		}

		wg.Add(1)

		go func() {
			defer wg.Done()
			defer gate.Release(1)

			outcomes[i] = d.issue(ctx, spec, timeout)
		}()
	}

	wg.Wait()

	level.Debug(d.logger).Log(
		definitions.LogKeyMsg, "fan-out batch resolved",
		"requests", len(specs),
		"limit", limit,
		"rps", d.pacer.RPS(),
		"peak", d.Peak(),
	)

	return outcomes
}

// Sequential issues specs strictly one after another, pausing delay between the end of one request and the start of
// the next.
func (d *Dispatcher) Sequential(ctx context.Context, specs []RequestSpec, delay, timeout time.Duration) []RequestOutcome {
	outcomes := make([]RequestOutcome, len(specs))

	for i, spec := range specs {
		if i > 0 && delay > 0 {
			timer := time.NewTimer(delay)

			select {
			case <-ctx.Done():
			case <-timer.C:
			}

			timer.Stop()
		}

		if err := ctx.Err(); err != nil {
			outcomes[i] = canceledOutcome(spec, err)

			continue
		}

		outcomes[i] = d.issue(ctx, spec, timeout)
	}

	return outcomes
}

// Do issues a single request outside of any batch.
func (d *Dispatcher) Do(ctx context.Context, spec RequestSpec, timeout time.Duration) RequestOutcome {
	if err := ctx.Err(); err != nil {
		return canceledOutcome(spec, err)
	}

	return d.issue(ctx, spec, timeout)
}

// Peak returns the highest number of simultaneously unresolved requests observed since the last ResetPeak.
func (d *Dispatcher) Peak() int64 {
	return d.peak.Load()
}

func (d *Dispatcher) ResetPeak() {
	d.peak.Store(d.inFlight.Load())
}

func (d *Dispatcher) issue(ctx context.Context, spec RequestSpec, timeout time.Duration) RequestOutcome {
	n := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)

	for {
		p := d.peak.Load()
		if n <= p || d.peak.CompareAndSwap(p, n) {
			break
		}
	}

	outcome := d.client.Do(ctx, spec, timeout)

	if outcome.Err != nil {
		level.Debug(d.logger).Log(
			definitions.LogKeyMsg, "request failed",
			definitions.LogKeyPath, spec.Path,
			definitions.LogKeyError, outcome.Err,
		)
	}

	return outcome
}

func canceledOutcome(spec RequestSpec, cause error) RequestOutcome {
	return RequestOutcome{SpecID: spec.ID, Err: fmt.Errorf("%w: %v", ErrCanceled, cause)}
}
