// Copyright (C) 2024 Christian Rößner
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// Package limit holds the admission controls of the target: a counting gate around password hashing and keyed
// token buckets for per-identity rate limits.
package limit

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrHashBusy is returned when no hash slot became free in time.
var ErrHashBusy = errors.New("hash capacity exhausted")

// Gauge receives the number of occupied hash slots.
type Gauge interface {
	Inc()
	Dec()
}

// HashLimiter bounds the number of concurrent password hash computations.
type HashLimiter struct {
	sem     *semaphore.Weighted
	timeout time.Duration
	gauge   Gauge
}

// NewHashLimiter returns a limiter admitting at most limit holders. A zero timeout means fail immediately.
func NewHashLimiter(limit int, timeout time.Duration, gauge Gauge) *HashLimiter {
	return &HashLimiter{
		sem:     semaphore.NewWeighted(int64(max(limit, 1))),
		timeout: timeout,
		gauge:   gauge,
	}
}

// Acquire takes one slot. The returned release func must be called exactly once.
func (h *HashLimiter) Acquire(ctx context.Context) (func(), error) {
	if h.timeout <= 0 {
		if !h.sem.TryAcquire(1) {
			return nil, ErrHashBusy
		}
	} else {
		waitCtx, cancel := context.WithTimeout(ctx, h.timeout)
		defer cancel()

		if err := h.sem.Acquire(waitCtx, 1); err != nil {
			return nil, ErrHashBusy
		}
	}

	if h.gauge != nil {
		h.gauge.Inc()
	}

	return func() {
		if h.gauge != nil {
			h.gauge.Dec()
		}

		h.sem.Release(1)
	}, nil
}
