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

package app

import (
	"context"
	"sync"
	"time"

	"github.com/croessner/authprobe/server/config"

	"github.com/go-kit/log"
)

// HostService runs the host CPU and memory sampler for the lifetime of the application.
type HostService struct {
	interval time.Duration
	measure  func(context.Context, time.Duration)

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func NewHostService(cfg *config.Config, target *Target, logger log.Logger) *HostService {
	return &HostService{
		interval: cfg.StatsInterval,
		measure: func(ctx context.Context, interval time.Duration) {
			target.Metrics.MeasureHost(ctx, interval, logger)
		},
	}
}

// Start launches the sampler. A zero interval disables it.
func (s *HostService) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.interval <= 0 || s.measure == nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.measure(ctx, s.interval)
	}()

	return nil
}

// Stop cancels the sampler and waits for it, honoring the deadline of stopCtx.
func (s *HostService) Stop(stopCtx context.Context) error {
	s.mu.Lock()

	if !s.running {
		s.mu.Unlock()

		return nil
	}

	s.cancel()
	s.running = false
	s.mu.Unlock()

	done := make(chan struct{})

	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-stopCtx.Done():
		return stopCtx.Err()
	}
}
