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

package stats

import (
	"context"
	"time"

	"github.com/croessner/authprobe/server/definitions"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/mackerelio/go-osstat/cpu"
)

// MeasureHost samples host CPU counters and memory every interval until ctx is done. Platforms without CPU counters
// log once and return.
func (m *Metrics) MeasureHost(ctx context.Context, interval time.Duration, logger log.Logger) {
	if interval <= 0 {
		return
	}

	prev, err := cpu.Get()
	if err != nil {
		level.Debug(logger).Log(definitions.LogKeyMsg, "CPU statistics unavailable", definitions.LogKeyError, err)

		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur, err := cpu.Get()
			if err != nil {
				level.Warn(logger).Log(definitions.LogKeyMsg, "Failed to read CPU statistics", definitions.LogKeyError, err)

				continue
			}

			m.setCPU(prev, cur)
			prev = cur

			if err = m.sampleMemory(ctx); err != nil {
				level.Debug(logger).Log(definitions.LogKeyMsg, "Failed to read memory statistics", definitions.LogKeyError, err)
			}
		}
	}
}

func (m *Metrics) setCPU(prev, cur *cpu.Stats) {
	total := float64(cur.Total - prev.Total)
	if total <= 0 {
		return
	}

	m.CPUUsage.WithLabelValues("user").Set(float64(cur.User-prev.User) / total * 100)
	m.CPUUsage.WithLabelValues("system").Set(float64(cur.System-prev.System) / total * 100)
	m.CPUUsage.WithLabelValues("idle").Set(float64(cur.Idle-prev.Idle) / total * 100)
}
