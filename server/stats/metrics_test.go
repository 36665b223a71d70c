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
	"strings"
	"testing"

	"github.com/mackerelio/go-osstat/cpu"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsAreIsolated(t *testing.T) {
	a := New()
	b := New()

	a.LoginTotal.WithLabelValues("ok").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.LoginTotal.WithLabelValues("ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.LoginTotal.WithLabelValues("ok")))
}

func TestFamiliesExposedBeforeTraffic(t *testing.T) {
	families, err := New().Registry.Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}

	for _, name := range []string{"auth_register_total", "auth_login_total", "auth_refresh_total", "auth_hash_busy_total"} {
		mf, ok := byName[name]
		require.True(t, ok, name)
		assert.Equal(t, dto.MetricType_COUNTER, mf.GetType(), name)
	}

	assert.Equal(t, 0.0, byName["auth_refresh_total"].GetMetric()[0].GetCounter().GetValue())
}

func TestRefreshReplayExposition(t *testing.T) {
	m := New()
	m.RefreshReplayTotal.WithLabelValues("t1").Inc()
	m.RefreshReplayTotal.WithLabelValues("t1").Inc()

	expected := `
# HELP auth_refresh_replay_total Reuse of an already rotated refresh token.
# TYPE auth_refresh_replay_total counter
auth_refresh_replay_total{tenant_id="t1"} 2
`

	require.NoError(t, testutil.GatherAndCompare(m.Registry, strings.NewReader(expected), "auth_refresh_replay_total"))
}

func TestSetCPU(t *testing.T) {
	m := New()

	m.setCPU(
		&cpu.Stats{User: 10, System: 10, Idle: 80, Total: 100},
		&cpu.Stats{User: 30, System: 20, Idle: 150, Total: 200},
	)

	assert.InDelta(t, 20.0, testutil.ToFloat64(m.CPUUsage.WithLabelValues("user")), 1e-9)
	assert.InDelta(t, 10.0, testutil.ToFloat64(m.CPUUsage.WithLabelValues("system")), 1e-9)
	assert.InDelta(t, 70.0, testutil.ToFloat64(m.CPUUsage.WithLabelValues("idle")), 1e-9)
}

func TestSampleMemory(t *testing.T) {
	m := New()

	require.NoError(t, m.sampleMemory(context.Background()))

	used := testutil.ToFloat64(m.MemoryUsage)
	assert.Greater(t, used, 0.0)
	assert.LessOrEqual(t, used, 100.0)
}
