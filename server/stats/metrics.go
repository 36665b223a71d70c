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

// Package stats owns the Prometheus registry of the target and every collector it exposes on /metrics.
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the collectors. Each instance owns its registry so parallel tests never collide.
type Metrics struct {
	Registry *prometheus.Registry

	RegisterTotal        *prometheus.CounterVec
	LoginTotal           *prometheus.CounterVec
	RefreshTotal         *prometheus.CounterVec
	RateLimitedTotal     *prometheus.CounterVec
	RefreshReplayTotal   *prometheus.CounterVec
	HashBusyTotal        prometheus.Counter
	HashInFlight         prometheus.Gauge
	HTTPRequestDuration  *prometheus.HistogramVec
	PasswordVerifyTiming *prometheus.HistogramVec
	CPUUsage             *prometheus.GaugeVec
	MemoryUsage          prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	m := &Metrics{
		Registry: reg,

		RegisterTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_register_total",
			Help: "Registration attempts by result.",
		}, []string{"result"}),

		LoginTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_login_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),

		RefreshTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_refresh_total",
			Help: "Refresh token exchanges by result and reason.",
		}, []string{"result", "reason"}),

		RateLimitedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_rate_limited_total",
			Help: "Requests rejected by a rate limit, by scope.",
		}, []string{"scope"}),

		RefreshReplayTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_refresh_replay_total",
			Help: "Reuse of an already rotated refresh token.",
		}, []string{"tenant_id"}),

		HashBusyTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "auth_hash_busy_total",
			Help: "Requests rejected because every hash slot was taken.",
		}),

		HashInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "auth_hash_in_flight",
			Help: "Password hash computations currently running.",
		}),

		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auth_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"path", "method", "status"}),

		PasswordVerifyTiming: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auth_password_verify_duration_seconds",
			Help:    "Time spent hashing or verifying a password.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"result"}),

		CPUUsage: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "auth_host_cpu_usage_percent",
			Help: "Host CPU usage by mode over the last sampling interval.",
		}, []string{"mode"}),

		MemoryUsage: factory.NewGauge(prometheus.GaugeOpts{
			Name: "auth_host_memory_used_percent",
			Help: "Host memory in use.",
		}),
	}

	// Zero series so the families are exposed before the first request.
	m.RegisterTotal.WithLabelValues("ok")
	m.LoginTotal.WithLabelValues("ok")
	m.RefreshTotal.WithLabelValues("ok", "rotated")

	return m
}
