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

// Package monitoring sets up OpenTelemetry tracing for both the target and the probe.
package monitoring

import (
	"context"
	"strings"
	"sync"

	"github.com/croessner/authprobe/server/definitions"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	b3prop "go.opentelemetry.io/contrib/propagators/b3"
	jaegerprop "go.opentelemetry.io/contrib/propagators/jaeger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Config selects the OTLP/HTTP exporter and the propagation formats.
type Config struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	ServiceName string
	SampleRatio float64
	Propagators []string
}

// Telemetry owns the global tracer provider for the lifetime of the process.
type Telemetry struct {
	mu      sync.Mutex
	tp      *sdktrace.TracerProvider
	logger  log.Logger
	started bool
}

func New(logger log.Logger) *Telemetry {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &Telemetry{logger: logger}
}

// Start installs the tracer provider and propagators. Disabled configs and repeated calls are no-ops.
func (t *Telemetry) Start(ctx context.Context, cfg Config, version, instance string) error {
	if !cfg.Enabled {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return nil
	}

	svcName := strings.TrimSpace(cfg.ServiceName)
	if svcName == "" {
		svcName = instance
	}

	res, _ := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(svcName),
		semconv.ServiceVersionKey.String(version),
		attribute.String(definitions.LogKeyInstance, instance),
	))

	var opts []otlptracehttp.Option
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}

	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(min(max(cfg.SampleRatio, 0), 1)))),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(&loggingExporter{delegate: exp, logger: t.logger}),
	)

	otel.SetTextMapPropagator(buildPropagators(cfg.Propagators))
	otel.SetTracerProvider(tp)

	t.tp = tp
	t.started = true

	level.Info(t.logger).Log(definitions.LogKeyMsg, "OpenTelemetry tracing enabled", "service", svcName, "endpoint", cfg.Endpoint)

	return nil
}

// Shutdown flushes pending spans and releases the provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started || t.tp == nil {
		return nil
	}

	err := t.tp.Shutdown(ctx)

	t.started = false
	t.tp = nil

	return err
}

// loggingExporter reports failed exports. They would otherwise vanish inside the batch processor.
type loggingExporter struct {
	delegate sdktrace.SpanExporter
	logger   log.Logger
}

func (l *loggingExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	err := l.delegate.ExportSpans(ctx, spans)
	if err != nil {
		level.Warn(l.logger).Log(
			definitions.LogKeyMsg, "OpenTelemetry trace export failed",
			definitions.LogKeyError, err,
			"span_count", len(spans),
		)
	}

	return err
}

func (l *loggingExporter) Shutdown(ctx context.Context) error {
	return l.delegate.Shutdown(ctx)
}

func buildPropagators(names []string) propagation.TextMapPropagator {
	var list []propagation.TextMapPropagator

	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "tracecontext":
			list = append(list, propagation.TraceContext{})
		case "baggage":
			list = append(list, propagation.Baggage{})
		case "b3":
			list = append(list, b3prop.New(b3prop.WithInjectEncoding(b3prop.B3SingleHeader)))
		case "b3multi":
			list = append(list, b3prop.New(b3prop.WithInjectEncoding(b3prop.B3MultipleHeader)))
		case "jaeger":
			list = append(list, jaegerprop.Jaeger{})
		}
	}

	if len(list) == 0 {
		list = append(list, propagation.TraceContext{}, propagation.Baggage{})
	}

	return propagation.NewCompositeTextMapPropagator(list...)
}
