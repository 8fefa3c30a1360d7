// Package tracing wires OpenTelemetry tracing for Gate and Worker, adapted
// from the teacher's internal/observability.InitOTel: a stdout exporter by
// default (no external collector required to exercise spec.md's scenarios),
// gated by OTEL_ENABLED so it stays off by default like the teacher's.
package tracing

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/devenwen/callme-gate/internal/logger"
)

type Config struct {
	ServiceName string
	Version     string
}

var (
	once     sync.Once
	shutdown func(context.Context) error
)

// Init installs a global TracerProvider. Safe to call from both cmd/gate and
// cmd/worker; only the first call in a process takes effect.
func Init(ctx context.Context, log *logger.Logger, cfg Config) func(context.Context) error {
	once.Do(func() {
		if !enabled() {
			shutdown = func(context.Context) error { return nil }
			return
		}
		name := strings.TrimSpace(cfg.ServiceName)
		if name == "" {
			name = "callme-gate"
		}
		res, err := resource.New(ctx,
			resource.WithAttributes(
				attribute.String("service.name", name),
				attribute.String("service.version", strings.TrimSpace(cfg.Version)),
			),
		)
		if err != nil && log != nil {
			log.Warn("tracing resource init failed (continuing)", "error", err)
		}

		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil && log != nil {
			log.Warn("tracing exporter init failed (continuing)", "error", err)
		}

		var tp *sdktrace.TracerProvider
		if exporter != nil {
			tp = sdktrace.NewTracerProvider(
				sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(2*time.Second)),
				sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio()))),
				sdktrace.WithResource(res),
			)
		} else {
			tp = sdktrace.NewTracerProvider(
				sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio()))),
				sdktrace.WithResource(res),
			)
		}
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		shutdown = tp.Shutdown
		if log != nil {
			log.Info("tracing initialized", "service", name)
		}
	})
	return shutdown
}

// Tracer returns a named tracer off the global provider; a no-op provider is
// installed by default, so callers never need to nil-check it.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

func enabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("OTEL_ENABLED")))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func sampleRatio() float64 {
	v := strings.TrimSpace(os.Getenv("OTEL_SAMPLER_RATIO"))
	if v == "" {
		return 1.0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 1.0
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
