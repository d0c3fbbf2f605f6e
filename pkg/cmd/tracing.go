package cmd

import (
	"context"
	"log/slog"

	"github.com/durgasflow/durgasflow/pkg/otelhelper"
	"go.opentelemetry.io/otel/trace"
)

// NewTracer returns an exporting tracer when enabled and a no-op tracer
// otherwise. The returned shutdown func is never nil.
// nolint:ireturn
func NewTracer(ctx context.Context, enabled bool, serviceName string, logger *slog.Logger) (trace.Tracer, otelhelper.ShutdownFunc) {
	noop := func(context.Context) error { return nil }

	if !enabled {
		return otelhelper.NoopTracer(), noop
	}

	tracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
	if err != nil {
		logger.WarnContext(ctx, "Tracing disabled, failed to create exporter", "error", err)

		return otelhelper.NoopTracer(), noop
	}

	logger.InfoContext(ctx, "Tracing enabled", "service", serviceName)

	return tracer, shutdown
}
