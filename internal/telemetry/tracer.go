// Package telemetry installs the OpenTelemetry tracer provider used by the
// HTTP middleware.
package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Config controls where spans are exported. Output defaults to stdout.
type Config struct {
	ServiceName string
	Output      io.Writer
	PrettyPrint bool
	Logger      *slog.Logger
}

// InitTracer builds a tracer provider with a stdout exporter, sets it as the
// global provider and returns its shutdown func, which flushes pending spans.
func InitTracer(cfg Config) (func(context.Context) error, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	opts := []stdouttrace.Option{stdouttrace.WithWriter(cfg.Output)}
	if cfg.PrettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	cfg.Logger.Info("tracing enabled", slog.String("service", cfg.ServiceName))
	return tp.Shutdown, nil
}
