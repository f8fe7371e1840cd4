// Package telemetry installs the OpenTelemetry tracer provider used by the
// numalloc binaries.
package telemetry

import (
	"context"
	"errors"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Options selects the span exporters.
type Options struct {
	ServiceName string

	// Endpoint is an OTLP/HTTP collector URL, e.g. http://localhost:4318.
	Endpoint string

	// Stdout writes spans as JSON to Writer, or os.Stdout when Writer is nil.
	Stdout bool
	Writer io.Writer
}

// Setup registers a global tracer provider exporting to every configured
// destination. With no destination configured it registers nothing and
// returns a no-op shutdown function, leaving spans as no-ops.
//
// The returned shutdown function flushes pending spans and should be deferred
// by the caller.
func Setup(ctx context.Context, opts Options) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	var providerOpts []sdktrace.TracerProviderOption
	if opts.Endpoint != "" {
		exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(opts.Endpoint))
		if err != nil {
			return noop, err
		}
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exporter))
	}
	if opts.Stdout {
		w := opts.Writer
		if w == nil {
			w = os.Stdout
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return noop, err
		}
		providerOpts = append(providerOpts, sdktrace.WithSyncer(exporter))
	}
	if len(providerOpts) == 0 {
		return noop, nil
	}

	if opts.ServiceName == "" {
		return noop, errors.New("service name cannot be empty")
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(opts.ServiceName),
		),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(append(providerOpts,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}
