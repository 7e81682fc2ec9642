// Package tracing sets up OpenTelemetry tracing for the port.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/drblury/kafkaport/internal/runtime/ids"
)

// ErrInvalidEndpoint reports an OTLP endpoint that is not an absolute
// http(s) URL.
var ErrInvalidEndpoint = errors.New("tracing: invalid OTLP endpoint")

// Options describes the process whose spans are exported.
type Options struct {
	// ServiceName becomes the service.name resource attribute.
	ServiceName string
	// Variant is recorded as port.variant on the resource.
	Variant string
	// Endpoint is the OTLP/HTTP collector URL. Empty disables tracing.
	Endpoint string
}

// ValidateEndpoint accepts an empty endpoint or an absolute http(s) URL with
// a host. The exporter itself only logs a bad URL and falls back to its
// default collector, so callers check first.
func ValidateEndpoint(endpoint string) error {
	if endpoint == "" {
		return nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q needs an http or https scheme", ErrInvalidEndpoint, endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: %q has no host", ErrInvalidEndpoint, endpoint)
	}
	return nil
}

// Setup installs a global tracer provider exporting to opts.Endpoint. With an
// empty endpoint nothing is registered and the no-op provider stays in place.
// The returned shutdown flushes pending spans; it is never nil.
func Setup(ctx context.Context, opts Options) (shutdown func(context.Context) error, err error) {
	shutdown = func(context.Context) error { return nil }
	if opts.Endpoint == "" {
		return shutdown, nil
	}
	if err := ValidateEndpoint(opts.Endpoint); err != nil {
		return shutdown, err
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(opts.Endpoint))
	if err != nil {
		return shutdown, fmt.Errorf("tracing: create exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(opts.ServiceName),
			semconv.ServiceInstanceID(ids.NewFrameID()),
			attribute.String("port.variant", opts.Variant),
		),
		resource.WithProcessPID(),
		resource.WithHost(),
	)
	if err != nil && !errors.Is(err, resource.ErrPartialResource) {
		_ = exporter.Shutdown(ctx)
		return shutdown, fmt.Errorf("tracing: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}
