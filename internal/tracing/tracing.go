// Package tracing configures OpenTelemetry for the process.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "room-calendar"

// Provider is a tracer provider with a shutdown hook.
type Provider struct {
	trace.TracerProvider
	shutdown func(context.Context) error
}

func (p *Provider) Shutdown(ctx context.Context) error {
	if p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}

// Tracer returns the service tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.TracerProvider.Tracer(serviceName)
}

// Setup exports spans to the Jaeger collector at endpoint and installs the
// provider globally. An empty endpoint yields a no-op provider.
func Setup(endpoint string) (*Provider, error) {
	if endpoint == "" {
		return &Provider{TracerProvider: trace.NewNoopTracerProvider()}, nil
	}
	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(endpoint)))
	if err != nil {
		return nil, fmt.Errorf("jaeger exporter: %w", err)
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("trace resource: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return &Provider{TracerProvider: tp, shutdown: tp.Shutdown}, nil
}
