// Package observability sets up OpenTelemetry tracing for conversion jobs.
// Spans go to a stdout exporter when tracing is enabled and to a no-op
// tracer otherwise.
package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerName identifies spans created by the converter.
const TracerName = "github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows"

// TracingConfig contains tracing configuration.
type TracingConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// Writer receives exported spans; nil means stderr.
	Writer      io.Writer
	PrettyPrint bool
}

// Provider owns the tracer provider of one process or test.
type Provider struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// NewProvider builds a tracer. With tracing disabled the tracer is a no-op
// and Shutdown does nothing.
func NewProvider(config TracingConfig) (*Provider, error) {
	if !config.Enabled {
		return &Provider{tracer: noop.NewTracerProvider().Tracer(TracerName)}, nil
	}
	if config.ServiceName == "" {
		config.ServiceName = "parq"
	}
	if config.Writer == nil {
		config.Writer = os.Stderr
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []stdouttrace.Option{stdouttrace.WithWriter(config.Writer)}
	if config.PrettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(time.Second)),
	)
	return &Provider{tracer: tp.Tracer(TracerName), provider: tp}, nil
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider == nil {
		return nil
	}
	return p.provider.Shutdown(ctx)
}

// NoopTracer returns a tracer that records nothing.
func NoopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer(TracerName)
}

// Span wraps a trace span and collects attributes until End.
type Span struct {
	span       trace.Span
	startTime  time.Time
	attributes []attribute.KeyValue
}

// NewSpan starts a span named operationName.
func NewSpan(ctx context.Context, tracer trace.Tracer, operationName string) (context.Context, *Span) {
	ctx, span := tracer.Start(ctx, operationName)
	return ctx, &Span{
		span:      span,
		startTime: time.Now(),
	}
}

// SetAttribute records key=value on the span.
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue

	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}

	s.attributes = append(s.attributes, attr)
}

// AddEvent adds an event to the span.
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// End sets the status from err and ends the span. It returns the span duration.
func (s *Span) End(err error) time.Duration {
	if len(s.attributes) > 0 {
		s.span.SetAttributes(s.attributes...)
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
	return time.Since(s.startTime)
}
