package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/psantana5/stopwatch/pkg/stopwatch"
)

const tracerName = "github.com/psantana5/stopwatch"

// TraceConfig configures an OTLP/HTTP trace sink
type TraceConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string // e.g. "localhost:4318"
	Insecure       bool
}

// Trace exports each measurement as a standalone span whose start and end
// are the StopWatch readings. Spans are always roots; nothing is propagated.
type Trace struct {
	Base

	name     string
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	timeout  time.Duration

	mu     sync.RWMutex
	closed bool
}

// NewTrace creates a sink on an existing provider. Shutdown leaves the provider alone.
func NewTrace(name string, tp trace.TracerProvider) *Trace {
	return &Trace{
		name:   name,
		tracer: tp.Tracer(tracerName),
	}
}

// NewOTLPTrace creates a sink with its own provider exporting over OTLP/HTTP.
// Shutdown flushes and stops that provider.
func NewOTLPTrace(ctx context.Context, name string, cfg TraceConfig) (*Trace, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	return &Trace{
		name:     name,
		tracer:   tp.Tracer(tracerName),
		provider: tp,
		timeout:  5 * time.Second,
	}, nil
}

// Name implements Named
func (s *Trace) Name() string {
	return s.name
}

// Record emits one span for sw. A running StopWatch ends its span now.
func (s *Trace) Record(sw *stopwatch.StopWatch) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	end, stopped := sw.StoppedAt()
	if !stopped {
		end = sw.StartedAt().Add(sw.Elapsed())
	}

	attrs := []attribute.KeyValue{
		attribute.String("timing.tag", sw.Tag()),
		attribute.Int64("timing.elapsed_ns", sw.ElapsedNanos()),
	}
	if sw.Message() != "" {
		attrs = append(attrs, attribute.String("timing.message", sw.Message()))
	}

	_, span := s.tracer.Start(context.Background(), sw.Tag(),
		trace.WithNewRoot(),
		trace.WithTimestamp(sw.StartedAt()),
		trace.WithAttributes(attrs...),
	)
	span.End(trace.WithTimestamp(end))
	return nil
}

// Shutdown flushes the owned provider, if any
func (s *Trace) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.provider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down tracer provider: %w", err)
	}
	return nil
}
