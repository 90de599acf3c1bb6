package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/rahul/relay/internal/engine"
)

const tracerName = "github.com/rahul/relay/internal/engine"

// TracingConfig describes the OTLP exporter.
type TracingConfig struct {
	ServiceName string
	Endpoint    string
	Insecure    bool
	Headers     map[string]string
}

// SetupTracing installs a process-wide tracer provider exporting over OTLP
// gRPC and returns its shutdown function. Without an endpoint it does nothing.
func SetupTracing(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	clientOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		clientOpts = append(clientOpts, otlptracegrpc.WithHeaders(cfg.Headers))
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exporter, err := otlptrace.New(dialCtx, otlptracegrpc.NewClient(clientOpts...))
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = "relay"
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", name))),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}

// Tracing opens one span per run and a child span per step.
type Tracing struct {
	tracer trace.Tracer

	mu    sync.Mutex
	runs  map[string]runSpan
	steps map[stepKey]trace.Span
}

type runSpan struct {
	ctx  context.Context
	span trace.Span
}

// NewTracing uses tp, or the global provider when tp is nil.
func NewTracing(tp trace.TracerProvider) *Tracing {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracing{
		tracer: tp.Tracer(tracerName),
		runs:   make(map[string]runSpan),
		steps:  make(map[stepKey]trace.Span),
	}
}

func (t *Tracing) Hooks() engine.Hooks {
	return engine.Hooks{
		OnRunStart: func(ctx context.Context, e engine.RunEvent) {
			ctx, span := t.tracer.Start(ctx, "relay.run",
				trace.WithAttributes(
					attribute.String("relay.run_id", e.RunID),
					attribute.Int("relay.steps", e.Plan.Len()),
					attribute.Int("relay.waves", len(e.Waves)),
				),
			)
			t.mu.Lock()
			t.runs[e.RunID] = runSpan{ctx: ctx, span: span}
			t.mu.Unlock()
		},
		OnWaveStart: func(_ context.Context, e engine.WaveEvent) {
			t.mu.Lock()
			rs, ok := t.runs[e.RunID]
			t.mu.Unlock()
			if ok {
				rs.span.AddEvent("wave released", trace.WithAttributes(
					attribute.Int("relay.wave", e.Wave),
					attribute.IntSlice("relay.wave.steps", e.Steps),
				))
			}
		},
		OnStepStart: func(ctx context.Context, e engine.StepEvent) {
			t.startStep(ctx, e)
		},
		OnStepFinish: func(ctx context.Context, e engine.StepEvent) {
			key := stepKey{e.RunID, e.Record.Index}
			t.mu.Lock()
			span, ok := t.steps[key]
			delete(t.steps, key)
			t.mu.Unlock()
			if !ok {
				span = t.startStep(ctx, e)
				t.mu.Lock()
				delete(t.steps, key)
				t.mu.Unlock()
			}

			rec := e.Record
			span.SetAttributes(
				attribute.String("relay.step.status", string(rec.Status)),
				attribute.Bool("relay.step.digest_degraded", rec.DigestDegraded),
			)
			if rec.Status == engine.StatusFailed {
				span.SetAttributes(attribute.String("relay.step.error_kind", string(rec.Kind)))
				if rec.Err != nil {
					span.RecordError(rec.Err)
				}
				span.SetStatus(codes.Error, rec.Error)
			} else {
				span.SetStatus(codes.Ok, "")
			}
			span.End()
		},
		OnRunFinish: func(_ context.Context, e engine.RunEvent) {
			t.mu.Lock()
			rs, ok := t.runs[e.RunID]
			delete(t.runs, e.RunID)
			t.mu.Unlock()
			if !ok {
				return
			}
			if e.Result != nil && e.Result.OverallError != nil {
				rs.span.SetAttributes(attribute.String("relay.error_kind", string(engine.KindOf(e.Result.OverallError))))
				rs.span.SetStatus(codes.Error, e.Result.OverallError.Error())
			} else {
				rs.span.SetStatus(codes.Ok, "")
			}
			rs.span.End()
		},
	}
}

func (t *Tracing) startStep(ctx context.Context, e engine.StepEvent) trace.Span {
	t.mu.Lock()
	if rs, ok := t.runs[e.RunID]; ok {
		ctx = rs.ctx
	}
	t.mu.Unlock()

	_, span := t.tracer.Start(ctx, "relay.step",
		trace.WithAttributes(
			attribute.String("relay.run_id", e.RunID),
			attribute.Int("relay.step.index", e.Record.Index),
			attribute.String("relay.step.handler", e.Record.HandlerID),
			attribute.IntSlice("relay.step.dependencies", e.Record.Dependencies),
		),
	)
	t.mu.Lock()
	t.steps[stepKey{e.RunID, e.Record.Index}] = span
	t.mu.Unlock()
	return span
}
