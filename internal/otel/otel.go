// Package otel turns cacheql's internal events into OpenTelemetry spans.
// cacheql code never imports the OpenTelemetry SDK directly — it publishes
// events to internal/eventbus, and it is this package's subscribers that
// translate them into spans, span attributes, and span closure.
package otel

import (
	"context"
	"sync"

	eventbus "github.com/cacheql/cacheql/internal/eventbus"
	events "github.com/cacheql/cacheql/internal/events"
	opid "github.com/cacheql/cacheql/internal/opid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

// Setup configures OpenTelemetry and attaches eventbus subscribers that
// turn query/mutate/fetch/cache events into spans. If endpoint is empty, no
// telemetry is configured and Setup returns a no-op shutdown function.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithInsecure()))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	sub := &subscriber{tracer: otel.Tracer("cacheql")}
	sub.register()

	return tp.Shutdown, nil
}

type subscriber struct {
	tracer      trace.Tracer
	querySpans  sync.Map // opid -> trace.Span
	mutateSpans sync.Map // opid -> trace.Span
	fetchSpans  sync.Map // opid -> trace.Span
}

func (s *subscriber) register() {
	eventbus.Subscribe(func(ctx context.Context, e events.QueryStart) {
		id, _ := opid.FromContext(ctx)
		_, span := s.tracer.Start(ctx, "cacheql.query")
		span.SetAttributes(
			attribute.String("graphql.operation.name", e.OperationName),
			attribute.String("cacheql.fetch_policy", e.FetchPolicy),
		)
		s.querySpans.Store(id, span)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.QueryFinish) {
		id, _ := opid.FromContext(ctx)
		v, ok := s.querySpans.LoadAndDelete(id)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(attribute.String("cacheql.network_status", e.NetworkStatus))
		if e.Err != nil {
			span.RecordError(e.Err)
		}
		span.End()
	})

	eventbus.Subscribe(func(ctx context.Context, e events.MutateStart) {
		id, _ := opid.FromContext(ctx)
		_, span := s.tracer.Start(ctx, "cacheql.mutate")
		span.SetAttributes(
			attribute.String("graphql.operation.name", e.OperationName),
			attribute.Bool("cacheql.optimistic", e.Optimistic),
		)
		s.mutateSpans.Store(id, span)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.MutateFinish) {
		id, _ := opid.FromContext(ctx)
		v, ok := s.mutateSpans.LoadAndDelete(id)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(attribute.String("cacheql.network_status", e.NetworkStatus))
		if e.Err != nil {
			span.RecordError(e.Err)
		}
		span.End()
	})

	eventbus.Subscribe(func(ctx context.Context, e events.NetworkFetchStart) {
		id, _ := opid.FromContext(ctx)
		parent := ctx
		if v, ok := s.querySpans.Load(id); ok {
			parent = trace.ContextWithSpan(ctx, v.(trace.Span))
		} else if v, ok := s.mutateSpans.Load(id); ok {
			parent = trace.ContextWithSpan(ctx, v.(trace.Span))
		}
		_, span := s.tracer.Start(parent, "cacheql.network_fetch")
		span.SetAttributes(
			attribute.String("graphql.operation.name", e.OperationName),
			attribute.String("graphql.operation.type", e.OperationType),
		)
		s.fetchSpans.Store(id, span)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.NetworkFetchFinish) {
		id, _ := opid.FromContext(ctx)
		v, ok := s.fetchSpans.LoadAndDelete(id)
		if !ok {
			return
		}
		span := v.(trace.Span)
		if e.Err != nil {
			span.RecordError(e.Err)
		}
		span.End()
	})

	eventbus.Subscribe(func(ctx context.Context, e events.CacheWrite) {
		id, _ := opid.FromContext(ctx)
		parent := ctx
		if v, ok := s.querySpans.Load(id); ok {
			parent = trace.ContextWithSpan(ctx, v.(trace.Span))
		} else if v, ok := s.mutateSpans.Load(id); ok {
			parent = trace.ContextWithSpan(ctx, v.(trace.Span))
		}
		_, span := s.tracer.Start(parent, "cacheql.cache_write")
		span.SetAttributes(
			attribute.String("graphql.operation.name", e.OperationName),
			attribute.Int("cacheql.entity_count", e.EntityCount),
		)
		span.End()
	})

	eventbus.Subscribe(func(ctx context.Context, e events.CacheRead) {
		id, _ := opid.FromContext(ctx)
		parent := ctx
		if v, ok := s.querySpans.Load(id); ok {
			parent = trace.ContextWithSpan(ctx, v.(trace.Span))
		} else if v, ok := s.mutateSpans.Load(id); ok {
			parent = trace.ContextWithSpan(ctx, v.(trace.Span))
		}
		_, span := s.tracer.Start(parent, "cacheql.cache_read")
		span.SetAttributes(
			attribute.String("graphql.operation.name", e.OperationName),
			attribute.Bool("cacheql.root_missing", e.RootMissing),
		)
		span.End()
	})
}
