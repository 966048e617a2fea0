package docstore

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/healsmart/internal/observability/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("healsmart.internal.docstore")

// Instrument wraps a backend with OpenTelemetry spans and Prometheus
// operation counters.
func Instrument(b Backend, m *metrics.DocstoreMetrics) Backend {
	if b == nil {
		panic("docstore: backend cannot be nil")
	}
	return &instrumented{next: b, metrics: m}
}

type instrumented struct {
	next    Backend
	metrics *metrics.DocstoreMetrics
}

func (i *instrumented) Name() string { return i.next.Name() }

func (i *instrumented) Close() error { return i.next.Close() }

func (i *instrumented) start(ctx context.Context, op, collection string) (context.Context, trace.Span, time.Time) {
	ctx, span := tracer.Start(ctx, "docstore."+op, trace.WithAttributes(
		attribute.String("docstore.backend", i.next.Name()),
		attribute.String("docstore.collection", collection),
	))
	return ctx, span, time.Now()
}

func (i *instrumented) finish(span trace.Span, op string, started time.Time, err error) {
	// Missing documents are an expected outcome, not a failure.
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		i.metrics.ObserveOp(i.next.Name(), op, started, err)
	} else {
		i.metrics.ObserveOp(i.next.Name(), op, started, nil)
	}
	span.End()
}

func (i *instrumented) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	ctx, span, started := i.start(ctx, "create", collection)
	id, err := i.next.Create(ctx, collection, data)
	span.SetAttributes(attribute.String("docstore.id", id))
	i.finish(span, "create", started, err)
	return id, err
}

func (i *instrumented) Set(ctx context.Context, collection, id string, data map[string]any) error {
	ctx, span, started := i.start(ctx, "set", collection)
	span.SetAttributes(attribute.String("docstore.id", id))
	err := i.next.Set(ctx, collection, id, data)
	i.finish(span, "set", started, err)
	return err
}

func (i *instrumented) Get(ctx context.Context, collection, id string) (Document, error) {
	ctx, span, started := i.start(ctx, "get", collection)
	span.SetAttributes(attribute.String("docstore.id", id))
	doc, err := i.next.Get(ctx, collection, id)
	i.finish(span, "get", started, err)
	return doc, err
}

func (i *instrumented) Delete(ctx context.Context, collection, id string) error {
	ctx, span, started := i.start(ctx, "delete", collection)
	span.SetAttributes(attribute.String("docstore.id", id))
	err := i.next.Delete(ctx, collection, id)
	i.finish(span, "delete", started, err)
	return err
}

func (i *instrumented) List(ctx context.Context, collection string) ([]Document, error) {
	ctx, span, started := i.start(ctx, "list", collection)
	docs, err := i.next.List(ctx, collection)
	span.SetAttributes(attribute.Int("docstore.results", len(docs)))
	i.finish(span, "list", started, err)
	return docs, err
}

func (i *instrumented) Query(ctx context.Context, q Query) ([]Document, error) {
	ctx, span, started := i.start(ctx, "query", q.Collection)
	span.SetAttributes(
		attribute.String("docstore.order_by", q.OrderBy),
		attribute.String("docstore.direction", string(q.Direction)),
		attribute.Int("docstore.limit", q.Limit),
	)
	docs, err := i.next.Query(ctx, q)
	span.SetAttributes(attribute.Int("docstore.results", len(docs)))
	i.finish(span, "query", started, err)
	return docs, err
}

func (i *instrumented) BatchDelete(ctx context.Context, collection string, ids []string) error {
	ctx, span, started := i.start(ctx, "batch_delete", collection)
	span.SetAttributes(attribute.Int("docstore.ids", len(ids)))
	err := i.next.BatchDelete(ctx, collection, ids)
	i.finish(span, "batch_delete", started, err)
	return err
}

func (i *instrumented) Subscribe(ctx context.Context, q Query, h Handler) (Subscription, error) {
	if h == nil {
		return nil, invalidf("subscription handler is nil")
	}
	ctx, span, started := i.start(ctx, "subscribe", q.Collection)
	backend := i.next.Name()
	sub, err := i.next.Subscribe(ctx, q, func(snap Snapshot, err error) {
		if err != nil {
			i.metrics.ObserveDelivery(backend, "error")
		} else {
			i.metrics.ObserveDelivery(backend, "ok")
		}
		h(snap, err)
	})
	i.finish(span, "subscribe", started, err)
	return sub, err
}
