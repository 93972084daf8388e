package otel

import (
	"context"
	"sync"

	eventbus "github.com/hanpama/resourceful/internal/eventbus"
	events "github.com/hanpama/resourceful/internal/events"
	reqid "github.com/hanpama/resourceful/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// If endpoint is empty, no telemetry is configured.
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

	sub := newSubscriber(otel.Tracer("resourceful"))
	unsubscribe := sub.register()

	return func(ctx context.Context) error {
		unsubscribe()
		return tp.Shutdown(ctx)
	}, nil
}

type subscriber struct {
	tracer    trace.Tracer
	httpSpans sync.Map // rid -> trace.Span

	mu      sync.Mutex
	opSpans map[opKey][]trace.Span
}

// opKey identifies the spans of one operation within one request. The same
// operation may run more than once per request (format-event per stream
// item), so spans are kept as a stack.
type opKey struct {
	rid       string
	resource  string
	operation string
}

func newSubscriber(tracer trace.Tracer) *subscriber {
	return &subscriber{tracer: tracer, opSpans: make(map[opKey][]trace.Span)}
}

func (s *subscriber) register() (unsubscribe func()) {
	offs := []func(){
		eventbus.Subscribe(s.httpStart),
		eventbus.Subscribe(s.httpFinish),
		eventbus.Subscribe(s.resolveStart),
		eventbus.Subscribe(s.resolveFinish),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

func (s *subscriber) httpStart(ctx context.Context, e events.HTTPStart) {
	rid, _ := reqid.FromContext(ctx)
	_, span := s.tracer.Start(ctx, "http.request")
	attrs := []attribute.KeyValue{attribute.String("resource.path", e.Resource)}
	if e.Request != nil {
		attrs = append(attrs,
			semconv.HTTPMethodKey.String(e.Request.Method),
			attribute.String("http.target", e.Request.URL.Path),
		)
	}
	span.SetAttributes(attrs...)
	s.httpSpans.Store(rid, span)
}

func (s *subscriber) httpFinish(ctx context.Context, e events.HTTPFinish) {
	rid, _ := reqid.FromContext(ctx)
	v, ok := s.httpSpans.LoadAndDelete(rid)
	if !ok {
		return
	}
	span := v.(trace.Span)
	span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
	if e.Status >= 500 {
		span.SetStatus(codes.Error, "")
	}
	span.End()
}

func (s *subscriber) resolveStart(ctx context.Context, e events.ResolveStart) {
	rid, _ := reqid.FromContext(ctx)
	parent := ctx
	if v, ok := s.httpSpans.Load(rid); ok {
		parent = trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	_, span := s.tracer.Start(parent, "resource."+e.Operation)
	span.SetAttributes(
		attribute.String("resource.path", e.Resource),
		attribute.String("resource.descriptor.shape", e.Shape),
	)
	k := opKey{rid: rid, resource: e.Resource, operation: e.Operation}
	s.mu.Lock()
	s.opSpans[k] = append(s.opSpans[k], span)
	s.mu.Unlock()
}

func (s *subscriber) resolveFinish(ctx context.Context, e events.ResolveFinish) {
	rid, _ := reqid.FromContext(ctx)
	k := opKey{rid: rid, resource: e.Resource, operation: e.Operation}
	s.mu.Lock()
	spans := s.opSpans[k]
	if len(spans) == 0 {
		s.mu.Unlock()
		return
	}
	span := spans[len(spans)-1]
	if len(spans) == 1 {
		delete(s.opSpans, k)
	} else {
		s.opSpans[k] = spans[:len(spans)-1]
	}
	s.mu.Unlock()

	span.SetAttributes(attribute.Bool("resource.pending", e.Pending))
	if e.Err != nil {
		span.RecordError(e.Err)
		span.SetStatus(codes.Error, e.Err.Error())
	}
	span.End()
}
