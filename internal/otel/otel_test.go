package otel

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	eventbus "github.com/hanpama/resourceful/internal/eventbus"
	events "github.com/hanpama/resourceful/internal/events"
	reqid "github.com/hanpama/resourceful/internal/reqid"
	"github.com/stretchr/testify/require"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup("", "svc")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSubscriberNestsResolveSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	eventbus.Use(eventbus.New())
	defer eventbus.Use(nil)
	off := newSubscriber(tp.Tracer("test")).register()
	defer off()

	ctx, _ := reqid.NewContext(context.Background())
	req := httptest.NewRequest("GET", "/hello", nil)
	boom := errors.New("boom")

	eventbus.Publish(ctx, events.HTTPStart{Request: req, Resource: "/hello"})
	eventbus.Publish(ctx, events.ResolveStart{Resource: "/hello", Operation: "body", Shape: "callback"})
	eventbus.Publish(ctx, events.ResolveFinish{Resource: "/hello", Operation: "body", Shape: "callback", Err: boom})
	eventbus.Publish(ctx, events.HTTPFinish{Request: req, Resource: "/hello", Status: 500})

	spans := rec.Ended()
	require.Len(t, spans, 2)
	op, root := spans[0], spans[1]
	require.Equal(t, "resource.body", op.Name())
	require.Equal(t, "http.request", root.Name())
	require.Equal(t, root.SpanContext().SpanID(), op.Parent().SpanID())
	require.Len(t, op.Events(), 1, "the error is recorded on the operation span")
}

func TestSubscriberIgnoresUnknownFinish(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	sub := newSubscriber(tp.Tracer("test"))

	ctx := reqid.WithID(context.Background(), "r1")
	sub.resolveFinish(ctx, events.ResolveFinish{Resource: "/x", Operation: "state"})
	sub.httpFinish(ctx, events.HTTPFinish{Status: 200})
	require.Empty(t, rec.Ended())
}

func TestSubscriberStacksRepeatedOperations(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	sub := newSubscriber(tp.Tracer("test"))

	ctx := reqid.WithID(context.Background(), "r2")
	start := events.ResolveStart{Resource: "/s", Operation: "format-event", Shape: "string"}
	finish := events.ResolveFinish{Resource: "/s", Operation: "format-event", Shape: "string"}
	sub.resolveStart(ctx, start)
	sub.resolveStart(ctx, start)
	sub.resolveFinish(ctx, finish)
	sub.resolveFinish(ctx, finish)
	require.Len(t, rec.Ended(), 2)
	require.Empty(t, sub.opSpans)
}
