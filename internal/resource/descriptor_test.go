package resource

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	future "github.com/hanpama/resourceful/internal/future"
	stream "github.com/hanpama/resourceful/internal/stream"
	"github.com/stretchr/testify/require"
)

// dualValue satisfies both PullStream and AsyncValue. Done never closes
// unless release is called, so waiting on it as an async value blocks.
type dualValue struct {
	items  []any
	done   chan struct{}
	result any
}

func newDual(result any, items ...any) *dualValue {
	return &dualValue{items: items, done: make(chan struct{}), result: result}
}

func (d *dualValue) Next(ctx context.Context) (any, error) {
	if len(d.items) == 0 {
		return nil, io.EOF
	}
	v := d.items[0]
	d.items = d.items[1:]
	return v, nil
}

func (d *dualValue) Done() <-chan struct{} { return d.done }

func (d *dualValue) Result() (any, error) {
	<-d.done
	return d.result, nil
}

func (d *dualValue) release() { close(d.done) }

type widget struct{ Name string }

type method string

func TestOfClassifies(t *testing.T) {
	var nilPtr *widget
	var nilStream *stream.Stream
	var nilFuture *future.Future[any]
	var nilThunk func() any
	now := time.Now()
	f, _, _ := future.New[int]()
	cases := []struct {
		name string
		in   any
		want Shape
	}{
		{"nil", nil, ShapeAbsent},
		{"typed nil pointer", nilPtr, ShapeAbsent},
		{"bool", true, ShapeBool},
		{"int", 42, ShapeNumber},
		{"uint8", uint8(3), ShapeNumber},
		{"float", 1.5, ShapeNumber},
		{"string", "hi", ShapeString},
		{"named string", method("get"), ShapeString},
		{"callback", func(any) (any, error) { return nil, nil }, ShapeFunc},
		{"thunk", func() (any, error) { return nil, nil }, ShapeFunc},
		{"context callback", func(*Context) (any, error) { return nil, nil }, ShapeFunc},
		{"plain thunk", func() any { return nil }, ShapeFunc},
		{"method predicate", func(string) bool { return true }, ShapeFunc},
		{"context function", func(*Context) any { return nil }, ShapeFunc},
		{"bool thunk", func() bool { return true }, ShapeFunc},
		{"fallible predicate", func(string) (bool, error) { return true, nil }, ShapeFunc},
		{"two arguments", func(string, string) bool { return true }, ShapeOpaque},
		{"no result", func(string) {}, ShapeOpaque},
		{"nil thunk", nilThunk, ShapeAbsent},
		{"nil stream", nilStream, ShapeAbsent},
		{"nil future", nilFuture, ShapeAbsent},
		{"set", map[string]struct{}{"get": {}}, ShapeSet},
		{"bool map", map[string]bool{"get": true}, ShapeSet},
		{"symbol", Symbol("get"), ShapeSymbol},
		{"mapping", map[string]any{"text/html": "x"}, ShapeMap},
		{"typed mapping", map[string]int{"a": 1}, ShapeMap},
		{"sequence", []any{1, "a"}, ShapeSeq},
		{"string sequence", []string{"a"}, ShapeSeq},
		{"typed sequence", []int{1, 2}, ShapeSeq},
		{"future", f, ShapeDeferred},
		{"stream", stream.Of(1), ShapeStream},
		{"bytes", []byte("x"), ShapeOpaque},
		{"time", now, ShapeOpaque},
		{"struct", widget{Name: "w"}, ShapeOpaque},
		{"descriptor", Number(9), ShapeNumber},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Of(tc.in).Shape(); got != tc.want {
				t.Fatalf("Of(%T) shape = %s, want %s", tc.in, got, tc.want)
			}
		})
	}
}

func TestOfAdaptsCallbacks(t *testing.T) {
	var seen method
	d := Of(func(m method) bool {
		seen = m
		return m == "get"
	})
	require.True(t, get(t, KnownMethod(d, "get")).Value)
	require.Equal(t, method("get"), seen)
	require.False(t, get(t, KnownMethod(d, "put")).Value)

	c := &Context{URI: "/x"}
	body := Of(func(c *Context) any { return c.URI })
	require.Equal(t, "/x", get(t, Body(body, c)))

	// Arguments of another kind arrive as the zero value.
	var zero int
	_, _ = Of(func(n int) any { zero = n; return nil }).(Func)("get")
	require.Equal(t, 0, zero)

	boom := errors.New("boom")
	failing := Of(func(string) (bool, error) { return false, boom })
	_, err := KnownMethod(failing, "get").Get(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestOfStreamBeforeAsyncValue(t *testing.T) {
	d := newDual(nil)
	var _ AsyncValue = d
	if got := Of(d).Shape(); got != ShapeStream {
		t.Fatalf("dual value classified as %s, want stream", got)
	}
}

func TestOfConvertsNested(t *testing.T) {
	got := Of(map[string]any{
		"a": []any{"x", 1},
		"b": nil,
	})
	want := Map{
		"a": Seq{String("x"), Number(1)},
		"b": Absent{},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Of mismatch (-want +got):\n%s", diff)
	}
}

func TestSeqAsSet(t *testing.T) {
	q := Seq{NewSet("text/html"), String("application/json"), Symbol("text/plain"), Seq{String("text/csv")}, Number(1)}
	want := NewSet("text/html", "application/json", "text/plain", "text/csv")
	if diff := cmp.Diff(want, q.asSet()); diff != "" {
		t.Fatalf("asSet mismatch (-want +got):\n%s", diff)
	}
}

func TestTruthy(t *testing.T) {
	cases := map[string]struct {
		d    Descriptor
		want bool
	}{
		"nil":    {nil, false},
		"absent": {Absent{}, false},
		"false":  {Bool(false), false},
		"true":   {Bool(true), true},
		"zero":   {Number(0), true},
		"empty":  {String(""), true},
		"opaque": {Opaque{Value: widget{}}, true},
	}
	for name, tc := range cases {
		if got := truthy(tc.d); got != tc.want {
			t.Errorf("%s: truthy = %v, want %v", name, got, tc.want)
		}
	}
}

func TestRawValues(t *testing.T) {
	d := Map{
		"set": NewSet("b", "a"),
		"seq": Seq{String("x"), Bool(true)},
		"num": Number(2),
	}
	want := map[string]any{
		"set": []string{"a", "b"},
		"seq": []any{"x", true},
		"num": float64(2),
	}
	if diff := cmp.Diff(want, d.Raw()); diff != "" {
		t.Fatalf("Raw mismatch (-want +got):\n%s", diff)
	}
}

func TestShapeString(t *testing.T) {
	if ShapeDeferred.String() != "async-value" || ShapeOpaque.String() != "opaque-object" {
		t.Fatalf("unexpected shape names: %s %s", ShapeDeferred, ShapeOpaque)
	}
	if Shape(99).String() != "shape(99)" {
		t.Fatalf("unexpected name for unknown shape: %s", Shape(99))
	}
}
