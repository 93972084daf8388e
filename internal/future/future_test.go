package future

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolvedAndFailed(t *testing.T) {
	f := Resolved(7)
	require.True(t, f.Ready())
	v, err := f.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, v)

	boom := errors.New("boom")
	g := Failed[int](boom)
	require.True(t, g.Ready())
	_, err = g.Get(context.Background())
	require.ErrorIs(t, err, boom)
	raw, err := g.Result()
	require.Nil(t, raw)
	require.ErrorIs(t, err, boom)
}

func TestSettleOnce(t *testing.T) {
	f, resolve, reject := New[string]()
	require.False(t, f.Ready())
	resolve("first")
	resolve("second")
	reject(errors.New("late"))
	v, err := f.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, "first", v)
}

func TestThenSettledRunsInline(t *testing.T) {
	out := Then(Resolved(2), func(v any) *Future[int] { return Resolved(v.(int) * 10) })
	require.True(t, out.Ready(), "continuation on a settled source must not be deferred")
	v, err := out.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 20, v)
}

func TestThenPending(t *testing.T) {
	src, resolve, _ := New[string]()
	out := Then(src, func(v any) *Future[string] { return Resolved(v.(string) + "!") })
	require.False(t, out.Ready())

	resolve("hello")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := out.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "hello!", v)
}

func TestThenPropagatesFailure(t *testing.T) {
	boom := errors.New("boom")
	src, _, reject := New[int]()
	called := false
	out := Then(src, func(any) *Future[int] { called = true; return Resolved(1) })
	reject(boom)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := out.Get(ctx)
	require.ErrorIs(t, err, boom)
	require.False(t, called)
}

func TestThenAdoptsInnerFailure(t *testing.T) {
	boom := errors.New("inner")
	src, resolve, _ := New[int]()
	out := Then(src, func(any) *Future[int] { return Failed[int](boom) })
	resolve(1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := out.Get(ctx)
	require.ErrorIs(t, err, boom)
}

func TestGetHonoursContext(t *testing.T) {
	f, _, _ := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Get(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMap(t *testing.T) {
	out := Map(Resolved("abc"), func(s string) (int, error) { return len(s), nil })
	v, err := out.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, v)

	bad := errors.New("bad")
	out2 := Map(Resolved("abc"), func(string) (int, error) { return 0, bad })
	_, err = out2.Get(context.Background())
	require.ErrorIs(t, err, bad)
}
