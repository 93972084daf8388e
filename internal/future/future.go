// Package future provides a single-assignment result that may already be
// settled or may settle later.
//
// Every resolver operation returns a *Future. Synchronous outcomes come back
// pre-settled, so a caller reads them the same way it waits for a pending one.
// A Future is itself an Awaitable, so a pending result can be handed back in as
// a descriptor and resolved again.
package future

import (
	"context"
	"sync"
)

// Awaitable is a value that produces exactly one result or one failure,
// possibly later. Result must only be trusted after Done is closed; the
// implementations in this module block until then.
type Awaitable interface {
	Done() <-chan struct{}
	Result() (any, error)
}

// Future holds the eventual outcome of an operation.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

// New returns a pending future together with the functions that settle it.
// Only the first call to either function has an effect.
func New[T any]() (*Future[T], func(T), func(error)) {
	f := &Future[T]{done: make(chan struct{})}
	return f, f.resolve, f.reject
}

// Resolved returns a future already settled with v.
func Resolved[T any](v T) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	f.resolve(v)
	return f
}

// Failed returns a future already settled with err.
func Failed[T any](err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	f.reject(err)
	return f
}

func (f *Future[T]) resolve(v T) {
	f.once.Do(func() {
		f.value = v
		close(f.done)
	})
}

func (f *Future[T]) reject(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done is closed once the future has settled.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Ready reports whether the future has settled.
func (f *Future[T]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result blocks until the future settles and returns its outcome untyped.
func (f *Future[T]) Result() (any, error) {
	<-f.done
	if f.err != nil {
		return nil, f.err
	}
	return f.value, nil
}

// Get waits for the future or for ctx to end, whichever comes first.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then continues with fn once src settles successfully and adopts the future
// fn returns. A failure of src becomes the failure of the result unchanged.
//
// When src has already settled, fn runs on the calling goroutine and no
// goroutine is started.
func Then[T any](src Awaitable, fn func(any) *Future[T]) *Future[T] {
	select {
	case <-src.Done():
		v, err := src.Result()
		if err != nil {
			return Failed[T](err)
		}
		return fn(v)
	default:
	}

	out, resolve, reject := New[T]()
	go func() {
		<-src.Done()
		v, err := src.Result()
		if err != nil {
			reject(err)
			return
		}
		next := fn(v)
		<-next.done
		if next.err != nil {
			reject(next.err)
			return
		}
		resolve(next.value)
	}()
	return out
}

// Map transforms the settled value of f.
func Map[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	return Then(f, func(v any) *Future[U] {
		t, _ := v.(T)
		u, err := fn(t)
		if err != nil {
			return Failed[U](err)
		}
		return Resolved(u)
	})
}
