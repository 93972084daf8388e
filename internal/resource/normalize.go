package resource

import (
	future "github.com/hanpama/resourceful/internal/future"
)

// invoke calls a callback with the argument the operation supplies.
func invoke(f Func, arg any) (any, error) {
	if f == nil {
		return nil, nil
	}
	return f(arg)
}

// normalize unwraps the raw result of a callback and dispatches the same
// operation again on what it finds.
//
// Priority: a PullStream is tested before an AsyncValue. A stream satisfies
// AsyncValue structurally, and waiting on it would stall until someone else
// drained it. Of applies the same order.
func normalize[T any](raw any, err error, redispatch func(Descriptor) *future.Future[T]) *future.Future[T] {
	if err != nil {
		return future.Failed[T](err)
	}
	switch d := Of(raw).(type) {
	case Stream:
		return redispatch(d)
	case Deferred:
		return await(d.Value, redispatch)
	default:
		return redispatch(d)
	}
}

// normalizeAwait is normalize without the stream rule, for authorize, status
// and produces. Any result that is structurally an AsyncValue, streams
// included, is waited for. A stream settles when its producer finishes, not
// when it is drained, so waiting on one never needs a reader.
func normalizeAwait[T any](raw any, err error, redispatch func(Descriptor) *future.Future[T]) *future.Future[T] {
	if err != nil {
		return future.Failed[T](err)
	}
	if v := asAsync(raw); v != nil {
		return await(v, redispatch)
	}
	return redispatch(Of(raw))
}

// await dispatches on the settled value of v. A failure of v fails the
// operation with the same error.
func await[T any](v AsyncValue, redispatch func(Descriptor) *future.Future[T]) *future.Future[T] {
	if v == nil {
		return redispatch(Absent{})
	}
	return future.Then(v, func(settled any) *future.Future[T] {
		return redispatch(Of(settled))
	})
}

func asAsync(raw any) AsyncValue {
	switch v := raw.(type) {
	case Deferred:
		return v.Value
	case Stream:
		return v.Value
	case Descriptor:
		return nil
	case AsyncValue:
		return v
	}
	return nil
}
