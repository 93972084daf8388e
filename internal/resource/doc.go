// Package resource resolves the behaviour of an HTTP resource from
// descriptors of arbitrary shape.
//
// # Overview
//
// A resource author does not implement an interface. For each lifecycle
// operation (service-available?, known-method?, body, post, ...) they supply a
// descriptor: a boolean, a number, a string, a callback, a set, a mapping, a
// sequence, an async value, a stream or any other object. The package maps
// every (shape, operation) pair to a behaviour. There is no unhandled shape:
// Opaque catches everything Of cannot classify, and Absent supplies the
// defaults used when no descriptor was given:
//
//   - the service is available;
//   - known and allowed methods are get, put, post, delete, options, head;
//   - a request URI may be 4096 bytes long;
//   - there is no state, no body and no last-modified time.
//
// # Descriptors
//
// Descriptor is a closed union. Of classifies a plain Go value once, at
// registration time. The order of the tests matters in one place: a
// PullStream is also an AsyncValue, so streams are recognised first.
//
// # Dispatch and normalization
//
// Each operation is a function with one type switch over the variants. A Func
// arm calls the callback and hands the raw result to the normalizer, which
// dispatches the same operation again on the unwrapped value:
//
//	result is a PullStream  -> dispatch on Stream
//	result is an AsyncValue -> wait for it, then dispatch on the settled value
//	otherwise               -> dispatch on Of(result)
//
// service-available?, known-method?, request-uri-too-long?, state, body and
// last-modified use this order. The remaining callback arms skip the stream
// test, so a stream returned there is waited for like any async value.
//
// Recursion ends on the concrete shapes. A callback that keeps returning
// callbacks is called once per level, indefinitely.
//
// # Results
//
// Every operation returns a *future.Future. Already-known results come back
// settled and no goroutine is involved; only waiting on an async value
// suspends, through future.Then. Failures of async values and callback errors
// propagate unchanged. Nothing in this package cancels a pending wait; the
// caller bounds it with Future.Get and a context.
//
// # Events
//
// The operations on *Resource publish events.ResolveStart and
// events.ResolveFinish on the global event bus. The package-level functions
// publish nothing.
package resource
