package resource

import (
	"fmt"
	"time"

	future "github.com/hanpama/resourceful/internal/future"
)

// State returns the resource state for the request. Concrete descriptors are
// their own state; a stream is returned as is.
func State(d Descriptor, c *Context) *future.Future[any] {
	again := func(next Descriptor) *future.Future[any] { return State(next, c) }
	switch d := d.(type) {
	case nil, Absent:
		return future.Resolved[any](nil)
	case Func:
		raw, err := invoke(d, c)
		return normalize(raw, err, again)
	case Deferred:
		return await(d.Value, again)
	case Stream:
		return future.Resolved[any](d.Value)
	default:
		return future.Resolved(d.Raw())
	}
}

// Body returns the representation to send. A mapping is keyed by content
// type and resolved against c.Response.ContentType.
func Body(d Descriptor, c *Context) *future.Future[any] {
	again := func(next Descriptor) *future.Future[any] { return Body(next, c) }
	switch d := d.(type) {
	case nil, Absent:
		return future.Resolved[any](nil)
	case String:
		return future.Resolved[any](string(d))
	case Map:
		entry, ok := d[c.contentType()]
		if !ok {
			return future.Resolved[any](nil)
		}
		return Body(entry, c)
	case Seq:
		return future.Resolved(d.Raw())
	case Stream:
		return future.Resolved[any](&Source{stream: d.Value})
	case Opaque:
		return future.Resolved(d.Value)
	case Func:
		raw, err := invoke(d, c)
		return normalize(raw, err, again)
	case Deferred:
		return await(d.Value, again)
	default:
		return future.Resolved[any](nil)
	}
}

// Produces returns the content types the resource can produce.
func Produces(d Descriptor) *future.Future[Set] {
	switch d := d.(type) {
	case nil, Absent:
		return future.Resolved[Set](nil)
	case Set:
		return future.Resolved(d)
	case String:
		return future.Resolved(NewSet(string(d)))
	case Symbol:
		return future.Resolved(NewSet(string(d)))
	case Seq:
		return Produces(d.asSet())
	case Func:
		raw, err := invoke(d, nil)
		return normalizeAwait(raw, err, Produces)
	case Deferred:
		return await(d.Value, Produces)
	default:
		return future.Resolved[Set](nil)
	}
}

// ProducesFromBody returns the content types a body descriptor implies: the
// keys of a mapping. A callback body needs a request context and is not
// called.
func ProducesFromBody(d Descriptor) *future.Future[Set] {
	switch d := d.(type) {
	case Map:
		s := make(Set, len(d))
		for k := range d {
			s[k] = struct{}{}
		}
		return future.Resolved(s)
	default:
		return future.Resolved[Set](nil)
	}
}

// Status returns the status override, or 0 for none.
func Status(d Descriptor) *future.Future[int] {
	switch d := d.(type) {
	case Number:
		return future.Resolved(int(d))
	case Func:
		raw, err := invoke(d, nil)
		return normalizeAwait(raw, err, Status)
	case Deferred:
		return await(d.Value, Status)
	default:
		return future.Resolved(0)
	}
}

// Headers returns the header overrides.
func Headers(d Descriptor) *future.Future[map[string]string] {
	switch d := d.(type) {
	case Map:
		return future.Resolved(headerValues(d))
	case Func:
		raw, err := invoke(d, nil)
		return normalize(raw, err, Headers)
	case Deferred:
		return await(d.Value, Headers)
	default:
		return future.Resolved[map[string]string](nil)
	}
}

// FormatEvent renders d as server-sent event frames.
//
// A mapping produces no frame. It is not obvious how a mapping would become a
// single event, so it is left untranslated.
func FormatEvent(d Descriptor) *future.Future[[]string] {
	switch d := d.(type) {
	case String:
		return future.Resolved([]string{fmt.Sprintf("data: %s\n", string(d))})
	case Seq:
		pending := make([]*future.Future[[]string], len(d))
		for i, e := range d {
			pending[i] = FormatEvent(e)
		}
		return collectFrames(pending, nil)
	case Func:
		raw, err := invoke(d, nil)
		return normalize(raw, err, FormatEvent)
	case Deferred:
		return await(d.Value, FormatEvent)
	default:
		return future.Resolved[[]string](nil)
	}
}

// collectFrames concatenates the frames of each future in order.
func collectFrames(pending []*future.Future[[]string], acc []string) *future.Future[[]string] {
	if len(pending) == 0 {
		return future.Resolved(acc)
	}
	return future.Then(pending[0], func(v any) *future.Future[[]string] {
		frames, _ := v.([]string)
		return collectFrames(pending[1:], append(acc, frames...))
	})
}

// LastModified returns when the resource last changed. A number is epoch
// milliseconds. The zero time means unknown.
func LastModified(d Descriptor, c *Context) *future.Future[time.Time] {
	again := func(next Descriptor) *future.Future[time.Time] { return LastModified(next, c) }
	switch d := d.(type) {
	case Number:
		return future.Resolved(time.UnixMilli(int64(d)).UTC())
	case Opaque:
		switch t := d.Value.(type) {
		case time.Time:
			return future.Resolved(t)
		case *time.Time:
			if t != nil {
				return future.Resolved(*t)
			}
		}
		return future.Resolved(time.Time{})
	case Func:
		raw, err := invoke(d, c)
		return normalize(raw, err, again)
	case Deferred:
		return await(d.Value, again)
	default:
		return future.Resolved(time.Time{})
	}
}
