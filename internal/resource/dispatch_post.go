package resource

import (
	future "github.com/hanpama/resourceful/internal/future"
)

// Post performs the POST action. Concrete descriptors are their own result
// and are handed to InterpretPostResult unchanged.
func Post(d Descriptor, c *Context) *future.Future[Descriptor] {
	again := func(next Descriptor) *future.Future[Descriptor] { return Post(next, c) }
	switch d := d.(type) {
	case nil, Absent:
		return future.Resolved[Descriptor](Absent{})
	case Func:
		raw, err := invoke(d, c)
		return normalize(raw, err, again)
	case Deferred:
		return await(d.Value, again)
	default:
		return future.Resolved[Descriptor](d)
	}
}

// InterpretPostResult folds a post result into the request context.
//
//   - true leaves c as it is; false fails with ErrPostFailed.
//   - a string becomes the response body.
//   - a mapping is merged into the response fields.
//   - a *Context returned by a callback replaces c.
//
// Anything else leaves c untouched.
func InterpretPostResult(d Descriptor, c *Context) *future.Future[*Context] {
	again := func(next Descriptor) *future.Future[*Context] { return InterpretPostResult(next, c) }
	switch d := d.(type) {
	case Bool:
		if !d {
			return future.Failed[*Context](ErrPostFailed)
		}
		return future.Resolved(c)
	case String:
		out := c.Clone()
		out.Response.Body = string(d)
		return future.Resolved(out)
	case Map:
		return future.Resolved(c.mergeResponse(d))
	case Opaque:
		if next, ok := d.Value.(*Context); ok && next != nil {
			return future.Resolved(next)
		}
		return future.Resolved(c)
	case Func:
		raw, err := invoke(d, c)
		return normalize(raw, err, again)
	case Deferred:
		return await(d.Value, again)
	default:
		return future.Resolved(c)
	}
}

// Authorize decides whether the request is allowed. A truthy result grants
// access and is passed on to Authorization.
func Authorize(d Descriptor, c *Context) *future.Future[Descriptor] {
	again := func(next Descriptor) *future.Future[Descriptor] { return Authorize(next, c) }
	switch d := d.(type) {
	case nil, Absent:
		return future.Resolved[Descriptor](Absent{})
	case Func:
		raw, err := invoke(d, c)
		return normalizeAwait(raw, err, again)
	case Deferred:
		return await(d.Value, again)
	default:
		return future.Resolved[Descriptor](d)
	}
}

// Authorization turns an authorize result into the value stored in the
// context's authorization slot. A bare grant carries no value.
func Authorization(d Descriptor) *future.Future[any] {
	switch d := d.(type) {
	case nil, Absent, Bool:
		return future.Resolved[any](nil)
	case Func:
		raw, err := invoke(d, nil)
		return normalize(raw, err, Authorization)
	case Deferred:
		return await(d.Value, Authorization)
	default:
		return future.Resolved(d.Raw())
	}
}

// Authenticate runs Authorize and, when it grants access, stores the result
// of Authorization in a copy of c.
func Authenticate(d Descriptor, c *Context) *future.Future[Authentication] {
	return future.Then(Authorize(d, c), func(v any) *future.Future[Authentication] {
		granted, _ := v.(Descriptor)
		if !truthy(granted) {
			return future.Resolved(Authentication{Context: c})
		}
		return future.Map(Authorization(granted), func(auth any) (Authentication, error) {
			out := c.Clone()
			out.Authorization = auth
			return Authentication{Granted: true, Context: out}, nil
		})
	})
}

// AllowOrigin returns the Access-Control-Allow-Origin value, or "" for none.
func AllowOrigin(d Descriptor, c *Context) *future.Future[string] {
	again := func(next Descriptor) *future.Future[string] { return AllowOrigin(next, c) }
	switch d := d.(type) {
	case Bool:
		if d {
			return future.Resolved("*")
		}
		return future.Resolved("")
	case String:
		return future.Resolved(string(d))
	case Func:
		raw, err := invoke(d, c)
		return normalize(raw, err, again)
	case Deferred:
		return await(d.Value, again)
	default:
		return future.Resolved("")
	}
}
