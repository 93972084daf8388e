package resource

import (
	"maps"
	"strings"
)

// Context is the per-request carrier owned by the request pipeline. The
// resolver reads Response.ContentType and otherwise passes it along.
type Context struct {
	Method   string
	URI      string
	Response Response
	// Authorization is the slot filled by Authenticate.
	Authorization any
	// Values carries pipeline data such as the resolved state or the request
	// body.
	Values map[string]any
}

// Response holds the response fields operations may override.
type Response struct {
	ContentType string
	Status      int
	Headers     map[string]string
	Body        any
	// Extra holds merged fields with no dedicated slot.
	Extra map[string]any
}

// Clone returns a copy whose maps can be modified without touching c.
// Cloning a nil context yields an empty one.
func (c *Context) Clone() *Context {
	if c == nil {
		return &Context{}
	}
	out := *c
	out.Values = maps.Clone(c.Values)
	out.Response.Headers = maps.Clone(c.Response.Headers)
	out.Response.Extra = maps.Clone(c.Response.Extra)
	return &out
}

func (c *Context) contentType() string {
	if c == nil {
		return ""
	}
	return c.Response.ContentType
}

// mergeResponse returns a clone of c with the entries of m merged into the
// response. status, headers, body and content-type have slots of their own;
// any other key lands in Response.Extra.
func (c *Context) mergeResponse(m Map) *Context {
	out := c.Clone()
	for k, v := range m {
		switch strings.ToLower(k) {
		case "status":
			if n, ok := v.(Number); ok {
				out.Response.Status = int(n)
			}
		case "headers":
			hm, ok := v.(Map)
			if !ok {
				continue
			}
			if out.Response.Headers == nil {
				out.Response.Headers = make(map[string]string, len(hm))
			}
			for hk, hv := range headerValues(hm) {
				out.Response.Headers[hk] = hv
			}
		case "body":
			out.Response.Body = raw(v)
		case "content-type":
			if s, ok := v.(String); ok {
				out.Response.ContentType = string(s)
			}
		default:
			if out.Response.Extra == nil {
				out.Response.Extra = make(map[string]any)
			}
			out.Response.Extra[k] = raw(v)
		}
	}
	return out
}
