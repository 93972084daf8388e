package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	eventbus "github.com/hanpama/resourceful/internal/eventbus"
	events "github.com/hanpama/resourceful/internal/events"
	future "github.com/hanpama/resourceful/internal/future"
	reqid "github.com/hanpama/resourceful/internal/reqid"
	resource "github.com/hanpama/resourceful/internal/resource"
)

// Handler is an http.Handler that serves the resources of a registry.
// Each request walks the resource's decision pipeline, from availability to
// body, and stops at the first decision that ends it.
type Handler struct {
	reg *resource.Registry
	opt Options
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-Id"

const eventStream = "text/event-stream"

// Keys of resource.Context.Values filled by the handler.
const (
	ValueRequestID = "request-id"
	ValueState     = "state"
	ValueBody      = "request-body"
	ValueHeader    = "request-header"
)

// New creates a handler serving the resources in reg.
func New(reg *resource.Registry, opts ...Option) (*Handler, error) {
	if reg == nil {
		return nil, errors.New("server: nil registry")
	}
	op := Options{Timeout: 10 * time.Second}
	for _, f := range opts {
		f(&op)
	}
	return &Handler{reg: reg, opt: op}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	var rid string
	if id := r.Header.Get(RequestIDHeader); id != "" {
		ctx, rid = reqid.WithID(ctx, id), id
	} else {
		ctx, rid = reqid.NewContext(ctx)
	}
	w.Header().Set(RequestIDHeader, rid)

	res, ok := h.reg.Lookup(r.URL.Path)
	if !ok {
		writeError(w, http.StatusNotFound, "no resource at "+r.URL.Path, h.opt.Pretty)
		return
	}

	rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r, Resource: res.Path()})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Resource: res.Path(), Status: rw.status, Duration: time.Since(start)})
	}()

	c := &resource.Context{
		Method: strings.ToLower(r.Method),
		URI:    r.URL.RequestURI(),
		Values: map[string]any{
			ValueRequestID: rid,
			ValueHeader:    r.Header.Clone(),
		},
	}
	p := &pipeline{h: h, res: res, w: rw, r: r, c: c}
	if err := p.run(ctx); err != nil {
		p.fail(err)
	}
}

// pipeline carries one request through the decisions of its resource.
type pipeline struct {
	h   *Handler
	res *resource.Resource
	w   *statusWriter
	r   *http.Request
	c   *resource.Context
}

// errHalt ends the pipeline with an already written response.
var errHalt = errors.New("halt")

// errBodyTooLarge is returned when the request body exceeds MaxBodyBytes.
var errBodyTooLarge = errors.New("body too large")

func (p *pipeline) run(ctx context.Context) error {
	avail, err := wait(ctx, p.res.ServiceAvailable(ctx))
	if err != nil {
		return err
	}
	if !avail.Value {
		p.setHeaders(avail.Overrides.Headers)
		return p.stop(http.StatusServiceUnavailable, "service unavailable")
	}

	tooLong, err := wait(ctx, p.res.RequestURITooLong(ctx, p.c.URI))
	if err != nil {
		return err
	}
	if tooLong.Value {
		p.setHeaders(tooLong.Overrides.Headers)
		return p.stop(http.StatusRequestURITooLong, "request URI too long")
	}

	known, err := wait(ctx, p.res.KnownMethod(ctx, p.c.Method))
	if err != nil {
		return err
	}
	if !known.Value {
		return p.stop(http.StatusNotImplemented, "unknown method "+p.r.Method)
	}

	allowed, err := wait(ctx, p.res.AllowedMethods(ctx))
	if err != nil {
		return err
	}
	p.w.Header().Set("Allow", allowHeader(allowed))
	if !allowed.ContainsFold(p.c.Method) {
		return p.stop(http.StatusMethodNotAllowed, "method not allowed")
	}

	origin, err := wait(ctx, p.res.AllowOrigin(ctx, p.c))
	if err != nil {
		return err
	}
	if origin != "" {
		p.w.Header().Set("Access-Control-Allow-Origin", origin)
		if origin != "*" {
			p.w.Header().Add("Vary", "Origin")
		}
	}

	if p.c.Method == "options" {
		if hdr := p.r.Header.Get("Access-Control-Request-Headers"); hdr != "" && origin != "" {
			p.w.Header().Set("Access-Control-Allow-Headers", hdr)
			p.w.Header().Set("Access-Control-Allow-Methods", strings.ToUpper(strings.Join(allowed.Members(), ",")))
		}
		p.w.WriteHeader(http.StatusNoContent)
		return nil
	}

	auth, err := wait(ctx, p.res.Authenticate(ctx, p.c))
	if err != nil {
		return err
	}
	if !auth.Granted && p.res.Has(resource.OpAuthorize) {
		return p.stop(http.StatusUnauthorized, "unauthorized")
	}
	if auth.Granted {
		p.c = auth.Context
	}

	state, err := wait(ctx, p.res.State(ctx, p.c))
	if err != nil {
		return err
	}
	p.c.Values[ValueState] = state

	modified, err := wait(ctx, p.res.LastModified(ctx, p.c))
	if err != nil {
		return err
	}
	if !modified.IsZero() {
		modified = modified.UTC().Truncate(time.Second)
		p.w.Header().Set("Last-Modified", modified.Format(http.TimeFormat))
		if p.c.Method == "get" || p.c.Method == "head" {
			if ims, err := http.ParseTime(p.r.Header.Get("If-Modified-Since")); err == nil && !modified.After(ims) {
				p.w.WriteHeader(http.StatusNotModified)
				return nil
			}
		}
	}

	if err := p.negotiate(ctx); err != nil {
		return err
	}

	status := http.StatusOK
	if p.c.Method == "post" {
		status = http.StatusCreated
		if err := p.post(ctx); err != nil {
			return err
		}
	}
	if p.c.Response.Body == nil {
		body, err := wait(ctx, p.res.Body(ctx, p.c))
		if err != nil {
			return err
		}
		p.c.Response.Body = body
	}
	if src, ok := p.c.Response.Body.(*resource.Source); ok {
		defer src.Close()
	}

	override, err := wait(ctx, p.res.Status(ctx))
	if err != nil {
		return err
	}
	if override != 0 {
		status = override
	}
	if p.c.Response.Status != 0 {
		status = p.c.Response.Status
	}
	headers, err := wait(ctx, p.res.Headers(ctx))
	if err != nil {
		return err
	}
	p.setHeaders(headers)
	p.setHeaders(p.c.Response.Headers)

	return p.write(ctx, status)
}

// negotiate intersects the declared and body-implied content types with the
// Accept header.
func (p *pipeline) negotiate(ctx context.Context) error {
	declared, err := wait(ctx, p.res.Produces(ctx))
	if err != nil {
		return err
	}
	implied, err := wait(ctx, p.res.ProducesFromBody(ctx))
	if err != nil {
		return err
	}
	offers := declared.Union(implied).Members()
	if len(offers) == 0 {
		return nil
	}
	ct := negotiate(p.r.Header.Get("Accept"), offers)
	if ct == "" {
		return p.stop(http.StatusNotAcceptable, "none of "+strings.Join(offers, ", ")+" is acceptable")
	}
	p.c.Response.ContentType = ct
	return nil
}

func (p *pipeline) post(ctx context.Context) error {
	reader := io.Reader(p.r.Body)
	if p.h.opt.MaxBodyBytes > 0 {
		reader = io.LimitReader(p.r.Body, p.h.opt.MaxBodyBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if p.h.opt.MaxBodyBytes > 0 && int64(len(body)) > p.h.opt.MaxBodyBytes {
		return errBodyTooLarge
	}
	p.c.Values[ValueBody] = body

	result, err := wait(ctx, p.res.Post(ctx, p.c))
	if err != nil {
		return err
	}
	next, err := wait(ctx, p.res.InterpretPostResult(ctx, result, p.c))
	if err != nil {
		return err
	}
	p.c = next
	return nil
}

func (p *pipeline) write(ctx context.Context, status int) error {
	ct := p.c.Response.ContentType
	head := p.c.Method == "head"
	switch body := p.c.Response.Body.(type) {
	case nil:
		if status == http.StatusOK {
			status = http.StatusNoContent
		}
		p.w.WriteHeader(status)
	case string:
		p.setContentType(ct, "text/plain; charset=utf-8")
		p.w.WriteHeader(status)
		if !head {
			_, _ = io.WriteString(p.w, body)
		}
	case []byte:
		p.setContentType(ct, "application/octet-stream")
		p.w.WriteHeader(status)
		if !head {
			_, _ = p.w.Write(body)
		}
	case *resource.Source:
		if ct == "" || ct == eventStream {
			return p.writeEvents(ctx, status, body)
		}
		if !isJSON(ct) {
			return p.writeChunks(ctx, status, ct, body)
		}
		var items []any
		if err := body.Drain(ctx, func(v any) error {
			items = append(items, v)
			return nil
		}); err != nil {
			return err
		}
		p.writeValue(status, ct, items, head)
	default:
		p.writeValue(status, ct, body, head)
	}
	return nil
}

func (p *pipeline) writeValue(status int, ct string, v any, head bool) {
	if ct == "" {
		ct = "application/json; charset=utf-8"
	}
	p.w.Header().Set("Content-Type", ct)
	if head {
		p.w.WriteHeader(status)
		return
	}
	writeJSON(p.w, status, v, p.h.opt.Pretty)
}

// writeEvents sends each stream item as one server-sent event.
func (p *pipeline) writeEvents(ctx context.Context, status int, src *resource.Source) error {
	p.w.Header().Set("Content-Type", eventStream)
	p.w.Header().Set("Cache-Control", "no-cache")
	p.w.WriteHeader(status)
	if p.c.Method == "head" {
		return nil
	}
	flusher, _ := p.w.ResponseWriter.(http.Flusher)
	return src.Drain(ctx, func(item any) error {
		frames, err := wait(ctx, p.res.FormatEvent(ctx, item))
		if err != nil {
			return err
		}
		if len(frames) == 0 {
			return nil
		}
		if _, err := io.WriteString(p.w, strings.Join(frames, "")+"\n"); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
}

// writeChunks copies stream items to the response as they arrive. Bytes and
// strings are written as is, other items as one JSON value per line.
func (p *pipeline) writeChunks(ctx context.Context, status int, ct string, src *resource.Source) error {
	p.w.Header().Set("Content-Type", ct)
	p.w.WriteHeader(status)
	if p.c.Method == "head" {
		return nil
	}
	flusher, _ := p.w.ResponseWriter.(http.Flusher)
	enc := json.NewEncoder(p.w)
	return src.Drain(ctx, func(item any) error {
		var err error
		switch v := item.(type) {
		case []byte:
			_, err = p.w.Write(v)
		case string:
			_, err = io.WriteString(p.w, v)
		default:
			err = enc.Encode(v)
		}
		if err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
}

func isJSON(ct string) bool {
	base, _, _ := strings.Cut(ct, ";")
	base = strings.ToLower(strings.TrimSpace(base))
	return base == "application/json" || strings.HasSuffix(base, "+json")
}

// stop writes an error response and halts the pipeline.
func (p *pipeline) stop(status int, msg string) error {
	writeError(p.w, status, msg, p.h.opt.Pretty)
	return errHalt
}

// fail maps a pipeline error to a response unless one was already sent.
func (p *pipeline) fail(err error) {
	if errors.Is(err, errHalt) || p.w.wrote {
		return
	}
	switch {
	case errors.Is(err, errBodyTooLarge):
		writeError(p.w, http.StatusRequestEntityTooLarge, err.Error(), p.h.opt.Pretty)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(p.w, http.StatusServiceUnavailable, "resource timed out", p.h.opt.Pretty)
	default:
		writeError(p.w, http.StatusInternalServerError, err.Error(), p.h.opt.Pretty)
	}
}

func (p *pipeline) setHeaders(h map[string]string) {
	for k, v := range h {
		p.w.Header().Set(k, v)
	}
}

func (p *pipeline) setContentType(ct, fallback string) {
	if ct == "" {
		ct = fallback
	}
	p.w.Header().Set("Content-Type", ct)
}

func wait[T any](ctx context.Context, f *future.Future[T]) (T, error) {
	return f.Get(ctx)
}

func allowHeader(s resource.Set) string {
	ms := s.Members()
	for i, m := range ms {
		ms[i] = strings.ToUpper(m)
	}
	sort.Strings(ms)
	return strings.Join(ms, ", ")
}

// statusWriter records the status sent to the client.
type statusWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (w *statusWriter) WriteHeader(status int) {
	if w.wrote {
		return
	}
	w.status, w.wrote = status, true
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	writeJSON(w, status, errorBody{Error: msg}, pretty)
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}
