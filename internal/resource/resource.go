package resource

import (
	"context"
	"fmt"
	"sync"
	"time"

	eventbus "github.com/hanpama/resourceful/internal/eventbus"
	events "github.com/hanpama/resourceful/internal/events"
	future "github.com/hanpama/resourceful/internal/future"
)

// Resource binds one descriptor per registrable operation to a path.
// Descriptors are classified once, at construction, and never modified.
type Resource struct {
	path        string
	descriptors [numOperations]Descriptor
}

// New classifies descriptors with Of and returns the resource. Operations
// without an entry behave as Absent.
func New(path string, descriptors map[Operation]any) (*Resource, error) {
	r := &Resource{path: path}
	for i := range r.descriptors {
		r.descriptors[i] = Absent{}
	}
	for op, v := range descriptors {
		if !op.Registrable() {
			return nil, fmt.Errorf("resource %s: operation %s cannot carry a descriptor", path, op)
		}
		r.descriptors[op] = Of(v)
	}
	return r, nil
}

// Path returns the path the resource was created for.
func (r *Resource) Path() string { return r.path }

// Descriptor returns the descriptor registered for op, Absent if none.
func (r *Resource) Descriptor(op Operation) Descriptor {
	if op < 0 || op >= numOperations {
		return Absent{}
	}
	return r.descriptors[op]
}

// Has reports whether a descriptor was registered for op.
func (r *Resource) Has(op Operation) bool {
	_, absent := r.Descriptor(op).(Absent)
	return !absent
}

func (r *Resource) ServiceAvailable(ctx context.Context) *future.Future[Verdict] {
	d := r.Descriptor(OpServiceAvailable)
	return track(ctx, r, OpServiceAvailable, d, func() *future.Future[Verdict] { return ServiceAvailable(d) })
}

func (r *Resource) KnownMethod(ctx context.Context, method string) *future.Future[Verdict] {
	d := r.Descriptor(OpKnownMethod)
	return track(ctx, r, OpKnownMethod, d, func() *future.Future[Verdict] { return KnownMethod(d, method) })
}

func (r *Resource) RequestURITooLong(ctx context.Context, uri string) *future.Future[Verdict] {
	d := r.Descriptor(OpRequestURITooLong)
	return track(ctx, r, OpRequestURITooLong, d, func() *future.Future[Verdict] { return RequestURITooLong(d, uri) })
}

func (r *Resource) AllowedMethods(ctx context.Context) *future.Future[Set] {
	d := r.Descriptor(OpAllowedMethods)
	return track(ctx, r, OpAllowedMethods, d, func() *future.Future[Set] { return AllowedMethods(d) })
}

func (r *Resource) State(ctx context.Context, c *Context) *future.Future[any] {
	d := r.Descriptor(OpState)
	return track(ctx, r, OpState, d, func() *future.Future[any] { return State(d, c) })
}

func (r *Resource) Body(ctx context.Context, c *Context) *future.Future[any] {
	d := r.Descriptor(OpBody)
	return track(ctx, r, OpBody, d, func() *future.Future[any] { return Body(d, c) })
}

func (r *Resource) Produces(ctx context.Context) *future.Future[Set] {
	d := r.Descriptor(OpProduces)
	return track(ctx, r, OpProduces, d, func() *future.Future[Set] { return Produces(d) })
}

// ProducesFromBody works on the body descriptor.
func (r *Resource) ProducesFromBody(ctx context.Context) *future.Future[Set] {
	d := r.Descriptor(OpBody)
	return track(ctx, r, OpProducesFromBody, d, func() *future.Future[Set] { return ProducesFromBody(d) })
}

func (r *Resource) Status(ctx context.Context) *future.Future[int] {
	d := r.Descriptor(OpStatus)
	return track(ctx, r, OpStatus, d, func() *future.Future[int] { return Status(d) })
}

func (r *Resource) Headers(ctx context.Context) *future.Future[map[string]string] {
	d := r.Descriptor(OpHeaders)
	return track(ctx, r, OpHeaders, d, func() *future.Future[map[string]string] { return Headers(d) })
}

func (r *Resource) Post(ctx context.Context, c *Context) *future.Future[Descriptor] {
	d := r.Descriptor(OpPost)
	return track(ctx, r, OpPost, d, func() *future.Future[Descriptor] { return Post(d, c) })
}

// InterpretPostResult works on a result returned by Post.
func (r *Resource) InterpretPostResult(ctx context.Context, result Descriptor, c *Context) *future.Future[*Context] {
	return track(ctx, r, OpInterpretPostResult, result, func() *future.Future[*Context] { return InterpretPostResult(result, c) })
}

// Authenticate runs authorize and authorization for the request.
func (r *Resource) Authenticate(ctx context.Context, c *Context) *future.Future[Authentication] {
	d := r.Descriptor(OpAuthorize)
	return track(ctx, r, OpAuthorize, d, func() *future.Future[Authentication] { return Authenticate(d, c) })
}

// FormatEvent renders one item drained from a body stream.
func (r *Resource) FormatEvent(ctx context.Context, item any) *future.Future[[]string] {
	d := Of(item)
	return track(ctx, r, OpFormatEvent, d, func() *future.Future[[]string] { return FormatEvent(d) })
}

func (r *Resource) AllowOrigin(ctx context.Context, c *Context) *future.Future[string] {
	d := r.Descriptor(OpAllowOrigin)
	return track(ctx, r, OpAllowOrigin, d, func() *future.Future[string] { return AllowOrigin(d, c) })
}

func (r *Resource) LastModified(ctx context.Context, c *Context) *future.Future[time.Time] {
	d := r.Descriptor(OpLastModified)
	return track(ctx, r, OpLastModified, d, func() *future.Future[time.Time] { return LastModified(d, c) })
}

// track publishes ResolveStart before run and ResolveFinish once its future
// settles.
func track[T any](ctx context.Context, r *Resource, op Operation, d Descriptor, run func() *future.Future[T]) *future.Future[T] {
	start := time.Now()
	shape := ShapeAbsent.String()
	if d != nil {
		shape = d.Shape().String()
	}
	eventbus.Publish(ctx, events.ResolveStart{Resource: r.path, Operation: op.String(), Shape: shape})
	out := run()
	pending := !out.Ready()
	finish := func() {
		_, err := out.Result()
		eventbus.Publish(ctx, events.ResolveFinish{
			Resource:  r.path,
			Operation: op.String(),
			Shape:     shape,
			Pending:   pending,
			Err:       err,
			Duration:  time.Since(start),
		})
	}
	if pending {
		go func() {
			<-out.Done()
			finish()
		}()
	} else {
		finish()
	}
	return out
}

// Registry maps request paths to resources.
type Registry struct {
	mu     sync.RWMutex
	byPath map[string]*Resource
	order  []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byPath: make(map[string]*Resource)}
}

// Register adds r. A path can be registered once.
func (g *Registry) Register(r *Resource) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, dup := g.byPath[r.path]; dup {
		return fmt.Errorf("resource %s already registered", r.path)
	}
	g.byPath[r.path] = r
	g.order = append(g.order, r.path)
	return nil
}

// Lookup finds the resource registered for path.
func (g *Registry) Lookup(path string) (*Resource, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.byPath[path]
	return r, ok
}

// Resources returns the registered resources in registration order.
func (g *Registry) Resources() []*Resource {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Resource, len(g.order))
	for i, p := range g.order {
		out[i] = g.byPath[p]
	}
	return out
}

// Paths returns the registered paths in registration order.
func (g *Registry) Paths() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.order...)
}
