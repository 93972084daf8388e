package resource

import (
	"context"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	future "github.com/hanpama/resourceful/internal/future"
)

// Shape classifies a descriptor.
type Shape int

const (
	ShapeAbsent Shape = iota
	ShapeBool
	ShapeNumber
	ShapeString
	ShapeFunc
	ShapeSet
	ShapeSymbol
	ShapeMap
	ShapeSeq
	ShapeDeferred
	ShapeStream
	ShapeOpaque
)

var shapeNames = [...]string{
	ShapeAbsent:   "absent",
	ShapeBool:     "boolean",
	ShapeNumber:   "number",
	ShapeString:   "string",
	ShapeFunc:     "callback",
	ShapeSet:      "set",
	ShapeSymbol:   "symbol",
	ShapeMap:      "mapping",
	ShapeSeq:      "sequence",
	ShapeDeferred: "async-value",
	ShapeStream:   "stream",
	ShapeOpaque:   "opaque-object",
}

func (s Shape) String() string {
	if s < 0 || int(s) >= len(shapeNames) {
		return "shape(" + strconv.Itoa(int(s)) + ")"
	}
	return shapeNames[s]
}

// AsyncValue settles exactly once with a value or a failure.
type AsyncValue = future.Awaitable

// PullStream is read item by item. Next returns io.EOF once exhausted.
//
// Every PullStream is also an AsyncValue (it settles when drained), so
// classification must test for PullStream first.
type PullStream interface {
	AsyncValue
	Next(ctx context.Context) (any, error)
}

// Descriptor is the closed set of values a resource author may supply for an
// operation. Use Of to classify an arbitrary Go value.
type Descriptor interface {
	Shape() Shape
	// Raw returns the plain Go value the descriptor stands for.
	Raw() any
	descriptor()
}

type (
	// Absent supplies the system-wide defaults.
	Absent struct{}
	Bool   bool
	// Number is a numeric descriptor: a retry-after delay, a URI length
	// limit, a status code or an epoch timestamp in milliseconds.
	Number float64
	String string
	// Symbol is a single keyword such as a method name.
	Symbol string
	// Func is a callback. The argument depends on the operation: nil, the
	// request method, the request URI, or the *Context.
	Func func(arg any) (any, error)
	// Set is an unordered collection of symbols. Treat it as immutable.
	Set map[string]struct{}
	Map map[string]Descriptor
	Seq []Descriptor
	// Deferred wraps an async value.
	Deferred struct{ Value AsyncValue }
	// Stream wraps a pull stream.
	Stream struct{ Value PullStream }
	// Opaque is the catch-all for everything else: files, times, structs.
	Opaque struct{ Value any }
)

func (Absent) Shape() Shape   { return ShapeAbsent }
func (Bool) Shape() Shape     { return ShapeBool }
func (Number) Shape() Shape   { return ShapeNumber }
func (String) Shape() Shape   { return ShapeString }
func (Func) Shape() Shape     { return ShapeFunc }
func (Set) Shape() Shape      { return ShapeSet }
func (Symbol) Shape() Shape   { return ShapeSymbol }
func (Map) Shape() Shape      { return ShapeMap }
func (Seq) Shape() Shape      { return ShapeSeq }
func (Deferred) Shape() Shape { return ShapeDeferred }
func (Stream) Shape() Shape   { return ShapeStream }
func (Opaque) Shape() Shape   { return ShapeOpaque }

func (Absent) Raw() any     { return nil }
func (b Bool) Raw() any     { return bool(b) }
func (n Number) Raw() any   { return float64(n) }
func (s String) Raw() any   { return string(s) }
func (f Func) Raw() any     { return f }
func (s Set) Raw() any      { return s.Members() }
func (s Symbol) Raw() any   { return string(s) }
func (d Deferred) Raw() any { return d.Value }
func (s Stream) Raw() any   { return s.Value }
func (o Opaque) Raw() any   { return o.Value }

func (m Map) Raw() any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = raw(v)
	}
	return out
}

func (q Seq) Raw() any {
	out := make([]any, len(q))
	for i, v := range q {
		out[i] = raw(v)
	}
	return out
}

func (Absent) descriptor()   {}
func (Bool) descriptor()     {}
func (Number) descriptor()   {}
func (String) descriptor()   {}
func (Func) descriptor()     {}
func (Set) descriptor()      {}
func (Symbol) descriptor()   {}
func (Map) descriptor()      {}
func (Seq) descriptor()      {}
func (Deferred) descriptor() {}
func (Stream) descriptor()   {}
func (Opaque) descriptor()   {}

func raw(d Descriptor) any {
	if d == nil {
		return nil
	}
	return d.Raw()
}

// NewSet returns a set holding members.
func NewSet(members ...string) Set {
	s := make(Set, len(members))
	for _, m := range members {
		s[m] = struct{}{}
	}
	return s
}

// DefaultMethods is the method set used when no descriptor is given.
func DefaultMethods() Set {
	return NewSet("get", "put", "post", "delete", "options", "head")
}

// DefaultURILimit is the longest request URI accepted when no descriptor is
// given.
const DefaultURILimit = 4096

// Contains reports whether m is a member.
func (s Set) Contains(m string) bool {
	_, ok := s[m]
	return ok
}

// ContainsFold is Contains with ASCII case folding, used for method names.
func (s Set) ContainsFold(m string) bool {
	if s.Contains(m) || s.Contains(strings.ToLower(m)) {
		return true
	}
	for k := range s {
		if strings.EqualFold(k, m) {
			return true
		}
	}
	return false
}

// Members returns the members in sorted order.
func (s Set) Members() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Union returns a new set with the members of s and o.
func (s Set) Union(o Set) Set {
	out := make(Set, len(s)+len(o))
	for k := range s {
		out[k] = struct{}{}
	}
	for k := range o {
		out[k] = struct{}{}
	}
	return out
}

// asSet coerces a sequence into a set. Strings and symbols contribute
// themselves, nested sets and sequences contribute their members, other
// shapes are ignored.
func (q Seq) asSet() Set {
	out := make(Set, len(q))
	for _, d := range q {
		switch d := d.(type) {
		case String:
			out[string(d)] = struct{}{}
		case Symbol:
			out[string(d)] = struct{}{}
		case Set:
			for k := range d {
				out[k] = struct{}{}
			}
		case Seq:
			for k := range d.asSet() {
				out[k] = struct{}{}
			}
		}
	}
	return out
}

// truthy reports whether d counts as a yes. Only Absent and false are falsy.
func truthy(d Descriptor) bool {
	switch d := d.(type) {
	case nil, Absent:
		return false
	case Bool:
		return bool(d)
	default:
		return true
	}
}

// Of classifies v into a Descriptor. A Descriptor is returned as is. A nil
// pointer, function or channel is absent.
func Of(v any) Descriptor {
	if _, ok := v.(Descriptor); !ok && isNilRef(v) {
		return Absent{}
	}
	switch x := v.(type) {
	case nil:
		return Absent{}
	case Descriptor:
		return x
	case bool:
		return Bool(x)
	case string:
		return String(x)
	case int:
		return Number(x)
	case int8:
		return Number(x)
	case int16:
		return Number(x)
	case int32:
		return Number(x)
	case int64:
		return Number(x)
	case uint:
		return Number(x)
	case uint8:
		return Number(x)
	case uint16:
		return Number(x)
	case uint32:
		return Number(x)
	case uint64:
		return Number(x)
	case float32:
		return Number(x)
	case float64:
		return Number(x)
	case func(any) (any, error):
		return Func(x)
	case func() (any, error):
		return Func(func(any) (any, error) { return x() })
	case func(*Context) (any, error):
		return Func(func(arg any) (any, error) {
			c, _ := arg.(*Context)
			return x(c)
		})
	case func(any) any:
		return Func(func(arg any) (any, error) { return x(arg), nil })
	case func() any:
		return Func(func(any) (any, error) { return x(), nil })
	// Priority rule: a PullStream also satisfies AsyncValue, so it is matched
	// first. Reordering these two cases makes streams wait to drain.
	case PullStream:
		return Stream{Value: x}
	case AsyncValue:
		return Deferred{Value: x}
	case []byte:
		return Opaque{Value: x}
	case time.Time, *time.Time:
		return Opaque{Value: x}
	case map[string]struct{}:
		s := make(Set, len(x))
		for k := range x {
			s[k] = struct{}{}
		}
		return s
	case map[string]bool:
		s := make(Set, len(x))
		for k, in := range x {
			if in {
				s[k] = struct{}{}
			}
		}
		return s
	case map[string]any:
		m := make(Map, len(x))
		for k, e := range x {
			m[k] = Of(e)
		}
		return m
	case []any:
		q := make(Seq, len(x))
		for i, e := range x {
			q[i] = Of(e)
		}
		return q
	case []string:
		q := make(Seq, len(x))
		for i, e := range x {
			q[i] = String(e)
		}
		return q
	}
	return ofReflect(v)
}

func ofReflect(v any) Descriptor {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return Bool(rv.Bool())
	case reflect.String:
		return String(rv.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Number(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Number(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return Number(rv.Float())
	case reflect.Ptr, reflect.Interface, reflect.Chan:
		if rv.IsNil() {
			return Absent{}
		}
	case reflect.Func:
		if rv.IsNil() {
			return Absent{}
		}
		if f, ok := funcOf(rv); ok {
			return f
		}
	case reflect.Map:
		if rv.IsNil() {
			return Absent{}
		}
		if rv.Type().Key().Kind() == reflect.String {
			m := make(Map, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				m[iter.Key().String()] = Of(iter.Value().Interface())
			}
			return m
		}
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Absent{}
		}
		q := make(Seq, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			q[i] = Of(rv.Index(i).Interface())
		}
		return q
	}
	return Opaque{Value: v}
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func isNilRef(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return rv.IsNil()
	}
	return false
}

// funcOf adapts a function taking at most one argument and returning a value,
// optionally followed by an error. The argument is converted to the
// parameter type when the kinds agree and zeroed otherwise.
func funcOf(rv reflect.Value) (Func, bool) {
	t := rv.Type()
	if t.IsVariadic() || t.NumIn() > 1 {
		return nil, false
	}
	switch {
	case t.NumOut() == 1:
	case t.NumOut() == 2 && t.Out(1) == errorType:
	default:
		return nil, false
	}
	return func(arg any) (any, error) {
		var in []reflect.Value
		if t.NumIn() == 1 {
			in = []reflect.Value{argValue(t.In(0), arg)}
		}
		out := rv.Call(in)
		var err error
		if len(out) == 2 && !out[1].IsNil() {
			err = out[1].Interface().(error)
		}
		return out[0].Interface(), err
	}, true
}

func argValue(t reflect.Type, arg any) reflect.Value {
	if arg == nil {
		return reflect.Zero(t)
	}
	v := reflect.ValueOf(arg)
	switch {
	case v.Type().AssignableTo(t):
		return v
	case v.Kind() == t.Kind() && v.Type().ConvertibleTo(t):
		return v.Convert(t)
	}
	return reflect.Zero(t)
}
