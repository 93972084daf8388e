package resource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrPostFailed is returned by InterpretPostResult when the post result was
// false.
var ErrPostFailed = errors.New("resource: failed to process POST")

// Verdict is a yes/no answer paired with response overrides.
type Verdict struct {
	Value     bool
	Overrides Overrides
}

// Overrides is the part of the response a verdict asks to change.
type Overrides struct {
	Headers map[string]string
}

// Source hands a stream body to the response layer.
type Source struct {
	stream PullStream
}

// Next returns the next item of the underlying stream, io.EOF at the end.
func (s *Source) Next(ctx context.Context) (any, error) {
	return s.stream.Next(ctx)
}

// Close tells the producer the body is no longer read, when the stream
// supports it.
func (s *Source) Close() error {
	if c, ok := s.stream.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Drain calls fn for each item until the stream ends, fn fails or ctx ends.
func (s *Source) Drain(ctx context.Context, fn func(any) error) error {
	for {
		v, err := s.stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(v); err != nil {
			return err
		}
	}
}

// Authentication is the outcome of Authenticate.
type Authentication struct {
	Granted bool
	Context *Context
}

func formatNumber(n Number) string {
	return strconv.FormatFloat(float64(n), 'f', -1, 64)
}

// headerValues renders a mapping as header values. Sequences are joined with
// ", " and absent entries are dropped.
func headerValues(m Map) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := headerValue(v); ok {
			out[k] = s
		}
	}
	return out
}

func headerValue(d Descriptor) (string, bool) {
	switch d := d.(type) {
	case nil, Absent:
		return "", false
	case String:
		return string(d), true
	case Symbol:
		return string(d), true
	case Number:
		return formatNumber(d), true
	case Bool:
		return strconv.FormatBool(bool(d)), true
	case Set:
		return strings.Join(d.Members(), ", "), true
	case Seq:
		parts := make([]string, 0, len(d))
		for _, e := range d {
			if s, ok := headerValue(e); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", "), true
	default:
		return fmt.Sprint(d.Raw()), true
	}
}
