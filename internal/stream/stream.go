// Package stream implements a pull-based, channel-backed value stream.
package stream

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrClosed is returned by Sink.Send after the sink was closed or the reader
// closed the stream.
var ErrClosed = errors.New("stream: send on closed sink")

// Stream is read incrementally with Next. It is also observable as a one-shot
// value: Done closes once the producer closed its sink and Result reports the
// error it closed it with.
type Stream struct {
	ch   chan any
	done chan struct{}
	// closeErr is written before done is closed.
	closeErr error

	gone     chan struct{}
	goneOnce sync.Once
}

// Sink is the producing side of a Stream.
type Sink struct {
	s *Stream

	// mu is held shared by Send and exclusively by Close, so the channel is
	// never closed under a pending send.
	mu      sync.RWMutex
	closed  bool
	closing chan struct{}
	once    sync.Once
}

// New returns a stream and the sink that feeds it. buffer is the number of
// items the sink may run ahead of the reader.
func New(buffer int) (*Stream, *Sink) {
	s := &Stream{
		ch:   make(chan any, buffer),
		done: make(chan struct{}),
		gone: make(chan struct{}),
	}
	return s, &Sink{s: s, closing: make(chan struct{})}
}

// Of returns a stream that yields items in order and then ends.
func Of(items ...any) *Stream {
	s, sink := New(len(items))
	for _, it := range items {
		s.ch <- it
	}
	sink.Close(nil)
	return s
}

// FromReader streams r in chunks of at most size bytes. Each item is a
// []byte. A read error other than io.EOF ends the stream with that error.
// The producer stops when ctx ends or the reader closes the stream, and r is
// closed on the way out if it is an io.Closer.
func FromReader(ctx context.Context, r io.Reader, size int) *Stream {
	if size <= 0 {
		size = 32 * 1024
	}
	s, sink := New(1)
	go func() {
		if c, ok := r.(io.Closer); ok {
			defer c.Close()
		}
		for {
			buf := make([]byte, size)
			n, err := r.Read(buf)
			if n > 0 {
				if serr := sink.Send(ctx, buf[:n]); serr != nil {
					sink.Close(serr)
					return
				}
			}
			if errors.Is(err, io.EOF) {
				sink.Close(nil)
				return
			}
			if err != nil {
				sink.Close(err)
				return
			}
		}
	}()
	return s
}

// Next returns the next item. It returns io.EOF once the stream ended cleanly
// and the producer's error if it ended with one.
func (s *Stream) Next(ctx context.Context) (any, error) {
	select {
	case v, ok := <-s.ch:
		if ok {
			return v, nil
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if s.closeErr != nil {
		return nil, s.closeErr
	}
	return nil, io.EOF
}

// Close tells the producer nobody reads any more. Pending and later sends
// fail with ErrClosed. Items already buffered can still be read.
func (s *Stream) Close() error {
	s.goneOnce.Do(func() { close(s.gone) })
	return nil
}

// Done is closed after the producer closed its sink.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Result blocks until the producer is finished. A stream carries no single
// value, so the value is always nil.
func (s *Stream) Result() (any, error) {
	<-s.done
	return nil, s.closeErr
}

// Send delivers v to the reader, waiting for buffer space, ctx or a close.
func (k *Sink) Send(ctx context.Context, v any) error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return ErrClosed
	}
	select {
	case k.s.ch <- v:
		return nil
	case <-k.closing:
		return ErrClosed
	case <-k.s.gone:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the stream. A nil err ends it cleanly. Later calls are ignored.
// Close may be called while a Send is blocked; that Send returns ErrClosed.
func (k *Sink) Close(err error) {
	k.once.Do(func() {
		close(k.closing)
		k.mu.Lock()
		defer k.mu.Unlock()
		k.closed = true
		k.s.closeErr = err
		close(k.s.ch)
		close(k.s.done)
	})
}
