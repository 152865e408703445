// Package channel is the in-process transport between the scheduler, the
// dispatcher and the engine: buffered buses for run requests and
// completion events.
package channel

import (
	"context"
	"errors"
	"time"
)

// DefaultEmitTimeout bounds how long Emit waits for buffer space.
const DefaultEmitTimeout = 5 * time.Second

var ErrBufferFull = errors.New("event bus buffer full")

// MetricsSink records bus metrics, labelled by bus name. All methods must
// be non-blocking.
type MetricsSink interface {
	BufferSizeUpdate(bus string, size int)
	BufferCapacitySet(bus string, capacity int)
	BufferSaturationUpdate(bus string, saturation float64)
	EmitError(bus string)
}

type options struct {
	emitTimeout time.Duration
	metrics     MetricsSink
}

type Option func(*options)

func WithEmitTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.emitTimeout = d
		}
	}
}

func WithMetrics(sink MetricsSink) Option {
	return func(o *options) { o.metrics = sink }
}

// EventBus is a named buffered channel of T.
type EventBus[T any] struct {
	name        string
	ch          chan T
	emitTimeout time.Duration
	metrics     MetricsSink // optional, nil = disabled
}

func NewEventBus[T any](name string, buffer int, opts ...Option) *EventBus[T] {
	o := options{emitTimeout: DefaultEmitTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	b := &EventBus[T]{
		name:        name,
		ch:          make(chan T, buffer),
		emitTimeout: o.emitTimeout,
		metrics:     o.metrics,
	}
	if b.metrics != nil {
		b.metrics.BufferCapacitySet(name, buffer)
	}
	return b
}

// Emit queues event, waiting at most the emit timeout for buffer space.
// Returns ErrBufferFull on timeout and ctx.Err() when ctx ends first.
func (b *EventBus[T]) Emit(ctx context.Context, event T) error {
	timer := time.NewTimer(b.emitTimeout)
	defer timer.Stop()

	select {
	case b.ch <- event:
		b.observe()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		if b.metrics != nil {
			b.metrics.EmitError(b.name)
		}
		return ErrBufferFull
	}
}

func (b *EventBus[T]) observe() {
	if b.metrics == nil {
		return
	}
	size := len(b.ch)
	b.metrics.BufferSizeUpdate(b.name, size)
	if c := cap(b.ch); c > 0 {
		b.metrics.BufferSaturationUpdate(b.name, float64(size)/float64(c))
	}
}

func (b *EventBus[T]) Channel() <-chan T {
	return b.ch
}

// Len reports the number of queued events.
func (b *EventBus[T]) Len() int {
	return len(b.ch)
}

// Close ends the stream for consumers. Emit must not be called afterwards.
func (b *EventBus[T]) Close() {
	close(b.ch)
}
