// Package worker runs the single consumer that owns engine state.
//
// Exactly one Worker reads a queue, so every handled item observes the
// effects of all items before it and no two items are handled concurrently.
package worker

import (
	"context"
	"fmt"

	"github.com/okian/saltyscope/pkg/logger"
	"github.com/okian/saltyscope/pkg/metrics"
)

// Source is the receive side of a queue.
type Source[T any] interface {
	Dequeue() <-chan T
}

// Handler processes one item.
type Handler[T any] interface {
	Handle(ctx context.Context, item T) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[T any] func(ctx context.Context, item T) error

// Handle calls f.
func (f HandlerFunc[T]) Handle(ctx context.Context, item T) error { return f(ctx, item) }

// Worker drains a Source into a Handler.
type Worker[T any] struct {
	source  Source[T]
	handler Handler[T]
	name    string
	logger  logger.Logger

	shutdown chan struct{}
	done     chan struct{}
}

// New creates a worker. Call Run exactly once.
func New[T any](source Source[T], handler Handler[T], opts ...Option) *Worker[T] {
	s := settings{name: "worker"}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	return &Worker[T]{
		source:   source,
		handler:  handler,
		name:     s.name,
		logger:   s.logger.Named(s.name),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run handles items until ctx ends, Shutdown is called, or the source closes.
func (w *Worker[T]) Run(ctx context.Context) {
	defer close(w.done)

	items := w.source.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case item, ok := <-items:
			if !ok {
				return
			}
			w.handle(ctx, item)
		}
	}
}

func (w *Worker[T]) handle(ctx context.Context, item T) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordErrorByComponent(w.name, "panic")
			w.logger.Error(ctx, "handler panicked", logger.Any("panic", r))
		}
	}()
	if err := w.handler.Handle(ctx, item); err != nil {
		metrics.RecordErrorByComponent(w.name, "handler_error")
		w.logger.Error(ctx, "error handling item", logger.Error(err))
	}
}

// Shutdown stops the loop and waits for the item in progress to finish.
func (w *Worker[T]) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *Worker[T]) Done() <-chan struct{} { return w.done }
