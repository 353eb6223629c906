package krunloop

import (
	"context"
	"sync"
	"sync/atomic"
)

// UnboundedQueue buffers events between producers and the loop, Enqueue never blocks on a slow consumer.
type UnboundedQueue[T CriticalResource] struct {
	input     chan IEvent[T]
	buffer    []IEvent[T]
	output    chan IEvent[T]
	closed    atomic.Bool
	size      atomic.Int64
	closeOnce sync.Once
}

func NewUnboundedQueue[T CriticalResource](ctx context.Context) *UnboundedQueue[T] {
	q := &UnboundedQueue[T]{
		input:  make(chan IEvent[T], 16),
		buffer: make([]IEvent[T], 0),
		output: make(chan IEvent[T]),
	}
	go q.process(ctx)
	return q
}

func (q *UnboundedQueue[T]) process(ctx context.Context) {
	defer q.closeOnce.Do(func() {
		close(q.output)
	})

	for {
		// nil out blocks the send case while the buffer is empty
		var out chan IEvent[T]
		var firstItem IEvent[T]
		if len(q.buffer) > 0 {
			firstItem = q.buffer[0]
			out = q.output
		}

		select {
		case item := <-q.input:
			q.buffer = append(q.buffer, item)
		case out <- firstItem:
			q.buffer[0] = nil
			q.buffer = q.buffer[1:]
			q.size.Add(-1)
		case <-ctx.Done():
			q.closed.Store(true)
			return
		}
	}
}

// Enqueue drops the event once the queue is closed.
func (q *UnboundedQueue[T]) Enqueue(item IEvent[T]) {
	if q.closed.Load() {
		return
	}
	q.size.Add(1)
	q.input <- item
}

func (q *UnboundedQueue[T]) GetOutputChan() chan IEvent[T] {
	return q.output
}

func (q *UnboundedQueue[T]) GetSize() int64 {
	return q.size.Load()
}

func (q *UnboundedQueue[T]) Close() {
	q.closed.Store(true)
}
