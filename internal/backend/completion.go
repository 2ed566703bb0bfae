package backend

import (
	"context"
	"sync"
)

// Completion is a single-shot notification for one in-flight backend
// request. It is fulfilled exactly once: the first call to Fulfill wins and
// later calls are ignored. Stages rely on this guarantee to keep a single
// request in flight per backend session, which protects the previous-frame
// chaining of stateful backends.
type Completion[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// NewCompletion returns an unfulfilled completion.
func NewCompletion[T any]() *Completion[T] {
	return &Completion[T]{done: make(chan struct{})}
}

// Fulfill records the result and wakes all waiters. It reports whether this
// call was the one that fulfilled the completion.
func (c *Completion[T]) Fulfill(value T, err error) bool {
	won := false
	c.once.Do(func() {
		c.value = value
		c.err = err
		won = true
		close(c.done)
	})
	return won
}

// Wait blocks until the completion is fulfilled or the context is done.
// A context error does not consume the completion; a later Wait can still
// observe the fulfilled value.
func (c *Completion[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-c.done:
		return c.value, c.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
