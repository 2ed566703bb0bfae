package backend

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletionFulfillOnce(t *testing.T) {
	c := NewCompletion[int]()

	assert.True(t, c.Fulfill(42, nil))
	assert.False(t, c.Fulfill(7, errors.New("late")))

	v, err := c.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestCompletionCarriesError(t *testing.T) {
	c := NewCompletion[string]()
	boom := errors.New("boom")
	c.Fulfill("", boom)

	_, err := c.Wait(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestCompletionWaitBlocksUntilFulfilled(t *testing.T) {
	c := NewCompletion[int]()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := c.Wait(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, 9, v)
	}()

	time.Sleep(10 * time.Millisecond)
	c.Fulfill(9, nil)
	wg.Wait()
}

func TestCompletionContextCancellation(t *testing.T) {
	c := NewCompletion[int]()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// A cancelled wait does not consume the value.
	c.Fulfill(5, nil)
	v, err := c.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, v)
}

func TestCompletionConcurrentWaiters(t *testing.T) {
	c := NewCompletion[int]()

	const waiters = 8
	results := make(chan int, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			v, _ := c.Wait(context.Background())
			results <- v
		}()
	}

	c.Fulfill(3, nil)
	for i := 0; i < waiters; i++ {
		assert.Equal(t, 3, <-results)
	}
}
