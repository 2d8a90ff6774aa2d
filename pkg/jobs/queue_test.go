package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesAndDrains(t *testing.T) {
	var processed int32
	q := NewQueue("email", func(context.Context, Job) error {
		atomic.AddInt32(&processed, 1)
		return nil
	}, QueueConfig{Workers: 2, BufferSize: 10})

	require.Error(t, q.Enqueue(Job{ID: "early"}))

	q.Start(context.Background())
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(Job{ID: "job", Type: "revision_email"}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	q.Stop(ctx)

	assert.Equal(t, int32(5), atomic.LoadInt32(&processed))
	assert.Error(t, q.Enqueue(Job{ID: "late"}))
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var attempts int32
	done := make(chan struct{})
	q := NewQueue("email", func(_ context.Context, job Job) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("temporarily unavailable")
		}
		close(done)
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: 5 * time.Millisecond})

	q.Start(context.Background())
	require.NoError(t, q.Enqueue(Job{ID: "1"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried")
	}
	q.Stop(context.Background())
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestQueueFull(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue("email", func(context.Context, Job) error {
		<-block
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(Job{ID: "1"}))
	// The worker may or may not have picked up the first job yet.
	var err error
	for i := 0; i < 3 && err == nil; i++ {
		err = q.Enqueue(Job{ID: "n"})
	}
	assert.ErrorIs(t, err, ErrQueueFull)

	close(block)
	q.Stop(context.Background())
}
