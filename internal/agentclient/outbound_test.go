package agentclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboundQueueFIFO(t *testing.T) {
	q := newOutboundQueue(0)
	ctx := context.Background()

	require.NoError(t, q.enqueue(ctx, []byte("a")))
	require.NoError(t, q.enqueue(ctx, []byte("b")))

	got, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, []byte("a"), got)

	got, ok = q.pop()
	require.True(t, ok)
	assert.Equal(t, []byte("b"), got)

	_, ok = q.pop()
	assert.False(t, ok)
}

func TestOutboundQueueBoundedBlocksUntilRelease(t *testing.T) {
	q := newOutboundQueue(4)
	ctx := context.Background()

	require.NoError(t, q.enqueue(ctx, []byte("abcd")))

	enqueued := make(chan error, 1)
	go func() { enqueued <- q.enqueue(context.Background(), []byte("ef")) }()

	select {
	case <-enqueued:
		t.Fatal("enqueue should block while the queue is at capacity")
	case <-time.After(50 * time.Millisecond):
	}

	chunk, ok := q.pop()
	require.True(t, ok)
	q.release(chunk)

	select {
	case err := <-enqueued:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("enqueue did not unblock after release")
	}
}

func TestOutboundQueueBoundedRespectsContextCancellation(t *testing.T) {
	q := newOutboundQueue(1)
	require.NoError(t, q.enqueue(context.Background(), []byte("x")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.enqueue(ctx, []byte("y"))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestOutboundQueueOversizedChunkIsClamped(t *testing.T) {
	q := newOutboundQueue(4)
	// A single chunk larger than the whole cap must still be admitted,
	// never deadlock.
	err := q.enqueue(context.Background(), []byte("this chunk is way over four bytes"))
	assert.NoError(t, err)
}

func TestOutboundQueueDrain(t *testing.T) {
	q := newOutboundQueue(0)
	ctx := context.Background()
	require.NoError(t, q.enqueue(ctx, []byte("a")))
	require.NoError(t, q.enqueue(ctx, []byte("b")))

	drained := q.drain()
	assert.Len(t, drained, 2)

	_, ok := q.pop()
	assert.False(t, ok)
}
