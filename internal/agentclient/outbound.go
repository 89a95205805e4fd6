package agentclient

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// outboundQueue is an ordered FIFO of already-framed byte chunks awaiting
// the writer goroutine. Producers are any caller goroutine via Client's
// public API; the sole consumer is the writer goroutine (spec.md §4.4).
//
// Grounded on agent_client_ssh.c's add_wchunk_move/do_pipe_write, with the
// bounded-queue option from spec.md §9 ("an implementer may cap the
// queue and block/fail submit when full") implemented with
// golang.org/x/sync/semaphore.Weighted, sized in bytes.
type outboundQueue struct {
	mu     sync.Mutex
	chunks [][]byte

	wake chan struct{} // signalled on every enqueue (spec.md's "wake-up handle")

	sem       *semaphore.Weighted // nil when unbounded
	maxWeight int64
}

// newOutboundQueue builds a queue. maxBytes <= 0 means unbounded, matching
// the original's unbounded array.
func newOutboundQueue(maxBytes int64) *outboundQueue {
	q := &outboundQueue{
		wake: make(chan struct{}, 1),
	}
	if maxBytes > 0 {
		q.sem = semaphore.NewWeighted(maxBytes)
		q.maxWeight = maxBytes
	}
	return q
}

// enqueue takes ownership of chunk (already formatted with a trailing
// "\n\n") and appends it, waking the writer. If the queue is bounded and
// full, enqueue blocks until space frees up or ctx is cancelled.
func (q *outboundQueue) enqueue(ctx context.Context, chunk []byte) error {
	if q.sem != nil {
		n := int64(len(chunk))
		if n > q.maxWeight {
			// A single frame larger than the whole cap can never fit;
			// admit it anyway rather than deadlock forever — matches the
			// "wire semantics are unaffected" note in spec.md §9.
			n = q.maxWeight
		}
		if err := q.sem.Acquire(ctx, n); err != nil {
			return ErrQueueFull
		}
	}

	q.mu.Lock()
	q.chunks = append(q.chunks, chunk)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// pop removes and returns the head chunk, or (nil, false) if empty.
func (q *outboundQueue) pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.chunks) == 0 {
		return nil, false
	}
	chunk := q.chunks[0]
	q.chunks = q.chunks[1:]
	return chunk, true
}

// release gives back the byte weight a now-fully-written chunk held,
// letting a blocked enqueue proceed. No-op on an unbounded queue.
func (q *outboundQueue) release(chunk []byte) {
	if q.sem == nil {
		return
	}
	n := int64(len(chunk))
	if n > q.maxWeight {
		n = q.maxWeight
	}
	q.sem.Release(n)
}

// drain empties the queue, returning every chunk still pending — used on
// Destroy so nothing leaks (spec.md §8: "destroy() frees every chunk in
// both queues without leaks even when non-empty").
func (q *outboundQueue) drain() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.chunks
	q.chunks = nil
	return out
}
