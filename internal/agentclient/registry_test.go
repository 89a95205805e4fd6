package agentclient

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryInsertAndTake(t *testing.T) {
	r := newRegistry()
	f := newFuture(1)
	r.insert(f)
	assert.Equal(t, 1, r.len())

	got := r.take(1)
	require.NotNil(t, got)
	assert.Same(t, f, got)
	assert.Equal(t, 0, r.len())
}

func TestRegistryTakeMissingReturnsNil(t *testing.T) {
	r := newRegistry()
	assert.Nil(t, r.take(99))
}

func TestRegistryTakeIsIdempotent(t *testing.T) {
	r := newRegistry()
	f := newFuture(5)
	r.insert(f)

	var (
		wg      sync.WaitGroup
		results [2]*future
	)
	wg.Add(2)
	go func() { defer wg.Done(); results[0] = r.take(5) }()
	go func() { defer wg.Done(); results[1] = r.take(5) }()
	wg.Wait()

	wins := 0
	for _, got := range results {
		if got != nil {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one of two concurrent take() calls should win")
}

func TestRegistryDrainEmptiesAndReturnsAll(t *testing.T) {
	r := newRegistry()
	for serial := uint32(1); serial <= 3; serial++ {
		r.insert(newFuture(serial))
	}

	drained := r.drain()
	assert.Len(t, drained, 3)
	assert.Equal(t, 0, r.len())
	assert.Nil(t, r.take(1))
}
