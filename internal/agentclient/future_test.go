package agentclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFutureResolveThenWait(t *testing.T) {
	f := newFuture(1)
	rep := &reply{Serial: 1, Raw: []byte(`{"s":1}`)}
	f.resolve(rep, nil)

	got, err := f.wait()
	require.NoError(t, err)
	assert.Same(t, rep, got)
}

func TestFutureWaitBlocksUntilResolve(t *testing.T) {
	f := newFuture(1)
	done := make(chan struct{})

	go func() {
		f.wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("wait returned before resolve was called")
	case <-time.After(30 * time.Millisecond):
	}

	f.resolve(&reply{Serial: 1}, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait did not return after resolve")
	}
}

func TestFutureResolveIsIdempotent(t *testing.T) {
	f := newFuture(1)
	first := &reply{Serial: 1, Raw: []byte(`{"s":1,"v":"first"}`)}
	second := &reply{Serial: 1, Raw: []byte(`{"s":1,"v":"second"}`)}

	f.resolve(first, nil)
	f.resolve(second, nil) // must be a no-op

	got, err := f.wait()
	require.NoError(t, err)
	assert.Same(t, first, got)
}

func TestFutureDoneSelectable(t *testing.T) {
	f := newFuture(1)
	ch := f.done()

	select {
	case <-ch:
		t.Fatal("done() fired before resolve")
	default:
	}

	f.resolve(&reply{Serial: 1}, ErrStopped)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("done() never fired after resolve")
	}

	_, err := f.wait()
	assert.ErrorIs(t, err, ErrStopped)
}
