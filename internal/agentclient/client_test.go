package agentclient

import (
	"bufio"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// readOneFrame blocks until a full \n\n-terminated frame arrives on r,
// mirroring what the framer does on the production read path.
func readOneFrame(t *testing.T, r *bufio.Reader) []byte {
	t.Helper()
	frame, err := r.ReadString('\n')
	require.NoError(t, err)
	second, err := r.ReadString('\n')
	require.NoError(t, err)
	return []byte(frame + second)
}

func newTestClient(t *testing.T) (*Client, *loopbackTransport) {
	t.Helper()
	lt := newLoopbackTransport()

	c := New()
	require.NoError(t, c.Init(&Config{
		Endpoint:  "test@loopback",
		Logger:    zap.NewNop(),
		transport: lt,
	}))
	require.NoError(t, c.Connect(context.Background()))
	return c, lt
}

func TestClientSubmitRoundTrip(t *testing.T) {
	c, lt := newTestClient(t)
	defer c.Close()

	remote := bufio.NewReader(lt.RemoteReader())
	go func() {
		frame := readOneFrame(t, remote)
		var req map[string]any
		_ = json.Unmarshal(frame[:len(frame)-2], &req)

		serial := int64(req["s"].(float64))
		reply, _ := json.Marshal(map[string]any{"s": serial, "status": "ok"})
		lt.RemoteWriter().Write(append(reply, '\n', '\n'))
	}()

	raw, err := c.Poll(context.Background())
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "ok", got["status"])
}

func TestClientSubmitTimesOutOnNoReply(t *testing.T) {
	c, _ := newTestClient(t)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := c.Submit(ctx, "poll", nil)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 0, c.Pending(), "timed-out request must be removed from the registry")
}

func TestClientCloseResolvesPendingWithErrStopped(t *testing.T) {
	c, _ := newTestClient(t)

	result := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), "poll", nil)
		result <- err
	}()

	// Give Submit time to register its future before tearing the client
	// down out from under it.
	time.Sleep(20 * time.Millisecond)
	c.Close()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(time.Second):
		t.Fatal("Submit did not return after Close")
	}
}

func TestClientCloseIsIdempotent(t *testing.T) {
	c, _ := newTestClient(t)
	c.Close()
	c.Close() // must not block or panic
	assert.True(t, c.IsClosed())
}

func TestClientDestroyRequiresClose(t *testing.T) {
	c, _ := newTestClient(t)
	defer c.Close()

	err := c.Destroy()
	assert.Error(t, err)
}

func TestClientDestroyAfterCloseDrainsQueues(t *testing.T) {
	c, _ := newTestClient(t)
	c.Close()

	require.NoError(t, c.Destroy())
	assert.Equal(t, 0, c.Pending())
}

func TestClientConnectTwiceFails(t *testing.T) {
	c, _ := newTestClient(t)
	defer c.Close()

	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestClientSubmitAfterCloseReturnsErrClosed(t *testing.T) {
	c, _ := newTestClient(t)
	c.Close()

	_, err := c.Submit(context.Background(), "poll", nil)
	assert.ErrorIs(t, err, ErrClosed)
}
