package agentclient

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFrameHasTerminatorAndFields(t *testing.T) {
	frame, err := buildFrame(42, "poll", nil)
	require.NoError(t, err)
	require.True(t, bytes.HasSuffix(frame, []byte(frameTerminator)))

	var obj map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSuffix(frame, []byte(frameTerminator)), &obj))
	assert.Equal(t, float64(42), obj["s"])
	assert.Equal(t, "poll", obj["q"])
	assert.Contains(t, obj, "t")
}

func TestBuildFrameOmitsVerbWhenEmpty(t *testing.T) {
	frame, err := buildFrame(1, "", nil)
	require.NoError(t, err)

	var obj map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSuffix(frame, []byte(frameTerminator)), &obj))
	assert.NotContains(t, obj, "q")
}

func TestBuildFrameMergesExtraFields(t *testing.T) {
	frame, err := buildFrame(1, "submit", map[string]any{"job_id": "abc123"})
	require.NoError(t, err)

	var obj map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSuffix(frame, []byte(frameTerminator)), &obj))
	assert.Equal(t, "abc123", obj["job_id"])
}

func TestParseReplyExtractsSerial(t *testing.T) {
	frame := []byte(`{"s":7,"status":"ok"}` + frameTerminator)
	rep, err := parseReply(frame)
	require.NoError(t, err)
	assert.Equal(t, int64(7), rep.Serial)

	var echoed map[string]any
	require.NoError(t, json.Unmarshal(rep.Raw, &echoed))
	assert.Equal(t, "ok", echoed["status"])
}

func TestParseReplyRejectsMissingSerial(t *testing.T) {
	frame := []byte(`{"status":"ok"}` + frameTerminator)
	_, err := parseReply(frame)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestParseReplyRejectsInvalidJSON(t *testing.T) {
	frame := []byte(`not json` + frameTerminator)
	_, err := parseReply(frame)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestSerialCounterMonotonicAndUnique(t *testing.T) {
	var sc serialCounter
	seen := make(map[uint32]bool)
	var prev uint32
	for i := 0; i < 100; i++ {
		s := sc.next()
		assert.False(t, seen[s], "serial %d issued twice", s)
		assert.Greater(t, s, prev, "serial %d not above previous %d", s, prev)
		seen[s] = true
		prev = s
	}
}
