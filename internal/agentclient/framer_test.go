package agentclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramerSingleFrame(t *testing.T) {
	fr := newFramer()
	frames := fr.feed([]byte(`{"s":1}` + "\n\n"))
	require.Len(t, frames, 1)
	assert.Equal(t, []byte(`{"s":1}`+"\n\n"), frames[0])
}

func TestFramerSplitAcrossFeeds(t *testing.T) {
	fr := newFramer()

	frames := fr.feed([]byte(`{"s":1}` + "\n"))
	assert.Empty(t, frames, "incomplete terminator should not yield a frame")

	frames = fr.feed([]byte("\n"))
	require.Len(t, frames, 1)
	assert.Equal(t, []byte(`{"s":1}`+"\n\n"), frames[0])
}

func TestFramerMultipleFramesInOneChunk(t *testing.T) {
	fr := newFramer()
	chunk := []byte(`{"s":1}` + "\n\n" + `{"s":2}` + "\n\n")
	frames := fr.feed(chunk)
	require.Len(t, frames, 2)
	assert.Equal(t, []byte(`{"s":1}`+"\n\n"), frames[0])
	assert.Equal(t, []byte(`{"s":2}`+"\n\n"), frames[1])
}

func TestFramerRetainsIncompleteTail(t *testing.T) {
	fr := newFramer()
	frames := fr.feed([]byte(`{"s":1}` + "\n\n" + `{"s":2`))
	require.Len(t, frames, 1)
	assert.Equal(t, []byte(`{"s":1}`+"\n\n"), frames[0])

	frames = fr.feed([]byte(`}` + "\n\n"))
	require.Len(t, frames, 1)
	assert.Equal(t, []byte(`{"s":2}`+"\n\n"), frames[0])
}

func TestFramerByteAtATime(t *testing.T) {
	fr := newFramer()
	src := []byte(`{"s":7,"q":"poll"}` + "\n\n")

	var got [][]byte
	for _, b := range src {
		got = append(got, fr.feed([]byte{b})...)
	}
	require.Len(t, got, 1)
	assert.Equal(t, src, got[0])
}
