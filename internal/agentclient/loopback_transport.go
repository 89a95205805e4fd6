package agentclient

import (
	"context"
	"io"
)

// loopbackTransport wires a Client directly to an in-memory pipe pair
// instead of spawning ssh, so tests can drive the reactor's framing and
// dispatch logic without a real subprocess. Grounded on Transport's
// contract (Connect returns the two ends of the byte stream); the "remote
// side" is exposed via Remote() for a test to write replies into and read
// outbound frames from.
type loopbackTransport struct {
	clientR io.ReadCloser
	clientW io.WriteCloser
	remoteR io.ReadCloser
	remoteW io.WriteCloser
}

// newLoopbackTransport builds a connected pair: whatever the test writes
// to RemoteWriter arrives on the Client's reader, and whatever the Client
// writes arrives on RemoteReader.
func newLoopbackTransport() *loopbackTransport {
	rToC, wToC := io.Pipe()
	rFromC, wFromC := io.Pipe()
	return &loopbackTransport{
		clientR: rToC,
		clientW: wFromC,
		remoteR: rFromC,
		remoteW: wToC,
	}
}

func (lt *loopbackTransport) Connect(ctx context.Context) (io.ReadCloser, io.WriteCloser, error) {
	return lt.clientR, lt.clientW, nil
}

func (lt *loopbackTransport) Close() {
	lt.clientR.Close()
	lt.clientW.Close()
}

// RemoteReader returns the end a test reads outbound frames from.
func (lt *loopbackTransport) RemoteReader() io.ReadCloser { return lt.remoteR }

// RemoteWriter returns the end a test writes inbound replies into.
func (lt *loopbackTransport) RemoteWriter() io.WriteCloser { return lt.remoteW }
