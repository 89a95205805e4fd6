package agentclient

import "errors"

// Sentinel errors. Wrapped with fmt.Errorf("...: %w", ...) at the call
// site; check with errors.Is.
var (
	// ErrNotInitialised is returned when Connect is called before Init.
	ErrNotInitialised = errors.New("agentclient: not initialised")

	// ErrAlreadyConnected is returned when Connect is called twice.
	ErrAlreadyConnected = errors.New("agentclient: already connected")

	// ErrSpawnFailed wraps a failure to fork/exec the ssh child.
	ErrSpawnFailed = errors.New("agentclient: spawn failed")

	// ErrClosed is returned by API calls made after Close has been
	// requested (spec.md's "stopped" error kind).
	ErrClosed = errors.New("agentclient: client closed")

	// ErrStopped is the value a future is resolved with when the worker
	// exits while the future is still outstanding, so no waiting
	// goroutine leaks (spec.md §7/§9).
	ErrStopped = errors.New("agentclient: connection stopped with request in flight")

	// ErrTimeout is returned when a caller-supplied context expires
	// before a reply arrives.
	ErrTimeout = errors.New("agentclient: request timed out")

	// ErrLateReply is logged, never returned to a caller, when an
	// inbound frame's serial has no matching registered future.
	ErrLateReply = errors.New("agentclient: late reply, no matching request")

	// ErrMalformedFrame is logged, never returned to a caller, when an
	// inbound frame fails to parse as JSON or lacks a numeric "s" field.
	ErrMalformedFrame = errors.New("agentclient: malformed frame")

	// ErrQueueFull is returned by enqueue when the outbound queue is
	// bounded (Config.MaxQueuedBytes > 0) and the caller's context ends
	// while it is waiting for space.
	ErrQueueFull = errors.New("agentclient: outbound queue full")
)
