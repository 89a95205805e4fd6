package agentclient

import "sync"

// future is a one-shot synchronisation primitive: the caller that submits
// a request owns a *future and blocks on wait() (or selects on done())
// until either the reactor delivers a matching reply or the connection is
// torn down. Unlike the original agent_client_ssh.c (which stack-allocates
// struct Future and hands the registry a raw pointer — a dangling-pointer
// hazard if the caller's frame unwinds early, flagged as a defect in
// spec.md §9), a future here is heap-allocated and shared by reference
// between the registry and the caller; whichever side reaches it first
// (delivery, or cancellation/timeout) is the only side that ever resolves
// it, enforced by registry.take's idempotent removal.
type future struct {
	serial uint32

	mu       sync.Mutex
	resolved chan struct{} // closed exactly once, by resolve
	value    *reply
	err      error
}

func newFuture(serial uint32) *future {
	return &future{serial: serial, resolved: make(chan struct{})}
}

// resolve delivers a reply (or a sentinel error, e.g. ErrStopped) and
// closes resolved so every waiter — wait() and any select on done() —
// unblocks. Only the first call per future takes effect; subsequent calls
// are no-ops, and in practice none happen, since the registry only ever hands out a future once, and
// Submit's select only resolves the future itself on the branches where
// it won the race against delivery.
func (f *future) resolve(v *reply, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.resolved:
		return
	default:
	}
	f.value = v
	f.err = err
	close(f.resolved)
}

// wait blocks until resolve has been called, then returns the delivered
// reply or error.
func (f *future) wait() (*reply, error) {
	<-f.resolved
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err
}

// done returns the channel that closes once resolve has been called, for
// selecting against ctx.Done() / the client's stopped channel without
// spawning a helper goroutine per Submit call.
func (f *future) done() <-chan struct{} {
	return f.resolved
}
