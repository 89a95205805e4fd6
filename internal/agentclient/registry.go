package agentclient

import "sync"

// registry maps request serial to the future awaiting its reply. Grounded
// on agent_client_ssh.c's add_future/get_future, re-architected per
// spec.md §4.5/§9 from a linear-scan array into a map — the spec
// explicitly allows this substitution, and it's the idiomatic Go default.
//
// Lock ordering: registry.mu is always acquired without holding any other
// lock in this package (spec.md §5's lock-precedence list places the
// registry mutex above only the per-future mutex, and dispatch always
// takes the future out of the registry before touching future.mu).
type registry struct {
	mu sync.Mutex
	m  map[uint32]*future
}

func newRegistry() *registry {
	return &registry{m: make(map[uint32]*future)}
}

// insert registers f under f.serial. Serials are unique per Client for
// the lifetime of a connection (spec.md §3).
func (r *registry) insert(f *future) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[f.serial] = f
}

// take removes and returns the future for serial, or nil if absent. It is
// idempotent: a concurrent delivery and cancellation racing to take the
// same serial result in exactly one winner and one no-op, matching
// spec.md §5's cancellation race contract.
func (r *registry) take(serial uint32) *future {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.m[serial]
	if !ok {
		return nil
	}
	delete(r.m, serial)
	return f
}

// drain removes and returns every still-registered future. Called on
// worker shutdown (and again by Destroy), so every in-flight caller can be resolved
// with ErrStopped instead of leaking (spec.md §7/§9 — the original source
// does not do this; this implementation fixes it).
func (r *registry) drain() []*future {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*future, 0, len(r.m))
	for serial, f := range r.m {
		out = append(out, f)
		delete(r.m, serial)
	}
	return out
}

// len reports the number of outstanding requests, used by the optional
// status reporter.
func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}
