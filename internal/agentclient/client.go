// Package agentclient implements a long-lived IPC client that drives a
// remote "agent" helper process over an ssh-launched subprocess transport,
// multiplexing concurrent requests over newline-framed JSON messages on a
// single byte stream. See SPEC_FULL.md for the full design.
package agentclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// lifecycleState implements spec.md §4.7's state machine:
// New → Initialised → Connected → Stopping → Stopped.
type lifecycleState int32

const (
	stateNew lifecycleState = iota
	stateInitialised
	stateConnected
	stateStopping
	stateStopped
)

// Client is the public handle described in spec.md §3. One Client
// supervises exactly one ssh child and one agent protocol session. All
// exported methods are safe for concurrent use by any number of caller
// goroutines (spec.md §5's threading contract); only the reactor's two
// worker goroutines ever touch the pipes directly.
type Client struct {
	log *zap.Logger

	id       string
	endpoint string
	name     string
	mode     Mode

	cfg *Config

	serial   serialCounter
	registry *registry
	outq     *outboundQueue

	mu        sync.Mutex // guards the fields below and state transitions
	st        lifecycleState
	transport Transport
	reactor   *reactor

	closeOnce sync.Once
	stopped   chan struct{} // closed once the reactor has fully exited

	reporter StatusReporter
}

// New allocates an uninitialised Client (spec.md's "created by a
// factory"). Call Init before Connect.
func New() *Client {
	return &Client{
		registry: newRegistry(),
		stopped:  make(chan struct{}),
	}
}

// Init assigns identity (spec.md §3: id, endpoint, optional name,
// mode) and transitions New → Initialised. Returns an error if called
// more than once or with an empty Endpoint.
func (c *Client) Init(cfg *Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.st != stateNew {
		return fmt.Errorf("agentclient: Init called in state %v, want New", c.st)
	}
	if cfg.Endpoint == "" {
		return fmt.Errorf("agentclient: Config.Endpoint is required")
	}

	cfg = cfg.withDefaults()
	c.cfg = cfg
	c.log = cfg.Logger.Named("agentclient")
	c.endpoint = cfg.Endpoint
	c.name = cfg.Name
	c.mode = cfg.Mode
	c.reporter = cfg.Reporter

	c.id = cfg.ID
	if c.id == "" {
		c.id = uuid.NewString()
	}

	c.outq = newOutboundQueue(cfg.MaxQueuedBytes)
	c.st = stateInitialised
	return nil
}

// Connect spawns the ssh child, starts the reactor, and transitions
// Initialised → Connected. Any failure rolls back to Initialised and
// returns an error, with every resource opened along the way released
// (spec.md §4.7).
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.st != stateInitialised {
		if c.st == stateConnected {
			return ErrAlreadyConnected
		}
		return ErrNotInitialised
	}

	transport := c.cfg.transport
	if transport == nil {
		transport = newSSHTransport(c.log, c.endpoint, c.id, c.name, c.mode, c.cfg.AgentPath, c.cfg.LogPath)
		if sshT, ok := transport.(*sshTransport); ok && c.cfg.SSHArgv0 != "" {
			sshT.sshArgv0 = c.cfg.SSHArgv0
		}
	}

	r, w, err := transport.Connect(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	rx := newReactor(c.log.Named("reactor"), r, w, c.registry, c.outq)
	c.transport = transport
	c.reactor = rx

	go func() {
		rx.run()
		c.onWorkerExit()
	}()

	c.st = stateConnected

	pid := 0
	if sp, ok := transport.(*sshTransport); ok && sp.sp != nil {
		pid = sp.sp.pid
	}
	if c.reporter != nil {
		c.reporter.Connected(c.id, pid)
	}
	c.log.Info("connected", zap.String("id", c.id), zap.String("endpoint", c.endpoint))
	return nil
}

// onWorkerExit runs once the reactor's goroutines have both returned. It
// implements spec.md §9's fix for the original's worst defect: every
// future still registered is resolved with ErrStopped instead of left to
// block its caller forever.
func (c *Client) onWorkerExit() {
	for _, fut := range c.registry.drain() {
		fut.resolve(nil, ErrStopped)
	}

	c.mu.Lock()
	if c.transport != nil {
		c.transport.Close()
	}
	c.st = stateStopped
	c.mu.Unlock()

	if c.reporter != nil {
		c.reporter.Closed(c.id)
	}
	close(c.stopped)
}

// Close requests an orderly shutdown: the writer stops accepting new
// writes, the transport is torn down (SIGTERM then SIGKILL after grace),
// and Close blocks until the worker has fully exited. Idempotent —
// calling Close twice both times returns once stopped (spec.md §8).
func (c *Client) Close() {
	c.mu.Lock()
	if c.st == stateNew || c.st == stateInitialised {
		// Never connected; nothing to stop.
		c.st = stateStopped
		c.mu.Unlock()
		c.closeOnce.Do(func() { close(c.stopped) })
		return
	}
	if c.st == stateStopped {
		c.mu.Unlock()
		return
	}
	c.st = stateStopping
	rx := c.reactor
	transport := c.transport
	c.mu.Unlock()

	c.closeOnce.Do(func() {
		if rx != nil {
			rx.stop()
		}
		if transport != nil {
			transport.Close()
		}
	})

	<-c.stopped
}

// IsClosed reports whether the worker has fully exited, without
// blocking.
func (c *Client) IsClosed() bool {
	select {
	case <-c.stopped:
		return true
	default:
		return false
	}
}

// Destroy releases all resources. It requires that the worker has
// already exited (call Close first); calling it otherwise is a caller
// bug since the reactor may still hold the pipes open. Safe to call more
// than once.
//
// Go's GC reclaims the queues' backing arrays on its own, but Destroy
// still drains them explicitly so spec.md §8's invariant ("destroy()
// frees every chunk in both queues without leaks even when non-empty")
// holds observably: Pending()/len(outq.chunks) read zero afterward rather
// than relying on an implementation detail of the collector.
func (c *Client) Destroy() error {
	if !c.IsClosed() {
		return fmt.Errorf("agentclient: Destroy called before Close completed")
	}
	c.outq.drain()
	c.registry.drain()
	return nil
}

// Submit builds an envelope for verb with the given extra payload
// fields, registers a future, enqueues the frame, and blocks until a
// reply arrives, ctx is cancelled, or the connection stops. This is the
// "canonical poll_queue example" generalised per spec.md §4.6 to any
// verb.
func (c *Client) Submit(ctx context.Context, verb string, extra map[string]any) (json.RawMessage, error) {
	c.mu.Lock()
	st := c.st
	outq := c.outq
	c.mu.Unlock()

	if st == stateStopped || st == stateStopping {
		return nil, ErrClosed
	}
	if st != stateConnected {
		return nil, ErrNotInitialised
	}

	serial := c.serial.next()
	fut := newFuture(serial)
	c.registry.insert(fut)
	if c.reporter != nil {
		c.reporter.Pending(c.id, c.registry.len())
	}

	frame, err := buildFrame(serial, verb, extra)
	if err != nil {
		c.registry.take(serial)
		return nil, err
	}

	if err := outq.enqueue(ctx, frame); err != nil {
		c.registry.take(serial)
		return nil, err
	}

	select {
	case <-fut.done():
		rep, err := fut.wait()
		if err != nil {
			return nil, err
		}
		return rep.Raw, nil
	case <-ctx.Done():
		// Idempotent race against delivery: whichever side calls take
		// first wins (spec.md §5). If this side wins, it must resolve the
		// future itself — nothing else ever will — so any goroutine
		// blocked in wait()/done() on this same future unblocks instead
		// of leaking.
		if taken := c.registry.take(serial); taken != nil {
			taken.resolve(nil, ErrTimeout)
			return nil, ErrTimeout
		}
		// The reply raced in right as ctx fired; wait for the now-ready
		// future rather than discard a legitimate answer.
		rep, err := fut.wait()
		if err != nil {
			return nil, err
		}
		return rep.Raw, nil
	case <-c.stopped:
		// Covers both "the worker exited while we were waiting" and the
		// narrower race where Submit inserts into the registry after
		// onWorkerExit's one-shot drain already ran: either way nothing
		// else will ever resolve this future, so resolve it here.
		if taken := c.registry.take(serial); taken != nil {
			taken.resolve(nil, ErrStopped)
			return nil, ErrStopped
		}
		rep, err := fut.wait()
		if err != nil {
			return nil, err
		}
		return rep.Raw, nil
	}
}

// Poll is the canonical verb from spec.md §4.6 / the original
// poll_queue_func: a bare "q":"poll" envelope with no extra payload.
func (c *Client) Poll(ctx context.Context) (json.RawMessage, error) {
	return c.Submit(ctx, "poll", nil)
}

// Ping proves the envelope-building path is reusable across verbs
// (SPEC_FULL.md §4): a bare "q":"ping" envelope, no extra payload.
func (c *Client) Ping(ctx context.Context) (json.RawMessage, error) {
	return c.Submit(ctx, "ping", nil)
}

// ID returns the client's identity (caller-supplied or auto-generated).
func (c *Client) ID() string { return c.id }

// Pending returns the number of requests currently awaiting a reply.
func (c *Client) Pending() int { return c.registry.len() }

func (s lifecycleState) String() string {
	switch s {
	case stateNew:
		return "new"
	case stateInitialised:
		return "initialised"
	case stateConnected:
		return "connected"
	case stateStopping:
		return "stopping"
	case stateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
