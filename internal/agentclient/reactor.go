package agentclient

import (
	"io"
	"sync"

	"go.uber.org/zap"
)

// readBufferSize matches agent_client_ssh.c's do_pipe_read stack buffer
// (spec.md §4.3 suggests 64 KiB).
const readBufferSize = 64 * 1024

// reactor runs the two worker goroutines that own the child's pipes:
// readLoop realizes C2 (readiness) + C3 (framing) + C5 (dispatch, which
// spec.md requires run "on the same worker" as C3) for the inbound
// direction; writeLoop realizes C2 + C4 for the outbound direction. Go's
// goroutine scheduler is the readiness facility here — see SPEC_FULL.md
// §1 for why this is a transliteration of the epoll-based design, not a
// redesign.
type reactor struct {
	log *zap.Logger

	r io.ReadCloser
	w io.WriteCloser

	framer   *framer
	registry *registry
	outq     *outboundQueue

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{} // closed once both loops have exited
}

func newReactor(log *zap.Logger, r io.ReadCloser, w io.WriteCloser, reg *registry, outq *outboundQueue) *reactor {
	return &reactor{
		log:      log,
		r:        r,
		w:        w,
		framer:   newFramer(),
		registry: reg,
		outq:     outq,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// run blocks until both loops exit, then signals done. Callers start it
// in its own goroutine.
func (rx *reactor) run() {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); rx.readLoop() }()
	go func() { defer wg.Done(); rx.writeLoop() }()
	wg.Wait()
	close(rx.done)
}

// readLoop is the inbound worker: blocking reads, frame extraction,
// dispatch to the registry. Grounded on agent_client_ssh.c's
// do_pipe_read + handle_rchunks, fused into one pass since Go's blocking
// Read already plays the role of "would block" readiness without a
// separate EAGAIN check.
func (rx *reactor) readLoop() {
	buf := make([]byte, readBufferSize)
	for {
		n, err := rx.r.Read(buf)
		if n > 0 {
			for _, frame := range rx.framer.feed(buf[:n]) {
				rx.dispatch(frame)
			}
		}
		if err != nil {
			if err != io.EOF {
				rx.log.Debug("inbound pipe closed with error", zap.Error(err))
			} else {
				rx.log.Debug("inbound pipe reached EOF")
			}
			return
		}
	}
}

// dispatch parses one frame and routes it to its waiting future.
// Malformed frames and late replies are spec.md §7 errors: logged and
// discarded, never surfaced to a caller.
func (rx *reactor) dispatch(frame []byte) {
	rep, err := parseReply(frame)
	if err != nil {
		rx.log.Debug("discarding unparsable frame",
			zap.Error(err), zap.String("frame", dumpFrame(frame)))
		return
	}

	fut := rx.registry.take(uint32(rep.Serial))
	if fut == nil {
		rx.log.Debug("discarding late reply", zap.Int64("serial", rep.Serial),
			zap.Error(ErrLateReply), zap.String("frame", dumpFrame(frame)))
		return
	}
	fut.resolve(rep, nil)
}

// writeLoop is the outbound worker: drains the queue and writes chunks
// to the child's stdin, returning its byte-weight to the optional
// semaphore once each chunk is fully on the wire. Grounded on
// agent_client_ssh.c's do_pipe_write, collapsed from an EAGAIN-driven FSM
// into a blocking loop — Go's os.Pipe Write already blocks until the
// kernel buffer has room, so there is no separate "Draining" state to
// model explicitly.
func (rx *reactor) writeLoop() {
	for {
		chunk, ok := rx.outq.pop()
		if !ok {
			select {
			case <-rx.outq.wake:
				continue
			case <-rx.stopCh:
				return
			}
		}

		if _, err := rx.w.Write(chunk); err != nil {
			rx.outq.release(chunk)
			rx.log.Debug("outbound pipe closed", zap.Error(err))
			return
		}
		rx.outq.release(chunk)
	}
}

// stop requests the writer to exit. Idempotent. The caller is
// responsible for also closing/killing the underlying transport so the
// reader unblocks from its pending Read.
func (rx *reactor) stop() {
	rx.stopOnce.Do(func() { close(rx.stopCh) })
}
