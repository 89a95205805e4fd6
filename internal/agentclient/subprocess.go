package agentclient

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// shutdownGrace is how long subprocess.stop waits for SIGTERM to take
// effect before escalating to SIGKILL. Grounded on
// processmgr/process.go's identical 3*time.Second grace window.
const shutdownGrace = 3 * time.Second

// subprocess supervises the single ssh child that carries the agent
// protocol. Grounded on processmgr/process.go's newProcess/Start/Close
// (Setpgid + Pdeathsig, SIGTERM-then-grace-then-SIGKILL, idempotent
// Start/Close via sync.Once), narrowed from "stdout+stderr with a
// readiness marker" to this protocol's shape: stdout carries the wire
// frames, stdin carries outbound frames, and stderr is drained only for
// diagnostics (the agent's own stderr is redirected server-side per
// spec.md §6).
type subprocess struct {
	log *zap.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	pid int

	closeOnce sync.Once
	done      chan struct{} // closed once the child has been reaped
}

// spawn launches argv[0] with argv[1:], wiring stdin/stdout as pipes and
// stderr for best-effort diagnostic logging. On any error, every pipe
// opened so far is closed before returning (spec.md §4.1: "On any error
// after fork, parent must close both pipes").
func spawn(log *zap.Logger, argv []string) (*subprocess, error) {
	cmd := exec.Command(argv[0], argv[1:]...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrSpawnFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("%w: stderr pipe: %v", ErrSpawnFailed, err), stdout.Close())
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, multierr.Combine(
			fmt.Errorf("%w: stdin pipe: %v", ErrSpawnFailed, err),
			stdout.Close(),
			stderr.Close(),
		)
	}

	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,            // isolate the child into its own process group
		Pdeathsig: syscall.SIGKILL, // Linux-only: child dies if we do
	}

	if err := cmd.Start(); err != nil {
		return nil, multierr.Combine(
			fmt.Errorf("%w: %v", ErrSpawnFailed, err),
			stdout.Close(),
			stderr.Close(),
			stdin.Close(),
		)
	}

	sp := &subprocess{
		log:    log,
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		pid:    cmd.Process.Pid,
		done:   make(chan struct{}),
	}

	go sp.drainStderr()
	go sp.reap()

	log.Info("spawned ssh child", zap.Int("pid", sp.pid), zap.Strings("argv", argv))
	return sp, nil
}

// drainStderr logs the child's own stderr (ssh's connection diagnostics,
// not the remote agent's — that one is redirected server-side per
// spec.md §6) at warn level. Grounded on processmgr/process.go's
// handleStderr, substituting a structured logger for the shared
// logBuffer since there is exactly one child per Client here.
func (sp *subprocess) drainStderr() {
	sc := bufio.NewScanner(sp.stderr)
	sc.Buffer(make([]byte, 4096), 1<<20)
	for sc.Scan() {
		sp.log.Warn("ssh stderr", zap.Int("pid", sp.pid), zap.String("line", sc.Text()))
	}
}

// reap waits for the child to exit and records it. Closed via done so
// stop() can tell whether the reap has already happened.
func (sp *subprocess) reap() {
	err := sp.cmd.Wait()
	if err != nil {
		sp.log.Info("ssh child exited", zap.Int("pid", sp.pid), zap.Error(err))
	} else {
		sp.log.Info("ssh child exited cleanly", zap.Int("pid", sp.pid))
	}
	close(sp.done)
}

// stop sends SIGTERM to the child's process group, escalating to SIGKILL
// after shutdownGrace if it hasn't exited, then waits for reap(). If the
// child has already been reaped (exited on its own), that is swallowed —
// spec.md §4.1: "if reap has already happened... the 'already-reaped'
// case is swallowed." Idempotent and concurrency-safe via sync.Once.
func (sp *subprocess) stop() {
	sp.closeOnce.Do(func() {
		select {
		case <-sp.done:
			return // already reaped
		default:
		}

		if err := syscall.Kill(-sp.pid, syscall.SIGTERM); err != nil {
			sp.log.Warn("SIGTERM failed", zap.Int("pid", sp.pid), zap.Error(err))
		}

		timer := time.NewTimer(shutdownGrace)
		defer timer.Stop()

		select {
		case <-sp.done:
			return
		case <-timer.C:
			sp.log.Warn("grace period expired, sending SIGKILL", zap.Int("pid", sp.pid))
			if err := syscall.Kill(-sp.pid, syscall.SIGKILL); err != nil {
				sp.log.Warn("SIGKILL failed", zap.Int("pid", sp.pid), zap.Error(err))
			}
			<-sp.done
		}
	})
}
