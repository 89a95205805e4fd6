package agentclient

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Transport is the capability set spec.md §9 re-architects
// agent_client.h's AgentClientOps vtable into: "a capability set... with
// a single concrete provider today; variants may be added later
// (in-process loopback for tests, TCP transport)." Everything above this
// interface — framing, the outbound queue, the registry, the reactor — is
// transport-agnostic, matching spec.md §1 ("the design is
// transport-agnostic below the subprocess layer").
type Transport interface {
	// Connect starts the transport and returns the byte streams carrying
	// framed JSON in each direction: r is the inbound stream (child→
	// parent), w is the outbound stream (parent→child). Connect is
	// called at most once per Transport value.
	Connect(ctx context.Context) (r io.ReadCloser, w io.WriteCloser, err error)

	// Close tears the transport down: terminates and reaps any
	// supervised process, closes any handles. Idempotent.
	Close()
}

// sshTransport is the concrete provider: it spawns `ssh -aTx <endpoint>
// "exec <agent> ..."` as described in spec.md §6, reusing subprocess for
// process supervision.
type sshTransport struct {
	log *zap.Logger

	endpoint   string
	id         string
	name       string
	mode       Mode
	agentPath  string
	logPath    string
	sshArgv0   string // defaults to "ssh"; overridable for tests

	sp *subprocess
}

func newSSHTransport(log *zap.Logger, endpoint, id, name string, mode Mode, agentPath, logPath string) *sshTransport {
	return &sshTransport{
		log:       log,
		endpoint:  endpoint,
		id:        id,
		name:      name,
		mode:      mode,
		agentPath: agentPath,
		logPath:   logPath,
		sshArgv0:  "ssh",
	}
}

func (t *sshTransport) Connect(ctx context.Context) (io.ReadCloser, io.WriteCloser, error) {
	argv := buildSSHArgv(t.sshArgv0, t.endpoint, t.id, t.name, t.mode, t.agentPath, t.logPath)

	sp, err := spawn(t.log.Named("subprocess"), argv)
	if err != nil {
		return nil, nil, err
	}
	t.sp = sp
	return sp.stdout, sp.stdin, nil
}

func (t *sshTransport) Close() {
	if t.sp != nil {
		t.sp.stop()
	}
}

// buildSSHArgv renders the canonical remote invocation described in
// spec.md §6:
//
//	ssh -aTx <endpoint> "exec <agent-path>[ -i ID][ -n NAME][ -m compile|run] 2>>LOGPATH"
//
// Grounded directly on agent_client_ssh.c's connect_func, which builds
// the same string with open_memstream + fprintf. Flags are emitted only
// when the corresponding value is non-empty/set, matching both the
// original's conditional fprintf calls and the teacher's
// remuxcmd.Builder convention of omitting empty optional flags.
func buildSSHArgv(sshArgv0, endpoint, id, name string, mode Mode, agentPath, logPath string) []string {
	remote := fmt.Sprintf("exec %s", agentPath)
	if id != "" {
		remote += fmt.Sprintf(" -i %s", shQuote(id))
	}
	if name != "" {
		remote += fmt.Sprintf(" -n %s", shQuote(name))
	}
	if flag := mode.flag(); flag != "" {
		remote += fmt.Sprintf(" -m %s", flag)
	}
	if logPath != "" {
		remote += fmt.Sprintf(" 2>>%s", logPath)
	}

	return []string{sshArgv0, "-aTx", endpoint, remote}
}

// shQuote renders a POSIX-shell-safe single-quoted token, grounded on
// pkg/remuxcmd/builder.go's shQuote.
func shQuote(s string) string {
	if s == "" {
		return "''"
	}
	out := make([]byte, 0, len(s)+2)
	out = append(out, '\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\\', '\'', '\'')
			continue
		}
		out = append(out, s[i])
	}
	out = append(out, '\'')
	return string(out)
}
