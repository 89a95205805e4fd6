package agentclient

import "go.uber.org/zap"

// defaultAgentPath is where the real deployment's ej-agent binary lives.
// Grounded on agent_client_ssh.c's "%s/ej-agent" % EJUDGE_SERVER_BIN_PATH;
// spec.md §1 puts the agent's own implementation out of scope, so this is
// just the invocation path, overridable via Config.AgentPath for anyone
// pointing at a different deployment layout.
const defaultAgentPath = "/usr/lib/ejudge/bin/ej-agent"

// StatusReporter receives best-effort client lifecycle notifications. A
// nil StatusReporter is a valid no-op (see internal/statusredis for the
// Redis-backed implementation).
type StatusReporter interface {
	Connected(clientID string, pid int)
	Closed(clientID string)
	Pending(clientID string, n int)
}

// Config carries everything needed to construct a Client. spec.md §1
// puts configuration loading itself out of scope for the core: Config is
// a plain struct built by the caller and passed directly to Init, not a
// file format this package parses.
type Config struct {
	// Endpoint is the ssh destination (user@host, or a ~/.ssh/config
	// alias), required.
	Endpoint string
	// ID, if non-empty, is this client's identity, passed to the agent
	// via -i and echoed in log lines. Auto-generated (via uuid) if empty.
	ID string
	// Name, if non-empty, is passed to the agent via -n.
	Name string
	// Mode selects -m compile|run; ModeUnspecified omits the flag.
	Mode Mode

	// AgentPath overrides the remote ej-agent executable path.
	AgentPath string
	// LogPath, if set, is appended as "2>>LogPath" to the remote
	// invocation (spec.md §6). Empty disables server-side stderr
	// redirection.
	LogPath string
	// SSHArgv0 overrides "ssh" as the local launcher binary; used by
	// tests to point at a stub.
	SSHArgv0 string

	// MaxQueuedBytes bounds the outbound queue; 0 means unbounded
	// (spec.md §9).
	MaxQueuedBytes int64

	// Logger receives structured diagnostics. Defaults to zap.NewNop()
	// if nil, matching processmgr.NewProcessManager's convention.
	Logger *zap.Logger

	// Reporter receives lifecycle notifications; nil disables reporting.
	Reporter StatusReporter

	// transport overrides the default sshTransport; used by tests to
	// install a loopbackTransport. Unexported: only this package may set
	// it directly, external callers use Config's other fields.
	transport Transport
}

func (c *Config) withDefaults() *Config {
	cp := *c
	if cp.AgentPath == "" {
		cp.AgentPath = defaultAgentPath
	}
	if cp.SSHArgv0 == "" {
		cp.SSHArgv0 = "ssh"
	}
	if cp.Logger == nil {
		cp.Logger = zap.NewNop()
	}
	return &cp
}
