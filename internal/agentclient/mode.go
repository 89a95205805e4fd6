package agentclient

// Mode selects the agent invocation mode passed to the remote ej-agent
// binary via its -m flag. The zero value, ModeUnspecified, omits the flag
// entirely, matching connect_func's conditional emission in the original
// agent_client_ssh.c.
type Mode int

const (
	ModeUnspecified Mode = iota
	ModeCompile
	ModeRun
)

// flag returns the -m value for this mode, or "" if the flag should be
// omitted.
func (m Mode) flag() string {
	switch m {
	case ModeCompile:
		return "compile"
	case ModeRun:
		return "run"
	default:
		return ""
	}
}

func (m Mode) String() string {
	switch m {
	case ModeCompile:
		return "compile"
	case ModeRun:
		return "run"
	default:
		return "unspecified"
	}
}
