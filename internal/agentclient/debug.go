package agentclient

import "github.com/davecgh/go-spew/spew"

// dumpFrame renders a frame for debug-level diagnostics when it fails to
// parse or has no matching waiter. Grounded on pkg/fmtt.PrintErrChainDebug's
// use of spew.Dump for the same "something went wrong, show me everything"
// purpose.
func dumpFrame(frame []byte) string {
	return spew.Sdump(string(frame))
}
