package agentclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// frameTerminator is appended to every outbound envelope; two consecutive
// newlines delimit frames on the wire (spec.md §6).
const frameTerminator = "\n\n"

// envelope is the outbound wire object. Verb-specific payload fields are
// merged in by the caller before marshalling (see buildFrame).
type envelope struct {
	Serial uint32 `json:"s"`
	Verb   string `json:"q,omitempty"`
	TimeMS int64  `json:"t,omitempty"`
}

// reply is the subset of an inbound envelope the core cares about. Verb
// payload fields are opaque to the core (spec.md §6) and are exposed via
// Raw for the caller to unmarshal further.
type reply struct {
	Serial int64 `json:"s"`
	Raw    json.RawMessage
}

// serialCounter is a monotonic 32-bit request serial generator, one per
// Client, matching spec.md §3 ("a monotonic 32-bit serial counter").
type serialCounter struct{ n atomic.Uint32 }

// next returns the next serial. It wraps silently past 2^32-1, matching
// the original's plain `int serial; ++acs->serial` (an implementer-level
// wrap is acceptable since serials only need to be unique among
// concurrently outstanding requests, never globally).
func (s *serialCounter) next() uint32 {
	return s.n.Add(1)
}

// buildFrame marshals verb + extra payload fields into a single JSON
// object and appends the two-newline frame terminator, ready to hand to
// the outbound queue. extra may be nil.
func buildFrame(serial uint32, verb string, extra map[string]any) ([]byte, error) {
	obj := map[string]any{
		"s": serial,
		"t": nowMillis(),
	}
	if verb != "" {
		obj["q"] = verb
	}
	for k, v := range extra {
		obj[k] = v
	}

	body, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("agentclient: marshal envelope: %w", err)
	}

	buf := bytes.NewBuffer(make([]byte, 0, len(body)+len(frameTerminator)))
	buf.Write(body)
	buf.WriteString(frameTerminator)
	return buf.Bytes(), nil
}

// nowMillis returns the current wall-clock time in true
// milliseconds-since-epoch. spec.md §9 flags the original's
// `sec*1000 + usec/1000` as a documented bug to fix, not replicate: that
// expression actually is milliseconds-since-epoch when sec is
// seconds-since-epoch and usec is microseconds-of-that-second, so this
// implementation simply uses the standard library's own millisecond
// accessor rather than hand-rolling the arithmetic.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// parseReply extracts the envelope "s" field and keeps the full raw JSON
// for the registry handler to deliver. Returns an error if the payload is
// not a JSON object or "s" is missing/non-numeric — both map to
// spec.md §7's parse_error kind, which the caller logs and discards.
func parseReply(frame []byte) (*reply, error) {
	var probe struct {
		Serial *int64 `json:"s"`
	}
	dec := json.NewDecoder(bytes.NewReader(frame))
	if err := dec.Decode(&probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if probe.Serial == nil {
		return nil, fmt.Errorf("%w: missing or non-numeric \"s\" field", ErrMalformedFrame)
	}
	return &reply{Serial: *probe.Serial, Raw: json.RawMessage(frame)}, nil
}
