// Package output implements the Output Stream (spec §4.10): one
// self-describing JSONL record per externally significant state change,
// or a plain human-readable line in --plain mode (spec §6 log.format).
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// RecordType discriminates the payload shape, matching spec §4.10's list.
type RecordType string

const (
	TypeAction   RecordType = "action"
	TypeResult   RecordType = "result"
	TypeSession  RecordType = "session"
	TypeQueue    RecordType = "queue_entry"
	TypeWarning  RecordType = "warning"
	TypeError    RecordType = "error"
	TypeRecovery RecordType = "recovery"
)

// Record is one emitted line. Payload is inlined at marshal time so a
// consumer parsing each line independently sees a flat object, not a
// nested "payload" key — matching the teacher's practice of emitting
// one flat JSON object per line rather than an envelope.
type Record struct {
	Type      RecordType `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
	Payload   any        `json:"-"`
}

// Format selects jsonl or plain rendering.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatPlain Format = "plain"
)

// Stream writes Records to an underlying writer in the configured Format.
// Exactly one Emit call corresponds to exactly one line — no partial
// records are ever written, even on a failing path (spec §4.10): callers
// that hit an error construct and Emit an error Record instead of writing
// anything else.
type Stream struct {
	w      io.Writer
	format Format
	enc    *json.Encoder
}

// New constructs a Stream. For FormatJSONL, HTML-escaping is disabled
// (SetEscapeHTML(false)) since zjj's payloads are operational data, not
// browser-rendered content, and escaped `<`/`>`/`&` in e.g. workspace paths
// would be surprising to a line-oriented consumer.
func New(w io.Writer, format Format) *Stream {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Stream{w: w, format: format, enc: enc}
}

// Emit writes one record. The concrete payload type determines the
// human-readable rendering in plain mode.
func (s *Stream) Emit(r Record) error {
	if s.format == FormatPlain {
		return s.emitPlain(r)
	}
	return s.emitJSONL(r)
}

func (s *Stream) emitJSONL(r Record) error {
	flat := flatten(r)
	return s.enc.Encode(flat)
}

func (s *Stream) emitPlain(r Record) error {
	_, err := fmt.Fprintf(s.w, "[%s] %s %v\n", r.Timestamp.Format(time.RFC3339), r.Type, r.Payload)
	return err
}

// flatten merges Record's own fields with Payload's fields into one map,
// so the wire shape is a flat object per spec §6's "JSONL record shape".
func flatten(r Record) map[string]any {
	out := map[string]any{
		"type":      string(r.Type),
		"timestamp": r.Timestamp.Format(time.RFC3339),
	}
	if r.Payload == nil {
		return out
	}
	raw, err := json.Marshal(r.Payload)
	if err != nil {
		out["payload_error"] = err.Error()
		return out
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		// Payload wasn't a JSON object (e.g. a plain string or int); keep it nested.
		out["payload"] = r.Payload
		return out
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// Action emits the `action(in_progress)` record that must open every
// operation's line sequence (spec §5: "action(in_progress) -> <domain
// event> -> result").
func (s *Stream) Action(name string, now time.Time) error {
	return s.Emit(Record{Type: TypeAction, Timestamp: now, Payload: map[string]string{"name": name, "phase": "in_progress"}})
}

// Result closes an operation's line sequence.
func (s *Stream) Result(outcome string, now time.Time, detail any) error {
	return s.Emit(Record{Type: TypeResult, Timestamp: now, Payload: map[string]any{"outcome": outcome, "detail": detail}})
}

// Error emits an error record. Per spec §7, a failing command emits
// exactly action -> error -> result(error), nothing else.
func (s *Stream) Error(err error, now time.Time) error {
	return s.Emit(Record{Type: TypeError, Timestamp: now, Payload: map[string]string{"message": err.Error()}})
}

// Warning emits a warning record (used by the `warn` recovery policy).
func (s *Stream) Warning(message string, now time.Time) error {
	return s.Emit(Record{Type: TypeWarning, Timestamp: now, Payload: map[string]string{"message": message}})
}
