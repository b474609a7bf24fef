package delivery

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/okian/pitwall/internal/domain/dedupe"
)

// EchoPolicy decides what happens to an optimistically echoed command that
// the server rejects.
type EchoPolicy int

const (
	// LeaveAndAnnotate keeps the echoed line and marks it rejected.
	LeaveAndAnnotate EchoPolicy = iota
	// Rollback removes the echoed line.
	Rollback
)

// LineKind classifies a transcript line.
type LineKind string

// Line kinds.
const (
	LineOutput LineKind = "output"
	LineEcho   LineKind = "echo"
	LineError  LineKind = "error"
)

// Line is one rendered transcript entry.
type Line struct {
	Kind     LineKind
	Text     string
	Rejected bool // echo the server answered with an error
}

// Transcript is the client-side consumer of the narration stream. It keeps
// its own dedup window and replaces its content on every boundary payload.
type Transcript struct {
	mu      sync.Mutex
	policy  EchoPolicy
	lines   []Line
	window  dedupe.Deduper
	pending int // index of the unconfirmed echo, -1 when none
}

// NewTranscript creates an empty transcript.
func NewTranscript(policy EchoPolicy, capacity int) *Transcript {
	if capacity <= 0 {
		capacity = dedupe.DefaultMaxSize
	}
	return &Transcript{
		policy:  policy,
		window:  dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(capacity)),
		pending: -1,
	}
}

// Receive applies one server envelope and reports whether it was rendered.
func (t *Transcript) Receive(ctx context.Context, env Envelope) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := dedupe.Hash(env.Data)
	if env.Boundary.IsBoundary() {
		t.lines = t.lines[:0]
		t.window.Reset(ctx)
		t.window.SeenAndRecord(ctx, key)
		t.pending = -1
		t.lines = append(t.lines, Line{Kind: LineOutput, Text: env.Data})
		return true
	}
	if t.window.SeenAndRecord(ctx, key) {
		return false
	}

	kind := LineOutput
	if env.Kind == KindError {
		kind = LineError
		t.settleRejected()
	} else {
		t.pending = -1
	}
	t.lines = append(t.lines, Line{Kind: kind, Text: env.Data})
	return true
}

// ReceiveRaw decodes and applies a wire message. A malformed message is
// rendered as opaque output text, still subject to deduplication.
func (t *Transcript) ReceiveRaw(ctx context.Context, raw []byte) (bool, error) {
	env, err := Decode(raw)
	if err != nil {
		if !errors.Is(err, ErrProtocol) {
			return false, err
		}
		return t.Receive(ctx, Envelope{Kind: KindOutput, Data: string(raw)}), err
	}
	return t.Receive(ctx, env), nil
}

// Echo appends the user's own command before the server has answered.
func (t *Transcript) Echo(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, Line{Kind: LineEcho, Text: "> " + strings.TrimSpace(text)})
	t.pending = len(t.lines) - 1
}

// settleRejected applies the echo policy to the pending echo. Must be called with t.mu held.
func (t *Transcript) settleRejected() {
	if t.pending < 0 || t.pending >= len(t.lines) {
		t.pending = -1
		return
	}
	switch t.policy {
	case Rollback:
		t.lines = append(t.lines[:t.pending], t.lines[t.pending+1:]...)
	default:
		t.lines[t.pending].Rejected = true
	}
	t.pending = -1
}

// Lines returns a copy of the transcript.
func (t *Transcript) Lines() []Line {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Line(nil), t.lines...)
}

// String renders the transcript as plain text.
func (t *Transcript) String() string {
	lines := t.Lines()
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.Text
		if l.Rejected {
			parts[i] += "  (rejected)"
		}
	}
	return strings.Join(parts, "\n")
}

// WindowSize returns the number of hashes in the client dedup window.
func (t *Transcript) WindowSize() int {
	return int(t.window.Size())
}
