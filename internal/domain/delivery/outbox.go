package delivery

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/okian/pitwall/internal/domain/dedupe"
	"github.com/okian/pitwall/internal/domain/model"
)

// Outcome is the delivery decision for one frame.
type Outcome string

// Outcomes. A duplicate is a normal result, not an error.
const (
	OutcomeAdmitted  Outcome = "admitted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomePaced     Outcome = "paced"
	OutcomeEmpty     Outcome = "empty"
)

// OutboxOption configures an Outbox.
type OutboxOption func(*Outbox)

// WithDedupCapacity sets the dedup window cap.
func WithDedupCapacity(n int) OutboxOption {
	return func(o *Outbox) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithPaceInterval sets the minimum gap between admitted payloads; 0 disables pacing.
func WithPaceInterval(d time.Duration) OutboxOption {
	return func(o *Outbox) {
		if d >= 0 {
			o.interval = d
		}
	}
}

// WithClock injects the pacing clock.
func WithClock(c Clock) OutboxOption {
	return func(o *Outbox) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithPromptText overrides the synthesized restart prompt.
func WithPromptText(s string) OutboxOption {
	return func(o *Outbox) {
		if strings.TrimSpace(s) != "" {
			o.prompt = s
		}
	}
}

// Outbox is the per-connection delivery state on the server side: the dedup
// window, the pacing clock and the last race prompted for a restart. It is created on connect and dropped on disconnect.
type Outbox struct {
	mu       sync.Mutex
	capacity int
	interval time.Duration
	clock    Clock
	prompt   string

	window dedupe.Deduper
	pacer  *Pacer
	// lastPrompted is the race the restart prompt went out for. Only the
	// newest race can await a restart, so one id is enough.
	lastPrompted string
}

// NewOutbox creates the delivery state for one connection.
func NewOutbox(opts ...OutboxOption) *Outbox {
	o := &Outbox{
		capacity: dedupe.DefaultMaxSize,
		interval: DefaultPaceInterval,
		clock:    SystemClock{},
		prompt:   RestartPrompt,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.window = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(o.capacity))
	o.pacer = NewPacer(o.interval, o.clock)
	return o
}

// Admit decides what reaches the wire for one engine frame.
//
// The frame is coalesced into a single payload. Boundary payloads reset the
// window first and are never paced out. Other payloads are suppressed when
// already in the window and dropped when they arrive inside the pacing
// interval. A frame that carries the awaiting-restart flag is followed by
// exactly one restart prompt per race, whatever happened to the frame itself.
func (o *Outbox) Admit(ctx context.Context, f model.Frame) ([]Envelope, Outcome) {
	if len(f) == 0 {
		return nil, OutcomeEmpty
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	env := FromFrame(f)
	key := dedupe.Hash(env.Data)

	var out []Envelope
	outcome := OutcomeAdmitted
	switch {
	case env.Boundary.IsBoundary():
		o.window.Reset(ctx)
		o.window.SeenAndRecord(ctx, key)
		o.pacer.Force()
		out = append(out, env)
	case o.window.Contains(key):
		outcome = OutcomeDuplicate
	case !o.pacer.Admit():
		outcome = OutcomePaced
	default:
		o.window.SeenAndRecord(ctx, key)
		out = append(out, env)
	}

	if raceID, ok := f.AwaitingRestart(); ok {
		if raceID != o.lastPrompted {
			o.lastPrompted = raceID
			out = append(out, Envelope{
				Kind:   KindOutput,
				Data:   o.prompt,
				Phase:  model.PhaseAwaitingRestartAnswer,
				Prompt: true,
			})
		}
	}
	return out, outcome
}

// WindowSize returns the number of hashes in the dedup window.
func (o *Outbox) WindowSize() int {
	return int(o.window.Size())
}

// Prompted reports whether the restart prompt was sent for raceID, which must
// be the most recent race to finish.
func (o *Outbox) Prompted(raceID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return raceID != "" && raceID == o.lastPrompted
}

// Forget takes an admitted payload back out of the dedup window after it
// failed to reach the wire, so the same text may be delivered again.
func (o *Outbox) Forget(ctx context.Context, env Envelope) {
	if env.Prompt {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.window.Unrecord(ctx, dedupe.Hash(env.Data))
}
