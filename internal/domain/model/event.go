// Package model contains domain models passed between layers.
package model

import "time"

// EventKind classifies a narration event for the transport envelope.
type EventKind string

// Event kinds.
const (
	KindOutput EventKind = "output"
	KindError  EventKind = "error"
)

// BoundaryReason tags a narration event that starts a fresh transcript.
// The zero value means the event is not a boundary.
type BoundaryReason string

// Boundary reasons set by the engine at emission time.
const (
	BoundaryNone         BoundaryReason = ""
	BoundarySessionStart BoundaryReason = "session_start"
	BoundaryTrackMenu    BoundaryReason = "track_menu"
	BoundaryDriverMenu   BoundaryReason = "driver_menu"
	BoundaryRaceStart    BoundaryReason = "race_start"
)

// IsBoundary reports whether r marks a resynchronization point.
func (r BoundaryReason) IsBoundary() bool { return r != BoundaryNone }

// Event is one narration line emitted by the race engine.
type Event struct {
	Seq      uint64         // per-session sequence number, strictly increasing
	Kind     EventKind      // output or error
	Text     string         // rendered narration
	Boundary BoundaryReason // non-empty on resync points
	Phase    Phase          // phase of the session after the event was emitted
	RaceID   string         // race the event belongs to, empty outside a race
	// AwaitingRestart marks the last event of a finished race; the delivery
	// layer follows it with exactly one restart prompt.
	AwaitingRestart bool
	TS              time.Time
}

// Frame is the ordered batch of events produced by a single engine step.
type Frame []Event

// Boundary returns the boundary reason of the frame (its first event).
func (f Frame) Boundary() BoundaryReason {
	if len(f) == 0 {
		return BoundaryNone
	}
	return f[0].Boundary
}

// Kind returns KindError when every event in the frame is an error.
func (f Frame) Kind() EventKind {
	if len(f) == 0 {
		return KindOutput
	}
	for _, e := range f {
		if e.Kind != KindError {
			return KindOutput
		}
	}
	return KindError
}

// AwaitingRestart reports whether any event in the frame asks for a restart answer.
func (f Frame) AwaitingRestart() (string, bool) {
	for _, e := range f {
		if e.AwaitingRestart {
			return e.RaceID, true
		}
	}
	return "", false
}

// Phase returns the phase carried by the last event of the frame.
func (f Frame) Phase() Phase {
	if len(f) == 0 {
		return PhaseIdle
	}
	return f[len(f)-1].Phase
}
