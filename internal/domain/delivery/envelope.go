// Package delivery frames, deduplicates, paces and resynchronizes the
// narration stream between a session and its client.
package delivery

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/okian/pitwall/internal/domain/model"
)

// Kind is the envelope kind on the wire.
type Kind string

// Envelope kinds.
const (
	KindOutput Kind = "output"
	KindInput  Kind = "input"
	KindError  Kind = "error"
)

// RestartPrompt is the payload appended once after each finished race.
const RestartPrompt = "Race again? (y/n)"

// Envelope is one message on the wire. Only kind and data are required;
// the remaining fields are optional hints for richer clients.
type Envelope struct {
	Kind     Kind                 `json:"kind"`
	Data     string               `json:"data"`
	Boundary model.BoundaryReason `json:"boundary,omitempty"`
	Seq      uint64               `json:"seq,omitempty"`
	Phase    model.Phase          `json:"phase,omitempty"`
	Prompt   bool                 `json:"prompt,omitempty"`
}

// Input builds a client command envelope from free text.
func Input(text string) Envelope {
	return Envelope{Kind: KindInput, Data: strings.TrimSpace(text)}
}

// FromFrame coalesces a frame into a single envelope. Lines are joined in
// order and the frame's first event decides the boundary.
func FromFrame(f model.Frame) Envelope {
	texts := make([]string, len(f))
	for i, ev := range f {
		texts[i] = ev.Text
	}
	env := Envelope{
		Kind:     KindOutput,
		Data:     strings.Join(texts, "\n"),
		Boundary: f.Boundary(),
		Phase:    f.Phase(),
	}
	if f.Kind() == model.KindError {
		env.Kind = KindError
	}
	if len(f) > 0 {
		env.Seq = f[len(f)-1].Seq
	}
	return env
}

// Encode marshals the envelope.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses an envelope. Anything that is not a JSON object with a known
// kind yields ErrProtocol.
func Decode(raw []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	switch e.Kind {
	case KindOutput, KindInput, KindError:
		return e, nil
	default:
		return Envelope{}, fmt.Errorf("%w: unknown kind %q", ErrProtocol, e.Kind)
	}
}
