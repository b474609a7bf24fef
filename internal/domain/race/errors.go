package race

import (
	"errors"
	"fmt"

	"github.com/okian/pitwall/internal/domain/model"
)

var (
	// ErrState is returned for a command the current phase does not accept.
	ErrState = errors.New("command not valid in current phase")
	// ErrInvalidSelection is a StateError variant for unknown or duplicate ids.
	ErrInvalidSelection = fmt.Errorf("%w: invalid selection", ErrState)
)

// CommandError describes a rejected command. The session phase is unchanged.
type CommandError struct {
	Op    string      // command name, e.g. "select_drivers"
	Phase model.Phase // phase the command was rejected in
	Input string      // raw input as received
	Err   error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s in %s (%q): %v", e.Op, e.Phase, e.Input, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Result is the metrics label for err.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidSelection):
		return "invalid_selection"
	case errors.Is(err, ErrState):
		return "state_error"
	default:
		return "error"
	}
}
