package race

import (
	"time"

	"github.com/okian/pitwall/internal/domain/oracle"
	"github.com/okian/pitwall/pkg/logger"
)

// Default engine configuration constants.
const (
	DefaultTotalLaps      = 10
	DefaultMaxSwapsPerLap = 3
	DefaultOracleTimeout  = 250 * time.Millisecond
	DefaultAutoGridSize   = 10
	MinGridSize           = 2
	MaxGridSize           = 20
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithOracle sets the prediction oracle. Without one every lap uses the heuristic.
func WithOracle(o oracle.Oracle) Option {
	return func(e *Engine) {
		e.oracle = o
	}
}

// WithRaceCraft turns track bonuses and incidents on or off. They are on by
// default; with them off the lap order follows the prediction scores alone.
func WithRaceCraft(enabled bool) Option {
	return func(e *Engine) {
		e.raceCraft = enabled
	}
}

// WithSeed fixes the seed used by the heuristic and commentary.
func WithSeed(seed uint64) Option {
	return func(e *Engine) {
		e.seed = seed
	}
}

// WithTotalLaps sets the race distance.
func WithTotalLaps(laps int) Option {
	return func(e *Engine) {
		if laps > 0 {
			e.totalLaps = laps
		}
	}
}

// WithMaxSwapsPerLap bounds the overtakes resolved in a single lap.
func WithMaxSwapsPerLap(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSwaps = n
		}
	}
}

// WithOracleTimeout bounds the wait for a prediction before falling back.
func WithOracleTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.oracleTimeout = d
		}
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithRaceIDs overrides race id generation.
func WithRaceIDs(next func() string) Option {
	return func(e *Engine) {
		if next != nil {
			e.newRaceID = next
		}
	}
}
