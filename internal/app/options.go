package service

import (
	"time"

	"github.com/okian/pitwall/internal/domain/delivery"
	"github.com/okian/pitwall/internal/domain/oracle"
	"github.com/okian/pitwall/internal/domain/registry"
	"github.com/okian/pitwall/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithRegistry sets the driver and track registry. Without it the bundled one is loaded.
func WithRegistry(reg *registry.Registry) Option {
	return func(s *Service) {
		if reg != nil {
			s.registry = reg
		}
	}
}

// WithOracle sets the prediction backend wrapped by the worker pool,
// replacing both the remote client and the in-process model.
func WithOracle(o oracle.Oracle) Option {
	return func(s *Service) {
		if o != nil {
			s.backend = o
		}
	}
}

// WithoutOracle makes every lap use the heuristic.
func WithoutOracle() Option {
	return func(s *Service) {
		s.oracleDisabled = true
	}
}

// WithOracleURL selects a remote prediction service.
func WithOracleURL(url string) Option {
	return func(s *Service) {
		s.oracleURL = url
	}
}

// WithOracleTimeout bounds each prediction.
func WithOracleTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.oracleTimeout = d
		}
	}
}

// WithOracleWorkers sets the number of prediction workers.
func WithOracleWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.oracleWorkers = n
		}
	}
}

// WithOracleQueueSize bounds pending predictions across all sessions.
func WithOracleQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.oracleQueueSize = n
		}
	}
}

// WithModelLatencyRange sets the simulated in-process model latency.
func WithModelLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(s *Service) {
		if minLatency >= 0 && maxLatency >= minLatency {
			s.modelMinLatency = minLatency
			s.modelMaxLatency = maxLatency
		}
	}
}

// WithSeed fixes the heuristic seed of every session; 0 picks one per session.
func WithSeed(seed uint64) Option {
	return func(s *Service) {
		s.seed = seed
	}
}

// WithTotalLaps sets the race distance.
func WithTotalLaps(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.totalLaps = n
		}
	}
}

// WithMaxSwapsPerLap bounds overtakes per lap.
func WithMaxSwapsPerLap(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxSwaps = n
		}
	}
}

// WithRaceCraft turns track bonuses and incidents on or off.
func WithRaceCraft(enabled bool) Option {
	return func(s *Service) {
		s.raceCraft = enabled
	}
}

// WithLapInterval sets the delay between laps.
func WithLapInterval(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.lapInterval = d
		}
	}
}

// WithDedupCapacity sets each connection's dedup window.
func WithDedupCapacity(n int) Option {
	return func(s *Service) {
		if n > 1 {
			s.dedupCapacity = n
		}
	}
}

// WithPaceInterval sets the minimum gap between payloads; 0 disables pacing.
func WithPaceInterval(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.paceInterval = d
		}
	}
}

// WithClock sets the pacing clock.
func WithClock(c delivery.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithMailboxSize bounds queued commands per session.
func WithMailboxSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.mailboxSize = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
