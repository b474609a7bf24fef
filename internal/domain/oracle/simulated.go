package oracle

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/okian/pitwall/internal/domain/model"
)

// Default simulated model configuration constants.
const (
	defaultMinLatency = 20 * time.Millisecond
	defaultMaxLatency = 60 * time.Millisecond
	defaultRandomSeed = 42
	defaultNoise      = 3.0
	// skillImportance is how much of the lap is down to the driver rather
	// than the car; harder tracks reward skill more.
	baseSkillImportance = 0.6
)

// Option applies a configuration option to the SimulatedModel.
type Option func(*SimulatedModel)

// WithLatencyRange sets the simulated inference latency range.
func WithLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(s *SimulatedModel) {
		if minLatency >= 0 && maxLatency > minLatency {
			s.minLatency = minLatency
			s.maxLatency = maxLatency
		}
	}
}

// WithSeed seeds the model's noise source.
func WithSeed(seed int64) Option {
	return func(s *SimulatedModel) {
		s.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // simulation noise, not security
	}
}

// WithNoise sets the standard deviation of per-lap noise in skill points.
func WithNoise(stddev float64) Option {
	return func(s *SimulatedModel) {
		if stddev >= 0 {
			s.noise = stddev
		}
	}
}

// SimulatedModel stands in for the trained model when no remote oracle is
// configured. It rewards skill more on difficult tracks and separates
// drivers further in the wet.
type SimulatedModel struct {
	minLatency time.Duration
	maxLatency time.Duration
	noise      float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedModel creates a new simulated model with configuration options.
func NewSimulatedModel(opts ...Option) *SimulatedModel {
	s := &SimulatedModel{
		minLatency: defaultMinLatency,
		maxLatency: defaultMaxLatency,
		noise:      defaultNoise,
		rng:        rand.New(rand.NewSource(defaultRandomSeed)), //nolint:gosec // deterministic seed for reproducible testing
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Predict computes a score for every participant after simulated latency.
func (s *SimulatedModel) Predict(ctx context.Context, participants []Participant, rc RaceContext) (Prediction, error) {
	select {
	case <-ctx.Done():
		return Prediction{}, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
	case <-time.After(s.latency()):
	}

	importance := baseSkillImportance + float64(rc.Difficulty)/250
	scores := make(map[string]float64, len(participants))

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range participants {
		skill := p.AdjustedSkill()
		perf := skill*importance + 70*(1-importance)
		perf *= weatherFactor(skill, rc.Weather)
		perf += s.rng.NormFloat64() * s.noise * rc.Weather.Variance() * (0.5 + rc.OvertakingFactor)
		perf -= standingPenalty * float64(p.Standing) * (1 - rc.OvertakingFactor)
		scores[p.DriverID] = math.Max(0, perf)
	}
	return Prediction{Scores: scores, Source: "model"}, nil
}

func (s *SimulatedModel) latency() time.Duration {
	if s.maxLatency <= s.minLatency {
		return s.minLatency
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minLatency + time.Duration(s.rng.Int63n(int64(s.maxLatency-s.minLatency)))
}

// weatherFactor favours skilled drivers as conditions worsen.
func weatherFactor(skill float64, w model.Weather) float64 {
	switch w {
	case model.WeatherHeavyRain:
		return 0.85 + skill/100*0.3
	case model.WeatherLightRain:
		return 0.92 + skill/100*0.16
	default:
		return w.Impact()
	}
}
