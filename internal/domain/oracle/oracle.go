// Package oracle defines the contract between the race engine and the
// prediction model, plus the deterministic heuristic used when the model
// cannot answer in time.
package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/pitwall/internal/domain/model"
)

// ErrUnavailable is returned when a prediction failed, timed out or was malformed.
var ErrUnavailable = errors.New("oracle unavailable")

// Participant is one driver as seen by the model for a single lap.
type Participant struct {
	DriverID      string  `json:"driver_id"`
	Skill         float64 `json:"skill"`
	EraAdjustment float64 `json:"era_adjustment"`
	Standing      int     `json:"standing"` // 0 is the leader
}

// AdjustedSkill is the skill with the era adjustment applied, capped at 100.
func (p Participant) AdjustedSkill() float64 {
	s := p.Skill + p.EraAdjustment
	if s > 100 {
		return 100
	}
	return s
}

// RaceContext describes the track and conditions for a prediction.
type RaceContext struct {
	TrackID          string        `json:"track_id"`
	Difficulty       int           `json:"difficulty"`
	OvertakingFactor float64       `json:"overtaking_factor"`
	Weather          model.Weather `json:"weather"`
	Lap              int           `json:"lap"`
	TotalLaps        int           `json:"total_laps"`
}

// Prediction is either a per-driver score or a ranking (best first). When
// both are present scores win.
type Prediction struct {
	Scores  map[string]float64 `json:"scores,omitempty"`
	Ranking []string           `json:"ranking,omitempty"`
	Source  string             `json:"source,omitempty"`
}

// ScoreOf returns the driver's score. A ranking is turned into descending
// integer scores so both shapes compare the same way.
func (p Prediction) ScoreOf(driverID string) (float64, bool) {
	if p.Scores != nil {
		s, ok := p.Scores[driverID]
		return s, ok
	}
	for i, id := range p.Ranking {
		if id == driverID {
			return float64(len(p.Ranking) - i), true
		}
	}
	return 0, false
}

// Validate checks that the prediction covers every participant.
func (p Prediction) Validate(participants []Participant) error {
	for _, part := range participants {
		if _, ok := p.ScoreOf(part.DriverID); !ok {
			return fmt.Errorf("%w: no prediction for driver %q", ErrUnavailable, part.DriverID)
		}
	}
	return nil
}

// Oracle predicts relative pace for the participants of one lap.
// Implementations must be safe for concurrent use and keep no per-session state.
type Oracle interface {
	Predict(ctx context.Context, participants []Participant, rc RaceContext) (Prediction, error)
}
