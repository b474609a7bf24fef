package oracle

import (
	"context"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

const (
	// jitterScale is the widest swing, in skill points, on a fully open track
	// in the dry.
	jitterScale = 25.0
	// standingPenalty is subtracted per place behind the leader.
	standingPenalty = 0.5
)

// Heuristic ranks participants by skill, seeded jitter and a standing penalty.
// The same seed, lap, drivers and track always produce the same scores.
type Heuristic struct {
	Seed uint64
}

// NewHeuristic returns a fallback bound to seed.
func NewHeuristic(seed uint64) Heuristic {
	return Heuristic{Seed: seed}
}

// Predict never fails.
func (h Heuristic) Predict(_ context.Context, participants []Participant, rc RaceContext) (Prediction, error) {
	scores := make(map[string]float64, len(participants))
	for _, p := range participants {
		scores[p.DriverID] = h.Score(p, rc)
	}
	return Prediction{Scores: scores, Source: "heuristic"}, nil
}

// Score is skill + jitter - positionPenalty for a single participant.
func (h Heuristic) Score(p Participant, rc RaceContext) float64 {
	return p.AdjustedSkill() + h.jitter(p.DriverID, rc) - standingPenalty*float64(p.Standing)
}

// jitter is uniform in [-amplitude, amplitude), where amplitude grows with the
// overtaking factor and the weather variance.
func (h Heuristic) jitter(driverID string, rc RaceContext) float64 {
	amplitude := jitterScale * (0.5 + rc.OvertakingFactor) * rc.Weather.Variance()
	return (2*unit(h.Seed, rc.Lap, driverID) - 1) * amplitude
}

// unit maps (seed, lap, driver) to [0,1).
func unit(seed uint64, lap int, driverID string) float64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], seed)
	binary.LittleEndian.PutUint64(buf[8:], uint64(lap))
	d := xxhash.New()
	_, _ = d.Write(buf[:])
	_, _ = d.WriteString(driverID)
	return float64(d.Sum64()>>11) / (1 << 53)
}
