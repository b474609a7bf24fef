// Package types contains the JSON shapes served by the REST API.
package types

import (
	"github.com/okian/pitwall/internal/domain/registry"
)

// Track is the REST view of a registry track.
type Track struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Country          string   `json:"country,omitempty"`
	Type             string   `json:"type,omitempty"`
	Difficulty       int      `json:"difficulty"`
	OvertakingFactor float64  `json:"overtaking_factor"`
	Weather          string   `json:"weather"`
	Landmarks        []string `json:"landmarks,omitempty"`
}

// Driver is the REST view of a registry driver.
type Driver struct {
	ID               string               `json:"id"`
	Name             string               `json:"name"`
	Era              string               `json:"era"`
	Team             string               `json:"team,omitempty"`
	Skill            float64              `json:"skill"`
	EraAdjustedSkill float64              `json:"era_adjusted_skill"`
	Stats            registry.CareerStats `json:"stats"`
}

// Stats is the service snapshot returned by GET /stats.
type Stats struct {
	Started            bool   `json:"started"`
	ActiveSessions     int    `json:"active_sessions"`
	SessionsOpened     int64  `json:"sessions_opened"`
	Tracks             int    `json:"tracks"`
	Drivers            int    `json:"drivers"`
	Oracle             string `json:"oracle"`
	PredictionWorkers  int    `json:"prediction_workers"`
	PredictionsPending int    `json:"predictions_pending"`
	PredictionsActive  int    `json:"predictions_active"`
	TotalLaps          int    `json:"total_laps"`
	DedupCapacity      int    `json:"dedup_capacity"`
	PaceIntervalMS     int64  `json:"pace_interval_ms"`
	LapIntervalMS      int64  `json:"lap_interval_ms"`
}

// FromTrack converts a registry track.
func FromTrack(t registry.Track) Track {
	return Track{
		ID:               t.ID,
		Name:             t.Name,
		Country:          t.Country,
		Type:             t.Type,
		Difficulty:       t.Difficulty,
		OvertakingFactor: t.OvertakingFactor,
		Weather:          string(t.Weather),
		Landmarks:        t.Landmarks,
	}
}

// FromDriver converts a registry driver.
func FromDriver(d registry.Driver) Driver {
	return Driver{
		ID:               d.ID,
		Name:             d.Name,
		Era:              string(d.Era),
		Team:             d.Team,
		Skill:            d.Skill,
		EraAdjustedSkill: d.EraAdjustedSkill(),
		Stats:            d.Stats,
	}
}
