// Package registry holds the static drivers and tracks a race is built from.
//
// A Registry is loaded once at startup and never mutated afterwards, so it is
// safe to share between every session without locking.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/okian/pitwall/internal/domain/model"
)

// Skill bounds for drivers.
const (
	MinSkill = 25.0
	MaxSkill = 100.0
)

// Era groups drivers by the regulations they raced under.
type Era string

// Known eras.
const (
	EraClassic Era = "classic"
	EraModern  Era = "modern"
	EraHybrid  Era = "hybrid"
)

// Adjustment is the skill offset that puts an era on the hybrid-era scale.
func (e Era) Adjustment() float64 {
	switch e {
	case EraClassic:
		return 4
	case EraModern:
		return 2
	default:
		return 0
	}
}

// CareerStats are display-only numbers shown in menus and REST views.
type CareerStats struct {
	Seasons       int `yaml:"seasons" json:"seasons"`
	Wins          int `yaml:"wins" json:"wins"`
	Championships int `yaml:"championships" json:"championships"`
	Podiums       int `yaml:"podiums" json:"podiums"`
}

// Driver is an immutable registry entry.
type Driver struct {
	ID    string
	Name  string
	Era   Era
	Team  string
	Skill float64
	Stats CareerStats
}

// EraAdjustedSkill is the base skill with the era offset applied, capped at MaxSkill.
func (d Driver) EraAdjustedSkill() float64 {
	s := d.Skill + d.Era.Adjustment()
	if s > MaxSkill {
		return MaxSkill
	}
	return s
}

// Track is an immutable registry entry.
type Track struct {
	ID               string
	Name             string
	Country          string
	Type             string
	Difficulty       int     // 0-100
	OvertakingFactor float64 // 0-1
	Weather          model.Weather
	Landmarks        []string
}

// Registry provides pure lookups over drivers and tracks.
type Registry struct {
	drivers     []Driver
	tracks      []Track
	driverIndex map[string]int
	trackIndex  map[string]int
}

// New builds a registry from already validated entries, keeping their order.
// Ids are stored lowercase so lookups ignore case.
func New(drivers []Driver, tracks []Track) (*Registry, error) {
	r := &Registry{
		drivers:     make([]Driver, 0, len(drivers)),
		tracks:      make([]Track, 0, len(tracks)),
		driverIndex: make(map[string]int, len(drivers)),
		trackIndex:  make(map[string]int, len(tracks)),
	}
	for _, d := range drivers {
		d.ID = strings.ToLower(strings.TrimSpace(d.ID))
		if err := validateDriver(d); err != nil {
			return nil, err
		}
		if _, dup := r.driverIndex[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate driver id %q", ErrInvalidData, d.ID)
		}
		r.driverIndex[d.ID] = len(r.drivers)
		r.drivers = append(r.drivers, d)
	}
	for _, t := range tracks {
		t.ID = strings.ToLower(strings.TrimSpace(t.ID))
		if err := validateTrack(t); err != nil {
			return nil, err
		}
		if _, dup := r.trackIndex[t.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate track id %q", ErrInvalidData, t.ID)
		}
		t.Landmarks = append([]string(nil), t.Landmarks...)
		r.trackIndex[t.ID] = len(r.tracks)
		r.tracks = append(r.tracks, t)
	}
	return r, nil
}

// Driver returns the driver with id or ErrNotFound.
func (r *Registry) Driver(id string) (Driver, error) {
	i, ok := r.driverIndex[strings.ToLower(id)]
	if !ok {
		return Driver{}, fmt.Errorf("driver %q: %w", id, ErrNotFound)
	}
	return r.drivers[i], nil
}

// Track returns the track with id or ErrNotFound.
func (r *Registry) Track(id string) (Track, error) {
	i, ok := r.trackIndex[strings.ToLower(id)]
	if !ok {
		return Track{}, fmt.Errorf("track %q: %w", id, ErrNotFound)
	}
	t := r.tracks[i]
	t.Landmarks = append([]string(nil), t.Landmarks...)
	return t, nil
}

// ListDrivers returns every driver in load order.
func (r *Registry) ListDrivers() []Driver {
	return append([]Driver(nil), r.drivers...)
}

// ListTracks returns every track in load order.
func (r *Registry) ListTracks() []Track {
	out := make([]Track, len(r.tracks))
	for i, t := range r.tracks {
		t.Landmarks = append([]string(nil), t.Landmarks...)
		out[i] = t
	}
	return out
}

// TopDrivers returns the n strongest drivers by era-adjusted skill, ties by id.
func (r *Registry) TopDrivers(n int) []Driver {
	all := r.ListDrivers()
	sort.SliceStable(all, func(i, j int) bool {
		si, sj := all[i].EraAdjustedSkill(), all[j].EraAdjustedSkill()
		if si != sj {
			return si > sj
		}
		return all[i].ID < all[j].ID
	})
	if n < len(all) && n >= 0 {
		all = all[:n]
	}
	return all
}

func validateDriver(d Driver) error {
	switch {
	case d.ID == "":
		return fmt.Errorf("%w: driver without id", ErrInvalidData)
	case d.Skill < MinSkill || d.Skill > MaxSkill:
		return fmt.Errorf("%w: driver %q skill %.1f outside [%.0f,%.0f]", ErrInvalidData, d.ID, d.Skill, MinSkill, MaxSkill)
	}
	return nil
}

func validateTrack(t Track) error {
	switch {
	case t.ID == "":
		return fmt.Errorf("%w: track without id", ErrInvalidData)
	case t.Difficulty < 0 || t.Difficulty > 100:
		return fmt.Errorf("%w: track %q difficulty %d outside [0,100]", ErrInvalidData, t.ID, t.Difficulty)
	case t.OvertakingFactor < 0 || t.OvertakingFactor > 1:
		return fmt.Errorf("%w: track %q overtaking factor %.2f outside [0,1]", ErrInvalidData, t.ID, t.OvertakingFactor)
	case !t.Weather.Valid():
		return fmt.Errorf("%w: track %q unknown weather %q", ErrInvalidData, t.ID, t.Weather)
	}
	return nil
}
