package race

import (
	"encoding/binary"
	"fmt"
	"slices"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/pitwall/internal/domain/registry"
)

// Race-craft tuning, in skill points unless noted.
const (
	technicalBonus     = 1.8
	technicalBonusFrom = 87.0
	streetBonus        = 1.5
	streetBonusFrom    = 82.0
	powerBonus         = 1.2

	// incidentLapCost is lost on the lap an incident happens.
	incidentLapCost = 6.0
	// incidentCarryCost is lost on every lap for each incident so far.
	incidentCarryCost = 2.5

	baseLapSeconds     = 90.0
	lapSpreadSeconds   = 1.5
	incidentLapSeconds = 6.0

	// keyLapRows caps the positions table shown at key laps.
	keyLapRows = 8
)

// powerTeams are the constructors whose engines pay off on power tracks.
var powerTeams = map[string]bool{
	"Red Bull": true,
	"Ferrari":  true,
}

// FastLap is the quickest lap of a race so far.
type FastLap struct {
	DriverID string
	Lap      int
	Time     time.Duration
}

// keyLap is the running order recorded at a quarter, half or three quarters distance.
type keyLap struct {
	lap   int
	order []string
	gaps  []float64
}

// TrackBonus is the per-lap score bonus d earns on t's circuit type.
func TrackBonus(t registry.Track, d registry.Driver) float64 {
	skill := d.EraAdjustedSkill()
	switch t.Type {
	case "technical":
		if skill > technicalBonusFrom {
			return technicalBonus
		}
	case "street":
		if skill > streetBonusFrom {
			return streetBonus
		}
	case "power":
		if powerTeams[d.Team] {
			return powerBonus
		}
	}
	return 0
}

// IncidentChance is the probability that d has an incident on one lap of t.
// It falls with skill and rises with track difficulty.
func IncidentChance(t registry.Track, d registry.Driver) float64 {
	return (registry.MaxSkill - d.EraAdjustedSkill()) / 800 * float64(t.Difficulty) / 100
}

// KeyLaps returns the distinct laps at a quarter, half and three quarters of
// a race of total laps. The final lap is never a key lap.
func KeyLaps(total int) []int {
	var laps []int
	for _, l := range []int{total / 4, total / 2, total * 3 / 4} {
		if l >= 1 && l < total && !slices.Contains(laps, l) {
			laps = append(laps, l)
		}
	}
	return laps
}

// applyRaceCraft adds track bonuses and incident costs to this lap's scores
// and returns the drivers who had an incident, in standings order.
func (e *Engine) applyRaceCraft(r *raceState, scores map[string]float64) []string {
	var hit []string
	for _, id := range r.standings {
		d := r.drivers[id]
		adj := TrackBonus(*e.track, d)
		if e.roll(r, "incident:"+id) < IncidentChance(*e.track, d) {
			r.incidents[id]++
			adj -= incidentLapCost
			hit = append(hit, id)
		}
		adj -= incidentCarryCost * float64(r.incidents[id])
		scores[id] += adj
	}
	return hit
}

// recordLapTimes draws a seeded lap time per driver and keeps the fastest.
// Ties keep the earlier lap.
func (e *Engine) recordLapTimes(r *raceState, incidents []string) {
	impact := e.weather.Impact()
	if impact <= 0 {
		impact = 1
	}
	for _, id := range r.standings {
		d := r.drivers[id]
		secs := (baseLapSeconds-d.EraAdjustedSkill()/20)/impact +
			(2*e.roll(r, "laptime:"+id)-1)*lapSpreadSeconds
		if slices.Contains(incidents, id) {
			secs += incidentLapSeconds
		}
		lt := time.Duration(secs * float64(time.Second)).Round(time.Millisecond)
		if r.fastest.DriverID == "" || lt < r.fastest.Time {
			r.fastest = FastLap{DriverID: id, Lap: r.lap, Time: lt}
		}
	}
}

// recordKeyLap snapshots the order and score gaps to the leader.
func (e *Engine) recordKeyLap(r *raceState, scores map[string]float64) *keyLap {
	if !slices.Contains(KeyLaps(e.totalLaps), r.lap) {
		return nil
	}
	k := keyLap{
		lap:   r.lap,
		order: append([]string(nil), r.standings...),
		gaps:  make([]float64, len(r.standings)),
	}
	lead := scores[r.standings[0]]
	for i, id := range r.standings {
		k.gaps[i] = max(0, lead-scores[id])
	}
	r.keyLaps = append(r.keyLaps, k)
	return &r.keyLaps[len(r.keyLaps)-1]
}

// hash mixes the race seed, the lap and salt.
func (e *Engine) hash(r *raceState, salt string) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], e.raceSeed(r))
	binary.LittleEndian.PutUint64(buf[8:], uint64(r.lap))
	d := xxhash.New()
	_, _ = d.Write(buf[:])
	_, _ = d.WriteString(salt)
	return d.Sum64()
}

// roll maps the race seed, lap and salt to [0,1).
func (e *Engine) roll(r *raceState, salt string) float64 {
	return float64(e.hash(r, salt)>>11) / (1 << 53)
}

func formatLapTime(d time.Duration) string {
	ms := d.Milliseconds()
	return fmt.Sprintf("%d:%02d.%03d", ms/60000, ms/1000%60, ms%1000)
}
