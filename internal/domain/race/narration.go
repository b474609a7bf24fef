package race

import (
	"errors"
	"fmt"
	"strings"

	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/internal/domain/registry"
)

// legendarySkill is the base skill above which a win gets the legendary line.
const legendarySkill = 95

func bannerText() string {
	return "PITWALL RACE CONTROL\nPick a track, build a grid and let the model call the race."
}

func (e *Engine) trackMenuText() string {
	var b strings.Builder
	b.WriteString("Select a track:\n")
	for i, t := range e.reg.ListTracks() {
		fmt.Fprintf(&b, "%2d. %s (%s) %s, difficulty %d, usually %s\n",
			i+1, t.Name, t.Country, t.Type, t.Difficulty, weatherName(t.Weather))
	}
	b.WriteString("Enter a number, optionally followed by the weather: ")
	for i, w := range model.Weathers {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%d %s", i+1, w)
	}
	return b.String()
}

func (e *Engine) driverMenuText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s selected, %s.\n", e.track.Name, weatherName(e.weather))
	fmt.Fprintf(&b, "Select %d-%d drivers in grid order (e.g. 1 4 7), or type auto [N]:\n", MinGridSize, MaxGridSize)
	for i, d := range e.reg.ListDrivers() {
		fmt.Fprintf(&b, "%2d. %-20s %-8s %-10s skill %3.0f  %d wins, %d titles\n",
			i+1, d.Name, d.Era, d.Team, d.Skill, d.Stats.Wins, d.Stats.Championships)
	}
	return strings.TrimRight(b.String(), "\n")
}

func gridText(grid []registry.Driver) string {
	var b strings.Builder
	b.WriteString("Grid set:\n")
	for i, d := range grid {
		fmt.Fprintf(&b, "  P%d %s (%s)\n", i+1, d.Name, d.Team)
	}
	b.WriteString("Type start to go racing.")
	return b.String()
}

func (e *Engine) raceStartText(r *raceState) string {
	return fmt.Sprintf("RACE START: %s, %d laps, %s. %d cars on the grid, %s on pole.",
		e.track.Name, e.totalLaps, weatherName(e.weather), len(r.grid), r.grid[0].Name)
}

func (e *Engine) startLine(r *raceState) string {
	return fmt.Sprintf("Lights out at %s! %s leads the field towards %s.",
		e.track.Name, e.name(r, r.standings[0]), e.landmark(r, "start"))
}

func (e *Engine) overtakeLine(r *raceState, o Overtake) string {
	return fmt.Sprintf("Lap %d: %s passes %s for P%d at %s!",
		o.Lap, e.name(r, o.By), e.name(r, o.On), o.Position, e.landmark(r, o.By))
}

func (e *Engine) incidentLine(r *raceState, id string) string {
	d := r.drivers[id]
	if r.incidents[id] > 1 {
		return fmt.Sprintf("Lap %d: Another incident for %s at %s! That is %d today and the %s is losing time.",
			r.lap, d.Name, e.landmark(r, "incident:"+id), r.incidents[id], d.Team)
	}
	return fmt.Sprintf("Lap %d: Incident for %s at %s! The %s loses time.",
		r.lap, d.Name, e.landmark(r, "incident:"+id), d.Team)
}

func (e *Engine) lapSummary(r *raceState, scores map[string]float64, swaps int, key *keyLap) string {
	leader := r.standings[0]
	gap := scores[leader] - scores[r.standings[1]]
	var margin string
	switch {
	case gap > 5:
		margin = "a comfortable margin"
	case gap > 1.5:
		margin = "around a second"
	default:
		margin = "a whisker"
	}
	s := fmt.Sprintf("Lap %d/%d: %s leads %s by %s.",
		r.lap, e.totalLaps, e.name(r, leader), e.name(r, r.standings[1]), margin)
	if swaps == 0 {
		s += fmt.Sprintf(" Positions hold through %s.", e.landmark(r, "summary"))
	}
	if key != nil {
		s += "\n" + e.positionsTable(r, *key)
	}
	return s
}

func (e *Engine) positionsTable(r *raceState, k keyLap) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Positions after lap %d:", k.lap)
	for i, id := range k.order {
		if i == keyLapRows {
			break
		}
		gap := "Leader"
		if i > 0 {
			gap = fmt.Sprintf("+%.2fs", k.gaps[i])
		}
		fmt.Fprintf(&b, "\n  %2d. %-20s %-10s %s", i+1, e.name(r, id), r.drivers[id].Team, gap)
	}
	return b.String()
}

func (e *Engine) victoryLine(r *raceState) string {
	winner := r.drivers[r.standings[0]]
	if winner.Skill > legendarySkill {
		return fmt.Sprintf("CHEQUERED FLAG! A legendary drive from %s, who wins at %s!", winner.Name, e.track.Name)
	}
	return fmt.Sprintf("CHEQUERED FLAG! %s wins at %s!", winner.Name, e.track.Name)
}

func (e *Engine) classification(r *raceState) string {
	gained := make(map[string]int, len(r.overtakes))
	for _, o := range r.overtakes {
		gained[o.By]++
	}
	var b strings.Builder
	b.WriteString("Final classification:\n")
	for i, id := range r.standings {
		d := r.drivers[id]
		fmt.Fprintf(&b, "  P%-2d %-20s %-10s %d overtakes, %s", i+1, d.Name, d.Team, gained[id], incidentStatus(r.incidents[id]))
		if id == r.fastest.DriverID {
			b.WriteString(", fastest lap")
		}
		b.WriteString("\n")
	}
	if r.fastest.DriverID != "" {
		d := r.drivers[r.fastest.DriverID]
		fmt.Fprintf(&b, "Fastest lap: %s (%s), %s on lap %d.\n",
			d.Name, d.Team, formatLapTime(r.fastest.Time), r.fastest.Lap)
	}
	if len(r.keyLaps) > 0 {
		b.WriteString("Positions at key laps:\n")
		for _, k := range r.keyLaps {
			names := make([]string, len(k.order))
			for i, id := range k.order {
				names[i] = e.name(r, id)
			}
			fmt.Fprintf(&b, "  Lap %d: %s\n", k.lap, strings.Join(names, ", "))
		}
	}
	fmt.Fprintf(&b, "Overtakes: %d. Incidents: %d. Laps called by the fallback heuristic: %d/%d.",
		len(r.overtakes), totalIncidents(r), r.fallbackLaps, e.totalLaps)
	return b.String()
}

func incidentStatus(n int) string {
	switch n {
	case 0:
		return "clean"
	case 1:
		return "1 incident"
	default:
		return fmt.Sprintf("%d incidents", n)
	}
}

func totalIncidents(r *raceState) int {
	n := 0
	for _, c := range r.incidents {
		n += c
	}
	return n
}

func rejectText(input string, err error) string {
	msg := err.Error()
	var detail string
	if i := strings.LastIndex(msg, ": "); i >= 0 && errors.Is(err, ErrState) {
		detail = msg[i+2:]
	} else {
		detail = msg
	}
	if input == "" {
		return fmt.Sprintf("Cannot do that: %s.", detail)
	}
	return fmt.Sprintf("Cannot do that (%q): %s. Type help for commands.", input, detail)
}

func helpText(phase model.Phase) string {
	var hint string
	switch phase {
	case model.PhaseIdle:
		hint = "Pick a track by number or id, optionally with weather: 3 heavy_rain"
	case model.PhaseTrackSelected:
		hint = "Pick drivers by number or id in grid order: 1 4 7, or auto [N]"
	case model.PhaseGridReady:
		hint = "Type start to begin the race"
	case model.PhaseRunning:
		hint = "The race is running, sit back and watch"
	case model.PhaseFinished, model.PhaseAwaitingRestartAnswer:
		hint = "Answer y to race again or n to stop"
	default:
		hint = "Type reset to begin again"
	}
	return fmt.Sprintf("%s. Commands: help, reset.", hint)
}

func weatherName(w model.Weather) string {
	return strings.ReplaceAll(string(w), "_", " ")
}

func (e *Engine) name(r *raceState, id string) string {
	if d, ok := r.drivers[id]; ok {
		return d.Name
	}
	return id
}

// landmark picks a track landmark from the race seed, lap and salt.
func (e *Engine) landmark(r *raceState, salt string) string {
	if len(e.track.Landmarks) == 0 {
		return "the final corner"
	}
	return e.track.Landmarks[e.hash(r, salt)%uint64(len(e.track.Landmarks))]
}
