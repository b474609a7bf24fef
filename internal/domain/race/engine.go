// Package race implements the per-session race state machine: track and
// driver selection, lap-by-lap resolution against the prediction oracle and
// the narration events that describe it.
//
// An Engine is not safe for concurrent use. The session that owns it feeds
// commands and lap ticks one at a time.
package race

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/internal/domain/oracle"
	"github.com/okian/pitwall/internal/domain/registry"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
	"github.com/okian/pitwall/pkg/tracing"
)

// Prediction sources used for metrics and logs.
const (
	sourceModel     = "model"
	sourceHeuristic = "heuristic"
)

// raceSeedStep spreads consecutive races of one session across the seed space.
const raceSeedStep = 0x9E3779B97F4A7C15

// Overtake is one resolved position swap.
type Overtake struct {
	Lap      int
	By       string // driver id moving up
	On       string // driver id losing the place
	Position int    // position gained, 1-based
}

// raceState exists from "start" until the race is cleared.
type raceState struct {
	id           string
	number       int
	lap          int
	grid         []registry.Driver
	drivers      map[string]registry.Driver
	standings    []string
	overtakes    []Overtake
	fallbackLaps int
	events       []model.Event
	incidents    map[string]int
	fastest      FastLap
	keyLaps      []keyLap
}

// Engine is the race state machine for one session.
type Engine struct {
	reg           *registry.Registry
	oracle        oracle.Oracle
	seed          uint64
	totalLaps     int
	maxSwaps      int
	oracleTimeout time.Duration
	raceCraft     bool
	now           func() time.Time
	newRaceID     func() string
	log           logger.Logger
	tracer        trace.Tracer

	seq       uint64
	phase     model.Phase
	track     *registry.Track
	weather   model.Weather
	selection []registry.Driver
	races     int
	race      *raceState
}

// New creates an engine in the Idle phase.
func New(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		reg:           reg,
		totalLaps:     DefaultTotalLaps,
		maxSwaps:      DefaultMaxSwapsPerLap,
		oracleTimeout: DefaultOracleTimeout,
		raceCraft:     true,
		now:           time.Now,
		newRaceID:     uuid.NewString,
		log:           logger.Get().Named("race"),
		tracer:        tracing.Tracer("race"),
		phase:         model.PhaseIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Phase returns the current phase.
func (e *Engine) Phase() model.Phase { return e.phase }

// Seq returns the sequence number of the last emitted event.
func (e *Engine) Seq() uint64 { return e.seq }

// TotalLaps returns the race distance.
func (e *Engine) TotalLaps() int { return e.totalLaps }

// Lap returns the last resolved lap, 0 before the first tick or outside a race.
func (e *Engine) Lap() int {
	if e.race == nil {
		return 0
	}
	return e.race.lap
}

// RaceID returns the id of the current race, empty outside a race.
func (e *Engine) RaceID() string {
	if e.race == nil {
		return ""
	}
	return e.race.id
}

// Standings returns driver ids in race order.
func (e *Engine) Standings() []string {
	if e.race == nil {
		return nil
	}
	return append([]string(nil), e.race.standings...)
}

// Overtakes returns every swap resolved in the current race.
func (e *Engine) Overtakes() []Overtake {
	if e.race == nil {
		return nil
	}
	return append([]Overtake(nil), e.race.overtakes...)
}

// Incidents returns the incident count per driver id in the current race.
func (e *Engine) Incidents() map[string]int {
	if e.race == nil {
		return nil
	}
	out := make(map[string]int, len(e.race.incidents))
	for id, n := range e.race.incidents {
		out[id] = n
	}
	return out
}

// FastestLap returns the quickest lap of the current race once a lap has run.
func (e *Engine) FastestLap() (FastLap, bool) {
	if e.race == nil || e.race.fastest.DriverID == "" {
		return FastLap{}, false
	}
	return e.race.fastest, true
}

// Log returns the narration emitted since the current race started.
func (e *Engine) Log() []model.Event {
	if e.race == nil {
		return nil
	}
	return append([]model.Event(nil), e.race.events...)
}

// Open emits the session banner followed by the track menu.
func (e *Engine) Open() model.Frame {
	var f model.Frame
	e.emit(&f, model.KindOutput, bannerText(), model.BoundarySessionStart)
	e.emit(&f, model.KindOutput, e.trackMenuText(), model.BoundaryTrackMenu)
	return f
}

// Handle interprets one line of free text against the current phase.
func (e *Engine) Handle(ctx context.Context, input string) (model.Frame, error) {
	input = strings.TrimSpace(input)
	fields := tokenize(input)
	if len(fields) == 0 {
		return e.reject("command", input, fmt.Errorf("%w: empty command", ErrState))
	}

	switch fields[0] {
	case "help", "?":
		return e.help(), nil
	case "reset":
		return e.Reset(), nil
	}

	switch e.phase {
	case model.PhaseIdle:
		if fields[0] == "start" {
			return e.reject("start", input, fmt.Errorf("%w: pick a track and drivers first", ErrInvalidSelection))
		}
		return e.selectTrack(input, fields)
	case model.PhaseTrackSelected:
		switch fields[0] {
		case "start":
			return e.reject("start", input, fmt.Errorf("%w: pick at least %d drivers first", ErrInvalidSelection, MinGridSize))
		case "auto":
			return e.autoGrid(input, fields[1:])
		}
		return e.selectDrivers(input, fields)
	case model.PhaseGridReady:
		if fields[0] == "start" {
			return e.start(ctx, input)
		}
		return e.reject("command", input, fmt.Errorf("%w: the grid is set, type start", ErrState))
	case model.PhaseRunning:
		if fields[0] == "start" {
			return e.reject("start", input, fmt.Errorf("%w: a race is already running", ErrState))
		}
		return e.reject("command", input, fmt.Errorf("%w: race in progress", ErrState))
	case model.PhaseAwaitingRestartAnswer:
		if yes, ok := parseAnswer(fields[0]); ok && len(fields) == 1 {
			return e.answer(input, yes)
		}
		return e.reject("answer", input, fmt.Errorf("%w: answer y or n", ErrState))
	default:
		return e.reject("command", input, fmt.Errorf("%w: session ended, type reset to race again", ErrState))
	}
}

// SelectTrack picks a track by id. An empty weather keeps the track's profile.
func (e *Engine) SelectTrack(trackID string, weather model.Weather) (model.Frame, error) {
	fields := []string{trackID}
	if weather != "" {
		fields = append(fields, string(weather))
	}
	return e.checked("select_track", strings.Join(fields, " "), model.PhaseIdle, func(input string) (model.Frame, error) {
		return e.selectTrack(input, fields)
	})
}

// SelectDrivers fixes the grid order from registry ids.
func (e *Engine) SelectDrivers(ids []string) (model.Frame, error) {
	return e.checked("select_drivers", strings.Join(ids, " "), model.PhaseTrackSelected, func(input string) (model.Frame, error) {
		return e.selectDrivers(input, ids)
	})
}

// Start begins the race on the selected grid.
func (e *Engine) Start(ctx context.Context) (model.Frame, error) {
	if e.phase == model.PhaseIdle || e.phase == model.PhaseTrackSelected {
		return e.reject("start", "start", fmt.Errorf("%w: pick a track and drivers first", ErrInvalidSelection))
	}
	return e.checked("start", "start", model.PhaseGridReady, func(input string) (model.Frame, error) {
		return e.start(ctx, input)
	})
}

// Answer responds to the restart prompt.
func (e *Engine) Answer(yes bool) (model.Frame, error) {
	input := "n"
	if yes {
		input = "y"
	}
	return e.checked("answer", input, model.PhaseAwaitingRestartAnswer, func(input string) (model.Frame, error) {
		return e.answer(input, yes)
	})
}

// Reset discards all session state and returns to Idle. It is legal in every phase.
func (e *Engine) Reset() model.Frame {
	e.clear()
	var f model.Frame
	e.emit(&f, model.KindOutput, e.trackMenuText(), model.BoundaryTrackMenu)
	return f
}

// Tick resolves the next lap. It is only valid while Running.
func (e *Engine) Tick(ctx context.Context) (model.Frame, error) {
	if e.phase != model.PhaseRunning || e.race == nil {
		return nil, &CommandError{Op: "tick", Phase: e.phase, Err: fmt.Errorf("%w: no race running", ErrState)}
	}
	r := e.race
	r.lap++

	ctx, span := e.tracer.Start(ctx, "race.lap", trace.WithAttributes(
		attribute.String("race.id", r.id),
		attribute.Int("race.lap", r.lap),
	))
	defer span.End()

	scores, source := e.predict(ctx, r)
	span.SetAttributes(attribute.String("prediction.source", source))
	if source == sourceHeuristic {
		r.fallbackLaps++
	}
	metrics.RecordLapResolved(source)

	var incidents []string
	if e.raceCraft {
		incidents = e.applyRaceCraft(r, scores)
		metrics.RecordIncidents(len(incidents))
	}
	swaps := e.resolveSwaps(r, scores)
	metrics.RecordOvertakes(len(swaps))
	e.recordLapTimes(r, incidents)
	key := e.recordKeyLap(r, scores)

	var f model.Frame
	if r.lap == 1 {
		e.emit(&f, model.KindOutput, e.startLine(r), model.BoundaryNone)
	}
	for _, id := range incidents {
		e.emit(&f, model.KindOutput, e.incidentLine(r, id), model.BoundaryNone)
	}
	for _, o := range swaps {
		e.emit(&f, model.KindOutput, e.overtakeLine(r, o), model.BoundaryNone)
	}

	if r.lap < e.totalLaps {
		e.emit(&f, model.KindOutput, e.lapSummary(r, scores, len(swaps), key), model.BoundaryNone)
		return f, nil
	}

	e.phase = model.PhaseFinished
	e.emit(&f, model.KindOutput, e.lapSummary(r, scores, len(swaps), key), model.BoundaryNone)
	e.emit(&f, model.KindOutput, e.victoryLine(r), model.BoundaryNone)
	e.phase = model.PhaseAwaitingRestartAnswer
	last := e.emit(&f, model.KindOutput, e.classification(r), model.BoundaryNone)
	last.AwaitingRestart = true
	r.events[len(r.events)-1].AwaitingRestart = true
	metrics.RecordRaceFinished()
	e.log.Info(ctx, "race finished",
		logger.String("race_id", r.id),
		logger.String("winner", r.standings[0]),
		logger.Int("overtakes", len(r.overtakes)),
		logger.Int("incidents", totalIncidents(r)),
		logger.String("fastest_lap", r.fastest.DriverID),
		logger.Duration("fastest_lap_time", r.fastest.Time),
		logger.Int("fallback_laps", r.fallbackLaps),
	)
	return f, nil
}

func (e *Engine) selectTrack(input string, fields []string) (model.Frame, error) {
	tracks := e.reg.ListTracks()
	t, ok := lookupTrack(tracks, fields[0])
	if !ok {
		return e.reject("select_track", input, fmt.Errorf("%w: unknown track %q, choose 1-%d", ErrInvalidSelection, fields[0], len(tracks)))
	}
	weather := t.Weather
	if len(fields) > 1 {
		w, ok := parseWeather(fields[1:])
		if !ok {
			return e.reject("select_track", input, fmt.Errorf("%w: unknown weather %q", ErrInvalidSelection, strings.Join(fields[1:], " ")))
		}
		weather = w
	}

	e.track = &t
	e.weather = weather
	e.phase = model.PhaseTrackSelected
	var f model.Frame
	e.emit(&f, model.KindOutput, e.driverMenuText(), model.BoundaryDriverMenu)
	return f, nil
}

func (e *Engine) selectDrivers(input string, tokens []string) (model.Frame, error) {
	all := e.reg.ListDrivers()
	seen := make(map[string]bool, len(tokens))
	grid := make([]registry.Driver, 0, len(tokens))
	for _, tok := range tokens {
		d, ok := lookupDriver(all, tok)
		if !ok {
			return e.reject("select_drivers", input, fmt.Errorf("%w: unknown driver %q", ErrInvalidSelection, tok))
		}
		if seen[d.ID] {
			return e.reject("select_drivers", input, fmt.Errorf("%w: %s selected twice", ErrInvalidSelection, d.Name))
		}
		seen[d.ID] = true
		grid = append(grid, d)
	}
	if len(grid) < MinGridSize || len(grid) > MaxGridSize {
		return e.reject("select_drivers", input, fmt.Errorf("%w: choose between %d and %d drivers, got %d", ErrInvalidSelection, MinGridSize, MaxGridSize, len(grid)))
	}
	return e.setGrid(grid), nil
}

func (e *Engine) autoGrid(input string, args []string) (model.Frame, error) {
	n := DefaultAutoGridSize
	if len(args) > 0 {
		v, ok := parseIndex(args[0])
		if !ok || len(args) > 1 {
			return e.reject("select_drivers", input, fmt.Errorf("%w: usage auto [N]", ErrInvalidSelection))
		}
		n = v
	}
	available := len(e.reg.ListDrivers())
	if n < MinGridSize || n > MaxGridSize || n > available {
		return e.reject("select_drivers", input, fmt.Errorf("%w: auto needs %d-%d drivers", ErrInvalidSelection, MinGridSize, min(MaxGridSize, available)))
	}
	return e.setGrid(e.reg.TopDrivers(n)), nil
}

func (e *Engine) setGrid(grid []registry.Driver) model.Frame {
	e.selection = grid
	e.phase = model.PhaseGridReady
	var f model.Frame
	e.emit(&f, model.KindOutput, gridText(grid), model.BoundaryNone)
	return f
}

func (e *Engine) start(ctx context.Context, input string) (model.Frame, error) {
	if e.track == nil || len(e.selection) < MinGridSize {
		return e.reject("start", input, fmt.Errorf("%w: pick a track and drivers first", ErrInvalidSelection))
	}

	grid := append([]registry.Driver(nil), e.selection...)
	r := &raceState{
		id:        e.newRaceID(),
		number:    e.races,
		grid:      grid,
		drivers:   make(map[string]registry.Driver, len(grid)),
		standings: make([]string, len(grid)),
		incidents: make(map[string]int, len(grid)),
	}
	for i, d := range grid {
		r.drivers[d.ID] = d
		r.standings[i] = d.ID
	}
	e.races++
	e.race = r
	e.phase = model.PhaseRunning

	var f model.Frame
	e.emit(&f, model.KindOutput, e.raceStartText(r), model.BoundaryRaceStart)
	e.log.Info(ctx, "race started",
		logger.String("race_id", r.id),
		logger.String("track", e.track.ID),
		logger.String("weather", string(e.weather)),
		logger.Int("drivers", len(grid)),
		logger.Int("laps", e.totalLaps),
	)
	return f, nil
}

func (e *Engine) answer(_ string, yes bool) (model.Frame, error) {
	var f model.Frame
	if yes {
		e.clear()
		e.emit(&f, model.KindOutput, e.trackMenuText(), model.BoundaryTrackMenu)
		return f, nil
	}
	e.clear()
	e.phase = model.PhaseClosed
	e.emit(&f, model.KindOutput, "Thanks for racing! Type reset whenever you want another go.", model.BoundaryNone)
	return f, nil
}

func (e *Engine) clear() {
	e.phase = model.PhaseIdle
	e.track = nil
	e.weather = ""
	e.selection = nil
	e.race = nil
}

// checked rejects typed calls made in the wrong phase before delegating.
func (e *Engine) checked(op, input string, want model.Phase, fn func(string) (model.Frame, error)) (model.Frame, error) {
	if e.phase != want {
		return e.reject(op, input, fmt.Errorf("%w: %s is not accepted while %s", ErrState, op, e.phase))
	}
	return fn(input)
}

// reject emits a non-boundary error event and leaves all state untouched.
func (e *Engine) reject(op, input string, err error) (model.Frame, error) {
	cerr := &CommandError{Op: op, Phase: e.phase, Input: input, Err: err}
	var f model.Frame
	e.emit(&f, model.KindError, rejectText(input, err), model.BoundaryNone)
	e.log.Debug(context.Background(), "command rejected",
		logger.String("op", op),
		logger.String("phase", string(e.phase)),
		logger.String("input", input),
		logger.Error(err),
	)
	return f, cerr
}

func (e *Engine) help() model.Frame {
	var f model.Frame
	e.emit(&f, model.KindOutput, helpText(e.phase), model.BoundaryNone)
	return f
}

// emit appends an event carrying the current phase and returns a pointer to it.
func (e *Engine) emit(f *model.Frame, kind model.EventKind, text string, boundary model.BoundaryReason) *model.Event {
	e.seq++
	ev := model.Event{
		Seq:      e.seq,
		Kind:     kind,
		Text:     text,
		Boundary: boundary,
		Phase:    e.phase,
		TS:       e.now(),
	}
	if e.race != nil {
		ev.RaceID = e.race.id
		e.race.events = append(e.race.events, ev)
	}
	*f = append(*f, ev)
	metrics.RecordNarrationEvents(1)
	return &(*f)[len(*f)-1]
}

func (e *Engine) raceSeed(r *raceState) uint64 {
	return e.seed + uint64(r.number)*raceSeedStep
}

func (e *Engine) raceContext(r *raceState) oracle.RaceContext {
	return oracle.RaceContext{
		TrackID:          e.track.ID,
		Difficulty:       e.track.Difficulty,
		OvertakingFactor: e.track.OvertakingFactor,
		Weather:          e.weather,
		Lap:              r.lap,
		TotalLaps:        e.totalLaps,
	}
}

func (e *Engine) participants(r *raceState) []oracle.Participant {
	parts := make([]oracle.Participant, len(r.standings))
	for i, id := range r.standings {
		d := r.drivers[id]
		parts[i] = oracle.Participant{
			DriverID:      id,
			Skill:         d.Skill,
			EraAdjustment: d.Era.Adjustment(),
			Standing:      i,
		}
	}
	return parts
}

type predictResult struct {
	pred oracle.Prediction
	err  error
}

// predict asks the oracle with a bounded wait and falls back to the seeded
// heuristic on any failure. It returns scores for every driver in the race.
func (e *Engine) predict(ctx context.Context, r *raceState) (map[string]float64, string) {
	parts := e.participants(r)
	rc := e.raceContext(r)
	fallback := func(reason string, err error) (map[string]float64, string) {
		metrics.RecordOracleFallback(reason)
		if err != nil {
			e.log.Warn(ctx, "oracle unavailable, using heuristic",
				logger.String("race_id", r.id),
				logger.Int("lap", r.lap),
				logger.String("reason", reason),
				logger.Error(err),
			)
		}
		p, _ := oracle.NewHeuristic(e.raceSeed(r)).Predict(ctx, parts, rc)
		return p.Scores, sourceHeuristic
	}

	if e.oracle == nil {
		return fallback("disabled", nil)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.oracleTimeout)
	defer cancel()

	started := time.Now()
	done := make(chan predictResult, 1)
	go func() {
		p, err := e.oracle.Predict(callCtx, parts, rc)
		done <- predictResult{pred: p, err: err}
	}()

	var res predictResult
	select {
	case res = <-done:
	case <-callCtx.Done():
		res.err = fmt.Errorf("%w: %w", oracle.ErrUnavailable, callCtx.Err())
	}
	if res.err == nil {
		res.err = res.pred.Validate(parts)
	}
	elapsed := float64(time.Since(started).Microseconds()) / 1000
	if res.err != nil {
		reason := fallbackReason(res.err)
		metrics.RecordOracleLatency(reason, elapsed)
		return fallback(reason, res.err)
	}
	metrics.RecordOracleLatency("ok", elapsed)

	scores := make(map[string]float64, len(parts))
	for _, p := range parts {
		scores[p.DriverID], _ = res.pred.ScoreOf(p.DriverID)
	}
	return scores, sourceModel
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, oracle.ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

// resolveSwaps walks the field from the front once, letting each challenger
// pass the car directly ahead when its score is strictly higher. Equal
// scores keep the incumbent. At most maxSwaps passes happen per lap.
func (e *Engine) resolveSwaps(r *raceState, scores map[string]float64) []Overtake {
	var made []Overtake
	for i := 1; i < len(r.standings) && len(made) < e.maxSwaps; i++ {
		ahead, behind := r.standings[i-1], r.standings[i]
		if !beats(scores, behind, i, ahead, i-1) {
			continue
		}
		r.standings[i-1], r.standings[i] = behind, ahead
		o := Overtake{Lap: r.lap, By: behind, On: ahead, Position: i}
		made = append(made, o)
		r.overtakes = append(r.overtakes, o)
	}
	return made
}

// beats reports whether x should run ahead of y: higher score first, then the
// better current standing, then the lower driver id.
func beats(scores map[string]float64, x string, xStanding int, y string, yStanding int) bool {
	sx, sy := scores[x], scores[y]
	if sx != sy {
		return sx > sy
	}
	if xStanding != yStanding {
		return xStanding < yStanding
	}
	return x < y
}
