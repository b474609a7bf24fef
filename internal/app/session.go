package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/pitwall/internal/adapters/mq/queue"
	"github.com/okian/pitwall/internal/domain/delivery"
	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/internal/domain/race"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
)

// Sender writes envelopes to one client connection.
type Sender interface {
	Send(ctx context.Context, env delivery.Envelope) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, env delivery.Envelope) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, env delivery.Envelope) error { return f(ctx, env) }

// State is a point-in-time copy of a session's race state.
type State struct {
	Phase     model.Phase
	RaceID    string
	Lap       int
	TotalLaps int
	Seq       uint64
	Standings []string
}

// message is one unit of work for the session actor: either free text or a
// typed operation. done, when set, is buffered and receives the outcome.
type message struct {
	name  string
	input string
	op    func(ctx context.Context) (model.Frame, error)
	done  chan error
}

// Session owns one connection's race engine and delivery state. All engine
// access happens on the session goroutine, in arrival order.
type Session struct {
	id          string
	engine      *race.Engine
	outbox      *delivery.Outbox
	sender      Sender
	mailbox     *queue.InMemoryQueue[message]
	lapInterval time.Duration

	// lap timer, touched only by the session goroutine
	ticks chan string
	timer *time.Timer
	armed bool

	stateMu sync.RWMutex
	state   State

	// depth counts queued messages reported to the mailbox gauge; sealed is
	// set once the session stops taking messages.
	depthMu sync.Mutex
	depth   int
	sealed  bool

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	onClose   func(*Session)

	logger logger.Logger
}

func newSession(id string, engine *race.Engine, outbox *delivery.Outbox, sender Sender, mailboxSize int, lapInterval time.Duration, log logger.Logger) *Session {
	return &Session{
		id:          id,
		engine:      engine,
		outbox:      outbox,
		sender:      sender,
		mailbox:     queue.NewInMemoryQueue[message](queue.WithCapacity(mailboxSize), queue.WithoutMetrics()),
		lapInterval: lapInterval,
		ticks:       make(chan string, 1),
		done:        make(chan struct{}),
		logger:      log,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Done is closed once the session goroutine has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the state after the last processed command or lap.
func (s *Session) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	st := s.state
	st.Standings = append([]string(nil), st.Standings...)
	return st
}

// Submit queues one line of client input without waiting for it to run.
func (s *Session) Submit(ctx context.Context, input string) error {
	return s.enqueue(ctx, message{input: input})
}

// SelectTrack picks a track by id; an empty weather keeps the track's profile.
func (s *Session) SelectTrack(ctx context.Context, trackID string, weather model.Weather) error {
	return s.call(ctx, "select_track", func(context.Context) (model.Frame, error) {
		return s.engine.SelectTrack(trackID, weather)
	})
}

// SelectDrivers fixes the grid.
func (s *Session) SelectDrivers(ctx context.Context, ids []string) error {
	ids = append([]string(nil), ids...)
	return s.call(ctx, "select_drivers", func(context.Context) (model.Frame, error) {
		return s.engine.SelectDrivers(ids)
	})
}

// Start begins the race.
func (s *Session) Start(ctx context.Context) error {
	return s.call(ctx, "start", s.engine.Start)
}

// Answer responds to the restart prompt.
func (s *Session) Answer(ctx context.Context, yes bool) error {
	return s.call(ctx, "answer", func(context.Context) (model.Frame, error) {
		return s.engine.Answer(yes)
	})
}

// Reset discards the race and returns to Idle. It is legal in every phase.
func (s *Session) Reset(ctx context.Context) error {
	return s.call(ctx, "reset", func(context.Context) (model.Frame, error) {
		return s.engine.Reset(), nil
	})
}

// Close stops the session and its lap timer and waits for the goroutine to exit.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
	<-s.done
}

func (s *Session) call(ctx context.Context, name string, op func(context.Context) (model.Frame, error)) error {
	msg := message{name: name, op: op, done: make(chan error, 1)}
	if err := s.enqueue(ctx, msg); err != nil {
		return err
	}
	select {
	case err := <-msg.done:
		return err
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) enqueue(ctx context.Context, msg message) error {
	s.depthMu.Lock()
	defer s.depthMu.Unlock()
	if s.sealed {
		return ErrSessionClosed
	}
	if !s.mailbox.Enqueue(ctx, msg) {
		switch {
		case s.mailbox.IsClosed():
			return ErrSessionClosed
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return ErrMailboxFull
		}
	}
	s.depth++
	metrics.AddMailboxDepth(1)
	return nil
}

// dequeued accounts for one message taken off the mailbox.
func (s *Session) dequeued() {
	s.depthMu.Lock()
	defer s.depthMu.Unlock()
	if s.depth > 0 {
		s.depth--
		metrics.AddMailboxDepth(-1)
	}
}

// seal refuses further messages and drops whatever is still queued from the gauge.
func (s *Session) seal() {
	s.depthMu.Lock()
	defer s.depthMu.Unlock()
	s.sealed = true
	_ = s.mailbox.Close()
	metrics.AddMailboxDepth(-s.depth)
	s.depth = 0
}

// Pending is the number of messages waiting in the mailbox.
func (s *Session) Pending() int {
	s.depthMu.Lock()
	defer s.depthMu.Unlock()
	return s.depth
}

// run is the session goroutine. It sends the opening banner, then serves
// commands and lap ticks until ctx ends.
func (s *Session) run(ctx context.Context) {
	defer func() {
		s.stopTimer()
		s.seal()
		close(s.done)
		if s.onClose != nil {
			s.onClose(s)
		}
	}()

	s.deliver(ctx, s.engine.Open())
	s.snapshot()

	inbox := s.mailbox.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-inbox:
			if !ok {
				return
			}
			s.dequeued()
			s.handle(ctx, msg)
		case raceID := <-s.ticks:
			s.armed = false
			s.tick(ctx, raceID)
		}
		s.snapshot()
		s.schedule()
	}
}

func (s *Session) handle(ctx context.Context, msg message) {
	name := msg.name
	if name == "" {
		name = commandName(s.engine.Phase(), msg.input)
	}

	var (
		f   model.Frame
		err error
	)
	if msg.op != nil {
		f, err = msg.op(ctx)
	} else {
		f, err = s.engine.Handle(ctx, msg.input)
	}
	metrics.RecordCommand(name, race.Result(err))
	if err != nil {
		s.logger.Debug(ctx, "command rejected",
			logger.String("session_id", s.id),
			logger.String("command", name),
			logger.Error(err),
		)
	}
	if s.engine.Phase() != model.PhaseRunning {
		s.stopTimer()
	}
	s.deliver(ctx, f)
	if msg.done != nil {
		msg.done <- err
	}
}

func (s *Session) tick(ctx context.Context, raceID string) {
	// Ticks from a race that was reset or replaced are ignored.
	if ctx.Err() != nil || s.engine.Phase() != model.PhaseRunning || s.engine.RaceID() != raceID {
		return
	}
	f, err := s.engine.Tick(ctx)
	if err != nil {
		s.logger.Debug(ctx, "lap tick rejected", logger.String("session_id", s.id), logger.Error(err))
		return
	}
	s.deliver(ctx, f)
}

// schedule arms the lap timer while a race is running.
func (s *Session) schedule() {
	if s.armed || s.engine.Phase() != model.PhaseRunning {
		return
	}
	raceID := s.engine.RaceID()
	s.armed = true
	s.timer = time.AfterFunc(s.lapInterval, func() {
		select {
		case s.ticks <- raceID:
		default:
		}
	})
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.armed = false
	select {
	case <-s.ticks:
	default:
	}
}

func (s *Session) deliver(ctx context.Context, f model.Frame) {
	if len(f) == 0 {
		return
	}
	metrics.RecordNarrationEvents(len(f))
	envs, outcome := s.outbox.Admit(ctx, f)
	metrics.RecordPayload(string(outcome))
	for i, env := range envs {
		if env.Prompt {
			metrics.RecordRestartPrompt()
		}
		if err := s.sender.Send(ctx, env); err != nil {
			s.logger.Info(ctx, "send failed",
				logger.String("session_id", s.id),
				logger.Error(err),
			)
			for _, lost := range envs[i:] {
				s.outbox.Forget(ctx, lost)
			}
			return
		}
	}
}

func (s *Session) snapshot() {
	st := State{
		Phase:     s.engine.Phase(),
		RaceID:    s.engine.RaceID(),
		Lap:       s.engine.Lap(),
		TotalLaps: s.engine.TotalLaps(),
		Seq:       s.engine.Seq(),
		Standings: s.engine.Standings(),
	}
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

// commandName buckets free text into a bounded set of metric labels.
func commandName(phase model.Phase, input string) string {
	fields := strings.FieldsFunc(strings.ToLower(input), func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})
	if len(fields) == 0 {
		return "empty"
	}
	switch fields[0] {
	case "help", "?":
		return "help"
	case "reset":
		return "reset"
	case "start":
		return "start"
	case "auto":
		return "auto"
	}
	switch phase {
	case model.PhaseIdle:
		return "select_track"
	case model.PhaseTrackSelected:
		return "select_drivers"
	case model.PhaseAwaitingRestartAnswer:
		return "answer"
	default:
		return "other"
	}
}

func (s *Session) String() string {
	return fmt.Sprintf("session(%s)", s.id)
}
