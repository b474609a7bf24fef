// Package service wires the registry, the prediction pool and the per
// connection sessions together.
package service

import (
	"context"
	"math/rand/v2"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/pitwall/internal/adapters/mq/worker"
	"github.com/okian/pitwall/internal/adapters/oracle/httporacle"
	"github.com/okian/pitwall/internal/domain/delivery"
	"github.com/okian/pitwall/internal/domain/oracle"
	"github.com/okian/pitwall/internal/domain/race"
	"github.com/okian/pitwall/internal/domain/registry"
	"github.com/okian/pitwall/internal/domain/types"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
)

// Service owns the shared, read-only parts of the system and the set of live sessions.
type Service struct {
	mu sync.RWMutex

	// Core components
	registry *registry.Registry
	backend  oracle.Oracle
	pool     *worker.Pool
	sessions map[string]*Session

	// Configuration
	oracleURL       string
	oracleDisabled  bool
	oracleTimeout   time.Duration
	oracleWorkers   int
	oracleQueueSize int
	modelMinLatency time.Duration
	modelMaxLatency time.Duration
	seed            uint64
	totalLaps       int
	maxSwaps        int
	raceCraft       bool
	lapInterval     time.Duration
	dedupCapacity   int
	paceInterval    time.Duration
	clock           delivery.Clock
	mailboxSize     int

	// State
	started bool
	opened  atomic.Int64
	oracle  string

	// Logging
	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		sessions:        make(map[string]*Session),
		oracleTimeout:   race.DefaultOracleTimeout,
		oracleWorkers:   runtime.NumCPU() * 2,
		oracleQueueSize: 256,
		modelMinLatency: 20 * time.Millisecond,
		modelMaxLatency: 80 * time.Millisecond,
		totalLaps:       race.DefaultTotalLaps,
		maxSwaps:        race.DefaultMaxSwapsPerLap,
		raceCraft:       true,
		lapInterval:     1500 * time.Millisecond,
		dedupCapacity:   100,
		paceInterval:    delivery.DefaultPaceInterval,
		clock:           delivery.SystemClock{},
		mailboxSize:     64,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads the registry if needed and starts the prediction pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	if s.registry == nil {
		reg, err := registry.Default()
		if err != nil {
			return err
		}
		s.registry = reg
	}

	backend, name, err := s.selectBackend()
	if err != nil {
		return err
	}
	s.oracle = name
	if backend != nil {
		s.pool = worker.NewPool(backend,
			worker.WithWorkers(s.oracleWorkers),
			worker.WithQueueSize(s.oracleQueueSize),
		)
		s.pool.Start(ctx)
	}

	s.started = true
	s.logger.Info(ctx, "race service started",
		logger.String("oracle", s.oracle),
		logger.Int("tracks", len(s.registry.ListTracks())),
		logger.Int("drivers", len(s.registry.ListDrivers())),
		logger.Int("total_laps", s.totalLaps),
		logger.Duration("lap_interval", s.lapInterval),
	)
	return nil
}

func (s *Service) selectBackend() (oracle.Oracle, string, error) {
	switch {
	case s.oracleDisabled:
		return nil, "heuristic", nil
	case s.backend != nil:
		return s.backend, "custom", nil
	case s.oracleURL != "":
		c, err := httporacle.New(s.oracleURL)
		if err != nil {
			return nil, "", err
		}
		return c, "remote", nil
	default:
		return oracle.NewSimulatedModel(oracle.WithLatencyRange(s.modelMinLatency, s.modelMaxLatency)), "model", nil
	}
}

// Stop closes every session and shuts the prediction pool down.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	pool := s.pool
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping race service...", logger.Int("sessions", len(sessions)))
	for _, sess := range sessions {
		sess.Close()
	}
	if pool != nil {
		if err := pool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "prediction pool shutdown", logger.Error(err))
		}
	}
	s.logger.Info(ctx, "race service stopped")
}

// Open creates a fresh Idle session for one connection and starts it. The
// session ends when ctx is canceled or Close is called.
func (s *Service) Open(ctx context.Context, sender Sender) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil, ErrNotStarted
	}

	id := uuid.NewString()
	log := s.logger.Named("session")
	seed := s.seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	engineOpts := []race.Option{
		race.WithSeed(seed),
		race.WithTotalLaps(s.totalLaps),
		race.WithMaxSwapsPerLap(s.maxSwaps),
		race.WithRaceCraft(s.raceCraft),
		race.WithOracleTimeout(s.oracleTimeout),
		race.WithLogger(log),
	}
	if s.pool != nil {
		engineOpts = append(engineOpts, race.WithOracle(s.pool))
	}
	outbox := delivery.NewOutbox(
		delivery.WithDedupCapacity(s.dedupCapacity),
		delivery.WithPaceInterval(s.paceInterval),
		delivery.WithClock(s.clock),
	)

	sess := newSession(id, race.New(s.registry, engineOpts...), outbox, sender, s.mailboxSize, s.lapInterval, log)
	sess.onClose = s.forget
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess.cancel = cancel
	s.sessions[id] = sess
	s.opened.Add(1)
	metrics.SessionOpened()

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sessCtx.Done():
		}
	}()
	go sess.run(sessCtx)

	log.Info(ctx, "session opened", logger.String("session_id", id), logger.Uint64("seed", seed))
	return sess, nil
}

func (s *Service) forget(sess *Session) {
	s.mu.Lock()
	_, ok := s.sessions[sess.id]
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	if ok {
		metrics.SessionClosed()
		s.logger.Info(context.Background(), "session closed", logger.String("session_id", sess.id))
	}
}

// Session returns a live session by id.
func (s *Service) Session(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Registry returns the loaded registry, nil before Start when none was given.
func (s *Service) Registry() *registry.Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry
}

// Stats returns a snapshot for monitoring.
func (s *Service) Stats() types.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := types.Stats{
		Started:        s.started,
		ActiveSessions: len(s.sessions),
		SessionsOpened: s.opened.Load(),
		Oracle:         s.oracle,
		TotalLaps:      s.totalLaps,
		DedupCapacity:  s.dedupCapacity,
		PaceIntervalMS: s.paceInterval.Milliseconds(),
		LapIntervalMS:  s.lapInterval.Milliseconds(),
	}
	if s.registry != nil {
		st.Tracks = len(s.registry.ListTracks())
		st.Drivers = len(s.registry.ListDrivers())
	}
	if s.pool != nil {
		st.PredictionWorkers = s.pool.Size()
		st.PredictionsPending = s.pool.Pending()
		st.PredictionsActive = s.pool.Active()
	}
	return st
}
