package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/pitwall/internal/app"
	"github.com/okian/pitwall/internal/domain/delivery"
	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/internal/domain/oracle"
	"github.com/okian/pitwall/internal/domain/race"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

// recorder is a Sender that keeps every envelope it was handed.
type recorder struct {
	mu   sync.Mutex
	envs []delivery.Envelope
}

func (r *recorder) Send(_ context.Context, env delivery.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
	return nil
}

func (r *recorder) all() []delivery.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery.Envelope(nil), r.envs...)
}

func (r *recorder) count(match func(delivery.Envelope) bool) int {
	n := 0
	for _, env := range r.all() {
		if match(env) {
			n++
		}
	}
	return n
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

func isPrompt(env delivery.Envelope) bool { return env.Prompt }

func newService(opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithoutOracle(),
		service.WithSeed(7),
		service.WithTotalLaps(4),
		service.WithLapInterval(time.Millisecond),
		service.WithPaceInterval(0),
	}
	return service.New(append(base, opts...)...)
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := newService()
		ctx := context.Background()

		Convey("When opening a session before Start", func() {
			_, err := svc.Open(ctx, &recorder{})

			Convey("Then it is refused", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})
		})

		Convey("When starting the service", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop(ctx)

			Convey("Then stats reflect the loaded registry", func() {
				st := svc.Stats()
				So(st.Started, ShouldBeTrue)
				So(st.Tracks, ShouldEqual, 10)
				So(st.Drivers, ShouldEqual, 22)
				So(st.Oracle, ShouldEqual, "heuristic")
				So(st.PredictionWorkers, ShouldEqual, 0)
			})
		})

		Convey("When stopping a started service with open sessions", func() {
			So(svc.Start(ctx), ShouldBeNil)
			sess, err := svc.Open(ctx, &recorder{})
			So(err, ShouldBeNil)

			svc.Stop(ctx)

			Convey("Then every session is closed", func() {
				<-sess.Done()
				st := svc.Stats()
				So(st.Started, ShouldBeFalse)
				So(st.ActiveSessions, ShouldEqual, 0)
				So(st.SessionsOpened, ShouldEqual, 1)
				So(errors.Is(sess.Submit(ctx, "1"), service.ErrSessionClosed), ShouldBeTrue)
			})
		})
	})
}

func TestSession_TextCommands(t *testing.T) {
	Convey("Given an open session", t, func() {
		ctx := context.Background()
		svc := newService()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		rec := &recorder{}
		sess, err := svc.Open(ctx, rec)
		So(err, ShouldBeNil)

		Convey("Then the opening banner is a boundary payload", func() {
			So(eventually(func() bool { return len(rec.all()) > 0 }), ShouldBeTrue)
			first := rec.all()[0]
			So(first.Boundary, ShouldEqual, model.BoundarySessionStart)
			So(first.Kind, ShouldEqual, delivery.KindOutput)
		})

		Convey("When a race is driven to the end", func() {
			So(sess.Submit(ctx, "1"), ShouldBeNil)
			So(sess.Submit(ctx, "auto 4"), ShouldBeNil)
			So(sess.Submit(ctx, "start"), ShouldBeNil)

			So(eventually(func() bool { return rec.count(isPrompt) > 0 }), ShouldBeTrue)

			Convey("Then exactly one restart prompt is sent", func() {
				time.Sleep(20 * time.Millisecond)
				So(rec.count(isPrompt), ShouldEqual, 1)
				st := sess.State()
				So(st.Phase, ShouldEqual, model.PhaseAwaitingRestartAnswer)
				So(st.Lap, ShouldEqual, 4)
				So(st.Standings, ShouldHaveLength, 4)
			})

			Convey("Then sequence numbers only grow", func() {
				var last uint64
				for _, env := range rec.all() {
					if env.Seq == 0 {
						continue
					}
					So(env.Seq, ShouldBeGreaterThan, last)
					last = env.Seq
				}
			})

			Convey("And the answer is yes", func() {
				So(sess.Submit(ctx, "y"), ShouldBeNil)
				So(eventually(func() bool { return sess.State().Phase == model.PhaseIdle }), ShouldBeTrue)

				Convey("Then start is rejected until track and drivers are chosen again", func() {
					before := rec.count(func(e delivery.Envelope) bool { return e.Kind == delivery.KindError })
					So(sess.Submit(ctx, "start"), ShouldBeNil)
					So(eventually(func() bool {
						return rec.count(func(e delivery.Envelope) bool { return e.Kind == delivery.KindError }) > before
					}), ShouldBeTrue)
					So(sess.State().Phase, ShouldEqual, model.PhaseIdle)
					So(sess.State().Standings, ShouldBeEmpty)
				})
			})
		})

		Convey("When the client disconnects", func() {
			sess.Close()

			Convey("Then the session is gone", func() {
				_, ok := svc.Session(sess.ID())
				So(ok, ShouldBeFalse)
				So(errors.Is(sess.Submit(ctx, "1"), service.ErrSessionClosed), ShouldBeTrue)
			})
		})
	})
}

func TestSession_TypedAPI(t *testing.T) {
	Convey("Given a session with a slow lap timer", t, func() {
		ctx := context.Background()
		svc := newService(service.WithLapInterval(time.Hour))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		rec := &recorder{}
		sess, err := svc.Open(ctx, rec)
		So(err, ShouldBeNil)

		Convey("When start is called before any selection", func() {
			err := sess.Start(ctx)

			Convey("Then it is an invalid selection", func() {
				So(errors.Is(err, race.ErrInvalidSelection), ShouldBeTrue)
				So(errors.Is(err, race.ErrState), ShouldBeTrue)
				So(sess.State().Phase, ShouldEqual, model.PhaseIdle)
			})
		})

		Convey("When a race is started", func() {
			So(sess.SelectTrack(ctx, "monza", model.WeatherHeavyRain), ShouldBeNil)
			So(sess.SelectDrivers(ctx, []string{"senna", "prost", "hamilton"}), ShouldBeNil)
			So(sess.Start(ctx), ShouldBeNil)

			Convey("Then a second start is a state error", func() {
				err := sess.Start(ctx)
				So(errors.Is(err, race.ErrState), ShouldBeTrue)
				So(sess.State().Phase, ShouldEqual, model.PhaseRunning)
				So(sess.State().Standings, ShouldResemble, []string{"senna", "prost", "hamilton"})
			})

			Convey("Then reset returns to Idle and no lap is resolved", func() {
				So(sess.Reset(ctx), ShouldBeNil)
				st := sess.State()
				So(st.Phase, ShouldEqual, model.PhaseIdle)
				So(st.Lap, ShouldEqual, 0)
				So(st.RaceID, ShouldBeEmpty)
			})

			Convey("Then answering is rejected while running", func() {
				So(errors.Is(sess.Answer(ctx, true), race.ErrState), ShouldBeTrue)
			})
		})

		Convey("When an unknown driver is selected", func() {
			So(sess.SelectTrack(ctx, "monaco", ""), ShouldBeNil)
			err := sess.SelectDrivers(ctx, []string{"senna", "nobody"})

			Convey("Then the selection is not applied", func() {
				So(errors.Is(err, race.ErrInvalidSelection), ShouldBeTrue)
				So(sess.State().Phase, ShouldEqual, model.PhaseTrackSelected)
			})
		})
	})
}

// slowOracle never answers within the engine's timeout.
type slowOracle struct{}

func (slowOracle) Predict(ctx context.Context, _ []oracle.Participant, _ oracle.RaceContext) (oracle.Prediction, error) {
	<-ctx.Done()
	return oracle.Prediction{}, ctx.Err()
}

func TestSession_OracleFallback(t *testing.T) {
	Convey("Given a service whose oracle always times out", t, func() {
		ctx := context.Background()
		svc := service.New(
			service.WithOracle(slowOracle{}),
			service.WithOracleTimeout(5*time.Millisecond),
			service.WithOracleWorkers(2),
			service.WithSeed(3),
			service.WithTotalLaps(3),
			service.WithLapInterval(time.Millisecond),
			service.WithPaceInterval(0),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		rec := &recorder{}
		sess, err := svc.Open(ctx, rec)
		So(err, ShouldBeNil)

		Convey("When a race runs", func() {
			So(sess.Submit(ctx, "monaco"), ShouldBeNil)
			So(sess.Submit(ctx, "senna hamilton"), ShouldBeNil)
			So(sess.Submit(ctx, "start"), ShouldBeNil)

			Convey("Then it still finishes on the heuristic", func() {
				So(eventually(func() bool { return rec.count(isPrompt) == 1 }), ShouldBeTrue)
				So(svc.Stats().Oracle, ShouldEqual, "custom")
				So(svc.Stats().PredictionWorkers, ShouldEqual, 2)

				var classification string
				for _, env := range rec.all() {
					if strings.Contains(env.Data, "Final classification") {
						classification = env.Data
					}
				}
				So(classification, ShouldContainSubstring, "3/3")
			})
		})
	})
}

// blockingSender holds every send until its context ends.
type blockingSender struct{}

func (blockingSender) Send(ctx context.Context, _ delivery.Envelope) error {
	<-ctx.Done()
	return ctx.Err()
}

func mailboxGauge() float64 {
	families, err := metrics.GetRegistry().Gather()
	if err != nil {
		return -1
	}
	for _, f := range families {
		if f.GetName() == "pitwall_race_session_mailbox_depth" {
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	return 0
}

func TestSession_MailboxDepth(t *testing.T) {
	Convey("Given a session stuck sending its banner", t, func() {
		ctx := context.Background()
		svc := newService()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		before := mailboxGauge()
		sess, err := svc.Open(ctx, blockingSender{})
		So(err, ShouldBeNil)

		Convey("When commands pile up and the session closes", func() {
			for _, cmd := range []string{"1", "auto", "start"} {
				So(sess.Submit(ctx, cmd), ShouldBeNil)
			}
			So(sess.Pending(), ShouldEqual, 3)
			So(mailboxGauge(), ShouldEqual, before+3)

			sess.Close()

			Convey("Then the queued messages leave the gauge", func() {
				So(sess.Pending(), ShouldEqual, 0)
				So(mailboxGauge(), ShouldEqual, before)
				So(errors.Is(sess.Submit(ctx, "help"), service.ErrSessionClosed), ShouldBeTrue)
			})
		})
	})
}
