package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/pitwall/internal/config"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.DedupCapacity, convey.ShouldEqual, 100)
			convey.So(cfg.PaceInterval(), convey.ShouldEqual, 50*time.Millisecond)
			convey.So(cfg.LapInterval(), convey.ShouldEqual, 1500*time.Millisecond)
			convey.So(cfg.OracleTimeout(), convey.ShouldEqual, 250*time.Millisecond)
			convey.So(cfg.TotalLaps, convey.ShouldEqual, 10)
			convey.So(cfg.MaxSwapsPerLap, convey.ShouldEqual, 3)
			convey.So(cfg.DisableRaceCraft, convey.ShouldBeFalse)
			convey.So(cfg.Seed, convey.ShouldEqual, 0)
			convey.So(cfg.OracleURL, convey.ShouldBeEmpty)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the model latency bounds are ordered", func() {
			lo, hi := cfg.ModelLatency()
			convey.So(lo, convey.ShouldBeLessThanOrEqualTo, hi)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a valid config", t, func() {
		cfg := config.New()

		cases := []struct {
			name   string
			mutate func()
		}{
			{"empty addr", func() { cfg.Addr = "" }},
			{"tiny dedup window", func() { cfg.DedupCapacity = 1 }},
			{"zero laps", func() { cfg.TotalLaps = 0 }},
			{"negative pacing", func() { cfg.PaceIntervalMS = -1 }},
			{"zero oracle timeout", func() { cfg.OracleTimeoutMS = 0 }},
			{"negative lap delay", func() { cfg.LapIntervalMS = -5 }},
			{"inverted model range", func() { cfg.ModelLatencyMinMS, cfg.ModelLatencyMaxMS = 90, 10 }},
		}
		for _, tc := range cases {
			convey.Convey("When it has "+tc.name, func() {
				tc.mutate()

				convey.Convey("Then validation fails with ErrInvalidConfig", func() {
					err := cfg.Validate()
					convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				})
			})
		}

		convey.Convey("When pacing is disabled", func() {
			cfg.PaceIntervalMS = 0

			convey.Convey("Then it is still valid", func() {
				convey.So(cfg.Validate(), convey.ShouldBeNil)
			})
		})
	})
}
