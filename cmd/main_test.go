package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/smartystreets/goconvey/convey"

	app "github.com/okian/pitwall/internal/app"
	"github.com/okian/pitwall/internal/config"
	"github.com/okian/pitwall/internal/domain/registry"
	"github.com/okian/pitwall/pkg/logger"
)

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.So(logger.Init(), convey.ShouldBeNil)

		convey.Convey("When configuration comes from the environment", func() {
			_ = os.Setenv("PITWALL_ADDR", ":8080")
			_ = os.Setenv("PITWALL_TOTAL_LAPS", "5")
			_ = os.Setenv("PITWALL_ORACLE_WORKERS", "4")
			defer func() {
				_ = os.Unsetenv("PITWALL_ADDR")
				_ = os.Unsetenv("PITWALL_TOTAL_LAPS")
				_ = os.Unsetenv("PITWALL_ORACLE_WORKERS")
			}()

			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.TotalLaps, convey.ShouldEqual, 5)

			convey.Convey("Then the service picks the settings up", func() {
				reg, err := registry.Default()
				convey.So(err, convey.ShouldBeNil)

				svc := app.New(serviceOptions(cfg, reg, logger.Get())...)
				convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
				defer svc.Stop(context.Background())

				st := svc.Stats()
				convey.So(st.TotalLaps, convey.ShouldEqual, 5)
				convey.So(st.PredictionWorkers, convey.ShouldEqual, 4)
				convey.So(st.Oracle, convey.ShouldEqual, "model")
			})
		})

		convey.Convey("When an oracle URL is configured", func() {
			cfg := config.New()
			cfg.OracleURL = "http://127.0.0.1:1/predict"
			reg, _ := registry.Default()

			svc := app.New(serviceOptions(cfg, reg, logger.Get())...)
			convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
			defer svc.Stop(context.Background())

			convey.Convey("Then the remote oracle is selected", func() {
				convey.So(svc.Stats().Oracle, convey.ShouldEqual, "remote")
			})
		})
	})
}

func TestMux(t *testing.T) {
	convey.Convey("Given the wired mux", t, func() {
		convey.So(logger.Init(), convey.ShouldBeNil)
		cfg := config.New()
		svc := app.New(app.WithoutOracle(), app.WithLogger(logger.Get()))
		convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
		defer svc.Stop(context.Background())

		srv := httptest.NewServer(newMux(context.Background(), cfg, svc))
		defer srv.Close()

		convey.Convey("Then the REST and docs routes answer", func() {
			for _, path := range []string{"/healthz", "/stats", "/tracks", "/drivers", "/openapi.yaml", "/api-docs"} {
				resp, err := http.Get(srv.URL + path)
				convey.So(err, convey.ShouldBeNil)
				_ = resp.Body.Close()
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			}
		})

		convey.Convey("Then /ws upgrades and opens a session", func() {
			url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
			c, _, err := websocket.DefaultDialer.Dial(url, nil)
			convey.So(err, convey.ShouldBeNil)
			defer func() { _ = c.Close() }()

			_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
			_, data, err := c.ReadMessage()
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(data), convey.ShouldContainSubstring, "session_start")
			convey.So(svc.Stats().SessionsOpened, convey.ShouldEqual, int64(1))
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the background metrics updaters", t, func() {
		svc := app.New()

		convey.Convey("Then they stop with their context", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
			convey.So(func() { startServiceMetricsUpdater(ctx, svc) }, convey.ShouldNotPanic)
		})

		convey.Convey("Then single updates do not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)
		})
	})
}
