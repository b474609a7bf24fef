package ws_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/pitwall/internal/adapters/ws"
	service "github.com/okian/pitwall/internal/app"
	"github.com/okian/pitwall/internal/domain/delivery"
	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/pkg/logger"
)

func startServer(t *testing.T) (*service.Service, string) {
	t.Helper()
	require.NoError(t, logger.Init())

	svc := service.New(
		service.WithoutOracle(),
		service.WithSeed(11),
		service.WithTotalLaps(3),
		service.WithLapInterval(time.Millisecond),
		service.WithPaceInterval(0),
	)
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { svc.Stop(context.Background()) })

	srv := httptest.NewServer(ws.NewHandler(svc, ws.WithWriteTimeout(time.Second)))
	t.Cleanup(srv.Close)
	return svc, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func read(t *testing.T, c *websocket.Conn) delivery.Envelope {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	env, err := delivery.Decode(data)
	require.NoError(t, err)
	return env
}

func send(t *testing.T, c *websocket.Conn, text string) {
	t.Helper()
	data, err := delivery.Input(text).Encode()
	require.NoError(t, err)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, data))
}

func TestHandler_RaceOverWebsocket(t *testing.T) {
	_, url := startServer(t)
	c := dial(t, url)

	banner := read(t, c)
	assert.Equal(t, model.BoundarySessionStart, banner.Boundary)
	assert.Contains(t, banner.Data, "Circuit de Monaco")

	send(t, c, "1")
	menu := read(t, c)
	assert.Equal(t, model.BoundaryDriverMenu, menu.Boundary)
	assert.Equal(t, model.PhaseTrackSelected, menu.Phase)

	// A message that is not an envelope is taken as plain command text.
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("auto 3")))
	grid := read(t, c)
	assert.Equal(t, model.PhaseGridReady, grid.Phase)

	send(t, c, "start")
	prompts := 0
	for prompts == 0 {
		env := read(t, c)
		if env.Prompt {
			prompts++
			assert.Equal(t, delivery.RestartPrompt, env.Data)
		}
	}

	send(t, c, "n")
	closed := read(t, c)
	assert.Equal(t, model.PhaseClosed, closed.Phase)

	send(t, c, "start")
	rejected := read(t, c)
	assert.Equal(t, delivery.KindError, rejected.Kind)
}

func TestHandler_NormalCloseEndsSession(t *testing.T) {
	svc, url := startServer(t)
	c := dial(t, url)
	_ = read(t, c)
	require.Equal(t, 1, svc.Stats().ActiveSessions)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	require.NoError(t, c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))

	require.Eventually(t, func() bool { return svc.Stats().ActiveSessions == 0 }, 5*time.Second, 5*time.Millisecond)
}

func TestHandler_ServerShutdownIsNotNormalClose(t *testing.T) {
	svc, url := startServer(t)
	c := dial(t, url)
	_ = read(t, c)

	svc.Stop(context.Background())

	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := c.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestHandler_ReconnectStartsFreshSession(t *testing.T) {
	svc, url := startServer(t)

	first := dial(t, url)
	_ = read(t, first)
	send(t, first, "2")
	_ = read(t, first)
	_ = first.Close()

	second := dial(t, url)
	banner := read(t, second)
	assert.Equal(t, model.BoundarySessionStart, banner.Boundary)
	assert.Equal(t, model.PhaseIdle, banner.Phase)
	require.Eventually(t, func() bool { return svc.Stats().SessionsOpened == 2 }, time.Second, 5*time.Millisecond)
}
