// Package ws carries race sessions over websockets: one connection, one session.
package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	service "github.com/okian/pitwall/internal/app"
	"github.com/okian/pitwall/internal/domain/delivery"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
)

// Default connection settings.
const (
	DefaultWriteTimeout = 5 * time.Second
	defaultReadLimit    = 4096
	pongWait            = 60 * time.Second
	pingPeriod          = pongWait * 9 / 10
)

// mailboxFullText is sent when a client outpaces its session.
const mailboxFullText = "Too many commands at once, slow down."

// Session is the part of a race session the transport drives.
type Session interface {
	Submit(ctx context.Context, input string) error
	Close()
	Done() <-chan struct{}
}

// Opener creates the session for a new connection.
type Opener interface {
	Open(ctx context.Context, sender service.Sender) (*service.Session, error)
}

// Handler upgrades requests and pumps messages between a websocket and its session.
type Handler struct {
	opener       Opener
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	readLimit    int64
	logger       logger.Logger
}

// NewHandler creates a websocket handler opening sessions through opener.
func NewHandler(opener Opener, opts ...Option) *Handler {
	h := &Handler{
		opener: opener,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		writeTimeout: DefaultWriteTimeout,
		readLimit:    defaultReadLimit,
		logger:       logger.Get().Named("ws"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP handles GET /ws.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		metrics.RecordErrorByComponent("ws", "upgrade")
		h.logger.Info(r.Context(), "upgrade failed", logger.Error(err))
		return
	}
	c := newConn(wsConn, h.writeTimeout)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess, err := h.opener.Open(ctx, c)
	if err != nil {
		h.logger.Error(ctx, "open session", logger.Error(err))
		c.close(websocket.CloseInternalServerErr, "session unavailable")
		return
	}
	h.serve(ctx, c, sess)
}

func (h *Handler) serve(ctx context.Context, c *conn, sess Session) {
	defer sess.Close()

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-sess.Done():
				// Server-side shutdown is not a normal close for the client.
				c.close(websocket.CloseGoingAway, "server shutting down")
				return
			case <-ticker.C:
				if err := c.ping(); err != nil {
					return
				}
			}
		}
	}()

	c.ws.SetReadLimit(h.readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			h.logClose(ctx, err)
			c.close(websocket.CloseNormalClosure, "")
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		if err := sess.Submit(ctx, h.inputText(ctx, data)); err != nil {
			if errors.Is(err, service.ErrMailboxFull) {
				_ = c.Send(ctx, delivery.Envelope{Kind: delivery.KindError, Data: mailboxFullText})
				continue
			}
			return
		}
	}
}

// inputText extracts the command text. A message that is not a valid
// envelope is taken verbatim as command text.
func (h *Handler) inputText(ctx context.Context, data []byte) string {
	env, err := delivery.Decode(data)
	if err != nil {
		metrics.RecordErrorByComponent("ws", "protocol")
		h.logger.Debug(ctx, "treating malformed message as text", logger.Error(err))
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(env.Data)
}

func (h *Handler) logClose(ctx context.Context, err error) {
	var ce *websocket.CloseError
	switch {
	case errors.As(err, &ce) && (ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway):
		h.logger.Info(ctx, "client disconnected", logger.Int("code", ce.Code))
	case errors.As(err, &ce):
		metrics.RecordErrorByComponent("ws", "unexpected_close")
		h.logger.Error(ctx, "connection closed unexpectedly", logger.Int("code", ce.Code), logger.String("reason", ce.Text))
	default:
		h.logger.Info(ctx, "connection dropped", logger.Error(err))
	}
}
