// Package client is the terminal side of a race session. It renders the
// narration stream, echoes commands, and reports how a connection ended.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/pitwall/internal/domain/delivery"
	"github.com/okian/pitwall/pkg/logger"
)

// Local commands handled by the client itself.
const (
	CmdReconnect = "/reconnect"
	CmdQuit      = "/quit"
)

const closeWait = time.Second

// ErrQuit is returned by Send after /quit.
var ErrQuit = errors.New("quit")

// Client owns one websocket at a time plus the transcript it feeds.
type Client struct {
	url       string
	dialer    *websocket.Dialer
	out       io.Writer
	logger    logger.Logger
	policy    delivery.EchoPolicy
	dedupSize int

	conn       *delivery.Connection
	transcript *delivery.Transcript

	mu    sync.Mutex // guards ws and writes
	ws    *websocket.Conn
	done  chan struct{}
	outMu sync.Mutex
}

// New creates a disconnected client for url.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:    url,
		dialer: websocket.DefaultDialer,
		out:    io.Discard,
		logger: logger.Get().Named("client"),
		policy: delivery.LeaveAndAnnotate,
		conn:   delivery.NewConnection(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.transcript = delivery.NewTranscript(c.policy, c.dedupSize)
	return c
}

// Connect dials the server and starts reading. A failed dial leaves the
// client Lost so the user can /reconnect.
func (c *Client) Connect(ctx context.Context) error {
	phase, err := c.conn.Dial()
	if err != nil {
		return err
	}
	c.banner(phase)

	ws, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		phase, _ = c.conn.Ended(websocket.CloseAbnormalClosure, err.Error())
		c.banner(phase)
		return fmt.Errorf("%w: %w", delivery.ErrConnectionLost, err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.ws = ws
	c.done = done
	c.mu.Unlock()

	phase, _ = c.conn.Established()
	c.banner(phase)
	c.logger.Info(ctx, "connected", logger.String("url", c.url))

	go c.readLoop(ctx, ws, done)
	return nil
}

// Reconnect drops the current socket, if any, and dials again. The server
// starts a fresh session, and its banner replaces the transcript.
func (c *Client) Reconnect(ctx context.Context) error {
	if c.conn.Phase().State == delivery.Connected {
		c.Close()
	}
	return c.Connect(ctx)
}

// Send handles one line of user input. Local commands run here; anything
// else is echoed and sent, or rejected when not connected.
func (c *Client) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	switch text {
	case "":
		return nil
	case CmdReconnect:
		return c.Reconnect(ctx)
	case CmdQuit:
		c.Close()
		return ErrQuit
	}

	if err := c.conn.CanSend(); err != nil {
		c.printf("Not connected, command not sent. Type %s to try again.\n", CmdReconnect)
		return err
	}

	data, err := delivery.Input(text).Encode()
	if err != nil {
		return err
	}
	c.transcript.Echo(text)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return delivery.ErrNotConnected
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %w", delivery.ErrConnectionLost, err)
	}
	return nil
}

// Close ends the connection with a normal close and waits for the reader.
func (c *Client) Close() {
	c.mu.Lock()
	ws, done := c.ws, c.done
	if ws != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
	}
	c.mu.Unlock()
	if ws == nil {
		return
	}

	select {
	case <-done:
	case <-time.After(closeWait):
		_ = ws.Close()
		<-done
	}
}

// Run reads lines from in until EOF, /quit or ctx ends.
func (c *Client) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			c.Close()
			return nil
		case line, ok := <-lines:
			if !ok {
				c.Close()
				return nil
			}
			err := c.Send(ctx, line)
			switch {
			case errors.Is(err, ErrQuit):
				return nil
			case err != nil:
				c.logger.Debug(ctx, "input not delivered", logger.Error(err))
			}
		}
	}
}

// Phase returns the connection phase.
func (c *Client) Phase() delivery.ConnPhase {
	return c.conn.Phase()
}

// Transcript returns the rendered transcript.
func (c *Client) Transcript() *delivery.Transcript {
	return c.transcript
}

// Done is closed when the current connection's reader exits.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

func (c *Client) readLoop(ctx context.Context, ws *websocket.Conn, done chan struct{}) {
	defer close(done)
	defer func() { _ = ws.Close() }()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			code, reason := closeStatus(err)
			c.mu.Lock()
			if c.ws == ws {
				c.ws = nil
			}
			c.mu.Unlock()
			phase, _ := c.conn.Ended(code, reason)
			c.banner(phase)
			c.logger.Info(ctx, "connection ended",
				logger.Int("code", code), logger.String("state", phase.State.String()))
			return
		}

		rendered, err := c.transcript.ReceiveRaw(ctx, data)
		if err != nil {
			c.logger.Warn(ctx, "malformed server message", logger.Error(err))
		}
		if rendered {
			c.render(data)
		}
	}
}

// render prints the newest transcript content for a rendered message.
func (c *Client) render(raw []byte) {
	env, err := delivery.Decode(raw)
	if err != nil {
		c.printf("%s\n", raw)
		return
	}
	switch {
	case env.Boundary.IsBoundary():
		c.printf("\n==== %s ====\n%s\n", env.Boundary, env.Data)
	case env.Kind == delivery.KindError:
		c.printf("! %s\n", env.Data)
	default:
		c.printf("%s\n", env.Data)
	}
}

func (c *Client) banner(p delivery.ConnPhase) {
	c.printf("[%s]\n", p.Banner())
}

func (c *Client) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, args...)
}

// closeStatus extracts the close code. Anything but a close frame counts as
// an abnormal closure.
func closeStatus(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}
