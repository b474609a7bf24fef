// Package httporacle is an oracle.Oracle backed by a remote prediction
// service speaking JSON over HTTP.
package httporacle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/okian/pitwall/internal/domain/oracle"
	"github.com/okian/pitwall/pkg/logger"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// ErrEmptyURL is returned by New when no endpoint is configured.
var ErrEmptyURL = errors.New("httporacle: empty url")

// Request is the body POSTed to the prediction service.
type Request struct {
	Participants []oracle.Participant `json:"participants"`
	Context      oracle.RaceContext   `json:"context"`
}

// Client calls a remote prediction endpoint.
type Client struct {
	url    string
	http   *http.Client
	source string
	logger logger.Logger
}

var _ oracle.Oracle = (*Client)(nil)

// New creates a client posting to url.
func New(url string, opts ...Option) (*Client, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, ErrEmptyURL
	}
	c := &Client{
		url:    url,
		http:   http.DefaultClient,
		source: "remote",
		logger: logger.Get().Named("httporacle"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Predict posts the participants and race context and decodes the reply.
// Any transport, status or decoding failure is reported as ErrUnavailable.
func (c *Client) Predict(ctx context.Context, parts []oracle.Participant, rc oracle.RaceContext) (oracle.Prediction, error) {
	body, err := json.Marshal(Request{Participants: parts, Context: rc})
	if err != nil {
		return oracle.Prediction{}, fmt.Errorf("%w: encode request: %w", oracle.ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return oracle.Prediction{}, fmt.Errorf("%w: build request: %w", oracle.ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return oracle.Prediction{}, fmt.Errorf("%w: %w", oracle.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		c.logger.Debug(ctx, "prediction service returned error status",
			logger.Int("status", resp.StatusCode),
			logger.String("track", rc.TrackID),
			logger.Int("lap", rc.Lap),
		)
		return oracle.Prediction{}, fmt.Errorf("%w: status %d", oracle.ErrUnavailable, resp.StatusCode)
	}

	var pred oracle.Prediction
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&pred); err != nil {
		return oracle.Prediction{}, fmt.Errorf("%w: decode response: %w", oracle.ErrUnavailable, err)
	}
	if err := pred.Validate(parts); err != nil {
		return oracle.Prediction{}, err
	}
	if pred.Source == "" {
		pred.Source = c.source
	}
	return pred, nil
}
