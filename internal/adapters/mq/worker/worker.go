// Package worker runs oracle predictions for every session on a bounded pool.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/pitwall/internal/adapters/mq/queue"
	"github.com/okian/pitwall/internal/domain/oracle"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
	"github.com/okian/pitwall/pkg/tracing"
)

// Default pool configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	defaultQueueSize        = 256
	poolShutdownTimeout     = 30 * time.Second
)

type result struct {
	pred oracle.Prediction
	err  error
}

// request is one queued prediction. reply is buffered so a worker never
// blocks on a caller that already gave up.
type request struct {
	ctx   context.Context //nolint:containedctx // the caller's deadline travels with the request
	parts []oracle.Participant
	rc    oracle.RaceContext
	reply chan result
}

// Worker pulls requests off the shared queue and calls the wrapped oracle.
type Worker struct {
	inner  oracle.Oracle
	name   string
	tracer trace.Tracer
	pool   *Pool

	// requests is shared by every worker of the pool, so an idle worker
	// always picks up the next request.
	requests <-chan request

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

func newWorker(p *Pool, opts ...Option) *Worker {
	w := &Worker{
		inner:    p.inner,
		name:     "worker",
		tracer:   tracing.Tracer("worker"),
		pool:     p,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run serves requests until ctx is canceled, Shutdown is called or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	requests := w.requests
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case req, ok := <-requests:
			if !ok {
				return
			}
			w.pool.busy(1)
			req.reply <- w.process(req)
			w.pool.busy(-1)
		}
	}
}

// Shutdown stops the worker once its current request is answered.
func (w *Worker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *Worker) process(req request) result {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	// The caller may have fallen back already while this request sat in the queue.
	if err := req.ctx.Err(); err != nil {
		return result{err: fmt.Errorf("%w: %w", oracle.ErrUnavailable, err)}
	}

	ctx, span := w.tracer.Start(req.ctx, "oracle.predict", trace.WithAttributes(
		attribute.String("worker", w.name),
		attribute.String("track", req.rc.TrackID),
		attribute.Int("lap", req.rc.Lap),
		attribute.Int("participants", len(req.parts)),
	))
	defer span.End()

	pred, err := w.inner.Predict(ctx, req.parts, req.rc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prediction failed")
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "prediction_error")
		w.logger.Debug(ctx, "prediction failed",
			logger.String("track", req.rc.TrackID),
			logger.Int("lap", req.rc.Lap),
			logger.Error(err),
		)
		return result{err: err}
	}
	span.SetAttributes(attribute.String("source", pred.Source))
	return result{pred: pred}
}

// Pool is an oracle.Oracle that serializes calls from all sessions onto a
// fixed number of workers fed by a bounded queue.
type Pool struct {
	inner   oracle.Oracle
	queue   *queue.InMemoryQueue[request]
	workers []*Worker
	active  atomic.Int64

	startOnce sync.Once
	stopOnce  sync.Once

	logger logger.Logger
}

var _ oracle.Oracle = (*Pool)(nil)

// NewPool creates a prediction pool around inner. Workers start with Start.
func NewPool(inner oracle.Oracle, opts ...PoolOption) *Pool {
	cfg := poolConfig{
		workers:   runtime.NumCPU() * defaultWorkerMultiplier,
		queueSize: defaultQueueSize,
		logger:    logger.Get().Named("worker-pool"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Pool{
		inner:  inner,
		queue:  queue.NewInMemoryQueue[request](queue.WithCapacity(cfg.queueSize)),
		logger: cfg.logger,
	}
	p.workers = make([]*Worker, cfg.workers)
	for i := range p.workers {
		p.workers[i] = newWorker(p, WithName("worker-"+strconv.Itoa(i)), WithLogger(cfg.logger))
	}

	metrics.UpdateWorkerCount(cfg.workers)
	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerIdleCount(cfg.workers)

	return p
}

// Start launches every worker. Calling it again is a no-op.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		requests := p.queue.Dequeue(ctx)
		for _, w := range p.workers {
			w.requests = requests
			go w.Run(ctx)
		}
		p.logger.Info(ctx, "prediction pool started",
			logger.Int("workers", len(p.workers)),
			logger.Int("queue_size", p.queue.Capacity()),
		)
	})
}

// Predict queues the request and waits for a worker or ctx, whichever is first.
func (p *Pool) Predict(ctx context.Context, parts []oracle.Participant, rc oracle.RaceContext) (oracle.Prediction, error) {
	req := request{ctx: ctx, parts: parts, rc: rc, reply: make(chan result, 1)}
	if !p.queue.Enqueue(ctx, req) {
		switch {
		case p.queue.IsClosed():
			return oracle.Prediction{}, fmt.Errorf("%w: %w", oracle.ErrUnavailable, queue.ErrClosed)
		case ctx.Err() != nil:
			return oracle.Prediction{}, fmt.Errorf("%w: %w", oracle.ErrUnavailable, ctx.Err())
		default:
			return oracle.Prediction{}, fmt.Errorf("%w: %w", oracle.ErrUnavailable, queue.ErrFull)
		}
	}

	select {
	case res := <-req.reply:
		return res.pred, res.err
	case <-ctx.Done():
		return oracle.Prediction{}, fmt.Errorf("%w: %w", oracle.ErrUnavailable, ctx.Err())
	}
}

// Pending is the number of requests waiting for a worker.
func (p *Pool) Pending() int {
	return p.queue.Len(context.Background())
}

// Size is the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Active is the number of workers currently running a prediction.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

func (p *Pool) busy(delta int64) {
	n := p.active.Add(delta)
	metrics.UpdateWorkerActiveCount(int(n))
	metrics.UpdateWorkerIdleCount(len(p.workers) - int(n))
}

// Shutdown closes the queue and waits for the workers to drain.
func (p *Pool) Shutdown(ctx context.Context) error {
	var errs []error
	p.stopOnce.Do(func() {
		if err := p.queue.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}

		shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
		defer cancel()

		for i, w := range p.workers {
			if err := w.Shutdown(shutdownCtx); err != nil {
				p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
