// Package usagerecorder persists GatewayRequest rows off the response
// critical path: record() enqueues to a bounded channel drained by a
// worker pool; a full queue falls through to a synchronous write, and
// only if that also fails is the row logged and dropped.
package usagerecorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ShabariRepo/bonito-sub002/internal/store"
)

// Writer persists one GatewayRequest row.
type Writer interface {
	Write(ctx context.Context, req store.GatewayRequest) error
}

// ManagedUsageWriter increments a managed CloudProvider's running token
// and cost counters, a side effect applied only when the served request
// used Bonito-managed credentials.
type ManagedUsageWriter interface {
	IncrementManagedUsage(ctx context.Context, providerID string, tokens int64, cost float64) error
}

// Recorder drains a bounded queue of GatewayRequest rows with a small
// worker pool.
type Recorder struct {
	writer        Writer
	managedWriter ManagedUsageWriter
	logger        *slog.Logger

	queue chan store.GatewayRequest
	wg    sync.WaitGroup

	closeOnce sync.Once
	closed    chan struct{}
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithManagedUsageWriter attaches the managed-usage side effect.
func WithManagedUsageWriter(w ManagedUsageWriter) Option {
	return func(r *Recorder) { r.managedWriter = w }
}

// WithLogger overrides the default slog.Default() logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// New starts a Recorder with queueSize buffered slots and workers
// goroutines draining it. Call Close to drain and stop the workers.
func New(writer Writer, queueSize, workers int, opts ...Option) *Recorder {
	if queueSize <= 0 {
		queueSize = 1000
	}
	if workers <= 0 {
		workers = 4
	}

	r := &Recorder{
		writer: writer,
		logger: slog.Default(),
		queue:  make(chan store.GatewayRequest, queueSize),
		closed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for req := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		r.persist(ctx, req)
		cancel()
	}
}

func (r *Recorder) persist(ctx context.Context, req store.GatewayRequest) {
	if err := r.writer.Write(ctx, req); err != nil {
		r.logger.Error("usage recorder: write failed", "error", err, "request_id", req.ID, "org_id", req.OrgID)
		return
	}
	if req.IsManaged && r.managedWriter != nil && req.Provider != "" {
		if err := r.managedWriter.IncrementManagedUsage(ctx, req.Provider, int64(req.InputTokens+req.OutputTokens), req.Cost); err != nil {
			r.logger.Error("usage recorder: managed usage increment failed", "error", err, "request_id", req.ID)
		}
	}
}

// Record enqueues req for asynchronous persistence. If the queue is full,
// it falls through to a synchronous write; if that also fails, the row
// is logged and dropped — billing data loss must be rare and visible,
// never silent.
func (r *Recorder) Record(req store.GatewayRequest) {
	select {
	case r.queue <- req:
		return
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.writer.Write(ctx, req); err != nil {
		r.logger.Error("usage recorder: dropped request row", "error", err, "request_id", req.ID, "org_id", req.OrgID, "status", req.Status)
	}
}

// Close stops accepting new work, drains the queue, and waits for
// in-flight writes to finish.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.queue)
		close(r.closed)
	})
	r.wg.Wait()
}
