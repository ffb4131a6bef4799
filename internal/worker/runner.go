// Package worker provides the single-consumer loop that drains the job
// queue and dispatches items to registered handlers.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/recruitpro/recruitpro-jobs/internal/domain/model"
	obserrors "github.com/recruitpro/recruitpro-jobs/internal/observability/errors"
	"github.com/recruitpro/recruitpro-jobs/internal/observability/metrics"
	"github.com/recruitpro/recruitpro-jobs/internal/observability/statsd"
	"github.com/recruitpro/recruitpro-jobs/internal/queue"
)

// RunnerOptions configures the worker runner.
type RunnerOptions struct {
	Queue    *queue.Queue
	Registry *queue.Registry
	Logger   *slog.Logger

	// PollInterval bounds each Dequeue wait so the loop re-checks its
	// context; defaults to 500ms.
	PollInterval time.Duration

	// Optional metric sink.
	Metrics statsd.Sink
}

// Runner is the queue's single consumer. One Runner owns one goroutine;
// it dispatches each dequeued item to the handler registered for its
// type and survives any handler failure, including panics.
//
// The runner never touches job records itself: record transitions belong
// to handlers, so a dispatch failure (no handler registered) leaves the
// record untouched for the reaper to reconcile.
type Runner struct {
	queue    *queue.Queue
	registry *queue.Registry
	logger   *slog.Logger
	poll     time.Duration
	metrics  statsd.Sink

	mu       sync.Mutex
	snapshot model.WorkerSnapshot
}

// NewRunner validates options and constructs a worker runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Queue == nil {
		return nil, errors.New("worker queue is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("worker registry is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	poll := opts.PollInterval
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}

	return &Runner{
		queue:    opts.Queue,
		registry: opts.Registry,
		logger:   logger.With("component", "worker"),
		poll:     poll,
		metrics:  opts.Metrics,
	}, nil
}

// MustNewRunner constructs a worker runner and panics on invalid options.
func MustNewRunner(opts RunnerOptions) *Runner {
	r, err := NewRunner(opts)
	if err != nil {
		panic(err)
	}
	return r
}

// Run consumes the queue until the context is cancelled. It always
// returns ctx.Err(); no handler outcome stops the loop.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting worker", "poll_interval", r.poll)
	r.setRunning(true)
	defer r.setRunning(false)

	for ctx.Err() == nil {
		item, ok := r.queue.Dequeue(r.poll)
		if !ok {
			continue
		}
		r.process(ctx, item)
	}

	r.logger.InfoContext(ctx, "worker stopped")
	return ctx.Err()
}

// process dispatches a single item, recording counters and metrics.
func (r *Runner) process(ctx context.Context, item queue.Item) {
	handler := r.registry.Lookup(item.Type)
	if handler == nil {
		r.recordDispatchFailure(item)
		metrics.EmitDispatchFailure(r.metrics, string(item.Type))
		r.logger.WarnContext(ctx, "no handler registered for job type",
			"job_id", item.JobID, "job_type", item.Type)
		return
	}

	start := time.Now()
	err := r.invoke(ctx, handler, item)
	duration := time.Since(start)

	transition := "completed"
	result := metrics.ResultSuccess
	if err != nil {
		transition = "failed"
		result = metrics.ResultError
		r.logger.ErrorContext(ctx, "job handler failed",
			"job_id", item.JobID, "job_type", item.Type,
			"duration", duration, "error", err,
			"error_class", obserrors.Classify(err))
	} else {
		r.logger.InfoContext(ctx, "job processed",
			"job_id", item.JobID, "job_type", item.Type, "duration", duration)
	}

	r.recordOutcome(item, duration, err)
	metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
		JobType:    string(item.Type),
		Transition: transition,
		Result:     result,
		Duration:   duration,
		Err:        err,
	})
	metrics.EmitQueueDepth(r.metrics, r.queue.Depth())
}

// invoke runs the handler with panic recovery so a panicking handler is
// indistinguishable from one returning an error.
func (r *Runner) invoke(ctx context.Context, handler queue.Handler, item queue.Item) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return handler.Run(ctx, item)
}

func (r *Runner) recordOutcome(item queue.Item, duration time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.snapshot.LastJob = &model.JobSummary{
		JobID:      item.JobID,
		Type:       item.Type,
		Duration:   duration,
		FinishedAt: time.Now(),
	}
	if err != nil {
		r.snapshot.Failed++
		r.snapshot.LastError = err.Error()
		return
	}
	r.snapshot.Processed++
}

func (r *Runner) recordDispatchFailure(item queue.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.snapshot.DispatchFailures++
	r.snapshot.LastError = fmt.Sprintf("no handler for job type %s", item.Type)
}

func (r *Runner) setRunning(running bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot.Running = running
}

// Snapshot returns a copy of the worker's counters.
func (r *Runner) Snapshot() model.WorkerSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.snapshot
	if r.snapshot.LastJob != nil {
		lastJob := *r.snapshot.LastJob
		snap.LastJob = &lastJob
	}
	return snap
}
