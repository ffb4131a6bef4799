// Package service wires the job record store, queue, and worker into the
// operations the HTTP layer and background loops call.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/recruitpro/recruitpro-jobs/internal/core"
	"github.com/recruitpro/recruitpro-jobs/internal/data"
	"github.com/recruitpro/recruitpro-jobs/internal/domain/model"
	apperrors "github.com/recruitpro/recruitpro-jobs/internal/errors"
	"github.com/recruitpro/recruitpro-jobs/internal/observability/metrics"
	"github.com/recruitpro/recruitpro-jobs/internal/observability/statsd"
	"github.com/recruitpro/recruitpro-jobs/internal/queue"
)

// WorkerStats exposes the worker loop counters for the stats endpoint.
type WorkerStats interface {
	Snapshot() model.WorkerSnapshot
}

// JobServiceOptions configures NewJobService.
type JobServiceOptions struct {
	Repo     core.JobRepository
	Queue    *queue.Queue
	Registry *queue.Registry
	// Worker is optional; without it QueueStats reports zero counters.
	Worker  WorkerStats
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// JobService owns job submission and the read paths over job records.
type JobService struct {
	repo     core.JobRepository
	queue    *queue.Queue
	registry *queue.Registry
	worker   WorkerStats
	logger   *slog.Logger
	metrics  statsd.Sink
}

// NewJobService validates options and constructs a JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("job service requires a repository")
	}
	if opts.Queue == nil {
		return nil, errors.New("job service requires a queue")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &JobService{
		repo:     opts.Repo,
		queue:    opts.Queue,
		registry: opts.Registry,
		worker:   opts.Worker,
		logger:   logger.With("component", "job_service"),
		metrics:  opts.Metrics,
	}, nil
}

// MustNewJobService is NewJobService that panics on invalid options.
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		panic(err)
	}
	return svc
}

// CreateJob persists a pending job record and enqueues it for the
// worker. The record is committed before the enqueue, so a crash between
// the two leaves a pending record that RequeuePending or the reaper
// picks up rather than a queued item with no record.
func (s *JobService) CreateJob(ctx context.Context, req *model.CreateJobRequest) (*model.JobRecord, error) {
	if req == nil {
		return nil, apperrors.Validation("request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	rec, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	if !s.enqueueRecord(rec) {
		// The queue only refuses after shutdown has begun. The record is
		// durable and pending, so it is not lost.
		s.logger.WarnContext(ctx, "queue closed, job left pending",
			"job_id", rec.ID, "type", rec.Type)
	}
	metrics.EmitQueueDepth(s.metrics, s.queue.Depth())

	s.logger.InfoContext(ctx, "job created", "job_id", rec.ID, "type", rec.Type)
	return rec, nil
}

// GetJob returns the full job record.
func (s *JobService) GetJob(ctx context.Context, id string) (*model.JobRecord, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, data.ErrJobNotFound) {
			return nil, apperrors.NotFoundf("job %s not found", id)
		}
		return nil, err
	}
	return rec, nil
}

// GetStatus returns the polling view of a job record.
func (s *JobService) GetStatus(ctx context.Context, id string) (*model.JobStatusResponse, error) {
	rec, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.JobStatusResponse{
		Status:      rec.Status,
		Result:      rec.Result,
		Error:       rec.Error,
		CompletedAt: rec.CompletedAt,
	}, nil
}

// QueueStats merges the queue depth, worker counters, registered handler
// types, and per-status record counts into one observability view.
func (s *JobService) QueueStats(ctx context.Context) (*model.QueueStats, error) {
	jobStats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, err
	}

	stats := &model.QueueStats{
		Queued: s.queue.Depth(),
		Jobs:   *jobStats,
	}
	if s.registry != nil {
		stats.Handlers = s.registry.Types()
	}
	if s.worker != nil {
		snap := s.worker.Snapshot()
		stats.Processed = snap.Processed
		stats.Failed = snap.Failed
		stats.DispatchFailures = snap.DispatchFailures
		stats.LastJob = snap.LastJob
		stats.LastError = snap.LastError
		stats.Running = snap.Running
	}
	return stats, nil
}

// RequeuePending re-enqueues pending records older than minAge, up to
// limit. Run at startup it reconciles records whose queue items were
// lost to a restart; MarkRunning's pending guard makes a double enqueue
// harmless.
func (s *JobService) RequeuePending(ctx context.Context, minAge time.Duration, limit int) (int, error) {
	records, err := s.repo.ListPendingOlderThan(ctx, minAge, limit)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, rec := range records {
		if !s.enqueueRecord(rec) {
			break
		}
		requeued++
	}
	if requeued > 0 {
		s.logger.InfoContext(ctx, "requeued pending jobs", "count", requeued)
	}
	return requeued, nil
}

func (s *JobService) enqueueRecord(rec *model.JobRecord) bool {
	return s.queue.Enqueue(queue.Item{
		JobID:   rec.ID,
		Type:    rec.Type,
		Payload: rec.Payload,
	})
}

// PendingWaiter blocks until the record store signals that a job row may
// have been inserted. The Postgres repo implements it over LISTEN/NOTIFY.
type PendingWaiter interface {
	WaitForNotification(ctx context.Context) error
}

// RunRequeueLoop keeps the in-memory queue reconciled with the record
// store: it re-enqueues pending records older than minAge on every pass,
// waking early when the store signals a new row. This is what lets a
// worker-only process pick up jobs created by a separate HTTP process.
// Returns nil once ctx is cancelled.
func (s *JobService) RunRequeueLoop(
	ctx context.Context,
	waiter PendingWaiter,
	minAge time.Duration,
	limit int,
) error {
	interval := minAge
	if interval <= 0 {
		interval = 30 * time.Second
	}

	for {
		waitCtx, cancel := context.WithTimeout(ctx, interval)
		var waitErr error
		if waiter != nil {
			waitErr = waiter.WaitForNotification(waitCtx)
		} else {
			<-waitCtx.Done()
		}
		cancel()

		if ctx.Err() != nil {
			return nil
		}
		if waitErr != nil && !errors.Is(waitErr, context.DeadlineExceeded) &&
			!errors.Is(waitErr, context.Canceled) {
			s.logger.WarnContext(ctx, "wait for job notification", "error", waitErr)
		}

		if _, err := s.RequeuePending(ctx, minAge, limit); err != nil {
			s.logger.WarnContext(ctx, "requeue pending jobs failed", "error", err)
		}
	}
}
