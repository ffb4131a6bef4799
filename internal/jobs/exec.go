// Package jobs contains the handlers registered for each job type and
// the shared record-lifecycle helper they run under.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/recruitpro/recruitpro-jobs/internal/ai"
	"github.com/recruitpro/recruitpro-jobs/internal/core"
	"github.com/recruitpro/recruitpro-jobs/internal/data"
	"github.com/recruitpro/recruitpro-jobs/internal/domain/job"
	"github.com/recruitpro/recruitpro-jobs/internal/domain/model"
	apperrors "github.com/recruitpro/recruitpro-jobs/internal/errors"
	"github.com/recruitpro/recruitpro-jobs/internal/queue"
)

// Creator creates and enqueues follow-on jobs. Satisfied by the job
// service; handlers use it for completion chaining.
type Creator interface {
	CreateJob(ctx context.Context, req *model.CreateJobRequest) (*model.JobRecord, error)
}

// Deps are the shared dependencies every handler needs.
type Deps struct {
	Repo      core.JobRepository
	Publisher job.Publisher
	Logger    *slog.Logger
}

func (d *Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Deps) publisher() job.Publisher {
	if d.Publisher != nil {
		return d.Publisher
	}
	return job.NopPublisher{}
}

// exec wraps a handler body with the record lifecycle contract:
//
//   - a missing record means the job was cancelled or reaped away; the
//     item is dropped without error
//   - MarkRunning gates the body: it fails for any record not in
//     pending, which also makes re-delivery and completion chaining of
//     already-terminal records a no-op
//   - the body's outcome is committed with Complete or Fail before the
//     terminal event is published, so anyone woken by the event already
//     sees the terminal status when polling
//
// The body's error is returned so the worker counts the failure, even
// though the record transition has already been handled here.
func exec(
	ctx context.Context,
	deps *Deps,
	item queue.Item,
	fn func(ctx context.Context) (json.RawMessage, error),
) error {
	logger := deps.logger()

	rec, err := deps.Repo.GetByID(ctx, item.JobID)
	if err != nil {
		if errors.Is(err, data.ErrJobNotFound) || apperrors.IsNotFound(err) {
			logger.InfoContext(ctx, "job record gone, dropping item", "job_id", item.JobID)
			return nil
		}
		return apperrors.Wrapf(err, apperrors.ErrCodeInternal, "load job %s", item.JobID)
	}
	if rec.Status.Terminal() {
		logger.InfoContext(ctx, "job already terminal, dropping item",
			"job_id", item.JobID, "status", rec.Status)
		return nil
	}

	ok, err := deps.Repo.MarkRunning(ctx, item.JobID)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeInternal, "mark job %s running", item.JobID)
	}
	if !ok {
		logger.InfoContext(ctx, "job no longer pending, dropping item", "job_id", item.JobID)
		return nil
	}

	result, runErr := fn(ctx)
	if runErr != nil {
		failed, failErr := deps.Repo.Fail(ctx, item.JobID, runErr.Error())
		if failErr != nil {
			logger.ErrorContext(ctx, "fail job error",
				"job_id", item.JobID, "error", failErr, "original_error", runErr)
		}
		if failed {
			deps.publisher().Publish(ctx, job.Event{
				Name:  job.EventFailed,
				JobID: item.JobID,
				Type:  item.Type,
				Error: runErr.Error(),
				At:    time.Now(),
			})
		}
		return runErr
	}

	completed, completeErr := deps.Repo.Complete(ctx, item.JobID, result)
	if completeErr != nil {
		logger.ErrorContext(ctx, "complete job error", "job_id", item.JobID, "error", completeErr)
		return completeErr
	}
	if completed {
		deps.publisher().Publish(ctx, job.Event{
			Name:  job.EventCompleted,
			JobID: item.JobID,
			Type:  item.Type,
			At:    time.Now(),
		})
	}
	return nil
}

// decodePayload unmarshals an item payload into a typed struct, mapping
// malformed payloads to a validation failure.
func decodePayload(item queue.Item, v any) error {
	if err := json.Unmarshal(item.Payload, v); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeValidation, "decode %s payload", item.Type)
	}
	return nil
}

// generateText calls the text generator, failing cleanly when none is
// configured.
func generateText(ctx context.Context, gen ai.TextGenerator, req ai.GenerateRequest) (string, error) {
	if gen == nil {
		return "", apperrors.Unavailable("no text generation provider configured")
	}
	return gen.Generate(ctx, req)
}
