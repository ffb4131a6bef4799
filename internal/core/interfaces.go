package core

import (
	"context"
	"database/sql"
	"time"

	"github.com/recruitpro/recruitpro-jobs/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// Service implementations should depend on these interfaces, not concrete implementations.

// JobRepository defines the interface for job record operations.
//
// Status transitions are guarded: MarkRunning, Complete and Fail return
// (false, nil) when the record is not in the prerequisite status, which is
// how the forward-only pending -> running -> {completed|failed} path is
// enforced under concurrent or repeated delivery.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.JobRecord, error)
	GetByID(ctx context.Context, id string) (*model.JobRecord, error)
	MarkRunning(ctx context.Context, id string) (bool, error)
	Complete(ctx context.Context, id string, result []byte) (bool, error)
	Fail(ctx context.Context, id, errMsg string) (bool, error)
	Stats(ctx context.Context) (*model.JobStats, error)
	ListPendingOlderThan(ctx context.Context, age time.Duration, limit int) ([]*model.JobRecord, error)
}

// JobRepositoryTx defines optional transactional job creation support.
type JobRepositoryTx interface {
	CreateInTx(ctx context.Context, tx *sql.Tx, req *model.CreateJobRequest) (*model.JobRecord, error)
}

// DeleteOldJobsParams groups parameters for DeleteOldJobs to keep param count <=3.
type DeleteOldJobsParams struct {
	MaxAge    time.Duration
	BatchSize int
}

// ReaperRepository defines the sweep operations used by the reaper service.
type ReaperRepository interface {
	// FailStaleRunningJobs marks records stuck in running past maxAge as
	// failed. Covers handlers that crashed without updating status.
	FailStaleRunningJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
	// FailStalePendingJobs marks records stuck in pending past maxAge as
	// failed. Covers queue items lost to a process restart.
	FailStalePendingJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
	// DeleteOldJobs removes terminal records older than the retention window.
	DeleteOldJobs(ctx context.Context, params DeleteOldJobsParams) (int64, error)
}
