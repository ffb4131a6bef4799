package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/recruitpro/recruitpro-jobs/internal/core"
	"github.com/recruitpro/recruitpro-jobs/internal/data/pgxutil"
)

// Advisory lock namespace for reaper operations.
// Using two-arg pg_try_advisory_xact_lock(major, minor) for proper
// namespacing so concurrent reaper instances skip instead of colliding.
const (
	advisoryLockReaperMajor       = 1000
	advisoryLockReaperFailRunning = 1 // minor key for FailStaleRunningJobs
	advisoryLockReaperFailPending = 2 // minor key for FailStalePendingJobs
	advisoryLockReaperDelete      = 3 // minor key for DeleteOldJobs
)

// staleRunningError is recorded on jobs whose handler died mid-flight.
const staleRunningError = "handler crashed without updating status"

// stalePendingError is recorded on jobs that never reached a worker.
const stalePendingError = "job expired before processing"

// FailStaleRunningJobs marks jobs stuck in running longer than maxAge as
// failed. A record can only be stuck running when its handler crashed or
// the process died between MarkRunning and the terminal update; the
// sweep restores the invariant that every old record is terminal.
// Processes up to batchSize rows per call. Returns the number of jobs
// marked failed.
func (r *JobRepo) FailStaleRunningJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	return r.failStaleJobs(ctx, failStaleParams{
		status:    "running",
		ageColumn: "started_at",
		errMsg:    staleRunningError,
		lockMinor: advisoryLockReaperFailRunning,
		maxAge:    maxAge,
		batchSize: batchSize,
	})
}

// FailStalePendingJobs marks jobs stuck in pending longer than maxAge as
// failed. Covers queue items lost to a crash before the worker saw them
// when startup reconciliation also missed them. Returns the number of
// jobs marked failed.
func (r *JobRepo) FailStalePendingJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	return r.failStaleJobs(ctx, failStaleParams{
		status:    "pending",
		ageColumn: "created_at",
		errMsg:    stalePendingError,
		lockMinor: advisoryLockReaperFailPending,
		maxAge:    maxAge,
		batchSize: batchSize,
	})
}

type failStaleParams struct {
	status    string
	ageColumn string
	errMsg    string
	lockMinor int
	maxAge    time.Duration
	batchSize int
}

func (r *JobRepo) failStaleJobs(ctx context.Context, p failStaleParams) (int64, error) {
	if p.batchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}

	// status and ageColumn come from the two fixed call sites above,
	// never from input.
	query := fmt.Sprintf(`
		UPDATE jobs
		SET status = 'failed',
			error = $1,
			result = NULL,
			completed_at = $2,
			updated_at = $2
		WHERE id IN (
			SELECT id FROM jobs
			WHERE status = '%s'
			  AND COALESCE(%s, created_at) < $3
			ORDER BY COALESCE(%s, created_at)
			LIMIT $4
		)
	`, p.status, p.ageColumn, p.ageColumn)

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, func(tx *sql.Tx) error {
		locked, lockErr := tryReaperLock(ctx, tx, p.lockMinor)
		if lockErr != nil {
			return lockErr
		}
		if !locked {
			rowsAffected = 0
			return nil
		}

		currentTime := r.timeProvider.Now()
		cutoffTime := currentTime.Add(-p.maxAge)

		res, execErr := tx.ExecContext(ctx, query,
			p.errMsg, currentTime.UTC(), cutoffTime.UTC(), p.batchSize)
		if execErr != nil {
			return dbError("fail stale "+p.status+" jobs", execErr)
		}

		ra, raErr := res.RowsAffected()
		if raErr != nil {
			return fmt.Errorf("rows affected: %w", raErr)
		}
		rowsAffected = ra
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// DeleteOldJobs deletes terminal jobs older than the retention window.
// Processes up to batchSize rows per call to prevent long locks and I/O
// spikes. Returns the number of jobs deleted.
func (r *JobRepo) DeleteOldJobs(ctx context.Context, params core.DeleteOldJobsParams) (int64, error) {
	if params.BatchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}
	if params.MaxAge <= 0 {
		return 0, errors.New("max age must be greater than zero")
	}

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, func(tx *sql.Tx) error {
		locked, lockErr := tryReaperLock(ctx, tx, advisoryLockReaperDelete)
		if lockErr != nil {
			return lockErr
		}
		if !locked {
			rowsAffected = 0
			return nil
		}

		cutoffTime := r.timeProvider.Now().Add(-params.MaxAge).UTC()

		res, execErr := tx.ExecContext(ctx, `
			DELETE FROM jobs
			WHERE id IN (
				SELECT id FROM jobs
				WHERE status IN ('completed', 'failed')
				  AND COALESCE(completed_at, updated_at) < $1
				ORDER BY COALESCE(completed_at, updated_at)
				LIMIT $2
			)
		`, cutoffTime, params.BatchSize)
		if execErr != nil {
			return dbError("delete old jobs", execErr)
		}

		ra, raErr := res.RowsAffected()
		if raErr != nil {
			return fmt.Errorf("rows affected: %w", raErr)
		}
		rowsAffected = ra
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

func tryReaperLock(ctx context.Context, tx *sql.Tx, minor int) (bool, error) {
	var locked bool
	if err := tx.QueryRowContext(ctx,
		"SELECT pg_try_advisory_xact_lock($1, $2)",
		advisoryLockReaperMajor, minor).Scan(&locked); err != nil {
		return false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	return locked, nil
}
