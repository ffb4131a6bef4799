// Package data implements the Postgres persistence layer for job records.
package data

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/recruitpro/recruitpro-jobs/internal/errors"
)

// ErrJobNotFound is returned when a job record is not found.
var ErrJobNotFound = errors.New("job not found")

// dbError wraps a database error with the operation name after mapping
// Postgres error codes onto the application taxonomy, so constraint
// violations surface as Conflict/Validation/ForeignKey instead of
// Internal. Non-database errors pass through unchanged.
func dbError(op string, err error) error {
	return fmt.Errorf("%s: %w", op, apperrors.MapDBError(err))
}

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for job records.
//
// Status transitions are enforced with guard clauses in SQL
// (`WHERE status = ...`); a transition against a record in the wrong
// state affects zero rows and reports (false, nil) instead of erroring,
// keeping the pending -> running -> {completed|failed} path forward-only
// under concurrent or repeated delivery.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       logger.With("component", "job_repo"),
	}
}

const jobColumns = `
  id,
  type,
  status,
  payload,
  result,
  error,
  started_at,
  completed_at,
  created_at,
  updated_at
`
