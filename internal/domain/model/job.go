// Package model defines the core data types for the recruitpro job system.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobType names the handler that processes a job. The set is open-ended:
// whether a type is runnable is decided at dispatch time by the registry,
// not at creation time.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, the rest value receivers
type JobType string

// JobStatus represents the current status of a job record.
type JobStatus string

const (
	// JobTypeScreeningSummary generates a candidate screening summary.
	JobTypeScreeningSummary JobType = "screening_summary"
	// JobTypeJobDescription generates a job description for a position.
	JobTypeJobDescription JobType = "job_description"
	// JobTypeOutreachEmail drafts an outreach email to a candidate.
	JobTypeOutreachEmail JobType = "outreach_email"
	// JobTypeSalaryEstimate produces a salary estimate for a position.
	JobTypeSalaryEstimate JobType = "salary_estimate"
	// JobTypeEcho copies the payload into the result; used for smoke tests.
	JobTypeEcho JobType = "echo"

	// JobStatusPending indicates a job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates a job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates a job finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job failed to complete.
	JobStatusFailed JobStatus = "failed"
)

// UnmarshalText implements encoding.TextUnmarshaler so JobType values can be
// parsed from env/config input.
func (t *JobType) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	if v == "" {
		return fmt.Errorf("invalid JobType: %q", v)
	}
	*t = JobType(v)
	return nil
}

// Valid returns true if the JobStatus is one of the four known states.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusRunning ||
		s == JobStatusCompleted || s == JobStatusFailed
}

// Terminal reports whether no further transitions are permitted.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition reports whether moving from s to next follows the
// forward-only path pending -> running -> {completed|failed}.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusRunning
	case JobStatusRunning:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

// JobRecord is the durable status/result record for a submitted job.
// At most one of Result/Error is set, and only once the record is terminal.
type JobRecord struct {
	ID          string          `json:"id"                     db:"id"`
	Type        JobType         `json:"type"                   db:"type"`
	Status      JobStatus       `json:"status"                 db:"status"`
	Payload     json.RawMessage `json:"payload"                db:"payload"`
	Result      json.RawMessage `json:"result,omitempty"       db:"result"`
	Error       *string         `json:"error,omitempty"        db:"error"`
	StartedAt   *time.Time      `json:"started_at,omitempty"   db:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time       `json:"created_at"             db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"             db:"updated_at"`
}

// CreateJobRequest represents a request to create a new job record.
type CreateJobRequest struct {
	Type    JobType         `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if strings.TrimSpace(string(r.Type)) == "" {
		return errors.New("job type is required")
	}
	if len(r.Payload) == 0 {
		return errors.New("payload is required")
	}
	if !json.Valid(r.Payload) {
		return errors.New("payload must be valid JSON")
	}
	return nil
}

// JobStats counts job records by status.
type JobStats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// JobStatusResponse is the polling view of a single job record.
type JobStatusResponse struct {
	Status      JobStatus       `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *string         `json:"error,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// JobSummary is a compact description of the last job the worker finished.
type JobSummary struct {
	JobID      string        `json:"job_id"`
	Type       JobType       `json:"type"`
	Duration   time.Duration `json:"duration"`
	FinishedAt time.Time     `json:"finished_at"`
}

// WorkerSnapshot is a point-in-time view of the worker loop's counters.
// Processed counts handlers that returned normally; Failed counts error
// returns and panics; DispatchFailures counts items with no registered
// handler. The counters are coarse observability; job status truth lives
// in the JobRecord store.
type WorkerSnapshot struct {
	Processed        uint64      `json:"processed"`
	Failed           uint64      `json:"failed"`
	DispatchFailures uint64      `json:"dispatch_failures"`
	LastJob          *JobSummary `json:"last_job,omitempty"`
	LastError        string      `json:"last_error,omitempty"`
	Running          bool        `json:"running"`
}

// QueueStats is the merged observability view of the queue subsystem.
// No correctness invariant depends on it.
type QueueStats struct {
	Queued           int         `json:"queued"`
	Handlers         []string    `json:"handlers"`
	Processed        uint64      `json:"processed"`
	Failed           uint64      `json:"failed"`
	DispatchFailures uint64      `json:"dispatch_failures"`
	LastJob          *JobSummary `json:"last_job,omitempty"`
	LastError        string      `json:"last_error,omitempty"`
	Running          bool        `json:"running"`
	Jobs             JobStats    `json:"jobs"`
}
