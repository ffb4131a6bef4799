package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/recruitpro/recruitpro-jobs/internal/core"
	"github.com/recruitpro/recruitpro-jobs/internal/domain/model"
	apperrors "github.com/recruitpro/recruitpro-jobs/internal/errors"
)

// MemoryJobRepo is an in-memory core.JobRepository for tests that do not
// need Postgres. It enforces the same guarded status transitions as the
// SQL implementation.
type MemoryJobRepo struct {
	mu      sync.Mutex
	records map[string]*model.JobRecord

	// Now is the clock used for timestamps; defaults to time.Now.
	Now func() time.Time
}

// NewMemoryJobRepo creates an empty in-memory job repository.
func NewMemoryJobRepo() *MemoryJobRepo {
	return &MemoryJobRepo{
		records: make(map[string]*model.JobRecord),
		Now:     time.Now,
	}
}

var _ core.JobRepository = (*MemoryJobRepo)(nil)

// Create inserts a pending job record.
func (m *MemoryJobRepo) Create(_ context.Context, req *model.CreateJobRequest) (*model.JobRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	rec := &model.JobRecord{
		ID:        uuid.NewString(),
		Type:      req.Type,
		Status:    model.JobStatusPending,
		Payload:   append([]byte(nil), req.Payload...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.records[rec.ID] = rec
	return cloneRecord(rec), nil
}

// GetByID returns a job record or a NotFound error.
func (m *MemoryJobRepo) GetByID(_ context.Context, id string) (*model.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, apperrors.NotFoundf("job %s not found", id)
	}
	return cloneRecord(rec), nil
}

// MarkRunning transitions pending -> running; returns false when the
// record is missing or not pending.
func (m *MemoryJobRepo) MarkRunning(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok || rec.Status != model.JobStatusPending {
		return false, nil
	}

	now := m.Now()
	rec.Status = model.JobStatusRunning
	rec.StartedAt = &now
	rec.UpdatedAt = now
	return true, nil
}

// Complete transitions running -> completed and stores the result.
func (m *MemoryJobRepo) Complete(_ context.Context, id string, result []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok || rec.Status != model.JobStatusRunning {
		return false, nil
	}

	now := m.Now()
	rec.Status = model.JobStatusCompleted
	rec.Result = append([]byte(nil), result...)
	rec.Error = nil
	rec.CompletedAt = &now
	rec.UpdatedAt = now
	return true, nil
}

// Fail transitions running -> failed and stores the error message.
func (m *MemoryJobRepo) Fail(_ context.Context, id, errMsg string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok || rec.Status != model.JobStatusRunning {
		return false, nil
	}

	now := m.Now()
	rec.Status = model.JobStatusFailed
	rec.Error = &errMsg
	rec.Result = nil
	rec.CompletedAt = &now
	rec.UpdatedAt = now
	return true, nil
}

// Stats counts records per status.
func (m *MemoryJobRepo) Stats(_ context.Context) (*model.JobStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &model.JobStats{}
	for _, rec := range m.records {
		switch rec.Status {
		case model.JobStatusPending:
			stats.Pending++
		case model.JobStatusRunning:
			stats.Running++
		case model.JobStatusCompleted:
			stats.Completed++
		case model.JobStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

// ListPendingOlderThan returns pending records created before now-age,
// oldest first, up to limit.
func (m *MemoryJobRepo) ListPendingOlderThan(_ context.Context, age time.Duration, limit int) ([]*model.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.Now().Add(-age)
	var out []*model.JobRecord
	for _, rec := range m.records {
		if rec.Status == model.JobStatusPending && rec.CreatedAt.Before(cutoff) {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FailStaleRunningJobs implements core.ReaperRepository against memory.
func (m *MemoryJobRepo) FailStaleRunningJobs(_ context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	return m.failStale(model.JobStatusRunning, maxAge, batchSize, "handler crashed without updating status"), nil
}

// FailStalePendingJobs implements core.ReaperRepository against memory.
func (m *MemoryJobRepo) FailStalePendingJobs(_ context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	return m.failStale(model.JobStatusPending, maxAge, batchSize, "job expired before processing"), nil
}

func (m *MemoryJobRepo) failStale(status model.JobStatus, maxAge time.Duration, batchSize int, msg string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.Now().Add(-maxAge)
	var n int64
	for _, rec := range m.records {
		if batchSize > 0 && n >= int64(batchSize) {
			break
		}
		if rec.Status == status && rec.UpdatedAt.Before(cutoff) {
			now := m.Now()
			errMsg := msg
			rec.Status = model.JobStatusFailed
			rec.Error = &errMsg
			rec.CompletedAt = &now
			rec.UpdatedAt = now
			n++
		}
	}
	return n
}

// DeleteOldJobs removes terminal records older than the retention window.
func (m *MemoryJobRepo) DeleteOldJobs(_ context.Context, params core.DeleteOldJobsParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.Now().Add(-params.MaxAge)
	var n int64
	for id, rec := range m.records {
		if params.BatchSize > 0 && n >= int64(params.BatchSize) {
			break
		}
		if rec.Status.Terminal() && rec.UpdatedAt.Before(cutoff) {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

// Put inserts a record directly, for seeding test states.
func (m *MemoryJobRepo) Put(rec *model.JobRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = cloneRecord(rec)
}

// Len returns the number of stored records.
func (m *MemoryJobRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func cloneRecord(rec *model.JobRecord) *model.JobRecord {
	cp := *rec
	cp.Payload = append([]byte(nil), rec.Payload...)
	if rec.Result != nil {
		cp.Result = append([]byte(nil), rec.Result...)
	}
	if rec.Error != nil {
		e := *rec.Error
		cp.Error = &e
	}
	if rec.StartedAt != nil {
		ts := *rec.StartedAt
		cp.StartedAt = &ts
	}
	if rec.CompletedAt != nil {
		ts := *rec.CompletedAt
		cp.CompletedAt = &ts
	}
	return &cp
}
