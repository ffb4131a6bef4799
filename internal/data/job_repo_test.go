package data_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recruitpro/recruitpro-jobs/internal/core"
	"github.com/recruitpro/recruitpro-jobs/internal/data"
	"github.com/recruitpro/recruitpro-jobs/internal/domain/model"
	"github.com/recruitpro/recruitpro-jobs/internal/testutil"
)

func newRepo(db *sql.DB) *data.JobRepo {
	return data.NewJobRepo(db, data.RepoConfig{})
}

func createJob(t *testing.T, repo *data.JobRepo, jobType model.JobType) *model.JobRecord {
	t.Helper()
	rec, err := repo.Create(context.Background(), &model.CreateJobRequest{
		Type:    jobType,
		Payload: json.RawMessage(`{"value":42}`),
	})
	require.NoError(t, err)
	return rec
}

func TestJobRepoCreateAndGet(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := newRepo(db)
		ctx := context.Background()

		rec := createJob(t, repo, model.JobTypeEcho)
		assert.NotEmpty(t, rec.ID)
		assert.Equal(t, model.JobStatusPending, rec.Status)
		assert.JSONEq(t, `{"value":42}`, string(rec.Payload))
		assert.Nil(t, rec.Result)
		assert.Nil(t, rec.Error)

		got, err := repo.GetByID(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, model.JobTypeEcho, got.Type)
	})
}

func TestJobRepoCreateValidation(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := newRepo(db)

		_, err := repo.Create(context.Background(), &model.CreateJobRequest{Type: model.JobTypeEcho})
		require.Error(t, err)

		_, err = repo.Create(context.Background(), nil)
		require.Error(t, err)
	})
}

func TestJobRepoGetByIDNotFound(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := newRepo(db)

		_, err := repo.GetByID(context.Background(), "00000000-0000-0000-0000-000000000000")
		require.ErrorIs(t, err, data.ErrJobNotFound)
	})
}

func TestJobRepoLifecycleComplete(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := newRepo(db)
		ctx := context.Background()
		rec := createJob(t, repo, model.JobTypeEcho)

		ok, err := repo.MarkRunning(ctx, rec.ID)
		require.NoError(t, err)
		require.True(t, ok)

		// Second MarkRunning is a guarded no-op.
		ok, err = repo.MarkRunning(ctx, rec.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = repo.Complete(ctx, rec.ID, []byte(`{"answer":42}`))
		require.NoError(t, err)
		require.True(t, ok)

		got, err := repo.GetByID(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCompleted, got.Status)
		assert.JSONEq(t, `{"answer":42}`, string(got.Result))
		assert.Nil(t, got.Error)
		assert.NotNil(t, got.StartedAt)
		assert.NotNil(t, got.CompletedAt)
	})
}

func TestJobRepoLifecycleFail(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := newRepo(db)
		ctx := context.Background()
		rec := createJob(t, repo, model.JobTypeEcho)

		ok, err := repo.MarkRunning(ctx, rec.ID)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = repo.Fail(ctx, rec.ID, "x")
		require.NoError(t, err)
		require.True(t, ok)

		got, err := repo.GetByID(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, got.Status)
		require.NotNil(t, got.Error)
		assert.Equal(t, "x", *got.Error)
		assert.Nil(t, got.Result)
	})
}

func TestJobRepoTerminalStatesAreMonotonic(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := newRepo(db)
		ctx := context.Background()
		rec := createJob(t, repo, model.JobTypeEcho)

		ok, err := repo.MarkRunning(ctx, rec.ID)
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = repo.Complete(ctx, rec.ID, []byte(`{}`))
		require.NoError(t, err)
		require.True(t, ok)

		// Completed records reject every further transition.
		ok, err = repo.Fail(ctx, rec.ID, "too late")
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = repo.Complete(ctx, rec.ID, []byte(`{"again":true}`))
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = repo.MarkRunning(ctx, rec.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := repo.GetByID(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCompleted, got.Status)
		assert.JSONEq(t, `{}`, string(got.Result))
	})
}

func TestJobRepoCompleteRequiresRunning(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := newRepo(db)
		rec := createJob(t, repo, model.JobTypeEcho)

		// Pending -> completed skips running and must be refused.
		ok, err := repo.Complete(context.Background(), rec.ID, []byte(`{}`))
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestJobRepoStats(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := newRepo(db)
		ctx := context.Background()

		createJob(t, repo, model.JobTypeEcho)
		running := createJob(t, repo, model.JobTypeScreeningSummary)
		completed := createJob(t, repo, model.JobTypeEcho)
		failed := createJob(t, repo, model.JobTypeEcho)

		for _, id := range []string{running.ID, completed.ID, failed.ID} {
			ok, err := repo.MarkRunning(ctx, id)
			require.NoError(t, err)
			require.True(t, ok)
		}
		_, err := repo.Complete(ctx, completed.ID, []byte(`{}`))
		require.NoError(t, err)
		_, err = repo.Fail(ctx, failed.ID, "x")
		require.NoError(t, err)

		stats, err := repo.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Pending)
		assert.Equal(t, 1, stats.Running)
		assert.Equal(t, 1, stats.Completed)
		assert.Equal(t, 1, stats.Failed)
	})
}

func TestJobRepoListPendingOlderThan(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := newRepo(db)
		ctx := context.Background()

		// created_at is set by the database, so age the row directly.
		old := createJob(t, repo, model.JobTypeEcho)
		_, err := db.ExecContext(ctx,
			`UPDATE jobs SET created_at = now() - interval '10 minutes' WHERE id = $1`, old.ID)
		require.NoError(t, err)
		fresh := createJob(t, repo, model.JobTypeEcho)

		got, err := repo.ListPendingOlderThan(ctx, 5*time.Minute, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, old.ID, got[0].ID)
		assert.NotEqual(t, fresh.ID, got[0].ID)
	})
}

func TestJobRepoCreateInTx(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := newRepo(db)
		ctx := context.Background()

		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)

		rec, err := repo.CreateInTx(ctx, tx, &model.CreateJobRequest{
			Type:    model.JobTypeOutreachEmail,
			Payload: json.RawMessage(`{"candidate_id":"c-1"}`),
		})
		require.NoError(t, err)
		require.NoError(t, tx.Commit())

		got, err := repo.GetByID(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusPending, got.Status)
	})
}

func TestJobRepoReaperSweeps(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := newRepo(db)
		ctx := context.Background()

		stuckRunning := createJob(t, repo, model.JobTypeEcho)
		ok, err := repo.MarkRunning(ctx, stuckRunning.ID)
		require.NoError(t, err)
		require.True(t, ok)
		_, err = db.ExecContext(ctx,
			`UPDATE jobs SET started_at = now() - interval '2 hours' WHERE id = $1`, stuckRunning.ID)
		require.NoError(t, err)

		stuckPending := createJob(t, repo, model.JobTypeEcho)
		_, err = db.ExecContext(ctx,
			`UPDATE jobs SET created_at = now() - interval '2 days' WHERE id = $1`, stuckPending.ID)
		require.NoError(t, err)

		n, err := repo.FailStaleRunningJobs(ctx, time.Hour, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = repo.FailStalePendingJobs(ctx, 24*time.Hour, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		got, err := repo.GetByID(ctx, stuckRunning.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, got.Status)
		require.NotNil(t, got.Error)
		assert.Equal(t, "handler crashed without updating status", *got.Error)

		// Retention: age the failed rows out and delete them.
		_, err = db.ExecContext(ctx,
			`UPDATE jobs SET completed_at = now() - interval '60 days' WHERE status = 'failed'`)
		require.NoError(t, err)

		n, err = repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
			MaxAge:    30 * 24 * time.Hour,
			BatchSize: 100,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})
}

func TestJobRepoReaperValidation(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := newRepo(db)
		ctx := context.Background()

		_, err := repo.FailStaleRunningJobs(ctx, time.Hour, 0)
		require.Error(t, err)

		_, err = repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{MaxAge: 0, BatchSize: 10})
		require.Error(t, err)
	})
}
