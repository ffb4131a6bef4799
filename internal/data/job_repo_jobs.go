package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/recruitpro/recruitpro-jobs/internal/data/pgxutil"
	"github.com/recruitpro/recruitpro-jobs/internal/domain/model"
)

// NotifyChannel is the Postgres NOTIFY channel signalled when a job row
// is inserted. Other processes can LISTEN on it instead of polling.
const NotifyChannel = "recruitpro_job_added"

// Create inserts a pending job record inside its own transaction and
// sends a pg_notify once the insert is visible. The row is committed
// before the caller enqueues the in-memory item, so a consumer can never
// observe an item whose record does not exist.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.JobRecord, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if validateErr := req.Validate(); validateErr != nil {
		return nil, validateErr
	}

	var rec *model.JobRecord
	if txErr := pgxutil.WithPgxTx(ctx, r.DB, func(tx pgx.Tx) error {
		var insertErr error
		rec, insertErr = insertJobInTx(ctx, tx, req)
		return insertErr
	}); txErr != nil {
		return nil, txErr
	}

	return rec, nil
}

// CreateInTx inserts a job record within an existing SQL transaction,
// for callers that create a job atomically with their own domain writes.
func (r *JobRepo) CreateInTx(
	ctx context.Context,
	sqlTx *sql.Tx,
	req *model.CreateJobRequest,
) (*model.JobRecord, error) {
	if sqlTx == nil {
		return nil, errors.New("transaction is required")
	}
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if validateErr := req.Validate(); validateErr != nil {
		return nil, validateErr
	}

	row := sqlTx.QueryRowContext(ctx, insertJobSQL, req.Type, []byte(req.Payload))
	rec, scanErr := scanJobFromRow(row)
	if scanErr != nil {
		return nil, dbError("collect job", scanErr)
	}

	if _, notifyErr := sqlTx.ExecContext(ctx,
		`SELECT pg_notify($1::text, $2::text)`, NotifyChannel, rec.ID); notifyErr != nil {
		return nil, dbError("send job notification", notifyErr)
	}

	return rec, nil
}

const insertJobSQL = `
  INSERT INTO jobs(type, status, payload)
  VALUES ($1, 'pending', $2)
  RETURNING ` + jobColumns

func insertJobInTx(ctx context.Context, tx pgx.Tx, req *model.CreateJobRequest) (*model.JobRecord, error) {
	rows, err := tx.Query(ctx, insertJobSQL, req.Type, []byte(req.Payload))
	if err != nil {
		return nil, dbError("insert job", err)
	}
	rec, collectErr := collectJobFromRows(rows)
	rows.Close()
	if collectErr != nil {
		return nil, dbError("collect job", collectErr)
	}

	if _, execErr := tx.Exec(ctx,
		`SELECT pg_notify($1::text, $2::text)`, NotifyChannel, rec.ID); execErr != nil {
		return nil, dbError("send job notification", execErr)
	}

	return rec, nil
}

// GetByID retrieves a job record by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.JobRecord, error) {
	var rec *model.JobRecord
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, qerr := pgxConn.Query(ctx, `
			SELECT `+jobColumns+`
			FROM jobs
			WHERE id = $1
		`, id)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		rec, qerr = collectJobFromRows(rows)
		return qerr
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, dbError("get job", err)
	}
	return rec, nil
}

// MarkRunning transitions a pending job to running. The status guard
// makes the call a no-op (false, nil) when the record was already picked
// up, re-enqueued after completion, or reaped.
func (r *JobRepo) MarkRunning(ctx context.Context, id string) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'running',
		    started_at = COALESCE(started_at, $2),
		    updated_at = $2
		WHERE id = $1 AND status = 'pending'
	`, id, currentTime)
	if err != nil {
		return false, dbError("mark job running", err)
	}

	return oneRowAffected(res)
}

// Complete marks a running job as completed and stores its result.
func (r *JobRepo) Complete(ctx context.Context, id string, result []byte) (bool, error) {
	if len(result) > 0 && !json.Valid(result) {
		return false, errors.New("job result must be valid JSON")
	}
	if len(result) == 0 {
		result = []byte(`null`)
	}

	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'completed',
		    result = $2,
		    error = NULL,
		    completed_at = $3,
		    updated_at = $3
		WHERE id = $1 AND status = 'running'
	`, id, result, currentTime)
	if err != nil {
		return false, dbError("complete job", err)
	}

	return oneRowAffected(res)
}

// Fail marks a running job as failed with the given error message.
func (r *JobRepo) Fail(ctx context.Context, id, errMsg string) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'failed',
		    error = $2,
		    result = NULL,
		    completed_at = $3,
		    updated_at = $3
		WHERE id = $1 AND status = 'running'
	`, id, errMsg, currentTime)
	if err != nil {
		return false, dbError("fail job", err)
	}

	return oneRowAffected(res)
}

// Stats returns record counts per status across all job types.
func (r *JobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'pending')   AS pending,
    count(*) FILTER (WHERE status = 'running')   AS running,
    count(*) FILTER (WHERE status = 'completed') AS completed,
    count(*) FILTER (WHERE status = 'failed')    AS failed
  FROM jobs
  `).Scan(
		&s.Pending,
		&s.Running,
		&s.Completed,
		&s.Failed,
	)
	if err != nil {
		return nil, dbError("get job stats", err)
	}
	return &s, nil
}

// ListPendingOlderThan returns pending records created before now-age,
// oldest first, up to limit. Startup reconciliation uses it to re-enqueue
// records whose in-memory queue item was lost to a restart.
func (r *JobRepo) ListPendingOlderThan(
	ctx context.Context,
	age time.Duration,
	limit int,
) ([]*model.JobRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	cutoff := r.timeProvider.Now().Add(-age).UTC()

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, dbError("list pending jobs", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []*model.JobRecord
	for rows.Next() {
		rec, scanErr := scanJobFromRow(rows)
		if scanErr != nil {
			return nil, dbError("scan pending job", scanErr)
		}
		out = append(out, rec)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, dbError("list pending jobs", rowsErr)
	}
	return out, nil
}

// WaitForNotification blocks until a job-added notification arrives or
// the context is done.
func (r *JobRepo) WaitForNotification(ctx context.Context) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	quoted := pgx.Identifier{NotifyChannel}.Sanitize()

	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", NotifyChannel, execErr)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "UNLISTEN "+quoted)
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}

// oneRowAffected converts an exec result into the guarded-transition
// (bool, error) convention.
func oneRowAffected(res sql.Result) (bool, error) {
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// collectJobFromRows collects a single job record from pgx rows.
func collectJobFromRows(rows pgx.Rows) (*model.JobRecord, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	rec, err := scanJobFromRow(rows)
	if err != nil {
		return nil, err
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}

	return rec, nil
}

type jobRowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	payload, result        []byte
	errMsg                 sql.NullString
	startedAt, completedAt sql.NullTime
}

func (d *jobRowData) scanInto(scanner jobRowScanner, rec *model.JobRecord) error {
	return scanner.Scan(
		&rec.ID,
		&rec.Type,
		&rec.Status,
		&d.payload,
		&d.result,
		&d.errMsg,
		&d.startedAt,
		&d.completedAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
}

func (d *jobRowData) apply(rec *model.JobRecord) {
	rec.Payload = cloneJSON(d.payload)
	if d.result != nil {
		rec.Result = append(json.RawMessage(nil), d.result...)
	}
	rec.Error = cloneNullableString(d.errMsg)
	rec.StartedAt = cloneNullableTime(d.startedAt)
	rec.CompletedAt = cloneNullableTime(d.completedAt)
}

func scanJobFromRow(scanner jobRowScanner) (*model.JobRecord, error) {
	rec := &model.JobRecord{}
	var data jobRowData
	if err := data.scanInto(scanner, rec); err != nil {
		return nil, err
	}

	data.apply(rec)
	return rec, nil
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
