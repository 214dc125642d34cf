package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/RezaEskandarii/jobfire/custom_errors"
	"github.com/RezaEskandarii/jobfire/internal/state"
	"github.com/RezaEskandarii/jobfire/internal/store"
	"github.com/RezaEskandarii/jobfire/types"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// New wires the three Postgres stores over one connection pool.
func New(db *sql.DB) store.Stores {
	return store.Stores{
		Jobs:       NewPostgresJobStore(db),
		Executions: NewPostgresExecutionStore(db),
		Logs:       NewPostgresJobLogStore(db),
	}
}

const jobColumns = `id, organization_id, created_by, name, type,
		       trigger_type, cron_expression, interval_minutes, scheduled_at,
		       config, timeout_ms, retry_count, retry_delay_ms, status,
		       last_executed_at, next_execution_at, tags, created_at, updated_at`

type PostgresJobStore struct {
	db *sql.DB
}

func NewPostgresJobStore(db *sql.DB) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*types.Job, error) {
	var (
		job         types.Job
		triggerType string
		cronExpr    sql.NullString
		interval    sql.NullInt64
		scheduledAt sql.NullTime
		config      []byte
		timeoutMs   int64
		delayMs     int64
		lastAt      sql.NullTime
		nextAt      sql.NullTime
		tags        []string
	)
	err := row.Scan(
		&job.ID, &job.OrganizationID, &job.CreatedBy, &job.Name, &job.Type,
		&triggerType, &cronExpr, &interval, &scheduledAt,
		&config, &timeoutMs, &job.RetryCount, &delayMs, &job.Status,
		&lastAt, &nextAt, pq.Array(&tags), &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	cols := types.TriggerColumns{Type: types.TriggerType(triggerType)}
	if cronExpr.Valid {
		cols.CronExpression = &cronExpr.String
	}
	if interval.Valid {
		m := int(interval.Int64)
		cols.IntervalMinutes = &m
	}
	if scheduledAt.Valid {
		cols.ScheduledAt = &scheduledAt.Time
	}
	job.Trigger, err = cols.ToTrigger()
	if err != nil {
		return nil, errors.Wrapf(err, "job %s has a corrupt trigger", job.ID)
	}

	job.Config = json.RawMessage(config)
	job.Timeout = time.Duration(timeoutMs) * time.Millisecond
	job.RetryDelay = time.Duration(delayMs) * time.Millisecond
	job.LastExecutedAt = nullTime(lastAt)
	job.NextExecutionAt = nullTime(nextAt)
	job.Tags = tags
	return &job, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func configOrEmpty(c json.RawMessage) []byte {
	if len(c) == 0 {
		return []byte("{}")
	}
	return c
}

func (r *PostgresJobStore) Insert(ctx context.Context, job *types.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Tags == nil {
		job.Tags = []string{}
	}
	cols := types.TriggerFields(job.Trigger)

	query := `
		INSERT INTO jobfire_schema.jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.OrganizationID, job.CreatedBy, job.Name, job.Type,
		string(cols.Type), cols.CronExpression, cols.IntervalMinutes, cols.ScheduledAt,
		configOrEmpty(job.Config), job.Timeout.Milliseconds(), job.RetryCount, job.RetryDelay.Milliseconds(), job.Status,
		job.LastExecutedAt, job.NextExecutionAt, pq.Array(job.Tags), job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert job")
	}
	return nil
}

func (r *PostgresJobStore) Update(ctx context.Context, job *types.Job) error {
	cols := types.TriggerFields(job.Trigger)
	job.UpdatedAt = time.Now().UTC()
	tags := job.Tags
	if tags == nil {
		tags = []string{}
	}
	query := `
	UPDATE jobfire_schema.jobs
	SET name = $1, type = $2,
	    trigger_type = $3, cron_expression = $4, interval_minutes = $5, scheduled_at = $6,
	    config = $7, timeout_ms = $8, retry_count = $9, retry_delay_ms = $10,
	    tags = $11, updated_at = $12
	WHERE id = $13;
	`
	res, err := r.db.ExecContext(ctx, query,
		job.Name, job.Type,
		string(cols.Type), cols.CronExpression, cols.IntervalMinutes, cols.ScheduledAt,
		configOrEmpty(job.Config), job.Timeout.Milliseconds(), job.RetryCount, job.RetryDelay.Milliseconds(),
		pq.Array(tags), job.UpdatedAt, job.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to update job %s", job.ID)
	}
	return requireAffected(res, "job", job.ID)
}

func (r *PostgresJobStore) FindByID(ctx context.Context, id string) (*types.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobfire_schema.jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, custom_errors.NewNotFound("job", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load job %s", id)
	}
	return job, nil
}

func (r *PostgresJobStore) FetchByStatus(ctx context.Context, status state.JobStatus, page int, pageSize int) (*types.PaginationResult[types.Job], error) {
	page, pageSize = types.NormalizePage(page, pageSize)
	offset := (page - 1) * pageSize

	var totalItems int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobfire_schema.jobs WHERE status = $1`, status).Scan(&totalItems)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count jobs")
	}

	// Ordered by creation so pages stay stable while next_execution_at is rewritten.
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobfire_schema.jobs
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3`, status, pageSize, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch jobs")
	}
	defer rows.Close()

	var jobs []types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return types.NewPaginationResult(jobs, totalItems, page, pageSize), nil
}

func (r *PostgresJobStore) UpdateStatus(ctx context.Context, id string, status state.JobStatus, next *time.Time) error {
	query := `
	UPDATE jobfire_schema.jobs
	SET status = $1, next_execution_at = $2, updated_at = now()
	WHERE id = $3;
	`
	res, err := r.db.ExecContext(ctx, query, status, next, id)
	if err != nil {
		return errors.Wrapf(err, "failed to set status of job %s", id)
	}
	return requireAffected(res, "job", id)
}

func (r *PostgresJobStore) SetNextExecution(ctx context.Context, id string, next *time.Time) error {
	query := `
	UPDATE jobfire_schema.jobs
	SET next_execution_at = $1
	WHERE id = $2 AND status = 'active';
	`
	_, err := r.db.ExecContext(ctx, query, next, id)
	return errors.Wrapf(err, "failed to set next execution of job %s", id)
}

func (r *PostgresJobStore) SetLastExecuted(ctx context.Context, id string, lastExecutedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE jobfire_schema.jobs
	SET last_executed_at = $1
	WHERE id = $2;
	`, lastExecutedAt, id)
	return errors.Wrapf(err, "failed to set last execution of job %s", id)
}

func (r *PostgresJobStore) UpdateStatusIf(ctx context.Context, id string, from, to state.JobStatus, next *time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
	UPDATE jobfire_schema.jobs
	SET status = $1, next_execution_at = $2, updated_at = now()
	WHERE id = $3 AND status = $4;
	`, to, next, id, from)
	if err != nil {
		return false, errors.Wrapf(err, "failed to move job %s from %s to %s", id, from, to)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func requireAffected(res sql.Result, resource, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return custom_errors.NewNotFound(resource, id)
	}
	return nil
}
