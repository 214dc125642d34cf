package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/RezaEskandarii/jobfire/custom_errors"
	"github.com/RezaEskandarii/jobfire/internal/state"
	"github.com/RezaEskandarii/jobfire/internal/store"
	"github.com/RezaEskandarii/jobfire/types"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

const executionColumns = `id, job_id, organization_id, parent_execution_id, attempt,
		       status, trigger_source, started_at, completed_at, error`

type PostgresExecutionStore struct {
	db *sql.DB
}

func NewPostgresExecutionStore(db *sql.DB) *PostgresExecutionStore {
	return &PostgresExecutionStore{db: db}
}

func scanExecution(row rowScanner) (*types.Execution, error) {
	var (
		e           types.Execution
		parentID    sql.NullString
		completedAt sql.NullTime
	)
	err := row.Scan(
		&e.ID, &e.JobID, &e.OrganizationID, &parentID, &e.Attempt,
		&e.Status, &e.TriggerSource, &e.StartedAt, &completedAt, &e.Error,
	)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		e.ParentExecutionID = &parentID.String
	}
	e.CompletedAt = nullTime(completedAt)
	return &e, nil
}

func (r *PostgresExecutionStore) Create(ctx context.Context, exec *types.Execution) error {
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	query := `
		INSERT INTO jobfire_schema.executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		exec.ID, exec.JobID, exec.OrganizationID, exec.ParentExecutionID, exec.Attempt,
		exec.Status, exec.TriggerSource, exec.StartedAt, exec.CompletedAt, exec.Error,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to create execution for job %s", exec.JobID)
	}
	return nil
}

func (r *PostgresExecutionStore) Complete(ctx context.Context, exec *types.Execution) error {
	if !exec.Status.Terminal() {
		return errors.Newf("execution %s: %s is not a terminal status", exec.ID, exec.Status)
	}
	query := `
	UPDATE jobfire_schema.executions
	SET status = $1, completed_at = $2, error = $3
	WHERE id = $4 AND status = 'running';
	`
	res, err := r.db.ExecContext(ctx, query, exec.Status, exec.CompletedAt, exec.Error, exec.ID)
	if err != nil {
		return errors.Wrapf(err, "failed to complete execution %s", exec.ID)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.Wrapf(store.ErrExecutionNotRunning, "execution %s", exec.ID)
	}
	return nil
}

func (r *PostgresExecutionStore) FindByID(ctx context.Context, id string) (*types.Execution, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM jobfire_schema.executions WHERE id = $1`, id)
	e, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, custom_errors.NewNotFound("execution", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load execution %s", id)
	}
	return e, nil
}

func (r *PostgresExecutionStore) ListByJob(ctx context.Context, jobID string, page int, pageSize int) (*types.PaginationResult[types.Execution], error) {
	page, pageSize = types.NormalizePage(page, pageSize)
	offset := (page - 1) * pageSize

	var totalItems int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobfire_schema.executions WHERE job_id = $1`, jobID).Scan(&totalItems)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count executions")
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+executionColumns+`
		FROM jobfire_schema.executions
		WHERE job_id = $1
		ORDER BY started_at DESC, id DESC
		LIMIT $2 OFFSET $3`, jobID, pageSize, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list executions")
	}
	defer rows.Close()

	var execs []types.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan execution")
		}
		execs = append(execs, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return types.NewPaginationResult(execs, totalItems, page, pageSize), nil
}

func (r *PostgresExecutionStore) CountRetries(ctx context.Context, originalID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobfire_schema.executions WHERE parent_execution_id = $1`, originalID).Scan(&n)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to count retries of %s", originalID)
	}
	return n, nil
}

func (r *PostgresExecutionStore) FailInterrupted(ctx context.Context, at time.Time, reason string) (int, error) {
	res, err := r.db.ExecContext(ctx, `
	UPDATE jobfire_schema.executions
	SET status = $1, completed_at = $2, error = $3
	WHERE status = $4;
	`, state.ExecutionFailed, at, reason, state.ExecutionRunning)
	if err != nil {
		return 0, errors.Wrap(err, "failed to fail interrupted executions")
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}
