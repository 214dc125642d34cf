package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/RezaEskandarii/jobfire/types"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

type PostgresJobLogStore struct {
	db *sql.DB
}

func NewPostgresJobLogStore(db *sql.DB) *PostgresJobLogStore {
	return &PostgresJobLogStore{db: db}
}

func (r *PostgresJobLogStore) Append(ctx context.Context, entry *types.JobLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobfire_schema.job_logs (id, job_id, organization_id, execution_id, level, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.JobID, entry.OrganizationID, entry.ExecutionID, entry.Level, entry.Message, entry.CreatedAt)
	return errors.Wrapf(err, "failed to append log for job %s", entry.JobID)
}

func (r *PostgresJobLogStore) ListByJob(ctx context.Context, jobID string, page int, pageSize int) (*types.PaginationResult[types.JobLog], error) {
	page, pageSize = types.NormalizePage(page, pageSize)
	offset := (page - 1) * pageSize

	var totalItems int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobfire_schema.job_logs WHERE job_id = $1`, jobID).Scan(&totalItems)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count job logs")
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, job_id, organization_id, execution_id, level, message, created_at
		FROM jobfire_schema.job_logs
		WHERE job_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, jobID, pageSize, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list job logs")
	}
	defer rows.Close()

	var logs []types.JobLog
	for rows.Next() {
		var (
			l      types.JobLog
			execID sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.JobID, &l.OrganizationID, &execID, &l.Level, &l.Message, &l.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan job log")
		}
		if execID.Valid {
			l.ExecutionID = &execID.String
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return types.NewPaginationResult(logs, totalItems, page, pageSize), nil
}
