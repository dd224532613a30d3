package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/erpai/verification-be/internal/domain"
	"github.com/erpai/verification-be/shared/postgresql"
)

type Storage struct {
	pg *postgresql.Client
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		pg: pg,
		db: pg.GetDB(),
	}
}

// CreateRequest creates a PENDING verification request and makes sure the
// job row exists, in one transaction. The phase-1 task is only published
// after this commit, so the worker always finds the row it was told about.
func (s *Storage) CreateRequest(ctx context.Context, jobNo string) (*domain.VerificationRequest, error) {
	req := &domain.VerificationRequest{
		ID:               uuid.New().String(),
		JobNo:            jobNo,
		Status:           domain.RequestStatusPending,
		Phase:            0,
		RequestTimestamp: time.Now().UTC(),
		Discrepancies:    "[]",
	}

	err := s.pg.WithinTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO jobs (job_no, status)
			VALUES ($1, $2)
			ON CONFLICT (job_no) DO NOTHING
		`, jobNo, domain.JobStatusPending)
		if err != nil {
			return fmt.Errorf("failed to upsert job: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO verification_requests (id, job_no, status, phase, request_timestamp, discrepancies)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, req.ID, req.JobNo, req.Status, req.Phase, req.RequestTimestamp, req.Discrepancies)
		if err != nil {
			return fmt.Errorf("failed to create verification request: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return req, nil
}

func (s *Storage) GetRequest(ctx context.Context, requestID string) (*domain.VerificationRequest, error) {
	var req domain.VerificationRequest
	query := `
		SELECT id, job_no, status, phase, request_timestamp, result_timestamp, discrepancies
		FROM verification_requests
		WHERE id = $1
	`

	err := s.db.GetContext(ctx, &req, query, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get verification request: %w", err)
	}

	return &req, nil
}

// LatestRequestByJob returns the most recent verification request for a
// job number.
func (s *Storage) LatestRequestByJob(ctx context.Context, jobNo string) (*domain.VerificationRequest, error) {
	var req domain.VerificationRequest
	query := `
		SELECT id, job_no, status, phase, request_timestamp, result_timestamp, discrepancies
		FROM verification_requests
		WHERE job_no = $1
		ORDER BY request_timestamp DESC, id DESC
		LIMIT 1
	`

	err := s.db.GetContext(ctx, &req, query, jobNo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get latest verification request: %w", err)
	}

	return &req, nil
}

func (s *Storage) GetJob(ctx context.Context, jobNo string) (*domain.Job, error) {
	var job domain.Job
	query := `
		SELECT id, job_no, status, last_processed_at, verification_result, has_discrepancies
		FROM jobs
		WHERE job_no = $1
	`

	err := s.db.GetContext(ctx, &job, query, jobNo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

type JobFilter struct {
	Status   string
	PageSize int
	Cursor   *JobCursor
}

type JobCursor struct {
	ID    int64
	JobNo string
}

func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `
        SELECT id, job_no, status, last_processed_at, verification_result, has_discrepancies
        FROM jobs
        WHERE 1=1
    `
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND id < $%d", argIdx)
		args = append(args, filter.Cursor.ID)
		argIdx++
	}

	// Order by id DESC for consistent pagination
	query += " ORDER BY id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []domain.Job
	err := s.db.SelectContext(ctx, &jobs, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// ActivityEntry is one audit row joined with its job number.
type ActivityEntry struct {
	Timestamp      time.Time `db:"timestamp"`
	EventType      string    `db:"event_type"`
	Description    string    `db:"description"`
	JobNo          string    `db:"job_no"`
	UserIdentifier string    `db:"user_identifier"`
}

// ListActivity returns the newest audit entries, optionally scoped to one
// job number.
func (s *Storage) ListActivity(ctx context.Context, jobNo string, limit int) ([]ActivityEntry, error) {
	query := `
		SELECT a.timestamp, a.event_type, a.description,
		       COALESCE(j.job_no, '') AS job_no, a.user_identifier
		FROM activity_logs a
		LEFT JOIN jobs j ON j.id = a.related_job_id
	`
	args := []interface{}{}
	argIdx := 1

	if jobNo != "" {
		query += fmt.Sprintf(" WHERE j.job_no = $%d", argIdx)
		args = append(args, jobNo)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY a.timestamp DESC, a.id DESC LIMIT $%d", argIdx)
	args = append(args, limit)

	var entries []ActivityEntry
	err := s.db.SelectContext(ctx, &entries, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}

	return entries, nil
}
