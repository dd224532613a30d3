package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/erpai/verification-be/internal/domain"
	"github.com/jmoiron/sqlx"
)

// Storage handles all database operations for the worker
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// GetRequest retrieves a verification request by its ID
func (s *Storage) GetRequest(ctx context.Context, requestID string) (*domain.VerificationRequest, error) {
	query := `
		SELECT id, job_no, status, phase, request_timestamp, result_timestamp, discrepancies
		FROM verification_requests
		WHERE id = $1
	`

	var req domain.VerificationRequest
	err := s.db.GetContext(ctx, &req, query, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get verification request: %w", err)
	}

	return &req, nil
}

// ClaimRun claims both the request and the job for processing using
// optimistic locking. The request claim only succeeds while the row is
// still PENDING, so a redelivered first-phase task is detected instead of
// starting the run twice. The job claim fails while another run holds it;
// a missing job row surfaces as ErrJobNotFound, not as a busy job.
func (s *Storage) ClaimRun(ctx context.Context, requestID, jobNo string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		UPDATE verification_requests
		SET status = $1
		WHERE id = $2 AND status = $3
	`, domain.RequestStatusProcessing, requestID, domain.RequestStatusPending)
	if err != nil {
		return fmt.Errorf("failed to claim request: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		s.logger.Warn("Failed to claim request - already claimed or not found",
			slog.String("request_id", requestID),
		)
		return domain.ErrRequestAlreadyClaimed
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, last_processed_at = NOW()
		WHERE job_no = $2 AND status <> $1
	`, domain.JobStatusProcessing, jobNo)
	if err != nil {
		return fmt.Errorf("failed to claim job: %w", err)
	}
	rows, err = res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		var status string
		err := tx.GetContext(ctx, &status, `SELECT status FROM jobs WHERE job_no = $1`, jobNo)
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim job - no job record",
				slog.String("job_no", jobNo),
				slog.String("request_id", requestID),
			)
			return domain.ErrJobNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to check job row: %w", err)
		}
		s.logger.Warn("Failed to claim job - busy with another run",
			slog.String("job_no", jobNo),
			slog.String("request_id", requestID),
			slog.String("job_status", status),
		)
		return domain.ErrJobBusy
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit claim transaction: %w", err)
	}

	s.logger.Info("Run claimed successfully",
		slog.String("request_id", requestID),
		slog.String("job_no", jobNo),
	)

	return nil
}

// AdvancePhase records a completed phase and the discrepancies gathered so
// far. The next phase task is only published after this commit succeeds.
func (s *Storage) AdvancePhase(ctx context.Context, requestID string, phase int, discrepancies []string) error {
	payload, err := marshalDiscrepancies(discrepancies)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE verification_requests
		SET phase = $1, discrepancies = $2
		WHERE id = $3
	`, phase, payload, requestID)
	if err != nil {
		return fmt.Errorf("failed to advance phase: %w", err)
	}

	return nil
}

// TerminalUpdate describes one terminal status transition. The request
// row, the job row and the activity log entry move in a single
// transaction so a crash can never leave them disagreeing.
type TerminalUpdate struct {
	RequestID     string
	RequestStatus string
	Phase         int
	Discrepancies []string

	JobNo              string
	JobStatus          string // empty leaves the job row untouched
	VerificationResult string
	HasDiscrepancies   bool

	EventType        string
	EventDescription string
}

// workerIdentity is recorded on every activity log entry the worker writes.
const workerIdentity = "ai-verification-worker"

// CompleteRun commits a terminal state for a verification run.
func (s *Storage) CompleteRun(ctx context.Context, update TerminalUpdate) error {
	payload, err := marshalDiscrepancies(update.Discrepancies)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin terminal transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		UPDATE verification_requests
		SET status = $1, phase = $2, discrepancies = $3, result_timestamp = NOW()
		WHERE id = $4
	`, update.RequestStatus, update.Phase, payload, update.RequestID)
	if err != nil {
		return fmt.Errorf("failed to finalize request: %w", err)
	}

	if update.JobStatus != "" {
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs
			SET status = $1, verification_result = $2, has_discrepancies = $3, last_processed_at = NOW()
			WHERE job_no = $4
		`, update.JobStatus, update.VerificationResult, update.HasDiscrepancies, update.JobNo)
		if err != nil {
			return fmt.Errorf("failed to finalize job: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO activity_logs (timestamp, event_type, description, related_job_id, user_identifier)
		VALUES (NOW(), $1, $2, (SELECT id FROM jobs WHERE job_no = $3), $4)
	`, update.EventType, update.EventDescription, update.JobNo, workerIdentity)
	if err != nil {
		return fmt.Errorf("failed to write activity log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit terminal transaction: %w", err)
	}

	s.logger.Info("Run finalized",
		slog.String("request_id", update.RequestID),
		slog.String("job_no", update.JobNo),
		slog.String("request_status", update.RequestStatus),
		slog.String("job_status", update.JobStatus),
		slog.Int("discrepancies", len(update.Discrepancies)),
	)

	return nil
}

func marshalDiscrepancies(discrepancies []string) ([]byte, error) {
	if discrepancies == nil {
		discrepancies = []string{}
	}
	payload, err := json.Marshal(discrepancies)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal discrepancies: %w", err)
	}
	return payload, nil
}
