// Package docstore persists acquired document files and tracks their
// declared and classified kinds across the workflow phases.
package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/erpai/verification-be/internal/domain"
	"github.com/erpai/verification-be/shared/postgresql"
)

// Store provides access to the job_documents table.
type Store struct {
	db     *postgresql.Client
	logger *slog.Logger
}

// NewStore creates a document store.
func NewStore(db *postgresql.Client, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Insert stores a newly acquired document.
func (s *Store) Insert(ctx context.Context, doc *domain.JobDocument) error {
	query := `
		INSERT INTO job_documents (job_no, document_type, file_name, content_type, document_data, source_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id`

	if err := s.db.GetContext(ctx, &doc.ID, query,
		doc.JobNo, doc.DocumentType, doc.FileName, doc.ContentType, doc.DocumentData, doc.SourceURL,
	); err != nil {
		return fmt.Errorf("insert job document: %w", err)
	}

	s.logger.Info("Stored job document",
		slog.String("job_no", doc.JobNo),
		slog.String("document_type", doc.DocumentType),
		slog.String("file_name", doc.FileName),
		slog.Int("size", len(doc.DocumentData)),
	)

	return nil
}

// KindExists reports whether the job already has a document of the
// given kind, declared or classified.
func (s *Store) KindExists(ctx context.Context, jobNo, kind string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM job_documents
			WHERE job_no = $1 AND (document_type = $2 OR classified_document_type = $2)
		)`

	if err := s.db.GetContext(ctx, &exists, query, jobNo, kind); err != nil {
		return false, fmt.Errorf("check document kind: %w", err)
	}
	return exists, nil
}

// FileExists reports whether a file with this name was already stored
// for the job, regardless of kind.
func (s *Store) FileExists(ctx context.Context, jobNo, fileName string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM job_documents WHERE job_no = $1 AND file_name = $2)`

	if err := s.db.GetContext(ctx, &exists, query, jobNo, fileName); err != nil {
		return false, fmt.Errorf("check document file: %w", err)
	}
	return exists, nil
}

// ListUnclassified returns documents still waiting for classification.
func (s *Store) ListUnclassified(ctx context.Context, jobNo string) ([]domain.JobDocument, error) {
	var docs []domain.JobDocument
	query := `
		SELECT * FROM job_documents
		WHERE job_no = $1 AND document_type = $2 AND classified_document_type IS NULL
		ORDER BY id`

	if err := s.db.SelectContext(ctx, &docs, query, jobNo, domain.DocKindUnclassified); err != nil {
		return nil, fmt.Errorf("list unclassified documents: %w", err)
	}
	return docs, nil
}

// GetByKind returns the documents of one kind for a job, matching the
// declared kind or the classified kind.
func (s *Store) GetByKind(ctx context.Context, jobNo, kind string) ([]domain.JobDocument, error) {
	var docs []domain.JobDocument
	query := `
		SELECT * FROM job_documents
		WHERE job_no = $1 AND (document_type = $2 OR classified_document_type = $2)
		ORDER BY id`

	if err := s.db.SelectContext(ctx, &docs, query, jobNo, kind); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get documents by kind: %w", err)
	}
	return docs, nil
}

// SetClassifiedType records the classifier's verdict for one document.
func (s *Store) SetClassifiedType(ctx context.Context, id int64, kind string) error {
	query := `UPDATE job_documents SET classified_document_type = $2 WHERE id = $1`

	if err := s.db.ExecContext(ctx, query, id, kind); err != nil {
		return fmt.Errorf("set classified document type: %w", err)
	}
	return nil
}

// PromoteClassified copies the classified kind into the declared kind
// for every document still declared UNCLASSIFIED. Running it twice is a
// no-op.
func (s *Store) PromoteClassified(ctx context.Context, jobNo string) error {
	query := `
		UPDATE job_documents
		SET document_type = classified_document_type
		WHERE job_no = $1 AND document_type = $2 AND classified_document_type IS NOT NULL`

	if err := s.db.ExecContext(ctx, query, jobNo, domain.DocKindUnclassified); err != nil {
		return fmt.Errorf("promote classified documents: %w", err)
	}

	s.logger.Debug("Promoted classified documents", slog.String("job_no", jobNo))
	return nil
}
