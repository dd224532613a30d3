package worker

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/erpai/verification-be/internal/classifier"
	"github.com/erpai/verification-be/internal/domain"
	"github.com/erpai/verification-be/internal/errclass"
)

// phaseClassify asks the document AI for a kind on every document whose
// filename pattern match came up empty. Documents the service cannot
// classify stay UNCLASSIFIED; a partial result is still usable because the
// later phases only need the kinds they operate on.
func (e *Executor) phaseClassify(ctx context.Context, req *domain.VerificationRequest, log *slog.Logger) error {
	docs, err := e.documents.ListUnclassified(ctx, req.JobNo)
	if err != nil {
		return domain.NewRetryableError(err)
	}

	if len(docs) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		for i := range docs {
			doc := docs[i]
			g.Go(func() error {
				callCtx, cancel := context.WithTimeout(gctx, e.classifyTimeout)
				defer cancel()

				result, err := errclass.DoValue(callCtx, e.retryer, "document classification", func(ctx context.Context) (*classifier.ClassificationResult, error) {
					return e.ai.Classify(ctx, req.JobNo, documentImages([]domain.JobDocument{doc}))
				})
				if err != nil {
					log.Warn("Document classification failed, leaving unclassified",
						slog.String("file_name", doc.FileName),
						slog.Any("error", err),
					)
					return nil
				}

				if result.DocumentType == "" || result.DocumentType == domain.DocKindUnclassified {
					log.Warn("Classifier returned no kind for document",
						slog.String("file_name", doc.FileName),
					)
					return nil
				}

				if err := e.documents.SetClassifiedType(gctx, doc.ID, result.DocumentType); err != nil {
					log.Error("Failed to persist classified kind",
						slog.String("file_name", doc.FileName),
						slog.Any("error", err),
					)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	// Promotion only touches rows still UNCLASSIFIED, so a redelivered
	// classify task is a no-op.
	if err := e.documents.PromoteClassified(ctx, req.JobNo); err != nil {
		return domain.NewRetryableError(err)
	}

	log.Info("Classification finished",
		slog.Int("reclassified", len(docs)),
	)
	return nil
}

// documentImages converts stored documents to transport form.
func documentImages(docs []domain.JobDocument) []classifier.DocumentImage {
	images := make([]classifier.DocumentImage, 0, len(docs))
	for _, doc := range docs {
		images = append(images, classifier.NewDocumentImage(doc.DocumentData, doc.ContentType))
	}
	return images
}
