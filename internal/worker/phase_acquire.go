package worker

import (
	"context"
	"log/slog"

	"github.com/erpai/verification-be/internal/domain"
	"github.com/erpai/verification-be/internal/erp"
	"github.com/erpai/verification-be/internal/errclass"
)

// phaseAcquire confirms the job exists in Business Central and downloads
// any attachments not yet stored locally. Download problems are not fatal
// here; the later phases judge the job on whatever documents exist.
func (e *Executor) phaseAcquire(ctx context.Context, req *domain.VerificationRequest, log *slog.Logger) error {
	card, err := errclass.DoValue(ctx, e.retryer, "job lookup", func(ctx context.Context) (*erp.JobCard, error) {
		return e.erp.FetchJob(ctx, req.JobNo)
	})
	if err != nil {
		// Existence is a sanity check, not a gate. Verification proceeds
		// on the stored documents when Business Central is unreachable.
		log.Warn("Could not confirm job exists in Business Central",
			slog.Any("error", err),
		)
	} else if card == nil {
		return errclass.NewBusinessErrorf("Job No: %s does not exist in Business Central", req.JobNo)
	}

	stored, err := e.acquirer.AcquireForJob(ctx, req.JobNo)
	if err != nil {
		log.Warn("Document acquisition failed, continuing with stored documents",
			slog.Any("error", err),
		)
		return nil
	}

	log.Info("Document acquisition finished",
		slog.Int("stored", stored),
	)
	return nil
}
