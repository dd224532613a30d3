package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/erpai/verification-be/internal/classifier"
	"github.com/erpai/verification-be/internal/domain"
	"github.com/erpai/verification-be/internal/erp"
	"github.com/erpai/verification-be/internal/errclass"
	"github.com/erpai/verification-be/internal/idcache"
	"github.com/erpai/verification-be/internal/worker/storage"
)

// Operator-visible verdict strings. These are load-bearing: downstream
// tooling and the ERP verification comment match on them.
const (
	verifiedComment       = "Verified by AI LLM Service - All documents passed verification"
	inconclusiveFinding   = "Info: Document checks found no issues, but full Business Central validation was incomplete."
	pushFailedNoFirstDate = "Failed to update BC because job doesn't have first check date"
	pushFailedAuth        = "Failed to update BC due to authentication error"
	pushFailedPrefix      = "Warning: Verification passed, but failed to update Business Central status: "
)

// phaseReconcile checks every document kind against the ERP records its
// extracted identifier points at, then commits the verdict. This phase
// always ends the run; there is no next task to publish.
func (e *Executor) phaseReconcile(ctx context.Context, req *domain.VerificationRequest, discrepancies *[]string, log *slog.Logger) error {
	ids, err := e.cache.GetOrCompute(ctx, req.ID, func(ctx context.Context) (idcache.Identifiers, error) {
		// Cold cache after a restart or a hand-off to another worker.
		return e.computeIdentifiers(ctx, req, discrepancies, log)
	})
	if err != nil {
		return e.handlePhaseFailure(ctx, req, domain.PhaseReconcile, *discrepancies, err, log)
	}

	quoteNo := ids[domain.IdentifierSalesQuoteNo]
	invoiceNo := ids[domain.IdentifierProformaInvoiceNo]
	if quoteNo == "" || invoiceNo == "" {
		// The recomputation could not recover identifiers the previous
		// phase saw. The findings already explain which one is missing.
		return e.finishFlagged(ctx, req, domain.PhaseReconcile, *discrepancies, log)
	}

	data, err := errclass.DoValue(ctx, e.retryer, "ERP data fetch", func(ctx context.Context) (*erp.VerificationData, error) {
		return e.erp.FetchAllVerificationData(ctx, quoteNo, invoiceNo, req.JobNo)
	})
	if err != nil {
		return e.handlePhaseFailure(ctx, req, domain.PhaseReconcile, *discrepancies, err, log)
	}

	checksPerformed := false

	quoteChecked, err := e.verifyKind(ctx, req, domain.DocKindSalesQuote, discrepancies, log, func() (map[string]any, string) {
		if data.Quote == nil {
			return nil, fmt.Sprintf("Sales Quote: ERP data not found for extracted number: %s", quoteNo)
		}
		return map[string]any{
			"salesQuote":      data.Quote,
			"salesQuoteLines": data.QuoteLines,
		}, ""
	})
	if err != nil {
		return e.handlePhaseFailure(ctx, req, domain.PhaseReconcile, *discrepancies, err, log)
	}
	checksPerformed = checksPerformed || quoteChecked

	invoiceChecked, err := e.verifyKind(ctx, req, domain.DocKindProformaInvoice, discrepancies, log, func() (map[string]any, string) {
		if data.Invoice == nil {
			return nil, fmt.Sprintf("Proforma Invoice: ERP data not found for extracted number: %s", invoiceNo)
		}
		return map[string]any{
			"salesInvoice":      data.Invoice,
			"salesInvoiceLines": data.InvoiceLines,
		}, ""
	})
	if err != nil {
		return e.handlePhaseFailure(ctx, req, domain.PhaseReconcile, *discrepancies, err, log)
	}
	checksPerformed = checksPerformed || invoiceChecked

	// Ledger absence is advisory. Shipment paperwork often lands before
	// the consumption entries post, so it must not flag the job alone.
	if len(data.LedgerEntries) == 0 {
		log.Warn("No job ledger entries found, skipping consumption check")
	} else {
		consumptionChecked, err := e.verifyKind(ctx, req, domain.DocKindJobConsumption, discrepancies, log, func() (map[string]any, string) {
			return map[string]any{
				"jobLedgerEntries": data.LedgerEntries,
			}, ""
		})
		if err != nil {
			return e.handlePhaseFailure(ctx, req, domain.PhaseReconcile, *discrepancies, err, log)
		}
		checksPerformed = checksPerformed || consumptionChecked
	}

	return e.commitVerdict(ctx, req, *discrepancies, checksPerformed, log)
}

// verifyKind runs verification for one document kind. The erpData callback
// supplies the records to check against, or an absence finding when the
// ERP has no record for the extracted identifier. Returns whether a check
// actually ran.
func (e *Executor) verifyKind(ctx context.Context, req *domain.VerificationRequest, kind string, discrepancies *[]string, log *slog.Logger, erpData func() (map[string]any, string)) (bool, error) {
	docs, err := e.documents.GetByKind(ctx, req.JobNo, kind)
	if err != nil {
		return false, domain.NewRetryableError(err)
	}
	if len(docs) == 0 {
		return false, nil
	}

	payload, absence := erpData()
	if absence != "" {
		*discrepancies = append(*discrepancies, absence)
		return false, nil
	}

	result, err := errclass.DoValue(ctx, e.retryer, "document verification", func(ctx context.Context) (*classifier.VerificationResult, error) {
		return e.ai.Verify(ctx, req.JobNo, kind, documentImages(docs), payload)
	})
	if err != nil {
		return false, err
	}

	for _, d := range result.Discrepancies {
		*discrepancies = append(*discrepancies, formatDiscrepancy(d))
	}

	log.Info("Document kind verified",
		slog.String("document_kind", kind),
		slog.Int("discrepancies", len(result.Discrepancies)),
		slog.Float64("confidence", result.OverallConfidence),
	)
	return true, nil
}

func formatDiscrepancy(d classifier.Discrepancy) string {
	return fmt.Sprintf("%s: Document value '%s' does not match ERP value '%s' (Severity: %s)",
		d.FieldName, d.DocumentValue, d.ERPValue, d.Severity)
}

// commitVerdict maps the gathered findings to the terminal state. A clean
// run with real checks behind it is VERIFIED and pushed to the ERP; a
// clean run without checks is inconclusive and flagged for a human.
func (e *Executor) commitVerdict(ctx context.Context, req *domain.VerificationRequest, discrepancies []string, checksPerformed bool, log *slog.Logger) error {
	if len(discrepancies) == 0 && checksPerformed {
		return e.finishVerified(ctx, req, discrepancies, log)
	}

	if len(discrepancies) == 0 {
		discrepancies = append(discrepancies, inconclusiveFinding)
	}

	return e.finishFlagged(ctx, req, domain.PhaseReconcile, discrepancies, log)
}

// finishVerified pushes the verdict to Business Central and commits
// VERIFIED locally. The push is best-effort: its failure is recorded as a
// warning but never demotes a passed verification.
func (e *Executor) finishVerified(ctx context.Context, req *domain.VerificationRequest, discrepancies []string, log *slog.Logger) error {
	eventType := domain.EventERPUpdateSuccess
	eventDesc := fmt.Sprintf("Verification of job %s passed, Business Central updated", req.JobNo)

	pushErr := e.retryer.Do(ctx, "ERP verification update", func(ctx context.Context) error {
		return e.erp.UpdateVerificationFields(ctx, req.JobNo, verifiedComment)
	})
	if pushErr != nil {
		warning := pushFailureMessage(pushErr)
		log.Error("Failed to push verification result to Business Central",
			slog.Any("error", pushErr),
		)
		discrepancies = append(discrepancies, warning)
		eventType = domain.EventERPUpdateFailure
		eventDesc = fmt.Sprintf("Verification of job %s passed, Business Central update failed: %s", req.JobNo, warning)
	}

	update := storage.TerminalUpdate{
		RequestID:          req.ID,
		RequestStatus:      domain.RequestStatusCompleted,
		Phase:              domain.PhaseReconcile,
		Discrepancies:      discrepancies,
		JobNo:              req.JobNo,
		JobStatus:          domain.JobStatusVerified,
		VerificationResult: verifiedComment,
		HasDiscrepancies:   false,
		EventType:          eventType,
		EventDescription:   eventDesc,
	}
	if err := e.store.CompleteRun(ctx, update); err != nil {
		return domain.NewRetryableError(err)
	}
	e.cache.Drop(req.ID)

	log.Info("Run completed, job verified")
	return nil
}

// pushFailureMessage maps known Business Central rejections to their
// operator-facing warnings.
func pushFailureMessage(err error) string {
	cause := strings.ToLower(causeText(err))
	switch {
	case strings.Contains(cause, "1st check date must have a value"):
		return pushFailedNoFirstDate
	case strings.Contains(cause, "unauthorized"):
		return pushFailedAuth
	default:
		return pushFailedPrefix + err.Error()
	}
}

// causeText flattens the error chain so status-body detail from the ERP
// stays visible to the matcher even after classification wrapping.
func causeText(err error) string {
	var b strings.Builder
	for ; err != nil; err = errorsUnwrap(err) {
		b.WriteString(err.Error())
		b.WriteString("; ")
	}
	return b.String()
}

func errorsUnwrap(err error) error {
	u, ok := err.(interface{ Unwrap() error })
	if !ok {
		return nil
	}
	return u.Unwrap()
}
