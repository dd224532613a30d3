package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/erpai/verification-be/internal/domain"
	"github.com/erpai/verification-be/internal/errclass"
	"github.com/erpai/verification-be/internal/idcache"
)

// identifierSpec couples a document kind with the identifier the
// extraction service should return for it.
type identifierSpec struct {
	kind        string
	displayName string
	key         string
	missingMsg  string
}

var identifierSpecs = []identifierSpec{
	{
		kind:        domain.DocKindSalesQuote,
		displayName: "Sales Quote",
		key:         domain.IdentifierSalesQuoteNo,
		missingMsg:  "Cannot find Sales Quote Number from Sales Quote document",
	},
	{
		kind:        domain.DocKindProformaInvoice,
		displayName: "Proforma Invoice",
		key:         domain.IdentifierProformaInvoiceNo,
		missingMsg:  "Cannot find Tax Invoice Number from Proforma Invoice document - please check Proforma Invoice",
	},
}

// phaseExtract pulls the cross-reference identifiers out of the stored
// documents. It reports done=true when a required identifier is missing,
// which ends the run with findings instead of reconciling.
func (e *Executor) phaseExtract(ctx context.Context, req *domain.VerificationRequest, discrepancies *[]string, log *slog.Logger) (bool, error) {
	ids, err := e.cache.GetOrCompute(ctx, req.ID, func(ctx context.Context) (idcache.Identifiers, error) {
		return e.computeIdentifiers(ctx, req, discrepancies, log)
	})
	if err != nil {
		return false, err
	}

	done := ids[domain.IdentifierSalesQuoteNo] == "" || ids[domain.IdentifierProformaInvoiceNo] == ""

	log.Info("Identifier extraction finished",
		slog.String("sales_quote_no", ids[domain.IdentifierSalesQuoteNo]),
		slog.String("proforma_invoice_no", ids[domain.IdentifierProformaInvoiceNo]),
		slog.Bool("complete", !done),
	)
	return done, nil
}

// computeIdentifiers runs the extraction service per document kind. Absent
// documents and unreadable identifiers become findings, not errors; the
// run still ends in a committed verdict the operator can act on.
func (e *Executor) computeIdentifiers(ctx context.Context, req *domain.VerificationRequest, discrepancies *[]string, log *slog.Logger) (idcache.Identifiers, error) {
	out := idcache.Identifiers{}

	for _, spec := range identifierSpecs {
		docs, err := e.documents.GetByKind(ctx, req.JobNo, spec.kind)
		if err != nil {
			return nil, domain.NewRetryableError(err)
		}
		if len(docs) == 0 {
			*discrepancies = append(*discrepancies, fmt.Sprintf("%s document not found or is empty for Job No: %s", spec.displayName, req.JobNo))
			continue
		}

		ids, err := errclass.DoValue(ctx, e.retryer, "identifier extraction", func(ctx context.Context) (map[string]string, error) {
			return e.ai.ExtractIdentifiers(ctx, req.JobNo, spec.kind, documentImages(docs))
		})
		if err != nil {
			return nil, err
		}

		value := strings.TrimSpace(ids[spec.key])
		if value == "" || strings.EqualFold(value, "Not found") {
			log.Warn("Extraction service could not read identifier",
				slog.String("document_kind", spec.kind),
				slog.String("identifier", spec.key),
			)
			*discrepancies = append(*discrepancies, spec.missingMsg)
			continue
		}
		out[spec.key] = value

		if name := strings.TrimSpace(ids[domain.IdentifierCustomerName]); name != "" && !strings.EqualFold(name, "Not found") {
			out[domain.IdentifierCustomerName] = name
		}
	}

	return out, nil
}
