package docstore

import (
	"regexp"
	"strings"

	"github.com/erpai/verification-be/internal/domain"
)

// Filename patterns used to assign a declared kind at acquisition time.
// Order matters: quote patterns win over invoice patterns, which win
// over consumption patterns.
var (
	salesQuotePattern     = regexp.MustCompile(`(?i).*sales.*quote.*|.*quote.*|.*SQ.*|.*Sales.*|.*Quotation.*`)
	proformaPattern       = regexp.MustCompile(`(?i).*proforma.*invoice.*|.*invoice.*|.*PI.*|.*Proforma.*`)
	jobConsumptionPattern = regexp.MustCompile(`(?i).*job.*shipment.*|.*job.*consumption.*|.*shipment.*|.*JC.*|.*Job.*|.*Consumption.*`)
)

// MatchKind maps a file name to a declared document kind. Files that
// match nothing come back UNCLASSIFIED and wait for the classifier.
func MatchKind(fileName string) string {
	switch {
	case salesQuotePattern.MatchString(fileName):
		return domain.DocKindSalesQuote
	case proformaPattern.MatchString(fileName):
		return domain.DocKindProformaInvoice
	case jobConsumptionPattern.MatchString(fileName):
		return domain.DocKindJobConsumption
	}

	// Looser keyword fallback for names the patterns miss
	lower := strings.ToLower(fileName)
	switch {
	case strings.Contains(lower, "quote") || strings.Contains(lower, "sq") || strings.Contains(lower, "sales"):
		return domain.DocKindSalesQuote
	case strings.Contains(lower, "invoice") || strings.Contains(lower, "pi") || strings.Contains(lower, "proforma"):
		return domain.DocKindProformaInvoice
	case strings.Contains(lower, "job") || strings.Contains(lower, "jc") ||
		strings.Contains(lower, "shipment") || strings.Contains(lower, "consumption"):
		return domain.DocKindJobConsumption
	}

	return domain.DocKindUnclassified
}

// ContentTypeFor guesses the MIME type from the file extension.
func ContentTypeFor(fileName string) string {
	lower := strings.ToLower(fileName)
	switch {
	case strings.HasSuffix(lower, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
