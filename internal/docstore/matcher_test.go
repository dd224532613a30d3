package docstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/erpai/verification-be/internal/domain"
)

func TestMatchKind(t *testing.T) {
	tests := []struct {
		fileName string
		want     string
	}{
		{"Sales Quote_J100.pdf", domain.DocKindSalesQuote},
		{"QUOTATION-2024.pdf", domain.DocKindSalesQuote},
		{"sq_0042.png", domain.DocKindSalesQuote},
		{"Proforma Invoice_J100.pdf", domain.DocKindProformaInvoice},
		{"TAX INVOICE 441.jpg", domain.DocKindProformaInvoice},
		{"jOB SHIPMENT_124.pdf", domain.DocKindJobConsumption},
		{"consumption-report.pdf", domain.DocKindJobConsumption},
		{"readme.txt", domain.DocKindUnclassified},
		{"", domain.DocKindUnclassified},
	}

	for _, tt := range tests {
		t.Run(tt.fileName, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchKind(tt.fileName))
		})
	}
}

func TestMatchKindOrdering(t *testing.T) {
	// A name matching both quote and invoice keywords resolves to quote
	assert.Equal(t, domain.DocKindSalesQuote, MatchKind("quote_invoice.pdf"))
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "application/pdf", ContentTypeFor("Sales Quote.PDF"))
	assert.Equal(t, "image/png", ContentTypeFor("scan.png"))
	assert.Equal(t, "image/jpeg", ContentTypeFor("scan.JPEG"))
	assert.Equal(t, "image/jpeg", ContentTypeFor("scan.jpg"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("archive.zip"))
}

func TestFileNameFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://host.example.com/sites/docs/Sales%20Quote_J100.pdf", "Sales Quote_J100.pdf"},
		{"https://host.example.com/a/b/c/invoice.pdf?web=1", "invoice.pdf"},
		{"https://host.example.com/", "unknown_file"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, fileNameFromURL(tt.url), tt.url)
	}
}

func TestCleanURL(t *testing.T) {
	assert.Equal(t, "", cleanURL("   "))
	assert.Equal(t, "", cleanURL("not-a-link"))
	assert.Equal(t,
		"https://host/jOB%20SHIPMENT_124.pdf",
		cleanURL(" https://host/jOB%2520SHIPMENT_124.pdf "),
	)
}
