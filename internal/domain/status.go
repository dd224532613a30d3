package domain

// Verification request status constants
const (
	RequestStatusPending    = "PENDING"
	RequestStatusProcessing = "PROCESSING"
	RequestStatusCompleted  = "COMPLETED"
	RequestStatusFailed     = "FAILED"
)

// Job status constants
const (
	JobStatusPending    = "PENDING"
	JobStatusProcessing = "PROCESSING"
	JobStatusVerified   = "VERIFIED"
	JobStatusFlagged    = "FLAGGED"
	JobStatusError      = "ERROR"
	JobStatusSkipped    = "SKIPPED"
)

// Document kind constants. Acquired files start as UNCLASSIFIED and are
// promoted once the classifier has assigned a kind.
const (
	DocKindSalesQuote      = "SalesQuote"
	DocKindProformaInvoice = "ProformaInvoice"
	DocKindJobConsumption  = "JobConsumption"
	DocKindUnclassified    = "UNCLASSIFIED"
)

// Workflow phases. Each phase runs in its own unit of work; the next phase
// is scheduled as a queue task only after the previous one committed.
const (
	PhaseAcquire   = 1
	PhaseClassify  = 2
	PhaseExtract   = 3
	PhaseReconcile = 4
)

// PhaseName returns a human-readable name for a phase number.
func PhaseName(phase int) string {
	switch phase {
	case 0:
		return "pending"
	case PhaseAcquire:
		return "acquire"
	case PhaseClassify:
		return "classify"
	case PhaseExtract:
		return "extract"
	case PhaseReconcile:
		return "reconcile"
	default:
		return "unknown"
	}
}

// Activity log event types
const (
	EventJobProcessed     = "JOB_PROCESSED"
	EventError            = "GENERAL_ERROR"
	EventERPUpdateSuccess = "ERP_UPDATE_SUCCESS"
	EventERPUpdateFailure = "ERP_UPDATE_FAILURE"
)

// Identifier keys returned by the extraction service.
const (
	IdentifierSalesQuoteNo      = "salesQuoteNo"
	IdentifierProformaInvoiceNo = "proformaInvoiceNo"
	IdentifierCustomerName      = "customerName"
)
