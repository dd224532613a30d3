package domain

import "time"

// VerificationRequest is one triggered run of the verification workflow.
type VerificationRequest struct {
	ID               string     `db:"id"`
	JobNo            string     `db:"job_no"`
	Status           string     `db:"status"`
	Phase            int        `db:"phase"`
	RequestTimestamp time.Time  `db:"request_timestamp"`
	ResultTimestamp  *time.Time `db:"result_timestamp"`
	Discrepancies    string     `db:"discrepancies"` // JSON array of strings
}

// Job is the durable record for one business job key.
type Job struct {
	ID                 int64      `db:"id"`
	JobNo              string     `db:"job_no"`
	Status             string     `db:"status"`
	LastProcessedAt    *time.Time `db:"last_processed_at"`
	VerificationResult string     `db:"verification_result"`
	HasDiscrepancies   bool       `db:"has_discrepancies"`
}

// JobDocument is one acquired file for a job.
type JobDocument struct {
	ID             int64     `db:"id"`
	JobNo          string    `db:"job_no"`
	DocumentType   string    `db:"document_type"`
	ClassifiedType *string   `db:"classified_document_type"`
	FileName       string    `db:"file_name"`
	ContentType    string    `db:"content_type"`
	DocumentData   []byte    `db:"document_data"`
	SourceURL      string    `db:"source_url"`
	CreatedAt      time.Time `db:"created_at"`
}

// ActivityLog is one audit entry, written alongside every terminal
// status transition.
type ActivityLog struct {
	ID             int64     `db:"id"`
	Timestamp      time.Time `db:"timestamp"`
	EventType      string    `db:"event_type"`
	Description    string    `db:"description"`
	RelatedJobID   *int64    `db:"related_job_id"`
	UserIdentifier string    `db:"user_identifier"`
}

// PhaseTask is the message published to RabbitMQ for each phase
// transition. One task drives exactly one phase of one request.
type PhaseTask struct {
	RequestID   string `json:"request_id"`
	JobNo       string `json:"job_no"`
	Phase       int    `json:"phase"`
	DeliveryTag uint64 `json:"-"`
}
