package dto

// CreateVerificationRequest is the POST /api/v1/verifications body.
type CreateVerificationRequest struct {
	JobNo string `json:"job_no" binding:"required"`
}

// CreateVerificationResponse acknowledges an accepted verification run.
type CreateVerificationResponse struct {
	VerificationRequestID string `json:"verification_request_id"`
	JobNo                 string `json:"job_no"`
	Status                string `json:"status"`
}

// VerificationRequestDTO is the API projection of a verification run.
type VerificationRequestDTO struct {
	VerificationRequestID string   `json:"verification_request_id"`
	JobNo                 string   `json:"job_no"`
	Status                string   `json:"status"`
	Phase                 int      `json:"phase"`
	PhaseName             string   `json:"phase_name"`
	RequestTimestamp      string   `json:"request_timestamp"`
	ResultTimestamp       string   `json:"result_timestamp,omitempty"`
	Discrepancies         []string `json:"discrepancies"`
}

// ListJobsRequest carries the GET /api/v1/jobs query parameters.
type ListJobsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

// JobDTO is the API projection of a job record.
type JobDTO struct {
	JobNo              string `json:"job_no"`
	Status             string `json:"status"`
	LastProcessedAt    string `json:"last_processed_at,omitempty"`
	VerificationResult string `json:"verification_result,omitempty"`
	HasDiscrepancies   bool   `json:"has_discrepancies"`
}

// ListJobsResponse is a page of jobs plus the cursor for the next page.
type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

// ActivityLogDTO is one audit trail entry.
type ActivityLogDTO struct {
	Timestamp      string `json:"timestamp"`
	EventType      string `json:"event_type"`
	Description    string `json:"description"`
	JobNo          string `json:"job_no,omitempty"`
	UserIdentifier string `json:"user_identifier"`
}

// ListActivityResponse is the GET /api/v1/activity body.
type ListActivityResponse struct {
	Entries []ActivityLogDTO `json:"entries"`
}
