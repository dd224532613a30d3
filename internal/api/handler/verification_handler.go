package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/erpai/verification-be/internal/api/dto"
	"github.com/erpai/verification-be/internal/api/storage"
	"github.com/erpai/verification-be/internal/domain"
)

// CreateVerification handles POST /api/v1/verifications
// Accepts a job number and starts a new verification run for it
func (h *VerificationHandler) CreateVerification(c *gin.Context) {
	var req dto.CreateVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_no is required",
		})
		return
	}

	h.logger.Info("CreateVerification called",
		slog.String("job_no", req.JobNo),
	)

	run, err := h.storage.CreateRequest(c.Request.Context(), req.JobNo)
	if err != nil {
		h.logger.Error("Failed to create verification request",
			slog.String("job_no", req.JobNo),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create verification request",
		})
		return
	}

	// The row is committed before the task goes out, so a worker that
	// receives it always finds the request.
	task := &domain.PhaseTask{
		RequestID: run.ID,
		JobNo:     run.JobNo,
		Phase:     domain.PhaseAcquire,
	}
	if err := h.publisher.PublishJSON(c.Request.Context(), task); err != nil {
		h.logger.Error("Failed to publish first phase task",
			slog.String("request_id", run.ID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":                   "Failed to schedule verification",
			"verification_request_id": run.ID,
		})
		return
	}

	c.JSON(http.StatusAccepted, dto.CreateVerificationResponse{
		VerificationRequestID: run.ID,
		JobNo:                 run.JobNo,
		Status:                run.Status,
	})
}

// GetVerification handles GET /api/v1/verifications/:request_id
func (h *VerificationHandler) GetVerification(c *gin.Context) {
	requestID := c.Param("request_id")

	if _, err := uuid.Parse(requestID); err != nil {
		h.logger.Error("Invalid request_id format", slog.String("request_id", requestID))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "request_id must be a valid UUID",
		})
		return
	}

	run, err := h.storage.GetRequest(c.Request.Context(), requestID)
	if err != nil {
		if errors.Is(err, domain.ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Verification request not found",
			})
			return
		}
		h.logger.Error("Failed to get verification request", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get verification request",
		})
		return
	}

	c.JSON(http.StatusOK, requestToDTO(run))
}

// GetLatestVerification handles GET /api/v1/verifications/latest?job_no=
// Returns the most recent run for a job
func (h *VerificationHandler) GetLatestVerification(c *gin.Context) {
	jobNo := c.Query("job_no")
	if jobNo == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_no is required",
		})
		return
	}

	run, err := h.storage.LatestRequestByJob(c.Request.Context(), jobNo)
	if err != nil {
		if errors.Is(err, domain.ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "No verification request found for job",
			})
			return
		}
		h.logger.Error("Failed to get latest verification request", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get latest verification request",
		})
		return
	}

	c.JSON(http.StatusOK, requestToDTO(run))
}

// ListJobs handles GET /api/v1/jobs
// Lists job records with optional status filtering and cursor pagination
func (h *VerificationHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.Status != "" && !validJobStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid status filter: " + req.Status,
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	jobs, err := h.storage.ListJobs(c.Request.Context(), storage.JobFilter{
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i, job := range jobs {
		jobResponse[i] = jobToDTO(&job)
	}

	var nextCursor string
	if hasMore {
		lastJob := jobs[len(jobs)-1]
		nextCursor, err = EncodeJobCursor(&storage.JobCursor{
			ID:    lastJob.ID,
			JobNo: lastJob.JobNo,
		})
		if err != nil {
			h.logger.Error("Failed to encode next cursor", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to encode next cursor",
			})
			return
		}
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

// GetJob handles GET /api/v1/jobs/:job_no
func (h *VerificationHandler) GetJob(c *gin.Context) {
	jobNo := c.Param("job_no")

	job, err := h.storage.GetJob(c.Request.Context(), jobNo)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, jobToDTO(job))
}

// ListActivity handles GET /api/v1/activity
// Returns the newest audit entries, optionally scoped to one job
func (h *VerificationHandler) ListActivity(c *gin.Context) {
	jobNo := c.Query("job_no")

	entries, err := h.storage.ListActivity(c.Request.Context(), jobNo, 100)
	if err != nil {
		h.logger.Error("Failed to list activity", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list activity",
		})
		return
	}

	response := make([]dto.ActivityLogDTO, len(entries))
	for i, entry := range entries {
		response[i] = dto.ActivityLogDTO{
			Timestamp:      entry.Timestamp.Format(time.RFC3339),
			EventType:      entry.EventType,
			Description:    entry.Description,
			JobNo:          entry.JobNo,
			UserIdentifier: entry.UserIdentifier,
		}
	}

	c.JSON(http.StatusOK, dto.ListActivityResponse{Entries: response})
}

func requestToDTO(run *domain.VerificationRequest) dto.VerificationRequestDTO {
	var discrepancies []string
	if run.Discrepancies != "" {
		if err := json.Unmarshal([]byte(run.Discrepancies), &discrepancies); err != nil {
			discrepancies = nil
		}
	}
	if discrepancies == nil {
		discrepancies = []string{}
	}

	out := dto.VerificationRequestDTO{
		VerificationRequestID: run.ID,
		JobNo:                 run.JobNo,
		Status:                run.Status,
		Phase:                 run.Phase,
		PhaseName:             domain.PhaseName(run.Phase),
		RequestTimestamp:      run.RequestTimestamp.Format(time.RFC3339),
		Discrepancies:         discrepancies,
	}
	if run.ResultTimestamp != nil {
		out.ResultTimestamp = run.ResultTimestamp.Format(time.RFC3339)
	}
	return out
}

func validJobStatus(status string) bool {
	switch status {
	case domain.JobStatusPending, domain.JobStatusProcessing,
		domain.JobStatusVerified, domain.JobStatusFlagged,
		domain.JobStatusError, domain.JobStatusSkipped:
		return true
	default:
		return false
	}
}

func jobToDTO(job *domain.Job) dto.JobDTO {
	out := dto.JobDTO{
		JobNo:              job.JobNo,
		Status:             job.Status,
		VerificationResult: job.VerificationResult,
		HasDiscrepancies:   job.HasDiscrepancies,
	}
	if job.LastProcessedAt != nil {
		out.LastProcessedAt = job.LastProcessedAt.Format(time.RFC3339)
	}
	return out
}
