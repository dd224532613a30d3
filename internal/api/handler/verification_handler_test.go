package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erpai/verification-be/internal/api/dto"
	"github.com/erpai/verification-be/internal/api/storage"
	"github.com/erpai/verification-be/internal/domain"
)

const testRequestID = "4f2a2b7e-0f6e-4d7c-8f44-9a41a6e3c001"

type fakeStore struct {
	created    []string
	createErr  error
	request    *domain.VerificationRequest
	requestErr error
	job        *domain.Job
	jobErr     error
	jobs       []domain.Job
	lastFilter storage.JobFilter
	activity   []storage.ActivityEntry
}

func (s *fakeStore) CreateRequest(_ context.Context, jobNo string) (*domain.VerificationRequest, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.created = append(s.created, jobNo)
	return &domain.VerificationRequest{
		ID:               testRequestID,
		JobNo:            jobNo,
		Status:           domain.RequestStatusPending,
		RequestTimestamp: time.Now(),
		Discrepancies:    "[]",
	}, nil
}

func (s *fakeStore) GetRequest(_ context.Context, _ string) (*domain.VerificationRequest, error) {
	if s.requestErr != nil {
		return nil, s.requestErr
	}
	return s.request, nil
}

func (s *fakeStore) LatestRequestByJob(_ context.Context, _ string) (*domain.VerificationRequest, error) {
	if s.requestErr != nil {
		return nil, s.requestErr
	}
	return s.request, nil
}

func (s *fakeStore) GetJob(_ context.Context, _ string) (*domain.Job, error) {
	if s.jobErr != nil {
		return nil, s.jobErr
	}
	return s.job, nil
}

func (s *fakeStore) ListJobs(_ context.Context, filter storage.JobFilter) ([]domain.Job, error) {
	s.lastFilter = filter
	return s.jobs, nil
}

func (s *fakeStore) ListActivity(_ context.Context, _ string, _ int) ([]storage.ActivityEntry, error) {
	return s.activity, nil
}

type fakePublisher struct {
	published []*domain.PhaseTask
	err       error
}

func (p *fakePublisher) PublishJSON(_ context.Context, v any) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, v.(*domain.PhaseTask))
	return nil
}

func newTestHandler(store *fakeStore, publisher *fakePublisher) *VerificationHandler {
	gin.SetMode(gin.TestMode)
	return NewVerificationHandler(&Dependencies{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Storage:   store,
		Publisher: publisher,
	})
}

func performRequest(handler gin.HandlerFunc, method, target string, body any, params ...gin.Param) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = params

	handler(c)
	return w
}

func TestCreateVerification(t *testing.T) {
	store := &fakeStore{}
	publisher := &fakePublisher{}
	h := newTestHandler(store, publisher)

	w := performRequest(h.CreateVerification, http.MethodPost, "/api/v1/verifications",
		dto.CreateVerificationRequest{JobNo: "J100"})

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp dto.CreateVerificationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, testRequestID, resp.VerificationRequestID)
	assert.Equal(t, domain.RequestStatusPending, resp.Status)

	require.Len(t, publisher.published, 1)
	assert.Equal(t, domain.PhaseAcquire, publisher.published[0].Phase)
	assert.Equal(t, "J100", publisher.published[0].JobNo)
}

func TestCreateVerificationMissingJobNo(t *testing.T) {
	store := &fakeStore{}
	publisher := &fakePublisher{}
	h := newTestHandler(store, publisher)

	w := performRequest(h.CreateVerification, http.MethodPost, "/api/v1/verifications", gin.H{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, store.created)
	assert.Empty(t, publisher.published)
}

func TestCreateVerificationPublishFailure(t *testing.T) {
	store := &fakeStore{}
	publisher := &fakePublisher{err: errors.New("broker down")}
	h := newTestHandler(store, publisher)

	w := performRequest(h.CreateVerification, http.MethodPost, "/api/v1/verifications",
		dto.CreateVerificationRequest{JobNo: "J100"})

	// The request row survives, the caller learns scheduling failed.
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), testRequestID)
}

func TestGetVerification(t *testing.T) {
	resultAt := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	store := &fakeStore{request: &domain.VerificationRequest{
		ID:               testRequestID,
		JobNo:            "J100",
		Status:           domain.RequestStatusCompleted,
		Phase:            domain.PhaseReconcile,
		RequestTimestamp: resultAt.Add(-time.Minute),
		ResultTimestamp:  &resultAt,
		Discrepancies:    `["Amount mismatch"]`,
	}}
	h := newTestHandler(store, &fakePublisher{})

	w := performRequest(h.GetVerification, http.MethodGet, "/api/v1/verifications/"+testRequestID, nil,
		gin.Param{Key: "request_id", Value: testRequestID})

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.VerificationRequestDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.RequestStatusCompleted, resp.Status)
	assert.Equal(t, "reconcile", resp.PhaseName)
	assert.Equal(t, []string{"Amount mismatch"}, resp.Discrepancies)
	assert.Equal(t, "2026-03-14T09:30:00Z", resp.ResultTimestamp)
}

func TestGetVerificationInvalidID(t *testing.T) {
	h := newTestHandler(&fakeStore{}, &fakePublisher{})

	w := performRequest(h.GetVerification, http.MethodGet, "/api/v1/verifications/nope", nil,
		gin.Param{Key: "request_id", Value: "nope"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetVerificationNotFound(t *testing.T) {
	store := &fakeStore{requestErr: domain.ErrRequestNotFound}
	h := newTestHandler(store, &fakePublisher{})

	w := performRequest(h.GetVerification, http.MethodGet, "/api/v1/verifications/"+testRequestID, nil,
		gin.Param{Key: "request_id", Value: testRequestID})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetLatestVerificationRequiresJobNo(t *testing.T) {
	h := newTestHandler(&fakeStore{}, &fakePublisher{})

	w := performRequest(h.GetLatestVerification, http.MethodGet, "/api/v1/verifications/latest", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListJobsPagination(t *testing.T) {
	// Three rows with page size two: expect two rows back plus a cursor
	// pointing at the second one.
	store := &fakeStore{jobs: []domain.Job{
		{ID: 30, JobNo: "J300", Status: domain.JobStatusVerified},
		{ID: 20, JobNo: "J200", Status: domain.JobStatusFlagged},
		{ID: 10, JobNo: "J100", Status: domain.JobStatusPending},
	}}
	h := newTestHandler(store, &fakePublisher{})

	w := performRequest(h.ListJobs, http.MethodGet, "/api/v1/jobs?page_size=2", nil)

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.ListJobsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Jobs, 2)
	assert.Equal(t, "J300", resp.Jobs[0].JobNo)
	require.NotEmpty(t, resp.NextCursor)

	cursor, err := DecodeJobCursor(resp.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, int64(20), cursor.ID)
}

func TestListJobsStatusFilter(t *testing.T) {
	store := &fakeStore{}
	h := newTestHandler(store, &fakePublisher{})

	w := performRequest(h.ListJobs, http.MethodGet, "/api/v1/jobs?status=FLAGGED", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.JobStatusFlagged, store.lastFilter.Status)
	assert.Equal(t, 20, store.lastFilter.PageSize)
}

func TestListJobsUnknownStatusRejected(t *testing.T) {
	h := newTestHandler(&fakeStore{}, &fakePublisher{})

	w := performRequest(h.ListJobs, http.MethodGet, "/api/v1/jobs?status=BOGUS", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid status filter")
}

func TestGetJobNotFound(t *testing.T) {
	store := &fakeStore{jobErr: domain.ErrJobNotFound}
	h := newTestHandler(store, &fakePublisher{})

	w := performRequest(h.GetJob, http.MethodGet, "/api/v1/jobs/J999", nil,
		gin.Param{Key: "job_no", Value: "J999"})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListActivity(t *testing.T) {
	store := &fakeStore{activity: []storage.ActivityEntry{{
		Timestamp:      time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		EventType:      domain.EventJobProcessed,
		Description:    "Verification of job J100 completed with 1 discrepancies",
		JobNo:          "J100",
		UserIdentifier: "ai-verification-worker",
	}}}
	h := newTestHandler(store, &fakePublisher{})

	w := performRequest(h.ListActivity, http.MethodGet, "/api/v1/activity", nil)

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.ListActivityResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, domain.EventJobProcessed, resp.Entries[0].EventType)
	assert.Equal(t, "J100", resp.Entries[0].JobNo)
}
