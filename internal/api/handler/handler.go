package handler

import (
	"context"
	"log/slog"

	"github.com/erpai/verification-be/internal/api/storage"
	"github.com/erpai/verification-be/internal/domain"
)

// VerificationStore is the persistence surface the handlers use.
type VerificationStore interface {
	CreateRequest(ctx context.Context, jobNo string) (*domain.VerificationRequest, error)
	GetRequest(ctx context.Context, requestID string) (*domain.VerificationRequest, error)
	LatestRequestByJob(ctx context.Context, jobNo string) (*domain.VerificationRequest, error)
	GetJob(ctx context.Context, jobNo string) (*domain.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error)
	ListActivity(ctx context.Context, jobNo string, limit int) ([]storage.ActivityEntry, error)
}

// TaskPublisher schedules the first workflow phase of a new run.
type TaskPublisher interface {
	PublishJSON(ctx context.Context, v any) error
}

// DBHealth reports database reachability for the health endpoint.
type DBHealth interface {
	HealthCheck(ctx context.Context) error
}

// BrokerHealth reports broker connectivity for the health endpoint.
type BrokerHealth interface {
	IsConnected() bool
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Storage   VerificationStore
	Publisher TaskPublisher
	DB        DBHealth
	Broker    BrokerHealth
}

// VerificationHandler handles verification-related HTTP requests
type VerificationHandler struct {
	logger    *slog.Logger
	storage   VerificationStore
	publisher TaskPublisher
	db        DBHealth
	broker    BrokerHealth
}

// NewVerificationHandler creates a new VerificationHandler instance
func NewVerificationHandler(deps *Dependencies) *VerificationHandler {
	return &VerificationHandler{
		logger:    deps.Logger,
		storage:   deps.Storage,
		publisher: deps.Publisher,
		db:        deps.DB,
		broker:    deps.Broker,
	}
}
