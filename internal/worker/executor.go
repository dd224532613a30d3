package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/erpai/verification-be/internal/classifier"
	"github.com/erpai/verification-be/internal/domain"
	"github.com/erpai/verification-be/internal/erp"
	"github.com/erpai/verification-be/internal/errclass"
	"github.com/erpai/verification-be/internal/idcache"
	"github.com/erpai/verification-be/internal/worker/storage"
)

// RunStore persists verification run state.
type RunStore interface {
	GetRequest(ctx context.Context, requestID string) (*domain.VerificationRequest, error)
	ClaimRun(ctx context.Context, requestID, jobNo string) error
	AdvancePhase(ctx context.Context, requestID string, phase int, discrepancies []string) error
	CompleteRun(ctx context.Context, update storage.TerminalUpdate) error
}

// DocumentStore reads and updates acquired job documents.
type DocumentStore interface {
	ListUnclassified(ctx context.Context, jobNo string) ([]domain.JobDocument, error)
	GetByKind(ctx context.Context, jobNo, kind string) ([]domain.JobDocument, error)
	SetClassifiedType(ctx context.Context, id int64, kind string) error
	PromoteClassified(ctx context.Context, jobNo string) error
}

// DocumentAcquirer downloads missing documents for a job.
type DocumentAcquirer interface {
	AcquireForJob(ctx context.Context, jobNo string) (int, error)
}

// DocumentAI is the classifier service surface the phases use.
type DocumentAI interface {
	Classify(ctx context.Context, jobNo string, images []classifier.DocumentImage) (*classifier.ClassificationResult, error)
	ExtractIdentifiers(ctx context.Context, jobNo, docType string, images []classifier.DocumentImage) (map[string]string, error)
	Verify(ctx context.Context, jobNo, docType string, images []classifier.DocumentImage, erpData map[string]any) (*classifier.VerificationResult, error)
}

// ERPGateway is the Business Central surface the phases use.
type ERPGateway interface {
	FetchJob(ctx context.Context, jobNo string) (*erp.JobCard, error)
	FetchAllVerificationData(ctx context.Context, quoteNo, invoiceNo, jobNo string) (*erp.VerificationData, error)
	UpdateVerificationFields(ctx context.Context, jobNo, comment string) error
}

// TaskPublisher schedules the next phase of a run.
type TaskPublisher interface {
	PublishJSON(ctx context.Context, v any) error
}

// ExecutorConfig wires the executor dependencies.
type ExecutorConfig struct {
	Store     RunStore
	Documents DocumentStore
	Acquirer  DocumentAcquirer
	AI        DocumentAI
	ERP       ERPGateway
	Publisher TaskPublisher
	Cache     *idcache.Cache
	Retryer   *errclass.Retryer
	Logger    *slog.Logger

	// ClassifyTimeout bounds each classifier call during the classify
	// fan-out. Zero means 30 seconds.
	ClassifyTimeout time.Duration
}

// Executor runs one workflow phase per task. Each phase is one unit of
// work: load state, do the phase, commit, and only then schedule the next
// phase. A crash between commit and publish leaves a resumable row, never
// a half-applied one.
type Executor struct {
	store           RunStore
	documents       DocumentStore
	acquirer        DocumentAcquirer
	ai              DocumentAI
	erp             ERPGateway
	publisher       TaskPublisher
	cache           *idcache.Cache
	retryer         *errclass.Retryer
	logger          *slog.Logger
	classifyTimeout time.Duration
}

// NewExecutor creates an Executor.
func NewExecutor(cfg *ExecutorConfig) *Executor {
	classifyTimeout := cfg.ClassifyTimeout
	if classifyTimeout <= 0 {
		classifyTimeout = 30 * time.Second
	}

	return &Executor{
		store:           cfg.Store,
		documents:       cfg.Documents,
		acquirer:        cfg.Acquirer,
		ai:              cfg.AI,
		erp:             cfg.ERP,
		publisher:       cfg.Publisher,
		cache:           cfg.Cache,
		retryer:         cfg.Retryer,
		logger:          cfg.Logger,
		classifyTimeout: classifyTimeout,
	}
}

// Execute runs the phase named by the task. A nil return means the message
// can be ACKed; a RetryableError means the broker should redeliver it.
func (e *Executor) Execute(ctx context.Context, task *domain.PhaseTask) error {
	log := e.logger.With(
		slog.String("request_id", task.RequestID),
		slog.String("job_no", task.JobNo),
		slog.String("phase", domain.PhaseName(task.Phase)),
	)

	req, err := e.store.GetRequest(ctx, task.RequestID)
	if err != nil {
		if errors.Is(err, domain.ErrRequestNotFound) {
			log.Warn("Dropping task for unknown verification request")
			return nil
		}
		return domain.NewRetryableError(err)
	}

	if req.Status == domain.RequestStatusCompleted || req.Status == domain.RequestStatusFailed {
		log.Info("Dropping task for finished verification request",
			slog.String("status", req.Status),
		)
		return nil
	}

	discrepancies, err := decodeDiscrepancies(req.Discrepancies)
	if err != nil {
		log.Error("Stored discrepancies are unreadable, starting over",
			slog.Any("error", err),
		)
		discrepancies = nil
	}

	// A redelivered task whose phase already committed means the follow-up
	// task was lost between the commit and its publish. The persisted row
	// is authoritative; the run resumes by reissuing the next phase instead
	// of rerunning this one.
	if req.Status == domain.RequestStatusProcessing && req.Phase >= task.Phase {
		return e.reissueNextPhase(ctx, req, log)
	}

	if task.Phase == domain.PhaseAcquire {
		if err := e.admitFirstPhase(ctx, req, log); err != nil {
			if errors.Is(err, errDropTask) {
				return nil
			}
			return err
		}
	} else if req.Status != domain.RequestStatusProcessing || req.Phase != task.Phase-1 {
		// A task that raced ahead of its predecessor, or one for a request
		// that was never claimed. The persisted row is authoritative.
		log.Warn("Dropping out-of-order phase task",
			slog.String("status", req.Status),
			slog.Int("persisted_phase", req.Phase),
		)
		return nil
	}

	log.Info("Phase started")

	switch task.Phase {
	case domain.PhaseAcquire:
		err = e.phaseAcquire(ctx, req, log)
	case domain.PhaseClassify:
		err = e.phaseClassify(ctx, req, log)
	case domain.PhaseExtract:
		var done bool
		done, err = e.phaseExtract(ctx, req, &discrepancies, log)
		if err == nil && done {
			// A required identifier is missing. Reconciliation cannot
			// run, so the verdict is committed here.
			return e.finishFlagged(ctx, req, task.Phase, discrepancies, log)
		}
	case domain.PhaseReconcile:
		return e.phaseReconcile(ctx, req, &discrepancies, log)
	default:
		log.Error("Dropping task with unknown phase number")
		return nil
	}

	if err != nil {
		return e.handlePhaseFailure(ctx, req, task.Phase, discrepancies, err, log)
	}

	return e.advance(ctx, req, task.Phase, discrepancies, log)
}

// admitFirstPhase claims the request and the job. A claim that already
// committed on an earlier delivery resumes; a claim lost to a concurrent
// consumer drops; a busy or missing job ends the run terminally.
func (e *Executor) admitFirstPhase(ctx context.Context, req *domain.VerificationRequest, log *slog.Logger) error {
	if req.Status == domain.RequestStatusProcessing {
		// The claim committed on an earlier delivery but phase 1 never
		// advanced. Acquisition skips documents already stored, so the
		// phase runs again.
		log.Info("Resuming claimed run from redelivered first-phase task")
		return nil
	}

	err := e.store.ClaimRun(ctx, req.ID, req.JobNo)
	if err == nil {
		return nil
	}

	if errors.Is(err, domain.ErrRequestAlreadyClaimed) {
		log.Warn("Dropping first-phase task, request claimed by a concurrent consumer")
		return errDropTask
	}

	if errors.Is(err, domain.ErrJobNotFound) {
		reason := fmt.Sprintf("Job record not found for Job No: %s", req.JobNo)
		update := storage.TerminalUpdate{
			RequestID:        req.ID,
			RequestStatus:    domain.RequestStatusFailed,
			Phase:            domain.PhaseAcquire,
			Discrepancies:    []string{reason},
			JobNo:            req.JobNo,
			EventType:        domain.EventError,
			EventDescription: reason,
		}
		if err := e.store.CompleteRun(ctx, update); err != nil {
			return domain.NewRetryableError(err)
		}
		e.cache.Drop(req.ID)
		return errDropTask
	}

	if errors.Is(err, domain.ErrJobBusy) {
		reason := fmt.Sprintf("Job %s is already being processed by another verification request", req.JobNo)
		update := storage.TerminalUpdate{
			RequestID:        req.ID,
			RequestStatus:    domain.RequestStatusFailed,
			Phase:            domain.PhaseAcquire,
			Discrepancies:    []string{reason},
			JobNo:            req.JobNo,
			EventType:        domain.EventError,
			EventDescription: reason,
		}
		if err := e.store.CompleteRun(ctx, update); err != nil {
			return domain.NewRetryableError(err)
		}
		e.cache.Drop(req.ID)
		return errDropTask
	}

	return domain.NewRetryableError(err)
}

// errDropTask signals that admission handled the task and it should be
// ACKed without running a phase.
var errDropTask = errors.New("task handled during admission")

// reissueNextPhase republishes the task for the phase after the last
// committed one. A crash or publish failure between a phase commit and the
// follow-up publish leaves the queue empty while the run is still
// PROCESSING; the redelivered message closes that gap.
func (e *Executor) reissueNextPhase(ctx context.Context, req *domain.VerificationRequest, log *slog.Logger) error {
	next := req.Phase + 1
	if next > domain.PhaseReconcile {
		log.Error("Run is past the final phase without a verdict, dropping task",
			slog.Int("persisted_phase", req.Phase),
		)
		return nil
	}

	task := &domain.PhaseTask{
		RequestID: req.ID,
		JobNo:     req.JobNo,
		Phase:     next,
	}
	if err := e.publisher.PublishJSON(ctx, task); err != nil {
		return domain.NewRetryableError(err)
	}

	log.Info("Reissued follow-up task for committed phase",
		slog.String("next_phase", domain.PhaseName(next)),
	)
	return nil
}

// advance commits the phase result and publishes the next phase task.
func (e *Executor) advance(ctx context.Context, req *domain.VerificationRequest, phase int, discrepancies []string, log *slog.Logger) error {
	if err := e.store.AdvancePhase(ctx, req.ID, phase, discrepancies); err != nil {
		return domain.NewRetryableError(err)
	}

	next := &domain.PhaseTask{
		RequestID: req.ID,
		JobNo:     req.JobNo,
		Phase:     phase + 1,
	}
	if err := e.publisher.PublishJSON(ctx, next); err != nil {
		// The phase commit stands; the redelivered task reissues this
		// follow-up during admission.
		return domain.NewRetryableError(err)
	}

	log.Info("Phase completed",
		slog.String("next_phase", domain.PhaseName(next.Phase)),
	)
	return nil
}

// handlePhaseFailure maps a phase error to its terminal state. Business
// failures surface verbatim. System and critical failures end the run
// with the job in ERROR.
func (e *Executor) handlePhaseFailure(ctx context.Context, req *domain.VerificationRequest, phase int, discrepancies []string, phaseErr error, log *slog.Logger) error {
	var retryable *domain.RetryableError
	if errors.As(phaseErr, &retryable) {
		return phaseErr
	}

	switch errclass.Classify(phaseErr) {
	case errclass.ClassBusiness:
		log.Warn("Phase failed with business error",
			slog.String("reason", phaseErr.Error()),
		)
		discrepancies = append(discrepancies, phaseErr.Error())

		// A run that never identified its documents failed outright; a
		// run that got far enough to judge them completed with findings.
		requestStatus := domain.RequestStatusCompleted
		if phase <= domain.PhaseClassify {
			requestStatus = domain.RequestStatusFailed
		}

		update := storage.TerminalUpdate{
			RequestID:          req.ID,
			RequestStatus:      requestStatus,
			Phase:              phase,
			Discrepancies:      discrepancies,
			JobNo:              req.JobNo,
			JobStatus:          domain.JobStatusFlagged,
			VerificationResult: phaseErr.Error(),
			HasDiscrepancies:   true,
			EventType:          domain.EventError,
			EventDescription:   fmt.Sprintf("Verification of job %s stopped: %s", req.JobNo, phaseErr.Error()),
		}
		if err := e.store.CompleteRun(ctx, update); err != nil {
			return domain.NewRetryableError(err)
		}
		e.cache.Drop(req.ID)
		return nil

	default:
		// System errors carry a generic operator message; the cause only
		// reaches the logs. Critical errors surface as-is.
		log.Error("Phase failed after retries",
			slog.Any("error", phaseErr),
			slog.Any("cause", errors.Unwrap(phaseErr)),
		)
		discrepancies = append(discrepancies, phaseErr.Error())

		update := storage.TerminalUpdate{
			RequestID:          req.ID,
			RequestStatus:      domain.RequestStatusFailed,
			Phase:              phase,
			Discrepancies:      discrepancies,
			JobNo:              req.JobNo,
			JobStatus:          domain.JobStatusError,
			VerificationResult: phaseErr.Error(),
			HasDiscrepancies:   len(discrepancies) > 0,
			EventType:          domain.EventError,
			EventDescription:   fmt.Sprintf("Verification of job %s failed: %s", req.JobNo, phaseErr.Error()),
		}
		if err := e.store.CompleteRun(ctx, update); err != nil {
			return domain.NewRetryableError(err)
		}
		e.cache.Drop(req.ID)
		return nil
	}
}

// finishFlagged commits a COMPLETED request with a FLAGGED job.
func (e *Executor) finishFlagged(ctx context.Context, req *domain.VerificationRequest, phase int, discrepancies []string, log *slog.Logger) error {
	update := storage.TerminalUpdate{
		RequestID:          req.ID,
		RequestStatus:      domain.RequestStatusCompleted,
		Phase:              phase,
		Discrepancies:      discrepancies,
		JobNo:              req.JobNo,
		JobStatus:          domain.JobStatusFlagged,
		VerificationResult: fmt.Sprintf("%d discrepancies found", len(discrepancies)),
		HasDiscrepancies:   true,
		EventType:          domain.EventJobProcessed,
		EventDescription:   fmt.Sprintf("Verification of job %s completed with %d discrepancies", req.JobNo, len(discrepancies)),
	}
	if err := e.store.CompleteRun(ctx, update); err != nil {
		return domain.NewRetryableError(err)
	}
	e.cache.Drop(req.ID)

	log.Info("Run completed with findings",
		slog.Int("discrepancies", len(discrepancies)),
	)
	return nil
}

func decodeDiscrepancies(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to decode discrepancies: %w", err)
	}
	return out, nil
}
