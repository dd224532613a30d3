package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/erpai/verification-be/internal/domain"
)

// Config holds worker configuration
type Config struct {
	Logger       *slog.Logger
	RabbitClient RabbitMQ
	Executor     *Executor
	Concurrency  int

	// PhaseTimeout bounds any phase without its own deadline.
	PhaseTimeout time.Duration

	// Per-phase deadlines. Acquisition is minutes-scale because file
	// transfer is slow; the AI-backed phases are tighter. Zero falls
	// back to PhaseTimeout.
	AcquireTimeout   time.Duration
	ClassifyTimeout  time.Duration
	ExtractTimeout   time.Duration
	ReconcileTimeout time.Duration
}

// RabbitMQ is the broker surface the worker consumes from.
type RabbitMQ interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// taskDelivery pairs a parsed phase task with its broker delivery so the
// processing goroutine can ACK or NACK it.
type taskDelivery struct {
	task     *domain.PhaseTask
	delivery amqp.Delivery
}

// Worker consumes phase tasks and drives the verification workflow.
type Worker struct {
	logger        *slog.Logger
	rabbitClient  RabbitMQ
	executor      *Executor
	concurrency   int
	phaseTimeout  time.Duration
	phaseDeadline map[int]time.Duration
	workerID      string
	tasksChan     chan *taskDelivery
	wg            sync.WaitGroup
	stopChan      chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	return &Worker{
		logger:       cfg.Logger,
		rabbitClient: cfg.RabbitClient,
		executor:     cfg.Executor,
		concurrency:  cfg.Concurrency,
		phaseTimeout: cfg.PhaseTimeout,
		phaseDeadline: map[int]time.Duration{
			domain.PhaseAcquire:   cfg.AcquireTimeout,
			domain.PhaseClassify:  cfg.ClassifyTimeout,
			domain.PhaseExtract:   cfg.ExtractTimeout,
			domain.PhaseReconcile: cfg.ReconcileTimeout,
		},
		workerID:  uuid.NewString(),
		tasksChan: make(chan *taskDelivery),
		stopChan:  make(chan struct{}),
	}
}

// timeoutForPhase returns the deadline for a phase, falling back to the
// generic phase timeout when no per-phase value is configured.
func (w *Worker) timeoutForPhase(phase int) time.Duration {
	if d, ok := w.phaseDeadline[phase]; ok && d > 0 {
		return d
	}
	return w.phaseTimeout
}

// Start begins consuming phase tasks and blocks until ctx is canceled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("phase_timeout", w.phaseTimeout),
	)

	deliveries, err := w.rabbitClient.Consume(w.workerID)
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)
	go w.startMessageDispatcher(ctx, deliveries)

	<-ctx.Done()
	w.logger.Info("Worker context canceled, stopping...")

	return nil
}

// Stop gracefully stops the worker and waits for in-flight phases.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
