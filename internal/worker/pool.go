package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/erpai/verification-be/internal/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case td, ok := <-w.tasksChan:
			if !ok {
				w.logger.Info("Worker goroutine stopping - tasksChan closed",
					slog.String("worker_name", workerName),
				)
				return
			}

			w.processTask(ctx, workerName, td)
		}
	}
}

// processTask runs one phase under the configured timeout and settles the
// broker delivery based on the outcome.
func (w *Worker) processTask(ctx context.Context, workerName string, td *taskDelivery) {
	log := w.logger.With(
		slog.String("worker_name", workerName),
		slog.String("request_id", td.task.RequestID),
		slog.String("phase", domain.PhaseName(td.task.Phase)),
	)

	phaseCtx := ctx
	if timeout := w.timeoutForPhase(td.task.Phase); timeout > 0 {
		var cancel context.CancelFunc
		phaseCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := w.executor.Execute(phaseCtx, td.task)
	if err != nil {
		requeue := shouldRequeueTask(err)
		log.Error("Phase processing failed",
			slog.String("error", err.Error()),
			slog.Bool("requeue", requeue),
		)

		if nackErr := td.delivery.Nack(false, requeue); nackErr != nil {
			log.Error("Failed to NACK message",
				slog.String("error", nackErr.Error()),
			)
		}
		return
	}

	if ackErr := td.delivery.Ack(false); ackErr != nil {
		log.Error("Failed to ACK message",
			slog.String("error", ackErr.Error()),
		)
		return
	}

	log.Debug("Phase task settled")
}

// shouldRequeueTask determines if a task should be redelivered based on
// the error type. Only transient infrastructure failures requeue; every
// other outcome was already committed as a terminal state.
func shouldRequeueTask(err error) bool {
	var retryableErr *domain.RetryableError
	return errors.As(err, &retryableErr)
}
