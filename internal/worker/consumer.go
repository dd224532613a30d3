package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/erpai/verification-be/internal/domain"
)

// startMessageDispatcher listens to RabbitMQ deliveries and dispatches
// phase tasks to the worker pool
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			task := w.parseTask(delivery)
			if task == nil {
				continue
			}

			select {
			case w.tasksChan <- &taskDelivery{task: task, delivery: delivery}:
				w.logger.Debug("Task dispatched to worker pool",
					slog.String("request_id", task.RequestID),
					slog.String("phase", domain.PhaseName(task.Phase)),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching task")
				// NACK with requeue so another consumer picks it up
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return
			}
		}
	}
}

// parseTask validates a delivery body. Malformed messages are NACKed
// without requeue so they end up in the dead letter queue instead of
// looping forever.
func (w *Worker) parseTask(delivery amqp.Delivery) *domain.PhaseTask {
	var task domain.PhaseTask
	if err := json.Unmarshal(delivery.Body, &task); err != nil {
		w.logger.Error("Failed to parse message JSON",
			slog.String("error", err.Error()),
			slog.String("body", string(delivery.Body)),
		)
		w.rejectMalformed(delivery)
		return nil
	}

	if _, err := uuid.Parse(task.RequestID); err != nil {
		w.logger.Error("Invalid request_id format - not a UUID",
			slog.String("request_id", task.RequestID),
			slog.String("error", err.Error()),
		)
		w.rejectMalformed(delivery)
		return nil
	}

	if task.Phase < domain.PhaseAcquire || task.Phase > domain.PhaseReconcile {
		w.logger.Error("Invalid phase number in message",
			slog.String("request_id", task.RequestID),
			slog.Int("phase", task.Phase),
		)
		w.rejectMalformed(delivery)
		return nil
	}

	task.DeliveryTag = delivery.DeliveryTag
	return &task
}

func (w *Worker) rejectMalformed(delivery amqp.Delivery) {
	if nackErr := delivery.Nack(false, false); nackErr != nil {
		w.logger.Error("Failed to NACK malformed message",
			slog.String("error", nackErr.Error()),
		)
	}
}
