package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/agenthire/internal/dispatch"
	"github.com/cuongbtq/agenthire/internal/metrics"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// setupConsumer sets up the consumer with QoS and returns the delivery channel
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	if w.queue == nil {
		return nil, fmt.Errorf("queue is not configured")
	}

	if err := w.queue.Qos(w.prefetchCount); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	// Manual acknowledgment; the consumer tag is the worker ID.
	deliveries, err := w.queue.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("Consumer started",
		slog.String("consumer_tag", w.workerID),
		slog.Int("prefetch_count", w.prefetchCount),
	)
	return deliveries, nil
}

// startMessageDispatcher parses deliveries and hands them to the worker pool
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case <-w.stopChan:
			w.logger.Info("Message dispatcher stopped - stop requested")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("Delivery channel closed")
				return
			}

			msg, err := parseMessage(delivery.Body)
			if err != nil {
				w.logger.Error("Dropping malformed message",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				// Malformed messages go to the dead letter queue, if any.
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.String("error", nackErr.Error()),
					)
				}
				metrics.WorkerMessagesTotal.WithLabelValues("drop").Inc()
				continue
			}

			select {
			case w.jobsChan <- &jobMessage{Message: msg, delivery: delivery}:
				w.logger.Debug("Job dispatched to worker pool",
					slog.String("job_id", msg.JobID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return
			case <-w.stopChan:
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

func parseMessage(body []byte) (dispatch.Message, error) {
	var msg dispatch.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return dispatch.Message{}, fmt.Errorf("parse message JSON: %w", err)
	}
	if _, err := uuid.Parse(msg.JobID); err != nil {
		return dispatch.Message{}, fmt.Errorf("job_id %q is not a UUID", msg.JobID)
	}
	return msg, nil
}
