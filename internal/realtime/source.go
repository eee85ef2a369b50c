package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer yields broker deliveries. Satisfied by *rabbitmq.Client.
type Consumer interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// Source moves broker deliveries onto a Hub
type Source struct {
	consumer    Consumer
	hub         *Hub
	logger      *slog.Logger
	consumerTag string
}

// NewSource creates a source publishing into hub
func NewSource(consumer Consumer, hub *Hub, logger *slog.Logger) *Source {
	return &Source{
		consumer:    consumer,
		hub:         hub,
		logger:      logger,
		consumerTag: "metrohr-console-" + uuid.NewString(),
	}
}

// Run consumes until ctx is done or the delivery channel closes.
func (s *Source) Run(ctx context.Context) error {
	deliveries, err := s.consumer.Consume(s.consumerTag)
	if err != nil {
		return fmt.Errorf("failed to start realtime consumer: %w", err)
	}

	s.logger.Info("Realtime source started",
		slog.String("consumer_tag", s.consumerTag),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Realtime source stopped - context canceled")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				s.logger.Warn("RabbitMQ delivery channel closed")
				return errors.New("realtime delivery channel closed")
			}
			s.dispatch(delivery)
		}
	}
}

func (s *Source) dispatch(delivery amqp.Delivery) {
	name := delivery.Type
	if name == "" {
		name = delivery.RoutingKey
	}

	evt, err := NewEvent(name, delivery.Body)
	if err != nil {
		s.logger.Error("Dropping malformed realtime event",
			slog.String("error", err.Error()),
			slog.String("event", name),
			slog.Int("body_size", len(delivery.Body)),
		)
		// Without requeue: a malformed message will never decode.
		if nackErr := delivery.Nack(false, false); nackErr != nil {
			s.logger.Error("Failed to NACK malformed event",
				slog.String("error", nackErr.Error()),
			)
		}
		return
	}

	s.hub.Publish(evt)

	if ackErr := delivery.Ack(false); ackErr != nil {
		s.logger.Error("Failed to ACK realtime event",
			slog.String("error", ackErr.Error()),
			slog.String("event", evt.Name),
		)
		return
	}

	s.logger.Debug("Realtime event dispatched",
		slog.String("event", evt.Name),
		slog.String("job_id", evt.JobID()),
	)
}
