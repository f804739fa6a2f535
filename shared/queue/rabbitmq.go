// Package queue mirrors worker events to RabbitMQ so consumers other than
// the orchestrator can follow import progress.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"adimporter/shared/config"
	"adimporter/shared/events"
	"adimporter/shared/observability"
)

// Publisher publishes events to a durable queue. It implements events.Emitter.
type Publisher struct {
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
	queue   string
	timeout time.Duration
	logger  observability.Logger
	metrics observability.Metrics
}

// NewPublisher connects to the broker and declares the events queue.
func NewPublisher(cfg *config.RabbitMQConfig, logger observability.Logger, metrics observability.Metrics) (*Publisher, error) {
	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	_, err = channel.QueueDeclare(
		cfg.EventsQueue, // queue name
		true,            // durable
		false,           // auto-delete
		false,           // exclusive
		false,           // no-wait
		nil,             // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	return &Publisher{
		conn:    conn,
		channel: channel,
		queue:   cfg.EventsQueue,
		timeout: cfg.Timeout,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Emit publishes ev as a persistent message.
func (p *Publisher) Emit(ctx context.Context, ev events.Event) error {
	start := time.Now()
	defer func() {
		p.metrics.RecordDuration("publish", time.Since(start).Seconds())
	}()

	msg, err := buildPublishing(ev)
	if err != nil {
		p.metrics.RecordError("publish", "marshal")
		return err
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	p.mu.Lock()
	err = p.channel.PublishWithContext(
		ctx,
		"",      // exchange (empty for direct queue)
		p.queue, // routing key (queue name)
		false,   // mandatory
		false,   // immediate
		msg,
	)
	p.mu.Unlock()

	if err != nil {
		p.metrics.RecordError("publish", "broker")
		p.logger.Error(ctx, "failed to publish event", err, observability.Fields{
			"queue": p.queue,
			"event": string(ev.Event),
		})
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.metrics.RecordSuccess("publish")
	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func buildPublishing(ev events.Event) (amqp091.Publishing, error) {
	body, err := ev.Marshal()
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	return amqp091.Publishing{
		DeliveryMode:  amqp091.Persistent,
		ContentType:   "application/json",
		Type:          string(ev.Event),
		CorrelationId: ev.JobID,
		Body:          body,
		Timestamp:     ev.TS,
	}, nil
}
