// Package service holds integrations that sit beside the request flow, such
// as publishing recruitment events to RabbitMQ. Publish failures are logged
// and returned so callers can carry on without them.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	q "github.com/iliyamo/milsim-portal/internal/queue"
)

// EventPublisher is what the handlers need to announce recruitment events.
type EventPublisher interface {
	PublishApplicationSubmitted(ctx context.Context, ev q.ApplicationSubmittedEvent) error
	PublishSubmissionStatusChanged(ctx context.Context, ev q.SubmissionStatusChangedEvent) error
}

// RabbitPublisher dials the broker per publish.
type RabbitPublisher struct {
	url    string
	logger *zap.Logger
	now    func() time.Time
}

func NewRabbitPublisher(url string, logger *zap.Logger) *RabbitPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RabbitPublisher{url: url, logger: logger.Named("rabbitmq"), now: time.Now}
}

func (p *RabbitPublisher) PublishApplicationSubmitted(ctx context.Context, ev q.ApplicationSubmittedEvent) error {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.SubmittedAt == "" {
		ev.SubmittedAt = p.now().UTC().Format(time.RFC3339)
	}
	return p.publish(ctx, q.TypeApplicationSubmitted, ev.EventID, ev)
}

func (p *RabbitPublisher) PublishSubmissionStatusChanged(ctx context.Context, ev q.SubmissionStatusChangedEvent) error {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.ChangedAt == "" {
		ev.ChangedAt = p.now().UTC().Format(time.RFC3339)
	}
	return p.publish(ctx, q.TypeSubmissionStatusChanged, ev.EventID, ev)
}

func (p *RabbitPublisher) publish(ctx context.Context, eventType, id string, v any) error {
	pub, err := newPublishing(eventType, id, v, p.now())
	if err != nil {
		p.logger.Error("marshal event failed", zap.String("type", eventType), zap.Error(err))
		return err
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.logger.Warn("dial failed", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.logger.Warn("channel open failed", zap.Error(err))
		return err
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(q.RecruitmentQueue, true, false, false, false, nil); err != nil {
		p.logger.Warn("queue declare failed", zap.Error(err))
		return err
	}
	if err := ch.PublishWithContext(ctx, "", q.RecruitmentQueue, false, false, pub); err != nil {
		p.logger.Warn("publish failed", zap.String("type", eventType), zap.Error(err))
		return err
	}
	p.logger.Debug("event published", zap.String("type", eventType), zap.String("event_id", id))
	return nil
}

func newPublishing(eventType, id string, v any, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal %s: %w", eventType, err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         eventType,
		MessageId:    id,
		Timestamp:    now.UTC(),
		Body:         body,
	}, nil
}
