package service

import (
	"context"
	"encoding/json"
	"fmt"

	"campusjudge/internal/common/mq"
	"campusjudge/internal/competition/model"
	appErr "campusjudge/pkg/errors"
)

// VerdictPublisher announces committed verdicts to downstream consumers.
type VerdictPublisher interface {
	PublishVerdict(ctx context.Context, event model.VerdictEvent) error
}

// MQVerdictPublisher publishes verdict events keyed by submission id.
type MQVerdictPublisher struct {
	producer mq.Producer
	topic    string
}

func NewMQVerdictPublisher(producer mq.Producer, topic string) *MQVerdictPublisher {
	return &MQVerdictPublisher{producer: producer, topic: topic}
}

func (p *MQVerdictPublisher) PublishVerdict(ctx context.Context, event model.VerdictEvent) error {
	if p == nil || p.producer == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("verdict publisher is not configured")
	}
	if p.topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("verdict topic is required")
	}
	if event.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal verdict event failed: %w", err)
	}
	msg := mq.NewMessage(event.SubmissionID, payload)
	msg.SetHeader("event", "verdict.final")
	msg.SetHeader("status", string(event.Status))
	if err := p.producer.Publish(ctx, p.topic, msg); err != nil {
		return appErr.Wrapf(err, appErr.MQError, "publish verdict event failed")
	}
	return nil
}
