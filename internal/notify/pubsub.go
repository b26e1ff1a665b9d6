package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

const attrPatientID = "patient_id"

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// PubSubNotifier publishes one message per invalidation to a Pub/Sub topic.
type PubSubNotifier struct {
	pub publisher
}

func NewPubSubNotifier(p *gcppubsub.Publisher) (*PubSubNotifier, error) {
	if p == nil {
		return nil, errors.New("pubsub publisher required")
	}
	return &PubSubNotifier{pub: &gcpPublisher{Publisher: p}}, nil
}

func (n *PubSubNotifier) InvalidatePatient(ctx context.Context, patientID string) error {
	id, err := cleanPatientID(patientID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(invalidationPayload{PatientID: id})
	if err != nil {
		return fmt.Errorf("encode invalidation: %w", err)
	}

	res := n.pub.Publish(ctx, &gcppubsub.Message{
		Data:       data,
		Attributes: map[string]string{attrPatientID: id},
	})
	if res == nil {
		return errors.New("publish result is nil")
	}
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
