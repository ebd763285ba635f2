package service

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/vkuzn/gatelink/internal/app/model"
)

// RedeemPublisher publishes redemption audit events to NATS JetStream.
type RedeemPublisher struct {
	js nats.JetStreamContext
}

// NewRedeemPublisher creates a new redemption event publisher.
func NewRedeemPublisher(js nats.JetStreamContext) *RedeemPublisher {
	return &RedeemPublisher{js: js}
}

// Publish records a successful redemption on the stream.
func (p *RedeemPublisher) Publish(token, ip, userAgent string) error {
	event := model.RedeemEvent{
		ID:        uuid.New().String(),
		Token:     token,
		IP:        ip,
		UserAgent: userAgent,
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = p.js.Publish(model.RedeemStreamSubject, data)
	return err
}
