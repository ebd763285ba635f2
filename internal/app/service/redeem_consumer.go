package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vkuzn/gatelink/internal/app/model"
	apprepository "github.com/vkuzn/gatelink/internal/app/repository"
	"go.uber.org/zap"
)

// RedeemConsumer drains redemption events from JetStream into Postgres.
type RedeemConsumer struct {
	js     nats.JetStreamContext
	logger *zap.Logger
	repo   apprepository.RedeemEventRepository
}

// NewRedeemConsumer creates a new redemption event consumer.
func NewRedeemConsumer(js nats.JetStreamContext, logger *zap.Logger, repo apprepository.RedeemEventRepository) *RedeemConsumer {
	return &RedeemConsumer{js: js, logger: logger, repo: repo}
}

// Start ensures the stream and durable consumer exist, then begins
// consuming in the background.
func (c *RedeemConsumer) Start() error {
	_, err := c.js.StreamInfo(model.RedeemStreamName)
	if err != nil {
		_, err = c.js.AddStream(&nats.StreamConfig{
			Name:     model.RedeemStreamName,
			Subjects: []string{model.RedeemStreamSubject},
			MaxAge:   model.RedeemStreamMaxAge,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
	}

	_, err = c.js.ConsumerInfo(model.RedeemStreamName, model.RedeemConsumerName)
	if err != nil {
		_, err = c.js.AddConsumer(model.RedeemStreamName, &nats.ConsumerConfig{
			Durable:   model.RedeemConsumerName,
			AckPolicy: nats.AckExplicitPolicy,
		})
		if err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := c.js.PullSubscribe(model.RedeemStreamSubject, model.RedeemConsumerName)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go c.consume(sub)
	return nil
}

func (c *RedeemConsumer) consume(sub *nats.Subscription) {
	ctx := context.Background()
	for {
		msgs, err := sub.Fetch(10, nats.MaxWait(5*time.Second))
		if err != nil && err != nats.ErrTimeout {
			c.logger.Error("failed to fetch redemption events", zap.Error(err))
			continue
		}

		for _, msg := range msgs {
			var event model.RedeemEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				c.logger.Error("failed to unmarshal redemption event", zap.Error(err))
				msg.Nak()
				continue
			}

			if err := c.repo.Create(ctx, &event); err != nil {
				c.logger.Error("failed to store redemption event",
					zap.String("id", event.ID),
					zap.String("token", event.Token),
					zap.Error(err))
				msg.Nak()
				continue
			}

			msg.Ack()
		}
	}
}
