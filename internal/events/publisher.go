package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/courseflow/reconciliation-engine/internal/domain"
	"github.com/courseflow/reconciliation-engine/internal/logger"
)

// Publisher hands domain events to the notification collaborator. The
// engine itself never sends emails or toasts.
type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

type redisPublisher struct {
	client  *redis.Client
	channel string
	log     zerolog.Logger
}

// NewRedisPublisher publishes events as JSON on a redis pub/sub channel.
func NewRedisPublisher(client *redis.Client, channel string) Publisher {
	return &redisPublisher{
		client:  client,
		channel: channel,
		log:     logger.WithComponent("events"),
	}
}

func (p *redisPublisher) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.log.Error().Err(err).Str("type", event.Type).Msg("publishing event")
		return err
	}

	p.log.Debug().Str("type", event.Type).Str("invoice_id", event.InvoiceID.String()).Msg("event published")
	return nil
}

type nopPublisher struct{}

// NewNopPublisher discards events. Used in tests.
func NewNopPublisher() Publisher {
	return nopPublisher{}
}

func (nopPublisher) Publish(ctx context.Context, event domain.Event) error {
	return nil
}
