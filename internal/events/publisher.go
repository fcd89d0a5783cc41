package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/gitledger/gitledger/internal/config"
)

// Channel names for published events.
const (
	// ChannelAll carries every event type.
	ChannelAll = "gitledger:events"
	// channelPrefix prefixes the per-type channels.
	channelPrefix = "gitledger:events:"
)

// Publisher delivers committed events to Redis subscribers. A nil Publisher
// is valid and publishes nothing, so deployments without Redis need no
// special casing.
type Publisher struct {
	client *redis.Client
}

// NewPublisher connects a Redis publisher. An empty address disables
// publishing and returns nil.
func NewPublisher(cfg config.RedisConfig) (*Publisher, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("events: connect redis: %w", err)
	}

	return &Publisher{client: client}, nil
}

// NewPublisherWithClient wraps an existing Redis client.
func NewPublisherWithClient(client *redis.Client) *Publisher {
	if client == nil {
		return nil
	}
	return &Publisher{client: client}
}

// Publish sends the event to the shared channel and its per-type channel.
// Publication is best-effort: failures are logged and never surface to the
// operation that emitted the event, the recorded row stays the source of
// truth.
func (p *Publisher) Publish(ctx context.Context, eventType string, payload any) {
	if p == nil || p.client == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	data, errMarshal := json.Marshal(payload)
	if errMarshal != nil {
		log.WithError(errMarshal).Warnf("events: marshal %s for publish", eventType)
		return
	}
	envelope, errEnvelope := json.Marshal(struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}{Type: eventType, Payload: data})
	if errEnvelope != nil {
		log.WithError(errEnvelope).Warnf("events: envelope %s for publish", eventType)
		return
	}

	if err := p.client.Publish(ctx, ChannelAll, envelope).Err(); err != nil {
		log.WithError(err).Warnf("events: publish %s", eventType)
		return
	}
	if err := p.client.Publish(ctx, channelPrefix+eventType, envelope).Err(); err != nil {
		log.WithError(err).Warnf("events: publish %s to type channel", eventType)
	}
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
