// Package redisrelay carries board events between server processes over a
// Redis pub/sub channel. Every process publishes to the channel and relays
// whatever arrives on it into its local hubs.
package redisrelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/tileclaim/internal/model"
	"github.com/mcoot/tileclaim/internal/notify"
)

// DefaultChannel is the pub/sub channel used when none is configured
const DefaultChannel = "tileclaim:events"

type envelope struct {
	Topic string      `json:"topic"`
	Event model.Event `json:"event"`
}

// Relay publishes events to Redis and delivers received ones locally
type Relay struct {
	client  *redis.Client
	channel string
	local   notify.Broadcaster
	logger  *slog.Logger
}

// New creates a Relay on channel that delivers into local
func New(client *redis.Client, channel string, local notify.Broadcaster, logger *slog.Logger) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Relay{
		client:  client,
		channel: channel,
		local:   local,
		logger:  logger.With(slog.String("component", "redis-relay")),
	}
}

// Ensure Relay implements Broadcaster
var _ notify.Broadcaster = (*Relay)(nil)

// Publish sends the event to every process subscribed to the channel
func (r *Relay) Publish(ctx context.Context, topic string, event model.Event) error {
	data, err := json.Marshal(envelope{Topic: topic, Event: event})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Run subscribes to the channel and relays messages until ctx is cancelled
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed
	if _, err := sub.Receive(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.logger.Info("relay subscribed", slog.String("channel", r.channel))

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return nil
		case msg, ok := <-messages:
			if !ok {
				return errors.New("relay subscription closed")
			}
			r.deliver(ctx, msg.Payload)
		}
	}
}

func (r *Relay) deliver(ctx context.Context, payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.logger.Warn("relay dropped malformed message", slog.String("error", err.Error()))
		return
	}
	if err := r.local.Publish(ctx, env.Topic, env.Event); err != nil {
		r.logger.Error("relay delivery failed",
			slog.String("topic", env.Topic),
			slog.String("event", string(env.Event.Type)),
			slog.String("error", err.Error()))
	}
}
