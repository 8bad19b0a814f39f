package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/oggyb/soulmate-hub/internal/cache"
)

// RedisBus carries routed deliveries between server instances over a Redis
// pub/sub channel. Each instance runs one subscriber feeding its own hub.
type RedisBus struct {
	cache   *cache.RedisCache
	channel string
	logger  *slog.Logger

	ready     chan struct{}
	readyOnce sync.Once
}

func NewRedisBus(rc *cache.RedisCache, channel string, logger *slog.Logger) *RedisBus {
	if channel == "" {
		channel = "relay:events"
	}
	return &RedisBus{
		cache:   rc,
		channel: channel,
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// Publish sends d to every subscribed instance.
func (b *RedisBus) Publish(ctx context.Context, d Delivery) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return b.cache.Publish(ctx, b.channel, raw)
}

// Ready is closed once the subscription is confirmed.
func (b *RedisBus) Ready() <-chan struct{} { return b.ready }

// Run subscribes and hands every delivery to hub until ctx ends.
func (b *RedisBus) Run(ctx context.Context, hub *Hub) error {
	sub := b.cache.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	b.readyOnce.Do(func() { close(b.ready) })
	b.logger.Info("relay bus subscribed", "channel", b.channel)

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var d Delivery
			if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
				b.logger.Warn("dropping malformed bus message", "err", err)
				continue
			}
			hub.Deliver(d)
		}
	}
}
