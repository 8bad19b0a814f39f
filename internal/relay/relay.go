package relay

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Publisher emits a change event on one of the upstream channels.
// payload is marshalled to JSON.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload any) error
}

// Relay routes upstream events to rooms. With a bus attached, deliveries
// travel through Redis so every instance's hub sees them; otherwise they go
// straight to the local hub.
type Relay struct {
	hub    *Hub
	bus    *RedisBus
	logger *slog.Logger
}

func New(hub *Hub, logger *slog.Logger) *Relay {
	return &Relay{hub: hub, logger: logger}
}

// WithBus enables cross-instance fan-out.
func (r *Relay) WithBus(bus *RedisBus) *Relay {
	r.bus = bus
	return r
}

func (r *Relay) Hub() *Hub { return r.hub }

// Publish implements Publisher for direct mode.
func (r *Relay) Publish(ctx context.Context, channel string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	r.Dispatch(ctx, channel, raw)
	return nil
}

// Dispatch routes one raw notification. Unknown channels and malformed
// payloads are logged and dropped.
func (r *Relay) Dispatch(ctx context.Context, channel string, payload []byte) {
	d, err := Route(channel, payload)
	if err != nil {
		r.logger.Warn("dropping relay event", "channel", channel, "err", err)
		return
	}
	r.Emit(ctx, d)
}

// Emit sends an already routed delivery.
func (r *Relay) Emit(ctx context.Context, d Delivery) {
	if r.bus != nil {
		err := r.bus.Publish(ctx, d)
		if err == nil {
			return
		}
		r.logger.Warn("relay bus publish failed, delivering locally", "room", d.Room, "err", err)
	}
	r.hub.Deliver(d)
}
