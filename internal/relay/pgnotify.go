package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
)

// triggerBacked channels are raised by table triggers; publishing them again
// from code would deliver every event twice.
var triggerBacked = map[string]bool{
	ChannelProfileChanges: true,
	ChannelNewMessage:     true,
	ChannelNewMatch:       true,
	ChannelNewGuest:       true,
	ChannelSuperLike:      true,
	ChannelProfileView:    true,
}

// PGNotifyPublisher is the Publisher used in listen mode. Events without a
// trigger are sent with pg_notify so the listener of every instance sees
// them.
type PGNotifyPublisher struct {
	db *gorm.DB
}

func NewPGNotifyPublisher(db *gorm.DB) *PGNotifyPublisher {
	return &PGNotifyPublisher{db: db}
}

func (p *PGNotifyPublisher) Publish(ctx context.Context, channel string, payload any) error {
	if !Known(channel) {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	if triggerBacked[channel] {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", channel, string(raw)).Error
}
