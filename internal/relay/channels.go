// Package relay fans backend change events out to connected sockets.
//
// Events enter through a fixed set of named channels (the same names the
// Postgres triggers NOTIFY on). Each channel has exactly one handler that
// turns the payload into a Delivery: a room plus a client event. Delivery is
// at-most-once; nothing is buffered for sockets that are not connected.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Upstream channels.
const (
	ChannelProfileChanges = "profile_changes"
	ChannelNewMessage     = "new_message"
	ChannelNewMatch       = "new_match"
	ChannelNewGuest       = "new_guest"
	ChannelSuperLike      = "super_like"
	ChannelProfileView    = "profile_view"
	ChannelCallSignal     = "call_signal"
)

// Channels is the LISTEN set. Changing it needs matching trigger changes.
var Channels = []string{
	ChannelProfileChanges,
	ChannelNewMessage,
	ChannelNewMatch,
	ChannelNewGuest,
	ChannelSuperLike,
	ChannelProfileView,
	ChannelCallSignal,
}

// Client-facing events.
const (
	EventProfileUpdate = "profile:update"
	EventMessageNew    = "message:new"
	EventMatchNew      = "match:new"
	EventGuestNew      = "guest:new"
	EventSuperLikeNew  = "superlike:new"
	EventProfileViewed = "profile:viewed"
	EventCallSignal    = "call:signal"
	EventTypingStart   = "typing:start"
	EventTypingStop    = "typing:stop"
	EventWebRTCOffer   = "webrtc:offer"
	EventWebRTCAnswer  = "webrtc:answer"
	EventWebRTCICE     = "webrtc:ice-candidate"
	EventPresence      = "presence:update"
	EventJoin          = "conversation:join"
	EventLeave         = "conversation:leave"
	EventJoined        = "conversation:joined"
	EventLeft          = "conversation:left"
	EventError         = "error"
)

var (
	ErrUnknownChannel = errors.New("relay: unknown channel")
	ErrBadPayload     = errors.New("relay: malformed payload")
)

func UserRoom(id string) string         { return "user:" + id }
func ConversationRoom(id string) string { return "conversation:" + id }

// Delivery is one routed event. Exclude names a user whose sockets skip it.
type Delivery struct {
	Room    string          `json:"room"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
	Exclude string          `json:"exclude,omitempty"`
}

// Upstream payloads, as emitted by triggers and publishers.

type ProfileChange struct {
	UserID string          `json:"user_id"`
	Data   json.RawMessage `json:"data"`
}

type NewMessage struct {
	ConversationID string          `json:"conversation_id"`
	SenderID       string          `json:"sender_id"`
	Message        json.RawMessage `json:"message"`
}

type NewMatch struct {
	UserID      string `json:"user_id"`
	MatchedWith string `json:"matched_with"`
	MatchID     string `json:"match_id"`
}

type NewGuest struct {
	UserID    string `json:"user_id"`
	GuestID   string `json:"guest_id"`
	CreatedAt string `json:"created_at"`
}

type SuperLike struct {
	ToUserID   string `json:"to_user_id"`
	FromUserID string `json:"from_user_id"`
	CreatedAt  string `json:"created_at"`
}

type ProfileView struct {
	ViewedID  string `json:"viewed_id"`
	ViewerID  string `json:"viewer_id"`
	CreatedAt string `json:"created_at"`
}

type CallSignal struct {
	ReceiverID string `json:"receiver_id"`
	CallerID   string `json:"caller_id"`
	CallType   string `json:"call_type"`
	Status     string `json:"status"`
	SessionID  string `json:"session_id"`
}

type handler func(payload []byte) (Delivery, error)

var handlers = map[string]handler{
	ChannelProfileChanges: func(payload []byte) (Delivery, error) {
		var p ProfileChange
		if err := decode(payload, &p); err != nil {
			return Delivery{}, err
		}
		if err := requireID(p.UserID); err != nil {
			return Delivery{}, err
		}
		data := p.Data
		if len(data) == 0 {
			data = json.RawMessage("null")
		}
		return Delivery{Room: UserRoom(p.UserID), Event: EventProfileUpdate, Data: data}, nil
	},

	ChannelNewMessage: func(payload []byte) (Delivery, error) {
		var p NewMessage
		if err := decode(payload, &p); err != nil {
			return Delivery{}, err
		}
		if err := requireID(p.ConversationID); err != nil {
			return Delivery{}, err
		}
		if len(p.Message) == 0 || string(p.Message) == "null" {
			return Delivery{}, fmt.Errorf("%w: message missing", ErrBadPayload)
		}
		return Delivery{Room: ConversationRoom(p.ConversationID), Event: EventMessageNew, Data: p.Message}, nil
	},

	ChannelNewMatch: func(payload []byte) (Delivery, error) {
		var p NewMatch
		if err := decode(payload, &p); err != nil {
			return Delivery{}, err
		}
		if err := requireID(p.UserID, p.MatchedWith, p.MatchID); err != nil {
			return Delivery{}, err
		}
		return deliver(UserRoom(p.UserID), EventMatchNew, map[string]string{
			"matchedWith": p.MatchedWith,
			"matchId":     p.MatchID,
		})
	},

	ChannelNewGuest: func(payload []byte) (Delivery, error) {
		var p NewGuest
		if err := decode(payload, &p); err != nil {
			return Delivery{}, err
		}
		if err := requireID(p.UserID, p.GuestID); err != nil {
			return Delivery{}, err
		}
		return deliver(UserRoom(p.UserID), EventGuestNew, map[string]string{
			"guestId":   p.GuestID,
			"createdAt": p.CreatedAt,
		})
	},

	ChannelSuperLike: func(payload []byte) (Delivery, error) {
		var p SuperLike
		if err := decode(payload, &p); err != nil {
			return Delivery{}, err
		}
		if err := requireID(p.ToUserID, p.FromUserID); err != nil {
			return Delivery{}, err
		}
		return deliver(UserRoom(p.ToUserID), EventSuperLikeNew, map[string]string{
			"fromUserId": p.FromUserID,
			"createdAt":  p.CreatedAt,
		})
	},

	ChannelProfileView: func(payload []byte) (Delivery, error) {
		var p ProfileView
		if err := decode(payload, &p); err != nil {
			return Delivery{}, err
		}
		if err := requireID(p.ViewedID, p.ViewerID); err != nil {
			return Delivery{}, err
		}
		return deliver(UserRoom(p.ViewedID), EventProfileViewed, map[string]string{
			"viewerId":  p.ViewerID,
			"createdAt": p.CreatedAt,
		})
	},

	ChannelCallSignal: func(payload []byte) (Delivery, error) {
		var p CallSignal
		if err := decode(payload, &p); err != nil {
			return Delivery{}, err
		}
		if err := requireID(p.ReceiverID, p.CallerID); err != nil {
			return Delivery{}, err
		}
		return deliver(UserRoom(p.ReceiverID), EventCallSignal, map[string]string{
			"callerId":  p.CallerID,
			"callType":  p.CallType,
			"status":    p.Status,
			"sessionId": p.SessionID,
		})
	},
}

// Route maps one upstream notification to its delivery.
func Route(channel string, payload []byte) (Delivery, error) {
	h, ok := handlers[channel]
	if !ok {
		return Delivery{}, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	return h(payload)
}

// Known reports whether channel is in the fixed set.
func Known(channel string) bool {
	_, ok := handlers[channel]
	return ok
}

func decode(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

func requireID(ids ...string) error {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return fmt.Errorf("%w: bad id %q", ErrBadPayload, id)
		}
	}
	return nil
}

func deliver(room, event string, data any) (Delivery, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Delivery{}, err
	}
	return Delivery{Room: room, Event: event, Data: raw}, nil
}
