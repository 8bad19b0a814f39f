// Package chat handles conversations between matched users, their messages
// and call signalling.
package chat

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/oggyb/soulmate-hub/internal/app"
	"github.com/oggyb/soulmate-hub/internal/db"
	svcErr "github.com/oggyb/soulmate-hub/internal/errors"
	"github.com/oggyb/soulmate-hub/internal/relay"
	"github.com/oggyb/soulmate-hub/internal/repository"
	"github.com/oggyb/soulmate-hub/internal/service/notify"
)

const (
	maxMessageLen   = 5000
	previewLen      = 100
	defaultPageSize = 50
	maxPageSize     = 100
)

var (
	callTypes    = map[string]bool{"audio": true, "video": true}
	callStatuses = map[string]bool{
		"initiated": true, "ringing": true, "accepted": true,
		"rejected": true, "ended": true, "missed": true,
	}
)

type Service struct {
	appCtx        *app.AppContext
	conversations *repository.ConversationRepository
	matches       *repository.MatchRepository
	profiles      *repository.ProfileRepository
	notifier      *notify.Service
	publisher     relay.Publisher
}

func NewService(appCtx *app.AppContext, notifier *notify.Service, publisher relay.Publisher) *Service {
	return &Service{
		appCtx:        appCtx,
		conversations: repository.NewConversationRepository(appCtx.DB),
		matches:       repository.NewMatchRepository(appCtx.DB),
		profiles:      repository.NewProfileRepository(appCtx.DB),
		notifier:      notifier,
		publisher:     publisher,
	}
}

// GetOrCreateConversation returns the conversation between userID and
// participantID. Only matched users may talk; anyone else gets
// svcErr.ErrForbidden.
func (s *Service) GetOrCreateConversation(ctx context.Context, userID, participantID uuid.UUID) (*db.Conversation, error) {
	if participantID == uuid.Nil || participantID == userID {
		return nil, svcErr.Invalid("participant_id", "must be another user")
	}
	matched, err := s.matches.Exists(ctx, userID, participantID)
	if err != nil {
		return nil, err
	}
	if !matched {
		return nil, svcErr.ErrForbidden
	}

	c, created, err := s.conversations.GetOrCreate(ctx, userID, participantID)
	if err != nil {
		return nil, err
	}
	if created {
		s.appCtx.Logger.Debug("conversation created", "conversation_id", c.ID)
	}
	return c, nil
}

// ConversationView is one conversation from the viewer's side.
type ConversationView struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	Photos    []string  `json:"photos"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListConversations returns userID's conversations, most recent first.
func (s *Service) ListConversations(ctx context.Context, userID uuid.UUID) ([]ConversationView, error) {
	rows, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for i := range rows {
		ids = append(ids, rows[i].Other(userID))
	}
	profiles, err := s.profiles.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]ConversationView, 0, len(rows))
	for i := range rows {
		other := rows[i].Other(userID)
		view := ConversationView{ID: rows[i].ID, UserID: other, UpdatedAt: rows[i].UpdatedAt}
		if p, ok := profiles[other]; ok {
			view.Name = p.Name
			view.Photos = p.PhotoList()
		}
		out = append(out, view)
	}
	return out, nil
}

type MessagePage struct {
	Messages  []db.Message `json:"messages"`
	NextToken *string      `json:"next_page_token,omitempty"`
}

// ListMessages returns a page of the conversation, newest first. Only
// participants may read it.
func (s *Service) ListMessages(ctx context.Context, userID, conversationID uuid.UUID, token string, limit int) (*MessagePage, error) {
	if _, err := s.participantConversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	rows, next, err := s.conversations.ListMessages(ctx, conversationID, token, limit)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []db.Message{}
	}
	return &MessagePage{Messages: rows, NextToken: next}, nil
}

// SendMessage stores a message from senderID.
//
// Behavior:
//   - The sender must be a participant; otherwise svcErr.ErrForbidden.
//   - Content is trimmed and must be 1-5000 characters.
//   - After the insert the other participant gets a message notification
//     and the conversation room gets new_message. Failures there are logged
//     only.
func (s *Service) SendMessage(ctx context.Context, senderID, conversationID uuid.UUID, content string) (*db.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" || utf8.RuneCountInString(content) > maxMessageLen {
		return nil, svcErr.Invalid("content", "must be 1-5000 characters")
	}
	conv, err := s.participantConversation(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}

	m := &db.Message{ConversationID: conversationID, SenderID: senderID, Content: content, CreatedAt: db.Now()}
	if err := s.conversations.CreateMessage(ctx, m); err != nil {
		return nil, err
	}

	recipient := conv.Other(senderID)
	sender := senderID
	messageID := m.ID
	if _, err := s.notifier.Emit(ctx, notify.Event{
		Type:        db.NotificationMessage,
		Recipient:   recipient,
		RelatedUser: &sender,
		MessageID:   &messageID,
		Preview:     preview(content),
	}); err != nil {
		s.appCtx.Logger.Warn("message notification failed", "recipient", recipient, "err", err)
	}

	raw, err := json.Marshal(m)
	if err == nil {
		s.publish(ctx, relay.ChannelNewMessage, relay.NewMessage{
			ConversationID: conversationID.String(),
			SenderID:       senderID.String(),
			Message:        raw,
		})
	}
	return m, nil
}

func preview(content string) string {
	if utf8.RuneCountInString(content) <= previewLen {
		return content
	}
	return string([]rune(content)[:previewLen]) + "..."
}

type CallInput struct {
	ReceiverID uuid.UUID `json:"receiver_id"`
	CallType   string    `json:"call_type"`
	Status     string    `json:"status"`
	SessionID  string    `json:"session_id"`
}

// SendCallSignal relays a call state change to the receiver. Calls are
// only possible between matched users.
func (s *Service) SendCallSignal(ctx context.Context, callerID uuid.UUID, in CallInput) error {
	var v svcErr.Validator
	v.Check(in.ReceiverID != uuid.Nil && in.ReceiverID != callerID, "receiver_id", "must be another user")
	v.Check(callTypes[in.CallType], "call_type", "must be audio or video")
	v.Check(callStatuses[in.Status], "status", "unknown call status")
	v.Check(in.SessionID != "" && len(in.SessionID) <= 128, "session_id", "is required")
	if err := v.Err(); err != nil {
		return err
	}

	matched, err := s.matches.Exists(ctx, callerID, in.ReceiverID)
	if err != nil {
		return err
	}
	if !matched {
		return svcErr.ErrForbidden
	}

	s.publish(ctx, relay.ChannelCallSignal, relay.CallSignal{
		ReceiverID: in.ReceiverID.String(),
		CallerID:   callerID.String(),
		CallType:   in.CallType,
		Status:     in.Status,
		SessionID:  in.SessionID,
	})
	return nil
}

// IsParticipant reports whether userID belongs to the conversation. A
// missing conversation is simply false.
func (s *Service) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	c, err := s.conversations.GetByID(ctx, conversationID)
	if svcErr.Is(err, svcErr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return c.HasParticipant(userID), nil
}

// Partners returns everyone userID is matched or talking with, once each.
func (s *Service) Partners(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	matched, err := s.matches.PartnerIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	talking, err := s.conversations.PartnerIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]bool, len(matched)+len(talking))
	out := make([]uuid.UUID, 0, len(matched)+len(talking))
	for _, id := range append(matched, talking...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *Service) participantConversation(ctx context.Context, conversationID, userID uuid.UUID) (*db.Conversation, error) {
	c, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !c.HasParticipant(userID) {
		return nil, svcErr.ErrForbidden
	}
	return c, nil
}

func (s *Service) publish(ctx context.Context, channel string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, channel, payload); err != nil {
		s.appCtx.Logger.Warn("relay publish failed", "channel", channel, "err", err)
	}
}
