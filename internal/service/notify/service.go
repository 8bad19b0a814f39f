// Package notify writes and serves the per-user notification feed.
package notify

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/oggyb/soulmate-hub/internal/app"
	"github.com/oggyb/soulmate-hub/internal/db"
	svcErr "github.com/oggyb/soulmate-hub/internal/errors"
	"github.com/oggyb/soulmate-hub/internal/repository"
	"github.com/oggyb/soulmate-hub/internal/utils/pagination"
)

// Event is one domain occurrence worth a notification.
type Event struct {
	Type      db.NotificationType
	Recipient uuid.UUID

	// RelatedUser is the other party (liker, sender, viewer, match partner).
	RelatedUser *uuid.UUID
	MatchID     *uuid.UUID
	MessageID   *uuid.UUID

	Preview  string // message
	Reason   string // photo_rejected
	DaysLeft int    // subscription_expiring
	PlanName string // subscription_renewed
}

// Titles and messages are client-side translation keys.
var texts = map[db.NotificationType][2]string{
	db.NotificationMatch:                {"matchNotification", "newMatchNotificationMessage"},
	db.NotificationMessage:              {"messageNotification", "newMessageNotificationMessage"},
	db.NotificationLike:                 {"likeNotification", "likeNotificationMessage"},
	db.NotificationSuperLike:            {"superLikeNotification", "superLikeNotificationMessage"},
	db.NotificationProfileView:          {"profileViewNotification", "profileViewNotificationMessage"},
	db.NotificationPhotoApproved:        {"photoApprovedNotification", "photoApprovedNotificationMessage"},
	db.NotificationPhotoRejected:        {"photoRejectedNotification", "photoRejectedNotificationMessage"},
	db.NotificationSubscriptionExpiring: {"subscriptionExpiringNotification", "subscriptionExpiringNotificationMessage"},
	db.NotificationSubscriptionRenewed:  {"subscriptionRenewedNotification", "subscriptionRenewedNotificationMessage"},
}

// needsRelatedUser lists the kinds that carry the other party's name.
var needsRelatedUser = map[db.NotificationType]bool{
	db.NotificationMatch:       true,
	db.NotificationMessage:     true,
	db.NotificationLike:        true,
	db.NotificationSuperLike:   true,
	db.NotificationProfileView: true,
}

type Service struct {
	appCtx        *app.AppContext
	notifications *repository.NotificationRepository
	profiles      *repository.ProfileRepository
	now           func() time.Time
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:        appCtx,
		notifications: repository.NewNotificationRepository(appCtx.DB),
		profiles:      repository.NewProfileRepository(appCtx.DB),
		now:           db.Now,
	}
}

// Emit persists the notification for ev.
//
// Behavior:
//   - The related user's name is copied into Data at emission time and never
//     refreshed.
//   - If the related profile no longer exists nothing is written and
//     svcErr.ErrNotFound is returned.
//   - profile_view is only recorded for gold and above; for lower tiers Emit
//     returns (nil, nil).
//   - The cached unread counter is bumped when present.
//
// Example:
//
//	svc.Emit(ctx, notify.Event{Type: db.NotificationLike, Recipient: bob, RelatedUser: &ann})
func (s *Service) Emit(ctx context.Context, ev Event) (*db.Notification, error) {
	text, ok := texts[ev.Type]
	if !ok {
		return nil, svcErr.Invalid("type", "unknown notification type")
	}
	if ev.Recipient == uuid.Nil {
		return nil, svcErr.Invalid("recipient", "is required")
	}

	if ev.Type == db.NotificationProfileView {
		recipient, err := s.profiles.GetByID(ctx, ev.Recipient)
		if err != nil {
			return nil, err
		}
		if recipient.Role.Level() < db.RoleGold.Level() {
			return nil, nil
		}
	}

	data := map[string]any{}
	if needsRelatedUser[ev.Type] {
		if ev.RelatedUser == nil {
			return nil, svcErr.Invalid("related_user", "is required")
		}
		related, err := s.profiles.GetByID(ctx, *ev.RelatedUser)
		if err != nil {
			return nil, err
		}
		fillRelated(data, ev, related.Name)
	}

	switch ev.Type {
	case db.NotificationPhotoApproved:
		data["moderationType"] = "photo_approval"
	case db.NotificationPhotoRejected:
		data["moderationType"] = "photo_rejection"
		if ev.Reason != "" {
			data["reason"] = ev.Reason
		}
	case db.NotificationSubscriptionExpiring:
		data["daysLeft"] = ev.DaysLeft
	case db.NotificationSubscriptionRenewed:
		data["planName"] = ev.PlanName
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	n := &db.Notification{
		UserID:           ev.Recipient,
		Type:             ev.Type,
		Title:            text[0],
		Message:          text[1],
		RelatedUserID:    ev.RelatedUser,
		RelatedMatchID:   ev.MatchID,
		RelatedMessageID: ev.MessageID,
		Data:             datatypes.JSON(raw),
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		return nil, err
	}

	key := s.appCtx.RedisCache.KeyForUnread(ev.Recipient)
	if err := s.appCtx.RedisCache.AdjustCounter(ctx, key, 1); err != nil {
		s.appCtx.Logger.Warn("failed to bump unread counter", "user_id", ev.Recipient, "err", err)
	}

	s.appCtx.Logger.Debug("notification emitted", "type", ev.Type, "user_id", ev.Recipient)
	return n, nil
}

func fillRelated(data map[string]any, ev Event, name string) {
	id := ev.RelatedUser.String()
	switch ev.Type {
	case db.NotificationMatch:
		data["matchedUserId"] = id
		data["matchedUserName"] = name
		if ev.MatchID != nil {
			data["matchId"] = ev.MatchID.String()
		}
	case db.NotificationMessage:
		data["senderId"] = id
		data["senderName"] = name
		data["preview"] = ev.Preview
		if ev.MessageID != nil {
			data["messageId"] = ev.MessageID.String()
		}
	case db.NotificationLike, db.NotificationSuperLike:
		data["likerId"] = id
		data["likerName"] = name
	case db.NotificationProfileView:
		data["viewerId"] = id
		data["viewerName"] = name
	}
}

// UserSummary is the related user as shown next to a notification.
type UserSummary struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Photos []string  `json:"photos"`
}

type Item struct {
	db.Notification
	RelatedUser *UserSummary `json:"related_user,omitempty"`
}

type Page struct {
	Items     []Item  `json:"notifications"`
	NextToken *string `json:"next_page_token,omitempty"`
}

// List returns a page of userID's notifications, newest first, each with a
// summary of the related user when that profile still exists.
func (s *Service) List(ctx context.Context, userID uuid.UUID, token string, limit int, unreadOnly bool) (*Page, error) {
	rows, next, err := s.notifications.List(ctx, userID, token, pagination.ClampLimit(limit), unreadOnly)
	if err != nil {
		return nil, err
	}

	var ids []uuid.UUID
	for _, n := range rows {
		if n.RelatedUserID != nil {
			ids = append(ids, *n.RelatedUserID)
		}
	}
	related, err := s.profiles.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	page := &Page{Items: make([]Item, 0, len(rows)), NextToken: next}
	for _, n := range rows {
		item := Item{Notification: n}
		if n.RelatedUserID != nil {
			if p, ok := related[*n.RelatedUserID]; ok {
				item.RelatedUser = &UserSummary{ID: p.ID, Name: p.Name, Photos: p.PhotoList()}
			}
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

// UnreadCount returns how many unread notifications userID has.
// Cache-first strategy:
//  1. Attempts to read from Redis (notifications:unread:userID).
//  2. On a miss, counts in the DB and stores the result with a 1h TTL.
func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	key := s.appCtx.RedisCache.KeyForUnread(userID)

	if n, ok, err := s.appCtx.RedisCache.GetCounter(ctx, key); err == nil && ok {
		return n, nil
	} else if err != nil {
		s.appCtx.Logger.Warn("unread counter lookup failed", "user_id", userID, "err", err)
	}

	count, err := s.notifications.CountUnread(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := s.appCtx.RedisCache.SetCounter(ctx, key, count); err != nil {
		s.appCtx.Logger.Warn("failed to cache unread counter", "user_id", userID, "err", err)
	}
	return count, nil
}

// MarkRead marks one notification read. Only the recipient may do so;
// anyone else gets svcErr.ErrNotFound. Repeating the call is a no-op.
func (s *Service) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	changed, err := s.notifications.MarkRead(ctx, id, userID, s.now())
	if err != nil {
		return err
	}
	if changed {
		_ = s.appCtx.RedisCache.AdjustCounter(ctx, s.appCtx.RedisCache.KeyForUnread(userID), -1)
	}
	return nil
}

// MarkAllRead marks all of userID's notifications read.
func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.notifications.MarkAllRead(ctx, userID, s.now())
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, userID)
	return n, nil
}

// DeleteForRewind removes what a reversed swipe produced: the like and
// super_like sent to target about actor and, when matchID is set, both
// sides' match notifications.
func (s *Service) DeleteForRewind(ctx context.Context, actorID, targetID uuid.UUID, matchID *uuid.UUID) error {
	if _, err := s.notifications.DeleteByRelatedUser(ctx, targetID, actorID,
		db.NotificationLike, db.NotificationSuperLike); err != nil {
		return err
	}
	if matchID != nil {
		if err := s.DeleteByMatch(ctx, *matchID, actorID, targetID); err != nil {
			return err
		}
	}
	s.invalidate(ctx, targetID)
	return nil
}

// DeleteByMatch removes every notification tied to matchID. The unread
// counters of the given participants are dropped from the cache.
func (s *Service) DeleteByMatch(ctx context.Context, matchID uuid.UUID, participants ...uuid.UUID) error {
	if _, err := s.notifications.DeleteByMatch(ctx, matchID); err != nil {
		return err
	}
	s.invalidate(ctx, participants...)
	return nil
}

// Cleanup deletes read notifications older than the given age.
func (s *Service) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := s.notifications.DeleteReadOlderThan(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	s.appCtx.Logger.Info("old notifications removed", "count", n)
	return n, nil
}

// NotifyExpiring emits subscription_expiring for every active subscription
// ending within window. A user is notified at most once per UTC day.
func (s *Service) NotifyExpiring(ctx context.Context, window time.Duration) (int, error) {
	now := s.now()
	profiles, err := s.profiles.ListExpiring(ctx, now, window)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, p := range profiles {
		done, err := s.notifications.ExistsSince(ctx, p.ID, db.NotificationSubscriptionExpiring, repository.StartOfDay(now))
		if err != nil {
			return sent, err
		}
		if done {
			continue
		}

		days := int(math.Ceil(p.SubscriptionExpiresAt.Sub(now).Hours() / 24))
		if _, err := s.Emit(ctx, Event{
			Type:      db.NotificationSubscriptionExpiring,
			Recipient: p.ID,
			DaysLeft:  days,
		}); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

func (s *Service) invalidate(ctx context.Context, userIDs ...uuid.UUID) {
	if len(userIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, s.appCtx.RedisCache.KeyForUnread(id))
	}
	if err := s.appCtx.RedisCache.Del(ctx, keys...); err != nil {
		s.appCtx.Logger.Warn("failed to drop unread counters", "err", err)
	}
}
