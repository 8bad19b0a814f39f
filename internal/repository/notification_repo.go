package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oggyb/soulmate-hub/internal/db"
	svcErr "github.com/oggyb/soulmate-hub/internal/errors"
	"github.com/oggyb/soulmate-hub/internal/utils/pagination"
)

// NotificationRepository provides data access methods for the Notification model.
type NotificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new repository bound to the given DB connection.
func NewNotificationRepository(database *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: database}
}

func (r *NotificationRepository) Create(ctx context.Context, n *db.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

// List returns userID's notifications, newest first.
//
// Behavior:
//   - Ordered by created_at DESC, id DESC.
//   - Supports cursor-based pagination via paginationToken.
//   - unreadOnly restricts to is_read = false.
func (r *NotificationRepository) List(
	ctx context.Context,
	userID uuid.UUID,
	paginationToken string,
	limit int,
	unreadOnly bool,
) ([]db.Notification, *string, error) {
	cursor, err := pagination.Decode(paginationToken)
	if err != nil {
		return nil, nil, svcErr.Invalid("cursor", err.Error())
	}

	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit + 1)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	// apply cursor
	if !cursor.IsZero() {
		ts := cursor.Time()
		query = query.Where("(created_at < ? OR (created_at = ? AND id < ?))", ts, ts, cursor.ID)
	}

	var rows []db.Notification
	if err := query.Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	// pagination: build next cursor if needed
	var nextToken *string
	if len(rows) > limit {
		last := rows[limit-1]
		token, _ := pagination.Encode(pagination.At(last.ID.String(), last.CreatedAt))
		nextToken = &token
		rows = rows[:limit]
	}
	return rows, nextToken, nil
}

// CountUnread returns userID's unread notifications.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

// MarkRead marks one of userID's notifications read.
//
// Behavior:
//   - read_at = max(now, created_at), so read_at never precedes created_at.
//   - Already-read rows are left unchanged (idempotent; read_at keeps its
//     first value).
//   - changed reports whether this call flipped the flag.
//   - A notification owned by someone else is reported as not found.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID uuid.UUID, now time.Time) (changed bool, err error) {
	var n db.Notification
	err = r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, svcErr.ErrNotFound
	}
	if err != nil {
		return false, err
	}
	if n.IsRead {
		return false, nil
	}

	readAt := now
	if readAt.Before(n.CreatedAt) {
		readAt = n.CreatedAt
	}
	res := r.db.WithContext(ctx).
		Model(&db.Notification{}).
		Where("id = ? AND is_read = ?", id, false).
		Updates(map[string]any{"is_read": true, "read_at": readAt})
	return res.RowsAffected > 0, res.Error
}

// MarkAllRead marks every unread notification of userID read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Where("created_at <= ?", now).
		Updates(map[string]any{"is_read": true, "read_at": now})
	return res.RowsAffected, res.Error
}

// DeleteByRelatedUser removes notifications of the given types addressed to
// recipient about relatedUser. Used by rewind.
func (r *NotificationRepository) DeleteByRelatedUser(
	ctx context.Context,
	recipientID, relatedUserID uuid.UUID,
	types ...db.NotificationType,
) (int64, error) {
	q := r.db.WithContext(ctx).Where("user_id = ? AND related_user_id = ?", recipientID, relatedUserID)
	if len(types) > 0 {
		q = q.Where("type IN ?", types)
	}
	res := q.Delete(&db.Notification{})
	return res.RowsAffected, res.Error
}

// DeleteByMatch removes every notification tied to matchID.
func (r *NotificationRepository) DeleteByMatch(ctx context.Context, matchID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Where("related_match_id = ?", matchID).Delete(&db.Notification{})
	return res.RowsAffected, res.Error
}

// DeleteReadOlderThan removes read notifications created before cutoff.
func (r *NotificationRepository) DeleteReadOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("is_read = ? AND created_at < ?", true, cutoff).
		Delete(&db.Notification{})
	return res.RowsAffected, res.Error
}

// ExistsSince reports whether userID already has a notification of type t
// created at or after since. Keeps periodic jobs from repeating themselves.
func (r *NotificationRepository) ExistsSince(ctx context.Context, userID uuid.UUID, t db.NotificationType, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Notification{}).
		Where("user_id = ? AND type = ? AND created_at >= ?", userID, t, since).
		Count(&count).Error
	return count > 0, err
}
