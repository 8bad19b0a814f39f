package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/soulmate-hub/internal/db"
	svcErr "github.com/oggyb/soulmate-hub/internal/errors"
	"github.com/oggyb/soulmate-hub/internal/utils/pagination"
)

// SwipeRepository provides data access methods for the Swipe model.
// It encapsulates all queries related to left/right decisions between users.
type SwipeRepository struct {
	db *gorm.DB
}

// NewSwipeRepository creates a new repository bound to the given DB connection.
func NewSwipeRepository(database *gorm.DB) *SwipeRepository {
	return &SwipeRepository{db: database}
}

// WithTx returns a copy of the repository bound to tx.
func (r *SwipeRepository) WithTx(tx *gorm.DB) *SwipeRepository {
	return &SwipeRepository{db: tx}
}

// Create records actor's decision on target.
//
// Behavior:
//   - Insert uses ON CONFLICT (user_id, target_user_id) DO NOTHING.
//   - Zero affected rows means the pair was already decided; returns
//     svcErr.ErrDuplicateSwipe and the existing row is left untouched.
//   - Two concurrent submissions for the same pair: exactly one wins.
//
// Example:
//
//	repo.Create(ctx, &db.Swipe{UserID: a, TargetUserID: b, Direction: db.DirectionRight})
func (r *SwipeRepository) Create(ctx context.Context, s *db.Swipe) error {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "target_user_id"}},
			DoNothing: true,
		}).
		Create(s)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return svcErr.ErrDuplicateSwipe
	}
	return nil
}

// Get returns actor's swipe on target.
func (r *SwipeRepository) Get(ctx context.Context, actorID, targetID uuid.UUID) (*db.Swipe, error) {
	var s db.Swipe
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND target_user_id = ?", actorID, targetID).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// HasRightSwiped checks whether actor swiped right on target.
//
// Used by match detection to look for the reciprocal swipe.
func (r *SwipeRepository) HasRightSwiped(ctx context.Context, actorID, targetID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Swipe{}).
		Where("user_id = ? AND target_user_id = ? AND direction = ?", actorID, targetID, db.DirectionRight).
		Count(&count).Error
	return count > 0, err
}

// Delete removes actor's swipe on target and reports the removed row.
func (r *SwipeRepository) Delete(ctx context.Context, actorID, targetID uuid.UUID) (*db.Swipe, error) {
	s, err := r.Get(ctx, actorID, targetID)
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Delete(&db.Swipe{}, "id = ?", s.ID).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// CountLikesReceived returns how many right swipes target has received.
// Used in conjunction with Redis cache (DB is fallback).
func (r *SwipeRepository) CountLikesReceived(ctx context.Context, targetID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Swipe{}).
		Where("target_user_id = ? AND direction = ?", targetID, db.DirectionRight).
		Count(&count).Error
	return count, err
}

// MutualPair is a pair of users who swiped right on each other.
type MutualPair struct {
	UserA uuid.UUID
	UserB uuid.UUID
}

// MutualWithoutMatch finds mutual right swipes that have no match row.
//
// Behavior:
//   - Self-join on swipes, both directions right.
//   - Each unordered pair reported once (a.user_id < a.target_user_id).
//   - Pairs already present in matches, in either column order, are skipped.
func (r *SwipeRepository) MutualWithoutMatch(ctx context.Context, limit int) ([]MutualPair, error) {
	var rows []struct {
		UserID       uuid.UUID
		TargetUserID uuid.UUID
	}
	err := r.db.WithContext(ctx).
		Table("swipes a").
		Select("a.user_id, a.target_user_id").
		Joins("JOIN swipes b ON b.user_id = a.target_user_id AND b.target_user_id = a.user_id").
		Where("a.direction = ? AND b.direction = ?", db.DirectionRight, db.DirectionRight).
		Where("a.user_id < a.target_user_id").
		Where(`NOT EXISTS (
			SELECT 1 FROM matches m
			WHERE (m.user1_id = a.user_id AND m.user2_id = a.target_user_id)
			   OR (m.user1_id = a.target_user_id AND m.user2_id = a.user_id)
		)`).
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]MutualPair, 0, len(rows))
	for _, row := range rows {
		out = append(out, MutualPair{UserA: row.UserID, UserB: row.TargetUserID})
	}
	return out, nil
}

// ListLikers returns the right swipes received by targetID, newest first.
//
// Behavior:
//   - Likers that targetID has swiped left on are excluded.
//   - onlyUndecided also drops likers targetID has swiped right on, leaving
//     the ones still waiting for an answer.
//   - Ordered by created_at DESC, id DESC with keyset pagination.
func (r *SwipeRepository) ListLikers(
	ctx context.Context,
	targetID uuid.UUID,
	paginationToken string,
	limit int,
	onlyUndecided bool,
) ([]db.Swipe, *string, error) {
	cursor, err := pagination.Decode(paginationToken)
	if err != nil {
		return nil, nil, svcErr.Invalid("cursor", err.Error())
	}

	query := r.db.WithContext(ctx).
		Table("swipes s").
		Select("s.*").
		Where("s.target_user_id = ? AND s.direction = ?", targetID, db.DirectionRight).
		Order("s.created_at DESC, s.id DESC").
		Limit(limit + 1)
	if onlyUndecided {
		query = query.Where(`NOT EXISTS (
			SELECT 1 FROM swipes r
			WHERE r.user_id = ? AND r.target_user_id = s.user_id
		)`, targetID)
	} else {
		query = query.Where(`NOT EXISTS (
			SELECT 1 FROM swipes r
			WHERE r.user_id = ? AND r.target_user_id = s.user_id AND r.direction = ?
		)`, targetID, db.DirectionLeft)
	}

	// apply cursor
	if !cursor.IsZero() {
		ts := cursor.Time()
		query = query.Where("(s.created_at < ? OR (s.created_at = ? AND s.id < ?))", ts, ts, cursor.ID)
	}

	var rows []db.Swipe
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
