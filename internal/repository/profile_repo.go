package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oggyb/soulmate-hub/internal/db"
	svcErr "github.com/oggyb/soulmate-hub/internal/errors"
)

// Quota kinds tracked on the profile row.
const (
	QuotaLikes      = "daily_likes_used"
	QuotaSuperLikes = "daily_super_likes_used"
	QuotaBoosts     = "daily_boosts_used"
)

// ProfileRepository provides data access methods for the Profile model.
type ProfileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a new repository bound to the given DB connection.
func NewProfileRepository(database *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: database}
}

// WithTx returns a copy of the repository bound to tx.
func (r *ProfileRepository) WithTx(tx *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: tx}
}

func (r *ProfileRepository) Create(ctx context.Context, p *db.Profile) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// GetByID loads one profile; a missing row becomes svcErr.ErrNotFound.
func (r *ProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.Profile, error) {
	var p db.Profile
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetMany loads profiles by id, keyed by id. Missing ids are simply absent.
func (r *ProfileRepository) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]db.Profile, error) {
	out := make(map[uuid.UUID]db.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []db.Profile
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

// Update writes the given columns. Callers decide which columns are
// writable; this layer does no filtering.
func (r *ProfileRepository) Update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&db.Profile{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return svcErr.ErrNotFound
	}
	return nil
}

func (r *ProfileRepository) SetRole(ctx context.Context, id uuid.UUID, role db.Role) error {
	return r.Update(ctx, id, map[string]any{"role": role})
}

// SetBan sets or clears the ban flag. Clearing also clears the reason.
func (r *ProfileRepository) SetBan(ctx context.Context, id uuid.UUID, banned bool, reason *string) error {
	if !banned {
		reason = nil
	}
	return r.Update(ctx, id, map[string]any{"is_banned": banned, "ban_reason": reason})
}

// SetSubscription moves the profile onto tier until expiresAt.
func (r *ProfileRepository) SetSubscription(ctx context.Context, id uuid.UUID, tier db.Role, expiresAt time.Time) error {
	return r.Update(ctx, id, map[string]any{
		"role":                    tier,
		"subscription_tier":       string(tier),
		"subscription_status":     "active",
		"subscription_expires_at": expiresAt,
	})
}

// Delete removes the profile together with the rows that reference it.
func (r *ProfileRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		steps := []struct {
			model any
			where string
		}{
			{&db.Swipe{}, "user_id = ? OR target_user_id = ?"},
			{&db.Match{}, "user1_id = ? OR user2_id = ?"},
			{&db.Notification{}, "user_id = ? OR related_user_id = ?"},
			{&db.ProfileView{}, "viewer_id = ? OR viewed_id = ?"},
		}
		for _, s := range steps {
			if err := tx.Where(s.where, id, id).Delete(s.model).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("user_id = ?", id).Delete(&db.ModeratorPermission{}).Error; err != nil {
			return err
		}

		var convIDs []uuid.UUID
		if err := tx.Model(&db.Conversation{}).
			Where("participant1_id = ? OR participant2_id = ?", id, id).
			Pluck("id", &convIDs).Error; err != nil {
			return err
		}
		if len(convIDs) > 0 {
			if err := tx.Where("conversation_id IN ?", convIDs).Delete(&db.Message{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", convIDs).Delete(&db.Conversation{}).Error; err != nil {
				return err
			}
		}

		res := tx.Delete(&db.Profile{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return svcErr.ErrNotFound
		}
		return nil
	})
}

// List returns profiles ordered by creation time, newest first.
func (r *ProfileRepository) List(ctx context.Context, offset, limit int) ([]db.Profile, int64, error) {
	var (
		rows  []db.Profile
		total int64
	)
	if err := r.db.WithContext(ctx).Model(&db.Profile{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&rows).Error
	return rows, total, err
}

// Discover returns candidates for userID: not userID, not banned, and not
// already swiped on by userID.
func (r *ProfileRepository) Discover(ctx context.Context, userID uuid.UUID, limit int) ([]db.Profile, error) {
	swiped := r.db.Model(&db.Swipe{}).Select("target_user_id").Where("user_id = ?", userID)

	var rows []db.Profile
	err := r.db.WithContext(ctx).
		Where("id <> ?", userID).
		Where("is_banned = ?", false).
		Where("id NOT IN (?)", swiped).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ConsumeQuota spends one unit of the named daily counter.
//
// Counters from an earlier UTC day are zeroed first. The increment is a
// single conditional UPDATE, so concurrent callers cannot overspend; limit<0
// means unlimited.
func (r *ProfileRepository) ConsumeQuota(ctx context.Context, id uuid.UUID, column string, limit int, now time.Time) error {
	switch column {
	case QuotaLikes, QuotaSuperLikes, QuotaBoosts:
	default:
		return svcErr.New("unknown quota " + column)
	}

	dayStart := StartOfDay(now)
	if err := r.db.WithContext(ctx).Model(&db.Profile{}).
		Where("id = ? AND last_like_reset_at < ?", id, dayStart).
		Updates(map[string]any{
			QuotaLikes:           0,
			QuotaSuperLikes:      0,
			QuotaBoosts:          0,
			"last_like_reset_at": now,
		}).Error; err != nil {
		return err
	}

	q := r.db.WithContext(ctx).Model(&db.Profile{}).Where("id = ?", id)
	if limit >= 0 {
		q = q.Where(column+" < ?", limit)
	}
	res := q.UpdateColumn(column, gorm.Expr(column+" + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return svcErr.ErrQuotaExceeded
	}
	return nil
}

// ResetDailyUsage zeroes every counter whose last reset is before the
// current UTC day. Returns how many profiles were reset.
func (r *ProfileRepository) ResetDailyUsage(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&db.Profile{}).
		Where("last_like_reset_at < ?", StartOfDay(now)).
		Updates(map[string]any{
			QuotaLikes:           0,
			QuotaSuperLikes:      0,
			QuotaBoosts:          0,
			"last_like_reset_at": now,
		})
	return res.RowsAffected, res.Error
}

// ListExpiring returns active subscriptions ending in [now, now+window).
func (r *ProfileRepository) ListExpiring(ctx context.Context, now time.Time, window time.Duration) ([]db.Profile, error) {
	var rows []db.Profile
	err := r.db.WithContext(ctx).
		Where("subscription_status = ?", "active").
		Where("subscription_expires_at >= ? AND subscription_expires_at < ?", now, now.Add(window)).
		Find(&rows).Error
	return rows, err
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
