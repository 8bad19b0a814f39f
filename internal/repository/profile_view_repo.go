package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/soulmate-hub/internal/db"
)

// ProfileViewRepository tracks who looked at whose profile.
type ProfileViewRepository struct {
	db *gorm.DB
}

func NewProfileViewRepository(database *gorm.DB) *ProfileViewRepository {
	return &ProfileViewRepository{db: database}
}

// Record notes a visit by viewer on viewed. first is true when this is the
// viewer's first ever visit, which makes them a new guest.
func (r *ProfileViewRepository) Record(ctx context.Context, viewerID, viewedID uuid.UUID, at time.Time) (first bool, err error) {
	row := db.ProfileView{ViewerID: viewerID, ViewedID: viewedID, ViewCount: 1, LastViewedAt: at}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "viewer_id"}, {Name: "viewed_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	err = r.db.WithContext(ctx).
		Model(&db.ProfileView{}).
		Where("viewer_id = ? AND viewed_id = ?", viewerID, viewedID).
		Updates(map[string]any{
			"view_count":     gorm.Expr("view_count + 1"),
			"last_viewed_at": at,
		}).Error
	return false, err
}

// Guests returns the most recent visitors of viewedID.
func (r *ProfileViewRepository) Guests(ctx context.Context, viewedID uuid.UUID, limit int) ([]db.ProfileView, error) {
	var rows []db.ProfileView
	err := r.db.WithContext(ctx).
		Where("viewed_id = ?", viewedID).
		Order("last_viewed_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
