package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/soulmate-hub/internal/db"
)

// SecurityEventRepository is the durable side of the access audit log.
type SecurityEventRepository struct {
	db *gorm.DB
}

func NewSecurityEventRepository(database *gorm.DB) *SecurityEventRepository {
	return &SecurityEventRepository{db: database}
}

func (r *SecurityEventRepository) Append(ctx context.Context, e *db.SecurityEvent) error {
	return r.db.WithContext(ctx).Create(e).Error
}

// Recent returns the newest events, optionally filtered by severity and actor.
func (r *SecurityEventRepository) Recent(ctx context.Context, limit int, severity, actorID string) ([]db.SecurityEvent, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit)
	if severity != "" {
		q = q.Where("severity = ?", severity)
	}
	if actorID != "" {
		q = q.Where("actor_id = ?", actorID)
	}
	var rows []db.SecurityEvent
	err := q.Find(&rows).Error
	return rows, err
}

// PruneOlderThan applies the retention policy.
func (r *SecurityEventRepository) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&db.SecurityEvent{})
	return res.RowsAffected, res.Error
}
