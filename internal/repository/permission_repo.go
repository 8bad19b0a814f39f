package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oggyb/soulmate-hub/internal/db"
)

// PermissionRepository stores moderator permission grants.
type PermissionRepository struct {
	db *gorm.DB
}

func NewPermissionRepository(database *gorm.DB) *PermissionRepository {
	return &PermissionRepository{db: database}
}

// List returns the permissions granted to userID, sorted by name.
func (r *PermissionRepository) List(ctx context.Context, userID uuid.UUID) ([]string, error) {
	var perms []string
	err := r.db.WithContext(ctx).
		Model(&db.ModeratorPermission{}).
		Where("user_id = ?", userID).
		Order("permission ASC").
		Pluck("permission", &perms).Error
	return perms, err
}

// Has reports whether userID holds perm.
func (r *PermissionRepository) Has(ctx context.Context, userID uuid.UUID, perm string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.ModeratorPermission{}).
		Where("user_id = ? AND permission = ?", userID, perm).
		Count(&count).Error
	return count > 0, err
}

// Replace swaps userID's grant set for perms in one transaction.
func (r *PermissionRepository) Replace(ctx context.Context, userID uuid.UUID, perms []string, grantedBy uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&db.ModeratorPermission{}).Error; err != nil {
			return err
		}
		if len(perms) == 0 {
			return nil
		}
		rows := make([]db.ModeratorPermission, 0, len(perms))
		for _, p := range perms {
			rows = append(rows, db.ModeratorPermission{UserID: userID, Permission: p, GrantedBy: grantedBy})
		}
		return tx.Create(&rows).Error
	})
}
