package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/soulmate-hub/internal/db"
	svcErr "github.com/oggyb/soulmate-hub/internal/errors"
)

// AccountRepository reads and writes login accounts in the auth store.
type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(database *gorm.DB) *AccountRepository {
	return &AccountRepository{db: database}
}

// Create inserts a new account; a taken email yields svcErr.ErrConflict.
func (r *AccountRepository) Create(ctx context.Context, a *db.AuthAccount) error {
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).
		Create(a)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return svcErr.ErrConflict
	}
	return nil
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*db.AuthAccount, error) {
	var a db.AuthAccount
	err := r.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepository) TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&db.AuthAccount{}).Where("id = ?", id).Update("last_login_at", at).Error
}

func (r *AccountRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&db.AuthAccount{}, "id = ?", id).Error
}
