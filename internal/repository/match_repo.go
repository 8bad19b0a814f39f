package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/soulmate-hub/internal/db"
	svcErr "github.com/oggyb/soulmate-hub/internal/errors"
)

// MatchRepository provides data access methods for the Match model.
// Pairs are always stored canonically (see db.CanonicalPair).
type MatchRepository struct {
	db *gorm.DB
}

// NewMatchRepository creates a new repository bound to the given DB connection.
func NewMatchRepository(database *gorm.DB) *MatchRepository {
	return &MatchRepository{db: database}
}

// WithTx returns a copy of the repository bound to tx.
func (r *MatchRepository) WithTx(tx *gorm.DB) *MatchRepository {
	return &MatchRepository{db: tx}
}

// Ensure creates the match for {a, b} if it does not exist and returns the
// stored row either way.
//
// Behavior:
//   - Pair is canonicalized before insert and lookup.
//   - Insert uses ON CONFLICT DO NOTHING on idx_match_pair, so repeated or
//     concurrent calls converge on one row.
//   - created reports whether this call inserted it.
func (r *MatchRepository) Ensure(ctx context.Context, a, b uuid.UUID) (m *db.Match, created bool, err error) {
	u1, u2 := db.CanonicalPair(a, b)
	row := db.Match{User1ID: u1, User2ID: u2}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user1_id"}, {Name: "user2_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return &row, true, nil
	}

	existing, err := r.GetByPair(ctx, a, b)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetByPair looks the match up regardless of argument order.
func (r *MatchRepository) GetByPair(ctx context.Context, a, b uuid.UUID) (*db.Match, error) {
	u1, u2 := db.CanonicalPair(a, b)
	var m db.Match
	err := r.db.WithContext(ctx).Where("user1_id = ? AND user2_id = ?", u1, u2).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Exists reports whether a and b are matched.
func (r *MatchRepository) Exists(ctx context.Context, a, b uuid.UUID) (bool, error) {
	_, err := r.GetByPair(ctx, a, b)
	if errors.Is(err, svcErr.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// ListForUser returns userID's matches, newest first.
func (r *MatchRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]db.Match, error) {
	var rows []db.Match
	err := r.db.WithContext(ctx).
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	return rows, err
}

// PartnerIDs returns the ids matched with userID.
func (r *MatchRepository) PartnerIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for i := range rows {
		ids = append(ids, rows[i].Other(userID))
	}
	return ids, nil
}

// DeleteByPair removes the match between a and b, returning it. A missing
// match yields (nil, nil).
func (r *MatchRepository) DeleteByPair(ctx context.Context, a, b uuid.UUID) (*db.Match, error) {
	m, err := r.GetByPair(ctx, a, b)
	if errors.Is(err, svcErr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Delete(&db.Match{}, "id = ?", m.ID).Error; err != nil {
		return nil, err
	}
	return m, nil
}
