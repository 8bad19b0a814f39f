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

// ConversationRepository covers conversations and their messages.
type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(database *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: database}
}

// GetOrCreate returns the conversation between a and b, creating it on first
// use. Participants are stored in canonical order.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, a, b uuid.UUID) (*db.Conversation, bool, error) {
	p1, p2 := db.CanonicalPair(a, b)
	row := db.Conversation{Participant1ID: p1, Participant2ID: p2}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "participant1_id"}, {Name: "participant2_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return &row, true, nil
	}

	var existing db.Conversation
	err := r.db.WithContext(ctx).
		Where("participant1_id = ? AND participant2_id = ?", p1, p2).
		First(&existing).Error
	if err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.Conversation, error) {
	var c db.Conversation
	err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListForUser returns userID's conversations, most recently active first.
func (r *ConversationRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]db.Conversation, error) {
	var rows []db.Conversation
	err := r.db.WithContext(ctx).
		Where("participant1_id = ? OR participant2_id = ?", userID, userID).
		Order("updated_at DESC, id DESC").
		Find(&rows).Error
	return rows, err
}

// PartnerIDs returns everyone userID has a conversation with.
func (r *ConversationRepository) PartnerIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
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

// CreateMessage stores m and bumps the conversation's updated_at.
func (r *ConversationRepository) CreateMessage(ctx context.Context, m *db.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		return tx.Model(&db.Conversation{}).
			Where("id = ?", m.ConversationID).
			Update("updated_at", m.CreatedAt).Error
	})
}

// ListMessages returns a page of messages, newest first.
func (r *ConversationRepository) ListMessages(
	ctx context.Context,
	conversationID uuid.UUID,
	paginationToken string,
	limit int,
) ([]db.Message, *string, error) {
	cursor, err := pagination.Decode(paginationToken)
	if err != nil {
		return nil, nil, svcErr.Invalid("cursor", err.Error())
	}

	query := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		Limit(limit + 1)
	if !cursor.IsZero() {
		ts := cursor.Time()
		query = query.Where("(created_at < ? OR (created_at = ? AND id < ?))", ts, ts, cursor.ID)
	}

	var rows []db.Message
	if err := query.Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	var nextToken *string
	if len(rows) > limit {
		last := rows[limit-1]
		token, _ := pagination.Encode(pagination.At(last.ID.String(), last.CreatedAt))
		nextToken = &token
		rows = rows[:limit]
	}
	return rows, nextToken, nil
}
