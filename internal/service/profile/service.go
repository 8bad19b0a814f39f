// Package profile serves the self-managed part of the profile store:
// creation, edits, discovery and profile visits.
package profile

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/oggyb/soulmate-hub/internal/app"
	"github.com/oggyb/soulmate-hub/internal/db"
	svcErr "github.com/oggyb/soulmate-hub/internal/errors"
	"github.com/oggyb/soulmate-hub/internal/relay"
	"github.com/oggyb/soulmate-hub/internal/repository"
	"github.com/oggyb/soulmate-hub/internal/service/notify"
)

const (
	maxPhotos        = 6
	defaultDiscover  = 20
	maxDiscover      = 100
	defaultGuestPage = 50
)

type Service struct {
	appCtx    *app.AppContext
	profiles  *repository.ProfileRepository
	views     *repository.ProfileViewRepository
	notifier  *notify.Service
	publisher relay.Publisher
	now       func() time.Time
}

func NewService(appCtx *app.AppContext, notifier *notify.Service, publisher relay.Publisher) *Service {
	return &Service{
		appCtx:    appCtx,
		profiles:  repository.NewProfileRepository(appCtx.DB),
		views:     repository.NewProfileViewRepository(appCtx.DB),
		notifier:  notifier,
		publisher: publisher,
		now:       db.Now,
	}
}

// Fields is the self-editable subset of a profile. Nil means unchanged.
// Role, subscription and ban state are deliberately absent.
type Fields struct {
	Name     *string   `json:"name"`
	Age      *int      `json:"age"`
	Gender   *string   `json:"gender"`
	Bio      *string   `json:"bio"`
	Location *string   `json:"location"`
	Photos   *[]string `json:"photos"`
}

func (f Fields) validate() error {
	var v svcErr.Validator
	if f.Name != nil {
		name := strings.TrimSpace(*f.Name)
		v.Check(name != "" && len(name) <= 128, "name", "must be 1-128 characters")
	}
	if f.Age != nil {
		v.Check(*f.Age >= 18 && *f.Age <= 120, "age", "must be between 18 and 120")
	}
	if f.Gender != nil {
		v.Check(len(*f.Gender) <= 32, "gender", "is too long")
	}
	if f.Bio != nil {
		v.Check(len(*f.Bio) <= 2000, "bio", "must be at most 2000 characters")
	}
	if f.Location != nil {
		v.Check(len(*f.Location) <= 255, "location", "is too long")
	}
	if f.Photos != nil {
		v.Check(len(*f.Photos) <= maxPhotos, "photos", "at most 6 photos")
	}
	return v.Err()
}

func (f Fields) columns() (map[string]any, error) {
	cols := map[string]any{}
	if f.Name != nil {
		cols["name"] = strings.TrimSpace(*f.Name)
	}
	if f.Age != nil {
		cols["age"] = *f.Age
	}
	if f.Gender != nil {
		cols["gender"] = *f.Gender
	}
	if f.Bio != nil {
		cols["bio"] = *f.Bio
	}
	if f.Location != nil {
		cols["location"] = *f.Location
	}
	if f.Photos != nil {
		raw, err := json.Marshal(*f.Photos)
		if err != nil {
			return nil, err
		}
		cols["photos"] = datatypes.JSON(raw)
	}
	return cols, nil
}

// Create makes the caller's profile when the account was provisioned by an
// external identity provider. The id is always the caller's.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, email string, f Fields) (*db.Profile, error) {
	if f.Name == nil {
		return nil, svcErr.Invalid("name", "is required")
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	if _, err := s.profiles.GetByID(ctx, userID); err == nil {
		return nil, svcErr.ErrConflict
	} else if !svcErr.Is(err, svcErr.ErrNotFound) {
		return nil, err
	}

	p := &db.Profile{ID: userID, Email: strings.ToLower(strings.TrimSpace(email)), Role: db.RoleRegistered}
	p.Name = strings.TrimSpace(*f.Name)
	if f.Age != nil {
		p.Age = *f.Age
	}
	if f.Gender != nil {
		p.Gender = *f.Gender
	}
	if f.Bio != nil {
		p.Bio = *f.Bio
	}
	if f.Location != nil {
		p.Location = *f.Location
	}
	if f.Photos != nil {
		raw, err := json.Marshal(*f.Photos)
		if err != nil {
			return nil, err
		}
		p.Photos = raw
	}

	if err := s.profiles.Create(ctx, p); err != nil {
		return nil, err
	}
	s.appCtx.Logger.Info("profile created", "user_id", userID)
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*db.Profile, error) {
	return s.profiles.GetByID(ctx, id)
}

// Update applies a self-edit and relays the new state on profile_changes.
// Only the profile owner may edit it; anyone else gets svcErr.ErrForbidden.
func (s *Service) Update(ctx context.Context, actorID, id uuid.UUID, f Fields) (*db.Profile, error) {
	if actorID != id {
		return nil, svcErr.ErrForbidden
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	cols, err := f.columns()
	if err != nil {
		return nil, err
	}
	if len(cols) > 0 {
		if err := s.profiles.Update(ctx, id, cols); err != nil {
			return nil, err
		}
	}

	p, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(cols) > 0 {
		s.publishChange(ctx, p)
	}
	return p, nil
}

func (s *Service) publishChange(ctx context.Context, p *db.Profile) {
	data, err := json.Marshal(map[string]any{
		"id":         p.ID,
		"name":       p.Name,
		"bio":        p.Bio,
		"location":   p.Location,
		"photos":     p.PhotoList(),
		"role":       p.Role,
		"updated_at": p.UpdatedAt,
	})
	if err != nil {
		return
	}
	s.publish(ctx, relay.ChannelProfileChanges, relay.ProfileChange{UserID: p.ID.String(), Data: data})
}

// Discover returns profiles userID has not swiped on yet, excluding banned
// profiles and userID itself.
func (s *Service) Discover(ctx context.Context, userID uuid.UUID, limit int) ([]db.Profile, error) {
	if limit <= 0 {
		limit = defaultDiscover
	}
	if limit > maxDiscover {
		limit = maxDiscover
	}
	return s.profiles.Discover(ctx, userID, limit)
}

// RecordView notes that viewer opened viewed's profile.
//
// Behavior:
//   - Viewing your own profile records nothing.
//   - Every view relays profile_view to the viewed user and emits a
//     profile_view notification (kept only for gold and above).
//   - The first view by a viewer also relays new_guest.
//   - A missing or banned profile returns svcErr.ErrNotFound.
func (s *Service) RecordView(ctx context.Context, viewerID, viewedID uuid.UUID) error {
	if viewerID == viewedID {
		return nil
	}
	viewed, err := s.profiles.GetByID(ctx, viewedID)
	if err != nil {
		return err
	}
	if viewed.IsBanned {
		return svcErr.ErrNotFound
	}

	at := s.now()
	first, err := s.views.Record(ctx, viewerID, viewedID, at)
	if err != nil {
		return err
	}

	viewer := viewerID
	if _, err := s.notifier.Emit(ctx, notify.Event{Type: db.NotificationProfileView, Recipient: viewedID, RelatedUser: &viewer}); err != nil {
		s.appCtx.Logger.Warn("profile view notification failed", "viewed", viewedID, "err", err)
	}

	stamp := at.Format(time.RFC3339)
	if first {
		s.publish(ctx, relay.ChannelNewGuest, relay.NewGuest{
			UserID:    viewedID.String(),
			GuestID:   viewerID.String(),
			CreatedAt: stamp,
		})
	}
	s.publish(ctx, relay.ChannelProfileView, relay.ProfileView{
		ViewedID:  viewedID.String(),
		ViewerID:  viewerID.String(),
		CreatedAt: stamp,
	})
	return nil
}

// Guest is one visitor of a profile.
type Guest struct {
	UserID       uuid.UUID `json:"user_id"`
	Name         string    `json:"name"`
	Photos       []string  `json:"photos"`
	ViewCount    int       `json:"view_count"`
	LastViewedAt time.Time `json:"last_viewed_at"`
}

// Guests lists the most recent visitors of userID. Visitors whose profile
// is gone are skipped.
func (s *Service) Guests(ctx context.Context, userID uuid.UUID, limit int) ([]Guest, error) {
	if limit <= 0 || limit > defaultGuestPage {
		limit = defaultGuestPage
	}
	rows, err := s.views.Guests(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ViewerID)
	}
	profiles, err := s.profiles.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]Guest, 0, len(rows))
	for _, r := range rows {
		p, ok := profiles[r.ViewerID]
		if !ok {
			continue
		}
		out = append(out, Guest{
			UserID:       r.ViewerID,
			Name:         p.Name,
			Photos:       p.PhotoList(),
			ViewCount:    r.ViewCount,
			LastViewedAt: r.LastViewedAt,
		})
	}
	return out, nil
}

func (s *Service) publish(ctx context.Context, channel string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, channel, payload); err != nil {
		s.appCtx.Logger.Warn("relay publish failed", "channel", channel, "err", err)
	}
}
