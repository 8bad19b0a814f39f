// Package swipe records swipe decisions and detects matches.
package swipe

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oggyb/soulmate-hub/internal/app"
	"github.com/oggyb/soulmate-hub/internal/db"
	svcErr "github.com/oggyb/soulmate-hub/internal/errors"
	"github.com/oggyb/soulmate-hub/internal/relay"
	"github.com/oggyb/soulmate-hub/internal/repository"
	"github.com/oggyb/soulmate-hub/internal/service/notify"
	"github.com/oggyb/soulmate-hub/internal/utils/pagination"
)

type Service struct {
	appCtx    *app.AppContext
	profiles  *repository.ProfileRepository
	swipes    *repository.SwipeRepository
	matches   *repository.MatchRepository
	notifier  *notify.Service
	publisher relay.Publisher
	now       func() time.Time
}

func NewService(appCtx *app.AppContext, notifier *notify.Service, publisher relay.Publisher) *Service {
	return &Service{
		appCtx:    appCtx,
		profiles:  repository.NewProfileRepository(appCtx.DB),
		swipes:    repository.NewSwipeRepository(appCtx.DB),
		matches:   repository.NewMatchRepository(appCtx.DB),
		notifier:  notifier,
		publisher: publisher,
		now:       db.Now,
	}
}

type Input struct {
	ActorID   uuid.UUID
	TargetID  uuid.UUID
	Direction db.Direction
	SuperLike bool
}

type Result struct {
	Swipe   *db.Swipe `json:"swipe"`
	Match   *db.Match `json:"match,omitempty"`
	IsMatch bool      `json:"is_match"`
}

// RecordSwipe stores actor's decision on target and reports a match when
// the target had already swiped right on actor.
//
// Behavior:
//   - A second decision for the same ordered pair fails with
//     svcErr.ErrDuplicateSwipe, including two concurrent submissions.
//   - Right swipes spend the daily like (or super-like) quota of the
//     actor's role; an exhausted quota fails with svcErr.ErrQuotaExceeded
//     and nothing is stored.
//   - Swipe insert, quota spend and match creation share one transaction.
//   - Notifications and relay events are sent after commit; their failures
//     are logged and never undo the swipe.
//
// Example:
//
//	svc.RecordSwipe(ctx, swipe.Input{ActorID: ann, TargetID: bob, Direction: db.DirectionRight})
func (s *Service) RecordSwipe(ctx context.Context, in Input) (*Result, error) {
	var v svcErr.Validator
	v.Check(in.ActorID != uuid.Nil, "user_id", "is required")
	v.Check(in.TargetID != uuid.Nil, "target_user_id", "is required")
	v.Check(in.Direction.Valid(), "direction", "must be left or right")
	v.Check(in.ActorID != in.TargetID, "target_user_id", "cannot swipe on yourself")
	v.Check(!in.SuperLike || in.Direction == db.DirectionRight, "direction", "super likes are right swipes")
	if err := v.Err(); err != nil {
		return nil, err
	}

	actor, err := s.profiles.GetByID(ctx, in.ActorID)
	if err != nil {
		return nil, err
	}
	if actor.IsBanned {
		return nil, svcErr.ErrBanned
	}
	target, err := s.profiles.GetByID(ctx, in.TargetID)
	if err != nil {
		return nil, err
	}
	if target.IsBanned {
		return nil, svcErr.ErrNotFound
	}

	result := &Result{Swipe: &db.Swipe{
		UserID:       in.ActorID,
		TargetUserID: in.TargetID,
		Direction:    in.Direction,
		SuperLike:    in.SuperLike,
	}}
	var matchCreated bool

	err = s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.swipes.WithTx(tx).Create(ctx, result.Swipe); err != nil {
			return err
		}
		if in.Direction != db.DirectionRight {
			return nil
		}

		limits := DailyLimits(actor.Role)
		column, limit := repository.QuotaLikes, limits.Likes
		if in.SuperLike {
			column, limit = repository.QuotaSuperLikes, limits.SuperLikes
		}
		if err := s.profiles.WithTx(tx).ConsumeQuota(ctx, in.ActorID, column, limit, s.now()); err != nil {
			return err
		}

		reciprocal, err := s.swipes.WithTx(tx).HasRightSwiped(ctx, in.TargetID, in.ActorID)
		if err != nil || !reciprocal {
			return err
		}
		result.Match, matchCreated, err = s.matches.WithTx(tx).Ensure(ctx, in.ActorID, in.TargetID)
		return err
	})
	if err != nil {
		if !errors.Is(err, svcErr.ErrDuplicateSwipe) && !errors.Is(err, svcErr.ErrQuotaExceeded) {
			s.appCtx.Logger.Error("RecordSwipe failed", "actor", in.ActorID, "target", in.TargetID, "err", err)
		}
		return nil, err
	}
	if in.Direction == db.DirectionRight && result.Match == nil {
		result.Match, matchCreated = s.recheckMatch(ctx, in.ActorID, in.TargetID)
	}
	result.IsMatch = result.Match != nil

	s.appCtx.Logger.Debug("swipe recorded",
		"actor", in.ActorID, "target", in.TargetID, "direction", in.Direction, "is_match", result.IsMatch)

	if in.Direction == db.DirectionRight {
		s.afterLike(ctx, result.Swipe, result.IsMatch)
	}
	if matchCreated {
		s.afterMatch(ctx, result.Match)
	}
	return result, nil
}

// recheckMatch looks for the reciprocal right swipe again after commit.
// Two opposite swipes committed at the same moment cannot see each other
// inside their transactions; whichever side gets here second finds the
// other row. Errors are logged only: the swipe is already stored and
// Reconcile picks up anything left.
func (s *Service) recheckMatch(ctx context.Context, actorID, targetID uuid.UUID) (*db.Match, bool) {
	reciprocal, err := s.swipes.HasRightSwiped(ctx, targetID, actorID)
	if err != nil {
		s.appCtx.Logger.Warn("match recheck failed", "actor", actorID, "target", targetID, "err", err)
		return nil, false
	}
	if !reciprocal {
		return nil, false
	}
	m, created, err := s.matches.Ensure(ctx, actorID, targetID)
	if err != nil {
		s.appCtx.Logger.Warn("match recheck failed", "actor", actorID, "target", targetID, "err", err)
		return nil, false
	}
	return m, created
}

// afterLike tells the target about a right swipe that did not produce a
// match and keeps the cached like counter current.
func (s *Service) afterLike(ctx context.Context, sw *db.Swipe, matched bool) {
	key := s.appCtx.RedisCache.KeyForLikeCount(sw.TargetUserID)
	if err := s.appCtx.RedisCache.AdjustCounter(ctx, key, 1); err != nil {
		s.appCtx.Logger.Warn("failed to bump like counter", "user_id", sw.TargetUserID, "err", err)
	}

	if sw.SuperLike {
		s.publish(ctx, relay.ChannelSuperLike, relay.SuperLike{
			ToUserID:   sw.TargetUserID.String(),
			FromUserID: sw.UserID.String(),
			CreatedAt:  sw.CreatedAt.Format(time.RFC3339),
		})
	}
	if matched {
		return
	}

	kind := db.NotificationLike
	if sw.SuperLike {
		kind = db.NotificationSuperLike
	}
	actor := sw.UserID
	if _, err := s.notifier.Emit(ctx, notify.Event{Type: kind, Recipient: sw.TargetUserID, RelatedUser: &actor}); err != nil {
		s.appCtx.Logger.Warn("like notification failed", "recipient", sw.TargetUserID, "err", err)
	}
}

// afterMatch notifies both participants, once per side.
func (s *Service) afterMatch(ctx context.Context, m *db.Match) {
	for _, side := range [][2]uuid.UUID{{m.User1ID, m.User2ID}, {m.User2ID, m.User1ID}} {
		recipient, other := side[0], side[1]
		matchID := m.ID
		if _, err := s.notifier.Emit(ctx, notify.Event{
			Type:        db.NotificationMatch,
			Recipient:   recipient,
			RelatedUser: &other,
			MatchID:     &matchID,
		}); err != nil {
			s.appCtx.Logger.Warn("match notification failed", "recipient", recipient, "err", err)
		}
		s.publish(ctx, relay.ChannelNewMatch, relay.NewMatch{
			UserID:      recipient.String(),
			MatchedWith: other.String(),
			MatchID:     m.ID.String(),
		})
	}
}

func (s *Service) publish(ctx context.Context, channel string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, channel, payload); err != nil {
		s.appCtx.Logger.Warn("relay publish failed", "channel", channel, "err", err)
	}
}

type RewindResult struct {
	Swipe        *db.Swipe `json:"swipe"`
	RemovedMatch *db.Match `json:"removed_match,omitempty"`
}

// Rewind takes back actor's decision on target.
//
// Behavior:
//   - Deletes the swipe and any match between the two in one transaction.
//   - Removes the like/super_like notification the target received and
//     both sides' match notifications.
//   - Spent quota is not refunded.
//   - No swipe to rewind returns svcErr.ErrNotFound.
func (s *Service) Rewind(ctx context.Context, actorID, targetID uuid.UUID) (*RewindResult, error) {
	result := &RewindResult{}
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if result.Swipe, err = s.swipes.WithTx(tx).Delete(ctx, actorID, targetID); err != nil {
			return err
		}
		result.RemovedMatch, err = s.matches.WithTx(tx).DeleteByPair(ctx, actorID, targetID)
		return err
	})
	if err != nil {
		return nil, err
	}

	var matchID *uuid.UUID
	if result.RemovedMatch != nil {
		matchID = &result.RemovedMatch.ID
	}
	if err := s.notifier.DeleteForRewind(ctx, actorID, targetID, matchID); err != nil {
		s.appCtx.Logger.Warn("rewind notification cleanup failed", "actor", actorID, "err", err)
	}
	if result.Swipe.Direction == db.DirectionRight {
		_ = s.appCtx.RedisCache.AdjustCounter(ctx, s.appCtx.RedisCache.KeyForLikeCount(targetID), -1)
	}

	s.appCtx.Logger.Info("swipe rewound", "actor", actorID, "target", targetID, "match_removed", matchID != nil)
	return result, nil
}

// MatchView is one match from the viewer's side.
type MatchView struct {
	MatchID   uuid.UUID `json:"match_id"`
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	Photos    []string  `json:"photos"`
	CreatedAt time.Time `json:"created_at"`
}

// ListMatches returns userID's matches, newest first, with the other
// party's id and display data.
func (s *Service) ListMatches(ctx context.Context, userID uuid.UUID) ([]MatchView, error) {
	rows, err := s.matches.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for i := range rows {
		ids = append(ids, rows[i].Other(userID))
	}
	profiles, err := s.profiles.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]MatchView, 0, len(rows))
	for i := range rows {
		other := rows[i].Other(userID)
		view := MatchView{MatchID: rows[i].ID, UserID: other, CreatedAt: rows[i].CreatedAt}
		if p, ok := profiles[other]; ok {
			view.Name = p.Name
			view.Photos = p.PhotoList()
		}
		out = append(out, view)
	}
	return out, nil
}

// LikesReceived returns how many right swipes userID has received.
// Cache-first strategy:
//  1. Attempts to read from Redis (likes:count:userID).
//  2. On a miss, counts in the DB and caches the value with a 1h TTL.
func (s *Service) LikesReceived(ctx context.Context, userID uuid.UUID) (int64, error) {
	key := s.appCtx.RedisCache.KeyForLikeCount(userID)
	if n, ok, err := s.appCtx.RedisCache.GetCounter(ctx, key); err == nil && ok {
		return n, nil
	}

	count, err := s.swipes.CountLikesReceived(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := s.appCtx.RedisCache.SetCounter(ctx, key, count); err != nil {
		s.appCtx.Logger.Warn("failed to cache like counter", "user_id", userID, "err", err)
	}
	return count, nil
}

// Reconcile creates matches for mutual right swipes that have none, which
// happens when both sides swipe at the same moment. Returns the number of
// matches created.
func (s *Service) Reconcile(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = 500
	}
	pairs, err := s.swipes.MutualWithoutMatch(ctx, batch)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, p := range pairs {
		m, isNew, err := s.matches.Ensure(ctx, p.UserA, p.UserB)
		if err != nil {
			return created, err
		}
		if isNew {
			created++
			s.afterMatch(ctx, m)
		}
	}
	if created > 0 {
		s.appCtx.Logger.Info("missing matches reconciled", "count", created)
	}
	return created, nil
}

// RunReconciler calls Reconcile every interval until ctx is done. A
// non-positive interval returns at once.
func (s *Service) RunReconciler(ctx context.Context, interval time.Duration, batch int) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Reconcile(ctx, batch); err != nil && ctx.Err() == nil {
				s.appCtx.Logger.Error("match reconcile failed", "err", err)
			}
		}
	}
}

// ResetQuotas zeroes the daily like, super like and boost counters of every
// profile not yet reset today. ConsumeQuota resets lazily as well; this is
// the nightly sweep.
func (s *Service) ResetQuotas(ctx context.Context) (int64, error) {
	n, err := s.profiles.ResetDailyUsage(ctx, s.now())
	if err != nil {
		return 0, err
	}
	s.appCtx.Logger.Info("daily quotas reset", "count", n)
	return n, nil
}

// Liker is one profile that swiped right on the viewer.
type Liker struct {
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	Age       int       `json:"age"`
	Bio       string    `json:"bio"`
	Location  string    `json:"location"`
	Photos    []string  `json:"photos"`
	SuperLike bool      `json:"super_like"`
	LikedAt   time.Time `json:"liked_at"`
}

// LikersPage is one page of Likers.
type LikersPage struct {
	Likers        []Liker `json:"likers"`
	NextPageToken *string `json:"next_page_token,omitempty"`
}

// Likers lists who liked the viewer.
//
// Behavior:
//   - Requires silver or higher; registered viewers get a DeniedError and
//     can only see LikesReceived.
//   - onlyUndecided hides likers the viewer already answered; otherwise
//     only the ones the viewer passed on are hidden.
//   - Newest first, cursor paginated through pageToken.
func (s *Service) Likers(ctx context.Context, viewer *db.Profile, pageToken string, limit int, onlyUndecided bool) (*LikersPage, error) {
	if viewer.Role.Level() < db.RoleSilver.Level() {
		return nil, svcErr.Denied("list likers", "requires silver or higher")
	}

	rows, next, err := s.swipes.ListLikers(ctx, viewer.ID, pageToken, pagination.ClampLimit(limit), onlyUndecided)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for i := range rows {
		ids = append(ids, rows[i].UserID)
	}
	profiles, err := s.profiles.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	page := &LikersPage{Likers: make([]Liker, 0, len(rows)), NextPageToken: next}
	for i := range rows {
		p, ok := profiles[rows[i].UserID]
		if !ok || p.IsBanned {
			continue
		}
		page.Likers = append(page.Likers, Liker{
			UserID:    p.ID,
			Name:      p.Name,
			Age:       p.Age,
			Bio:       p.Bio,
			Location:  p.Location,
			Photos:    p.PhotoList(),
			SuperLike: rows[i].SuperLike,
			LikedAt:   rows[i].CreatedAt,
		})
	}
	return page, nil
}
