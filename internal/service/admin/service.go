// Package admin implements staff operations. Every operation goes through
// the access gate with the actor's and target's current roles, so the
// audit trail sees each attempt.
package admin

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/oggyb/soulmate-hub/internal/app"
	"github.com/oggyb/soulmate-hub/internal/db"
	svcErr "github.com/oggyb/soulmate-hub/internal/errors"
	"github.com/oggyb/soulmate-hub/internal/repository"
	"github.com/oggyb/soulmate-hub/internal/service/access"
	"github.com/oggyb/soulmate-hub/internal/service/notify"
)

const (
	maxSubscriptionDays = 366
	defaultUserPage     = 20
	maxUserPage         = 100
)

type Service struct {
	appCtx      *app.AppContext
	profiles    *repository.ProfileRepository
	accounts    *repository.AccountRepository
	permissions *repository.PermissionRepository
	monitor     *access.Monitor
	notifier    *notify.Service
	now         func() time.Time
}

func NewService(appCtx *app.AppContext, monitor *access.Monitor, notifier *notify.Service) *Service {
	return &Service{
		appCtx:      appCtx,
		profiles:    repository.NewProfileRepository(appCtx.DB),
		accounts:    repository.NewAccountRepository(appCtx.AuthDB),
		permissions: repository.NewPermissionRepository(appCtx.DB),
		monitor:     monitor,
		notifier:    notifier,
		now:         db.Now,
	}
}

// actor loads the caller. A missing or banned caller cannot act at all.
func (s *Service) actor(ctx context.Context, id uuid.UUID) (*db.Profile, error) {
	p, err := s.profiles.GetByID(ctx, id)
	if svcErr.Is(err, svcErr.ErrNotFound) {
		return nil, svcErr.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if p.IsBanned {
		return nil, svcErr.ErrBanned
	}
	return p, nil
}

// precheck loads the actor and runs the gate rules that need no target.
// A denial is audited before anything about the target or the payload is
// looked at, so unknown ids and bad input reveal nothing to the caller.
func (s *Service) precheck(ctx context.Context, actorID, targetID uuid.UUID, action string) (*db.Profile, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	err = s.monitor.Precheck(ctx, access.Request{
		ActorID:   actor.ID.String(),
		ActorRole: actor.Role,
		Action:    action,
		TargetID:  targetID.String(),
	})
	if err != nil {
		return nil, err
	}
	return actor, nil
}

// authorizeTarget loads the target and asks the gate about req with both
// current roles.
func (s *Service) authorizeTarget(ctx context.Context, actor *db.Profile, targetID uuid.UUID, req access.Request) (*db.Profile, error) {
	target, err := s.profiles.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	req.ActorID = actor.ID.String()
	req.ActorRole = actor.Role
	req.TargetID = target.ID.String()
	req.TargetRole = target.Role
	if err := s.monitor.Check(ctx, req); err != nil {
		return nil, err
	}
	return target, nil
}

// authorize is precheck followed by authorizeTarget, for operations whose
// payload needs no validation.
func (s *Service) authorize(ctx context.Context, actorID, targetID uuid.UUID, req access.Request) (*db.Profile, error) {
	actor, err := s.precheck(ctx, actorID, targetID, req.Action)
	if err != nil {
		return nil, err
	}
	return s.authorizeTarget(ctx, actor, targetID, req)
}

// authorizeGlobal is authorize for actions without a target user.
func (s *Service) authorizeGlobal(ctx context.Context, actorID uuid.UUID, action string) error {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return err
	}
	return s.monitor.Check(ctx, access.Request{ActorID: actor.ID.String(), ActorRole: actor.Role, Action: action})
}

type UserPage struct {
	Users []db.Profile `json:"users"`
	Total int64        `json:"total"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
}

// ListUsers pages through every profile, newest first. Pages start at 1.
func (s *Service) ListUsers(ctx context.Context, actorID uuid.UUID, page, limit int) (*UserPage, error) {
	if err := s.authorizeGlobal(ctx, actorID, access.ActionViewUserData); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultUserPage
	}
	if limit > maxUserPage {
		limit = maxUserPage
	}
	rows, total, err := s.profiles.List(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []db.Profile{}
	}
	return &UserPage{Users: rows, Total: total, Page: page, Limit: limit}, nil
}

// SetRole assigns role to target. Only admins may, only below admin, and
// never to themselves.
func (s *Service) SetRole(ctx context.Context, actorID, targetID uuid.UUID, role db.Role) (*db.Profile, error) {
	actor, err := s.precheck(ctx, actorID, targetID, access.ActionAssignRole)
	if err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, svcErr.Invalid("role", "unknown role")
	}
	target, err := s.authorizeTarget(ctx, actor, targetID, access.Request{Action: access.ActionAssignRole, NewRole: role})
	if err != nil {
		return nil, err
	}
	if err := s.profiles.SetRole(ctx, target.ID, role); err != nil {
		return nil, err
	}
	s.appCtx.Logger.Info("role assigned", "actor", actorID, "target", targetID, "from", target.Role, "to", role)
	return s.profiles.GetByID(ctx, target.ID)
}

// SetBan bans or unbans target. The reason is kept only while banned.
func (s *Service) SetBan(ctx context.Context, actorID, targetID uuid.UUID, banned bool, reason string) (*db.Profile, error) {
	actor, err := s.precheck(ctx, actorID, targetID, access.ActionBanUser)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if banned && len(reason) > 512 {
		return nil, svcErr.Invalid("reason", "must be at most 512 characters")
	}
	target, err := s.authorizeTarget(ctx, actor, targetID, access.Request{Action: access.ActionBanUser})
	if err != nil {
		return nil, err
	}

	var r *string
	if reason != "" {
		r = &reason
	}
	if err := s.profiles.SetBan(ctx, target.ID, banned, r); err != nil {
		return nil, err
	}
	s.appCtx.Logger.Info("ban updated", "actor", actorID, "target", targetID, "banned", banned)
	return s.profiles.GetByID(ctx, target.ID)
}

// DeleteUser removes target's profile with everything referencing it and
// the login account.
func (s *Service) DeleteUser(ctx context.Context, actorID, targetID uuid.UUID) error {
	target, err := s.authorize(ctx, actorID, targetID, access.Request{Action: access.ActionDeleteUser})
	if err != nil {
		return err
	}
	if err := s.profiles.Delete(ctx, target.ID); err != nil {
		return err
	}
	if err := s.accounts.Delete(ctx, target.ID); err != nil {
		s.appCtx.Logger.Error("failed to delete login account", "user_id", target.ID, "err", err)
	}
	s.appCtx.Logger.Info("user deleted", "actor", actorID, "target", targetID)
	return nil
}

// GrantSubscription moves target onto tier for days days and tells them
// with a subscription_renewed notification.
func (s *Service) GrantSubscription(ctx context.Context, actorID, targetID uuid.UUID, tier db.Role, days int) (*db.Profile, error) {
	actor, err := s.precheck(ctx, actorID, targetID, access.ActionManageSubscription)
	if err != nil {
		return nil, err
	}
	var v svcErr.Validator
	v.Check(tier.IsTier(), "tier", "must be registered, silver, gold or platinum")
	v.Check(days > 0 && days <= maxSubscriptionDays, "duration_days", "must be between 1 and 366")
	if err := v.Err(); err != nil {
		return nil, err
	}
	target, err := s.authorizeTarget(ctx, actor, targetID, access.Request{Action: access.ActionManageSubscription, NewRole: tier})
	if err != nil {
		return nil, err
	}

	expires := s.now().AddDate(0, 0, days)
	if err := s.profiles.SetSubscription(ctx, target.ID, tier, expires); err != nil {
		return nil, err
	}
	if _, err := s.notifier.Emit(ctx, notify.Event{
		Type:      db.NotificationSubscriptionRenewed,
		Recipient: target.ID,
		PlanName:  string(tier),
	}); err != nil {
		s.appCtx.Logger.Warn("subscription notification failed", "user_id", target.ID, "err", err)
	}
	return s.profiles.GetByID(ctx, target.ID)
}

// SetModeratorPermissions replaces target's grant set. Each permission is
// checked on its own; an empty set revokes everything.
func (s *Service) SetModeratorPermissions(ctx context.Context, actorID, targetID uuid.UUID, perms []string) ([]string, error) {
	perms = dedupe(perms)
	reqs := []access.Request{{Action: access.ActionGrantPermission}}
	if len(perms) > 0 {
		reqs = reqs[:0]
		for _, p := range perms {
			reqs = append(reqs, access.Request{Action: access.ActionGrantPermission, Permission: p})
		}
	}

	actor, err := s.precheck(ctx, actorID, targetID, access.ActionGrantPermission)
	if err != nil {
		return nil, err
	}
	var target *db.Profile
	for _, req := range reqs {
		if target, err = s.authorizeTarget(ctx, actor, targetID, req); err != nil {
			return nil, err
		}
	}
	if err := s.permissions.Replace(ctx, target.ID, perms, actorID); err != nil {
		return nil, err
	}
	return s.permissions.List(ctx, target.ID)
}

// GetModeratorPermissions lists target's grants.
func (s *Service) GetModeratorPermissions(ctx context.Context, actorID, targetID uuid.UUID) ([]string, error) {
	if _, err := s.authorize(ctx, actorID, targetID, access.Request{Action: access.ActionViewUserData}); err != nil {
		return nil, err
	}
	perms, err := s.permissions.List(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if perms == nil {
		perms = []string{}
	}
	return perms, nil
}

// ApprovePhoto tells target their photo passed moderation.
func (s *Service) ApprovePhoto(ctx context.Context, actorID, targetID uuid.UUID, photo string) error {
	target, err := s.authorize(ctx, actorID, targetID, access.Request{Action: access.ActionModerateContent})
	if err != nil {
		return err
	}
	s.appCtx.Logger.Info("photo approved", "actor", actorID, "target", targetID, "photo", photo)
	_, err = s.notifier.Emit(ctx, notify.Event{Type: db.NotificationPhotoApproved, Recipient: target.ID})
	return err
}

// RejectPhoto removes photo from target's profile and tells them why.
func (s *Service) RejectPhoto(ctx context.Context, actorID, targetID uuid.UUID, photo, reason string) error {
	target, err := s.authorize(ctx, actorID, targetID, access.Request{Action: access.ActionModerateContent})
	if err != nil {
		return err
	}

	if photo != "" {
		photos := target.PhotoList()
		kept := photos[:0]
		for _, p := range photos {
			if p != photo {
				kept = append(kept, p)
			}
		}
		if len(kept) != len(photos) {
			raw, err := json.Marshal(kept)
			if err != nil {
				return err
			}
			if err := s.profiles.Update(ctx, target.ID, map[string]any{"photos": datatypes.JSON(raw)}); err != nil {
				return err
			}
		}
	}

	_, err = s.notifier.Emit(ctx, notify.Event{
		Type:      db.NotificationPhotoRejected,
		Recipient: target.ID,
		Reason:    strings.TrimSpace(reason),
	})
	return err
}

// SecurityReport is the dashboard summary. Staff only.
func (s *Service) SecurityReport(ctx context.Context, actorID uuid.UUID) (access.Report, error) {
	if err := s.authorizeGlobal(ctx, actorID, access.ActionAccessAdminPanel); err != nil {
		return access.Report{}, err
	}
	return s.monitor.Report(), nil
}

// SecurityEvents queries the durable trail, optionally by severity or actor.
func (s *Service) SecurityEvents(ctx context.Context, actorID uuid.UUID, limit int, severity, userID string) ([]access.Event, error) {
	if err := s.authorizeGlobal(ctx, actorID, access.ActionAccessAdminPanel); err != nil {
		return nil, err
	}
	switch access.Severity(severity) {
	case "", access.SeverityLow, access.SeverityMedium, access.SeverityHigh, access.SeverityCritical:
	default:
		return nil, svcErr.Invalid("severity", "must be low, medium, high or critical")
	}
	events, err := s.monitor.Stored(ctx, limit, severity, userID)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []access.Event{}
	}
	return events, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.TrimSpace(p)
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
