package access

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/soulmate-hub/internal/db"
	svcErr "github.com/oggyb/soulmate-hub/internal/errors"
	"github.com/oggyb/soulmate-hub/internal/logger"
	"github.com/oggyb/soulmate-hub/internal/repository"
	"github.com/oggyb/soulmate-hub/internal/testutil"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		req      Request
		allowed  bool
		severity Severity
	}{
		{
			name:     "moderator cannot assign roles",
			req:      Request{ActorID: "m", ActorRole: db.RoleModerator, Action: ActionAssignRole, TargetID: "u", TargetRole: db.RoleRegistered, NewRole: db.RoleGold},
			severity: SeverityHigh,
		},
		{
			name:     "admin assigns gold to a registered user",
			req:      Request{ActorID: "a", ActorRole: db.RoleAdmin, Action: ActionAssignRole, TargetID: "u", TargetRole: db.RoleRegistered, NewRole: db.RoleGold},
			allowed:  true,
			severity: SeverityLow,
		},
		{
			name:     "admin cannot grant admin",
			req:      Request{ActorID: "a", ActorRole: db.RoleAdmin, Action: ActionAssignRole, TargetID: "u", TargetRole: db.RoleModerator, NewRole: db.RoleAdmin},
			severity: SeverityHigh,
		},
		{
			name:     "admin cannot demote another admin",
			req:      Request{ActorID: "a", ActorRole: db.RoleAdmin, Action: ActionAssignRole, TargetID: "b", TargetRole: db.RoleAdmin, NewRole: db.RoleRegistered},
			severity: SeverityHigh,
		},
		{
			name:     "admin cannot ban admin",
			req:      Request{ActorID: "a", ActorRole: db.RoleAdmin, Action: ActionBanUser, TargetID: "b", TargetRole: db.RoleAdmin},
			severity: SeverityMedium,
		},
		{
			name:     "moderator bans platinum",
			req:      Request{ActorID: "m", ActorRole: db.RoleModerator, Action: ActionBanUser, TargetID: "u", TargetRole: db.RolePlatinum},
			allowed:  true,
			severity: SeverityLow,
		},
		{
			name:     "moderator cannot ban moderator",
			req:      Request{ActorID: "m", ActorRole: db.RoleModerator, Action: ActionBanUser, TargetID: "n", TargetRole: db.RoleModerator},
			severity: SeverityMedium,
		},
		{
			name:     "nobody bans themselves",
			req:      Request{ActorID: "a", ActorRole: db.RoleAdmin, Action: ActionBanUser, TargetID: "a", TargetRole: db.RoleModerator},
			severity: SeverityMedium,
		},
		{
			name:     "moderator cannot delete",
			req:      Request{ActorID: "m", ActorRole: db.RoleModerator, Action: ActionDeleteUser, TargetID: "u", TargetRole: db.RoleRegistered},
			severity: SeverityHigh,
		},
		{
			name:     "admin deletes moderator",
			req:      Request{ActorID: "a", ActorRole: db.RoleAdmin, Action: ActionDeleteUser, TargetID: "m", TargetRole: db.RoleModerator},
			allowed:  true,
			severity: SeverityLow,
		},
		{
			name:     "subscription must be a tier",
			req:      Request{ActorID: "a", ActorRole: db.RoleAdmin, Action: ActionManageSubscription, TargetID: "u", TargetRole: db.RoleSilver, NewRole: db.RoleModerator},
			severity: SeverityMedium,
		},
		{
			name:     "admin grants platinum",
			req:      Request{ActorID: "a", ActorRole: db.RoleAdmin, Action: ActionManageSubscription, TargetID: "u", TargetRole: db.RoleSilver, NewRole: db.RolePlatinum},
			allowed:  true,
			severity: SeverityLow,
		},
		{
			name:     "gold cannot open admin panel",
			req:      Request{ActorID: "g", ActorRole: db.RoleGold, Action: ActionAccessAdminPanel},
			severity: SeverityMedium,
		},
		{
			name:     "moderator views user data",
			req:      Request{ActorID: "m", ActorRole: db.RoleModerator, Action: ActionViewUserData},
			allowed:  true,
			severity: SeverityLow,
		},
		{
			name:     "permission grant to moderator",
			req:      Request{ActorID: "a", ActorRole: db.RoleAdmin, Action: ActionGrantPermission, TargetID: "m", TargetRole: db.RoleModerator, Permission: "ban_users"},
			allowed:  true,
			severity: SeverityLow,
		},
		{
			name:     "permission grant to non-moderator",
			req:      Request{ActorID: "a", ActorRole: db.RoleAdmin, Action: ActionGrantPermission, TargetID: "u", TargetRole: db.RoleGold, Permission: "ban_users"},
			severity: SeverityMedium,
		},
		{
			name:     "unknown permission",
			req:      Request{ActorID: "a", ActorRole: db.RoleAdmin, Action: ActionGrantPermission, TargetID: "m", TargetRole: db.RoleModerator, Permission: "all_permissions"},
			severity: SeverityMedium,
		},
		{
			name:     "unknown action",
			req:      Request{ActorID: "a", ActorRole: db.RoleAdmin, Action: "launch_rockets"},
			severity: SeverityMedium,
		},
		{
			name:     "unknown role",
			req:      Request{ActorID: "x", ActorRole: "root", Action: ActionViewUserData},
			severity: SeverityMedium,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(tt.req)
			assert.Equal(t, tt.allowed, d.Allowed, d.Reason)
			assert.Equal(t, tt.severity, d.Severity)
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func genRole() gopter.Gen {
	roles := make([]interface{}, len(db.Roles))
	for i, r := range db.Roles {
		roles[i] = r
	}
	return gen.OneConstOf(roles...)
}

func genAction() gopter.Gen {
	return gen.OneConstOf(
		ActionAssignRole, ActionDeleteUser, ActionBanUser, ActionManageSubscription,
		ActionAccessAdminPanel, ActionModerateContent, ActionViewUserData, ActionGrantPermission,
	)
}

func TestEvaluateProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("never allows modifying an equal or higher target", prop.ForAll(
		func(actor, target db.Role, action string) bool {
			if action == ActionAccessAdminPanel || action == ActionModerateContent ||
				action == ActionViewUserData || action == ActionGrantPermission {
				return true
			}
			d := Evaluate(Request{ActorID: "a", ActorRole: actor, Action: action, TargetID: "b", TargetRole: target, NewRole: db.RoleRegistered})
			return !d.Allowed || actor.Level() > target.Level()
		},
		genRole(), genRole(), genAction(),
	))

	properties.Property("never allows a restricted action on self", prop.ForAll(
		func(actor, target, newRole db.Role, action string) bool {
			d := Evaluate(Request{ActorID: "same", ActorRole: actor, Action: action, TargetID: "same", TargetRole: target, NewRole: newRole, Permission: "ban_users"})
			return !d.Allowed || !selfRestricted[action]
		},
		genRole(), genRole(), genRole(), genAction(),
	))

	properties.Property("assigned role is always below admin and below the actor", prop.ForAll(
		func(actor, newRole db.Role) bool {
			d := Evaluate(Request{ActorID: "a", ActorRole: actor, Action: ActionAssignRole, TargetID: "b", NewRole: newRole})
			if !d.Allowed {
				return true
			}
			return actor == db.RoleAdmin && newRole.Level() < db.RoleAdmin.Level()
		},
		genRole(), genRole(),
	))

	properties.Property("only denials carry non-low severity", prop.ForAll(
		func(actor, target db.Role, action string) bool {
			d := Evaluate(Request{ActorID: "a", ActorRole: actor, Action: action, TargetID: "b", TargetRole: target})
			return d.Allowed == (d.Severity == SeverityLow)
		},
		genRole(), genRole(), genAction(),
	))

	properties.TestingRun(t)
}

func TestMonitor_RingKeepsNewest(t *testing.T) {
	m := NewMonitor(5, nil, logger.Discard())
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		m.Record(ctx, Request{ActorID: fmt.Sprintf("u%d", i), Action: ActionViewUserData}, Decision{Allowed: true, Severity: SeverityLow})
	}
	assert.Equal(t, 5, m.Len())

	recent := m.RecentEvents(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "u11", recent[0].ActorID)
	assert.Equal(t, "u10", recent[1].ActorID)
	assert.Equal(t, "u7", m.RecentEvents(0)[4].ActorID)
}

func TestMonitor_SuspiciousAfterFiveDenials(t *testing.T) {
	m := NewMonitor(DefaultCapacity, nil, logger.Discard())
	ctx := context.Background()
	deny := Request{ActorID: "mallory", ActorRole: db.RoleGold, Action: ActionAccessAdminPanel}

	for i := 0; i < 4; i++ {
		require.ErrorIs(t, m.Check(ctx, deny), svcErr.ErrForbidden)
	}
	assert.False(t, m.IsSuspicious("mallory"))
	assert.Empty(t, m.EventsBySeverity(SeverityCritical))

	err := m.Check(ctx, deny)
	var denied *svcErr.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, ActionAccessAdminPanel, denied.Action)
	assert.True(t, m.IsSuspicious("mallory"))

	critical := m.EventsBySeverity(SeverityCritical)
	require.Len(t, critical, 1)
	assert.Equal(t, ResultFlagged, critical[0].Result)

	report := m.Report()
	assert.Equal(t, 6, report.TotalEvents)
	assert.Equal(t, 5, report.DeniedEvents)
	assert.Equal(t, 1, report.CriticalEvents)
	assert.Equal(t, []string{"mallory"}, report.SuspiciousUsers)

	// flagging is advisory: allowed actions still pass
	assert.NoError(t, m.Check(ctx, Request{ActorID: "mallory", ActorRole: db.RoleModerator, Action: ActionAccessAdminPanel}))
}

func TestMonitor_RecentAllowedClearsSuspicion(t *testing.T) {
	m := NewMonitor(DefaultCapacity, nil, logger.Discard())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_ = m.Check(ctx, Request{ActorID: "u", ActorRole: db.RoleGold, Action: ActionBanUser})
	}
	for i := 0; i < 7; i++ {
		_ = m.Check(ctx, Request{ActorID: "u", ActorRole: db.RoleModerator, Action: ActionViewUserData})
	}
	_ = m.Check(ctx, Request{ActorID: "u", ActorRole: db.RoleGold, Action: ActionBanUser})
	assert.False(t, m.IsSuspicious("u"))
}

func TestMonitor_DurableSink(t *testing.T) {
	database := testutil.NewDB(t)
	sink := repository.NewSecurityEventRepository(database)
	ctx := context.Background()

	m := NewMonitor(DefaultCapacity, sink, logger.Discard())
	_ = m.Check(ctx, Request{ActorID: "m", ActorRole: db.RoleModerator, Action: ActionAssignRole, TargetID: "u", NewRole: db.RoleGold})
	require.NoError(t, m.Check(ctx, Request{ActorID: "a", ActorRole: db.RoleAdmin, Action: ActionAccessAdminPanel}))

	high, err := m.Stored(ctx, 10, string(SeverityHigh), "")
	require.NoError(t, err)
	require.Len(t, high, 1)
	assert.Equal(t, ResultDenied, high[0].Result)
	assert.Equal(t, ActionAssignRole, high[0].Action)

	// a fresh process sees the same history
	restarted := NewMonitor(DefaultCapacity, sink, logger.Discard())
	require.NoError(t, restarted.Warm(ctx))
	assert.Equal(t, 2, restarted.Len())

	restarted.now = func() time.Time { return db.Now().Add(200 * 24 * time.Hour) }
	n, err := restarted.Prune(ctx, 90*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMonitor_PrecheckRecordsOnlyDenials(t *testing.T) {
	m := NewMonitor(DefaultCapacity, nil, logger.Discard())
	ctx := context.Background()

	require.NoError(t, m.Precheck(ctx, Request{ActorID: "a", ActorRole: db.RoleAdmin, Action: ActionAssignRole, TargetID: "u"}))
	assert.Zero(t, m.Len())

	err := m.Precheck(ctx, Request{ActorID: "m", ActorRole: db.RoleModerator, Action: ActionAssignRole, TargetID: "u"})
	assert.ErrorIs(t, err, svcErr.ErrForbidden)
	require.Equal(t, 1, m.Len())
	ev := m.RecentEvents(1)[0]
	assert.Equal(t, ResultDenied, ev.Result)
	assert.Equal(t, SeverityHigh, ev.Severity)

	err = m.Precheck(ctx, Request{ActorID: "a", ActorRole: db.RoleAdmin, Action: ActionBanUser, TargetID: "a"})
	assert.ErrorIs(t, err, svcErr.ErrForbidden)
	assert.Equal(t, 2, m.Len())
}
