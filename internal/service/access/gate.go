// Package access decides whether an actor may perform a restricted action
// and keeps an audit trail of every decision.
package access

import (
	"github.com/oggyb/soulmate-hub/internal/db"
)

// Restricted actions.
const (
	ActionAssignRole         = "assign_role"
	ActionDeleteUser         = "delete_user"
	ActionBanUser            = "ban_user"
	ActionManageSubscription = "manage_subscription"
	ActionAccessAdminPanel   = "access_admin_panel"
	ActionModerateContent    = "moderate_content"
	ActionViewUserData       = "view_user_data"
	ActionGrantPermission    = "grant_permission"
)

// ModeratorPermissions is the closed set of grants an admin may hand a
// moderator.
var ModeratorPermissions = []string{"manage_users", "ban_users", "view_reports", "manage_content"}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// minimumRole per action.
var minimumRole = map[string]db.Role{
	ActionAccessAdminPanel:   db.RoleModerator,
	ActionBanUser:            db.RoleModerator,
	ActionModerateContent:    db.RoleModerator,
	ActionViewUserData:       db.RoleModerator,
	ActionAssignRole:         db.RoleAdmin,
	ActionDeleteUser:         db.RoleAdmin,
	ActionManageSubscription: db.RoleAdmin,
	ActionGrantPermission:    db.RoleAdmin,
}

// selfRestricted actions can never target the actor.
var selfRestricted = map[string]bool{
	ActionAssignRole:         true,
	ActionDeleteUser:         true,
	ActionBanUser:            true,
	ActionManageSubscription: true,
	ActionGrantPermission:    true,
}

// Request is one attempted action. TargetID and TargetRole describe the
// affected user when there is one; NewRole is the role or tier being
// assigned; Permission is the grant being handed out.
type Request struct {
	ActorID    string
	ActorRole  db.Role
	Action     string
	TargetID   string
	TargetRole db.Role
	NewRole    db.Role
	Permission string
}

type Decision struct {
	Allowed  bool
	Reason   string
	Severity Severity
}

// Evaluate applies the role rules to req. It has no side effects.
//
// Behavior:
//   - Each action has a minimum actor role.
//   - No restricted action may target the actor's own id.
//   - Modifying a user (ban, delete, subscription, role) needs a strictly
//     higher role than the target's current one.
//   - Roles handed out by assign_role must sit below admin and below the
//     actor; subscription changes only move between registered..platinum.
//   - Permission grants go to moderators only, from ModeratorPermissions.
//     An empty Permission stands for revoking the whole set.
func Evaluate(req Request) Decision {
	allowed, reason := evaluate(req)
	return Decision{Allowed: allowed, Reason: reason, Severity: severityFor(req.Action, allowed)}
}

// Precheck applies only the rules that need nothing but the actor: the
// minimum role and the self-action ban. Callers run it before loading the
// target or validating the payload.
func Precheck(req Request) Decision {
	allowed, reason := precheck(req)
	return Decision{Allowed: allowed, Reason: reason, Severity: severityFor(req.Action, allowed)}
}

func precheck(req Request) (bool, string) {
	if !req.ActorRole.Valid() {
		return false, "unknown actor role"
	}
	minRole, ok := minimumRole[req.Action]
	if !ok {
		return false, "unknown action"
	}
	if req.ActorRole.Level() < minRole.Level() {
		return false, "insufficient privileges"
	}
	if selfRestricted[req.Action] && req.TargetID != "" && req.TargetID == req.ActorID {
		return false, "cannot apply this action to yourself"
	}
	return true, "permission granted"
}

func evaluate(req Request) (bool, string) {
	if ok, reason := precheck(req); !ok {
		return false, reason
	}
	actorLevel := req.ActorRole.Level()
	if req.TargetRole != "" && !req.TargetRole.Valid() {
		return false, "unknown target role"
	}

	switch req.Action {
	case ActionAssignRole:
		if !req.NewRole.Valid() {
			return false, "unknown role"
		}
		if req.NewRole.Level() >= db.RoleAdmin.Level() || req.NewRole.Level() >= actorLevel {
			return false, "role assignment would escalate privileges"
		}
		if req.TargetRole != "" && req.TargetRole.Level() >= actorLevel {
			return false, "cannot change the role of an equal or higher user"
		}

	case ActionDeleteUser, ActionBanUser:
		if req.TargetRole != "" && req.TargetRole.Level() >= actorLevel {
			return false, "cannot modify an equal or higher user"
		}

	case ActionManageSubscription:
		if req.NewRole != "" && !req.NewRole.IsTier() {
			return false, "not a subscription tier"
		}
		if req.TargetRole != "" && req.TargetRole.Level() >= actorLevel {
			return false, "cannot modify an equal or higher user"
		}

	case ActionGrantPermission:
		if req.TargetRole != "" && req.TargetRole != db.RoleModerator {
			return false, "permissions can only be granted to moderators"
		}
		if req.Permission != "" && !isModeratorPermission(req.Permission) {
			return false, "unknown permission"
		}
	}
	return true, "permission granted"
}

func isModeratorPermission(p string) bool {
	for _, known := range ModeratorPermissions {
		if p == known {
			return true
		}
	}
	return false
}

func severityFor(action string, allowed bool) Severity {
	switch {
	case allowed:
		return SeverityLow
	case action == ActionAssignRole, action == ActionDeleteUser:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}
