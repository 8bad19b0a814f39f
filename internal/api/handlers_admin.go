package api

import (
	"net/http"

	"github.com/oggyb/soulmate-hub/internal/db"
)

// handleListUsers handles GET /api/admin/users?page=&limit=
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		respondError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondError(w, r, err)
		return
	}

	users, err := s.admin.ListUsers(r.Context(), principal(r), page, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, users)
}

// handleSetRole handles PUT /api/admin/users/{id}/role
func (s *Server) handleSetRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		Role db.Role `json:"role"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	p, err := s.admin.SetRole(r.Context(), principal(r), id, req.Role)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "user": p})
}

// handleSetBan handles PUT /api/admin/users/{id}/ban
func (s *Server) handleSetBan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		IsBanned  bool   `json:"is_banned"`
		BanReason string `json:"ban_reason"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	p, err := s.admin.SetBan(r.Context(), principal(r), id, req.IsBanned, req.BanReason)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "user": p})
}

// handleDeleteUser handles DELETE /api/admin/users/{id}
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := s.admin.DeleteUser(r.Context(), principal(r), id); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleGrantSubscription handles PUT /api/admin/users/{id}/subscription
//
// Example:
//
//	{"role": "gold", "duration_days": 30}
func (s *Server) handleGrantSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		Role         db.Role `json:"role"`
		DurationDays int     `json:"duration_days"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	p, err := s.admin.GrantSubscription(r.Context(), principal(r), id, req.Role, req.DurationDays)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "user": p})
}

// handleGetPermissions handles GET /api/admin/users/{id}/permissions
func (s *Server) handleGetPermissions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	perms, err := s.admin.GetModeratorPermissions(r.Context(), principal(r), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

// handleSetPermissions handles POST /api/admin/users/{id}/permissions. The
// body replaces the whole set.
func (s *Server) handleSetPermissions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		Permissions []string `json:"permissions"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	perms, err := s.admin.SetModeratorPermissions(r.Context(), principal(r), id, req.Permissions)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "permissions": perms})
}

type moderationRequest struct {
	Photo  string `json:"photo"`
	Reason string `json:"reason"`
}

// handleApprovePhoto handles POST /api/admin/moderation/{id}/approve where
// id is the profile owning the photo.
func (s *Server) handleApprovePhoto(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req moderationRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	if err := s.admin.ApprovePhoto(r.Context(), principal(r), id, req.Photo); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleRejectPhoto handles POST /api/admin/moderation/{id}/reject
func (s *Server) handleRejectPhoto(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req moderationRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	if err := s.admin.RejectPhoto(r.Context(), principal(r), id, req.Photo, req.Reason); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleSecurityDashboard handles GET /api/admin/security-dashboard
func (s *Server) handleSecurityDashboard(w http.ResponseWriter, r *http.Request) {
	report, err := s.admin.SecurityReport(r.Context(), principal(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// handleSecurityEvents handles GET /api/admin/security-events?limit=&severity=&user_id=
func (s *Server) handleSecurityEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		respondError(w, r, err)
		return
	}
	q := r.URL.Query()

	events, err := s.admin.SecurityEvents(r.Context(), principal(r), limit, q.Get("severity"), q.Get("user_id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": events})
}
