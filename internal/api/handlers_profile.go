package api

import (
	"net/http"

	"github.com/oggyb/soulmate-hub/internal/service/profile"
)

// handleCreateProfile handles POST /api/profiles. The caller's token
// decides the profile id.
func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		profile.Fields
		Email string `json:"email"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	p, err := s.profiles.Create(r.Context(), principal(r), req.Email, req.Fields)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

// handleGetOwnProfile handles GET /api/profiles/me
func (s *Server) handleGetOwnProfile(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, currentProfile(r))
}

// handleGetProfile handles GET /api/profiles/{id}
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	p, err := s.profiles.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// handleUpdateProfile handles PUT /api/profiles/{id}
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req profile.Fields
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	p, err := s.profiles.Update(r.Context(), principal(r), id, req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// handleViewProfile handles POST /api/profiles/{id}/view
func (s *Server) handleViewProfile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := s.profiles.RecordView(r.Context(), principal(r), id); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleDiscover handles GET /api/discovery/profiles?limit=
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondError(w, r, err)
		return
	}

	profiles, err := s.profiles.Discover(r.Context(), principal(r), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"profiles": profiles})
}

// handleGuests handles GET /api/guests?limit=
func (s *Server) handleGuests(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondError(w, r, err)
		return
	}

	guests, err := s.profiles.Guests(r.Context(), principal(r), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"guests": guests})
}
