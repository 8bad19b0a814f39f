package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/oggyb/soulmate-hub/internal/db"
	"github.com/oggyb/soulmate-hub/internal/service/swipe"
)

// handleSwipe handles POST /api/swipes
//
// Example:
//
//	{"target_user_id": "7a0c...", "direction": "right"}
func (s *Server) handleSwipe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetUserID uuid.UUID    `json:"target_user_id"`
		Direction    db.Direction `json:"direction"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	result, err := s.swipes.RecordSwipe(r.Context(), swipe.Input{
		ActorID:   principal(r),
		TargetID:  req.TargetUserID,
		Direction: req.Direction,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// handleSuperLike handles POST /api/super-likes. A super like is a right
// swipe drawn from the separate super like quota.
func (s *Server) handleSuperLike(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetUserID uuid.UUID `json:"target_user_id"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	result, err := s.swipes.RecordSwipe(r.Context(), swipe.Input{
		ActorID:   principal(r),
		TargetID:  req.TargetUserID,
		Direction: db.DirectionRight,
		SuperLike: true,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// handleRewind handles DELETE /api/swipes/{targetId}
func (s *Server) handleRewind(w http.ResponseWriter, r *http.Request) {
	targetID, err := pathID(r, "targetId")
	if err != nil {
		respondError(w, r, err)
		return
	}

	result, err := s.swipes.Rewind(r.Context(), principal(r), targetID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// handleListMatches handles GET /api/matches
func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := s.swipes.ListMatches(r.Context(), principal(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

// handleLikesCount handles GET /api/likes/count
func (s *Server) handleLikesCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.swipes.LikesReceived(r.Context(), principal(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"count": count})
}

// handleListLikers handles GET /api/likes
//
// Query: page_token, limit, pending=true to hide likers already answered.
func (s *Server) handleListLikers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		respondError(w, r, err)
		return
	}
	page, err := s.swipes.Likers(
		r.Context(),
		currentProfile(r),
		q.Get("page_token"),
		limit,
		q.Get("pending") == "true",
	)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}
