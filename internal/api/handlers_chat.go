package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/oggyb/soulmate-hub/internal/service/chat"
)

// handleListConversations handles GET /api/conversations
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.chat.ListConversations(r.Context(), principal(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

// handleCreateConversation handles POST /api/conversations. An existing
// conversation with the participant is returned as is.
func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ParticipantID uuid.UUID `json:"participant_id"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	conv, err := s.chat.GetOrCreateConversation(r.Context(), principal(r), req.ParticipantID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, conv)
}

// handleListMessages handles GET /api/conversations/{id}/messages?page_token=&limit=
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondError(w, r, err)
		return
	}

	page, err := s.chat.ListMessages(r.Context(), principal(r), id, r.URL.Query().Get("page_token"), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// handleSendMessage handles POST /api/conversations/{id}/messages
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	msg, err := s.chat.SendMessage(r.Context(), principal(r), id, req.Content)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, msg)
}

// handleCallSignal handles POST /api/calls/signal
func (s *Server) handleCallSignal(w http.ResponseWriter, r *http.Request) {
	var req chat.CallInput
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	if err := s.chat.SendCallSignal(r.Context(), principal(r), req); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]bool{"success": true})
}
