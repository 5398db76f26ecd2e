package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kairoai/agentrt/pkg/models"
)

// handleSessions lists or searches the caller's sessions
// (GET /api/chat/sessions?q=).
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, models.NewError(models.KindValidation, "method not allowed"))
		return
	}
	username := userFrom(r.Context())

	var (
		sessions []*models.Session
		err      error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		sessions, err = s.cfg.Sessions.Search(r.Context(), username, q)
	} else {
		sessions, err = s.cfg.Sessions.List(r.Context(), username)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// handleSession updates one session (PATCH /api/chat/sessions/{id}).
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimPrefix(r.URL.Path, "/api/chat/sessions/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		writeError(w, models.NewError(models.KindNotFound, "session not found"))
		return
	}
	if r.Method != http.MethodPatch {
		writeError(w, models.NewError(models.KindValidation, "method not allowed"))
		return
	}

	sess, err := s.ownedSession(r, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	defer r.Body.Close()
	var body struct {
		Title *string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, models.Wrap(models.KindValidation, "invalid request body", err))
		return
	}
	if body.Title == nil {
		writeError(w, models.NewError(models.KindValidation, "title is required"))
		return
	}

	if err := s.cfg.Sessions.SetTitle(r.Context(), sess.ID, *body.Title); err != nil {
		writeError(w, err)
		return
	}
	updated, err := s.cfg.Sessions.Get(r.Context(), sess.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleHistory returns a session's full message list
// (GET /api/chat/history/{id}).
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimPrefix(r.URL.Path, "/api/chat/history/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		writeError(w, models.NewError(models.KindNotFound, "session not found"))
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, models.NewError(models.KindValidation, "method not allowed"))
		return
	}

	sess, err := s.ownedSession(r, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	messages, err := s.cfg.Sessions.LoadMessages(sess.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID,
		"messages":   messages,
	})
}

func (s *Server) ownedSession(r *http.Request, sessionID string) (*models.Session, error) {
	sess, err := s.cfg.Sessions.Get(r.Context(), sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Username != userFrom(r.Context()) {
		return nil, models.NewError(models.KindAccessDenied, "session owned by a different user")
	}
	return sess, nil
}
