package httpapi

import (
	"net/http"

	"github.com/kairoai/agentrt/pkg/models"
)

// handleStopFlag reads, sets, or clears the process-wide stop flag.
func (s *Server) handleStopFlag(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"stopped": s.cfg.Stop.IsSet()})
	case http.MethodPost:
		if err := s.cfg.Stop.Set(); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"stopped": true})
	case http.MethodDelete:
		if err := s.cfg.Stop.Clear(); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"stopped": false})
	default:
		writeError(w, models.NewError(models.KindValidation, "method not allowed"))
	}
}

// handleReloadPrompt hot-swaps the cached base system prompt
// (POST /api/admin/reload-prompt).
func (s *Server) handleReloadPrompt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, models.NewError(models.KindValidation, "method not allowed"))
		return
	}
	if s.cfg.ReloadPrompt == nil {
		writeError(w, models.NewError(models.KindInternal, "prompt reload not configured"))
		return
	}
	if err := s.cfg.ReloadPrompt(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reloaded": true})
}
