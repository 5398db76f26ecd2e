package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/kairoai/agentrt/pkg/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a classified error to its HTTP status. The
// body carries only the user-safe message.
func writeError(w http.ResponseWriter, err error) {
	kind := models.AsKind(err)
	writeJSON(w, kind.HTTPStatus(), map[string]any{
		"error": map[string]any{
			"type":    string(kind),
			"message": err.Error(),
		},
	})
}
