package tools

import (
	"context"
	"encoding/json"

	"github.com/kairoai/agentrt/internal/toolkit"
	"github.com/kairoai/agentrt/pkg/models"
)

// MemoryBackend is the per-user key/value store the "memory" tool sits on
// top of (internal/usermemory.Store satisfies this).
type MemoryBackend interface {
	Set(username, key, value string) error
	Get(username, key string) (models.MemoryEntry, bool, error)
	List(username string) ([]models.MemoryEntry, error)
	Delete(username, key string) error
}

// MemoryTool implements "memory": a persistent per-user key/value store
// the agent can use to remember facts across sessions.
type MemoryTool struct {
	backend MemoryBackend
}

// NewMemoryTool creates the tool bound to backend.
func NewMemoryTool(backend MemoryBackend) *MemoryTool {
	return &MemoryTool{backend: backend}
}

func (t *MemoryTool) Name() string { return "memory" }

func (t *MemoryTool) Schema() models.ToolSchema {
	return models.ToolSchema{
		Name:        t.Name(),
		Description: "Persist and recall facts across sessions, scoped to the current user.",
		Parameters: objSchema(map[string]models.SchemaProp{
			"operation": enumProp("Operation to perform.", "set", "get", "list", "delete"),
			"key":       strProp("Key name, required for set/get/delete."),
			"value":     strProp("Value to store, required for set."),
		}, "operation"),
	}
}

type memoryArgs struct {
	Operation string `json:"operation"`
	Key       string `json:"key"`
	Value     string `json:"value"`
}

type memoryResult struct {
	models.ToolResult
	Entry   *models.MemoryEntry  `json:"entry,omitempty"`
	Entries []models.MemoryEntry `json:"entries,omitempty"`
	Found   bool                 `json:"found,omitempty"`
}

func (t *MemoryTool) Execute(_ context.Context, args json.RawMessage, call toolkit.CallContext) (any, error) {
	var a memoryArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return memoryResult{ToolResult: models.ToolResult{Success: false, Error: "invalid arguments: " + err.Error()}}, nil
	}
	if call.Username == "" {
		return memoryResult{ToolResult: models.ToolResult{Success: false, Error: "memory requires an authenticated username"}}, nil
	}

	switch a.Operation {
	case "set", "write":
		if a.Key == "" {
			return memoryResult{ToolResult: models.ToolResult{Success: false, Error: "key is required for set"}}, nil
		}
		if err := t.backend.Set(call.Username, a.Key, a.Value); err != nil {
			return memoryResult{ToolResult: models.ToolResult{Success: false, Error: err.Error()}}, nil
		}
		return memoryResult{ToolResult: models.ToolResult{Success: true}}, nil

	case "get", "read":
		if a.Key == "" {
			return memoryResult{ToolResult: models.ToolResult{Success: false, Error: "key is required for get"}}, nil
		}
		entry, found, err := t.backend.Get(call.Username, a.Key)
		if err != nil {
			return memoryResult{ToolResult: models.ToolResult{Success: false, Error: err.Error()}}, nil
		}
		if !found {
			return memoryResult{ToolResult: models.ToolResult{Success: true}, Found: false}, nil
		}
		return memoryResult{ToolResult: models.ToolResult{Success: true}, Entry: &entry, Found: true}, nil

	case "list":
		entries, err := t.backend.List(call.Username)
		if err != nil {
			return memoryResult{ToolResult: models.ToolResult{Success: false, Error: err.Error()}}, nil
		}
		return memoryResult{ToolResult: models.ToolResult{Success: true}, Entries: entries}, nil

	case "delete":
		if a.Key == "" {
			return memoryResult{ToolResult: models.ToolResult{Success: false, Error: "key is required for delete"}}, nil
		}
		if err := t.backend.Delete(call.Username, a.Key); err != nil {
			return memoryResult{ToolResult: models.ToolResult{Success: false, Error: err.Error()}}, nil
		}
		return memoryResult{ToolResult: models.ToolResult{Success: true}}, nil

	default:
		return memoryResult{ToolResult: models.ToolResult{Success: false, Error: "unknown operation: " + a.Operation}}, nil
	}
}
