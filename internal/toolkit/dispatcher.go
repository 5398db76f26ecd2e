package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kairoai/agentrt/pkg/models"
)

// Dispatcher rejects unknown tool names, routes calls to tool bodies, and
// applies per-tool result budgeting. Arguments are not checked against the
// tool's schema here; each tool body parses and checks its own arguments.
type Dispatcher struct {
	registry      *Registry
	budgetChars   map[string]int
	defaultBudget int
	overflowRoot  string
}

// NewDispatcher creates a Dispatcher. overflowRoot is the
// data/tool_results directory; budgetChars maps tool name to its
// per-call character budget.
func NewDispatcher(registry *Registry, budgetChars map[string]int, overflowRoot string) *Dispatcher {
	return &Dispatcher{
		registry:      registry,
		budgetChars:   budgetChars,
		defaultBudget: 4000,
		overflowRoot:  overflowRoot,
	}
}

// Dispatch runs one tool call. It never returns an error from the tool
// body itself — failures are captured into {success:false, error} and fed
// back to the model. It only returns an error for an unknown tool name,
// a validation error surfaced by the caller. The
// bool reports the tool-level success flag, read back from the serialized
// result, for the caller's completed/failed status events.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args json.RawMessage, call CallContext) (string, bool, error) {
	tool, ok := d.registry.Get(name)
	if !ok {
		return "", false, models.NewError(models.KindValidation, "unknown tool: "+name)
	}

	result, err := func() (result any, execErr error) {
		defer func() {
			if r := recover(); r != nil {
				execErr = fmt.Errorf("panic: %v", r)
			}
		}()
		return tool.Execute(ctx, args, call)
	}()

	var payload any
	if err != nil {
		payload = models.ToolResult{Success: false, Error: err.Error()}
	} else {
		payload = result
	}

	serialized, mErr := models.Serialize(payload)
	if mErr != nil {
		serialized, _ = models.Serialize(models.ToolResult{Success: false, Error: mErr.Error()})
	}

	var flag struct {
		Success bool `json:"success"`
	}
	_ = json.Unmarshal([]byte(serialized), &flag)

	return d.applyBudget(name, call.SessionID, serialized), flag.Success, nil
}

// applyBudget truncates serialized to its tool's budget, writing the full
// body to the per-session overflow directory when truncation occurs.
func (d *Dispatcher) applyBudget(tool, sessionID, serialized string) string {
	budget := d.defaultBudget
	if b, ok := d.budgetChars[tool]; ok && b > 0 {
		budget = b
	}
	if len(serialized) <= budget {
		return serialized
	}

	marker := fmt.Sprintf(models.TruncationMarkerFmt, len(serialized))
	cut := budget - len(marker)
	if cut < 0 {
		cut = 0
	}
	// Back off to a rune boundary so non-ASCII output is never cut
	// mid-rune into invalid UTF-8.
	for cut > 0 && !utf8.RuneStart(serialized[cut]) {
		cut--
	}
	truncated := serialized[:cut] + marker

	if sessionID != "" {
		d.writeOverflow(sessionID, serialized)
	}
	return truncated
}

// writeOverflow persists the full, untruncated serialization under a short
// random id so a later tool call can retrieve it. Failures are
// non-fatal: the truncated result was already returned to the model.
func (d *Dispatcher) writeOverflow(sessionID, full string) {
	if d.overflowRoot == "" {
		return
	}
	dir := filepath.Join(d.overflowRoot, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	id := uuid.NewString()[:8]
	path := filepath.Join(dir, id+".json")
	_ = os.WriteFile(path, []byte(full), 0o644)
}
