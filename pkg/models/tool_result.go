package models

import "encoding/json"

// ToolResult is the sum type every tool body returns. Success is always
// present; Error is populated only on failure. Individual tools add their
// own keys by embedding ToolResult's fields into a richer struct and
// marshaling that struct instead (see internal/toolkit.Tool).
type ToolResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// TruncationMarkerFmt is appended to a tool result's serialized JSON when it
// exceeds its per-tool budget; %d is the original byte length.
const TruncationMarkerFmt = "...[truncated, %d chars total]"

// Serialize marshals any JSON-able value, used by the dispatcher prior to
// budgeting/truncation.
func Serialize(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
