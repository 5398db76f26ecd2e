// Package toolkit holds the canonical tool catalog and the dispatcher that
// validates, routes, and budgets each tool call.
package toolkit

import (
	"context"
	"encoding/json"

	"github.com/kairoai/agentrt/pkg/models"
)

// CallContext carries transport-supplied values a tool body needs but
// that the model never sees in its schema: session id and caller
// identity.
type CallContext struct {
	SessionID string
	Username  string
}

// Tool is the narrow interface every tool implementation satisfies.
type Tool interface {
	Name() string
	Schema() models.ToolSchema
	Execute(ctx context.Context, args json.RawMessage, call CallContext) (any, error)
}
