package interceptor

import "context"

// phaseKey is the context key carrying the agent-phase tag
// ("agent", "agent:stream", "agent:stream:final", ...).
type phaseKey struct{}

// WithPhase tags ctx with phase, composing with any phase already present
// so a job-scoped caller ("jobs:run") and the loop's own per-call-site tag
// ("agent:stream", "agent:stream:final") both show up in one log entry as
// "jobs:run:agent:stream".
func WithPhase(ctx context.Context, phase string) context.Context {
	if existing, ok := ctx.Value(phaseKey{}).(string); ok && existing != "" {
		phase = existing + ":" + phase
	}
	return context.WithValue(ctx, phaseKey{}, phase)
}

// phaseFromContext returns the tagged phase, defaulting to "agent".
func phaseFromContext(ctx context.Context) string {
	if p, ok := ctx.Value(phaseKey{}).(string); ok && p != "" {
		return p
	}
	return "agent"
}

// sessionKey is the context key carrying the current session id, so the
// model-client decorator, whose own contract is session-agnostic, can
// still log which session a call belongs to.
type sessionKey struct{}

// WithSessionID tags ctx with sessionID.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

func sessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}
