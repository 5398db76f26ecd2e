package agentloop

import (
	"context"

	"github.com/kairoai/agentrt/internal/interceptor"
	"github.com/kairoai/agentrt/pkg/models"
)

// RunStream executes the streaming variant of the bounded alternation:
// TextEvents are re-emitted
// unchanged as they arrive; a terminal ToolCallsEvent triggers one
// ToolStatusEvent{started} per call in model order, dispatch runs
// concurrently, and ToolStatusEvent{completed|failed} events are emitted
// in actual completion order. A run that fails or is cancelled emits one
// terminal EventError chunk before the channel closes; a successful run just closes.
func (l *Loop) RunStream(ctx context.Context, cfg Config, history []models.Message, userTurn models.Message) (<-chan models.StreamEvent, error) {
	ctx = interceptor.WithSessionID(interceptor.WithPhase(ctx, "agent:stream"), cfg.SessionID)
	st := &state{}
	st.messages = append(st.messages, l.buildSystemMessage(ctx, cfg))
	st.messages = append(st.messages, history...)
	st.messages = append(st.messages, userTurn)

	schemas := l.registry.Schemas(cfg.EnabledTools)
	maxIter := cfg.maxIterations()

	out := make(chan models.StreamEvent, 32)

	go func() {
		defer close(out)

		for {
			if err := checkCancel(ctx, l.stop); err != nil {
				out <- models.ErrorEvent(err)
				l.metrics.RunObserved("cancelled")
				return
			}
			st.iterBoundaries = append(st.iterBoundaries, st.currentBoundary())

			toolCalls, err := l.streamOneTurn(ctx, st, cfg, schemas, out)
			if err != nil {
				out <- models.ErrorEvent(err)
				l.metrics.RunObserved("error")
				return
			}

			if len(toolCalls) == 0 {
				l.metrics.RunObserved("completed")
				return
			}

			st.messages = append(st.messages, models.Message{Role: models.RoleAssistant, ToolCalls: toolCalls})

			for _, tc := range toolCalls {
				out <- models.ToolStatusEvent(tc.Name, tc.ID, models.ToolStarted, 0)
			}
			results := l.dispatchBatch(ctx, st, cfg, toolCalls, func(idx int, status models.ToolStatus, durationMS int64) {
				out <- models.ToolStatusEvent(toolCalls[idx].Name, toolCalls[idx].ID, status, durationMS)
			})
			for i, tc := range toolCalls {
				st.messages = append(st.messages, models.Message{Role: models.RoleTool, ToolCallID: tc.ID, Name: tc.Name, Content: results[i]})
			}

			compactHotTail(st, cfg.compactionThreshold())

			st.iteration++
			l.metrics.IterationObserved()
			if st.iteration >= maxIter {
				if err := checkCancel(ctx, l.stop); err != nil {
					out <- models.ErrorEvent(err)
					l.metrics.RunObserved("cancelled")
					return
				}
				if err := l.streamFinalTurn(ctx, st, cfg, out); err != nil {
					out <- models.ErrorEvent(err)
					l.metrics.RunObserved("error")
					return
				}
				l.metrics.RunObserved("completed")
				return
			}
		}
	}()

	return out, nil
}

// streamOneTurn streams one model turn, forwarding text chunks immediately
// and returning any accumulated tool calls.
func (l *Loop) streamOneTurn(ctx context.Context, st *state, cfg Config, schemas []models.ToolSchema, out chan<- models.StreamEvent) ([]models.ToolCall, error) {
	events, err := l.model.ChatStream(ctx, st.messages, cfg.Model, cfg.Temperature, schemas)
	if err != nil {
		return nil, err
	}

	var toolCalls []models.ToolCall
	var streamErr error
	for ev := range events {
		switch ev.Kind {
		case models.EventText:
			out <- ev
		case models.EventToolCalls:
			toolCalls = ev.ToolCalls
		case models.EventError:
			streamErr = models.NewError(ev.ErrKind, ev.ErrMessage)
		}
	}
	if streamErr != nil {
		return nil, streamErr
	}
	if ctx.Err() != nil {
		return nil, models.ErrCancelled
	}
	return toolCalls, nil
}

// streamFinalTurn makes the forced tool-less (MAX+1)th call and forwards
// its text.
func (l *Loop) streamFinalTurn(ctx context.Context, st *state, cfg Config, out chan<- models.StreamEvent) error {
	events, err := l.model.ChatStream(interceptor.WithPhase(ctx, "final"), st.messages, cfg.Model, cfg.Temperature, nil)
	if err != nil {
		return err
	}
	for ev := range events {
		switch ev.Kind {
		case models.EventText:
			out <- ev
		case models.EventError:
			return models.NewError(ev.ErrKind, ev.ErrMessage)
		}
	}
	if ctx.Err() != nil {
		return models.ErrCancelled
	}
	return nil
}
