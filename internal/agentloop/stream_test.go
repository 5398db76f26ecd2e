package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kairoai/agentrt/internal/toolkit"
	"github.com/kairoai/agentrt/pkg/models"
)

func collectEvents(t *testing.T, events <-chan models.StreamEvent) []models.StreamEvent {
	t.Helper()
	var out []models.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("stream did not terminate")
		}
	}
}

func TestRunStreamNoToolsEmitsTextOnly(t *testing.T) {
	model := &fakeModel{script: []*models.LLMResponse{textResponse("4")}}
	loop, _ := newTestLoop(t, model, nil)

	events, err := loop.RunStream(context.Background(), Config{Model: "m"}, nil, models.Message{Role: models.RoleUser, Content: "2+2?"})
	if err != nil {
		t.Fatalf("run stream: %v", err)
	}
	got := collectEvents(t, events)
	if len(got) != 1 || got[0].Kind != models.EventText || got[0].Content != "4" {
		t.Fatalf("expected single text event, got %+v", got)
	}
}

func TestRunStreamToolStatusOrdering(t *testing.T) {
	slow := &testTool{name: "slow", fn: func(context.Context, json.RawMessage, toolkit.CallContext) (any, error) {
		time.Sleep(50 * time.Millisecond)
		return echoResult{ToolResult: models.ToolResult{Success: true}}, nil
	}}
	fast := &testTool{name: "fast", fn: func(context.Context, json.RawMessage, toolkit.CallContext) (any, error) {
		return echoResult{ToolResult: models.ToolResult{Success: true}}, nil
	}}
	model := &fakeModel{script: []*models.LLMResponse{
		{Content: "thinking", ToolCalls: []models.ToolCall{
			call("c1", "slow", "{}"),
			call("c2", "fast", "{}"),
		}},
		textResponse("done"),
	}}
	loop, _ := newTestLoop(t, model, nil, slow, fast)

	events, err := loop.RunStream(context.Background(), Config{Model: "m"}, nil, models.Message{Role: models.RoleUser, Content: "go"})
	if err != nil {
		t.Fatalf("run stream: %v", err)
	}
	got := collectEvents(t, events)

	var started, finished []string
	var textBeforeStarted, sawStarted bool
	for _, ev := range got {
		switch {
		case ev.Kind == models.EventText && !sawStarted:
			textBeforeStarted = true
		case ev.Kind == models.EventToolStatus && ev.Status == models.ToolStarted:
			sawStarted = true
			started = append(started, ev.ToolCallID)
		case ev.Kind == models.EventToolStatus && (ev.Status == models.ToolCompleted || ev.Status == models.ToolFailed):
			finished = append(finished, ev.ToolCallID)
		}
	}

	if !textBeforeStarted {
		t.Fatal("iteration text must precede started events")
	}
	if len(started) != 2 || started[0] != "c1" || started[1] != "c2" {
		t.Fatalf("started events must follow model order, got %v", started)
	}
	if len(finished) != 2 {
		t.Fatalf("expected 2 terminal tool events, got %v", finished)
	}
	// Completion order reflects actual completion: the fast tool should
	// finish first.
	if finished[0] != "c2" {
		t.Fatalf("expected fast tool to complete first, got %v", finished)
	}
	last := got[len(got)-1]
	if last.Kind != models.EventText || last.Content != "done" {
		t.Fatalf("expected trailing text event, got %+v", last)
	}
}

type erroringModel struct{}

func (erroringModel) Chat(context.Context, []models.Message, string, float32, []models.ToolSchema) (*models.LLMResponse, error) {
	return nil, models.Wrap(models.KindBackendUnavailable, "model backend unavailable", errors.New("dial refused"))
}

func (erroringModel) ChatStream(context.Context, []models.Message, string, float32, []models.ToolSchema) (<-chan models.StreamEvent, error) {
	return nil, models.Wrap(models.KindBackendUnavailable, "model backend unavailable", errors.New("dial refused"))
}

func TestRunStreamBackendErrorEmitsErrorChunk(t *testing.T) {
	loop, _ := newTestLoop(t, erroringModel{}, nil)

	events, err := loop.RunStream(context.Background(), Config{Model: "m"}, nil, models.Message{Role: models.RoleUser, Content: "hi"})
	if err != nil {
		t.Fatalf("run stream: %v", err)
	}
	got := collectEvents(t, events)
	if len(got) != 1 || got[0].Kind != models.EventError {
		t.Fatalf("expected single error event, got %+v", got)
	}
	if got[0].ErrKind != models.KindBackendUnavailable {
		t.Fatalf("expected backend_unavailable, got %q", got[0].ErrKind)
	}
}

// severedModel opens its stream successfully, emits some text, then ends
// with a terminal error event, as the model client does when the backend
// dies mid-stream.
type severedModel struct{}

func (severedModel) Chat(context.Context, []models.Message, string, float32, []models.ToolSchema) (*models.LLMResponse, error) {
	return nil, models.Wrap(models.KindBackendUnavailable, "model backend unavailable", errors.New("severed"))
}

func (severedModel) ChatStream(context.Context, []models.Message, string, float32, []models.ToolSchema) (<-chan models.StreamEvent, error) {
	out := make(chan models.StreamEvent, 2)
	out <- models.TextEvent("partial")
	out <- models.ErrorEvent(models.Wrap(models.KindBackendUnavailable, "model backend unavailable", errors.New("severed")))
	close(out)
	return out, nil
}

func TestRunStreamMidStreamFailureIsNotCleanCompletion(t *testing.T) {
	loop, _ := newTestLoop(t, severedModel{}, nil)

	events, err := loop.RunStream(context.Background(), Config{Model: "m"}, nil, models.Message{Role: models.RoleUser, Content: "hi"})
	if err != nil {
		t.Fatalf("run stream: %v", err)
	}
	got := collectEvents(t, events)

	if len(got) != 2 {
		t.Fatalf("expected text then error, got %+v", got)
	}
	if got[0].Kind != models.EventText || got[0].Content != "partial" {
		t.Fatalf("expected forwarded partial text, got %+v", got[0])
	}
	if got[1].Kind != models.EventError || got[1].ErrKind != models.KindBackendUnavailable {
		t.Fatalf("run must terminate with a backend error event, got %+v", got[1])
	}
}

func TestRunStreamStopFlagEmitsCancelled(t *testing.T) {
	model := &fakeModel{script: []*models.LLMResponse{textResponse("never")}}
	loop, stop := newTestLoop(t, model, nil)
	if err := stop.Set(); err != nil {
		t.Fatalf("set stop: %v", err)
	}

	events, err := loop.RunStream(context.Background(), Config{Model: "m"}, nil, models.Message{Role: models.RoleUser, Content: "hi"})
	if err != nil {
		t.Fatalf("run stream: %v", err)
	}
	got := collectEvents(t, events)
	if len(got) != 1 || got[0].ErrKind != models.KindCancelled {
		t.Fatalf("expected cancelled error event, got %+v", got)
	}
	if model.callCount() != 0 {
		t.Fatal("backend must not be called under a set stop flag")
	}
}
