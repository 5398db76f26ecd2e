package llmclient

import (
	"strings"
	"testing"
)

func TestAccumulatorConcatenatesDeltas(t *testing.T) {
	acc := newToolCallAccumulator()
	acc.add(0, "call_1", "web", "")
	acc.add(0, "", "search", `{"que`)
	acc.add(0, "", "", `ry":"go"}`)

	calls := acc.finalize()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].ID != "call_1" || calls[0].Name != "websearch" {
		t.Fatalf("unexpected call %+v", calls[0])
	}
	if string(calls[0].Arguments) != `{"query":"go"}` {
		t.Fatalf("unexpected arguments %s", calls[0].Arguments)
	}
}

func TestAccumulatorPreservesIndexOrder(t *testing.T) {
	acc := newToolCallAccumulator()
	// Deltas for index 1 arrive before index 0 finishes.
	acc.add(1, "call_b", "second", "{}")
	acc.add(0, "call_a", "first", "{}")

	calls := acc.finalize()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].ID != "call_a" || calls[1].ID != "call_b" {
		t.Fatalf("calls must be ordered by backend index, got %s, %s", calls[0].ID, calls[1].ID)
	}
}

func TestAccumulatorMalformedArgumentsPassedRaw(t *testing.T) {
	acc := newToolCallAccumulator()
	acc.add(0, "call_1", "broken", `{"unterminated`)

	calls := acc.finalize()
	args := string(calls[0].Arguments)
	if !strings.Contains(args, `"_raw"`) || !strings.Contains(args, "unterminated") {
		t.Fatalf("malformed args must pass through _raw, got %s", args)
	}
}

func TestAccumulatorEmptyArgumentsBecomeObject(t *testing.T) {
	acc := newToolCallAccumulator()
	acc.add(0, "call_1", "noargs", "")

	calls := acc.finalize()
	if string(calls[0].Arguments) != "{}" {
		t.Fatalf("empty arguments must become {}, got %s", calls[0].Arguments)
	}
}
