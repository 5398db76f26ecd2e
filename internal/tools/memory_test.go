package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/kairoai/agentrt/internal/toolkit"
	"github.com/kairoai/agentrt/internal/usermemory"
)

func newMemory(t *testing.T) *MemoryTool {
	t.Helper()
	return NewMemoryTool(usermemory.New(t.TempDir()))
}

func TestMemorySetGetAliases(t *testing.T) {
	tool := newMemory(t)

	// "write" is an alias for "set", "read" for "get".
	res := mustExec(t, tool, `{"operation":"write","key":"color","value":"blue"}`)
	if res["success"] != true {
		t.Fatalf("write failed: %v", res)
	}

	res = mustExec(t, tool, `{"operation":"read","key":"color"}`)
	if res["success"] != true || res["found"] != true {
		t.Fatalf("read failed: %v", res)
	}
	entry := res["entry"].(map[string]any)
	if entry["value"] != "blue" {
		t.Fatalf("value mismatch: %v", entry)
	}
}

func TestMemoryGetMissingKey(t *testing.T) {
	res := mustExec(t, newMemory(t), `{"operation":"get","key":"ghost"}`)
	if res["success"] != true {
		t.Fatalf("missing key is not an error: %v", res)
	}
	if found, ok := res["found"]; ok && found == true {
		t.Fatalf("ghost key reported found: %v", res)
	}
}

func TestMemoryListAndDelete(t *testing.T) {
	tool := newMemory(t)
	mustExec(t, tool, `{"operation":"set","key":"a","value":"1"}`)
	mustExec(t, tool, `{"operation":"set","key":"b","value":"2"}`)

	res := mustExec(t, tool, `{"operation":"list"}`)
	if res["success"] != true {
		t.Fatalf("list failed: %v", res)
	}
	if entries := res["entries"].([]any); len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	mustExec(t, tool, `{"operation":"delete","key":"a"}`)
	res = mustExec(t, tool, `{"operation":"list"}`)
	if entries := res["entries"].([]any); len(entries) != 1 {
		t.Fatalf("expected 1 entry after delete, got %d", len(entries))
	}
}

func TestMemoryValidation(t *testing.T) {
	tool := newMemory(t)

	res := mustExec(t, tool, `{"operation":"set"}`)
	if res["success"] != false {
		t.Fatalf("set without key must fail: %v", res)
	}
	res = mustExec(t, tool, `{"operation":"teleport"}`)
	if res["success"] != false {
		t.Fatalf("unknown operation must fail: %v", res)
	}

	raw, err := tool.Execute(context.Background(), json.RawMessage(`{"operation":"set","key":"k","value":"v"}`), toolkit.CallContext{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	data, _ := json.Marshal(raw)
	var out map[string]any
	_ = json.Unmarshal(data, &out)
	if out["success"] != false {
		t.Fatalf("set without a username must fail: %v", out)
	}
}
