package agentloop

import (
	"strings"
	"testing"

	"github.com/kairoai/agentrt/pkg/models"
)

func TestCompactHotTailShrinksOnlyPriorIterations(t *testing.T) {
	long := strings.Repeat("x", 500) + "\nline two"
	st := &state{
		messages: []models.Message{
			{Role: models.RoleSystem, Content: "sys"},
			{Role: models.RoleUser, Content: "q"},
			{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "a"}}},
			{Role: models.RoleTool, ToolCallID: "a", Name: "websearch", Content: long},
		},
	}
	// Second iteration begins after the first tool message.
	st.iterBoundaries = []int{2, 4}
	st.messages = append(st.messages,
		models.Message{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "b"}}},
		models.Message{Role: models.RoleTool, ToolCallID: "b", Name: "rag", Content: long},
	)

	compactHotTail(st, 200)

	old := st.messages[3].Content
	if !strings.HasPrefix(old, "[websearch result — ") || !strings.HasSuffix(old, "...]") {
		t.Fatalf("old tool message not summarized: %q", old)
	}
	if strings.Contains(old, "\n") {
		t.Fatalf("summary must be one line: %q", old)
	}
	if len(old) > 150 {
		t.Fatalf("summary too long: %d chars", len(old))
	}
	if st.messages[5].Content != long {
		t.Fatal("current iteration's tool message must stay full-size")
	}
}

func TestCompactHotTailIdempotent(t *testing.T) {
	long := strings.Repeat("y", 400)
	st := &state{
		messages: []models.Message{
			{Role: models.RoleTool, ToolCallID: "a", Name: "shell_exec", Content: long},
		},
		iterBoundaries: []int{1},
	}

	compactHotTail(st, 200)
	once := st.messages[0].Content
	compactHotTail(st, 200)
	if st.messages[0].Content != once {
		t.Fatalf("compaction not idempotent: %q vs %q", once, st.messages[0].Content)
	}
}

func TestCompactHotTailSkipsShortAndNonToolMessages(t *testing.T) {
	st := &state{
		messages: []models.Message{
			{Role: models.RoleUser, Content: strings.Repeat("u", 400)},
			{Role: models.RoleTool, ToolCallID: "a", Name: "memory", Content: "short"},
		},
		iterBoundaries: []int{2},
	}

	compactHotTail(st, 200)
	if !strings.HasPrefix(st.messages[0].Content, "uuu") {
		t.Fatal("user messages must never be compacted")
	}
	if st.messages[1].Content != "short" {
		t.Fatal("short tool messages must be left alone")
	}
}
