package llmclient

import (
	"encoding/json"
	"sort"

	"github.com/kairoai/agentrt/pkg/models"
)

// toolCallAccumulator reconstructs complete tool calls from streamed deltas,
// keyed by the backend-assigned index.
type toolCallAccumulator struct {
	order []int
	byIdx map[int]*accEntry
}

type accEntry struct {
	id   string
	name string
	args string
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{byIdx: make(map[int]*accEntry)}
}

func (a *toolCallAccumulator) add(idx int, id, nameDelta, argsDelta string) {
	e, ok := a.byIdx[idx]
	if !ok {
		e = &accEntry{}
		a.byIdx[idx] = e
		a.order = append(a.order, idx)
	}
	if id != "" {
		e.id = id
	}
	e.name += nameDelta
	e.args += argsDelta
}

func (a *toolCallAccumulator) any() bool {
	return len(a.byIdx) > 0
}

// finalize parses each accumulated arguments string as JSON. On parse
// failure the raw string is passed through under a single "_raw" key
// instead of erroring, so a malformed call still reaches the
// loop as a tool failure rather than aborting the stream.
func (a *toolCallAccumulator) finalize() []models.ToolCall {
	sort.Ints(a.order)
	out := make([]models.ToolCall, 0, len(a.order))
	for _, idx := range a.order {
		e := a.byIdx[idx]
		args := e.args
		if args == "" {
			args = "{}"
		}
		var probe json.RawMessage
		if err := json.Unmarshal([]byte(args), &probe); err != nil {
			raw, _ := json.Marshal(map[string]string{"_raw": e.args})
			probe = raw
		}
		out = append(out, models.ToolCall{
			ID:        e.id,
			Name:      e.name,
			Arguments: probe,
		})
	}
	return out
}
