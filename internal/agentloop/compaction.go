package agentloop

import (
	"strings"

	"github.com/kairoai/agentrt/pkg/models"
)

// compactHotTail implements microcompaction stage 2: after an
// iteration completes, every tool message strictly before the current
// iteration's boundary whose content exceeds threshold is replaced with a
// one-line summary. The current iteration's own tool messages are left
// full-size. Idempotent: an already-summarized message is already short
// and is skipped on the next pass.
func compactHotTail(st *state, threshold int) {
	if len(st.iterBoundaries) == 0 {
		return
	}
	boundary := st.iterBoundaries[len(st.iterBoundaries)-1]

	for i := 0; i < boundary && i < len(st.messages); i++ {
		msg := &st.messages[i]
		if msg.Role != models.RoleTool {
			continue
		}
		if len(msg.Content) <= threshold {
			continue
		}
		msg.Content = summarizeToolContent(msg.Name, msg.Content)
	}
}

func summarizeToolContent(toolName, content string) string {
	flat := strings.ReplaceAll(content, "\n", " ")
	if len(flat) > 100 {
		flat = flat[:100]
	}
	return "[" + toolName + " result — " + flat + "...]"
}
