// Package interceptor decorates the model client, recording every
// request/response to a rotating log file. The prompts log is meant to be
// read by humans during prompt debugging, so entries are hand-formatted
// multiline text rather than structured JSON.
package interceptor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger is a rotating, append-only writer for human-readable log entries.
// Logging failures never interrupt the underlying call.
type Logger struct {
	mu         sync.Mutex
	path       string
	maxBytes   int64
	maxBackups int
}

// NewLogger creates a Logger writing to path, rotating once the file
// exceeds maxSizeMB, keeping at most maxBackups rotated files.
func NewLogger(path string, maxSizeMB, maxBackups int) *Logger {
	if maxSizeMB <= 0 {
		maxSizeMB = 50
	}
	if maxBackups <= 0 {
		maxBackups = 5
	}
	return &Logger{path: path, maxBytes: int64(maxSizeMB) << 20, maxBackups: maxBackups}
}

// Write appends formatted text to the log, rotating first if needed.
// Errors are swallowed — a failed log write must never abort the call it
// is logging.
func (l *Logger) Write(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return
	}
	l.rotateIfNeededLocked()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.WriteString(text)
}

func (l *Logger) rotateIfNeededLocked() {
	info, err := os.Stat(l.path)
	if err != nil || info.Size() < l.maxBytes {
		return
	}
	for i := l.maxBackups - 1; i >= 1; i-- {
		src := l.path + "." + strconv.Itoa(i)
		dst := l.path + "." + strconv.Itoa(i+1)
		if _, err := os.Stat(src); err == nil {
			_ = os.Rename(src, dst)
		}
	}
	_ = os.Rename(l.path, l.path+".1")
}

// Entry is one recorded model call.
type Entry struct {
	ID                string
	Timestamp         time.Time
	Model             string
	Temperature       float32
	SessionID         string
	Phase             string
	Streaming         bool
	ToolsProvided     bool
	EstimatedInputTok int
	Messages          []EntryMessage
	ResponseText      string
	ResponseToolCalls []string
	EstimatedOutputTok int
	Duration          time.Duration
	Success           bool
	Error             string
}

// EntryMessage is one logged message, content truncated per line for
// readability.
type EntryMessage struct {
	Role       string
	Content    string
	ToolCallID string
}

const maxLoggedLineChars = 400

// Format renders e in the prompts log's multiline layout.
func (e Entry) Format() string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", 80) + "\n")
	b.WriteString(fmt.Sprintf(">>> AGENT MODEL CALL [%s]\n", e.Phase))
	b.WriteString(strings.Repeat("=", 80) + "\n\n")

	for i, m := range e.Messages {
		b.WriteString(fmt.Sprintf("Message %d:\n", i+1))
		b.WriteString(fmt.Sprintf("  role: %s\n", m.Role))
		if m.Content != "" {
			b.WriteString("  content:\n")
			for _, line := range strings.Split(m.Content, "\n") {
				if len(line) > maxLoggedLineChars {
					line = line[:maxLoggedLineChars] + "…"
				}
				b.WriteString("    " + line + "\n")
			}
		}
		if m.ToolCallID != "" {
			b.WriteString(fmt.Sprintf("  tool_call_id: %s\n", m.ToolCallID))
		}
		b.WriteString("\n")
	}
	if e.ToolsProvided {
		b.WriteString("  [tools provided to this call]\n\n")
	}

	b.WriteString("<<< RESPONSE\n\n")
	resp := e.ResponseText
	if len(resp) > 2000 {
		resp = resp[:2000] + "…"
	}
	b.WriteString(resp + "\n")
	if len(e.ResponseToolCalls) > 0 {
		b.WriteString("  tool_calls: " + strings.Join(e.ResponseToolCalls, ", ") + "\n")
	}

	b.WriteString("\n" + strings.Repeat("-", 80) + "\n")
	b.WriteString("STATS:\n")
	b.WriteString(fmt.Sprintf("  Timestamp:   %s\n", e.Timestamp.Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("  Model:       %s\n", e.Model))
	b.WriteString(fmt.Sprintf("  Temperature: %.2f\n", e.Temperature))
	if e.SessionID != "" {
		b.WriteString(fmt.Sprintf("  Session:     %s\n", e.SessionID))
	}
	b.WriteString(fmt.Sprintf("  Streaming:   %v\n", e.Streaming))
	b.WriteString(fmt.Sprintf("  Duration:    %s\n", e.Duration.Round(time.Millisecond)))
	total := e.EstimatedInputTok + e.EstimatedOutputTok
	b.WriteString(fmt.Sprintf("  Tokens:      %d in + %d out = %d total\n", e.EstimatedInputTok, e.EstimatedOutputTok, total))
	if e.Success {
		b.WriteString("  Status:      SUCCESS\n")
	} else {
		b.WriteString("  Status:      FAILED\n")
		if e.Error != "" {
			b.WriteString(fmt.Sprintf("  Error:       %s\n", e.Error))
		}
	}
	b.WriteString(strings.Repeat("=", 80) + "\n")
	return b.String()
}

// Log assigns an id if absent and writes e to l.
func (l *Logger) Log(e Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()[:8]
	}
	l.Write(e.Format())
}

// estimateTokens is a cheap word-count-based estimate; exact counts would
// need the backend's tokenizer.
func estimateTokens(text string) int {
	words := strings.Fields(text)
	return int(float64(len(words)) * 1.3)
}
