// Package agentloop drives the bounded alternation of model calls and
// concurrent tool batches at the center of one chat turn or job run.
package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kairoai/agentrt/internal/interceptor"
	"github.com/kairoai/agentrt/internal/observability"
	"github.com/kairoai/agentrt/internal/stopsignal"
	"github.com/kairoai/agentrt/internal/toolkit"
	"github.com/kairoai/agentrt/pkg/models"
)

// ModelClient is the narrow Model Client contract the loop depends on
// (internal/llmclient.Client satisfies this).
type ModelClient interface {
	Chat(ctx context.Context, messages []models.Message, model string, temperature float32, tools []models.ToolSchema) (*models.LLMResponse, error)
	ChatStream(ctx context.Context, messages []models.Message, model string, temperature float32, tools []models.ToolSchema) (<-chan models.StreamEvent, error)
}

// RAGCollections resolves the RAG collection names available to a user,
// for the "## RAG COLLECTIONS" system prompt appendix.
type RAGCollections interface {
	ListCollections(ctx context.Context, username string) ([]string, error)
}

// Attachment is one upload's metadata, rendered in the "## ATTACHED FILES"
// system prompt appendix.
type Attachment struct {
	Name     string
	Type     string
	SizeBytes int64
	Metadata string // extracted structural metadata, if any; empty if none
}

// Config bundles the one loop instance's binding: model, temperature,
// identity, enabled tools, and the iteration cap.
type Config struct {
	Model             string
	Temperature       float32
	SessionID         string
	Username          string
	EnabledTools      []string
	Attachments       []Attachment
	MaxIterations     int // default 8
	CompactionThreshold int // default 200 chars
}

func (c Config) maxIterations() int {
	if c.MaxIterations > 0 {
		return c.MaxIterations
	}
	return 8
}

func (c Config) compactionThreshold() int {
	if c.CompactionThreshold > 0 {
		return c.CompactionThreshold
	}
	return 200
}

// Loop drives one bounded run of model-call/tool-batch alternation.
type Loop struct {
	model      ModelClient
	registry   *toolkit.Registry
	dispatcher *toolkit.Dispatcher
	stop       *stopsignal.Flag
	ragLister  RAGCollections
	basePrompt string
	metrics    *observability.Metrics
}

// New creates a Loop. basePrompt is the cached system prompt loaded at
// process start; ragLister may be nil if the rag tool is never enabled.
func New(model ModelClient, registry *toolkit.Registry, dispatcher *toolkit.Dispatcher, stop *stopsignal.Flag, ragLister RAGCollections, basePrompt string) *Loop {
	return &Loop{
		model:      model,
		registry:   registry,
		dispatcher: dispatcher,
		stop:       stop,
		ragLister:  ragLister,
		basePrompt: basePrompt,
	}
}

// WithMetrics attaches a metrics collector; a nil collector disables
// instrumentation.
func (l *Loop) WithMetrics(m *observability.Metrics) *Loop {
	l.metrics = m
	return l
}

// ReloadPrompt hot-swaps the cached base prompt.
func (l *Loop) ReloadPrompt(prompt string) {
	l.basePrompt = prompt
}

// state is the per-run working state.
type state struct {
	messages       []models.Message
	iteration      int
	iterBoundaries []int

	// Available RAG collection names, fetched once per run the first time a
	// rag call needs validating.
	ragCollections []string
	ragFetched     bool
}

func (s *state) currentBoundary() int {
	return len(s.messages)
}

// checkCancel covers both cancellation mechanisms at an iteration
// boundary: the process-wide stop flag and the run's own context
// (per-job cancellation).
func checkCancel(ctx context.Context, stop *stopsignal.Flag) error {
	if err := stop.Check(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return models.ErrCancelled
	}
	return nil
}

// buildSystemMessage assembles the fixed-order system prompt: base
// prompt, then RAG collections appendix (if rag enabled), then
// attachments appendix (if any). The order is fixed so the bytes sent to
// the backend stay identical across turns and its prefix cache keeps
// hitting.
func (l *Loop) buildSystemMessage(ctx context.Context, cfg Config) models.Message {
	prompt := l.basePrompt

	ragEnabled := false
	for _, name := range cfg.EnabledTools {
		if name == "rag" {
			ragEnabled = true
			break
		}
	}
	if ragEnabled {
		prompt += "\n\n## RAG COLLECTIONS\n" + renderRAGCollections(ctx, l.ragLister, cfg.Username)
	}

	if len(cfg.Attachments) > 0 {
		prompt += "\n\n## ATTACHED FILES\n" + renderAttachments(cfg.Attachments)
	}

	return models.Message{Role: models.RoleSystem, Content: prompt}
}

func renderRAGCollections(ctx context.Context, lister RAGCollections, username string) string {
	if lister == nil {
		return "(none available)"
	}
	names, err := lister.ListCollections(ctx, username)
	if err != nil || len(names) == 0 {
		return "(none available)"
	}
	out := ""
	for _, n := range names {
		out += "- " + n + "\n"
	}
	return out
}

func renderAttachments(attachments []Attachment) string {
	out := ""
	for _, a := range attachments {
		out += "- " + a.Name + " (" + a.Type + ", " + sizeLabel(a.SizeBytes) + ")"
		if a.Metadata != "" {
			out += ": " + a.Metadata
		}
		out += "\n"
	}
	return out
}

func sizeLabel(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// Run executes one blocking bounded-alternation run and returns the final
// assistant text.
func (l *Loop) Run(ctx context.Context, cfg Config, history []models.Message, userTurn models.Message) (string, error) {
	ctx = interceptor.WithSessionID(interceptor.WithPhase(ctx, "agent"), cfg.SessionID)
	st := &state{}
	st.messages = append(st.messages, l.buildSystemMessage(ctx, cfg))
	st.messages = append(st.messages, history...)
	st.messages = append(st.messages, userTurn)

	schemas := l.registry.Schemas(cfg.EnabledTools)
	maxIter := cfg.maxIterations()

	for {
		if err := checkCancel(ctx, l.stop); err != nil {
			return "", err
		}
		st.iterBoundaries = append(st.iterBoundaries, st.currentBoundary())

		resp, err := l.model.Chat(ctx, st.messages, cfg.Model, cfg.Temperature, schemas)
		if err != nil {
			return "", err
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		st.messages = append(st.messages, models.Message{Role: models.RoleAssistant, ToolCalls: resp.ToolCalls})
		results := l.dispatchBatch(ctx, st, cfg, resp.ToolCalls, nil)
		for i, tc := range resp.ToolCalls {
			st.messages = append(st.messages, models.Message{Role: models.RoleTool, ToolCallID: tc.ID, Name: tc.Name, Content: results[i]})
		}

		compactHotTail(st, cfg.compactionThreshold())

		st.iteration++
		l.metrics.IterationObserved()
		if st.iteration >= maxIter {
			if err := checkCancel(ctx, l.stop); err != nil {
				return "", err
			}
			final, err := l.model.Chat(ctx, st.messages, cfg.Model, cfg.Temperature, nil)
			if err != nil {
				return "", err
			}
			return final.Content, nil
		}
	}
}

// dispatchBatch runs every call in toolCalls concurrently, preserving
// input order in the returned slice regardless of completion order.
// onStatus (if non-nil) is invoked as each call completes — used by the
// streaming variant to emit ToolStatusEvents.
//
// A rag call is validated here, before dispatch: an unknown or absent
// collection_name produces an early error result listing the caller's
// available collections, and the tool body is never invoked.
func (l *Loop) dispatchBatch(ctx context.Context, st *state, cfg Config, toolCalls []models.ToolCall, onStatus func(idx int, status models.ToolStatus, durationMS int64)) []string {
	results := make([]string, len(toolCalls))
	if len(toolCalls) == 0 {
		return results
	}

	// Fetch the collection set once, before the batch fans out, so the
	// concurrent goroutines only read it.
	for _, tc := range toolCalls {
		if tc.Name == "rag" {
			l.fetchCollections(ctx, st, cfg.Username)
			break
		}
	}

	call := toolkit.CallContext{SessionID: cfg.SessionID, Username: cfg.Username}
	done := make(chan struct{}, len(toolCalls))
	for i, tc := range toolCalls {
		go func(idx int, tc models.ToolCall) {
			start := time.Now()
			serialized, status := l.dispatchOne(ctx, st, tc, call)
			results[idx] = serialized
			elapsed := time.Since(start)
			l.metrics.ToolObserved(tc.Name, status == models.ToolCompleted, elapsed.Seconds())
			if onStatus != nil {
				onStatus(idx, status, elapsed.Milliseconds())
			}
			done <- struct{}{}
		}(i, tc)
	}
	for range toolCalls {
		<-done
	}
	return results
}

func (l *Loop) dispatchOne(ctx context.Context, st *state, tc models.ToolCall, call toolkit.CallContext) (string, models.ToolStatus) {
	if tc.Name == "rag" {
		if denied, ok := l.guardRAG(st, tc.Arguments); ok {
			return denied, models.ToolFailed
		}
	}

	serialized, ok, err := l.dispatcher.Dispatch(ctx, tc.Name, tc.Arguments, call)
	if err != nil {
		serialized, _ = models.Serialize(models.ToolResult{Success: false, Error: err.Error()})
		return serialized, models.ToolFailed
	}
	if !ok {
		return serialized, models.ToolFailed
	}
	return serialized, models.ToolCompleted
}

func (l *Loop) fetchCollections(ctx context.Context, st *state, username string) {
	if st.ragFetched {
		return
	}
	st.ragFetched = true
	if l.ragLister == nil {
		return
	}
	names, err := l.ragLister.ListCollections(ctx, username)
	if err != nil {
		return
	}
	st.ragCollections = names
}

// ragDeniedResult is the synthesized tool result for a rag call whose
// collection_name failed validation.
type ragDeniedResult struct {
	models.ToolResult
	AvailableCollections []string `json:"available_collections"`
}

// guardRAG returns a serialized denial result when args name an unknown or
// absent collection. The second return is false when the call may proceed.
func (l *Loop) guardRAG(st *state, args json.RawMessage) (string, bool) {
	var a struct {
		CollectionName string `json:"collection_name"`
	}
	_ = json.Unmarshal(args, &a)

	available := st.ragCollections
	if available == nil {
		available = []string{}
	}
	for _, name := range available {
		if name == a.CollectionName && name != "" {
			return "", false
		}
	}

	msg := fmt.Sprintf("unknown collection %q", a.CollectionName)
	if a.CollectionName == "" {
		msg = "collection_name is required"
	}
	serialized, _ := models.Serialize(ragDeniedResult{
		ToolResult:           models.ToolResult{Success: false, Error: msg},
		AvailableCollections: available,
	})
	return serialized, true
}
