package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kairoai/agentrt/internal/agentloop"
	"github.com/kairoai/agentrt/internal/jobstore"
	"github.com/kairoai/agentrt/internal/orchestrator"
	"github.com/kairoai/agentrt/internal/sessionstore"
	"github.com/kairoai/agentrt/internal/stopsignal"
	"github.com/kairoai/agentrt/internal/toolkit"
	"github.com/kairoai/agentrt/internal/tools"
	"github.com/kairoai/agentrt/internal/usermemory"
	"github.com/kairoai/agentrt/pkg/models"
)

func memoryTool(store *usermemory.Store) toolkit.Tool {
	return tools.NewMemoryTool(store)
}

// scriptedBackend fakes both the model client and the backend health
// surface.
type scriptedBackend struct {
	mu     sync.Mutex
	script []*models.LLMResponse
	calls  int
}

func (b *scriptedBackend) pop() *models.LLMResponse {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := b.calls
	b.calls++
	if idx >= len(b.script) {
		idx = len(b.script) - 1
	}
	return b.script[idx]
}

func (b *scriptedBackend) Chat(context.Context, []models.Message, string, float32, []models.ToolSchema) (*models.LLMResponse, error) {
	resp := b.pop()
	return resp, nil
}

func (b *scriptedBackend) ChatStream(context.Context, []models.Message, string, float32, []models.ToolSchema) (<-chan models.StreamEvent, error) {
	resp := b.pop()
	out := make(chan models.StreamEvent, 4)
	go func() {
		defer close(out)
		if resp.Content != "" {
			out <- models.TextEvent(resp.Content)
		}
		if len(resp.ToolCalls) > 0 {
			out <- models.ToolCallsEvent(resp.ToolCalls, "tool_calls")
		}
	}()
	return out, nil
}

func (b *scriptedBackend) ListModels(context.Context) ([]string, error) {
	return []string{"local-model"}, nil
}

func (b *scriptedBackend) IsAvailable(context.Context) bool { return true }

type harness struct {
	server   *httptest.Server
	sessions *sessionstore.Store
	jobs     *jobstore.Store
	memory   *usermemory.Store
	stop     *stopsignal.Flag
}

func newHarness(t *testing.T, backend *scriptedBackend, mutate func(*Config)) *harness {
	t.Helper()
	dir := t.TempDir()

	sessions, err := sessionstore.Open(filepath.Join(dir, "app.db"), filepath.Join(dir, "sessions"))
	if err != nil {
		t.Fatalf("open sessions: %v", err)
	}
	t.Cleanup(func() { sessions.Close() })

	jobs, err := jobstore.Open(filepath.Join(dir, "jobs"))
	if err != nil {
		t.Fatalf("open jobs: %v", err)
	}

	memory := usermemory.New(filepath.Join(dir, "memory"))
	stop := stopsignal.New(filepath.Join(dir, "STOP"))

	registry := toolkit.NewRegistry()
	// The memory tool is enough surface for the end-to-end scenarios.
	registry.Register(memoryTool(memory))
	dispatcher := toolkit.NewDispatcher(registry, nil, filepath.Join(dir, "tool_results"))

	loop := agentloop.New(backend, registry, dispatcher, stop, nil, "base prompt")
	orch := orchestrator.New(sessions, loop, filepath.Join(dir, "uploads"), registry.AllNames(), "local-model", 0.7)
	runner := jobstore.NewRunner(jobs, sessions, loop)

	cfg := Config{
		Orchestrator: orch,
		Sessions:     sessions,
		Jobs:         jobs,
		Runner:       runner,
		Backend:      backend,
		Stop:         stop,
		OptionalAuth: true,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	api := New(cfg)
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	return &harness{server: server, sessions: sessions, jobs: jobs, memory: memory, stop: stop}
}

func (h *harness) url(path string) string { return h.server.URL + path }

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return out
}

func TestHealthEndpoint(t *testing.T) {
	h := newHarness(t, &scriptedBackend{script: []*models.LLMResponse{{Content: "x"}}}, nil)

	resp, err := http.Get(h.url("/health"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body := decodeBody(t, resp)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" || body["backend_available"] != true {
		t.Fatalf("unexpected health response %d %v", resp.StatusCode, body)
	}
}

func TestListModels(t *testing.T) {
	h := newHarness(t, &scriptedBackend{script: []*models.LLMResponse{{Content: "x"}}}, nil)

	resp, err := http.Get(h.url("/v1/models"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body := decodeBody(t, resp)
	data := body["data"].([]any)
	if len(data) != 1 || data[0].(map[string]any)["id"] != "local-model" {
		t.Fatalf("unexpected models %v", body)
	}
}

func TestAuthRequiredWithoutOptionalMode(t *testing.T) {
	h := newHarness(t, &scriptedBackend{script: []*models.LLMResponse{{Content: "x"}}}, func(cfg *Config) {
		cfg.OptionalAuth = false
		cfg.Tokens = map[string]string{"tok-1": "alice"}
	})

	resp, err := http.Get(h.url("/api/chat/sessions"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, h.url("/api/chat/sessions"), nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get with token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}

	// Health stays public.
	resp, err = http.Get(h.url("/health"))
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health must be public, got %d", resp.StatusCode)
	}
}

func chatMultipart(t *testing.T, messages []models.Message, stream bool, sessionID string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	raw, _ := json.Marshal(messages)
	_ = w.WriteField("messages", string(raw))
	if stream {
		_ = w.WriteField("stream", "true")
	}
	if sessionID != "" {
		_ = w.WriteField("session_id", sessionID)
	}
	_ = w.Close()
	return &buf, w.FormDataContentType()
}

func TestChatCompletionsBlocking(t *testing.T) {
	backend := &scriptedBackend{script: []*models.LLMResponse{{Content: "4", FinishReason: "stop"}}}
	h := newHarness(t, backend, nil)

	body, contentType := chatMultipart(t, []models.Message{{Role: models.RoleUser, Content: "2+2?"}}, false, "")
	resp, err := http.Post(h.url("/v1/chat/completions"), contentType, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	out := decodeBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %v", resp.StatusCode, out)
	}
	sessionID := out["x_session_id"].(string)
	if sessionID == "" {
		t.Fatal("response must carry x_session_id")
	}
	choices := out["choices"].([]any)
	msg := choices[0].(map[string]any)["message"].(map[string]any)
	if msg["content"] != "4" {
		t.Fatalf("unexpected content %v", msg)
	}

	// Session history grew by two messages.
	msgs, err := h.sessions.LoadMessages(sessionID)
	if err != nil {
		t.Fatalf("load messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages in history, got %d", len(msgs))
	}
}

func readSSE(t *testing.T, body io.Reader) []string {
	t.Helper()
	var frames []string
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			frames = append(frames, strings.TrimPrefix(line, "data: "))
		}
	}
	return frames
}

func TestChatCompletionsStreaming(t *testing.T) {
	backend := &scriptedBackend{script: []*models.LLMResponse{{Content: "4", FinishReason: "stop"}}}
	h := newHarness(t, backend, nil)

	body, contentType := chatMultipart(t, []models.Message{{Role: models.RoleUser, Content: "2+2?"}}, true, "")
	resp, err := http.Post(h.url("/v1/chat/completions"), contentType, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("expected SSE content type, got %q", ct)
	}

	frames := readSSE(t, resp.Body)
	if len(frames) < 3 {
		t.Fatalf("expected text, stop, and DONE frames, got %v", frames)
	}
	if frames[len(frames)-1] != "[DONE]" {
		t.Fatalf("stream must end with [DONE], got %q", frames[len(frames)-1])
	}

	var sawText, sawStop bool
	var sessionID string
	for _, frame := range frames[:len(frames)-1] {
		var chunk map[string]any
		if err := json.Unmarshal([]byte(frame), &chunk); err != nil {
			t.Fatalf("bad chunk %q: %v", frame, err)
		}
		choices := chunk["choices"].([]any)
		choice := choices[0].(map[string]any)
		delta := choice["delta"].(map[string]any)
		if delta["content"] == "4" {
			sawText = true
		}
		if fr, ok := choice["finish_reason"].(string); ok && fr == "stop" {
			sawStop = true
			sessionID = chunk["x_session_id"].(string)
		}
	}
	if !sawText || !sawStop || sessionID == "" {
		t.Fatalf("stream incomplete: text=%v stop=%v session=%q", sawText, sawStop, sessionID)
	}
}

func TestChatStreamingWithMemoryTool(t *testing.T) {
	backend := &scriptedBackend{script: []*models.LLMResponse{
		{ToolCalls: []models.ToolCall{{
			ID:        "call_1",
			Name:      "memory",
			Arguments: json.RawMessage(`{"operation":"set","key":"color","value":"blue"}`),
		}}},
		{Content: "Stored.", FinishReason: "stop"},
	}}
	h := newHarness(t, backend, nil)

	body, contentType := chatMultipart(t, []models.Message{{Role: models.RoleUser, Content: "Store color blue."}}, true, "")
	resp, err := http.Post(h.url("/v1/chat/completions"), contentType, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	frames := readSSE(t, resp.Body)

	var started, completed int
	for _, frame := range frames {
		if frame == "[DONE]" {
			continue
		}
		var chunk map[string]any
		if err := json.Unmarshal([]byte(frame), &chunk); err != nil {
			t.Fatalf("bad chunk %q: %v", frame, err)
		}
		if ts, ok := chunk["x_tool_status"].(map[string]any); ok {
			switch ts["status"] {
			case "started":
				started++
			case "completed":
				completed++
			}
			if ts["tool_name"] != "memory" {
				t.Fatalf("unexpected tool %v", ts)
			}
		}
	}
	if started != 1 || completed != 1 {
		t.Fatalf("expected one started and one completed event, got %d/%d", started, completed)
	}

	// The value survived in the per-user memory store.
	entry, found, err := h.memory.Get("guest", "color")
	if err != nil || !found || entry.Value != "blue" {
		t.Fatalf("memory not persisted: %v %v %v", entry, found, err)
	}
}

func TestChatValidation(t *testing.T) {
	h := newHarness(t, &scriptedBackend{script: []*models.LLMResponse{{Content: "x"}}}, nil)

	body, contentType := chatMultipart(t, nil, false, "")
	resp, err := http.Post(h.url("/v1/chat/completions"), contentType, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty messages must be 400, got %d", resp.StatusCode)
	}

	// Unknown session id maps to 404.
	body, contentType = chatMultipart(t, []models.Message{{Role: models.RoleUser, Content: "hi"}}, false, "ghost")
	resp, err = http.Post(h.url("/v1/chat/completions"), contentType, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown session must be 404, got %d", resp.StatusCode)
	}
}

func TestJobLifecycle(t *testing.T) {
	backend := &scriptedBackend{script: []*models.LLMResponse{{Content: "job output", FinishReason: "stop"}}}
	h := newHarness(t, backend, nil)

	// Submit.
	payload, _ := json.Marshal(map[string]any{"message": "long running question"})
	resp, err := http.Post(h.url("/api/jobs"), "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	out := decodeBody(t, resp)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %v", resp.StatusCode, out)
	}
	jobID := out["job_id"].(string)
	if jobID == "" || out["session_id"].(string) == "" || out["status"] != "pending" {
		t.Fatalf("incomplete submission response %v", out)
	}

	// Poll until completed.
	deadline := time.Now().Add(5 * time.Second)
	var job map[string]any
	for time.Now().Before(deadline) {
		resp, err := http.Get(h.url("/api/jobs/" + jobID))
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		job = decodeBody(t, resp)
		if job["status"] == "completed" {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if job["status"] != "completed" {
		t.Fatalf("job never completed: %v", job)
	}
	if job["output"] != "job output" {
		t.Fatalf("expected concatenated output, got %v", job["output"])
	}

	// Tail after completion replays the chunks and the terminal status.
	resp, err = http.Get(h.url("/api/jobs/" + jobID + "/stream"))
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	frames := readSSE(t, resp.Body)
	resp.Body.Close()
	joined := strings.Join(frames, "\n")
	if !strings.Contains(joined, "job output") || !strings.Contains(joined, `"status":"completed"`) {
		t.Fatalf("tail incomplete: %v", frames)
	}

	// List returns metadata without chunks.
	resp, err = http.Get(h.url("/api/jobs"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	listBody := decodeBody(t, resp)
	jobs := listBody["jobs"].([]any)
	if len(jobs) != 1 {
		t.Fatalf("expected one job, got %v", listBody)
	}
	if _, hasChunks := jobs[0].(map[string]any)["output_chunks"]; hasChunks && jobs[0].(map[string]any)["output_chunks"] != nil {
		t.Fatalf("listing must omit chunks: %v", jobs[0])
	}

	// DELETE on a terminal job removes the document.
	req, _ := http.NewRequest(http.MethodDelete, h.url("/api/jobs/"+jobID), nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	resp, err = http.Get(h.url("/api/jobs/" + jobID))
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted job must 404, got %d", resp.StatusCode)
	}
}

func TestJobAccessDenied(t *testing.T) {
	backend := &scriptedBackend{script: []*models.LLMResponse{{Content: "x", FinishReason: "stop"}}}
	h := newHarness(t, backend, func(cfg *Config) {
		cfg.Tokens = map[string]string{"tok-alice": "alice", "tok-bob": "bob"}
	})

	payload, _ := json.Marshal(map[string]any{"message": "mine"})
	req, _ := http.NewRequest(http.MethodPost, h.url("/api/jobs"), bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer tok-alice")
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	out := decodeBody(t, resp)
	jobID := out["job_id"].(string)

	req, _ = http.NewRequest(http.MethodGet, h.url("/api/jobs/"+jobID), nil)
	req.Header.Set("Authorization", "Bearer tok-bob")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get as bob: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for another user's job, got %d", resp.StatusCode)
	}
}

func TestSessionRoutes(t *testing.T) {
	backend := &scriptedBackend{script: []*models.LLMResponse{{Content: "hi", FinishReason: "stop"}}}
	h := newHarness(t, backend, nil)

	// Create a session through a chat turn.
	body, contentType := chatMultipart(t, []models.Message{{Role: models.RoleUser, Content: "hello"}}, false, "")
	resp, err := http.Post(h.url("/v1/chat/completions"), contentType, body)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	chat := decodeBody(t, resp)
	sessionID := chat["x_session_id"].(string)

	// List.
	resp, err = http.Get(h.url("/api/chat/sessions"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	listBody := decodeBody(t, resp)
	if len(listBody["sessions"].([]any)) != 1 {
		t.Fatalf("expected one session, got %v", listBody)
	}

	// Rename.
	patch, _ := json.Marshal(map[string]string{"title": "greetings"})
	req, _ := http.NewRequest(http.MethodPatch, h.url("/api/chat/sessions/"+sessionID), bytes.NewReader(patch))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	patched := decodeBody(t, resp)
	if patched["title"] != "greetings" {
		t.Fatalf("title not updated: %v", patched)
	}

	// Search by the new title.
	resp, err = http.Get(h.url("/api/chat/sessions?q=greet"))
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	searchBody := decodeBody(t, resp)
	if len(searchBody["sessions"].([]any)) != 1 {
		t.Fatalf("search missed renamed session: %v", searchBody)
	}

	// History.
	resp, err = http.Get(h.url("/api/chat/history/" + sessionID))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	histBody := decodeBody(t, resp)
	if len(histBody["messages"].([]any)) != 2 {
		t.Fatalf("expected 2 history messages, got %v", histBody)
	}
}

func TestStopFlagAdminRoutes(t *testing.T) {
	h := newHarness(t, &scriptedBackend{script: []*models.LLMResponse{{Content: "x"}}}, nil)

	resp, _ := http.Get(h.url("/api/admin/stop-inference"))
	if body := decodeBody(t, resp); body["stopped"] != false {
		t.Fatalf("flag should start clear: %v", body)
	}

	resp, err := http.Post(h.url("/api/admin/stop-inference"), "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if !h.stop.IsSet() {
		t.Fatal("POST must set the flag")
	}

	// A chat turn under a set flag is cancelled before reaching the backend.
	body, contentType := chatMultipart(t, []models.Message{{Role: models.RoleUser, Content: "hi"}}, false, "")
	resp, err = http.Post(h.url("/v1/chat/completions"), contentType, body)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Fatal("chat must not succeed under a set stop flag")
	}

	req, _ := http.NewRequest(http.MethodDelete, h.url("/api/admin/stop-inference"), nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if h.stop.IsSet() {
		t.Fatal("DELETE must clear the flag")
	}
}
