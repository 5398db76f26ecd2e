package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kairoai/agentrt/internal/orchestrator"
	"github.com/kairoai/agentrt/pkg/models"
)

// chatChoice is one choice in a blocking chat-completion response.
type chatChoice struct {
	Index        int            `json:"index"`
	Message      models.Message `json:"message"`
	FinishReason string         `json:"finish_reason"`
}

// chatCompletionResponse is the OpenAI-shaped blocking response, extended
// with the non-OpenAI x_session_id field.
type chatCompletionResponse struct {
	ID         string       `json:"id"`
	Object     string       `json:"object"`
	Created    int64        `json:"created"`
	Model      string       `json:"model"`
	Choices    []chatChoice `json:"choices"`
	XSessionID string       `json:"x_session_id"`
}

// chunkDelta is the incremental payload of one stream chunk.
type chunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// toolStatusChunk is the non-OpenAI tool-status extension carried on a
// stream chunk.
type toolStatusChunk struct {
	ToolName   string `json:"tool_name"`
	ToolCallID string `json:"tool_call_id"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

type chatCompletionChunk struct {
	ID         string           `json:"id"`
	Object     string           `json:"object"`
	Created    int64            `json:"created"`
	Model      string           `json:"model"`
	Choices    []chunkChoice    `json:"choices"`
	XSessionID string           `json:"x_session_id,omitempty"`
	ToolStatus *toolStatusChunk `json:"x_tool_status,omitempty"`
}

// chatForm is the parsed request body, from either a multipart form or a
// plain JSON body.
type chatForm struct {
	Messages    []models.Message
	Stream      bool
	Model       string
	Temperature float32
	SessionID   string
	Files       []orchestrator.UploadedFile
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, models.NewError(models.KindValidation, "method not allowed"))
		return
	}

	form, err := s.parseChatRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(form.Messages) == 0 {
		writeError(w, models.NewError(models.KindValidation, "messages must contain at least one message"))
		return
	}

	last := form.Messages[len(form.Messages)-1]
	if last.Role != models.RoleUser {
		writeError(w, models.NewError(models.KindValidation, "last message must have role user"))
		return
	}

	req := orchestrator.Request{
		Username:     userFrom(r.Context()),
		SessionID:    form.SessionID,
		UserMessage:  last,
		SeedMessages: form.Messages[:len(form.Messages)-1],
		Model:        form.Model,
		Temperature:  form.Temperature,
		Files:        form.Files,
	}

	if form.Stream {
		s.streamChat(w, r, req)
		return
	}

	resp, err := s.cfg.Orchestrator.Run(r.Context(), req)
	if err != nil {
		// A cancelled turn returns an empty body, not an error payload.
		if models.AsKind(err) == models.KindCancelled {
			w.WriteHeader(models.KindCancelled.HTTPStatus())
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatCompletionResponse{
		ID:      "chatcmpl-" + resp.RequestID,
		Object:  "chat.completion",
		Created: resp.CreatedAt.Unix(),
		Model:   resp.Model,
		Choices: []chatChoice{{
			Message:      models.Message{Role: models.RoleAssistant, Content: resp.Content},
			FinishReason: "stop",
		}},
		XSessionID: resp.SessionID,
	})
}

// parseChatRequest accepts the multipart form shape and, for convenience
// of plain HTTP callers, an application/json body with the same field
// names.
func (s *Server) parseChatRequest(r *http.Request) (*chatForm, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		return s.parseMultipartChat(r)
	}
	return parseJSONChat(r)
}

func (s *Server) parseMultipartChat(r *http.Request) (*chatForm, error) {
	maxBytes := s.cfg.UploadMaxBytes
	if maxBytes <= 0 {
		maxBytes = 25 << 20
	}
	r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, models.Wrap(models.KindValidation, "invalid multipart form", err)
	}

	form := &chatForm{
		Model:     r.FormValue("model"),
		SessionID: r.FormValue("session_id"),
		Stream:    r.FormValue("stream") == "true",
	}

	if raw := r.FormValue("messages"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &form.Messages); err != nil {
			return nil, models.Wrap(models.KindValidation, "messages must be a JSON array", err)
		}
	}
	if raw := r.FormValue("temperature"); raw != "" {
		t, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return nil, models.Wrap(models.KindValidation, "temperature must be a number", err)
		}
		form.Temperature = float32(t)
	}

	if r.MultipartForm != nil {
		for _, headers := range r.MultipartForm.File {
			for _, fh := range headers {
				f, err := fh.Open()
				if err != nil {
					return nil, models.Wrap(models.KindValidation, "unreadable upload "+fh.Filename, err)
				}
				data, err := io.ReadAll(f)
				f.Close()
				if err != nil {
					return nil, models.Wrap(models.KindValidation, "unreadable upload "+fh.Filename, err)
				}
				form.Files = append(form.Files, orchestrator.UploadedFile{Name: fh.Filename, Data: data})
			}
		}
	}
	return form, nil
}

func parseJSONChat(r *http.Request) (*chatForm, error) {
	defer r.Body.Close()
	var body struct {
		Messages    []models.Message `json:"messages"`
		Stream      bool             `json:"stream"`
		Model       string           `json:"model"`
		Temperature float32          `json:"temperature"`
		SessionID   string           `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, models.Wrap(models.KindValidation, "invalid request body", err)
	}
	return &chatForm{
		Messages:    body.Messages,
		Stream:      body.Stream,
		Model:       body.Model,
		Temperature: body.Temperature,
		SessionID:   body.SessionID,
	}, nil
}

// streamChat relays orchestrator events as SSE chat-completion chunks,
// ending with the session-id chunk and the [DONE] sentinel.
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, req orchestrator.Request) {
	events, err := s.cfg.Orchestrator.RunStream(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, models.NewError(models.KindInternal, "streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	chunkID := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()
	model := req.Model
	if model == "" {
		model = s.cfg.DefaultModel
	}

	emit := func(chunk chatCompletionChunk) {
		chunk.ID = chunkID
		chunk.Object = "chat.completion.chunk"
		chunk.Created = created
		chunk.Model = model
		data, err := json.Marshal(chunk)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	for ev := range events {
		switch ev.Kind {
		case models.EventText:
			emit(chatCompletionChunk{Choices: []chunkChoice{{Delta: chunkDelta{Content: ev.Content}}}})
		case models.EventToolStatus:
			emit(chatCompletionChunk{
				Choices: []chunkChoice{{Delta: chunkDelta{}}},
				ToolStatus: &toolStatusChunk{
					ToolName:   ev.ToolName,
					ToolCallID: ev.ToolCallID,
					Status:     string(ev.Status),
					DurationMS: ev.DurationMS,
				},
			})
		case models.EventDone:
			stop := "stop"
			emit(chatCompletionChunk{
				Choices:    []chunkChoice{{Delta: chunkDelta{}, FinishReason: &stop}},
				XSessionID: ev.SessionID,
			})
		case models.EventError:
			payload, _ := json.Marshal(map[string]any{
				"error": map[string]any{"type": string(ev.ErrKind), "message": ev.ErrMessage},
			})
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}
