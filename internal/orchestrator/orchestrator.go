// Package orchestrator is the synchronous request entry point: it
// resolves or creates a session, persists attachments, constructs and
// drives an agent loop, and writes the completed turn back to session
// history.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kairoai/agentrt/internal/agentloop"
	"github.com/kairoai/agentrt/pkg/models"
)

// SessionStore is the narrow session-store contract the orchestrator
// depends on (internal/sessionstore.Store satisfies this).
type SessionStore interface {
	Create(ctx context.Context, sessionID, username string) (*models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	SetTitle(ctx context.Context, sessionID, title string) error
	LoadMessages(sessionID string) ([]models.Message, error)
	SaveMessages(sessionID string, messages []models.Message) error
	UpdateCount(ctx context.Context, sessionID string, n int) error
}

// Loop is the narrow Agent Loop contract the orchestrator drives.
type Loop interface {
	Run(ctx context.Context, cfg agentloop.Config, history []models.Message, userTurn models.Message) (string, error)
	RunStream(ctx context.Context, cfg agentloop.Config, history []models.Message, userTurn models.Message) (<-chan models.StreamEvent, error)
}

// Orchestrator is the Chat Orchestrator.
type Orchestrator struct {
	sessions    SessionStore
	loop        Loop
	uploadsRoot string
	defaultTools []string
	defaultModel string
	defaultTemp  float32
}

// New creates an Orchestrator. defaultTools is used when a request omits
// an enabled-tool subset.
func New(sessions SessionStore, loop Loop, uploadsRoot string, defaultTools []string, defaultModel string, defaultTemp float32) *Orchestrator {
	return &Orchestrator{
		sessions:     sessions,
		loop:         loop,
		uploadsRoot:  uploadsRoot,
		defaultTools: defaultTools,
		defaultModel: defaultModel,
		defaultTemp:  defaultTemp,
	}
}

// UploadedFile is one multipart-form file attached to a chat request.
type UploadedFile struct {
	Name string
	Data []byte
}

// Request is one chat-completion request. SeedMessages
// are the caller-supplied prior turns, used only when the session has no
// stored history yet.
type Request struct {
	Username     string
	SessionID    string
	UserMessage  models.Message
	SeedMessages []models.Message
	Model        string
	Temperature  float32
	EnabledTools []string
	Files        []UploadedFile
}

// Response is the blocking chat-completion result.
type Response struct {
	Content   string    `json:"content"`
	SessionID string    `json:"session_id"`
	RequestID string    `json:"request_id"`
	CreatedAt time.Time `json:"created_at"`
	Model     string    `json:"model"`
}

func (o *Orchestrator) resolveModel(requested string) string {
	if requested != "" {
		return requested
	}
	return o.defaultModel
}

// resolveTemp treats a zero temperature as unset.
func (o *Orchestrator) resolveTemp(requested float32) float32 {
	if requested != 0 {
		return requested
	}
	return o.defaultTemp
}

func (o *Orchestrator) resolveTools(requested []string) []string {
	if len(requested) > 0 {
		return requested
	}
	return o.defaultTools
}

// prepare resolves or creates the session, loads its history, persists any
// attachments, and builds the Agent Loop config common to Run/RunStream.
func (o *Orchestrator) prepare(ctx context.Context, req *Request) (sessionID string, history []models.Message, cfg agentloop.Config, err error) {
	sessionID = req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
		if _, err = o.sessions.Create(ctx, sessionID, req.Username); err != nil {
			return "", nil, agentloop.Config{}, err
		}
	} else if _, err = o.sessions.Get(ctx, sessionID); err != nil {
		return "", nil, agentloop.Config{}, models.Wrap(models.KindNotFound, "session not found", err)
	}

	history, err = o.sessions.LoadMessages(sessionID)
	if err != nil {
		return "", nil, agentloop.Config{}, err
	}
	if len(history) == 0 && len(req.SeedMessages) > 0 {
		history = req.SeedMessages
	}

	attachments := make([]agentloop.Attachment, 0, len(req.Files))
	for _, f := range req.Files {
		meta := extractMetadata(f.Name, f.Data)
		if err := persistUpload(o.uploadsRoot, req.Username, f.Name, f.Data); err != nil {
			// Non-fatal step 2: persistence/extraction failures
			// never abort the chat turn, only degrade the attachment's metadata.
			meta = ""
		}
		attachments = append(attachments, agentloop.Attachment{
			Name:      f.Name,
			Type:      fileType(f.Name),
			SizeBytes: int64(len(f.Data)),
			Metadata:  meta,
		})
	}

	cfg = agentloop.Config{
		Model:        o.resolveModel(req.Model),
		Temperature:  o.resolveTemp(req.Temperature),
		SessionID:    sessionID,
		Username:     req.Username,
		EnabledTools: o.resolveTools(req.EnabledTools),
		Attachments:  attachments,
	}
	return sessionID, history, cfg, nil
}

// Run executes a blocking chat turn and writes history back.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Response, error) {
	sessionID, history, cfg, err := o.prepare(ctx, &req)
	if err != nil {
		return nil, err
	}

	text, err := o.loop.Run(ctx, cfg, history, req.UserMessage)
	if err != nil {
		return nil, err
	}

	newHistory := append(history, req.UserMessage, models.Message{Role: models.RoleAssistant, Content: text})
	if err := o.sessions.SaveMessages(sessionID, newHistory); err != nil {
		return nil, err
	}
	if err := o.sessions.UpdateCount(ctx, sessionID, len(newHistory)); err != nil {
		return nil, err
	}

	return &Response{
		Content:   text,
		SessionID: sessionID,
		RequestID: uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Model:     cfg.Model,
	}, nil
}

// RunStream executes the streaming variant: Agent Loop
// events are relayed unchanged, followed by one EventDone chunk carrying
// the session id, after which the returned channel closes (the HTTP layer
// appends the transport-level end-of-stream sentinel). The completed text
// is accumulated and written back to history exactly as Run does.
func (o *Orchestrator) RunStream(ctx context.Context, req Request) (<-chan models.StreamEvent, error) {
	sessionID, history, cfg, err := o.prepare(ctx, &req)
	if err != nil {
		return nil, err
	}

	events, err := o.loop.RunStream(ctx, cfg, history, req.UserMessage)
	if err != nil {
		return nil, err
	}

	out := make(chan models.StreamEvent, 32)
	go func() {
		defer close(out)
		var text string
		failed := false
		for ev := range events {
			switch ev.Kind {
			case models.EventText:
				text += ev.Content
			case models.EventError:
				// History never grows except as a postcondition of a
				// completed turn: a failed or cancelled stream
				// leaves the session untouched.
				failed = true
			}
			out <- ev
		}
		if failed {
			return
		}

		newHistory := append(history, req.UserMessage, models.Message{Role: models.RoleAssistant, Content: text})
		if err := o.sessions.SaveMessages(sessionID, newHistory); err == nil {
			_ = o.sessions.UpdateCount(ctx, sessionID, len(newHistory))
		}

		out <- models.DoneEvent(sessionID)
	}()
	return out, nil
}

