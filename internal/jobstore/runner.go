package jobstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kairoai/agentrt/internal/agentloop"
	"github.com/kairoai/agentrt/internal/interceptor"
	"github.com/kairoai/agentrt/internal/observability"
	"github.com/kairoai/agentrt/pkg/models"
)

// SessionBinder is the narrow slice of the Session Store the Runner needs:
// creating a session for a job with no session_id, and appending the
// completed assistant turn to history on normal completion.
type SessionBinder interface {
	Create(ctx context.Context, sessionID, username string) (*models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	LoadMessages(sessionID string) ([]models.Message, error)
	SaveMessages(sessionID string, messages []models.Message) error
	UpdateCount(ctx context.Context, sessionID string, n int) error
	SetTitle(ctx context.Context, sessionID, title string) error
}

// Runner accepts agent runs as background jobs, streams the Agent Loop's
// events into a persisted job document, and appends the final reply to
// session history on completion.
type Runner struct {
	store    *Store
	sessions SessionBinder
	loop     *agentloop.Loop
	metrics  *observability.Metrics

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewRunner creates a Runner bound to store/sessions/loop.
func NewRunner(store *Store, sessions SessionBinder, loop *agentloop.Loop) *Runner {
	return &Runner{store: store, sessions: sessions, loop: loop, cancels: make(map[string]context.CancelFunc)}
}

// WithMetrics attaches a metrics collector; nil disables instrumentation.
func (r *Runner) WithMetrics(m *observability.Metrics) *Runner {
	r.metrics = m
	return r
}

// SubmitRequest carries a streaming-chat-shaped submission plus the
// submitter's identity.
type SubmitRequest struct {
	Username     string
	SessionID    string
	UserMessage  models.Message
	Model        string
	Temperature  float32
	EnabledTools []string
	Attachments  []agentloop.Attachment
}

// Submit creates a session if one is not supplied, persists an initial
// pending job record, and spawns the runner goroutine. Returns
// immediately so the HTTP layer can answer 202.
func (r *Runner) Submit(ctx context.Context, req SubmitRequest) (*models.Job, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
		if _, err := r.sessions.Create(ctx, sessionID, req.Username); err != nil {
			return nil, err
		}
		_ = r.sessions.SetTitle(ctx, sessionID, autoTitle(req.UserMessage.Content))
		req.SessionID = sessionID
	}

	job := &models.Job{
		JobID:        uuid.NewString(),
		Username:     req.Username,
		SessionID:    sessionID,
		Status:       models.JobPending,
		CreatedAt:    time.Now().UTC(),
		OutputChunks: []string{},
		ToolEvents:   []models.JobToolEvent{},
	}
	if err := r.store.Create(job); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancels[job.JobID] = cancel
	r.mu.Unlock()

	go r.run(runCtx, job.JobID, req)

	return job, nil
}

// autoTitle derives a session title from the first 60 chars of the user
// message.
func autoTitle(content string) string {
	t := strings.TrimSpace(content)
	if len(t) > 60 {
		t = t[:60]
	}
	return t
}

// run is the runner goroutine body: pending -> running -> terminal.
func (r *Runner) run(ctx context.Context, jobID string, req SubmitRequest) {
	defer r.clearCancel(jobID)

	if err := r.store.SetStatus(jobID, models.JobRunning, ""); err != nil {
		return
	}
	r.metrics.ActiveJobsInc()

	history, err := r.sessions.LoadMessages(req.SessionID)
	if err != nil {
		_ = r.store.SetStatus(jobID, models.JobFailed, err.Error())
		return
	}

	cfg := agentloop.Config{
		Model:        req.Model,
		Temperature:  req.Temperature,
		SessionID:    req.SessionID,
		Username:     req.Username,
		EnabledTools: req.EnabledTools,
		Attachments:  req.Attachments,
	}

	events, err := r.loop.RunStream(interceptor.WithPhase(ctx, "jobs:run"), cfg, history, req.UserMessage)
	if err != nil {
		_ = r.store.SetStatus(jobID, models.JobFailed, err.Error())
		return
	}

	var textBuilder strings.Builder
	for ev := range events {
		switch ev.Kind {
		case models.EventText:
			_ = r.store.AppendChunk(jobID, ev.Content)
			textBuilder.WriteString(ev.Content)
		case models.EventToolStatus:
			_ = r.store.AppendToolEvent(jobID, models.JobToolEvent{
				ToolName:   ev.ToolName,
				ToolCallID: ev.ToolCallID,
				Status:     string(ev.Status),
				DurationMS: ev.DurationMS,
				At:         time.Now().UTC(),
			})
		case models.EventError:
			// On cancellation or failure the session history is left
			// untouched; the chunks persisted so far remain.
			if ev.ErrKind == models.KindCancelled {
				r.finish(jobID, models.JobCancelled, "")
			} else {
				r.finish(jobID, models.JobFailed, ev.ErrMessage)
			}
			return
		}

		select {
		case <-ctx.Done():
			r.finish(jobID, models.JobCancelled, "")
			return
		default:
		}
	}

	if ctx.Err() != nil {
		r.finish(jobID, models.JobCancelled, "")
		return
	}

	// Normal completion always records the turn, even when the final text
	// is empty, matching the blocking chat path.
	history = append(history, req.UserMessage, models.Message{Role: models.RoleAssistant, Content: textBuilder.String()})
	if err := r.sessions.SaveMessages(req.SessionID, history); err != nil {
		r.finish(jobID, models.JobFailed, err.Error())
		return
	}
	_ = r.sessions.UpdateCount(ctx, req.SessionID, len(history))

	r.finish(jobID, models.JobCompleted, "")
}

// finish stamps a job's terminal status and records it in metrics.
func (r *Runner) finish(jobID string, status models.JobStatus, errMsg string) {
	_ = r.store.SetStatus(jobID, status, errMsg)
	r.metrics.JobObserved(string(status))
	r.metrics.ActiveJobsDec()
}

func (r *Runner) clearCancel(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, jobID)
}

// Cancel asks jobID's runner to abort at its next yield point. Cancelling a finished or unknown job is a no-op.
func (r *Runner) Cancel(jobID string) error {
	r.mu.Lock()
	cancel, ok := r.cancels[jobID]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	cancel()
	return nil
}
