package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kairoai/agentrt/internal/jobstore"
	"github.com/kairoai/agentrt/pkg/models"
)

// tailPollInterval is how often the tail endpoints re-read the job
// document looking for new chunks.
const tailPollInterval = 500 * time.Millisecond

// wsUpgrader holds the tail websocket's buffer sizes. Origin policy is
// enforced by the CORS middleware for HTTP; tailJobWS gives the websocket
// handshake the same allowlist.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

type submitJobBody struct {
	Messages    []models.Message `json:"messages"`
	Message     string           `json:"message"`
	Model       string           `json:"model"`
	Temperature float32          `json:"temperature"`
	SessionID   string           `json:"session_id"`
}

// handleJobs covers the collection routes: submit, list, and cancel by
// query parameter.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.submitJob(w, r)
	case http.MethodGet:
		s.listJobs(w, r)
	case http.MethodDelete:
		jobID := r.URL.Query().Get("job_id")
		if jobID == "" {
			writeError(w, models.NewError(models.KindValidation, "job_id is required"))
			return
		}
		job, err := s.ownedJob(r, jobID)
		if err != nil {
			writeError(w, err)
			return
		}
		s.cancelJob(w, r, job)
	default:
		writeError(w, models.NewError(models.KindValidation, "method not allowed"))
	}
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var body submitJobBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, models.Wrap(models.KindValidation, "invalid request body", err))
		return
	}

	userTurn := models.Message{Role: models.RoleUser, Content: body.Message}
	if len(body.Messages) > 0 {
		last := body.Messages[len(body.Messages)-1]
		if last.Role != models.RoleUser {
			writeError(w, models.NewError(models.KindValidation, "last message must have role user"))
			return
		}
		userTurn = last
	}
	if userTurn.Content == "" {
		writeError(w, models.NewError(models.KindValidation, "message is required"))
		return
	}

	job, err := s.cfg.Runner.Submit(r.Context(), jobstore.SubmitRequest{
		Username:    userFrom(r.Context()),
		SessionID:   body.SessionID,
		UserMessage: userTurn,
		Model:       body.Model,
		Temperature: body.Temperature,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":     job.JobID,
		"session_id": job.SessionID,
		"status":     job.Status,
	})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.cfg.Jobs.List(userFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// handleJob covers the item routes: get, tail, cancel/delete.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	jobID, tail := rest, false
	if strings.HasSuffix(rest, "/stream") {
		jobID = strings.TrimSuffix(rest, "/stream")
		tail = true
	}
	if jobID == "" || strings.Contains(jobID, "/") {
		writeError(w, models.NewError(models.KindNotFound, "job not found"))
		return
	}

	job, err := s.ownedJob(r, jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	switch {
	case tail && r.Method == http.MethodGet:
		s.tailJob(w, r, job)
	case r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, struct {
			*models.Job
			Output string `json:"output"`
		}{job, job.FullText()})
	case r.Method == http.MethodDelete:
		s.cancelJob(w, r, job)
	default:
		writeError(w, models.NewError(models.KindValidation, "method not allowed"))
	}
}

// ownedJob loads jobID and enforces ownership.
func (s *Server) ownedJob(r *http.Request, jobID string) (*models.Job, error) {
	job, err := s.cfg.Jobs.Get(jobID)
	if err != nil {
		return nil, err
	}
	if job.Username != userFrom(r.Context()) {
		return nil, models.NewError(models.KindAccessDenied, "job owned by a different user")
	}
	return job, nil
}

// cancelJob asks the runner to abort a non-terminal job and returns its
// current status. A DELETE on a job already in a terminal status removes
// the document and returns that status with "deleted": true, so a running
// job is removed by a second DELETE once its cancellation has landed.
func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request, job *models.Job) {
	if job.Status.Terminal() {
		if err := s.cfg.Jobs.Delete(job.JobID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"job_id": job.JobID, "status": job.Status, "deleted": true})
		return
	}

	if err := s.cfg.Runner.Cancel(job.JobID); err != nil {
		writeError(w, err)
		return
	}
	current, err := s.cfg.Jobs.Get(job.JobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": current.JobID, "status": current.Status})
}

// tailEvent is one frame of a job tail stream, shared by the SSE and
// websocket transports.
type tailEvent struct {
	Type      string               `json:"type"` // chunk | tool_event | status
	Content   string               `json:"content,omitempty"`
	ToolEvent *models.JobToolEvent `json:"tool_event,omitempty"`
	Status    models.JobStatus     `json:"status,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// tailJob polls the job record and emits new chunks as they appear,
// terminating when the job reaches a terminal status. SSE by
// default; a websocket upgrade request gets the same frames over a
// websocket connection.
func (s *Server) tailJob(w http.ResponseWriter, r *http.Request, job *models.Job) {
	if websocket.IsWebSocketUpgrade(r) {
		s.tailJobWS(w, r, job)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, models.NewError(models.KindInternal, "streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	send := func(ev tailEvent) bool {
		data, err := json.Marshal(ev)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	s.tailLoop(r, job.JobID, send)
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (s *Server) tailJobWS(w http.ResponseWriter, r *http.Request, job *models.Job) {
	upgrader := wsUpgrader
	upgrader.CheckOrigin = func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || s.originAllowed(origin)
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.tailLoop(r, job.JobID, func(ev tailEvent) bool {
		return conn.WriteJSON(ev) == nil
	})
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// tailLoop drives one tail: snapshots of the job document under its lock,
// new chunks and tool events forwarded in order, a final status frame at
// a terminal state. send returns false when the client is gone.
func (s *Server) tailLoop(r *http.Request, jobID string, send func(tailEvent) bool) {
	sentChunks, sentEvents := 0, 0
	ticker := time.NewTicker(tailPollInterval)
	defer ticker.Stop()

	for {
		job, err := s.cfg.Jobs.Get(jobID)
		if err != nil {
			send(tailEvent{Type: "status", Error: err.Error()})
			return
		}

		for ; sentChunks < len(job.OutputChunks); sentChunks++ {
			if !send(tailEvent{Type: "chunk", Content: job.OutputChunks[sentChunks]}) {
				return
			}
		}
		for ; sentEvents < len(job.ToolEvents); sentEvents++ {
			ev := job.ToolEvents[sentEvents]
			if !send(tailEvent{Type: "tool_event", ToolEvent: &ev}) {
				return
			}
		}

		if job.Status.Terminal() {
			send(tailEvent{Type: "status", Status: job.Status, Error: job.Error})
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
