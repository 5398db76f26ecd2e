package models

import "time"

// JobStatus is a Job's position in its state machine.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// Job is a background agent run submitted for polling/tailing. OutputChunks
// and ToolEvents are append-only until the job reaches a terminal status.
type Job struct {
	JobID       string          `json:"job_id"`
	Username    string          `json:"username"`
	SessionID   string          `json:"session_id"`
	Status      JobStatus       `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   time.Time       `json:"started_at,omitempty"`
	CompletedAt time.Time       `json:"completed_at,omitempty"`
	OutputChunks []string       `json:"output_chunks"`
	ToolEvents  []JobToolEvent  `json:"tool_events"`
	Error       string          `json:"error,omitempty"`
}

// JobToolEvent is one recorded ToolStatusEvent, persisted alongside a job's
// text output chunks.
type JobToolEvent struct {
	ToolName   string    `json:"tool_name"`
	ToolCallID string    `json:"tool_call_id"`
	Status     string    `json:"status"` // started | completed | failed
	DurationMS int64     `json:"duration_ms,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// FullText concatenates OutputChunks, the text appended to session history
// on normal completion.
func (j *Job) FullText() string {
	out := ""
	for _, c := range j.OutputChunks {
		out += c
	}
	return out
}
