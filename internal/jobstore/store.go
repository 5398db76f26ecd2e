// Package jobstore persists background agent runs: one JSON document per
// job under data/jobs/, guarded by a per-job lock, with an age-based
// sweep for old jobs.
package jobstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kairoai/agentrt/internal/filelock"
	"github.com/kairoai/agentrt/pkg/models"
)

// Store persists Job documents under root, one JSON file per job.
type Store struct {
	root   string
	locker *filelock.KeyedLocker
}

// Open creates a Store rooted at root (data/jobs), creating it if absent.
func Open(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("jobstore: create dir: %w", err)
	}
	return &Store{root: root, locker: filelock.New()}, nil
}

func (s *Store) path(jobID string) string {
	return filepath.Join(s.root, jobID+".json")
}

// Create writes a new job's initial pending record.
func (s *Store) Create(job *models.Job) error {
	unlock := s.locker.Lock(job.JobID)
	defer unlock()
	return s.writeLocked(job)
}

// Get loads one job by id.
func (s *Store) Get(jobID string) (*models.Job, error) {
	unlock := s.locker.Lock(jobID)
	defer unlock()
	return s.readLocked(jobID)
}

func (s *Store) readLocked(jobID string) (*models.Job, error) {
	data, err := os.ReadFile(s.path(jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.NewError(models.KindNotFound, "job not found")
		}
		return nil, fmt.Errorf("jobstore: read: %w", err)
	}
	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("jobstore: decode: %w", err)
	}
	return &job, nil
}

func (s *Store) writeLocked(job *models.Job) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("jobstore: encode: %w", err)
	}
	tmp := s.path(job.JobID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("jobstore: write: %w", err)
	}
	return os.Rename(tmp, s.path(job.JobID))
}

// Mutate reads, applies fn, and writes back a job under its lock — the
// building block every runner state transition and append uses.
func (s *Store) Mutate(jobID string, fn func(*models.Job) error) error {
	unlock := s.locker.Lock(jobID)
	defer unlock()

	job, err := s.readLocked(jobID)
	if err != nil {
		return err
	}
	if err := fn(job); err != nil {
		return err
	}
	return s.writeLocked(job)
}

// SetStatus transitions a job's status, stamping started_at/completed_at
// per the runner state machine.
func (s *Store) SetStatus(jobID string, status models.JobStatus, errMsg string) error {
	return s.Mutate(jobID, func(job *models.Job) error {
		job.Status = status
		now := time.Now().UTC()
		if status == models.JobRunning && job.StartedAt.IsZero() {
			job.StartedAt = now
		}
		if status.Terminal() {
			job.CompletedAt = now
		}
		if errMsg != "" {
			job.Error = errMsg
		}
		return nil
	})
}

// AppendChunk appends one text chunk to a non-terminal job's output.
func (s *Store) AppendChunk(jobID, chunk string) error {
	return s.Mutate(jobID, func(job *models.Job) error {
		if job.Status.Terminal() {
			return nil
		}
		job.OutputChunks = append(job.OutputChunks, chunk)
		return nil
	})
}

// AppendToolEvent appends one tool lifecycle event to a non-terminal job.
func (s *Store) AppendToolEvent(jobID string, ev models.JobToolEvent) error {
	return s.Mutate(jobID, func(job *models.Job) error {
		if job.Status.Terminal() {
			return nil
		}
		job.ToolEvents = append(job.ToolEvents, ev)
		return nil
	})
}

// List returns metadata for a user's jobs, most recent first, with
// OutputChunks stripped.
func (s *Store) List(username string) ([]*models.Job, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("jobstore: list: %w", err)
	}
	out := []*models.Job{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		jobID := strings.TrimSuffix(e.Name(), ".json")
		job, err := s.Get(jobID)
		if err != nil {
			continue
		}
		if job.Username != username {
			continue
		}
		job.OutputChunks = nil
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Delete removes a job's document. The per-job lock is an in-process
// mutex, so there is no lock file to remove.
func (s *Store) Delete(jobID string) error {
	unlock := s.locker.Lock(jobID)
	defer unlock()
	if err := os.Remove(s.path(jobID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("jobstore: delete: %w", err)
	}
	return nil
}

// GC removes job documents older than maxAge.
func (s *Store) GC(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("jobstore: gc: %w", err)
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		jobID := strings.TrimSuffix(e.Name(), ".json")
		job, err := s.Get(jobID)
		if err != nil {
			continue
		}
		if job.CreatedAt.Before(cutoff) {
			if err := s.Delete(jobID); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
