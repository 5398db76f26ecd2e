package jobstore

import (
	"testing"
	"time"

	"github.com/kairoai/agentrt/pkg/models"
)

func newJob(id, username string) *models.Job {
	return &models.Job{
		JobID:        id,
		Username:     username,
		SessionID:    "sess-" + id,
		Status:       models.JobPending,
		CreatedAt:    time.Now().UTC(),
		OutputChunks: []string{},
		ToolEvents:   []models.JobToolEvent{},
	}
}

func TestStoreCRUD(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := store.Create(newJob("j1", "alice")); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := store.Get("j1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.JobPending || got.Username != "alice" {
		t.Fatalf("unexpected job %+v", got)
	}

	if _, err := store.Get("missing"); models.AsKind(err) != models.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := store.Delete("j1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get("j1"); models.AsKind(err) != models.KindNotFound {
		t.Fatalf("job should be gone, got %v", err)
	}
}

func TestStatusTransitionsStampTimes(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Create(newJob("j1", "alice")); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.SetStatus("j1", models.JobRunning, ""); err != nil {
		t.Fatalf("set running: %v", err)
	}
	running, _ := store.Get("j1")
	if running.StartedAt.IsZero() {
		t.Fatal("running must stamp started_at")
	}
	if !running.CompletedAt.IsZero() {
		t.Fatal("running must not stamp completed_at")
	}

	if err := store.SetStatus("j1", models.JobFailed, "backend down"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	failed, _ := store.Get("j1")
	if failed.CompletedAt.IsZero() || failed.Error != "backend down" {
		t.Fatalf("terminal state incomplete: %+v", failed)
	}
}

func TestAppendsStopAtTerminalStatus(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Create(newJob("j1", "alice")); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.AppendChunk("j1", "hello "); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.AppendChunk("j1", "world"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.SetStatus("j1", models.JobCancelled, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := store.AppendChunk("j1", "late"); err != nil {
		t.Fatalf("append after terminal: %v", err)
	}

	got, _ := store.Get("j1")
	if got.FullText() != "hello world" {
		t.Fatalf("chunks after a terminal status must be dropped, got %q", got.FullText())
	}
}

func TestListReturnsMetadataOnly(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	job := newJob("j1", "alice")
	if err := store.Create(job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.AppendChunk("j1", "secret output"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Create(newJob("j2", "bob")); err != nil {
		t.Fatalf("create: %v", err)
	}

	list, err := store.List("alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].JobID != "j1" {
		t.Fatalf("expected alice's one job, got %+v", list)
	}
	if list[0].OutputChunks != nil {
		t.Fatal("listing must strip output chunks")
	}
}

func TestGCRemovesOldJobs(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	old := newJob("old", "alice")
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	if err := store.Create(old); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(newJob("fresh", "alice")); err != nil {
		t.Fatalf("create: %v", err)
	}

	removed, err := store.GC(24 * time.Hour)
	if err != nil {
		t.Fatalf("gc: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := store.Get("fresh"); err != nil {
		t.Fatalf("fresh job must survive: %v", err)
	}
}
