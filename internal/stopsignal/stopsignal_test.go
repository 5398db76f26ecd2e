package stopsignal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kairoai/agentrt/pkg/models"
)

func TestSetCheckClear(t *testing.T) {
	flag := New(filepath.Join(t.TempDir(), "STOP"))

	if flag.IsSet() {
		t.Fatal("fresh flag must be clear")
	}
	if err := flag.Check(); err != nil {
		t.Fatalf("check on clear flag: %v", err)
	}

	if err := flag.Set(); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !flag.IsSet() {
		t.Fatal("flag should be set")
	}
	if err := flag.Check(); models.AsKind(err) != models.KindCancelled {
		t.Fatalf("expected cancelled, got %v", err)
	}

	if err := flag.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if flag.IsSet() {
		t.Fatal("flag should be clear")
	}
}

func TestClearMissingFileIsNoop(t *testing.T) {
	flag := New(filepath.Join(t.TempDir(), "STOP"))
	if err := flag.Clear(); err != nil {
		t.Fatalf("clear on missing sentinel: %v", err)
	}
}

func TestOutOfBandSentinelObserved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "STOP")
	flag := New(path)

	// Another process writes the sentinel directly.
	if err := os.WriteFile(path, []byte("stop"), 0o644); err != nil {
		t.Fatalf("write sentinel: %v", err)
	}
	if !flag.IsSet() {
		t.Fatal("flag must observe an externally written sentinel")
	}
}
