// Package stopsignal implements the process-wide cooperative cancellation
// flag: a boolean backed by the presence of a sentinel file, so
// an out-of-band signal (another process, an admin script) can set it.
package stopsignal

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/kairoai/agentrt/pkg/models"
)

// Flag is the process-wide stop signal.
type Flag struct {
	mu   sync.Mutex
	path string
}

// New creates a Flag backed by a sentinel file at path (data/STOP).
func New(path string) *Flag {
	return &Flag{path: path}
}

// Clear removes the sentinel file. Called once by the process startup hook.
func (f *Flag) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := os.Remove(f.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Set creates the sentinel file, marking the flag set.
func (f *Flag) Set() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(f.path, []byte("stop"), 0o644)
}

// IsSet reports whether the sentinel file currently exists.
func (f *Flag) IsSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := os.Stat(f.path)
	return err == nil
}

// Check raises ErrCancelled if the flag is set. Called at every Agent Loop
// iteration boundary.
func (f *Flag) Check() error {
	if f.IsSet() {
		return models.ErrCancelled
	}
	return nil
}
