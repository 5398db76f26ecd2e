// Package usermemory implements the per-user persistent key/value store
// backing the "memory" tool: one JSON document per user, bounded in entry
// count and value length.
package usermemory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kairoai/agentrt/internal/filelock"
	"github.com/kairoai/agentrt/pkg/models"
)

// Store persists one JSON document per user under root, guarded by a
// per-user lock.
type Store struct {
	root   string
	locker *filelock.KeyedLocker
}

// New creates a Store rooted at root (data/memory).
func New(root string) *Store {
	return &Store{root: root, locker: filelock.New()}
}

func (s *Store) path(username string) string {
	return filepath.Join(s.root, username+".json")
}

func (s *Store) load(username string) (map[string]models.MemoryEntry, error) {
	data, err := os.ReadFile(s.path(username))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]models.MemoryEntry{}, nil
		}
		return nil, err
	}
	var m map[string]models.MemoryEntry
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]models.MemoryEntry{}
	}
	return m, nil
}

func (s *Store) save(username string, m map[string]models.MemoryEntry) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(username), data, 0o644)
}

// Set writes key=value for username, enforcing the count/length bounds.
func (s *Store) Set(username, key, value string) error {
	if len(value) > models.MaxMemoryValueChars {
		value = value[:models.MaxMemoryValueChars]
	}
	unlock := s.locker.Lock(username)
	defer unlock()

	m, err := s.load(username)
	if err != nil {
		return err
	}
	if _, exists := m[key]; !exists && len(m) >= models.MaxMemoryEntries {
		return fmt.Errorf("memory store full (max %d entries)", models.MaxMemoryEntries)
	}
	m[key] = models.MemoryEntry{Key: key, Value: value, UpdatedAt: time.Now()}
	return s.save(username, m)
}

// Get returns one entry.
func (s *Store) Get(username, key string) (models.MemoryEntry, bool, error) {
	unlock := s.locker.Lock(username)
	defer unlock()

	m, err := s.load(username)
	if err != nil {
		return models.MemoryEntry{}, false, err
	}
	entry, ok := m[key]
	return entry, ok, nil
}

// List returns all entries for username.
func (s *Store) List(username string) ([]models.MemoryEntry, error) {
	unlock := s.locker.Lock(username)
	defer unlock()

	m, err := s.load(username)
	if err != nil {
		return nil, err
	}
	out := make([]models.MemoryEntry, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out, nil
}

// Delete removes one entry.
func (s *Store) Delete(username, key string) error {
	unlock := s.locker.Lock(username)
	defer unlock()

	m, err := s.load(username)
	if err != nil {
		return err
	}
	delete(m, key)
	return s.save(username, m)
}
