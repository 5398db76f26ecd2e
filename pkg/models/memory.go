package models

import "time"

// MemoryEntry is one per-user persistent key/value pair used by the
// "memory" tool.
type MemoryEntry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Bounds applied to the memory store.
const (
	MaxMemoryEntries    = 500
	MaxMemoryValueChars = 4000
)
