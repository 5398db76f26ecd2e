package models

import "time"

// Session is the metadata record for a persisted conversation. The full
// message list is stored separately, keyed by the same ID (see
// internal/sessionstore).
type Session struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Title        string    `json:"title,omitempty"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MaxTitleLength caps Session.Title, matching Session Store's set_title contract.
const MaxTitleLength = 120
