// Package sessionstore persists conversations: session metadata in a
// SQLite table (data/app.db) plus one human-readable JSON message
// document per session (data/sessions/{id}.json), guarded by a
// per-session lock.
package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kairoai/agentrt/internal/filelock"
	"github.com/kairoai/agentrt/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	message_count INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_username ON sessions(username);
`

// Store is the Session Store: metadata lives in dbPath (SQLite), full
// message history lives under messagesRoot, one JSON file per session.
type Store struct {
	db           *sql.DB
	messagesRoot string
	locker       *filelock.KeyedLocker
}

// Open creates/opens the SQLite metadata database at dbPath and prepares
// the messages directory at messagesRoot.
func Open(dbPath, messagesRoot string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("sessionstore: create db dir: %w", err)
	}
	if err := os.MkdirAll(messagesRoot, 0o755); err != nil {
		return nil, fmt.Errorf("sessionstore: create messages dir: %w", err)
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sessionstore: open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessionstore: migrate: %w", err)
	}
	return &Store{db: db, messagesRoot: messagesRoot, locker: filelock.New()}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Create inserts a new session's metadata row.
func (s *Store) Create(ctx context.Context, sessionID, username string) (*models.Session, error) {
	now := time.Now().UTC()
	sess := &models.Session{ID: sessionID, Username: username, CreatedAt: now, UpdatedAt: now}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, username, title, message_count, created_at, updated_at) VALUES (?, ?, '', 0, ?, ?)`,
		sess.ID, sess.Username, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: create: %w", err)
	}
	return sess, nil
}

// Get returns one session's metadata.
func (s *Store) Get(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, title, message_count, created_at, updated_at FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*models.Session, error) {
	var sess models.Session
	err := row.Scan(&sess.ID, &sess.Username, &sess.Title, &sess.MessageCount, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewError(models.KindNotFound, "session not found")
	}
	if err != nil {
		return nil, fmt.Errorf("sessionstore: scan: %w", err)
	}
	return &sess, nil
}

// List returns a username's sessions, most recently updated first.
func (s *Store) List(ctx context.Context, username string) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, title, message_count, created_at, updated_at FROM sessions WHERE username = ? ORDER BY updated_at DESC`, username)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: list: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// Search matches title or id by substring, scoped to username.
func (s *Store) Search(ctx context.Context, username, substring string) ([]*models.Session, error) {
	like := "%" + substring + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, title, message_count, created_at, updated_at FROM sessions
		 WHERE username = ? AND (title LIKE ? OR id LIKE ?) ORDER BY updated_at DESC`,
		username, like, like)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: search: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func scanSessions(rows *sql.Rows) ([]*models.Session, error) {
	out := []*models.Session{}
	for rows.Next() {
		var sess models.Session
		if err := rows.Scan(&sess.ID, &sess.Username, &sess.Title, &sess.MessageCount, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sessionstore: scan row: %w", err)
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// SetTitle updates a session's title, capped to models.MaxTitleLength.
func (s *Store) SetTitle(ctx context.Context, sessionID, title string) error {
	if len(title) > models.MaxTitleLength {
		title = title[:models.MaxTitleLength]
	}
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET title = ?, updated_at = ? WHERE id = ?`, title, time.Now().UTC(), sessionID)
	if err != nil {
		return fmt.Errorf("sessionstore: set title: %w", err)
	}
	return requireAffected(res)
}

// UpdateCount stamps message_count and updated_at after a completed
// turn.
func (s *Store) UpdateCount(ctx context.Context, sessionID string, n int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET message_count = ?, updated_at = ? WHERE id = ?`, n, time.Now().UTC(), sessionID)
	if err != nil {
		return fmt.Errorf("sessionstore: update count: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.NewError(models.KindNotFound, "session not found")
	}
	return nil
}

// messagesPath is the per-session document path.
func (s *Store) messagesPath(sessionID string) string {
	return filepath.Join(s.messagesRoot, sessionID+".json")
}

// LoadMessages reads a session's full message history. A session with no
// document yet returns an empty slice, not an error (freshly created
// sessions have none).
func (s *Store) LoadMessages(sessionID string) ([]models.Message, error) {
	unlock := s.locker.Lock(sessionID)
	defer unlock()

	data, err := os.ReadFile(s.messagesPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return []models.Message{}, nil
		}
		return nil, fmt.Errorf("sessionstore: load messages: %w", err)
	}
	var msgs []models.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("sessionstore: decode messages: %w", err)
	}
	return msgs, nil
}

// SaveMessages overwrites a session's message document atomically
// (write to a temp file, then rename) so a partial turn is never
// observable.
func (s *Store) SaveMessages(sessionID string, messages []models.Message) error {
	unlock := s.locker.Lock(sessionID)
	defer unlock()

	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return fmt.Errorf("sessionstore: encode messages: %w", err)
	}
	path := s.messagesPath(sessionID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("sessionstore: write messages: %w", err)
	}
	return os.Rename(tmp, path)
}

// GC removes sessions whose last-updated timestamp is older than maxAge,
// along with their message documents. Returns the number of sessions removed.
func (s *Store) GC(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sessionstore: gc query: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
			return 0, fmt.Errorf("sessionstore: gc delete %s: %w", id, err)
		}
		_ = os.Remove(s.messagesPath(id))
	}
	return len(ids), nil
}

// normalizeUsername guards against an empty owner, used by callers that
// default to a "guest" identity ("optional-auth mode treats
// requests without a token as user guest").
func normalizeUsername(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return "guest"
	}
	return u
}

// NormalizeUsername is exported for the orchestrator/httpapi layers.
func NormalizeUsername(u string) string { return normalizeUsername(u) }
