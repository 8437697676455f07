// Package store persists conversation history for the HR assistant in SQLite.
// Turns are keyed by session ID so that grounded answers and agent chats from
// the same user can be replayed into later prompts and listed by the CLI.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// DefaultSession is used when a caller supplies no session ID.
const DefaultSession = "default"

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser is a question or message from the employee.
	RoleUser Role = "user"
	// RoleAssistant is an answer produced by the assistant.
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session summarises one stored conversation.
type Session struct {
	ID         string    `json:"id"`
	Messages   int       `json:"messages"`
	LastActive time.Time `json:"lastActive"`
}

// ConversationStore persists and retrieves conversation history keyed by
// session ID. Implementations must be safe for concurrent use.
type ConversationStore interface {
	// Append persists a single message for the session.
	Append(ctx context.Context, session string, role Role, content string) error
	// Recent returns up to n of the latest messages for the session,
	// oldest-first.
	Recent(ctx context.Context, session string, n int) ([]Message, error)
	// Sessions lists stored sessions, most recently active first.
	Sessions(ctx context.Context) ([]Session, error)
	// Clear deletes every message of the session.
	Clear(ctx context.Context, session string) error
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a ConversationStore backed by a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ ConversationStore = (*SQLiteStore)(nil)

// DefaultDBPath resolves HRASSIST_HISTORY_DB or ~/.hrassist/history.db,
// creating the parent directory if needed.
func DefaultDBPath() (string, error) {
	if p := os.Getenv("HRASSIST_HISTORY_DB"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".hrassist")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// SessionOrDefault trims id and substitutes DefaultSession when it is blank.
func SessionOrDefault(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return DefaultSession
}

// Open opens (or creates) a SQLiteStore at path. Use ":memory:" in tests.
func Open(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("store: create directory for %s: %w", path, err)
		}
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// One connection: writers never contend and ":memory:" stays a single database.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS messages (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    session     TEXT    NOT NULL,
    role        TEXT    NOT NULL CHECK(role IN ('user','assistant')),
    content     TEXT    NOT NULL,
    created_at  INTEGER NOT NULL  -- Unix milliseconds
);
CREATE INDEX IF NOT EXISTS idx_messages_session_id
    ON messages (session, id);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Append persists a single message for the session.
func (s *SQLiteStore) Append(ctx context.Context, session string, role Role, content string) error {
	const q = `INSERT INTO messages (session, role, content, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, SessionOrDefault(session), string(role), content, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// Recent selects the session's tail by descending id and re-orders it
// oldest-first for prompt injection. n <= 0 returns nothing.
func (s *SQLiteStore) Recent(ctx context.Context, session string, n int) ([]Message, error) {
	if n <= 0 {
		return nil, nil
	}
	const q = `
SELECT role, content, created_at FROM (
    SELECT id, role, content, created_at
    FROM   messages
    WHERE  session = ?
    ORDER  BY id DESC
    LIMIT  ?
) ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, q, SessionOrDefault(session), n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var (
			m    Message
			ts   int64
			role string
		)
		if err := rows.Scan(&role, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		m.Role = Role(role)
		m.CreatedAt = time.UnixMilli(ts)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return msgs, nil
}

// Sessions lists sessions with their message counts.
func (s *SQLiteStore) Sessions(ctx context.Context) ([]Session, error) {
	const q = `
SELECT session, COUNT(*), MAX(created_at)
FROM   messages
GROUP  BY session
ORDER  BY MAX(created_at) DESC, session ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			sess Session
			ts   int64
		)
		if err := rows.Scan(&sess.ID, &sess.Messages, &ts); err != nil {
			return nil, fmt.Errorf("store: sessions scan: %w", err)
		}
		sess.LastActive = time.UnixMilli(ts)
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: sessions rows: %w", err)
	}
	return out, nil
}

// Clear deletes the session's messages.
func (s *SQLiteStore) Clear(ctx context.Context, session string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE session = ?`, SessionOrDefault(session)); err != nil {
		return fmt.Errorf("store: clear: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
