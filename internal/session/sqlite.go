package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/olserra/xmem-go/internal/memory"
)

// SQLiteStore is a Store backed by a local SQLite database. Message
// embeddings and free-form session data are stored as JSON columns.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultDBPath returns the default path for the session database.
// It resolves to ~/.xmem/sessions.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("session: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".xmem")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("session: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "sessions.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the
// schema migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("session: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id  TEXT PRIMARY KEY,
    summary     TEXT NOT NULL DEFAULT '',
    data        TEXT NOT NULL DEFAULT '{}',  -- JSON object
    updated_at  INTEGER NOT NULL             -- Unix timestamp (seconds)
);
CREATE TABLE IF NOT EXISTS session_messages (
    id          TEXT NOT NULL,
    session_id  TEXT NOT NULL,
    role        TEXT NOT NULL,
    content     TEXT NOT NULL,
    embedding   TEXT NOT NULL DEFAULT '[]',  -- JSON array of floats
    pinned      INTEGER NOT NULL DEFAULT 0,
    deleted     INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL,            -- Unix timestamp (nanoseconds)
    PRIMARY KEY (session_id, id)
);
CREATE INDEX IF NOT EXISTS idx_session_messages_session_created
    ON session_messages (session_id, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("session: migrate: %w", err)
	}
	return nil
}

// GetSession loads the session row and its full message log, oldest-first.
// Soft-deleted messages are included with Deleted=true so audit callers
// can see them; retrieval paths filter on the flag.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*memory.SessionRecord, error) {
	rec := &memory.SessionRecord{SessionID: sessionID}

	var dataJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT summary, data FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&rec.Summary, &dataJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, s.wrap("get", err)
	}
	if err := json.Unmarshal([]byte(dataJSON), &rec.Data); err != nil {
		return nil, s.wrap("get", fmt.Errorf("corrupt data column: %w", err))
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, embedding, pinned, deleted, created_at
		   FROM session_messages WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, s.wrap("get", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			msg       memory.SessionMessage
			embJSON   string
			createdNs int64
		)
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &embJSON, &msg.Pinned, &msg.Deleted, &createdNs); err != nil {
			return nil, s.wrap("get", err)
		}
		if err := json.Unmarshal([]byte(embJSON), &msg.Embedding); err != nil {
			return nil, s.wrap("get", fmt.Errorf("corrupt embedding column: %w", err))
		}
		msg.CreatedAt = time.Unix(0, createdNs)
		rec.Messages = append(rec.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("get", err)
	}
	return rec, nil
}

// SetSession replaces the stored record wholesale: session row and message
// log are rewritten in one transaction.
func (s *SQLiteStore) SetSession(ctx context.Context, rec *memory.SessionRecord) error {
	if rec == nil || rec.SessionID == "" {
		return &memory.ValidationError{Field: "sessionId", Reason: "must not be empty"}
	}

	dataJSON, err := json.Marshal(orEmpty(rec.Data))
	if err != nil {
		return s.wrap("set", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrap("set", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (session_id, summary, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET summary=excluded.summary, data=excluded.data, updated_at=excluded.updated_at`,
		rec.SessionID, rec.Summary, string(dataJSON), time.Now().Unix())
	if err != nil {
		return s.wrap("set", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_messages WHERE session_id = ?`, rec.SessionID); err != nil {
		return s.wrap("set", err)
	}
	for _, msg := range rec.Messages {
		if err := insertMessage(ctx, tx, rec.SessionID, msg); err != nil {
			return s.wrap("set", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return s.wrap("set", err)
	}
	return nil
}

// AppendMessage adds one message, creating the session row on first write.
func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID string, msg memory.SessionMessage) error {
	if sessionID == "" {
		return &memory.ValidationError{Field: "sessionId", Reason: "must not be empty"}
	}
	if msg.ID == "" {
		return &memory.ValidationError{Field: "message.id", Reason: "must not be empty"}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrap("append", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (session_id, updated_at) VALUES (?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET updated_at=excluded.updated_at`,
		sessionID, time.Now().Unix())
	if err != nil {
		return s.wrap("append", err)
	}
	if err := insertMessage(ctx, tx, sessionID, msg); err != nil {
		return s.wrap("append", err)
	}
	if err := tx.Commit(); err != nil {
		return s.wrap("append", err)
	}
	return nil
}

// DeleteMessage soft-deletes one message. Unknown IDs are a no-op.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, sessionID, messageID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE session_messages SET deleted = 1 WHERE session_id = ? AND id = ?`,
		sessionID, messageID)
	if err != nil {
		return s.wrap("deleteMessage", err)
	}
	return nil
}

// DeleteSession removes the session and all its messages.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrap("delete", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_messages WHERE session_id = ?`, sessionID); err != nil {
		return s.wrap("delete", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return s.wrap("delete", err)
	}
	if err := tx.Commit(); err != nil {
		return s.wrap("delete", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database handle is usable. Used by readiness checks.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// wrap converts a driver error into the shared backend error shape.
func (s *SQLiteStore) wrap(op string, err error) error {
	return &memory.BackendError{Backend: "sqlite", Operation: op, Cause: err}
}

// insertMessage writes one message row inside an open transaction.
func insertMessage(ctx context.Context, tx *sql.Tx, sessionID string, msg memory.SessionMessage) error {
	embJSON, err := json.Marshal(orEmptyVec(msg.Embedding))
	if err != nil {
		return err
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO session_messages (id, session_id, role, content, embedding, pinned, deleted, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, id) DO UPDATE SET
		   role=excluded.role, content=excluded.content, embedding=excluded.embedding,
		   pinned=excluded.pinned, deleted=excluded.deleted`,
		msg.ID, sessionID, msg.Role, msg.Content, string(embJSON), msg.Pinned, msg.Deleted, createdAt.UnixNano())
	return err
}

// orEmpty substitutes an empty map so JSON columns never store "null".
func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// orEmptyVec substitutes an empty slice so JSON columns never store "null".
func orEmptyVec(v []float32) []float32 {
	if v == nil {
		return []float32{}
	}
	return v
}
