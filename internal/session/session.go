// Package session provides session-store adapters: a SQLite-backed store
// for durable conversation state and an in-process store for tests and
// ephemeral deployments. Sessions are keyed by opaque string IDs.
package session

import (
	"context"

	"github.com/olserra/xmem-go/internal/memory"
)

// Store is the capability interface every session backend implements.
// Implementations must be safe for concurrent use.
type Store interface {
	// GetSession returns the record for the given session ID, or (nil, nil)
	// when the session does not exist.
	GetSession(ctx context.Context, sessionID string) (*memory.SessionRecord, error)

	// SetSession upserts the full session record, replacing summary, data,
	// and message log.
	SetSession(ctx context.Context, rec *memory.SessionRecord) error

	// AppendMessage adds one message to the session, creating the session
	// on first write.
	AppendMessage(ctx context.Context, sessionID string, msg memory.SessionMessage) error

	// DeleteMessage soft-deletes one message: it disappears from retrieval
	// but is retained for audit.
	DeleteMessage(ctx context.Context, sessionID, messageID string) error

	// DeleteSession removes the session and its messages. Deleting an
	// unknown session is not an error.
	DeleteSession(ctx context.Context, sessionID string) error

	// Close releases any resources held by the store.
	Close() error
}
