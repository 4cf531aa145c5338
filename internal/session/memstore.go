package session

import (
	"context"
	"sync"

	"github.com/olserra/xmem-go/internal/memory"
)

// MemStore is an in-process Store used by tests and ephemeral deployments
// where sessions do not need to survive a restart. No library-backed cache
// is used here: sessions must never be evicted while live, which rules out
// the lossy admission-based caches in the dependency set.
type MemStore struct {
	mu       sync.RWMutex
	sessions map[string]*memory.SessionRecord
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{sessions: make(map[string]*memory.SessionRecord)}
}

// GetSession returns a deep-enough copy of the record so callers cannot
// mutate store state through the returned slices.
func (s *MemStore) GetSession(_ context.Context, sessionID string) (*memory.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	out := &memory.SessionRecord{
		SessionID: rec.SessionID,
		Summary:   rec.Summary,
		Messages:  append([]memory.SessionMessage(nil), rec.Messages...),
		Data:      make(map[string]any, len(rec.Data)),
	}
	for k, v := range rec.Data {
		out.Data[k] = v
	}
	return out, nil
}

// SetSession replaces the stored record.
func (s *MemStore) SetSession(_ context.Context, rec *memory.SessionRecord) error {
	if rec == nil || rec.SessionID == "" {
		return &memory.ValidationError{Field: "sessionId", Reason: "must not be empty"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	cp.Messages = append([]memory.SessionMessage(nil), rec.Messages...)
	s.sessions[rec.SessionID] = &cp
	return nil
}

// AppendMessage adds one message, creating the session on first write.
func (s *MemStore) AppendMessage(_ context.Context, sessionID string, msg memory.SessionMessage) error {
	if sessionID == "" {
		return &memory.ValidationError{Field: "sessionId", Reason: "must not be empty"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		rec = &memory.SessionRecord{SessionID: sessionID}
		s.sessions[sessionID] = rec
	}
	rec.Messages = append(rec.Messages, msg)
	return nil
}

// DeleteMessage soft-deletes one message. Unknown IDs are a no-op.
func (s *MemStore) DeleteMessage(_ context.Context, sessionID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	for i := range rec.Messages {
		if rec.Messages[i].ID == messageID {
			rec.Messages[i].Deleted = true
		}
	}
	return nil
}

// DeleteSession removes the session. Unknown sessions are a no-op.
func (s *MemStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Close is a no-op.
func (s *MemStore) Close() error { return nil }
