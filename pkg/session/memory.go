package session

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore implements Store with in-process maps. It is used by tests
// and by deployments that do not need history to survive a restart.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	messages map[string][]Message
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*Session),
		messages: make(map[string][]Message),
	}
}

func (s *InMemoryStore) CreateSession(context.Context) (*Session, error) {
	sess := New()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess

	return sess, nil
}

func (s *InMemoryStore) GetSession(_ context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *sess
	return &copied, nil
}

func (s *InMemoryStore) AddMessage(_ context.Context, sessionID string, role Role, content string) (*Message, error) {
	if sessionID == "" {
		return nil, ErrEmptyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, ErrNotFound
	}

	msg := Message{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
		Sequence:  int64(len(s.messages[sessionID])) + 1,
	}
	s.messages[sessionID] = append(s.messages[sessionID], msg)

	copied := msg
	return &copied, nil
}

func (s *InMemoryStore) ListMessages(_ context.Context, sessionID string) ([]Message, error) {
	if sessionID == "" {
		return nil, ErrEmptyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	messages := make([]Message, len(s.messages[sessionID]))
	copy(messages, s.messages[sessionID])
	return messages, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
