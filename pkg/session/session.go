package session

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Session is the metadata record grouping a conversation's history,
// live events and at most one active run.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// New creates a session record with a fresh ID.
func New() *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
}

// Message is one durable chat turn. Messages are append-only; Sequence is
// assigned by the store and establishes the total order within a session.
// Replay order is Sequence, never CreatedAt, so clock skew cannot reorder
// history.
type Message struct {
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Sequence  int64     `json:"sequence"`
}
