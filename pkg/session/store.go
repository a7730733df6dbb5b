package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var (
	ErrEmptyID  = errors.New("session ID cannot be empty")
	ErrNotFound = errors.New("session not found")
)

// Store defines the interface for session and chat history storage.
type Store interface {
	CreateSession(ctx context.Context) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	// AddMessage assigns the next sequence number for the session and
	// persists the message. It returns ErrNotFound when the session does
	// not exist.
	AddMessage(ctx context.Context, sessionID string, role Role, content string) (*Message, error)
	// ListMessages returns the session's messages in ascending sequence
	// order. A session with no messages yields an empty slice, not an error.
	ListMessages(ctx context.Context, sessionID string) ([]Message, error)
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-backed store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	// Set pragmas for better concurrency handling via the driver's
	// _pragma DSN parameter:
	// busy_timeout: wait up to 5 seconds if the database is locked
	// journal_mode=WAL: write-ahead logging for better concurrent access
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}

	// Configure connection pool to serialize writes (SQLite limitation)
	// This prevents "database is locked" errors from concurrent writes
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	_, err = db.ExecContext(context.Background(), `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	_, err = db.ExecContext(context.Background(), `
		CREATE TABLE IF NOT EXISTS chat_history (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (session_id, seq),
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		)
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// CreateSession persists and returns a new session record.
func (s *SQLiteStore) CreateSession(ctx context.Context) (*Session, error) {
	sess := New()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, created_at) VALUES (?, ?)",
		sess.ID, sess.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return sess, nil
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT id, created_at FROM sessions WHERE id = ?", id)

	var sessionID, createdAtStr string
	if err := row.Scan(&sessionID, &createdAtStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:        sessionID,
		CreatedAt: createdAt,
	}, nil
}

// AddMessage appends a message to a session's history. The sequence number
// is assigned inside the insert transaction so two concurrent appends can
// never claim the same slot.
func (s *SQLiteStore) AddMessage(ctx context.Context, sessionID string, role Role, content string) (*Message, error) {
	if sessionID == "" {
		return nil, ErrEmptyID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sessions WHERE id = ?", sessionID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	msg := &Message{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) + 1 FROM chat_history WHERE session_id = ?",
		sessionID).Scan(&msg.Sequence)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO chat_history (session_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
		msg.SessionID, msg.Sequence, string(msg.Role), msg.Content, msg.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("failed to add message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return msg, nil
}

// ListMessages returns a session's chat history in ascending sequence order.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	if sessionID == "" {
		return nil, ErrEmptyID
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT session_id, seq, role, content, created_at FROM chat_history WHERE session_id = ? ORDER BY seq ASC",
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var msg Message
		var role, createdAtStr string

		if err := rows.Scan(&msg.SessionID, &msg.Sequence, &role, &msg.Content, &createdAtStr); err != nil {
			return nil, err
		}

		createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
		if err != nil {
			return nil, err
		}

		msg.Role = Role(role)
		msg.CreatedAt = createdAt
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
