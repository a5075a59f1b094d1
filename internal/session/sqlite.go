package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"compliance-copilot/internal/llm"
)

// SQLite is the durable session backend. It shares the application database
// and owns a single table keyed by session id with the history serialized as
// one JSON document.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) (*SQLite, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS chat_sessions (
		session_id TEXT PRIMARY KEY,
		history TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate chat_sessions: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Get(ctx context.Context, sessionID string) ([]llm.Message, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT history FROM chat_sessions WHERE session_id = ?`, sessionID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", sessionID, err)
	}
	var history []llm.Message
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}
	return history, nil
}

func (s *SQLite) Put(ctx context.Context, sessionID string, history []llm.Message) error {
	raw, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", sessionID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (session_id, history, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET history = excluded.history, updated_at = excluded.updated_at`,
		sessionID, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write session %s: %w", sessionID, err)
	}
	return nil
}
