package session

import (
	"context"

	"compliance-copilot/internal/llm"
)

// HistoryLimit bounds how many messages a session keeps after each persist.
const HistoryLimit = 40

// Store abstracts session history persistence. Get returns an empty history
// for unknown sessions rather than an error.
type Store interface {
	Get(ctx context.Context, sessionID string) ([]llm.Message, error)
	Put(ctx context.Context, sessionID string, history []llm.Message) error
}

// Trim returns the most recent HistoryLimit messages of history.
func Trim(history []llm.Message) []llm.Message {
	if len(history) <= HistoryLimit {
		return history
	}
	return history[len(history)-HistoryLimit:]
}
