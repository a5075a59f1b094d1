package session

import (
	"context"
	"sync"

	"compliance-copilot/internal/llm"
)

// Memory is the in-process session map. It is the primary copy; the durable
// store behind Layered only backs it up across restarts.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string][]llm.Message
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[string][]llm.Message)}
}

func (m *Memory) Get(_ context.Context, sessionID string) ([]llm.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	history := m.sessions[sessionID]
	// Copy so callers cannot mutate internal state through the returned slice.
	out := make([]llm.Message, len(history))
	copy(out, history)
	return out, nil
}

func (m *Memory) Put(_ context.Context, sessionID string, history []llm.Message) error {
	cp := make([]llm.Message, len(history))
	copy(cp, history)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = cp
	return nil
}

func (m *Memory) Reset(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}
