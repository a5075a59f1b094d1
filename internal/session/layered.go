package session

import (
	"context"
	"log"
	"sync"
	"time"

	"compliance-copilot/internal/llm"
)

const persistQueueSize = 64

type persistJob struct {
	sessionID string
	history   []llm.Message
}

// Layered composes the in-memory primary store with an optional durable
// backend. Reads hit memory first and fall back to the durable copy only when
// the in-memory history is empty (cold start). Writes update memory
// synchronously and hand the durable write to a background worker so a slow
// or failing database never fails a user-visible turn.
type Layered struct {
	mem     *Memory
	durable Store

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	queue chan persistJob
	wg    sync.WaitGroup
}

func NewLayered(durable Store) *Layered {
	l := &Layered{
		mem:     NewMemory(),
		durable: durable,
		locks:   make(map[string]*sync.Mutex),
		queue:   make(chan persistJob, persistQueueSize),
	}
	l.wg.Add(1)
	go l.persistWorker()
	return l
}

// GetOrHydrate returns the session history, hydrating the in-memory copy from
// the durable store when it is empty. Hydration failures are logged and
// ignored: an empty history is a valid starting state.
func (l *Layered) GetOrHydrate(ctx context.Context, sessionID string) []llm.Message {
	history, _ := l.mem.Get(ctx, sessionID)
	if len(history) > 0 || l.durable == nil {
		return history
	}
	restored, err := l.durable.Get(ctx, sessionID)
	if err != nil {
		log.Printf("⚠️ session %s: hydrate from durable store failed: %v", sessionID, err)
		return history
	}
	if len(restored) == 0 {
		return history
	}
	_ = l.mem.Put(ctx, sessionID, restored)
	out := make([]llm.Message, len(restored))
	copy(out, restored)
	return out
}

// Persist trims the history to HistoryLimit, stores it in memory and enqueues
// the durable write. Two concurrent turns on the same session are serialized
// here, so the stored value is always one turn's complete history
// (last-writer-wins, never a torn write).
func (l *Layered) Persist(ctx context.Context, sessionID string, history []llm.Message) {
	trimmed := Trim(history)

	mu := l.sessionLock(sessionID)
	mu.Lock()
	_ = l.mem.Put(ctx, sessionID, trimmed)
	mu.Unlock()

	if l.durable == nil {
		return
	}
	cp := make([]llm.Message, len(trimmed))
	copy(cp, trimmed)
	select {
	case l.queue <- persistJob{sessionID: sessionID, history: cp}:
	default:
		log.Printf("⚠️ session %s: persist queue full, durable write dropped", sessionID)
	}
}

// Close drains the persist queue and stops the worker.
func (l *Layered) Close() {
	close(l.queue)
	l.wg.Wait()
}

func (l *Layered) persistWorker() {
	defer l.wg.Done()
	for job := range l.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := l.durable.Put(ctx, job.sessionID, job.history); err != nil {
			log.Printf("⚠️ session %s: durable persist failed: %v", job.sessionID, err)
		}
		cancel()
	}
}

func (l *Layered) sessionLock(sessionID string) *sync.Mutex {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()
	mu, ok := l.locks[sessionID]
	if !ok {
		mu = &sync.Mutex{}
		l.locks[sessionID] = mu
	}
	return mu
}
