package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemory is a process-local Store. Each (session, dataset) log is a capped
// ring with its own lock, so appends to different keys run in parallel.
type InMemory struct {
	clock    Clock
	ttl      time.Duration
	capacity int

	mu       sync.RWMutex
	sessions map[string]*sessionState
}

type sessionState struct {
	mu   sync.Mutex // guards info.LastActive and logs
	info Session
	logs map[string]*turnLog
}

type turnLog struct {
	mu   sync.Mutex
	ring *ring
}

// NewInMemory creates an in-memory store with MaxHistory and SessionTTL.
func NewInMemory() *InMemory {
	return NewInMemoryWithClock(realClock{}, SessionTTL, MaxHistory)
}

// NewInMemoryWithClock creates an in-memory store with a custom clock, TTL
// and per-key capacity (for testing).
func NewInMemoryWithClock(clock Clock, ttl time.Duration, capacity int) *InMemory {
	return &InMemory{
		clock:    clock,
		ttl:      ttl,
		capacity: capacity,
		sessions: make(map[string]*sessionState),
	}
}

func (m *InMemory) CreateSession(_ context.Context, profileTag string) (string, error) {
	now := m.clock.Now()
	id := uuid.NewString()

	m.mu.Lock()
	m.sessions[id] = &sessionState{
		info: Session{ID: id, ProfileTag: profileTag, CreatedAt: now, LastActive: now},
		logs: make(map[string]*turnLog),
	}
	m.mu.Unlock()
	return id, nil
}

func (m *InMemory) GetSession(_ context.Context, id string) (*Session, error) {
	st := m.lookup(id)
	if st == nil {
		return nil, nil
	}
	st.mu.Lock()
	info := st.info
	st.mu.Unlock()

	if Expired(m.clock.Now(), info.LastActive, m.ttl) {
		return nil, nil
	}
	return &info, nil
}

func (m *InMemory) AppendTurn(_ context.Context, sessionID, datasetID string, role Role, content string) error {
	if !role.Valid() {
		return ErrInvalidRole
	}
	st, err := m.live(sessionID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	log, ok := st.logs[datasetID]
	if !ok {
		log = &turnLog{ring: newRing(m.capacity)}
		st.logs[datasetID] = log
	}
	st.mu.Unlock()

	// Stamped under the key lock so FIFO order matches timestamp order.
	log.mu.Lock()
	now := m.clock.Now()
	log.ring.push(Turn{Role: role, Content: content, CreatedAt: now})
	log.mu.Unlock()

	st.mu.Lock()
	if now.After(st.info.LastActive) {
		st.info.LastActive = now
	}
	st.mu.Unlock()
	return nil
}

func (m *InMemory) History(_ context.Context, sessionID, datasetID string) ([]Turn, error) {
	log, err := m.log(sessionID, datasetID)
	if err != nil {
		return nil, err
	}
	if log == nil {
		return []Turn{}, nil
	}
	log.mu.Lock()
	defer log.mu.Unlock()
	return log.ring.slice(), nil
}

func (m *InMemory) TurnCount(_ context.Context, sessionID, datasetID string) (int, error) {
	log, err := m.log(sessionID, datasetID)
	if err != nil || log == nil {
		return 0, err
	}
	log.mu.Lock()
	defer log.mu.Unlock()
	return log.ring.len(), nil
}

func (m *InMemory) Clear(_ context.Context, sessionID, datasetID string) error {
	st, err := m.live(sessionID)
	if err != nil {
		return err
	}
	st.mu.Lock()
	log := st.logs[datasetID]
	delete(st.logs, datasetID)
	st.mu.Unlock()

	if log != nil {
		log.mu.Lock()
		log.ring.reset()
		log.mu.Unlock()
	}
	return nil
}

func (m *InMemory) ReapExpired(_ context.Context) (int, error) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, st := range m.sessions {
		st.mu.Lock()
		expired := Expired(now, st.info.LastActive, m.ttl)
		st.mu.Unlock()
		if expired {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func (m *InMemory) lookup(id string) *sessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// live returns the session state or the error describing why it is unusable.
func (m *InMemory) live(id string) (*sessionState, error) {
	st := m.lookup(id)
	if st == nil {
		return nil, ErrSessionNotFound
	}
	st.mu.Lock()
	last := st.info.LastActive
	st.mu.Unlock()
	if Expired(m.clock.Now(), last, m.ttl) {
		return nil, ErrSessionExpired
	}
	return st, nil
}

func (m *InMemory) log(sessionID, datasetID string) (*turnLog, error) {
	st, err := m.live(sessionID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.logs[datasetID], nil
}
