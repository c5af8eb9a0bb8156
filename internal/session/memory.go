package session

import (
	"context"
	"sync"
	"time"

	"github.com/brightsmile/clinic-assistant/pkg/logging"
)

// MemoryStore keeps sessions in process memory. Expiry is enforced lazily on
// every access and proactively by an optional background sweeper, so an idle
// session is gone after the inactivity timeout either way.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[Key]*Session

	initialNode string
	timeout     time.Duration
	now         func() time.Time
	logger      *logging.Logger

	stopOnce sync.Once
	done     chan struct{}
}

func NewMemoryStore(initialNode string, timeout time.Duration, logger *logging.Logger) *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[Key]*Session),
		initialNode: initialNode,
		timeout:     timeout,
		now:         time.Now,
		logger:      logger,
		done:        make(chan struct{}),
	}
}

// StartSweeper launches a goroutine that evicts idle sessions every interval.
// Stop terminates it.
func (m *MemoryStore) StartSweeper(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sweep()
			case <-m.done:
				return
			}
		}
	}()
}

func (m *MemoryStore) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

func (m *MemoryStore) sweep() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, s := range m.sessions {
		if now.Sub(s.LastActivityAt) > m.timeout {
			delete(m.sessions, key)
			m.logger.Info("session expired", "key", key.String(), "idle", now.Sub(s.LastActivityAt).String())
		}
	}
}

// liveLocked returns the stored session if it exists and has not idled out,
// evicting it otherwise. Caller holds m.mu.
func (m *MemoryStore) liveLocked(key Key) *Session {
	s, ok := m.sessions[key]
	if !ok {
		return nil
	}
	if m.now().Sub(s.LastActivityAt) > m.timeout {
		delete(m.sessions, key)
		return nil
	}
	return s
}

func (m *MemoryStore) GetOrCreate(_ context.Context, key Key) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.liveLocked(key); s != nil {
		return s.Clone(), nil
	}
	s := New(key, m.initialNode, m.now())
	m.sessions[key] = s
	return s.Clone(), nil
}

func (m *MemoryStore) Get(_ context.Context, key Key) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.liveLocked(key); s != nil {
		return s.Clone(), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.liveLocked(s.Key)
	if stored == nil {
		return ErrNotFound
	}
	if stored.Version != s.Version {
		return ErrStaleSession
	}
	committed := s.Clone()
	committed.Version++
	committed.LastActivityAt = m.now()
	m.sessions[s.Key] = committed
	s.Version = committed.Version
	return nil
}

func (m *MemoryStore) Touch(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.liveLocked(key)
	if s == nil {
		return ErrNotFound
	}
	s.LastActivityAt = m.now()
	return nil
}

func (m *MemoryStore) Expire(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
	return nil
}

func (m *MemoryStore) Reset(_ context.Context, key Key) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.liveLocked(key)
	if s == nil {
		return nil, ErrNotFound
	}
	s.CurrentNode = m.initialNode
	s.Context = make(map[string]string)
	s.History = nil
	s.Version++
	s.LastActivityAt = m.now()
	return s.Clone(), nil
}
