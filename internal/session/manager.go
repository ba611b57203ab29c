package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"webchat/internal/settings"
)

// Manager keeps sessions in memory only; they end with the process or when
// pruned for inactivity.
type Manager struct {
	ctx       context.Context
	cancel    context.CancelFunc
	completer Completer
	defaults  settings.Values
	opts      []Option
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(completer Completer, defaults settings.Values, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		ctx:       ctx,
		cancel:    cancel,
		completer: completer,
		defaults:  defaults,
		opts:      opts,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
}

// Create starts a session under a fresh random ID.
func (m *Manager) Create(extra ...Option) *Session {
	id := uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.newSession(id, extra)
	m.sessions[id] = s
	return s
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// GetOrCreate returns the session stored under id, creating it with extra
// options if absent. The bool is true when a new session was created.
func (m *Manager) GetOrCreate(id string, extra ...Option) (*Session, bool) {
	if s, ok := m.Get(id); ok {
		return s, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, false
	}
	s := m.newSession(id, extra)
	m.sessions[id] = s
	return s, true
}

// Drop forgets a session. Requests already in flight still complete into
// the dropped session.
func (m *Manager) Drop(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Defaults returns the panel values new sessions start with.
func (m *Manager) Defaults() settings.Values {
	return m.defaults
}

// Prune drops sessions unused for longer than maxIdle and returns how many
// were dropped. Sessions with requests in flight are kept. A non-positive
// maxIdle disables pruning.
func (m *Manager) Prune(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	cutoff := m.now().Add(-maxIdle)

	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.Pending() > 0 || s.LastActive().After(cutoff) {
			continue
		}
		delete(m.sessions, id)
		n++
	}
	return n
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Range calls fn for every session ordered by creation time until fn
// returns false.
func (m *Manager) Range(fn func(*Session) bool) {
	m.mu.RLock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt().Before(list[j].CreatedAt()) })
	for _, s := range list {
		if !fn(s) {
			return
		}
	}
}

// Close cancels outstanding completion requests of every session.
func (m *Manager) Close() {
	m.cancel()
}

func (m *Manager) newSession(id string, extra []Option) *Session {
	opts := make([]Option, 0, len(m.opts)+len(extra))
	opts = append(opts, m.opts...)
	opts = append(opts, extra...)
	return New(m.ctx, id, m.completer, settings.NewPanel(m.defaults), opts...)
}
