package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Transport string

const (
	TransportSSE       Transport = "sse"
	TransportWebSocket Transport = "websocket"
)

var (
	ErrNotFound = errors.New("stream session not found")
	ErrCapacity = errors.New("too many active streams")
)

// Session is a snapshot of one live stream. The server owns the original;
// callers only ever see copies.
type Session struct {
	ID             string    `json:"session_id"`
	Transport      Transport `json:"transport"`
	Words          int       `json:"words"`
	DelayMS        int64     `json:"delay_ms"`
	Cursor         int       `json:"cursor"`
	Cancelled      bool      `json:"cancelled"`
	RemoteAddr     string    `json:"remote_addr,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Spec describes a stream about to start.
type Spec struct {
	Transport  Transport
	Words      int
	Delay      time.Duration
	RemoteAddr string
}

type entry struct {
	session Session
	cancel  context.CancelFunc
}

type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*entry
	maxActive   int
	idleTimeout time.Duration
	onExpire    func(Session)
}

// NewManager returns an empty registry. maxActive <= 0 disables the cap.
func NewManager(maxActive int, idleTimeout time.Duration) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = 2 * time.Minute
	}
	return &Manager{
		sessions:    make(map[string]*entry),
		maxActive:   maxActive,
		idleTimeout: idleTimeout,
	}
}

func (m *Manager) SetExpireHook(hook func(Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Create registers a session and derives its context from parent. The
// returned context is cancelled by Cancel, Remove or the janitor.
func (m *Manager) Create(parent context.Context, spec Spec) (context.Context, Session, error) {
	now := time.Now().UTC()
	ctx, cancel := context.WithCancel(parent)
	e := &entry{
		session: Session{
			ID:             uuid.NewString(),
			Transport:      spec.Transport,
			Words:          spec.Words,
			DelayMS:        spec.Delay.Milliseconds(),
			RemoteAddr:     spec.RemoteAddr,
			StartedAt:      now,
			LastActivityAt: now,
		},
		cancel: cancel,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.maxActive > 0 && len(m.sessions) >= m.maxActive {
		cancel()
		return nil, Session{}, ErrCapacity
	}
	m.sessions[e.session.ID] = e
	return ctx, e.session, nil
}

func (m *Manager) Get(id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return e.session, nil
}

// List returns live sessions, oldest first.
func (m *Manager) List() []Session {
	m.mu.RLock()
	out := make([]Session, 0, len(m.sessions))
	for _, e := range m.sessions {
		out = append(out, e.session)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Cancel marks a session cancelled and cancels its context. The stream loop
// observes the flag before its next token.
func (m *Manager) Cancel(id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	e.session.Cancelled = true
	e.session.LastActivityAt = time.Now().UTC()
	e.cancel()
	return e.session, nil
}

// Cancelled reports the flag polled by the stream loop. Unknown ids read as
// cancelled so a removed session never emits again.
func (m *Manager) Cancelled(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[id]
	if !ok {
		return true
	}
	return e.session.Cancelled
}

// Advance records that the token at index was emitted.
func (m *Manager) Advance(id string, index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return
	}
	if index+1 > e.session.Cursor {
		e.session.Cursor = index + 1
	}
	e.session.LastActivityAt = time.Now().UTC()
}

// Remove drops the session and releases its context.
func (m *Manager) Remove(id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	delete(m.sessions, id)
	e.cancel()
	return e.session, nil
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StartJanitor cancels sessions whose cursor has not moved within the idle
// timeout, typically a writer stuck on a dead connection.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireIdle()
			}
		}
	}()
}

// CancelAll cancels every live session. Used on shutdown.
func (m *Manager) CancelAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.sessions {
		e.session.Cancelled = true
		e.cancel()
	}
	return len(m.sessions)
}

func (m *Manager) expireIdle() {
	now := time.Now().UTC()
	var expired []Session

	m.mu.Lock()
	for _, e := range m.sessions {
		if e.session.Cancelled {
			continue
		}
		if now.Sub(e.session.LastActivityAt) < m.idleTimeout {
			continue
		}
		e.session.Cancelled = true
		e.session.LastActivityAt = now
		e.cancel()
		expired = append(expired, e.session)
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}
