// Package session keeps per-browser conversation state in memory:
// crop context and the rolling chat history the prompt builder reads.
// State is deliberately not persisted; a restart starts conversations
// fresh, which matches how the advice flow treats history as hints
// rather than records.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agriguardian/agriguardian/internal/prompt"
)

// CookieName is the session cookie the web handlers set and read.
const CookieName = "agriguardian_session"

// defaultTTL bounds how long an idle session survives.
const defaultTTL = 24 * time.Hour

// Session is one browser's conversation state.
type Session struct {
	ID       string
	Crop     prompt.Context
	History  []prompt.Turn
	lastSeen time.Time
}

// Manager owns all live sessions. Safe for concurrent use.
type Manager struct {
	mu           sync.Mutex
	sessions     map[string]*Session
	historyLimit int
	ttl          time.Duration
	now          func() time.Time
}

// NewManager creates a manager whose sessions keep at most
// historyLimit turns of conversation.
func NewManager(historyLimit int) *Manager {
	return &Manager{
		sessions:     make(map[string]*Session),
		historyLimit: historyLimit,
		ttl:          defaultTTL,
		now:          time.Now,
	}
}

// Get returns the session for id, or nil if it does not exist or has
// expired.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	if m.now().Sub(s.lastSeen) > m.ttl {
		delete(m.sessions, id)
		return nil
	}
	s.lastSeen = m.now()
	return s
}

// GetOrCreate returns the session for id, minting a fresh one when id
// is empty or unknown. The returned session's ID is what the handler
// writes back into the cookie.
func (m *Manager) GetOrCreate(id string) *Session {
	if s := m.Get(id); s != nil {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s := &Session{ID: uuid.NewString(), lastSeen: m.now()}
	m.sessions[s.ID] = s
	return s
}

// SetCrop replaces a session's crop context and clears its history,
// since old answers were given against the old context. The setup
// flow uses this; questions that carry crop info inline use
// UpdateCrop instead.
func (m *Manager) SetCrop(id string, crop prompt.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.Crop = crop
		s.History = nil
		s.lastSeen = m.now()
	}
}

// UpdateCrop replaces a session's crop context without touching its
// history, so a question that includes crop info keeps its running
// conversation.
func (m *Manager) UpdateCrop(id string, crop prompt.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.Crop = crop
		s.lastSeen = m.now()
	}
}

// AppendTurn adds one turn, evicting the oldest when over the limit.
func (m *Manager) AppendTurn(id, role, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	s.History = append(s.History, prompt.Turn{Role: role, Content: content})
	if m.historyLimit > 0 && len(s.History) > m.historyLimit {
		s.History = s.History[len(s.History)-m.historyLimit:]
	}
	s.lastSeen = m.now()
}

// History returns a copy of a session's turns.
func (m *Manager) History(id string) []prompt.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	return append([]prompt.Turn(nil), s.History...)
}

// Crop returns a session's crop context.
func (m *Manager) Crop(id string) prompt.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s.Crop
	}
	return prompt.Context{}
}

// Reset clears a session's crop context and history.
func (m *Manager) Reset(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.Crop = prompt.Context{}
		s.History = nil
		s.lastSeen = m.now()
	}
}

// Sweep drops expired sessions. Called periodically by the server.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	cutoff := m.now().Add(-m.ttl)
	for id, s := range m.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}
