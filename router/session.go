package router

import (
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/core"
)

// DefaultSessionTTL bounds how long idle per-user state (conversation and
// workflow) survives before being dropped.
const DefaultSessionTTL = 15 * time.Minute

// session is the per-user, per-platform state: the running conversation and
// an optional administrative workflow marker. mu guards conversation and
// workflow; expires is only touched under the sessionMap mutex.
type session struct {
	mu           sync.Mutex
	conversation *core.Conversation
	workflow     string
	expires      time.Time
}

// sessionMap is an expiring map of sessions keyed by user id and platform.
type sessionMap struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
	now      func() time.Time
}

func newSessionMap(ttl time.Duration) *sessionMap {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &sessionMap{
		sessions: make(map[string]*session),
		ttl:      ttl,
		now:      time.Now,
	}
}

func sessionKey(userID, platform string) string {
	return platform + "/" + userID
}

// get returns the live session for the key, creating a fresh one when absent
// or expired. Each access extends the expiry.
func (m *sessionMap) get(userID, platform string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := sessionKey(userID, platform)
	now := m.now()

	s, ok := m.sessions[key]
	if !ok || now.After(s.expires) {
		s = &session{conversation: core.NewConversation()}
		m.sessions[key] = s
	}
	s.expires = now.Add(m.ttl)

	return s
}

// sweep drops expired sessions. Called opportunistically from Handle.
func (m *sessionMap) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, s := range m.sessions {
		if now.After(s.expires) {
			delete(m.sessions, key)
		}
	}
}
