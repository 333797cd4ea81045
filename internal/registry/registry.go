package registry

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/pixelwall/gateway-server-go/internal/config"
	"github.com/pixelwall/gateway-server-go/internal/session"
)

// Registry is the per-instance table of live sessions. It is never shared
// across instances; cross-instance membership flows through the presence
// side-channel instead.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

func New() *Registry {
	return &Registry{
		sessions: make(map[string]*session.Session),
	}
}

func (r *Registry) Add(s *session.Session) {
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
}

func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
}

func (r *Registry) Get(sessionID string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SetDisplayName sanitizes and stores a display name. Empty or all-control
// input leaves the name unset and returns false.
func (r *Registry) SetDisplayName(sessionID, name string) bool {
	clean := sanitizeName(name)
	if clean == "" {
		return false
	}

	r.mu.RLock()
	s, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	s.SetDisplayName(clean)
	return true
}

// Snapshot returns the local session count and the distinct non-empty
// display names, sorted for stable output.
func (r *Registry) Snapshot() (int, []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, s := range r.sessions {
		if name := s.DisplayName(); name != "" {
			seen[name] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	return len(r.sessions), names
}

// ForEachLive calls fn for every session whose transport is still open.
func (r *Registry) ForEachLive(fn func(*session.Session)) {
	for _, s := range r.snapshotSessions() {
		if s.IsOpen() {
			fn(s)
		}
	}
}

// ForEach calls fn for every registered session, open or not. The liveness
// monitor uses this to sweep out sessions that already closed.
func (r *Registry) ForEach(fn func(*session.Session)) {
	for _, s := range r.snapshotSessions() {
		fn(s)
	}
}

// snapshotSessions copies the table so fn never runs under the lock.
func (r *Registry) snapshotSessions() []*session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessions := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

func sanitizeName(name string) string {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	clean = strings.TrimSpace(clean)

	runes := []rune(clean)
	if len(runes) > config.MaxDisplayNameLen {
		clean = string(runes[:config.MaxDisplayNameLen])
	}
	return clean
}
