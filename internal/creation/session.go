package creation

import (
	"sync"
	"sync/atomic"
	"time"

	"moyun-danqing/internal/style"
)

// Session holds everything one user accumulates between opening and
// leaving the tool: the archived history, the latest displayed result and
// the selected style. A session runs at most one generation at a time.
type Session struct {
	ID        string
	CreatedAt time.Time
	History   *History

	busy atomic.Bool

	mu         sync.Mutex
	latest     *Creation
	style      style.Style
	lastActive time.Time
}

func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		CreatedAt:  now,
		History:    &History{},
		style:      style.Default(),
		lastActive: now,
	}
}

// TryBegin claims the session for one generation attempt. It returns false
// while another attempt is still running.
func (s *Session) TryBegin() bool {
	return s.busy.CompareAndSwap(false, true)
}

func (s *Session) End() {
	s.busy.Store(false)
}

func (s *Session) Busy() bool {
	return s.busy.Load()
}

func (s *Session) Latest() *Creation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

func (s *Session) setLatest(c *Creation) {
	s.mu.Lock()
	s.latest = c
	s.mu.Unlock()
}

func (s *Session) Style() style.Style {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.style
}

func (s *Session) SetStyle(st style.Style) {
	s.mu.Lock()
	s.style = st
	s.mu.Unlock()
}

func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Find looks a creation up in the latest slot first, then in History. A
// skipped duplicate is only reachable through the latest slot.
func (s *Session) Find(id string) (*Creation, bool) {
	if latest := s.Latest(); latest != nil && latest.ID == id {
		return latest, true
	}
	return s.History.Find(id)
}

// Reset drops history and the latest slot; the selected style survives.
func (s *Session) Reset() {
	s.History.Clear()
	s.setLatest(nil)
}
