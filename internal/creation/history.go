package creation

import "sync"

// History is the ordered record of archived creations for one session.
// Only the newest entry is consulted when deciding whether to archive.
type History struct {
	mu      sync.RWMutex
	entries []*Creation
}

// Append archives c unless it repeats the immediately preceding entry.
func (h *History) Append(c *Creation) bool {
	if c == nil {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if n := len(h.entries); n > 0 && SameWork(h.entries[n-1], c) {
		return false
	}
	h.entries = append(h.entries, c)
	return true
}

func (h *History) Last() *Creation {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.entries) == 0 {
		return nil
	}
	return h.entries[len(h.entries)-1]
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// All returns the entries oldest first.
func (h *History) All() []*Creation {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Creation, len(h.entries))
	copy(out, h.entries)
	return out
}

// Recent returns at most n entries, newest first.
func (h *History) Recent(n int) []*Creation {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n <= 0 {
		return nil
	}
	if n > len(h.entries) {
		n = len(h.entries)
	}

	out := make([]*Creation, 0, n)
	for i := len(h.entries) - 1; i >= len(h.entries)-n; i-- {
		out = append(out, h.entries[i])
	}
	return out
}

func (h *History) Find(id string) (*Creation, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].ID == id {
			return h.entries[i], true
		}
	}
	return nil, false
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
}
