package session

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"moyun-danqing/internal/creation"
)

type Options struct {
	IdleTTL time.Duration
	Logger  *slog.Logger
}

// Store owns the live sessions. A session that sees no activity for IdleTTL
// is evicted and its history is dropped.
type Store struct {
	mu     sync.Mutex
	items  *cache.Cache
	logger *slog.Logger
}

func NewStore(opts Options) *Store {
	ttl := opts.IdleTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	items := cache.New(ttl, ttl/2)
	items.OnEvicted(func(id string, v interface{}) {
		if sess, ok := v.(*creation.Session); ok {
			logger.Info("session closed", "session", id, "history", sess.History.Len())
			sess.Reset()
		}
	})

	return &Store{
		items:  items,
		logger: logger,
	}
}

// Get returns the session for id, creating it on first use, and pushes its
// expiry forward.
func (s *Store) Get(id string) *creation.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.items.Get(id); ok {
		sess := v.(*creation.Session)
		sess.Touch()
		s.items.SetDefault(id, sess)
		return sess
	}

	sess := creation.NewSession(id)
	s.items.SetDefault(id, sess)
	s.logger.Info("session opened", "session", id)
	return sess
}

func (s *Store) Lookup(id string) (*creation.Session, bool) {
	v, ok := s.items.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*creation.Session), true
}

func (s *Store) Delete(id string) {
	s.items.Delete(id)
}

func (s *Store) Len() int {
	return s.items.ItemCount()
}
