package session

import (
	"context"
	"sync"
	"time"

	"cloudgate/internal/auth/models"
	"cloudgate/pkg/requestcontext"
)

// InMemorySessionStore keeps sessions in process. Suitable for a single
// instance and for tests; use RedisStore when running more than one replica.
type InMemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	flashes  map[string]string
	lastSeen map[string]time.Time
	ttl      time.Duration
}

// Option configures an in-memory store.
type Option func(*InMemorySessionStore)

// WithTTL expires sessions not read or saved for longer than ttl. Zero
// disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *InMemorySessionStore) {
		s.ttl = ttl
	}
}

// New constructs an empty in-memory store.
func New(opts ...Option) *InMemorySessionStore {
	s := &InMemorySessionStore{
		sessions: make(map[string]*models.Session),
		flashes:  make(map[string]string),
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a copy of the stored session, or a fresh empty session when
// id has not been seen or has expired. The fresh session is not persisted
// until Save.
func (s *InMemorySessionStore) Get(ctx context.Context, id string) (*models.Session, error) {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[id]
	if !ok {
		return models.NewSession(id, now), nil
	}
	if s.expired(id, now) {
		s.drop(id)
		return models.NewSession(id, now), nil
	}
	s.lastSeen[id] = now
	return cloneSession(stored), nil
}

// Save replaces the stored session.
func (s *InMemorySessionStore) Save(ctx context.Context, session *models.Session) error {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = cloneSession(session)
	s.lastSeen[session.ID] = now
	return nil
}

// SetFlash writes the one-time slot for id, replacing any unread value.
func (s *InMemorySessionStore) SetFlash(_ context.Context, id, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flashes[id] = code
	return nil
}

// TakeFlash returns and clears the one-time slot for id.
func (s *InMemorySessionStore) TakeFlash(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code := s.flashes[id]
	delete(s.flashes, id)
	return code, nil
}

// PurgeExpired drops sessions idle for longer than the TTL and reports how
// many were removed. Get already ignores them; this bounds memory.
func (s *InMemorySessionStore) PurgeExpired(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id := range s.sessions {
		if s.expired(id, now) {
			s.drop(id)
			removed++
		}
	}
	return removed
}

func (s *InMemorySessionStore) expired(id string, now time.Time) bool {
	return s.ttl > 0 && now.Sub(s.lastSeen[id]) > s.ttl
}

func (s *InMemorySessionStore) drop(id string) {
	delete(s.sessions, id)
	delete(s.flashes, id)
	delete(s.lastSeen, id)
}

// RunCleanup calls PurgeExpired every interval until ctx is done.
func (s *InMemorySessionStore) RunCleanup(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.PurgeExpired(now)
		}
	}
}

// cloneSession copies the mutable parts. Principal is immutable and shared.
func cloneSession(in *models.Session) *models.Session {
	out := *in
	if in.PendingTransaction != nil {
		tx := *in.PendingTransaction
		out.PendingTransaction = &tx
	}
	return &out
}
