package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ArshadYameen/flex-living-dashboard/internal/adapters/observability"
)

const defaultMaxSessions = 10000

// SessionStore keeps one Session per browser and drops the ones that have
// been idle for longer than idleTTL. It never holds more than max sessions;
// creating one past the limit evicts the least recently seen.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	newFn    func(id string) *Session
	idleTTL  time.Duration
	max      int
	now      func() time.Time
}

func NewSessionStore(q *QueryService, cmd *CommandService, opts SessionOptions, idleTTL time.Duration) *SessionStore {
	return newSessionStore(func(id string) *Session { return NewSession(id, q, cmd, opts) }, idleTTL)
}

func newSessionStore(newFn func(id string) *Session, idleTTL time.Duration) *SessionStore {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	return &SessionStore{sessions: map[string]*Session{}, newFn: newFn, idleTTL: idleTTL, max: defaultMaxSessions, now: time.Now}
}

// SetLimit caps the number of live sessions. n <= 0 restores the default.
func (st *SessionStore) SetLimit(n int) {
	if n <= 0 {
		n = defaultMaxSessions
	}
	st.mu.Lock()
	st.max = n
	st.mu.Unlock()
}

// GetOrCreate returns the session for id, creating a fresh one (with a new
// id) when id is unknown. created reports which happened.
func (st *SessionStore) GetOrCreate(id string) (s *Session, created bool) {
	st.mu.Lock()
	if s, ok := st.sessions[id]; ok && id != "" {
		st.mu.Unlock()
		return s, false
	}
	var dropped []*Session
	for len(st.sessions) >= st.max {
		dropped = append(dropped, st.removeOldestLocked())
	}
	s = st.newFn(uuid.NewString())
	st.sessions[s.ID] = s
	observability.ActiveSessions.Set(float64(len(st.sessions)))
	st.mu.Unlock()

	for _, old := range dropped {
		old.Close()
	}
	if len(dropped) > 0 {
		log.Debug().Int("evicted", len(dropped)).Msg("session limit reached")
	}
	return s, true
}

func (st *SessionStore) removeOldestLocked() *Session {
	now := st.now()
	var oldest *Session
	var idle time.Duration
	for _, s := range st.sessions {
		if d := s.idleFor(now); oldest == nil || d > idle {
			oldest, idle = s, d
		}
	}
	delete(st.sessions, oldest.ID)
	return oldest
}

func (st *SessionStore) Get(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	return s, ok
}

func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Evict closes and forgets sessions idle past the TTL and returns how many
// went.
func (st *SessionStore) Evict() int {
	now := st.now()
	var stale []*Session
	st.mu.Lock()
	for id, s := range st.sessions {
		if s.idleFor(now) > st.idleTTL {
			stale = append(stale, s)
			delete(st.sessions, id)
		}
	}
	observability.ActiveSessions.Set(float64(len(st.sessions)))
	st.mu.Unlock()

	for _, s := range stale {
		s.Close()
	}
	return len(stale)
}

// Run evicts idle sessions every interval until ctx is done.
func (st *SessionStore) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := st.Evict(); n > 0 {
				log.Info().Int("evicted", n).Msg("idle sessions evicted")
			}
		}
	}
}

// Close shuts every session down.
func (st *SessionStore) Close() {
	st.mu.Lock()
	all := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		all = append(all, s)
	}
	st.sessions = map[string]*Session{}
	observability.ActiveSessions.Set(0)
	st.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}
