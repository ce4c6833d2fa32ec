package app

import "time"

func (st *SessionStore) SetClock(now func() time.Time) { st.now = now }

func (s *Session) SetLastSeen(t time.Time) {
	s.mu.Lock()
	s.lastSeen = t
	s.mu.Unlock()
}
