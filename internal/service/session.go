package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"erpquery/internal/logger"
	"erpquery/internal/metrics"
	"erpquery/internal/model"
)

// DefaultSessionKey is used when the caller sends no session id
const DefaultSessionKey = "default"

// SessionStore keeps per-conversation context with idle expiry.
//
// Contexts are handed out as copies and written back with Save, so two
// concurrent requests on one session resolve last-write-wins.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*model.SessionContext
	idle     time.Duration
	now      func() time.Time
	log      *zap.Logger
}

// NewSessionStore creates a store evicting contexts idle for longer than idle
func NewSessionStore(idle time.Duration, log *zap.Logger) *SessionStore {
	log = logger.OrNop(log)
	return &SessionStore{
		sessions: make(map[string]*model.SessionContext),
		idle:     idle,
		now:      time.Now,
		log:      log,
	}
}

// GetOrCreate returns a copy of the context for key, creating it if needed,
// and refreshes its last access time.
func (s *SessionStore) GetOrCreate(key string) *model.SessionContext {
	if key == "" {
		key = DefaultSessionKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, ok := s.sessions[key]
	if !ok {
		ctx = &model.SessionContext{ActiveFilters: map[string]string{}}
		s.sessions[key] = ctx
		metrics.ActiveSessions.Set(float64(len(s.sessions)))
	}
	ctx.LastAccess = s.now()
	return ctx.Clone()
}

// Get returns a copy of the context for key without touching it
func (s *SessionStore) Get(key string) (*model.SessionContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, ok := s.sessions[key]
	if !ok {
		return nil, false
	}
	return ctx.Clone(), true
}

// Save stores ctx under key
func (s *SessionStore) Save(key string, ctx *model.SessionContext) {
	if key == "" {
		key = DefaultSessionKey
	}
	cp := ctx.Clone()
	cp.LastAccess = s.now()

	s.mu.Lock()
	s.sessions[key] = cp
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	s.mu.Unlock()
}

// Delete drops the context for key
func (s *SessionStore) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[key]
	delete(s.sessions, key)
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	return ok
}

// Len returns the number of held contexts
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes contexts idle for longer than the configured timeout and
// returns the removed keys.
func (s *SessionStore) Sweep(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []string
	for key, ctx := range s.sessions {
		if now.Sub(ctx.LastAccess) > s.idle {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		delete(s.sessions, key)
	}
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	return expired
}

// Run sweeps every interval until ctx is done
func (s *SessionStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(s.now()); len(removed) > 0 {
				s.log.Info("expired sessions removed", zap.Int("count", len(removed)))
			}
		}
	}
}

// MergeFilters overlays next on active. Keys only in active persist; keys in
// both take the value from next. Neither input is modified.
func MergeFilters(active, next map[string]string) map[string]string {
	merged := make(map[string]string, len(active)+len(next))
	for k, v := range active {
		merged[k] = v
	}
	for k, v := range next {
		merged[k] = v
	}
	return merged
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
