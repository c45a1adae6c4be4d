package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"dinners/internal/core"
	"dinners/internal/log"
	"dinners/internal/session"
)

const (
	sessionCookie = "dinners_session"
	sessionHeader = "X-Session-ID"
)

// sessionRegistry gives every browser its own view binding: its own editor,
// visible month and notices over the shared ledger.
type sessionRegistry struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry
	newFn   func() (*session.Session, error)
	max     int
	idle    time.Duration
	now     func() time.Time
	logger  *log.Logger

	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type sessionEntry struct {
	sess     *session.Session
	lastSeen time.Time
}

func newSessionRegistry(newFn func() (*session.Session, error), limit int, idle time.Duration, logger *log.Logger) *sessionRegistry {
	return &sessionRegistry{
		entries:     make(map[string]*sessionEntry),
		newFn:       newFn,
		max:         limit,
		idle:        idle,
		now:         time.Now,
		logger:      logger.WithComponent(log.ComponentSession),
		stopCleanup: make(chan struct{}),
	}
}

// get returns the session for id, creating and starting one under a fresh
// id when id is unknown.
func (reg *sessionRegistry) get(id string) (*session.Session, string, error) {
	reg.mu.Lock()
	if e, ok := reg.entries[id]; ok && id != "" {
		e.lastSeen = reg.now()
		reg.mu.Unlock()
		return e.sess, id, nil
	}
	reg.mu.Unlock()

	sess, err := reg.newFn()
	if err != nil {
		return nil, "", err
	}
	// Start delivers the first snapshot synchronously. A session that could
	// not subscribe is not registered, so the next request retries.
	if err := sess.Start(context.Background()); err != nil {
		sess.Close()
		reg.logger.Warn("Session could not subscribe", log.FieldError, err)
		if !errors.Is(err, core.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
		}
		return nil, "", err
	}

	id = uuid.NewString()
	reg.mu.Lock()
	reg.entries[id] = &sessionEntry{sess: sess, lastSeen: reg.now()}
	evicted := reg.evictOverflowLocked()
	reg.mu.Unlock()

	closeAll(evicted)
	return sess, id, nil
}

// evictOverflowLocked drops the least recently used sessions beyond max.
func (reg *sessionRegistry) evictOverflowLocked() []*session.Session {
	var out []*session.Session
	for reg.max > 0 && len(reg.entries) > reg.max {
		var oldestID string
		var oldest time.Time
		for id, e := range reg.entries {
			if oldestID == "" || e.lastSeen.Before(oldest) {
				oldestID, oldest = id, e.lastSeen
			}
		}
		out = append(out, reg.entries[oldestID].sess)
		delete(reg.entries, oldestID)
	}
	return out
}

// cleanupIdle closes sessions unused for longer than the idle timeout.
func (reg *sessionRegistry) cleanupIdle() int {
	reg.mu.Lock()
	cutoff := reg.now().Add(-reg.idle)
	var idle []*session.Session
	for id, e := range reg.entries {
		if e.lastSeen.Before(cutoff) {
			idle = append(idle, e.sess)
			delete(reg.entries, id)
		}
	}
	reg.mu.Unlock()

	closeAll(idle)
	return len(idle)
}

func (reg *sessionRegistry) startCleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := reg.cleanupIdle(); n > 0 {
				reg.logger.Debug("Idle sessions closed", "count", n)
			}
		case <-reg.stopCleanup:
			return
		}
	}
}

func (reg *sessionRegistry) len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.entries)
}

// close stops the cleanup loop and closes every session, waiting for their
// in-flight writes.
func (reg *sessionRegistry) close() {
	reg.shutdownOnce.Do(func() {
		close(reg.stopCleanup)
		reg.mu.Lock()
		all := make([]*session.Session, 0, len(reg.entries))
		for id, e := range reg.entries {
			all = append(all, e.sess)
			delete(reg.entries, id)
		}
		reg.mu.Unlock()
		closeAll(all)
	})
}

func closeAll(sessions []*session.Session) {
	for _, s := range sessions {
		s.Close()
	}
}

// sessionFor resolves the caller's session from the cookie or header and
// echoes the id back so the client keeps using it.
func (s *Server) sessionFor(w http.ResponseWriter, r *http.Request) (*session.Session, error) {
	id := r.Header.Get(sessionHeader)
	if id == "" {
		if c, err := r.Cookie(sessionCookie); err == nil {
			id = c.Value
		}
	}
	sess, resolved, err := s.sessions.get(id)
	if err != nil {
		return nil, err
	}
	if resolved != id {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    resolved,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	w.Header().Set(sessionHeader, resolved)
	return sess, nil
}
