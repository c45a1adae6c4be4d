// Package session binds one ledger subscription and one editor state to the
// UI event surface, and renders the combined view.
//
// Writes run in the background: the editor closes as soon as the user saves
// or confirms a delete, and the ledger only changes when the store reports
// the write back. A failed write becomes a dismissible notice.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dinners/internal/cache"
	"dinners/internal/core"
	"dinners/internal/editor"
	"dinners/internal/log"
	"dinners/internal/store"
)

var (
	ErrAlreadyStarted = errors.New("session already subscribed")
	ErrClosed         = errors.New("session closed")
)

const defaultWriteTimeout = 10 * time.Second

// Notice is a user-visible failure waiting to be dismissed.
type Notice struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type Session struct {
	store  store.RecordStore
	roster core.Roster
	logger *log.Logger
	now    func() time.Time

	writeTimeout time.Duration
	writes       sync.WaitGroup
	// lastWrite closes when the most recently queued write has finished.
	lastWrite chan struct{}

	mu      sync.Mutex
	ledger  core.Ledger
	state   editor.State
	loading bool
	notice  *Notice
	sub     store.Subscription
	started bool
	closed  bool
	totals  cache.Cache[core.YearMonth, []core.PersonTotal]
}

type Option func(*Session)

func WithLogger(l *log.Logger) Option {
	return func(s *Session) { s.logger = l.WithComponent(log.ComponentSession) }
}

// WithClock sets the clock used for the initial visible month and notices.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(s *Session) { s.writeTimeout = d }
}

// WithTotalsCache memoises monthly totals in c. The cache is purged on
// every snapshot.
func WithTotalsCache(c cache.Cache[core.YearMonth, []core.PersonTotal]) Option {
	return func(s *Session) { s.totals = c }
}

// New returns an unstarted session. The roster must be valid.
func New(rs store.RecordStore, roster core.Roster, opts ...Option) (*Session, error) {
	if err := roster.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		store:        rs,
		roster:       roster,
		logger:       log.New(log.DefaultConfig()).WithComponent(log.ComponentSession),
		now:          time.Now,
		writeTimeout: defaultWriteTimeout,
		ledger:       core.Ledger{},
		loading:      true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.totals == nil {
		s.totals = cache.NewLRUCache[core.YearMonth, []core.PersonTotal](24, 0)
	}
	s.state = editor.New(core.MonthOf(s.now()))
	return s, nil
}

// Start subscribes to the store. A session holds at most one subscription.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	// Subscribe calls onSnapshot before returning, so s.mu must be free.
	sub, err := s.store.Subscribe(ctx, s.onSnapshot)
	if err != nil {
		s.mu.Lock()
		s.started = false
		s.setNotice(fmt.Sprintf("Could not load dinners: %v", err))
		s.mu.Unlock()
		return fmt.Errorf("subscribe: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		sub.Unsubscribe()
		return ErrClosed
	}
	s.sub = sub
	s.logger.InfoContext(ctx, "Session subscribed", log.FieldRecords, len(s.ledger))
	return nil
}

// Close unsubscribes and waits for in-flight writes. Safe to call twice.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
	s.writes.Wait()
}

// Wait blocks until every write started so far has finished.
func (s *Session) Wait() { s.writes.Wait() }

func (s *Session) onSnapshot(l core.Ledger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = core.ApplySnapshot(s.ledger, l)
	s.loading = false
	s.totals.Purge()
}

// Ready reports whether the first snapshot has arrived.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.loading
}

// VisibleMonth is the month the calendar and totals currently show.
func (s *Session) VisibleMonth() core.YearMonth {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Visible
}

// Roster is the static configuration the session was built with.
func (s *Session) Roster() core.Roster { return s.roster }

func (s *Session) setNotice(msg string) {
	s.notice = &Notice{Message: msg, At: s.now()}
}

// update applies a transition to the editor state under the lock.
func (s *Session) update(fn func(editor.State) (editor.State, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(s.state)
	if err != nil {
		return err
	}
	s.state = next
	return nil
}

// queueWriteLocked queues op behind the session's earlier writes and runs it
// in the background on its own deadline, so writes reach the store in the
// order the events happened. s.mu must be held.
func (s *Session) queueWriteLocked(what string, key core.DateKey, op func(context.Context) error) {
	prev := s.lastWrite
	done := make(chan struct{})
	s.lastWrite = done
	s.writes.Add(1)

	go func() {
		defer s.writes.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		defer cancel()
		if err := op(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Dinner write failed",
				log.FieldOperation, what,
				log.FieldDateKey, key,
				log.FieldError, err)
			s.mu.Lock()
			s.setNotice(fmt.Sprintf("Could not %s the dinner on %s. Please try again.", what, key))
			s.mu.Unlock()
		}
	}()
}
