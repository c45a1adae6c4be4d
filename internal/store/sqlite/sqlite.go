// Package sqlite stores dinners in a SQLite database shared by every process
// on the host. Processes learn about each other's writes through an optional
// change notifier and reload on demand.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"dinners/internal/core"
	"dinners/internal/log"
	"dinners/internal/store"
)

type Store struct {
	db       *sql.DB
	hub      *store.Hub
	notifier store.ChangeNotifier
	logger   *log.Logger

	// refreshMu orders reload-and-publish so a newer read is never
	// published before an older one.
	refreshMu sync.Mutex
}

// Open creates the database directory if needed, migrates the schema and
// loads the first snapshot.
func Open(ctx context.Context, dbPath string, logger *log.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, err
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	s := &Store{db: db, hub: store.NewHub(), logger: logger.WithComponent(log.ComponentStore)}
	if err := s.Refresh(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// SetNotifier makes every successful write announce itself.
func (s *Store) SetNotifier(n store.ChangeNotifier) { s.notifier = n }

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Subscribe(_ context.Context, onChange store.Listener) (store.Subscription, error) {
	return s.hub.Subscribe(onChange), nil
}

// Ready reports whether the first snapshot has been loaded.
func (s *Store) Ready() bool { return s.hub.Primed() }

func (s *Store) Snapshot(ctx context.Context) (core.Ledger, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date_key, attendees, price FROM dinners ORDER BY date_key`)
	if err != nil {
		return nil, store.Unavailable("snapshot", err)
	}
	defer rows.Close()

	out := core.Ledger{}
	for rows.Next() {
		var key, attendees, price string
		if err := rows.Scan(&key, &attendees, &price); err != nil {
			return nil, store.Unavailable("snapshot", err)
		}
		rec, err := decodeRow(attendees, price)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping unreadable dinner row",
				log.FieldDateKey, key, log.FieldError, err)
			continue
		}
		out[core.DateKey(key)] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, store.Unavailable("snapshot", err)
	}
	return out, nil
}

// Refresh reloads the table and publishes it to subscribers.
func (s *Store) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	s.hub.Publish(snap)
	return nil
}

func (s *Store) Upsert(ctx context.Context, key core.DateKey, rec core.DinnerRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	op := "upsert " + key.String()
	rec = rec.Normalized()
	attendees, err := encodeAttendees(rec.Attendees)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dinners (date_key, attendees, price, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(date_key) DO UPDATE SET
			attendees = excluded.attendees,
			price = excluded.price,
			updated_at = excluded.updated_at`,
		key.String(), attendees, rec.Price.String(), time.Now().UTC())
	if err != nil {
		return store.Unavailable(op, err)
	}
	s.logger.InfoContext(ctx, "Dinner saved",
		log.NewFields().WithDinner(key.String(), len(rec.Attendees), rec.Price.String()).ToSlice()...)
	return s.afterWrite(ctx, op, key, store.OpUpsert)
}

// Remove deletes key; an absent key changes nothing and notifies nobody.
func (s *Store) Remove(ctx context.Context, key core.DateKey) error {
	op := "remove " + key.String()
	res, err := s.db.ExecContext(ctx, `DELETE FROM dinners WHERE date_key = ?`, key.String())
	if err != nil {
		return store.Unavailable(op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}
	s.logger.InfoContext(ctx, "Dinner removed", log.FieldDateKey, key)
	return s.afterWrite(ctx, op, key, store.OpRemove)
}

func (s *Store) afterWrite(ctx context.Context, op string, key core.DateKey, kind store.Op) error {
	if err := s.Refresh(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyChange(ctx, key, kind); err != nil {
			// the write is durable; peers catch up on their next refresh
			s.logger.WarnContext(ctx, "Failed to announce ledger change",
				log.FieldDateKey, key, log.FieldError, err)
		}
	}
	return nil
}

func encodeAttendees(people []core.PersonID) (string, error) {
	names := make([]string, 0, len(people))
	for _, p := range people {
		names = append(names, string(p))
	}
	b, err := json.Marshal(names)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeRow(attendees, price string) (core.DinnerRecord, error) {
	var names []string
	if err := json.Unmarshal([]byte(attendees), &names); err != nil {
		return core.DinnerRecord{}, fmt.Errorf("attendees: %w", err)
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return core.DinnerRecord{}, fmt.Errorf("%w: %q", core.ErrInvalidPrice, price)
	}
	rec := core.DinnerRecord{Price: p}
	for _, n := range names {
		rec.Attendees = append(rec.Attendees, core.PersonID(n))
	}
	return rec.Normalized(), rec.Validate()
}
