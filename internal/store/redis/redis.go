// Package redis keeps the dinner collection in one Redis hash, field per
// date, and announces writes on a pub/sub channel so every process sharing
// the hash reloads.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"dinners/internal/core"
	"dinners/internal/log"
	"dinners/internal/store"
)

type Store struct {
	rdb     *redis.Client
	key     string
	channel string
	origin  string
	hub     *store.Hub
	logger  *log.Logger

	notifier store.ChangeNotifier

	refreshMu sync.Mutex
}

type change struct {
	Origin  string       `json:"origin"`
	DateKey core.DateKey `json:"date_key"`
	Op      store.Op     `json:"op"`
}

// New loads the first snapshot from the hash at key. Changes are announced
// on key + ":changes".
func New(ctx context.Context, rdb *redis.Client, key string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	s := &Store{
		rdb:     rdb,
		key:     key,
		channel: key + ":changes",
		origin:  uuid.NewString(),
		hub:     store.NewHub(),
		logger:  logger.WithComponent(log.ComponentStore),
	}
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// SetNotifier additionally announces writes to n, for consumers that do not
// read the Redis channel.
func (s *Store) SetNotifier(n store.ChangeNotifier) { s.notifier = n }

func (s *Store) Subscribe(_ context.Context, onChange store.Listener) (store.Subscription, error) {
	return s.hub.Subscribe(onChange), nil
}

func (s *Store) Ready() bool { return s.hub.Primed() }

// Origin tags the changes this store announces. Run ignores its own.
func (s *Store) Origin() string { return s.origin }

func (s *Store) Snapshot(ctx context.Context) (core.Ledger, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, store.Unavailable("snapshot", err)
	}
	out := make(core.Ledger, len(fields))
	for k, v := range fields {
		key, err := core.ParseDateKey(k)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping dinner with bad key", log.FieldDateKey, k)
			continue
		}
		rec, err := store.DecodeDocument([]byte(v))
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping unreadable dinner",
				log.FieldDateKey, k, log.FieldError, err)
			continue
		}
		out[key] = rec
	}
	return out, nil
}

// Refresh reloads the hash and publishes it to subscribers.
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
	doc, err := store.EncodeDocument(rec.Normalized())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	msg, _ := json.Marshal(change{Origin: s.origin, DateKey: key, Op: store.OpUpsert})
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.key, key.String(), doc)
		p.Publish(ctx, s.channel, msg)
		return nil
	})
	if err != nil {
		return store.Unavailable(op, err)
	}
	return s.afterWrite(ctx, key, store.OpUpsert)
}

// Remove deletes key; an absent key changes nothing and announces nothing.
func (s *Store) Remove(ctx context.Context, key core.DateKey) error {
	op := "remove " + key.String()
	n, err := s.rdb.HDel(ctx, s.key, key.String()).Result()
	if err != nil {
		return store.Unavailable(op, err)
	}
	if n == 0 {
		return nil
	}
	msg, _ := json.Marshal(change{Origin: s.origin, DateKey: key, Op: store.OpRemove})
	if err := s.rdb.Publish(ctx, s.channel, msg).Err(); err != nil {
		s.logger.WarnContext(ctx, "Failed to announce removal", log.FieldDateKey, key, log.FieldError, err)
	}
	return s.afterWrite(ctx, key, store.OpRemove)
}

func (s *Store) afterWrite(ctx context.Context, key core.DateKey, op store.Op) error {
	if err := s.Refresh(ctx); err != nil {
		return err
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyChange(ctx, key, op); err != nil {
			s.logger.WarnContext(ctx, "Failed to announce ledger change",
				log.FieldDateKey, key, log.FieldError, err)
		}
	}
	return nil
}

// Run reloads on every change another process announces on the channel
// until ctx ends. Local writes already refreshed in afterWrite.
func (s *Store) Run(ctx context.Context) error {
	ps := s.rdb.Subscribe(ctx, s.channel)
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	s.logger.InfoContext(ctx, "Listening for ledger changes", "channel", s.channel)

	msgs := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-msgs:
			if !ok {
				return fmt.Errorf("subscription %s closed", s.channel)
			}
			var c change
			if err := json.Unmarshal([]byte(m.Payload), &c); err != nil {
				s.logger.WarnContext(ctx, "Ignoring malformed change", log.FieldError, err)
				continue
			}
			if c.Origin == s.origin {
				continue
			}
			if err := s.Refresh(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Refresh after change failed",
					log.FieldOperation, log.OpRefresh,
					log.FieldErrorType, log.ErrorTypeStore,
					log.FieldDateKey, c.DateKey, log.FieldError, err)
			}
		}
	}
}
