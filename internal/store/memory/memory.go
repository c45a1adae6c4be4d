// Package memory is an in-process dinner store. With a file path it keeps the
// whole collection as one JSON blob on disk, the degraded mode for when no
// shared backend is available.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"dinners/internal/core"
	"dinners/internal/store"
)

type Store struct {
	mu       sync.Mutex
	records  core.Ledger
	path     string
	writeErr error
	hub      *store.Hub
}

// New returns an empty store seeded with the given records.
func New(seed core.Ledger) *Store {
	s := &Store{records: seed.Clone(), hub: store.NewHub()}
	s.hub.Publish(s.records)
	return s
}

// NewFromFile loads the collection from path. A missing file starts empty;
// every later write rewrites the file.
func NewFromFile(path string) (*Store, error) {
	seed, err := readFile(path)
	if err != nil {
		return nil, err
	}
	s := New(seed)
	s.path = path
	return s, nil
}

// FailWrites makes every following Upsert and Remove fail with err wrapped
// as a store failure. A nil err restores normal operation.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

func (s *Store) Subscribe(_ context.Context, onChange store.Listener) (store.Subscription, error) {
	return s.hub.Subscribe(onChange), nil
}

func (s *Store) Snapshot(_ context.Context) (core.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records.Clone(), nil
}

func (s *Store) Upsert(_ context.Context, key core.DateKey, rec core.DinnerRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	return s.write("upsert "+key.String(), func(l core.Ledger) bool {
		l[key] = rec.Normalized()
		return true
	})
}

// Remove deletes key. An absent key is a successful no-op and notifies
// nobody.
func (s *Store) Remove(_ context.Context, key core.DateKey) error {
	return s.write("remove "+key.String(), func(l core.Ledger) bool {
		if !l.Has(key) {
			return false
		}
		delete(l, key)
		return true
	})
}

func (s *Store) write(op string, mutate func(core.Ledger) bool) error {
	s.mu.Lock()
	if s.writeErr != nil {
		err := s.writeErr
		s.mu.Unlock()
		return store.Unavailable(op, err)
	}
	next := s.records.Clone()
	if !mutate(next) {
		s.mu.Unlock()
		return nil
	}
	if s.path != "" {
		if err := writeFile(s.path, next); err != nil {
			s.mu.Unlock()
			return store.Unavailable(op, err)
		}
	}
	s.records = next
	// publish before unlocking so snapshots go out in write order
	s.hub.Publish(next)
	s.mu.Unlock()
	return nil
}

func readFile(path string) (core.Ledger, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return core.Ledger{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger file: %w", err)
	}
	if len(data) == 0 {
		return core.Ledger{}, nil
	}
	var docs map[string]store.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parse ledger file %s: %w", path, err)
	}
	// Several spellings can name one day. The canonical key wins; among
	// legacy spellings the lexically first does.
	names := make([]string, 0, len(docs))
	for k := range docs {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make(core.Ledger, len(docs))
	canonical := make(map[core.DateKey]bool, len(docs))
	for _, k := range names {
		key, err := core.ParseDateKey(k)
		if err != nil {
			return nil, fmt.Errorf("ledger file %s: %w", path, err)
		}
		rec, err := docs[k].Record()
		if err != nil {
			return nil, fmt.Errorf("ledger file %s, %s: %w", path, k, err)
		}
		isCanonical := k == key.String()
		if out.Has(key) && (canonical[key] || !isCanonical) {
			continue
		}
		out[key] = rec
		canonical[key] = isCanonical
	}
	return out, nil
}

func writeFile(path string, l core.Ledger) error {
	docs := make(map[string]store.Document, len(l))
	for k, rec := range l {
		docs[k.String()] = store.ToDocument(rec)
	}
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".dinners-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
