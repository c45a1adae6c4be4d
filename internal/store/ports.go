// Package store defines the record store port: a live, subscribable view of
// the shared dinner collection plus keyed writes.
package store

import (
	"context"

	"dinners/internal/core"
)

type (
	// Listener receives the full ledger every time the collection changes.
	// It must not block for long and must not call Unsubscribe on its own
	// subscription.
	Listener func(core.Ledger)

	// Subscription is the handle returned by Subscribe.
	Subscription interface {
		// Unsubscribe stops delivery. It is safe to call more than once;
		// no notification is delivered after it returns.
		Unsubscribe()
	}

	// RecordStore is the remote dinner collection.
	RecordStore interface {
		// Subscribe delivers the current snapshot before returning and again
		// after every change, in the order changes were observed.
		Subscribe(ctx context.Context, onChange Listener) (Subscription, error)
		// Upsert writes or overwrites the record at key.
		Upsert(ctx context.Context, key core.DateKey, rec core.DinnerRecord) error
		// Remove deletes the record at key. Removing an absent key succeeds.
		Remove(ctx context.Context, key core.DateKey) error
	}

	// SnapshotReader reads the current collection without subscribing.
	SnapshotReader interface {
		Snapshot(ctx context.Context) (core.Ledger, error)
	}

	// Store is what every backend provides.
	Store interface {
		RecordStore
		SnapshotReader
	}
)

// Op names a write in change notifications.
type Op string

const (
	OpUpsert Op = "upsert"
	OpRemove Op = "remove"
)

// ChangeNotifier tells other processes sharing a backend that key changed.
type ChangeNotifier interface {
	NotifyChange(ctx context.Context, key core.DateKey, op Op) error
}
