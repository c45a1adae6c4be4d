// Package backend builds the record store selected by DATA_BACKEND together
// with the change feed that keeps processes sharing it in sync.
package backend

import (
	"context"

	"dinners/internal/amqp"
	"dinners/internal/store"
)

// ChangeFeed is the cross-process stream of ledger changes.
type ChangeFeed interface {
	Origin() string
	ConsumeLedgerChanges(ctx context.Context, handler func(context.Context, *amqp.LedgerChangedMessage) error) error
}

// CleanupFunc releases what the backend opened.
type CleanupFunc func() error

// RunFunc runs the backend's background loops until ctx ends.
type RunFunc func(ctx context.Context) error

// Result is a ready-to-use store plus its lifecycle hooks.
type Result struct {
	Store store.Store
	// Ready reports whether the first snapshot has been loaded.
	Ready func() bool
	// Run keeps the store in sync with writes from other processes.
	Run     RunFunc
	Cleanup CleanupFunc
	// Changes carries the AMQP change feed when one is configured; nil
	// otherwise.
	Changes ChangeFeed
}

// Factory creates backends based on configuration
type Factory interface {
	Create(ctx context.Context, opts Options) (*Result, error)
}

// Options holds what backend creation needs from the process config.
type Options struct {
	Type Type

	// memory
	DataFile string

	// sqlite
	SQLiteDBPath string

	// redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string

	// change feed, optional
	AMQPURL      string
	AMQPExchange string
}

// Type names a backend.
type Type string

const (
	Memory Type = "memory"
	SQLite Type = "sqlite"
	Redis  Type = "redis"
)

func (t Type) String() string {
	return string(t)
}

func (t Type) IsValid() bool {
	switch t {
	case Memory, SQLite, Redis:
		return true
	default:
		return false
	}
}
