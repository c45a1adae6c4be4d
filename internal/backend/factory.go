package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"dinners/internal/amqp"
	"dinners/internal/log"
	"dinners/internal/store/memory"
	redisstore "dinners/internal/store/redis"
	"dinners/internal/store/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
	// dialAMQP is replaced in tests.
	dialAMQP func(url, exchange string, logger *log.Logger) (*amqp.Client, error)
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger:   logger.WithComponent(log.ComponentBackend),
		dialAMQP: amqp.NewClient,
	}
}

// Create implements Factory.Create
func (f *DefaultFactory) Create(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	switch opts.Type {
	case Memory:
		return f.createMemory(opts)
	case SQLite:
		return f.createSQLite(ctx, opts)
	case Redis:
		return f.createRedis(ctx, opts)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", opts.Type)
	}
}

func (f *DefaultFactory) createMemory(opts Options) (*Result, error) {
	if opts.AMQPURL != "" {
		f.logger.Warn("Ignoring AMQP settings: the memory backend is private to this process")
	}
	var (
		st  *memory.Store
		err error
	)
	if opts.DataFile != "" {
		st, err = memory.NewFromFile(opts.DataFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load memory backend: %w", err)
		}
	} else {
		st = memory.New(nil)
	}
	f.logger.Info("Initialized memory backend", "data_file", opts.DataFile)
	return &Result{
		Store:   st,
		Ready:   func() bool { return true },
		Run:     idle,
		Cleanup: func() error { return nil },
	}, nil
}

func (f *DefaultFactory) createSQLite(ctx context.Context, opts Options) (*Result, error) {
	st, err := sqlite.Open(ctx, opts.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite backend: %w", err)
	}

	res := &Result{Store: st, Ready: st.Ready, Run: idle, Cleanup: st.Close}
	client := f.connectFeed(opts)
	if client != nil {
		st.SetNotifier(client)
		// writes made by peers while the broker was away
		client.OnConsuming(st.Refresh)
		res.Changes = client
		res.Run = func(ctx context.Context) error {
			return client.ConsumeLedgerChanges(ctx, func(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
				if msg.Origin == client.Origin() {
					return nil
				}
				return st.Refresh(ctx)
			})
		}
		res.Cleanup = func() error { return errors.Join(client.Close(), st.Close()) }
	}

	f.logger.Info("Initialized SQLite backend",
		"db_path", opts.SQLiteDBPath,
		"amqp_enabled", client != nil)
	return res, nil
}

func (f *DefaultFactory) createRedis(ctx context.Context, opts Options) (*Result, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.RedisAddr,
		Password: opts.RedisPassword,
		DB:       opts.RedisDB,
	})
	st, err := redisstore.New(ctx, rdb, opts.RedisKey, f.logger)
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to initialize Redis backend: %w", err)
	}

	// Peers sync through the Redis channel; AMQP only feeds other consumers.
	res := &Result{Store: st, Ready: st.Ready, Run: st.Run, Cleanup: rdb.Close}
	client := f.connectFeed(opts)
	if client != nil {
		st.SetNotifier(client)
		res.Changes = client
		res.Cleanup = func() error { return errors.Join(client.Close(), rdb.Close()) }
	}

	f.logger.Info("Initialized Redis backend",
		"addr", opts.RedisAddr,
		"key", opts.RedisKey,
		"amqp_enabled", client != nil)
	return res, nil
}

// connectFeed dials the change feed. A broker that is down at startup is
// not fatal: the process runs without cross-process notifications.
func (f *DefaultFactory) connectFeed(opts Options) *amqp.Client {
	if opts.AMQPURL == "" {
		return nil
	}
	client, err := f.dialAMQP(opts.AMQPURL, opts.AMQPExchange, f.logger)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without sync",
			log.FieldErrorType, log.ErrorTypeNetwork,
			log.FieldError, err)
		return nil
	}
	f.logger.Info("Initialized AMQP client", "exchange", opts.AMQPExchange)
	return client
}

func idle(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
