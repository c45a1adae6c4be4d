package backend

import (
	"fmt"

	"dinners/internal/config"
)

// FromAppConfig converts the application config to backend options.
func FromAppConfig(appConfig *config.Config) (Options, error) {
	if appConfig == nil {
		return Options{}, fmt.Errorf("app config is nil")
	}
	t := Type(appConfig.DataBackend)
	if !t.IsValid() {
		return Options{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}
	return Options{
		Type:          t,
		DataFile:      appConfig.DataFile,
		SQLiteDBPath:  appConfig.SQLiteDBPath,
		RedisAddr:     appConfig.RedisAddr,
		RedisPassword: appConfig.RedisPassword,
		RedisDB:       appConfig.RedisDB,
		RedisKey:      appConfig.RedisKey,
		AMQPURL:       appConfig.AMQPURL,
		AMQPExchange:  appConfig.AMQPExchange,
	}, nil
}

func (o Options) Validate() error {
	if !o.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", o.Type)
	}
	switch o.Type {
	case SQLite:
		if o.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case Redis:
		if o.RedisAddr == "" || o.RedisKey == "" {
			return fmt.Errorf("Redis address and key are required for redis backend")
		}
	}
	if o.AMQPURL != "" && o.AMQPExchange == "" {
		return fmt.Errorf("AMQP exchange is required when AMQP URL is set")
	}
	return nil
}

// Types returns all valid backend types
func Types() []Type {
	return []Type{Memory, SQLite, Redis}
}

// TypeStrings returns all valid backend type strings
func TypeStrings() []string {
	types := Types()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
