package presence

import (
	"context"
	"fmt"

	"vcall/internal/app/db"
	"vcall/internal/configs"
)

// Backend is the raw key-value capability of the external presence store.
// Keys are produced by Path.Key; values are JSON documents, nil meaning absent.
type Backend interface {
	// Get returns the current value of key, or nil when absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key and notifies the key's watchers.
	Put(ctx context.Context, key string, value []byte) error

	// Remove deletes key and every key nested below it, notifying each removed key's watchers.
	Remove(ctx context.Context, key string) error

	// Watch delivers the current value of key and then every change until cancel is called.
	Watch(key string, fn ChangeFunc) (cancel func(), err error)

	// Close releases the backend's connections and cancels all watches.
	Close() error
}

// NewBackend is the factory for the Backend selected by cfg.PresenceBackend.
func NewBackend(ctx context.Context, cfg *configs.AppConfig) (Backend, error) {
	switch cfg.PresenceBackend {
	case configs.BackendMemory:
		return NewMemoryBackend(), nil

	case configs.BackendRedis:
		return NewRedisBackend(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

	case configs.BackendPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}

		backend, err := NewPostgresBackend(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return backend, nil

	default:
		return nil, fmt.Errorf("unsupported presence backend %q", cfg.PresenceBackend)
	}
}
