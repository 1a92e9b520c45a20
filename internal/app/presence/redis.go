package presence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"vcall/internal/pkg/logx"
)

const (
	// redisKeyPrefix namespaces presence keys inside a shared Redis database.
	redisKeyPrefix = "vcall:"

	// redisChannelPrefix is prepended to a key to form its change notification channel.
	redisChannelPrefix = "vcall-presence:"

	redisScanBatch = 100
)

// RedisOptions holds the connection settings of the Redis backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// RedisBackend stores presence values as plain Redis keys and announces every change on
// a per-key pub/sub channel. One pattern subscription feeds all watchers of the process.
type RedisBackend struct {
	client *redis.Client
	pubsub *redis.PubSub
	feed   *feed
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewRedisBackend connects to Redis and starts the change listener.
func NewRedisBackend(ctx context.Context, opts RedisOptions) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: 20,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}

	pubsub := client.PSubscribe(ctx, redisChannelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		_ = client.Close()
		return nil, fmt.Errorf("redis psubscribe: %w", err)
	}

	b := &RedisBackend{
		client: client,
		pubsub: pubsub,
		feed:   newFeed(),
		logger: logx.Component("presence.redis").With().Str("addr", opts.Addr).Logger(),
	}

	b.wg.Add(1)
	go b.listen()

	b.logger.Info().Msg("Redis presence backend connected.")
	return b, nil
}

func (b *RedisBackend) listen() {
	defer b.wg.Done()

	for msg := range b.pubsub.Channel() {
		key := strings.TrimPrefix(msg.Channel, redisChannelPrefix)
		b.feed.publish(key, normalizeRaw([]byte(msg.Payload)))
	}

	b.logger.Info().Msg("Redis change listener stopped.")
}

// Get implements Backend.
func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := b.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

// Put implements Backend. The value and its notification go out in one MULTI block.
func (b *RedisBackend) Put(ctx context.Context, key string, value []byte) error {
	value = normalizeRaw(value)

	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if value == nil {
			pipe.Del(ctx, redisKeyPrefix+key)
			pipe.Publish(ctx, redisChannelPrefix+key, string(nullJSON))
			return nil
		}

		pipe.Set(ctx, redisKeyPrefix+key, value, 0)
		pipe.Publish(ctx, redisChannelPrefix+key, string(value))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put %s: %w", key, err)
	}
	return nil
}

// Remove implements Backend.
func (b *RedisBackend) Remove(ctx context.Context, key string) error {
	keys := []string{redisKeyPrefix + key}

	var cursor uint64
	for {
		batch, next, err := b.client.Scan(ctx, cursor, redisKeyPrefix+key+"/*", redisScanBatch).Result()
		if err != nil {
			return fmt.Errorf("redis scan %s: %w", key, err)
		}
		keys = append(keys, batch...)

		cursor = next
		if cursor == 0 {
			break
		}
	}

	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range keys {
			pipe.Del(ctx, k)
			pipe.Publish(ctx, redisChannelPrefix+strings.TrimPrefix(k, redisKeyPrefix), string(nullJSON))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis remove %s: %w", key, err)
	}
	return nil
}

// Watch implements Backend.
func (b *RedisBackend) Watch(key string, fn ChangeFunc) (func(), error) {
	return b.feed.watch(key, b.Get, fn), nil
}

// Close implements Backend.
func (b *RedisBackend) Close() error {
	b.feed.close()

	err := b.pubsub.Close()
	b.wg.Wait()

	if cerr := b.client.Close(); err == nil {
		err = cerr
	}
	return err
}
