package webhook

import (
	"context"
	"fmt"
	"time"

	goCache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/rongwang/leasehub-server/internal/config"
)

const (
	defaultDedupeTTL = 24 * time.Hour
	keyPrefix        = "webhook:seen:"
)

// DedupeStore is a fast-path memory of callbacks already applied. The
// webhook_events table stays the source of truth; a miss here only costs a
// database round trip.
type DedupeStore interface {
	Seen(ctx context.Context, key string) (bool, error)
	Remember(ctx context.Context, key string) error
}

// NewDedupeStore picks the store named by cfg.DedupeBackend
func NewDedupeStore(cfg config.WebhookConfig, redisCfg config.RedisConfig) (DedupeStore, error) {
	ttl := cfg.DedupeTTL
	if ttl <= 0 {
		ttl = defaultDedupeTTL
	}

	switch cfg.DedupeBackend {
	case "", "memory":
		return NewMemoryStore(ttl), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return NewRedisStore(client, ttl), nil
	default:
		return nil, fmt.Errorf("unknown dedupe backend %q", cfg.DedupeBackend)
	}
}

// MemoryStore keeps seen keys in process memory
type MemoryStore struct {
	cache *goCache.Cache
	ttl   time.Duration
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: goCache.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

func (s *MemoryStore) Seen(_ context.Context, key string) (bool, error) {
	_, found := s.cache.Get(keyPrefix + key)
	return found, nil
}

func (s *MemoryStore) Remember(_ context.Context, key string) error {
	s.cache.Set(keyPrefix+key, struct{}{}, s.ttl)
	return nil
}

// Flush forgets every key
func (s *MemoryStore) Flush() {
	s.cache.Flush()
}

// RedisStore shares seen keys between instances
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check webhook key: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Remember(ctx context.Context, key string) error {
	if err := s.client.SetNX(ctx, keyPrefix+key, "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to remember webhook key: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool
func (s *RedisStore) Close() error {
	return s.client.Close()
}
