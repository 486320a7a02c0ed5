package llm

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// IdempotencyStore records keys for a dedup window. Reserve returns false if
// the key was already reserved and has not expired.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

const defaultIdempotencyCapacity = 10000

// MemoryIdempotencyStore keeps keys in a bounded expiring LRU. The window is
// fixed at construction; the ttl argument to Reserve is ignored.
type MemoryIdempotencyStore struct {
	mu   sync.Mutex
	keys *expirable.LRU[string, struct{}]
}

func NewMemoryIdempotencyStore(ttl time.Duration, capacity int) *MemoryIdempotencyStore {
	if capacity <= 0 {
		capacity = defaultIdempotencyCapacity
	}
	return &MemoryIdempotencyStore{
		keys: expirable.NewLRU[string, struct{}](capacity, nil, ttl),
	}
}

func (s *MemoryIdempotencyStore) Reserve(_ context.Context, key string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.keys.Get(key); seen {
		return false, nil
	}
	s.keys.Add(key, struct{}{})
	return true, nil
}

// RedisIdempotencyStore shares keys across processes with SET NX PX.
type RedisIdempotencyStore struct {
	client redis.Cmdable
	prefix string
}

func NewRedisIdempotencyStore(client redis.Cmdable) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, prefix: "ai:idem:"}
}

func (s *RedisIdempotencyStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.prefix+key, 1, ttl).Result()
}
