package rates

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/domainpay/internal/cache"
)

// Store keeps snapshots for at least the maximum staleness window.
type Store interface {
	Get(ctx context.Context, asset, currency string) (*Snapshot, error)
	Put(ctx context.Context, asset, currency string, snap Snapshot, ttl time.Duration) error
}

func NewStore(client *redis.Client) Store {
	if client != nil {
		return NewRedisStore(client)
	}
	return NewMemoryStore()
}

type MemoryStore struct {
	items *cache.TTLCache[string, Snapshot]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: cache.NewTTLCache[string, Snapshot]()}
}

func (s *MemoryStore) Get(_ context.Context, asset, currency string) (*Snapshot, error) {
	snap, ok := s.items.Get(cache.Key(asset, currency))
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (s *MemoryStore) Put(_ context.Context, asset, currency string, snap Snapshot, ttl time.Duration) error {
	s.items.Set(cache.Key(asset, currency), snap, ttl)
	return nil
}

const redisKeyPrefix = "domainpay:rate:"

// RedisStore shares rates between replicas so a restart or a second
// instance still has a last-known rate.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, asset, currency string) (*Snapshot, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+cache.Key(asset, currency)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *RedisStore) Put(ctx context.Context, asset, currency string, snap Snapshot, ttl time.Duration) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKeyPrefix+cache.Key(asset, currency), raw, ttl).Err()
}
