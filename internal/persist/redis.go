package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Nocena/app.nocena-sub001/internal/ingest"
)

const redisOpTimeout = 5 * time.Second

// RedisStore persists the session snapshot as a single JSON value under one
// key. The snapshot includes raw chunk buffers, so a restart on another host
// recovers in-flight sessions as long as Redis survives.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to addr and stores snapshots under key.
func NewRedisStore(addr, password string, db int, key string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		key: key,
	}
}

// Save implements ingest.Persister.
func (r *RedisStore) Save(snap ingest.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("write snapshot to redis: %w", err)
	}
	return nil
}

// Load implements ingest.Persister. A missing key is a normal cold start.
func (r *RedisStore) Load() (ingest.Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ingest.Snapshot{}, nil
		}
		return ingest.Snapshot{}, fmt.Errorf("read snapshot from redis: %w", err)
	}
	var snap ingest.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return ingest.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Close releases the underlying Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
