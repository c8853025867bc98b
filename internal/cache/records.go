package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/libsync/exportd/internal/config"
	"github.com/redis/go-redis/v9"
)

// RecordCache mirrors exported record payloads into Redis so downstream
// consumers can read them without touching the source database. Writes
// are keyed by record identifier, so re-running a job converges to the
// same cache state.
type RecordCache struct {
	rdb    *redis.Client
	prefix string
}

// New creates a RecordCache from configuration.
func New(cfg *config.RedisConfig) *RecordCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RecordCache{rdb: rdb, prefix: cfg.KeyPrefix}
}

// Ping verifies the connection.
func (c *RecordCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *RecordCache) Close() error {
	return c.rdb.Close()
}

// Put upserts one record payload as JSON under kind and ID.
func (c *RecordCache) Put(ctx context.Context, kind string, id uint64, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record %d: %w", kind, id, err)
	}
	if err := c.rdb.Set(ctx, c.key(kind, id), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to cache %s record %d: %w", kind, id, err)
	}
	return nil
}

// Delete removes records by ID. Deleting an absent key is a no-op, so
// deletion chunks stay idempotent.
func (c *RecordCache) Delete(ctx context.Context, kind string, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(kind, id)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete %s records from cache: %w", kind, err)
	}
	return nil
}

func (c *RecordCache) key(kind string, id uint64) string {
	return fmt.Sprintf("%s:%s:%d", c.prefix, kind, id)
}
