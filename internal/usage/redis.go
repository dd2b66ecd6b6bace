package usage

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisDeduper implements Deduper with SET NX EX: the first writer of a
// fingerprint within the window wins, later writers see a duplicate. Safe
// across instances.
type RedisDeduper struct {
	client    goredis.Cmdable
	keyPrefix string
}

var _ Deduper = (*RedisDeduper)(nil)

// NewRedisDeduper creates a deduper on the given client.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func NewRedisDeduper(client goredis.Cmdable) *RedisDeduper {
	return &RedisDeduper{
		client:    client,
		keyPrefix: "voxgate:usage:",
	}
}

// Seen reports whether the fingerprint was recorded within the window,
// claiming it if not.
func (d *RedisDeduper) Seen(ctx context.Context, fingerprint string, window time.Duration) (bool, error) {
	if window <= 0 {
		return false, nil
	}

	set, err := d.client.SetNX(ctx, d.keyPrefix+fingerprint, "1", window).Result()
	if err != nil {
		return false, fmt.Errorf("usage: dedup setnx: %w", err)
	}
	return !set, nil
}
