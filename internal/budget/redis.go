package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/steveyegge/seoloop/internal/types"
)

// counterTTL keeps a day's key around long enough for any time zone.
const counterTTL = 48 * time.Hour

// incrementIfBelow is evaluated atomically by Redis.
// KEYS[1] counter key, ARGV[1] limit (negative = unlimited), ARGV[2] ttl seconds.
var incrementIfBelow = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local limit = tonumber(ARGV[1])
if limit >= 0 and current >= limit then
  return 0
end
redis.call("INCR", KEYS[1])
redis.call("EXPIRE", KEYS[1], ARGV[2])
return 1
`)

// RedisStore keeps counters in Redis so several seoloop processes can share
// one budget.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps an existing client. Keys are namespaced under prefix
// ("seoloop:budget" when empty).
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "seoloop:budget"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// DialRedis parses url, connects and pings.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (r *RedisStore) key(repoID string, kind types.ResourceKind, day string) string {
	return fmt.Sprintf("%s:%s:%s:%s", r.prefix, repoID, kind, day)
}

func (r *RedisStore) IncrementIfBelow(ctx context.Context, repoID string, kind types.ResourceKind, day string, limit int) (bool, error) {
	res, err := incrementIfBelow.Run(ctx, r.client,
		[]string{r.key(repoID, kind, day)}, limit, int(counterTTL.Seconds())).Int()
	if err != nil {
		return false, fmt.Errorf("redis increment failed: %w", err)
	}
	return res == 1, nil
}

func (r *RedisStore) Count(ctx context.Context, repoID string, kind types.ResourceKind, day string) (int, error) {
	n, err := r.client.Get(ctx, r.key(repoID, kind, day)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get failed: %w", err)
	}
	return n, nil
}
