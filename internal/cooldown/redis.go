package cooldown

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

const keyPrefix = "listing-sync:cooldown:"

// extendScript sets the key only when its remaining TTL is shorter than the
// requested one, so a trip never cuts an active cooldown short. Returns 1 when
// the key was written.
const extendScript = `
local ttl = redis.call('PTTL', KEYS[1])
if ttl < tonumber(ARGV[2]) then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
  return 1
end
return 0
`

// redisClient is the subset of *redis.Client used by RedisGate.
type redisClient interface {
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
	PTTL(ctx context.Context, key string) *redis.DurationCmd
}

// RedisGate shares cooldowns between processes through Redis key expiry.
type RedisGate struct {
	client redisClient
}

// NewRedisGate creates a RedisGate on client.
func NewRedisGate(client *redis.Client) *RedisGate {
	return &RedisGate{client: client}
}

func (g *RedisGate) Remaining(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := g.client.PTTL(ctx, keyPrefix+key).Result()
	if err != nil {
		return 0, eris.Wrapf(err, "cooldown: pttl %s", key)
	}
	// -2 (missing) and -1 (no expiry) both read as open.
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

func (g *RedisGate) Trip(ctx context.Context, key string, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	until := time.Now().Add(d).UTC().Format(time.RFC3339)
	err := g.client.Eval(ctx, extendScript, []string{keyPrefix + key}, until, d.Milliseconds()).Err()
	return eris.Wrapf(err, "cooldown: set %s", key)
}
