package memstoreinfra

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/cortexdb/cortex/pkg/logx"
	"github.com/cortexdb/cortex/pkg/memstore"
	"github.com/redis/go-redis/v9"
)

// RedisStorageClient implements memstore.StorageClient over go-redis.
type RedisStorageClient struct {
	rdb *redis.Client
}

func NewRedisStorageClient(rdb *redis.Client) *RedisStorageClient {
	return &RedisStorageClient{rdb: rdb}
}

// withRetry reconnect-and-retries a backend call with capped exponential
// backoff (base 50ms, max 2s, <=3 attempts). It does not retry on context
// cancellation or redis.Nil (a legitimate "no data").
func withRetry(ctx context.Context, fn func() error) error {
	delay := 50 * time.Millisecond
	const maxDelay = 2 * time.Second
	const attempts = 3

	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || err == redis.Nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay *= 2
				if delay > maxDelay {
					delay = maxDelay
				}
			}
		}
	}
	return errorRegistry.NewWithCause(ErrBackendUnavailable, err)
}

func (c *RedisStorageClient) HSet(ctx context.Context, key string, fields map[string]string) error {
	vals := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		vals[k] = v
	}
	return withRetry(ctx, func() error { return c.rdb.HSet(ctx, key, vals).Err() })
}

func (c *RedisStorageClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	var out map[string]string
	err := withRetry(ctx, func() error {
		var e error
		out, e = c.rdb.HGetAll(ctx, key).Result()
		return e
	})
	return out, err
}

func (c *RedisStorageClient) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return withRetry(ctx, func() error { return c.rdb.Del(ctx, keys...).Err() })
}

func (c *RedisStorageClient) Exists(ctx context.Context, key string) (bool, error) {
	var n int64
	err := withRetry(ctx, func() error {
		var e error
		n, e = c.rdb.Exists(ctx, key).Result()
		return e
	})
	return n > 0, err
}

func (c *RedisStorageClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return withRetry(ctx, func() error { return c.rdb.Expire(ctx, key, ttl).Err() })
}

func (c *RedisStorageClient) Get(ctx context.Context, key string) (string, bool, error) {
	var val string
	var found bool
	err := withRetry(ctx, func() error {
		v, e := c.rdb.Get(ctx, key).Result()
		if e == redis.Nil {
			found = false
			return nil
		}
		val = v
		found = e == nil
		return e
	})
	return val, found, err
}

func (c *RedisStorageClient) Set(ctx context.Context, key, value string) error {
	return withRetry(ctx, func() error { return c.rdb.Set(ctx, key, value, 0).Err() })
}

func (c *RedisStorageClient) SAdd(ctx context.Context, key string, members ...string) error {
	args := toAny(members)
	return withRetry(ctx, func() error { return c.rdb.SAdd(ctx, key, args...).Err() })
}

func (c *RedisStorageClient) SRem(ctx context.Context, key string, members ...string) error {
	args := toAny(members)
	return withRetry(ctx, func() error { return c.rdb.SRem(ctx, key, args...).Err() })
}

func (c *RedisStorageClient) SMembers(ctx context.Context, key string) ([]string, error) {
	var out []string
	err := withRetry(ctx, func() error {
		var e error
		out, e = c.rdb.SMembers(ctx, key).Result()
		return e
	})
	return out, err
}

func (c *RedisStorageClient) SUnion(ctx context.Context, keys ...string) ([]string, error) {
	var out []string
	err := withRetry(ctx, func() error {
		var e error
		out, e = c.rdb.SUnion(ctx, keys...).Result()
		return e
	})
	return out, err
}

func (c *RedisStorageClient) SCard(ctx context.Context, key string) (int64, error) {
	var n int64
	err := withRetry(ctx, func() error {
		var e error
		n, e = c.rdb.SCard(ctx, key).Result()
		return e
	})
	return n, err
}

func (c *RedisStorageClient) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return withRetry(ctx, func() error {
		return c.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
	})
}

func (c *RedisStorageClient) ZRem(ctx context.Context, key string, members ...string) error {
	args := toAny(members)
	return withRetry(ctx, func() error { return c.rdb.ZRem(ctx, key, args...).Err() })
}

func (c *RedisStorageClient) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	var out []string
	err := withRetry(ctx, func() error {
		var e error
		out, e = c.rdb.ZRange(ctx, key, start, stop).Result()
		return e
	})
	return out, err
}

func (c *RedisStorageClient) ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	var out []string
	err := withRetry(ctx, func() error {
		var e error
		out, e = c.rdb.ZRevRange(ctx, key, start, stop).Result()
		return e
	})
	return out, err
}

func (c *RedisStorageClient) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	var out []string
	err := withRetry(ctx, func() error {
		var e error
		out, e = c.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
			Min: formatScore(min), Max: formatScore(max),
		}).Result()
		return e
	})
	return out, err
}

func (c *RedisStorageClient) ZRevRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	var out []string
	err := withRetry(ctx, func() error {
		var e error
		out, e = c.rdb.ZRevRangeByScore(ctx, key, &redis.ZRangeBy{
			Min: formatScore(min), Max: formatScore(max),
		}).Result()
		return e
	})
	return out, err
}

func (c *RedisStorageClient) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	var score float64
	found := true
	err := withRetry(ctx, func() error {
		s, e := c.rdb.ZScore(ctx, key, member).Result()
		if e == redis.Nil {
			found = false
			return nil
		}
		score = s
		return e
	})
	return score, found, err
}

func (c *RedisStorageClient) ZCard(ctx context.Context, key string) (int64, error) {
	var n int64
	err := withRetry(ctx, func() error {
		var e error
		n, e = c.rdb.ZCard(ctx, key).Result()
		return e
	})
	return n, err
}

func (c *RedisStorageClient) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error {
	return withRetry(ctx, func() error { return c.rdb.ZRemRangeByRank(ctx, key, start, stop).Err() })
}

func (c *RedisStorageClient) Pipeline() memstore.Pipeline {
	return &redisPipeline{pipe: c.rdb.Pipeline()}
}

type redisPipeline struct {
	pipe redis.Pipeliner
}

func (p *redisPipeline) HSet(key string, fields map[string]string) {
	vals := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		vals[k] = v
	}
	p.pipe.HSet(context.Background(), key, vals)
}

func (p *redisPipeline) Del(keys ...string) {
	p.pipe.Del(context.Background(), keys...)
}

func (p *redisPipeline) Expire(key string, ttl time.Duration) {
	p.pipe.Expire(context.Background(), key, ttl)
}

func (p *redisPipeline) Set(key, value string) {
	p.pipe.Set(context.Background(), key, value, 0)
}

func (p *redisPipeline) SAdd(key string, members ...string) {
	p.pipe.SAdd(context.Background(), key, toAny(members)...)
}

func (p *redisPipeline) SRem(key string, members ...string) {
	p.pipe.SRem(context.Background(), key, toAny(members)...)
}

func (p *redisPipeline) ZAdd(key string, score float64, member string) {
	p.pipe.ZAdd(context.Background(), key, redis.Z{Score: score, Member: member})
}

func (p *redisPipeline) ZRem(key string, members ...string) {
	p.pipe.ZRem(context.Background(), key, toAny(members)...)
}

func (p *redisPipeline) ZRemRangeByRank(key string, start, stop int64) {
	p.pipe.ZRemRangeByRank(context.Background(), key, start, stop)
}

// Exec issues every staged command in order. This is NOT a transaction:
// a failure partway through leaves earlier commands applied.
func (p *redisPipeline) Exec(ctx context.Context) error {
	_, err := p.pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		logx.WithFields(logx.Fields{"component": "memstoreinfra"}).Warnf("pipeline exec partial failure: %v", err)
		return errorRegistry.NewWithCause(ErrBackendCommand, err)
	}
	return nil
}

// reconcileScript drops ids from membershipKey and every index key whose
// memory hash is absent (expired via passive TTL), atomically. KEYS is
// membershipKey, followed by every plain-set index key, followed by every
// sorted-set index key; ARGV[1] says how many of the index keys are sets
// (the rest are sorted sets) and ARGV[2] is the hash key prefix.
var reconcileScript = redis.NewScript(`
local membership_key = KEYS[1]
local nsets = tonumber(ARGV[1])
local hash_prefix = ARGV[2]
local removed = 0
local ids = redis.call('SMEMBERS', membership_key)
for _, id in ipairs(ids) do
    if redis.call('EXISTS', hash_prefix .. id) == 0 then
        redis.call('SREM', membership_key, id)
        for i = 2, 1 + nsets do
            redis.call('SREM', KEYS[i], id)
        end
        for i = 2 + nsets, #KEYS do
            redis.call('ZREM', KEYS[i], id)
        end
        removed = removed + 1
    end
end
return removed
`)

// ReconcileExpired implements memstore.AtomicReconciler over go-redis
// with a single script so the sweep is atomic.
func (c *RedisStorageClient) ReconcileExpired(ctx context.Context, membershipKey, hashPrefix string, setKeys, zsetKeys []string) (int, error) {
	keys := make([]string, 0, 1+len(setKeys)+len(zsetKeys))
	keys = append(keys, membershipKey)
	keys = append(keys, setKeys...)
	keys = append(keys, zsetKeys...)

	var removed int64
	err := withRetry(ctx, func() error {
		res, e := reconcileScript.Run(ctx, c.rdb, keys, len(setKeys), hashPrefix).Result()
		if e != nil {
			return e
		}
		removed, e = toInt64(res)
		return e
	})
	if err != nil && err != redis.Nil {
		return 0, errorRegistry.NewWithCause(ErrBackendCommand, err)
	}
	return int(removed), nil
}

func toInt64(v interface{}) (int64, error) {
	n, ok := v.(int64)
	if !ok {
		return 0, nil
	}
	return n, nil
}

func toAny(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func formatScore(f float64) string {
	if math.IsInf(f, 1) {
		return "+inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
