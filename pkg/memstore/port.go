package memstore

import (
	"context"
	"time"
)

// StorageClient is the narrow capability interface every memstoresrv engine
// is built on. Implementations wrap any Redis-protocol-compatible backend.
// Each command is side-effect-atomic on its own; Pipeline batches commands
// for one round trip but is explicitly NOT a transaction — partial failure
// is possible and callers must treat indices as best-effort consistent.
type StorageClient interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SUnion(ctx context.Context, keys ...string) ([]string, error)
	SCard(ctx context.Context, key string) (int64, error)

	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRem(ctx context.Context, key string, members ...string) error
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)
	ZRevRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)
	ZScore(ctx context.Context, key, member string) (float64, bool, error)
	ZCard(ctx context.Context, key string) (int64, error)
	ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error

	Pipeline() Pipeline
}

// AtomicReconciler is an optional capability a StorageClient backend may
// implement to run ReconcileExpiredIndices as a single atomic script
// instead of MemoryStore's per-id fallback loop. setKeys are the plain
// sets (by_type) and zsetKeys the sorted sets (timeline, important) that
// index the same membership set; hashPrefix+id yields the memory hash key.
// Backends without this capability (the in-memory test double) fall back
// to the non-atomic loop.
type AtomicReconciler interface {
	ReconcileExpired(ctx context.Context, membershipKey, hashPrefix string, setKeys, zsetKeys []string) (int, error)
}

// Pipeline stages a batch of commands sharing the same verb set as
// StorageClient, executed together with Exec. Commands run in the order
// staged; Exec returns the first error encountered (if any) but earlier
// staged commands that already reached the backend are not rolled back.
type Pipeline interface {
	HSet(key string, fields map[string]string)
	Del(keys ...string)
	Expire(key string, ttl time.Duration)
	Set(key, value string)
	SAdd(key string, members ...string)
	SRem(key string, members ...string)
	ZAdd(key string, score float64, member string)
	ZRem(key string, members ...string)
	ZRemRangeByRank(key string, start, stop int64)

	Exec(ctx context.Context) error
}
