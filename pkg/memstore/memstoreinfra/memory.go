// Package memstoreinfra holds StorageClient implementations: a
// Redis-backed one for production and an in-memory one standing in for
// Redis in tests.
package memstoreinfra

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cortexdb/cortex/pkg/memstore"
)

// InMemoryStorageClient implements memstore.StorageClient entirely in
// process memory. It is not meant for production use — it exists so
// memstoresrv can be tested without a live Redis.
type InMemoryStorageClient struct {
	mu      sync.Mutex
	hashes  map[string]map[string]string
	strings map[string]string
	sets    map[string]map[string]struct{}
	zsets   map[string]map[string]float64
	expires map[string]time.Time
}

func NewInMemoryStorageClient() *InMemoryStorageClient {
	return &InMemoryStorageClient{
		hashes:  make(map[string]map[string]string),
		strings: make(map[string]string),
		sets:    make(map[string]map[string]struct{}),
		zsets:   make(map[string]map[string]float64),
		expires: make(map[string]time.Time),
	}
}

func (c *InMemoryStorageClient) expired(key string) bool {
	if t, ok := c.expires[key]; ok && time.Now().After(t) {
		return true
	}
	return false
}

func (c *InMemoryStorageClient) purgeIfExpired(key string) {
	if c.expired(key) {
		delete(c.hashes, key)
		delete(c.strings, key)
		delete(c.expires, key)
	}
}

func (c *InMemoryStorageClient) HSet(ctx context.Context, key string, fields map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeIfExpired(key)
	h, ok := c.hashes[key]
	if !ok {
		h = make(map[string]string)
		c.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (c *InMemoryStorageClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeIfExpired(key)
	h, ok := c.hashes[key]
	if !ok {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out, nil
}

func (c *InMemoryStorageClient) Del(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.hashes, k)
		delete(c.strings, k)
		delete(c.sets, k)
		delete(c.zsets, k)
		delete(c.expires, k)
	}
	return nil
}

func (c *InMemoryStorageClient) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeIfExpired(key)
	if _, ok := c.hashes[key]; ok {
		return true, nil
	}
	if _, ok := c.strings[key]; ok {
		return true, nil
	}
	return false, nil
}

func (c *InMemoryStorageClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expires[key] = time.Now().Add(ttl)
	return nil
}

func (c *InMemoryStorageClient) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeIfExpired(key)
	v, ok := c.strings[key]
	return v, ok, nil
}

func (c *InMemoryStorageClient) Set(ctx context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strings[key] = value
	return nil
}

func (c *InMemoryStorageClient) SAdd(ctx context.Context, key string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sets[key]
	if !ok {
		s = make(map[string]struct{})
		c.sets[key] = s
	}
	for _, m := range members {
		s[m] = struct{}{}
	}
	return nil
}

func (c *InMemoryStorageClient) SRem(ctx context.Context, key string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sets[key]
	if !ok {
		return nil
	}
	for _, m := range members {
		delete(s, m)
	}
	return nil
}

func (c *InMemoryStorageClient) SMembers(ctx context.Context, key string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.sets[key]
	out := make([]string, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func (c *InMemoryStorageClient) SUnion(ctx context.Context, keys ...string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[string]struct{})
	for _, key := range keys {
		for m := range c.sets[key] {
			seen[m] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func (c *InMemoryStorageClient) SCard(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.sets[key])), nil
}

func (c *InMemoryStorageClient) ZAdd(ctx context.Context, key string, score float64, member string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	z, ok := c.zsets[key]
	if !ok {
		z = make(map[string]float64)
		c.zsets[key] = z
	}
	z[member] = score
	return nil
}

func (c *InMemoryStorageClient) ZRem(ctx context.Context, key string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	z, ok := c.zsets[key]
	if !ok {
		return nil
	}
	for _, m := range members {
		delete(z, m)
	}
	return nil
}

type zmember struct {
	member string
	score  float64
}

func (c *InMemoryStorageClient) sortedMembers(key string) []zmember {
	z := c.zsets[key]
	out := make([]zmember, 0, len(z))
	for m, s := range z {
		out = append(out, zmember{m, s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score == out[j].score {
			return out[i].member < out[j].member
		}
		return out[i].score < out[j].score
	})
	return out
}

func sliceRange(n, start, stop int64) (int64, int64) {
	if start < 0 {
		start = n + start
	}
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	return start, stop
}

func (c *InMemoryStorageClient) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	members := c.sortedMembers(key)
	s, e := sliceRange(int64(len(members)), start, stop)
	if s > e || s >= int64(len(members)) || e < 0 {
		return []string{}, nil
	}
	out := make([]string, 0, e-s+1)
	for i := s; i <= e; i++ {
		out = append(out, members[i].member)
	}
	return out, nil
}

func (c *InMemoryStorageClient) ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	members := c.sortedMembers(key)
	for i, j := 0, len(members)-1; i < j; i, j = i+1, j-1 {
		members[i], members[j] = members[j], members[i]
	}
	s, e := sliceRange(int64(len(members)), start, stop)
	if s > e || s >= int64(len(members)) || e < 0 {
		return []string{}, nil
	}
	out := make([]string, 0, e-s+1)
	for i := s; i <= e; i++ {
		out = append(out, members[i].member)
	}
	return out, nil
}

func (c *InMemoryStorageClient) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, zm := range c.sortedMembers(key) {
		if zm.score >= min && zm.score <= max {
			out = append(out, zm.member)
		}
	}
	return out, nil
}

func (c *InMemoryStorageClient) ZRevRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	members := c.sortedMembers(key)
	var out []string
	for i := len(members) - 1; i >= 0; i-- {
		if members[i].score >= min && members[i].score <= max {
			out = append(out, members[i].member)
		}
	}
	return out, nil
}

func (c *InMemoryStorageClient) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	z, ok := c.zsets[key]
	if !ok {
		return 0, false, nil
	}
	s, ok := z[member]
	return s, ok, nil
}

func (c *InMemoryStorageClient) ZCard(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.zsets[key])), nil
}

func (c *InMemoryStorageClient) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	members := c.sortedMembers(key)
	s, e := sliceRange(int64(len(members)), start, stop)
	if s > e || s >= int64(len(members)) || e < 0 {
		return nil
	}
	z := c.zsets[key]
	for i := s; i <= e; i++ {
		delete(z, members[i].member)
	}
	return nil
}

func (c *InMemoryStorageClient) Pipeline() memstore.Pipeline {
	return &inMemoryPipeline{client: c}
}

type pipelineOp func(c *InMemoryStorageClient)

type inMemoryPipeline struct {
	client *InMemoryStorageClient
	ops    []pipelineOp
}

func (p *inMemoryPipeline) HSet(key string, fields map[string]string) {
	p.ops = append(p.ops, func(c *InMemoryStorageClient) { _ = c.HSet(context.Background(), key, fields) })
}

func (p *inMemoryPipeline) Del(keys ...string) {
	p.ops = append(p.ops, func(c *InMemoryStorageClient) { _ = c.Del(context.Background(), keys...) })
}

func (p *inMemoryPipeline) Expire(key string, ttl time.Duration) {
	p.ops = append(p.ops, func(c *InMemoryStorageClient) { _ = c.Expire(context.Background(), key, ttl) })
}

func (p *inMemoryPipeline) Set(key, value string) {
	p.ops = append(p.ops, func(c *InMemoryStorageClient) { _ = c.Set(context.Background(), key, value) })
}

func (p *inMemoryPipeline) SAdd(key string, members ...string) {
	p.ops = append(p.ops, func(c *InMemoryStorageClient) { _ = c.SAdd(context.Background(), key, members...) })
}

func (p *inMemoryPipeline) SRem(key string, members ...string) {
	p.ops = append(p.ops, func(c *InMemoryStorageClient) { _ = c.SRem(context.Background(), key, members...) })
}

func (p *inMemoryPipeline) ZAdd(key string, score float64, member string) {
	p.ops = append(p.ops, func(c *InMemoryStorageClient) { _ = c.ZAdd(context.Background(), key, score, member) })
}

func (p *inMemoryPipeline) ZRem(key string, members ...string) {
	p.ops = append(p.ops, func(c *InMemoryStorageClient) { _ = c.ZRem(context.Background(), key, members...) })
}

func (p *inMemoryPipeline) ZRemRangeByRank(key string, start, stop int64) {
	p.ops = append(p.ops, func(c *InMemoryStorageClient) { _ = c.ZRemRangeByRank(context.Background(), key, start, stop) })
}

// Exec runs every staged op in order. A real backend pipeline can fail
// partway through; this in-memory one never does, but callers must still
// treat it as non-transactional per the StorageClient contract.
func (p *inMemoryPipeline) Exec(ctx context.Context) error {
	for _, op := range p.ops {
		op(p.client)
	}
	return nil
}
