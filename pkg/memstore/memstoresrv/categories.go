package memstoresrv

import (
	"context"

	"github.com/cortexdb/cortex/pkg/kernel"
	"github.com/cortexdb/cortex/pkg/memstore"
)

// SetCategory assigns memoryID to category, reading the previously stored
// category mapping to remove stale membership first, and stamping the
// categories zset's score with the current time as a last-used marker.
func (m *MemoryStore) SetCategory(ctx context.Context, ws kernel.WorkspaceID, memoryID, category string) error {
	entry, err := m.Get(ctx, ws, memoryID)
	if err != nil {
		return err
	}
	if entry == nil {
		return memstore.NewNotFound("memory not found: " + memoryID)
	}
	ns := targetNS(*entry)

	prior, ok, err := m.store.Get(ctx, m.keys.CategoryOf(ns, memoryID))
	if err != nil {
		return memstore.NewTransient("failed to read prior category mapping", err)
	}

	now := m.clock.Now()
	pipe := m.store.Pipeline()
	if ok && prior != "" && prior != category {
		pipe.SRem(m.keys.Category(ns, prior), memoryID)
	}
	pipe.Set(m.keys.CategoryOf(ns, memoryID), category)
	pipe.SAdd(m.keys.Category(ns, category), memoryID)
	pipe.ZAdd(m.keys.Categories(ns), float64(now.UnixMilli()), category)
	entry.Category = category
	pipe.HSet(m.keys.Memory(ns, memoryID), memoryToFields(*entry))
	if err := pipe.Exec(ctx); err != nil {
		return memstore.NewTransient("failed to persist category assignment", err)
	}
	return nil
}

// CategoryInfo names a category and how recently/heavily it is used.
type CategoryInfo struct {
	Name        string
	MemoryCount int64
	LastUsedMs  int64
}

// ListCategories returns every category registered in ws, newest-used
// first.
func (m *MemoryStore) ListCategories(ctx context.Context, ws kernel.WorkspaceID) ([]CategoryInfo, error) {
	names, err := m.store.ZRevRange(ctx, m.keys.Categories(ws), 0, -1)
	if err != nil {
		return nil, memstore.NewTransient("failed to list categories", err)
	}

	out := make([]CategoryInfo, 0, len(names))
	for _, name := range names {
		score, ok, err := m.store.ZScore(ctx, m.keys.Categories(ws), name)
		if err != nil {
			return nil, memstore.NewTransient("failed to read category score for "+name, err)
		}
		count, err := m.store.SCard(ctx, m.keys.Category(ws, name))
		if err != nil {
			return nil, memstore.NewTransient("failed to count category members for "+name, err)
		}
		info := CategoryInfo{Name: name, MemoryCount: count}
		if ok {
			info.LastUsedMs = int64(score)
		}
		out = append(out, info)
	}
	return out, nil
}

// GetByCategory returns every memory currently assigned to category.
func (m *MemoryStore) GetByCategory(ctx context.Context, ws kernel.WorkspaceID, category string) ([]memstore.MemoryEntry, error) {
	ids, err := m.store.SMembers(ctx, m.keys.Category(ws, category))
	if err != nil {
		return nil, memstore.NewTransient("failed to read category membership", err)
	}
	return m.dereference(ctx, ws, ids)
}
