package memstoresrv

import (
	"context"

	"github.com/cortexdb/cortex/pkg/kernel"
	"github.com/cortexdb/cortex/pkg/memstore"
)

// CreateSession registers a new named grouping of memories in ws.
func (m *MemoryStore) CreateSession(ctx context.Context, ws kernel.WorkspaceID, name string) (*memstore.SessionInfo, error) {
	now := m.clock.Now()
	session := memstore.SessionInfo{
		SessionID:   newSessionID(now),
		SessionName: name,
		CreatedAt:   now.UnixMilli(),
	}

	pipe := m.store.Pipeline()
	pipe.HSet(m.keys.Session(ws, session.SessionID), sessionToFields(session))
	pipe.SAdd(m.keys.SessionsAll(ws), session.SessionID)
	if err := pipe.Exec(ctx); err != nil {
		return nil, memstore.NewTransient("failed to persist session", err)
	}
	return &session, nil
}

// GetSession reads a session, including every memory currently tagged
// with it, refreshing MemoryCount/MemoryIDs from the live index rather
// than trusting a possibly-stale stored count.
func (m *MemoryStore) GetSession(ctx context.Context, ws kernel.WorkspaceID, sessionID string) (*memstore.SessionInfo, error) {
	fields, err := m.store.HGetAll(ctx, m.keys.Session(ws, sessionID))
	if err != nil {
		return nil, memstore.NewTransient("failed to read session "+sessionID, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	session, err := fieldsToSession(fields)
	if err != nil {
		return nil, err
	}

	ids, err := m.store.SMembers(ctx, m.keys.MemoriesAll(ws))
	if err != nil {
		return nil, memstore.NewTransient("failed to read membership set", err)
	}
	var memberIDs []string
	for _, id := range ids {
		fields, err := m.store.HGetAll(ctx, m.keys.Memory(ws, id))
		if err != nil {
			return nil, memstore.NewTransient("failed to read memory "+id, err)
		}
		if len(fields) == 0 {
			continue
		}
		if fields["session_id"] == sessionID {
			memberIDs = append(memberIDs, id)
		}
	}
	session.MemoryIDs = memberIDs
	session.MemoryCount = len(memberIDs)
	return &session, nil
}

// ListSessions returns every session registered in ws.
func (m *MemoryStore) ListSessions(ctx context.Context, ws kernel.WorkspaceID) ([]memstore.SessionInfo, error) {
	ids, err := m.store.SMembers(ctx, m.keys.SessionsAll(ws))
	if err != nil {
		return nil, memstore.NewTransient("failed to list sessions", err)
	}

	out := make([]memstore.SessionInfo, 0, len(ids))
	for _, id := range ids {
		fields, err := m.store.HGetAll(ctx, m.keys.Session(ws, id))
		if err != nil {
			return nil, memstore.NewTransient("failed to read session "+id, err)
		}
		if len(fields) == 0 {
			continue
		}
		session, err := fieldsToSession(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, nil
}

// SummaryStats is the aggregate view returned by SummaryStats: counts per
// context_type, the total membership count, and the importance histogram.
type SummaryStats struct {
	TotalMemories       int
	ByType              map[memstore.ContextType]int
	ImportanceHistogram map[int]int
}

// SummaryStats reports coarse statistics over every memory in ws.
func (m *MemoryStore) SummaryStats(ctx context.Context, ws kernel.WorkspaceID) (*SummaryStats, error) {
	ids, err := m.store.SMembers(ctx, m.keys.MemoriesAll(ws))
	if err != nil {
		return nil, memstore.NewTransient("failed to read membership set", err)
	}

	entries, err := m.dereference(ctx, ws, ids)
	if err != nil {
		return nil, err
	}

	stats := &SummaryStats{
		TotalMemories:       len(entries),
		ByType:              map[memstore.ContextType]int{},
		ImportanceHistogram: map[int]int{},
	}
	for _, e := range entries {
		stats.ByType[e.ContextType]++
		stats.ImportanceHistogram[e.Importance]++
	}
	return stats, nil
}
