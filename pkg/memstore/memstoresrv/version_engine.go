package memstoresrv

import (
	"context"

	"github.com/cortexdb/cortex/pkg/kernel"
	"github.com/cortexdb/cortex/pkg/memstore"
	"github.com/cortexdb/cortex/pkg/ptrx"
)

// maxVersionHistory is the number of snapshots retained per memory;
// oldest entries are trimmed once history exceeds this.
const maxVersionHistory = 50

// VersionEngine owns the snapshot history behind every memory and the
// rollback operation that replays one.
type VersionEngine struct {
	store    memstore.StorageClient
	keys     memstore.KeyScheme
	clock    Clock
	memStore *MemoryStore // set post-construction to break the init cycle with MemoryStore
}

// NewVersionEngine wires a VersionEngine over the given backend. Call
// Bind once the owning MemoryStore exists, since Rollback re-applies
// changes through it.
func NewVersionEngine(store memstore.StorageClient, clock Clock) *VersionEngine {
	if clock == nil {
		clock = SystemClock
	}
	return &VersionEngine{store: store, keys: memstore.KeyScheme{}, clock: clock}
}

// Bind attaches the MemoryStore whose Update machinery Rollback reuses.
// memstorecontainer calls this once, after constructing both engines,
// to resolve the circular dependency between them.
func (v *VersionEngine) Bind(ms *MemoryStore) { v.memStore = ms }

// snapshot records the given memory's current mutable fields as a new
// version entry, trimming history back to maxVersionHistory afterward.
func (v *VersionEngine) snapshot(ctx context.Context, ws kernel.WorkspaceID, m memstore.MemoryEntry, author memstore.VersionAuthor, reason string) error {
	now := v.clock.Now()
	version := memstore.MemoryVersion{
		VersionID:    newVersionID(now),
		MemoryID:     m.ID,
		CreatedAt:    now,
		CreatedBy:    author,
		ChangeReason: reason,
		Content:      m.Content,
		ContextType:  m.ContextType,
		Importance:   m.Importance,
		Tags:         m.Tags,
		Summary:      m.Summary,
	}

	pipe := v.store.Pipeline()
	pipe.HSet(v.keys.Version(ws, m.ID, version.VersionID), versionToFields(version))
	pipe.ZAdd(v.keys.Versions(ws, m.ID), float64(now.UnixNano()), version.VersionID)
	pipe.ZRemRangeByRank(v.keys.Versions(ws, m.ID), 0, -(maxVersionHistory + 1))
	if err := pipe.Exec(ctx); err != nil {
		return memstore.NewTransient("failed to persist version snapshot for "+m.ID, err)
	}
	return nil
}

// GetHistory returns up to maxVersionHistory versions for a memory,
// newest first.
func (v *VersionEngine) GetHistory(ctx context.Context, ws kernel.WorkspaceID, memoryID string) ([]memstore.MemoryVersion, error) {
	ids, err := v.store.ZRevRange(ctx, v.keys.Versions(ws, memoryID), 0, maxVersionHistory-1)
	if err != nil {
		return nil, memstore.NewTransient("failed to read version index for "+memoryID, err)
	}

	out := make([]memstore.MemoryVersion, 0, len(ids))
	for _, id := range ids {
		fields, err := v.store.HGetAll(ctx, v.keys.Version(ws, memoryID, id))
		if err != nil {
			return nil, memstore.NewTransient("failed to read version "+id, err)
		}
		if len(fields) == 0 {
			continue
		}
		version, err := fieldsToVersion(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, version)
	}
	return out, nil
}

// Rollback restores a memory to the state captured by versionID. This
// produces exactly two new history entries: an explicit
// pre-rollback snapshot of the memory's current (about-to-be-discarded)
// state, and the post-rollback snapshot that the normal update-apply path
// creates on its own (author/reason overridden to attribute it to the
// rollback rather than to a user edit). preserveRelationships is accepted
// for interface parity with the original tool surface but has no effect:
// relationships are keyed off memory id, which Rollback never changes.
func (v *VersionEngine) Rollback(ctx context.Context, ws kernel.WorkspaceID, memoryID, versionID string, preserveRelationships bool) (*memstore.MemoryEntry, error) {
	if v.memStore == nil {
		return nil, memstore.NewInternal("version engine not bound to a memory store", nil)
	}

	fields, err := v.store.HGetAll(ctx, v.keys.Version(ws, memoryID, versionID))
	if err != nil {
		return nil, memstore.NewTransient("failed to read version "+versionID, err)
	}
	if len(fields) == 0 {
		return nil, memstore.NewNotFound("version not found: " + versionID)
	}
	target, err := fieldsToVersion(fields)
	if err != nil {
		return nil, err
	}

	current, err := v.memStore.Get(ctx, ws, memoryID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, memstore.NewNotFound("memory not found: " + memoryID)
	}

	if err := v.snapshot(ctx, current.WorkspaceID, *current, memstore.AuthorSystem, "Before rollback to "+versionID); err != nil {
		return nil, err
	}

	contextType := target.ContextType
	req := UpdateMemoryRequest{
		Content:     ptrx.String(target.Content),
		ContextType: &contextType,
		Importance:  ptrx.Int(target.Importance),
		Tags:        target.Tags,
		Summary:     ptrx.String(target.Summary),
	}

	return v.memStore.applyUpdate(ctx, ws, memoryID, req, memstore.AuthorSystem, "Rolled back to "+versionID)
}
