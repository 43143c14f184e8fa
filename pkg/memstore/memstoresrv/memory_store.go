// Package memstoresrv holds the memory engine: MemoryStore,
// RelationshipEngine, VersionEngine, RLMCoordinator, ConversationAnalyzer
// and PromptFormatter. Every engine is built directly on
// memstore.StorageClient, memstore.KeyScheme and memstore.EmbeddingBuilder;
// there is no repository layer between them and the backend.
package memstoresrv

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/cortexdb/cortex/pkg/asyncx"
	"github.com/cortexdb/cortex/pkg/kernel"
	"github.com/cortexdb/cortex/pkg/logx"
	"github.com/cortexdb/cortex/pkg/memstore"
	"github.com/cortexdb/cortex/pkg/ptrx"
)

// MemoryStore owns the memory lifecycle: creation, indexing invariants,
// search, recency/type/tag/importance/time-window reads, merge, scope
// conversion, categories, sessions and templates.
type MemoryStore struct {
	store    memstore.StorageClient
	keys     memstore.KeyScheme
	embedder *memstore.EmbeddingBuilder
	clock    Clock
	versions *VersionEngine
}

// NewMemoryStore wires a MemoryStore over the given backend. versions may
// be nil only in tests that never call Update/Rollback.
func NewMemoryStore(store memstore.StorageClient, embedder *memstore.EmbeddingBuilder, versions *VersionEngine, clock Clock) *MemoryStore {
	if clock == nil {
		clock = SystemClock
	}
	return &MemoryStore{store: store, keys: memstore.KeyScheme{}, embedder: embedder, clock: clock, versions: versions}
}

// CreateMemoryRequest is the input to Create.
type CreateMemoryRequest struct {
	ContextType memstore.ContextType
	Content     string
	Summary     string
	Tags        []string
	Importance  int
	SessionID   string
	TTLSeconds  *int
	Category    string
}

// WriteScope names the namespace a write lands in: a specific workspace,
// or the global namespace when Global is true.
type WriteScope struct {
	Workspace kernel.WorkspaceID
	Global    bool
}

func (w WriteScope) ns() kernel.WorkspaceID {
	if w.Global {
		return kernel.NewWorkspaceID("")
	}
	return w.Workspace
}

func scopeNamespaces(scope memstore.Scope) []kernel.WorkspaceID {
	switch scope.Mode {
	case memstore.ModeGlobal:
		return []kernel.WorkspaceID{kernel.NewWorkspaceID("")}
	case memstore.ModeHybrid:
		return []kernel.WorkspaceID{scope.Workspace, kernel.NewWorkspaceID("")}
	default:
		return []kernel.WorkspaceID{scope.Workspace}
	}
}

func validate(req CreateMemoryRequest) error {
	if strings.TrimSpace(req.Content) == "" {
		return memstore.NewInvalidInput("content must not be empty")
	}
	if req.Importance < 1 || req.Importance > 10 {
		return memstore.NewInvalidInput("importance must be between 1 and 10")
	}
	if req.ContextType != "" && !contextTypeValid(req.ContextType) {
		return memstore.NewInvalidInput("unknown context_type: " + string(req.ContextType))
	}
	if req.TTLSeconds != nil && *req.TTLSeconds < 60 {
		return memstore.NewInvalidInput("ttl_seconds must be at least 60 when set")
	}
	return nil
}

// contextTypeValid mirrors memstore's unexported validator via its
// public enum constants, as the guard at the engine boundary.
func contextTypeValid(t memstore.ContextType) bool {
	switch t {
	case memstore.ContextDirective, memstore.ContextInformation, memstore.ContextHeading,
		memstore.ContextDecision, memstore.ContextCodePattern, memstore.ContextRequirement,
		memstore.ContextError, memstore.ContextTodo, memstore.ContextInsight, memstore.ContextPreference:
		return true
	}
	return false
}

// Create persists a new memory, computing its embedding and populating
// every index it belongs to in one pipeline.
func (m *MemoryStore) Create(ctx context.Context, target WriteScope, req CreateMemoryRequest) (*memstore.MemoryEntry, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	now := m.clock.Now()
	entry := memstore.MemoryEntry{
		ID:          newMemoryID(now),
		Timestamp:   now.UnixMilli(),
		ContextType: req.ContextType,
		Content:     req.Content,
		Summary:     memstore.DeriveSummary(req.Summary, req.Content),
		Tags:        dedupTags(req.Tags),
		Importance:  req.Importance,
		SessionID:   req.SessionID,
		Embedding:   m.embedder.Embed(ctx, req.Content),
		IsGlobal:    target.Global,
		WorkspaceID: target.Workspace,
		Category:    req.Category,
	}
	if target.Global {
		entry.WorkspaceID = ""
	}
	if req.TTLSeconds != nil {
		entry.TTLSeconds = ptrx.Int(*req.TTLSeconds)
		entry.ExpiresAt = ptrx.Int64(now.UnixMilli() + int64(*req.TTLSeconds)*1000)
	}

	ns := target.ns()
	pipe := m.store.Pipeline()
	pipe.HSet(m.keys.Memory(ns, entry.ID), memoryToFields(entry))
	if entry.TTLSeconds != nil {
		pipe.Expire(m.keys.Memory(ns, entry.ID), time.Duration(*entry.TTLSeconds)*time.Second)
	}
	pipe.SAdd(m.keys.MemoriesAll(ns), entry.ID)
	pipe.ZAdd(m.keys.MemoriesTimeline(ns), float64(entry.Timestamp), entry.ID)
	if entry.ContextType != "" {
		pipe.SAdd(m.keys.MemoriesByType(ns, entry.ContextType), entry.ID)
	}
	for _, tag := range entry.Tags {
		pipe.SAdd(m.keys.MemoriesByTag(ns, tag), entry.ID)
	}
	if entry.Importance >= 8 {
		pipe.ZAdd(m.keys.MemoriesImportant(ns), float64(entry.Importance), entry.ID)
	}
	if entry.Category != "" {
		pipe.SAdd(m.keys.Category(ns, entry.Category), entry.ID)
		pipe.ZAdd(m.keys.Categories(ns), float64(now.UnixMilli()), entry.Category)
		pipe.Set(m.keys.CategoryOf(ns, entry.ID), entry.Category)
	}

	if err := pipe.Exec(ctx); err != nil {
		return nil, memstore.NewTransient("failed to persist new memory", err)
	}
	return &entry, nil
}

// BatchCreate persists every request concurrently (each Create carries its
// own embedding LLM round trip, so the batch is latency-bound on the
// slowest item rather than the sum). Per-item failures do not abort the
// batch; callers get back the entries that succeeded, in request order.
func (m *MemoryStore) BatchCreate(ctx context.Context, target WriteScope, reqs []CreateMemoryRequest) ([]memstore.MemoryEntry, error) {
	fns := make([]func(context.Context) (*memstore.MemoryEntry, error), len(reqs))
	for i, req := range reqs {
		req := req
		fns[i] = func(ctx context.Context) (*memstore.MemoryEntry, error) {
			return m.Create(ctx, target, req)
		}
	}

	out := make([]memstore.MemoryEntry, 0, len(reqs))
	for _, r := range asyncx.AllSettled(ctx, fns...) {
		if !r.OK() {
			logx.WithFields(logx.Fields{"component": "memstoresrv"}).WithError(r.Err).Warn("batch create: skipping invalid item")
			continue
		}
		out = append(out, *r.Value)
	}
	return out, nil
}

// Get reads a memory by id. When scope is unspecified (the normal case) it
// tries the workspace namespace first, then falls back to global. Absent
// hash is not an error — it returns (nil, nil).
func (m *MemoryStore) Get(ctx context.Context, ws kernel.WorkspaceID, id string) (*memstore.MemoryEntry, error) {
	tries := []kernel.WorkspaceID{kernel.NewWorkspaceID("")}
	if !ws.IsEmpty() {
		tries = []kernel.WorkspaceID{ws, kernel.NewWorkspaceID("")}
	}
	for _, ns := range tries {
		fields, err := m.store.HGetAll(ctx, m.keys.Memory(ns, id))
		if err != nil {
			return nil, memstore.NewTransient("failed to read memory "+id, err)
		}
		if len(fields) == 0 {
			continue
		}
		entry, err := fieldsToMemory(fields)
		if err != nil {
			return nil, err
		}
		return &entry, nil
	}
	return nil, nil
}

// UpdateMemoryRequest carries only the fields an update may change; nil
// pointers leave the corresponding field untouched.
type UpdateMemoryRequest struct {
	Content     *string
	ContextType *memstore.ContextType
	Importance  *int
	Tags        []string
	Summary     *string
}

// Update loads the current memory, snapshots it as a user-authored
// version, applies the requested deltas, and re-embeds iff content
// changed. It does not move a memory across scopes.
func (m *MemoryStore) Update(ctx context.Context, ws kernel.WorkspaceID, id string, req UpdateMemoryRequest) (*memstore.MemoryEntry, error) {
	return m.applyUpdate(ctx, ws, id, req, memstore.AuthorUser, "Memory updated")
}

func (m *MemoryStore) applyUpdate(ctx context.Context, ws kernel.WorkspaceID, id string, req UpdateMemoryRequest, author memstore.VersionAuthor, reason string) (*memstore.MemoryEntry, error) {
	current, err := m.Get(ctx, ws, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, memstore.NewNotFound("memory not found: " + id)
	}

	if req.Importance != nil && (*req.Importance < 1 || *req.Importance > 10) {
		return nil, memstore.NewInvalidInput("importance must be between 1 and 10")
	}
	if req.ContextType != nil && *req.ContextType != "" && !contextTypeValid(*req.ContextType) {
		return nil, memstore.NewInvalidInput("unknown context_type: " + string(*req.ContextType))
	}

	if m.versions != nil {
		if err := m.versions.snapshot(ctx, current.WorkspaceID, *current, author, reason); err != nil {
			return nil, err
		}
	}

	updated := *current
	contentChanged := false
	if req.Content != nil && *req.Content != current.Content {
		if strings.TrimSpace(*req.Content) == "" {
			return nil, memstore.NewInvalidInput("content must not be empty")
		}
		updated.Content = *req.Content
		contentChanged = true
	}
	if req.ContextType != nil {
		updated.ContextType = *req.ContextType
	}
	if req.Importance != nil {
		updated.Importance = *req.Importance
	}
	if req.Tags != nil {
		updated.Tags = dedupTags(req.Tags)
	}
	if req.Summary != nil {
		updated.Summary = *req.Summary
	} else if contentChanged {
		updated.Summary = memstore.DeriveSummary("", updated.Content)
	}
	if contentChanged {
		updated.Embedding = m.embedder.Embed(ctx, updated.Content)
	}

	ns := targetNS(*current)
	pipe := m.store.Pipeline()
	pipe.HSet(m.keys.Memory(ns, id), memoryToFields(updated))

	if updated.ContextType != current.ContextType {
		if current.ContextType != "" {
			pipe.SRem(m.keys.MemoriesByType(ns, current.ContextType), id)
		}
		if updated.ContextType != "" {
			pipe.SAdd(m.keys.MemoriesByType(ns, updated.ContextType), id)
		}
	}

	added, removed := diffTags(current.Tags, updated.Tags)
	for _, tag := range removed {
		pipe.SRem(m.keys.MemoriesByTag(ns, tag), id)
	}
	for _, tag := range added {
		pipe.SAdd(m.keys.MemoriesByTag(ns, tag), id)
	}

	wasImportant := current.Importance >= 8
	isImportant := updated.Importance >= 8
	switch {
	case isImportant:
		pipe.ZAdd(m.keys.MemoriesImportant(ns), float64(updated.Importance), id)
	case wasImportant && !isImportant:
		pipe.ZRem(m.keys.MemoriesImportant(ns), id)
	}

	if err := pipe.Exec(ctx); err != nil {
		return nil, memstore.NewTransient("failed to persist memory update", err)
	}
	return &updated, nil
}

// Delete removes a memory from every index it is known to belong to in
// its current scope, then deletes the hash.
func (m *MemoryStore) Delete(ctx context.Context, ws kernel.WorkspaceID, id string) (bool, error) {
	entry, err := m.Get(ctx, ws, id)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, nil
	}
	if err := m.deleteEntry(ctx, *entry); err != nil {
		return false, err
	}
	return true, nil
}

func (m *MemoryStore) deleteEntry(ctx context.Context, entry memstore.MemoryEntry) error {
	ns := targetNS(entry)
	pipe := m.store.Pipeline()
	pipe.SRem(m.keys.MemoriesAll(ns), entry.ID)
	pipe.ZRem(m.keys.MemoriesTimeline(ns), entry.ID)
	if entry.ContextType != "" {
		pipe.SRem(m.keys.MemoriesByType(ns, entry.ContextType), entry.ID)
	}
	for _, tag := range entry.Tags {
		pipe.SRem(m.keys.MemoriesByTag(ns, tag), entry.ID)
	}
	if entry.Importance >= 8 {
		pipe.ZRem(m.keys.MemoriesImportant(ns), entry.ID)
	}
	if entry.Category != "" {
		pipe.SRem(m.keys.Category(ns, entry.Category), entry.ID)
	}
	pipe.Del(m.keys.CategoryOf(ns, entry.ID))
	pipe.Del(m.keys.Memory(ns, entry.ID))
	if err := pipe.Exec(ctx); err != nil {
		return memstore.NewTransient("failed to delete memory "+entry.ID, err)
	}
	return nil
}

func targetNS(entry memstore.MemoryEntry) kernel.WorkspaceID {
	if entry.IsGlobal {
		return kernel.NewWorkspaceID("")
	}
	return entry.WorkspaceID
}

// dereference fetches each candidate id's entry, silently skipping ids
// whose hash is absent: they expired, and index tombstones are reconciled
// lazily on read.
func (m *MemoryStore) dereference(ctx context.Context, ns kernel.WorkspaceID, ids []string) ([]memstore.MemoryEntry, error) {
	out := make([]memstore.MemoryEntry, 0, len(ids))
	for _, id := range ids {
		fields, err := m.store.HGetAll(ctx, m.keys.Memory(ns, id))
		if err != nil {
			return nil, memstore.NewTransient("failed to read memory "+id, err)
		}
		if len(fields) == 0 {
			continue
		}
		entry, err := fieldsToMemory(fields)
		if err != nil {
			logx.WithFields(logx.Fields{"component": "memstoresrv", "memory_id": id}).WithError(err).Warn("skipping malformed memory")
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// SearchOptions narrows a Search call.
type SearchOptions struct {
	MinImportance *int
	ContextTypes  []memstore.ContextType
	Category      string
	Fuzzy         bool
	Regex         string
}

// SearchResult pairs a matched memory with its similarity score.
type SearchResult struct {
	Memory memstore.MemoryEntry
	Score  float64
}

// Search embeds the query, gathers scope-appropriate candidates,
// filters, scores, and returns the top limit results sorted by descending
// similarity.
func (m *MemoryStore) Search(ctx context.Context, scope memstore.Scope, query string, limit int, opts SearchOptions) ([]SearchResult, error) {
	qv := m.embedder.Embed(ctx, query)

	namespaces := scopeNamespaces(scope)
	var unionKeys []string
	if len(opts.ContextTypes) > 0 {
		for _, ns := range namespaces {
			for _, t := range opts.ContextTypes {
				unionKeys = append(unionKeys, m.keys.MemoriesByType(ns, t))
			}
		}
	} else {
		for _, ns := range namespaces {
			unionKeys = append(unionKeys, m.keys.MemoriesAll(ns))
		}
	}
	ids, err := m.store.SUnion(ctx, unionKeys...)
	if err != nil {
		return nil, memstore.NewTransient("failed to gather search candidates", err)
	}

	var re *regexp.Regexp
	if opts.Regex != "" {
		compiled, err := regexp.Compile("(?i)" + opts.Regex)
		if err != nil {
			logx.WithFields(logx.Fields{"component": "memstoresrv"}).WithError(err).Warn("ignoring unparseable search regex")
		} else {
			re = compiled
		}
	}

	queryWords := strings.Fields(strings.ToLower(query))

	// ids spans every requested namespace; dereference against each ns
	// concurrently (hybrid mode fans out to two) and rely on HGetAll
	// returning empty for ids that belong to a different namespace's hash
	// key.
	fns := make([]func(context.Context) ([]SearchResult, error), len(namespaces))
	for i, ns := range namespaces {
		ns := ns
		fns[i] = func(ctx context.Context) ([]SearchResult, error) {
			entries, err := m.dereference(ctx, ns, ids)
			if err != nil {
				return nil, err
			}
			var scored []SearchResult
			for _, entry := range entries {
				if opts.MinImportance != nil && entry.Importance < *opts.MinImportance {
					continue
				}
				if opts.Category != "" && entry.Category != opts.Category {
					continue
				}
				if re != nil && !re.MatchString(entry.Content) {
					continue
				}

				sim, err := memstore.CosineSimilarity(qv, entry.Embedding)
				if err != nil {
					continue
				}
				if opts.Fuzzy && len(queryWords) > 0 {
					sim += fuzzyBoost(queryWords, entry.Content)
					if sim > 1.0 {
						sim = 1.0
					}
				}
				if scope.Mode == memstore.ModeHybrid && entry.IsGlobal {
					sim *= memstore.GlobalBias
				}
				scored = append(scored, SearchResult{Memory: entry, Score: sim})
			}
			return scored, nil
		}
	}
	perNS, err := asyncx.All(ctx, fns...)
	if err != nil {
		return nil, err
	}
	var results []SearchResult
	for _, part := range perNS {
		results = append(results, part...)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func fuzzyBoost(queryWords []string, content string) float64 {
	lower := strings.ToLower(content)
	matched := 0
	for _, w := range queryWords {
		if w != "" && strings.Contains(lower, w) {
			matched++
		}
	}
	frac := float64(matched) / float64(len(queryWords))
	boost := frac * 0.2
	if boost > 0.2 {
		boost = 0.2
	}
	return boost
}

// GetRecent returns up to limit memories from scope's timeline, newest
// first.
func (m *MemoryStore) GetRecent(ctx context.Context, scope memstore.Scope, limit int) ([]memstore.MemoryEntry, error) {
	return m.readIndexPaged(ctx, scope, limit, m.keys.MemoriesTimeline)
}

// GetByType returns memories of a given type, newest first.
func (m *MemoryStore) GetByType(ctx context.Context, scope memstore.Scope, t memstore.ContextType, limit int) ([]memstore.MemoryEntry, error) {
	return m.readSetPaged(ctx, scope, limit, func(ns kernel.WorkspaceID) string {
		return m.keys.MemoriesByType(ns, t)
	})
}

// GetByTag returns memories carrying a given tag, newest first.
func (m *MemoryStore) GetByTag(ctx context.Context, scope memstore.Scope, tag string, limit int) ([]memstore.MemoryEntry, error) {
	return m.readSetPaged(ctx, scope, limit, func(ns kernel.WorkspaceID) string {
		return m.keys.MemoriesByTag(ns, tag)
	})
}

// GetImportant returns memories with importance >= minImportance, sorted by
// importance descending. It reads only the important index, which holds
// memories of importance >= 8, so a minImportance below 8 returns the same
// memories as 8.
func (m *MemoryStore) GetImportant(ctx context.Context, scope memstore.Scope, minImportance, limit int) ([]memstore.MemoryEntry, error) {
	namespaces := scopeNamespaces(scope)
	var all []memstore.MemoryEntry
	for _, ns := range namespaces {
		ids, err := m.store.ZRevRangeByScore(ctx, m.keys.MemoriesImportant(ns), float64(minImportance), 10)
		if err != nil {
			return nil, memstore.NewTransient("failed to read important index", err)
		}
		entries, err := m.dereference(ctx, ns, ids)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Importance > all[j].Importance })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// GetByTimeWindow returns memories whose timestamp falls in [startMs,
// endMs], sorted chronologically ascending, with the same type/importance
// filters as Search.
func (m *MemoryStore) GetByTimeWindow(ctx context.Context, scope memstore.Scope, startMs, endMs int64, opts SearchOptions) ([]memstore.MemoryEntry, error) {
	namespaces := scopeNamespaces(scope)
	var all []memstore.MemoryEntry
	for _, ns := range namespaces {
		ids, err := m.store.ZRangeByScore(ctx, m.keys.MemoriesTimeline(ns), float64(startMs), float64(endMs))
		if err != nil {
			return nil, memstore.NewTransient("failed to read timeline index", err)
		}
		entries, err := m.dereference(ctx, ns, ids)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if opts.MinImportance != nil && e.Importance < *opts.MinImportance {
				continue
			}
			if len(opts.ContextTypes) > 0 && !containsType(opts.ContextTypes, e.ContextType) {
				continue
			}
			all = append(all, e)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp < all[j].Timestamp })
	return all, nil
}

func containsType(types []memstore.ContextType, t memstore.ContextType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

// readIndexPaged reads a zset index newest-first via keyFor and
// dereferences it across every namespace the scope's mode selects.
func (m *MemoryStore) readIndexPaged(ctx context.Context, scope memstore.Scope, limit int, keyFor func(kernel.WorkspaceID) string) ([]memstore.MemoryEntry, error) {
	namespaces := scopeNamespaces(scope)
	var all []memstore.MemoryEntry
	for _, ns := range namespaces {
		ids, err := m.store.ZRevRange(ctx, keyFor(ns), 0, pageEnd(limit))
		if err != nil {
			return nil, memstore.NewTransient("failed to read index", err)
		}
		entries, err := m.dereference(ctx, ns, ids)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp > all[j].Timestamp })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// readSetPaged reads a plain membership set, dereferences, and sorts
// newest-first.
func (m *MemoryStore) readSetPaged(ctx context.Context, scope memstore.Scope, limit int, keyFor func(kernel.WorkspaceID) string) ([]memstore.MemoryEntry, error) {
	namespaces := scopeNamespaces(scope)
	var all []memstore.MemoryEntry
	for _, ns := range namespaces {
		ids, err := m.store.SMembers(ctx, keyFor(ns))
		if err != nil {
			return nil, memstore.NewTransient("failed to read index", err)
		}
		entries, err := m.dereference(ctx, ns, ids)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp > all[j].Timestamp })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func pageEnd(limit int) int64 {
	if limit <= 0 {
		return -1
	}
	return int64(limit - 1)
}

// Merge folds several memories into one survivor: keepID if present among
// ids, else the highest-importance entry (ties broken by first-seen
// order). The survivor's content gains a merged-content section, tags are
// unioned, and importance becomes the max across inputs; every other input
// is deleted.
func (m *MemoryStore) Merge(ctx context.Context, ws kernel.WorkspaceID, ids []string, keepID string) (*memstore.MemoryEntry, error) {
	var entries []memstore.MemoryEntry
	for _, id := range ids {
		e, err := m.Get(ctx, ws, id)
		if err != nil {
			return nil, err
		}
		if e != nil {
			entries = append(entries, *e)
		}
	}
	if len(entries) == 0 {
		return nil, memstore.NewNotFound("no mergeable memories found among given ids")
	}

	survivorIdx := -1
	if keepID != "" {
		for i, e := range entries {
			if e.ID == keepID {
				survivorIdx = i
				break
			}
		}
	}
	if survivorIdx == -1 {
		best := 0
		for i := 1; i < len(entries); i++ {
			if entries[i].Importance > entries[best].Importance {
				best = i
			}
		}
		survivorIdx = best
	}

	survivor := entries[survivorIdx]
	tagSet := map[string]struct{}{}
	for _, t := range survivor.Tags {
		tagSet[t] = struct{}{}
	}

	var mergedSections []string
	for i, e := range entries {
		if i == survivorIdx {
			continue
		}
		mergedSections = append(mergedSections, e.Content)
		for _, t := range e.Tags {
			tagSet[t] = struct{}{}
		}
		if e.Importance > survivor.Importance {
			survivor.Importance = e.Importance
		}
	}

	if len(mergedSections) > 0 {
		survivor.Content = survivor.Content + "\n\n--- Merged content ---\n" + strings.Join(mergedSections, "\n\n--- Merged content ---\n")
	}
	survivor.Tags = sortedKeys(tagSet)
	survivor.Embedding = m.embedder.Embed(ctx, survivor.Content)

	ns := targetNS(survivor)
	pipe := m.store.Pipeline()
	pipe.HSet(m.keys.Memory(ns, survivor.ID), memoryToFields(survivor))
	added, _ := diffTags(entries[survivorIdx].Tags, survivor.Tags)
	for _, tag := range added {
		pipe.SAdd(m.keys.MemoriesByTag(ns, tag), survivor.ID)
	}
	if survivor.Importance >= 8 {
		pipe.ZAdd(m.keys.MemoriesImportant(ns), float64(survivor.Importance), survivor.ID)
	}
	if err := pipe.Exec(ctx); err != nil {
		return nil, memstore.NewTransient("failed to persist merge survivor", err)
	}

	for i, e := range entries {
		if i == survivorIdx {
			continue
		}
		if err := m.deleteEntry(ctx, e); err != nil {
			return nil, err
		}
	}

	return &survivor, nil
}

// ConvertToGlobal moves a workspace memory into the global namespace,
// removing it from every workspace index and adding it to every global
// one in a single pipeline. Timestamp is preserved.
func (m *MemoryStore) ConvertToGlobal(ctx context.Context, ws kernel.WorkspaceID, id string) (*memstore.MemoryEntry, error) {
	entry, err := m.Get(ctx, ws, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, memstore.NewNotFound("memory not found: " + id)
	}
	if entry.IsGlobal {
		return entry, nil
	}
	converted := *entry
	converted.IsGlobal = true
	converted.WorkspaceID = ""
	return m.convertScope(ctx, *entry, converted)
}

// ConvertToWorkspace moves a global memory back into targetWS.
func (m *MemoryStore) ConvertToWorkspace(ctx context.Context, targetWS kernel.WorkspaceID, id string) (*memstore.MemoryEntry, error) {
	entry, err := m.Get(ctx, targetWS, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, memstore.NewNotFound("memory not found: " + id)
	}
	if !entry.IsGlobal {
		return entry, nil
	}
	converted := *entry
	converted.IsGlobal = false
	converted.WorkspaceID = targetWS
	return m.convertScope(ctx, *entry, converted)
}

func (m *MemoryStore) convertScope(ctx context.Context, from, to memstore.MemoryEntry) (*memstore.MemoryEntry, error) {
	sourceNS := targetNS(from)
	destNS := targetNS(to)

	pipe := m.store.Pipeline()
	pipe.SRem(m.keys.MemoriesAll(sourceNS), from.ID)
	pipe.ZRem(m.keys.MemoriesTimeline(sourceNS), from.ID)
	if from.ContextType != "" {
		pipe.SRem(m.keys.MemoriesByType(sourceNS, from.ContextType), from.ID)
	}
	for _, tag := range from.Tags {
		pipe.SRem(m.keys.MemoriesByTag(sourceNS, tag), from.ID)
	}
	if from.Importance >= 8 {
		pipe.ZRem(m.keys.MemoriesImportant(sourceNS), from.ID)
	}
	if from.Category != "" {
		pipe.SRem(m.keys.Category(sourceNS, from.Category), from.ID)
		pipe.Del(m.keys.CategoryOf(sourceNS, from.ID))
	}
	pipe.Del(m.keys.Memory(sourceNS, from.ID))

	pipe.HSet(m.keys.Memory(destNS, to.ID), memoryToFields(to))
	pipe.SAdd(m.keys.MemoriesAll(destNS), to.ID)
	pipe.ZAdd(m.keys.MemoriesTimeline(destNS), float64(to.Timestamp), to.ID)
	if to.ContextType != "" {
		pipe.SAdd(m.keys.MemoriesByType(destNS, to.ContextType), to.ID)
	}
	for _, tag := range to.Tags {
		pipe.SAdd(m.keys.MemoriesByTag(destNS, tag), to.ID)
	}
	if to.Importance >= 8 {
		pipe.ZAdd(m.keys.MemoriesImportant(destNS), float64(to.Importance), to.ID)
	}
	if to.Category != "" {
		pipe.SAdd(m.keys.Category(destNS, to.Category), to.ID)
	}

	if err := pipe.Exec(ctx); err != nil {
		return nil, memstore.NewTransient("failed to convert memory scope", err)
	}
	return &to, nil
}

// ReconcileExpiredIndices sweeps a namespace's membership/type/timeline/
// important indices, dropping ids whose hash is absent (expired). A
// maintenance hook for the same lazy reconciliation every read path
// already performs inline, run proactively across the whole namespace.
func (m *MemoryStore) ReconcileExpiredIndices(ctx context.Context, ws kernel.WorkspaceID) (int, error) {
	if ar, ok := m.store.(memstore.AtomicReconciler); ok {
		setKeys := make([]string, 0, len(allContextTypes()))
		for _, t := range allContextTypes() {
			setKeys = append(setKeys, m.keys.MemoriesByType(ws, t))
		}
		zsetKeys := []string{m.keys.MemoriesTimeline(ws), m.keys.MemoriesImportant(ws)}
		removed, err := ar.ReconcileExpired(ctx, m.keys.MemoriesAll(ws), m.keys.Memory(ws, ""), setKeys, zsetKeys)
		if err != nil {
			return 0, memstore.NewTransient("failed to reconcile expired indices", err)
		}
		return removed, nil
	}

	ids, err := m.store.SMembers(ctx, m.keys.MemoriesAll(ws))
	if err != nil {
		return 0, memstore.NewTransient("failed to list membership set", err)
	}

	// Bounded workers: each id costs an existence probe and, for expired
	// ones, a cleanup pipeline.
	dropped, err := asyncx.Pool(ctx, 8, ids, func(ctx context.Context, id string) (bool, error) {
		exists, err := m.store.Exists(ctx, m.keys.Memory(ws, id))
		if err != nil {
			return false, memstore.NewTransient("failed to check memory existence", err)
		}
		if exists {
			return false, nil
		}
		pipe := m.store.Pipeline()
		pipe.SRem(m.keys.MemoriesAll(ws), id)
		pipe.ZRem(m.keys.MemoriesTimeline(ws), id)
		pipe.ZRem(m.keys.MemoriesImportant(ws), id)
		for _, t := range allContextTypes() {
			pipe.SRem(m.keys.MemoriesByType(ws, t), id)
		}
		if err := pipe.Exec(ctx); err != nil {
			return false, memstore.NewTransient("failed to reconcile tombstone for "+id, err)
		}
		return true, nil
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, d := range dropped {
		if d {
			removed++
		}
	}
	return removed, nil
}

func allContextTypes() []memstore.ContextType {
	return []memstore.ContextType{
		memstore.ContextDirective, memstore.ContextInformation, memstore.ContextHeading,
		memstore.ContextDecision, memstore.ContextCodePattern, memstore.ContextRequirement,
		memstore.ContextError, memstore.ContextTodo, memstore.ContextInsight, memstore.ContextPreference,
	}
}

func dedupTags(tags []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func diffTags(old, updated []string) (added, removed []string) {
	oldSet := map[string]struct{}{}
	for _, t := range old {
		oldSet[t] = struct{}{}
	}
	newSet := map[string]struct{}{}
	for _, t := range updated {
		newSet[t] = struct{}{}
	}
	for t := range newSet {
		if _, ok := oldSet[t]; !ok {
			added = append(added, t)
		}
	}
	for t := range oldSet {
		if _, ok := newSet[t]; !ok {
			removed = append(removed, t)
		}
	}
	return added, removed
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
