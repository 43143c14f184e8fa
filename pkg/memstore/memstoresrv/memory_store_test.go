package memstoresrv

import (
	"context"
	"testing"
	"time"

	"github.com/cortexdb/cortex/pkg/kernel"
	"github.com/cortexdb/cortex/pkg/memstore"
	"github.com/cortexdb/cortex/pkg/memstore/memstoreinfra"
	"github.com/cortexdb/cortex/pkg/ptrx"
)

// fixedClock lets tests assert on exact timestamps and advance time
// deterministically between operations.
type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }
func (c *fixedClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestClock() *fixedClock {
	return &fixedClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func newTestMemoryStore(t *testing.T) (*MemoryStore, *VersionEngine, *fixedClock) {
	t.Helper()
	store := memstoreinfra.NewInMemoryStorageClient()
	clock := newTestClock()
	embedder := memstore.NewEmbeddingBuilder(nil)
	versions := NewVersionEngine(store, clock)
	ms := NewMemoryStore(store, embedder, versions, clock)
	versions.Bind(ms)
	return ms, versions, clock
}

func wsScope(ws kernel.WorkspaceID) memstore.Scope {
	return memstore.Scope{Workspace: ws, Mode: memstore.ModeIsolated}
}

// --- S1: create, search, delete --------------------------------------------

func TestCreateSearchDelete(t *testing.T) {
	ms, _, _ := newTestMemoryStore(t)
	ctx := context.Background()
	ws := memstore.HashWorkspacePath("/tmp/proj")

	entry, err := ms.Create(ctx, WriteScope{Workspace: ws}, CreateMemoryRequest{
		ContextType: memstore.ContextDirective,
		Content:     "Always use ULIDs for IDs",
		Importance:  9,
		Tags:        []string{"id", "conv"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if entry.IsGlobal {
		t.Fatalf("expected workspace-scoped entry")
	}
	if entry.WorkspaceID != ws {
		t.Fatalf("got workspace id %q want %q", entry.WorkspaceID, ws)
	}

	important, err := ms.GetImportant(ctx, wsScope(ws), 8, 10)
	if err != nil {
		t.Fatalf("GetImportant: %v", err)
	}
	if len(important) != 1 || important[0].ID != entry.ID {
		t.Fatalf("expected entry in important index, got %+v", important)
	}

	byType, err := ms.GetByType(ctx, wsScope(ws), memstore.ContextDirective, 10)
	if err != nil {
		t.Fatalf("GetByType: %v", err)
	}
	if len(byType) != 1 || byType[0].ID != entry.ID {
		t.Fatalf("expected entry in by-type index, got %+v", byType)
	}

	byTag, err := ms.GetByTag(ctx, wsScope(ws), "id", 10)
	if err != nil {
		t.Fatalf("GetByTag: %v", err)
	}
	if len(byTag) != 1 || byTag[0].ID != entry.ID {
		t.Fatalf("expected entry in by-tag index, got %+v", byTag)
	}

	results, err := ms.Search(ctx, wsScope(ws), "use unique identifiers", 5, SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Score <= 0 {
		t.Fatalf("expected one positive-similarity search result, got %+v", results)
	}

	ok, err := ms.Delete(ctx, ws, entry.ID)
	if err != nil || !ok {
		t.Fatalf("Delete: ok=%v err=%v", ok, err)
	}

	for name, check := range map[string]func() (int, error){
		"important": func() (int, error) { r, e := ms.GetImportant(ctx, wsScope(ws), 8, 10); return len(r), e },
		"byType":    func() (int, error) { r, e := ms.GetByType(ctx, wsScope(ws), memstore.ContextDirective, 10); return len(r), e },
		"byTag":     func() (int, error) { r, e := ms.GetByTag(ctx, wsScope(ws), "id", 10); return len(r), e },
		"search":    func() (int, error) { r, e := ms.Search(ctx, wsScope(ws), "use unique identifiers", 5, SearchOptions{}); return len(r), e },
	} {
		n, err := check()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if n != 0 {
			t.Fatalf("%s: expected empty after delete, got %d", name, n)
		}
	}
}

// --- S2: scope conversion round-trip -----------------------------------------

func TestScopeConversionRoundTrip(t *testing.T) {
	ms, _, _ := newTestMemoryStore(t)
	ctx := context.Background()
	ws := memstore.HashWorkspacePath("/tmp/proj")

	entry, err := ms.Create(ctx, WriteScope{Workspace: ws}, CreateMemoryRequest{
		ContextType: memstore.ContextInsight,
		Content:     "some insight",
		Importance:  5,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	originalTimestamp := entry.Timestamp

	global, err := ms.ConvertToGlobal(ctx, ws, entry.ID)
	if err != nil {
		t.Fatalf("ConvertToGlobal: %v", err)
	}
	if !global.IsGlobal || global.WorkspaceID != "" {
		t.Fatalf("expected global entry, got %+v", global)
	}

	allGlobal, err := ms.GetRecent(ctx, memstore.Scope{Mode: memstore.ModeGlobal}, 10)
	if err != nil {
		t.Fatalf("GetRecent(global): %v", err)
	}
	if len(allGlobal) != 1 || allGlobal[0].ID != entry.ID {
		t.Fatalf("expected entry present in global:memories:all, got %+v", allGlobal)
	}

	allWorkspace, err := ms.GetRecent(ctx, wsScope(ws), 10)
	if err != nil {
		t.Fatalf("GetRecent(workspace): %v", err)
	}
	if len(allWorkspace) != 0 {
		t.Fatalf("expected entry absent from workspace index, got %+v", allWorkspace)
	}

	back, err := ms.ConvertToWorkspace(ctx, ws, entry.ID)
	if err != nil {
		t.Fatalf("ConvertToWorkspace: %v", err)
	}
	if back.IsGlobal || back.WorkspaceID != ws {
		t.Fatalf("expected restored workspace scope, got %+v", back)
	}
	if back.Timestamp != originalTimestamp {
		t.Fatalf("timestamp changed across conversion round-trip: %d != %d", back.Timestamp, originalTimestamp)
	}
}

// --- S3: merge chooses highest importance ------------------------------------

func TestMergeChoosesHighestImportance(t *testing.T) {
	ms, _, clock := newTestMemoryStore(t)
	ctx := context.Background()
	ws := memstore.HashWorkspacePath("/tmp/proj")

	m1, err := ms.Create(ctx, WriteScope{Workspace: ws}, CreateMemoryRequest{Content: "m1 content", Importance: 5, Tags: []string{"a"}})
	if err != nil {
		t.Fatalf("create m1: %v", err)
	}
	clock.advance(time.Millisecond)
	m2, err := ms.Create(ctx, WriteScope{Workspace: ws}, CreateMemoryRequest{Content: "m2 content", Importance: 8, Tags: []string{"b"}})
	if err != nil {
		t.Fatalf("create m2: %v", err)
	}
	clock.advance(time.Millisecond)
	m3, err := ms.Create(ctx, WriteScope{Workspace: ws}, CreateMemoryRequest{Content: "m3 content", Importance: 3, Tags: []string{"a", "c"}})
	if err != nil {
		t.Fatalf("create m3: %v", err)
	}

	survivor, err := ms.Merge(ctx, ws, []string{m1.ID, m2.ID, m3.ID}, "")
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if survivor.ID != m2.ID {
		t.Fatalf("expected survivor m2, got %s", survivor.ID)
	}
	wantContent := "m2 content\n\n--- Merged content ---\nm1 content\n\n--- Merged content ---\nm3 content"
	if survivor.Content != wantContent {
		t.Fatalf("merged content mismatch:\ngot:  %q\nwant: %q", survivor.Content, wantContent)
	}

	tagSet := map[string]bool{}
	for _, tg := range survivor.Tags {
		tagSet[tg] = true
	}
	for _, want := range []string{"a", "b", "c"} {
		if !tagSet[want] {
			t.Fatalf("expected tag %q in survivor tags %v", want, survivor.Tags)
		}
	}
	if len(survivor.Tags) != 3 {
		t.Fatalf("expected exactly 3 tags, got %v", survivor.Tags)
	}

	for _, deadID := range []string{m1.ID, m3.ID} {
		got, err := ms.Get(ctx, ws, deadID)
		if err != nil {
			t.Fatalf("Get(%s): %v", deadID, err)
		}
		if got != nil {
			t.Fatalf("expected %s deleted after merge", deadID)
		}
	}
}

// --- S4: hybrid bias ----------------------------------------------------------

func TestHybridBiasFavorsWorkspace(t *testing.T) {
	ms, _, clock := newTestMemoryStore(t)
	ctx := context.Background()
	ws := memstore.HashWorkspacePath("/tmp/proj")

	local, err := ms.Create(ctx, WriteScope{Workspace: ws}, CreateMemoryRequest{Content: "shared identical payload text", Importance: 5})
	if err != nil {
		t.Fatalf("create local: %v", err)
	}
	clock.advance(time.Millisecond)
	global, err := ms.Create(ctx, WriteScope{Global: true}, CreateMemoryRequest{Content: "shared identical payload text", Importance: 5})
	if err != nil {
		t.Fatalf("create global: %v", err)
	}

	results, err := ms.Search(ctx, memstore.Scope{Workspace: ws, Mode: memstore.ModeHybrid}, "shared identical payload text", 10, SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected both entries to match, got %d", len(results))
	}

	var localScore, globalScore float64
	for _, r := range results {
		if r.Memory.ID == local.ID {
			localScore = r.Score
		}
		if r.Memory.ID == global.ID {
			globalScore = r.Score
		}
	}
	if localScore <= globalScore {
		t.Fatalf("expected workspace entry to outrank global one: local=%v global=%v", localScore, globalScore)
	}
	if results[0].Memory.ID != local.ID {
		t.Fatalf("expected workspace entry ranked first, got %s", results[0].Memory.ID)
	}
}

// --- Universal invariants ----------------------------------------------------

func TestTagIndexInvariant(t *testing.T) {
	ms, _, _ := newTestMemoryStore(t)
	ctx := context.Background()
	ws := memstore.HashWorkspacePath("/tmp/proj")

	entry, err := ms.Create(ctx, WriteScope{Workspace: ws}, CreateMemoryRequest{
		Content: "x", Importance: 4, Tags: []string{"keep", "drop"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = ms.Update(ctx, ws, entry.ID, UpdateMemoryRequest{Tags: []string{"keep", "added"}})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	for tag, want := range map[string]bool{"keep": true, "added": true, "drop": false} {
		got, err := ms.GetByTag(ctx, wsScope(ws), tag, 10)
		if err != nil {
			t.Fatalf("GetByTag(%s): %v", tag, err)
		}
		present := len(got) == 1 && got[0].ID == entry.ID
		if present != want {
			t.Fatalf("tag %q: present=%v want=%v", tag, present, want)
		}
	}
}

func TestImportantIndexInvariant(t *testing.T) {
	ms, _, _ := newTestMemoryStore(t)
	ctx := context.Background()
	ws := memstore.HashWorkspacePath("/tmp/proj")

	low, err := ms.Create(ctx, WriteScope{Workspace: ws}, CreateMemoryRequest{Content: "low", Importance: 3})
	if err != nil {
		t.Fatalf("create low: %v", err)
	}
	high, err := ms.Create(ctx, WriteScope{Workspace: ws}, CreateMemoryRequest{Content: "high", Importance: 8})
	if err != nil {
		t.Fatalf("create high: %v", err)
	}

	important, err := ms.GetImportant(ctx, wsScope(ws), 8, 10)
	if err != nil {
		t.Fatalf("GetImportant: %v", err)
	}
	ids := map[string]bool{}
	for _, e := range important {
		ids[e.ID] = true
	}
	if !ids[high.ID] || ids[low.ID] {
		t.Fatalf("important index wrong: got ids %v", ids)
	}

	// crossing the threshold downward removes it; upward adds it.
	if _, err := ms.Update(ctx, ws, high.ID, UpdateMemoryRequest{Importance: ptrx.Int(2)}); err != nil {
		t.Fatalf("Update high down: %v", err)
	}
	if _, err := ms.Update(ctx, ws, low.ID, UpdateMemoryRequest{Importance: ptrx.Int(9)}); err != nil {
		t.Fatalf("Update low up: %v", err)
	}

	important, err = ms.GetImportant(ctx, wsScope(ws), 8, 10)
	if err != nil {
		t.Fatalf("GetImportant after updates: %v", err)
	}
	ids = map[string]bool{}
	for _, e := range important {
		ids[e.ID] = true
	}
	if ids[high.ID] || !ids[low.ID] {
		t.Fatalf("important index did not follow importance crossing: %v", ids)
	}
}

func TestEmbeddingIsL2Normalized(t *testing.T) {
	b := memstore.NewEmbeddingBuilder(nil)
	v := b.Embed(context.Background(), "some reasonably long piece of content to embed")
	if len(v) != memstore.EmbeddingSize {
		t.Fatalf("expected embedding of length %d, got %d", memstore.EmbeddingSize, len(v))
	}
	total := 0.0
	for _, x := range v {
		total += float64(x) * float64(x)
	}
	if total < 1-1e-6 || total > 1+1e-6 {
		t.Fatalf("expected L2-normalized vector (sum of squares ~1), got %v", total)
	}
}

func TestTimeWindowOrdering(t *testing.T) {
	ms, _, clock := newTestMemoryStore(t)
	ctx := context.Background()
	ws := memstore.HashWorkspacePath("/tmp/proj")

	start := clock.now.UnixMilli()
	var ids []string
	for i := 0; i < 5; i++ {
		e, err := ms.Create(ctx, WriteScope{Workspace: ws}, CreateMemoryRequest{Content: "entry", Importance: 4})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, e.ID)
		clock.advance(time.Second)
	}
	end := clock.now.UnixMilli()

	window, err := ms.GetByTimeWindow(ctx, wsScope(ws), start, end, SearchOptions{})
	if err != nil {
		t.Fatalf("GetByTimeWindow: %v", err)
	}
	if len(window) != 5 {
		t.Fatalf("expected all 5 entries in window, got %d", len(window))
	}
	for i := 1; i < len(window); i++ {
		if window[i-1].Timestamp > window[i].Timestamp {
			t.Fatalf("expected ascending timestamp order, got %+v", window)
		}
	}
}

func TestRejectsInvalidCreate(t *testing.T) {
	ms, _, _ := newTestMemoryStore(t)
	ctx := context.Background()
	ws := memstore.HashWorkspacePath("/tmp/proj")

	cases := []CreateMemoryRequest{
		{Content: "", Importance: 5},
		{Content: "ok", Importance: 0},
		{Content: "ok", Importance: 11},
	}
	for _, c := range cases {
		if _, err := ms.Create(ctx, WriteScope{Workspace: ws}, c); err == nil {
			t.Fatalf("expected validation error for %+v", c)
		}
	}

	if _, err := ms.Create(ctx, WriteScope{Workspace: ws}, CreateMemoryRequest{Content: "ok", Importance: 5, TTLSeconds: ptrx.Int(10)}); err == nil {
		t.Fatalf("expected ttl<60 to be rejected")
	}
}
