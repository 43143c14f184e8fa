package memstoresrv

import (
	"context"
	"testing"
	"time"

	"github.com/cortexdb/cortex/pkg/memstore"
	"github.com/cortexdb/cortex/pkg/memstore/memstoreinfra"
)

func newTestRelationshipEngine(t *testing.T) (*RelationshipEngine, *MemoryStore, *fixedClock) {
	t.Helper()
	store := memstoreinfra.NewInMemoryStorageClient()
	clock := newTestClock()
	embedder := memstore.NewEmbeddingBuilder(nil)
	versions := NewVersionEngine(store, clock)
	ms := NewMemoryStore(store, embedder, versions, clock)
	versions.Bind(ms)
	re := NewRelationshipEngine(store, ms, clock)
	return re, ms, clock
}

// --- S5: relationship graph with depth cap -----------------------------------

func TestGetGraphRespectsDepthCap(t *testing.T) {
	re, ms, clock := newTestRelationshipEngine(t)
	ctx := context.Background()
	ws := memstore.HashWorkspacePath("/tmp/proj")

	var ids []string
	for i := 0; i < 5; i++ {
		e, err := ms.Create(ctx, WriteScope{Workspace: ws}, CreateMemoryRequest{Content: "m", Importance: 4})
		if err != nil {
			t.Fatalf("create m%d: %v", i, err)
		}
		ids = append(ids, e.ID)
		clock.advance(time.Millisecond)
	}

	for i := 0; i < len(ids)-1; i++ {
		if _, err := re.CreateRelationship(ctx, ws, ids[i], ids[i+1], memstore.RelParentOf, nil); err != nil {
			t.Fatalf("CreateRelationship %d->%d: %v", i, i+1, err)
		}
	}

	graph, err := re.GetGraph(ctx, ws, ids[0], 2, 50)
	if err != nil {
		t.Fatalf("GetGraph: %v", err)
	}
	if graph.TotalNodes != 3 {
		t.Fatalf("expected exactly 3 nodes (m1@0,m2@1,m3@2), got %d: %v", graph.TotalNodes, graph.Nodes)
	}
	for i, wantDepth := range map[int]int{0: 0, 1: 1, 2: 2} {
		node, ok := graph.Nodes[ids[i]]
		if !ok {
			t.Fatalf("expected node %s present in graph", ids[i])
		}
		if node.Depth != wantDepth {
			t.Fatalf("node %d: expected depth %d, got %d", i, wantDepth, node.Depth)
		}
	}
	for _, absent := range []string{ids[3], ids[4]} {
		if _, ok := graph.Nodes[absent]; ok {
			t.Fatalf("expected node %s absent beyond depth cap", absent)
		}
	}
	if graph.MaxDepthReached != 2 {
		t.Fatalf("expected MaxDepthReached=2, got %d", graph.MaxDepthReached)
	}
}

func TestCreateRelationshipIdempotent(t *testing.T) {
	re, ms, _ := newTestRelationshipEngine(t)
	ctx := context.Background()
	ws := memstore.HashWorkspacePath("/tmp/proj")

	a, err := ms.Create(ctx, WriteScope{Workspace: ws}, CreateMemoryRequest{Content: "a", Importance: 4})
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := ms.Create(ctx, WriteScope{Workspace: ws}, CreateMemoryRequest{Content: "b", Importance: 4})
	if err != nil {
		t.Fatalf("create b: %v", err)
	}

	rel1, err := re.CreateRelationship(ctx, ws, a.ID, b.ID, memstore.RelRelatesTo, nil)
	if err != nil {
		t.Fatalf("first CreateRelationship: %v", err)
	}
	rel2, err := re.CreateRelationship(ctx, ws, a.ID, b.ID, memstore.RelRelatesTo, nil)
	if err != nil {
		t.Fatalf("second CreateRelationship: %v", err)
	}
	if rel1.ID != rel2.ID {
		t.Fatalf("expected idempotent relationship id, got %s and %s", rel1.ID, rel2.ID)
	}

	edges, err := re.GetMemoryRelationships(ctx, ws, a.ID, DirectionOut)
	if err != nil {
		t.Fatalf("GetMemoryRelationships: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("expected exactly one outgoing edge after repeated create, got %d", len(edges))
	}
}

func TestCreateRelationshipRejectsSelfLoop(t *testing.T) {
	re, ms, _ := newTestRelationshipEngine(t)
	ctx := context.Background()
	ws := memstore.HashWorkspacePath("/tmp/proj")

	a, err := ms.Create(ctx, WriteScope{Workspace: ws}, CreateMemoryRequest{Content: "a", Importance: 4})
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	if _, err := re.CreateRelationship(ctx, ws, a.ID, a.ID, memstore.RelRelatesTo, nil); err == nil {
		t.Fatalf("expected self-loop to be rejected")
	}
}

func TestGetRelatedNeverEmitsRootOrDuplicates(t *testing.T) {
	re, ms, clock := newTestRelationshipEngine(t)
	ctx := context.Background()
	ws := memstore.HashWorkspacePath("/tmp/proj")

	a, _ := ms.Create(ctx, WriteScope{Workspace: ws}, CreateMemoryRequest{Content: "a", Importance: 4})
	clock.advance(time.Millisecond)
	b, _ := ms.Create(ctx, WriteScope{Workspace: ws}, CreateMemoryRequest{Content: "b", Importance: 4})
	clock.advance(time.Millisecond)
	c, _ := ms.Create(ctx, WriteScope{Workspace: ws}, CreateMemoryRequest{Content: "c", Importance: 4})

	// a->b, a->c, b->c: c reachable via two paths, must appear once.
	if _, err := re.CreateRelationship(ctx, ws, a.ID, b.ID, memstore.RelRelatesTo, nil); err != nil {
		t.Fatalf("a->b: %v", err)
	}
	if _, err := re.CreateRelationship(ctx, ws, a.ID, c.ID, memstore.RelRelatesTo, nil); err != nil {
		t.Fatalf("a->c: %v", err)
	}
	if _, err := re.CreateRelationship(ctx, ws, b.ID, c.ID, memstore.RelRelatesTo, nil); err != nil {
		t.Fatalf("b->c: %v", err)
	}

	entries, err := re.GetRelated(ctx, ws, a.ID, 5, DirectionOut, nil)
	if err != nil {
		t.Fatalf("GetRelated: %v", err)
	}
	seen := map[string]int{}
	for _, e := range entries {
		seen[e.Memory.ID]++
		if e.Memory.ID == a.ID {
			t.Fatalf("root must never be emitted")
		}
	}
	if seen[c.ID] != 1 {
		t.Fatalf("expected c visited exactly once, got %d", seen[c.ID])
	}
	if seen[b.ID] != 1 {
		t.Fatalf("expected b visited exactly once, got %d", seen[b.ID])
	}
}

func TestDeleteRelationship(t *testing.T) {
	re, ms, _ := newTestRelationshipEngine(t)
	ctx := context.Background()
	ws := memstore.HashWorkspacePath("/tmp/proj")

	a, _ := ms.Create(ctx, WriteScope{Workspace: ws}, CreateMemoryRequest{Content: "a", Importance: 4})
	b, _ := ms.Create(ctx, WriteScope{Workspace: ws}, CreateMemoryRequest{Content: "b", Importance: 4})
	rel, err := re.CreateRelationship(ctx, ws, a.ID, b.ID, memstore.RelReferences, nil)
	if err != nil {
		t.Fatalf("CreateRelationship: %v", err)
	}

	ok, err := re.DeleteRelationship(ctx, ws, rel.ID)
	if err != nil || !ok {
		t.Fatalf("DeleteRelationship: ok=%v err=%v", ok, err)
	}

	edges, err := re.GetMemoryRelationships(ctx, ws, a.ID, DirectionOut)
	if err != nil {
		t.Fatalf("GetMemoryRelationships: %v", err)
	}
	if len(edges) != 0 {
		t.Fatalf("expected no outgoing edges after delete, got %v", edges)
	}
}
