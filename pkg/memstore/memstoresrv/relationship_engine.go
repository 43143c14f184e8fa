package memstoresrv

import (
	"context"

	"github.com/cortexdb/cortex/pkg/kernel"
	"github.com/cortexdb/cortex/pkg/memstore"
)

// Direction selects which edges a traversal follows from a node.
type Direction string

const (
	DirectionOut  Direction = "out"
	DirectionIn   Direction = "in"
	DirectionBoth Direction = "both"
)

// RelationshipEngine owns the typed-edge graph between memories: creation,
// lookup, bounded breadth-first traversal, and deletion. Traversal follows
// the same visited-set BFS idiom as a conversational graph memory walk —
// a queue of frontier ids, expanded one hop at a time, never revisiting
// an id already seen.
type RelationshipEngine struct {
	store    memstore.StorageClient
	keys     memstore.KeyScheme
	clock    Clock
	memStore *MemoryStore
}

// NewRelationshipEngine wires a RelationshipEngine over the given backend.
func NewRelationshipEngine(store memstore.StorageClient, memStore *MemoryStore, clock Clock) *RelationshipEngine {
	if clock == nil {
		clock = SystemClock
	}
	return &RelationshipEngine{store: store, keys: memstore.KeyScheme{}, clock: clock, memStore: memStore}
}

// CreateRelationship adds a typed directed edge from one memory to
// another. Self-loops are rejected. The edge is scoped global only when
// both endpoints are global; otherwise it lives in the workspace that
// hosts the non-global endpoint (or the caller's ws when both are
// workspace-scoped, which must agree with that workspace). Creating the
// same (from, to, type) edge twice is idempotent: the existing edge is
// returned rather than duplicated.
func (r *RelationshipEngine) CreateRelationship(ctx context.Context, ws kernel.WorkspaceID, fromID, toID string, relType memstore.RelationshipType, metadata map[string]any) (*memstore.MemoryRelationship, error) {
	if fromID == toID {
		return nil, memstore.NewInvalidInput("a memory cannot relate to itself")
	}
	if !validRelType(relType) {
		return nil, memstore.NewInvalidInput("unknown relationship_type: " + string(relType))
	}

	from, err := r.memStore.Get(ctx, ws, fromID)
	if err != nil {
		return nil, err
	}
	if from == nil {
		return nil, memstore.NewNotFound("memory not found: " + fromID)
	}
	to, err := r.memStore.Get(ctx, ws, toID)
	if err != nil {
		return nil, err
	}
	if to == nil {
		return nil, memstore.NewNotFound("memory not found: " + toID)
	}

	edgeNS := kernel.NewWorkspaceID("")
	if !from.IsGlobal || !to.IsGlobal {
		edgeNS = ws
	}

	existing, err := r.findExisting(ctx, edgeNS, fromID, toID, relType)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := r.clock.Now()
	rel := memstore.MemoryRelationship{
		ID:               newRelationshipID(now),
		FromMemoryID:     fromID,
		ToMemoryID:       toID,
		RelationshipType: relType,
		CreatedAt:        now,
		Metadata:         metadata,
	}

	pipe := r.store.Pipeline()
	pipe.HSet(r.keys.Relationship(edgeNS, rel.ID), relationshipToFields(rel))
	pipe.SAdd(r.keys.RelationshipsAll(edgeNS), rel.ID)
	pipe.SAdd(r.keys.MemoryRelationshipsOut(edgeNS, fromID), rel.ID)
	pipe.SAdd(r.keys.MemoryRelationshipsIn(edgeNS, toID), rel.ID)
	if err := pipe.Exec(ctx); err != nil {
		return nil, memstore.NewTransient("failed to persist relationship", err)
	}
	return &rel, nil
}

func (r *RelationshipEngine) findExisting(ctx context.Context, ns kernel.WorkspaceID, fromID, toID string, relType memstore.RelationshipType) (*memstore.MemoryRelationship, error) {
	ids, err := r.store.SMembers(ctx, r.keys.MemoryRelationshipsOut(ns, fromID))
	if err != nil {
		return nil, memstore.NewTransient("failed to read outgoing relationship index", err)
	}
	for _, id := range ids {
		fields, err := r.store.HGetAll(ctx, r.keys.Relationship(ns, id))
		if err != nil {
			return nil, memstore.NewTransient("failed to read relationship "+id, err)
		}
		if len(fields) == 0 {
			continue
		}
		rel, err := fieldsToRelationship(fields)
		if err != nil {
			return nil, err
		}
		if rel.ToMemoryID == toID && rel.RelationshipType == relType {
			return &rel, nil
		}
	}
	return nil, nil
}

// GetMemoryRelationships returns the edges touching memoryID in the given
// direction.
func (r *RelationshipEngine) GetMemoryRelationships(ctx context.Context, ws kernel.WorkspaceID, memoryID string, dir Direction) ([]memstore.MemoryRelationship, error) {
	var ids []string
	if dir == DirectionOut || dir == DirectionBoth {
		out, err := r.store.SMembers(ctx, r.keys.MemoryRelationshipsOut(ws, memoryID))
		if err != nil {
			return nil, memstore.NewTransient("failed to read outgoing relationship index", err)
		}
		ids = append(ids, out...)
	}
	if dir == DirectionIn || dir == DirectionBoth {
		in, err := r.store.SMembers(ctx, r.keys.MemoryRelationshipsIn(ws, memoryID))
		if err != nil {
			return nil, memstore.NewTransient("failed to read incoming relationship index", err)
		}
		ids = append(ids, in...)
	}

	out := make([]memstore.MemoryRelationship, 0, len(ids))
	for _, id := range ids {
		fields, err := r.store.HGetAll(ctx, r.keys.Relationship(ws, id))
		if err != nil {
			return nil, memstore.NewTransient("failed to read relationship "+id, err)
		}
		if len(fields) == 0 {
			continue
		}
		rel, err := fieldsToRelationship(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, nil
}

// TraversalEntry is one step discovered by Traverse: the memory found,
// the edge that led to it, and its hop distance from the start.
type TraversalEntry struct {
	Memory memstore.MemoryEntry
	Edge   memstore.MemoryRelationship
	Depth  int
}

// GetRelated walks the relationship graph breadth-first from startID up to
// maxDepth hops (clamped to [1, 5]), optionally restricted to relTypes,
// and returns every memory reached along with the edge that discovered it.
// Never emits the root and never emits the same memory twice.
func (r *RelationshipEngine) GetRelated(ctx context.Context, ws kernel.WorkspaceID, startID string, maxDepth int, dir Direction, relTypes []memstore.RelationshipType) ([]TraversalEntry, error) {
	if maxDepth < 1 {
		maxDepth = 1
	}
	if maxDepth > 5 {
		maxDepth = 5
	}

	visited := map[string]struct{}{startID: {}}
	type frontierItem struct {
		id    string
		depth int
	}
	queue := []frontierItem{{id: startID, depth: 0}}

	var results []TraversalEntry
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current.depth >= maxDepth {
			continue
		}

		edges, err := r.GetMemoryRelationships(ctx, ws, current.id, dir)
		if err != nil {
			return nil, err
		}
		for _, edge := range edges {
			if len(relTypes) > 0 && !containsRelType(relTypes, edge.RelationshipType) {
				continue
			}
			neighbor := edge.ToMemoryID
			if neighbor == current.id {
				neighbor = edge.FromMemoryID
			}
			if neighbor == current.id {
				continue
			}
			if _, seen := visited[neighbor]; seen {
				continue
			}
			visited[neighbor] = struct{}{}

			mem, err := r.memStore.Get(ctx, ws, neighbor)
			if err != nil {
				return nil, err
			}
			if mem == nil {
				continue
			}
			results = append(results, TraversalEntry{Memory: *mem, Edge: edge, Depth: current.depth + 1})
			queue = append(queue, frontierItem{id: neighbor, depth: current.depth + 1})
		}
	}
	return results, nil
}

// GraphNode is one memory and its outbound/inbound edges within GetGraph's
// bounded traversal.
type GraphNode struct {
	Memory memstore.MemoryEntry
	Edges  []memstore.MemoryRelationship
	Depth  int
}

// Graph is the bounded neighborhood of a memory returned by GetGraph.
type Graph struct {
	Root            string
	Nodes           map[string]GraphNode
	TotalNodes      int
	MaxDepthReached int
}

// GetGraph returns the bounded neighborhood around rootID: every memory
// reachable within maxDepth hops (clamped to [1, 3]) up to maxNodes
// (clamped to [1, 100]) total nodes, breadth-first so the nodes kept when
// the cap is hit are always the closest ones.
func (r *RelationshipEngine) GetGraph(ctx context.Context, ws kernel.WorkspaceID, rootID string, maxDepth, maxNodes int) (*Graph, error) {
	if maxDepth < 1 {
		maxDepth = 1
	}
	if maxDepth > 3 {
		maxDepth = 3
	}
	if maxNodes < 1 {
		maxNodes = 1
	}
	if maxNodes > 100 {
		maxNodes = 100
	}

	root, err := r.memStore.Get(ctx, ws, rootID)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, memstore.NewNotFound("memory not found: " + rootID)
	}

	graph := &Graph{Root: rootID, Nodes: map[string]GraphNode{}}
	visited := map[string]struct{}{rootID: {}}
	queue := []string{rootID}
	depths := map[string]int{rootID: 0}

	for len(queue) > 0 && len(graph.Nodes) < maxNodes {
		current := queue[0]
		queue = queue[1:]
		depth := depths[current]

		edges, err := r.GetMemoryRelationships(ctx, ws, current, DirectionBoth)
		if err != nil {
			return nil, err
		}

		mem := root
		if current != rootID {
			mem, err = r.memStore.Get(ctx, ws, current)
			if err != nil {
				return nil, err
			}
			if mem == nil {
				continue
			}
		}
		graph.Nodes[current] = GraphNode{Memory: *mem, Edges: edges, Depth: depth}
		if depth > graph.MaxDepthReached {
			graph.MaxDepthReached = depth
		}

		if depth >= maxDepth {
			continue
		}
		for _, edge := range edges {
			neighbor := edge.ToMemoryID
			if neighbor == current {
				neighbor = edge.FromMemoryID
			}
			if neighbor == current {
				continue
			}
			if _, seen := visited[neighbor]; seen {
				continue
			}
			visited[neighbor] = struct{}{}
			depths[neighbor] = depth + 1
			queue = append(queue, neighbor)
		}
	}

	graph.TotalNodes = len(graph.Nodes)
	return graph, nil
}

// DeleteRelationship removes an edge stored in ws's namespace, reporting
// false when no such edge is found there.
func (r *RelationshipEngine) DeleteRelationship(ctx context.Context, ws kernel.WorkspaceID, relationshipID string) (bool, error) {
	fields, err := r.store.HGetAll(ctx, r.keys.Relationship(ws, relationshipID))
	if err != nil {
		return false, memstore.NewTransient("failed to read relationship "+relationshipID, err)
	}
	if len(fields) == 0 {
		return false, nil
	}
	rel, err := fieldsToRelationship(fields)
	if err != nil {
		return false, err
	}

	pipe := r.store.Pipeline()
	pipe.SRem(r.keys.RelationshipsAll(ws), rel.ID)
	pipe.SRem(r.keys.MemoryRelationshipsOut(ws, rel.FromMemoryID), rel.ID)
	pipe.SRem(r.keys.MemoryRelationshipsIn(ws, rel.ToMemoryID), rel.ID)
	pipe.Del(r.keys.Relationship(ws, rel.ID))
	if err := pipe.Exec(ctx); err != nil {
		return false, memstore.NewTransient("failed to delete relationship "+relationshipID, err)
	}
	return true, nil
}

func validRelType(t memstore.RelationshipType) bool {
	switch t {
	case memstore.RelRelatesTo, memstore.RelParentOf, memstore.RelChildOf, memstore.RelReferences,
		memstore.RelSupersedes, memstore.RelImplements, memstore.RelExampleOf:
		return true
	}
	return false
}

func containsRelType(types []memstore.RelationshipType, t memstore.RelationshipType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}
