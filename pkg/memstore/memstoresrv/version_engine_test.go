package memstoresrv

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/cortexdb/cortex/pkg/memstore"
	"github.com/cortexdb/cortex/pkg/ptrx"
)

// --- S6: rollback history -----------------------------------------------------

func TestRollbackHistory(t *testing.T) {
	ms, versions, clock := newTestMemoryStore(t)
	ctx := context.Background()
	ws := memstore.HashWorkspacePath("/tmp/proj")

	entry, err := ms.Create(ctx, WriteScope{Workspace: ws}, CreateMemoryRequest{Content: "v1", Importance: 5})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	clock.advance(time.Millisecond)
	if _, err := ms.Update(ctx, ws, entry.ID, UpdateMemoryRequest{Content: ptrx.String("v2")}); err != nil {
		t.Fatalf("update to v2: %v", err)
	}
	clock.advance(time.Millisecond)
	if _, err := ms.Update(ctx, ws, entry.ID, UpdateMemoryRequest{Content: ptrx.String("v3")}); err != nil {
		t.Fatalf("update to v3: %v", err)
	}

	history, err := versions.GetHistory(ctx, ws, entry.ID)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected history length 2 after two updates, got %d: %+v", len(history), history)
	}
	// newest first: the v1 snapshot (captured just before becoming v2) is
	// the oldest entry.
	v1VersionID := history[len(history)-1].VersionID
	if history[len(history)-1].Content != "v1" {
		t.Fatalf("expected oldest history entry to hold v1 content, got %q", history[len(history)-1].Content)
	}

	clock.advance(time.Millisecond)
	rolledBack, err := versions.Rollback(ctx, ws, entry.ID, v1VersionID, false)
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if rolledBack.Content != "v1" {
		t.Fatalf("expected content restored to v1, got %q", rolledBack.Content)
	}

	history, err = versions.GetHistory(ctx, ws, entry.ID)
	if err != nil {
		t.Fatalf("GetHistory after rollback: %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("expected history length 4 after rollback (2 + pre + post), got %d: %+v", len(history), history)
	}

	var sawPre, sawPost bool
	for _, v := range history {
		if v.CreatedBy != memstore.AuthorSystem {
			continue
		}
		if v.ChangeReason == "Before rollback to "+v1VersionID {
			sawPre = true
		}
		if v.ChangeReason == "Rolled back to "+v1VersionID {
			sawPost = true
		}
	}
	if !sawPre || !sawPost {
		t.Fatalf("expected both pre-rollback and post-rollback system versions, history=%+v", history)
	}
}

func TestVersionHistoryCappedAt50(t *testing.T) {
	ms, versions, clock := newTestMemoryStore(t)
	ctx := context.Background()
	ws := memstore.HashWorkspacePath("/tmp/proj")

	entry, err := ms.Create(ctx, WriteScope{Workspace: ws}, CreateMemoryRequest{Content: "v0", Importance: 5})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < 60; i++ {
		clock.advance(time.Millisecond)
		if _, err := ms.Update(ctx, ws, entry.ID, UpdateMemoryRequest{Content: ptrx.String("v" + strconv.Itoa(i))}); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}

	history, err := versions.GetHistory(ctx, ws, entry.ID)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) > 50 {
		t.Fatalf("expected history capped at 50, got %d", len(history))
	}
}

func TestRollbackNotFound(t *testing.T) {
	_, versions, _ := newTestMemoryStore(t)
	ctx := context.Background()
	ws := memstore.HashWorkspacePath("/tmp/proj")

	if _, err := versions.Rollback(ctx, ws, "nonexistent", "nonexistent-version", false); err == nil {
		t.Fatalf("expected NotFound error for rollback of nonexistent memory")
	}
}
