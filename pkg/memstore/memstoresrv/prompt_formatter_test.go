package memstoresrv

import (
	"strings"
	"testing"

	"github.com/cortexdb/cortex/pkg/memstore"
)

func TestFormatWorkspaceContextGroupsByType(t *testing.T) {
	f := NewPromptFormatter()
	out := f.FormatWorkspaceContext([]memstore.MemoryEntry{
		{ContextType: memstore.ContextDirective, Content: "use ULIDs", Importance: 9, Tags: []string{"id"}},
		{ContextType: memstore.ContextDecision, Content: "picked redis", Importance: 7},
	})
	if !strings.Contains(out, "directive") || !strings.Contains(out, "decision") {
		t.Fatalf("expected both context type headings present, got:\n%s", out)
	}
	if !strings.Contains(out, "use ULIDs") || !strings.Contains(out, "(id)") {
		t.Fatalf("expected content and tags rendered, got:\n%s", out)
	}
}

func TestFormatWorkspaceContextEmpty(t *testing.T) {
	f := NewPromptFormatter()
	if got := f.FormatWorkspaceContext(nil); got != "No workspace context available." {
		t.Fatalf("expected empty-set sentinel, got %q", got)
	}
}

func TestFormatRelatedEmpty(t *testing.T) {
	f := NewPromptFormatter()
	if got := f.FormatRelated(nil); got != "No related memories found." {
		t.Fatalf("expected empty-traversal sentinel, got %q", got)
	}
}
