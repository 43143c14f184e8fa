package memstoresrv

import (
	"context"
	"testing"

	"github.com/cortexdb/cortex/pkg/memstore"
	"github.com/cortexdb/cortex/pkg/ptrx"
)

func TestCreateFromTemplateSubstitutesAndUnionsTags(t *testing.T) {
	ms, _, _ := newTestMemoryStore(t)
	ctx := context.Background()
	ws := memstore.HashWorkspacePath("/tmp/proj")

	tpl, err := ms.CreateTemplate(ctx, ws, CreateTemplateRequest{
		Name:              "Decision",
		ContextType:       memstore.ContextDecision,
		ContentTemplate:   "Decided: {{decision}}. Rationale: {{rationale}}.",
		DefaultTags:       []string{"decision"},
		DefaultImportance: 6,
	})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}

	entry, err := ms.CreateFromTemplate(ctx, WriteScope{Workspace: ws}, tpl.TemplateID, map[string]string{
		"decision":  "use ULIDs",
		"rationale": "sortable ids",
	}, []string{"ids"}, ptrx.Int(9))
	if err != nil {
		t.Fatalf("CreateFromTemplate: %v", err)
	}
	if entry.Content != "Decided: use ULIDs. Rationale: sortable ids." {
		t.Fatalf("unexpected substituted content: %q", entry.Content)
	}
	if entry.Importance != 9 {
		t.Fatalf("expected importance override applied, got %d", entry.Importance)
	}
	tagSet := map[string]bool{}
	for _, tg := range entry.Tags {
		tagSet[tg] = true
	}
	if !tagSet["decision"] || !tagSet["ids"] {
		t.Fatalf("expected union of default and extra tags, got %v", entry.Tags)
	}
}

func TestCreateFromTemplateFailsOnMissingVariables(t *testing.T) {
	ms, _, _ := newTestMemoryStore(t)
	ctx := context.Background()
	ws := memstore.HashWorkspacePath("/tmp/proj")

	tpl, err := ms.CreateTemplate(ctx, ws, CreateTemplateRequest{
		Name:              "Decision",
		ContentTemplate:   "Decided: {{decision}}. Rationale: {{rationale}}.",
		DefaultImportance: 5,
	})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}

	_, err = ms.CreateFromTemplate(ctx, WriteScope{Workspace: ws}, tpl.TemplateID, map[string]string{
		"decision": "use ULIDs",
	}, nil, nil)
	if err == nil {
		t.Fatalf("expected MissingVariables-equivalent error when rationale is unresolved")
	}
}

func TestBuiltinTemplatesCannotBeDeleted(t *testing.T) {
	ms, _, _ := newTestMemoryStore(t)
	ctx := context.Background()
	ws := memstore.HashWorkspacePath("/tmp/proj")

	if err := ms.SeedBuiltinTemplates(ctx); err != nil {
		t.Fatalf("SeedBuiltinTemplates: %v", err)
	}

	templates, err := ms.ListTemplates(ctx, ws)
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	if len(templates) == 0 {
		t.Fatalf("expected built-in templates to be visible from any workspace")
	}

	var builtinID string
	for _, tpl := range templates {
		if tpl.IsBuiltin {
			builtinID = tpl.TemplateID
			break
		}
	}
	if builtinID == "" {
		t.Fatalf("expected at least one built-in template")
	}

	_, err = ms.DeleteTemplate(ctx, ws, builtinID)
	if err == nil {
		t.Fatalf("expected deleting a built-in template to fail")
	}
}

func TestCategoryReassignmentMovesMembership(t *testing.T) {
	ms, _, _ := newTestMemoryStore(t)
	ctx := context.Background()
	ws := memstore.HashWorkspacePath("/tmp/proj")

	entry, err := ms.Create(ctx, WriteScope{Workspace: ws}, CreateMemoryRequest{Content: "x", Importance: 4})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := ms.SetCategory(ctx, ws, entry.ID, "backend"); err != nil {
		t.Fatalf("SetCategory(backend): %v", err)
	}
	if err := ms.SetCategory(ctx, ws, entry.ID, "frontend"); err != nil {
		t.Fatalf("SetCategory(frontend): %v", err)
	}

	backend, err := ms.GetByCategory(ctx, ws, "backend")
	if err != nil {
		t.Fatalf("GetByCategory(backend): %v", err)
	}
	if len(backend) != 0 {
		t.Fatalf("expected entry removed from prior category, got %+v", backend)
	}

	frontend, err := ms.GetByCategory(ctx, ws, "frontend")
	if err != nil {
		t.Fatalf("GetByCategory(frontend): %v", err)
	}
	if len(frontend) != 1 || frontend[0].ID != entry.ID {
		t.Fatalf("expected entry present in new category, got %+v", frontend)
	}
}
