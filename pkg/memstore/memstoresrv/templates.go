package memstoresrv

import (
	"context"
	"regexp"
	"strings"

	"github.com/cortexdb/cortex/pkg/kernel"
	"github.com/cortexdb/cortex/pkg/memstore"
)

var templatePlaceholder = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

func builtinNS() kernel.WorkspaceID { return kernel.NewWorkspaceID("") }

// builtinTemplates seeds the small fixed library of templates every
// workspace can use out of the box.
func builtinTemplates() []memstore.MemoryTemplate {
	return []memstore.MemoryTemplate{
		{
			TemplateID:        "tpl_builtin_decision",
			Name:              "Decision Record",
			Description:       "Capture a decision and its rationale",
			ContextType:       memstore.ContextDecision,
			ContentTemplate:   "Decided: {{decision}}. Rationale: {{rationale}}.",
			DefaultTags:       []string{"decision"},
			DefaultImportance: 7,
			IsBuiltin:         true,
		},
		{
			TemplateID:        "tpl_builtin_bug",
			Name:              "Bug Report",
			Description:       "Record an observed error and its context",
			ContextType:       memstore.ContextError,
			ContentTemplate:   "Error encountered: {{error}}. Context: {{context}}.",
			DefaultTags:       []string{"bug"},
			DefaultImportance: 8,
			IsBuiltin:         true,
		},
		{
			TemplateID:        "tpl_builtin_preference",
			Name:              "User Preference",
			Description:       "Record a stated user preference",
			ContextType:       memstore.ContextPreference,
			ContentTemplate:   "User prefers {{preference}} when {{situation}}.",
			DefaultTags:       []string{"preference"},
			DefaultImportance: 6,
			IsBuiltin:         true,
		},
	}
}

// SeedBuiltinTemplates writes the built-in template library into the
// global namespace if absent. Idempotent; safe to call on every startup.
func (m *MemoryStore) SeedBuiltinTemplates(ctx context.Context) error {
	now := m.clock.Now()
	for _, tpl := range builtinTemplates() {
		exists, err := m.store.Exists(ctx, m.keys.Template(builtinNS(), tpl.TemplateID))
		if err != nil {
			return memstore.NewTransient("failed to check builtin template existence", err)
		}
		if exists {
			continue
		}
		tpl.CreatedAt = now
		pipe := m.store.Pipeline()
		pipe.HSet(m.keys.Template(builtinNS(), tpl.TemplateID), templateToFields(tpl))
		pipe.SAdd(m.keys.TemplatesAll(builtinNS()), tpl.TemplateID)
		if err := pipe.Exec(ctx); err != nil {
			return memstore.NewTransient("failed to seed builtin template "+tpl.TemplateID, err)
		}
	}
	return nil
}

// CreateTemplateRequest is the input to CreateTemplate.
type CreateTemplateRequest struct {
	Name              string
	Description       string
	ContextType       memstore.ContextType
	ContentTemplate   string
	DefaultTags       []string
	DefaultImportance int
}

// CreateTemplate registers a new custom (non-builtin) template in ws.
func (m *MemoryStore) CreateTemplate(ctx context.Context, ws kernel.WorkspaceID, req CreateTemplateRequest) (*memstore.MemoryTemplate, error) {
	if strings.TrimSpace(req.ContentTemplate) == "" {
		return nil, memstore.NewInvalidInput("content_template must not be empty")
	}
	if req.DefaultImportance < 1 || req.DefaultImportance > 10 {
		return nil, memstore.NewInvalidInput("default_importance must be between 1 and 10")
	}

	now := m.clock.Now()
	tpl := memstore.MemoryTemplate{
		TemplateID:        newTemplateID(now),
		Name:              req.Name,
		Description:       req.Description,
		ContextType:       req.ContextType,
		ContentTemplate:   req.ContentTemplate,
		DefaultTags:       dedupTags(req.DefaultTags),
		DefaultImportance: req.DefaultImportance,
		IsBuiltin:         false,
		CreatedAt:         now,
	}

	pipe := m.store.Pipeline()
	pipe.HSet(m.keys.Template(ws, tpl.TemplateID), templateToFields(tpl))
	pipe.SAdd(m.keys.TemplatesAll(ws), tpl.TemplateID)
	if err := pipe.Exec(ctx); err != nil {
		return nil, memstore.NewTransient("failed to persist template", err)
	}
	return &tpl, nil
}

// GetTemplate reads a template, checking ws first then the built-in
// namespace.
func (m *MemoryStore) GetTemplate(ctx context.Context, ws kernel.WorkspaceID, templateID string) (*memstore.MemoryTemplate, error) {
	for _, ns := range []kernel.WorkspaceID{ws, builtinNS()} {
		fields, err := m.store.HGetAll(ctx, m.keys.Template(ns, templateID))
		if err != nil {
			return nil, memstore.NewTransient("failed to read template "+templateID, err)
		}
		if len(fields) == 0 {
			continue
		}
		tpl, err := fieldsToTemplate(fields)
		if err != nil {
			return nil, err
		}
		return &tpl, nil
	}
	return nil, nil
}

// ListTemplates returns every template available to ws: its own plus the
// built-in library.
func (m *MemoryStore) ListTemplates(ctx context.Context, ws kernel.WorkspaceID) ([]memstore.MemoryTemplate, error) {
	var out []memstore.MemoryTemplate
	for _, ns := range []kernel.WorkspaceID{ws, builtinNS()} {
		ids, err := m.store.SMembers(ctx, m.keys.TemplatesAll(ns))
		if err != nil {
			return nil, memstore.NewTransient("failed to list templates", err)
		}
		for _, id := range ids {
			fields, err := m.store.HGetAll(ctx, m.keys.Template(ns, id))
			if err != nil {
				return nil, memstore.NewTransient("failed to read template "+id, err)
			}
			if len(fields) == 0 {
				continue
			}
			tpl, err := fieldsToTemplate(fields)
			if err != nil {
				return nil, err
			}
			out = append(out, tpl)
		}
	}
	return out, nil
}

// DeleteTemplate removes a custom template. Built-in templates cannot be
// deleted and return Conflict.
func (m *MemoryStore) DeleteTemplate(ctx context.Context, ws kernel.WorkspaceID, templateID string) (bool, error) {
	fields, err := m.store.HGetAll(ctx, m.keys.Template(ws, templateID))
	if err != nil {
		return false, memstore.NewTransient("failed to read template "+templateID, err)
	}
	if len(fields) == 0 {
		builtin, err := m.store.Exists(ctx, m.keys.Template(builtinNS(), templateID))
		if err != nil {
			return false, memstore.NewTransient("failed to check builtin template existence", err)
		}
		if builtin {
			return false, memstore.NewConflict("built-in templates cannot be deleted: " + templateID)
		}
		return false, nil
	}

	pipe := m.store.Pipeline()
	pipe.SRem(m.keys.TemplatesAll(ws), templateID)
	pipe.Del(m.keys.Template(ws, templateID))
	if err := pipe.Exec(ctx); err != nil {
		return false, memstore.NewTransient("failed to delete template "+templateID, err)
	}
	return true, nil
}

// CreateFromTemplate substitutes vars into a template's content, failing
// if any `{{placeholder}}` remains unresolved, and creates a memory from
// the result. Tags are the union of the template's default tags and
// extraTags; importance uses importanceOverride when supplied, else the
// template's default.
func (m *MemoryStore) CreateFromTemplate(ctx context.Context, target WriteScope, templateID string, vars map[string]string, extraTags []string, importanceOverride *int) (*memstore.MemoryEntry, error) {
	ws := target.Workspace
	tpl, err := m.GetTemplate(ctx, ws, templateID)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, memstore.NewNotFound("template not found: " + templateID)
	}

	content := templatePlaceholder.ReplaceAllStringFunc(tpl.ContentTemplate, func(token string) string {
		name := templatePlaceholder.FindStringSubmatch(token)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return token
	})
	if remaining := templatePlaceholder.FindAllString(content, -1); len(remaining) > 0 {
		return nil, memstore.NewInvalidInput("template " + templateID + " has unresolved variables: " + strings.Join(remaining, ", "))
	}

	tags := dedupTags(append(append([]string{}, tpl.DefaultTags...), extraTags...))
	importance := tpl.DefaultImportance
	if importanceOverride != nil {
		importance = *importanceOverride
	}

	return m.Create(ctx, target, CreateMemoryRequest{
		ContextType: tpl.ContextType,
		Content:     content,
		Tags:        tags,
		Importance:  importance,
	})
}
