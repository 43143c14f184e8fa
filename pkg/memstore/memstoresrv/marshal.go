package memstoresrv

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/cortexdb/cortex/pkg/kernel"
	"github.com/cortexdb/cortex/pkg/memstore"
)

// memoryToFields renders a MemoryEntry into its wire hash fields.
func memoryToFields(m memstore.MemoryEntry) map[string]string {
	tags, _ := json.Marshal(m.Tags)
	embedding, _ := json.Marshal(m.Embedding)

	fields := map[string]string{
		"id":           m.ID,
		"timestamp":    strconv.FormatInt(m.Timestamp, 10),
		"context_type": string(m.ContextType),
		"content":      m.Content,
		"summary":      m.Summary,
		"tags":         string(tags),
		"importance":   strconv.Itoa(m.Importance),
		"session_id":   m.SessionID,
		"embedding":    string(embedding),
		"is_global":    strconv.FormatBool(m.IsGlobal),
		"workspace_id": m.WorkspaceID.String(),
		"category":     m.Category,
	}
	if m.TTLSeconds != nil {
		fields["ttl_seconds"] = strconv.Itoa(*m.TTLSeconds)
	}
	if m.ExpiresAt != nil {
		fields["expires_at"] = strconv.FormatInt(*m.ExpiresAt, 10)
	}
	return fields
}

// fieldsToMemory parses a wire hash back into a MemoryEntry. Malformed
// JSON on tags/embedding is an internal error carrying the memory id for
// debugging without failing sibling reads.
func fieldsToMemory(fields map[string]string) (memstore.MemoryEntry, error) {
	m := memstore.MemoryEntry{
		ID:          fields["id"],
		ContextType: memstore.ContextType(fields["context_type"]),
		Content:     fields["content"],
		Summary:     fields["summary"],
		SessionID:   fields["session_id"],
		WorkspaceID: kernel.NewWorkspaceID(fields["workspace_id"]),
		Category:    fields["category"],
	}

	if ts, err := strconv.ParseInt(fields["timestamp"], 10, 64); err == nil {
		m.Timestamp = ts
	}
	if imp, err := strconv.Atoi(fields["importance"]); err == nil {
		m.Importance = imp
	}
	if ig, err := strconv.ParseBool(fields["is_global"]); err == nil {
		m.IsGlobal = ig
	}

	if raw, ok := fields["tags"]; ok && raw != "" {
		var tags []string
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			return memstore.MemoryEntry{}, memstore.NewInternal("malformed tags on memory "+m.ID, err)
		}
		m.Tags = tags
	}
	if raw, ok := fields["embedding"]; ok && raw != "" {
		var embedding []float32
		if err := json.Unmarshal([]byte(raw), &embedding); err != nil {
			return memstore.MemoryEntry{}, memstore.NewInternal("malformed embedding on memory "+m.ID, err)
		}
		m.Embedding = embedding
	}
	if raw, ok := fields["ttl_seconds"]; ok && raw != "" {
		if ttl, err := strconv.Atoi(raw); err == nil {
			m.TTLSeconds = &ttl
		}
	}
	if raw, ok := fields["expires_at"]; ok && raw != "" {
		if exp, err := strconv.ParseInt(raw, 10, 64); err == nil {
			m.ExpiresAt = &exp
		}
	}

	return m, nil
}

func sessionToFields(s memstore.SessionInfo) map[string]string {
	ids, _ := json.Marshal(s.MemoryIDs)
	return map[string]string{
		"session_id":   s.SessionID,
		"session_name": s.SessionName,
		"created_at":   strconv.FormatInt(s.CreatedAt, 10),
		"memory_count": strconv.Itoa(s.MemoryCount),
		"summary":      s.Summary,
		"memory_ids":   string(ids),
	}
}

func fieldsToSession(fields map[string]string) (memstore.SessionInfo, error) {
	s := memstore.SessionInfo{
		SessionID:   fields["session_id"],
		SessionName: fields["session_name"],
		Summary:     fields["summary"],
	}
	if ca, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		s.CreatedAt = ca
	}
	if mc, err := strconv.Atoi(fields["memory_count"]); err == nil {
		s.MemoryCount = mc
	}
	if raw, ok := fields["memory_ids"]; ok && raw != "" {
		var ids []string
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			return memstore.SessionInfo{}, memstore.NewInternal("malformed memory_ids on session "+s.SessionID, err)
		}
		s.MemoryIDs = ids
	}
	return s, nil
}

func relationshipToFields(r memstore.MemoryRelationship) map[string]string {
	meta := ""
	if len(r.Metadata) > 0 {
		b, _ := json.Marshal(r.Metadata)
		meta = string(b)
	}
	return map[string]string{
		"id":                r.ID,
		"from_memory_id":    r.FromMemoryID,
		"to_memory_id":      r.ToMemoryID,
		"relationship_type": string(r.RelationshipType),
		"created_at":        r.CreatedAt.UTC().Format(time.RFC3339),
		"metadata":          meta,
	}
}

func fieldsToRelationship(fields map[string]string) (memstore.MemoryRelationship, error) {
	r := memstore.MemoryRelationship{
		ID:               fields["id"],
		FromMemoryID:     fields["from_memory_id"],
		ToMemoryID:       fields["to_memory_id"],
		RelationshipType: memstore.RelationshipType(fields["relationship_type"]),
	}
	if ts, err := time.Parse(time.RFC3339, fields["created_at"]); err == nil {
		r.CreatedAt = ts
	}
	if raw, ok := fields["metadata"]; ok && raw != "" {
		var meta map[string]any
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return memstore.MemoryRelationship{}, memstore.NewInternal("malformed metadata on relationship "+r.ID, err)
		}
		r.Metadata = meta
	}
	return r, nil
}

func versionToFields(v memstore.MemoryVersion) map[string]string {
	tags, _ := json.Marshal(v.Tags)
	return map[string]string{
		"version_id":    v.VersionID,
		"memory_id":     v.MemoryID,
		"created_at":    v.CreatedAt.UTC().Format(time.RFC3339),
		"created_by":    string(v.CreatedBy),
		"change_reason": v.ChangeReason,
		"content":       v.Content,
		"context_type":  string(v.ContextType),
		"importance":    strconv.Itoa(v.Importance),
		"tags":          string(tags),
		"summary":       v.Summary,
	}
}

func fieldsToVersion(fields map[string]string) (memstore.MemoryVersion, error) {
	v := memstore.MemoryVersion{
		VersionID:    fields["version_id"],
		MemoryID:     fields["memory_id"],
		CreatedBy:    memstore.VersionAuthor(fields["created_by"]),
		ChangeReason: fields["change_reason"],
		Content:      fields["content"],
		ContextType:  memstore.ContextType(fields["context_type"]),
		Summary:      fields["summary"],
	}
	if ts, err := time.Parse(time.RFC3339, fields["created_at"]); err == nil {
		v.CreatedAt = ts
	}
	if imp, err := strconv.Atoi(fields["importance"]); err == nil {
		v.Importance = imp
	}
	if raw, ok := fields["tags"]; ok && raw != "" {
		var tags []string
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			return memstore.MemoryVersion{}, memstore.NewInternal("malformed tags on version "+v.VersionID, err)
		}
		v.Tags = tags
	}
	return v, nil
}

func templateToFields(t memstore.MemoryTemplate) map[string]string {
	tags, _ := json.Marshal(t.DefaultTags)
	return map[string]string{
		"template_id":        t.TemplateID,
		"name":               t.Name,
		"description":        t.Description,
		"context_type":       string(t.ContextType),
		"content_template":   t.ContentTemplate,
		"default_tags":       string(tags),
		"default_importance": strconv.Itoa(t.DefaultImportance),
		"is_builtin":         strconv.FormatBool(t.IsBuiltin),
		"created_at":         t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func fieldsToTemplate(fields map[string]string) (memstore.MemoryTemplate, error) {
	t := memstore.MemoryTemplate{
		TemplateID:      fields["template_id"],
		Name:            fields["name"],
		Description:     fields["description"],
		ContextType:     memstore.ContextType(fields["context_type"]),
		ContentTemplate: fields["content_template"],
	}
	if imp, err := strconv.Atoi(fields["default_importance"]); err == nil {
		t.DefaultImportance = imp
	}
	if ib, err := strconv.ParseBool(fields["is_builtin"]); err == nil {
		t.IsBuiltin = ib
	}
	if ts, err := time.Parse(time.RFC3339, fields["created_at"]); err == nil {
		t.CreatedAt = ts
	}
	if raw, ok := fields["default_tags"]; ok && raw != "" {
		var tags []string
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			return memstore.MemoryTemplate{}, memstore.NewInternal("malformed default_tags on template "+t.TemplateID, err)
		}
		t.DefaultTags = tags
	}
	return t, nil
}

func chainToFields(c memstore.ExecutionContext) map[string]string {
	fields := map[string]string{
		"chain_id":         c.ChainID,
		"parent_chain_id":  c.ParentChainID,
		"depth":            strconv.Itoa(c.Depth),
		"status":           string(c.Status),
		"original_task":    c.OriginalTask,
		"context_ref":      c.ContextRef,
		"strategy":         string(c.Strategy),
		"estimated_tokens": strconv.FormatInt(c.EstimatedTokens, 10),
		"created_at":       strconv.FormatInt(c.CreatedAt.UnixMilli(), 10),
		"updated_at":       strconv.FormatInt(c.UpdatedAt.UnixMilli(), 10),
		"error_message":    c.ErrorMessage,
	}
	if c.CompletedAt != nil {
		fields["completed_at"] = strconv.FormatInt(c.CompletedAt.UnixMilli(), 10)
	}
	return fields
}

func fieldsToChain(fields map[string]string) memstore.ExecutionContext {
	c := memstore.ExecutionContext{
		ChainID:       fields["chain_id"],
		ParentChainID: fields["parent_chain_id"],
		Status:        memstore.ChainStatus(fields["status"]),
		OriginalTask:  fields["original_task"],
		ContextRef:    fields["context_ref"],
		Strategy:      memstore.Strategy(fields["strategy"]),
		ErrorMessage:  fields["error_message"],
	}
	if d, err := strconv.Atoi(fields["depth"]); err == nil {
		c.Depth = d
	}
	if et, err := strconv.ParseInt(fields["estimated_tokens"], 10, 64); err == nil {
		c.EstimatedTokens = et
	}
	if ca, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		c.CreatedAt = time.UnixMilli(ca).UTC()
	}
	if ua, err := strconv.ParseInt(fields["updated_at"], 10, 64); err == nil {
		c.UpdatedAt = time.UnixMilli(ua).UTC()
	}
	if raw, ok := fields["completed_at"]; ok && raw != "" {
		if cm, err := strconv.ParseInt(raw, 10, 64); err == nil {
			t := time.UnixMilli(cm).UTC()
			c.CompletedAt = &t
		}
	}
	return c
}

func subtaskToFields(s memstore.Subtask) map[string]string {
	ids, _ := json.Marshal(s.MemoryIDs)
	fields := map[string]string{
		"id":          s.ID,
		"chain_id":    s.ChainID,
		"order":       strconv.Itoa(s.Order),
		"description": s.Description,
		"status":      string(s.Status),
		"query":       s.Query,
		"result":      s.Result,
		"memory_ids":  string(ids),
		"created_at":  strconv.FormatInt(s.CreatedAt.UnixMilli(), 10),
	}
	if s.TokensUsed != nil {
		fields["tokens_used"] = strconv.FormatInt(*s.TokensUsed, 10)
	}
	if s.CompletedAt != nil {
		fields["completed_at"] = strconv.FormatInt(s.CompletedAt.UnixMilli(), 10)
	}
	return fields
}

func fieldsToSubtask(fields map[string]string) (memstore.Subtask, error) {
	s := memstore.Subtask{
		ID:          fields["id"],
		ChainID:     fields["chain_id"],
		Description: fields["description"],
		Status:      memstore.SubtaskStatus(fields["status"]),
		Query:       fields["query"],
		Result:      fields["result"],
	}
	if o, err := strconv.Atoi(fields["order"]); err == nil {
		s.Order = o
	}
	if ca, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		s.CreatedAt = time.UnixMilli(ca).UTC()
	}
	if raw, ok := fields["tokens_used"]; ok && raw != "" {
		if tu, err := strconv.ParseInt(raw, 10, 64); err == nil {
			s.TokensUsed = &tu
		}
	}
	if raw, ok := fields["completed_at"]; ok && raw != "" {
		if cm, err := strconv.ParseInt(raw, 10, 64); err == nil {
			t := time.UnixMilli(cm).UTC()
			s.CompletedAt = &t
		}
	}
	if raw, ok := fields["memory_ids"]; ok && raw != "" {
		var ids []string
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			return memstore.Subtask{}, memstore.NewInternal("malformed memory_ids on subtask "+s.ID, err)
		}
		s.MemoryIDs = ids
	}
	return s, nil
}

func mergedResultsToFields(r memstore.MergedResults) map[string]string {
	return map[string]string{
		"aggregated_result":  r.AggregatedResult,
		"confidence":         strconv.FormatFloat(r.Confidence, 'f', -1, 64),
		"source_coverage":    strconv.FormatFloat(r.SourceCoverage, 'f', -1, 64),
		"subtasks_completed": strconv.Itoa(r.SubtasksCompleted),
		"subtasks_total":     strconv.Itoa(r.SubtasksTotal),
	}
}

func fieldsToMergedResults(fields map[string]string) memstore.MergedResults {
	r := memstore.MergedResults{AggregatedResult: fields["aggregated_result"]}
	if c, err := strconv.ParseFloat(fields["confidence"], 64); err == nil {
		r.Confidence = c
	}
	if sc, err := strconv.ParseFloat(fields["source_coverage"], 64); err == nil {
		r.SourceCoverage = sc
	}
	if sc, err := strconv.Atoi(fields["subtasks_completed"]); err == nil {
		r.SubtasksCompleted = sc
	}
	if st, err := strconv.Atoi(fields["subtasks_total"]); err == nil {
		r.SubtasksTotal = st
	}
	return r
}
