package memstoresrv

import (
	"fmt"
	"strings"

	"github.com/cortexdb/cortex/pkg/memstore"
)

// PromptFormatter composes "workspace context" prompt payloads: a
// structured dump of a memory set, grouped by context type and ordered by
// importance, suitable for splicing into an LLM system prompt so an agent
// can recall prior directives, decisions and patterns without a tool call
// round trip per fact.
type PromptFormatter struct{}

// NewPromptFormatter constructs a PromptFormatter. It holds no state.
func NewPromptFormatter() *PromptFormatter { return &PromptFormatter{} }

// FormatWorkspaceContext renders memories into a single prompt block,
// grouped under a heading per context_type present in the set, each
// entry prefixed by its importance and tags.
func (f *PromptFormatter) FormatWorkspaceContext(memories []memstore.MemoryEntry) string {
	if len(memories) == 0 {
		return "No workspace context available."
	}

	grouped := map[memstore.ContextType][]memstore.MemoryEntry{}
	var order []memstore.ContextType
	for _, m := range memories {
		if _, seen := grouped[m.ContextType]; !seen {
			order = append(order, m.ContextType)
		}
		grouped[m.ContextType] = append(grouped[m.ContextType], m)
	}

	var sb strings.Builder
	sb.WriteString("# Workspace Context\n\n")
	for _, t := range order {
		sb.WriteString(fmt.Sprintf("## %s\n", formatHeading(t)))
		for _, m := range grouped[t] {
			sb.WriteString(formatEntry(m))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

// FormatRelated renders a GetRelated traversal result as a compact
// "related context" block, one line per discovered memory annotated with
// the edge that connects it and its hop distance from the seed.
func (f *PromptFormatter) FormatRelated(entries []TraversalEntry) string {
	if len(entries) == 0 {
		return "No related memories found."
	}

	var sb strings.Builder
	sb.WriteString("# Related Memories\n\n")
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("- [%s, depth %d] %s\n", e.Edge.RelationshipType, e.Depth, e.Memory.Content))
	}
	return sb.String()
}

func formatHeading(t memstore.ContextType) string {
	if t == "" {
		return "uncategorized"
	}
	return strings.ReplaceAll(string(t), "_", " ")
}

func formatEntry(m memstore.MemoryEntry) string {
	tags := ""
	if len(m.Tags) > 0 {
		tags = " (" + strings.Join(m.Tags, ", ") + ")"
	}
	return fmt.Sprintf("- [importance %d] %s%s\n", m.Importance, m.Content, tags)
}
