package memstoresrv

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cortexdb/cortex/pkg/memstore"
)

// Completer is the narrow LLM contract ConversationAnalyzer is built on —
// the same single-shot completion surface memstorellm.Completer exposes,
// restated here so this package does not import memstorellm (avoiding a
// dependency from the engine layer on the vendor-adapter layer).
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

const analyzeSystemPrompt = `Extract structured memories from the conversation text below. Respond with one JSON object per line, each shaped as:
{"content": "...", "context_type": "directive|information|heading|decision|code_pattern|requirement|error|todo|insight|preference", "importance": 1-10, "tags": ["..."], "summary": "..."}
Emit nothing else.`

// ConversationAnalyzer is a narrow LLM-facing adapter: it extracts
// structured memory candidates from raw conversation text, summarizes a
// set of memories, and composes search-query hints. It never persists —
// callers pass its output to MemoryStore themselves.
type ConversationAnalyzer struct {
	llm Completer
}

// NewConversationAnalyzer wires a ConversationAnalyzer over llm. A nil llm
// is accepted at construction time: AnalyzeConversation then fails
// Misconfigured, SummarizeSession returns its fallback summary, and
// EnhanceQuery, which never calls the LLM, is unaffected.
func NewConversationAnalyzer(llm Completer) *ConversationAnalyzer {
	return &ConversationAnalyzer{llm: llm}
}

func (a *ConversationAnalyzer) requireLLM() error {
	if a.llm == nil {
		return memstore.NewMisconfigured("conversation analyzer has no LLM credential configured")
	}
	return nil
}

// AnalyzeConversation asks the LLM to extract structured memory
// candidates from text, parsing one JSON object per line. Malformed lines
// are silently dropped; unrecognized context_type strings normalize to
// "information"; importance is clamped to [1, 10].
func (a *ConversationAnalyzer) AnalyzeConversation(ctx context.Context, text string) ([]memstore.AnalyzedMemory, error) {
	if err := a.requireLLM(); err != nil {
		return nil, err
	}

	reply, err := a.llm.Complete(ctx, analyzeSystemPrompt, text)
	if err != nil {
		return nil, memstore.NewInternal("conversation analysis failed", err)
	}

	var out []memstore.AnalyzedMemory
	scanner := bufio.NewScanner(strings.NewReader(reply))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var raw struct {
			Content     string   `json:"content"`
			ContextType string   `json:"context_type"`
			Importance  int      `json:"importance"`
			Tags        []string `json:"tags"`
			Summary     string   `json:"summary"`
		}
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			continue
		}
		if strings.TrimSpace(raw.Content) == "" {
			continue
		}

		out = append(out, memstore.AnalyzedMemory{
			Content:     raw.Content,
			ContextType: normalizeContextType(raw.ContextType),
			Importance:  clampImportance(raw.Importance),
			Tags:        raw.Tags,
			Summary:     truncate(raw.Summary, 50),
		})
	}
	return out, nil
}

var contextTypeAliases = map[string]memstore.ContextType{
	"instruction": memstore.ContextDirective,
	"pattern":     memstore.ContextCodePattern,
}

func normalizeContextType(raw string) memstore.ContextType {
	t := memstore.ContextType(strings.ToLower(strings.TrimSpace(raw)))
	if alias, ok := contextTypeAliases[string(t)]; ok {
		return alias
	}
	switch t {
	case memstore.ContextDirective, memstore.ContextInformation, memstore.ContextHeading,
		memstore.ContextDecision, memstore.ContextCodePattern, memstore.ContextRequirement,
		memstore.ContextError, memstore.ContextTodo, memstore.ContextInsight, memstore.ContextPreference:
		return t
	default:
		return memstore.ContextInformation
	}
}

func clampImportance(v int) int {
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

const summarizeSystemPrompt = "Write a two-to-three sentence synopsis of the following memories."

// SummarizeSession produces a short synopsis of a set of memories. On LLM
// failure it returns the fixed fallback string rather than an error, since
// a degraded summary is preferable to blocking the caller.
func (a *ConversationAnalyzer) SummarizeSession(ctx context.Context, memories []memstore.MemoryEntry) string {
	if a.llm == nil {
		return "Session summary unavailable"
	}

	var sb strings.Builder
	for _, m := range memories {
		sb.WriteString("- ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}

	summary, err := a.llm.Complete(ctx, summarizeSystemPrompt, sb.String())
	if err != nil {
		return "Session summary unavailable"
	}
	return summary
}

// EnhanceQuery concatenates a task description with an optional existing
// query to produce a richer search string.
func (a *ConversationAnalyzer) EnhanceQuery(task, query string) string {
	if query == "" {
		return task
	}
	return fmt.Sprintf("%s %s", task, query)
}
