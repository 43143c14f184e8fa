package memstoresrv

import (
	"context"
	"errors"
	"testing"

	"github.com/cortexdb/cortex/pkg/memstore"
)

type stubCompleter struct {
	reply string
	err   error
}

func (s stubCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func TestAnalyzeConversationParsesAndNormalizes(t *testing.T) {
	reply := `{"content": "use ULIDs", "context_type": "instruction", "importance": 15, "tags": ["id"], "summary": "short"}
not json at all
{"content": "", "context_type": "pattern", "importance": 3}
{"content": "watch retries", "context_type": "unknown_type", "importance": -5}`

	analyzer := NewConversationAnalyzer(stubCompleter{reply: reply})
	out, err := analyzer.AnalyzeConversation(context.Background(), "conversation text")
	if err != nil {
		t.Fatalf("AnalyzeConversation: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 parsed memories (malformed line + empty-content line dropped), got %d: %+v", len(out), out)
	}

	if out[0].ContextType != memstore.ContextDirective {
		t.Fatalf("expected 'instruction' to normalize to directive, got %s", out[0].ContextType)
	}
	if out[0].Importance != 10 {
		t.Fatalf("expected importance clamped to 10, got %d", out[0].Importance)
	}
	if out[1].ContextType != memstore.ContextInformation {
		t.Fatalf("expected unknown type to normalize to information, got %s", out[1].ContextType)
	}
	if out[1].Importance != 1 {
		t.Fatalf("expected importance clamped to 1, got %d", out[1].Importance)
	}
}

func TestAnalyzeConversationRequiresLLM(t *testing.T) {
	analyzer := NewConversationAnalyzer(nil)
	_, err := analyzer.AnalyzeConversation(context.Background(), "text")
	if err == nil {
		t.Fatalf("expected Misconfigured error with no LLM configured")
	}
}

func TestSummarizeSessionFallsBackOnFailure(t *testing.T) {
	analyzer := NewConversationAnalyzer(stubCompleter{err: errors.New("boom")})
	got := analyzer.SummarizeSession(context.Background(), []memstore.MemoryEntry{{Content: "x"}})
	if got != "Session summary unavailable" {
		t.Fatalf("expected fallback string on LLM failure, got %q", got)
	}
}

func TestEnhanceQueryConcatenates(t *testing.T) {
	analyzer := NewConversationAnalyzer(nil)
	if got := analyzer.EnhanceQuery("find bugs", ""); got != "find bugs" {
		t.Fatalf("expected task alone when query empty, got %q", got)
	}
	if got := analyzer.EnhanceQuery("find bugs", "in auth module"); got != "find bugs in auth module" {
		t.Fatalf("expected concatenation, got %q", got)
	}
}
