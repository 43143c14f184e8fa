package memstoresrv

import (
	"context"
	"strings"
	"testing"

	"github.com/cortexdb/cortex/pkg/memstore"
	"github.com/cortexdb/cortex/pkg/memstore/memstoreinfra"
)

func newTestRLMCoordinator(t *testing.T) (*RLMCoordinator, *fixedClock) {
	t.Helper()
	store := memstoreinfra.NewInMemoryStorageClient()
	clock := newTestClock()
	return NewRLMCoordinator(store, clock), clock
}

// --- S7: RLM chain strategy selection, snippets, completion ------------------

func TestRLMChainStrategySelectionAndLifecycle(t *testing.T) {
	coord, _ := newTestRLMCoordinator(t)
	ctx := context.Background()
	ws := memstore.HashWorkspacePath("/tmp/proj")

	bigContext := strings.Repeat("line without markers\n", 2000) +
		"ERROR something broke\nWARN degraded mode\n" +
		strings.Repeat("line without markers\n", 2000)

	chain, err := coord.CreateExecutionContext(ctx, ws, "Find all ERROR lines", bigContext, 3, "")
	if err != nil {
		t.Fatalf("CreateExecutionContext: %v", err)
	}
	if chain.Strategy != memstore.StrategyFilter {
		t.Fatalf("expected filter strategy for a find/search task, got %s", chain.Strategy)
	}
	if chain.Status != memstore.ChainActive {
		t.Fatalf("expected new chain to be active, got %s", chain.Status)
	}

	subtasks, err := coord.Decompose(ctx, ws, chain.ChainID, []SubtaskSpec{
		{Description: "scan part 1", Query: "ERROR"},
		{Description: "scan part 2", Query: "WARN"},
		{Description: "aggregate"},
	})
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(subtasks) != 3 {
		t.Fatalf("expected 3 subtasks, got %d", len(subtasks))
	}
	for i, s := range subtasks {
		if s.Order != i {
			t.Fatalf("subtask %d: expected order %d, got %d", i, i, s.Order)
		}
		if s.Status != memstore.SubtaskPending {
			t.Fatalf("subtask %d: expected pending status, got %s", i, s.Status)
		}
	}

	snippet, err := coord.InjectSnippet(ctx, ws, chain.ChainID, "ERROR|WARN", 1000)
	if err != nil {
		t.Fatalf("InjectSnippet: %v", err)
	}
	if strings.Contains(snippet.Snippet, "line without markers") {
		t.Fatalf("expected snippet to contain only matching lines, got %q", snippet.Snippet)
	}
	if !strings.Contains(snippet.Snippet, "ERROR") || !strings.Contains(snippet.Snippet, "WARN") {
		t.Fatalf("expected snippet to contain both matching lines, got %q", snippet.Snippet)
	}
	if snippet.TokensUsed > 1000 {
		t.Fatalf("expected tokens_used <= 1000, got %d", snippet.TokensUsed)
	}

	for _, s := range subtasks {
		if err := coord.UpdateSubtaskResult(ctx, ws, chain.ChainID, s.ID, "done: "+s.Description, memstore.SubtaskCompleted, nil, nil); err != nil {
			t.Fatalf("UpdateSubtaskResult(%s): %v", s.ID, err)
		}
	}

	if err := coord.StoreMergedResults(ctx, ws, chain.ChainID, memstore.MergedResults{
		AggregatedResult:  "2 errors found",
		Confidence:        0.9,
		SourceCoverage:    1.0,
		SubtasksCompleted: 3,
		SubtasksTotal:     3,
	}, true); err != nil {
		t.Fatalf("StoreMergedResults: %v", err)
	}

	active, err := coord.ListChains(ctx, ws, true)
	if err != nil {
		t.Fatalf("ListChains(active): %v", err)
	}
	for _, c := range active {
		if c.ChainID == chain.ChainID {
			t.Fatalf("expected completed chain removed from active set")
		}
	}

	all, err := coord.ListChains(ctx, ws, false)
	if err != nil {
		t.Fatalf("ListChains(all): %v", err)
	}
	var found bool
	for _, c := range all {
		if c.ChainID == chain.ChainID {
			found = true
			if c.Status != memstore.ChainCompleted {
				t.Fatalf("expected chain status completed, got %s", c.Status)
			}
		}
	}
	if !found {
		t.Fatalf("expected completed chain to still appear in listChains()")
	}
}

func TestSelectStrategyHeuristics(t *testing.T) {
	cases := []struct {
		task     string
		tokens   int64
		expected memstore.Strategy
	}{
		{"find all TODO comments", 100, memstore.StrategyFilter},
		{"search for dangling references", 100, memstore.StrategyFilter},
		{"summarize this conversation", 100, memstore.StrategyAggregate},
		{"give an overview", 100, memstore.StrategyAggregate},
		{"analyze the code structure", 100, memstore.StrategyRecursive},
		{"process this", 60000, memstore.StrategyRecursive},
		{"process this", 100, memstore.StrategyChunk},
	}
	for _, c := range cases {
		got := selectStrategy(c.task, c.tokens)
		if got != c.expected {
			t.Errorf("selectStrategy(%q, %d) = %s, want %s", c.task, c.tokens, got, c.expected)
		}
	}
}

func TestInjectSnippetNoMatchesFallsBackToLeadingChars(t *testing.T) {
	coord, _ := newTestRLMCoordinator(t)
	ctx := context.Background()
	ws := memstore.HashWorkspacePath("/tmp/proj")

	chain, err := coord.CreateExecutionContext(ctx, ws, "summarize everything", "no special tokens here at all", 3, "")
	if err != nil {
		t.Fatalf("CreateExecutionContext: %v", err)
	}

	snippet, err := coord.InjectSnippet(ctx, ws, chain.ChainID, "NOPE_NOT_PRESENT", 5)
	if err != nil {
		t.Fatalf("InjectSnippet: %v", err)
	}
	if snippet.RelevanceScore != 0.1 {
		t.Fatalf("expected relevance_score 0.1 on no match, got %v", snippet.RelevanceScore)
	}
	if len(snippet.Snippet) > 20 {
		t.Fatalf("expected snippet bounded by maxTokens*4 chars, got length %d", len(snippet.Snippet))
	}
}

func TestDeleteChainRemovesEverything(t *testing.T) {
	coord, _ := newTestRLMCoordinator(t)
	ctx := context.Background()
	ws := memstore.HashWorkspacePath("/tmp/proj")

	chain, err := coord.CreateExecutionContext(ctx, ws, "chunk this", "some context", 3, "")
	if err != nil {
		t.Fatalf("CreateExecutionContext: %v", err)
	}
	if _, err := coord.Decompose(ctx, ws, chain.ChainID, []SubtaskSpec{{Description: "only"}}); err != nil {
		t.Fatalf("Decompose: %v", err)
	}

	ok, err := coord.DeleteChain(ctx, ws, chain.ChainID)
	if err != nil || !ok {
		t.Fatalf("DeleteChain: ok=%v err=%v", ok, err)
	}

	got, err := coord.GetChain(ctx, ws, chain.ChainID)
	if err != nil {
		t.Fatalf("GetChain: %v", err)
	}
	if got != nil {
		t.Fatalf("expected chain gone after delete")
	}

	all, err := coord.ListChains(ctx, ws, false)
	if err != nil {
		t.Fatalf("ListChains: %v", err)
	}
	for _, c := range all {
		if c.ChainID == chain.ChainID {
			t.Fatalf("expected deleted chain absent from listChains()")
		}
	}
}
