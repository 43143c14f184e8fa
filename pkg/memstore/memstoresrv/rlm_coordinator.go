package memstoresrv

import (
	"context"
	"regexp"
	"strings"

	"github.com/cortexdb/cortex/pkg/kernel"
	"github.com/cortexdb/cortex/pkg/memstore"
	"github.com/cortexdb/cortex/pkg/ptrx"
)

// recursiveTokenThreshold is the estimated-token cutoff above which the
// strategy heuristic prefers recursive decomposition.
const recursiveTokenThreshold = 50000

// fallbackAvgTokens is the per-subtask token estimate used by
// GetChainSummary when no subtask has completed yet.
const fallbackAvgTokens = 4000

// RLMCoordinator runs recursive-language-model execution chains: storing
// oversized task context out-of-band, decomposing it into ordered
// subtasks, injecting relevant snippets back in on demand, and
// aggregating partial results.
type RLMCoordinator struct {
	store memstore.StorageClient
	keys  memstore.KeyScheme
	clock Clock
}

// NewRLMCoordinator wires an RLMCoordinator over the given backend.
func NewRLMCoordinator(store memstore.StorageClient, clock Clock) *RLMCoordinator {
	if clock == nil {
		clock = SystemClock
	}
	return &RLMCoordinator{store: store, keys: memstore.KeyScheme{}, clock: clock}
}

// selectStrategy picks a decomposition strategy from keyword cues in the
// task and the size of its context.
func selectStrategy(task string, estimatedTokens int64) memstore.Strategy {
	lower := strings.ToLower(task)
	switch {
	case containsAny(lower, "find", "search", "extract", "error", "warning"):
		return memstore.StrategyFilter
	case containsAny(lower, "summarize", "combine", "aggregate", "overview"):
		return memstore.StrategyAggregate
	case estimatedTokens > recursiveTokenThreshold || containsAny(lower, "analyze"):
		return memstore.StrategyRecursive
	default:
		return memstore.StrategyChunk
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// CreateExecutionContext starts a new RLM chain over task, storing context
// out-of-band and returning the assigned chain.
func (c *RLMCoordinator) CreateExecutionContext(ctx context.Context, ws kernel.WorkspaceID, task, chainContext string, maxDepth int, parentChainID string) (*memstore.ExecutionContext, error) {
	if maxDepth > 3 {
		maxDepth = 3
	}

	depth := 0
	if parentChainID != "" {
		parent, err := c.getChain(ctx, ws, parentChainID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, memstore.NewNotFound("parent chain not found: " + parentChainID)
		}
		depth = parent.Depth + 1
	}
	if maxDepth >= 0 && depth > maxDepth {
		return nil, memstore.NewInvalidInput("chain would exceed max_depth")
	}

	now := c.clock.Now()
	estimatedTokens := int64((len(chainContext) + 3) / 4)
	chainID := newChainID(now)
	chain := memstore.ExecutionContext{
		ChainID:         chainID,
		ParentChainID:   parentChainID,
		Depth:           depth,
		Status:          memstore.ChainActive,
		OriginalTask:    task,
		ContextRef:      c.keys.RLMContext(ws, chainID),
		Strategy:        selectStrategy(task, estimatedTokens),
		EstimatedTokens: estimatedTokens,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	pipe := c.store.Pipeline()
	pipe.Set(c.keys.RLMContext(ws, chain.ChainID), chainContext)
	pipe.HSet(c.keys.RLMChain(ws, chain.ChainID), chainToFields(chain))
	pipe.SAdd(c.keys.RLMExecutions(ws), chain.ChainID)
	pipe.SAdd(c.keys.RLMExecutionsActive(ws), chain.ChainID)
	if err := pipe.Exec(ctx); err != nil {
		return nil, memstore.NewTransient("failed to persist execution context", err)
	}
	return &chain, nil
}

func (c *RLMCoordinator) getChain(ctx context.Context, ws kernel.WorkspaceID, chainID string) (*memstore.ExecutionContext, error) {
	fields, err := c.store.HGetAll(ctx, c.keys.RLMChain(ws, chainID))
	if err != nil {
		return nil, memstore.NewTransient("failed to read chain "+chainID, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	chain := fieldsToChain(fields)
	return &chain, nil
}

// GetChain returns a chain's current ExecutionContext.
func (c *RLMCoordinator) GetChain(ctx context.Context, ws kernel.WorkspaceID, chainID string) (*memstore.ExecutionContext, error) {
	return c.getChain(ctx, ws, chainID)
}

// SubtaskSpec is one caller-supplied decomposition item.
type SubtaskSpec struct {
	Description string
	Query       string
}

// Decompose inserts the caller's ordered subtask list against chainID,
// each positioned by its index in the slice.
func (c *RLMCoordinator) Decompose(ctx context.Context, ws kernel.WorkspaceID, chainID string, specs []SubtaskSpec) ([]memstore.Subtask, error) {
	chain, err := c.getChain(ctx, ws, chainID)
	if err != nil {
		return nil, err
	}
	if chain == nil {
		return nil, memstore.NewNotFound("chain not found: " + chainID)
	}

	now := c.clock.Now()
	out := make([]memstore.Subtask, 0, len(specs))
	pipe := c.store.Pipeline()
	for i, spec := range specs {
		sub := memstore.Subtask{
			ID:          newSubtaskID(now),
			ChainID:     chainID,
			Order:       i,
			Description: spec.Description,
			Status:      memstore.SubtaskPending,
			Query:       spec.Query,
			CreatedAt:   now,
		}
		pipe.HSet(c.keys.RLMSubtask(ws, chainID, sub.ID), subtaskToFields(sub))
		pipe.ZAdd(c.keys.RLMSubtasks(ws, chainID), float64(i), sub.ID)
		out = append(out, sub)
	}
	if err := pipe.Exec(ctx); err != nil {
		return nil, memstore.NewTransient("failed to persist subtasks for chain "+chainID, err)
	}
	return out, nil
}

// SnippetResult is the return value of InjectSnippet.
type SnippetResult struct {
	Snippet        string
	RelevanceScore float64
	TokensUsed     int64
}

// InjectSnippet searches a chain's stored context for lines matching query
// (treated as a case-insensitive regex, falling back to a plain substring
// match if it fails to compile), packing matches into a buffer bounded by
// maxTokens*4 characters.
func (c *RLMCoordinator) InjectSnippet(ctx context.Context, ws kernel.WorkspaceID, chainID, query string, maxTokens int) (*SnippetResult, error) {
	chainContext, ok, err := c.store.Get(ctx, c.keys.RLMContext(ws, chainID))
	if err != nil {
		return nil, memstore.NewTransient("failed to read context for chain "+chainID, err)
	}
	if !ok {
		return nil, memstore.NewNotFound("chain context not found: " + chainID)
	}

	maxChars := maxTokens * 4
	lines := strings.Split(chainContext, "\n")

	matchLine := regexMatcher(query)

	var matched []string
	for _, line := range lines {
		if matchLine(line) {
			matched = append(matched, line)
		}
	}

	var snippet string
	var relevance float64
	if len(matched) == 0 {
		if maxChars < len(chainContext) {
			snippet = chainContext[:maxChars]
		} else {
			snippet = chainContext
		}
		relevance = 0.1
	} else {
		joined := strings.Join(matched, "\n")
		if len(joined) > maxChars {
			joined = joined[:maxChars]
		}
		snippet = joined
		if len(lines) > 0 {
			relevance = float64(len(matched)) / float64(len(lines))
		}
	}

	return &SnippetResult{
		Snippet:        snippet,
		RelevanceScore: relevance,
		TokensUsed:     int64((len(snippet) + 3) / 4),
	}, nil
}

func regexMatcher(query string) func(string) bool {
	re, err := regexp.Compile("(?i)" + query)
	if err != nil {
		lower := strings.ToLower(query)
		return func(line string) bool { return strings.Contains(strings.ToLower(line), lower) }
	}
	return re.MatchString
}

// UpdateSubtaskResult records a subtask's outcome. An empty status
// defaults to completed.
func (c *RLMCoordinator) UpdateSubtaskResult(ctx context.Context, ws kernel.WorkspaceID, chainID, subtaskID, result string, status memstore.SubtaskStatus, tokensUsed *int64, memoryIDs []string) error {
	fields, err := c.store.HGetAll(ctx, c.keys.RLMSubtask(ws, chainID, subtaskID))
	if err != nil {
		return memstore.NewTransient("failed to read subtask "+subtaskID, err)
	}
	if len(fields) == 0 {
		return memstore.NewNotFound("subtask not found: " + subtaskID)
	}
	sub, err := fieldsToSubtask(fields)
	if err != nil {
		return err
	}

	if status == "" {
		status = memstore.SubtaskCompleted
	}
	now := c.clock.Now()
	sub.Result = result
	sub.Status = status
	sub.TokensUsed = tokensUsed
	sub.MemoryIDs = memoryIDs
	sub.CompletedAt = ptrx.Time(now)

	if err := c.store.HSet(ctx, c.keys.RLMSubtask(ws, chainID, subtaskID), subtaskToFields(sub)); err != nil {
		return memstore.NewTransient("failed to persist subtask update", err)
	}
	return nil
}

// ChainSummary is the status-counted, token-estimated view GetChainSummary
// returns.
type ChainSummary struct {
	Chain           memstore.ExecutionContext
	StatusCounts    map[memstore.SubtaskStatus]int
	RemainingTokens int64
}

// GetChainSummary reports subtask status counts and an estimate of the
// tokens remaining to process the chain to completion.
func (c *RLMCoordinator) GetChainSummary(ctx context.Context, ws kernel.WorkspaceID, chainID string) (*ChainSummary, error) {
	chain, err := c.getChain(ctx, ws, chainID)
	if err != nil {
		return nil, err
	}
	if chain == nil {
		return nil, memstore.NewNotFound("chain not found: " + chainID)
	}

	ids, err := c.store.ZRange(ctx, c.keys.RLMSubtasks(ws, chainID), 0, -1)
	if err != nil {
		return nil, memstore.NewTransient("failed to read subtask index for chain "+chainID, err)
	}

	counts := map[memstore.SubtaskStatus]int{}
	var completedTokenSum int64
	var completedCount int64
	for _, id := range ids {
		fields, err := c.store.HGetAll(ctx, c.keys.RLMSubtask(ws, chainID, id))
		if err != nil {
			return nil, memstore.NewTransient("failed to read subtask "+id, err)
		}
		if len(fields) == 0 {
			continue
		}
		sub, err := fieldsToSubtask(fields)
		if err != nil {
			return nil, err
		}
		counts[sub.Status]++
		if sub.Status == memstore.SubtaskCompleted && sub.TokensUsed != nil {
			completedTokenSum += *sub.TokensUsed
			completedCount++
		}
	}

	avg := int64(fallbackAvgTokens)
	if completedCount > 0 {
		avg = completedTokenSum / completedCount
	}
	remaining := int64(counts[memstore.SubtaskPending]+counts[memstore.SubtaskInProgress]) * avg

	return &ChainSummary{Chain: *chain, StatusCounts: counts, RemainingTokens: remaining}, nil
}

// StoreMergedResults records the caller-computed aggregation for a chain.
// When completeChain is true, the chain transitions to completed,
// completed_at is stamped, and the chain is removed from the active set.
func (c *RLMCoordinator) StoreMergedResults(ctx context.Context, ws kernel.WorkspaceID, chainID string, result memstore.MergedResults, completeChain bool) error {
	chain, err := c.getChain(ctx, ws, chainID)
	if err != nil {
		return err
	}
	if chain == nil {
		return memstore.NewNotFound("chain not found: " + chainID)
	}

	pipe := c.store.Pipeline()
	pipe.HSet(c.keys.RLMResults(ws, chainID), mergedResultsToFields(result))
	if completeChain {
		now := c.clock.Now()
		chain.Status = memstore.ChainCompleted
		chain.UpdatedAt = now
		chain.CompletedAt = ptrx.Time(now)
		pipe.HSet(c.keys.RLMChain(ws, chainID), chainToFields(*chain))
		pipe.SRem(c.keys.RLMExecutionsActive(ws), chainID)
	}
	if err := pipe.Exec(ctx); err != nil {
		return memstore.NewTransient("failed to persist merged results for chain "+chainID, err)
	}
	return nil
}

// GetMergedResults returns a chain's recorded aggregation, if any.
func (c *RLMCoordinator) GetMergedResults(ctx context.Context, ws kernel.WorkspaceID, chainID string) (*memstore.MergedResults, error) {
	fields, err := c.store.HGetAll(ctx, c.keys.RLMResults(ws, chainID))
	if err != nil {
		return nil, memstore.NewTransient("failed to read merged results for chain "+chainID, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	result := fieldsToMergedResults(fields)
	return &result, nil
}

// UpdateChainStatus drives the [active]→[completed|failed] transition
// directly, independent of StoreMergedResults. errorMessage is recorded
// only for a failed transition.
func (c *RLMCoordinator) UpdateChainStatus(ctx context.Context, ws kernel.WorkspaceID, chainID string, status memstore.ChainStatus, errorMessage string) (*memstore.ExecutionContext, error) {
	chain, err := c.getChain(ctx, ws, chainID)
	if err != nil {
		return nil, err
	}
	if chain == nil {
		return nil, memstore.NewNotFound("chain not found: " + chainID)
	}

	now := c.clock.Now()
	chain.Status = status
	chain.UpdatedAt = now
	if status == memstore.ChainFailed {
		chain.ErrorMessage = errorMessage
	}
	if status == memstore.ChainCompleted || status == memstore.ChainFailed {
		chain.CompletedAt = ptrx.Time(now)
	}

	pipe := c.store.Pipeline()
	pipe.HSet(c.keys.RLMChain(ws, chainID), chainToFields(*chain))
	if status == memstore.ChainCompleted || status == memstore.ChainFailed {
		pipe.SRem(c.keys.RLMExecutionsActive(ws), chainID)
	}
	if err := pipe.Exec(ctx); err != nil {
		return nil, memstore.NewTransient("failed to update chain status for "+chainID, err)
	}
	return chain, nil
}

// ListChains returns every chain in ws, or only active ones when
// activeOnly is set.
func (c *RLMCoordinator) ListChains(ctx context.Context, ws kernel.WorkspaceID, activeOnly bool) ([]memstore.ExecutionContext, error) {
	key := c.keys.RLMExecutions(ws)
	if activeOnly {
		key = c.keys.RLMExecutionsActive(ws)
	}
	ids, err := c.store.SMembers(ctx, key)
	if err != nil {
		return nil, memstore.NewTransient("failed to list chains", err)
	}

	out := make([]memstore.ExecutionContext, 0, len(ids))
	for _, id := range ids {
		chain, err := c.getChain(ctx, ws, id)
		if err != nil {
			return nil, err
		}
		if chain == nil {
			continue
		}
		out = append(out, *chain)
	}
	return out, nil
}

// DeleteChain removes every subtask, the subtasks index, the stored
// context, results, the chain hash, and its set memberships.
func (c *RLMCoordinator) DeleteChain(ctx context.Context, ws kernel.WorkspaceID, chainID string) (bool, error) {
	chain, err := c.getChain(ctx, ws, chainID)
	if err != nil {
		return false, err
	}
	if chain == nil {
		return false, nil
	}

	subtaskIDs, err := c.store.ZRange(ctx, c.keys.RLMSubtasks(ws, chainID), 0, -1)
	if err != nil {
		return false, memstore.NewTransient("failed to list subtasks for chain "+chainID, err)
	}

	pipe := c.store.Pipeline()
	for _, id := range subtaskIDs {
		pipe.Del(c.keys.RLMSubtask(ws, chainID, id))
	}
	pipe.Del(c.keys.RLMSubtasks(ws, chainID))
	pipe.Del(c.keys.RLMContext(ws, chainID))
	pipe.Del(c.keys.RLMResults(ws, chainID))
	pipe.Del(c.keys.RLMChain(ws, chainID))
	pipe.SRem(c.keys.RLMExecutions(ws), chainID)
	pipe.SRem(c.keys.RLMExecutionsActive(ws), chainID)
	if err := pipe.Exec(ctx); err != nil {
		return false, memstore.NewTransient("failed to delete chain "+chainID, err)
	}
	return true, nil
}
