// Package memstore is the memory-engine domain: the data model, the
// StorageClient port it is persisted through, and the pure helpers
// (key scheme, workspace hashing, embedding) every engine in
// memstoresrv builds on.
package memstore

import (
	"time"

	"github.com/cortexdb/cortex/pkg/kernel"
)

// ContextType classifies a MemoryEntry.
type ContextType string

const (
	ContextDirective   ContextType = "directive"
	ContextInformation ContextType = "information"
	ContextHeading     ContextType = "heading"
	ContextDecision    ContextType = "decision"
	ContextCodePattern ContextType = "code_pattern"
	ContextRequirement ContextType = "requirement"
	ContextError       ContextType = "error"
	ContextTodo        ContextType = "todo"
	ContextInsight     ContextType = "insight"
	ContextPreference  ContextType = "preference"
)

func validContextType(t ContextType) bool {
	switch t {
	case ContextDirective, ContextInformation, ContextHeading, ContextDecision,
		ContextCodePattern, ContextRequirement, ContextError, ContextTodo,
		ContextInsight, ContextPreference:
		return true
	}
	return false
}

// EmbeddingSize is the fixed, compile-time length of every embedding vector.
const EmbeddingSize = 128

// WorkspaceMode governs how workspace- and global-scoped reads combine.
type WorkspaceMode string

const (
	ModeIsolated WorkspaceMode = "isolated"
	ModeHybrid   WorkspaceMode = "hybrid"
	ModeGlobal   WorkspaceMode = "global"
)

// GlobalBias is the similarity multiplier applied to global-scope results
// in hybrid mode, biasing ranking toward local/workspace context.
const GlobalBias = 0.9

// Scope selects which namespace(s) an operation reads or writes. It is
// threaded explicitly from the caller at every operation entry — it is
// never memoized on an engine (see spec design note on workspace mode).
type Scope struct {
	Workspace kernel.WorkspaceID
	Mode      WorkspaceMode
}

// MemoryEntry is one persisted, structured remembered fact.
type MemoryEntry struct {
	ID          string
	Timestamp   int64 // milliseconds since epoch
	ContextType ContextType
	Content     string
	Summary     string
	Tags        []string
	Importance  int
	SessionID   string
	Embedding   []float32
	TTLSeconds  *int
	ExpiresAt   *int64
	IsGlobal    bool
	WorkspaceID kernel.WorkspaceID
	Category    string
}

// DeriveSummary returns the stored summary, or the first 100 characters of
// content followed by an ellipsis when no summary was supplied.
func DeriveSummary(summary, content string) string {
	if summary != "" {
		return summary
	}
	r := []rune(content)
	if len(r) <= 100 {
		return content
	}
	return string(r[:100]) + "…"
}

// SessionInfo is a workspace-scoped grouping of memories.
type SessionInfo struct {
	SessionID   string
	SessionName string
	CreatedAt   int64
	MemoryCount int
	Summary     string
	MemoryIDs   []string
}

// RelationshipType names the kind of edge between two memories.
type RelationshipType string

const (
	RelRelatesTo  RelationshipType = "relates_to"
	RelParentOf   RelationshipType = "parent_of"
	RelChildOf    RelationshipType = "child_of"
	RelReferences RelationshipType = "references"
	RelSupersedes RelationshipType = "supersedes"
	RelImplements RelationshipType = "implements"
	RelExampleOf  RelationshipType = "example_of"
)

func validRelationshipType(t RelationshipType) bool {
	switch t {
	case RelRelatesTo, RelParentOf, RelChildOf, RelReferences, RelSupersedes, RelImplements, RelExampleOf:
		return true
	}
	return false
}

// MemoryRelationship is a typed directed edge between two memory entries.
type MemoryRelationship struct {
	ID               string
	FromMemoryID     string
	ToMemoryID       string
	RelationshipType RelationshipType
	CreatedAt        time.Time
	Metadata         map[string]any
}

// VersionAuthor distinguishes a user-driven update from a system rollback
// snapshot.
type VersionAuthor string

const (
	AuthorUser   VersionAuthor = "user"
	AuthorSystem VersionAuthor = "system"
)

// MemoryVersion is an immutable snapshot of a memory's mutable fields.
type MemoryVersion struct {
	VersionID    string
	MemoryID     string
	CreatedAt    time.Time
	CreatedBy    VersionAuthor
	ChangeReason string

	Content     string
	ContextType ContextType
	Importance  int
	Tags        []string
	Summary     string
}

// MemoryTemplate is a reusable `{{variable}}`-templated memory shape.
type MemoryTemplate struct {
	TemplateID        string
	Name              string
	Description       string
	ContextType       ContextType
	ContentTemplate   string
	DefaultTags       []string
	DefaultImportance int
	IsBuiltin         bool
	CreatedAt         time.Time
}

// ChainStatus is the lifecycle state of an RLM execution chain.
type ChainStatus string

const (
	ChainActive    ChainStatus = "active"
	ChainCompleted ChainStatus = "completed"
	ChainFailed    ChainStatus = "failed"
)

// Strategy is the decomposition approach chosen for an execution chain.
type Strategy string

const (
	StrategyFilter    Strategy = "filter"
	StrategyChunk     Strategy = "chunk"
	StrategyRecursive Strategy = "recursive"
	StrategyAggregate Strategy = "aggregate"
)

// ExecutionContext is an RLM chain: an oversized task whose context is
// stored out-of-band and processed via ordered subtasks.
type ExecutionContext struct {
	ChainID         string
	ParentChainID   string
	Depth           int
	Status          ChainStatus
	OriginalTask    string
	ContextRef      string
	Strategy        Strategy
	EstimatedTokens int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
	ErrorMessage    string
}

// SubtaskStatus is the lifecycle state of one Subtask.
type SubtaskStatus string

const (
	SubtaskPending    SubtaskStatus = "pending"
	SubtaskInProgress SubtaskStatus = "in_progress"
	SubtaskCompleted  SubtaskStatus = "completed"
	SubtaskFailed     SubtaskStatus = "failed"
)

// Subtask is one ordered unit of work within an RLM chain.
type Subtask struct {
	ID          string
	ChainID     string
	Order       int
	Description string
	Status      SubtaskStatus
	Query       string
	Result      string
	MemoryIDs   []string
	TokensUsed  *int64
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// MergedResults is the coordinator's record of an aggregated chain outcome.
type MergedResults struct {
	AggregatedResult  string
	Confidence        float64
	SourceCoverage    float64
	SubtasksCompleted int
	SubtasksTotal     int
}

// AnalyzedMemory is one structured memory candidate extracted by the
// ConversationAnalyzer from raw conversation text. It is plain data —
// ConversationAnalyzer never persists.
type AnalyzedMemory struct {
	Content     string
	ContextType ContextType
	Importance  int
	Tags        []string
	Summary     string
}
