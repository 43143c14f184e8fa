package memstorecontainer

import (
	"context"
	"fmt"
	"os"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/cortexdb/cortex/pkg/errx"
	"github.com/cortexdb/cortex/pkg/kernel"
	"github.com/cortexdb/cortex/pkg/logx"
	"github.com/cortexdb/cortex/pkg/memstore"
	"github.com/cortexdb/cortex/pkg/memstore/memstoreinfra"
	"github.com/cortexdb/cortex/pkg/memstore/memstorellm"
	"github.com/cortexdb/cortex/pkg/memstore/memstorellm/llmanthropic"
	"github.com/cortexdb/cortex/pkg/memstore/memstorellm/llmazure"
	"github.com/cortexdb/cortex/pkg/memstore/memstorellm/llmbedrock"
	"github.com/cortexdb/cortex/pkg/memstore/memstorellm/llmgemini"
	"github.com/cortexdb/cortex/pkg/memstore/memstorellm/llmopenai"
	"github.com/cortexdb/cortex/pkg/memstore/memstoresrv"
	"github.com/redis/go-redis/v9"
)

// Container holds the fully-wired memory store domain: the storage
// backend, the selected LLM completer, and every engine built on top of
// it, composed in the order their constructors demand.
type Container struct {
	Config    Config
	Workspace kernel.WorkspaceID
	Redis     *redis.Client

	Store    memstore.StorageClient
	Embedder *memstore.EmbeddingBuilder

	Memory        *memstoresrv.MemoryStore
	Versions      *memstoresrv.VersionEngine
	Relationships *memstoresrv.RelationshipEngine
	RLM           *memstoresrv.RLMCoordinator
	Analyzer      *memstoresrv.ConversationAnalyzer
	PromptFormat  *memstoresrv.PromptFormatter
}

// New builds a Container from cfg. When cfg.BackendURL parses as a Redis
// URL it connects to Redis; callers that want the in-memory test double
// instead should build memstoreinfra.NewInMemoryStorageClient() and use
// NewWithStore.
func New(ctx context.Context, cfg Config) (*Container, error) {
	opts, err := redis.ParseURL(cfg.BackendURL)
	if err != nil {
		return nil, fmt.Errorf("memstorecontainer: invalid MEMSTORE_REDIS_URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	if cfg.RedisDB != 0 {
		opts.DB = cfg.RedisDB
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("memstorecontainer: redis connection failed: %w", err)
	}
	logx.Info("  ✅ memstore Redis connected")

	store := memstoreinfra.NewRedisStorageClient(rdb)
	c, err := NewWithStore(ctx, cfg, store)
	if err != nil {
		return nil, err
	}
	c.Redis = rdb
	return c, nil
}

// NewWithStore builds a Container over an already-constructed
// StorageClient (production Redis, or memstoreinfra's in-memory double for
// tests), selecting and wiring an LLM provider from cfg the same way.
func NewWithStore(ctx context.Context, cfg Config, store memstore.StorageClient) (*Container, error) {
	completer, err := buildCompleter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// A nil completer must stay a nil KeywordExtractor interface so
	// EmbeddingBuilder takes its empty-keyword fallback path.
	var keywords memstore.KeywordExtractor
	if completer != nil {
		keywords = memstorellm.NewKeywordExtractor(completer)
	}
	embedder := memstore.NewEmbeddingBuilder(keywords)
	clock := memstoresrv.SystemClock

	// VersionEngine must be constructed before MemoryStore, then bound to
	// it once MemoryStore exists, to close their mutual dependency.
	versions := memstoresrv.NewVersionEngine(store, clock)
	mem := memstoresrv.NewMemoryStore(store, embedder, versions, clock)
	versions.Bind(mem)

	relationships := memstoresrv.NewRelationshipEngine(store, mem, clock)
	rlm := memstoresrv.NewRLMCoordinator(store, clock)
	analyzer := memstoresrv.NewConversationAnalyzer(completer)
	formatter := memstoresrv.NewPromptFormatter()

	c := &Container{
		Config:        cfg,
		Workspace:     memstore.HashWorkspacePath(cfg.WorkspacePath),
		Store:         store,
		Embedder:      embedder,
		Memory:        mem,
		Versions:      versions,
		Relationships: relationships,
		RLM:           rlm,
		Analyzer:      analyzer,
		PromptFormat:  formatter,
	}

	if cfg.SeedBuiltinTemplates {
		if err := mem.SeedBuiltinTemplates(ctx); err != nil {
			return nil, fmt.Errorf("memstorecontainer: seeding builtin templates: %w", err)
		}
		logx.Info("  ✅ memstore builtin templates seeded")
	}

	return c, nil
}

// buildCompleter selects one LLM vendor adapter from cfg.LLMProvider. A
// provider of "none" (or an empty key) leaves the completer nil:
// EmbeddingBuilder and ConversationAnalyzer both treat a nil/absent
// completer as "no credential" rather than an error.
func buildCompleter(ctx context.Context, cfg Config) (memstorellm.Completer, error) {
	if cfg.LLMProvider == "none" || cfg.LLMAPIKey == "" {
		logx.Info("  ⚠️  memstore running without an LLM provider (keyword/analysis features degraded)")
		return nil, nil
	}

	switch cfg.LLMProvider {
	case "anthropic":
		model := cfg.LLMModel
		if model == "" {
			model = "claude-3-5-haiku-latest"
		}
		return llmanthropic.New(cfg.LLMAPIKey, model), nil

	case "openai":
		model := cfg.LLMModel
		if model == "" {
			model = "gpt-4o-mini"
		}
		return llmopenai.New(cfg.LLMAPIKey, model), nil

	case "gemini":
		model := cfg.LLMModel
		if model == "" {
			model = "gemini-1.5-flash"
		}
		return llmgemini.New(ctx, cfg.LLMAPIKey, model)

	case "bedrock":
		model := cfg.LLMModel
		if model == "" {
			model = "anthropic.claude-3-5-haiku-20241022-v1:0"
		}
		awsCfg, err := awsConfig.LoadDefaultConfig(ctx, awsConfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("memstorecontainer: loading AWS config for bedrock: %w", err)
		}
		return llmbedrock.New(awsCfg, model), nil

	case "azure":
		if cfg.AzureEndpoint == "" || cfg.AzureDeployment == "" {
			return nil, errx.Validation("azure LLM provider requires AZURE_OPENAI_ENDPOINT and AZURE_OPENAI_DEPLOYMENT")
		}
		return llmazure.New(cfg.AzureEndpoint, cfg.LLMAPIKey, cfg.AzureAPIVersion, cfg.AzureDeployment), nil

	default:
		return nil, fmt.Errorf("memstorecontainer: unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

// CurrentScope resolves the scope an operation entering now should read
// under. The workspace mode is re-read from the environment on every call
// rather than memoized, so a mode toggle takes effect on the very next
// operation.
func (c *Container) CurrentScope() memstore.Scope {
	mode := c.Config.WorkspaceMode
	if raw := os.Getenv("MEMSTORE_WORKSPACE_MODE"); raw != "" {
		mode = parseWorkspaceMode(raw)
	}
	return memstore.Scope{Workspace: c.Workspace, Mode: mode}
}

// Cleanup releases the Redis connection, if one was opened by New.
func (c *Container) Cleanup() {
	if c.Redis == nil {
		return
	}
	if err := c.Redis.Close(); err != nil {
		logx.Errorf("error closing memstore Redis connection: %v", err)
		return
	}
	logx.Info("  ✅ memstore Redis connection closed")
}
