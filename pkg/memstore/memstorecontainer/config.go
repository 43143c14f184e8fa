// Package memstorecontainer is the composition root for the memory store
// domain: it selects a StorageClient backend and an LLM provider from
// environment configuration and wires every memstoresrv engine together in
// the order their constructors require.
package memstorecontainer

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cortexdb/cortex/pkg/memstore"
)

// Config carries every environment-driven option this domain needs:
// backend, workspace and LLM options plus connection-pool sizing and
// vendor selection.
type Config struct {
	BackendURL string
	RedisDB    int
	PoolSize   int

	WorkspacePath string
	WorkspaceMode memstore.WorkspaceMode

	LLMProvider string // anthropic | openai | gemini | bedrock | azure | none
	LLMAPIKey   string
	LLMModel    string

	AzureEndpoint   string
	AzureAPIVersion string
	AzureDeployment string

	AWSRegion string

	SeedBuiltinTemplates bool
	ConnectTimeout       time.Duration
}

// LoadConfigFromEnv reads Config from the process environment.
func LoadConfigFromEnv() Config {
	return Config{
		BackendURL: getEnv("MEMSTORE_REDIS_URL", "redis://localhost:6379/0"),
		RedisDB:    getEnvInt("MEMSTORE_REDIS_DB", 0),
		PoolSize:   getEnvInt("MEMSTORE_REDIS_POOL_SIZE", 10),

		WorkspacePath: getEnv("MEMSTORE_WORKSPACE_PATH", defaultWorkspacePath()),
		WorkspaceMode: parseWorkspaceMode(getEnv("MEMSTORE_WORKSPACE_MODE", "")),

		LLMProvider: strings.ToLower(getEnv("LLM_PROVIDER", "none")),
		LLMAPIKey:   getEnv("LLM_API_KEY", ""),
		LLMModel:    getEnv("LLM_MODEL", ""),

		AzureEndpoint:   getEnv("AZURE_OPENAI_ENDPOINT", ""),
		AzureAPIVersion: getEnv("AZURE_OPENAI_API_VERSION", "2024-06-01"),
		AzureDeployment: getEnv("AZURE_OPENAI_DEPLOYMENT", ""),

		AWSRegion: getEnv("AWS_REGION", "us-east-1"),

		SeedBuiltinTemplates: getEnv("MEMSTORE_SEED_TEMPLATES", "true") != "false",
		ConnectTimeout:       getEnvDuration("MEMSTORE_CONNECT_TIMEOUT", 5*time.Second),
	}
}

func defaultWorkspacePath() string {
	wd, err := os.Getwd()
	if err != nil {
		return "/"
	}
	return wd
}

func parseWorkspaceMode(raw string) memstore.WorkspaceMode {
	switch memstore.WorkspaceMode(strings.ToLower(raw)) {
	case memstore.ModeHybrid:
		return memstore.ModeHybrid
	case memstore.ModeGlobal:
		return memstore.ModeGlobal
	default:
		return memstore.ModeIsolated
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
