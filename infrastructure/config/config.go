// Package config loads the agent configuration from defaults, an optional
// YAML file, .env.local and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"crm-ai-agent/domain"
)

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
)

// Backend names shared by the vector store, learning corpus and repository.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendQdrant   = "qdrant"
	BackendPostgres = "postgres"
)

var (
	ErrMissingAPIKey   = errors.New("missing API key for configured provider")
	ErrUnknownProvider = errors.New("unknown provider")
	ErrUnknownBackend  = errors.New("unknown backend")
)

// Config is the root configuration.
type Config struct {
	LLM         LLMConfig         `yaml:"llm"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Learning    LearningConfig    `yaml:"learning"`
	Repository  RepositoryConfig  `yaml:"repository"`
	Agent       AgentConfig       `yaml:"agent"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LLMConfig selects the text completion provider.
type LLMConfig struct {
	Provider     string `yaml:"provider"`
	Model        string `yaml:"model"`
	MaxTokens    int    `yaml:"max_tokens"`
	OpenAIKey    string `yaml:"openai_api_key"`
	AnthropicKey string `yaml:"anthropic_api_key"`
	GeminiKey    string `yaml:"gemini_api_key"`
	OllamaHost   string `yaml:"ollama_host"`
}

// EmbeddingConfig selects the embedding provider. An empty provider
// follows the LLM provider, except for Anthropic which has no embeddings.
type EmbeddingConfig struct {
	Provider string        `yaml:"provider"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// VectorStoreConfig selects the entity embedding store.
type VectorStoreConfig struct {
	Backend          string `yaml:"backend"`
	SQLitePath       string `yaml:"sqlite_path"`
	QdrantAddr       string `yaml:"qdrant_addr"`
	QdrantCollection string `yaml:"qdrant_collection"`
	Dimensions       int    `yaml:"dimensions"`
	DatabaseURL      string `yaml:"database_url"`
}

// LearningConfig selects the learning corpus backend.
type LearningConfig struct {
	Backend      string        `yaml:"backend"`
	SQLitePath   string        `yaml:"sqlite_path"`
	DatabaseURL  string        `yaml:"database_url"`
	TopK         int           `yaml:"top_k"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RepositoryConfig selects the business entity repository.
type RepositoryConfig struct {
	Backend           string `yaml:"backend"`
	SQLitePath        string `yaml:"sqlite_path"`
	UniqueClientEmail bool   `yaml:"unique_client_email"`
}

// AgentConfig holds pipeline tunables.
type AgentConfig struct {
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	SearchLimit         int           `yaml:"search_limit"`
	ListLimit           int           `yaml:"list_limit"`
	QuotePrefix         string        `yaml:"quote_prefix"`
	ClassifierTimeout   time.Duration `yaml:"classifier_timeout"`
	SummaryTimeout      time.Duration `yaml:"summary_timeout"`
	ExtractTimeout      time.Duration `yaml:"extract_timeout"`
	ReindexConcurrency  int           `yaml:"reindex_concurrency"`
	Locale              string        `yaml:"locale"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:   ProviderOpenAI,
			MaxTokens:  1024,
			OllamaHost: "http://localhost:11434",
		},
		Embedding: EmbeddingConfig{
			Timeout: 10 * time.Second,
		},
		VectorStore: VectorStoreConfig{
			Backend:          BackendMemory,
			SQLitePath:       "crm-agent.db",
			QdrantAddr:       "localhost:6334",
			QdrantCollection: "crm_embeddings",
			Dimensions:       1536,
		},
		Learning: LearningConfig{
			Backend:      BackendMemory,
			SQLitePath:   "crm-agent.db",
			TopK:         3,
			WriteTimeout: 10 * time.Second,
		},
		Repository: RepositoryConfig{
			Backend:           BackendMemory,
			SQLitePath:        "crm-agent.db",
			UniqueClientEmail: true,
		},
		Agent: AgentConfig{
			SimilarityThreshold: domain.DefaultSimilarityThreshold,
			SearchLimit:         10,
			ListLimit:           10,
			QuotePrefix:         "COT",
			ClassifierTimeout:   15 * time.Second,
			SummaryTimeout:      20 * time.Second,
			ExtractTimeout:      15 * time.Second,
			ReindexConcurrency:  4,
			Locale:              "es",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, err
		}
	}

	_ = godotenv.Load(".env.local")
	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func loadFromEnv(cfg *Config) {
	setString(&cfg.LLM.OpenAIKey, "OPENAI_API_KEY")
	setString(&cfg.LLM.AnthropicKey, "ANTHROPIC_API_KEY")
	setString(&cfg.LLM.GeminiKey, "GEMINI_API_KEY")
	setString(&cfg.LLM.OllamaHost, "OLLAMA_HOST")
	setString(&cfg.LLM.Provider, "CRM_LLM_PROVIDER")
	setString(&cfg.LLM.Model, "CRM_LLM_MODEL")

	setString(&cfg.Embedding.Provider, "CRM_EMBEDDING_PROVIDER")
	setString(&cfg.Embedding.Model, "CRM_EMBEDDING_MODEL")

	setString(&cfg.VectorStore.Backend, "CRM_VECTOR_BACKEND")
	setString(&cfg.VectorStore.QdrantAddr, "QDRANT_ADDR")
	setString(&cfg.VectorStore.QdrantCollection, "QDRANT_COLLECTION_NAME")
	setString(&cfg.VectorStore.DatabaseURL, "DATABASE_URL")
	setString(&cfg.Learning.Backend, "CRM_LEARNING_BACKEND")
	setString(&cfg.Learning.DatabaseURL, "DATABASE_URL")
	setString(&cfg.Repository.Backend, "CRM_REPOSITORY_BACKEND")

	if v := os.Getenv("CRM_SQLITE_PATH"); v != "" {
		cfg.VectorStore.SQLitePath = v
		cfg.Learning.SQLitePath = v
		cfg.Repository.SQLitePath = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("CRM_SIMILARITY_THRESHOLD"), 64); err == nil {
		cfg.Agent.SimilarityThreshold = v
	}
	if v, err := strconv.Atoi(os.Getenv("CRM_EMBEDDING_DIMENSIONS")); err == nil {
		cfg.VectorStore.Dimensions = v
	}
	setString(&cfg.Agent.QuotePrefix, "CRM_QUOTE_PREFIX")
	setString(&cfg.Logging.Level, "CRM_LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// EmbeddingProvider resolves the effective embedding provider.
func (c *Config) EmbeddingProvider() string {
	if c.Embedding.Provider != "" {
		return c.Embedding.Provider
	}
	if c.LLM.Provider == ProviderAnthropic {
		return ProviderOpenAI
	}
	return c.LLM.Provider
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.checkProvider(c.LLM.Provider); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	embed := c.EmbeddingProvider()
	if embed == ProviderAnthropic {
		return fmt.Errorf("embedding: %w: anthropic has no embedding endpoint", ErrUnknownProvider)
	}
	if err := c.checkProvider(embed); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}

	switch c.VectorStore.Backend {
	case BackendMemory, BackendSQLite, BackendQdrant:
	case BackendPostgres:
		if c.VectorStore.DatabaseURL == "" {
			return errors.New("vector_store: postgres backend requires database_url")
		}
	default:
		return fmt.Errorf("vector_store: %w %q", ErrUnknownBackend, c.VectorStore.Backend)
	}

	switch c.Learning.Backend {
	case BackendMemory, BackendSQLite:
	case BackendPostgres:
		if c.Learning.DatabaseURL == "" {
			return errors.New("learning: postgres backend requires database_url")
		}
	default:
		return fmt.Errorf("learning: %w %q", ErrUnknownBackend, c.Learning.Backend)
	}

	switch c.Repository.Backend {
	case BackendMemory, BackendSQLite:
	default:
		return fmt.Errorf("repository: %w %q", ErrUnknownBackend, c.Repository.Backend)
	}

	if c.Agent.SimilarityThreshold < 0 || c.Agent.SimilarityThreshold >= 1 {
		return fmt.Errorf("agent: similarity_threshold must be in [0, 1), got %v", c.Agent.SimilarityThreshold)
	}
	if c.Agent.QuotePrefix == "" {
		return errors.New("agent: quote_prefix must not be empty")
	}
	return nil
}

func (c *Config) checkProvider(name string) error {
	switch name {
	case ProviderOpenAI:
		if c.LLM.OpenAIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingAPIKey)
		}
	case ProviderAnthropic:
		if c.LLM.AnthropicKey == "" {
			return fmt.Errorf("%w: ANTHROPIC_API_KEY", ErrMissingAPIKey)
		}
	case ProviderGemini:
		if c.LLM.GeminiKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY", ErrMissingAPIKey)
		}
	case ProviderOllama:
	default:
		return fmt.Errorf("%w %q", ErrUnknownProvider, name)
	}
	return nil
}
