package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Index drivers.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverValkey = "valkey"
)

// Provider names.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderNone   = "none"
)

// Config holds the finrag configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Index     IndexConfig     `yaml:"index"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Generator GeneratorConfig `yaml:"generator"`
	Prompt    PromptConfig    `yaml:"prompt"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default: determined by env)
	Format string `yaml:"format"` // json, console (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	HealthProbeSec  int `yaml:"health_probe_timeout_sec"`
}

// IndexConfig selects and configures the vector index backend.
type IndexConfig struct {
	Driver           string   `yaml:"driver"` // sqlite (default), redis, valkey
	PersistDir       string   `yaml:"persist_dir"`
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	Collection       string   `yaml:"collection"`
	HNSWM            int      `yaml:"hnsw_m"`
	HNSWEFConstruct  int      `yaml:"hnsw_ef_construction"`
}

// ChunkingConfig holds the chunker window settings.
type ChunkingConfig struct {
	Mode    string `yaml:"mode"` // char (default), word
	Size    int    `yaml:"size"`
	Overlap int    `yaml:"overlap"`
}

// EmbeddingConfig holds the embedding provider settings.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"` // openai (default), ollama
	BaseURL           string  `yaml:"base_url"`
	APIKey            string  `yaml:"api_key"`
	Model             string  `yaml:"model"`
	Dimensions        int     `yaml:"dimensions"`
	BatchSize         int     `yaml:"batch_size"`
	Concurrency       int     `yaml:"concurrency"`
	RequestsPerSecond float64 `yaml:"requests_per_second"` // 0 = unlimited
	Cache             bool    `yaml:"cache"`
	CacheTTLHours     int     `yaml:"cache_ttl_hours"` // 0 = never expire
}

// CacheTTL returns how long cached embeddings live.
func (e EmbeddingConfig) CacheTTL() time.Duration {
	return time.Duration(e.CacheTTLHours) * time.Hour
}

// RerankConfig holds the cross-encoder reranker settings.
type RerankConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	KeepTop    int    `yaml:"keep_top"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// GeneratorConfig holds the answer generator settings.
type GeneratorConfig struct {
	Provider    string  `yaml:"provider"` // openai, ollama, none (default)
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TimeoutSec  int     `yaml:"timeout_sec"`
}

// PromptConfig holds the prompt template location.
type PromptConfig struct {
	TemplatePath string `yaml:"template_path"`
}

// RetrievalConfig bounds the retrieval depth.
type RetrievalConfig struct {
	DefaultK int `yaml:"default_k"`
	MaxK     int `yaml:"max_k"`
}

// CorpusConfig holds the corpus location used by the index command.
type CorpusConfig struct {
	Dir         string `yaml:"dir"`
	DebounceSec int    `yaml:"debounce_sec"`
}

// GeneratorTimeout returns the generator call timeout.
func (g GeneratorConfig) GeneratorTimeout() time.Duration {
	return time.Duration(g.TimeoutSec) * time.Second
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
// A .env file in the working directory is loaded first when present.
func Load(env string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit YAML file.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8000
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 90
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.HealthProbeSec <= 0 {
		c.HTTP.HealthProbeSec = 3
	}

	if c.Index.Driver == "" {
		c.Index.Driver = DriverSQLite
	}
	if c.Index.PersistDir == "" {
		c.Index.PersistDir = ".finrag"
	}
	if c.Index.ReadinessTimeout <= 0 {
		c.Index.ReadinessTimeout = 10
	}
	if c.Index.Collection == "" {
		c.Index.Collection = "sec_filings"
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}

	if c.Chunking.Mode == "" {
		c.Chunking.Mode = "char"
	}
	if c.Chunking.Size <= 0 {
		c.Chunking.Size = 1000
		if c.Chunking.Overlap == 0 {
			c.Chunking.Overlap = 150
		}
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = ProviderOpenAI
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 64
	}
	if c.Embedding.Concurrency <= 0 {
		c.Embedding.Concurrency = 4
	}

	if c.Rerank.KeepTop <= 0 {
		c.Rerank.KeepTop = 8
	}
	if c.Rerank.TimeoutSec <= 0 {
		c.Rerank.TimeoutSec = 10
	}

	if c.Generator.Provider == "" {
		c.Generator.Provider = ProviderNone
	}
	if c.Generator.Temperature == 0 {
		c.Generator.Temperature = 0.1
	}
	if c.Generator.MaxTokens <= 0 {
		c.Generator.MaxTokens = 600
	}
	if c.Generator.TimeoutSec <= 0 {
		c.Generator.TimeoutSec = 60
	}

	if c.Prompt.TemplatePath == "" {
		c.Prompt.TemplatePath = "prompts/answer_with_citations.txt"
	}

	if c.Retrieval.DefaultK <= 0 {
		c.Retrieval.DefaultK = 12
	}
	if c.Retrieval.MaxK <= 0 {
		c.Retrieval.MaxK = 50
	}

	if c.Corpus.Dir == "" {
		c.Corpus.Dir = "data/raw"
	}
	if c.Corpus.DebounceSec <= 0 {
		c.Corpus.DebounceSec = 2
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Index.Driver {
	case DriverSQLite:
	case DriverRedis, DriverValkey:
		if len(c.Index.Addrs) == 0 {
			return fmt.Errorf("index.addrs is required for driver %q", c.Index.Driver)
		}
	default:
		return fmt.Errorf("index.driver must be sqlite, redis or valkey, got %q", c.Index.Driver)
	}

	switch c.Chunking.Mode {
	case "char", "word":
	default:
		return fmt.Errorf("chunking.mode must be \"char\" or \"word\", got %q", c.Chunking.Mode)
	}
	if c.Chunking.Overlap < 0 {
		return fmt.Errorf("chunking.overlap must not be negative, got %d", c.Chunking.Overlap)
	}

	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("embedding.provider must be openai or ollama, got %q", c.Embedding.Provider)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if c.Embedding.RequestsPerSecond < 0 {
		return fmt.Errorf("embedding.requests_per_second must not be negative")
	}
	if c.Embedding.CacheTTLHours < 0 {
		return fmt.Errorf("embedding.cache_ttl_hours must not be negative")
	}

	if c.Rerank.Enabled && c.Rerank.URL == "" {
		return fmt.Errorf("rerank.url is required when rerank is enabled")
	}

	switch c.Generator.Provider {
	case ProviderNone:
	case ProviderOpenAI, ProviderOllama:
		if c.Generator.Model == "" {
			return fmt.Errorf("generator.model is required for provider %q", c.Generator.Provider)
		}
	default:
		return fmt.Errorf("generator.provider must be openai, ollama or none, got %q", c.Generator.Provider)
	}
	if c.Generator.Temperature < 0 || c.Generator.Temperature > 2 {
		return fmt.Errorf("generator.temperature must be in [0, 2], got %v", c.Generator.Temperature)
	}

	if c.Retrieval.DefaultK > c.Retrieval.MaxK {
		return fmt.Errorf("retrieval.default_k (%d) exceeds retrieval.max_k (%d)", c.Retrieval.DefaultK, c.Retrieval.MaxK)
	}

	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
