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

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Cache drivers.
const (
	CacheDriverFile  = "file"
	CacheDriverRedis = "redis"
)

// LLM providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds the triage service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	KB        KBConfig        `yaml:"kb"`
	Cache     CacheConfig     `yaml:"cache"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Triage    TriageConfig    `yaml:"triage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"` // debug, info, warn, error (default: determined by env)
	File       string `yaml:"file"`  // empty = stdout only
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int    `yaml:"port"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	ShutdownSec     int    `yaml:"shutdown_timeout_sec"`
	StaticDir       string `yaml:"static_dir"` // served under /ui; empty disables
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	Disabled          bool    `yaml:"disabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	TrustForwarded    bool    `yaml:"trust_forwarded"`
}

// KBConfig holds knowledge base settings.
type KBConfig struct {
	Path string `yaml:"path"` // .json, .yaml or .yml
	TopK int    `yaml:"top_k"`
}

// CacheConfig holds embedding cache persistence settings.
type CacheConfig struct {
	Driver           string   `yaml:"driver"` // file, redis (default: file)
	Path             string   `yaml:"path"`   // file driver
	Addrs            []string `yaml:"addrs"`  // redis driver
	Password         string   `yaml:"password"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	PacingMs         int      `yaml:"pacing_ms"`
	// DescriptionTTLHours bounds cached description vectors (redis driver). Negative = no expiry.
	DescriptionTTLHours int `yaml:"description_ttl_hours"`
}

// EmbeddingConfig holds embedding provider settings. An empty APIKey selects keyword-only scoring.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	TimeoutSec int    `yaml:"timeout_sec"`

	// Instruction is prepended to every embedded text (instruction-tuned models).
	Instruction string `yaml:"instruction"`
}

// RetryConfig holds a bounded exponential backoff policy.
type RetryConfig struct {
	MaxAttempts int     `yaml:"max_attempts"`
	BaseDelayMs int     `yaml:"base_delay_ms"`
	Multiplier  float64 `yaml:"multiplier"`
}

// CollaboratorConfig holds per-collaborator LLM call settings.
type CollaboratorConfig struct {
	Model      string      `yaml:"model"` // overrides llm.model
	TimeoutSec int         `yaml:"timeout_sec"`
	Retry      RetryConfig `yaml:"retry"`
}

// LLMConfig holds language model settings. An empty APIKey disables the model path.
type LLMConfig struct {
	Provider  string             `yaml:"provider"` // openai, anthropic (default: openai)
	APIKey    string             `yaml:"api_key"`
	BaseURL   string             `yaml:"base_url"`
	Model     string             `yaml:"model"`
	Extractor CollaboratorConfig `yaml:"extractor"`
	Suggester CollaboratorConfig `yaml:"suggester"`
}

// Enabled reports whether a language model is configured.
func (c LLMConfig) Enabled() bool { return c.APIKey != "" }

// TriageConfig holds decision settings.
type TriageConfig struct {
	// MatchThreshold is the inclusive known-issue cutoff in [0, 1]. Unset selects 0.6;
	// 0 classifies every ticket with a candidate match as known.
	MatchThreshold *float64 `yaml:"match_threshold"`
}

// DefaultMatchThreshold applies when triage.match_threshold is unset.
const DefaultMatchThreshold = 0.6

// Load reads configuration from a YAML file by environment name (local, dev, prod).
// A .env file in the working directory is loaded first; existing variables win.
func Load(env string) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	configPath := findConfigPath(env)

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

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}
	return cfg
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
	if c.HTTP.Port <= 0 {
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
	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = 1
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 1
	}
	if c.KB.Path == "" {
		c.KB.Path = "kb/kb.json"
	}
	if c.KB.TopK <= 0 {
		c.KB.TopK = 3
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = CacheDriverFile
	}
	if c.Cache.Path == "" {
		c.Cache.Path = "kb/embeddings.json"
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "triage:"
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if c.Cache.DescriptionTTLHours == 0 {
		c.Cache.DescriptionTTLHours = 168
	}
	if c.Cache.PacingMs <= 0 {
		c.Cache.PacingMs = 100
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 10
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderOpenAI
	}
	// The OpenAI chat and embedding endpoints share credentials unless set apart.
	if c.LLM.Provider == ProviderOpenAI && c.LLM.APIKey == "" {
		c.LLM.APIKey = c.Embedding.APIKey
		if c.LLM.BaseURL == "" {
			c.LLM.BaseURL = c.Embedding.BaseURL
		}
	}
	if c.LLM.Extractor.TimeoutSec <= 0 {
		c.LLM.Extractor.TimeoutSec = 20
	}
	applyRetryDefaults(&c.LLM.Extractor.Retry, 3, 1200, 2)
	if c.LLM.Suggester.TimeoutSec <= 0 {
		c.LLM.Suggester.TimeoutSec = 15
	}
	applyRetryDefaults(&c.LLM.Suggester.Retry, 1, 0, 1)
	if c.Triage.MatchThreshold == nil {
		threshold := DefaultMatchThreshold
		c.Triage.MatchThreshold = &threshold
	}
	if c.Logging.File != "" {
		if c.Logging.MaxSizeMB <= 0 {
			c.Logging.MaxSizeMB = 100
		}
		if c.Logging.MaxBackups <= 0 {
			c.Logging.MaxBackups = 3
		}
		if c.Logging.MaxAgeDays <= 0 {
			c.Logging.MaxAgeDays = 28
		}
	}
}

func applyRetryDefaults(r *RetryConfig, attempts, baseMs int, mult float64) {
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = attempts
	}
	if r.BaseDelayMs <= 0 {
		r.BaseDelayMs = baseMs
	}
	if r.Multiplier <= 0 {
		r.Multiplier = mult
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Cache.Driver {
	case CacheDriverFile:
	case CacheDriverRedis:
		if len(c.Cache.Addrs) == 0 {
			return errors.New("cache.addrs is required for the redis driver")
		}
	default:
		return fmt.Errorf("cache.driver must be \"file\" or \"redis\", got %q", c.Cache.Driver)
	}
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("llm.provider must be \"openai\" or \"anthropic\", got %q", c.LLM.Provider)
	}
	if t := c.Triage.MatchThreshold; t != nil && (*t < 0 || *t > 1) {
		return fmt.Errorf("triage.match_threshold must be in [0, 1], got %v", *t)
	}
	if c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate_limit.burst must be at least 1, got %d", c.RateLimit.Burst)
	}
	return nil
}

// loadDotEnv loads KEY=VALUE pairs from path without overriding the environment.
// A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
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
