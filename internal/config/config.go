// Package config loads and validates troika.yml. Validation is strict and
// fail-fast: a config that would only blow up mid-run is rejected at load
// time, before any model or network call is made.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where Load looks when no path is given.
const DefaultPath = "troika.yml"

// Config represents the top-level troika.yml configuration.
type Config struct {
	Version      string              `yaml:"version"`
	Model        ModelConfig         `yaml:"model"`
	Retrieval    RetrievalConfig     `yaml:"retrieval"`
	Orchestrator *OrchestratorConfig `yaml:"orchestrator,omitempty"`
	Redis        RedisConfig         `yaml:"redis,omitempty"`
	Output       OutputConfig        `yaml:"output,omitempty"`
	Server       ServerConfig        `yaml:"server,omitempty"`
	Logging      LoggingConfig       `yaml:"logging,omitempty"`
}

// ModelConfig selects the language model every stage and judgment call uses.
type ModelConfig struct {
	Name            string `yaml:"name"`
	APIKeyEnv       string `yaml:"api_key_env,omitempty"`       // Env var holding the API key (default: GEMINI_API_KEY)
	MaxOutputTokens int    `yaml:"max_output_tokens,omitempty"` // 0 = provider default
}

// RetrievalConfig bounds the web retrieval loop.
type RetrievalConfig struct {
	MaxRounds      int `yaml:"max_rounds"`  // Search rounds per retriever invocation
	MaxResults     int `yaml:"max_results"` // Results kept per round
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`
}

// OrchestratorConfig bounds the review/rework loop.
type OrchestratorConfig struct {
	RetryBudget *int `yaml:"retry_budget,omitempty"` // Extra invocations per stage (default = 1)
}

// RedisConfig, when addr is set, backs run boards with Redis so other
// processes can watch them. Empty addr keeps boards in-process.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// OutputConfig controls where terminal results are written.
type OutputConfig struct {
	Dir        string `yaml:"dir,omitempty"`
	ResultFile string `yaml:"result_file,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr,omitempty"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error (default: info)
	Format string `yaml:"format,omitempty"` // json or console (default: json)
}

// Default returns the configuration used when no troika.yml exists. The
// model API key still has to come from the environment.
func Default() *Config {
	cfg := &Config{
		Version: "1.0",
		Model: ModelConfig{
			Name: "gemini-2.0-flash",
		},
		Retrieval: RetrievalConfig{
			MaxRounds:  3,
			MaxResults: 5,
		},
	}
	// Validate never fails on the defaults; it just fills the rest in.
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return cfg
}

// Validate performs strict validation and applies defaults for omitted
// optional fields.
func (c *Config) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Model.Name == "" {
		return fmt.Errorf("model.name is required")
	}
	if c.Model.APIKeyEnv == "" {
		c.Model.APIKeyEnv = "GEMINI_API_KEY"
	}
	if c.Model.MaxOutputTokens < 0 {
		return fmt.Errorf("model.max_output_tokens must be >= 0, got %d", c.Model.MaxOutputTokens)
	}

	if c.Retrieval.MaxRounds <= 0 {
		return fmt.Errorf("retrieval.max_rounds must be > 0, got %d", c.Retrieval.MaxRounds)
	}
	if c.Retrieval.MaxResults <= 0 {
		return fmt.Errorf("retrieval.max_results must be > 0, got %d", c.Retrieval.MaxResults)
	}
	if c.Retrieval.TimeoutSeconds < 0 {
		return fmt.Errorf("retrieval.timeout_seconds must be >= 0, got %d", c.Retrieval.TimeoutSeconds)
	}
	if c.Retrieval.TimeoutSeconds == 0 {
		c.Retrieval.TimeoutSeconds = 10
	}

	if c.Orchestrator == nil {
		c.Orchestrator = &OrchestratorConfig{}
	}
	if c.Orchestrator.RetryBudget == nil {
		defaultBudget := 1
		c.Orchestrator.RetryBudget = &defaultBudget
	}
	if *c.Orchestrator.RetryBudget < 0 {
		return fmt.Errorf("orchestrator.retry_budget must be >= 0, got %d", *c.Orchestrator.RetryBudget)
	}

	if c.Redis.DB < 0 {
		return fmt.Errorf("redis.db must be >= 0, got %d", c.Redis.DB)
	}

	if c.Output.Dir == "" {
		c.Output.Dir = "output"
	}
	if c.Output.ResultFile == "" {
		c.Output.ResultFile = "result.json"
	}

	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}

	switch c.Logging.Level {
	case "":
		c.Logging.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s (must be 'debug', 'info', 'warn', or 'error')", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "":
		c.Logging.Format = "json"
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging.format: %s (must be 'json' or 'console')", c.Logging.Format)
	}

	return nil
}

// APIKey resolves the model API key from the configured environment
// variable.
func (c *Config) APIKey() (string, error) {
	key := os.Getenv(c.Model.APIKeyEnv)
	if key == "" {
		return "", fmt.Errorf("environment variable %s is not set", c.Model.APIKeyEnv)
	}
	return key, nil
}

// Load reads and validates the configuration at the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// LoadOrDefault loads the config at path, falling back to the built-in
// defaults when the file does not exist. An unreadable or invalid file is
// still an error.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}
