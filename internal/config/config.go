// Package config loads service configuration from a YAML file with
// NOTABENE_-prefixed environment overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/notabene-labs/notabene/internal/chunker"
	"github.com/notabene-labs/notabene/internal/embedding"
	"github.com/notabene-labs/notabene/internal/rag"
	"github.com/notabene-labs/notabene/internal/vector/qdrant"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig          `mapstructure:"server"`
	Vector    qdrant.Config         `mapstructure:"vector"`
	Embedding embedding.Config      `mapstructure:"embedding"`
	LLM       LLMConfig             `mapstructure:"llm"`
	Chunker   chunker.Config        `mapstructure:"chunker"`
	Synthesis rag.SynthesizerConfig `mapstructure:"synthesis"`
	Secrets   SecretsConfig         `mapstructure:"secrets"`
	Log       LogConfig             `mapstructure:"log"`
	Tracing   TracingConfig         `mapstructure:"tracing"`
	Audit     AuditConfig           `mapstructure:"audit"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// MaxUploadBytes bounds a single document upload. Zero means the
	// default of 32 MiB.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
	// AllowedOrigins lists CORS origins; "*" allows any.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LLMConfig configures the generation collaborator.
type LLMConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
	// RequestsPerMinute and TokensPerMinute cap outbound LLM traffic.
	// Zero disables the corresponding limit.
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	TokensPerMinute   int `mapstructure:"tokens_per_minute"`
}

// SecretsConfig selects the secrets backend resolving API keys that are not
// inlined in the config file.
type SecretsConfig struct {
	Provider     string `mapstructure:"provider"` // "env", "vault", "file"
	VaultAddress string `mapstructure:"vault_address"`
	VaultToken   string `mapstructure:"vault_token"`
	FilePath     string `mapstructure:"file_path"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	Environment  string  `mapstructure:"environment"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

// AuditConfig configures the audit log.
type AuditConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	OutputPath string `mapstructure:"output_path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			AllowedOrigins: []string{"*"},
		},
		Vector:    qdrant.DefaultConfig(),
		Embedding: embedding.Config{Model: "all-MiniLM-L6-v2"},
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
		},
		Chunker:   chunker.DefaultConfig(),
		Synthesis: rag.DefaultSynthesizerConfig(),
		Secrets:   SecretsConfig{Provider: "env"},
		Log:       LogConfig{Level: "info", Format: "text"},
		Tracing:   TracingConfig{SampleRate: 1.0},
		Audit:     AuditConfig{OutputPath: "stdout"},
	}
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	// Check for empty API key with active provider (skip "none" provider)
	if c.LLM.Provider != "" && c.LLM.Provider != "none" && c.LLM.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but api_key is empty", c.LLM.Provider))
	}

	// Check temperature range [0, 2.0]
	if c.Synthesis.Temperature < 0 || c.Synthesis.Temperature > 2.0 {
		warnings = append(warnings, fmt.Sprintf("synthesis temperature %.2f is outside recommended range [0.0, 2.0]", c.Synthesis.Temperature))
	}

	// Check for negative max_tokens
	if c.Synthesis.MaxTokens < 0 {
		warnings = append(warnings, fmt.Sprintf("synthesis max_tokens %d is negative", c.Synthesis.MaxTokens))
	}

	if c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize && c.Chunker.ChunkSize > 0 {
		warnings = append(warnings, fmt.Sprintf("chunk_overlap %d is not smaller than chunk_size %d and will be reduced", c.Chunker.ChunkOverlap, c.Chunker.ChunkSize))
	}

	if c.Embedding.Model == "" {
		warnings = append(warnings, "embedding model is empty; requests must name a model explicitly")
	}

	return warnings
}

// Load reads configuration from file and environment. An empty path loads
// defaults plus environment overrides only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NOTABENE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers defaults so env overrides apply even without a file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.allowed_origins", cfg.Server.AllowedOrigins)
	v.SetDefault("vector.host", cfg.Vector.Host)
	v.SetDefault("vector.port", cfg.Vector.Port)
	v.SetDefault("vector.collection", cfg.Vector.Collection)
	v.SetDefault("vector.ef_construct", cfg.Vector.EfConstruct)
	v.SetDefault("embedding.model", cfg.Embedding.Model)
	v.SetDefault("llm.provider", cfg.LLM.Provider)
	v.SetDefault("llm.model", cfg.LLM.Model)
	v.SetDefault("llm.requests_per_minute", cfg.LLM.RequestsPerMinute)
	v.SetDefault("llm.tokens_per_minute", cfg.LLM.TokensPerMinute)
	v.SetDefault("chunker.chunk_size", cfg.Chunker.ChunkSize)
	v.SetDefault("chunker.chunk_overlap", cfg.Chunker.ChunkOverlap)
	v.SetDefault("synthesis.max_tokens", cfg.Synthesis.MaxTokens)
	v.SetDefault("synthesis.temperature", cfg.Synthesis.Temperature)
	v.SetDefault("secrets.provider", cfg.Secrets.Provider)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("tracing.sample_rate", cfg.Tracing.SampleRate)
	v.SetDefault("audit.output_path", cfg.Audit.OutputPath)
}
