package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/notabene-labs/notabene/internal/chunker"
	"github.com/notabene-labs/notabene/internal/config"
	"github.com/notabene-labs/notabene/internal/embedding"
	embeddingopenai "github.com/notabene-labs/notabene/internal/embedding/openai"
	"github.com/notabene-labs/notabene/internal/llm"
	"github.com/notabene-labs/notabene/internal/llm/anthropic"
	llmopenai "github.com/notabene-labs/notabene/internal/llm/openai"
	"github.com/notabene-labs/notabene/internal/observability"
	"github.com/notabene-labs/notabene/internal/rag"
	"github.com/notabene-labs/notabene/internal/secrets"
	"github.com/notabene-labs/notabene/internal/server"
	"github.com/notabene-labs/notabene/internal/vector/qdrant"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "notabene",
		Short: "Document question answering over a private corpus",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path")

	var healthAddr string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath, healthAddr)
		},
	}
	serveCmd.Flags().StringVar(&healthAddr, "health-addr", ":8080", "Address for health and readiness probes")

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available LLM providers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available LLM providers:")
			fmt.Println()
			for name, url := range llm.KnownProviders {
				fmt.Printf("  %-14s %s\n", name, url)
			}
			fmt.Println("  custom         (set base_url to any OpenAI-compatible endpoint)")
			fmt.Println("  none           (answers fall back to the raw retrieved context)")
			fmt.Println()
			fmt.Println("Configure in notabene.yaml or via environment:")
			fmt.Println("  NOTABENE_LLM_PROVIDER=groq")
			fmt.Println("  NOTABENE_LLM_API_KEY=gsk_...")
			fmt.Println("  NOTABENE_LLM_MODEL=llama-3.3-70b-versatile")
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(serveCmd, providersCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(configPath, healthAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config load failed (%v), using defaults\n", err)
		cfg = config.Default()
	}

	setupLogging(cfg.Log)
	for _, w := range cfg.Validate() {
		slog.Warn("config warning", "warning", w)
	}

	ctx := context.Background()

	sm, err := newSecretsManager(cfg.Secrets)
	if err != nil {
		return fmt.Errorf("initializing secrets: %w", err)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = sm.GetOrDefault(ctx, string(secrets.SecretLLMAPIKey), "")
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = sm.GetOrDefault(ctx, string(secrets.SecretEmbeddingAPIKey), "")
	}

	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "notabene",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}

	if err := observability.InitGlobalAuditLogger(&observability.AuditConfig{
		Enabled:    cfg.Audit.Enabled,
		OutputPath: cfg.Audit.OutputPath,
	}); err != nil {
		slog.Warn("audit logger disabled", "error", err)
	}

	metrics := observability.NewMetrics()

	store, err := qdrant.New(cfg.Vector)
	if err != nil {
		return fmt.Errorf("connecting to qdrant: %w", err)
	}
	target := fmt.Sprintf("%s:%d", cfg.Vector.Host, cfg.Vector.Port)
	if err := store.Ping(ctx); err != nil {
		slog.Warn("vector store unreachable at startup", "target", target, "error", err)
		observability.Audit().LogStoreConnect(ctx, target, cfg.Vector.Collection, false, err.Error())
	} else {
		slog.Info("vector store connected", "target", target, "collection", cfg.Vector.Collection)
		observability.Audit().LogStoreConnect(ctx, target, cfg.Vector.Collection, true, "")
	}

	embCfg := cfg.Embedding
	cache := embedding.NewCache(func(ctx context.Context, model string) (embedding.Provider, error) {
		return embeddingopenai.New(embCfg, model)
	})

	provider, err := buildLLMProvider(cfg.LLM)
	if err != nil {
		return fmt.Errorf("creating LLM provider: %w", err)
	}
	if provider == nil {
		slog.Info("running without a language model, answers fall back to raw context")
	} else {
		slog.Info("language model ready", "provider", provider.Name(), "model", cfg.LLM.Model)
	}

	splitter := chunker.NewSplitter(cfg.Chunker)
	synth := rag.NewSynthesizer(provider, cfg.Synthesis, slog.Default())
	synth.SetMetrics(metrics)
	svc := rag.NewService(splitter, cache, store, synth, slog.Default())

	api := server.NewAPIServer(&server.APIConfig{
		ListenAddr:     fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		DefaultModel:   cfg.Embedding.Model,
	}, svc, metrics)

	graceful := server.NewGracefulServer(&server.HealthConfig{Version: version}, server.DefaultShutdownConfig())
	graceful.Health.RegisterCheck("vector-store", server.VectorStoreHealthChecker(store.Ping))
	graceful.Health.RegisterCheck("embedding-models", server.EmbeddingModelsHealthChecker(cache.Loaded))
	if provider != nil {
		graceful.Health.RegisterCheck("llm", server.LLMHealthChecker(provider.Name(), nil))
	}

	graceful.RegisterHook("api-server", 10, api.Stop)
	graceful.RegisterHook("tracing", 80, tp.Shutdown)
	graceful.RegisterHook("vector-store", 90, func(ctx context.Context) error {
		return store.Close()
	})
	graceful.RegisterHook("audit-logger", 95, func(ctx context.Context) error {
		return observability.Audit().Close()
	})

	if err := graceful.Start(healthAddr); err != nil {
		return fmt.Errorf("starting health server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- api.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-graceful.Shutdown.ShutdownCh():
	}

	graceful.Wait()
	return nil
}

// buildLLMProvider registers the known provider constructors and creates
// the configured one. A "none" or empty provider returns nil.
func buildLLMProvider(cfg config.LLMConfig) (llm.Provider, error) {
	factory := llm.NewFactory()
	factory.Register("anthropic", func(c llm.ProviderConfig) (llm.Provider, error) {
		return anthropic.New(c.APIKey, c.Model, c.BaseURL), nil
	})
	factory.Register("openai", func(c llm.ProviderConfig) (llm.Provider, error) {
		return llmopenai.New(c.APIKey, c.Model, c.BaseURL), nil
	})
	// All OpenAI-compatible providers
	for _, p := range []struct{ name, url string }{
		{"groq", llm.KnownProviders["groq"]},
		{"ollama", llm.KnownProviders["ollama"]},
		{"together", llm.KnownProviders["together"]},
		{"deepseek", llm.KnownProviders["deepseek"]},
		{"custom", ""},
	} {
		p := p
		factory.Register(p.name, func(c llm.ProviderConfig) (llm.Provider, error) {
			base := c.BaseURL
			if base == "" {
				base = p.url
			}
			return llmopenai.New(c.APIKey, c.Model, base), nil
		})
	}

	pcfg := llm.DefaultProviderConfig()
	pcfg.Provider = cfg.Provider
	pcfg.APIKey = cfg.APIKey
	pcfg.Model = cfg.Model
	pcfg.BaseURL = cfg.BaseURL

	provider, err := factory.Create(pcfg)
	if err != nil {
		return nil, err
	}

	if cfg.RequestsPerMinute > 0 || cfg.TokensPerMinute > 0 {
		provider = llm.WithRateLimit(provider, &llm.RateLimitConfig{
			RequestsPerMinute: cfg.RequestsPerMinute,
			TokensPerMinute:   cfg.TokensPerMinute,
		})
	}
	return provider, nil
}

func newSecretsManager(cfg config.SecretsConfig) (*secrets.Manager, error) {
	scfg := secrets.DefaultConfig()
	scfg.Provider = cfg.Provider
	if cfg.Provider == "vault" {
		scfg.VaultConfig = &secrets.VaultConfig{
			Address: cfg.VaultAddress,
			Token:   cfg.VaultToken,
		}
	}
	if cfg.Provider == "file" {
		scfg.FileConfig = &secrets.FileConfig{Path: cfg.FilePath}
	}
	return secrets.NewManager(scfg)
}

func setupLogging(cfg config.LogConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
