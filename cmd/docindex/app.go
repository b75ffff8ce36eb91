package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/docindex/internal/chunker"
	"github.com/efebarandurmaz/docindex/internal/config"
	"github.com/efebarandurmaz/docindex/internal/embedding"
	"github.com/efebarandurmaz/docindex/internal/embedding/azure"
	"github.com/efebarandurmaz/docindex/internal/lifecycle"
	"github.com/efebarandurmaz/docindex/internal/observability"
	"github.com/efebarandurmaz/docindex/internal/vector"
	"github.com/efebarandurmaz/docindex/internal/vector/backend"
)

var version = "dev"

// app holds what every subcommand needs once configuration is loaded.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   embedding.Client
	backend  vector.Backend
	shutdown *lifecycle.Handler
}

func newApp(cmd *cobra.Command, configPath string) (*app, error) {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.Log)
	slog.SetDefault(logger)
	for _, w := range cfg.Validate() {
		logger.Warn("config warning", "warning", w)
	}
	if err := cfg.Require(); err != nil {
		return nil, fmt.Errorf("%w (set it with a flag, the config file or the environment)", err)
	}

	factory := embedding.NewFactory()
	azure.Register(factory)
	client, err := factory.Create(embedding.ProviderConfig{
		Provider:          cfg.Embedding.Provider,
		APIKey:            cfg.Embedding.APIKey,
		Endpoint:          cfg.Embedding.Endpoint,
		Timeout:           cfg.Embedding.Timeout,
		MaxRetries:        cfg.Embedding.MaxRetries,
		RetryDelay:        cfg.Embedding.RetryDelay,
		RequestsPerMinute: cfg.Embedding.RequestsPerMinute,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding client: %w", err)
	}

	be, err := backend.New(cfg.Vector)
	if err != nil {
		return nil, err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	shutdown := lifecycle.NewHandler(parent, &lifecycle.Config{Logger: logger})
	shutdown.Start()

	tcfg := observability.DefaultTracingConfig()
	tcfg.ServiceVersion = version
	tcfg.OTLPEndpoint = cfg.Tracing.Endpoint
	tcfg.SampleRate = cfg.Tracing.SampleRate
	tp, err := observability.InitTracing(shutdown.Context(), tcfg)
	if err != nil {
		shutdown.Shutdown()
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}
	shutdown.Register(lifecycle.TracingHook(tp.Shutdown))

	mp, err := observability.InitMetrics(shutdown.Context(), tcfg)
	if err != nil {
		shutdown.Shutdown()
		return nil, fmt.Errorf("initializing metrics: %w", err)
	}
	shutdown.Register(lifecycle.MetricsHook(mp.Shutdown))

	return &app{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		backend:  be,
		shutdown: shutdown,
	}, nil
}

// ctx is cancelled on SIGINT or SIGTERM.
func (a *app) ctx() context.Context { return a.shutdown.Context() }

func (a *app) chunkerConfig() chunker.Config {
	return chunker.Config{
		TokensPerChunk: a.cfg.Index.TokensPerChunk,
		CharsPerToken:  a.cfg.Index.CharsPerToken,
		Deployment:     a.cfg.Embedding.Deployment,
	}
}

func newLogger(w io.Writer, c config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
