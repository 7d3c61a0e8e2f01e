package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/cueso/internal/agent"
	"github.com/haasonsaas/cueso/internal/agent/providers"
	"github.com/haasonsaas/cueso/internal/config"
	"github.com/haasonsaas/cueso/internal/gateway"
	"github.com/haasonsaas/cueso/internal/mcp"
	"github.com/haasonsaas/cueso/internal/observability"
	"github.com/haasonsaas/cueso/internal/roku"
	"github.com/haasonsaas/cueso/internal/search"
	"github.com/haasonsaas/cueso/internal/sessions"
	"github.com/haasonsaas/cueso/internal/tools"
	"github.com/haasonsaas/cueso/pkg/models"
)

// defaultSystemPrompt instructs the model through the find, present,
// confirm, launch flow. Overridable via session.system_prompt.
const defaultSystemPrompt = "You are a helpful assistant that controls Roku devices. " +
	"Use the available tools to help users find and play content.\n\n" +
	"When a user asks to play content:\n" +
	"1. If you're unsure about the exact title, season, or episode, use web_search " +
	"to research it first.\n" +
	"2. Once you know the exact content, call find_content to search streaming services.\n" +
	"3. After find_content returns, present the available streaming services to the user " +
	"and let them choose where to play. Do NOT automatically call launch_content.\n" +
	"4. When the user tells you which service to use, call launch_content with that " +
	"service's channel_id, content_id, and media_type.\n\n" +
	"For general questions or when you need information, use web_search.\n" +
	"For direct Roku operations, use search_roku, device_info, active_app, or send_key."

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Cueso server",
		Long: `Start the Cueso server.

The server will:
1. Load configuration from the specified file (or cueso.yaml)
2. Initialize the configured LLM provider (Anthropic or OpenAI)
3. Wire the tool executors: the Roku device tools and any remote tool servers
4. Serve websocket chat on /ws, the session API under /api, and /metrics

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  cueso serve

  # Start with custom config
  cueso serve --config /etc/cueso/production.yaml

  # Start with debug logging
  cueso serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "cueso.yaml",
		"Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")
	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics()
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "cueso",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		EnableInsecure: cfg.Tracing.Insecure,
	})

	logger.Info(ctx, "starting cueso",
		"version", version,
		"config", configPath,
		"llm_provider", cfg.LLM.Provider,
	)

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	registry := tools.NewRegistry()
	var manager *mcp.Manager
	var rokuClient *roku.Client

	if cfg.Roku.Host != "" {
		rokuClient, err = roku.NewClient(roku.Config{
			Host:    cfg.Roku.Host,
			Port:    cfg.Roku.Port,
			Timeout: cfg.Roku.Timeout.Std(),
		})
		if err != nil {
			return fmt.Errorf("roku: %w", err)
		}
		direct, err := buildDirectExecutor(cfg, rokuClient, logger, metrics)
		if err != nil {
			return err
		}
		if err := registry.Add(direct, cfg.Tools.Enabled...); err != nil {
			return fmt.Errorf("tool registry: %w", err)
		}
	}

	if len(cfg.MCP.Servers) > 0 {
		manager = mcp.NewManager()
		manager.SetLogger(logger)
		for _, server := range cfg.MCP.Servers {
			err := manager.AddServer(&mcp.ServerConfig{
				Name:    server.Name,
				URL:     server.URL,
				Token:   server.Token,
				Headers: server.Headers,
				Timeout: server.Timeout.Std(),
			})
			if err != nil {
				return fmt.Errorf("mcp server %s: %w", server.Name, err)
			}
		}
		if err := manager.ConnectAll(ctx); err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
		remote := mcp.NewRemoteExecutor(manager)
		remote.SetLogger(logger)
		remote.SetMetrics(metrics)
		if err := registry.Add(remote); err != nil {
			return fmt.Errorf("tool registry: %w", err)
		}
	}

	if len(registry.Catalog()) == 0 {
		return fmt.Errorf("no tools configured: set roku.host or add an mcp server")
	}

	systemPrompt := cfg.Session.SystemPrompt
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}
	store := sessions.NewStore(sessions.StoreConfig{
		TTL:         cfg.Session.TTL.Std(),
		MaxSessions: cfg.Session.MaxSessions,
		LockTimeout: cfg.Session.LockTimeout.Std(),
		Defaults: models.SessionConfig{
			SystemPrompt:  systemPrompt,
			MaxIterations: cfg.Session.MaxIterations,
			MaxTokens:     cfg.LLM.MaxTokens,
			Temperature:   cfg.LLM.Temperature,
			Model:         cfg.LLM.Model,
		},
	})
	store.SetLogger(logger)
	store.SetMetrics(metrics)
	defer store.Close()

	driver := agent.NewDriver(provider, registry, agent.DriverConfig{
		ToolConcurrency: cfg.Tools.Concurrency,
		PerToolTimeout:  cfg.Tools.Timeout.Std(),
	})
	driver.SetLogger(logger)
	driver.SetMetrics(metrics)
	driver.SetTracer(tracer)

	server := gateway.NewServer(gateway.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Std(),
	}, store, driver, rokuClient)
	server.SetLogger(logger)
	server.SetMetrics(metrics)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()
	logger.Info(ctx, "cueso started", "addr", server.Addr(), "tools", len(registry.Catalog()))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	logger.Info(context.Background(), "shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if manager != nil {
		manager.Close()
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "tracer shutdown failed", "error", err)
	}
	return nil
}

// buildProvider constructs the configured model backend. API keys fall
// back to the vendor environment variables.
func buildProvider(cfg *config.Config) (agent.LLMProvider, error) {
	switch strings.ToLower(cfg.LLM.Provider) {
	case "anthropic":
		apiKey := cfg.LLM.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       apiKey,
			BaseURL:      cfg.LLM.BaseURL,
			DefaultModel: cfg.LLM.Model,
		})
	case "openai":
		apiKey := cfg.LLM.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		return providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:       apiKey,
			BaseURL:      cfg.LLM.BaseURL,
			DefaultModel: cfg.LLM.Model,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

// buildDirectExecutor wires the device-side tools: Roku control plus
// the Brave-backed content search pipeline.
func buildDirectExecutor(cfg *config.Config, rokuClient *roku.Client, logger *observability.Logger, metrics *observability.Metrics) (*tools.DirectExecutor, error) {
	braveKey := cfg.Brave.APIKey
	if braveKey == "" {
		braveKey = os.Getenv("BRAVE_API_KEY")
	}
	if braveKey == "" {
		return nil, fmt.Errorf("brave.api_key is required for content search")
	}
	brave, err := search.NewBraveClient(search.BraveConfig{APIKey: braveKey})
	if err != nil {
		return nil, fmt.Errorf("brave: %w", err)
	}

	pipeline := search.NewPipeline(brave, search.ServicesByName(cfg.Streaming.Priority))
	pipeline.SetLogger(logger)

	direct, err := tools.NewDirectExecutor(tools.DirectConfig{
		Roku:            rokuClient,
		Pipeline:        pipeline,
		Brave:           brave,
		PostLaunchDelay: cfg.Tools.PostLaunchDelay.Std(),
	})
	if err != nil {
		return nil, fmt.Errorf("tools: %w", err)
	}
	direct.SetLogger(logger)
	direct.SetMetrics(metrics)
	return direct, nil
}
