package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/concierge/internal/agent"
	"github.com/haasonsaas/concierge/internal/agent/providers"
	"github.com/haasonsaas/concierge/internal/agents"
	"github.com/haasonsaas/concierge/internal/config"
	"github.com/haasonsaas/concierge/internal/flights"
	"github.com/haasonsaas/concierge/internal/mcp"
	"github.com/haasonsaas/concierge/internal/observability"
	"github.com/haasonsaas/concierge/internal/prompts"
	"github.com/haasonsaas/concierge/internal/schedule"
	"github.com/haasonsaas/concierge/internal/sessions"
	"github.com/haasonsaas/concierge/internal/tools"
	"github.com/haasonsaas/concierge/internal/web"
)

const shutdownTimeout = 15 * time.Second

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the concierge server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "concierge.yaml", "Path to configuration file")
	return cmd
}

// loadConfig loads the named file, falling back to defaults when the
// default path does not exist.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && path == "concierge.yaml" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func runServe(cfg *config.Config) error {
	logger := setupLogging(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}

	prompt, err := prompts.New(cfg.Prompts.SystemPromptPath, logger)
	if err != nil {
		return fmt.Errorf("load system prompt: %w", err)
	}
	defer prompt.Close()
	if err := prompt.Watch(ctx); err != nil {
		logger.Warn("prompt watch unavailable", "error", err)
	}

	flightsClient, err := flights.NewClient(flights.Config{
		BaseURL: cfg.Flights.BaseURL,
		Token:   cfg.Flights.APIKey,
	})
	if err != nil {
		return err
	}
	if flightsClient.Offline() {
		logger.Info("flight search in offline fixture mode")
	}

	var metrics *observability.Metrics
	var metricsHandler = promhttp.Handler()
	if cfg.Server.Metrics {
		metrics = observability.NewMetrics(prometheus.DefaultRegisterer)
	} else {
		metrics = observability.NewNopMetrics()
		metricsHandler = nil
	}

	var scheduler *schedule.Scheduler
	if cfg.Schedule.Enabled {
		recorder, err := agents.NewTaskRecorder(store, logger)
		if err != nil {
			return err
		}
		scheduler = schedule.NewScheduler(
			schedule.WithLogger(logger),
			schedule.WithRunner(recorder),
			schedule.WithTickInterval(cfg.Schedule.TickInterval),
		)
		scheduler.Start(ctx)
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := scheduler.Stop(stopCtx); err != nil {
				logger.Warn("scheduler stop", "error", err)
			}
		}()
	}

	toolSet := tools.NewSet(flightsClient, scheduler)
	registry := agent.NewToolRegistry()
	for _, tool := range toolSet.Tools {
		if err := registry.Register(tool); err != nil {
			return fmt.Errorf("register tool %s: %w", tool.Name(), err)
		}
	}
	executions, err := agent.NewExecutions(toolSet.Executions)
	if err != nil {
		return err
	}

	provider, err := buildProvider(cfg.LLM)
	if err != nil {
		return err
	}

	runtime, err := agent.NewRuntime(agent.RuntimeOptions{
		Provider:           provider,
		Model:              cfg.LLM.Model,
		SystemPrompt:       prompt.Text,
		MaxTokens:          cfg.LLM.MaxTokens,
		Tools:              registry,
		Executions:         executions,
		ApprovalGated:      toolSet.ApprovalGated,
		Transforms:         toolSet.Transforms,
		Store:              store,
		MaxToolRounds:      cfg.Agent.MaxToolRounds,
		ResolveConcurrency: cfg.Agent.ResolveConcurrency,
		Logger:             logger,
		Metrics:            metrics,
	})
	if err != nil {
		return err
	}

	// Remote tools merge per request through the remote-tool agent, so a
	// server that is down when a turn starts is skipped, not fatal.
	var mcpManager *mcp.Manager
	var mcpServers []*mcp.ServerConfig
	if cfg.MCP.Enabled {
		mcpManager = mcp.NewManager(logger)
		mcpServers = cfg.MCP.Servers
		defer func() {
			if err := mcpManager.Stop(); err != nil {
				logger.Warn("mcp stop", "error", err)
			}
		}()
	}

	server, err := web.NewServer(web.ServerOptions{
		Addr:           cfg.Server.Addr(),
		Store:          store,
		Runtime:        runtime,
		Scheduler:      scheduler,
		AuthToken:      cfg.Server.AuthToken,
		MCP:            mcpManager,
		MCPServers:     mcpServers,
		MetricsHandler: metricsHandler,
		Logger:         logger,
		Metrics:        metrics,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func buildStore(cfg *config.Config) (sessions.Store, error) {
	switch cfg.Sessions.Backend {
	case "sqlite":
		return sessions.NewSQLiteStore(cfg.Sessions.Path)
	default:
		return sessions.NewMemoryStore(), nil
	}
}

func buildProvider(cfg config.LLMConfig) (agent.LLMProvider, error) {
	apiKey := cfg.APIKey
	switch cfg.Provider {
	case "openai":
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		return providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:  apiKey,
			BaseURL: cfg.BaseURL,
		})
	default:
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:  apiKey,
			BaseURL: cfg.BaseURL,
		})
	}
}
