// Package main provides the CLI entry point for the Loom kernel.
//
// Loom hosts many concurrently running software agents that
// collaborate over a topic-based event bus, delegate work to typed
// tools (native, or external over a stdio JSON-RPC protocol), and
// route requests through an idempotent broker.
//
// # Basic Usage
//
// Start the runtime with a heartbeat-driven demo agent:
//
//	loom serve --config loom.yaml
//
// List the tools currently registered:
//
//	loom tool list --config loom.yaml
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loomcore/loom/internal/agentrt"
	"github.com/loomcore/loom/internal/broker"
	"github.com/loomcore/loom/internal/bus"
	"github.com/loomcore/loom/internal/config"
	"github.com/loomcore/loom/internal/mcpclient"
	"github.com/loomcore/loom/internal/observability"
	"github.com/loomcore/loom/internal/registry"
	"github.com/loomcore/loom/pkg/loom"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "loom",
		Short:        "Loom - event-driven multi-agent runtime kernel",
		Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		buildServeCmd(),
		buildToolCmd(),
		buildMcpCmd(),
		buildAgentCmd(),
	)
	return rootCmd
}

func loadConfig(configPath string) (config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

// kernel bundles the constructed runtime components a subcommand needs,
// so every subcommand wires the same way serve does.
type kernel struct {
	cfg       config.Config
	logger    *slog.Logger
	metrics   *observability.Metrics
	bus       *bus.Bus
	registry  *registry.Registry
	broker    *broker.Broker
	mcp       *mcpclient.Manager
	runtime   *agentrt.Runtime
}

func newKernel(cfg config.Config, logger *slog.Logger) *kernel {
	metrics := observability.NewMetrics()
	b := bus.New(cfg.Bus, logger, metrics)
	reg := registry.New(cfg.Registry, metrics)
	brk := broker.New(cfg.Broker, reg, metrics)
	mcp := mcpclient.NewManager(cfg.MCP, reg, logger, metrics)
	rt := agentrt.NewRuntime(b, brk, logger, metrics)
	return &kernel{cfg: cfg, logger: logger, metrics: metrics, bus: b, registry: reg, broker: brk, mcp: mcp, runtime: rt}
}

func (k *kernel) shutdown(ctx context.Context) {
	k.runtime.Shutdown(ctx)
	k.mcp.Stop()
	k.bus.Shutdown()
}

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Loom runtime",
		Long: `Start the Loom runtime: the event bus, tool registry, broker,
external tool manager, and agent runtime, plus a demo heartbeat agent
driven by a cron trigger.

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Info("starting loom runtime", "version", version, "config", configPath)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	k := newKernel(cfg, logger)
	defer k.shutdown(context.Background())

	if err := k.mcp.Start(ctx); err != nil {
		logger.Warn("external tool manager failed to start cleanly", "error", err)
	}

	agentID, err := startHeartbeatDemo(ctx, k)
	if err != nil {
		return fmt.Errorf("start demo agent: %w", err)
	}
	logger.Info("demo heartbeat agent running", "agent_id", agentID)

	logger.Info("loom runtime started")
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// heartbeatBehavior is the runtime's smallest possible demonstration
// behavior: it logs every tick it observes and performs no actions.
type heartbeatBehavior struct {
	logger *slog.Logger
}

func (h *heartbeatBehavior) OnInit(ctx context.Context, state *loom.AgentState) error {
	h.logger.Info("heartbeat agent initialized", "agent_id", state.AgentID)
	return nil
}

func (h *heartbeatBehavior) OnEvent(ctx context.Context, event loom.Event, state *loom.AgentState) ([]loom.Action, error) {
	h.logger.Info("heartbeat tick observed", "agent_id", state.AgentID, "event_type", event.Type)
	return nil, nil
}

func (h *heartbeatBehavior) OnShutdown(ctx context.Context, state *loom.AgentState) {
	h.logger.Info("heartbeat agent shut down", "agent_id", state.AgentID)
}

// startHeartbeatDemo wires a CronTrigger publishing to "heartbeat"
// every 30s to an agent that simply observes the ticks, demonstrating
// the cron-to-agent wiring path end to end.
func startHeartbeatDemo(ctx context.Context, k *kernel) (string, error) {
	agentID, err := k.runtime.CreateAgent(ctx, agentrt.Config{
		AgentID: "heartbeat-demo",
		Topics:  []string{"heartbeat"},
		QoS:     loom.Realtime,
	}, &heartbeatBehavior{logger: k.logger})
	if err != nil {
		return "", err
	}

	trigger, err := agentrt.NewCronTrigger(agentrt.CronTriggerConfig{
		Topic:     "heartbeat",
		EventType: "tick",
		Source:    "loom-cron",
		Every:     30 * time.Second,
	}, k.bus, k.logger)
	if err != nil {
		return "", err
	}
	trigger.Start(ctx)

	return agentID, nil
}

func buildToolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tool",
		Short: "Inspect the tool registry",
	}
	cmd.AddCommand(buildToolListCmd())
	return cmd
}

func buildToolListCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered tools (native and connected external servers)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			k := newKernel(cfg, slog.Default())
			ctx := cmd.Context()
			if err := k.mcp.Start(ctx); err != nil {
				slog.Warn("external tool manager failed to start cleanly", "error", err)
			}
			defer k.shutdown(context.Background())

			out := cmd.OutOrStdout()
			for _, tool := range k.registry.List() {
				fmt.Fprintf(out, "%s\t%s\n", tool.Name(), tool.Description())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")
	return cmd
}

func buildMcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Manage external tool protocol servers",
	}
	cmd.AddCommand(buildMcpConnectCmd(), buildMcpStatusCmd())
	return cmd
}

func buildMcpConnectCmd() *cobra.Command {
	var (
		configPath string
		id         string
		command    string
	)
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to an external tool server and list its tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			k := newKernel(cfg, slog.Default())
			defer k.shutdown(context.Background())

			serverCfg := &mcpclient.ServerConfig{ID: id, Name: id, Command: command, Args: args}
			if err := k.mcp.AddServer(cmd.Context(), serverCfg); err != nil {
				return err
			}

			client, ok := k.mcp.Client(id)
			if !ok {
				return fmt.Errorf("server %q not connected", id)
			}
			out := cmd.OutOrStdout()
			for _, tool := range client.Tools() {
				fmt.Fprintf(out, "%s\t%s\n", mcpclient.AdapterName(id, tool.Name), tool.Description)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")
	cmd.Flags().StringVar(&id, "id", "", "server id")
	cmd.Flags().StringVar(&command, "command", "", "command to launch the server")
	return cmd
}

func buildMcpStatusCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show connected external tool servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			k := newKernel(cfg, slog.Default())
			if err := k.mcp.Start(cmd.Context()); err != nil {
				slog.Warn("external tool manager failed to start cleanly", "error", err)
			}
			defer k.shutdown(context.Background())

			out := cmd.OutOrStdout()
			encoder := json.NewEncoder(out)
			for _, status := range k.mcp.Statuses() {
				encoder.Encode(status)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")
	return cmd
}

func buildAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run the heartbeat demo agent standalone",
	}
	cmd.AddCommand(buildAgentDemoCmd())
	return cmd
}

func buildAgentDemoCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a single heartbeat-driven demo agent until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			k := newKernel(cfg, slog.Default())
			defer k.shutdown(context.Background())

			agentID, err := startHeartbeatDemo(ctx, k)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "agent %s running, press ctrl-c to stop\n", agentID)
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")
	return cmd
}
