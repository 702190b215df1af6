// Package main provides the policypipe binary entry point.
// Policypipe is an insurance document processing pipeline that turns
// policy PDFs into structured coverage data over NATS and Postgres.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	// Register LLM providers via init()
	_ "github.com/c360studio/policypipe/llm/providers"

	// Register vocabularies via init()
	_ "github.com/c360studio/policypipe/vocabulary/policy"

	appconfig "github.com/c360studio/policypipe/config"
	"github.com/c360studio/policypipe/graph"
	docingester "github.com/c360studio/policypipe/processor/doc-ingester"
	pipelineapi "github.com/c360studio/policypipe/processor/pipeline-api"
	stagerunner "github.com/c360studio/policypipe/processor/stage-runner"
	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/componentregistry"
	"github.com/c360studio/semstreams/config"
	"github.com/c360studio/semstreams/metric"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/c360studio/semstreams/payloadbuiltins"
	"github.com/c360studio/semstreams/payloadregistry"
	"github.com/c360studio/semstreams/service"
	"github.com/c360studio/semstreams/types"
	"github.com/spf13/cobra"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "policypipe"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "policypipe",
		Short: "Insurance document processing pipeline",
		Long: `Policypipe processes insurance policy documents through four durable
stages: page analysis and selective OCR, section extraction, entity
enrichment, and effective-coverage synthesis with vector indexing.

All components communicate via NATS using the semstreams framework;
durable facts live in Postgres.`,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Platform config file path (JSON)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(serveCmd(&configPath, &logLevel))
	cmd.AddCommand(ingestCmd())
	cmd.AddCommand(statusCmd())
	cmd.AddCommand(migrateCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func serveCmd(configPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline processors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(*configPath, *logLevel)
		},
	}
}

func serve(configPath, logLevel string) error {
	printBanner()

	logger := newLogger(logLevel)
	slog.SetDefault(logger)

	appCfg, err := appconfig.NewLoader(logger).Load()
	if err != nil {
		return fmt.Errorf("load pipeline config: %w", err)
	}

	cfg, err := loadPlatformConfig(configPath, appCfg)
	if err != nil {
		return fmt.Errorf("load platform config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx := context.Background()
	natsClient, err := connectToNATS(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer natsClient.Close(ctx)

	if err := ensureStreams(ctx, cfg, natsClient, logger); err != nil {
		return err
	}

	slog.Info("Policypipe ready", "version", Version)

	metricsRegistry := metric.NewMetricsRegistry()
	platform := extractPlatformMeta(cfg)

	configManager, err := config.NewConfigManager(cfg, natsClient, logger)
	if err != nil {
		return fmt.Errorf("create config manager: %w", err)
	}
	if err := configManager.Start(ctx); err != nil {
		return fmt.Errorf("start config manager: %w", err)
	}
	defer configManager.Stop(5 * time.Second)

	componentRegistry := component.NewRegistry()

	slog.Debug("Registering semstreams component factories")
	if err := componentregistry.Register(componentRegistry); err != nil {
		return fmt.Errorf("register semstreams components: %w", err)
	}

	slog.Debug("Registering policypipe component factories")
	if err := pipelineapi.Register(componentRegistry); err != nil {
		return fmt.Errorf("register pipeline-api: %w", err)
	}
	if err := stagerunner.Register(componentRegistry); err != nil {
		return fmt.Errorf("register stage-runner: %w", err)
	}
	if err := docingester.Register(componentRegistry); err != nil {
		return fmt.Errorf("register doc-ingester: %w", err)
	}

	factories := componentRegistry.ListFactories()
	slog.Info("Component factories registered", "count", len(factories))

	serviceRegistry := service.NewServiceRegistry()
	if err := service.RegisterAll(serviceRegistry); err != nil {
		return fmt.Errorf("register services: %w", err)
	}

	manager := service.NewServiceManager(serviceRegistry)
	ensureServiceManagerConfig(cfg)

	payloadReg := payloadregistry.New()
	if err := payloadbuiltins.Register(payloadReg); err != nil {
		return fmt.Errorf("register builtin payloads: %w", err)
	}
	if err := graph.RegisterPayloads(payloadReg); err != nil {
		return fmt.Errorf("register graph payloads: %w", err)
	}

	svcDeps := &service.Dependencies{
		NATSClient:        natsClient,
		MetricsRegistry:   metricsRegistry,
		Logger:            logger,
		Platform:          platform,
		Manager:           configManager,
		ComponentRegistry: componentRegistry,
		PayloadRegistry:   payloadReg,
	}

	if err := configureAndCreateServices(cfg, manager, svcDeps); err != nil {
		return err
	}

	slog.Info("All services configured")

	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	slog.Info("Starting all services")
	if err := manager.StartAll(signalCtx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}
	slog.Info("All services started successfully")

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	shutdownTimeout := 30 * time.Second
	if err := manager.StopAll(shutdownTimeout); err != nil {
		slog.Error("Error stopping services", "error", err)
	}

	slog.Info("Policypipe shutdown complete")
	return nil
}

func newLogger(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func printBanner() {
	fmt.Println("╔═══════════════════════════════════════════════╗")
	fmt.Println("║           Policypipe v" + Version + "                    ║")
	fmt.Println("║     Insurance Document Pipeline               ║")
	fmt.Println("╚═══════════════════════════════════════════════╝")
}

func loadPlatformConfig(configPath string, appCfg *appconfig.Config) (*config.Config, error) {
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		expanded := config.ExpandEnvWithDefaults(string(data))
		loader := config.NewLoader()
		return loader.LoadFromBytes([]byte(expanded))
	}
	return buildDefaultConfig(appCfg)
}

// buildDefaultConfig assembles the platform config from the pipeline
// config: the three processors wired over the PIPELINE and GRAPH streams.
func buildDefaultConfig(appCfg *appconfig.Config) (*config.Config, error) {
	pipelineAPIJSON, _ := json.Marshal(pipelineapi.DefaultConfig())
	stageRunnerJSON, _ := json.Marshal(stagerunner.DefaultConfig())

	ingesterCfg := docingester.DefaultConfig()
	ingesterCfg.InboxDir = appCfg.Inbox.Dir
	docIngesterJSON, _ := json.Marshal(ingesterCfg)

	natsURLs := []string{"nats://localhost:4222"}
	if appCfg.NATS.URL != "" {
		natsURLs = []string{appCfg.NATS.URL}
	}

	return &config.Config{
		Version: "1.0.0",
		Platform: config.PlatformConfig{
			Org:         "policypipe",
			ID:          "policypipe-local",
			Environment: "dev",
		},
		NATS: config.NATSConfig{
			URLs:          natsURLs,
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			JetStream: config.JetStreamConfig{
				Enabled: true,
			},
		},
		Services: types.ServiceConfigs{},
		Components: config.ComponentConfigs{
			"pipeline-api": types.ComponentConfig{
				Name:    "pipeline-api",
				Type:    types.ComponentTypeProcessor,
				Enabled: true,
				Config:  pipelineAPIJSON,
			},
			"stage-runner": types.ComponentConfig{
				Name:    "stage-runner",
				Type:    types.ComponentTypeProcessor,
				Enabled: true,
				Config:  stageRunnerJSON,
			},
			"doc-ingester": types.ComponentConfig{
				Name:    "doc-ingester",
				Type:    types.ComponentTypeProcessor,
				Enabled: appCfg.Inbox.Enabled,
				Config:  docIngesterJSON,
			},
		},
		Streams: config.StreamConfigs{
			"PIPELINE": config.StreamConfig{
				Subjects: []string{
					"pipeline.run.request",
					"pipeline.work.dispatch",
					"pipeline.event.>",
				},
				MaxAge:   "168h",
				Storage:  "file",
				Replicas: 1,
			},
			"GRAPH": config.StreamConfig{
				Subjects: []string{
					"graph.ingest.entity",
					"graph.export.>",
				},
				MaxAge:   "24h",
				Storage:  "file",
				Replicas: 1,
			},
		},
	}, nil
}

func connectToNATS(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*natsclient.Client, error) {
	natsURLs := "nats://localhost:4222"

	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		natsURLs = envURL
	} else if envURL := os.Getenv(appconfig.EnvNATSURL); envURL != "" {
		natsURLs = envURL
	} else if len(cfg.NATS.URLs) > 0 {
		natsURLs = strings.Join(cfg.NATS.URLs, ",")
	}

	logger.Info("Connecting to NATS", "url", natsURLs)

	client, err := natsclient.NewClient(natsURLs,
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(-1),
		natsclient.WithReconnectWait(time.Second),
		natsclient.WithCircuitBreakerThreshold(20),
		natsclient.WithHealthInterval(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		return nil, wrapNATSError(err, natsURLs)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.WaitForConnection(connCtx); err != nil {
		return nil, wrapNATSError(err, natsURLs)
	}

	logger.Info("Connected to NATS", "url", natsURLs)
	return client, nil
}

// wrapNATSError provides helpful guidance when NATS connection fails.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

To start NATS:
  docker compose up -d nats

Or set NATS_URL environment variable to point to your NATS server.`, err, url)
	}

	return fmt.Errorf("NATS connection failed: %w", err)
}

func ensureStreams(ctx context.Context, cfg *config.Config, natsClient *natsclient.Client, logger *slog.Logger) error {
	logger.Debug("Creating JetStream streams")
	streamsManager := config.NewStreamsManager(natsClient, logger)

	if err := streamsManager.EnsureStreams(ctx, cfg); err != nil {
		return fmt.Errorf("ensure streams: %w", err)
	}

	logger.Debug("JetStream streams ready")
	return nil
}

func extractPlatformMeta(cfg *config.Config) types.PlatformMeta {
	platformID := cfg.Platform.InstanceID
	if platformID == "" {
		platformID = cfg.Platform.ID
	}

	return types.PlatformMeta{
		Org:      cfg.Platform.Org,
		Platform: platformID,
	}
}

// ensureServiceManagerConfig ensures service-manager config exists with defaults.
func ensureServiceManagerConfig(cfg *config.Config) {
	if cfg.Services == nil {
		cfg.Services = make(types.ServiceConfigs)
	}

	if _, exists := cfg.Services["service-manager"]; !exists {
		slog.Debug("Adding default service-manager config")
		defaultConfig := map[string]any{
			"http_port":  8080,
			"swagger_ui": false,
			"server_info": map[string]string{
				"title":       "Policypipe API",
				"description": "insurance document processing pipeline",
				"version":     Version,
			},
		}
		defaultConfigJSON, _ := json.Marshal(defaultConfig)
		cfg.Services["service-manager"] = types.ServiceConfig{
			Name:    "service-manager",
			Enabled: true,
			Config:  defaultConfigJSON,
		}
	}
}

// configureAndCreateServices configures the manager and creates all services.
func configureAndCreateServices(
	cfg *config.Config,
	manager *service.Manager,
	svcDeps *service.Dependencies,
) error {
	if err := manager.ConfigureFromServices(cfg.Services, svcDeps); err != nil {
		return fmt.Errorf("configure service manager: %w", err)
	}

	for name, svcConfig := range cfg.Services {
		if name == "service-manager" {
			continue
		}
		if err := createServiceIfEnabled(manager, name, svcConfig, svcDeps); err != nil {
			return err
		}
	}

	return nil
}

// createServiceIfEnabled creates a service if it's enabled and registered.
func createServiceIfEnabled(
	manager *service.Manager,
	name string,
	svcConfig types.ServiceConfig,
	svcDeps *service.Dependencies,
) error {
	if !svcConfig.Enabled {
		slog.Info("Service disabled in config", "name", name)
		return nil
	}

	if !manager.HasConstructor(name) {
		slog.Warn("Service configured but not registered", "key", name)
		return nil
	}

	if _, err := manager.CreateService(name, svcConfig.Config, svcDeps); err != nil {
		return fmt.Errorf("create service %s: %w", name, err)
	}

	slog.Info("Created service", "name", name)
	return nil
}
