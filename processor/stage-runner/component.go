// Package stagerunner executes the four document pipeline stages for
// dispatched runs. It consumes work off the pipeline stream, drives the
// stage engine with durable markers and heartbeats, and exposes Prometheus
// metrics.
package stagerunner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/policypipe/canonical"
	"github.com/c360studio/policypipe/chunker"
	"github.com/c360studio/policypipe/config"
	"github.com/c360studio/policypipe/document"
	"github.com/c360studio/policypipe/extraction"
	"github.com/c360studio/policypipe/graph"
	"github.com/c360studio/policypipe/indexing"
	"github.com/c360studio/policypipe/llm"
	_ "github.com/c360studio/policypipe/llm/providers" // provider registration
	"github.com/c360studio/policypipe/ocr"
	"github.com/c360studio/policypipe/pipeline"
	"github.com/c360studio/policypipe/storage"
	"github.com/c360studio/policypipe/synthesis"
	"github.com/c360studio/policypipe/tables"
)

// stageRunnerSchema defines the configuration schema.
var stageRunnerSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Component implements the stage-runner processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger
	platform   component.PlatformMeta

	appConfig   *config.Config
	store       *storage.Store
	engine      *pipeline.Engine
	metrics     *metrics
	stopMetrics func()

	// Lifecycle management
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// Metrics
	documentsOK     atomic.Int64
	documentsFailed atomic.Int64
	errors          atomic.Int64
	lastActivityMu  sync.RWMutex
	lastActivity    time.Time
}

// NewComponent creates a new stage-runner processor component.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	var cfg Config
	if err := json.Unmarshal(rawConfig, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Ports == nil {
		cfg = DefaultConfig()
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Component{
		name:       "stage-runner",
		config:     cfg,
		natsClient: deps.NATSClient,
		logger:     deps.GetLogger(),
		platform:   deps.Platform,
	}, nil
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	return nil
}

// Start wires the full stage stack and begins consuming dispatched work.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("component already running")
	}
	if c.natsClient == nil {
		c.mu.Unlock()
		return fmt.Errorf("NATS client required")
	}
	c.running = true
	c.startTime = time.Now()
	c.mu.Unlock()

	appCfg, err := config.NewLoader(c.logger).Load()
	if err != nil {
		c.fail()
		return fmt.Errorf("load pipeline config: %w", err)
	}
	c.appConfig = appCfg

	engine, err := c.buildEngine(ctx, appCfg)
	if err != nil {
		c.fail()
		return err
	}
	c.engine = engine

	c.metrics = newMetrics()
	c.stopMetrics = c.metrics.serve(c.config.MetricsAddr, c.logger)

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.consumeWork(runCtx)
	}()

	c.logger.Info("Stage runner started",
		"stream", c.config.StreamName,
		"consumer", c.config.ConsumerName,
		"max_concurrent", c.config.MaxConcurrent,
		"metrics_addr", c.config.MetricsAddr)

	return nil
}

func (c *Component) fail() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// buildEngine assembles the storage, model, and stage stack from the
// application config.
func (c *Component) buildEngine(ctx context.Context, appCfg *config.Config) (*pipeline.Engine, error) {
	store, err := storage.New(ctx, appCfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	c.store = store

	js, err := c.natsClient.JetStream()
	if err != nil {
		return nil, fmt.Errorf("get JetStream: %w", err)
	}
	runs, err := storage.NewRunStore(ctx, js)
	if err != nil {
		return nil, fmt.Errorf("create run store: %w", err)
	}

	llmClient, err := llm.NewClient(appCfg.LLM.Provider, llm.Endpoint{
		BaseURL: appCfg.LLM.Endpoint,
		Model:   appCfg.LLM.Model,
		APIKey:  appCfg.LLM.APIKey,
	}, llm.WithLogger(c.logger))
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}

	ch, err := chunker.New(appCfg.Chunking)
	if err != nil {
		return nil, fmt.Errorf("create chunker: %w", err)
	}

	parser := ocr.NewHTTPService(appCfg.OCR)
	tableProcessor := tables.NewProcessor(store, c.logger)
	runner := extraction.NewRunner(llmClient, store, extraction.WithLogger(c.logger))
	resolver := canonical.NewResolver(store, c.logger)
	relations := canonical.NewRelationshipExtractor(llmClient, store, c.logger)
	publisher := graph.NewPublisher(c.natsClient, c.logger)

	embedder := indexing.NewHTTPEmbedder(appCfg.Embedding, indexing.WithEmbedderLogger(c.logger))
	indexer := indexing.NewIndexer(embedder, store, indexing.WithIndexerLogger(c.logger))

	synthEngine := synthesis.NewEngine(synthesisThreshold(appCfg),
		synthesis.WithInference(synthesis.NewInferenceService(llmClient, c.logger)),
		synthesis.WithLogger(c.logger))

	stages := pipeline.StandardStages(store, parser, ch, tableProcessor, runner,
		resolver, relations, publisher, synthEngine, indexer, c.logger)
	instrumented := make([]pipeline.StageExecutor, len(stages))
	for i, s := range stages {
		instrumented[i] = &instrumentedStage{inner: s, metrics: c.metricsOrNil}
	}

	return pipeline.NewEngine(store, runs, instrumented,
		pipeline.WithEventPublisher(pipeline.NewNATSEventPublisher(c.natsClient)),
		pipeline.WithEngineLogger(c.logger)), nil
}

// synthesisThreshold picks the inference trigger from product configs: the
// lowest configured threshold wins, defaulting to 0.7.
func synthesisThreshold(appCfg *config.Config) float64 {
	threshold := 0.7
	for _, p := range appCfg.Products {
		if p.ConfidenceThreshold > 0 && p.ConfidenceThreshold < threshold {
			threshold = p.ConfidenceThreshold
		}
	}
	return threshold
}

// metricsOrNil lets the instrumented stages tolerate construction order:
// metrics are created after the engine is built.
func (c *Component) metricsOrNil() *metrics {
	return c.metrics
}

// instrumentedStage records per-stage durations around the wrapped executor.
type instrumentedStage struct {
	inner   pipeline.StageExecutor
	metrics func() *metrics
}

func (s *instrumentedStage) Stage() document.Stage { return s.inner.Stage() }

func (s *instrumentedStage) Execute(ctx context.Context, req pipeline.Request) (any, error) {
	start := time.Now()
	summary, err := s.inner.Execute(ctx, req)
	if m := s.metrics(); m != nil {
		m.stageDuration.WithLabelValues(string(s.inner.Stage())).Observe(time.Since(start).Seconds())
	}
	return summary, err
}

// consumeWork processes dispatched documents with bounded concurrency.
func (c *Component) consumeWork(ctx context.Context) {
	js, err := c.natsClient.JetStream()
	if err != nil {
		c.logger.Error("Failed to get JetStream context", "error", err)
		return
	}

	stream, err := js.Stream(ctx, c.config.StreamName)
	if err != nil {
		c.logger.Error("Failed to get stream", "error", err, "stream", c.config.StreamName)
		return
	}

	consumerConfig := jetstream.ConsumerConfig{
		Durable:       c.config.ConsumerName,
		FilterSubject: pipeline.SubjectWorkDispatch,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       c.config.GetAckWait(),
		MaxDeliver:    3,
	}
	consumer, err := stream.CreateOrUpdateConsumer(ctx, consumerConfig)
	if err != nil {
		c.logger.Error("Failed to create consumer",
			"error", err, "stream", c.config.StreamName, "consumer", c.config.ConsumerName)
		return
	}

	c.logger.Info("Consumer connected", "stream", c.config.StreamName, "consumer", c.config.ConsumerName)

	sem := make(chan struct{}, c.config.MaxConcurrent)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		for msg := range msgs.Messages() {
			select {
			case <-ctx.Done():
				_ = msg.Nak()
				return
			case sem <- struct{}{}:
			}

			wg.Add(1)
			go func(msg jetstream.Msg) {
				defer wg.Done()
				defer func() { <-sem }()
				c.handleDispatch(ctx, msg)
			}(msg)
		}
	}
}

// handleDispatch runs the full stage sequence for one document. On failure
// the message is NAKed so redelivery resumes from the completed-stage
// markers.
func (c *Component) handleDispatch(ctx context.Context, msg jetstream.Msg) {
	c.updateLastActivity()

	var work pipeline.WorkDispatch
	if err := json.Unmarshal(msg.Data(), &work); err != nil {
		c.logger.Warn("Failed to parse work dispatch", "error", err)
		c.errors.Add(1)
		_ = msg.Ack()
		return
	}

	productCfg := c.productConfig(work.Product)

	c.metrics.inFlight.Inc()
	defer c.metrics.inFlight.Dec()

	// Keep the JetStream delivery alive while the engine works.
	stopProgress := c.keepInProgress(ctx, msg)
	defer stopProgress()

	c.logger.Info("Processing document",
		"workflow_id", work.WorkflowID,
		"document_id", work.DocumentID,
		"product", work.Product)

	start := time.Now()
	_, err := c.engine.ProcessDocument(ctx, work.WorkflowID, work.DocumentID, work.Product, productCfg)
	c.metrics.documentDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		c.logger.Error("Document processing failed",
			"workflow_id", work.WorkflowID,
			"document_id", work.DocumentID,
			"error", err)
		c.documentsFailed.Add(1)
		c.errors.Add(1)
		c.metrics.documentsProcessed.WithLabelValues("failed").Inc()
		_ = msg.Nak()
		return
	}

	c.documentsOK.Add(1)
	c.metrics.documentsProcessed.WithLabelValues("completed").Inc()
	_ = msg.Ack()

	c.logger.Info("Document processing complete",
		"workflow_id", work.WorkflowID,
		"document_id", work.DocumentID,
		"duration", time.Since(start))
}

// productConfig resolves the product configuration, falling back to the
// first configured product and then to library defaults.
func (c *Component) productConfig(product string) config.ProductConfig {
	if cfg, ok := c.appConfig.Products[product]; ok {
		return cfg
	}
	c.logger.Warn("Unknown product, using defaults", "product", product)
	return config.ProductConfig{ConfidenceThreshold: 0.7}
}

// keepInProgress extends the ack deadline at half the ack-wait interval
// until the returned stop function is called.
func (c *Component) keepInProgress(ctx context.Context, msg jetstream.Msg) func() {
	interval := c.config.GetAckWait() / 2
	if interval < time.Second {
		interval = time.Second
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := msg.InProgress(); err != nil {
					c.logger.Warn("Failed to extend ack deadline", "error", err)
				}
			}
		}
	}()
	return func() { close(done) }
}

// updateLastActivity safely updates the last activity timestamp.
func (c *Component) updateLastActivity() {
	c.lastActivityMu.Lock()
	c.lastActivity = time.Now()
	c.lastActivityMu.Unlock()
}

// getLastActivity safely retrieves the last activity timestamp.
func (c *Component) getLastActivity() time.Time {
	c.lastActivityMu.RLock()
	defer c.lastActivityMu.RUnlock()
	return c.lastActivity
}

// Stop gracefully stops the component within the given timeout.
func (c *Component) Stop(timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		c.logger.Warn("Timed out waiting for in-flight documents")
	}

	if c.stopMetrics != nil {
		c.stopMetrics()
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.Error("Failed to close store", "error", err)
		}
	}

	c.running = false
	c.logger.Info("Stage runner stopped",
		"documents_completed", c.documentsOK.Load(),
		"documents_failed", c.documentsFailed.Load(),
		"errors", c.errors.Load())

	return nil
}

// Discoverable interface implementation

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "stage-runner",
		Type:        "processor",
		Description: "Durable executor for the four document pipeline stages",
		Version:     "0.1.0",
	}
}

// InputPorts returns configured input port definitions.
func (c *Component) InputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}

	ports := make([]component.Port, len(c.config.Ports.Inputs))
	for i, portDef := range c.config.Ports.Inputs {
		ports[i] = buildPort(portDef, component.DirectionInput)
	}
	return ports
}

// OutputPorts returns configured output port definitions.
func (c *Component) OutputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}

	ports := make([]component.Port, len(c.config.Ports.Outputs))
	for i, portDef := range c.config.Ports.Outputs {
		ports[i] = buildPort(portDef, component.DirectionOutput)
	}
	return ports
}

// buildPort creates a component.Port from a PortDefinition.
func buildPort(portDef component.PortDefinition, direction component.Direction) component.Port {
	port := component.Port{
		Name:        portDef.Name,
		Direction:   direction,
		Required:    portDef.Required,
		Description: portDef.Description,
	}
	if portDef.Type == "jetstream" {
		port.Config = component.JetStreamPort{
			StreamName: portDef.StreamName,
			Subjects:   []string{portDef.Subject},
		}
	} else {
		port.Config = component.NATSPort{
			Subject: portDef.Subject,
		}
	}
	return port
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return stageRunnerSchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	c.mu.RLock()
	running := c.running
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	if running {
		status = "running"
	}

	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(c.errors.Load()),
		Uptime:     time.Since(startTime),
		Status:     status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{
		MessagesPerSecond: 0,
		BytesPerSecond:    0,
		ErrorRate:         0,
		LastActivity:      c.getLastActivity(),
	}
}
