// Package docingester watches an inbox directory for dropped PDFs,
// registers them as documents, and publishes run requests so the pipeline
// picks them up.
package docingester

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

	"github.com/c360studio/policypipe/config"
	"github.com/c360studio/policypipe/document"
	"github.com/c360studio/policypipe/pipeline"
	"github.com/c360studio/policypipe/storage"
)

// docIngesterSchema defines the configuration schema.
var docIngesterSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Component implements the doc-ingester processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger
	platform   component.PlatformMeta

	store   *storage.Store
	watcher *InboxWatcher

	// Lifecycle management
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc

	// Metrics
	documentsRegistered atomic.Int64
	errors              atomic.Int64
	lastActivityMu      sync.RWMutex
	lastActivity        time.Time
}

// NewComponent creates a new doc-ingester processor component.
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
		name:       "doc-ingester",
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

// Start begins watching the inbox directory.
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

	store, err := storage.New(ctx, appCfg.Postgres)
	if err != nil {
		c.fail()
		return fmt.Errorf("open store: %w", err)
	}
	c.store = store

	watcher, err := NewInboxWatcher(c.config.InboxDir, c.config.GetSettleDelay(), c.logger)
	if err != nil {
		c.fail()
		return fmt.Errorf("create inbox watcher: %w", err)
	}
	c.watcher = watcher

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	if err := watcher.Start(runCtx); err != nil {
		c.fail()
		cancel()
		return fmt.Errorf("start inbox watcher: %w", err)
	}
	if c.config.ScanOnStart {
		if err := watcher.ScanExisting(); err != nil {
			c.logger.Warn("Failed to scan existing inbox files", "error", err)
		}
	}

	go c.processInboxEvents(runCtx)

	c.logger.Info("Doc ingester started",
		"inbox_dir", c.config.InboxDir,
		"product", c.config.Product)

	return nil
}

func (c *Component) fail() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// processInboxEvents registers settled PDFs and requests runs for them.
func (c *Component) processInboxEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-c.watcher.Events():
			if !ok {
				return
			}
			c.ingestFile(ctx, event)
		}
	}
}

// ingestFile creates a document record and publishes a run request.
func (c *Component) ingestFile(ctx context.Context, event InboxEvent) {
	c.updateLastActivity()

	doc := &document.Document{
		ID:       document.NewDocumentID(),
		Name:     event.Name,
		FilePath: event.Path,
		MimeType: "application/pdf",
		Status:   document.StatusPending,
	}
	if err := c.store.CreateDocument(ctx, doc); err != nil {
		c.logger.Error("Failed to register document", "path", event.Path, "error", err)
		c.errors.Add(1)
		return
	}

	req := pipeline.RunRequest{
		DocumentID: doc.ID,
		Product:    c.config.Product,
	}
	data, err := json.Marshal(req)
	if err != nil {
		c.errors.Add(1)
		return
	}
	if err := c.natsClient.PublishToStream(ctx, pipeline.SubjectRunRequest, data); err != nil {
		c.logger.Error("Failed to publish run request",
			"document_id", doc.ID, "path", event.Path, "error", err)
		c.errors.Add(1)
		return
	}

	c.documentsRegistered.Add(1)
	c.logger.Info("Document registered from inbox",
		"document_id", doc.ID,
		"path", event.Path)
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
func (c *Component) Stop(_ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}
	if c.watcher != nil {
		if err := c.watcher.Stop(); err != nil {
			c.logger.Error("Failed to stop inbox watcher", "error", err)
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.Error("Failed to close store", "error", err)
		}
	}

	c.running = false
	c.logger.Info("Doc ingester stopped",
		"documents_registered", c.documentsRegistered.Load(),
		"errors", c.errors.Load())

	return nil
}

// Discoverable interface implementation

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "doc-ingester",
		Type:        "processor",
		Description: "Inbox watcher registering dropped PDFs for processing",
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
	return docIngesterSchema
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
