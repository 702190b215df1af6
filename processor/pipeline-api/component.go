// Package pipelineapi provides the run intake and status API for the
// document pipeline. It accepts run requests off the stream, creates run
// state, dispatches work to the stage runner, and answers status queries
// over NATS request/reply backed by the runs KV bucket.
package pipelineapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/policypipe/pipeline"
	"github.com/c360studio/policypipe/storage"
)

// pipelineAPISchema defines the configuration schema.
var pipelineAPISchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Component implements the pipeline-api processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger
	platform   component.PlatformMeta

	runs *storage.RunStore
	subs []*nats.Subscription

	// Lifecycle management
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc

	// Metrics
	runsAccepted   atomic.Int64
	statusQueries  atomic.Int64
	errors         atomic.Int64
	lastActivityMu sync.RWMutex
	lastActivity   time.Time
}

// NewComponent creates a new pipeline-api processor component.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	var config Config
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Ports == nil {
		config = DefaultConfig()
		if err := json.Unmarshal(rawConfig, &config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Component{
		name:       "pipeline-api",
		config:     config,
		natsClient: deps.NATSClient,
		logger:     deps.GetLogger(),
		platform:   deps.Platform,
	}, nil
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	return nil
}

// Start begins serving run requests and status queries.
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

	js, err := c.natsClient.JetStream()
	if err != nil {
		c.fail()
		return fmt.Errorf("get JetStream: %w", err)
	}

	runs, err := storage.NewRunStore(ctx, js)
	if err != nil {
		c.fail()
		return fmt.Errorf("create run store: %w", err)
	}
	c.runs = runs

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	if err := c.subscribeStatus(); err != nil {
		c.fail()
		cancel()
		return err
	}

	go c.consumeRunRequests(runCtx)

	c.logger.Info("Pipeline API started",
		"stream", c.config.StreamName,
		"consumer", c.config.ConsumerName)

	return nil
}

func (c *Component) fail() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// subscribeStatus wires the request/reply status endpoints on core NATS.
func (c *Component) subscribeStatus() error {
	nc := c.natsClient.GetConnection()
	if nc == nil {
		return fmt.Errorf("NATS connection unavailable")
	}

	getSub, err := nc.Subscribe(pipeline.SubjectStatusGet, c.handleStatusGet)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", pipeline.SubjectStatusGet, err)
	}
	c.subs = append(c.subs, getSub)

	listSub, err := nc.Subscribe(pipeline.SubjectStatusList, c.handleStatusList)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", pipeline.SubjectStatusList, err)
	}
	c.subs = append(c.subs, listSub)

	return nil
}

// handleStatusGet answers a single-run status query.
func (c *Component) handleStatusGet(msg *nats.Msg) {
	c.statusQueries.Add(1)
	c.updateLastActivity()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var req pipeline.StatusRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.WorkflowID == "" {
		c.respondError(msg, "workflow_id is required")
		return
	}

	state, err := c.runs.Get(ctx, req.WorkflowID)
	if errors.Is(err, storage.ErrNotFound) {
		c.respondError(msg, fmt.Sprintf("run %s not found", req.WorkflowID))
		return
	}
	if err != nil {
		c.errors.Add(1)
		c.respondError(msg, "status lookup failed")
		return
	}

	data, err := json.Marshal(state)
	if err != nil {
		c.errors.Add(1)
		return
	}
	_ = msg.Respond(data)
}

// handleStatusList answers a full run listing.
func (c *Component) handleStatusList(msg *nats.Msg) {
	c.statusQueries.Add(1)
	c.updateLastActivity()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	runs, err := c.runs.List(ctx)
	if err != nil {
		c.errors.Add(1)
		c.respondError(msg, "run listing failed")
		return
	}

	data, err := json.Marshal(runs)
	if err != nil {
		c.errors.Add(1)
		return
	}
	_ = msg.Respond(data)
}

func (c *Component) respondError(msg *nats.Msg, errMsg string) {
	data, err := json.Marshal(pipeline.StatusError{Error: errMsg})
	if err != nil {
		return
	}
	_ = msg.Respond(data)
}

// consumeRunRequests processes incoming run requests off the stream.
func (c *Component) consumeRunRequests(ctx context.Context) {
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
		FilterSubject: pipeline.SubjectRunRequest,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    3,
	}
	consumer, err := stream.CreateOrUpdateConsumer(ctx, consumerConfig)
	if err != nil {
		c.logger.Error("Failed to create consumer",
			"error", err, "stream", c.config.StreamName, "consumer", c.config.ConsumerName)
		return
	}

	c.logger.Info("Consumer connected", "stream", c.config.StreamName, "consumer", c.config.ConsumerName)

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
			default:
				c.handleRunRequest(ctx, msg)
			}
		}
	}
}

// handleRunRequest creates run state for the request and dispatches work.
func (c *Component) handleRunRequest(ctx context.Context, msg jetstream.Msg) {
	c.updateLastActivity()

	var req pipeline.RunRequest
	if err := json.Unmarshal(msg.Data(), &req); err != nil {
		c.logger.Warn("Failed to parse run request", "error", err)
		c.errors.Add(1)
		// Malformed payloads never parse on redelivery.
		_ = msg.Ack()
		return
	}
	if req.DocumentID == "" {
		c.logger.Warn("Run request missing document_id")
		c.errors.Add(1)
		_ = msg.Ack()
		return
	}
	if req.Product == "" {
		req.Product = c.config.DefaultProduct
	}

	workflowID := storage.NewWorkflowID()
	state := &storage.RunState{
		WorkflowID: workflowID,
		DocumentID: req.DocumentID,
		Product:    req.Product,
		Status:     storage.RunPending,
	}
	if err := c.runs.Create(ctx, state); err != nil {
		c.logger.Error("Failed to create run state",
			"workflow_id", workflowID, "document_id", req.DocumentID, "error", err)
		c.errors.Add(1)
		_ = msg.Nak()
		return
	}

	dispatch := pipeline.WorkDispatch{
		WorkflowID: workflowID,
		DocumentID: req.DocumentID,
		Product:    req.Product,
	}
	data, err := json.Marshal(dispatch)
	if err != nil {
		c.errors.Add(1)
		_ = msg.Nak()
		return
	}
	if err := c.natsClient.PublishToStream(ctx, pipeline.SubjectWorkDispatch, data); err != nil {
		c.logger.Error("Failed to dispatch work",
			"workflow_id", workflowID, "error", err)
		c.errors.Add(1)
		_ = msg.Nak()
		return
	}

	c.runsAccepted.Add(1)
	_ = msg.Ack()

	c.logger.Info("Run accepted",
		"workflow_id", workflowID,
		"document_id", req.DocumentID,
		"product", req.Product)
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
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.subs = nil

	c.running = false
	c.logger.Info("Pipeline API stopped",
		"runs_accepted", c.runsAccepted.Load(),
		"status_queries", c.statusQueries.Load(),
		"errors", c.errors.Load())

	return nil
}

// Discoverable interface implementation

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "pipeline-api",
		Type:        "processor",
		Description: "Run intake and status API for the document pipeline",
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
	return pipelineAPISchema
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
