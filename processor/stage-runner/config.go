package stagerunner

import (
	"fmt"
	"time"

	"github.com/c360studio/semstreams/component"

	"github.com/c360studio/policypipe/pipeline"
)

// Config holds configuration for the stage-runner processor component.
type Config struct {
	Ports *component.PortConfig `json:"ports" schema:"type:ports,description:Port configuration,category:basic"`

	// StreamName is the JetStream stream for pipeline messages.
	StreamName string `json:"stream_name" schema:"type:string,description:JetStream stream name,category:basic,default:PIPELINE"`

	// ConsumerName is the durable consumer name for work dispatch.
	ConsumerName string `json:"consumer_name" schema:"type:string,description:Durable consumer name,category:basic,default:stage-runner"`

	// MaxConcurrent bounds documents processed in parallel.
	MaxConcurrent int `json:"max_concurrent" schema:"type:int,description:Maximum documents processed in parallel,category:advanced,default:2"`

	// AckWait is how long a dispatched document may run before redelivery.
	AckWait string `json:"ack_wait" schema:"type:string,description:JetStream ack wait for document processing,category:advanced,default:30m"`

	// MetricsAddr is the listen address for the Prometheus endpoint.
	// Empty disables the metrics server.
	MetricsAddr string `json:"metrics_addr" schema:"type:string,description:Prometheus metrics listen address,category:advanced,default::9402"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.StreamName == "" {
		return fmt.Errorf("stream_name is required")
	}
	if c.ConsumerName == "" {
		return fmt.Errorf("consumer_name is required")
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1")
	}
	if c.AckWait != "" {
		if _, err := time.ParseDuration(c.AckWait); err != nil {
			return fmt.Errorf("invalid ack_wait format: %w", err)
		}
	}
	return nil
}

// GetAckWait returns the ack wait as a duration. The default covers the
// slowest stage class (OCR on large documents).
func (c *Config) GetAckWait() time.Duration {
	if c.AckWait == "" {
		return 30 * time.Minute
	}
	d, err := time.ParseDuration(c.AckWait)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

// DefaultConfig returns default configuration for the stage-runner processor.
func DefaultConfig() Config {
	inputDefs := []component.PortDefinition{
		{
			Name:        "work.in",
			Type:        "jetstream",
			Subject:     pipeline.SubjectWorkDispatch,
			StreamName:  pipeline.StreamName,
			Required:    true,
			Description: "Accepted runs to execute",
		},
	}

	outputDefs := []component.PortDefinition{
		{
			Name:        "events.out",
			Type:        "jetstream",
			Subject:     pipeline.EventSubjectPrefix + ">",
			StreamName:  pipeline.StreamName,
			Required:    false,
			Description: "Stage lifecycle events",
		},
		{
			Name:        "graph.out",
			Type:        "jetstream",
			Subject:     "graph.ingest.entity",
			StreamName:  "GRAPH",
			Required:    false,
			Description: "Canonical entity updates for graph ingestion",
		},
	}

	return Config{
		Ports: &component.PortConfig{
			Inputs:  inputDefs,
			Outputs: outputDefs,
		},
		StreamName:    pipeline.StreamName,
		ConsumerName:  "stage-runner",
		MaxConcurrent: 2,
		AckWait:       "30m",
		MetricsAddr:   ":9402",
	}
}
