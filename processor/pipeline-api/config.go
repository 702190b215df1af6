package pipelineapi

import (
	"fmt"

	"github.com/c360studio/semstreams/component"

	"github.com/c360studio/policypipe/pipeline"
)

// Config holds configuration for the pipeline-api processor component.
type Config struct {
	Ports *component.PortConfig `json:"ports" schema:"type:ports,description:Port configuration,category:basic"`

	// StreamName is the JetStream stream for pipeline messages.
	StreamName string `json:"stream_name" schema:"type:string,description:JetStream stream name,category:basic,default:PIPELINE"`

	// ConsumerName is the durable consumer name for run requests.
	ConsumerName string `json:"consumer_name" schema:"type:string,description:Durable consumer name,category:basic,default:pipeline-api"`

	// DefaultProduct is used when a run request omits the product.
	DefaultProduct string `json:"default_product" schema:"type:string,description:Product applied to requests without one,category:basic,default:document-processing"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.StreamName == "" {
		return fmt.Errorf("stream_name is required")
	}
	if c.ConsumerName == "" {
		return fmt.Errorf("consumer_name is required")
	}
	return nil
}

// DefaultConfig returns default configuration for the pipeline-api processor.
func DefaultConfig() Config {
	inputDefs := []component.PortDefinition{
		{
			Name:        "runs.in",
			Type:        "jetstream",
			Subject:     pipeline.SubjectRunRequest,
			StreamName:  pipeline.StreamName,
			Required:    true,
			Description: "Document processing run requests",
		},
		{
			Name:        "status.in",
			Type:        "nats",
			Subject:     pipeline.SubjectStatusGet,
			Required:    false,
			Description: "Run status queries (request/reply)",
		},
	}

	outputDefs := []component.PortDefinition{
		{
			Name:        "work.out",
			Type:        "jetstream",
			Subject:     pipeline.SubjectWorkDispatch,
			StreamName:  pipeline.StreamName,
			Required:    true,
			Description: "Accepted runs dispatched to the stage runner",
		},
	}

	return Config{
		Ports: &component.PortConfig{
			Inputs:  inputDefs,
			Outputs: outputDefs,
		},
		StreamName:     pipeline.StreamName,
		ConsumerName:   "pipeline-api",
		DefaultProduct: "document-processing",
	}
}
