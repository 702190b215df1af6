package pipelineapi

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the pipeline-api processor component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "pipeline-api",
		Factory:     NewComponent,
		Schema:      pipelineAPISchema,
		Type:        "processor",
		Protocol:    "nats",
		Domain:      "pipeline",
		Description: "Run intake and status API for the document pipeline",
		Version:     "0.1.0",
	})
}
