package stagerunner

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the stage-runner processor component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "stage-runner",
		Factory:     NewComponent,
		Schema:      stageRunnerSchema,
		Type:        "processor",
		Protocol:    "nats",
		Domain:      "pipeline",
		Description: "Durable executor for the four document pipeline stages",
		Version:     "0.1.0",
	})
}
