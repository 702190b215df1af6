package docingester

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the doc-ingester processor component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "doc-ingester",
		Factory:     NewComponent,
		Schema:      docIngesterSchema,
		Type:        "processor",
		Protocol:    "nats",
		Domain:      "pipeline",
		Description: "Inbox watcher registering dropped PDFs for processing",
		Version:     "0.1.0",
	})
}
