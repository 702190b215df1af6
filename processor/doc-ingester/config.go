package docingester

import (
	"fmt"
	"time"

	"github.com/c360studio/semstreams/component"

	"github.com/c360studio/policypipe/pipeline"
)

// Config holds configuration for the doc-ingester processor component.
type Config struct {
	Ports *component.PortConfig `json:"ports" schema:"type:ports,description:Port configuration,category:basic"`

	// InboxDir is the directory watched for dropped PDFs.
	InboxDir string `json:"inbox_dir" schema:"type:string,description:Directory watched for dropped PDFs,category:basic,default:inbox"`

	// Product is the product applied to ingested documents.
	Product string `json:"product" schema:"type:string,description:Product applied to ingested documents,category:basic,default:document-processing"`

	// SettleDelay is how long a file must stay unchanged before ingestion.
	// Copies into the inbox are not atomic.
	SettleDelay string `json:"settle_delay" schema:"type:string,description:Quiet period before a dropped file is ingested,category:advanced,default:2s"`

	// ScanOnStart ingests PDFs already present in the inbox at startup.
	ScanOnStart bool `json:"scan_on_start" schema:"type:bool,description:Ingest PDFs already present at startup,category:basic,default:true"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.InboxDir == "" {
		return fmt.Errorf("inbox_dir is required")
	}
	if c.Product == "" {
		return fmt.Errorf("product is required")
	}
	if c.SettleDelay != "" {
		if _, err := time.ParseDuration(c.SettleDelay); err != nil {
			return fmt.Errorf("invalid settle_delay format: %w", err)
		}
	}
	return nil
}

// GetSettleDelay returns the settle delay as a duration.
func (c *Config) GetSettleDelay() time.Duration {
	if c.SettleDelay == "" {
		return 2 * time.Second
	}
	d, err := time.ParseDuration(c.SettleDelay)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// DefaultConfig returns default configuration for the doc-ingester processor.
func DefaultConfig() Config {
	outputDefs := []component.PortDefinition{
		{
			Name:        "runs.out",
			Type:        "jetstream",
			Subject:     pipeline.SubjectRunRequest,
			StreamName:  pipeline.StreamName,
			Required:    true,
			Description: "Run requests for ingested documents",
		},
	}

	return Config{
		Ports: &component.PortConfig{
			Inputs:  []component.PortDefinition{},
			Outputs: outputDefs,
		},
		InboxDir:    "inbox",
		Product:     "document-processing",
		SettleDelay: "2s",
		ScanOnStart: true,
	}
}
