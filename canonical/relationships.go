package canonical

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/c360studio/policypipe/document"
	"github.com/c360studio/policypipe/llm"
)

const relationshipInstruction = `You are an insurance policy analyst. Given a list of entities extracted from one policy document, identify the relationships between them. Respond with a single JSON array and nothing else:
[
  {"source_id": string, "target_id": string, "type": string, "confidence": number, "attributes": object}
]
Allowed types: HAS_INSURED, HAS_COVERAGE, MODIFIED_BY, HAS_LOCATION, HAS_CLAIM, SAME_AS, SUPPORTED_BY, HAS_VEHICLE, HAS_DRIVER.
Use only the entity ids given. Do not invent entities or relationship types.`

// RelationshipExtractor runs the pass-2 LLM over the resolved canonical set.
type RelationshipExtractor struct {
	client llm.Client
	store  Store
	logger *slog.Logger
}

// NewRelationshipExtractor creates the extractor.
func NewRelationshipExtractor(client llm.Client, store Store, logger *slog.Logger) *RelationshipExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RelationshipExtractor{client: client, store: store, logger: logger}
}

// rawRelationship is the wire shape the LLM returns.
type rawRelationship struct {
	SourceID   string         `json:"source_id"`
	TargetID   string         `json:"target_id"`
	Type       string         `json:"type"`
	Confidence float64        `json:"confidence"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Extract asks the LLM for relationships over the canonical set and
// persists the ones that pass the closed-vocabulary and identity checks.
// Evidence is the section-extraction summary the model grounds on.
func (x *RelationshipExtractor) Extract(ctx context.Context, workflowID string, entities []document.CanonicalEntity, evidence string) ([]document.Relationship, error) {
	if len(entities) < 2 {
		return nil, nil
	}

	known := make(map[string]document.EntityType, len(entities))
	var roster strings.Builder
	for _, e := range entities {
		known[e.ID] = e.Type
		fmt.Fprintf(&roster, "- id=%s type=%s name=%q\n", e.ID, e.Type, e.Name)
	}

	prompt := "Entities:\n" + roster.String()
	if evidence != "" {
		prompt += "\nEvidence from the document:\n" + evidence
	}

	resp, err := x.client.Complete(ctx, llm.Request{
		SystemInstruction: relationshipInstruction,
		Messages:          []llm.Message{{Role: "user", Content: prompt}},
		Config:            llm.GenerationConfig{JSONMode: true},
	})
	if err != nil {
		return nil, fmt.Errorf("relationship extraction: %w", err)
	}

	raw := llm.ExtractJSONArray(resp.Content)
	if raw == "" {
		return nil, fmt.Errorf("no JSON array in relationship response")
	}

	var proposed []rawRelationship
	if err := json.Unmarshal([]byte(raw), &proposed); err != nil {
		return nil, fmt.Errorf("decode relationships: %w", err)
	}

	var accepted []document.Relationship
	for _, p := range proposed {
		relType := document.RelationshipType(strings.ToUpper(strings.TrimSpace(p.Type)))
		if !document.KnownRelationshipTypes[relType] {
			x.logger.Debug("Dropping relationship with unknown type", "type", p.Type)
			continue
		}
		if _, ok := known[p.SourceID]; !ok {
			x.logger.Debug("Dropping relationship with unknown source", "source_id", p.SourceID)
			continue
		}
		if _, ok := known[p.TargetID]; !ok {
			x.logger.Debug("Dropping relationship with unknown target", "target_id", p.TargetID)
			continue
		}
		if p.SourceID == p.TargetID {
			continue
		}

		confidence := p.Confidence
		if confidence <= 0 || confidence > 1 {
			confidence = 0.6
		}

		rel := document.Relationship{
			SourceID:   p.SourceID,
			TargetID:   p.TargetID,
			Type:       relType,
			Attributes: p.Attributes,
			Confidence: confidence,
			WorkflowID: workflowID,
			CreatedAt:  time.Now(),
		}
		if err := x.store.CreateRelationship(ctx, &rel); err != nil {
			return accepted, fmt.Errorf("persist relationship %s -> %s: %w", p.SourceID, p.TargetID, err)
		}
		accepted = append(accepted, rel)
	}

	x.logger.Info("Relationship extraction complete",
		"workflow_id", workflowID,
		"proposed", len(proposed),
		"accepted", len(accepted))

	return accepted, nil
}
