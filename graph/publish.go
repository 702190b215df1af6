// Package graph projects canonical entities and relationships into the
// knowledge graph as triple payloads on the graph ingest stream.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/policypipe/document"
	"github.com/c360studio/policypipe/vocabulary/policy"
	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"
)

// GraphIngestSubject is the stream subject graph payloads are published to.
const GraphIngestSubject = "graph.ingest.entity"

// tripleSource marks triples produced by the enrichment stage.
const tripleSource = "policypipe.enrich"

// EntityIngestMessage is the wire format for graph ingestion. It matches the
// payload consumed by the graph ingestion components.
type EntityIngestMessage struct {
	ID        string           `json:"id"`
	Triples   []message.Triple `json:"triples"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Publisher writes canonical entities and relationships to the graph stream.
// A nil NATS client degrades gracefully: publishing becomes a no-op so the
// pipeline can run without a graph backend.
type Publisher struct {
	nc     *natsclient.Client
	logger *slog.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(nc *natsclient.Client, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{nc: nc, logger: logger}
}

// EntityGraphID is the graph node id for a canonical entity.
// Format: policypipe.entity.<canonical id>
func EntityGraphID(canonicalID string) string {
	return "policypipe.entity." + canonicalID
}

// ChunkGraphID is the graph node id for a document chunk used as evidence.
func ChunkGraphID(chunkID string) string {
	return "policypipe.chunk." + chunkID
}

// PublishEntity publishes one canonical entity with its attribute triples.
func (p *Publisher) PublishEntity(ctx context.Context, documentID string, e *document.CanonicalEntity) error {
	if p.nc == nil {
		return nil
	}
	return p.publish(ctx, EntityGraphID(e.ID), EntityTriples(e, documentID))
}

// PublishRelationships publishes relationship edges, grouped by source
// entity so each node gets one ingest message.
func (p *Publisher) PublishRelationships(ctx context.Context, relationships []document.Relationship) error {
	if p.nc == nil || len(relationships) == 0 {
		return nil
	}

	bySource := make(map[string][]message.Triple)
	var order []string
	for i := range relationships {
		r := &relationships[i]
		triple, ok := RelationshipTriple(r)
		if !ok {
			p.logger.Warn("Skipping relationship with unmapped type", "type", r.Type)
			continue
		}
		key := triple.Subject
		if _, seen := bySource[key]; !seen {
			order = append(order, key)
		}
		bySource[key] = append(bySource[key], triple)
	}

	for _, subject := range order {
		if err := p.publish(ctx, subject, bySource[subject]); err != nil {
			return err
		}
	}
	return nil
}

// PublishEvidence links an entity to the chunks that evidence it.
func (p *Publisher) PublishEvidence(ctx context.Context, canonicalID string, chunkIDs []string) error {
	if p.nc == nil || len(chunkIDs) == 0 {
		return nil
	}

	subject := EntityGraphID(canonicalID)
	now := time.Now()
	triples := make([]message.Triple, 0, len(chunkIDs))
	for _, chunkID := range chunkIDs {
		triples = append(triples, message.Triple{
			Subject:    subject,
			Predicate:  policy.RelSupportedBy,
			Object:     ChunkGraphID(chunkID),
			Source:     tripleSource,
			Timestamp:  now,
			Confidence: 1.0,
		})
	}
	return p.publish(ctx, subject, triples)
}

func (p *Publisher) publish(ctx context.Context, entityID string, triples []message.Triple) error {
	msg := EntityIngestMessage{
		ID:        entityID,
		Triples:   triples,
		UpdatedAt: time.Now(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal graph entity %s: %w", entityID, err)
	}
	if err := p.nc.PublishToStream(ctx, GraphIngestSubject, data); err != nil {
		return fmt.Errorf("publish graph entity %s: %w", entityID, err)
	}
	return nil
}

// EntityTriples renders a canonical entity as triples: the shared identity
// predicates plus the attribute predicates mapped for its type.
func EntityTriples(e *document.CanonicalEntity, documentID string) []message.Triple {
	subject := EntityGraphID(e.ID)
	now := time.Now()

	mk := func(predicate string, object any, confidence float64) message.Triple {
		return message.Triple{
			Subject:    subject,
			Predicate:  predicate,
			Object:     object,
			Source:     tripleSource,
			Timestamp:  now,
			Confidence: confidence,
		}
	}

	triples := []message.Triple{
		mk(policy.EntityType, string(e.Type), 1.0),
		mk(policy.EntityName, e.Name, e.Confidence),
		mk(policy.EntityFingerprint, e.Fingerprint, 1.0),
		mk(policy.EntityConfidence, e.Confidence, 1.0),
		mk(policy.EntityWorkflow, e.WorkflowID, 1.0),
	}
	if documentID != "" {
		triples = append(triples, mk(policy.EntityDocument, documentID, 1.0))
	}

	for attr, predicate := range attributePredicates(e.Type) {
		if v, ok := e.Attributes[attr].(string); ok && v != "" {
			triples = append(triples, mk(predicate, v, e.Confidence))
		}
	}
	return triples
}

// attributePredicates maps attribute names to graph predicates per type.
func attributePredicates(t document.EntityType) map[string]string {
	switch t {
	case document.EntityPolicy:
		return map[string]string{
			"policy_number":    policy.PolicyNumber,
			"effective_date":   policy.PolicyEffectiveDate,
			"expiration_date":  policy.PolicyExpirationDate,
			"line_of_business": policy.PolicyLineOfBusiness,
		}
	case document.EntityCoverage:
		return map[string]string{
			"limit":      policy.CoverageLimit,
			"deductible": policy.CoverageDeductible,
			"scope":      policy.CoverageScope,
		}
	case document.EntityExclusion:
		return map[string]string{
			"scope": policy.ExclusionScope,
		}
	case document.EntityEndorsement, document.EntityForm:
		return map[string]string{
			"form_number": policy.EndorsementFormNumber,
		}
	case document.EntityLocation:
		return map[string]string{
			"address": policy.LocationAddress,
		}
	case document.EntityVehicle:
		return map[string]string{
			"vin": policy.VehicleVIN,
		}
	case document.EntityDriver:
		return map[string]string{
			"license_number": policy.DriverLicense,
		}
	case document.EntityClaim:
		return map[string]string{
			"claim_number": policy.ClaimNumber,
			"loss_date":    policy.ClaimLossDate,
			"status":       policy.ClaimStatus,
		}
	default:
		return nil
	}
}

// relationshipPredicates maps the closed relationship vocabulary to graph
// predicates.
var relationshipPredicates = map[document.RelationshipType]string{
	document.RelHasInsured:  policy.RelHasInsured,
	document.RelHasCoverage: policy.RelHasCoverage,
	document.RelModifiedBy:  policy.RelModifiedBy,
	document.RelHasLocation: policy.RelHasLocation,
	document.RelHasClaim:    policy.RelHasClaim,
	document.RelSameAs:      policy.RelSameAs,
	document.RelSupportedBy: policy.RelSupportedBy,
	document.RelHasVehicle:  policy.RelHasVehicle,
	document.RelHasDriver:   policy.RelHasDriver,
}

// RelationshipTriple renders one relationship as an edge triple. Returns
// false when the relationship type has no graph predicate.
func RelationshipTriple(r *document.Relationship) (message.Triple, bool) {
	predicate, ok := relationshipPredicates[r.Type]
	if !ok {
		return message.Triple{}, false
	}
	return message.Triple{
		Subject:    EntityGraphID(r.SourceID),
		Predicate:  predicate,
		Object:     EntityGraphID(r.TargetID),
		Source:     tripleSource,
		Timestamp:  time.Now(),
		Confidence: r.Confidence,
	}, true
}
