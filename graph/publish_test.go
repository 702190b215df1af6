package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/policypipe/document"
	"github.com/c360studio/policypipe/vocabulary/policy"
	"github.com/c360studio/semstreams/payloadregistry"
)

func TestEntityTriples(t *testing.T) {
	e := &document.CanonicalEntity{
		ID:          "ent:abc",
		Type:        document.EntityPolicy,
		Name:        "BP-4429871",
		Fingerprint: "deadbeef",
		Confidence:  0.92,
		WorkflowID:  "wf:1",
		Attributes: map[string]any{
			"policy_number":  "BP-4429871",
			"effective_date": "2025-01-01",
			"unmapped_attr":  "ignored",
		},
	}

	triples := EntityTriples(e, "doc:1")

	byPredicate := make(map[string]any)
	for _, tr := range triples {
		assert.Equal(t, "policypipe.entity.ent:abc", tr.Subject)
		byPredicate[tr.Predicate] = tr.Object
	}

	assert.Equal(t, "Policy", byPredicate[policy.EntityType])
	assert.Equal(t, "BP-4429871", byPredicate[policy.EntityName])
	assert.Equal(t, "wf:1", byPredicate[policy.EntityWorkflow])
	assert.Equal(t, "doc:1", byPredicate[policy.EntityDocument])
	assert.Equal(t, "BP-4429871", byPredicate[policy.PolicyNumber])
	assert.Equal(t, "2025-01-01", byPredicate[policy.PolicyEffectiveDate])
	assert.NotContains(t, byPredicate, "unmapped_attr")
}

func TestRelationshipTriple(t *testing.T) {
	r := &document.Relationship{
		SourceID:   "ent:policy",
		TargetID:   "ent:org",
		Type:       document.RelHasInsured,
		Confidence: 0.9,
	}

	triple, ok := RelationshipTriple(r)
	require.True(t, ok)
	assert.Equal(t, EntityGraphID("ent:policy"), triple.Subject)
	assert.Equal(t, policy.RelHasInsured, triple.Predicate)
	assert.Equal(t, EntityGraphID("ent:org"), triple.Object)
	assert.InDelta(t, 0.9, triple.Confidence, 0.001)

	_, ok = RelationshipTriple(&document.Relationship{Type: "MADE_UP"})
	assert.False(t, ok)
}

func TestPublisherNilClientDegrades(t *testing.T) {
	p := NewPublisher(nil, nil)

	require.NoError(t, p.PublishEntity(context.Background(), "doc:1",
		&document.CanonicalEntity{ID: "ent:1", Type: document.EntityPolicy}))
	require.NoError(t, p.PublishRelationships(context.Background(),
		[]document.Relationship{{SourceID: "a", TargetID: "b", Type: document.RelHasInsured}}))
	require.NoError(t, p.PublishEvidence(context.Background(), "ent:1", []string{"chk:1"}))
}

func TestEntityPayloadValidate(t *testing.T) {
	assert.Error(t, (&EntityPayload{}).Validate())
	assert.NoError(t, (&EntityPayload{EntityID_: "policypipe.entity.ent:1"}).Validate())
}

func TestRegisterPayloads(t *testing.T) {
	reg := payloadregistry.New()
	require.NoError(t, RegisterPayloads(reg))

	created := reg.Create(EntityType.Domain, EntityType.Category, EntityType.Version)
	require.NotNil(t, created)
	payload, ok := created.(*EntityPayload)
	require.True(t, ok)
	assert.Equal(t, EntityType, payload.Schema())

	// Duplicate registration must surface, not silently overwrite.
	assert.Error(t, RegisterPayloads(reg))
}
