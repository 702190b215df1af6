package document

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// CanonicalEntity is a document-agnostic identity for a thing mentioned
// possibly many times. Created or merged by the resolver; rolled back by the
// saga if the enrichment stage fails.
type CanonicalEntity struct {
	ID          string         `json:"id" db:"id"`
	Type        EntityType     `json:"type" db:"type"`
	Name        string         `json:"name" db:"name"`
	Fingerprint string         `json:"fingerprint" db:"fingerprint"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	Confidence  float64        `json:"confidence" db:"confidence"`
	WorkflowID  string         `json:"workflow_id" db:"workflow_id"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// Fingerprint computes the deterministic canonical-match key for an entity:
// type, normalized name, and the key identifiers that pin identity for that
// type (policy number, address, VIN, license).
func Fingerprint(t EntityType, name string, attrs map[string]any) string {
	parts := []string{string(t), normalizeKey(name)}
	for _, key := range fingerprintKeys(t) {
		if v, ok := attrs[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				parts = append(parts, key+"="+normalizeKey(s))
			}
		}
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:12])
}

// fingerprintKeys returns the identity-bearing attribute names per type.
func fingerprintKeys(t EntityType) []string {
	switch t {
	case EntityPolicy:
		return []string{"policy_number"}
	case EntityLocation:
		return []string{"address"}
	case EntityVehicle:
		return []string{"vin"}
	case EntityDriver:
		return []string{"license_number"}
	case EntityClaim:
		return []string{"claim_number"}
	case EntityEndorsement, EntityForm:
		return []string{"form_number"}
	default:
		return nil
	}
}

// normalizeKey case-folds and strips whitespace and punctuation so that
// "POL-123" and "pol 123" collide.
func normalizeKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeKey is the exported form used by mention reconciliation.
func NormalizeKey(s string) string { return normalizeKey(s) }

// RelationshipType is the closed vocabulary for the relationship graph.
type RelationshipType string

const (
	RelHasInsured  RelationshipType = "HAS_INSURED"
	RelHasCoverage RelationshipType = "HAS_COVERAGE"
	RelModifiedBy  RelationshipType = "MODIFIED_BY"
	RelHasLocation RelationshipType = "HAS_LOCATION"
	RelHasClaim    RelationshipType = "HAS_CLAIM"
	RelSameAs      RelationshipType = "SAME_AS"
	RelSupportedBy RelationshipType = "SUPPORTED_BY"
	RelHasVehicle  RelationshipType = "HAS_VEHICLE"
	RelHasDriver   RelationshipType = "HAS_DRIVER"
)

// KnownRelationshipTypes lists the accepted relationship vocabulary.
var KnownRelationshipTypes = map[RelationshipType]bool{
	RelHasInsured:  true,
	RelHasCoverage: true,
	RelModifiedBy:  true,
	RelHasLocation: true,
	RelHasClaim:    true,
	RelSameAs:      true,
	RelSupportedBy: true,
	RelHasVehicle:  true,
	RelHasDriver:   true,
}

// Relationship links two canonical entities.
type Relationship struct {
	ID         string           `json:"id" db:"id"`
	SourceID   string           `json:"source_canonical_id" db:"source_canonical_id"`
	TargetID   string           `json:"target_canonical_id" db:"target_canonical_id"`
	Type       RelationshipType `json:"type" db:"type"`
	Attributes map[string]any   `json:"attributes,omitempty"`
	Confidence float64          `json:"confidence" db:"confidence"`
	WorkflowID string           `json:"workflow_id" db:"workflow_id"`
	CreatedAt  time.Time        `json:"created_at" db:"created_at"`
}
