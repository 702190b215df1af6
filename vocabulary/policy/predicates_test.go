package policy_test

import (
	"testing"

	"github.com/c360studio/policypipe/vocabulary/policy"
	"github.com/c360studio/semstreams/vocabulary"
)

func TestPredicatesRegistered(t *testing.T) {
	predicates := []string{
		policy.EntityType,
		policy.EntityName,
		policy.EntityFingerprint,
		policy.EntityConfidence,
		policy.PolicyNumber,
		policy.PolicyEffectiveDate,
		policy.CoverageState,
		policy.CoverageTaxonomySlug,
		policy.ExclusionState,
		policy.ExclusionCarveBack,
		policy.EndorsementFormNumber,
		policy.LocationAddress,
		policy.VehicleVIN,
		policy.ClaimNumber,
		policy.RelHasInsured,
		policy.RelHasCoverage,
		policy.RelModifiedBy,
		policy.RelSameAs,
		policy.RelSupportedBy,
		policy.ProvPage,
	}

	for _, predicate := range predicates {
		t.Run(predicate, func(t *testing.T) {
			meta := vocabulary.GetPredicateMetadata(predicate)
			if meta == nil {
				t.Errorf("predicate %q not registered", predicate)
				return
			}
			if meta.Description == "" {
				t.Errorf("predicate %q has no description", predicate)
			}
			if meta.DataType == "" {
				t.Errorf("predicate %q has no data type", predicate)
			}
		})
	}
}

func TestPredicateValues(t *testing.T) {
	tests := []struct {
		name      string
		predicate string
		expected  string
	}{
		{"EntityName", policy.EntityName, "policy.entity.name"},
		{"PolicyNumber", policy.PolicyNumber, "policy.policy.number"},
		{"CoverageState", policy.CoverageState, "policy.coverage.state"},
		{"RelHasCoverage", policy.RelHasCoverage, "policy.rel.has_coverage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.predicate != tt.expected {
				t.Errorf("got %q, want %q", tt.predicate, tt.expected)
			}
		})
	}
}

func TestClassIRIMapCoversEntityTypes(t *testing.T) {
	for _, entityType := range []string{
		"Policy", "Organization", "Coverage", "Exclusion", "Condition",
		"Endorsement", "Location", "Claim", "Definition", "Form",
		"Vehicle", "Driver",
	} {
		if _, ok := policy.ClassIRIMap[entityType]; !ok {
			t.Errorf("no class IRI for entity type %q", entityType)
		}
	}
}
