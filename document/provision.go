package document

import "time"

// EffectCategory is how an endorsement modification acts on a provision.
type EffectCategory string

const (
	EffectAdds       EffectCategory = "adds"
	EffectExpands    EffectCategory = "expands"
	EffectLimits     EffectCategory = "limits"
	EffectRestores   EffectCategory = "restores"
	EffectIntroduces EffectCategory = "introduces"
	EffectNarrows    EffectCategory = "narrows"
	EffectRemoves    EffectCategory = "removes"
)

// EffectiveState is the provision-centric outcome after applying all
// endorsement modifications.
type EffectiveState string

const (
	StateCovered           EffectiveState = "Covered"
	StateAdded             EffectiveState = "Added"
	StateExpandedCoverage  EffectiveState = "Expanded Coverage"
	StateLimited           EffectiveState = "Limited"
	StatePartiallyCovered  EffectiveState = "Partially Covered"
	StateExcluded          EffectiveState = "Excluded"
	StatePartiallyExcluded EffectiveState = "Partially Excluded"
	StateRemoved           EffectiveState = "Removed"
	StateRestored          EffectiveState = "Restored"
)

// EndorsementModification is the projection of one endorsement's effect on a
// single coverage or exclusion, as extracted from endorsement sections.
type EndorsementModification struct {
	EndorsementRef    string         `json:"endorsement_ref"`
	ImpactedCoverage  string         `json:"impacted_coverage,omitempty"`
	ImpactedExclusion string         `json:"impacted_exclusion,omitempty"`
	Effect            EffectCategory `json:"effect_category"`
	ScopeChange       string         `json:"scope_change,omitempty"`
	CarveBack         string         `json:"carve_back,omitempty"`
	LimitChange       string         `json:"limit_change,omitempty"`
	ConditionChange   string         `json:"condition_change,omitempty"`
	VerbatimLanguage  string         `json:"verbatim_language,omitempty"`
	Severity          string         `json:"severity,omitempty"`
	PageNumbers       []int          `json:"page_numbers,omitempty"`
	SourceText        string         `json:"source_text,omitempty"`
}

// ProvisionSource references the endorsement or base-form provision an
// effective provision was derived from (I6: never empty).
type ProvisionSource struct {
	EndorsementRef string `json:"endorsement_ref,omitempty"`
	BaseProvision  string `json:"base_provision,omitempty"`
	FormID         string `json:"form_id,omitempty"`
}

// EffectiveProvision is the shared body of effective coverages and
// exclusions: the provision-centric view a broker wants to see.
type EffectiveProvision struct {
	CanonicalID         string            `json:"canonical_id" db:"canonical_id"`
	Name                string            `json:"name" db:"name"`
	State               EffectiveState    `json:"effective_state" db:"effective_state"`
	Scope               string            `json:"scope,omitempty" db:"scope"`
	CarveBacks          []string          `json:"carve_backs,omitempty"`
	Conditions          []string          `json:"conditions,omitempty"`
	ImpactedCoverages   []string          `json:"impacted_coverages,omitempty"`
	Sources             []ProvisionSource `json:"sources"`
	Confidence          float64           `json:"confidence" db:"confidence"`
	Severity            string            `json:"severity,omitempty" db:"severity"`
	Description         string            `json:"description,omitempty" db:"description"`
	PageNumbers         []int             `json:"page_numbers,omitempty"`
	SourceText          string            `json:"source_text,omitempty" db:"source_text"`
	ClauseReference     string            `json:"clause_reference,omitempty" db:"clause_reference"`
	IsStandardProvision bool              `json:"is_standard_provision" db:"is_standard_provision"`
	IsModified          bool              `json:"is_modified" db:"is_modified"`
	CreatedAt           time.Time         `json:"created_at" db:"created_at"`
}

// EffectiveCoverage is a synthesized coverage provision.
type EffectiveCoverage struct {
	EffectiveProvision
}

// EffectiveExclusion is a synthesized exclusion provision.
type EffectiveExclusion struct {
	EffectiveProvision
}

// HasEndorsementSource reports whether any source references an endorsement.
func (p *EffectiveProvision) HasEndorsementSource() bool {
	for _, s := range p.Sources {
		if s.EndorsementRef != "" {
			return true
		}
	}
	return false
}
