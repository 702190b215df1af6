package synthesis

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/c360studio/policypipe/document"
)

// Method records how a synthesis run produced its output.
type Method string

const (
	MethodModifications   Method = "endorsement_modifications"
	MethodBasePassthrough Method = "base_passthrough"
	MethodLLMInference    Method = "llm_inference"
)

// Input is everything the engine synthesizes from: endorsement entities
// (whose modification projections drive the state machine), base coverages
// and exclusions from dedicated sections, and the detected base-form
// references for knowledge-base seeding.
type Input struct {
	Endorsements   []document.DomainEntity
	BaseCoverages  []document.DomainEntity
	BaseExclusions []document.DomainEntity
	FormReferences []string
}

// Result is the synthesized provision-centric view. The engine never fails:
// degraded runs carry warnings and FallbackRecommended instead of an error.
type Result struct {
	Coverages           []document.EffectiveCoverage
	Exclusions          []document.EffectiveExclusion
	Method              Method
	Confidence          float64
	FallbackRecommended bool
	Warnings            []string
}

// Engine applies endorsement modifications to base provisions.
type Engine struct {
	threshold float64
	inference *InferenceService
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithInference enables the LLM inference fallback for low-confidence runs.
func WithInference(svc *InferenceService) Option {
	return func(e *Engine) { e.inference = svc }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates an Engine. A non-positive threshold falls back to 0.7.
func NewEngine(threshold float64, opts ...Option) *Engine {
	e := &Engine{threshold: threshold, logger: slog.Default()}
	if e.threshold <= 0 || e.threshold > 1 {
		e.threshold = 0.7
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// stateRank pairs an effective state with its resolution priority: when one
// provision is touched by several effects, the highest rank wins.
type stateRank struct {
	state document.EffectiveState
	rank  int
}

var coverageStates = map[document.EffectCategory]stateRank{
	document.EffectRemoves:    {document.StateRemoved, 6},
	document.EffectRestores:   {document.StateRestored, 5},
	document.EffectExpands:    {document.StateExpandedCoverage, 4},
	document.EffectLimits:     {document.StateLimited, 3},
	document.EffectNarrows:    {document.StateLimited, 3},
	document.EffectAdds:       {document.StateAdded, 2},
	document.EffectIntroduces: {document.StateAdded, 2},
}

var exclusionStates = map[document.EffectCategory]stateRank{
	document.EffectRemoves:    {document.StateRemoved, 6},
	document.EffectNarrows:    {document.StatePartiallyExcluded, 4},
	document.EffectLimits:     {document.StatePartiallyExcluded, 4},
	document.EffectRestores:   {document.StateExcluded, 3},
	document.EffectIntroduces: {document.StateExcluded, 2},
	document.EffectAdds:       {document.StateExcluded, 2},
	document.EffectExpands:    {document.StateExcluded, 2},
}

// Synthesize produces the effective coverages and exclusions for one
// document. It is a pure function of its input plus the static taxonomy, so
// identical inputs always yield identical output.
func (e *Engine) Synthesize(ctx context.Context, in Input) *Result {
	res := &Result{Method: MethodModifications}

	mods, bare, warnings := ModificationsFromEntities(in.Endorsements)
	res.Warnings = warnings

	covGroups, covOrder := groupModifications(mods, func(m *document.EndorsementModification) string { return m.ImpactedCoverage })
	excGroups, excOrder := groupModifications(mods, func(m *document.EndorsementModification) string { return m.ImpactedExclusion })

	for _, key := range covOrder {
		p := e.resolveGroup(covGroups[key], coverageStates, document.StateCovered)
		p.CanonicalID = CoverageCanonicalID(p.Name)
		res.Coverages = append(res.Coverages, document.EffectiveCoverage{EffectiveProvision: p})
	}
	for _, key := range excOrder {
		p := e.resolveGroup(excGroups[key], exclusionStates, document.StateExcluded)
		p.CanonicalID = ExclusionCanonicalID(p.Name)
		res.Exclusions = append(res.Exclusions, document.EffectiveExclusion{EffectiveProvision: p})
	}

	// Endorsements whose projections could not be parsed still surface as a
	// low-detail coverage entry rather than vanishing.
	for _, b := range bare {
		res.Coverages = append(res.Coverages, document.EffectiveCoverage{EffectiveProvision: e.fromBareEndorsement(b)})
	}

	e.mergeBaseProvisions(res, in)

	if len(mods) == 0 && len(bare) == 0 {
		res.Method = MethodBasePassthrough
	}

	res.Confidence = overallConfidence(res)
	total := len(res.Coverages) + len(res.Exclusions)
	lowConfidence := total > 0 && res.Confidence < e.threshold
	emptyWithForms := total == 0 && len(in.FormReferences) > 0
	if lowConfidence || emptyWithForms {
		e.runInference(ctx, in, res)
	}

	e.logger.Info("Synthesis complete",
		"coverages", len(res.Coverages),
		"exclusions", len(res.Exclusions),
		"method", res.Method,
		"confidence", res.Confidence,
		"fallback_recommended", res.FallbackRecommended)

	return res
}

// groupModifications buckets modifications by normalized provision name,
// preserving first-seen order. The selector returns "" for modifications of
// the other kind.
func groupModifications(mods []document.EndorsementModification, name func(*document.EndorsementModification) string) (map[string][]document.EndorsementModification, []string) {
	groups := make(map[string][]document.EndorsementModification)
	var order []string
	for i := range mods {
		n := name(&mods[i])
		if n == "" {
			continue
		}
		key := document.NormalizeKey(n)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], mods[i])
	}
	return groups, order
}

// resolveGroup folds one provision's modifications into its effective form.
func (e *Engine) resolveGroup(mods []document.EndorsementModification, states map[document.EffectCategory]stateRank, fallback document.EffectiveState) document.EffectiveProvision {
	p := document.EffectiveProvision{
		State:      fallback,
		IsModified: true,
		CreatedAt:  time.Now(),
	}

	best := -1
	fullyCategorised := true
	var detailed, hasSeverity bool
	var carveBacks, conditions []string
	seenSources := make(map[string]bool)

	for i := range mods {
		m := &mods[i]
		if p.Name == "" {
			if m.ImpactedCoverage != "" {
				p.Name = m.ImpactedCoverage
			} else {
				p.Name = m.ImpactedExclusion
			}
		}

		sr, known := states[m.Effect]
		if !known {
			fullyCategorised = false
		} else if sr.rank > best {
			best = sr.rank
			p.State = sr.state
		}

		if m.ScopeChange != "" || m.VerbatimLanguage != "" {
			detailed = true
		}
		if m.Severity != "" {
			hasSeverity = true
			if p.Severity == "" {
				p.Severity = m.Severity
			}
		}
		if p.Scope == "" {
			p.Scope = m.ScopeChange
		}
		if p.SourceText == "" {
			p.SourceText = m.SourceText
		}
		if p.SourceText == "" {
			p.SourceText = m.VerbatimLanguage
		}

		if m.Effect == document.EffectNarrows || m.Effect == document.EffectLimits {
			if cb := firstNonEmpty(m.CarveBack, m.ScopeChange); cb != "" {
				carveBacks = append(carveBacks, cb)
			}
		}
		if m.ConditionChange != "" {
			conditions = append(conditions, m.ConditionChange)
		}

		p.PageNumbers = unionInts(p.PageNumbers, m.PageNumbers)
		if m.EndorsementRef != "" && !seenSources[m.EndorsementRef] {
			seenSources[m.EndorsementRef] = true
			p.Sources = append(p.Sources, document.ProvisionSource{EndorsementRef: m.EndorsementRef})
		}
	}

	p.CarveBacks = dedupeByKey(carveBacks)
	p.Conditions = dedupeByKey(conditions)

	p.Confidence = 0.7
	if detailed {
		p.Confidence += 0.1
	}
	if hasSeverity {
		p.Confidence += 0.05
	}
	if fullyCategorised {
		p.Confidence += 0.1
	}
	if p.Confidence > 0.98 {
		p.Confidence = 0.98
	}

	return p
}

// fromBareEndorsement builds a low-detail entry for an endorsement that had
// no parseable modification projections.
func (e *Engine) fromBareEndorsement(ent document.DomainEntity) document.EffectiveProvision {
	name := attrString(ent.Attributes, "title")
	if name == "" {
		name = ent.Name
	}
	ref := attrString(ent.Attributes, "form_number")
	if ref == "" {
		ref = ent.Name
	}
	return document.EffectiveProvision{
		CanonicalID: CoverageCanonicalID(name),
		Name:        name,
		State:       document.StateAdded,
		Sources:     []document.ProvisionSource{{EndorsementRef: ref}},
		Confidence:  0.7,
		IsModified:  true,
		CreatedAt:   time.Now(),
	}
}

// mergeBaseProvisions folds base-section coverages and exclusions into the
// result: names already produced by a modification gain a base-form source,
// the rest pass through unchanged as standard provisions.
func (e *Engine) mergeBaseProvisions(res *Result, in Input) {
	formID := ""
	if len(in.FormReferences) > 0 {
		formID = in.FormReferences[0]
	}

	// Index maps, not pointer maps: the append below may reallocate the
	// slice, which would leave pointers into the old backing array.
	covByKey := make(map[string]int)
	for i := range res.Coverages {
		covByKey[document.NormalizeKey(res.Coverages[i].Name)] = i
	}
	for _, base := range in.BaseCoverages {
		key := document.NormalizeKey(base.Name)
		if i, ok := covByKey[key]; ok {
			existing := &res.Coverages[i]
			existing.IsStandardProvision = true
			existing.Sources = append(existing.Sources, document.ProvisionSource{BaseProvision: base.Name, FormID: formID})
			if existing.Scope == "" {
				existing.Scope = attrString(base.Attributes, "scope")
			}
			continue
		}
		res.Coverages = append(res.Coverages, document.EffectiveCoverage{
			EffectiveProvision: basePassthrough(base, document.StateCovered, CoverageCanonicalID(base.Name), formID),
		})
	}

	excByKey := make(map[string]int)
	for i := range res.Exclusions {
		excByKey[document.NormalizeKey(res.Exclusions[i].Name)] = i
	}
	for _, base := range in.BaseExclusions {
		key := document.NormalizeKey(base.Name)
		if i, ok := excByKey[key]; ok {
			existing := &res.Exclusions[i]
			existing.IsStandardProvision = true
			existing.Sources = append(existing.Sources, document.ProvisionSource{BaseProvision: base.Name, FormID: formID})
			continue
		}
		p := basePassthrough(base, document.StateExcluded, ExclusionCanonicalID(base.Name), formID)
		if carveBacks, ok := base.Attributes["carve_backs"].([]any); ok {
			for _, cb := range carveBacks {
				if s, ok := cb.(string); ok && s != "" {
					p.CarveBacks = append(p.CarveBacks, s)
				}
			}
			p.CarveBacks = dedupeByKey(p.CarveBacks)
		}
		res.Exclusions = append(res.Exclusions, document.EffectiveExclusion{EffectiveProvision: p})
	}
}

func basePassthrough(base document.DomainEntity, state document.EffectiveState, canonicalID, formID string) document.EffectiveProvision {
	confidence := base.Confidence
	if confidence <= 0 {
		confidence = 0.7
	}
	return document.EffectiveProvision{
		CanonicalID:         canonicalID,
		Name:                base.Name,
		State:               state,
		Scope:               attrString(base.Attributes, "scope"),
		ClauseReference:     attrString(base.Attributes, "clause_reference"),
		Sources:             []document.ProvisionSource{{BaseProvision: base.Name, FormID: formID}},
		Confidence:          confidence,
		IsStandardProvision: true,
		CreatedAt:           time.Now(),
	}
}

// runInference invokes the LLM fallback for low-confidence or empty runs.
// Inference failure degrades to a recommendation, never an error.
func (e *Engine) runInference(ctx context.Context, in Input, res *Result) {
	if e.inference == nil || len(in.FormReferences) == 0 {
		res.FallbackRecommended = true
		return
	}

	existing := make(map[string]bool)
	for _, c := range res.Coverages {
		existing[document.NormalizeKey(c.Name)] = true
	}
	for _, x := range res.Exclusions {
		existing[document.NormalizeKey(x.Name)] = true
	}

	covs, excs, err := e.inference.Infer(ctx, in.FormReferences, existing)
	if err != nil {
		e.logger.Warn("Synthesis inference fallback failed", "error", err)
		res.Warnings = append(res.Warnings, "inference fallback failed: "+err.Error())
		res.FallbackRecommended = true
		return
	}

	res.Coverages = append(res.Coverages, covs...)
	res.Exclusions = append(res.Exclusions, excs...)
	res.Method = MethodLLMInference
	res.Confidence = overallConfidence(res)
}

func overallConfidence(res *Result) float64 {
	var sum float64
	var n int
	for _, c := range res.Coverages {
		sum += c.Confidence
		n++
	}
	for _, x := range res.Exclusions {
		sum += x.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func dedupeByKey(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, s := range items {
		k := document.NormalizeKey(s)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}

func unionInts(existing, add []int) []int {
	seen := make(map[int]bool, len(existing))
	for _, n := range existing {
		seen[n] = true
	}
	out := existing
	for _, n := range add {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
