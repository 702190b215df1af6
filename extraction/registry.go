// Package extraction runs section-aware LLM extraction over super-chunks,
// backstopped by a deterministic regex parser, and synthesizes typed domain
// entities from the extracted fields.
package extraction

import (
	"strings"
	"sync"

	"github.com/c360studio/policypipe/document"
)

// Extractor produces structured fields from one section super-chunk.
type Extractor interface {
	// Section is the section type this extractor handles.
	Section() document.SectionType

	// SystemInstruction returns the JSON-mode prompt for the section.
	SystemInstruction() string
}

// Registry maps normalized section names to extractors. Instances are
// created once and cached.
type Registry struct {
	mu         sync.RWMutex
	factories  map[string]func() Extractor
	aliases    map[string]string
	cache      map[string]Extractor
	defaultKey string
}

// NewRegistry builds the registry with every supported section extractor
// registered, plus the default fallback.
func NewRegistry() *Registry {
	r := &Registry{
		factories:  make(map[string]func() Extractor),
		aliases:    make(map[string]string),
		cache:      make(map[string]Extractor),
		defaultKey: "default",
	}

	r.register("declarations", func() Extractor { return newDeclarationsExtractor() })
	r.register("coverages", func() Extractor { return newCoveragesExtractor() })
	r.register("conditions", func() Extractor { return newConditionsExtractor() })
	r.register("exclusions", func() Extractor { return newExclusionsExtractor() })
	r.register("endorsements", func() Extractor { return newEndorsementsExtractor() })
	r.register("endorsement_provisions", func() Extractor { return newEndorsementsExtractor() })
	r.register("definitions", func() Extractor { return newDefinitionsExtractor() })
	r.register("insuring_agreement", func() Extractor { return newInsuringAgreementExtractor() })
	r.register("premium_summary", func() Extractor { return newPremiumSummaryExtractor() })
	r.register("base_form", func() Extractor { return newBaseFormExtractor() })
	r.register("schedule", func() Extractor { return newScheduleExtractor() })
	r.register("default", func() Extractor { return newDefaultExtractor() })

	r.alias("dec page", "declarations")
	r.alias("declaration", "declarations")
	r.alias("coverage", "coverages")
	r.alias("coverage forms", "coverages")
	r.alias("exclusion", "exclusions")
	r.alias("condition", "conditions")
	r.alias("endorsement", "endorsements")
	r.alias("endorsement provision", "endorsement_provisions")
	r.alias("base form", "base_form")
	r.alias("definition", "definitions")
	r.alias("insuring agreement", "insuring_agreement")
	r.alias("premium", "premium_summary")
	r.alias("sov", "schedule")
	r.alias("schedule of values", "schedule")
	r.alias("statement of values", "schedule")

	return r
}

// register binds a normalized key to an extractor factory.
func (r *Registry) register(key string, factory func() Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[NormalizeSectionName(key)] = factory
}

// alias registers an alternate name for an existing key.
func (r *Registry) alias(name, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[NormalizeSectionName(name)] = NormalizeSectionName(key)
}

// For returns the extractor for a section type, falling back to the default
// extractor for unregistered sections.
func (r *Registry) For(sectionType document.SectionType) Extractor {
	return r.Lookup(string(sectionType))
}

// Lookup resolves a section name (or alias) to its cached extractor.
func (r *Registry) Lookup(name string) Extractor {
	key := NormalizeSectionName(name)

	r.mu.RLock()
	if target, ok := r.aliases[key]; ok {
		key = target
	}
	if _, ok := r.factories[key]; !ok {
		key = r.defaultKey
	}
	if cached, ok := r.cache[key]; ok {
		r.mu.RUnlock()
		return cached
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.cache[key]; ok {
		return cached
	}
	ext := r.factories[key]()
	r.cache[key] = ext
	return ext
}

// NormalizeSectionName folds a section name for registry lookup: lower case,
// spaces and hyphens collapsed to underscores.
func NormalizeSectionName(name string) string {
	folded := strings.ToLower(strings.TrimSpace(name))
	folded = strings.ReplaceAll(folded, "-", " ")
	return strings.Join(strings.Fields(folded), "_")
}
