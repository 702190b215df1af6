// Package canonical resolves section-level domain entities into canonical
// identities: within-document aggregation, fingerprint-based merge-or-create
// against the store, saga rollback on failure, and LLM relationship
// extraction over the canonical set.
package canonical

import (
	"sort"

	"github.com/c360studio/policypipe/document"
)

// AggregatedEntity is the within-document merge of every mention of one
// entity: the best-confidence value per attribute, list attributes unioned.
type AggregatedEntity struct {
	Type       document.EntityType
	Name       string
	Attributes map[string]any
	Confidence float64
	ChunkIDs   []string

	// confidenceByAttr tracks which mention won each attribute.
	confidenceByAttr map[string]float64
}

// Aggregate groups entities from all section extractions by (type,
// normalized name) and merges their attributes. Higher-confidence mentions
// win per attribute; list attributes are unioned; the aggregate confidence
// is the maximum seen.
func Aggregate(extractions []document.SectionExtraction) []AggregatedEntity {
	type key struct {
		t document.EntityType
		n string
	}

	byKey := make(map[key]*AggregatedEntity)
	var order []key

	for _, ext := range extractions {
		for _, e := range ext.Entities {
			k := key{e.Type, document.NormalizeKey(e.Name)}
			agg, ok := byKey[k]
			if !ok {
				agg = &AggregatedEntity{
					Type:             e.Type,
					Name:             e.Name,
					Attributes:       make(map[string]any),
					confidenceByAttr: make(map[string]float64),
				}
				byKey[k] = agg
				order = append(order, k)
			}
			agg.merge(&e)
		}
	}

	out := make([]AggregatedEntity, 0, len(byKey))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	return out
}

func (a *AggregatedEntity) merge(e *document.DomainEntity) {
	if e.Confidence > a.Confidence {
		a.Confidence = e.Confidence
		// The most confident mention also names the entity.
		a.Name = e.Name
	}

	for attr, v := range e.Attributes {
		if list, ok := v.([]any); ok {
			a.Attributes[attr] = unionList(a.Attributes[attr], list)
			continue
		}
		if e.Confidence >= a.confidenceByAttr[attr] {
			a.Attributes[attr] = v
			a.confidenceByAttr[attr] = e.Confidence
		}
	}

	a.ChunkIDs = unionStrings(a.ChunkIDs, e.ChunkIDs)
}

// Fingerprint computes the canonical-match key for the aggregate.
func (a *AggregatedEntity) Fingerprint() string {
	return document.Fingerprint(a.Type, a.Name, a.Attributes)
}

func unionList(existing any, add []any) []any {
	var out []any
	seen := make(map[string]bool)

	push := func(v any) {
		s := stringify(v)
		if s == "" {
			// Non-string items (modification objects) are kept as-is.
			if v != nil {
				out = append(out, v)
			}
			return
		}
		k := document.NormalizeKey(s)
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, v)
	}

	if prior, ok := existing.([]any); ok {
		for _, v := range prior {
			push(v)
		}
	}
	for _, v := range add {
		push(v)
	}
	return out
}

func unionStrings(existing, add []string) []string {
	seen := make(map[string]bool, len(existing))
	out := existing
	for _, s := range existing {
		seen[s] = true
	}
	for _, s := range add {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
