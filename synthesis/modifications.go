package synthesis

import (
	"fmt"
	"strings"

	"github.com/c360studio/policypipe/document"
)

var knownEffects = map[document.EffectCategory]bool{
	document.EffectAdds:       true,
	document.EffectExpands:    true,
	document.EffectLimits:     true,
	document.EffectRestores:   true,
	document.EffectIntroduces: true,
	document.EffectNarrows:    true,
	document.EffectRemoves:    true,
}

// ModificationsFromEntities projects endorsement entities into the flat
// modification records the engine consumes. Malformed modification items are
// skipped with a warning; an endorsement with no usable modifications is
// returned separately so the engine can fall back to the bare record.
func ModificationsFromEntities(entities []document.DomainEntity) (mods []document.EndorsementModification, bare []document.DomainEntity, warnings []string) {
	for _, e := range entities {
		if e.Type != document.EntityEndorsement {
			continue
		}

		ref := attrString(e.Attributes, "form_number")
		if ref == "" {
			ref = e.Name
		}

		items, _ := e.Attributes["modifications"].([]any)
		var usable int
		for i, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				warnings = append(warnings, fmt.Sprintf("endorsement %s: modification %d is not an object", ref, i))
				continue
			}

			impacted := attrString(m, "impacted_provision")
			if impacted == "" {
				warnings = append(warnings, fmt.Sprintf("endorsement %s: modification %d names no provision", ref, i))
				continue
			}

			mod := document.EndorsementModification{
				EndorsementRef:   ref,
				Effect:           document.EffectCategory(strings.ToLower(attrString(m, "effect"))),
				ScopeChange:      attrString(m, "scope_change"),
				CarveBack:        attrString(m, "carve_back"),
				LimitChange:      attrString(m, "limit_change"),
				ConditionChange:  attrString(m, "condition_change"),
				VerbatimLanguage: attrString(m, "verbatim_language"),
				Severity:         attrString(m, "severity"),
				SourceText:       attrString(m, "source_text"),
				PageNumbers:      intsFromAny(m["page_numbers"]),
			}
			if attrString(m, "provision_kind") == "exclusion" {
				mod.ImpactedExclusion = impacted
			} else {
				mod.ImpactedCoverage = impacted
			}

			mods = append(mods, mod)
			usable++
		}

		if usable == 0 {
			bare = append(bare, e)
		}
	}
	return mods, bare, warnings
}

func attrString(attrs map[string]any, key string) string {
	if s, ok := attrs[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func intsFromAny(v any) []int {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []int
	for _, item := range list {
		switch n := item.(type) {
		case float64:
			out = append(out, int(n))
		case int:
			out = append(out, n)
		}
	}
	return out
}
