package extraction

import (
	"fmt"
	"strings"

	"github.com/c360studio/policypipe/document"
)

// entitySchemas lists the attributes each entity type accepts. Synthesis
// drops anything outside the schema so downstream consumers never see
// free-form keys.
var entitySchemas = map[document.EntityType][]string{
	document.EntityPolicy: {"policy_number", "effective_date", "expiration_date",
		"line_of_business", "total_premium", "carrier", "mailing_address"},
	document.EntityOrganization: {"role", "address"},
	document.EntityCoverage:     {"limit", "deductible", "scope", "clause_reference"},
	document.EntityCondition:    {"requirement", "clause_reference"},
	document.EntityExclusion:    {"scope", "carve_backs", "clause_reference"},
	document.EntityEndorsement:  {"form_number", "title", "modifications"},
	document.EntityDefinition:   {"meaning"},
	document.EntityForm:         {"form_number"},
	document.EntityLocation:     {"address", "tiv", "construction_type", "year_built"},
	document.EntityClaim:        {"claim_number", "loss_date", "paid_amount", "total_incurred", "status"},
	document.EntityVehicle:      {"vin", "make", "model", "year"},
	document.EntityDriver:       {"license_number"},
}

// fieldVariants maps raw field-name variants seen in LLM output to
// canonical attribute names.
var fieldVariants = map[string]string{
	"pol_no":          "policy_number",
	"policy_no":       "policy_number",
	"policynumber":    "policy_number",
	"insured":         "named_insured",
	"insured_name":    "named_insured",
	"effective":       "effective_date",
	"expiration":      "expiration_date",
	"expiry_date":     "expiration_date",
	"lob":             "line_of_business",
	"premium":         "total_premium",
	"form_no":         "form_number",
	"clause_ref":      "clause_reference",
	"carvebacks":      "carve_backs",
	"carve_outs":      "carve_backs",
}

// SynthesizeEntities maps a section's extracted fields to typed domain
// entities. This is the single place document-local identifiers are minted.
func SynthesizeEntities(sectionType document.SectionType, fields map[string]any, confidence float64, chunkIDs []string) []document.DomainEntity {
	fields = canonicalizeFieldNames(fields)

	var entities []document.DomainEntity
	switch sectionType {
	case document.SectionDeclarations:
		entities = synthesizeDeclarations(fields)
	case document.SectionCoverages, document.SectionInsuringAgreement:
		entities = synthesizeList(fields, "coverages", document.EntityCoverage)
	case document.SectionConditions:
		entities = synthesizeList(fields, "conditions", document.EntityCondition)
	case document.SectionExclusions:
		entities = synthesizeList(fields, "exclusions", document.EntityExclusion)
	case document.SectionEndorsements, document.SectionEndorsementProvision:
		entities = synthesizeEndorsements(fields)
	case document.SectionDefinitions:
		entities = synthesizeDefinitions(fields)
	case document.SectionBaseForm:
		entities = synthesizeBaseForm(fields)
	default:
		entities = synthesizeGeneric(fields)
	}

	for i := range entities {
		e := &entities[i]
		e.Attributes = validateAttributes(e.Type, e.Attributes)
		if e.Confidence == 0 {
			e.Confidence = confidence
		}
		e.ChunkIDs = chunkIDs
		if e.LocalID == "" {
			e.LocalID = document.LocalEntityID(e.Type, e.Name)
		}
	}
	return entities
}

func synthesizeDeclarations(fields map[string]any) []document.DomainEntity {
	var entities []document.DomainEntity

	policyNumber := str(fields, "policy_number")
	insured := str(fields, "named_insured")
	carrier := str(fields, "carrier")

	if policyNumber != "" {
		attrs := map[string]any{}
		for _, k := range entitySchemas[document.EntityPolicy] {
			if v, ok := fields[k]; ok {
				attrs[k] = v
			}
		}
		entities = append(entities, document.DomainEntity{
			Type:       document.EntityPolicy,
			Name:       policyNumber,
			Attributes: attrs,
		})
	}

	if insured != "" {
		entities = append(entities, document.DomainEntity{
			Type:       document.EntityOrganization,
			Name:       insured,
			Attributes: map[string]any{"role": "insured", "address": fields["mailing_address"]},
		})
	}
	if carrier != "" {
		entities = append(entities, document.DomainEntity{
			Type:       document.EntityOrganization,
			Name:       carrier,
			Attributes: map[string]any{"role": "carrier"},
		})
	}

	if forms, ok := fields["form_numbers"].([]any); ok {
		for _, f := range forms {
			if formNumber, ok := f.(string); ok && formNumber != "" {
				entities = append(entities, document.DomainEntity{
					Type:       document.EntityForm,
					Name:       formNumber,
					Attributes: map[string]any{"form_number": formNumber},
				})
			}
		}
	}

	return entities
}

// synthesizeList handles the common shape: a list of objects each carrying
// a "name" plus per-type attributes.
func synthesizeList(fields map[string]any, listKey string, entityType document.EntityType) []document.DomainEntity {
	items, ok := fields[listKey].([]any)
	if !ok {
		return nil
	}

	var entities []document.DomainEntity
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		obj = canonicalizeFieldNames(obj)
		name := str(obj, "name")
		if name == "" {
			continue
		}
		attrs := make(map[string]any, len(obj))
		for k, v := range obj {
			if k != "name" {
				attrs[k] = v
			}
		}
		entities = append(entities, document.DomainEntity{
			Type:       entityType,
			Name:       name,
			Attributes: attrs,
		})
	}
	return entities
}

func synthesizeEndorsements(fields map[string]any) []document.DomainEntity {
	items, ok := fields["endorsements"].([]any)
	if !ok {
		return nil
	}

	var entities []document.DomainEntity
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		obj = canonicalizeFieldNames(obj)
		formNumber := str(obj, "form_number")
		title := str(obj, "title")
		name := formNumber
		if name == "" {
			name = title
		}
		if name == "" {
			continue
		}
		entities = append(entities, document.DomainEntity{
			Type: document.EntityEndorsement,
			Name: name,
			Attributes: map[string]any{
				"form_number":   formNumber,
				"title":         title,
				"modifications": obj["modifications"],
			},
		})
	}
	return entities
}

func synthesizeDefinitions(fields map[string]any) []document.DomainEntity {
	items, ok := fields["definitions"].([]any)
	if !ok {
		return nil
	}

	var entities []document.DomainEntity
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		term := str(obj, "term")
		if term == "" {
			continue
		}
		entities = append(entities, document.DomainEntity{
			Type:       document.EntityDefinition,
			Name:       term,
			Attributes: map[string]any{"meaning": obj["meaning"]},
		})
	}
	return entities
}

func synthesizeBaseForm(fields map[string]any) []document.DomainEntity {
	var entities []document.DomainEntity

	if formNumber := str(fields, "form_number"); formNumber != "" {
		entities = append(entities, document.DomainEntity{
			Type:       document.EntityForm,
			Name:       formNumber,
			Attributes: map[string]any{"form_number": formNumber},
		})
	}
	entities = append(entities, synthesizeList(fields, "coverages", document.EntityCoverage)...)
	entities = append(entities, synthesizeList(fields, "exclusions", document.EntityExclusion)...)
	return entities
}

// synthesizeGeneric handles the {entities:[{type, name, ...}]} shape some
// models produce for unregistered sections.
func synthesizeGeneric(fields map[string]any) []document.DomainEntity {
	items, ok := fields["entities"].([]any)
	if !ok {
		return nil
	}

	var entities []document.DomainEntity
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		entityType := document.EntityType(str(obj, "type"))
		name := str(obj, "name")
		if name == "" || entitySchemas[entityType] == nil {
			continue
		}
		attrs := make(map[string]any, len(obj))
		for k, v := range obj {
			if k != "type" && k != "name" {
				attrs[k] = v
			}
		}
		entities = append(entities, document.DomainEntity{
			Type:       entityType,
			Name:       name,
			Attributes: attrs,
		})
	}
	return entities
}

// validateAttributes drops attributes the destination type's schema does
// not know, plus empty values.
func validateAttributes(t document.EntityType, attrs map[string]any) map[string]any {
	schema := entitySchemas[t]
	allowed := make(map[string]bool, len(schema))
	for _, k := range schema {
		allowed[k] = true
	}

	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if !allowed[k] || v == nil {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// canonicalizeFieldNames rewrites known variant field names in place.
func canonicalizeFieldNames(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		key := strings.ToLower(strings.TrimSpace(k))
		if canonical, ok := fieldVariants[key]; ok {
			key = canonical
		}
		if _, exists := out[key]; !exists {
			out[key] = v
		}
	}
	return out
}

func str(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	default:
		return ""
	}
}
