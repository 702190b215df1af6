package extraction

import (
	"github.com/c360studio/policypipe/document"
)

// sectionExtractor is the shared implementation: a section type, a prompt,
// and the field schema the response is filtered against.
type sectionExtractor struct {
	section     document.SectionType
	instruction string
	fields      []string
}

func (e *sectionExtractor) Section() document.SectionType { return e.section }
func (e *sectionExtractor) SystemInstruction() string     { return e.instruction }

// KnownFields returns the section's field schema. Fields outside the schema
// are dropped from the LLM response before persistence.
func (e *sectionExtractor) KnownFields() []string { return e.fields }

const jsonModePreamble = `You are an insurance policy analyst. Respond with a single JSON object and nothing else. Omit fields you cannot find; never invent values. Include a top-level "confidence" number between 0 and 1.`

func newDeclarationsExtractor() *sectionExtractor {
	return &sectionExtractor{
		section: document.SectionDeclarations,
		instruction: jsonModePreamble + `
Extract from the declarations page:
{
  "policy_number": string,
  "named_insured": string,
  "carrier": string,
  "effective_date": "YYYY-MM-DD",
  "expiration_date": "YYYY-MM-DD",
  "line_of_business": string,
  "total_premium": number,
  "mailing_address": string,
  "form_numbers": [string],
  "confidence": number
}`,
		fields: []string{"policy_number", "named_insured", "carrier", "effective_date",
			"expiration_date", "line_of_business", "total_premium", "mailing_address", "form_numbers"},
	}
}

func newCoveragesExtractor() *sectionExtractor {
	return &sectionExtractor{
		section: document.SectionCoverages,
		instruction: jsonModePreamble + `
Extract every coverage grant:
{
  "coverages": [
    {"name": string, "limit": string, "deductible": string, "scope": string, "clause_reference": string}
  ],
  "confidence": number
}`,
		fields: []string{"coverages"},
	}
}

func newConditionsExtractor() *sectionExtractor {
	return &sectionExtractor{
		section: document.SectionConditions,
		instruction: jsonModePreamble + `
Extract every policy condition:
{
  "conditions": [
    {"name": string, "requirement": string, "clause_reference": string}
  ],
  "confidence": number
}`,
		fields: []string{"conditions"},
	}
}

func newExclusionsExtractor() *sectionExtractor {
	return &sectionExtractor{
		section: document.SectionExclusions,
		instruction: jsonModePreamble + `
Extract every exclusion:
{
  "exclusions": [
    {"name": string, "scope": string, "carve_backs": [string], "clause_reference": string}
  ],
  "confidence": number
}`,
		fields: []string{"exclusions"},
	}
}

func newEndorsementsExtractor() *sectionExtractor {
	return &sectionExtractor{
		section: document.SectionEndorsements,
		instruction: jsonModePreamble + `
Extract every endorsement and what it changes:
{
  "endorsements": [
    {
      "form_number": string,
      "title": string,
      "modifications": [
        {"impacted_provision": string, "provision_kind": "coverage" | "exclusion",
         "effect": "adds" | "expands" | "limits" | "restores" | "introduces" | "narrows" | "removes",
         "scope_change": string, "carve_back": string, "verbatim_language": string}
      ]
    }
  ],
  "confidence": number
}`,
		fields: []string{"endorsements"},
	}
}

func newDefinitionsExtractor() *sectionExtractor {
	return &sectionExtractor{
		section: document.SectionDefinitions,
		instruction: jsonModePreamble + `
Extract every defined term:
{
  "definitions": [{"term": string, "meaning": string}],
  "confidence": number
}`,
		fields: []string{"definitions"},
	}
}

func newInsuringAgreementExtractor() *sectionExtractor {
	return &sectionExtractor{
		section: document.SectionInsuringAgreement,
		instruction: jsonModePreamble + `
Extract the insuring agreement:
{
  "grant_summary": string,
  "covered_perils": [string],
  "duty_to_defend": boolean,
  "confidence": number
}`,
		fields: []string{"grant_summary", "covered_perils", "duty_to_defend"},
	}
}

func newPremiumSummaryExtractor() *sectionExtractor {
	return &sectionExtractor{
		section: document.SectionPremiumSummary,
		instruction: jsonModePreamble + `
Extract the premium breakdown:
{
  "line_items": [{"coverage": string, "premium": number}],
  "total_premium": number,
  "confidence": number
}`,
		fields: []string{"line_items", "total_premium"},
	}
}

func newBaseFormExtractor() *sectionExtractor {
	return &sectionExtractor{
		section: document.SectionBaseForm,
		instruction: jsonModePreamble + `
This text is a standard base coverage form. Extract its provisions:
{
  "form_number": string,
  "coverages": [{"name": string, "limit": string, "scope": string, "clause_reference": string}],
  "exclusions": [{"name": string, "scope": string, "carve_backs": [string], "clause_reference": string}],
  "confidence": number
}`,
		fields: []string{"form_number", "coverages", "exclusions"},
	}
}

// newScheduleExtractor covers SOV and other schedule sections. Schedules
// are normally handled structurally by the table pipeline and skip LLM
// extraction, so this prompt only runs for schedule text that reached the
// extraction loop anyway (e.g. a narrative schedule with no parseable grid).
func newScheduleExtractor() *sectionExtractor {
	return &sectionExtractor{
		section: document.SectionSchedule,
		instruction: jsonModePreamble + `
This text is a schedule of values or similar itemized schedule. Extract its line items:
{
  "items": [{"description": string, "location": string, "value": string}],
  "confidence": number
}`,
		fields: []string{"items"},
	}
}

func newDefaultExtractor() *sectionExtractor {
	return &sectionExtractor{
		section: document.SectionOther,
		instruction: jsonModePreamble + `
Extract any insurance-relevant facts:
{
  "facts": [{"subject": string, "statement": string}],
  "confidence": number
}`,
		fields: []string{"facts"},
	}
}
