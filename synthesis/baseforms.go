package synthesis

import "strings"

// FormProvisions is the standard content of one ISO base form.
type FormProvisions struct {
	Title      string
	Coverages  []string
	Exclusions []string
	Conditions []string
}

// baseFormKB holds the standard provisions of common ISO base forms, keyed
// by compacted form number. Seeding from this table avoids running the LLM
// over hundreds of pages of unmodified boilerplate.
var baseFormKB = map[string]FormProvisions{
	"CA0001": {
		Title:     "Business Auto Coverage Form",
		Coverages: []string{"Covered Autos Liability", "Physical Damage", "Medical Payments"},
		Exclusions: []string{
			"Expected or Intended Injury", "Contractual Liability",
			"Workers Compensation", "Pollution", "War", "Racing"},
		Conditions: []string{"Duties in the Event of Accident", "Transfer of Rights of Recovery"},
	},
	"CG0001": {
		Title: "Commercial General Liability Coverage Form",
		Coverages: []string{
			"Commercial General Liability", "Personal and Advertising Injury",
			"Medical Payments"},
		Exclusions: []string{
			"Expected or Intended Injury", "Contractual Liability", "Pollution",
			"War", "Employment-Related Practices", "Electronic Data"},
		Conditions: []string{"Duties in the Event of Occurrence", "Other Insurance"},
	},
	"CP0010": {
		Title:     "Building and Personal Property Coverage Form",
		Coverages: []string{"Building", "Business Personal Property"},
		Exclusions: []string{
			"Earth Movement", "Flood", "Nuclear Hazard", "War", "Wear and Tear"},
		Conditions: []string{"Coinsurance", "Vacancy"},
	},
	"CP0030": {
		Title:      "Business Income (and Extra Expense) Coverage Form",
		Coverages:  []string{"Business Income", "Extra Expense"},
		Exclusions: []string{"Earth Movement", "Flood", "War"},
	},
	"BP0003": {
		Title: "Businessowners Coverage Form",
		Coverages: []string{
			"Building", "Business Personal Property", "Business Income",
			"Commercial General Liability", "Medical Payments"},
		Exclusions: []string{
			"Earth Movement", "Flood", "Pollution", "War",
			"Professional Liability"},
		Conditions: []string{"Coinsurance", "Duties in the Event of Loss"},
	},
	"WC000000": {
		Title:     "Workers Compensation and Employers Liability Policy",
		Coverages: []string{"Workers Compensation", "Employers Liability"},
	},
}

// NormalizeFormID compacts a form reference for knowledge-base lookup:
// "ca 00 01" and "CA-00-01" both resolve to "CA0001".
func NormalizeFormID(ref string) string {
	var b strings.Builder
	for _, r := range ref {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 32)
		case r >= 'A' && r <= 'Z' || r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LookupBaseForm returns the standard provisions for a form reference.
func LookupBaseForm(ref string) (FormProvisions, bool) {
	fp, ok := baseFormKB[NormalizeFormID(ref)]
	return fp, ok
}
