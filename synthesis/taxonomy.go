// Package synthesis turns endorsement-centric extraction into the
// provision-centric view a broker reads: effective coverages and exclusions
// with their state after all endorsement modifications are applied.
package synthesis

import (
	"strings"

	"github.com/c360studio/policypipe/document"
)

// taxonomyEntry maps one standard ISO provision to its canonical id. The
// variants list carries the surface forms carriers actually print.
type taxonomyEntry struct {
	id       string
	variants []string
}

var coverageTaxonomy = []taxonomyEntry{
	{"commercial-general-liability", []string{
		"commercial general liability", "cgl", "general liability",
		"bodily injury and property damage liability", "coverage a"}},
	{"personal-and-advertising-injury", []string{
		"personal and advertising injury", "coverage b"}},
	{"medical-payments", []string{
		"medical payments", "medical expense", "coverage c"}},
	{"covered-autos-liability", []string{
		"covered autos liability", "auto liability", "automobile liability",
		"business auto liability"}},
	{"physical-damage", []string{
		"physical damage", "comprehensive coverage", "collision coverage"}},
	{"hired-auto", []string{"hired auto", "hired autos", "employee hired autos"}},
	{"non-owned-auto", []string{"non owned auto", "nonowned auto", "non-owned autos"}},
	{"uninsured-motorist", []string{
		"uninsured motorist", "underinsured motorist", "um/uim"}},
	{"blanket-additional-insured", []string{
		"blanket additional insured", "additional insured"}},
	{"blanket-waiver-of-subrogation", []string{
		"blanket waiver of subrogation", "waiver of subrogation",
		"waiver of transfer of rights"}},
	{"building", []string{"building coverage", "building"}},
	{"business-personal-property", []string{
		"business personal property", "bpp", "contents coverage",
		"your business personal property"}},
	{"business-income", []string{
		"business income", "business interruption", "loss of income",
		"business income and extra expense"}},
	{"extra-expense", []string{"extra expense"}},
	{"equipment-breakdown", []string{"equipment breakdown", "boiler and machinery"}},
	{"employee-dishonesty", []string{"employee dishonesty", "employee theft"}},
	{"inland-marine", []string{
		"inland marine", "scheduled equipment", "contractors equipment"}},
}

var exclusionTaxonomy = []taxonomyEntry{
	{"earth-movement", []string{"earth movement", "earthquake", "sinkhole"}},
	{"flood", []string{"flood", "surface water", "water damage exclusion"}},
	{"pollution", []string{"pollution", "pollutants", "contamination"}},
	{"war", []string{"war", "warlike action", "military action"}},
	{"nuclear-hazard", []string{"nuclear hazard", "nuclear reaction", "radioactive"}},
	{"expected-or-intended-injury", []string{
		"expected or intended injury", "intentional acts"}},
	{"contractual-liability", []string{"contractual liability"}},
	{"workers-compensation", []string{
		"workers compensation", "workers' compensation", "employers liability"}},
	{"employment-related-practices", []string{
		"employment related practices", "employment practices"}},
	{"professional-liability", []string{
		"professional liability", "professional services", "errors and omissions"}},
	{"transfer-of-rights-of-recovery", []string{
		"transfer of rights of recovery", "subrogation", "rights of recovery"}},
	{"electronic-data", []string{"electronic data", "data exclusion"}},
	{"asbestos", []string{"asbestos"}},
	{"fungi-or-bacteria", []string{"fungi or bacteria", "mold", "fungus"}},
	{"racing", []string{"racing", "speed contest"}},
	{"wear-and-tear", []string{"wear and tear", "deterioration"}},
}

// taxonomyID resolves a provision name against the curated table: exact
// normalized match first, then substring containment either direction, then
// a slug of the name itself.
func taxonomyID(table []taxonomyEntry, name string) string {
	key := document.NormalizeKey(name)
	if key == "" {
		return document.Slugify(name)
	}

	for _, entry := range table {
		for _, v := range entry.variants {
			if document.NormalizeKey(v) == key {
				return entry.id
			}
		}
	}
	for _, entry := range table {
		for _, v := range entry.variants {
			vk := document.NormalizeKey(v)
			if strings.Contains(key, vk) || strings.Contains(vk, key) {
				return entry.id
			}
		}
	}
	return document.Slugify(name)
}

// CoverageCanonicalID resolves a coverage name to its taxonomy id.
func CoverageCanonicalID(name string) string {
	return taxonomyID(coverageTaxonomy, name)
}

// ExclusionCanonicalID resolves an exclusion name to its taxonomy id.
func ExclusionCanonicalID(name string) string {
	return taxonomyID(exclusionTaxonomy, name)
}
