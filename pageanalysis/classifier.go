package pageanalysis

import (
	"regexp"
	"strings"

	"github.com/c360studio/policypipe/document"
)

// duplicateMaxDistance is the fingerprint hamming distance at or below
// which a page counts as a near-duplicate of an earlier page.
const duplicateMaxDistance = 6

// minProcessDensity is the text density below which a page is treated as
// blank or scanned-noise and skipped.
const minProcessDensity = 0.01

// formNumberPattern matches standard form identifiers like "CG 20 10" or
// "CA T3 53" that mark endorsement pages.
var formNumberPattern = regexp.MustCompile(`\b[A-Z]{2}\s?[A-Z0-9]{2}\s?[0-9]{2}\b`)

// pageRule scores one page type by keyword hits.
type pageRule struct {
	pageType document.PageType
	keywords []string
	// minHits is the hit count required before the rule scores at all.
	minHits int
	// weight scales the score; sections with generic vocabulary need
	// more evidence to win.
	weight float64
}

// pageRules in priority order. Earlier rules win ties.
var pageRules = []pageRule{
	{
		pageType: document.PageTypeDeclarations,
		keywords: []string{"declarations", "policy number", "named insured", "policy period", "total premium", "agent name"},
		minHits:  2,
		weight:   1.0,
	},
	{
		pageType: document.PageTypeEndorsements,
		keywords: []string{"this endorsement changes the policy", "endorsement", "please read it carefully", "all other terms and conditions"},
		minHits:  1,
		weight:   1.0,
	},
	{
		pageType: document.PageTypeExclusions,
		keywords: []string{"exclusions", "this insurance does not apply", "we will not pay", "does not apply to"},
		minHits:  1,
		weight:   0.9,
	},
	{
		pageType: document.PageTypeConditions,
		keywords: []string{"conditions", "duties in the event", "cancellation", "your duties", "transfer of rights"},
		minHits:  2,
		weight:   0.8,
	},
	{
		pageType: document.PageTypeDefinitions,
		keywords: []string{"definitions", "means the", "as used in this policy"},
		minHits:  2,
		weight:   0.8,
	},
	{
		pageType: document.PageTypeSchedule,
		keywords: []string{"schedule of", "statement of values", "vehicle schedule", "loss run", "schedule", "covered autos"},
		minHits:  1,
		weight:   0.9,
	},
	{
		pageType: document.PageTypeCoverages,
		keywords: []string{"coverage", "limit of insurance", "insuring agreement", "we will pay", "supplementary payments"},
		minHits:  2,
		weight:   0.85,
	},
	{
		pageType: document.PageTypeBoilerplate,
		keywords: []string{"in witness whereof", "signature", "countersigned", "this page intentionally left blank"},
		minHits:  1,
		weight:   0.7,
	},
}

// Classifier assigns page types and detects near-duplicates.
type Classifier struct{}

// NewClassifier creates a rule-based page classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify produces one classification per page. pageTexts[i] corresponds
// to signals[i]; both are in page order. Duplicate detection compares each
// page's fingerprint against all earlier non-duplicate pages.
func (c *Classifier) Classify(signals []document.PageSignal, pageTexts []string) []document.PageClassification {
	results := make([]document.PageClassification, 0, len(signals))

	var seen []seenPage

	for i, sig := range signals {
		text := ""
		if i < len(pageTexts) {
			text = pageTexts[i]
		}

		cls := document.PageClassification{
			DocumentID: sig.DocumentID,
			PageNumber: sig.PageNumber,
		}

		if dup := findDuplicate(seen, sig.Fingerprint); dup != 0 {
			cls.PageType = document.PageTypeDuplicate
			cls.DuplicateOf = dup
			cls.Confidence = 0.95
			cls.ShouldProcess = false
			results = append(results, cls)
			continue
		}

		pageType, confidence := classifyText(text, sig)
		cls.PageType = pageType
		cls.Confidence = confidence
		cls.ShouldProcess = shouldProcess(pageType, sig)

		if sig.Fingerprint != "" {
			seen = append(seen, seenPage{pageNumber: sig.PageNumber, fingerprint: sig.Fingerprint})
		}

		results = append(results, cls)
	}

	return results
}

type seenPage struct {
	pageNumber  int
	fingerprint string
}

func findDuplicate(seen []seenPage, fingerprint string) int {
	if fingerprint == "" {
		return 0
	}
	for _, prior := range seen {
		d := FingerprintDistance(prior.fingerprint, fingerprint)
		if d >= 0 && d <= duplicateMaxDistance {
			return prior.pageNumber
		}
	}
	return 0
}

// classifyText scores every rule against the page text and returns the best
// type with a confidence derived from keyword hits.
func classifyText(text string, sig document.PageSignal) (document.PageType, float64) {
	if sig.CharCount == 0 || sig.TextDensity < minProcessDensity {
		return document.PageTypeBoilerplate, 0.9
	}

	lowered := strings.ToLower(text)

	bestType := document.PageTypeOther
	bestScore := 0.0

	for _, rule := range pageRules {
		hits := 0
		for _, kw := range rule.keywords {
			if strings.Contains(lowered, kw) {
				hits++
			}
		}
		if rule.pageType == document.PageTypeEndorsements && formNumberPattern.MatchString(text) {
			hits++
		}
		if hits < rule.minHits {
			continue
		}

		score := rule.weight * float64(hits) / float64(len(rule.keywords)+1)
		if score > bestScore {
			bestScore = score
			bestType = rule.pageType
		}
	}

	if bestType == document.PageTypeOther {
		return bestType, 0.3
	}

	confidence := 0.5 + bestScore
	if confidence > 0.95 {
		confidence = 0.95
	}
	return bestType, confidence
}

func shouldProcess(pageType document.PageType, sig document.PageSignal) bool {
	switch pageType {
	case document.PageTypeBoilerplate, document.PageTypeDuplicate:
		return false
	}
	// Schedule pages carry tables even when text density is low.
	if pageType == document.PageTypeSchedule && sig.HasTables {
		return true
	}
	return sig.TextDensity >= minProcessDensity
}
