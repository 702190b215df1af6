package pageanalysis

import (
	"time"

	"github.com/c360studio/policypipe/document"
)

// pageTypeSections maps content-bearing page types to the section they
// belong to. Boilerplate, duplicate, and unknown pages carry no section.
var pageTypeSections = map[document.PageType]document.SectionType{
	document.PageTypeDeclarations: document.SectionDeclarations,
	document.PageTypeDefinitions:  document.SectionDefinitions,
	document.PageTypeCoverages:    document.SectionCoverages,
	document.PageTypeConditions:   document.SectionConditions,
	document.PageTypeExclusions:   document.SectionExclusions,
	document.PageTypeEndorsements: document.SectionEndorsements,
	document.PageTypeSchedule:     document.SectionSchedule,
	document.PageTypeOther:        document.SectionOther,
}

// BuildManifest assembles the processing plan from per-page classifications.
// pages_to_process is every page that should be processed and is not a
// duplicate; section boundaries are contiguous runs of the same section
// type with confidence equal to the mean of their pages.
func BuildManifest(documentID string, classifications []document.PageClassification) (*document.PageManifest, error) {
	m := &document.PageManifest{
		DocumentID:     documentID,
		TotalPages:     len(classifications),
		PageSectionMap: make(map[int]document.SectionType),
		CreatedAt:      time.Now(),
	}

	for _, cls := range classifications {
		if !cls.ShouldProcess || cls.PageType == document.PageTypeDuplicate {
			m.PagesSkipped = append(m.PagesSkipped, cls.PageNumber)
			continue
		}
		m.PagesToProcess = append(m.PagesToProcess, cls.PageNumber)
		if section, ok := pageTypeSections[cls.PageType]; ok {
			m.PageSectionMap[cls.PageNumber] = section
		}
	}

	if m.TotalPages > 0 {
		m.ProcessingRatio = float64(len(m.PagesToProcess)) / float64(m.TotalPages)
	}

	m.Profile = buildProfile(classifications)

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// buildProfile derives the document profile: section boundaries from
// contiguous classification runs, and a coarse document type.
func buildProfile(classifications []document.PageClassification) document.DocumentProfile {
	profile := document.DocumentProfile{
		DocumentType: "unknown",
	}

	var current *document.SectionBoundary
	var confidences []float64
	sectionsSeen := make(map[document.SectionType]bool)

	flush := func() {
		if current == nil {
			return
		}
		current.Confidence = mean(confidences)
		profile.SectionBoundaries = append(profile.SectionBoundaries, *current)
		current = nil
		confidences = nil
	}

	for _, cls := range classifications {
		section, ok := pageTypeSections[cls.PageType]
		if !ok || !cls.ShouldProcess {
			flush()
			continue
		}
		sectionsSeen[section] = true

		if current != nil && current.SectionType == section && current.EndPage == cls.PageNumber-1 {
			current.EndPage = cls.PageNumber
			confidences = append(confidences, cls.Confidence)
			continue
		}

		flush()
		current = &document.SectionBoundary{
			SectionType: section,
			StartPage:   cls.PageNumber,
			EndPage:     cls.PageNumber,
		}
		confidences = []float64{cls.Confidence}
	}
	flush()

	switch {
	case sectionsSeen[document.SectionDeclarations]:
		profile.DocumentType = "policy"
	case sectionsSeen[document.SectionSchedule] && len(sectionsSeen) == 1:
		profile.DocumentType = "schedule"
	case len(sectionsSeen) > 0:
		profile.DocumentType = "policy_fragment"
	}

	if n := len(profile.SectionBoundaries); n > 0 {
		total := 0.0
		for _, b := range profile.SectionBoundaries {
			total += b.Confidence
		}
		profile.Confidence = total / float64(n)
	}

	return profile
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

// Analyze runs the full page-analysis pass: signals, classification,
// manifest.
func Analyze(documentID string, pageTexts []string) (*document.PageManifest, []document.PageClassification, error) {
	signals := ComputeSignals(documentID, pageTexts)
	classifications := NewClassifier().Classify(signals, pageTexts)
	manifest, err := BuildManifest(documentID, classifications)
	if err != nil {
		return nil, nil, err
	}
	return manifest, classifications, nil
}
