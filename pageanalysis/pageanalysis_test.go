package pageanalysis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/policypipe/document"
)

const declarationsText = `
BUSINESSOWNERS POLICY DECLARATIONS
Policy Number: BP-4429871
Named Insured: Acme Logistics LLC
Policy Period: 01/01/2025 to 01/01/2026
Total Premium: $12,450
`

const exclusionsText = `
SECTION B - EXCLUSIONS
This insurance does not apply to:
1. Expected or intended injury
2. Contractual liability
We will not pay for loss caused by earth movement.
`

const endorsementText = `
THIS ENDORSEMENT CHANGES THE POLICY. PLEASE READ IT CAREFULLY.
CA T3 53
Employee Hired Autos
All other terms and conditions of this policy remain unchanged.
`

const boilerplateText = `
IN WITNESS WHEREOF, the company has caused this policy to be signed.
Countersigned by authorized representative.
`

func TestComputeSignal(t *testing.T) {
	sig := ComputeSignal("doc:1", 1, declarationsText)
	assert.Equal(t, 1, sig.PageNumber)
	assert.Greater(t, sig.TextDensity, 0.0)
	assert.NotEmpty(t, sig.Fingerprint)
	assert.Len(t, sig.Fingerprint, 16)

	blank := ComputeSignal("doc:1", 2, "   ")
	assert.Zero(t, blank.CharCount)
	assert.Empty(t, blank.Fingerprint)
}

func TestLooksTabular(t *testing.T) {
	markdown := "| Loc | Address | TIV |\n|---|---|---|\n| 1 | 12 Main St | 500000 |"
	assert.True(t, looksTabular(markdown))

	columnar := strings.Repeat("Loc 1   12 Main St   Frame   1987   500,000\n", 4)
	assert.True(t, looksTabular(columnar))

	assert.False(t, looksTabular("plain prose with no alignment at all"))
}

func TestFingerprintDistance(t *testing.T) {
	a := lexicalFingerprint(declarationsText)
	b := lexicalFingerprint(declarationsText + " ")
	assert.Equal(t, 0, FingerprintDistance(a, a))
	d := FingerprintDistance(a, b)
	assert.GreaterOrEqual(t, d, 0)
	assert.LessOrEqual(t, d, duplicateMaxDistance, "near-identical text should be within duplicate range")

	far := lexicalFingerprint(exclusionsText)
	assert.Greater(t, FingerprintDistance(a, far), duplicateMaxDistance)

	assert.Equal(t, -1, FingerprintDistance("", a))
	assert.Equal(t, -1, FingerprintDistance("zz", a))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		text string
		want document.PageType
	}{
		{"declarations", declarationsText, document.PageTypeDeclarations},
		{"exclusions", exclusionsText, document.PageTypeExclusions},
		{"endorsement", endorsementText, document.PageTypeEndorsements},
		{"boilerplate", boilerplateText, document.PageTypeBoilerplate},
		{"blank", "", document.PageTypeBoilerplate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := ComputeSignal("doc:1", 1, tt.text)
			got := NewClassifier().Classify([]document.PageSignal{sig}, []string{tt.text})
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].PageType)
		})
	}
}

func TestClassifyDetectsDuplicates(t *testing.T) {
	texts := []string{declarationsText, exclusionsText, declarationsText}
	signals := ComputeSignals("doc:1", texts)

	got := NewClassifier().Classify(signals, texts)
	require.Len(t, got, 3)

	assert.Equal(t, document.PageTypeDeclarations, got[0].PageType)
	assert.Equal(t, document.PageTypeDuplicate, got[2].PageType)
	assert.Equal(t, 1, got[2].DuplicateOf)
	assert.False(t, got[2].ShouldProcess)
}

func TestBuildManifest(t *testing.T) {
	cls := []document.PageClassification{
		{DocumentID: "doc:1", PageNumber: 1, PageType: document.PageTypeDeclarations, Confidence: 0.9, ShouldProcess: true},
		{DocumentID: "doc:1", PageNumber: 2, PageType: document.PageTypeCoverages, Confidence: 0.8, ShouldProcess: true},
		{DocumentID: "doc:1", PageNumber: 3, PageType: document.PageTypeCoverages, Confidence: 0.6, ShouldProcess: true},
		{DocumentID: "doc:1", PageNumber: 4, PageType: document.PageTypeDuplicate, Confidence: 0.95, DuplicateOf: 2},
		{DocumentID: "doc:1", PageNumber: 5, PageType: document.PageTypeBoilerplate, Confidence: 0.9},
	}

	m, err := BuildManifest("doc:1", cls)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, m.PagesToProcess)
	assert.Equal(t, []int{4, 5}, m.PagesSkipped)
	assert.InDelta(t, 0.6, m.ProcessingRatio, 0.001)
	assert.Equal(t, document.SectionDeclarations, m.PageSectionMap[1])
	assert.Equal(t, document.SectionCoverages, m.PageSectionMap[3])

	require.Len(t, m.Profile.SectionBoundaries, 2)
	coverages := m.Profile.SectionBoundaries[1]
	assert.Equal(t, document.SectionCoverages, coverages.SectionType)
	assert.Equal(t, 2, coverages.StartPage)
	assert.Equal(t, 3, coverages.EndPage)
	assert.InDelta(t, 0.7, coverages.Confidence, 0.001, "boundary confidence is the mean of its pages")

	assert.Equal(t, "policy", m.Profile.DocumentType)
}

func TestBuildManifestSelectivePages(t *testing.T) {
	// Pages 2 and 4 are skippable; processing set must be exactly {1,3,5}.
	cls := []document.PageClassification{
		{DocumentID: "doc:1", PageNumber: 1, PageType: document.PageTypeDeclarations, Confidence: 0.9, ShouldProcess: true},
		{DocumentID: "doc:1", PageNumber: 2, PageType: document.PageTypeBoilerplate, Confidence: 0.9},
		{DocumentID: "doc:1", PageNumber: 3, PageType: document.PageTypeExclusions, Confidence: 0.85, ShouldProcess: true},
		{DocumentID: "doc:1", PageNumber: 4, PageType: document.PageTypeDuplicate, Confidence: 0.95, DuplicateOf: 3},
		{DocumentID: "doc:1", PageNumber: 5, PageType: document.PageTypeEndorsements, Confidence: 0.85, ShouldProcess: true},
	}

	m, err := BuildManifest("doc:1", cls)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 5}, m.PagesToProcess)
}

func TestBuildManifestAllSkipped(t *testing.T) {
	cls := []document.PageClassification{
		{DocumentID: "doc:1", PageNumber: 1, PageType: document.PageTypeBoilerplate, Confidence: 0.9},
		{DocumentID: "doc:1", PageNumber: 2, PageType: document.PageTypeDuplicate, Confidence: 0.95, DuplicateOf: 1},
	}

	m, err := BuildManifest("doc:1", cls)
	require.NoError(t, err)
	assert.Empty(t, m.PagesToProcess)
	assert.Zero(t, m.ProcessingRatio)
	assert.Empty(t, m.Profile.SectionBoundaries)
	assert.Equal(t, "unknown", m.Profile.DocumentType)
}

func TestAnalyzeEndToEnd(t *testing.T) {
	texts := []string{declarationsText, exclusionsText, boilerplateText}
	manifest, classifications, err := Analyze("doc:1", texts)
	require.NoError(t, err)
	require.Len(t, classifications, 3)

	assert.Equal(t, []int{1, 2}, manifest.PagesToProcess)
	assert.Equal(t, []int{3}, manifest.PagesSkipped)
	assert.Equal(t, document.SectionDeclarations, manifest.PageSectionMap[1])
	assert.Equal(t, document.SectionExclusions, manifest.PageSectionMap[2])
}
