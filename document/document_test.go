package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStableChunkID_Deterministic(t *testing.T) {
	a := StableChunkID(SectionDeclarations, "Policy No: POL-123")
	b := StableChunkID(SectionDeclarations, "Policy No: POL-123")
	assert.Equal(t, a, b)

	// Different section type changes the ID even for identical text.
	c := StableChunkID(SectionCoverages, "Policy No: POL-123")
	assert.NotEqual(t, a, c)

	d := StableChunkID(SectionDeclarations, "Policy No: POL-124")
	assert.NotEqual(t, a, d)
}

func TestManifestValidate(t *testing.T) {
	tests := []struct {
		name     string
		manifest PageManifest
		wantErr  bool
	}{
		{
			name: "valid disjoint sets",
			manifest: PageManifest{
				TotalPages:     5,
				PagesToProcess: []int{1, 3, 5},
				PagesSkipped:   []int{2, 4},
			},
		},
		{
			name: "page out of range",
			manifest: PageManifest{
				TotalPages:     3,
				PagesToProcess: []int{1, 4},
			},
			wantErr: true,
		},
		{
			name: "overlapping sets",
			manifest: PageManifest{
				TotalPages:     3,
				PagesToProcess: []int{1, 2},
				PagesSkipped:   []int{2},
			},
			wantErr: true,
		},
		{
			name: "empty document",
			manifest: PageManifest{
				TotalPages: 0,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.manifest.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestFingerprint_IdentityKeys(t *testing.T) {
	a := Fingerprint(EntityPolicy, "Commercial Auto Policy", map[string]any{"policy_number": "POL-123"})
	b := Fingerprint(EntityPolicy, "COMMERCIAL AUTO POLICY", map[string]any{"policy_number": "pol 123"})
	assert.Equal(t, a, b, "case and punctuation must not change the fingerprint")

	c := Fingerprint(EntityPolicy, "Commercial Auto Policy", map[string]any{"policy_number": "POL-999"})
	assert.NotEqual(t, a, c, "different policy numbers must not collide")

	// Types partition the fingerprint space.
	d := Fingerprint(EntityOrganization, "Commercial Auto Policy", nil)
	e := Fingerprint(EntityCoverage, "Commercial Auto Policy", nil)
	assert.NotEqual(t, d, e)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "blanket-additional-insured", Slugify("Blanket Additional Insured"))
	assert.Equal(t, "ca-t3-53", Slugify("CA T3 53"))
	assert.Equal(t, "acme-llc", Slugify("  Acme, LLC.  "))
	assert.Equal(t, "", Slugify("---"))
}

func TestTableValidate_GridInvariant(t *testing.T) {
	tbl := TableJSON{
		TableID: DeriveTableID("doc:1", 2, 0),
		NumRows: 2,
		NumCols: 2,
		Cells: []TableCell{
			{Row: 0, Col: 0, Text: "Location"},
			{Row: 0, Col: 1, Text: "TIV"},
			{Row: 1, Col: 0, Text: "1"},
			{Row: 1, Col: 1, Text: "500000"},
		},
	}
	require.NoError(t, tbl.Validate())

	tbl.Cells = append(tbl.Cells, TableCell{Row: 2, Col: 0, Text: "overflow"})
	require.Error(t, tbl.Validate())
}

func TestDeriveTableID_Stable(t *testing.T) {
	assert.Equal(t, DeriveTableID("doc:1", 3, 0), DeriveTableID("doc:1", 3, 0))
	assert.NotEqual(t, DeriveTableID("doc:1", 3, 0), DeriveTableID("doc:1", 3, 1))
}

func TestStageRunTransitions(t *testing.T) {
	run := WorkflowStageRun{Status: StageNotStarted}
	assert.True(t, run.CanTransition(StageRunning))
	assert.False(t, run.CanTransition(StageCompleted))

	run.Status = StageRunning
	assert.True(t, run.CanTransition(StageCompleted))
	assert.True(t, run.CanTransition(StageFailed))

	run.Status = StageFailed
	assert.True(t, run.CanTransition(StageRunning), "retry resets failed to running")

	run.Status = StageCompleted
	assert.False(t, run.CanTransition(StageRunning), "completed is terminal")
}

func TestSectionPriorityOrdering(t *testing.T) {
	assert.Less(t, SectionDeclarations.ProcessingPriority(), SectionCoverages.ProcessingPriority())
	assert.Less(t, SectionCoverages.ProcessingPriority(), SectionConditions.ProcessingPriority())
	assert.Less(t, SectionConditions.ProcessingPriority(), SectionExclusions.ProcessingPriority())
	assert.Less(t, SectionExclusions.ProcessingPriority(), SectionEndorsements.ProcessingPriority())
	assert.False(t, SectionSchedule.RequiresLLM())
	assert.True(t, SectionDeclarations.RequiresLLM())
}
