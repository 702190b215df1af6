package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/policypipe/document"
	"github.com/c360studio/policypipe/llm"
	"github.com/c360studio/policypipe/llm/testutil"
)

// memStore collects extractions in memory.
type memStore struct {
	saved []document.SectionExtraction
	err   error
}

func (m *memStore) SaveSectionExtraction(_ context.Context, ext *document.SectionExtraction) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, *ext)
	return nil
}

func superChunk(section document.SectionType, text string, page int) document.SectionSuperChunk {
	chunk := document.HybridChunk{
		ChunkID:     document.StableChunkID(section, text),
		DocumentID:  "doc:1",
		SectionType: section,
		Text:        text,
		TokenCount:  len(text) / 4,
		PageNumbers: []int{page},
	}
	return document.SectionSuperChunk{
		DocumentID:  "doc:1",
		SectionType: section,
		Chunks:      []document.HybridChunk{chunk},
		TotalTokens: chunk.TokenCount,
		Priority:    section.ProcessingPriority(),
		RequiresLLM: section.RequiresLLM(),
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, document.SectionDeclarations, r.For(document.SectionDeclarations).Section())
	assert.Equal(t, document.SectionCoverages, r.Lookup("Coverage Forms").Section())
	assert.Equal(t, document.SectionEndorsements, r.Lookup("endorsement").Section())

	// Aliases normalize before lookup and resolve to a registered key,
	// not the default fallback.
	assert.Equal(t, document.SectionSchedule, r.Lookup("SOV").Section())
	assert.Equal(t, document.SectionSchedule, r.Lookup("statement of values").Section())
	assert.Same(t, r.Lookup("schedule of values"), r.Lookup("SOV"))

	// Unknown names fall back to the default extractor.
	def := r.Lookup("mystery section")
	assert.Equal(t, document.SectionOther, def.Section())

	// Instances are cached.
	assert.Same(t, r.For(document.SectionDeclarations), r.For(document.SectionDeclarations))
}

func TestNormalizeSectionName(t *testing.T) {
	assert.Equal(t, "schedule_of_values", NormalizeSectionName("  Schedule of Values "))
	assert.Equal(t, "insuring_agreement", NormalizeSectionName("Insuring-Agreement"))
	assert.Equal(t, "endorsement_provisions", NormalizeSectionName("endorsement_provisions"))
}

func TestRunExtractsDeclarations(t *testing.T) {
	mock := &testutil.MockClient{Responses: []*llm.Response{{
		Content: "```json\n" + `{
			"policy_number": "BP-4429871",
			"named_insured": "Acme Logistics LLC",
			"carrier": "Travelers",
			"effective_date": "2025-01-01",
			"expiration_date": "2026-01-01",
			"made_up_field": "dropped",
			"confidence": 0.92
		}` + "\n```",
		Model: "test-model",
		Usage: llm.TokenUsage{TotalTokens: 310},
	}}}
	store := &memStore{}
	runner := NewRunner(mock, store)

	text := "Policy Number: BP-4429871\nNamed Insured: Acme Logistics LLC\nEffective: 2025-01-01"
	exts, stats, err := runner.Run(context.Background(), "doc:1",
		[]document.SectionSuperChunk{superChunk(document.SectionDeclarations, text, 1)})
	require.NoError(t, err)
	require.Len(t, exts, 1)

	ext := exts[0]
	assert.Equal(t, document.SectionDeclarations, ext.SectionType)
	assert.InDelta(t, 0.92, ext.Confidence, 0.001)
	assert.Equal(t, "test-model", ext.ModelVersion)
	assert.Equal(t, 1, ext.SourceChunks.PageStart)
	require.Len(t, ext.SourceChunks.ChunkIDs, 1)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(ext.Fields, &fields))
	assert.Equal(t, "BP-4429871", fields["policy_number"])
	assert.NotContains(t, fields, "made_up_field", "schema-unknown fields are dropped")
	assert.NotContains(t, fields, "confidence")

	byType := map[document.EntityType][]document.DomainEntity{}
	for _, e := range ext.Entities {
		byType[e.Type] = append(byType[e.Type], e)
	}
	require.Len(t, byType[document.EntityPolicy], 1)
	assert.Equal(t, "BP-4429871", byType[document.EntityPolicy][0].Name)
	assert.Equal(t, "Policy:bp-4429871", byType[document.EntityPolicy][0].LocalID)
	require.Len(t, byType[document.EntityOrganization], 2)

	assert.Equal(t, 1, stats.SectionsExtracted)
	assert.Zero(t, stats.SectionsFailed)
	assert.Equal(t, 310, stats.TokensUsed)
	require.Len(t, store.saved, 1)

	req := mock.LastRequest()
	assert.True(t, req.Config.JSONMode)
	assert.Contains(t, req.SystemInstruction, "declarations")
}

func TestRunFailureYieldsEmptyExtraction(t *testing.T) {
	mock := &testutil.MockClient{Err: errors.New("model unavailable")}
	store := &memStore{}
	runner := NewRunner(mock, store)

	exts, stats, err := runner.Run(context.Background(), "doc:1",
		[]document.SectionSuperChunk{superChunk(document.SectionCoverages, "Coverage A applies.", 2)})
	require.NoError(t, err, "a failed section never fails the run")
	require.Len(t, exts, 1)

	assert.Zero(t, exts[0].Confidence)
	assert.JSONEq(t, `{}`, string(exts[0].Fields))
	assert.Equal(t, 1, stats.SectionsFailed)
	require.Len(t, store.saved, 1)
}

func TestRunSkipsNonLLMSections(t *testing.T) {
	mock := &testutil.MockClient{}
	store := &memStore{}
	runner := NewRunner(mock, store)

	_, _, err := runner.Run(context.Background(), "doc:1",
		[]document.SectionSuperChunk{superChunk(document.SectionSchedule, "| Loc | TIV |", 3)})
	require.NoError(t, err)
	assert.Zero(t, mock.CallCount())
	assert.Empty(t, store.saved)
}

func TestRunOrdersByPriority(t *testing.T) {
	mock := &testutil.MockClient{}
	store := &memStore{}
	runner := NewRunner(mock, store)

	chunks := []document.SectionSuperChunk{
		superChunk(document.SectionExclusions, "This insurance does not apply to flood.", 4),
		superChunk(document.SectionDeclarations, "Policy Number: BP-1", 1),
	}
	exts, _, err := runner.Run(context.Background(), "doc:1", chunks)
	require.NoError(t, err)
	require.Len(t, exts, 2)
	assert.Equal(t, document.SectionDeclarations, exts[0].SectionType)
	assert.Equal(t, document.SectionExclusions, exts[1].SectionType)
}

func TestBackstopFillsParserGaps(t *testing.T) {
	// The LLM misses the policy number; the deterministic parser has it.
	mock := &testutil.MockClient{Responses: []*llm.Response{{
		Content: `{"named_insured": "Acme Logistics LLC", "confidence": 0.8}`,
		Model:   "test-model",
	}}}
	store := &memStore{}
	runner := NewRunner(mock, store)

	text := "Policy Number: CPP-5561204\nNamed Insured: Acme Logistics LLC"
	exts, stats, err := runner.Run(context.Background(), "doc:1",
		[]document.SectionSuperChunk{superChunk(document.SectionDeclarations, text, 1)})
	require.NoError(t, err)
	require.Len(t, exts, 1)

	var policies []document.DomainEntity
	for _, e := range exts[0].Entities {
		if e.Type == document.EntityPolicy {
			policies = append(policies, e)
		}
	}
	require.Len(t, policies, 1, "backstop must add the missed policy number once")
	assert.Equal(t, "CPP-5561204", policies[0].Name)
	assert.Equal(t, 1, stats.BackstopByType[string(document.EntityPolicy)])

	// The insured matched by both sources must not duplicate.
	orgs := 0
	for _, e := range exts[0].Entities {
		if e.Type == document.EntityOrganization {
			orgs++
		}
	}
	assert.Equal(t, 1, orgs)
}
