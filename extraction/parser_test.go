package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/policypipe/document"
)

func chunkOf(text string) *document.HybridChunk {
	return &document.HybridChunk{
		ChunkID:     document.StableChunkID(document.SectionDeclarations, text),
		DocumentID:  "doc:1",
		SectionType: document.SectionDeclarations,
		Text:        text,
	}
}

func TestParsePolicyNumbers(t *testing.T) {
	p := NewDeterministicParser()

	tests := []struct {
		name string
		text string
		want string
	}{
		{"labeled", "Policy Number: BP-4429871", "BP-4429871"},
		{"labeled no", "Policy No. 680-1234567", "680-1234567"},
		{"hash", "Policy #: CPP2024118", "CPP2024118"},
		{"prefix standalone", "renewal of CPP-5561204 effective January 1", "CPP-5561204"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mentions := p.ParseMentions(chunkOf(tt.text))
			var found bool
			for _, m := range mentions {
				if m.Type == document.EntityPolicy && m.NormalizedValue == tt.want {
					found = true
					assert.Equal(t, document.MentionSourceDeterministic, m.Source)
					assert.GreaterOrEqual(t, m.SpanEnd, m.SpanStart)
				}
			}
			assert.True(t, found, "expected policy number %q in %v", tt.want, mentions)
		})
	}
}

func TestParseNamedInsured(t *testing.T) {
	p := NewDeterministicParser()
	mentions := p.ParseMentions(chunkOf("Named Insured: Acme Logistics, LLC\nPolicy Period: ..."))

	var orgs []document.EntityMention
	for _, m := range mentions {
		if m.Type == document.EntityOrganization {
			orgs = append(orgs, m)
		}
	}
	require.Len(t, orgs, 1)
	assert.Equal(t, "Acme Logistics, LLC", orgs[0].NormalizedValue)
	assert.Equal(t, "insured", orgs[0].Attributes["role"])
}

func TestParseDates(t *testing.T) {
	p := NewDeterministicParser()

	tests := []struct {
		text string
		want string
	}{
		{"Effective 2025-01-01", "2025-01-01"},
		{"From 01/01/2025 to 01/01/2026", "2025-01-01"},
		{"Effective 1.2.2025", "2025-02-01"},
		{"Effective January 1, 2025", "2025-01-01"},
	}
	for _, tt := range tests {
		mentions := p.ParseMentions(chunkOf(tt.text))
		var found bool
		for _, m := range mentions {
			if m.Attributes["date"] == tt.want {
				found = true
			}
		}
		assert.True(t, found, "no date %q parsed from %q", tt.want, tt.text)
	}
}

func TestParseKnownCarrier(t *testing.T) {
	p := NewDeterministicParser()
	mentions := p.ParseMentions(chunkOf("This policy is issued by Travelers Indemnity Company."))

	var found bool
	for _, m := range mentions {
		if m.Type == document.EntityOrganization && m.NormalizedValue == "Travelers" {
			found = true
			assert.Equal(t, "carrier", m.Attributes["role"])
		}
	}
	assert.True(t, found)
}

func TestReconcileLLMWins(t *testing.T) {
	llmMentions := []document.EntityMention{
		{Type: document.EntityPolicy, NormalizedValue: "BP-4429871", Confidence: 0.92, Source: document.MentionSourceLLM},
	}
	parsed := []document.EntityMention{
		// Same policy, different surface form: must dedupe, LLM kept.
		{Type: document.EntityPolicy, NormalizedValue: "bp 4429871", Confidence: 0.9, Source: document.MentionSourceDeterministic},
		{Type: document.EntityOrganization, NormalizedValue: "Acme Logistics LLC", Confidence: 0.85, Source: document.MentionSourceDeterministic},
	}

	merged := Reconcile(llmMentions, parsed)
	require.Len(t, merged, 2)
	assert.Equal(t, document.MentionSourceLLM, merged[0].Source)
	assert.Equal(t, document.MentionSourceDeterministic, merged[1].Source)
	assert.Equal(t, document.EntityOrganization, merged[1].Type)
}

func TestSynthesizeCoverageList(t *testing.T) {
	fields := map[string]any{
		"coverages": []any{
			map[string]any{
				"name": "Commercial General Liability", "limit": "$1,000,000",
				"deductible": "$5,000", "clause_ref": "Section I.A", "bogus": "dropped",
			},
			map[string]any{"limit": "$2,000,000"}, // no name, skipped
		},
	}

	entities := SynthesizeEntities(document.SectionCoverages, fields, 0.88, []string{"chk:abc"})
	require.Len(t, entities, 1)

	e := entities[0]
	assert.Equal(t, document.EntityCoverage, e.Type)
	assert.Equal(t, "Coverage:commercial-general-liability", e.LocalID)
	assert.Equal(t, "$1,000,000", e.Attributes["limit"])
	assert.Equal(t, "Section I.A", e.Attributes["clause_reference"], "variant field names canonicalize")
	assert.NotContains(t, e.Attributes, "bogus")
	assert.InDelta(t, 0.88, e.Confidence, 0.001)
	assert.Equal(t, []string{"chk:abc"}, e.ChunkIDs)
}

func TestSynthesizeEndorsements(t *testing.T) {
	fields := map[string]any{
		"endorsements": []any{
			map[string]any{
				"form_number": "CA T3 53",
				"title":       "Employee Hired Autos",
				"modifications": []any{
					map[string]any{"impacted_provision": "Covered Autos Liability", "effect": "expands"},
				},
			},
		},
	}

	entities := SynthesizeEntities(document.SectionEndorsements, fields, 0.85, nil)
	require.Len(t, entities, 1)
	assert.Equal(t, document.EntityEndorsement, entities[0].Type)
	assert.Equal(t, "CA T3 53", entities[0].Name)
	mods, ok := entities[0].Attributes["modifications"].([]any)
	require.True(t, ok)
	assert.Len(t, mods, 1)
}

func TestSynthesizeGenericEntitiesShape(t *testing.T) {
	fields := map[string]any{
		"entities": []any{
			map[string]any{"type": "Location", "name": "12 Main St", "address": "12 Main St, Springfield IL"},
			map[string]any{"type": "Spaceship", "name": "ignored"},
		},
	}

	entities := SynthesizeEntities(document.SectionOther, fields, 0.6, nil)
	require.Len(t, entities, 1)
	assert.Equal(t, document.EntityLocation, entities[0].Type)
}
