package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/policypipe/config"
	"github.com/c360studio/policypipe/document"
)

func testConfig() config.ChunkingConfig {
	return config.ChunkingConfig{
		MaxTokens:              100,
		OverlapTokens:          10,
		MaxTokensPerSuperChunk: 200,
	}
}

func page(n int, text string) document.Page {
	return document.Page{DocumentID: "doc:1", PageNumber: n, Text: text}
}

func sentencesOfTokens(count, tokensEach int) string {
	var b strings.Builder
	for i := 0; i < count; i++ {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(strings.Repeat("x", tokensEach*charsPerToken-2))
		b.WriteString(".")
	}
	return b.String()
}

func TestNewValidation(t *testing.T) {
	_, err := New(config.ChunkingConfig{MaxTokens: 100, OverlapTokens: 100, MaxTokensPerSuperChunk: 200})
	require.Error(t, err)

	_, err = New(config.ChunkingConfig{MaxTokens: 100, OverlapTokens: 0, MaxTokensPerSuperChunk: 50})
	require.Error(t, err)

	c, err := New(config.ChunkingConfig{})
	require.NoError(t, err, "zero config gets defaults")
	require.NotNil(t, c)
}

func TestChunkRespectsTokenBudget(t *testing.T) {
	c := MustNew(testConfig())

	var paras []string
	for i := 0; i < 10; i++ {
		paras = append(paras, fmt.Sprintf("Paragraph %d. %s", i, sentencesOfTokens(3, 10)))
	}
	pages := []document.Page{page(1, strings.Join(paras, "\n\n"))}
	sections := map[int]document.SectionType{1: document.SectionCoverages}

	result, err := c.Chunk("doc:1", pages, sections)
	require.NoError(t, err)
	require.NotEmpty(t, result.Chunks)

	for _, ch := range result.Chunks {
		assert.LessOrEqual(t, ch.TokenCount, c.cfg.MaxTokens+c.cfg.OverlapTokens,
			"chunk %d exceeds budget", ch.Index)
		assert.Equal(t, document.SectionCoverages, ch.SectionType)
		assert.Equal(t, []int{1}, ch.PageNumbers)
	}
	assert.Greater(t, len(result.Chunks), 1)
}

func TestChunkIDsAreStable(t *testing.T) {
	c := MustNew(testConfig())
	pages := []document.Page{page(1, "The policy provides commercial general liability coverage.")}
	sections := map[int]document.SectionType{1: document.SectionCoverages}

	first, err := c.Chunk("doc:1", pages, sections)
	require.NoError(t, err)
	second, err := c.Chunk("doc:1", pages, sections)
	require.NoError(t, err)

	require.Len(t, first.Chunks, 1)
	assert.Equal(t, first.Chunks[0].ChunkID, second.Chunks[0].ChunkID)
	assert.True(t, strings.HasPrefix(first.Chunks[0].ChunkID, "chk:"))
}

func TestSectionInheritanceDominantPage(t *testing.T) {
	c := MustNew(config.ChunkingConfig{MaxTokens: 1000, OverlapTokens: 0, MaxTokensPerSuperChunk: 2000})

	// Page 2 contributes far more text, so the merged chunk inherits its
	// section.
	pages := []document.Page{
		page(1, "Short declarations line."),
		page(2, strings.Repeat("Exclusion wording applies to this loss. ", 20)),
	}
	sections := map[int]document.SectionType{
		1: document.SectionDeclarations,
		2: document.SectionExclusions,
	}

	result, err := c.Chunk("doc:1", pages, sections)
	require.NoError(t, err)
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, document.SectionExclusions, result.Chunks[0].SectionType)
	assert.Equal(t, []int{1, 2}, result.Chunks[0].PageNumbers)
}

func TestSectionFallbackToOther(t *testing.T) {
	c := MustNew(testConfig())
	result, err := c.Chunk("doc:1", []document.Page{page(9, "Unmapped page text.")}, nil)
	require.NoError(t, err)
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, document.SectionOther, result.Chunks[0].SectionType)
}

func TestOversizedParagraphSplit(t *testing.T) {
	c := MustNew(testConfig())

	// One paragraph of 300 tokens with sentence breaks must split without
	// losing text.
	text := sentencesOfTokens(30, 10)
	result, err := c.Chunk("doc:1", []document.Page{page(1, text)},
		map[int]document.SectionType{1: document.SectionConditions})
	require.NoError(t, err)
	assert.Greater(t, len(result.Chunks), 1)
	for _, ch := range result.Chunks {
		assert.LessOrEqual(t, ch.TokenCount, c.cfg.MaxTokens+c.cfg.OverlapTokens)
	}
}

func TestHardSplitWithoutSentenceBreaks(t *testing.T) {
	c := MustNew(testConfig())

	text := strings.Repeat("A", 300*charsPerToken)
	result, err := c.Chunk("doc:1", []document.Page{page(1, text)}, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(result.Chunks), 3)
	for _, ch := range result.Chunks {
		assert.LessOrEqual(t, ch.TokenCount, c.cfg.MaxTokens+c.cfg.OverlapTokens)
	}
}

func TestSuperChunkGrouping(t *testing.T) {
	c := MustNew(config.ChunkingConfig{MaxTokens: 50, OverlapTokens: 0, MaxTokensPerSuperChunk: 100})

	pages := []document.Page{
		page(1, sentencesOfTokens(4, 10)),
		page(2, sentencesOfTokens(4, 10)),
		page(3, sentencesOfTokens(4, 10)),
	}
	sections := map[int]document.SectionType{
		1: document.SectionDeclarations,
		2: document.SectionSchedule,
		3: document.SectionExclusions,
	}

	result, err := c.Chunk("doc:1", pages, sections)
	require.NoError(t, err)
	require.NotEmpty(t, result.SuperChunks)

	// Priority ordering: declarations before exclusions before schedule.
	var order []document.SectionType
	for _, sc := range result.SuperChunks {
		order = append(order, sc.SectionType)
		assert.LessOrEqual(t, sc.TotalTokens, 100)
		for _, ch := range sc.Chunks {
			assert.Equal(t, sc.SectionType, ch.SectionType)
		}
	}
	assert.Equal(t, document.SectionDeclarations, order[0])
	assert.Equal(t, document.SectionSchedule, order[len(order)-1])

	for _, sc := range result.SuperChunks {
		if sc.SectionType == document.SectionSchedule {
			assert.False(t, sc.RequiresLLM, "schedule sections skip LLM extraction")
		} else {
			assert.True(t, sc.RequiresLLM)
		}
	}

	assert.Equal(t, len(result.Chunks), result.Stats.TotalChunks)
	assert.Equal(t, len(result.SuperChunks), result.Stats.TotalSuperChunks)
	assert.Greater(t, result.Stats.LLMSuperChunks, 0)
	assert.Less(t, result.Stats.LLMSuperChunks, result.Stats.TotalSuperChunks)
}

func TestSuperChunkSplitsOnTokenBudget(t *testing.T) {
	c := MustNew(config.ChunkingConfig{MaxTokens: 50, OverlapTokens: 0, MaxTokensPerSuperChunk: 60})

	pages := []document.Page{
		page(1, sentencesOfTokens(4, 10) + "\n\n" + sentencesOfTokens(4, 10) + "\n\n" + sentencesOfTokens(4, 10)),
	}
	sections := map[int]document.SectionType{1: document.SectionCoverages}

	result, err := c.Chunk("doc:1", pages, sections)
	require.NoError(t, err)
	assert.Greater(t, len(result.SuperChunks), 1, "same-section chunks exceeding the super budget must split")
}

func TestEmptyPages(t *testing.T) {
	c := MustNew(testConfig())
	result, err := c.Chunk("doc:1", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Chunks)
	assert.Empty(t, result.SuperChunks)
	assert.Zero(t, result.TotalTokens)
}
