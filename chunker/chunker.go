// Package chunker implements hybrid document chunking: heading and
// paragraph aware splitting under token budgets, page attribution, section
// inheritance from the page manifest, and super-chunk grouping for
// section-level extraction.
package chunker

import (
	"fmt"
	"strings"
	"time"

	"github.com/c360studio/policypipe/config"
	"github.com/c360studio/policypipe/document"
)

// charsPerToken is the approximate average characters per token for GPT
// tokenizers.
const charsPerToken = 4

// Chunker splits extracted pages into section-attributed chunks.
type Chunker struct {
	cfg config.ChunkingConfig
}

// New creates a Chunker. The zero config gets defaults.
func New(cfg config.ChunkingConfig) (*Chunker, error) {
	if cfg.MaxTokens == 0 {
		cfg = config.DefaultConfig().Chunking
	}
	if cfg.MaxTokens <= 0 {
		return nil, fmt.Errorf("max_tokens must be positive, got %d", cfg.MaxTokens)
	}
	if cfg.OverlapTokens < 0 || cfg.OverlapTokens >= cfg.MaxTokens {
		return nil, fmt.Errorf("overlap_tokens (%d) must be in [0, max_tokens)", cfg.OverlapTokens)
	}
	if cfg.MaxTokensPerSuperChunk < cfg.MaxTokens {
		return nil, fmt.Errorf("max_tokens_per_super_chunk (%d) must be >= max_tokens (%d)",
			cfg.MaxTokensPerSuperChunk, cfg.MaxTokens)
	}
	return &Chunker{cfg: cfg}, nil
}

// MustNew creates a Chunker, panicking on invalid config. Use for known-good
// configurations.
func MustNew(cfg config.ChunkingConfig) *Chunker {
	c, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

// block is a paragraph-level unit of text attributed to one page.
type block struct {
	text string
	page int
}

// Chunk splits the pages into section-attributed chunks and groups them into
// super-chunks. sectionMap is the authoritative page-to-section assignment
// from the page manifest; pages absent from it fall back to "other".
func (c *Chunker) Chunk(documentID string, pages []document.Page, sectionMap map[int]document.SectionType) (*document.ChunkingResult, error) {
	var blocks []block
	for _, page := range pages {
		text := page.Markdown
		if strings.TrimSpace(text) == "" {
			text = page.Text
		}
		for _, para := range splitIntoParagraphs(text) {
			blocks = append(blocks, c.splitOversized(block{text: para, page: page.PageNumber})...)
		}
	}

	chunks := c.assemble(documentID, blocks, sectionMap)
	superChunks := c.groupSuperChunks(documentID, chunks)

	result := &document.ChunkingResult{
		Chunks:      chunks,
		SuperChunks: superChunks,
		SectionMap:  sectionMap,
	}
	for _, ch := range chunks {
		result.TotalTokens += ch.TokenCount
	}
	result.Stats = document.ChunkingStats{
		TotalChunks:      len(chunks),
		TotalSuperChunks: len(superChunks),
		TotalTokens:      result.TotalTokens,
	}
	for _, sc := range superChunks {
		if sc.RequiresLLM {
			result.Stats.LLMSuperChunks++
		}
	}
	return result, nil
}

// assemble packs blocks into chunks under the token budget, carrying an
// overlap tail between consecutive chunks so clause boundaries survive
// the cut.
func (c *Chunker) assemble(documentID string, blocks []block, sectionMap map[int]document.SectionType) []document.HybridChunk {
	var chunks []document.HybridChunk
	var current []block
	tailCount := 0 // leading blocks of current that are carried overlap

	flush := func() {
		chunks = append(chunks, c.finalize(documentID, current, sectionMap, len(chunks)))
		current = c.overlapTail(current)
		tailCount = len(current)
	}

	for _, b := range blocks {
		if len(current) > tailCount && tokensOf(current)+estimateTokens(b.text) > c.cfg.MaxTokens {
			flush()
		}
		// A block that cannot share a chunk with the overlap gets a clean
		// start; emitting the bare overlap again would duplicate text.
		if len(current) == tailCount && tailCount > 0 && tokensOf(current)+estimateTokens(b.text) > c.cfg.MaxTokens {
			current = nil
			tailCount = 0
		}
		current = append(current, b)
	}
	if len(current) > tailCount {
		chunks = append(chunks, c.finalize(documentID, current, sectionMap, len(chunks)))
	}

	return chunks
}

// overlapTail returns the trailing blocks of a flushed chunk, up to the
// overlap budget, to seed the next chunk.
func (c *Chunker) overlapTail(flushed []block) []block {
	if c.cfg.OverlapTokens == 0 {
		return nil
	}
	var tail []block
	budget := c.cfg.OverlapTokens
	for i := len(flushed) - 1; i >= 0; i-- {
		t := estimateTokens(flushed[i].text)
		if t > budget {
			break
		}
		budget -= t
		tail = append([]block{flushed[i]}, tail...)
	}
	// Never carry the entire chunk forward.
	if len(tail) == len(flushed) && len(tail) > 0 {
		tail = tail[1:]
	}
	return tail
}

// finalize builds a HybridChunk: text, token count, page attribution, and
// section inheritance (dominant page by contributed characters, earliest
// page on a tie).
func (c *Chunker) finalize(documentID string, blocks []block, sectionMap map[int]document.SectionType, index int) document.HybridChunk {
	text := joinBlocks(blocks)

	charsByPage := make(map[int]int)
	var pages []int
	for _, b := range blocks {
		if charsByPage[b.page] == 0 {
			pages = append(pages, b.page)
		}
		charsByPage[b.page] += len(b.text)
	}

	dominant := pages[0]
	for _, p := range pages {
		if charsByPage[p] > charsByPage[dominant] {
			dominant = p
		} else if charsByPage[p] == charsByPage[dominant] && p < dominant {
			dominant = p
		}
	}

	sectionType, ok := sectionMap[dominant]
	if !ok {
		sectionType = document.SectionOther
	}

	return document.HybridChunk{
		ChunkID:     document.StableChunkID(sectionType, text),
		DocumentID:  documentID,
		SectionType: sectionType,
		Text:        text,
		TokenCount:  estimateTokens(text),
		PageNumbers: pages,
		Index:       index,
		CreatedAt:   time.Now(),
	}
}

// splitOversized breaks a paragraph that exceeds the chunk budget into
// sentence-level blocks, hard-splitting when no sentence breaks exist.
func (c *Chunker) splitOversized(b block) []block {
	if estimateTokens(b.text) <= c.cfg.MaxTokens {
		return []block{b}
	}

	sentences := splitSentences(b.text)
	if len(sentences) <= 1 {
		return c.hardSplit(b)
	}

	var out []block
	var current strings.Builder
	for _, sentence := range sentences {
		if current.Len() > 0 && estimateTokens(current.String())+estimateTokens(sentence) > c.cfg.MaxTokens {
			out = append(out, block{text: current.String(), page: b.page})
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		out = append(out, block{text: current.String(), page: b.page})
	}

	// A single run-on sentence can still blow the budget.
	var final []block
	for _, blk := range out {
		if estimateTokens(blk.text) > c.cfg.MaxTokens {
			final = append(final, c.hardSplit(blk)...)
		} else {
			final = append(final, blk)
		}
	}
	return final
}

// hardSplit cuts at character boundaries as a last resort.
func (c *Chunker) hardSplit(b block) []block {
	maxChars := c.cfg.MaxTokens * charsPerToken
	runes := []rune(b.text)

	var out []block
	for i := 0; i < len(runes); i += maxChars {
		end := i + maxChars
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, block{text: string(runes[i:end]), page: b.page})
	}
	return out
}

func joinBlocks(blocks []block) string {
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = b.text
	}
	return strings.Join(parts, "\n\n")
}

func tokensOf(blocks []block) int {
	total := 0
	for _, b := range blocks {
		total += estimateTokens(b.text)
	}
	return total
}

// estimateTokens estimates token count using the chars/token heuristic.
func estimateTokens(content string) int {
	if content == "" {
		return 0
	}
	return (len(content) + charsPerToken - 1) / charsPerToken
}

// splitIntoParagraphs splits content on blank lines, keeping markdown table
// rows together so table fragments stay intact.
func splitIntoParagraphs(content string) []string {
	var paragraphs []string
	var current strings.Builder
	lastWasEmpty := false

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if !lastWasEmpty && current.Len() > 0 {
				paragraphs = append(paragraphs, strings.TrimSpace(current.String()))
				current.Reset()
			}
			lastWasEmpty = true
			continue
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
		lastWasEmpty = false
	}

	if current.Len() > 0 {
		paragraphs = append(paragraphs, strings.TrimSpace(current.String()))
	}
	return paragraphs
}

// splitSentences splits on sentence-ending punctuation followed by a space
// or newline.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		current.WriteRune(runes[i])

		if runes[i] == '.' || runes[i] == '?' || runes[i] == '!' {
			if i == len(runes)-1 || runes[i+1] == ' ' || runes[i+1] == '\n' {
				sentences = append(sentences, strings.TrimSpace(current.String()))
				current.Reset()
				if i+1 < len(runes) && runes[i+1] == ' ' {
					i++
				}
			}
		}
	}

	if strings.TrimSpace(current.String()) != "" {
		sentences = append(sentences, strings.TrimSpace(current.String()))
	}
	return sentences
}
