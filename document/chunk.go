package document

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// HybridChunk is a section-aware text chunk with a content-hash identifier.
// Two runs over the same text and section type produce identical IDs, which
// keeps downstream extraction references reproducible.
type HybridChunk struct {
	ChunkID     string      `json:"chunk_id" db:"chunk_id"`
	DocumentID  string      `json:"document_id" db:"document_id"`
	SectionType SectionType `json:"section_type" db:"section_type"`
	Text        string      `json:"text" db:"text"`
	TokenCount  int         `json:"token_count" db:"token_count"`
	PageNumbers []int       `json:"page_numbers"`
	Index       int         `json:"index" db:"chunk_index"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
}

// StableChunkID derives the content-hash identifier for a chunk.
func StableChunkID(sectionType SectionType, text string) string {
	h := sha256.New()
	h.Write([]byte(sectionType))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return "chk:" + hex.EncodeToString(h.Sum(nil)[:12])
}

// SectionSuperChunk is a token-bounded concatenation of contiguous chunks
// sharing a section type, fed to a section-specific extractor. Transient:
// rebuilt from persisted chunks when needed.
type SectionSuperChunk struct {
	DocumentID  string        `json:"document_id"`
	SectionType SectionType   `json:"section_type"`
	Chunks      []HybridChunk `json:"chunks"`
	TotalTokens int           `json:"total_tokens"`
	Priority    int           `json:"processing_priority"`
	RequiresLLM bool          `json:"requires_llm"`
}

// Text concatenates the member chunk texts in order.
func (s *SectionSuperChunk) Text() string {
	var out string
	for i, c := range s.Chunks {
		if i > 0 {
			out += "\n\n"
		}
		out += c.Text
	}
	return out
}

// ChunkIDs returns the stable IDs of the member chunks.
func (s *SectionSuperChunk) ChunkIDs() []string {
	ids := make([]string, len(s.Chunks))
	for i, c := range s.Chunks {
		ids[i] = c.ChunkID
	}
	return ids
}

// PageRange returns the min and max page numbers across member chunks.
func (s *SectionSuperChunk) PageRange() (int, int) {
	lo, hi := 0, 0
	for _, c := range s.Chunks {
		for _, p := range c.PageNumbers {
			if lo == 0 || p < lo {
				lo = p
			}
			if p > hi {
				hi = p
			}
		}
	}
	return lo, hi
}

// ChunkingStats summarizes a chunking run.
type ChunkingStats struct {
	TotalChunks      int `json:"total_chunks"`
	TotalSuperChunks int `json:"total_super_chunks"`
	TotalTokens      int `json:"total_tokens"`
	LLMSuperChunks   int `json:"llm_super_chunks"`
}

// ChunkingResult is the hybrid chunker's output for a document.
type ChunkingResult struct {
	Chunks      []HybridChunk       `json:"chunks"`
	SuperChunks []SectionSuperChunk `json:"super_chunks"`
	SectionMap  map[int]SectionType `json:"section_map"`
	TotalTokens int                 `json:"total_tokens"`
	Stats       ChunkingStats       `json:"statistics"`
}
