package chunker

import (
	"sort"

	"github.com/c360studio/policypipe/document"
)

// groupSuperChunks packs contiguous chunks of the same section type into
// token-bounded super-chunks. Super-chunks are ordered by processing
// priority so extraction works declarations-first.
func (c *Chunker) groupSuperChunks(documentID string, chunks []document.HybridChunk) []document.SectionSuperChunk {
	var superChunks []document.SectionSuperChunk
	var current *document.SectionSuperChunk

	flush := func() {
		if current != nil && len(current.Chunks) > 0 {
			superChunks = append(superChunks, *current)
		}
		current = nil
	}

	for _, ch := range chunks {
		sameSection := current != nil && current.SectionType == ch.SectionType
		fits := current != nil && current.TotalTokens+ch.TokenCount <= c.cfg.MaxTokensPerSuperChunk

		if !sameSection || !fits {
			flush()
			current = &document.SectionSuperChunk{
				DocumentID:  documentID,
				SectionType: ch.SectionType,
				Priority:    ch.SectionType.ProcessingPriority(),
				RequiresLLM: ch.SectionType.RequiresLLM(),
			}
		}
		current.Chunks = append(current.Chunks, ch)
		current.TotalTokens += ch.TokenCount
	}
	flush()

	sort.SliceStable(superChunks, func(i, j int) bool {
		return superChunks[i].Priority < superChunks[j].Priority
	})

	return superChunks
}
