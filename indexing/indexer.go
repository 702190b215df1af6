package indexing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/c360studio/policypipe/document"
)

// defaultBatchSize bounds how many texts go to the embedding endpoint per
// request.
const defaultBatchSize = 32

// Store is the persistence surface the indexer needs.
type Store interface {
	SaveEmbeddings(ctx context.Context, embeddings []document.VectorEmbedding) error
}

// Stats summarizes one indexing run.
type Stats struct {
	ChunksIndexed   int
	EntitiesIndexed int
	BatchesSent     int
}

// Indexer embeds document chunks and canonical entities and writes the rows.
type Indexer struct {
	embedder  EmbeddingClient
	store     Store
	batchSize int
	logger    *slog.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithBatchSize overrides the embedding batch size.
func WithBatchSize(n int) IndexerOption {
	return func(ix *Indexer) {
		if n > 0 {
			ix.batchSize = n
		}
	}
}

// WithIndexerLogger sets the logger.
func WithIndexerLogger(logger *slog.Logger) IndexerOption {
	return func(ix *Indexer) { ix.logger = logger }
}

// NewIndexer creates an Indexer.
func NewIndexer(embedder EmbeddingClient, store Store, opts ...IndexerOption) *Indexer {
	ix := &Indexer{
		embedder:  embedder,
		store:     store,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// IndexDocument embeds every non-empty chunk and every canonical entity with
// textual content, persisting batch by batch so a failure loses at most one
// batch of work. Re-running replaces prior rows per chunk and entity.
func (ix *Indexer) IndexDocument(ctx context.Context, documentID string, chunks []document.HybridChunk, entities []document.CanonicalEntity) (*Stats, error) {
	rows := make([]document.VectorEmbedding, 0, len(chunks)+len(entities))

	for _, c := range chunks {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		rows = append(rows, document.VectorEmbedding{
			DocumentID:  documentID,
			ChunkID:     c.ChunkID,
			SectionType: c.SectionType,
			Content:     text,
			PageNumbers: c.PageNumbers,
		})
	}

	for _, e := range entities {
		text := entityText(&e)
		if text == "" {
			continue
		}
		rows = append(rows, document.VectorEmbedding{
			DocumentID:        documentID,
			CanonicalEntityID: e.ID,
			EntityType:        e.Type,
			Content:           text,
		})
	}

	stats := &Stats{}
	for start := 0; start < len(rows); start += ix.batchSize {
		end := min(start+ix.batchSize, len(rows))
		batch := rows[start:end]

		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].Content
		}

		vectors, err := ix.embedder.Embed(ctx, texts)
		if err != nil {
			return stats, fmt.Errorf("embed batch %d: %w", stats.BatchesSent+1, err)
		}
		for i := range batch {
			batch[i].Embedding = vectors[i]
		}

		if err := ix.store.SaveEmbeddings(ctx, batch); err != nil {
			return stats, fmt.Errorf("save embeddings batch %d: %w", stats.BatchesSent+1, err)
		}

		stats.BatchesSent++
		for i := range batch {
			if batch[i].ChunkID != "" {
				stats.ChunksIndexed++
			} else {
				stats.EntitiesIndexed++
			}
		}
	}

	ix.logger.Info("Document indexed",
		"document_id", documentID,
		"chunks", stats.ChunksIndexed,
		"entities", stats.EntitiesIndexed,
		"batches", stats.BatchesSent)

	return stats, nil
}

// entityText renders a canonical entity as prose for embedding: type, name,
// then string attributes in stable order.
func entityText(e *document.CanonicalEntity) string {
	name := strings.TrimSpace(e.Name)
	if name == "" {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Type, name)

	keys := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if v, ok := e.Attributes[k].(string); ok && v != "" {
			fmt.Fprintf(&b, ". %s: %s", k, v)
		}
	}
	return b.String()
}
