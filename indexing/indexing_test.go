package indexing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/policypipe/config"
	"github.com/c360studio/policypipe/document"
	"github.com/c360studio/policypipe/llm"
)

func embeddingServer(t *testing.T, dims int) (*httptest.Server, *int) {
	t.Helper()
	calls := new(int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		require.Equal(t, "/embeddings", r.URL.Path)

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := embeddingResponse{Model: req.Model}
		// Return vectors in reverse order: the client must reorder by index.
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float32, dims)
			vec[0] = float32(i)
			resp.Data = append(resp.Data, struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}{Index: i, Embedding: vec})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

func TestEmbedOrdersByIndex(t *testing.T) {
	srv, _ := embeddingServer(t, 4)
	e := NewHTTPEmbedder(config.EmbeddingConfig{Endpoint: srv.URL, Model: "nomic-embed-text", Dimensions: 4})

	vectors, err := e.Embed(context.Background(), []string{"first", "second", "third"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i, v := range vectors {
		assert.Equal(t, float32(i), v[0], "vector %d out of order", i)
	}
}

func TestEmbedDimensionMismatch(t *testing.T) {
	srv, _ := embeddingServer(t, 4)
	e := NewHTTPEmbedder(config.EmbeddingConfig{Endpoint: srv.URL, Model: "m", Dimensions: 768})

	_, err := e.Embed(context.Background(), []string{"text"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension mismatch")
}

func TestEmbedServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(config.EmbeddingConfig{Endpoint: srv.URL, Model: "m", Dimensions: 4})
	_, err := e.Embed(context.Background(), []string{"text"})
	require.Error(t, err)
	assert.True(t, llm.IsTransient(err))
}

func TestEmbedEmptyInput(t *testing.T) {
	e := NewHTTPEmbedder(config.EmbeddingConfig{Endpoint: "http://unused", Model: "m"})
	vectors, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

// fakeEmbedder returns fixed-size vectors without a network round trip.
type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i]))}
	}
	return out, nil
}

type captureStore struct {
	saved [][]document.VectorEmbedding
}

func (c *captureStore) SaveEmbeddings(_ context.Context, rows []document.VectorEmbedding) error {
	batch := make([]document.VectorEmbedding, len(rows))
	copy(batch, rows)
	c.saved = append(c.saved, batch)
	return nil
}

func (c *captureStore) all() []document.VectorEmbedding {
	var out []document.VectorEmbedding
	for _, b := range c.saved {
		out = append(out, b...)
	}
	return out
}

func TestIndexDocument(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := &captureStore{}
	ix := NewIndexer(embedder, store, WithBatchSize(2))

	chunks := []document.HybridChunk{
		{ChunkID: "chk:1", SectionType: document.SectionDeclarations, Text: "Policy No: BP-4429871", PageNumbers: []int{1}},
		{ChunkID: "chk:2", SectionType: document.SectionExclusions, Text: "Earth movement is excluded.", PageNumbers: []int{4}},
		{ChunkID: "chk:3", Text: "   "}, // empty after trim, skipped
	}
	entities := []document.CanonicalEntity{
		{ID: "ent:1", Type: document.EntityPolicy, Name: "BP-4429871",
			Attributes: map[string]any{"carrier": "Travelers", "total_premium": "$12,000"}},
		{ID: "ent:2", Type: document.EntityOrganization, Name: ""},
	}

	stats, err := ix.IndexDocument(context.Background(), "doc:1", chunks, entities)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.ChunksIndexed)
	assert.Equal(t, 1, stats.EntitiesIndexed)
	assert.Equal(t, 2, stats.BatchesSent, "3 rows at batch size 2")
	assert.Equal(t, 2, embedder.calls)

	rows := store.all()
	require.Len(t, rows, 3)
	assert.Equal(t, "chk:1", rows[0].ChunkID)
	assert.Equal(t, document.SectionDeclarations, rows[0].SectionType)
	assert.Equal(t, []int{1}, rows[0].PageNumbers)
	assert.NotEmpty(t, rows[0].Embedding)

	entityRow := rows[2]
	assert.Equal(t, "ent:1", entityRow.CanonicalEntityID)
	assert.Equal(t, document.EntityPolicy, entityRow.EntityType)
	assert.Contains(t, entityRow.Content, "BP-4429871")
	assert.Contains(t, entityRow.Content, "carrier: Travelers")
}

func TestIndexDocumentEmbedderFailure(t *testing.T) {
	embedder := &fakeEmbedder{err: fmt.Errorf("endpoint down")}
	store := &captureStore{}
	ix := NewIndexer(embedder, store)

	stats, err := ix.IndexDocument(context.Background(), "doc:1",
		[]document.HybridChunk{{ChunkID: "chk:1", Text: "text"}}, nil)
	require.Error(t, err)
	assert.Zero(t, stats.BatchesSent)
	assert.Empty(t, store.saved)
}

func TestIndexDocumentNothingToIndex(t *testing.T) {
	embedder := &fakeEmbedder{}
	ix := NewIndexer(embedder, &captureStore{})

	stats, err := ix.IndexDocument(context.Background(), "doc:1", nil, nil)
	require.NoError(t, err)
	assert.Zero(t, stats.ChunksIndexed)
	assert.Zero(t, embedder.calls)
}
