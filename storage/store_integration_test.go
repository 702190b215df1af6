//go:build integration

package storage

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/policypipe/config"
	"github.com/c360studio/policypipe/document"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("POLICYPIPE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POLICYPIPE_TEST_POSTGRES_DSN not set")
	}

	store, err := New(context.Background(), config.PostgresConfig{DSN: dsn, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestDocumentLifecycle(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	doc := &document.Document{
		ID:       document.NewDocumentID(),
		Name:     "acme-policy.pdf",
		FilePath: "/inbox/acme-policy.pdf",
		MimeType: "application/pdf",
		Status:   document.StatusPending,
	}
	require.NoError(t, store.CreateDocument(ctx, doc))

	got, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme-policy.pdf", got.Name)

	require.NoError(t, store.UpdateDocumentStatus(ctx, doc.ID, document.StatusProcessing))
	require.NoError(t, store.UpdateDocumentPageCount(ctx, doc.ID, 12))

	got, err = store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusProcessing, got.Status)
	assert.Equal(t, 12, got.PageCount)

	_, err = store.GetDocument(ctx, "doc:missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplacePagesIsAtomic(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	doc := &document.Document{
		ID:       document.NewDocumentID(),
		Name:     "pages.pdf",
		FilePath: "/inbox/pages.pdf",
	}
	require.NoError(t, store.CreateDocument(ctx, doc))

	first := []document.Page{
		{DocumentID: doc.ID, PageNumber: 1, Text: "old page one"},
		{DocumentID: doc.ID, PageNumber: 2, Text: "old page two"},
		{DocumentID: doc.ID, PageNumber: 3, Text: "old page three"},
	}
	require.NoError(t, store.ReplacePages(ctx, doc.ID, first))

	// Re-extraction with fewer pages must not leave stale rows behind.
	second := []document.Page{
		{DocumentID: doc.ID, PageNumber: 1, Text: "new page one", Metadata: document.PageMetadata{HasTables: true}},
	}
	require.NoError(t, store.ReplacePages(ctx, doc.ID, second))

	pages, err := store.GetPages(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "new page one", pages[0].Text)
	assert.True(t, pages[0].Metadata.HasTables)
}

func TestStageRunTransitions(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	doc := &document.Document{
		ID:       document.NewDocumentID(),
		Name:     "stages.pdf",
		FilePath: "/inbox/stages.pdf",
	}
	require.NoError(t, store.CreateDocument(ctx, doc))

	wf := NewWorkflowID()
	stage := document.StageExtracted

	require.NoError(t, store.BeginStage(ctx, wf, doc.ID, stage))

	// Completing and then restarting a completed stage must fail.
	require.NoError(t, store.CompleteStage(ctx, wf, doc.ID, stage, []byte(`{"pages":3}`)))
	assert.ErrorIs(t, store.BeginStage(ctx, wf, doc.ID, stage), ErrInvalidTransition)

	done, err := store.StageCompleted(ctx, wf, doc.ID, stage)
	require.NoError(t, err)
	assert.True(t, done)

	// Fail then retry on a fresh stage.
	next := document.StageEnriched
	require.NoError(t, store.BeginStage(ctx, wf, doc.ID, next))
	require.NoError(t, store.FailStage(ctx, wf, doc.ID, next, "llm timeout"))
	require.NoError(t, store.BeginStage(ctx, wf, doc.ID, next), "failed stages must allow retry")

	done, err = store.StageCompleted(ctx, wf, doc.ID, next)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestCanonicalEntityResolution(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	doc := &document.Document{
		ID:       document.NewDocumentID(),
		Name:     "entities.pdf",
		FilePath: "/inbox/entities.pdf",
	}
	require.NoError(t, store.CreateDocument(ctx, doc))

	wf := NewWorkflowID()
	attrs := map[string]any{"policy_number": "BP-4429871"}
	entity := &document.CanonicalEntity{
		Type:        document.EntityPolicy,
		Name:        "Acme BOP Policy",
		Fingerprint: document.Fingerprint(document.EntityPolicy, "Acme BOP Policy", attrs),
		Attributes:  attrs,
		Confidence:  0.9,
		WorkflowID:  wf,
	}
	require.NoError(t, store.CreateEntity(ctx, entity))

	found, err := store.GetEntityByFingerprint(ctx, entity.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, entity.ID, found.ID)
	assert.Equal(t, "BP-4429871", found.Attributes["policy_number"])

	_, err = store.GetEntityByFingerprint(ctx, "no-such-fingerprint")
	assert.ErrorIs(t, err, ErrNotFound)

	org := &document.CanonicalEntity{
		Type:        document.EntityOrganization,
		Name:        "Acme Logistics LLC",
		Fingerprint: document.Fingerprint(document.EntityOrganization, "Acme Logistics LLC", nil),
		Confidence:  0.85,
		WorkflowID:  wf,
	}
	require.NoError(t, store.CreateEntity(ctx, org))

	rel := &document.Relationship{
		SourceID:   entity.ID,
		TargetID:   org.ID,
		Type:       document.RelHasInsured,
		Confidence: 0.9,
		WorkflowID: wf,
	}
	require.NoError(t, store.CreateRelationship(ctx, rel))
	// Idempotent on re-extraction.
	require.NoError(t, store.CreateRelationship(ctx, rel))

	rels, err := store.ListRelationships(ctx, entity.ID)
	require.NoError(t, err)
	assert.Len(t, rels, 1)

	// Saga rollback path: relationships by workflow, then entities.
	require.NoError(t, store.DeleteRelationshipsByWorkflow(ctx, wf))
	require.NoError(t, store.DeleteEntity(ctx, org.ID))
	require.NoError(t, store.DeleteEntity(ctx, entity.ID))

	_, err = store.GetEntity(ctx, entity.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}
