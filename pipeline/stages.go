package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/policypipe/canonical"
	"github.com/c360studio/policypipe/chunker"
	"github.com/c360studio/policypipe/document"
	"github.com/c360studio/policypipe/extraction"
	"github.com/c360studio/policypipe/graph"
	"github.com/c360studio/policypipe/indexing"
	"github.com/c360studio/policypipe/ocr"
	"github.com/c360studio/policypipe/pageanalysis"
	"github.com/c360studio/policypipe/storage"
	"github.com/c360studio/policypipe/synthesis"
	"github.com/c360studio/policypipe/tables"
)

// ProcessedSummary is the PROCESSED stage completion payload.
type ProcessedSummary struct {
	TotalPages     int     `json:"total_pages"`
	PagesProcessed int     `json:"pages_processed"`
	PagesSkipped   int     `json:"pages_skipped"`
	Chunks         int     `json:"chunks"`
	SuperChunks    int     `json:"super_chunks"`
	TablesFound    int     `json:"tables_found"`
	SOVItems       int     `json:"sov_items"`
	LossRunClaims  int     `json:"loss_run_claims"`
	TotalTokens    int     `json:"total_tokens"`
	DocumentType   string  `json:"document_type"`
	TypeConfidence float64 `json:"type_confidence"`
}

// ProcessedStage analyzes pages, runs selective OCR, extracts tables, and
// chunks the document.
type ProcessedStage struct {
	store   *storage.Store
	parser  ocr.Service
	chunker *chunker.Chunker
	tables  *tables.Processor
	logger  *slog.Logger
}

// NewProcessedStage creates the PROCESSED stage executor.
func NewProcessedStage(store *storage.Store, parser ocr.Service, ch *chunker.Chunker, tp *tables.Processor, logger *slog.Logger) *ProcessedStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessedStage{store: store, parser: parser, chunker: ch, tables: tp, logger: logger}
}

func (s *ProcessedStage) Stage() document.Stage { return document.StageProcessed }

func (s *ProcessedStage) Execute(ctx context.Context, req Request) (any, error) {
	doc, err := s.store.GetDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, Permanent(fmt.Errorf("load document: %w", err))
	}

	// Cheap per-page text for signal extraction; full OCR happens only for
	// the pages the manifest selects.
	pageTexts, err := ocr.ExtractPageTexts(doc.FilePath)
	if err != nil {
		return nil, Permanent(fmt.Errorf("read page texts from %s: %w", doc.FilePath, err))
	}

	manifest, _, err := pageanalysis.Analyze(req.DocumentID, pageTexts)
	if err != nil {
		return nil, Permanent(fmt.Errorf("page analysis: %w", err))
	}
	if err := s.store.SaveManifest(ctx, manifest); err != nil {
		return nil, fmt.Errorf("save manifest: %w", err)
	}
	if err := s.store.UpdateDocumentPageCount(ctx, req.DocumentID, manifest.TotalPages); err != nil {
		return nil, fmt.Errorf("update page count: %w", err)
	}

	summary := ProcessedSummary{
		TotalPages:     manifest.TotalPages,
		PagesProcessed: len(manifest.PagesToProcess),
		PagesSkipped:   len(manifest.PagesSkipped),
		DocumentType:   manifest.Profile.DocumentType,
		TypeConfidence: manifest.Profile.Confidence,
	}

	// Boilerplate-only documents complete with empty output.
	if len(manifest.PagesToProcess) == 0 {
		s.logger.Info("No pages selected for processing",
			"document_id", req.DocumentID, "total_pages", manifest.TotalPages)
		if err := s.store.UpdateDocumentStatus(ctx, req.DocumentID, document.StatusProcessed); err != nil {
			return nil, fmt.Errorf("update document status: %w", err)
		}
		return summary, nil
	}

	pages, err := s.parser.ExtractPages(ctx, doc.FilePath, req.DocumentID, manifest.PagesToProcess)
	if err != nil {
		return nil, fmt.Errorf("ocr extraction: %w", err)
	}
	ocr.EnrichPageMeta(doc.FilePath, pages, s.logger)
	if err := s.store.ReplacePages(ctx, req.DocumentID, pages); err != nil {
		return nil, fmt.Errorf("replace pages: %w", err)
	}

	tableStats, err := s.tables.Run(ctx, req.DocumentID, pages)
	if err != nil {
		return nil, fmt.Errorf("table extraction: %w", err)
	}
	summary.TablesFound = tableStats.TablesFound
	summary.SOVItems = tableStats.SOVItems
	summary.LossRunClaims = tableStats.LossRunClaims

	result, err := s.chunker.Chunk(req.DocumentID, pages, manifest.PageSectionMap)
	if err != nil {
		return nil, Permanent(fmt.Errorf("chunking: %w", err))
	}
	if err := s.store.ReplaceChunks(ctx, req.DocumentID, result.Chunks); err != nil {
		return nil, fmt.Errorf("replace chunks: %w", err)
	}
	summary.Chunks = len(result.Chunks)
	summary.SuperChunks = len(result.SuperChunks)
	summary.TotalTokens = result.TotalTokens

	if err := s.store.UpdateDocumentStatus(ctx, req.DocumentID, document.StatusProcessed); err != nil {
		return nil, fmt.Errorf("update document status: %w", err)
	}
	return summary, nil
}

// ExtractedSummary is the EXTRACTED stage completion payload.
type ExtractedSummary struct {
	Sections   int            `json:"sections"`
	Failed     int            `json:"failed"`
	Entities   int            `json:"entities"`
	Backstop   map[string]int `json:"backstop,omitempty"`
	TokensUsed int            `json:"tokens_used"`
}

// ExtractedStage runs the section extractors over the document's
// super-chunks. Chunking is deterministic, so the stage rebuilds
// super-chunks from the persisted pages and manifest rather than storing
// them.
type ExtractedStage struct {
	store   *storage.Store
	chunker *chunker.Chunker
	runner  *extraction.Runner
}

// NewExtractedStage creates the EXTRACTED stage executor.
func NewExtractedStage(store *storage.Store, ch *chunker.Chunker, runner *extraction.Runner) *ExtractedStage {
	return &ExtractedStage{store: store, chunker: ch, runner: runner}
}

func (s *ExtractedStage) Stage() document.Stage { return document.StageExtracted }

func (s *ExtractedStage) Execute(ctx context.Context, req Request) (any, error) {
	pages, err := s.store.GetPages(ctx, req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("load pages: %w", err)
	}
	manifest, err := s.store.GetManifest(ctx, req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}

	result, err := s.chunker.Chunk(req.DocumentID, pages, manifest.PageSectionMap)
	if err != nil {
		return nil, Permanent(fmt.Errorf("rebuild chunks: %w", err))
	}

	_, stats, err := s.runner.Run(ctx, req.DocumentID, result.SuperChunks)
	if err != nil {
		return nil, fmt.Errorf("section extraction: %w", err)
	}

	if err := s.store.UpdateDocumentStatus(ctx, req.DocumentID, document.StatusExtracted); err != nil {
		return nil, fmt.Errorf("update document status: %w", err)
	}
	return ExtractedSummary{
		Sections:   stats.SectionsExtracted,
		Failed:     stats.SectionsFailed,
		Entities:   stats.EntitiesEmitted,
		Backstop:   stats.BackstopByType,
		TokensUsed: stats.TokensUsed,
	}, nil
}

// EnrichedSummary is the ENRICHED stage completion payload.
type EnrichedSummary struct {
	Entities        int `json:"entities"`
	EntitiesCreated int `json:"entities_created"`
	Relationships   int `json:"relationships"`
}

// EnrichedStage resolves extracted entities into canonical identities,
// extracts relationships, and projects both into the graph. Failures roll
// back this run's canonical creations; the rollback runs to completion even
// when the workflow is being cancelled.
type EnrichedStage struct {
	store     *storage.Store
	resolver  *canonical.Resolver
	relations *canonical.RelationshipExtractor
	publisher *graph.Publisher
	logger    *slog.Logger
}

// NewEnrichedStage creates the ENRICHED stage executor.
func NewEnrichedStage(store *storage.Store, resolver *canonical.Resolver, relations *canonical.RelationshipExtractor, publisher *graph.Publisher, logger *slog.Logger) *EnrichedStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnrichedStage{store: store, resolver: resolver, relations: relations, publisher: publisher, logger: logger}
}

func (s *EnrichedStage) Stage() document.Stage { return document.StageEnriched }

func (s *EnrichedStage) Execute(ctx context.Context, req Request) (any, error) {
	extractions, err := s.store.GetSectionExtractions(ctx, req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("load extractions: %w", err)
	}

	aggregates := canonical.Aggregate(extractions)
	saga := &canonical.SagaLog{WorkflowID: req.WorkflowID}

	results, err := s.resolver.Resolve(ctx, req.WorkflowID, aggregates, saga)
	if err != nil {
		s.rollback(ctx, saga)
		return nil, fmt.Errorf("canonical resolution: %w", err)
	}

	entities := make([]document.CanonicalEntity, len(results))
	created := 0
	for i, r := range results {
		entities[i] = *r.Canonical
		if r.Created {
			created++
		}
	}

	relationships, err := s.relations.Extract(ctx, req.WorkflowID, entities, evidenceFromExtractions(extractions))
	if err != nil {
		s.rollback(ctx, saga)
		return nil, fmt.Errorf("relationship extraction: %w", err)
	}

	// Graph projection is best-effort: a missing graph backend must not
	// invalidate the enrichment.
	for i, r := range results {
		if err := s.publisher.PublishEntity(ctx, req.DocumentID, r.Canonical); err != nil {
			s.logger.Warn("Graph entity publish failed", "entity_id", r.Canonical.ID, "error", err)
			continue
		}
		if err := s.publisher.PublishEvidence(ctx, r.Canonical.ID, aggregates[i].ChunkIDs); err != nil {
			s.logger.Warn("Graph evidence publish failed", "entity_id", r.Canonical.ID, "error", err)
		}
	}
	if err := s.publisher.PublishRelationships(ctx, relationships); err != nil {
		s.logger.Warn("Graph relationship publish failed", "error", err)
	}

	if err := s.store.UpdateDocumentStatus(ctx, req.DocumentID, document.StatusEnriched); err != nil {
		return nil, fmt.Errorf("update document status: %w", err)
	}
	return EnrichedSummary{
		Entities:        len(entities),
		EntitiesCreated: created,
		Relationships:   len(relationships),
	}, nil
}

func (s *EnrichedStage) rollback(ctx context.Context, saga *canonical.SagaLog) {
	shielded := context.WithoutCancel(ctx)
	if err := s.resolver.Rollback(shielded, saga); err != nil {
		s.logger.Error("Canonical rollback failed",
			"workflow_id", saga.WorkflowID, "error", err)
	}
}

// evidenceFromExtractions builds the compact entity roster the relationship
// pass grounds on.
func evidenceFromExtractions(extractions []document.SectionExtraction) string {
	var b strings.Builder
	for _, ext := range extractions {
		for _, e := range ext.Entities {
			fmt.Fprintf(&b, "%s (%s) from %s section\n", e.Name, e.Type, ext.SectionType)
		}
	}
	const maxEvidence = 8000
	if b.Len() > maxEvidence {
		return b.String()[:maxEvidence]
	}
	return b.String()
}

// SummarizedSummary is the SUMMARIZED stage completion payload.
type SummarizedSummary struct {
	EffectiveCoverages  int     `json:"effective_coverages"`
	EffectiveExclusions int     `json:"effective_exclusions"`
	SynthesisMethod     string  `json:"synthesis_method,omitempty"`
	SynthesisConfidence float64 `json:"synthesis_confidence,omitempty"`
	FallbackRecommended bool    `json:"fallback_recommended,omitempty"`
	ChunksIndexed       int     `json:"chunks_indexed"`
	EntitiesIndexed     int     `json:"entities_indexed"`
}

// SummarizedStage synthesizes effective provisions and indexes the document
// for vector search.
type SummarizedStage struct {
	store     *storage.Store
	synthesis *synthesis.Engine
	indexer   *indexing.Indexer
	logger    *slog.Logger
}

// NewSummarizedStage creates the SUMMARIZED stage executor.
func NewSummarizedStage(store *storage.Store, engine *synthesis.Engine, indexer *indexing.Indexer, logger *slog.Logger) *SummarizedStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &SummarizedStage{store: store, synthesis: engine, indexer: indexer, logger: logger}
}

func (s *SummarizedStage) Stage() document.Stage { return document.StageSummarized }

func (s *SummarizedStage) Execute(ctx context.Context, req Request) (any, error) {
	summary := SummarizedSummary{}

	if !req.Config.SkipSynthesis {
		extractions, err := s.store.GetSectionExtractions(ctx, req.DocumentID)
		if err != nil {
			return nil, fmt.Errorf("load extractions: %w", err)
		}

		res := s.synthesis.Synthesize(ctx, synthesisInput(extractions))

		if err := s.store.ReplaceEffectiveProvisions(ctx, req.DocumentID, storage.KindCoverage, coverageProvisions(res.Coverages)); err != nil {
			return nil, fmt.Errorf("save effective coverages: %w", err)
		}
		if err := s.store.ReplaceEffectiveProvisions(ctx, req.DocumentID, storage.KindExclusion, exclusionProvisions(res.Exclusions)); err != nil {
			return nil, fmt.Errorf("save effective exclusions: %w", err)
		}

		summary.EffectiveCoverages = len(res.Coverages)
		summary.EffectiveExclusions = len(res.Exclusions)
		summary.SynthesisMethod = string(res.Method)
		summary.SynthesisConfidence = res.Confidence
		summary.FallbackRecommended = res.FallbackRecommended
	}

	chunks, err := s.store.GetChunks(ctx, req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	entities, err := s.store.ListEntitiesByWorkflow(ctx, req.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}

	stats, err := s.indexer.IndexDocument(ctx, req.DocumentID, chunks, entities)
	if err != nil {
		return nil, fmt.Errorf("indexing: %w", err)
	}
	summary.ChunksIndexed = stats.ChunksIndexed
	summary.EntitiesIndexed = stats.EntitiesIndexed

	if err := s.store.UpdateDocumentStatus(ctx, req.DocumentID, document.StatusSummarized); err != nil {
		return nil, fmt.Errorf("update document status: %w", err)
	}
	return summary, nil
}

// synthesisInput sorts the extracted entities into the roles the synthesis
// engine consumes.
func synthesisInput(extractions []document.SectionExtraction) synthesis.Input {
	var in synthesis.Input
	seenForms := make(map[string]bool)

	for _, ext := range extractions {
		for _, e := range ext.Entities {
			switch e.Type {
			case document.EntityEndorsement:
				in.Endorsements = append(in.Endorsements, e)
			case document.EntityCoverage:
				in.BaseCoverages = append(in.BaseCoverages, e)
			case document.EntityExclusion:
				in.BaseExclusions = append(in.BaseExclusions, e)
			case document.EntityForm:
				ref := e.Name
				if fn, ok := e.Attributes["form_number"].(string); ok && fn != "" {
					ref = fn
				}
				key := synthesis.NormalizeFormID(ref)
				if key != "" && !seenForms[key] {
					seenForms[key] = true
					in.FormReferences = append(in.FormReferences, ref)
				}
			}
		}
	}
	return in
}

func coverageProvisions(covs []document.EffectiveCoverage) []document.EffectiveProvision {
	out := make([]document.EffectiveProvision, len(covs))
	for i := range covs {
		out[i] = covs[i].EffectiveProvision
	}
	return out
}

func exclusionProvisions(excs []document.EffectiveExclusion) []document.EffectiveProvision {
	out := make([]document.EffectiveProvision, len(excs))
	for i := range excs {
		out[i] = excs[i].EffectiveProvision
	}
	return out
}

// StandardStages assembles the four production stage executors in
// dependency order.
func StandardStages(
	store *storage.Store,
	parser ocr.Service,
	ch *chunker.Chunker,
	tp *tables.Processor,
	runner *extraction.Runner,
	resolver *canonical.Resolver,
	relations *canonical.RelationshipExtractor,
	publisher *graph.Publisher,
	engine *synthesis.Engine,
	indexer *indexing.Indexer,
	logger *slog.Logger,
) []StageExecutor {
	return []StageExecutor{
		NewProcessedStage(store, parser, ch, tp, logger),
		NewExtractedStage(store, ch, runner),
		NewEnrichedStage(store, resolver, relations, publisher, logger),
		NewSummarizedStage(store, engine, indexer, logger),
	}
}
