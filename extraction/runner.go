package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/c360studio/policypipe/document"
	"github.com/c360studio/policypipe/llm"
)

// Store is the persistence surface the runner needs.
type Store interface {
	SaveSectionExtraction(ctx context.Context, ext *document.SectionExtraction) error
}

// Stats summarises one extraction run.
type Stats struct {
	SectionsExtracted int            `json:"sections_extracted"`
	SectionsFailed    int            `json:"sections_failed"`
	EntitiesEmitted   int            `json:"entities_emitted"`
	BackstopByType    map[string]int `json:"backstop_by_type,omitempty"`
	TokensUsed        int            `json:"tokens_used"`
}

// Runner drives section extraction for a document.
type Runner struct {
	client   llm.Client
	store    Store
	registry *Registry
	parser   *DeterministicParser
	logger   *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// NewRunner creates an extraction runner.
func NewRunner(client llm.Client, store Store, opts ...RunnerOption) *Runner {
	r := &Runner{
		client:   client,
		store:    store,
		registry: NewRegistry(),
		parser:   NewDeterministicParser(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run extracts every LLM-eligible super-chunk in priority order. A failing
// section yields an empty extraction with confidence 0; the run continues.
// Returns the persisted extractions and run stats.
func (r *Runner) Run(ctx context.Context, documentID string, superChunks []document.SectionSuperChunk) ([]document.SectionExtraction, *Stats, error) {
	eligible := make([]document.SectionSuperChunk, 0, len(superChunks))
	for _, sc := range superChunks {
		if sc.RequiresLLM {
			eligible = append(eligible, sc)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool { return eligible[i].Priority < eligible[j].Priority })

	stats := &Stats{BackstopByType: make(map[string]int)}
	var extractions []document.SectionExtraction

	for i := range eligible {
		sc := &eligible[i]
		ext, usage, err := r.extractSection(ctx, documentID, sc)
		if err != nil {
			r.logger.Warn("Section extraction failed",
				"document_id", documentID,
				"section", sc.SectionType,
				"error", err)
			stats.SectionsFailed++
			ext = emptyExtraction(documentID, sc)
		} else {
			stats.SectionsExtracted++
			stats.TokensUsed += usage
		}

		// Deterministic backstop: parsed mentions fill whatever the LLM
		// missed in this section's chunks.
		backstop := r.backstopEntities(sc, ext, stats)
		ext.Entities = append(ext.Entities, backstop...)
		stats.EntitiesEmitted += len(ext.Entities)

		if err := r.store.SaveSectionExtraction(ctx, ext); err != nil {
			return nil, nil, fmt.Errorf("persist %s extraction: %w", sc.SectionType, err)
		}
		extractions = append(extractions, *ext)
	}

	r.logger.Info("Section extraction complete",
		"document_id", documentID,
		"sections", stats.SectionsExtracted,
		"failed", stats.SectionsFailed,
		"entities", stats.EntitiesEmitted)

	return extractions, stats, nil
}

// extractSection invokes the section's extractor and synthesizes entities.
func (r *Runner) extractSection(ctx context.Context, documentID string, sc *document.SectionSuperChunk) (*document.SectionExtraction, int, error) {
	extractor := r.registry.For(sc.SectionType)

	resp, err := r.client.Complete(ctx, llm.Request{
		SystemInstruction: extractor.SystemInstruction(),
		Messages: []llm.Message{
			{Role: "user", Content: sc.Text()},
		},
		Config: llm.GenerationConfig{JSONMode: true},
	})
	if err != nil {
		return nil, 0, err
	}

	raw := llm.ExtractJSON(resp.Content)
	if raw == "" {
		return nil, 0, fmt.Errorf("no JSON object in %s response", sc.SectionType)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, 0, fmt.Errorf("decode %s fields: %w", sc.SectionType, err)
	}

	confidence := 0.8
	if c, ok := fields["confidence"].(float64); ok && c >= 0 && c <= 1 {
		confidence = c
	}
	delete(fields, "confidence")

	// Drop fields outside the section schema; the model sometimes
	// volunteers extras.
	if se, ok := extractor.(*sectionExtractor); ok {
		fields = filterFields(fields, se.KnownFields())
	}

	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, 0, fmt.Errorf("encode %s fields: %w", sc.SectionType, err)
	}

	pageStart, pageEnd := sc.PageRange()
	ext := &document.SectionExtraction{
		DocumentID:  documentID,
		SectionType: sc.SectionType,
		Fields:      fieldsJSON,
		Entities:    SynthesizeEntities(sc.SectionType, fields, confidence, sc.ChunkIDs()),
		Confidence:  confidence,
		SourceChunks: document.SourceChunks{
			ChunkIDs:  sc.ChunkIDs(),
			PageStart: pageStart,
			PageEnd:   pageEnd,
		},
		ModelVersion: resp.Model,
		CreatedAt:    time.Now(),
	}
	return ext, resp.Usage.TotalTokens, nil
}

// backstopEntities reconciles deterministic parser mentions against the
// LLM's entities and converts unmatched mentions into low-confidence
// entities.
func (r *Runner) backstopEntities(sc *document.SectionSuperChunk, ext *document.SectionExtraction, stats *Stats) []document.DomainEntity {
	var parsed []document.EntityMention
	for _, chunk := range sc.Chunks {
		parsed = append(parsed, r.parser.ParseMentions(&chunk)...)
	}
	if len(parsed) == 0 {
		return nil
	}

	merged := Reconcile(mentionsFromEntities(ext.Entities), parsed)

	var out []document.DomainEntity
	for _, m := range merged {
		if m.Source != document.MentionSourceDeterministic {
			continue
		}
		// Dates are attributes of the policy, not entities of their own.
		if _, isDate := m.Attributes["date"]; isDate {
			continue
		}
		stats.BackstopByType[string(m.Type)]++
		out = append(out, document.DomainEntity{
			Type:       m.Type,
			LocalID:    document.LocalEntityID(m.Type, m.NormalizedValue),
			Name:       m.NormalizedValue,
			Attributes: m.Attributes,
			Confidence: m.Confidence,
			ChunkIDs:   []string{m.ChunkID},
		})
	}
	return out
}

// emptyExtraction is the degraded result for a failed section.
func emptyExtraction(documentID string, sc *document.SectionSuperChunk) *document.SectionExtraction {
	pageStart, pageEnd := sc.PageRange()
	return &document.SectionExtraction{
		DocumentID:  documentID,
		SectionType: sc.SectionType,
		Fields:      json.RawMessage(`{}`),
		Confidence:  0,
		SourceChunks: document.SourceChunks{
			ChunkIDs:  sc.ChunkIDs(),
			PageStart: pageStart,
			PageEnd:   pageEnd,
		},
		CreatedAt: time.Now(),
	}
}

// filterFields keeps only schema-known fields.
func filterFields(fields map[string]any, known []string) map[string]any {
	allowed := make(map[string]bool, len(known))
	for _, k := range known {
		allowed[k] = true
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if allowed[k] {
			out[k] = v
		}
	}
	return out
}
