package document

import (
	"encoding/json"
	"time"
)

// EntityType is the closed set of domain entity types the pipeline emits.
type EntityType string

const (
	EntityPolicy       EntityType = "Policy"
	EntityOrganization EntityType = "Organization"
	EntityCoverage     EntityType = "Coverage"
	EntityCondition    EntityType = "Condition"
	EntityExclusion    EntityType = "Exclusion"
	EntityEndorsement  EntityType = "Endorsement"
	EntityLocation     EntityType = "Location"
	EntityClaim        EntityType = "Claim"
	EntityDefinition   EntityType = "Definition"
	EntityForm         EntityType = "Form"
	EntityVehicle      EntityType = "Vehicle"
	EntityDriver       EntityType = "Driver"
)

// MentionSource records whether an entity mention came from the LLM or the
// deterministic parser.
type MentionSource string

const (
	MentionSourceLLM           MentionSource = "llm"
	MentionSourceDeterministic MentionSource = "deterministic"
)

// EntityMention is a single reference to a domain entity inside a chunk.
// Transient: mentions are aggregated into canonical entities during ENRICHED.
type EntityMention struct {
	Type            EntityType     `json:"type"`
	RawText         string         `json:"raw_text"`
	NormalizedValue string         `json:"normalized_value"`
	Confidence      float64        `json:"confidence"`
	SpanStart       int            `json:"span_start,omitempty"`
	SpanEnd         int            `json:"span_end,omitempty"`
	ChunkID         string         `json:"chunk_id"`
	Source          MentionSource  `json:"source"`
	Attributes      map[string]any `json:"attributes,omitempty"`
}

// SourceChunks records which chunks an extraction was computed from.
type SourceChunks struct {
	ChunkIDs  []string `json:"chunk_ids"`
	PageStart int      `json:"page_start"`
	PageEnd   int      `json:"page_end"`
}

// SectionExtraction is the persisted result of one section extractor run.
type SectionExtraction struct {
	ID           string          `json:"id" db:"id"`
	DocumentID   string          `json:"document_id" db:"document_id"`
	SectionType  SectionType     `json:"section_type" db:"section_type"`
	Fields       json.RawMessage `json:"fields" db:"fields"`
	Entities     []DomainEntity  `json:"entities"`
	Confidence   float64         `json:"confidence" db:"confidence"`
	SourceChunks SourceChunks    `json:"source_chunks"`
	ModelVersion string          `json:"model_version,omitempty" db:"model_version"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// DomainEntity is a typed entity synthesized from a section extraction,
// identified within the document by a slug.
type DomainEntity struct {
	Type       EntityType     `json:"type"`
	LocalID    string         `json:"local_id"`
	Name       string         `json:"name"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Confidence float64        `json:"confidence"`
	ChunkIDs   []string       `json:"chunk_ids,omitempty"`
}

// LocalEntityID mints the within-document identifier for an entity:
// a type prefix plus the slugified name.
func LocalEntityID(t EntityType, name string) string {
	return string(t) + ":" + Slugify(name)
}
