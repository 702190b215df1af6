package document

import "time"

// StageStatus is the lifecycle of one (workflow, document, stage) run.
type StageStatus string

const (
	StageNotStarted StageStatus = "not_started"
	StageRunning    StageStatus = "running"
	StageCompleted  StageStatus = "completed"
	StageFailed     StageStatus = "failed"
)

// WorkflowStageRun is the stage completion marker: the source of truth for
// stage skipping (I7: at most one row per key; transitions are monotone
// except retries, which reset to running).
type WorkflowStageRun struct {
	WorkflowID string      `json:"workflow_id" db:"workflow_id"`
	DocumentID string      `json:"document_id" db:"document_id"`
	Stage      Stage       `json:"stage" db:"stage"`
	Status     StageStatus `json:"status" db:"status"`
	Summary    []byte      `json:"summary,omitempty" db:"summary"`
	Error      string      `json:"error,omitempty" db:"error"`
	StartedAt  time.Time   `json:"started_at" db:"started_at"`
	UpdatedAt  time.Time   `json:"updated_at" db:"updated_at"`
}

// CanTransition reports whether moving from the current status to next is a
// legal transition. Retry is the one allowed regression: failed -> running.
func (r *WorkflowStageRun) CanTransition(next StageStatus) bool {
	switch r.Status {
	case StageNotStarted:
		return next == StageRunning
	case StageRunning:
		return next == StageCompleted || next == StageFailed
	case StageFailed:
		return next == StageRunning
	case StageCompleted:
		return false
	}
	return false
}

// VectorEmbedding is a persisted embedding row with provenance.
type VectorEmbedding struct {
	ID                string      `json:"id" db:"id"`
	DocumentID        string      `json:"document_id" db:"document_id"`
	ChunkID           string      `json:"chunk_id,omitempty" db:"chunk_id"`
	CanonicalEntityID string      `json:"canonical_entity_id,omitempty" db:"canonical_entity_id"`
	SectionType       SectionType `json:"section_type,omitempty" db:"section_type"`
	EntityType        EntityType  `json:"entity_type,omitempty" db:"entity_type"`
	Content           string      `json:"content" db:"content"`
	PageNumbers       []int       `json:"page_numbers,omitempty"`
	Embedding         []float32   `json:"-"`
	CreatedAt         time.Time   `json:"created_at" db:"created_at"`
}
