package pipeline

// Stream and subject layout for the pipeline work queue.
const (
	// StreamName is the JetStream stream carrying pipeline messages.
	StreamName = "PIPELINE"

	// SubjectRunRequest receives external requests to process a document.
	SubjectRunRequest = "pipeline.run.request"

	// SubjectWorkDispatch carries accepted runs to the stage runner.
	SubjectWorkDispatch = "pipeline.work.dispatch"

	// SubjectStatusGet serves run status over core NATS request/reply.
	SubjectStatusGet = "pipeline.status.get"

	// SubjectStatusList serves the full run listing over request/reply.
	SubjectStatusList = "pipeline.status.list"
)

// RunRequest asks the pipeline to process a document.
type RunRequest struct {
	DocumentID string `json:"document_id"`
	Product    string `json:"product"`
}

// WorkDispatch is an accepted run handed to the stage runner. The run state
// already exists in the KV bucket when this message is published.
type WorkDispatch struct {
	WorkflowID string `json:"workflow_id"`
	DocumentID string `json:"document_id"`
	Product    string `json:"product"`
}

// StatusRequest queries one run by workflow ID.
type StatusRequest struct {
	WorkflowID string `json:"workflow_id"`
}

// StatusError is the reply payload for failed status lookups.
type StatusError struct {
	Error string `json:"error"`
}
