// Package pipeline drives the four document processing stages with durable
// completion markers, bounded retries, heartbeats, and typed events.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360studio/semstreams/natsclient"

	"github.com/c360studio/policypipe/document"
)

// EventSubjectPrefix is the stream subject prefix for pipeline events. The
// event type is appended: pipeline.event.stage_completed, and so on.
const EventSubjectPrefix = "pipeline.event."

// EventType classifies a pipeline event.
type EventType string

const (
	EventStageStarted   EventType = "stage_started"
	EventStageCompleted EventType = "stage_completed"
	EventStageFailed    EventType = "stage_failed"
	EventRunCompleted   EventType = "run_completed"
	EventRunFailed      EventType = "run_failed"
)

// Event is one pipeline lifecycle notification.
type Event struct {
	Type       EventType      `json:"type"`
	WorkflowID string         `json:"workflow_id"`
	DocumentID string         `json:"document_id"`
	Stage      document.Stage `json:"stage,omitempty"`
	Attempt    int            `json:"attempt,omitempty"`
	Error      string         `json:"error,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// EventPublisher emits pipeline events. Publishing failures must never fail
// the pipeline; implementations log and move on.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event Event)
}

// NATSEventPublisher publishes events to the pipeline event stream.
type NATSEventPublisher struct {
	nc *natsclient.Client
}

// NewNATSEventPublisher creates the publisher. A nil client degrades to a
// no-op so the engine can run without messaging.
func NewNATSEventPublisher(nc *natsclient.Client) *NATSEventPublisher {
	return &NATSEventPublisher{nc: nc}
}

// PublishEvent publishes one event. Errors are swallowed: events are
// advisory, the stage markers in Postgres are the source of truth.
func (p *NATSEventPublisher) PublishEvent(ctx context.Context, event Event) {
	if p.nc == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	subject := fmt.Sprintf("%s%s", EventSubjectPrefix, event.Type)
	_ = p.nc.PublishToStream(ctx, subject, data)
}

// NopEventPublisher drops all events.
type NopEventPublisher struct{}

func (NopEventPublisher) PublishEvent(context.Context, Event) {}
