package message_broaker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/RezaEskandarii/jobfire/types"
	"github.com/cockroachdb/errors"
)

// ExecutionEvent is published once per finished execution so the
// notification layer can react to failures without polling the store.
type ExecutionEvent struct {
	ExecutionID       string    `json:"execution_id"`
	JobID             string    `json:"job_id"`
	JobName           string    `json:"job_name"`
	JobType           string    `json:"job_type"`
	OrganizationID    string    `json:"organization_id"`
	ParentExecutionID *string   `json:"parent_execution_id,omitempty"`
	Attempt           int       `json:"attempt"`
	Status            string    `json:"status"`
	TriggerSource     string    `json:"trigger_source"`
	StartedAt         time.Time `json:"started_at"`
	CompletedAt       time.Time `json:"completed_at"`
	DurationMs        int64     `json:"duration_ms"`
	Error             string    `json:"error,omitempty"`
}

func NewExecutionEvent(job *types.Job, exec *types.Execution) ExecutionEvent {
	ev := ExecutionEvent{
		ExecutionID:       exec.ID,
		JobID:             job.ID,
		JobName:           job.Name,
		JobType:           job.Type,
		OrganizationID:    job.OrganizationID,
		ParentExecutionID: exec.ParentExecutionID,
		Attempt:           exec.Attempt,
		Status:            exec.Status.String(),
		TriggerSource:     string(exec.TriggerSource),
		StartedAt:         exec.StartedAt,
		DurationMs:        exec.Duration().Milliseconds(),
		Error:             exec.Error,
	}
	if exec.CompletedAt != nil {
		ev.CompletedAt = *exec.CompletedAt
	}
	return ev
}

// ExecutionPublisher serializes execution events onto a MessageBroker.
type ExecutionPublisher struct {
	broker     MessageBroker
	routingKey string
}

func NewExecutionPublisher(broker MessageBroker, routingKey string) *ExecutionPublisher {
	return &ExecutionPublisher{broker: broker, routingKey: routingKey}
}

func (p *ExecutionPublisher) Publish(ctx context.Context, ev ExecutionEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal execution event")
	}
	return p.broker.Publish(ctx, p.routingKey, body)
}

// DecodeExecutionEvent is the inverse of Publish for consumers.
func DecodeExecutionEvent(body []byte) (ExecutionEvent, error) {
	var ev ExecutionEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, errors.Wrap(err, "decode execution event")
	}
	return ev, nil
}
