package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EnqueueRequest asks for a task to be created without the producer
// depending on the queue store directly. It carries everything the
// enqueue path needs; task-level retry options stay with the consumer
// that owns the handler.
type EnqueueRequest struct {
	// ID uniquely identifies this request.
	ID uuid.UUID `json:"id"`

	// Queue and Handler select the target queue and registered handler.
	Queue   string `json:"queue"`
	Handler string `json:"handler"`

	// Payload is the task payload, serialized as JSON.
	Payload json.RawMessage `json:"payload"`

	// TenantID scopes execution to a tenant.
	TenantID string `json:"tenant_id,omitempty"`

	// Delay postpones first eligibility.
	Delay time.Duration `json:"delay,omitempty"`

	// Tags carry observability metadata onto the task.
	Tags []string `json:"tags,omitempty"`

	// CreatedAt is when the request was emitted.
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the request payload into v.
func (r *EnqueueRequest) UnmarshalPayload(v any) error {
	return json.Unmarshal(r.Payload, v)
}

// NewEnqueueRequest builds an EnqueueRequest with a serialized payload.
func NewEnqueueRequest(queue, handler string, payload any) (*EnqueueRequest, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &EnqueueRequest{
		ID:        uuid.New(),
		Queue:     queue,
		Handler:   handler,
		Payload:   raw,
		CreatedAt: time.Now(),
	}, nil
}

// Handler processes emitted enqueue requests.
type Handler interface {
	HandleEnqueue(ctx context.Context, req *EnqueueRequest) error
}

// Emitter publishes enqueue requests to registered handlers, letting
// producers create tasks without direct knowledge of the store.
type Emitter interface {
	Emit(ctx context.Context, req *EnqueueRequest) error
}
