// Package renderqueue carries render jobs from the document engine to the
// external PDF worker. The engine only enqueues; the worker consumes, renders,
// and writes the terminal document status back through the store.
package renderqueue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Job identifies one document to render. The worker re-reads the payload
// from the store; the job itself carries only references.
type Job struct {
	DocumentID    uuid.UUID `json:"document_id"`
	TenantID      string    `json:"tenant_id"`
	CorrelationID string    `json:"correlation_id"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// Queue is the render-job transport.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Dequeue blocks up to timeout for the next job. A zero Job with
	// ok=false means the wait timed out.
	Dequeue(ctx context.Context, timeout time.Duration) (Job, bool, error)
}
