package quickbook

import (
	"context"
	"fmt"

	"github.com/brightsmile/dental-scheduling/internal/queue"
	"github.com/brightsmile/dental-scheduling/pkg/logging"
)

// Publisher enqueues quick-book jobs for asynchronous processing.
type Publisher struct {
	queue  queue.Client
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(q queue.Client, logger *logging.Logger) *Publisher {
	if q == nil {
		panic("quickbook: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  q,
		logger: logger,
	}
}

// Enqueue publishes a job for the worker. jobID must match the record
// already written to the job store.
func (p *Publisher) Enqueue(ctx context.Context, jobID string, req Request) error {
	if ctx == nil {
		ctx = context.Background()
	}

	payload, body, err := encodePayload(queuePayload{
		ID:            jobID,
		PatientID:     req.PatientID,
		TreatmentType: req.TreatmentType,
		Notes:         req.Notes,
	})
	if err != nil {
		return err
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("quickbook: failed to enqueue job: %w", err)
	}

	p.logger.Debug("quick-book job enqueued", "job_id", payload.ID, "treatment", payload.TreatmentType)
	return nil
}
