// Package queue abstracts the message queues used by the scheduling
// workers. Production uses SQS; tests and single-process dev use the
// in-memory implementation.
package queue

import "context"

// Client sends and receives queue messages.
type Client interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Message is one received queue entry.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}
