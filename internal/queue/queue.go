package queue

import (
	"context"
	"time"
)

// Message is a single queued payload. Receipt identifies the in-flight
// copy of the message and is required to delete it after processing.
type Message struct {
	ID      string `json:"id"`
	Queue   string `json:"-"`
	Body    []byte `json:"body"`
	Receipt string `json:"-"`
}

// Queue is the notification queue interface. Implementations must be
// safe for concurrent use. Dequeued messages stay invisible to other
// consumers until the visibility timeout elapses; messages that are
// never deleted reappear after that.
type Queue interface {
	Enqueue(ctx context.Context, queue string, body []byte) error
	DequeueBatch(ctx context.Context, queue string, max int, visibility time.Duration) ([]Message, error)
	Delete(ctx context.Context, msg Message) error
	Length(ctx context.Context, queue string) (int64, error)
	Ping(ctx context.Context) error
}
