// Package mock provides an in-memory Queue for unit tests.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/forensiq/forensiq/internal/queue"
)

// Queue is a thread-safe in-memory implementation of queue.Queue.
// Visibility timeouts are not simulated: dequeued messages simply
// leave the list and deleted messages are recorded for assertions.
type Queue struct {
	mu      sync.Mutex
	lists   map[string][][]byte
	next    int
	Deleted []queue.Message

	// FailDequeue makes DequeueBatch fail, for transient-error tests.
	FailDequeue error
}

func NewQueue() *Queue {
	return &Queue{lists: map[string][][]byte{}}
}

func (q *Queue) Ping(context.Context) error { return nil }

func (q *Queue) Enqueue(_ context.Context, name string, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lists[name] = append(q.lists[name], body)
	return nil
}

func (q *Queue) DequeueBatch(_ context.Context, name string, max int, _ time.Duration) ([]queue.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.FailDequeue != nil {
		return nil, q.FailDequeue
	}
	var msgs []queue.Message
	for len(msgs) < max && len(q.lists[name]) > 0 {
		body := q.lists[name][0]
		q.lists[name] = q.lists[name][1:]
		q.next++
		msgs = append(msgs, queue.Message{
			ID:      fmt.Sprintf("msg-%d", q.next),
			Queue:   name,
			Body:    body,
			Receipt: fmt.Sprintf("receipt-%d", q.next),
		})
	}
	return msgs, nil
}

func (q *Queue) Delete(_ context.Context, msg queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.Deleted = append(q.Deleted, msg)
	return nil
}

func (q *Queue) Length(_ context.Context, name string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.lists[name])), nil
}

// Bodies returns the queued payloads for a queue, in order.
func (q *Queue) Bodies(name string) [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([][]byte(nil), q.lists[name]...)
}
