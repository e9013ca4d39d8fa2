package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fanout/internal/transport"
	"fanout/pkg/models"
)

// memoryQueue is an in-process stand-in for SQS. Received records stay
// invisible until deleted or redelivered.
type memoryQueue struct {
	mu          sync.Mutex
	pending     []models.QueueRecord
	inflight    map[string]models.QueueRecord
	deleted     []string
	sent        []sentMessage
	receiveErrs []error
	resolveErr  error
	resolves    int
	receives    int
}

type sentMessage struct {
	body  string
	attrs map[string]string
	delay int32
}

func newMemoryQueue() *memoryQueue {
	return &memoryQueue{inflight: make(map[string]models.QueueRecord)}
}

func (q *memoryQueue) push(records ...models.QueueRecord) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, records...)
}

func (q *memoryQueue) failNextReceives(errs ...error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.receiveErrs = append(q.receiveErrs, errs...)
}

func (q *memoryQueue) ResolveQueueURL(_ context.Context, name string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resolves++
	if q.resolveErr != nil {
		return "", q.resolveErr
	}
	return "memory://" + name, nil
}

func (q *memoryQueue) Receive(ctx context.Context, _ string, opts transport.ReceiveOptions) ([]models.QueueRecord, error) {
	q.mu.Lock()
	q.receives++
	if len(q.receiveErrs) > 0 {
		err := q.receiveErrs[0]
		q.receiveErrs = q.receiveErrs[1:]
		q.mu.Unlock()
		return nil, err
	}

	n := int(opts.MaxMessages)
	if n > len(q.pending) {
		n = len(q.pending)
	}
	batch := append([]models.QueueRecord(nil), q.pending[:n]...)
	q.pending = q.pending[n:]
	for _, r := range batch {
		q.inflight[r.ReceiptHandle] = r
	}
	q.mu.Unlock()

	if len(batch) > 0 {
		return batch, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return nil, nil
	}
}

func (q *memoryQueue) Delete(_ context.Context, _ string, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.inflight[receiptHandle]; !ok {
		return fmt.Errorf("unknown receipt handle %s", receiptHandle)
	}
	delete(q.inflight, receiptHandle)
	q.deleted = append(q.deleted, receiptHandle)
	return nil
}

func (q *memoryQueue) Send(_ context.Context, _ string, body string, attrs map[string]string, delay int32) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = append(q.sent, sentMessage{body: body, attrs: attrs, delay: delay})
	return fmt.Sprintf("sent-%d", len(q.sent)), nil
}

func (q *memoryQueue) deletedHandles() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.deleted...)
}

func (q *memoryQueue) inflightCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}

func record(i int, event string, body string) models.QueueRecord {
	attrs := map[string]string{}
	if event != "" {
		attrs["fanout_event"] = event
	}
	return models.QueueRecord{
		MessageID:     fmt.Sprintf("msg-%d", i),
		ReceiptHandle: fmt.Sprintf("rcpt-%d", i),
		Body:          body,
		Attributes:    attrs,
	}
}
