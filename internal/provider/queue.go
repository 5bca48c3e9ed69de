package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/sungwon/mpmail/internal/metrics"
	"github.com/sungwon/mpmail/internal/msgstore"
	"github.com/sungwon/mpmail/internal/queue"
)

// Queue is the queue write path. Send turns the message into a queue.Job and
// stores it with exactly one Put; it never contacts a mail transport.
// Delivery happens later, after an external consumer drains the job.
type Queue struct {
	store msgstore.Store
}

// NewQueue creates a Queue provider writing into store.
func NewQueue(store msgstore.Store) *Queue {
	return &Queue{store: store}
}

func (q *Queue) GetName() string { return "queue" }

// Send persists the message and returns the job ID as the message ID.
func (q *Queue) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	job := queue.NewJob(queue.JobFields{
		To:       msg.To,
		Cc:       msg.Cc,
		Bcc:      msg.Bcc,
		Subject:  msg.Subject,
		Text:     msg.Text,
		HTML:     msg.HTML,
		From:     msg.From,
		FromName: msg.FromName,
	})
	if err := job.Validate(); err != nil {
		return nil, err
	}
	data, err := job.Encode()
	if err != nil {
		return nil, fmt.Errorf("queue: %w", err)
	}
	if err := q.store.Put(ctx, job.ID, data); err != nil {
		return nil, fmt.Errorf("queue: put %s: %w", job.ID, err)
	}
	metrics.QueueEnqueuedTotal.Inc()

	return &DeliveryResult{
		ProviderMessageID: job.ID,
		Status:            StatusQueued,
		Timestamp:         time.UnixMilli(job.CreatedAt),
	}, nil
}

// HealthCheck reports the health of the backing store.
func (q *Queue) HealthCheck(ctx context.Context) error {
	return q.store.HealthCheck(ctx)
}
