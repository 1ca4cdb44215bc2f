// Package queue pushes jobs to Redis lists: share notifications for the mail microservice and
// blob cleanup retries for cmd/worker.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultMailQueue is the Redis list read by the mail microservice.
	DefaultMailQueue = "worker:emails"
	// QueueBlobCleanup holds media blobs whose deletion failed during a request.
	QueueBlobCleanup = "worker:blob_cleanup"
	// QueueDLQ is the dead-letter queue for cleanup jobs that kept failing.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of attempts before a job moves to the DLQ.
	MaxRetries = 5
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypePermissionShared JobType = "permission_shared"
	JobTypeBlobCleanup      JobType = "blob_cleanup"
)

// PermissionSharedPayload tells a user they may now edit an event.
type PermissionSharedPayload struct {
	EventID        uuid.UUID  `json:"event_id"`
	EventTitle     string     `json:"event_title"`
	RecipientID    uuid.UUID  `json:"recipient_id"`
	RecipientEmail string     `json:"recipient_email"`
	RecipientName  string     `json:"recipient_name"`
	GrantedByName  string     `json:"granted_by_name"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

// BlobCleanupPayload names a stored media file that must be deleted.
type BlobCleanupPayload struct {
	EventID uuid.UUID `json:"event_id"`
	URL     string    `json:"url"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues jobs via Redis.
type Queue struct {
	client   redis.Cmdable
	mailList string
	logger   *zap.Logger
}

// NewQueue creates a Redis-backed job queue. An empty mailList uses DefaultMailQueue.
func NewQueue(client redis.Cmdable, mailList string, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mailList == "" {
		mailList = DefaultMailQueue
	}
	return &Queue{client: client, mailList: mailList, logger: logger}
}

// EnqueuePermissionShared pushes a share notification for the mail service.
func (q *Queue) EnqueuePermissionShared(ctx context.Context, payload PermissionSharedPayload) error {
	job, err := q.push(ctx, q.mailList, JobTypePermissionShared, payload)
	if err != nil {
		return err
	}
	q.logger.Debug("enqueued share notification",
		zap.String("job_id", job.ID),
		zap.String("event_id", payload.EventID.String()),
		zap.String("recipient_id", payload.RecipientID.String()),
	)
	return nil
}

// EnqueueBlobCleanup schedules a blob deletion retry.
func (q *Queue) EnqueueBlobCleanup(ctx context.Context, payload BlobCleanupPayload) error {
	job, err := q.push(ctx, QueueBlobCleanup, JobTypeBlobCleanup, payload)
	if err != nil {
		return err
	}
	q.logger.Info("enqueued blob cleanup", zap.String("job_id", job.ID), zap.String("url", payload.URL))
	return nil
}

// Dequeue waits up to timeout for a cleanup job. It returns nil, nil when the wait times out or
// the entry is unreadable.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, QueueBlobCleanup).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry re-enqueues a cleanup job with an incremented attempt, or moves it to the DLQ once it
// reaches MaxRetries.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	list := QueueBlobCleanup
	if job.Attempt >= MaxRetries {
		list = QueueDLQ
	}
	if err := q.client.RPush(ctx, list, raw).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", list, err)
	}
	if list == QueueDLQ {
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	}
	return nil
}

func (q *Queue) push(ctx context.Context, list string, typ JobType, payload any) (Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      typ,
		Payload:   body,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return Job{}, fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, list, raw).Err(); err != nil {
		return Job{}, fmt.Errorf("rpush: %w", err)
	}
	return job, nil
}
