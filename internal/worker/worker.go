// Package worker retries media blob deletions that failed during a request.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/totem-events/backend/pkg/metrics"
	"github.com/totem-events/backend/pkg/queue"
	"github.com/totem-events/backend/pkg/storage"
)

// pollTimeout bounds each blocking dequeue so shutdown is noticed.
const pollTimeout = 5 * time.Second

// JobSource is the cleanup queue. *queue.Queue implements it.
type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// BlobCleanupProcessor deletes orphaned media blobs.
type BlobCleanupProcessor struct {
	blobs   storage.BlobStore
	source  JobSource
	backoff time.Duration
	logger  *zap.Logger
}

// NewBlobCleanupProcessor creates a cleanup processor.
func NewBlobCleanupProcessor(blobs storage.BlobStore, source JobSource, logger *zap.Logger) *BlobCleanupProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlobCleanupProcessor{blobs: blobs, source: source, backoff: queue.RetryBackoff, logger: logger}
}

// Process executes one cleanup job. A blob that is already gone counts as done.
func (p *BlobCleanupProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeBlobCleanup {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.BlobCleanupPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	deleted, err := p.blobs.Delete(ctx, payload.URL)
	if errors.Is(err, storage.ErrOutsideStore) {
		metrics.BlobCleanups.WithLabelValues("foreign").Inc()
		p.logger.Warn("blob outside the store dropped", zap.String("job_id", job.ID), zap.String("url", payload.URL))
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete %s: %w", payload.URL, err)
	}
	outcome := "deleted"
	if !deleted {
		outcome = "missing"
	}
	metrics.BlobCleanups.WithLabelValues(outcome).Inc()
	p.logger.Info("blob cleanup completed",
		zap.String("job_id", job.ID),
		zap.String("event_id", payload.EventID.String()),
		zap.String("url", payload.URL),
		zap.Bool("deleted", deleted),
	)
	return nil
}

// Run dequeues and processes jobs until ctx is done. Failed jobs are retried after a backoff.
func (p *BlobCleanupProcessor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			p.logger.Info("blob cleanup worker stopping")
			return
		}

		job, err := p.source.Dequeue(ctx, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		if err := p.Process(ctx, job); err != nil {
			metrics.BlobCleanups.WithLabelValues("failed").Inc()
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.source.Retry(context.WithoutCancel(ctx), job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.String("job_id", job.ID), zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *BlobCleanupProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
