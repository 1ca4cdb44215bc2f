package media

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/totem-events/backend/internal/apperr"
	"github.com/totem-events/backend/internal/clock"
	"github.com/totem-events/backend/internal/models"
	"github.com/totem-events/backend/internal/permissions"
	"github.com/totem-events/backend/pkg/metrics"
	"github.com/totem-events/backend/pkg/queue"
	"github.com/totem-events/backend/pkg/storage"
)

// maxConcurrentProbes bounds batch validation goroutines.
const maxConcurrentProbes = 4

// EventStore is the persistence the pipeline needs. Append and remove are atomic on the event row.
type EventStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	AppendMedia(ctx context.Context, eventID uuid.UUID, variant models.Variant, items []models.Media) (*models.Event, error)
	RemoveMedia(ctx context.Context, eventID uuid.UUID, variant models.Variant, item models.Media) (*models.Event, error)
}

// ChangeNotifier is told when an event's media changed.
type ChangeNotifier interface {
	EventChanged(ctx context.Context, eventID uuid.UUID)
}

// CleanupQueue takes blob deletions that failed inline.
type CleanupQueue interface {
	EnqueueBlobCleanup(ctx context.Context, payload queue.BlobCleanupPayload) error
}

// Pipeline ingests and removes event media.
type Pipeline struct {
	store     EventStore
	blobs     storage.BlobStore
	validator *Validator
	clock     clock.Clock
	notifier  ChangeNotifier
	retries   CleanupQueue
	logger    *zap.Logger
}

// NewPipeline wires the pipeline. notifier may be nil.
func NewPipeline(store EventStore, blobs storage.BlobStore, validator *Validator, clk clock.Clock, notifier ChangeNotifier, logger *zap.Logger) *Pipeline {
	if validator == nil {
		validator = NewValidator(nil)
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{store: store, blobs: blobs, validator: validator, clock: clk, notifier: notifier, logger: logger}
}

// SetCleanupQueue sets where failed blob deletions are sent for retry.
func (p *Pipeline) SetCleanupQueue(q CleanupQueue) { p.retries = q }

// Upload validates one file, stores it and appends its record to the event.
func (p *Pipeline) Upload(ctx context.Context, actor *models.Actor, eventID uuid.UUID, variant models.Variant, file FileDescriptor) (models.Media, error) {
	if err := p.authorize(ctx, actor, eventID); err != nil {
		return models.Media{}, err
	}
	vf, err := p.validator.Validate(ctx, file, variant)
	if err != nil {
		p.countOutcome(variant, err)
		return models.Media{}, err
	}

	item, err := p.write(ctx, eventID, vf)
	if err != nil {
		metrics.MediaUploads.WithLabelValues(string(variant), "error").Inc()
		return models.Media{}, err
	}
	if _, err := p.store.AppendMedia(ctx, eventID, variant, []models.Media{item}); err != nil {
		p.cleanup(ctx, eventID, item.URL)
		p.countOutcome(variant, err)
		return models.Media{}, err
	}

	metrics.MediaUploads.WithLabelValues(string(variant), "ok").Inc()
	p.logger.Info("media uploaded",
		zap.String("event_id", eventID.String()),
		zap.String("variant", string(variant)),
		zap.String("url", item.URL),
		zap.Float64("size_mb", item.SizeMB),
	)
	p.changed(ctx, eventID)
	return item, nil
}

// UploadBatch stores several files of one variant. Every file is validated before any blob is
// written; the first invalid file in request order fails the whole batch. Records are appended in
// a single update, and every blob written by the request is removed if a later step fails.
func (p *Pipeline) UploadBatch(ctx context.Context, actor *models.Actor, eventID uuid.UUID, variant models.Variant, files []FileDescriptor) ([]models.Media, error) {
	if len(files) == 0 {
		return nil, apperr.Validation("files", "at least one file is required")
	}
	if err := p.authorize(ctx, actor, eventID); err != nil {
		return nil, err
	}

	validated, err := p.validateAll(ctx, files, variant)
	if err != nil {
		p.countOutcome(variant, err)
		return nil, err
	}

	items := make([]models.Media, 0, len(validated))
	written := make([]string, 0, len(validated))
	for _, vf := range validated {
		item, err := p.write(ctx, eventID, vf)
		if err != nil {
			p.cleanup(ctx, eventID, written...)
			metrics.MediaUploads.WithLabelValues(string(variant), "error").Inc()
			return nil, err
		}
		items = append(items, item)
		written = append(written, item.URL)
	}

	if _, err := p.store.AppendMedia(ctx, eventID, variant, items); err != nil {
		p.cleanup(ctx, eventID, written...)
		p.countOutcome(variant, err)
		return nil, err
	}

	metrics.MediaUploads.WithLabelValues(string(variant), "ok").Add(float64(len(items)))
	p.logger.Info("media batch uploaded",
		zap.String("event_id", eventID.String()),
		zap.String("variant", string(variant)),
		zap.Int("count", len(items)),
	)
	p.changed(ctx, eventID)
	return items, nil
}

// Delete removes one media item from the event, then deletes its blob best-effort.
func (p *Pipeline) Delete(ctx context.Context, actor *models.Actor, eventID uuid.UUID, variant models.Variant, mediaID uuid.UUID) error {
	if _, err := PolicyFor(variant); err != nil {
		return err
	}
	event, err := p.store.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	if err := permissions.Require(event, actor, false, p.clock.Now()); err != nil {
		return err
	}
	item, ok := event.FindMedia(variant, mediaID)
	if !ok {
		return apperr.NotFound("media")
	}
	if event.Status == models.StatusActive && len(event.MediaOf(variant)) == 1 {
		return apperr.Validationf("variant", "active event must keep at least one %s item", variant)
	}

	if _, err := p.store.RemoveMedia(ctx, eventID, variant, item); err != nil {
		return err
	}

	deleted, err := p.blobs.Delete(ctx, item.URL)
	switch {
	case err != nil:
		p.logger.Warn("media blob delete failed",
			zap.String("event_id", eventID.String()),
			zap.String("url", item.URL),
			zap.Error(err),
		)
		p.retryLater(ctx, eventID, item.URL, err)
	case !deleted:
		p.logger.Warn("media blob already gone", zap.String("event_id", eventID.String()), zap.String("url", item.URL))
	}
	p.logger.Info("media deleted",
		zap.String("event_id", eventID.String()),
		zap.String("variant", string(variant)),
		zap.String("media_id", mediaID.String()),
	)
	p.changed(ctx, eventID)
	return nil
}

// RemoveAll deletes every blob of a removed event. Failures are logged.
func (p *Pipeline) RemoveAll(ctx context.Context, event *models.Event) {
	urls := make([]string, 0, len(event.AllMedia()))
	for _, m := range event.AllMedia() {
		urls = append(urls, m.URL)
	}
	p.cleanup(ctx, event.ID, urls...)
}

func (p *Pipeline) authorize(ctx context.Context, actor *models.Actor, eventID uuid.UUID) error {
	event, err := p.store.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	return permissions.Require(event, actor, false, p.clock.Now())
}

// validateAll runs validation concurrently and reports the failure of the lowest-indexed file.
func (p *Pipeline) validateAll(ctx context.Context, files []FileDescriptor, variant models.Variant) ([]ValidatedFile, error) {
	out := make([]ValidatedFile, len(files))
	errs := make([]error, len(files))

	var g errgroup.Group
	g.SetLimit(maxConcurrentProbes)
	for i, f := range files {
		g.Go(func() error {
			out[i], errs[i] = p.validator.Validate(ctx, f, variant)
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, annotate(err, i, files[i].Filename)
		}
	}
	return out, nil
}

func (p *Pipeline) write(ctx context.Context, eventID uuid.UUID, vf ValidatedFile) (models.Media, error) {
	id := uuid.New()
	blobPath := storage.MediaPath(eventID.String(), string(vf.Policy.Variant), id.String()+vf.Ext)
	blob, err := p.blobs.Write(ctx, blobPath, vf.ContentType, vf.File.Data)
	if err != nil {
		return models.Media{}, apperr.Internal("store media file", err)
	}
	return models.Media{
		ID:        id,
		Variant:   vf.Policy.Variant,
		URL:       blob.URL,
		SizeMB:    sizeMB(vf.File.Size()),
		Width:     vf.Width,
		Height:    vf.Height,
		CreatedAt: p.clock.Now(),
	}, nil
}

// cleanup deletes blobs written by a failed request. It never returns an error so the triggering
// error is the one reported.
func (p *Pipeline) cleanup(ctx context.Context, eventID uuid.UUID, urls ...string) {
	ctx = context.WithoutCancel(ctx)
	for _, url := range urls {
		deleted, err := p.blobs.Delete(ctx, url)
		switch {
		case err != nil:
			metrics.BlobCleanups.WithLabelValues("failed").Inc()
			p.logger.Error("blob cleanup failed",
				zap.String("event_id", eventID.String()),
				zap.String("url", url),
				zap.Error(err),
			)
			p.retryLater(ctx, eventID, url, err)
		case deleted:
			metrics.BlobCleanups.WithLabelValues("deleted").Inc()
		default:
			metrics.BlobCleanups.WithLabelValues("missing").Inc()
		}
	}
}

// retryLater hands a blob that could not be deleted to the cleanup worker. URLs the store does
// not own never succeed and are not queued.
func (p *Pipeline) retryLater(ctx context.Context, eventID uuid.UUID, url string, cause error) {
	if errors.Is(cause, storage.ErrOutsideStore) {
		metrics.BlobCleanups.WithLabelValues("foreign").Inc()
		p.logger.Warn("blob outside the store not retried", zap.String("event_id", eventID.String()), zap.String("url", url))
		return
	}
	if p.retries == nil {
		return
	}
	err := p.retries.EnqueueBlobCleanup(context.WithoutCancel(ctx), queue.BlobCleanupPayload{EventID: eventID, URL: url})
	if err != nil {
		p.logger.Error("blob cleanup not queued; file is orphaned",
			zap.String("event_id", eventID.String()),
			zap.String("url", url),
			zap.Error(err),
		)
		return
	}
	metrics.BlobCleanups.WithLabelValues("queued").Inc()
}

func (p *Pipeline) changed(ctx context.Context, eventID uuid.UUID) {
	if p.notifier != nil {
		p.notifier.EventChanged(ctx, eventID)
	}
}

func (p *Pipeline) countOutcome(variant models.Variant, err error) {
	outcome := "error"
	if apperr.Is(err, apperr.KindValidation) {
		outcome = "invalid"
	}
	metrics.MediaUploads.WithLabelValues(string(variant), outcome).Inc()
}

// annotate prefixes a per-file error with its position in the batch.
func annotate(err error, index int, filename string) error {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		return fmt.Errorf("files[%d] %s: %w", index, filename, err)
	}
	out := *ae
	if out.Kind == apperr.KindValidation {
		out.Field = fmt.Sprintf("files[%d]", index)
	}
	out.Message = fmt.Sprintf("%s: %s", filename, ae.Message)
	return &out
}

func sizeMB(size int64) float64 {
	return math.Round(float64(size)/megabyte*100) / 100
}
