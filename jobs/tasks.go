package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"

	"github.com/pinboard/pinboard/internal/images"
	jobmetrics "github.com/pinboard/pinboard/internal/jobs"
	"github.com/pinboard/pinboard/internal/pins"
	"github.com/pinboard/pinboard/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskImageFetch downloads a submitted image and stores the pin.
	TaskImageFetch = "image:fetch"
)

// NewImageFetchTask wraps a submission into an Asynq task.
func NewImageFetchTask(sub pins.Submission) (*asynq.Task, error) {
	if sub.SubmitterID <= 0 || sub.URL == "" {
		return nil, errors.New("jobs: image fetch requires submitter and url")
	}
	body, err := json.Marshal(sub)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskImageFetch, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// PinCreator stores a pin for a submission once its image is downloaded.
type PinCreator interface {
	CreateFromSubmission(ctx context.Context, sub pins.Submission) (pins.Pin, error)
}

// ImageFetchJob handles TaskImageFetch tasks.
type ImageFetchJob struct {
	pins    PinCreator
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewImageFetchJob constructs the handler.
func NewImageFetchJob(creator PinCreator, logger *slog.Logger, metrics *jobmetrics.Metrics) *ImageFetchJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageFetchJob{pins: creator, logger: logger, metrics: metrics}
}

// Handle processes a single submission.
func (j *ImageFetchJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track(TaskImageFetch)
	var sub pins.Submission
	if err := json.Unmarshal(t.Payload(), &sub); err != nil {
		j.metrics.ObserveImageFetch("skipped")
		return tracker.End(fmt.Errorf("%w: decode payload: %v", asynq.SkipRetry, err))
	}
	pin, err := j.pins.CreateFromSubmission(ctx, sub)
	if err != nil {
		j.metrics.ObserveImageFetch("failed")
		j.logger.Warn("image fetch", slog.String("url", sub.URL), slog.Int64("user_id", sub.SubmitterID), slog.Any("error", err))
		if permanent(err) {
			return tracker.End(fmt.Errorf("%w: %v", asynq.SkipRetry, err))
		}
		return tracker.End(err)
	}
	j.metrics.ObserveImageFetch("stored")
	j.logger.Info("image fetched", slog.Int64("pin_id", pin.ID), slog.Int64("image_id", pin.ImageID))
	return tracker.End(nil)
}

// permanent reports errors a retry cannot fix: client-side HTTP statuses from
// the origin and rejected submissions.
func permanent(err error) bool {
	var fetchErr *images.FetchError
	if errors.As(err, &fetchErr) && fetchErr.StatusCode >= 400 && fetchErr.StatusCode < 500 {
		return fetchErr.StatusCode != http.StatusTooManyRequests && fetchErr.StatusCode != http.StatusRequestTimeout
	}
	return errors.Is(err, shared.ErrNotFound) ||
		errors.Is(err, shared.ErrValidation) ||
		errors.Is(err, shared.ErrForbidden)
}
