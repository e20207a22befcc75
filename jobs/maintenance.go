package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/pinboard/pinboard/internal/jobs"
)

const (
	// TaskSessionPurge removes expired login sessions.
	TaskSessionPurge = "sessions:purge"
	// TaskIdempotencyCleanup drops stale Idempotency-Key claims.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// DefaultIdempotencyRetention keeps claimed keys for a day.
const DefaultIdempotencyRetention = 24 * time.Hour

// SessionPurger deletes expired sessions and reports how many were removed.
type SessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// IdempotencyCleaner drops keys older than a retention window.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencyCleanupPayload configures a cleanup run.
type IdempotencyCleanupPayload struct {
	RetentionSeconds int64 `json:"retention_seconds"`
}

// NewSessionPurgeTask builds the purge task.
func NewSessionPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskSessionPurge, nil, asynq.Queue(QueueDefault))
}

// NewIdempotencyCleanupTask builds the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	if retention <= 0 {
		retention = DefaultIdempotencyRetention
	}
	body, err := json.Marshal(IdempotencyCleanupPayload{RetentionSeconds: int64(retention / time.Second)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// MaintenanceJob runs the periodic housekeeping tasks.
type MaintenanceJob struct {
	sessions    SessionPurger
	idempotency IdempotencyCleaner
	logger      *slog.Logger
	metrics     *jobmetrics.Metrics
}

// NewMaintenanceJob constructs the handlers.
func NewMaintenanceJob(sessions SessionPurger, idempotency IdempotencyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *MaintenanceJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &MaintenanceJob{sessions: sessions, idempotency: idempotency, logger: logger, metrics: metrics}
}

// HandleSessionPurge processes TaskSessionPurge.
func (j *MaintenanceJob) HandleSessionPurge(ctx context.Context, _ *asynq.Task) error {
	tracker := j.metrics.Track(TaskSessionPurge)
	if j.sessions == nil {
		return tracker.End(nil)
	}
	removed, err := j.sessions.PurgeExpired(ctx)
	if err != nil {
		return tracker.End(err)
	}
	j.logger.Info("sessions purged", slog.Int64("removed", removed))
	return tracker.End(nil)
}

// HandleIdempotencyCleanup processes TaskIdempotencyCleanup.
func (j *MaintenanceJob) HandleIdempotencyCleanup(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track(TaskIdempotencyCleanup)
	if j.idempotency == nil {
		return tracker.End(nil)
	}
	retention := DefaultIdempotencyRetention
	if len(t.Payload()) > 0 {
		var payload IdempotencyCleanupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return tracker.End(asynq.SkipRetry)
		}
		if payload.RetentionSeconds > 0 {
			retention = time.Duration(payload.RetentionSeconds) * time.Second
		}
	}
	if err := j.idempotency.Cleanup(ctx, retention); err != nil {
		return tracker.End(err)
	}
	j.logger.Info("idempotency keys cleaned", slog.Duration("retention", retention))
	return tracker.End(nil)
}
