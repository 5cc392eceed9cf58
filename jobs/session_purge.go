package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/tessera-pm/tessera/internal/jobs"
)

// SessionPurger deletes expired sessions and reports how many went away.
type SessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// NewSessionPurgeHandler builds the asynq handler for TaskSessionPurge.
func NewSessionPurgeHandler(purger SessionPurger, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskSessionPurge)
		purged, err := purger.PurgeExpired(ctx)
		if err != nil {
			logger.Error("session purge", slog.Any("error", err))
			return tracker.End(err)
		}
		metrics.AddPurgedSessions(purged)
		if purged > 0 {
			logger.Info("session purge", slog.Int64("purged", purged))
		}
		return tracker.End(nil)
	}
}
