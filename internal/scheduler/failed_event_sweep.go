package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// FailedReplayer republishes outbox events that exhausted their retries.
type FailedReplayer interface {
	ReplayFailedEvents(ctx context.Context, limit int) (int, error)
}

// FailedEventSweep periodically replays failed outbox events so a broker
// outage longer than the retry budget does not need a manual replay.
type FailedEventSweep struct {
	replayer FailedReplayer
	interval time.Duration
	limit    int
	logger   *zap.Logger
}

func NewFailedEventSweep(replayer FailedReplayer, interval time.Duration, limit int, logger *zap.Logger) *FailedEventSweep {
	return &FailedEventSweep{replayer: replayer, interval: interval, limit: limit, logger: logger}
}

func (j *FailedEventSweep) Name() string {
	return "outbox_failed_event_sweep"
}

func (j *FailedEventSweep) Schedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

func (j *FailedEventSweep) Run(ctx context.Context) {
	replayed, err := j.replayer.ReplayFailedEvents(ctx, j.limit)
	if err != nil {
		j.logger.Error("Failed event sweep failed", zap.Error(err))
		return
	}
	if replayed > 0 {
		j.logger.Info("Failed event sweep replayed events",
			zap.Int("replayed", replayed),
			zap.Int("limit", j.limit),
		)
	}
}
