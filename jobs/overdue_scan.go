package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/locadora/console/internal/alerts"
	jobmetrics "github.com/locadora/console/internal/jobs"
	"github.com/locadora/console/internal/rental"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// FeedWarmer rebuilds the alerts feed so the console reads it from cache.
type FeedWarmer interface {
	Invalidate(ctx context.Context)
	Feed(ctx context.Context, now time.Time) (alerts.Feed, error)
}

// OverdueScanJob counts expired rentals and refreshes the alerts feed.
type OverdueScanJob struct {
	Source  alerts.OverdueSource
	Alerts  FeedWarmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewOverdueScanJob wires dependencies for the overdue scan handler. warmer may
// be nil.
func NewOverdueScanJob(source alerts.OverdueSource, warmer FeedWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueScanJob {
	return &OverdueScanJob{Source: source, Alerts: warmer, Logger: logger, Metrics: metrics, clock: time.Now}
}

// Handle executes the overdue scan.
func (j *OverdueScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil {
		return errors.New("overdue scan: handler not configured")
	}
	var payload OverdueScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskOverdueScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	now := j.now()
	logger := j.logger()
	rentals, err := j.Source.ListOverdueRentals(ctx)
	if err != nil {
		resultErr = err
		logger.Error("list overdue rentals", slog.Any("error", err))
		return resultErr
	}

	entries := rental.OverdueEntries(rentals, now)
	for _, e := range entries {
		logger.Warn("rental overdue",
			slog.Int64("rental_id", e.Rental.ID),
			slog.String("note_number", e.Rental.NoteNumber),
			slog.String("client", e.Rental.ClientName),
			slog.Int("days_overdue", e.DaysOverdue),
		)
	}
	j.metrics().ObserveScan(len(entries), -1)

	if j.Alerts != nil {
		j.Alerts.Invalidate(ctx)
		if _, err := j.Alerts.Feed(ctx, now); err != nil {
			logger.Warn("warm alerts feed", slog.Any("error", err))
		}
	}

	logger.Info("completed overdue scan",
		slog.Int("candidates", len(rentals)),
		slog.Int("overdue", len(entries)),
		slog.Duration("duration", time.Since(now)),
	)
	return resultErr
}

func (j *OverdueScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskOverdueScan))
	}
	return slog.Default().With(slog.String("job", TaskOverdueScan))
}

func (j *OverdueScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *OverdueScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now()
}
