package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/locadora/console/internal/alerts"
	"github.com/locadora/console/internal/inventory"
	jobmetrics "github.com/locadora/console/internal/jobs"
)

// LowStockScanJob reports inventory items at or below the threshold.
type LowStockScanJob struct {
	Source    alerts.StockSource
	Threshold int
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewLowStockScanJob wires dependencies for the low-stock scan handler.
func NewLowStockScanJob(source alerts.StockSource, threshold int, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{Source: source, Threshold: threshold, Logger: logger, Metrics: metrics}
}

// Handle executes the low-stock scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	threshold := j.Threshold
	if payload.Threshold > 0 {
		threshold = payload.Threshold
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskLowStockScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := slog.Default()
	if j.Logger != nil {
		logger = j.Logger
	}
	logger = logger.With(slog.String("job", TaskLowStockScan), slog.Int("threshold", threshold))

	items, err := j.Source.ListStock(ctx)
	if err != nil {
		resultErr = err
		logger.Error("list stock", slog.Any("error", err))
		return resultErr
	}
	low := inventory.LowStock(items, threshold)
	for _, item := range low {
		logger.Warn("low stock",
			slog.Int64("item_id", item.ID),
			slog.String("name", item.Name),
			slog.Int("available", item.QuantityAvailable),
			slog.Int("total", item.QuantityTotal),
		)
	}
	metrics.ObserveScan(-1, len(low))
	logger.Info("completed low stock scan", slog.Int("items", len(items)), slog.Int("low", len(low)))
	return resultErr
}
