package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOverdueScan scans the backend for expired rentals.
	TaskOverdueScan = "rentals:overdue_scan"
	// TaskLowStockScan scans inventory for items at or below the threshold.
	TaskLowStockScan = "inventory:low_stock_scan"
	// TaskIdempotencyCleanup purges expired Idempotency-Key records.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// OverdueScanPayload carries scheduling metadata.
type OverdueScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// LowStockScanPayload overrides the configured threshold when positive.
type LowStockScanPayload struct {
	Threshold int `json:"threshold,omitempty"`
}

// NewOverdueScanTask constructs an Asynq task for the overdue scan.
func NewOverdueScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(OverdueScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOverdueScan, body, asynq.Queue(QueueDefault)), nil
}

// NewLowStockScanTask constructs an Asynq task for the low-stock scan.
func NewLowStockScanTask(threshold int) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockScanPayload{Threshold: threshold})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, body, asynq.Queue(QueueDefault)), nil
}

// NewIdempotencyCleanupTask constructs the cleanup task. The handler applies
// its configured retention.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.Queue(QueueDefault))
}
