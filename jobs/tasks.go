package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the queue every nexus task runs on.
	QueueDefault = "default"
	// TaskIntegrityScan cross-checks ledger, payroll and stock.
	TaskIntegrityScan = "integrity:scan"
	// TaskSendReceipt emails a receipt for a settled web order.
	TaskSendReceipt = "mail:receipt"
	// TaskIdempotencyCleanup purges old idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// Triggerable lists the tasks that can be enqueued without a payload.
var Triggerable = []string{TaskIntegrityScan, TaskIdempotencyCleanup}

// ReceiptPayload names the entry a receipt is sent for.
type ReceiptPayload struct {
	EntryID uuid.UUID `json:"entry_id"`
}

// CleanupPayload overrides the retention window in hours.
type CleanupPayload struct {
	RetentionHours int `json:"retention_hours,omitempty"`
}

// NewReceiptTask constructs a mail:receipt task.
func NewReceiptTask(entryID uuid.UUID) (*asynq.Task, error) {
	if entryID == uuid.Nil {
		return nil, fmt.Errorf("receipt task: entry id required")
	}
	data, err := json.Marshal(ReceiptPayload{EntryID: entryID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSendReceipt, data, asynq.MaxRetry(5)), nil
}

// NewIntegrityScanTask constructs an integrity:scan task.
func NewIntegrityScanTask() *asynq.Task {
	return asynq.NewTask(TaskIntegrityScan, nil, asynq.MaxRetry(1))
}

// NewCleanupTask constructs an idempotency:cleanup task.
func NewCleanupTask(retentionHours int) (*asynq.Task, error) {
	data, err := json.Marshal(CleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.MaxRetry(1)), nil
}

// NewTriggerTask builds a task by type for manual runs.
func NewTriggerTask(taskType string) (*asynq.Task, error) {
	switch taskType {
	case TaskIntegrityScan:
		return NewIntegrityScanTask(), nil
	case TaskIdempotencyCleanup:
		return NewCleanupTask(0)
	default:
		return nil, fmt.Errorf("unknown task %q", taskType)
	}
}
