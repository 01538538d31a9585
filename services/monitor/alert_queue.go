package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"stock_monitor/models"
	"stock_monitor/services/notifier"
	"stock_monitor/services/store"
)

// AlertQueue wraps the append-only alert log with deduplication and
// delivery-state transitions. Rows are appended once and only their
// delivery status advances afterwards.
type AlertQueue struct {
	store      store.Store
	maxRetries int
}

// NewAlertQueue creates a new alert queue.
func NewAlertQueue(st store.Store, maxRetries int) *AlertQueue {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &AlertQueue{store: st, maxRetries: maxRetries}
}

// Enqueue appends an alert unless a duplicate exists inside the alert
// type's dedup window. Returns false when the alert was suppressed as a
// duplicate.
func (q *AlertQueue) Enqueue(ctx context.Context, alert *models.AlertLog) (bool, error) {
	window := models.DedupWindow(alert.AlertType)
	dup, err := q.store.HasRecentAlert(ctx, alert.DedupHash, time.Now().UTC().Add(-window))
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	if dup {
		log.Printf("Duplicate alert skipped: %s (%s)", alert.Symbol, alert.AlertType)
		return false, nil
	}

	if err := q.store.AppendAlert(ctx, alert); err != nil {
		return false, err
	}
	return true, nil
}

// MarkSent records a successful delivery.
func (q *AlertQueue) MarkSent(ctx context.Context, alert *models.AlertLog) {
	if err := q.store.UpdateAlertStatus(ctx, alert.ID, models.AlertStatusSent, "", alert.RetryCount); err != nil {
		log.Printf("Error marking alert %d sent: %v", alert.ID, err)
	}
}

// MarkFailed records a failed delivery, advancing to dead letter once the
// retry budget is exhausted.
func (q *AlertQueue) MarkFailed(ctx context.Context, alert *models.AlertLog, deliveryErr error) {
	retries := alert.RetryCount + 1
	status := models.AlertStatusFailed
	if retries >= q.maxRetries {
		status = models.AlertStatusDeadLetter
		log.Printf("Alert %d moved to dead letter after %d retries", alert.ID, retries)
	}

	msg := deliveryErr.Error()
	if len(msg) > 1000 {
		msg = msg[:1000]
	}
	if err := q.store.UpdateAlertStatus(ctx, alert.ID, status, msg, retries); err != nil {
		log.Printf("Error marking alert %d failed: %v", alert.ID, err)
	}
}

// RetryPending re-delivers undelivered alerts in one batched message.
// Used by the scheduler between monitoring runs.
func (q *AlertQueue) RetryPending(ctx context.Context, n notifier.Notifier, batchSize int) (int, error) {
	alerts, err := q.store.PendingAlerts(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	retryable := alerts[:0]
	for _, alert := range alerts {
		if alert.RetryCount < q.maxRetries {
			retryable = append(retryable, alert)
		}
	}
	if len(retryable) == 0 {
		return 0, nil
	}

	if err := n.SendBatch(ctx, retryable); err != nil {
		for i := range retryable {
			q.MarkFailed(ctx, &retryable[i], err)
		}
		return 0, fmt.Errorf("retry delivery failed: %w", err)
	}

	for i := range retryable {
		q.MarkSent(ctx, &retryable[i])
	}
	log.Printf("Retried %d pending alerts", len(retryable))
	return len(retryable), nil
}
