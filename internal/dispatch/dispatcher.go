package dispatch

import (
	"context"
	"time"

	"auction-engine/internal/metrics"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/utils"
)

//go:generate mockgen -source=dispatcher.go -destination=mock_notifier.go -package=dispatch

// Notifier is the narrow contract the engine requires of the external
// notification vendor.
type Notifier interface {
	Send(ctx context.Context, recipient string, kind model.NotificationKind, payload map[string]any) error
}

// Dispatcher drains the pending notification queue with at-least-once
// delivery: only successfully delivered items are marked sent; failures
// stay pending and are retried on the next run until the attempt bound
// dead-letters them.
type Dispatcher struct {
	ledger      repository.Ledger
	notifier    Notifier
	batchSize   int
	delay       time.Duration
	maxAttempts int
}

// New creates a dispatcher. delay spaces out sends to respect external
// rate limits.
func New(ledger repository.Ledger, notifier Notifier, batchSize int, delay time.Duration, maxAttempts int) *Dispatcher {
	return &Dispatcher{
		ledger:      ledger,
		notifier:    notifier,
		batchSize:   batchSize,
		delay:       delay,
		maxAttempts: maxAttempts,
	}
}

// DispatchPending delivers one bounded batch of unsent notifications.
// Delivery order within the batch carries no guarantee; items are
// independent per (user, lot) events.
func (d *Dispatcher) DispatchPending(ctx context.Context) error {
	batch, err := d.ledger.ListUnsentNotifications(ctx, d.batchSize)
	if err != nil {
		return err
	}

	for i, n := range batch {
		if i > 0 && d.delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.delay):
			}
		}
		d.deliverOne(ctx, n)
	}
	return nil
}

// deliverOne attempts a single delivery and records the outcome.
func (d *Dispatcher) deliverOne(ctx context.Context, n model.Notification) {
	bidder, err := d.ledger.GetBidder(ctx, n.UserID)
	if err != nil {
		d.recordFailure(ctx, n, "recipient lookup failed: "+err.Error())
		return
	}

	payload := map[string]any{
		"lot_id":         n.LotID,
		"user_amount":    n.UserAmount,
		"current_amount": n.CurrentAmount,
	}
	if err := d.notifier.Send(ctx, bidder.Email, n.Kind, payload); err != nil {
		d.recordFailure(ctx, n, err.Error())
		return
	}

	// Mark only after a confirmed send; a crash in between re-delivers,
	// which at-least-once semantics allow. A sent row is never requeued.
	if err := d.ledger.MarkNotificationSent(ctx, n.ID); err != nil {
		utils.Error("dispatch: mark sent failed", map[string]any{
			"notification_id": n.ID,
			"error":           err.Error(),
		})
		return
	}
	metrics.NotificationsSent.Inc()
}

// recordFailure bumps the attempt counter; the row dead-letters once the
// bound is reached and stops being selected.
func (d *Dispatcher) recordFailure(ctx context.Context, n model.Notification, reason string) {
	if err := d.ledger.RecordNotificationFailure(ctx, n.ID, reason, d.maxAttempts); err != nil {
		utils.Error("dispatch: record failure failed", map[string]any{
			"notification_id": n.ID,
			"error":           err.Error(),
		})
		return
	}
	if n.Attempts+1 >= d.maxAttempts {
		metrics.NotificationsDeadLettered.Inc()
		utils.Error("dispatch: notification dead-lettered", map[string]any{
			"notification_id": n.ID,
			"kind":            string(n.Kind),
			"user_id":         n.UserID,
			"reason":          reason,
		})
		return
	}
	utils.Warn("dispatch: delivery failed, will retry", map[string]any{
		"notification_id": n.ID,
		"attempts":        n.Attempts + 1,
		"reason":          reason,
	})
}
