package dispatch

import (
	"context"

	model "auction-engine/internal/models"
	"auction-engine/utils"
)

// LogNotifier is a development Notifier that logs instead of sending.
// Production deployments swap in a vendor-backed implementation.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, recipient string, kind model.NotificationKind, payload map[string]any) error {
	utils.Info("lognotifier: send", map[string]any{
		"recipient": recipient,
		"kind":      string(kind),
		"payload":   payload,
	})
	return nil
}
