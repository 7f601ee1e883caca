package settlement

import (
	"context"

	"auction-engine/utils"
)

// LogProcessor is a development PaymentProcessor that approves every charge
// and logs it. Production deployments swap in a vendor-backed implementation
// of the same interface.
type LogProcessor struct{}

func (LogProcessor) CreateCustomer(_ context.Context, email, _ string) (string, error) {
	return "cus_" + utils.GenerateID(), nil
}

func (LogProcessor) AttachPaymentMethod(_ context.Context, customerID, methodID string) error {
	utils.Info("logprocessor: attach payment method", map[string]any{
		"customer_id": customerID,
		"method_id":   methodID,
	})
	return nil
}

func (LogProcessor) ListPaymentMethods(_ context.Context, customerID string) ([]string, error) {
	return []string{"pm_default"}, nil
}

func (LogProcessor) Charge(_ context.Context, customerID string, amountCents int64, idempotencyKey string) (string, error) {
	ref := "ch_" + utils.GenerateID()
	utils.Info("logprocessor: charge", map[string]any{
		"customer_id":     customerID,
		"amount":          amountCents,
		"idempotency_key": idempotencyKey,
		"reference":       ref,
	})
	return ref, nil
}
