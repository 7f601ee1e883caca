package settlement

import (
	"context"
	"fmt"
	"time"

	"auction-engine/internal/events"
	"auction-engine/internal/metrics"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/utils"
)

//go:generate mockgen -source=settlement.go -destination=mock_processor.go -package=settlement

// PaymentProcessor is the narrow contract the engine requires of the
// external payment vendor. The vendor choice is irrelevant to the design.
type PaymentProcessor interface {
	CreateCustomer(ctx context.Context, email, name string) (string, error)
	AttachPaymentMethod(ctx context.Context, customerID, methodID string) error
	ListPaymentMethods(ctx context.Context, customerID string) ([]string, error)
	Charge(ctx context.Context, customerID string, amountCents int64, idempotencyKey string) (string, error)
}

// Pipeline captures pending invoices against stored payment methods.
// One attempt per run per invoice; failures are recorded with a reason and
// surface for manual operator follow-up rather than automatic retry.
type Pipeline struct {
	ledger    repository.Ledger
	processor PaymentProcessor
	publisher events.Publisher
	batchSize int
}

// New creates a settlement pipeline. publisher may be nil.
func New(ledger repository.Ledger, processor PaymentProcessor, publisher events.Publisher, batchSize int) *Pipeline {
	return &Pipeline{
		ledger:    ledger,
		processor: processor,
		publisher: publisher,
		batchSize: batchSize,
	}
}

// CaptureInvoices processes one bounded batch of pending invoices.
// Per-invoice processing is independent: a crash mid-batch is safe because
// the next run only acts on invoices still pending, and an invoice already
// paid is never selected again.
func (p *Pipeline) CaptureInvoices(ctx context.Context) error {
	invoices, err := p.ledger.ListPendingInvoices(ctx, p.batchSize)
	if err != nil {
		return err
	}
	for _, invoice := range invoices {
		if err := p.captureOne(ctx, invoice); err != nil {
			utils.Error("settlement: capture failed", map[string]any{
				"invoice_id": invoice.ID,
				"error":      err.Error(),
			})
		}
	}
	return nil
}

// captureOne attempts a single charge for one invoice.
func (p *Pipeline) captureOne(ctx context.Context, invoice model.Invoice) error {
	bidder, err := p.ledger.GetBidder(ctx, invoice.UserID)
	if err != nil {
		return err
	}

	if bidder.PaymentCustomerID == "" || bidder.DefaultPaymentMethodID == "" {
		return p.fail(ctx, invoice, "no payment method on file")
	}

	methods, err := p.processor.ListPaymentMethods(ctx, bidder.PaymentCustomerID)
	if err != nil {
		return p.fail(ctx, invoice, fmt.Sprintf("payment method lookup failed: %v", err))
	}
	if len(methods) == 0 {
		return p.fail(ctx, invoice, "processor reports no usable payment method")
	}

	// The invoice ID doubles as the idempotency key: a retried charge for
	// the same invoice can never double-bill.
	ref, err := p.processor.Charge(ctx, bidder.PaymentCustomerID, invoice.Total, invoice.ID)
	if err != nil {
		return p.fail(ctx, invoice, fmt.Sprintf("charge failed: %v", err))
	}

	if err := p.ledger.MarkInvoicePaid(ctx, invoice.ID, ref); err != nil {
		return err
	}
	metrics.InvoicesCaptured.WithLabelValues("paid").Inc()
	if p.publisher != nil {
		p.publisher.Publish(ctx, events.Event{
			Kind:      events.InvoicePaid,
			AuctionID: invoice.AuctionID,
			InvoiceID: invoice.ID,
			UserID:    invoice.UserID,
			Amount:    invoice.Total,
		})
	}
	utils.Info("invoice captured", map[string]any{
		"invoice_id":  invoice.ID,
		"user_id":     invoice.UserID,
		"total":       invoice.Total,
		"payment_ref": ref,
	})
	return nil
}

// fail records a capture failure with its reason. Failed invoices are not
// retried automatically.
func (p *Pipeline) fail(ctx context.Context, invoice model.Invoice, reason string) error {
	if err := p.ledger.MarkInvoiceFailed(ctx, invoice.ID, reason); err != nil {
		return err
	}
	metrics.InvoicesCaptured.WithLabelValues("failed").Inc()
	utils.Warn("invoice capture failed", map[string]any{
		"invoice_id": invoice.ID,
		"user_id":    invoice.UserID,
		"reason":     reason,
	})
	return nil
}

// MarkShipped stamps fulfillment tracking on a paid invoice and queues the
// shipped notification for the buyer.
func (p *Pipeline) MarkShipped(ctx context.Context, invoiceID, trackingNumber string) error {
	if invoiceID == "" || trackingNumber == "" {
		return fmt.Errorf("settlement: invoice id and tracking number are required")
	}
	invoice, err := p.ledger.GetInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}
	return p.ledger.Transact(ctx, func(tx repository.Ledger) error {
		if err := tx.MarkInvoiceShipped(ctx, invoiceID, trackingNumber); err != nil {
			return err
		}
		n := model.Notification{
			ID:            utils.GenerateID(),
			Kind:          model.NotifyShipped,
			UserID:        invoice.UserID,
			CurrentAmount: invoice.Total,
			CreatedAt:     time.Now().UTC(),
		}
		return tx.EnqueueNotification(ctx, &n)
	})
}
