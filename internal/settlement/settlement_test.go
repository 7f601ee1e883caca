package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"auction-engine/internal/auctionerrors"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestLedger(t *testing.T) repository.Ledger {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, repository.AutoMigrate(db))
	return repository.NewGormLedger(db)
}

func seedBidder(t *testing.T, ledger repository.Ledger, id, customerID, methodID string) {
	t.Helper()
	bidder := model.Bidder{
		ID:                     id,
		Email:                  id + "@example.com",
		Name:                   id,
		PaymentCustomerID:      customerID,
		DefaultPaymentMethodID: methodID,
		CreatedAt:              time.Now().UTC(),
	}
	require.NoError(t, ledger.CreateBidder(context.Background(), &bidder))
}

func seedInvoice(t *testing.T, ledger repository.Ledger, userID string, total int64) model.Invoice {
	t.Helper()
	invoice := model.Invoice{
		ID:        uuid.NewString(),
		AuctionID: uuid.NewString(),
		UserID:    userID,
		Status:    model.InvoicePending,
		Subtotal:  total,
		Total:     total,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, ledger.CreateInvoice(context.Background(), &invoice))
	return invoice
}

func TestCaptureInvoices_ChargesWithInvoiceIDAsIdempotencyKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	ledger := newTestLedger(t)
	processor := NewMockPaymentProcessor(ctrl)

	seedBidder(t, ledger, "alice", "cus_alice", "pm_alice")
	invoice := seedInvoice(t, ledger, "alice", 392_60)

	processor.EXPECT().
		ListPaymentMethods(gomock.Any(), "cus_alice").
		Return([]string{"pm_alice"}, nil)
	processor.EXPECT().
		Charge(gomock.Any(), "cus_alice", int64(392_60), invoice.ID).
		Return("ch_123", nil)

	p := New(ledger, processor, nil, 10)
	require.NoError(t, p.CaptureInvoices(ctx))

	got, err := ledger.GetInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	require.Equal(t, model.InvoicePaid, got.Status)
	require.Equal(t, "ch_123", got.PaymentRef)
	require.NotNil(t, got.PaidAt)
}

func TestCaptureInvoices_NoPaymentMethodOnFile(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	ledger := newTestLedger(t)
	processor := NewMockPaymentProcessor(ctrl)

	// No processor interaction at all: the failure is decided locally.
	seedBidder(t, ledger, "alice", "", "")
	invoice := seedInvoice(t, ledger, "alice", 100_00)

	p := New(ledger, processor, nil, 10)
	require.NoError(t, p.CaptureInvoices(ctx))

	got, err := ledger.GetInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	require.Equal(t, model.InvoiceFailed, got.Status)
	require.Equal(t, "no payment method on file", got.FailureReason)
}

func TestCaptureInvoices_ProcessorHasNoUsableMethod(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	ledger := newTestLedger(t)
	processor := NewMockPaymentProcessor(ctrl)

	seedBidder(t, ledger, "alice", "cus_alice", "pm_alice")
	invoice := seedInvoice(t, ledger, "alice", 100_00)

	processor.EXPECT().
		ListPaymentMethods(gomock.Any(), "cus_alice").
		Return(nil, nil)

	p := New(ledger, processor, nil, 10)
	require.NoError(t, p.CaptureInvoices(ctx))

	got, err := ledger.GetInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	require.Equal(t, model.InvoiceFailed, got.Status)
}

func TestCaptureInvoices_ChargeFailureIsRecordedNotRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	ledger := newTestLedger(t)
	processor := NewMockPaymentProcessor(ctrl)

	seedBidder(t, ledger, "alice", "cus_alice", "pm_alice")
	invoice := seedInvoice(t, ledger, "alice", 100_00)

	processor.EXPECT().
		ListPaymentMethods(gomock.Any(), "cus_alice").
		Return([]string{"pm_alice"}, nil)
	processor.EXPECT().
		Charge(gomock.Any(), "cus_alice", int64(100_00), invoice.ID).
		Return("", errors.New("card declined"))

	p := New(ledger, processor, nil, 10)
	require.NoError(t, p.CaptureInvoices(ctx))

	got, err := ledger.GetInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	require.Equal(t, model.InvoiceFailed, got.Status)
	require.Contains(t, got.FailureReason, "card declined")

	// A failed invoice is no longer pending, so the next run skips it.
	require.NoError(t, p.CaptureInvoices(ctx))
}

func TestCaptureInvoices_PaidInvoiceNeverRecharged(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	ledger := newTestLedger(t)
	processor := NewMockPaymentProcessor(ctrl)

	seedBidder(t, ledger, "alice", "cus_alice", "pm_alice")
	invoice := seedInvoice(t, ledger, "alice", 100_00)
	require.NoError(t, ledger.MarkInvoicePaid(ctx, invoice.ID, "ch_prev"))

	// No EXPECT calls: touching the processor would fail the test.
	p := New(ledger, processor, nil, 10)
	require.NoError(t, p.CaptureInvoices(ctx))
}

func TestMarkShipped(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	ledger := newTestLedger(t)
	processor := NewMockPaymentProcessor(ctrl)
	p := New(ledger, processor, nil, 10)

	seedBidder(t, ledger, "alice", "cus_alice", "pm_alice")
	invoice := seedInvoice(t, ledger, "alice", 100_00)

	// Shipping an unpaid invoice is rejected.
	err := p.MarkShipped(ctx, invoice.ID, "TRACK-1")
	require.ErrorIs(t, err, auctionerrors.ErrInvalidTransition)

	require.NoError(t, ledger.MarkInvoicePaid(ctx, invoice.ID, "ch_1"))
	require.NoError(t, p.MarkShipped(ctx, invoice.ID, "TRACK-1"))

	got, err := ledger.GetInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	require.Equal(t, "TRACK-1", got.TrackingNumber)
	require.NotNil(t, got.ShippedAt)

	notifications, err := ledger.ListUnsentNotifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	require.Equal(t, model.NotifyShipped, notifications[0].Kind)
	require.Equal(t, "alice", notifications[0].UserID)
}

func TestMarkShipped_Validation(t *testing.T) {
	ledger := newTestLedger(t)
	p := New(ledger, nil, nil, 10)

	require.Error(t, p.MarkShipped(context.Background(), "", "TRACK-1"))
	require.Error(t, p.MarkShipped(context.Background(), "inv-1", ""))
}
