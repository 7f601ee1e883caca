package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"auction-engine/internal/auctionerrors"
	model "auction-engine/internal/models"

	"gorm.io/gorm"
)

// Ledger defines the durable transactional store for the auction engine.
// Every multi-row mutation runs inside Transact so no partial state is
// ever visible to readers.
type Ledger interface {
	// Transact runs fn against a transactional view of the ledger.
	// All writes made through the passed Ledger commit or roll back together.
	Transact(ctx context.Context, fn func(tx Ledger) error) error

	// Auctions
	CreateAuction(ctx context.Context, auction *model.Auction) error
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	ListAuctionsByStatus(ctx context.Context, status model.AuctionStatus) ([]model.Auction, error)
	SetAuctionStatus(ctx context.Context, auctionID string, from, to model.AuctionStatus) error

	// Lots
	CreateLot(ctx context.Context, lot *model.Lot) error
	GetLot(ctx context.Context, lotID string) (model.Lot, error)
	ListLotsByAuction(ctx context.Context, auctionID string) ([]model.Lot, error)
	ListLotsByBidder(ctx context.Context, bidderID string) ([]model.Lot, error)
	ApplyBidToLot(ctx context.Context, lot model.Lot) error
	CloseLot(ctx context.Context, lotID string, status model.LotStatus) error
	MarkLotsLive(ctx context.Context, auctionID string) error
	WithdrawLots(ctx context.Context, auctionID string) error
	SetLotSchedule(ctx context.Context, lotID string, endsAt time.Time) error

	// Bids
	InsertBid(ctx context.Context, bid *model.Bid) error
	DemoteWinningBid(ctx context.Context, lotID string) error
	GetWinningBid(ctx context.Context, lotID string) (model.Bid, error)
	ListBidsByLot(ctx context.Context, lotID string) ([]model.Bid, error)

	// Bidders
	CreateBidder(ctx context.Context, bidder *model.Bidder) error
	GetBidder(ctx context.Context, bidderID string) (model.Bidder, error)

	// Invoices
	CreateInvoice(ctx context.Context, invoice *model.Invoice) error
	GetInvoice(ctx context.Context, invoiceID string) (model.Invoice, error)
	ListPendingInvoices(ctx context.Context, limit int) ([]model.Invoice, error)
	MarkInvoicePaid(ctx context.Context, invoiceID, paymentRef string) error
	MarkInvoiceFailed(ctx context.Context, invoiceID, reason string) error
	MarkInvoiceShipped(ctx context.Context, invoiceID, trackingNumber string) error

	// Notifications
	EnqueueNotification(ctx context.Context, n *model.Notification) error
	ListUnsentNotifications(ctx context.Context, limit int) ([]model.Notification, error)
	MarkNotificationSent(ctx context.Context, notificationID string) error
	RecordNotificationFailure(ctx context.Context, notificationID, reason string, maxAttempts int) error
}

// GormLedger is the GORM-backed implementation of Ledger.
type GormLedger struct {
	db *gorm.DB
}

// NewGormLedger creates a ledger on top of an opened gorm DB.
func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

// AutoMigrate creates or updates the ledger schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Auction{},
		&model.Lot{},
		&model.Bid{},
		&model.Bidder{},
		&model.Invoice{},
		&model.InvoiceItem{},
		&model.Notification{},
	)
}

// Transact runs fn inside a database transaction. The Ledger handed to fn
// shares the transaction, so nested Transact calls join the outer one.
func (l *GormLedger) Transact(ctx context.Context, fn func(tx Ledger) error) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormLedger{db: tx})
	})
}

// CreateAuction inserts a new auction record.
func (l *GormLedger) CreateAuction(ctx context.Context, auction *model.Auction) error {
	if err := l.db.WithContext(ctx).Create(auction).Error; err != nil {
		return fmt.Errorf("repository: create auction: %w", err)
	}
	return nil
}

// GetAuction loads an auction by id.
func (l *GormLedger) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	var auction model.Auction
	err := l.db.WithContext(ctx).First(&auction, "id = ?", auctionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Auction{}, fmt.Errorf("repository: auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
		}
		return model.Auction{}, fmt.Errorf("repository: get auction %s: %w", auctionID, err)
	}
	return auction, nil
}

// ListAuctionsByStatus returns all auctions currently in the given status.
func (l *GormLedger) ListAuctionsByStatus(ctx context.Context, status model.AuctionStatus) ([]model.Auction, error) {
	var auctions []model.Auction
	if err := l.db.WithContext(ctx).Where("status = ?", status).Find(&auctions).Error; err != nil {
		return nil, fmt.Errorf("repository: list auctions by status %s: %w", status, err)
	}
	return auctions, nil
}

// validAuctionTransitions encodes the monotonic auction state machine.
// Canceled is reachable from every non-ended state.
var validAuctionTransitions = map[model.AuctionStatus][]model.AuctionStatus{
	model.AuctionDraft:   {model.AuctionPreview, model.AuctionCanceled},
	model.AuctionPreview: {model.AuctionLive, model.AuctionCanceled},
	model.AuctionLive:    {model.AuctionEnded, model.AuctionCanceled},
}

// SetAuctionStatus moves an auction from one status to another, rejecting
// non-monotonic transitions. The guard on the current status makes
// concurrent transitions lose cleanly instead of double-applying.
func (l *GormLedger) SetAuctionStatus(ctx context.Context, auctionID string, from, to model.AuctionStatus) error {
	allowed := false
	for _, next := range validAuctionTransitions[from] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("repository: auction %s %s -> %s: %w", auctionID, from, to, auctionerrors.ErrInvalidTransition)
	}

	res := l.db.WithContext(ctx).Model(&model.Auction{}).
		Where("id = ? AND status = ?", auctionID, from).
		Update("status", to)
	if res.Error != nil {
		return fmt.Errorf("repository: set auction %s status: %w", auctionID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("repository: auction %s not in status %s: %w", auctionID, from, auctionerrors.ErrInvalidTransition)
	}
	return nil
}

// CreateLot inserts a new lot record.
func (l *GormLedger) CreateLot(ctx context.Context, lot *model.Lot) error {
	if err := l.db.WithContext(ctx).Create(lot).Error; err != nil {
		return fmt.Errorf("repository: create lot: %w", err)
	}
	return nil
}

// GetLot loads a lot by id.
func (l *GormLedger) GetLot(ctx context.Context, lotID string) (model.Lot, error) {
	var lot model.Lot
	err := l.db.WithContext(ctx).First(&lot, "id = ?", lotID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Lot{}, fmt.Errorf("repository: lot %s: %w", lotID, auctionerrors.ErrLotNotFound)
		}
		return model.Lot{}, fmt.Errorf("repository: get lot %s: %w", lotID, err)
	}
	return lot, nil
}

// ListLotsByAuction returns all lots of an auction ordered by lot number.
func (l *GormLedger) ListLotsByAuction(ctx context.Context, auctionID string) ([]model.Lot, error) {
	var lots []model.Lot
	err := l.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order("lot_number asc").
		Find(&lots).Error
	if err != nil {
		return nil, fmt.Errorf("repository: list lots for auction %s: %w", auctionID, err)
	}
	return lots, nil
}

// ListLotsByBidder returns all lots a bidder has placed bids on.
func (l *GormLedger) ListLotsByBidder(ctx context.Context, bidderID string) ([]model.Lot, error) {
	var lots []model.Lot
	err := l.db.WithContext(ctx).
		Joins("JOIN bids ON bids.lot_id = lots.id").
		Where("bids.bidder_id = ?", bidderID).
		Distinct("lots.*").
		Find(&lots).Error
	if err != nil {
		return nil, fmt.Errorf("repository: list lots for bidder %s: %w", bidderID, err)
	}
	return lots, nil
}

// ApplyBidToLot writes the bid engine's new lot state. The update is guarded
// by the version the lot was read at; zero rows affected means another bid
// committed in between and the caller must retry from a fresh read.
func (l *GormLedger) ApplyBidToLot(ctx context.Context, lot model.Lot) error {
	res := l.db.WithContext(ctx).Model(&model.Lot{}).
		Where("id = ? AND version = ?", lot.ID, lot.Version).
		Updates(map[string]any{
			"current_bid":       lot.CurrentBid,
			"bid_count":         lot.BidCount,
			"winning_bidder_id": lot.WinningBidderID,
			"ends_at":           lot.EndsAt,
			"extended_count":    lot.ExtendedCount,
			"version":           lot.Version + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("repository: apply bid to lot %s: %w", lot.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("repository: lot %s version %d: %w", lot.ID, lot.Version, auctionerrors.ErrConcurrentConflict)
	}
	return nil
}

// CloseLot moves a lot into a terminal status. A lot transitions to a
// terminal status exactly once; closing an already-terminal lot fails.
func (l *GormLedger) CloseLot(ctx context.Context, lotID string, status model.LotStatus) error {
	if !status.Terminal() {
		return fmt.Errorf("repository: close lot %s to %s: %w", lotID, status, auctionerrors.ErrInvalidTransition)
	}
	res := l.db.WithContext(ctx).Model(&model.Lot{}).
		Where("id = ? AND status IN ?", lotID, []model.LotStatus{model.LotUpcoming, model.LotLive}).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("repository: close lot %s: %w", lotID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("repository: lot %s already terminal: %w", lotID, auctionerrors.ErrInvalidTransition)
	}
	return nil
}

// MarkLotsLive opens all upcoming lots of an auction for bidding. Called
// when the operator takes the auction live.
func (l *GormLedger) MarkLotsLive(ctx context.Context, auctionID string) error {
	err := l.db.WithContext(ctx).Model(&model.Lot{}).
		Where("auction_id = ? AND status = ?", auctionID, model.LotUpcoming).
		Update("status", model.LotLive).Error
	if err != nil {
		return fmt.Errorf("repository: mark lots live for auction %s: %w", auctionID, err)
	}
	return nil
}

// SetLotSchedule assigns a lot's initial close time. Guarded on a null
// ends_at so it can never pull an already-scheduled close backwards.
func (l *GormLedger) SetLotSchedule(ctx context.Context, lotID string, endsAt time.Time) error {
	err := l.db.WithContext(ctx).Model(&model.Lot{}).
		Where("id = ? AND ends_at IS NULL", lotID).
		Update("ends_at", endsAt).Error
	if err != nil {
		return fmt.Errorf("repository: schedule lot %s: %w", lotID, err)
	}
	return nil
}

// WithdrawLots retires all non-terminal lots of a canceled auction.
func (l *GormLedger) WithdrawLots(ctx context.Context, auctionID string) error {
	err := l.db.WithContext(ctx).Model(&model.Lot{}).
		Where("auction_id = ? AND status IN ?", auctionID, []model.LotStatus{model.LotUpcoming, model.LotLive}).
		Update("status", model.LotWithdrawn).Error
	if err != nil {
		return fmt.Errorf("repository: withdraw lots for auction %s: %w", auctionID, err)
	}
	return nil
}

// InsertBid appends an immutable bid record.
func (l *GormLedger) InsertBid(ctx context.Context, bid *model.Bid) error {
	if err := l.db.WithContext(ctx).Create(bid).Error; err != nil {
		return fmt.Errorf("repository: insert bid for lot %s: %w", bid.LotID, err)
	}
	return nil
}

// DemoteWinningBid flips is_winning off the current winning bid of a lot.
func (l *GormLedger) DemoteWinningBid(ctx context.Context, lotID string) error {
	err := l.db.WithContext(ctx).Model(&model.Bid{}).
		Where("lot_id = ? AND is_winning = ?", lotID, true).
		Update("is_winning", false).Error
	if err != nil {
		return fmt.Errorf("repository: demote winning bid for lot %s: %w", lotID, err)
	}
	return nil
}

// GetWinningBid returns the bid currently flagged winning for a lot.
func (l *GormLedger) GetWinningBid(ctx context.Context, lotID string) (model.Bid, error) {
	var bid model.Bid
	err := l.db.WithContext(ctx).
		Where("lot_id = ? AND is_winning = ?", lotID, true).
		First(&bid).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Bid{}, fmt.Errorf("repository: winning bid for lot %s: %w", lotID, auctionerrors.ErrNoBids)
		}
		return model.Bid{}, fmt.Errorf("repository: get winning bid for lot %s: %w", lotID, err)
	}
	return bid, nil
}

// ListBidsByLot returns all bids for a lot, earliest first. Commit order
// matches created_at order within a lot, which the tie-break relies on.
func (l *GormLedger) ListBidsByLot(ctx context.Context, lotID string) ([]model.Bid, error) {
	var bids []model.Bid
	err := l.db.WithContext(ctx).
		Where("lot_id = ?", lotID).
		Order("created_at asc").
		Find(&bids).Error
	if err != nil {
		return nil, fmt.Errorf("repository: list bids for lot %s: %w", lotID, err)
	}
	return bids, nil
}

// CreateBidder inserts a new bidder record.
func (l *GormLedger) CreateBidder(ctx context.Context, bidder *model.Bidder) error {
	if err := l.db.WithContext(ctx).Create(bidder).Error; err != nil {
		return fmt.Errorf("repository: create bidder: %w", err)
	}
	return nil
}

// GetBidder loads a bidder by id.
func (l *GormLedger) GetBidder(ctx context.Context, bidderID string) (model.Bidder, error) {
	var bidder model.Bidder
	err := l.db.WithContext(ctx).First(&bidder, "id = ?", bidderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Bidder{}, fmt.Errorf("repository: bidder %s: %w", bidderID, auctionerrors.ErrBidderNotFound)
		}
		return model.Bidder{}, fmt.Errorf("repository: get bidder %s: %w", bidderID, err)
	}
	return bidder, nil
}

// CreateInvoice inserts an invoice with its line items. The unique index on
// (auction_id, user_id) makes re-runs idempotent: on conflict the existing
// invoice is loaded into the passed struct and no duplicate is written.
func (l *GormLedger) CreateInvoice(ctx context.Context, invoice *model.Invoice) error {
	err := l.db.WithContext(ctx).Create(invoice).Error
	if err == nil {
		return nil
	}
	if !errorsLikeUnique(err) {
		return fmt.Errorf("repository: create invoice for auction %s user %s: %w", invoice.AuctionID, invoice.UserID, err)
	}

	var existing model.Invoice
	loadErr := l.db.WithContext(ctx).
		Preload("Items").
		Where("auction_id = ? AND user_id = ?", invoice.AuctionID, invoice.UserID).
		First(&existing).Error
	if loadErr != nil {
		return fmt.Errorf("repository: load existing invoice for auction %s user %s: %w", invoice.AuctionID, invoice.UserID, loadErr)
	}
	*invoice = existing
	return nil
}

// GetInvoice loads an invoice with its line items.
func (l *GormLedger) GetInvoice(ctx context.Context, invoiceID string) (model.Invoice, error) {
	var invoice model.Invoice
	err := l.db.WithContext(ctx).Preload("Items").First(&invoice, "id = ?", invoiceID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Invoice{}, fmt.Errorf("repository: invoice %s: %w", invoiceID, auctionerrors.ErrInvoiceNotFound)
		}
		return model.Invoice{}, fmt.Errorf("repository: get invoice %s: %w", invoiceID, err)
	}
	return invoice, nil
}

// ListPendingInvoices returns a bounded batch of invoices awaiting capture,
// oldest first so crashed runs pick up where they left off.
func (l *GormLedger) ListPendingInvoices(ctx context.Context, limit int) ([]model.Invoice, error) {
	var invoices []model.Invoice
	err := l.db.WithContext(ctx).
		Where("status = ?", model.InvoicePending).
		Order("created_at asc").
		Limit(limit).
		Find(&invoices).Error
	if err != nil {
		return nil, fmt.Errorf("repository: list pending invoices: %w", err)
	}
	return invoices, nil
}

// MarkInvoicePaid records a successful capture. Guarded on pending status
// so a duplicate run against an already-paid invoice is a no-op.
func (l *GormLedger) MarkInvoicePaid(ctx context.Context, invoiceID, paymentRef string) error {
	now := time.Now().UTC()
	res := l.db.WithContext(ctx).Model(&model.Invoice{}).
		Where("id = ? AND status = ?", invoiceID, model.InvoicePending).
		Updates(map[string]any{
			"status":      model.InvoicePaid,
			"payment_ref": paymentRef,
			"paid_at":     &now,
		})
	if res.Error != nil {
		return fmt.Errorf("repository: mark invoice %s paid: %w", invoiceID, res.Error)
	}
	return nil
}

// MarkInvoiceFailed records a capture failure with its reason. Failed
// invoices are not retried automatically; they surface for operators.
func (l *GormLedger) MarkInvoiceFailed(ctx context.Context, invoiceID, reason string) error {
	res := l.db.WithContext(ctx).Model(&model.Invoice{}).
		Where("id = ? AND status = ?", invoiceID, model.InvoicePending).
		Updates(map[string]any{
			"status":         model.InvoiceFailed,
			"failure_reason": reason,
		})
	if res.Error != nil {
		return fmt.Errorf("repository: mark invoice %s failed: %w", invoiceID, res.Error)
	}
	return nil
}

// MarkInvoiceShipped stamps fulfillment tracking on a paid invoice.
// Tracking fields are the only mutation allowed after status = paid.
func (l *GormLedger) MarkInvoiceShipped(ctx context.Context, invoiceID, trackingNumber string) error {
	now := time.Now().UTC()
	res := l.db.WithContext(ctx).Model(&model.Invoice{}).
		Where("id = ? AND status = ?", invoiceID, model.InvoicePaid).
		Updates(map[string]any{
			"tracking_number": trackingNumber,
			"shipped_at":      &now,
		})
	if res.Error != nil {
		return fmt.Errorf("repository: mark invoice %s shipped: %w", invoiceID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("repository: invoice %s is not paid: %w", invoiceID, auctionerrors.ErrInvalidTransition)
	}
	return nil
}

// EnqueueNotification appends a pending notification row.
func (l *GormLedger) EnqueueNotification(ctx context.Context, n *model.Notification) error {
	if err := l.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("repository: enqueue %s notification for user %s: %w", n.Kind, n.UserID, err)
	}
	return nil
}

// ListUnsentNotifications returns a bounded batch of pending, non
// dead-lettered notifications, oldest first.
func (l *GormLedger) ListUnsentNotifications(ctx context.Context, limit int) ([]model.Notification, error) {
	var notifications []model.Notification
	err := l.db.WithContext(ctx).
		Where("email_sent = ? AND dead_lettered_at IS NULL", false).
		Order("created_at asc").
		Limit(limit).
		Find(&notifications).Error
	if err != nil {
		return nil, fmt.Errorf("repository: list unsent notifications: %w", err)
	}
	return notifications, nil
}

// MarkNotificationSent flips the sent flag exactly once.
func (l *GormLedger) MarkNotificationSent(ctx context.Context, notificationID string) error {
	now := time.Now().UTC()
	res := l.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND email_sent = ?", notificationID, false).
		Updates(map[string]any{
			"email_sent": true,
			"sent_at":    &now,
		})
	if res.Error != nil {
		return fmt.Errorf("repository: mark notification %s sent: %w", notificationID, res.Error)
	}
	return nil
}

// RecordNotificationFailure bumps the attempt counter and dead-letters the
// row once maxAttempts is reached, so the dispatcher stops selecting it.
func (l *GormLedger) RecordNotificationFailure(ctx context.Context, notificationID, reason string, maxAttempts int) error {
	return l.Transact(ctx, func(tx Ledger) error {
		gtx := tx.(*GormLedger)

		var n model.Notification
		if err := gtx.db.First(&n, "id = ?", notificationID).Error; err != nil {
			return fmt.Errorf("repository: load notification %s: %w", notificationID, err)
		}

		updates := map[string]any{
			"attempts":   n.Attempts + 1,
			"last_error": reason,
		}
		if n.Attempts+1 >= maxAttempts {
			now := time.Now().UTC()
			updates["dead_lettered_at"] = &now
		}
		if err := gtx.db.Model(&model.Notification{}).Where("id = ?", notificationID).Updates(updates).Error; err != nil {
			return fmt.Errorf("repository: record notification %s failure: %w", notificationID, err)
		}
		return nil
	})
}

// errorsLikeUnique reports whether err looks like a unique constraint
// violation. SQLite and Postgres spell these differently, so match loosely.
func errorsLikeUnique(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unique") || strings.Contains(s, "duplicate")
}
