package models

import "time"

// AuctionStatus is the lifecycle state of an auction.
// Transitions are monotonic: draft -> preview -> live -> ended.
// Canceled is reachable from any non-ended state.
type AuctionStatus string

const (
	AuctionDraft    AuctionStatus = "draft"
	AuctionPreview  AuctionStatus = "preview"
	AuctionLive     AuctionStatus = "live"
	AuctionEnded    AuctionStatus = "ended"
	AuctionCanceled AuctionStatus = "canceled"
)

// LotStatus is the lifecycle state of a single lot.
type LotStatus string

const (
	LotUpcoming  LotStatus = "upcoming"
	LotLive      LotStatus = "live"
	LotSold      LotStatus = "sold"
	LotUnsold    LotStatus = "unsold"
	LotWithdrawn LotStatus = "withdrawn"
)

// Terminal reports whether the lot status can never change again.
func (s LotStatus) Terminal() bool {
	return s == LotSold || s == LotUnsold || s == LotWithdrawn
}

// InvoiceStatus is the settlement state of an invoice.
type InvoiceStatus string

const (
	InvoicePending  InvoiceStatus = "pending"
	InvoicePaid     InvoiceStatus = "paid"
	InvoiceFailed   InvoiceStatus = "failed"
	InvoiceRefunded InvoiceStatus = "refunded"
)

// NotificationKind identifies the template used to deliver a notification.
type NotificationKind string

const (
	NotifyOutbid  NotificationKind = "outbid"
	NotifyWon     NotificationKind = "won"
	NotifyShipped NotificationKind = "shipped"
)

// Auction groups lots under one sale event with a shared premium and
// auto-extend policy. All money fields across the model are integer cents.
type Auction struct {
	ID        string        `gorm:"size:36;primaryKey" json:"id"`
	Title     string        `gorm:"size:255;not null" json:"title"`
	StartsAt  time.Time     `gorm:"not null" json:"starts_at"`
	EndsAt    time.Time     `gorm:"not null" json:"ends_at"`
	Status    AuctionStatus `gorm:"size:16;not null;index" json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`

	// BuyerPremiumPct and TaxPct are percentages, e.g. 15 means 15%.
	BuyerPremiumPct float64 `gorm:"not null;default:0" json:"buyer_premium_pct"`
	TaxPct          float64 `gorm:"not null;default:0" json:"tax_pct"`

	// Soft-close policy: a bid landing within ThresholdMinutes of a lot's
	// close pushes the close out to now + ExtendMinutes.
	AutoExtendThresholdMin int `gorm:"not null;default:5" json:"auto_extend_threshold_min"`
	AutoExtendMin          int `gorm:"not null;default:5" json:"auto_extend_min"`
}

func (Auction) TableName() string { return "auctions" }

// Lot is a single item under the hammer. CurrentBid and EndsAt are
// non-decreasing over the lot's lifetime; Version guards concurrent
// bid writes (see repository.ApplyBidToLot).
type Lot struct {
	ID        string    `gorm:"size:36;primaryKey" json:"id"`
	AuctionID string    `gorm:"size:36;not null;index;uniqueIndex:idx_auction_lot_number" json:"auction_id"`
	LotNumber int       `gorm:"not null;uniqueIndex:idx_auction_lot_number" json:"lot_number"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Category tags the Details payload; the bid engine and finalizer
	// never look inside Details (see DecodeLotDetails).
	Category Category `gorm:"size:32;not null;default:general" json:"category"`
	Details  string   `gorm:"type:text" json:"details,omitempty"`

	StartingBid  int64  `gorm:"not null" json:"starting_bid"`
	ReservePrice *int64 `json:"-"` // confidential, never serialized
	CurrentBid   *int64 `json:"current_bid,omitempty"`
	BidCount     int    `gorm:"not null;default:0" json:"bid_count"`
	ShippingCost int64  `gorm:"not null;default:0" json:"shipping_cost"`

	WinningBidderID *string    `gorm:"size:36;index" json:"winning_bidder_id,omitempty"`
	EndsAt          *time.Time `gorm:"index" json:"ends_at,omitempty"`
	ExtendedCount   int        `gorm:"not null;default:0" json:"extended_count"`
	Status          LotStatus  `gorm:"size:16;not null;index" json:"status"`
	Version         int64      `gorm:"not null;default:0" json:"-"`
}

func (Lot) TableName() string { return "lots" }

// Bid is an append-only record. Only the IsWinning flag is ever flipped
// after insert, when a later bid supersedes it.
type Bid struct {
	ID        string    `gorm:"size:36;primaryKey" json:"bid_id"`
	LotID     string    `gorm:"size:36;not null;index" json:"lot_id"`
	BidderID  string    `gorm:"size:36;not null;index" json:"bidder_id"`
	Amount    int64     `gorm:"not null" json:"amount"`
	MaxBid    *int64    `json:"-"` // private proxy ceiling
	IsWinning bool      `gorm:"not null;default:false;index" json:"is_winning"`
	IsAutoBid bool      `gorm:"not null;default:false" json:"is_auto_bid"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (Bid) TableName() string { return "bids" }

// Bidder is a registered participant. PaymentCustomerID and
// DefaultPaymentMethodID reference the external payment processor.
type Bidder struct {
	ID                     string    `gorm:"size:36;primaryKey" json:"id"`
	Email                  string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Name                   string    `gorm:"size:255" json:"name"`
	PaymentCustomerID      string    `gorm:"size:64" json:"-"`
	DefaultPaymentMethodID string    `gorm:"size:64" json:"-"`
	CreatedAt              time.Time `json:"created_at"`
}

func (Bidder) TableName() string { return "bidders" }

// Invoice aggregates everything one bidder won in one auction.
// The (auction_id, user_id) unique index makes finalizer re-runs idempotent.
// Total = Subtotal + BuyerPremium + Tax + Shipping, immutable once paid.
type Invoice struct {
	ID        string        `gorm:"size:36;primaryKey" json:"id"`
	AuctionID string        `gorm:"size:36;not null;uniqueIndex:idx_auction_user" json:"auction_id"`
	UserID    string        `gorm:"size:36;not null;uniqueIndex:idx_auction_user" json:"user_id"`
	Status    InvoiceStatus `gorm:"size:16;not null;index" json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`

	Subtotal     int64 `gorm:"not null" json:"subtotal"`
	BuyerPremium int64 `gorm:"not null" json:"buyer_premium"`
	Tax          int64 `gorm:"not null" json:"tax"`
	Shipping     int64 `gorm:"not null" json:"shipping"`
	Total        int64 `gorm:"not null" json:"total"`

	PaymentRef    string     `gorm:"size:128" json:"payment_ref,omitempty"`
	FailureReason string     `gorm:"size:255" json:"failure_reason,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`

	TrackingNumber string     `gorm:"size:64" json:"tracking_number,omitempty"`
	ShippedAt      *time.Time `json:"shipped_at,omitempty"`

	Items []InvoiceItem `gorm:"foreignKey:InvoiceID" json:"items,omitempty"`
}

func (Invoice) TableName() string { return "invoices" }

// InvoiceItem is one won lot on an invoice, priced at hammer.
type InvoiceItem struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	InvoiceID   string `gorm:"size:36;not null;index" json:"invoice_id"`
	LotID       string `gorm:"size:36;not null" json:"lot_id"`
	Description string `gorm:"size:255" json:"description"`
	Hammer      int64  `gorm:"not null" json:"hammer"`
}

func (InvoiceItem) TableName() string { return "invoice_items" }

// Notification is a durable at-least-once delivery queue row.
// EmailSent is flipped exactly once; a sent row is never requeued.
// Attempts and DeadLetteredAt bound the retry loop.
type Notification struct {
	ID        string           `gorm:"size:36;primaryKey" json:"id"`
	Kind      NotificationKind `gorm:"size:16;not null" json:"kind"`
	LotID     string           `gorm:"size:36;index" json:"lot_id"`
	UserID    string           `gorm:"size:36;not null;index" json:"user_id"`
	CreatedAt time.Time        `gorm:"index" json:"created_at"`

	// Amounts carried for the template: what the user had bid and what
	// the lot now stands at (or the invoice total for won/shipped).
	UserAmount    int64 `json:"user_amount"`
	CurrentAmount int64 `json:"current_amount"`

	EmailSent      bool       `gorm:"not null;default:false;index" json:"email_sent"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	Attempts       int        `gorm:"not null;default:0" json:"attempts"`
	LastError      string     `gorm:"size:255" json:"last_error,omitempty"`
	DeadLetteredAt *time.Time `json:"dead_lettered_at,omitempty"`
}

func (Notification) TableName() string { return "notifications" }
