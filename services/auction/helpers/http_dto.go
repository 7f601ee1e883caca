package helpers

import "time"

// Request/Response DTOs

type PlaceBidRequest struct {
	LotID    string `json:"lot_id" binding:"required"`
	BidderID string `json:"bidder_id" binding:"required"`
	Amount   int64  `json:"amount" binding:"required,gt=0"`
	MaxBid   *int64 `json:"max_bid,omitempty"`
}

type PlaceBidResponse struct {
	BidID         string `json:"bid_id"`
	NewCurrentBid int64  `json:"new_current_bid"`
	IsWinning     bool   `json:"is_winning"`
	Extended      bool   `json:"extended"`
	EndsAt        string `json:"ends_at"`
}

type BidResponse struct {
	BidID     string `json:"bid_id"`
	LotID     string `json:"lot_id"`
	BidderID  string `json:"bidder_id"`
	Amount    int64  `json:"amount"`
	IsWinning bool   `json:"is_winning"`
	IsAutoBid bool   `json:"is_auto_bid"`
	CreatedAt string `json:"created_at"`
}

type CreateAuctionRequest struct {
	Title                  string    `json:"title" binding:"required"`
	StartsAt               time.Time `json:"starts_at" binding:"required"`
	EndsAt                 time.Time `json:"ends_at" binding:"required"`
	BuyerPremiumPct        float64   `json:"buyer_premium_pct" binding:"gte=0"`
	TaxPct                 float64   `json:"tax_pct" binding:"gte=0"`
	AutoExtendThresholdMin int       `json:"auto_extend_threshold_min" binding:"gte=0"`
	AutoExtendMin          int       `json:"auto_extend_min" binding:"gte=0"`
}

type CreateLotRequest struct {
	LotNumber    int        `json:"lot_number" binding:"required,gt=0"`
	Title        string     `json:"title" binding:"required"`
	Category     string     `json:"category"`
	Details      string     `json:"details"`
	StartingBid  int64      `json:"starting_bid" binding:"required,gt=0"`
	ReservePrice *int64     `json:"reserve_price,omitempty"`
	ShippingCost int64      `json:"shipping_cost" binding:"gte=0"`
	EndsAt       *time.Time `json:"ends_at,omitempty"`
}

type AuctionStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type CreateBidderRequest struct {
	Email                  string `json:"email" binding:"required,email"`
	Name                   string `json:"name"`
	PaymentCustomerID      string `json:"payment_customer_id"`
	DefaultPaymentMethodID string `json:"default_payment_method_id"`
}

type ShipInvoiceRequest struct {
	TrackingNumber string `json:"tracking_number" binding:"required"`
}
