package events

import (
	"context"
	"fmt"
	"time"
)

// Kind identifies an auction lifecycle event.
type Kind string

const (
	BidPlaced    Kind = "bid_placed"
	LotClosed    Kind = "lot_closed"
	AuctionEnded Kind = "auction_ended"
	InvoicePaid  Kind = "invoice_paid"
)

// Event is one entry on the auction event stream.
type Event struct {
	Kind      Kind      `json:"kind"`
	AuctionID string    `json:"auction_id,omitempty"`
	LotID     string    `json:"lot_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	InvoiceID string    `json:"invoice_id,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	At        time.Time `json:"at"`
}

// Key returns the partitioning key: events for the same entity land on the
// same partition so downstream consumers see them in order.
func (e Event) Key() string {
	switch {
	case e.LotID != "":
		return e.LotID
	case e.InvoiceID != "":
		return e.InvoiceID
	default:
		return e.AuctionID
	}
}

// Validate does minimal field checks before publishing.
func (e Event) Validate() error {
	if e.Kind == "" {
		return fmt.Errorf("event kind is required")
	}
	if e.Key() == "" {
		return fmt.Errorf("event needs at least one entity id")
	}
	return nil
}

// Publisher is the best-effort sink for lifecycle events. Publish failures
// are logged by implementations and never fail the originating transaction.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}
