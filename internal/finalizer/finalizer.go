package finalizer

import (
	"context"
	"fmt"
	"time"

	"auction-engine/internal/events"
	"auction-engine/internal/metrics"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/utils"

	"github.com/shopspring/decimal"
)

// Retirer is the slice of the lot clock the finalizer needs: dropping
// timers for lots that reached a terminal status.
type Retirer interface {
	Cancel(lotID string)
}

// Finalizer decides when an auction as a whole is ready to close and
// performs the close atomically: lots marked sold or unsold against
// reserve, exactly one invoice per winning bidder, auction moved to ended.
type Finalizer struct {
	ledger    repository.Ledger
	locker    Locker
	clock     Retirer
	publisher events.Publisher
}

// New creates a finalizer. clock and publisher may be nil.
func New(ledger repository.Ledger, locker Locker, clock Retirer, publisher events.Publisher) *Finalizer {
	return &Finalizer{
		ledger:    ledger,
		locker:    locker,
		clock:     clock,
		publisher: publisher,
	}
}

// closeOutcome carries committed results out of the transaction so side
// effects run only after commit.
type closeOutcome struct {
	ended      bool
	closedLots []model.Lot
	invoices   []model.Invoice
}

// ProcessAuctionEnds sweeps every live auction and finalizes the ones
// whose lots have all run out of time. Idempotent: auctions already ended
// are not selected, and a re-run creates no duplicate invoices.
func (f *Finalizer) ProcessAuctionEnds(ctx context.Context) error {
	auctions, err := f.ledger.ListAuctionsByStatus(ctx, model.AuctionLive)
	if err != nil {
		return err
	}
	for _, auction := range auctions {
		if err := f.FinalizeAuction(ctx, auction.ID); err != nil {
			// One failing auction must not block the sweep; it stays
			// live and is retried as a whole on the next run.
			utils.Error("finalizer: auction finalization failed", map[string]any{
				"auction_id": auction.ID,
				"error":      err.Error(),
			})
		}
	}
	return nil
}

// OnLotCandidate reacts to a lot clock close candidate by attempting to
// finalize the lot's auction.
func (f *Finalizer) OnLotCandidate(ctx context.Context, lotID string) error {
	lot, err := f.ledger.GetLot(ctx, lotID)
	if err != nil {
		return err
	}
	return f.FinalizeAuction(ctx, lot.AuctionID)
}

// ConsumeCandidates drains the lot clock candidate channel until ctx ends.
func (f *Finalizer) ConsumeCandidates(ctx context.Context, candidates <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case lotID, ok := <-candidates:
			if !ok {
				return
			}
			if err := f.OnLotCandidate(ctx, lotID); err != nil {
				utils.Warn("finalizer: close candidate failed", map[string]any{
					"lot_id": lotID,
					"error":  err.Error(),
				})
			}
		}
	}
}

// FinalizeAuction closes one auction if every lot is out of time. The whole
// close is one transaction: a partial failure rolls everything back and the
// auction remains live for retry. Concurrent finalization of the same
// auction is prevented by the per-auction lock.
func (f *Finalizer) FinalizeAuction(ctx context.Context, auctionID string) error {
	release, ok, err := f.locker.Acquire(ctx, auctionID)
	if err != nil {
		return err
	}
	if !ok {
		// Another worker is already on it.
		return nil
	}
	defer release()

	var outcome closeOutcome
	err = f.ledger.Transact(ctx, func(tx repository.Ledger) error {
		var txErr error
		outcome, txErr = f.finalizeTx(ctx, tx, auctionID)
		return txErr
	})
	if err != nil {
		return err
	}
	if !outcome.ended {
		return nil
	}

	metrics.AuctionsEnded.Inc()
	for _, lot := range outcome.closedLots {
		metrics.LotsClosed.WithLabelValues(string(lot.Status)).Inc()
		if f.clock != nil {
			f.clock.Cancel(lot.ID)
		}
		if f.publisher != nil {
			hammer := int64(0)
			if lot.CurrentBid != nil {
				hammer = *lot.CurrentBid
			}
			f.publisher.Publish(ctx, events.Event{
				Kind:      events.LotClosed,
				AuctionID: auctionID,
				LotID:     lot.ID,
				Amount:    hammer,
			})
		}
	}
	if f.publisher != nil {
		f.publisher.Publish(ctx, events.Event{
			Kind:      events.AuctionEnded,
			AuctionID: auctionID,
		})
	}

	utils.Info("auction finalized", map[string]any{
		"auction_id": auctionID,
		"lots":       len(outcome.closedLots),
		"invoices":   len(outcome.invoices),
	})
	return nil
}

// finalizeTx runs the close inside one ledger transaction.
func (f *Finalizer) finalizeTx(ctx context.Context, tx repository.Ledger, auctionID string) (closeOutcome, error) {
	now := time.Now().UTC()

	auction, err := tx.GetAuction(ctx, auctionID)
	if err != nil {
		return closeOutcome{}, err
	}
	if auction.Status != model.AuctionLive {
		// Already ended or canceled: finalization is a no-op.
		return closeOutcome{}, nil
	}

	lots, err := tx.ListLotsByAuction(ctx, auctionID)
	if err != nil {
		return closeOutcome{}, err
	}

	// Readiness gate: the auction's nominal ends_at is irrelevant; every
	// lot must be terminal already or have a known deadline in the past.
	// Not ready is a deferral, never an error.
	for _, lot := range lots {
		if lot.Status.Terminal() {
			continue
		}
		if lot.EndsAt == nil || lot.EndsAt.After(now) {
			return closeOutcome{}, nil
		}
	}

	outcome := closeOutcome{}
	wonByBidder := make(map[string][]model.Lot)
	for _, lot := range lots {
		if lot.Status.Terminal() {
			continue
		}
		sold := lot.CurrentBid != nil &&
			(lot.ReservePrice == nil || *lot.CurrentBid >= *lot.ReservePrice)
		status := model.LotUnsold
		if sold {
			status = model.LotSold
		}
		if err := tx.CloseLot(ctx, lot.ID, status); err != nil {
			return closeOutcome{}, err
		}
		lot.Status = status
		outcome.closedLots = append(outcome.closedLots, lot)
		if sold && lot.WinningBidderID != nil {
			wonByBidder[*lot.WinningBidderID] = append(wonByBidder[*lot.WinningBidderID], lot)
		}
	}

	for bidderID, wonLots := range wonByBidder {
		invoice := buildInvoice(auction, bidderID, wonLots, now)
		if err := tx.CreateInvoice(ctx, &invoice); err != nil {
			return closeOutcome{}, err
		}
		outcome.invoices = append(outcome.invoices, invoice)

		n := model.Notification{
			ID:            utils.GenerateID(),
			Kind:          model.NotifyWon,
			UserID:        bidderID,
			UserAmount:    invoice.Subtotal,
			CurrentAmount: invoice.Total,
			CreatedAt:     now,
		}
		if err := tx.EnqueueNotification(ctx, &n); err != nil {
			return closeOutcome{}, err
		}
	}

	if err := tx.SetAuctionStatus(ctx, auctionID, model.AuctionLive, model.AuctionEnded); err != nil {
		return closeOutcome{}, err
	}
	outcome.ended = true
	return outcome, nil
}

// buildInvoice aggregates a bidder's won lots into one invoice.
// Total = subtotal + buyer's premium + tax + shipping.
func buildInvoice(auction model.Auction, bidderID string, wonLots []model.Lot, now time.Time) model.Invoice {
	invoice := model.Invoice{
		ID:        utils.GenerateID(),
		AuctionID: auction.ID,
		UserID:    bidderID,
		Status:    model.InvoicePending,
		CreatedAt: now,
	}
	for _, lot := range wonLots {
		hammer := *lot.CurrentBid
		invoice.Subtotal += hammer
		invoice.Shipping += lot.ShippingCost
		invoice.Items = append(invoice.Items, model.InvoiceItem{
			LotID:       lot.ID,
			Description: fmt.Sprintf("Lot %d: %s", lot.LotNumber, lot.Title),
			Hammer:      hammer,
		})
	}
	invoice.BuyerPremium = percentOf(invoice.Subtotal, auction.BuyerPremiumPct)
	invoice.Tax = percentOf(invoice.Subtotal+invoice.BuyerPremium, auction.TaxPct)
	invoice.Total = invoice.Subtotal + invoice.BuyerPremium + invoice.Tax + invoice.Shipping
	return invoice
}

// percentOf applies a percentage to an amount in cents, rounding half away
// from zero. Decimal arithmetic avoids the off-by-a-cent drift of integer
// or float division.
func percentOf(amountCents int64, pct float64) int64 {
	if pct == 0 || amountCents == 0 {
		return 0
	}
	return decimal.NewFromInt(amountCents).
		Mul(decimal.NewFromFloat(pct)).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}
