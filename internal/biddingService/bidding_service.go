package bidding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/auctionerrors"
	"auction-engine/internal/events"
	"auction-engine/internal/metrics"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/utils"
)

// Rescheduler is the slice of the lot clock the bid engine needs: pushing
// a lot's deadline forward after a soft-close extension.
type Rescheduler interface {
	Schedule(lotID string, endsAt time.Time)
}

// BidResult reports the outcome of an accepted bid.
type BidResult struct {
	BidID         string    `json:"bid_id"`
	NewCurrentBid int64     `json:"new_current_bid"`
	IsWinning     bool      `json:"is_winning"`
	Extended      bool      `json:"extended"`
	EndsAt        time.Time `json:"ends_at"`
}

// Service implements the bid engine: validation against lot state and the
// increment schedule, proxy-bid resolution, and soft-close extension.
type Service struct {
	ledger    repository.Ledger
	clock     Rescheduler
	publisher events.Publisher
}

// NewService creates a bid engine. clock and publisher may be nil.
func NewService(ledger repository.Ledger, clock Rescheduler, publisher events.Publisher) *Service {
	return &Service{
		ledger:    ledger,
		clock:     clock,
		publisher: publisher,
	}
}

// bidOutcome carries the resolved state out of the transaction so side
// effects (clock, events, metrics) only run after commit.
type bidOutcome struct {
	result       BidResult
	lot          model.Lot
	outbidUserID string
	rescheduled  bool
}

// PlaceBid validates and records a bid on a lot. Concurrent bids on the
// same lot are linearized by the ledger's versioned lot update; callers
// receiving ErrConcurrentConflict should re-read lot state and retry.
func (s *Service) PlaceBid(ctx context.Context, lotID, bidderID string, amount int64, maxBid *int64) (BidResult, error) {
	if lotID == "" || bidderID == "" {
		return BidResult{}, fmt.Errorf("bidding: %w - missing lotID or bidderID", auctionerrors.ErrInvalidBid)
	}
	if amount <= 0 {
		return BidResult{}, fmt.Errorf("bidding: %w - non-positive bid amount", auctionerrors.ErrInvalidBid)
	}
	if maxBid != nil && *maxBid < amount {
		return BidResult{}, fmt.Errorf("bidding: %w - max bid below bid amount", auctionerrors.ErrInvalidBid)
	}

	bidder, err := s.ledger.GetBidder(ctx, bidderID)
	if err != nil {
		return BidResult{}, err
	}
	if bidder.DefaultPaymentMethodID == "" {
		metrics.BidsRejected.WithLabelValues("no_payment_method").Inc()
		return BidResult{}, fmt.Errorf("bidding: bidder %s: %w", bidderID, auctionerrors.ErrNoPaymentMethod)
	}

	var outcome bidOutcome
	err = s.ledger.Transact(ctx, func(tx repository.Ledger) error {
		var txErr error
		outcome, txErr = s.placeBidTx(ctx, tx, lotID, bidderID, amount, maxBid)
		return txErr
	})
	if err != nil {
		s.countRejection(err)
		return BidResult{}, err
	}

	// Side effects only after the transaction committed.
	metrics.BidsAccepted.Inc()
	if outcome.rescheduled {
		metrics.LotsExtended.Inc()
		if s.clock != nil {
			s.clock.Schedule(outcome.lot.ID, *outcome.lot.EndsAt)
		}
	}
	if s.publisher != nil {
		s.publisher.Publish(ctx, events.Event{
			Kind:      events.BidPlaced,
			AuctionID: outcome.lot.AuctionID,
			LotID:     outcome.lot.ID,
			UserID:    bidderID,
			Amount:    outcome.result.NewCurrentBid,
		})
	}

	utils.Info("bid accepted", map[string]any{
		"lot_id":      lotID,
		"bidder_id":   bidderID,
		"current_bid": outcome.result.NewCurrentBid,
		"is_winning":  outcome.result.IsWinning,
		"extended":    outcome.result.Extended,
	})
	return outcome.result, nil
}

// placeBidTx runs the whole bid algorithm against a transactional ledger.
func (s *Service) placeBidTx(ctx context.Context, tx repository.Ledger, lotID, bidderID string, amount int64, maxBid *int64) (bidOutcome, error) {
	now := time.Now().UTC()

	lot, err := tx.GetLot(ctx, lotID)
	if err != nil {
		return bidOutcome{}, err
	}
	if lot.Status != model.LotLive || lot.EndsAt == nil || !lot.EndsAt.After(now) {
		return bidOutcome{}, fmt.Errorf("bidding: lot %s: %w", lotID, auctionerrors.ErrLotNotLive)
	}

	auction, err := tx.GetAuction(ctx, lot.AuctionID)
	if err != nil {
		return bidOutcome{}, err
	}

	// Floor check against the tiered increment schedule.
	floor := lot.StartingBid
	if lot.CurrentBid != nil {
		floor = MinimumNextBid(*lot.CurrentBid)
	}
	if amount < floor {
		return bidOutcome{}, fmt.Errorf("bidding: %w - minimum acceptable bid is %d", auctionerrors.ErrBidTooLow, floor)
	}

	var standing *model.Bid
	if winning, err := tx.GetWinningBid(ctx, lotID); err == nil {
		standing = &winning
	} else if !errors.Is(err, auctionerrors.ErrNoBids) {
		return bidOutcome{}, err
	}

	resolution := resolve(lot, standing, bidderID, amount, maxBid, now)

	inserted := 0
	if resolution.demoteStanding {
		if err := tx.DemoteWinningBid(ctx, lotID); err != nil {
			return bidOutcome{}, err
		}
	}
	for i := range resolution.newBids {
		if err := tx.InsertBid(ctx, &resolution.newBids[i]); err != nil {
			return bidOutcome{}, err
		}
		inserted++
	}

	// Soft-close: a bid inside the threshold window pushes the close out.
	// There is no cap on extensions; a contested lot extends indefinitely.
	// ends_at is non-decreasing: when the threshold window is wider than the
	// extension, the new deadline may land before the current one and must
	// not be applied.
	extended := false
	threshold := time.Duration(auction.AutoExtendThresholdMin) * time.Minute
	if lot.EndsAt.Sub(now) <= threshold {
		newEnd := now.Add(time.Duration(auction.AutoExtendMin) * time.Minute)
		if newEnd.After(*lot.EndsAt) {
			lot.EndsAt = &newEnd
			lot.ExtendedCount++
			extended = true
		}
	}

	lot.CurrentBid = &resolution.currentBid
	lot.BidCount += inserted
	lot.WinningBidderID = &resolution.winnerID
	if err := tx.ApplyBidToLot(ctx, lot); err != nil {
		return bidOutcome{}, err
	}

	// Outbid notification only when the standing winner actually changed.
	outbidUser := ""
	if standing != nil && standing.BidderID != resolution.winnerID {
		outbidUser = standing.BidderID
		n := model.Notification{
			ID:            utils.GenerateID(),
			Kind:          model.NotifyOutbid,
			LotID:         lotID,
			UserID:        standing.BidderID,
			UserAmount:    standing.Amount,
			CurrentAmount: resolution.currentBid,
			CreatedAt:     now,
		}
		if err := tx.EnqueueNotification(ctx, &n); err != nil {
			return bidOutcome{}, err
		}
	}

	return bidOutcome{
		result: BidResult{
			BidID:         resolution.callerBidID,
			NewCurrentBid: resolution.currentBid,
			IsWinning:     resolution.winnerID == bidderID,
			Extended:      extended,
			EndsAt:        *lot.EndsAt,
		},
		lot:          lot,
		outbidUserID: outbidUser,
		rescheduled:  extended,
	}, nil
}

// bidResolution is the outcome of proxy competition for one incoming bid.
type bidResolution struct {
	currentBid     int64
	winnerID       string
	callerBidID    string
	demoteStanding bool
	newBids        []model.Bid
}

// resolve runs proxy-bid competition between the incoming bid and the
// standing winner. Each side's effective ceiling is max_bid when supplied,
// else the displayed amount. The resulting current bid is the second
// highest ceiling plus one increment, capped at the highest ceiling.
// Ties go to the earlier bid.
func resolve(lot model.Lot, standing *model.Bid, bidderID string, amount int64, maxBid *int64, now time.Time) bidResolution {
	callerBid := model.Bid{
		ID:        utils.GenerateID(),
		LotID:     lot.ID,
		BidderID:  bidderID,
		Amount:    amount,
		MaxBid:    maxBid,
		CreatedAt: now,
	}

	// First bid on the lot: the explicit amount stands.
	if standing == nil {
		callerBid.IsWinning = true
		return bidResolution{
			currentBid:  amount,
			winnerID:    bidderID,
			callerBidID: callerBid.ID,
			newBids:     []model.Bid{callerBid},
		}
	}

	// The standing winner raising their own ceiling does not bid against
	// themselves: the displayed price is unchanged.
	if standing.BidderID == bidderID {
		callerBid.Amount = *lot.CurrentBid
		callerBid.IsWinning = true
		return bidResolution{
			currentBid:     *lot.CurrentBid,
			winnerID:       bidderID,
			callerBidID:    callerBid.ID,
			demoteStanding: true,
			newBids:        []model.Bid{callerBid},
		}
	}

	standingCeiling := standing.Amount
	if standing.MaxBid != nil {
		standingCeiling = *standing.MaxBid
	}
	incomingCeiling := amount
	if maxBid != nil {
		incomingCeiling = *maxBid
	}

	if incomingCeiling > standingCeiling {
		// Incoming bidder wins: one increment over the losing ceiling,
		// capped at their own ceiling, never below the explicit amount.
		resolved := standingCeiling + IncrementFor(standingCeiling)
		if resolved > incomingCeiling {
			resolved = incomingCeiling
		}
		if resolved < amount {
			resolved = amount
		}
		res := bidResolution{
			currentBid:     resolved,
			winnerID:       bidderID,
			callerBidID:    callerBid.ID,
			demoteStanding: true,
		}
		if resolved == amount {
			callerBid.IsWinning = true
			res.newBids = []model.Bid{callerBid}
			return res
		}
		// The proxy placed more than the explicit amount on the caller's
		// behalf: record both the caller's bid and the auto bid.
		autoBid := model.Bid{
			ID:        utils.GenerateID(),
			LotID:     lot.ID,
			BidderID:  bidderID,
			Amount:    resolved,
			MaxBid:    maxBid,
			IsWinning: true,
			IsAutoBid: true,
			CreatedAt: now,
		}
		res.newBids = []model.Bid{callerBid, autoBid}
		return res
	}

	// Standing winner holds, either on a higher ceiling or on the tie-break
	// (their identical ceiling was placed earlier). Their proxy answers with
	// one increment over the challenger, capped at their ceiling.
	resolved := incomingCeiling + IncrementFor(incomingCeiling)
	if resolved > standingCeiling {
		resolved = standingCeiling
	}
	autoBid := model.Bid{
		ID:        utils.GenerateID(),
		LotID:     lot.ID,
		BidderID:  standing.BidderID,
		Amount:    resolved,
		MaxBid:    standing.MaxBid,
		IsWinning: true,
		IsAutoBid: true,
		CreatedAt: now,
	}
	return bidResolution{
		currentBid:     resolved,
		winnerID:       standing.BidderID,
		callerBidID:    callerBid.ID,
		demoteStanding: true,
		newBids:        []model.Bid{callerBid, autoBid},
	}
}

// countRejection bumps the rejection counter for known validation errors.
func (s *Service) countRejection(err error) {
	switch {
	case errors.Is(err, auctionerrors.ErrBidTooLow):
		metrics.BidsRejected.WithLabelValues("bid_too_low").Inc()
	case errors.Is(err, auctionerrors.ErrLotNotLive):
		metrics.BidsRejected.WithLabelValues("lot_not_live").Inc()
	case errors.Is(err, auctionerrors.ErrConcurrentConflict):
		metrics.BidsRejected.WithLabelValues("conflict").Inc()
	case errors.Is(err, auctionerrors.ErrInvalidBid):
		metrics.BidsRejected.WithLabelValues("invalid").Inc()
	}
}

// GetBidsForLot returns all bids for a lot, earliest first.
func (s *Service) GetBidsForLot(ctx context.Context, lotID string) ([]model.Bid, error) {
	if lotID == "" {
		return nil, fmt.Errorf("bidding: %w - empty lot ID", auctionerrors.ErrInvalidBid)
	}
	bids, err := s.ledger.ListBidsByLot(ctx, lotID)
	if err != nil {
		return nil, fmt.Errorf("bidding: failed to get bids for lot %s: %w", lotID, err)
	}
	return bids, nil
}

// GetWinningBid returns the bid currently flagged winning for a lot.
func (s *Service) GetWinningBid(ctx context.Context, lotID string) (model.Bid, error) {
	if lotID == "" {
		return model.Bid{}, fmt.Errorf("bidding: %w - empty lot ID", auctionerrors.ErrInvalidBid)
	}
	bid, err := s.ledger.GetWinningBid(ctx, lotID)
	if err != nil {
		return model.Bid{}, fmt.Errorf("bidding: failed to get winning bid for lot %s: %w", lotID, err)
	}
	return bid, nil
}

// GetLotsByBidder returns all lots a bidder has placed bids on.
func (s *Service) GetLotsByBidder(ctx context.Context, bidderID string) ([]model.Lot, error) {
	if bidderID == "" {
		return nil, fmt.Errorf("bidding: %w - empty bidder ID", auctionerrors.ErrInvalidBid)
	}
	lots, err := s.ledger.ListLotsByBidder(ctx, bidderID)
	if err != nil {
		return nil, fmt.Errorf("bidding: failed to get lots for bidder %s: %w", bidderID, err)
	}
	return lots, nil
}
