package finalizer

import (
	"context"
	"testing"
	"time"

	model "auction-engine/internal/models"
	"auction-engine/internal/repository"

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

func seedAuction(t *testing.T, ledger repository.Ledger, premiumPct, taxPct float64) model.Auction {
	t.Helper()
	now := time.Now().UTC()
	auction := model.Auction{
		ID:              uuid.NewString(),
		Title:           "Estate Sale",
		StartsAt:        now.Add(-2 * time.Hour),
		EndsAt:          now.Add(-time.Hour),
		Status:          model.AuctionLive,
		BuyerPremiumPct: premiumPct,
		TaxPct:          taxPct,
	}
	require.NoError(t, ledger.CreateAuction(context.Background(), &auction))
	return auction
}

type lotSpec struct {
	lotNumber int
	current   *int64
	reserve   *int64
	winner    *string
	shipping  int64
	endsIn    time.Duration
}

func seedLot(t *testing.T, ledger repository.Ledger, auctionID string, spec lotSpec) model.Lot {
	t.Helper()
	endsAt := time.Now().UTC().Add(spec.endsIn)
	lot := model.Lot{
		ID:              uuid.NewString(),
		AuctionID:       auctionID,
		LotNumber:       spec.lotNumber,
		Title:           "Old Clock",
		StartingBid:     50_00,
		Status:          model.LotLive,
		EndsAt:          &endsAt,
		CurrentBid:      spec.current,
		ReservePrice:    spec.reserve,
		WinningBidderID: spec.winner,
		ShippingCost:    spec.shipping,
	}
	require.NoError(t, ledger.CreateLot(context.Background(), &lot))
	return lot
}

func int64p(v int64) *int64 { return &v }
func strp(v string) *string { return &v }

func TestFinalizeAuction_WaitsForEveryLot(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)
	auction := seedAuction(t, ledger, 0, 0)

	expired := seedLot(t, ledger, auction.ID, lotSpec{lotNumber: 1, endsIn: -time.Minute})
	// Lot 2 is still running, possibly because a soft close extended it.
	seedLot(t, ledger, auction.ID, lotSpec{lotNumber: 2, endsIn: 30 * time.Minute})

	f := New(ledger, NewLocalLocker(), nil, nil)
	require.NoError(t, f.FinalizeAuction(ctx, auction.ID))

	got, err := ledger.GetAuction(ctx, auction.ID)
	require.NoError(t, err)
	require.Equal(t, model.AuctionLive, got.Status, "one live lot defers the whole auction")

	gotLot, err := ledger.GetLot(ctx, expired.ID)
	require.NoError(t, err)
	require.Equal(t, model.LotLive, gotLot.Status, "no lot closes until all can close")
}

func TestFinalizeAuction_SoldAgainstReserve(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)
	auction := seedAuction(t, ledger, 0, 0)

	met := seedLot(t, ledger, auction.ID, lotSpec{
		lotNumber: 1, endsIn: -time.Minute,
		current: int64p(100_00), reserve: int64p(80_00), winner: strp("alice"),
	})
	notMet := seedLot(t, ledger, auction.ID, lotSpec{
		lotNumber: 2, endsIn: -time.Minute,
		current: int64p(100_00), reserve: int64p(200_00), winner: strp("bob"),
	})
	noBids := seedLot(t, ledger, auction.ID, lotSpec{lotNumber: 3, endsIn: -time.Minute})
	noReserve := seedLot(t, ledger, auction.ID, lotSpec{
		lotNumber: 4, endsIn: -time.Minute,
		current: int64p(60_00), winner: strp("alice"),
	})

	f := New(ledger, NewLocalLocker(), nil, nil)
	require.NoError(t, f.FinalizeAuction(ctx, auction.ID))

	for _, tc := range []struct {
		lot    model.Lot
		status model.LotStatus
	}{
		{lot: met, status: model.LotSold},
		{lot: notMet, status: model.LotUnsold},
		{lot: noBids, status: model.LotUnsold},
		{lot: noReserve, status: model.LotSold},
	} {
		got, err := ledger.GetLot(ctx, tc.lot.ID)
		require.NoError(t, err)
		require.Equal(t, tc.status, got.Status, "lot %d", tc.lot.LotNumber)
	}

	got, err := ledger.GetAuction(ctx, auction.ID)
	require.NoError(t, err)
	require.Equal(t, model.AuctionEnded, got.Status)
}

func TestFinalizeAuction_OneInvoicePerBidderWithTotals(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)
	auction := seedAuction(t, ledger, 15, 8)

	seedLot(t, ledger, auction.ID, lotSpec{
		lotNumber: 1, endsIn: -time.Minute,
		current: int64p(100_00), winner: strp("alice"), shipping: 10_00,
	})
	seedLot(t, ledger, auction.ID, lotSpec{
		lotNumber: 2, endsIn: -time.Minute,
		current: int64p(200_00), winner: strp("alice"), shipping: 10_00,
	})
	seedLot(t, ledger, auction.ID, lotSpec{
		lotNumber: 3, endsIn: -time.Minute,
		current: int64p(50_00), winner: strp("bob"),
	})

	f := New(ledger, NewLocalLocker(), nil, nil)
	require.NoError(t, f.FinalizeAuction(ctx, auction.ID))

	invoices, err := ledger.ListPendingInvoices(ctx, 10)
	require.NoError(t, err)
	require.Len(t, invoices, 2, "one invoice per winning bidder")

	byUser := make(map[string]model.Invoice, len(invoices))
	for _, inv := range invoices {
		byUser[inv.UserID] = inv
	}

	alice := byUser["alice"]
	require.Equal(t, int64(300_00), alice.Subtotal)
	require.Equal(t, int64(45_00), alice.BuyerPremium, "15%% of the subtotal")
	require.Equal(t, int64(27_60), alice.Tax, "8%% of subtotal plus premium")
	require.Equal(t, int64(20_00), alice.Shipping)
	require.Equal(t, int64(392_60), alice.Total)

	bob := byUser["bob"]
	require.Equal(t, int64(50_00), bob.Subtotal)
	require.Equal(t, int64(7_50), bob.BuyerPremium)
	require.Equal(t, int64(4_60), bob.Tax)
	require.Equal(t, int64(62_10), bob.Total)

	// Every winner gets a won notification.
	notifications, err := ledger.ListUnsentNotifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, notifications, 2)
	for _, n := range notifications {
		require.Equal(t, model.NotifyWon, n.Kind)
	}
}

func TestFinalizeAuction_RerunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)
	auction := seedAuction(t, ledger, 0, 0)
	seedLot(t, ledger, auction.ID, lotSpec{
		lotNumber: 1, endsIn: -time.Minute,
		current: int64p(100_00), winner: strp("alice"),
	})

	f := New(ledger, NewLocalLocker(), nil, nil)
	require.NoError(t, f.FinalizeAuction(ctx, auction.ID))
	require.NoError(t, f.FinalizeAuction(ctx, auction.ID))

	invoices, err := ledger.ListPendingInvoices(ctx, 10)
	require.NoError(t, err)
	require.Len(t, invoices, 1, "a re-run creates no duplicate invoices")
}

func TestProcessAuctionEnds_SweepsOnlyReadyAuctions(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)

	ready := seedAuction(t, ledger, 0, 0)
	seedLot(t, ledger, ready.ID, lotSpec{
		lotNumber: 1, endsIn: -time.Minute,
		current: int64p(100_00), winner: strp("alice"),
	})

	running := seedAuction(t, ledger, 0, 0)
	seedLot(t, ledger, running.ID, lotSpec{lotNumber: 1, endsIn: time.Hour})

	f := New(ledger, NewLocalLocker(), nil, nil)
	require.NoError(t, f.ProcessAuctionEnds(ctx))

	gotReady, err := ledger.GetAuction(ctx, ready.ID)
	require.NoError(t, err)
	require.Equal(t, model.AuctionEnded, gotReady.Status)

	gotRunning, err := ledger.GetAuction(ctx, running.ID)
	require.NoError(t, err)
	require.Equal(t, model.AuctionLive, gotRunning.Status)
}

func TestLocalLocker_SingleFlight(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	release, ok, err := locker.Acquire(ctx, "auction-1")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok2, err := locker.Acquire(ctx, "auction-1")
	require.NoError(t, err)
	require.False(t, ok2, "held lock must not be granted twice")

	// A different auction is independent.
	releaseOther, okOther, err := locker.Acquire(ctx, "auction-2")
	require.NoError(t, err)
	require.True(t, okOther)
	releaseOther()

	release()
	release2, ok3, err := locker.Acquire(ctx, "auction-1")
	require.NoError(t, err)
	require.True(t, ok3, "released lock is acquirable again")
	release2()
}
