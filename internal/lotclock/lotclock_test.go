package lotclock

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

func seedLiveLot(t *testing.T, ledger repository.Ledger, endsAt time.Time) model.Lot {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	auction := model.Auction{
		ID:       uuid.NewString(),
		Title:    "Timed Sale",
		StartsAt: now.Add(-time.Hour),
		EndsAt:   now.Add(time.Hour),
		Status:   model.AuctionLive,
	}
	require.NoError(t, ledger.CreateAuction(ctx, &auction))

	lot := model.Lot{
		ID:          uuid.NewString(),
		AuctionID:   auction.ID,
		LotNumber:   1,
		Title:       "Old Clock",
		StartingBid: 50_00,
		Status:      model.LotLive,
		EndsAt:      &endsAt,
	}
	require.NoError(t, ledger.CreateLot(ctx, &lot))
	return lot
}

func waitForCandidate(t *testing.T, c *Clock, timeout time.Duration) (string, bool) {
	t.Helper()
	select {
	case lotID := <-c.Candidates():
		return lotID, true
	case <-time.After(timeout):
		return "", false
	}
}

func TestClock_EmitsCandidateAtDeadline(t *testing.T) {
	ledger := newTestLedger(t)
	lot := seedLiveLot(t, ledger, time.Now().UTC().Add(50*time.Millisecond))

	clock := New(ledger)
	defer clock.Close()

	clock.Schedule(lot.ID, *lot.EndsAt)

	lotID, ok := waitForCandidate(t, clock, 2*time.Second)
	require.True(t, ok, "deadline passed, a close candidate is due")
	require.Equal(t, lot.ID, lotID)
}

func TestClock_PastDeadlineFiresImmediately(t *testing.T) {
	ledger := newTestLedger(t)
	lot := seedLiveLot(t, ledger, time.Now().UTC().Add(-time.Minute))

	clock := New(ledger)
	defer clock.Close()

	clock.Schedule(lot.ID, *lot.EndsAt)

	lotID, ok := waitForCandidate(t, clock, 2*time.Second)
	require.True(t, ok)
	require.Equal(t, lot.ID, lotID)
}

func TestClock_ReschedulesWhenDeadlineMoved(t *testing.T) {
	ledger := newTestLedger(t)
	// The ledger says the lot runs another hour; the armed timer is stale.
	lot := seedLiveLot(t, ledger, time.Now().UTC().Add(time.Hour))

	clock := New(ledger)
	defer clock.Close()

	clock.Schedule(lot.ID, time.Now().UTC().Add(-time.Second))

	// The stale fire consults the ledger and rearms instead of emitting.
	_, ok := waitForCandidate(t, clock, 300*time.Millisecond)
	require.False(t, ok, "a moved deadline must not produce a close candidate")
}

func TestClock_TerminalLotNeverEmits(t *testing.T) {
	ledger := newTestLedger(t)
	lot := seedLiveLot(t, ledger, time.Now().UTC().Add(-time.Minute))
	require.NoError(t, ledger.CloseLot(context.Background(), lot.ID, model.LotSold))

	clock := New(ledger)
	defer clock.Close()

	clock.Schedule(lot.ID, *lot.EndsAt)

	_, ok := waitForCandidate(t, clock, 300*time.Millisecond)
	require.False(t, ok)
}

func TestClock_CancelStopsTimer(t *testing.T) {
	ledger := newTestLedger(t)
	lot := seedLiveLot(t, ledger, time.Now().UTC().Add(100*time.Millisecond))

	clock := New(ledger)
	defer clock.Close()

	clock.Schedule(lot.ID, *lot.EndsAt)
	clock.Cancel(lot.ID)

	_, ok := waitForCandidate(t, clock, 400*time.Millisecond)
	require.False(t, ok)
}

func TestClock_RescheduleSupersedesEarlierTimer(t *testing.T) {
	ledger := newTestLedger(t)
	lot := seedLiveLot(t, ledger, time.Now().UTC().Add(time.Hour))

	clock := New(ledger)
	defer clock.Close()

	// First schedule would fire almost immediately; the reschedule bumps it
	// an hour out, so nothing may arrive.
	clock.Schedule(lot.ID, time.Now().UTC().Add(20*time.Millisecond))
	clock.Schedule(lot.ID, *lot.EndsAt)

	_, ok := waitForCandidate(t, clock, 300*time.Millisecond)
	require.False(t, ok)
}

func TestClock_CloseDropsAllTimers(t *testing.T) {
	ledger := newTestLedger(t)
	lot := seedLiveLot(t, ledger, time.Now().UTC().Add(50*time.Millisecond))

	clock := New(ledger)
	clock.Schedule(lot.ID, *lot.EndsAt)
	clock.Close()

	_, ok := waitForCandidate(t, clock, 300*time.Millisecond)
	require.False(t, ok)
}
