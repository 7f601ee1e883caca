package lotclock

import (
	"context"
	"sync"
	"time"

	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/utils"
)

// Clock owns one scheduled deadline per lot. It re-reads the lot's ends_at
// from the ledger at fire time and reschedules instead of closing when the
// deadline has been pushed forward by a concurrent bid, which removes the
// race between "timer fires" and "bid extends".
type Clock struct {
	ledger     repository.Ledger
	candidates chan string

	mu     sync.Mutex
	timers map[string]*entry
	closed bool
}

// entry tracks one armed timer. gen invalidates stale fires after a
// reschedule: a fire whose generation no longer matches is ignored.
type entry struct {
	timer *time.Timer
	gen   uint64
}

// New creates a lot clock. Candidates for close are emitted on the channel
// returned by Candidates; the buffer absorbs bursts and the periodic
// finalizer sweep backstops any dropped emissions.
func New(ledger repository.Ledger) *Clock {
	return &Clock{
		ledger:     ledger,
		candidates: make(chan string, 256),
		timers:     make(map[string]*entry),
	}
}

// Candidates returns the channel of lot IDs whose deadline has passed.
func (c *Clock) Candidates() <-chan string {
	return c.candidates
}

// Schedule arms or re-arms the deadline for a lot. A deadline already in
// the past fires immediately.
func (c *Clock) Schedule(lotID string, endsAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	var gen uint64
	if prev, ok := c.timers[lotID]; ok {
		prev.timer.Stop()
		gen = prev.gen + 1
	}

	e := &entry{gen: gen}
	delay := time.Until(endsAt)
	if delay < 0 {
		delay = 0
	}
	e.timer = time.AfterFunc(delay, func() {
		c.fired(lotID, gen)
	})
	c.timers[lotID] = e
}

// Cancel retires a lot's timer, e.g. when the lot reaches a terminal status.
func (c *Clock) Cancel(lotID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.timers[lotID]; ok {
		e.timer.Stop()
		delete(c.timers, lotID)
	}
}

// Close stops all timers. No candidates are emitted afterwards.
func (c *Clock) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for lotID, e := range c.timers {
		e.timer.Stop()
		delete(c.timers, lotID)
	}
}

// fired handles a timer expiry. It drops stale generations, then decides
// against the ledger's current view of the lot whether to retire,
// reschedule, or emit a close candidate.
func (c *Clock) fired(lotID string, gen uint64) {
	c.mu.Lock()
	e, ok := c.timers[lotID]
	if c.closed || !ok || e.gen != gen {
		c.mu.Unlock()
		return
	}
	delete(c.timers, lotID)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lot, err := c.ledger.GetLot(ctx, lotID)
	if err != nil {
		utils.Warn("lotclock: lot read failed at fire time", map[string]any{
			"lot_id": lotID,
			"error":  err.Error(),
		})
		return
	}

	if lot.Status.Terminal() || lot.EndsAt == nil {
		return
	}

	now := time.Now().UTC()
	if lot.EndsAt.After(now) {
		// A bid moved the deadline while the timer was in flight.
		c.Schedule(lotID, *lot.EndsAt)
		return
	}

	if lot.Status != model.LotLive && lot.Status != model.LotUpcoming {
		return
	}

	select {
	case c.candidates <- lotID:
	default:
		// Buffer full; the periodic sweep will pick the lot up.
		utils.Warn("lotclock: candidate channel full, dropping", map[string]any{
			"lot_id": lotID,
		})
	}
}
