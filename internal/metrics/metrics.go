package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the bidding and settlement engine.
var (
	BidsAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auction_bids_accepted_total",
			Help: "Total number of accepted bids",
		},
	)

	BidsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_bids_rejected_total",
			Help: "Total number of rejected bids by reason",
		},
		[]string{"reason"},
	)

	LotsExtended = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auction_lots_extended_total",
			Help: "Total number of soft-close lot extensions",
		},
	)

	LotsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_lots_closed_total",
			Help: "Total number of lots closed by outcome",
		},
		[]string{"outcome"},
	)

	AuctionsEnded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auction_auctions_ended_total",
			Help: "Total number of auctions finalized",
		},
	)

	InvoicesCaptured = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_invoices_captured_total",
			Help: "Total number of invoice capture attempts by result",
		},
		[]string{"result"},
	)

	NotificationsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auction_notifications_sent_total",
			Help: "Total number of notifications delivered",
		},
	)

	NotificationsDeadLettered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auction_notifications_dead_lettered_total",
			Help: "Total number of notifications dead-lettered after repeated failures",
		},
	)
)

// Register installs all engine metrics on the given registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(
		BidsAccepted,
		BidsRejected,
		LotsExtended,
		LotsClosed,
		AuctionsEnded,
		InvoicesCaptured,
		NotificationsSent,
		NotificationsDeadLettered,
	)
}
