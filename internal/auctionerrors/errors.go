package auctionerrors

import "errors"

// Repository-level errors
var (
	ErrLotNotFound     = errors.New("lot not found")
	ErrAuctionNotFound = errors.New("auction not found")
	ErrBidderNotFound  = errors.New("bidder not found")
	ErrInvoiceNotFound = errors.New("invoice not found")
	ErrNoBids          = errors.New("no bids found for lot")
)

// Business logic errors
var (
	ErrInvalidBid      = errors.New("invalid bid")
	ErrBidTooLow       = errors.New("bid amount too low")
	ErrLotNotLive      = errors.New("lot is not open for bidding")
	ErrNoPaymentMethod = errors.New("no payment method on file")
)

// Conflict errors are retryable by the caller, never terminal.
var (
	ErrConcurrentConflict = errors.New("concurrent bid conflict")
)

// State machine errors
var (
	ErrInvalidTransition = errors.New("invalid status transition")
)
