package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/services/auction/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// defaultLotStagger spaces the derived close times of consecutive lots
// when the operator did not schedule them explicitly.
const defaultLotStagger = time.Minute

// AuctionCloser triggers the finalizer sweep.
type AuctionCloser interface {
	ProcessAuctionEnds(ctx context.Context) error
}

// InvoiceCapturer triggers the settlement pipeline.
type InvoiceCapturer interface {
	CaptureInvoices(ctx context.Context) error
	MarkShipped(ctx context.Context, invoiceID, trackingNumber string) error
}

// PendingDispatcher triggers the notification dispatcher.
type PendingDispatcher interface {
	DispatchPending(ctx context.Context) error
}

// LotScheduler arms and retires lot clock timers.
type LotScheduler interface {
	Schedule(lotID string, endsAt time.Time)
	Cancel(lotID string)
}

// OpsHandler covers the operator surface: auction/lot/bidder setup, status
// transitions, invoices, and the periodic trigger endpoints.
type OpsHandler struct {
	ledger     repository.Ledger
	closer     AuctionCloser
	capturer   InvoiceCapturer
	dispatcher PendingDispatcher
	scheduler  LotScheduler
}

func NewOpsHandler(ledger repository.Ledger, closer AuctionCloser, capturer InvoiceCapturer, dispatcher PendingDispatcher, scheduler LotScheduler) *OpsHandler {
	return &OpsHandler{
		ledger:     ledger,
		closer:     closer,
		capturer:   capturer,
		dispatcher: dispatcher,
		scheduler:  scheduler,
	}
}

// CreateAuctionHandler handles POST /auctions
func (h *OpsHandler) CreateAuctionHandler(c *gin.Context) {
	var req helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}
	if !req.EndsAt.After(req.StartsAt) {
		utils.JSONError(c, http.StatusBadRequest, fmt.Errorf("ends_at must be after starts_at"), "invalid auction window")
		return
	}

	auction := model.Auction{
		ID:                     utils.GenerateID(),
		Title:                  req.Title,
		StartsAt:               req.StartsAt,
		EndsAt:                 req.EndsAt,
		Status:                 model.AuctionDraft,
		BuyerPremiumPct:        req.BuyerPremiumPct,
		TaxPct:                 req.TaxPct,
		AutoExtendThresholdMin: req.AutoExtendThresholdMin,
		AutoExtendMin:          req.AutoExtendMin,
	}
	if err := h.ledger.CreateAuction(c.Request.Context(), &auction); err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, err, message)
		return
	}

	utils.JSONResponse(c, http.StatusCreated, auction, "auction created successfully")
	helpers.LogSuccess("CreateAuctionHandler", "auction created successfully", map[string]any{
		"auction_id": auction.ID,
	})
}

// CreateLotHandler handles POST /auctions/:auction_id/lots
func (h *OpsHandler) CreateLotHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	var req helpers.CreateLotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateLotHandler", err)
		return
	}

	auction, err := h.ledger.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, err, message)
		return
	}
	if auction.Status == model.AuctionEnded || auction.Status == model.AuctionCanceled {
		utils.JSONError(c, http.StatusConflict, fmt.Errorf("auction %s is %s", auctionID, auction.Status), "auction is closed")
		return
	}

	category := model.Category(req.Category)
	if category == "" {
		category = model.CategoryGeneral
	}
	if _, err := model.DecodeLotDetails(category, req.Details); err != nil {
		utils.JSONError(c, http.StatusBadRequest, err, "invalid lot details")
		return
	}

	lot := model.Lot{
		ID:           utils.GenerateID(),
		AuctionID:    auctionID,
		LotNumber:    req.LotNumber,
		Title:        req.Title,
		Category:     category,
		Details:      req.Details,
		StartingBid:  req.StartingBid,
		ReservePrice: req.ReservePrice,
		ShippingCost: req.ShippingCost,
		EndsAt:       req.EndsAt,
		Status:       model.LotUpcoming,
	}
	if auction.Status == model.AuctionLive {
		lot.Status = model.LotLive
		// Deadline derivation for unscheduled lots normally happens in the
		// live transition; a lot added after that point derives its close
		// time here or it would never become finalizable.
		if lot.EndsAt == nil {
			derived := auction.EndsAt.Add(time.Duration(lot.LotNumber-1) * defaultLotStagger)
			lot.EndsAt = &derived
		}
	}
	if err := h.ledger.CreateLot(c.Request.Context(), &lot); err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, err, message)
		return
	}
	if lot.Status == model.LotLive && lot.EndsAt != nil {
		h.scheduler.Schedule(lot.ID, *lot.EndsAt)
	}

	utils.JSONResponse(c, http.StatusCreated, lot, "lot created successfully")
	helpers.LogSuccess("CreateLotHandler", "lot created successfully", map[string]any{
		"auction_id": auctionID,
		"lot_id":     lot.ID,
		"lot_number": lot.LotNumber,
	})
}

// AuctionStatusHandler handles POST /auctions/:auction_id/status.
// Transitions are monotonic; going live opens the lots and derives any
// missing per-lot close times from the auction window, staggered by lot.
func (h *OpsHandler) AuctionStatusHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	var req helpers.AuctionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "AuctionStatusHandler", err)
		return
	}
	to := model.AuctionStatus(req.Status)

	ctx := c.Request.Context()
	auction, err := h.ledger.GetAuction(ctx, auctionID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, err, message)
		return
	}

	var scheduled []model.Lot
	err = h.ledger.Transact(ctx, func(tx repository.Ledger) error {
		if err := tx.SetAuctionStatus(ctx, auctionID, auction.Status, to); err != nil {
			return err
		}
		switch to {
		case model.AuctionLive:
			if err := tx.MarkLotsLive(ctx, auctionID); err != nil {
				return err
			}
			lots, err := tx.ListLotsByAuction(ctx, auctionID)
			if err != nil {
				return err
			}
			for _, lot := range lots {
				if lot.Status.Terminal() {
					continue
				}
				endsAt := lot.EndsAt
				if endsAt == nil {
					derived := auction.EndsAt.Add(time.Duration(lot.LotNumber-1) * defaultLotStagger)
					if err := tx.SetLotSchedule(ctx, lot.ID, derived); err != nil {
						return err
					}
					endsAt = &derived
				}
				lot.EndsAt = endsAt
				scheduled = append(scheduled, lot)
			}
		case model.AuctionCanceled:
			if err := tx.WithdrawLots(ctx, auctionID); err != nil {
				return err
			}
			lots, err := tx.ListLotsByAuction(ctx, auctionID)
			if err != nil {
				return err
			}
			scheduled = lots
		}
		return nil
	})
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, err, message)
		return
	}

	// Arm or retire timers only after the transaction committed.
	switch to {
	case model.AuctionLive:
		for _, lot := range scheduled {
			if lot.EndsAt != nil {
				h.scheduler.Schedule(lot.ID, *lot.EndsAt)
			}
		}
	case model.AuctionCanceled:
		for _, lot := range scheduled {
			h.scheduler.Cancel(lot.ID)
		}
	}

	utils.JSONResponse(c, http.StatusOK, gin.H{"auction_id": auctionID, "status": to}, "auction status updated")
	helpers.LogSuccess("AuctionStatusHandler", "auction status updated", map[string]any{
		"auction_id": auctionID,
		"from":       string(auction.Status),
		"to":         string(to),
	})
}

// CreateBidderHandler handles POST /bidders
func (h *OpsHandler) CreateBidderHandler(c *gin.Context) {
	var req helpers.CreateBidderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateBidderHandler", err)
		return
	}

	bidder := model.Bidder{
		ID:                     utils.GenerateID(),
		Email:                  req.Email,
		Name:                   req.Name,
		PaymentCustomerID:      req.PaymentCustomerID,
		DefaultPaymentMethodID: req.DefaultPaymentMethodID,
	}
	if err := h.ledger.CreateBidder(c.Request.Context(), &bidder); err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, err, message)
		return
	}

	utils.JSONResponse(c, http.StatusCreated, bidder, "bidder created successfully")
}

// GetInvoiceHandler handles GET /invoices/:invoice_id
func (h *OpsHandler) GetInvoiceHandler(c *gin.Context) {
	invoiceID := c.Param("invoice_id")
	invoice, err := h.ledger.GetInvoice(c.Request.Context(), invoiceID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, err, message)
		return
	}
	utils.JSONResponse(c, http.StatusOK, invoice, "invoice retrieved successfully")
}

// ShipInvoiceHandler handles POST /invoices/:invoice_id/ship
func (h *OpsHandler) ShipInvoiceHandler(c *gin.Context) {
	invoiceID := c.Param("invoice_id")
	var req helpers.ShipInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "ShipInvoiceHandler", err)
		return
	}

	if err := h.capturer.MarkShipped(c.Request.Context(), invoiceID, req.TrackingNumber); err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, err, message)
		return
	}

	utils.JSONResponse(c, http.StatusOK, gin.H{"invoice_id": invoiceID, "tracking_number": req.TrackingNumber}, "invoice marked shipped")
}

// ProcessAuctionEndsHandler handles POST /admin/process-auction-ends
func (h *OpsHandler) ProcessAuctionEndsHandler(c *gin.Context) {
	if err := h.closer.ProcessAuctionEnds(c.Request.Context()); err != nil {
		utils.JSONError(c, http.StatusInternalServerError, err, "process auction ends failed")
		return
	}
	utils.JSONResponse(c, http.StatusOK, nil, "auction ends processed")
}

// CaptureInvoicesHandler handles POST /admin/capture-invoices
func (h *OpsHandler) CaptureInvoicesHandler(c *gin.Context) {
	if err := h.capturer.CaptureInvoices(c.Request.Context()); err != nil {
		utils.JSONError(c, http.StatusInternalServerError, err, "capture invoices failed")
		return
	}
	utils.JSONResponse(c, http.StatusOK, nil, "pending invoices captured")
}

// DispatchNotificationsHandler handles POST /admin/dispatch-notifications
func (h *OpsHandler) DispatchNotificationsHandler(c *gin.Context) {
	if err := h.dispatcher.DispatchPending(c.Request.Context()); err != nil {
		utils.JSONError(c, http.StatusInternalServerError, err, "dispatch notifications failed")
		return
	}
	utils.JSONResponse(c, http.StatusOK, nil, "pending notifications dispatched")
}
