package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"auction-engine/internal/auctionerrors"
	bidding "auction-engine/internal/biddingService"
	model "auction-engine/internal/models"
	"auction-engine/services/auction/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

//go:generate mockgen -source=bidding_handler.go -destination=mock_service.go -package=handler

type BiddingServiceInterface interface {
	PlaceBid(ctx context.Context, lotID, bidderID string, amount int64, maxBid *int64) (bidding.BidResult, error)
	GetBidsForLot(ctx context.Context, lotID string) ([]model.Bid, error)
	GetWinningBid(ctx context.Context, lotID string) (model.Bid, error)
	GetLotsByBidder(ctx context.Context, bidderID string) ([]model.Lot, error)
}

type BiddingHandler struct {
	service BiddingServiceInterface
}

func NewBiddingHandler(service BiddingServiceInterface) *BiddingHandler {
	return &BiddingHandler{service: service}
}

// RecordBidHandler handles POST /bids
func (h *BiddingHandler) RecordBidHandler(c *gin.Context) {
	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "RecordBidHandler", err)
		return
	}

	result, err := h.service.PlaceBid(c.Request.Context(), req.LotID, req.BidderID, req.Amount, req.MaxBid)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Error("RecordBidHandler: failed to record bid", map[string]any{
			"handler":   "RecordBidHandler",
			"lot_id":    req.LotID,
			"bidder_id": req.BidderID,
			"error":     err.Error(),
		})
		return
	}

	resp := helpers.PlaceBidResponse{
		BidID:         result.BidID,
		NewCurrentBid: result.NewCurrentBid,
		IsWinning:     result.IsWinning,
		Extended:      result.Extended,
		EndsAt:        result.EndsAt.UTC().Format(time.RFC3339),
	}

	utils.JSONResponse(c, http.StatusCreated, resp, "bid recorded successfully")
	helpers.LogSuccess("RecordBidHandler", "bid recorded successfully", map[string]any{
		"bid_id":      result.BidID,
		"lot_id":      req.LotID,
		"bidder_id":   req.BidderID,
		"current_bid": result.NewCurrentBid,
		"extended":    result.Extended,
	})
}

// GetBidsByLotHandler handles GET /lots/:lot_id/bids
func (h *BiddingHandler) GetBidsByLotHandler(c *gin.Context) {
	lotID := c.Param("lot_id")
	bids, err := h.service.GetBidsForLot(c.Request.Context(), lotID)
	if err != nil && !errors.Is(err, auctionerrors.ErrNoBids) {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetBidsByLotHandler: error retrieving bids", map[string]any{"lot_id": lotID, "error": err.Error()})
		return
	}

	if bids == nil {
		bids = []model.Bid{}
	}

	utils.JSONResponse(c, http.StatusOK, bids, "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByLotHandler", "bids retrieved successfully", map[string]any{
		"lot_id": lotID,
		"count":  len(bids),
	})
}

// GetWinningBidHandler handles GET /lots/:lot_id/winning
func (h *BiddingHandler) GetWinningBidHandler(c *gin.Context) {
	lotID := c.Param("lot_id")
	bid, err := h.service.GetWinningBid(c.Request.Context(), lotID)
	if err != nil {
		// No winning bid yet -> 404
		if errors.Is(err, auctionerrors.ErrNoBids) {
			utils.JSONError(c, http.StatusNotFound, err, "no winning bid found")
			utils.Info("GetWinningBidHandler: no winning bid found", map[string]any{"lot_id": lotID})
			return
		}
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetWinningBidHandler: winning bid error", map[string]any{"lot_id": lotID, "error": err.Error()})
		return
	}

	resp := helpers.BidResponse{
		BidID:     bid.ID,
		LotID:     bid.LotID,
		BidderID:  bid.BidderID,
		Amount:    bid.Amount,
		IsWinning: bid.IsWinning,
		IsAutoBid: bid.IsAutoBid,
		CreatedAt: bid.CreatedAt.UTC().Format(time.RFC3339),
	}

	utils.JSONResponse(c, http.StatusOK, resp, "winning bid retrieved successfully")
	helpers.LogSuccess("GetWinningBidHandler", "winning bid retrieved successfully", map[string]any{
		"bid_id":    bid.ID,
		"lot_id":    bid.LotID,
		"bidder_id": bid.BidderID,
		"amount":    bid.Amount,
	})
}

// GetLotsByBidderHandler handles GET /bidders/:bidder_id/lots
func (h *BiddingHandler) GetLotsByBidderHandler(c *gin.Context) {
	bidderID := c.Param("bidder_id")
	lots, err := h.service.GetLotsByBidder(c.Request.Context(), bidderID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetLotsByBidderHandler: error retrieving lots", map[string]any{"bidder_id": bidderID, "error": err.Error()})
		return
	}

	if lots == nil {
		lots = []model.Lot{}
	}

	utils.JSONResponse(c, http.StatusOK, lots, "lots retrieved successfully")
	helpers.LogSuccess("GetLotsByBidderHandler", "lots retrieved successfully", map[string]any{
		"bidder_id":  bidderID,
		"lots_count": len(lots),
	})
}
