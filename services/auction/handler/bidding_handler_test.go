package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"auction-engine/internal/auctionerrors"
	bidding "auction-engine/internal/biddingService"
	model "auction-engine/internal/models"
	"auction-engine/services/auction/helpers"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func int64p(v int64) *int64 { return &v }

// Test RecordBidHandler
func TestRecordBidHandler(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockService := NewMockBiddingServiceInterface(ctrl)
	handler := NewBiddingHandler(mockService)

	// Initialize Gin in test mode
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/bids", handler.RecordBidHandler)

	now := time.Now().UTC()

	tests := []struct {
		name           string
		requestBody    any
		mockSetup      func()
		expectedStatus int
		expectedMsg    string
		validateData   func(t *testing.T, data map[string]any)
	}{
		{
			name: "success_valid_bid",
			requestBody: helpers.PlaceBidRequest{
				LotID:    "lot1",
				BidderID: "bidder1",
				Amount:   100_00,
			},
			mockSetup: func() {
				mockService.EXPECT().
					PlaceBid(gomock.Any(), "lot1", "bidder1", int64(100_00), nil).
					Return(bidding.BidResult{
						BidID:         uuid.NewString(),
						NewCurrentBid: 100_00,
						IsWinning:     true,
						EndsAt:        now.Add(time.Hour),
					}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "bid recorded successfully",
			validateData: func(t *testing.T, data map[string]any) {
				bidID := data["bid_id"].(string)
				require.NotEmpty(t, bidID)
				_, parseErr := uuid.Parse(bidID)
				require.NoError(t, parseErr, "BidID should be a valid UUID")
				require.Equal(t, float64(100_00), data["new_current_bid"])
				require.Equal(t, true, data["is_winning"])
				require.Equal(t, false, data["extended"])
			},
		},
		{
			name: "success_proxy_bid_with_ceiling",
			requestBody: helpers.PlaceBidRequest{
				LotID:    "lot1",
				BidderID: "bidder1",
				Amount:   100_00,
				MaxBid:   int64p(150_00),
			},
			mockSetup: func() {
				mockService.EXPECT().
					PlaceBid(gomock.Any(), "lot1", "bidder1", int64(100_00), gomock.Not(gomock.Nil())).
					Return(bidding.BidResult{
						BidID:         uuid.NewString(),
						NewCurrentBid: 100_00,
						IsWinning:     true,
						EndsAt:        now.Add(time.Hour),
					}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "bid recorded successfully",
		},
		{
			name:           "invalid_json",
			requestBody:    `{invalid json}`,
			mockSetup:      func() {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name: "missing_lot_id",
			requestBody: helpers.PlaceBidRequest{
				LotID:    "",
				BidderID: "bidder1",
				Amount:   50_00,
			},
			mockSetup:      func() {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name: "missing_bidder_id",
			requestBody: helpers.PlaceBidRequest{
				LotID:    "lot1",
				BidderID: "",
				Amount:   50_00,
			},
			mockSetup:      func() {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name: "invalid_amount_zero",
			requestBody: helpers.PlaceBidRequest{
				LotID:    "lot1",
				BidderID: "bidder1",
				Amount:   0,
			},
			mockSetup:      func() {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name: "bid_too_low",
			requestBody: helpers.PlaceBidRequest{
				LotID:    "lot1",
				BidderID: "bidder1",
				Amount:   50_00,
			},
			mockSetup: func() {
				mockService.EXPECT().
					PlaceBid(gomock.Any(), "lot1", "bidder1", int64(50_00), nil).
					Return(bidding.BidResult{}, fmt.Errorf("minimum acceptable bid is 10000: %w", auctionerrors.ErrBidTooLow))
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "bid amount too low",
		},
		{
			name: "lot_not_live",
			requestBody: helpers.PlaceBidRequest{
				LotID:    "lot1",
				BidderID: "bidder1",
				Amount:   50_00,
			},
			mockSetup: func() {
				mockService.EXPECT().
					PlaceBid(gomock.Any(), "lot1", "bidder1", int64(50_00), nil).
					Return(bidding.BidResult{}, auctionerrors.ErrLotNotLive)
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "lot is not open for bidding",
		},
		{
			name: "no_payment_method",
			requestBody: helpers.PlaceBidRequest{
				LotID:    "lot1",
				BidderID: "bidder1",
				Amount:   50_00,
			},
			mockSetup: func() {
				mockService.EXPECT().
					PlaceBid(gomock.Any(), "lot1", "bidder1", int64(50_00), nil).
					Return(bidding.BidResult{}, auctionerrors.ErrNoPaymentMethod)
			},
			expectedStatus: http.StatusPaymentRequired,
			expectedMsg:    "no payment method on file",
		},
		{
			name: "concurrent_conflict",
			requestBody: helpers.PlaceBidRequest{
				LotID:    "lot1",
				BidderID: "bidder1",
				Amount:   50_00,
			},
			mockSetup: func() {
				mockService.EXPECT().
					PlaceBid(gomock.Any(), "lot1", "bidder1", int64(50_00), nil).
					Return(bidding.BidResult{}, auctionerrors.ErrConcurrentConflict)
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "concurrent bid conflict, retry",
		},
		{
			name: "unknown_lot",
			requestBody: helpers.PlaceBidRequest{
				LotID:    "nope",
				BidderID: "bidder1",
				Amount:   50_00,
			},
			mockSetup: func() {
				mockService.EXPECT().
					PlaceBid(gomock.Any(), "nope", "bidder1", int64(50_00), nil).
					Return(bidding.BidResult{}, auctionerrors.ErrLotNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "lot not found",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.mockSetup()

			var body []byte
			switch v := tc.requestBody.(type) {
			case string:
				body = []byte(v)
			default:
				var err error
				body, err = json.Marshal(v)
				require.NoError(t, err)
			}

			req := httptest.NewRequest(http.MethodPost, "/bids", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, tc.expectedStatus, rec.Code)

			var envelope map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
			require.Equal(t, tc.expectedMsg, envelope["message"])

			if tc.validateData != nil {
				data, ok := envelope["data"].(map[string]any)
				require.True(t, ok, "response should carry a data object")
				tc.validateData(t, data)
			}
		})
	}
}

// Test GetWinningBidHandler
func TestGetWinningBidHandler(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockService := NewMockBiddingServiceInterface(ctrl)
	handler := NewBiddingHandler(mockService)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/lots/:lot_id/winning", handler.GetWinningBidHandler)

	now := time.Now().UTC()

	t.Run("winning_bid_found", func(t *testing.T) {
		mockService.EXPECT().
			GetWinningBid(gomock.Any(), "lot1").
			Return(model.Bid{
				ID:        "bid1",
				LotID:     "lot1",
				BidderID:  "bidder1",
				Amount:    130_00,
				IsWinning: true,
				IsAutoBid: true,
				CreatedAt: now,
			}, nil)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lots/lot1/winning", nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var envelope map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
		data := envelope["data"].(map[string]any)
		require.Equal(t, "bid1", data["bid_id"])
		require.Equal(t, "bidder1", data["bidder_id"])
		require.Equal(t, float64(130_00), data["amount"])
		require.Equal(t, true, data["is_auto_bid"])
	})

	t.Run("no_winning_bid", func(t *testing.T) {
		mockService.EXPECT().
			GetWinningBid(gomock.Any(), "lot1").
			Return(model.Bid{}, fmt.Errorf("no winning bid: %w", auctionerrors.ErrNoBids))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lots/lot1/winning", nil))

		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

// Test GetBidsByLotHandler
func TestGetBidsByLotHandler(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockService := NewMockBiddingServiceInterface(ctrl)
	handler := NewBiddingHandler(mockService)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/lots/:lot_id/bids", handler.GetBidsByLotHandler)

	t.Run("returns_bids", func(t *testing.T) {
		mockService.EXPECT().
			GetBidsForLot(gomock.Any(), "lot1").
			Return([]model.Bid{
				{ID: "bid1", LotID: "lot1", BidderID: "alice", Amount: 100_00},
				{ID: "bid2", LotID: "lot1", BidderID: "bob", Amount: 110_00, IsWinning: true},
			}, nil)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lots/lot1/bids", nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var envelope map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
		data := envelope["data"].([]any)
		require.Len(t, data, 2)
	})

	t.Run("empty_is_not_an_error", func(t *testing.T) {
		mockService.EXPECT().
			GetBidsForLot(gomock.Any(), "lot1").
			Return(nil, nil)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lots/lot1/bids", nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var envelope map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
		data := envelope["data"].([]any)
		require.Empty(t, data)
	})
}

// Test GetLotsByBidderHandler
func TestGetLotsByBidderHandler(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockService := NewMockBiddingServiceInterface(ctrl)
	handler := NewBiddingHandler(mockService)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/bidders/:bidder_id/lots", handler.GetLotsByBidderHandler)

	mockService.EXPECT().
		GetLotsByBidder(gomock.Any(), "alice").
		Return([]model.Lot{
			{ID: "lot1", AuctionID: "a1", LotNumber: 1, Title: "Old Clock", Status: model.LotLive},
		}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bidders/alice/lots", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	data := envelope["data"].([]any)
	require.Len(t, data, 1)
}
