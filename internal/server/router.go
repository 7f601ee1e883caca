package server

import (
	"net/http"

	handler "auction-engine/services/auction/handler"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter configures all Gin routes for the application
func SetupRouter(biddingHandler *handler.BiddingHandler, opsHandler *handler.OpsHandler) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	bids := router.Group("/bids")
	{
		bids.POST("", biddingHandler.RecordBidHandler)
	}

	lots := router.Group("/lots")
	{
		lots.GET("/:lot_id/bids", biddingHandler.GetBidsByLotHandler)
		lots.GET("/:lot_id/winning", biddingHandler.GetWinningBidHandler)
	}

	bidders := router.Group("/bidders")
	{
		bidders.POST("", opsHandler.CreateBidderHandler)
		bidders.GET("/:bidder_id/lots", biddingHandler.GetLotsByBidderHandler)
	}

	auctions := router.Group("/auctions")
	{
		auctions.POST("", opsHandler.CreateAuctionHandler)
		auctions.POST("/:auction_id/lots", opsHandler.CreateLotHandler)
		auctions.POST("/:auction_id/status", opsHandler.AuctionStatusHandler)
	}

	invoices := router.Group("/invoices")
	{
		invoices.GET("/:invoice_id", opsHandler.GetInvoiceHandler)
		invoices.POST("/:invoice_id/ship", opsHandler.ShipInvoiceHandler)
	}

	// Periodic trigger surface: the in-process ticker and any external
	// cron hit the same idempotent endpoints.
	admin := router.Group("/admin")
	{
		admin.POST("/process-auction-ends", opsHandler.ProcessAuctionEndsHandler)
		admin.POST("/capture-invoices", opsHandler.CaptureInvoicesHandler)
		admin.POST("/dispatch-notifications", opsHandler.DispatchNotificationsHandler)
	}

	return router
}
