package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/config"
	"auction-engine/internal/dispatch"
	"auction-engine/internal/events"
	"auction-engine/internal/finalizer"
	"auction-engine/internal/lotclock"
	"auction-engine/internal/metrics"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/internal/server"
	"auction-engine/internal/settlement"
	handler "auction-engine/services/auction/handler"
	"auction-engine/utils"

	"github.com/prometheus/client_golang/prometheus"
	rd "github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.Fatal("invalid configuration", map[string]any{"error": err.Error()})
	}

	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		utils.Fatal("failed to open database", map[string]any{"error": err.Error()})
	}
	if err := repository.AutoMigrate(db); err != nil {
		utils.Fatal("failed to migrate database", map[string]any{"error": err.Error()})
	}
	ledger := repository.NewGormLedger(db)

	rdb := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	producer := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()

	metrics.Register(prometheus.DefaultRegisterer)

	clock := lotclock.New(ledger)
	defer clock.Close()

	biddingService := bidding.NewService(ledger, clock, producer)
	auctionFinalizer := finalizer.New(ledger, finalizer.NewRedisLocker(rdb, cfg.FinalizeLockTTL), clock, producer)
	pipeline := settlement.New(ledger, settlement.LogProcessor{}, producer, cfg.CaptureBatchSize)
	dispatcher := dispatch.New(ledger, dispatch.LogNotifier{}, cfg.DispatchBatchSize, cfg.DispatchDelay, cfg.MaxSendAttempts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Restore timers for lots that were live when the process last exited.
	// A lot whose deadline already passed fires immediately and flows
	// through the usual candidate path.
	rescheduleLiveLots(ctx, ledger, clock)

	go auctionFinalizer.ConsumeCandidates(ctx, clock.Candidates())
	go runTriggerLoop(ctx, cfg.TriggerInterval, auctionFinalizer, pipeline, dispatcher)

	biddingHandler := handler.NewBiddingHandler(biddingService)
	opsHandler := handler.NewOpsHandler(ledger, auctionFinalizer, pipeline, dispatcher, clock)
	router := server.SetupRouter(biddingHandler, opsHandler)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}
	go func() {
		utils.Info("Starting auction engine", map[string]any{"addr": cfg.HTTPAddr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Fatal("server failed", map[string]any{"error": err.Error()})
		}
	}()

	<-ctx.Done()
	utils.Info("Shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Error("server shutdown failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	utils.Info("Shutdown complete", nil)
}

// rescheduleLiveLots re-arms lot clock timers after a restart.
func rescheduleLiveLots(ctx context.Context, ledger repository.Ledger, clock *lotclock.Clock) {
	auctions, err := ledger.ListAuctionsByStatus(ctx, model.AuctionLive)
	if err != nil {
		utils.Error("failed to list live auctions at startup", map[string]any{"error": err.Error()})
		return
	}
	restored := 0
	for _, auction := range auctions {
		lots, err := ledger.ListLotsByAuction(ctx, auction.ID)
		if err != nil {
			utils.Error("failed to list lots at startup", map[string]any{
				"auction_id": auction.ID,
				"error":      err.Error(),
			})
			continue
		}
		for _, lot := range lots {
			if lot.Status.Terminal() || lot.EndsAt == nil {
				continue
			}
			clock.Schedule(lot.ID, *lot.EndsAt)
			restored++
		}
	}
	if restored > 0 {
		utils.Info("restored lot timers", map[string]any{"count": restored})
	}
}

// runTriggerLoop is the in-process cron: each tick sweeps auction ends,
// captures pending invoices and dispatches queued notifications. All three
// are idempotent, so overlapping with the admin endpoints is harmless.
func runTriggerLoop(ctx context.Context, interval time.Duration, f *finalizer.Finalizer, p *settlement.Pipeline, d *dispatch.Dispatcher) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.ProcessAuctionEnds(ctx); err != nil {
				utils.Error("trigger: process auction ends failed", map[string]any{"error": err.Error()})
			}
			if err := p.CaptureInvoices(ctx); err != nil {
				utils.Error("trigger: capture invoices failed", map[string]any{"error": err.Error()})
			}
			if err := d.DispatchPending(ctx); err != nil {
				utils.Error("trigger: dispatch notifications failed", map[string]any{"error": err.Error()})
			}
		}
	}
}
