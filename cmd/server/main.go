package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/jonboulle/clockwork"

	"github.com/bili-qml-team/bvote/internal/archive"
	"github.com/bili-qml-team/bvote/internal/captcha"
	"github.com/bili-qml-team/bvote/internal/config"
	"github.com/bili-qml-team/bvote/internal/handler"
	"github.com/bili-qml-team/bvote/internal/middleware"
	"github.com/bili-qml-team/bvote/internal/router"
	"github.com/bili-qml-team/bvote/internal/service"
	"github.com/bili-qml-team/bvote/internal/store"
)

const biliCatalogURL = "https://api.bilibili.com"

func main() {
	cfg := config.Load()
	middleware.InitLogger(cfg.LogLevel, "bvote")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to vote store: %v", err)
	}
	defer st.Close()

	var arc *archive.Archive
	if cfg.DatabaseURL != "" {
		arc, err = archive.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to connect to archive: %v", err)
		}
		defer arc.Close()
	} else {
		log.Println("archive: no DATABASE_URL configured, event archiving disabled")
	}

	handler.InitMetrics()

	clock := clockwork.NewRealClock()
	gate := captcha.NewGate(cfg.CaptchaHMACKey, cfg.CaptchaMaxNumber)

	ledger := service.NewLedgerService(st, clock, arc)
	board := service.NewBoardService(st, clock, cfg)
	enrich := service.NewEnrichService(service.NewBiliCatalog(biliCatalogURL))

	voteLimiter := middleware.NewVoteRateLimiter(st, cfg)
	readLimiter := middleware.NewReadRateLimiter(st, cfg)
	exportLimiter := middleware.NewExportRateLimiter(st)

	reconciler := service.NewReconcileWorker(st, clock, cfg.ReconcileInterval, cfg.Retention)
	go reconciler.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:      "bvote API",
		ServerHeader: "bvote",
	})

	router.Setup(app, &router.Handlers{
		Vote:    handler.NewVoteHandler(ledger, voteLimiter, readLimiter, gate),
		Board:   handler.NewBoardHandler(board, enrich, readLimiter, gate),
		Captcha: handler.NewCaptchaHandler(gate),
		Export:  handler.NewExportHandler(arc, exportLimiter),
		Health:  handler.NewHealthHandler(st, arc),
	}, cfg.CORSOrigins)

	go func() {
		<-ctx.Done()
		log.Println("shutting down")
		if err := app.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}()

	log.Printf("bvote backend starting on :%s (env=%s)", cfg.Port, cfg.Environment)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
