package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/emandor/imagetext_service/internal/cache"
	"github.com/emandor/imagetext_service/internal/config"
	"github.com/emandor/imagetext_service/internal/convert"
	"github.com/emandor/imagetext_service/internal/img"
	"github.com/emandor/imagetext_service/internal/middleware"
	"github.com/emandor/imagetext_service/internal/ocr"
	"github.com/emandor/imagetext_service/internal/session"
	"github.com/emandor/imagetext_service/internal/telemetry"
	"github.com/emandor/imagetext_service/internal/ws"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()

	tlog := telemetry.Init(telemetry.FromEnv(config.GetEnv))
	tlog.Info().
		Str("port", cfg.AppPort).
		Str("engine", cfg.OCREngine).
		Str("lang", cfg.OCRLang).
		Msg("booting imagetext_service")

	factory, err := ocr.NewFactory(cfg)
	if err != nil {
		tlog.Error().Err(err).Msg("ocr_engine_config")
		return 1
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = cache.MustConnect(cfg.RedisAddr, cfg.RedisDB)
		defer rdb.Close()
	} else {
		tlog.Info().Msg("result cache disabled")
	}

	hub := ws.NewHub()
	reg := session.NewRegistry(factory, session.Options{
		Language: cfg.OCRLang,
		Timeout:  cfg.OCRTimeout,
		IdleTTL:  cfg.SessionIdleTTL,
		OnReap:   hub.BroadcastSessionClosed,
	})
	svc := convert.NewService(cache.NewResultCache(rdb, cfg.OCRCacheTTL), hub, img.PrepOptions{
		MaxW:      cfg.OCRImgMaxW,
		Quality:   cfg.OCRImgQuality,
		Grayscale: cfg.OCRImgGrayscale,
	})
	h := convert.NewHandler(reg, svc, hub, cfg.MaxFileBytes())

	app := fiber.New(fiber.Config{
		BodyLimit:             cfg.BodyLimitBytes(),
		DisableStartupMessage: cfg.AppEnv != "dev",
	})

	app.Use(middleware.RequestID())
	app.Use(middleware.Recover())
	app.Use(middleware.CORS(cfg))
	app.Use(middleware.SecureHeaders())
	app.Use(middleware.RequestLog())
	app.Use(middleware.RateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "sessions": reg.Len()})
	})
	h.Mount(app.Group("/api/v1"))
	app.Get("/ws", middleware.WSUpgradeMiddleware(), websocket.New(hub.HandleWS))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Listen(":" + cfg.AppPort)
	})
	g.Go(func() error {
		return reg.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		tlog.Error().Err(err).Msg("shutdown")
		return 1
	}
	tlog.Info().Msg("bye")
	return 0
}
