package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/daigou-api/internal/config"
	"github.com/ksred/daigou-api/internal/database"
	"github.com/ksred/daigou-api/internal/export"
	"github.com/ksred/daigou-api/internal/orders"
	"github.com/ksred/daigou-api/internal/server"
	"github.com/ksred/daigou-api/pkg/middleware"
)

// setupLogging configures zerolog: pretty console output outside production,
// Info level by default and Debug when DEBUG=true
func setupLogging(cfg *config.Config) {
	if !cfg.Production() {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main starts one order-entry session and serves it until SIGINT/SIGTERM.
// The ledger lives in memory and is discarded on exit.
func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogging(cfg)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewDatabase(cfg.DatabaseDSN)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	band, err := cfg.Rates()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Invalid rate configuration")
	}

	orderService, err := orders.NewService(db, orders.Config{
		MinRate:               band.Min,
		MaxRate:               band.Max,
		DefaultRate:           band.Default,
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		IdempotencyTTL:        cfg.IdempotencyTTL,
		ExportPrefix:          cfg.ExportPrefix,
	}, export.NewFileSink(cfg.ExportDir, cfg.ExportPrefix))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to start session")
	}
	orderHandlers := orders.NewGinHandlers(orderService)

	processor := orders.NewProcessor(orderService.GetDB(), cfg.CleanupInterval)
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	go processor.Start(processorCtx)

	limiter := middleware.NewRateLimiter(middleware.DefaultLimits)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-processorCtx.Done():
				return
			case <-ticker.C:
				limiter.Cleanup(3 * time.Minute)
			}
		}
	}()

	router := server.NewRouter(orderHandlers, limiter)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		zlog.Info().Str("addr", srv.Addr).Str("rate", band.Default.String()).Msg("Starting daigou order desk")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding requests 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}
