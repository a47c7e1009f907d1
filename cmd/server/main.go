// Package main is the entry point of the OptiWealth analytics service.
// It serves portfolio analysis reports over HTTP and refreshes the top picks
// ranking in the background.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/optiwealth/internal/config"
	"github.com/aristath/optiwealth/internal/di"
	reporthandlers "github.com/aristath/optiwealth/internal/modules/report/handlers"
	toppickshandlers "github.com/aristath/optiwealth/internal/modules/toppicks/handlers"
	"github.com/aristath/optiwealth/internal/server"
	"github.com/aristath/optiwealth/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting OptiWealth")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	var topPicksRunner toppickshandlers.Runner
	if cfg.TopPicks.Enabled && container.TopPicksJob != nil {
		topPicksRunner = container.TopPicksJob
	}

	srv := server.New(server.Config{
		Log:            log,
		Port:           cfg.Port,
		DevMode:        cfg.DevMode,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RequestTimeout: cfg.Analytics.RequestTimeout,
		DataDir:        cfg.DataDir,
		DB:             container.DB,
		Report:         reporthandlers.NewHandler(container.Aggregator, cfg.Analytics.SymbolSuffix, log),
		TopPicks:       toppickshandlers.NewHandler(container.TopPicksRepo, topPicksRunner, log),
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	container.Scheduler.Start()
	if topPicksRunner != nil {
		// Refresh once at startup instead of waiting a full schedule period
		container.Scheduler.RunInBackground(container.TopPicksJob)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	cancel()
	container.Scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
