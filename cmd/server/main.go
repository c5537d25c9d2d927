// Package main is the entry point for the bond valuation service.
//
// The service values fixed-coupon bonds over HTTP, either statelessly or through
// interactive sessions that recompute as inputs change and push every new state
// to websocket and SSE clients.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/bondcalc/internal/config"
	"github.com/aristath/bondcalc/internal/di"
	"github.com/aristath/bondcalc/internal/server"
	"github.com/aristath/bondcalc/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
		Caller: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting bond valuation service")

	container, _, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	srv := server.New(server.Config{
		Log:                log,
		Port:               cfg.Port,
		DevMode:            cfg.DevMode,
		Valuation:          container.Valuation,
		Validator:          container.Validator,
		Sessions:           container.Sessions,
		EventManager:       container.EventManager,
		ValuationRateLimit: cfg.ValuationRateLimit,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	container.Scheduler.Start()

	log.Info().
		Int("port", cfg.Port).
		Dur("session_idle_timeout", cfg.SessionIdleTimeout).
		Str("eviction_schedule", cfg.SessionEvictionSchedule).
		Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	container.Close()

	log.Info().Msg("Server stopped")
}
