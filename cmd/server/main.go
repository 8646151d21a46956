package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aanampa/shm-payment-orders/internal/config"
	"github.com/aanampa/shm-payment-orders/internal/database"
	"github.com/aanampa/shm-payment-orders/internal/handler"
	"github.com/aanampa/shm-payment-orders/internal/logger"
	"github.com/aanampa/shm-payment-orders/internal/repository"
	"github.com/aanampa/shm-payment-orders/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("environment", cfg.Service.Environment).
		Msg("Starting payment orders service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, database.Config{
		DSN:         cfg.Database.DSN(),
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnLife: cfg.Database.MaxConnLife,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	liquidationRepo := repository.NewLiquidationRepository()
	orderRepo := repository.NewOrderRepository()
	profileRepo := repository.NewApprovalProfileRepository()
	ledgerRepo := repository.NewApprovalLedgerRepository()

	batchService := service.NewBatchService(db, db.Pool(), liquidationRepo, orderRepo, profileRepo, ledgerRepo, log)
	approvalService := service.NewApprovalService(db, db.Pool(), orderRepo, ledgerRepo, log)

	httpHandler := handler.NewHTTPHandler(batchService, approvalService, log)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
