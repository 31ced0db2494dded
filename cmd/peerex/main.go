package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/peerex/peerex/internal/app"
	"github.com/peerex/peerex/internal/config"
	"github.com/peerex/peerex/internal/database"
	"github.com/peerex/peerex/internal/server"
	"github.com/peerex/peerex/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	db, err := database.NewPostgresDB(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		zapLogger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}

	if err := database.Migrate(db); err != nil {
		zapLogger.Fatal("Failed to migrate schema", zap.Error(err))
	}

	feeAccountID, err := cfg.Fees.FeeAccountID()
	if err != nil {
		zapLogger.Fatal("Invalid fee account", zap.Error(err))
	}

	core := app.New(zapLogger, db, feeAccountID)
	if err := core.Bootstrap(context.Background()); err != nil {
		zapLogger.Fatal("Failed to bootstrap core", zap.Error(err))
	}

	srv := server.New(zapLogger, db, cfg.Server.Addr)
	go func() {
		if err := srv.Start(); err != nil {
			zapLogger.Fatal("Ops server failed", zap.Error(err))
		}
	}()

	zapLogger.Info("peerex trading core started",
		zap.String("fee_account", feeAccountID.String()),
		zap.String("addr", cfg.Server.Addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Ops server shutdown failed", zap.Error(err))
	}
}
