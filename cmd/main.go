package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"activity-hub/auth"
	"activity-hub/repositories"
	"activity-hub/runtime"
	"activity-hub/server"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting, so every defer (database close included) runs
// before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Registry, store adapter, dispatcher, guard
	registry := runtime.NewRegistry()
	commentRepository := repositories.NewCommentRepository(db, log, config.LimitComments)
	dispatcher := runtime.NewDispatcher(log, registry, commentRepository, config.SinkTimeout)

	tokens := auth.NewTokenService(config.JwtSecret, config.AuthTokenDuration)
	guard := auth.NewGuard(tokens)

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. HTTP/websocket server
	handlers := server.NewHandlers(log, dispatcher, commentRepository, registry, config.ConnectionBufferSize)
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	srv := server.New(log, guard, handlers, address, config.CorsAllowedOrigins)

	if err := srv.Start(); err != nil {
		return err
	}
	log.Info("Comment channel ready", "address", address, "at", time.Now().UTC())

	// 6. Wait for Stop
	<-ctx.Done()
	log.Info("Shutting down gracefully...")

	// 7. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return err
	}
	log.Info("Program stopped cleanly")

	return nil
}
