package main

import (
	"bandmate/auth"
	"bandmate/infrastructure/httpapi"
	"bandmate/infrastructure/ws"
	"bandmate/internal"
	"bandmate/moderation"
	"bandmate/repositories"
	"bandmate/runtime"
	"bandmate/runtime/workers"
	"bandmate/services"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
)

// Exit codes to provide meaningful status to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// main is a thin wrapper: run() owns the lifecycle so that defers
	// execute before the process exits.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Configuration & logger
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := internal.LoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	searchIndex, err := repositories.NewSearchIndex(config.BlugeFilepath, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open search index: %w", err)
	}
	defer func() {
		logger.Info("Closing search index...")
		_ = searchIndex.Close()
	}()

	// 3. Repositories
	userRepo := repositories.NewUserRepository(db)
	conversationStore := repositories.NewConversationStore(db, logger)
	messageStore := repositories.NewMessageStore(db, logger, config.MaxContentLength)

	// 4. Live-connection machinery
	registry := runtime.NewRegistry()
	dispatcher := runtime.NewDispatcher(logger, registry, conversationStore, config.DeliveryTimeout)
	fanout := workers.NewFanoutWorker(logger, dispatcher, config.BufferSize)
	stats := workers.NewStatsWorker(logger, config.MetricInterval)

	supervisor := workers.NewSupervisor(logger, config.RestartInterval)
	supervisor.Add(fanout, stats)
	go supervisor.Run(ctx)

	// 5. Moderation
	censoredWords, err := moderation.LoadEmbeddedWords()
	if err != nil {
		return exitRuntime, fmt.Errorf("loading censored words failed: %w", err)
	}
	moderator, err := moderation.NewModerator(censoredWords, charReplacement)
	if err != nil {
		return exitRuntime, fmt.Errorf("building moderator failed: %w", err)
	}

	// 6. Services
	issuer := auth.NewTokenIssuer(config.JWTSecret, config.AuthTokenDuration)
	authSvc := services.NewAuthService(userRepo, issuer)
	messagingSvc := services.NewMessagingService(logger, messageStore, searchIndex, moderator, fanout)
	conversationSvc := services.NewConversationService(logger, conversationStore, searchIndex)
	receiptSvc := services.NewReceiptService(messageStore)

	// 7. Transports
	wsHandler := ws.NewHandler(logger, registry, messagingSvc, config.SessionBufferSize)
	apiHandler := httpapi.NewHandler(logger, authSvc, conversationSvc, messagingSvc, receiptSvc, stats)
	router := apiHandler.Routes(auth.NewMiddleware(issuer), wsHandler.ServeWS)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "addr", server.Addr)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitRuntime, err
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	// 8. Graceful shutdown: stop accepting, drain, stop workers.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server shutdown was not clean", "error", err)
	}
	supervisor.Stop()

	return exitOK, nil
}
