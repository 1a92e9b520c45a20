/*
Package main is the entry point for the vcall signaling server.

It is responsible for loading configuration, initializing the global logging system,
connecting the presence store, setting up the HTTP server and the session Manager,
and gracefully handling operating system interrupt signals (SIGINT, SIGTERM)
to ensure a smooth server shutdown.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vcall/internal/app/presence"
	"vcall/internal/app/session"
	"vcall/internal/configs"
	"vcall/internal/handler"
	"vcall/internal/pkg/logx"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment(), cfg.LogLevel)
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("presence_backend", cfg.PresenceBackend).
		Dur("call_timeout", cfg.CallTimeout).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect the presence store
	backend, err := presence.NewBackend(ctx, cfg)
	if err != nil {
		logx.Fatal(err, "Failed to connect presence store", "backend", cfg.PresenceBackend)
	}
	presenceClient := presence.NewClient(backend, cfg.PresenceWriteTimeout)

	// Initialize session Manager
	manager := session.NewManager(cfg, presenceClient)

	// Setup HTTP server and routes
	router := handler.Router(&handler.AppDeps{
		Manager:  manager,
		Presence: presenceClient,
		Config:   cfg,
	})

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("vcall signaling server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	// Ending the sessions queues their record removals; Close applies them before disconnecting.
	manager.Shutdown()

	if err := presenceClient.Close(); err != nil {
		logx.Error(err, "Failed to close presence store")
	}

	logx.Info("Server gracefully stopped.")
}
