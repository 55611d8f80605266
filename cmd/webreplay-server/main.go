package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"webreplay/internal/browser"
	"webreplay/internal/codegen"
	"webreplay/internal/config"
	"webreplay/internal/logging"
	"webreplay/internal/recording"
	srv "webreplay/internal/server/http"
)

func main() {
	logger := logging.NewComponentLogger("Main")
	logger.Info("Starting webreplay server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Info("=== Server Configuration ===")
	logger.Info("Listen: %s", cfg.Addr())
	logger.Info("Recordings: %s", cfg.RecordingsDir)
	logger.Info("Headless: %v", cfg.Headless)
	if cfg.CDPURL != "" {
		logger.Info("CDP endpoint: %s", cfg.CDPURL)
	}
	logger.Info("Max sessions: %d (queue timeout %s)", cfg.MaxSessions, cfg.QueueTimeout)
	logger.Info("===========================")

	store := recording.NewFileStore(cfg.RecordingsDir)
	acquirer := browser.New(browser.Options{
		Headless:       cfg.Headless,
		CDPURL:         cfg.CDPURL,
		ChromePath:     cfg.ChromePath,
		UserDataDir:    cfg.UserDataDir,
		StartupTimeout: cfg.StartupTimeout,
	})
	pool := browser.NewPool(acquirer, cfg.MaxSessions, cfg.QueueTimeout)
	codegenSvc := codegen.NewService(codegen.NewGenerator(cfg.Headless), codegen.NewVerifier())

	server := srv.New(cfg, store, pool, codegenSvc)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case sig := <-quit:
		logger.Info("Received %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Shutdown error: %v", err)
		}
	}
	logger.Info("Server stopped")
}
