package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sanctum-labs/sanctum/config"
	"github.com/sanctum-labs/sanctum/gemini"
	"github.com/sanctum-labs/sanctum/server"
	"github.com/sanctum-labs/sanctum/session"
	"github.com/sanctum-labs/sanctum/store"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.New()

	generator, err := gemini.NewGenerator(ctx, cfg.GeminiAPIKey)
	if err != nil {
		log.Fatalf("Failed to create generator: %v", err)
	}

	// Create session manager
	sessionManager, err := session.NewManager(cfg, st)
	if err != nil {
		log.Fatalf("Failed to create session manager: %v", err)
	}
	go sessionManager.StartCleanupRoutine(ctx)

	var liveSrv *server.Server
	var apiSrv *server.APIServer
	switch cfg.ServerType {
	case "live":
		liveSrv = server.NewServerWebsocket(cfg, sessionManager)
	case "api":
		apiSrv = server.NewAPIServer(cfg, st, generator)
	case "both":
		liveSrv = server.NewServerWebsocket(cfg, sessionManager)
		apiSrv = server.NewAPIServer(cfg, st, generator)
	default:
		log.Fatalf("Unknown SERVER_TYPE: %s", cfg.ServerType)
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("\nReceived shutdown signal...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if liveSrv != nil {
			if err := liveSrv.Shutdown(shutdownCtx); err != nil {
				log.Printf("Live server shutdown error: %v", err)
			}
		}
		if apiSrv != nil {
			if err := apiSrv.Shutdown(shutdownCtx); err != nil {
				log.Printf("API server shutdown error: %v", err)
			}
		}
	}()

	var group errgroup.Group
	if liveSrv != nil {
		group.Go(func() error {
			if err := liveSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	if apiSrv != nil {
		group.Go(func() error {
			if err := apiSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server stopped")
}
