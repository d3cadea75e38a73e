package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vt-ctyhp/attendance-system-sub002/internal/config"
	"github.com/vt-ctyhp/attendance-system-sub002/internal/policy"
	"github.com/vt-ctyhp/attendance-system-sub002/internal/service"
	"github.com/vt-ctyhp/attendance-system-sub002/internal/store"
	transport "github.com/vt-ctyhp/attendance-system-sub002/internal/transport/http"
	"github.com/vt-ctyhp/attendance-system-sub002/internal/transport/ws"
)

// expiryInterval is how often the sweeper marks overdue prompts missed,
// covering agents that stopped heartbeating entirely.
const expiryInterval = 30 * time.Second

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting attendanced...")
	log.Printf("External HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Internal HTTP Port: %d", cfg.InternalPort)
	log.Printf("Database: %s", cfg.DatabaseURL)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize policy engine
	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize the supervisor event stream
	hub := ws.NewHub()
	go hub.Run()
	stream := ws.NewServer(hub)

	// Initialize service
	svc := service.New(db, cfg, hub)

	// Create servers
	externalServer := transport.NewExternalServer(svc, policyEngine)
	internalServer := transport.NewInternalServer(svc, stream)

	// Start external server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := externalServer.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start external server: %v", err)
		}
	}()

	// Start internal server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.InternalPort)
		if err := internalServer.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start internal server: %v", err)
		}
	}()

	log.Printf("External API started on port %d", cfg.HTTPPort)
	log.Printf("Internal API started on port %d", cfg.InternalPort)

	// Sweep overdue prompts in the background
	sweeperDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(expiryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweeperDone:
				return
			case <-ticker.C:
				if n, err := svc.ExpirePrompts(ctx, time.Now().UTC()); err != nil {
					log.Printf("ERROR: prompt expiry sweep failed: %v", err)
				} else if n > 0 {
					log.Printf("INFO: marked %d prompt(s) missed", n)
				}
			}
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down attendanced...")
	close(sweeperDone)

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := externalServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown external server gracefully: %v", err)
	}
	if err := internalServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown internal server gracefully: %v", err)
	}

	log.Println("attendanced stopped")
}
