package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quillshelf/quillshelf/internal/app"
	"github.com/quillshelf/quillshelf/internal/config"
)

const shutdownGrace = 30 * time.Second

// main boots the reading-library API. The stdlib logger covers the window
// before the application's structured logger exists.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to wire application: %v", err)
	}

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: application.Router(),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server stopped unexpectedly: %v", err)
		}
	}()

	log.Printf("quillshelf listening on port %s", cfg.Server.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutdown signal received, draining")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	// Stop accepting requests before tearing down the event bus and
	// database pools behind the in-flight ones.
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Forced server shutdown: %v", err)
	}
	if err := application.Shutdown(ctx); err != nil {
		log.Printf("Error closing application resources: %v", err)
	}

	log.Println("quillshelf stopped")
}
