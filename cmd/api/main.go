package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quillsign/quillsigngo/internal/config"
	"github.com/quillsign/quillsigngo/internal/database"
	"github.com/quillsign/quillsigngo/internal/finalize"
	"github.com/quillsign/quillsigngo/internal/handlers"
	"github.com/quillsign/quillsigngo/internal/models"
	"github.com/quillsign/quillsigngo/internal/notify"
	"github.com/quillsign/quillsigngo/internal/signing"
	"github.com/quillsign/quillsigngo/internal/storage"
	"github.com/quillsign/quillsigngo/internal/ws"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Initialize database (Detects Embedded vs External automatically)
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	// Note: db.Close() is called manually in shutdown handler below

	// 3. Auto-Migrate Schema (Critical for Zero-Config)
	log.Println("🚀 Synchronizing database schema...")
	err = db.AutoMigrate(
		&models.User{},
		&models.Document{},
		&models.SignatureField{},
		&models.Invitation{},
		&models.FinalizeJob{},
		&models.NotificationRecord{},
	)
	if err != nil {
		log.Printf("⚠️ Migration warning: %v\n", err)
	} else {
		log.Println("✅ Schema synchronized successfully")
	}

	// 4. Blob storage (local directory or S3, per config)
	store, err := storage.New(context.Background(), cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize blob storage: %v", err)
	}
	log.Printf("✅ Storage: %s driver ready", cfg.Storage.Driver)

	// 5. Live progress hub
	hub := ws.NewHub()
	go hub.Run()

	// 6. Services
	dispatcher := notify.NewDispatcher(db, notify.NewSMTPMailer(cfg.SMTP), cfg)
	signingSvc := signing.NewService(db, store, cfg, hub, dispatcher)
	pipeline := finalize.NewPipeline(db, store, cfg, dispatcher, hub)

	// 7. HTTP router
	router := handlers.NewRouter(db, cfg, store, signingSvc, pipeline, hub)

	// Background worker: drain the finalization queue
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		for range ticker.C {
			if err := pipeline.ProcessPendingJobs(context.Background()); err != nil {
				log.Printf("Finalize Worker Error: %v", err)
			}
		}
	}()
	log.Println("✅ Finalize: Background worker started")

	// Background worker: expire lapsed invitations
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if err := signingSvc.SweepExpired(ctx); err != nil {
				log.Printf("Expiry Sweeper Error: %v", err)
			}
			cancel()
		}
	}()
	log.Println("✅ Expiry: Sweeper started")

	// 8. Start server with graceful shutdown
	port := cfg.Port

	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Channel to listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Start server in goroutine
	go func() {
		log.Printf("🚀 %s starting on port %s [%s]\n", cfg.SystemName, port, cfg.BaseURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	sig := <-shutdown
	log.Printf("\n⚠️  Received signal: %v. Shutting down gracefully...\n", sig)

	// Create context with timeout for graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Close database (this also stops embedded PostgreSQL)
	log.Println("🛑 Closing database connection...")
	if err := db.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
