package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/creatorhub/creatorhub/internal/ai"
	"github.com/creatorhub/creatorhub/internal/backup"
	"github.com/creatorhub/creatorhub/internal/database"
	"github.com/creatorhub/creatorhub/internal/logging"
	"github.com/creatorhub/creatorhub/internal/server"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	godotenv.Load()

	logger := logging.Setup(os.Getenv("LOG_LEVEL"))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "creatorhub.db"
	}

	db, err := database.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	webhookSecret := os.Getenv("PAYMENT_WEBHOOK_SECRET")
	if webhookSecret == "" {
		slog.Warn("PAYMENT_WEBHOOK_SECRET not set, webhook endpoint accepts unauthenticated requests")
	}

	cfg := server.Config{
		WebhookSecret: webhookSecret,
		AI: ai.Config{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
			Model:   os.Getenv("OPENAI_MODEL"),
		},
		Knowledge: ai.KnowledgeConfig{
			BaseURL: os.Getenv("KNOWLEDGE_BASE_URL"),
			APIKey:  os.Getenv("KNOWLEDGE_API_KEY"),
		},
	}

	srv := server.New(db, cfg, logger)

	backupMgr := backup.NewManager(backup.Config{
		S3: backup.S3Config{
			Endpoint:  os.Getenv("BACKUP_S3_ENDPOINT"),
			Bucket:    os.Getenv("BACKUP_S3_BUCKET"),
			Region:    os.Getenv("BACKUP_S3_REGION"),
			AccessKey: os.Getenv("BACKUP_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("BACKUP_S3_SECRET_KEY"),
			Prefix:    os.Getenv("BACKUP_S3_PREFIX"),
		},
		DBPath:     dbPath,
		Passphrase: os.Getenv("BACKUP_PASSPHRASE"),
		Interval:   durationEnv("BACKUP_INTERVAL_HOURS", 24) * time.Hour,
		Keep:       intEnv("BACKUP_KEEP", 14),
	}, db, logger.With("component", "backup"))
	backupMgr.Start(context.Background())
	defer backupMgr.Stop()

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Background cleanup goroutine
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	go func() {
		slog.Info("creatorhub starting", "addr", ":"+port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cleanupCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

func durationEnv(key string, fallback int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n)
		}
	}
	return time.Duration(fallback)
}

func intEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
