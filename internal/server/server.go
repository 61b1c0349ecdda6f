// Package server wires the stores, verifier, AI clients, and realtime
// hub into one HTTP handler tree.
package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/creatorhub/creatorhub/internal/ai"
	"github.com/creatorhub/creatorhub/internal/handler"
	"github.com/creatorhub/creatorhub/internal/middleware"
	"github.com/creatorhub/creatorhub/internal/realtime"
	"github.com/creatorhub/creatorhub/internal/store"
	"github.com/creatorhub/creatorhub/internal/webhook"
)

// Config carries everything the server needs beyond the database handle.
type Config struct {
	WebhookSecret string
	AI            ai.Config
	Knowledge     ai.KnowledgeConfig
}

type Server struct {
	db          *sql.DB
	hub         *realtime.Hub
	webhookH    *handler.WebhookHandler
	subsH       *handler.SubscriptionHandler
	aiH         *handler.AIHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	hub := realtime.NewHub(logger.With("component", "realtime"))
	subs := store.NewSubscriptionStore(db)
	verifier := webhook.NewVerifier(cfg.WebhookSecret)

	completions := ai.NewClient(cfg.AI, logger.With("component", "ai"))
	knowledge := ai.NewKnowledgeClient(cfg.Knowledge, logger.With("component", "knowledge"))

	return &Server{
		db:          db,
		hub:         hub,
		webhookH:    handler.NewWebhookHandler(verifier, subs, hub, logger.With("component", "webhook")),
		subsH:       handler.NewSubscriptionHandler(subs, logger.With("component", "subscription")),
		aiH:         handler.NewAIHandler(completions, knowledge, logger.With("component", "ai_handler")),
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Hub returns the realtime hub.
func (s *Server) Hub() *realtime.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// No method pattern here: the handler owns the 405 so every
	// response on this route stays JSON for provider dashboards.
	mux.HandleFunc("/webhooks/payment", s.rateLimited("webhook", 240, s.webhookH.Payment))

	mux.HandleFunc("GET /api/subscriptions", s.rateLimited("api", 60, s.subsH.Lookup))
	mux.HandleFunc("POST /api/subscriptions/link", s.rateLimited("api", 60, s.subsH.Link))

	mux.HandleFunc("POST /api/ai/chat", s.rateLimited("ai", 20, s.aiH.Chat))
	mux.HandleFunc("POST /api/knowledge/query", s.rateLimited("ai", 20, s.aiH.Knowledge))

	mux.HandleFunc("GET /ws", realtime.Handle(s.hub))
	mux.HandleFunc("GET /health", s.healthHandler)

	chain := middleware.RequestID(mux)
	return middleware.RequestLogger(s.logger.With("component", "http"))(chain)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// rateLimited buckets requests per client IP within a named scope, so a
// burst of provider retries can't starve the browser-facing API.
func (s *Server) rateLimited(scope string, perMinute int, h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return scope + ":" + middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, perMinute, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
