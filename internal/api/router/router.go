package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/porteroai/portero/internal/conversation"
	httpmiddleware "github.com/porteroai/portero/internal/http/middleware"
	"github.com/porteroai/portero/internal/messaging"
	"github.com/porteroai/portero/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger              *logging.Logger
	ConversationHandler *conversation.Handler
	WebhookHandler      *messaging.WebhookHandler
	MetricsHandler      http.Handler
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthCheck)

	if cfg.ConversationHandler != nil {
		r.Post("/conversation/turn", cfg.ConversationHandler.Turn)
	}
	if cfg.WebhookHandler != nil {
		r.Post("/webhooks/whatsapp", cfg.WebhookHandler.Inbound)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
