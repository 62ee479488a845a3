package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tripdesk/concierge/internal/http/handlers"
	httpmiddleware "github.com/tripdesk/concierge/internal/http/middleware"
	"github.com/tripdesk/concierge/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	ConversationHandler *handlers.ConversationHandler
	MetricsHandler      http.Handler
	CORSAllowedOrigins  []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/", cfg.ConversationHandler.Index)
	r.Get("/health", cfg.ConversationHandler.HealthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Post("/init", cfg.ConversationHandler.Init)
	r.Post("/chat", cfg.ConversationHandler.Chat)
	r.Post("/chat_sse", cfg.ConversationHandler.Stage)
	r.Get("/chat_sse_stream", cfg.ConversationHandler.Stream)
	r.Post("/webhook", cfg.ConversationHandler.Webhook)

	return r
}
