package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/tripdesk/concierge/internal/api/router"
	"github.com/tripdesk/concierge/internal/assistant"
	"github.com/tripdesk/concierge/internal/channels"
	appconfig "github.com/tripdesk/concierge/internal/config"
	"github.com/tripdesk/concierge/internal/conversation"
	"github.com/tripdesk/concierge/internal/functions"
	"github.com/tripdesk/concierge/internal/handoff"
	"github.com/tripdesk/concierge/internal/http/handlers"
	"github.com/tripdesk/concierge/internal/observability/metrics"
	"github.com/tripdesk/concierge/internal/session"
	"github.com/tripdesk/concierge/pkg/logging"
)

func main() {
	// Load .env in development; production relies on real environment.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting concierge API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	// Session store
	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	store := session.NewStore(redisClient, cfg.SessionTTL, nil)

	// Bookings warehouse (optional)
	var bookingsDB *sql.DB
	if cfg.BookingsDSN != "" {
		db, err := sql.Open("postgres", cfg.BookingsDSN)
		if err != nil {
			logger.Error("failed to open bookings database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		bookingsDB = db
	}

	// Assistant functions
	registry := functions.NewRegistry(logger,
		functions.NewItineraryLookup(cfg.CancellationURL, nil, logger),
		functions.NewFlightSchedule("", cfg.FlightStatsAppID, cfg.FlightStatsAppKey, nil, logger),
		functions.NewVisaCheck(cfg.SherpaBaseURL, cfg.SherpaAffiliateID, cfg.SherpaAPIKey, nil, logger),
		functions.NewLiveBookings(bookingsDB, logger),
		functions.NewConsultantHandover(cfg.ChatInitURL, nil, logger),
	)
	logger.Info("assistant functions registered", "functions", registry.Names())

	// Assistant runtime and orchestrator
	conversationMetrics := metrics.NewConversationMetrics(nil)
	runtime := assistant.NewOpenAIRuntime(cfg.OpenAIAPIKey, cfg.AzureEndpoint, cfg.AssistantID, cfg.RunPollInterval, logger)
	orchestrator := assistant.NewOrchestrator(runtime, registry, cfg.MaxRunCycles, cfg.StreamBufferSize, logger, conversationMetrics)

	// Channels
	adapter := channels.NewAdapter(store, logger, conversationMetrics,
		channels.NewTeamsTransport(cfg.TeamsServiceURL, cfg.TeamsClientID, cfg.TeamsClientSecret, nil, logger),
		channels.NewWhatsAppTransport("", cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, nil, logger),
	)

	// Conversation façade
	handoffClient := handoff.NewClient(cfg.GlobalServerURL, nil, logger)
	service := conversation.NewService(store, adapter, orchestrator, runtime, handoffClient, cfg.JWTSecret, logger)
	conversationHandler := handlers.NewConversationHandler(service, logger, conversationMetrics)

	r := router.New(&router.Config{
		Logger:              logger,
		ConversationHandler: conversationHandler,
		MetricsHandler:      promhttp.Handler(),
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// Write timeout stays generous: /chat blocks on the remote run and
		// /chat_sse_stream holds the connection open while streaming.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
