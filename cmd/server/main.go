package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dialcraft/wfm-backend/internal/api"
	"github.com/dialcraft/wfm-backend/internal/broadcast"
	"github.com/dialcraft/wfm-backend/internal/cache"
	"github.com/dialcraft/wfm-backend/internal/config"
	"github.com/dialcraft/wfm-backend/internal/directory"
	"github.com/dialcraft/wfm-backend/internal/engine"
	"github.com/dialcraft/wfm-backend/internal/fleet"
	"github.com/dialcraft/wfm-backend/internal/metrics"
	"github.com/dialcraft/wfm-backend/internal/pause"
	"github.com/dialcraft/wfm-backend/internal/session"
	"github.com/dialcraft/wfm-backend/internal/storage"
	"github.com/dialcraft/wfm-backend/internal/syncjob"
	"github.com/dialcraft/wfm-backend/pkg/middleware"
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("cache_backend", cfg.CacheBackend).
		Str("log_level", cfg.LogLevel).
		Msg("starting WFM backend server")

	// Create context for services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Fast cache
	var stateCache cache.Store
	if cfg.CacheBackend == "redis" {
		redisCache, err := cache.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		stateCache = redisCache
	} else {
		stateCache = cache.NewMemoryStore()
	}

	// Durable store
	store, err := storage.NewStore(ctx, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}

	// Agent directory, populated via the roster endpoint
	dir := directory.NewMemoryDirectory()

	// Realtime broadcast channel
	hub := broadcast.NewHub(log.Logger)
	go hub.Run()
	broadcaster := broadcast.NewHubBroadcaster(hub, log.Logger)
	wsHandler := broadcast.NewHandler(hub, cfg, log.Logger)

	// Core engine and managers
	eng := engine.New(dir, stateCache, store, broadcaster, cfg.ACWTimeout, log.Logger)
	syncJob := syncjob.New(store, stateCache, cfg.SyncInterval, log.Logger)
	pauseMgr := pause.NewManager(eng, store, broadcaster, log.Logger)
	sessionMgr := session.NewManager(eng, store, syncJob, pauseMgr, broadcaster, log.Logger)
	aggregator := fleet.NewAggregator(dir, stateCache, cfg.PauseAlertThreshold, log.Logger)

	// Background jobs
	go syncJob.Start(ctx)
	snapshotPublisher := broadcast.NewSnapshotPublisher(aggregator, broadcaster, cfg.SnapshotInterval, log.Logger)
	go snapshotPublisher.Start(ctx)

	// HTTP handlers
	actions := api.NewAgentActionsHandler(eng, pauseMgr, sessionMgr, log.Logger)
	fleetHandler := api.NewFleetHandler(aggregator, log.Logger)
	historyHandler := api.NewAgentHistoryHandler(store, log.Logger)
	rosterHandler := api.NewRosterHandler(dir, log.Logger)

	// Create router
	r := chi.NewRouter()

	// Add middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Register public routes
	r.Get("/health", healthHandler)
	r.Get("/metrics", metrics.Get().Handler())

	// Internal routes (for trusted collaborators)
	r.Route("/internal", func(r chi.Router) {
		r.Post("/agents/roster", rosterHandler.HandleRoster)
		r.Post("/agents/{agentId}/reset", actions.ResetState)
	})

	// Agent and supervisor API
	r.Route("/api", func(r chi.Router) {
		r.Route("/agents/{agentId}", func(r chi.Router) {
			r.Post("/status", actions.ChangeStatus)
			r.Post("/pause", actions.StartPause)
			r.Post("/pause/end", actions.EndPause)
			r.Post("/session", actions.StartSession)
			r.Post("/session/end", actions.EndSession)
			r.Get("/metrics", actions.GetMetrics)
			r.Get("/history", historyHandler.GetStatusHistory)
		})
		r.Get("/fleet/snapshot", fleetHandler.GetSnapshot)
	})

	// Supervisor realtime feed
	r.Get("/ws", wsHandler.ServeHTTP)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Stop background jobs
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"wfm-backend"}`)
}
