// Command main runs the admin backend: REST API, socket gateway and the
// ownership controller.
package main

import (
	"context"
	"errors"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"project_handoff/internal/config"
	"project_handoff/internal/gateway"
	"project_handoff/internal/infrastructure"
	"project_handoff/internal/interfaces"
	"project_handoff/internal/interfaces/http"
	"project_handoff/internal/repository"
	"project_handoff/internal/usecases"
)

func main() {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.ValidateBackend()
	}
	if err != nil {
		boot := infrastructure.NewLogger("info", "console", "backend")
		boot.Fatal().Err(err).Msg("invalid configuration")
	}
	log := infrastructure.NewLogger(cfg.Log.Level, cfg.Log.Format, "backend")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL
	pgClient, err := infrastructure.NewPostgresClient(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pgClient.Close()
	if err := pgClient.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	// Initialize Repositories
	adminRepo := repository.NewAdminRepository(pgClient.Pool)
	turnRepo := repository.NewTurnRepository(pgClient.Pool)
	ownershipRepo := repository.NewOwnershipRepository(pgClient.Pool)
	configRepo := repository.NewConfigRepository(pgClient.Pool)

	counters := counterStore(ctx, cfg, log)

	// Gateway and services
	hub := gateway.NewHub(log.With().Str("component", "hub").Logger())
	defer hub.Close()
	publisher := gateway.NewPublisher(hub)

	stats := usecases.NewStatsService(counters, hub, publisher, log)
	handoff := usecases.NewHandoffController(ownershipRepo, publisher, stats, cfg.Gateway.StrictSingleOwner, log)
	conversations := usecases.NewConversationService(turnRepo, ownershipRepo, publisher, stats, log)

	auth := usecases.NewAuthUsecase(adminRepo, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if cfg.Auth.AdminPassword != "" {
		if err := auth.EnsureAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
			log.Warn().Err(err).Msg("failed to ensure admin user")
		}
	}

	wsServer := gateway.NewServer(hub, auth, cfg.Auth.ServiceToken, handoff, conversations, stats, gateway.Options{
		Queue: gateway.QueueOptions{
			Size:          cfg.Gateway.QueueSize,
			RetryAttempts: cfg.Gateway.RetryAttempts,
			RetryBase:     cfg.Gateway.RetryBase,
		},
	}, log.With().Str("component", "gateway").Logger())

	limiter := infrastructure.NewMessageRateLimiter(rate.Limit(10), 30)
	go limiter.RunCleanup(ctx)

	// Setup HTTP server
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	http.SetupRoutes(r,
		http.NewHandler(auth, conversations, stats, configRepo, log),
		http.NewAdminHandler(handoff, log),
		http.NewMiddleware(auth, limiter),
		wsServer.Handle(),
	)

	srv := &nethttp.Server{Addr: cfg.Server.Addr, Handler: r}
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("admin backend listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// counterStore uses Redis when configured so counters survive restarts and
// are shared between backend replicas.
func counterStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) interfaces.CounterStore {
	if !cfg.Redis.Enabled() {
		log.Warn().Msg("REDIS_URL not set, stats counters are kept in memory")
		return infrastructure.NewMemoryCounterStore()
	}
	store, err := infrastructure.NewRedisCounterStore(ctx, cfg.Redis.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	return store
}
