// Command worker bridges the messaging platforms and the admin backend. It
// stores inbound messages, answers them while the bot owns the conversation
// and delivers admin messages to the platforms.
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
	"project_handoff/internal/entities"
	"project_handoff/internal/gateway"
	"project_handoff/internal/infrastructure"
	"project_handoff/internal/interfaces"
	"project_handoff/internal/interfaces/http"
	"project_handoff/internal/repository"
	"project_handoff/internal/usecases"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := infrastructure.NewLogger("info", "console", "worker")
		boot.Fatal().Err(err).Msg("invalid configuration")
	}
	log := infrastructure.NewLogger(cfg.Log.Level, cfg.Log.Format, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pgClient, err := infrastructure.NewPostgresClient(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pgClient.Close()
	if err := pgClient.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	turnRepo := repository.NewTurnRepository(pgClient.Pool)
	ownershipRepo := repository.NewOwnershipRepository(pgClient.Pool)
	configRepo := repository.NewConfigRepository(pgClient.Pool)

	// The gateway handler needs the message service and the message service
	// publishes through the gateway client, so the handler resolves it late.
	var messages *usecases.MessageService
	client := gateway.NewClient(cfg.Worker.GatewayURL, cfg.Auth.ServiceToken, func(ctx context.Context, ev gateway.Event) {
		switch e := ev.(type) {
		case gateway.SendMessageToUser:
			job := entities.DeliveryJob{UserID: e.UserID, Text: e.Message, TurnID: e.TurnID, EventID: e.EventID, AdminID: e.AdminID}
			if err := messages.HandleAdminMessage(ctx, job); err != nil {
				log.Error().Err(err).Str("user_id", e.UserID).Str("event_id", e.EventID).Msg("admin message not dispatched")
			}
		case gateway.BotStatusChanged:
			messages.ObserveOwnership(e.OwnershipState)
		}
	}, gateway.ClientOptions{}, log.With().Str("component", "gateway-client").Logger())
	events := gateway.NewWorkerPublisher(client, log)

	metrics := &usecases.WorkerMetrics{}

	// Channels
	var channels []interfaces.Channel
	var telegram *infrastructure.TelegramChannel
	if cfg.Channels.TelegramToken != "" {
		telegram, err = infrastructure.NewTelegramChannel(cfg.Channels.TelegramToken, log)
		if err != nil {
			log.Error().Err(err).Msg("telegram disabled")
		} else {
			channels = append(channels, telegram)
		}
	}
	var whatsapp *infrastructure.WhatsAppChannel
	if cfg.Channels.WhatsAppEnabled {
		whatsapp, err = infrastructure.NewWhatsAppChannel(ctx, cfg.Channels.WhatsAppDeviceDir, log)
		if err == nil {
			err = whatsapp.Connect(ctx)
		}
		if err != nil {
			log.Error().Err(err).Msg("whatsapp disabled")
			whatsapp = nil
		} else {
			channels = append(channels, whatsapp)
			defer whatsapp.Disconnect()
		}
	}
	if len(channels) == 0 {
		log.Warn().Msg("no messaging channel configured, only admin traffic will flow")
	}

	delivery := usecases.NewDeliveryService(channels, events, metrics, log)
	dispatcher := dispatcherFor(ctx, cfg, delivery, log)

	var responder interfaces.AIClient = usecases.NewRuleResponder(configRepo)
	if cfg.AI.ServiceURL != "" {
		responder = infrastructure.NewAIServiceClient(cfg.AI.ServiceURL, cfg.AI.Timeout)
	}

	messages = usecases.NewMessageService(turnRepo, ownershipRepo, responder, dispatcher, events, metrics, log)

	inboundRate := rate.Inf
	if cfg.Worker.InboundPerMinute > 0 {
		inboundRate = rate.Limit(float64(cfg.Worker.InboundPerMinute) / 60)
	}
	inbound := infrastructure.NewMessageRateLimiter(inboundRate, cfg.Worker.InboundPerMinute)
	go inbound.RunCleanup(ctx)
	handle := func(ctx context.Context, msg entities.Message) {
		if !inbound.Allow(msg.UserID()) {
			log.Warn().Str("user_id", msg.UserID()).Msg("inbound rate limit exceeded, message dropped")
			return
		}
		if err := messages.ProcessMessage(ctx, msg); err != nil {
			log.Error().Err(err).Str("user_id", msg.UserID()).Msg("message processing failed")
		}
	}

	go func() {
		if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("gateway client stopped")
		}
	}()
	go metrics.Run(ctx, events, cfg.Worker.MetricsInterval)
	if telegram != nil {
		go telegram.Run(ctx, handle)
	}
	if whatsapp != nil {
		go whatsapp.Listen(ctx, handle)
	}

	// Operational HTTP surface
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), http.RequestLogger(log))
	var qr http.QRSource
	if whatsapp != nil {
		qr = whatsapp
	}
	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		names = append(names, ch.Platform())
	}
	http.NewWorkerHandler(cfg.Auth.ServiceToken, names, qr, client, metrics).RegisterRoutes(r)

	srv := &nethttp.Server{Addr: cfg.Worker.Addr, Handler: r}
	go func() {
		log.Info().Str("addr", cfg.Worker.Addr).Msg("worker listening")
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

// dispatcherFor queues deliveries on asynq when Redis is configured and
// otherwise delivers inline.
func dispatcherFor(ctx context.Context, cfg *config.Config, delivery *usecases.DeliveryService, log zerolog.Logger) interfaces.Dispatcher {
	if !cfg.Redis.Enabled() {
		log.Warn().Msg("REDIS_URL not set, delivering inline")
		return usecases.NewInlineDispatcher(delivery, cfg.Worker.DeliveryRetries, 500*time.Millisecond)
	}

	queue, err := infrastructure.NewDeliveryQueue(cfg.Redis.URL, cfg.Worker.DeliveryRetries)
	if err != nil {
		log.Fatal().Err(err).Msg("delivery queue unavailable")
	}
	worker, err := infrastructure.NewDeliveryWorker(cfg.Redis.URL, cfg.Worker.Concurrency, delivery, log)
	if err != nil {
		log.Fatal().Err(err).Msg("delivery worker unavailable")
	}
	go func() {
		if err := worker.Run(ctx); err != nil {
			log.Error().Err(err).Msg("delivery worker stopped")
		}
		queue.Close()
	}()
	return queue
}
