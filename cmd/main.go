package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"meeting-sync-service/internal/app"
	"meeting-sync-service/internal/config"
	"meeting-sync-service/internal/events"
	internalhttp "meeting-sync-service/internal/http"
	"meeting-sync-service/internal/models"
	"meeting-sync-service/internal/observability"
	"meeting-sync-service/internal/poll"
	"meeting-sync-service/internal/provider"
	"meeting-sync-service/internal/push"
	"meeting-sync-service/internal/store"
	"meeting-sync-service/internal/sync"
	"meeting-sync-service/internal/viewer"
)

func main() {
	cfg := config.Load()
	application := app.New(cfg)
	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("application start failed")
	}

	// Kafka publisher for merged transcript segments (log-only when disabled)
	publisher := events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicPartial: cfg.Kafka.TopicPartial,
		TopicFinal:   cfg.Kafka.TopicFinal,
		Principal:    cfg.Kafka.Principal,
	})
	defer publisher.Close()

	// Meeting history store
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var meetings store.MeetingStore
	if cfg.Redis.Enabled {
		redisStore, err := store.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connect failed")
		}
		defer redisStore.Close()
		meetings = redisStore
	} else {
		log.Info().Msg("Redis disabled, using in-memory meeting store")
		meetings = store.NewMemory()
	}

	providerClient := provider.NewClient(cfg.Provider)

	// One push client + poller per acquired meeting
	registry := sync.NewRegistry(func(meeting models.MeetingID) *sync.Controller {
		pushClient := push.NewClient(meeting, cfg.Provider, push.Options{
			PingInterval:   cfg.Sync.PingInterval,
			ConnectTimeout: cfg.Sync.ConnectTimeout,
			Retry: push.RetryPolicy{
				MaxAttempts: cfg.Sync.ReconnectAttempts,
				BaseDelay:   cfg.Sync.ReconnectBase,
				Multiplier:  2,
			},
		})
		poller := poll.New(providerClient, meeting, cfg.Sync.PollInterval)
		return sync.NewController(sync.Config{
			Meeting:    meeting,
			PreferPush: cfg.Sync.PreferPush,
			Push:       pushClient,
			Poller:     poller,
			Bots:       providerClient,
			Sink:       publisher,
		})
	})

	hub := viewer.NewHub()
	go hub.Run(ctx)

	apiServer := internalhttp.NewServer(registry, providerClient, meetings, hub)
	router := internalhttp.NewRouter(application, apiServer)

	server := &http.Server{
		Addr:         ":" + cfg.Service.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	obsServer := observability.NewServer(cfg.Observability.Addr, registry.Len)
	obsServer.Start()

	go func() {
		log.Info().Str("port", cfg.Service.HTTPPort).Msg("Meeting sync service started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http serve failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutting down")
	registry.CloseAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("observability shutdown failed")
	}
	application.Shutdown()
}
