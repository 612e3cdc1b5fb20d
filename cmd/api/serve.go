package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/mis-api/internal/config"
	authhandler "github.com/jwalitptl/mis-api/internal/handler/auth"
	consultationhandler "github.com/jwalitptl/mis-api/internal/handler/consultation"
	"github.com/jwalitptl/mis-api/internal/handler/docs"
	"github.com/jwalitptl/mis-api/internal/handler/health"
	"github.com/jwalitptl/mis-api/internal/middleware"
	"github.com/jwalitptl/mis-api/internal/router"
	authservice "github.com/jwalitptl/mis-api/internal/service/auth"
	consultationservice "github.com/jwalitptl/mis-api/internal/service/consultation"
	"github.com/jwalitptl/mis-api/pkg/auth"
	"github.com/jwalitptl/mis-api/pkg/messaging"
	redisbroker "github.com/jwalitptl/mis-api/pkg/messaging/redis"
	"github.com/jwalitptl/mis-api/pkg/metrics"
	"github.com/jwalitptl/mis-api/pkg/security"
)

func serveCmd(configPath *string) *cobra.Command {
	var withSeed bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return runServer(cfg, withSeed)
		},
	}
	cmd.Flags().BoolVar(&withSeed, "seed", false, "Create the demo fixture before serving")
	return cmd
}

func runServer(cfg *config.Config, withSeed bool) error {
	ctx := context.Background()

	// Initialize storage
	store, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore()

	if withSeed {
		if _, err := runSeed(ctx, cfg, store); err != nil {
			return err
		}
	}

	// Initialize metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg, "mis")

	// Redis backs the token blacklist and consultation events when configured
	var (
		blacklist authservice.Blacklist
		publisher messaging.Publisher
	)
	if cfg.Redis.URL != "" {
		client, err := redisbroker.NewClient(ctx, redisConfig(cfg.Redis))
		if err != nil {
			return err
		}
		broker := redisbroker.NewRedisBroker(client, log.Logger)
		defer broker.Close()

		blacklist = authservice.NewRedisBlacklist(client)
		publisher = messaging.NewPublisher(broker, cfg.Redis.Channel)
		log.Info().Str("channel", cfg.Redis.Channel).Msg("publishing consultation events to redis")
	} else {
		blacklist = authservice.NewMemoryBlacklist()
		publisher = messaging.NopPublisher()
		log.Warn().Msg("redis not configured, using in-process token blacklist and no events")
	}

	// Initialize services
	authSvc := authservice.NewService(
		store.Users,
		auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL),
		security.NewBcryptHasher(security.DefaultCost),
		blacklist,
		m,
	)
	consultationSvc := consultationservice.NewService(store, publisher, m)

	// Setup router
	r := router.NewRouter(
		middleware.NewAuthMiddleware(authSvc),
		authhandler.NewHandler(authSvc),
		consultationhandler.NewHandler(consultationSvc),
		health.NewHandler(store.Pinger),
		docs.NewHandler(version),
		router.RouterConfig{
			Mode: cfg.Server.Mode,
			RateLimit: middleware.RateLimiterConfig{
				Rate:  rate.Limit(cfg.RateLimit.RPS),
				Burst: cfg.RateLimit.Burst,
				TTL:   cfg.RateLimit.TTL,
			},
			CORSConfig: middleware.CORSConfig{
				AllowOrigins: cfg.Server.CORSOrigins,
				MaxAge:       86400,
			},
			Timeout:    time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
			Registerer: reg,
			Gatherer:   reg,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server exited properly")
	return nil
}

func redisConfig(cfg config.RedisConfig) redisbroker.Config {
	return redisbroker.Config{
		URL:          cfg.URL,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		PoolSize:     cfg.PoolSize,
	}
}
