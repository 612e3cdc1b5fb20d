package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/mis-api/internal/email"
	"github.com/jwalitptl/mis-api/internal/worker"
	redisbroker "github.com/jwalitptl/mis-api/pkg/messaging/redis"
	"github.com/jwalitptl/mis-api/pkg/metrics"
)

func workerCmd(configPath *string) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Email patients when their consultations change status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Redis.URL == "" {
				return errors.New("redis.url is required for the worker")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, err := redisbroker.NewClient(ctx, redisConfig(cfg.Redis))
			if err != nil {
				return err
			}
			broker := redisbroker.NewRedisBroker(client, log.Logger)
			defer broker.Close()

			var mailer email.Service
			if cfg.Mail.Enabled() {
				mailer = email.NewSMTPService(cfg.Mail)
			} else {
				log.Warn().Msg("mail.host not set, notifications are logged only")
				mailer = email.NewLogService()
			}

			reg := prometheus.NewRegistry()
			m := metrics.New(reg, "mis_worker")
			srv := startWorkerHealth(metricsAddr, reg)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			notifier := worker.NewNotifier(broker, mailer, worker.NotifierConfig{
				Channel: cfg.Redis.Channel,
			}, m)
			if err := notifier.Start(ctx); err != nil {
				return fmt.Errorf("notifier failed: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":8081", "Address for the worker health and metrics endpoints")
	return cmd
}

func startWorkerHealth(addr string, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health check server failed")
		}
	}()
	return srv
}
