package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arvera/internal/api"
	"arvera/internal/booking"
	"arvera/internal/citasapi"
	"arvera/internal/config"
	"arvera/internal/metrics"
	"arvera/internal/prefs"
	"arvera/internal/syncer"
	"arvera/internal/view"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("ARVERA_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.API.BaseURL == "" {
		logger.Fatal().Msg("set api.base_url in config")
	}

	client := citasapi.NewClient(cfg.API.BaseURL, cfg.API.APIKey, cfg.API.APIExtra,
		cfg.Webhook.EventURL, cfg.Webhook.CheckUpdateURL, &logger)

	var rdb *redis.Client
	if cfg.Redis.Address != "" && cfg.API.CacheTTLSeconds > 0 {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		client.UseRedisCache(rdb, cfg.CacheTTL())
	}
	if cfg.API.RatePerSecond > 0 {
		client.UseRateLimit(cfg.API.RatePerSecond, cfg.API.RateBurst)
	}

	store := booking.NewStore(client, &logger)

	preferences := prefs.Open(cfg.Prefs.Path, &logger)
	defer preferences.Close()
	backup := prefs.NewBackup(preferences, cfg.Prefs.Path, cfg.Prefs.BackupDir, cfg.Prefs.RetentionDays, &logger)

	views := view.NewManager(store, preferences, &logger)
	sync := syncer.New(client, views.Reload, cfg.PollInterval(), &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The schedule may come from a remote env endpoint; until it resolves the
	// API answers 503 on calendar routes and keeps serving everything else.
	go resolveSchedule(ctx, cfg, views, sync, &logger)

	go sync.Run(ctx)
	go backup.Run(ctx)

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	server := api.NewHTTPServer(views, store, client, sync, &logger)
	logger.Info().Int("port", cfg.HTTP.Port).Msg("calendar service started")
	if err := server.Run(ctx, cfg.HTTP.Port); err != nil {
		logger.Fatal().Err(err).Msg("http server error")
	}
}

// resolveSchedule keeps retrying the schedule configuration until it loads,
// then anchors the view and performs the initial appointment load. The sync
// poll interval may have been overridden by the remote payload, so the
// controller is rebuilt only through its interval setter on first resolve.
func resolveSchedule(ctx context.Context, cfg *config.Config, views *view.Manager, sync *syncer.Controller, logger *zerolog.Logger) {
	for {
		sched, err := config.ResolveSchedule(ctx, cfg, logger)
		if err == nil {
			views.SetSchedule(sched, cfg.Schedule.VisibleDays)
			sync.SetInterval(cfg.PollInterval())
			if err := views.Reload(ctx); err != nil {
				logger.Warn().Err(err).Msg("initial appointment load failed; poller will retry")
			}
			logger.Info().
				Str("timezone", sched.Location().String()).
				Int("slot_minutes", sched.SlotMinutes()).
				Msg("schedule resolved")
			return
		}
		logger.Error().Err(err).Msg("schedule resolution failed; retrying")
		select {
		case <-ctx.Done():
			return
		case <-time.After(15 * time.Second):
		}
	}
}

func startHealthServer(ctx context.Context, port int, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if rdb != nil {
			ctxPing, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
