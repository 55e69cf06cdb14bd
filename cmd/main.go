package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	_ "github.com/shenikar/resqlink/docs"
	"github.com/shenikar/resqlink/internal/config"
	"github.com/shenikar/resqlink/internal/geocode"
	v1 "github.com/shenikar/resqlink/internal/handler/http/v1"
	"github.com/shenikar/resqlink/internal/jobs"
	"github.com/shenikar/resqlink/internal/metrics"
	"github.com/shenikar/resqlink/internal/ratelimit"
	"github.com/shenikar/resqlink/internal/repository"
	"github.com/shenikar/resqlink/internal/service"
	"github.com/shenikar/resqlink/pkg/logger"
	"github.com/sirupsen/logrus"
)

var migrateOnStart bool

var rootCmd = &cobra.Command{
	Use:   "resqlink",
	Short: "ResQLink crisis incident service",
	Long: `resqlink - crisis incident reporting service

Accepts citizen reports, serves the incident feed and the live map.
Without a subcommand the HTTP server is started.

Store drivers (STORE_DRIVER):
  postgres  PostGIS, schema managed by the migrate command
  mongo     MongoDB with a 2dsphere index
  memory    in-process store, data is lost on restart`,
	Version:       v1.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations (postgres driver only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		if cfg.StoreDriver != config.DriverPostgres {
			return fmt.Errorf("migrations apply to the %s driver only, STORE_DRIVER is %q", config.DriverPostgres, cfg.StoreDriver)
		}
		return runMigrations(cfg, log)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&migrateOnStart, "migrate", false, "Apply migrations before serving (postgres driver)")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

// @title ResQLink Incident Service API
// @version 1.0
// @description Crisis incident reporting, feed and live map API.
// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Error("resqlink exited with error")
		os.Exit(1)
	}
}

// setup загружает конфигурацию и создает логгер
func setup() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, logger.New(cfg.LogLevel), nil
}

func runMigrations(cfg *config.Config, log *logrus.Logger) error {
	log.Info("Running database migrations...")

	migrationURL := cfg.DatabaseURL
	if !strings.HasPrefix(migrationURL, "pgx5://") {
		migrationURL = strings.Replace(migrationURL, "postgres://", "pgx5://", 1)
		migrationURL = strings.Replace(migrationURL, "postgresql://", "pgx5://", 1)
	}

	m, err := migrate.New("file://"+cfg.MigrationsDir, migrationURL)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("Database migrations applied successfully")
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	// Контекст для graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if migrateOnStart && cfg.StoreDriver == config.DriverPostgres {
		if err := runMigrations(cfg, log); err != nil {
			return err
		}
	}

	// Подключение к хранилищу
	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	// Redis нужен только кешу, без него сервис продолжает работать
	var cache service.IncidentCache
	redisClient := connectRedis(ctx, cfg, log)
	if redisClient != nil {
		defer redisClient.Close()
		cache = repository.NewRedisIncidentCache(redisClient, cfg.CacheTTL)
	}

	// Геокодер включается адресом сервиса
	var geocoder service.Geocoder
	if cfg.GeocoderURL != "" {
		nominatim := geocode.NewNominatimClient(cfg.GeocoderURL, cfg.GeocoderUserAgent, cfg.GeocoderTimeout, cfg.GeocoderRPS, log)
		geocoder = nominatim
		if redisClient != nil {
			geocoder = geocode.NewCachedGeocoder(nominatim, redisClient, cfg.GeocoderCacheTTL, log)
		}
		log.WithField("url", cfg.GeocoderURL).Info("Reverse geocoding enabled")
	}

	// Инициализация сервисов
	incidentService := service.NewIncidentService(st.repo, cache, geocoder, log, cfg)

	m := metrics.NewMetrics()
	limiter := ratelimit.NewClientLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)

	// Фоновые задачи
	scheduler := jobs.NewScheduler(log)
	if err := scheduler.Register("stats-refresh", cfg.StatsRefreshSpec, jobs.StatsRefresh(incidentService, m)); err != nil {
		return err
	}
	if err := scheduler.Register("limiter-prune", cfg.LimiterPruneSpec, jobs.LimiterPrune(limiter, cfg.RateLimitWindow, log)); err != nil {
		return err
	}
	if st.pool != nil {
		if err := scheduler.Register("pool-stats", "@every 30s", jobs.PoolStats(st.pool, m)); err != nil {
			return err
		}
	}
	scheduler.Start()

	// Инициализация хэндлеров
	gin.SetMode(gin.ReleaseMode)
	handler := v1.NewHandler(incidentService, log, cfg)
	router := v1.NewRouter(handler, v1.RouterDeps{Metrics: m, Limiter: limiter})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Запуск сервера в горутине
	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	log.WithFields(logrus.Fields{
		"port":   cfg.HTTPPort,
		"driver": cfg.StoreDriver,
	}).Info("HTTP server started")

	select {
	case <-ctx.Done():
		log.Info("Received shutdown signal, shutting down server...")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("error starting HTTP server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	scheduler.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("Server gracefully stopped")
	return nil
}
