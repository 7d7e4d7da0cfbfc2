package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"retreat/internal/api"
	"retreat/internal/config"
	"retreat/internal/database"
	"retreat/internal/domain"
	"retreat/internal/events"
	"retreat/internal/export"
	"retreat/internal/google"
	"retreat/internal/logging"
	"retreat/internal/metrics"
	"retreat/internal/models"
	"retreat/internal/notify"
	"retreat/internal/payments"
	"retreat/internal/repository"
	"retreat/internal/service"
	"retreat/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	if err := prepareDirectories(cfg, logger); err != nil {
		return err
	}

	resources, err := loadResources(cfg.ResourcesFile, logger)
	if err != nil {
		return err
	}

	db, err := initDatabase(cfg, resources, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	eventBus := events.NewEventBus()
	initNotifier(cfg, eventBus, logger)

	// Очередь синхронизации с Google Sheets необязательна
	var (
		syncWorker  domain.SyncWorker
		deadLetters *worker.SheetsWorker
	)
	if sheetsService := initGoogleSheets(ctx, cfg, logger); sheetsService != nil {
		w := worker.NewSheetsWorker(db, sheetsService, redisClient, worker.RetryPolicy{}, logging.Component(logger, "sheets-worker"))
		go w.Start(ctx)
		syncWorker, deadLetters = w, w
	}

	provider, err := initPayments(cfg)
	if err != nil {
		return err
	}

	open, closeAt, err := cfg.Schedule.Bounds()
	if err != nil {
		return err
	}

	deps := api.Deps{
		Resources: service.NewResourceService(db, logger),
		Reservations: service.NewReservationService(db, db, eventBus, syncWorker, service.ScheduleSettings{
			Open:           open,
			Close:          closeAt,
			MaxBookingDays: cfg.Schedule.MaxBookingDays,
			Location:       cfg.Schedule.Location(),
		}, logger),
		Forms:     service.NewFormService(db, eventBus, syncWorker, logger),
		Donations: service.NewDonationService(db, provider, eventBus, cfg.Payments.Currency, logger),
		Members: service.NewMemberService(db, service.TokenSettings{
			Secret: cfg.Members.JWTSecret,
			Issuer: cfg.Members.Issuer,
			TTL:    cfg.Members.TokenTTL,
		}, logger),
		Exporter:       export.NewExporter(db, cfg.Exports.Path, logger),
		Idempotency:    initIdempotencyStore(redisClient, logger),
		IdempotencyTTL: cfg.Idempotency.TTL,
		ReadyChecks: map[string]func(context.Context) error{
			"database": func(ctx context.Context) error { return db.PingContext(ctx) },
		},
	}
	if deadLetters != nil {
		deps.DeadLetters = deadLetters
	}
	if redisClient != nil {
		deps.ReadyChecks["redis"] = func(ctx context.Context) error { return repository.Ping(ctx, redisClient) }
	}

	limiter := api.NewRateLimiter(cfg.API.RateLimit)
	httpServer := api.NewHTTPServer(&cfg.API, deps, limiter, logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, api.NewAvailabilityService(deps.Reservations, deps.Resources), limiter, logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, logger)
		go backupService.Start(ctx)
	}

	startMetrics(ctx, cfg, logger)

	return startServers(ctx, grpcServer, httpServer, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для базы данных")
		return err
	}
	if cfg.Exports.Path != "" {
		if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
			logger.Error().Err(err).Msg("Ошибка создания директории для экспорта")
			return err
		}
	}
	return nil
}

func loadResources(path string, logger *zerolog.Logger) ([]models.Resource, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn().Str("resources_path", path).Msg("resources file not found, keeping stored resources")
		return nil, nil
	}
	if err != nil {
		logger.Error().Err(err).Str("resources_path", path).Msg("read resources")
		return nil, err
	}

	var resourcesConfig struct {
		Resources []models.Resource `yaml:"resources"`
	}
	if err := yaml.Unmarshal(data, &resourcesConfig); err != nil {
		logger.Error().Err(err).Str("resources_path", path).Msg("parse resources")
		return nil, err
	}

	if err := config.ValidateResources(resourcesConfig.Resources); err != nil {
		logger.Error().Err(err).Msg("resources validation failed")
		return nil, err
	}
	return resourcesConfig.Resources, nil
}

func initDatabase(cfg *config.Config, resources []models.Resource, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	if len(resources) > 0 {
		if err := db.SyncResources(context.Background(), resources); err != nil {
			logger.Error().Err(err).Msg("Ошибка синхронизации ресурсов")
		}
	}
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initIdempotencyStore prefers redis so replicas share keys; the in-memory
// store takes over while redis is unreachable.
func initIdempotencyStore(client *redis.Client, logger *zerolog.Logger) domain.IdempotencyStore {
	memory := repository.NewMemoryIdempotencyStore()
	if client == nil {
		return memory
	}
	return repository.NewFailoverIdempotencyStore(repository.NewRedisIdempotencyStore(client), memory, logger)
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.CredentialsFile == "" || cfg.Google.ReservationSpreadsheetID == "" {
		logger.Info().Msg("google sheets sync disabled")
		return nil
	}

	sheetsService, err := google.NewSheetsService(ctx,
		cfg.Google.CredentialsFile,
		cfg.Google.ReservationSpreadsheetID,
		cfg.Google.FormsSpreadsheetID,
	)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}

	if err := sheetsService.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets connection test failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets cache warm-up failed")
	}

	logger.Info().Msg("google sheets connected")
	return sheetsService
}

func initNotifier(cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) {
	if cfg.Notify.TelegramToken == "" || len(cfg.Notify.Managers) == 0 {
		return
	}

	bot, err := notify.NewBot(cfg.Notify.TelegramToken)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram notifier disabled")
		return
	}

	notifier := notify.NewTelegramNotifier(bot, cfg.Notify.Managers, cfg.Payments.Currency, logging.Component(logger, "notify"))
	notifier.Subscribe(bus)
	logger.Info().Str("bot", bot.Self.UserName).Int("managers", len(cfg.Notify.Managers)).Msg("telegram notifier enabled")
}

func initPayments(cfg *config.Config) (domain.PaymentProvider, error) {
	switch cfg.Payments.Provider {
	case "stripe":
		return payments.NewStripeProvider(cfg.Payments.StripeSecretKey), nil
	case "static":
		return payments.NewStaticProvider(cfg.App.Environment != "production"), nil
	default:
		return nil, fmt.Errorf("unknown payments provider %q", cfg.Payments.Provider)
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Bool("grpc", grpcServer != nil).Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
