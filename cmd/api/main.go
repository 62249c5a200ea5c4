package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/vigilhq/checkin-engine/internal/config"
	"github.com/vigilhq/checkin-engine/internal/dedup"
	"github.com/vigilhq/checkin-engine/internal/delivery"
	"github.com/vigilhq/checkin-engine/internal/handler"
	"github.com/vigilhq/checkin-engine/internal/infra/postgresql"
	"github.com/vigilhq/checkin-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/vigilhq/checkin-engine/internal/infra/redis"
	"github.com/vigilhq/checkin-engine/internal/observability"
	"github.com/vigilhq/checkin-engine/internal/prefs"
	"github.com/vigilhq/checkin-engine/internal/repository"
	"github.com/vigilhq/checkin-engine/internal/service"
	"github.com/vigilhq/checkin-engine/internal/session"
	"github.com/vigilhq/checkin-engine/internal/sweep"
	"github.com/vigilhq/checkin-engine/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("checkin-engine exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}
	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	metrics := observability.NewMetrics()

	members := repository.NewGormMemberRepo(db)
	contacts := repository.NewGormContactRepo(db)
	preferences := repository.NewGormPreferenceRepo(db)
	attempts := repository.NewGormAttemptRepo(db)
	tokens := repository.NewGormPushTokenSource(db)

	push, email := buildTransports(ctx, cfg, tokens, logger)
	if push == nil && email == nil {
		logger.Warn("no notification channels configured, dispatch requests will be rejected")
	}

	guard, err := dedup.NewRedisGuard(rdb)
	if err != nil {
		return fmt.Errorf("dedup guard init failed: %w", err)
	}
	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		return fmt.Errorf("rate limiter init failed: %w", err)
	}

	defaultZone, err := time.LoadLocation(strings.TrimSpace(cfg.DefaultTimezone))
	if err != nil {
		return fmt.Errorf("invalid default timezone %q: %w", cfg.DefaultTimezone, err)
	}

	dispatcher, err := delivery.NewDispatcher(delivery.DispatcherConfig{
		Push:              push,
		Email:             email,
		Preferences:       prefs.NewResolver(preferences, logger),
		Dedup:             guard,
		Sink:              attempts,
		Limiter:           limiter,
		Metrics:           metrics,
		Logger:            logger,
		ChannelTimeout:    time.Duration(cfg.ChannelTimeoutSec) * time.Second,
		FanOutConcurrency: cfg.DispatchConcurrency,
		DefaultTimezone:   defaultZone,
	})
	if err != nil {
		return fmt.Errorf("dispatcher init failed: %w", err)
	}

	grace := time.Duration(cfg.GracePeriodMinutes) * time.Minute
	checkins, err := service.NewCheckInService(members, contacts, dispatcher, grace, logger)
	if err != nil {
		return fmt.Errorf("check-in service init failed: %w", err)
	}

	sweeper, err := sweep.NewSweeper(
		members,
		contacts,
		dispatcher,
		time.Duration(cfg.SweepIntervalSec)*time.Second,
		grace,
		metrics,
		logger,
	)
	if err != nil {
		return fmt.Errorf("sweeper init failed: %w", err)
	}

	sessions, err := session.NewRedisStore(rdb, time.Duration(cfg.SessionTTLHours)*time.Hour)
	if err != nil {
		return fmt.Errorf("session store init failed: %w", err)
	}

	app, err := buildApp(logger, metrics, sqlDB, rdb, checkins, preferences, attempts, sessions, members)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sweeper.Start(gctx)
	})
	g.Go(func() error {
		logger.Info("checkin-engine api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	return g.Wait()
}

func buildApp(
	logger *zap.Logger,
	metrics *observability.Metrics,
	sqlDB *sql.DB,
	rdb *goredis.Client,
	checkins *service.CheckInService,
	preferences *repository.GormPreferenceRepo,
	attempts *repository.GormAttemptRepo,
	sessions *session.RedisStore,
	members *repository.GormMemberRepo,
) (*fiber.App, error) {
	app := fiber.New(fiber.Config{
		ErrorHandler:          handler.ErrorHandler(logger),
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, sqlDB, rdb)

	// Token issuance must be registered before the authenticated group so
	// its route is matched ahead of the auth middleware.
	public := app.Group("/v1")
	if err := handler.RegisterPublicSessionRoutes(public, sessions, members); err != nil {
		return nil, err
	}

	private := app.Group("/v1", session.Middleware(sessions))
	if err := handler.RegisterPrivateSessionRoutes(private, sessions, members); err != nil {
		return nil, err
	}
	if err := handler.RegisterCheckInRoutes(private, checkins); err != nil {
		return nil, err
	}
	if err := handler.RegisterPreferenceRoutes(private, preferences); err != nil {
		return nil, err
	}
	if err := handler.RegisterDeliveryRoutes(private, attempts); err != nil {
		return nil, err
	}

	return app, nil
}

func buildTransports(ctx context.Context, cfg *config.Config, tokens transport.PushTokenSource, logger *zap.Logger) (transport.PushSender, transport.EmailSender) {
	var push transport.PushSender
	if strings.TrimSpace(cfg.FirebaseCredentialsFile) != "" {
		fcm, err := transport.NewFCMPush(ctx, cfg.FirebaseCredentialsFile, tokens)
		if err != nil {
			logger.Warn("push channel disabled", zap.Error(err))
		} else {
			push = fcm
		}
	}

	var email transport.EmailSender
	if strings.TrimSpace(cfg.EmailAPIURL) != "" {
		sender, err := transport.NewHTTPEmail(cfg.EmailAPIURL, cfg.EmailAPIKey, cfg.EmailFrom)
		if err != nil {
			logger.Warn("email channel disabled", zap.Error(err))
		} else {
			email = sender
		}
	}

	return push, email
}
