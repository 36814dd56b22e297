package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/VideoTube/internal/auth"
	"github.com/utafrali/VideoTube/internal/config"
	"github.com/utafrali/VideoTube/internal/event"
	handler "github.com/utafrali/VideoTube/internal/handler/http"
	"github.com/utafrali/VideoTube/internal/media"
	"github.com/utafrali/VideoTube/internal/repository/postgres"
	redisrepo "github.com/utafrali/VideoTube/internal/repository/redis"
	"github.com/utafrali/VideoTube/internal/service"
	"github.com/utafrali/VideoTube/migrations"
	"github.com/utafrali/VideoTube/pkg/database"
	"github.com/utafrali/VideoTube/pkg/health"
	pkgkafka "github.com/utafrali/VideoTube/pkg/kafka"
	"github.com/utafrali/VideoTube/pkg/middleware"
	"github.com/utafrali/VideoTube/pkg/tracing"
)

const serviceName = "accounts"

// App wires together all dependencies and runs the accounts service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
	stopBackground context.CancelFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (app *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var cleanup cleanupStack
	defer func() {
		if err != nil {
			cleanup.run()
		}
	}()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTelEndpoint,
		SampleRate:     cfg.OTelSampleRate,
		Insecure:       true,
		Enabled:        cfg.OTelEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	cleanup.push(func() { _ = tracerShutdown(context.Background()) })

	// Initialize PostgreSQL connection pool.
	pool, err := connectPostgres(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	cleanup.push(pool.Close)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Configure slow query logging.
	if cfg.SlowQuery > 0 {
		database.SetSlowQueryLogging(cfg.SlowQuery, logger)
	}

	// Redis backs the login throttle, which fails open, so an unreachable
	// server is logged and startup continues.
	rdb := database.NewRedisClient(database.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	cleanup.push(func() { _ = rdb.Close() })
	if pingErr := database.PingRedis(ctx, rdb); pingErr != nil {
		logger.Warn("redis unreachable at startup, login throttle disabled until it recovers",
			slog.String("addr", cfg.RedisAddr),
			slog.String("error", pingErr.Error()),
		)
	} else {
		logger.Info("connected to Redis", slog.String("addr", cfg.RedisAddr))
	}

	// Initialize Kafka producer.
	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	cleanup.push(func() { _ = producer.Close() })
	logger.Info("kafka producer initialized",
		slog.Any("brokers", cfg.KafkaBrokers),
		slog.String("topic", cfg.KafkaTopicUsers),
	)

	// Media storage.
	gateway, err := NewMediaGateway(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	temp, err := media.NewTempStore(cfg.UploadTempDir, cfg.UploadMaxBytes)
	if err != nil {
		return nil, err
	}

	// Build the dependency graph.
	jwtManager, err := auth.NewJWTManager(auth.JWTConfig{
		AccessSecret:  cfg.AccessTokenSecret,
		RefreshSecret: cfg.RefreshTokenSecret,
		AccessExpiry:  cfg.AccessTokenExpiry,
		RefreshExpiry: cfg.RefreshTokenExpiry,
	})
	if err != nil {
		return nil, fmt.Errorf("init jwt manager: %w", err)
	}

	userRepo := postgres.NewUserRepository(pool, auth.NewPasswordHasher(cfg.BcryptCost))
	channelRepo := postgres.NewChannelRepository(pool)
	throttle := redisrepo.NewLoginThrottle(rdb, cfg.LoginMaxAttempts, cfg.LoginLockout)
	events := event.NewProducer(producer, cfg.KafkaTopicUsers, logger)

	sessions := service.NewSessionService(userRepo, jwtManager, logger)
	accounts := service.NewAccountService(userRepo, sessions, jwtManager, media.NewUploader(gateway, logger), throttle, events, logger)
	channels := service.NewChannelService(channelRepo)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	// HTTP router.
	bgCtx, stopBackground := context.WithCancel(context.Background())
	users := handler.NewUserHandler(accounts, channels, temp, handler.CookieConfig{
		Secure:        cfg.CookieSecure,
		AccessMaxAge:  cfg.AccessTokenExpiry,
		RefreshMaxAge: cfg.RefreshTokenExpiry,
	}, cfg.UploadMaxBytes, logger)
	router := handler.NewRouter(bgCtx, RouterConfig(cfg), users, handler.NewIdentityResolver(jwtManager, userRepo), healthHandler, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          rdb,
		producer:       producer,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
		stopBackground: stopBackground,
	}, nil
}

// cleanupStack releases partially built dependencies when NewApp fails,
// newest first.
type cleanupStack []func()

func (c *cleanupStack) push(release func()) {
	*c = append(*c, release)
}

func (c cleanupStack) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// RouterConfig maps the edge settings onto the router.
func RouterConfig(cfg *config.Config) handler.RouterConfig {
	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins

	return handler.RouterConfig{
		CORS: cors,
		AuthLimit: middleware.RateLimitConfig{
			RPS:   cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
		},
		PprofCIDRs:  cfg.PprofCIDRs,
		EnablePprof: cfg.PprofEnabled,
	}
}

// NewMediaGateway builds the hosted storage named by MEDIA_PROVIDER.
func NewMediaGateway(ctx context.Context, cfg *config.Config, logger *slog.Logger) (media.Gateway, error) {
	switch cfg.MediaProvider {
	case config.MediaCloudinary:
		gw, err := media.NewCloudinaryGateway(media.CloudinaryConfig{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			BaseURL:   cfg.CloudinaryBaseURL,
		}, media.NewCloudinaryClient(logger))
		if err != nil {
			return nil, fmt.Errorf("init cloudinary gateway: %w", err)
		}
		return gw, nil
	case config.MediaS3:
		gw, err := media.NewS3Gateway(ctx, media.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			return nil, fmt.Errorf("init s3 gateway: %w", err)
		}
		return gw, nil
	case config.MediaMemory:
		logger.Warn("using in-memory media storage, uploads are not persisted")
		return media.NewMemoryGateway(fmt.Sprintf("http://localhost:%d/media", cfg.HTTPPort)), nil
	default:
		return nil, fmt.Errorf("unknown media provider %q", cfg.MediaProvider)
	}
}

func connectPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	pgCfg := database.DefaultPostgresConfig()
	pgCfg.Host = cfg.PostgresHost
	pgCfg.Port = cfg.PostgresPort
	pgCfg.User = cfg.PostgresUser
	pgCfg.Password = cfg.PostgresPass
	pgCfg.DBName = cfg.PostgresDB
	pgCfg.SSLMode = cfg.PostgresSSL
	pgCfg.MaxConns = cfg.PostgresMaxConns

	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	return pool, nil
}

// Migrate applies pending migrations and exits. With dryRun it only lists
// the migration files.
func Migrate(ctx context.Context, cfg *config.Config, logger *slog.Logger, dryRun bool) error {
	if dryRun {
		names, err := database.PendingMigrations(migrations.FS)
		if err != nil {
			return err
		}
		for _, name := range names {
			logger.Info("migration", slog.String("version", name))
		}
		return nil
	}

	pool, err := connectPostgres(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")
	return nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer
// 4. Redis and PostgreSQL
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	a.stopBackground()

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Close Kafka producer.
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 4. Close Redis and the PostgreSQL pool.
	if err := a.redis.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
