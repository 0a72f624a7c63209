package gateway

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/keymeter/keymeter/internal/api"
	"github.com/keymeter/keymeter/internal/config"
	"github.com/keymeter/keymeter/internal/models"
	"github.com/keymeter/keymeter/internal/services/auth"
	"github.com/keymeter/keymeter/internal/services/database"
	"github.com/keymeter/keymeter/internal/services/issuer"
	"github.com/keymeter/keymeter/internal/services/keystore"
	"github.com/keymeter/keymeter/internal/services/ledger"
	"github.com/keymeter/keymeter/internal/services/metering"
	"github.com/keymeter/keymeter/internal/services/scheduler"
)

// Gateway is one running instance of the key-metering server.
type Gateway struct {
	config *config.Config
	app    *fiber.App
	redis  *redis.Client
	db     *database.DB
}

type services struct {
	issuer   *issuer.Service
	metering *metering.Service
	ledger   *ledger.Ledger
	provider auth.IdentityProvider
}

// New creates a Gateway from a loaded configuration. The cfg parameter is
// required and must not be nil.
func New(cfg *config.Config) *Gateway {
	if cfg == nil {
		panic("config cannot be nil - use config.LoadFromFile() to create one")
	}

	return &Gateway{config: cfg}
}

// Run starts the gateway and blocks until shutdown.
func (g *Gateway) Run() error {
	if err := g.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogLevel(g.config)

	port := g.config.Server.Port
	if port == "" {
		port = "8080"
	}
	listenAddr := ":" + port

	g.app = createFiberApp(g.config)

	db, err := database.New(g.config.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	g.db = db
	defer func() {
		if err := g.db.Close(); err != nil {
			fiberlog.Errorf("Failed to close database connection: %v", err)
		}
	}()

	if err := g.db.AutoMigrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	g.redis, err = createRedisClient(g.config)
	if err != nil {
		return err
	}
	if g.redis != nil {
		defer func() {
			if err := g.redis.Close(); err != nil {
				fiberlog.Errorf("Failed to close Redis client: %v", err)
			}
		}()
	}

	svcs, err := initializeServices(g.db, g.redis, g.config)
	if err != nil {
		return err
	}

	setupMiddleware(g.app, g.config)

	api.RegisterRoutes(g.app,
		api.NewKeyHandler(svcs.issuer, svcs.provider),
		api.NewMeterHandler(svcs.metering),
		api.NewHealthHandler(g.db, g.redis),
	)

	fmt.Printf("KeyMeter starting on %s\n", listenAddr)
	fmt.Printf("   Environment: %s\n", g.config.Server.Environment)
	fmt.Printf("   Database: %s\n", g.db.DriverName())
	fmt.Printf("   Go version: %s\n", runtime.Version())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := scheduler.NewLedgerSweeper(svcs.ledger,
		time.Duration(g.config.Metering.SweepIntervalMinutes)*time.Minute)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		sweeper.Start(groupCtx)
		return nil
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := g.app.Listen(listenAddr); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		fiberlog.Infof("Received signal: %v. Starting graceful shutdown...", sig)
	case err := <-serverErrChan:
		sweeper.Stop()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		fiberlog.Info("Context cancelled, starting shutdown...")
	}

	sweeper.Stop()
	cancel()
	if err := group.Wait(); err != nil {
		fiberlog.Errorf("Background worker error: %v", err)
	}

	fiberlog.Info("Server shutting down gracefully...")
	if err := g.app.ShutdownWithTimeout(30 * time.Second); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	fiberlog.Info("Server shutdown completed successfully")
	return nil
}

func initializeServices(db *database.DB, redisClient *redis.Client, cfg *config.Config) (*services, error) {
	provider, err := auth.NewProvider(&cfg.Auth)
	if err != nil {
		return nil, models.NewConfigurationError("failed to initialize identity provider", err)
	}

	store := keystore.NewStore(db.DB)
	idempotency := ledger.New(db.DB, redisClient)

	return &services{
		issuer:   issuer.NewService(store, cfg.Metering.DefaultUsageLimit),
		metering: metering.NewService(store, idempotency),
		ledger:   idempotency,
		provider: provider,
	}, nil
}

func createFiberApp(cfg *config.Config) *fiber.App {
	isProd := cfg.IsProduction()

	return fiber.New(fiber.Config{
		AppName:           "KeyMeter v1.0",
		EnablePrintRoutes: !isProd,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       5 * time.Minute,
		CaseSensitive:     true,
		StrictRouting:     false,
		Network:           "tcp",
		ServerHeader:      "KeyMeter",
	})
}

func setupMiddleware(app *fiber.App, cfg *config.Config) {
	isProd := cfg.IsProduction()

	app.Use(recover.New(recover.Config{
		EnableStackTrace: !isProd,
	}))

	app.Use(requestid.New(requestid.Config{
		Generator: uuid.NewString,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:               1000,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator: func(c *fiber.Ctx) string {
			if apiKey := c.Get("X-API-KEY"); apiKey != "" {
				return apiKey
			}
			return c.IP()
		},
	}))

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	if isProd {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency} ${bytesSent}b\n",
			Output: os.Stdout,
		}))
	} else {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path} ${error}\n",
			Output: os.Stdout,
		}))
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.Server.AllowedOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-API-KEY",
		AllowMethods:  "GET, POST, OPTIONS",
		MaxAge:        86400,
		ExposeHeaders: "Content-Length, Content-Type, X-Request-ID",
	}))

	if !isProd {
		app.Use(pprof.New())
	}
}

func setupLogLevel(cfg *config.Config) {
	logLevel := cfg.GetNormalizedLogLevel()

	switch logLevel {
	case "trace":
		fiberlog.SetLevel(fiberlog.LevelTrace)
	case "debug":
		fiberlog.SetLevel(fiberlog.LevelDebug)
	case "info":
		fiberlog.SetLevel(fiberlog.LevelInfo)
	case "warn", "warning":
		fiberlog.SetLevel(fiberlog.LevelWarn)
	case "error":
		fiberlog.SetLevel(fiberlog.LevelError)
	default:
		fiberlog.SetLevel(fiberlog.LevelInfo)
		fiberlog.Warnf("Unknown log level '%s', defaulting to 'info'", logLevel)
	}
}

func createRedisClient(cfg *config.Config) (*redis.Client, error) {
	if cfg.Cache == nil || cfg.Cache.RedisURL == "" {
		fiberlog.Info("Redis not configured - ledger mirror disabled")
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.Cache.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.DialTimeout = 10 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.MaxRetries = 3

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		// The mirror is an optimization; a dead Redis downgrades the
		// ledger to database-only instead of blocking startup.
		fiberlog.Warnf("Redis unreachable, continuing without ledger mirror: %v", err)
		if closeErr := client.Close(); closeErr != nil {
			fiberlog.Debugf("Failed to close Redis client: %v", closeErr)
		}
		return nil, nil
	}

	fiberlog.Info("Redis connection established")
	return client, nil
}
