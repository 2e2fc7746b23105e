// Package main is the entry point for apiguard.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kabhishek18/apiguard/internal/audit"
	"github.com/kabhishek18/apiguard/internal/auth"
	"github.com/kabhishek18/apiguard/internal/config"
	"github.com/kabhishek18/apiguard/internal/health"
	"github.com/kabhishek18/apiguard/internal/observability"
	"github.com/kabhishek18/apiguard/internal/ratelimit"
	rlstore "github.com/kabhishek18/apiguard/internal/ratelimit/store"
	"github.com/kabhishek18/apiguard/internal/server"
	"github.com/kabhishek18/apiguard/internal/store"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool

	keyTTLHours    int
	defaultPerMin  int
	defaultPerHour int
	enforceHTTPS   bool
	enforceIPAllow bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig(flags, logger)

	run(cfg, flags.configPath, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("APIGUARD_CONFIG_PATH", ""),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("APIGUARD_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("APIGUARD_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")

	keyTTLHours := flag.Int("key-ttl-hours", 0,
		"Default credential lifetime in hours (overrides config)")
	defaultPerMin := flag.Int("default-rpm", 0,
		"Default per-minute quota for clients without one (overrides config)")
	defaultPerHour := flag.Int("default-rph", 0,
		"Default per-hour quota for clients without one (overrides config)")
	enforceHTTPS := flag.Bool("enforce-https", false,
		"Reject requests that did not arrive over TLS")
	enforceIPAllow := flag.Bool("enforce-ip-allowlist", false,
		"Enforce per-client IP allowlists")
	flag.Parse()

	return cliFlags{
		configPath:     *configPath,
		logLevel:       *logLevel,
		logFormat:      *logFormat,
		showVersion:    *showVersion,
		keyTTLHours:    *keyTTLHours,
		defaultPerMin:  *defaultPerMin,
		defaultPerHour: *defaultPerHour,
		enforceHTTPS:   *enforceHTTPS,
		enforceIPAllow: *enforceIPAllow,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("apiguard version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// loadConfig loads the configuration and applies flag overrides.
func loadConfig(flags cliFlags, logger observability.Logger) *config.Config {
	logger.Info("starting apiguard",
		observability.String("version", version),
		observability.String("config", flags.configPath),
	)

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}

	if flags.keyTTLHours > 0 {
		cfg.Auth.DefaultKeyTTL = time.Duration(flags.keyTTLHours) * time.Hour
	}
	if flags.defaultPerMin > 0 {
		cfg.RateLimit.DefaultPerMinute = flags.defaultPerMin
	}
	if flags.defaultPerHour > 0 {
		cfg.RateLimit.DefaultPerHour = flags.defaultPerHour
	}
	if flags.enforceHTTPS {
		cfg.Server.EnforceHTTPS = true
	}
	if flags.enforceIPAllow {
		cfg.Auth.EnforceIPAllowlist = true
	}

	return cfg
}

// newCounterStore selects the rate-limit counter backend. With Redis
// enabled the store is breaker-protected and falls back to local
// counters during an outage.
func newCounterStore(cfg *config.Config, logger observability.Logger) (rlstore.Store, *rlstore.RedisStore, error) {
	if !cfg.Redis.Enabled {
		logger.Info("using in-memory rate limit counters")
		return rlstore.NewMemoryStore(), nil, nil
	}

	redisStore, err := rlstore.NewRedisStore(&rlstore.RedisConfig{
		Address:      cfg.Redis.Address,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		Prefix:       cfg.Redis.Prefix,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		Logger:       logger,
	})
	if err != nil {
		return nil, nil, err
	}

	breakerCfg := rlstore.DefaultBreakerConfig()
	breakerCfg.Logger = logger

	return rlstore.NewBreakerStore(redisStore, breakerCfg), redisStore, nil
}

func run(cfg *config.Config, configPath string, logger observability.Logger) {
	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN,
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		logger.Fatal("failed to open database", observability.Error(err))
	}
	defer func() { _ = db.Close() }()

	counters, redisStore, err := newCounterStore(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize counter store", observability.Error(err))
	}
	defer func() { _ = counters.Close() }()

	hasher, err := auth.NewHasher(cfg.Auth.HashAlgorithm)
	if err != nil {
		logger.Fatal("invalid hash algorithm", observability.Error(err))
	}

	authenticator := auth.NewAuthenticator(db, db, hasher,
		auth.WithLogger(logger),
		auth.WithMetrics(auth.NewMetrics("apiguard")),
	)

	limiter := ratelimit.NewClientLimiter(counters,
		ratelimit.Defaults{
			PerMinute: cfg.RateLimit.DefaultPerMinute,
			PerHour:   cfg.RateLimit.DefaultPerHour,
		},
		ratelimit.WithClientLimiterLogger(logger),
		ratelimit.WithClientLimiterMetrics(ratelimit.NewMetrics("apiguard")),
	)

	recorder := audit.NewRecorder(db,
		audit.WithLogger(logger),
		audit.WithMetrics(audit.NewMetrics("apiguard")),
		audit.WithQueueSize(cfg.Audit.QueueSize),
		audit.WithFlushTimeout(cfg.Audit.FlushTimeout),
	)

	checker := health.NewChecker(version)
	checker.RegisterCheck("database", health.DatabaseCheck(db))
	if redisStore != nil {
		checker.RegisterCheck("redis", health.RedisCheck(redisStore.Client()))
	}

	srv := server.New(cfg, server.Deps{
		Store:         db,
		Authenticator: authenticator,
		Limiter:       limiter,
		Recorder:      recorder,
		Checker:       checker,
		Metrics:       server.NewMetrics("apiguard"),
		Logger:        logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Auth.SweepInterval > 0 {
		go runExpirySweep(ctx, db, cfg.Auth.SweepInterval, logger)
	}

	watcher := startConfigWatcher(ctx, configPath, limiter, logger)
	if watcher != nil {
		defer watcher.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", observability.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", observability.Error(err))
	}

	// Drain pending usage records before the stores close.
	if err := recorder.Close(); err != nil {
		logger.Error("usage recorder close error", observability.Error(err))
	}

	logger.Info("apiguard stopped")
}

// runExpirySweep periodically flips expired credentials to the expired
// state. Reporting housekeeping only; authentication evaluates expiry
// lazily on every attempt.
func runExpirySweep(ctx context.Context, db *store.SQLStore, interval time.Duration, logger observability.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := db.MarkExpired(ctx, time.Now().UTC())
			if err != nil {
				logger.Warn("expired credential sweep failed", observability.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("marked expired credentials", observability.Int64("count", n))
			}
		}
	}
}

// startConfigWatcher hot-reloads dynamic settings (default quotas) when
// the config file changes. Static settings require a restart.
func startConfigWatcher(ctx context.Context, configPath string, limiter *ratelimit.ClientLimiter, logger observability.Logger) *config.Watcher {
	if configPath == "" {
		return nil
	}

	watcher, err := config.NewWatcher(configPath, func(cfg *config.Config) {
		limiter.SetDefaults(ratelimit.Defaults{
			PerMinute: cfg.RateLimit.DefaultPerMinute,
			PerHour:   cfg.RateLimit.DefaultPerHour,
		})
		logger.Info("applied reloaded default quotas",
			observability.Int("per_minute", cfg.RateLimit.DefaultPerMinute),
			observability.Int("per_hour", cfg.RateLimit.DefaultPerHour),
		)
	}, config.WithLogger(logger))
	if err != nil {
		logger.Warn("config watcher unavailable", observability.Error(err))
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher failed to start", observability.Error(err))
		return nil
	}

	return watcher
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
