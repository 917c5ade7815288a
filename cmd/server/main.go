// Command server starts the channel directory HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"canaldir/internal/api"
	"canaldir/internal/audit"
	"canaldir/internal/authz"
	"canaldir/internal/blob"
	"canaldir/internal/observability/logging"
	"canaldir/internal/observability/metrics"
	"canaldir/internal/server"
	"canaldir/internal/storage"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	dataPath := flag.String("data", "", "path to JSON datastore")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	developerID := flag.Int64("developer-id", 0, "actor id that always holds the developer role")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	corsOrigins := flag.String("cors-origins", "", "comma separated origins allowed for CORS, or * for any")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	mutationLimit := flag.Int("rate-mutation-limit", 0, "maximum channel mutations per window for a single client")
	mutationWindow := flag.Duration("rate-mutation-window", 0, "window for counting channel mutations")
	redisAddr := flag.String("rate-redis-addr", "", "Redis address for shared mutation throttling")
	redisPassword := flag.String("rate-redis-password", "", "Redis password for shared mutation throttling")
	redisDB := flag.Int("rate-redis-db", 0, "Redis database index for shared mutation throttling")
	redisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis operations")
	objectEndpoint := flag.String("object-endpoint", "", "object storage endpoint (e.g. http://127.0.0.1:9000)")
	objectRegion := flag.String("object-region", "", "object storage region")
	objectAccessKey := flag.String("object-access-key", "", "object storage access key")
	objectSecretKey := flag.String("object-secret-key", "", "object storage secret key")
	objectBucket := flag.String("object-bucket", "", "object storage bucket for channel images")
	objectUseSSL := flag.Bool("object-use-ssl", false, "enable TLS for object storage requests")
	objectPrefix := flag.String("object-prefix", "", "object storage key prefix")
	objectPublicEndpoint := flag.String("object-public-endpoint", "", "public endpoint used for image URLs")
	uploadConcurrency := flag.Int64("upload-concurrency", 0, "maximum simultaneous image uploads")
	healthInterval := flag.Duration("health-interval", 0, "interval between background datastore pings")
	mode := flag.String("mode", "", "server runtime mode (development or production)")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("CANALDIR_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("CANALDIR_LOG_FORMAT")),
	})
	recorder := metrics.Default()

	devID := resolveInt64(*developerID, "CANALDIR_DEVELOPER_ID")
	if devID <= 0 {
		logger.Error("developer id is required: set --developer-id or CANALDIR_DEVELOPER_ID")
		os.Exit(1)
	}

	ctx := context.Background()
	dsn := strings.TrimSpace(firstNonEmpty(*postgresDSN, os.Getenv("CANALDIR_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
	driver := resolveStorageDriver(*storageDriver, os.Getenv("CANALDIR_STORAGE_DRIVER"), dsn)

	serverMode := strings.ToLower(firstNonEmpty(*mode, os.Getenv("CANALDIR_MODE"), "development"))
	objectBucketValue := firstNonEmpty(*objectBucket, os.Getenv("CANALDIR_OBJECT_BUCKET"), "canais")
	objectEndpointValue := firstNonEmpty(*objectEndpoint, os.Getenv("CANALDIR_OBJECT_ENDPOINT"))
	if serverMode == "production" {
		if err := validateProduction(driver, dsn, objectEndpointValue, objectBucketValue); err != nil {
			logger.Error("production validation failed", "error", err)
			os.Exit(1)
		}
	}

	var (
		store      storage.Repository
		closeStore func()
	)
	switch driver {
	case "json":
		dataFile := firstNonEmpty(*dataPath, os.Getenv("CANALDIR_DATA"), "data/store.json")
		jsonStore, err := storage.NewStorage(dataFile)
		if err != nil {
			logger.Error("failed to open datastore", "error", err)
			os.Exit(1)
		}
		if err := jsonStore.SeedDevelopers(devID); err != nil {
			logger.Error("failed to seed developer", "error", err)
			os.Exit(1)
		}
		store = jsonStore
	case "postgres":
		if dsn == "" {
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		var options []storage.Option
		maxConns := resolveInt(*postgresMaxConns, "CANALDIR_POSTGRES_MAX_CONNS")
		minConns := resolveInt(*postgresMinConns, "CANALDIR_POSTGRES_MIN_CONNS")
		if maxConns > 0 || minConns > 0 {
			options = append(options, storage.WithPostgresPoolLimits(int32(minConns), int32(maxConns)))
		}
		maxLifetime := resolveDuration(*postgresMaxConnLifetime, "CANALDIR_POSTGRES_MAX_CONN_LIFETIME", 0)
		maxIdle := resolveDuration(*postgresMaxConnIdle, "CANALDIR_POSTGRES_MAX_CONN_IDLE", 0)
		if maxLifetime > 0 || maxIdle > 0 {
			options = append(options, storage.WithPostgresConnLifetimes(maxLifetime, maxIdle))
		}
		if appName := firstNonEmpty(*postgresAppName, os.Getenv("CANALDIR_POSTGRES_APP_NAME")); appName != "" {
			options = append(options, storage.WithPostgresApplicationName(appName))
		}
		pgStore, err := storage.NewPostgresRepository(ctx, dsn, options...)
		if err != nil {
			logger.Error("failed to open datastore", "error", err)
			os.Exit(1)
		}
		if err := pgStore.SeedDeveloper(ctx, devID); err != nil {
			logger.Error("failed to seed developer", "error", err)
			os.Exit(1)
		}
		store = pgStore
		closeStore = pgStore.Close
	default:
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}

	policy := authz.NewPolicy(store, devID)
	auditLog := audit.NewLog(store)
	handler := api.NewHandler(store, policy, auditLog)
	handler.Logger = logging.WithComponent(logger, "api")
	handler.Metrics = recorder
	handler.UploadConcurrency = resolveInt64(*uploadConcurrency, "CANALDIR_UPLOAD_CONCURRENCY")
	handler.Blob = blob.NewClient(blob.Config{
		Endpoint:       objectEndpointValue,
		Region:         firstNonEmpty(*objectRegion, os.Getenv("CANALDIR_OBJECT_REGION")),
		AccessKey:      firstNonEmpty(*objectAccessKey, os.Getenv("CANALDIR_OBJECT_ACCESS_KEY")),
		SecretKey:      firstNonEmpty(*objectSecretKey, os.Getenv("CANALDIR_OBJECT_SECRET_KEY")),
		Bucket:         objectBucketValue,
		UseSSL:         resolveBool(*objectUseSSL, "CANALDIR_OBJECT_USE_SSL"),
		Prefix:         firstNonEmpty(*objectPrefix, os.Getenv("CANALDIR_OBJECT_PREFIX")),
		PublicEndpoint: firstNonEmpty(*objectPublicEndpoint, os.Getenv("CANALDIR_OBJECT_PUBLIC_ENDPOINT")),
	})

	listenAddr := firstNonEmpty(*addr, os.Getenv("CANALDIR_ADDR"), ":8080")
	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		TLS: server.TLSConfig{
			CertFile: firstNonEmpty(*tlsCert, os.Getenv("CANALDIR_TLS_CERT")),
			KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("CANALDIR_TLS_KEY")),
		},
		RateLimit: server.RateLimitConfig{
			GlobalRPS:      resolveFloat(*globalRPS, "CANALDIR_RATE_GLOBAL_RPS"),
			GlobalBurst:    resolveInt(*globalBurst, "CANALDIR_RATE_GLOBAL_BURST"),
			MutationLimit:  resolveInt(*mutationLimit, "CANALDIR_RATE_MUTATION_LIMIT"),
			MutationWindow: resolveDuration(*mutationWindow, "CANALDIR_RATE_MUTATION_WINDOW", time.Minute),
			RedisAddr:      firstNonEmpty(*redisAddr, os.Getenv("CANALDIR_RATE_REDIS_ADDR")),
			RedisPassword:  firstNonEmpty(*redisPassword, os.Getenv("CANALDIR_RATE_REDIS_PASSWORD")),
			RedisDB:        resolveInt(*redisDB, "CANALDIR_RATE_REDIS_DB"),
			RedisTimeout:   resolveDuration(*redisTimeout, "CANALDIR_RATE_REDIS_TIMEOUT", 2*time.Second),
		},
		CORS: server.CORSConfig{
			AllowedOrigins: splitAndTrim(firstNonEmpty(*corsOrigins, os.Getenv("CANALDIR_CORS_ORIGINS"))),
		},
		Logger:  logger,
		Metrics: recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		logger.Info("channel directory API listening", "addr", listenAddr, "mode", serverMode, "driver", driver, "developer_id", devID)
		if err := srv.Run(groupCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return watchStoreHealth(groupCtx, store, logger, resolveDuration(*healthInterval, "CANALDIR_HEALTH_INTERVAL", time.Minute))
	})

	if err := group.Wait(); err != nil {
		logger.Error("server error", "error", err)
	}
	if closeStore != nil {
		closeStore()
	}
	logger.Info("server stopped")
}

// watchStoreHealth pings the datastore periodically so degradations show up
// in the logs before clients hit them.
func watchStoreHealth(ctx context.Context, store storage.Repository, logger *slog.Logger, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := store.Ping(pingCtx); err != nil {
				logger.Warn("datastore ping failed", "error", err)
			}
			cancel()
		}
	}
}

// validateProduction refuses a production start that would fall back to the
// JSON file store or a disabled blob client.
func validateProduction(driver, dsn, objectEndpoint, objectBucket string) error {
	if driver != "postgres" {
		return fmt.Errorf("production mode requires the postgres datastore driver, got %q", driver)
	}
	if dsn == "" {
		return fmt.Errorf("production mode requires a Postgres DSN")
	}
	if objectEndpoint == "" || objectBucket == "" {
		return fmt.Errorf("production mode requires object storage endpoint and bucket")
	}
	return nil
}

func resolveStorageDriver(flagValue, envValue, dsn string) string {
	if driver := strings.ToLower(strings.TrimSpace(flagValue)); driver != "" {
		return driver
	}
	if driver := strings.ToLower(strings.TrimSpace(envValue)); driver != "" {
		return driver
	}
	if dsn != "" {
		return "postgres"
	}
	return "json"
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveFloat(flagValue float64, envKey string) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt64(flagValue int64, envKey string) int64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseInt(strings.TrimSpace(env), 10, 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	return fallback
}

func resolveBool(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return false
}
