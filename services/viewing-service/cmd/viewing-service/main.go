package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/md-rashed-zaman/viewings/libs/auth"
	"github.com/md-rashed-zaman/viewings/libs/db"
	"github.com/md-rashed-zaman/viewings/libs/httpx"
	"github.com/md-rashed-zaman/viewings/libs/kafkax"
	otelx "github.com/md-rashed-zaman/viewings/libs/otel"
	"github.com/md-rashed-zaman/viewings/libs/runtime"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/availability"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/booking"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/config"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/directory"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/events"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/grpcserver"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/handlers"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/metrics"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/outbox"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/query"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := runtime.NewLogger(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := runtime.SignalContext()
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service stopped with error", "err", err)
		os.Exit(1)
	}
	logger.Info("service stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.ServiceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	m := metrics.New()
	var (
		store  storage.Store
		pool   *db.Pool
		checks []runtime.ReadyCheck
	)
	if cfg.DatabaseURL != "" {
		pool, err = db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if cfg.AutoMigrate {
			if err := storage.Migrate(ctx, pool); err != nil {
				return err
			}
			logger.Info("schema migrated")
		}
		store = storage.NewPostgres(pool, outbox.NewRepository(), cfg.AgentLockTimeout)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	} else {
		logger.Warn("DATABASE_URL not set; appointments are kept in memory")
		store = storage.NewMemory(cfg.AgentLockTimeout)
	}

	dir, err := openDirectory(cfg, pool, logger)
	if err != nil {
		return err
	}

	bus := events.NewBus(logger)
	feed, unsubscribe := bus.Subscribe(256)
	defer unsubscribe()

	engine := booking.NewEngine(store, dir, booking.Policy{
		MinLeadTime:  cfg.MinLeadTime,
		MinDuration:  cfg.MinDurationMinutes,
		MaxDuration:  cfg.MaxDurationMinutes,
		MaxAttendees: cfg.MaxAttendees,
	},
		booking.WithBus(bus),
		booking.WithMetrics(m),
		booking.WithLogger(logger),
	)
	slots := availability.NewService(dir, store,
		availability.WithDefaultGranularity(cfg.DefaultGranularity()),
		availability.WithMaxRange(cfg.MaxAvailabilityRange),
	)
	api := handlers.NewHandler(engine, slots, query.NewService(store), logger)

	sink, err := openSink(cfg)
	if err != nil {
		return err
	}
	if sink != nil {
		defer func() {
			if err := sink.Close(); err != nil {
				logger.Warn("outbox sink close failed", "err", err)
			}
		}()
		switch s := sink.(type) {
		case *outbox.AMQPSink:
			checks = append(checks, runtime.ReadyCheck{Name: "amqp", Check: s.Ready})
		case *outbox.KafkaSink:
			checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(strings.Join(cfg.KafkaBrokers, ","))})
		}
	}

	rateLimit, rdb := rateLimiter(cfg, logger)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/api/", httpx.Chain(api,
		rateLimit,
		auth.WithIdentity(cfg.JWTSecret),
		httpx.WithBodyLimit(cfg.BodyLimitBytes),
		httpx.WithTimeout(cfg.RequestTimeout),
	))
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedHeaders: []string{"Authorization", "Content-Type", httpx.RequestIDHeader, handlers.IdempotencyKeyHeader},
		}),
	)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(httpHandler, "viewings"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	grpcSrv := grpcserver.New(logger, checks, 5*time.Second)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return grpcSrv.Run(gctx, ":"+cfg.GRPCPort)
	})
	g.Go(func() error {
		logEvents(gctx, feed, logger)
		return nil
	})
	if sink != nil {
		relay := outbox.NewRelay(pool, outbox.NewRepository(), sink, logger, m, outbox.RelayConfig{
			PollEvery: cfg.OutboxPollInterval,
			BatchSize: cfg.OutboxBatchSize,
		})
		g.Go(func() error { return relay.Run(gctx) })
	}
	return g.Wait()
}

func openDirectory(cfg config.Config, pool *db.Pool, logger *slog.Logger) (directory.Directory, error) {
	var dir directory.Directory
	switch {
	case cfg.DirectoryFile != "":
		static, err := directory.LoadFile(cfg.DirectoryFile)
		if err != nil {
			return nil, err
		}
		dir = static
	case pool != nil:
		dir = directory.NewPostgres(pool)
	default:
		logger.Warn("no directory configured; every agent is unknown")
		dir = directory.NewStatic(nil, nil)
	}
	if cfg.DirectoryCacheSize > 0 && cfg.DirectoryCacheTTL > 0 {
		dir = directory.NewCached(dir, cfg.DirectoryCacheSize, cfg.DirectoryCacheTTL)
	}
	return dir, nil
}

func openSink(cfg config.Config) (outbox.Sink, error) {
	switch cfg.EventTransport {
	case config.TransportKafka:
		return outbox.NewKafkaSink(strings.Join(cfg.KafkaBrokers, ","), cfg.KafkaTopicPrefix), nil
	case config.TransportAMQP:
		return outbox.NewAMQPSink(cfg.AMQPURL, cfg.AMQPExchange)
	default:
		return nil, nil
	}
}

// rateLimiter prefers the shared Redis window when REDIS_ADDR is set and
// falls back to a per-process limiter.
func rateLimiter(cfg config.Config, logger *slog.Logger) (httpx.Middleware, *redis.Client) {
	if cfg.RateLimitPerMinute <= 0 {
		return nil, nil
	}
	if cfg.RedisAddr == "" {
		return httpx.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute).Middleware(), nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	limiter := httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, cfg.ServiceName)
	return limiter.Middleware(logger, cfg.RateLimitFailOpen), rdb
}

// logEvents is the in-process subscriber: committed events are logged at
// debug level for operators tailing the service.
func logEvents(ctx context.Context, feed <-chan events.Event, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-feed:
			if !ok {
				return
			}
			logger.Debug("event committed",
				"event_type", evt.Type,
				"appointment_id", evt.AppointmentID,
				"previous_status", evt.PreviousStatus,
				"new_status", evt.NewStatus,
			)
		}
	}
}
