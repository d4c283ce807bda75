package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/tutorbook/libs/config"
	"github.com/md-rashed-zaman/tutorbook/libs/db"
	"github.com/md-rashed-zaman/tutorbook/libs/grpcx"
	"github.com/md-rashed-zaman/tutorbook/libs/httpx"
	"github.com/md-rashed-zaman/tutorbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/tutorbook/libs/otel"
	"github.com/md-rashed-zaman/tutorbook/libs/runtime"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/payments"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9093")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}
	guard, err := booking.ParseGuard(config.String("BOOKING_GUARD", "lock"))
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL, db.PoolOptions{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
		MinConns: int32(config.Int("DB_MIN_CONNS", 1)),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if config.Bool("MIGRATE_ON_START", true) {
		applied, err := db.Migrate(ctx, pool, storage.Migrations())
		if err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
		if len(applied) > 0 {
			logger.Info("migrations applied", "versions", applied)
		}
	}

	outboxRepo := outbox.NewRepository(pool)
	bookingStore := storage.NewBookingStore(pool, outboxRepo)
	stripeKey := config.String("STRIPE_SECRET_KEY", "")
	provider := payments.NewProvider(stripeKey)
	svc := booking.NewService(bookingStore, guard, logger).WithPaymentCanceller(provider)
	engine := availability.NewEngine(bookingStore)
	logger.Info("booking service configured", "guard", string(guard), "payments_enabled", stripeKey != "")

	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Seconds("OUTBOX_POLL_SECONDS", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	sweeper := lifecycle.NewSweeper(svc, lifecycle.NewAdvisoryLeader(pool, int64(config.Int("SWEEP_LOCK_KEY", 0))), logger, lifecycle.SweeperConfig{
		Interval:    config.Seconds("SWEEP_INTERVAL_SECONDS", time.Minute),
		BatchSize:   config.Int("SWEEP_BATCH_SIZE", 100),
		PaymentHold: config.Seconds("PAYMENT_HOLD_SECONDS", 30*time.Minute),
	})
	go sweeper.Run(ctx)

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers), Optional: true},
	}
	limiter, rdb := newLimiter(logger)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb), Optional: true})
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	registerRoutes(mux, apiDeps{
		accounts:         storage.NewAccountRepository(pool),
		tutors:           storage.NewTutorRepository(pool),
		engine:           engine,
		service:          svc,
		payments:         provider,
		jwtSecret:        jwtSecret,
		tokenTTL:         config.Seconds("JWT_TTL_SECONDS", 24*time.Hour),
		webhookSecret:    config.String("STRIPE_WEBHOOK_SECRET", ""),
		webhookTolerance: config.Seconds("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 5*time.Minute),
	}, logger)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRateLimit(limiter, logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true)),
		httpx.WithBodyLimit(int64(config.Int("MAX_BODY_BYTES", 1<<20))),
		httpx.WithTimeout(config.Seconds("REQUEST_TIMEOUT_SECONDS", 10*time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")

	grpcSrv, hs := grpcx.NewServer()
	lis, err := net.Listen("tcp", ":"+grpcPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		panic(err)
	}
	hs.SetServingStatus(service, healthpb.HealthCheckResponse_SERVING)
	grpcx.Serve(ctx, logger, grpcSrv, hs, lis)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.ServeHTTP(ctx, logger, srv, 10*time.Second)
}

// newLimiter returns the shared Redis limiter when REDIS_ADDR is set and the
// per-process one otherwise.
func newLimiter(logger *slog.Logger) (httpx.Limiter, *redis.Client) {
	limit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	addr := config.String("REDIS_ADDR", "")
	if addr == "" {
		return httpx.NewRateLimiter(limit, time.Minute), nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       config.Int("REDIS_DB", 0),
	})
	logger.Info("rate limiting via redis", "addr", addr, "limit", limit)
	return httpx.NewRedisRateLimiter(rdb, limit, time.Minute, "tutorbook:ratelimit:"), rdb
}
