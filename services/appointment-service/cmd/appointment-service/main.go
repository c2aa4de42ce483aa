package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/DemianF-dev/7pet-mvp-sub007/libs/config"
	"github.com/DemianF-dev/7pet-mvp-sub007/libs/db"
	"github.com/DemianF-dev/7pet-mvp-sub007/libs/grpcx"
	"github.com/DemianF-dev/7pet-mvp-sub007/libs/httpx"
	"github.com/DemianF-dev/7pet-mvp-sub007/libs/kafkax"
	otelx "github.com/DemianF-dev/7pet-mvp-sub007/libs/otel"
	"github.com/DemianF-dev/7pet-mvp-sub007/libs/runtime"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/availability"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/handlers"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/lifecycle"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/noshow"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/outbox"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	service := config.String("SERVICE_NAME", "appointment-service")
	port, err := config.Port("PORT", "8090")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9090")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

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
	hours, err := businessHours()
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
		MinConns: int32(config.Int("DB_MIN_CONNS", 1)),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	outboxRepo := outbox.NewRepository()
	store := storage.NewStore(pool, outboxRepo)
	svc := lifecycle.NewService(store, logger, lifecycle.WithBusinessHours(hours))

	sweepJob, err := noshow.New(svc, logger,
		config.String("NOSHOW_SWEEP_SCHEDULE", noshow.DefaultSchedule),
		config.Duration("NOSHOW_SWEEP_TIMEOUT", 5*time.Minute),
	)
	if err != nil {
		panic(err)
	}

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Optional: true, Check: kafkax.ReadyCheck(brokers)},
	}
	rateLimit, rdb := rateLimiter(logger)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Optional: true, Check: httpx.RedisReadyCheck(rdb)})
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	handlers.NewAppointmentHandler(svc, sweepJob, logger).Register(mux, jwtSecret)

	httpHandler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS"),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Duration("CORS_MAX_AGE", 10*time.Minute),
		}),
		rateLimit,
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 15*time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "appointments")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpcx.NewServer(logger)
	healthReporter := grpcx.RegisterHealth(grpcServer, service, logger, db.ReadyCheck(pool))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", ":"+grpcPort)
		if err != nil {
			return err
		}
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		healthReporter.Run(gctx, 10*time.Second)
		return nil
	})
	g.Go(func() error {
		outboxPublisher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return sweepJob.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "err", err)
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("service stopped with error", "err", err)
		return
	}
	logger.Info("service stopped")
}

// rateLimiter uses Redis when REDIS_ADDR is set so every replica shares the budget,
// and falls back to a per-process window otherwise.
func rateLimiter(logger *slog.Logger) (httpx.Middleware, *redis.Client) {
	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	failOpen := config.Bool("RATE_LIMIT_FAIL_OPEN", true)

	addr := strings.TrimSpace(config.String("REDIS_ADDR", ""))
	if addr == "" {
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
		return httpx.WithRateLimit(httpx.NewMemoryRateLimiter(limitPerMinute, time.Minute), logger, failOpen, nil), nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       config.Int("REDIS_DB", 0),
	})
	rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "appointments"))
	logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	return httpx.WithRateLimit(rl, logger, failOpen, nil), rdb
}

func businessHours() (availability.Hours, error) {
	hours := availability.DefaultHours()
	open, err := availability.ParseClock(config.String("BUSINESS_OPEN", "08:00"))
	if err != nil {
		return hours, err
	}
	closing, err := availability.ParseClock(config.String("BUSINESS_CLOSE", "18:00"))
	if err != nil {
		return hours, err
	}
	loc, err := time.LoadLocation(config.String("BUSINESS_TIMEZONE", "America/Sao_Paulo"))
	if err != nil {
		return hours, err
	}
	hours.Open = open
	hours.Close = closing
	hours.Step = config.Duration("SLOT_STEP", 30*time.Minute)
	hours.Location = loc
	return hours, hours.Validate()
}
