package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"appointly/backend/internal/cache"
	"appointly/backend/internal/config"
	"appointly/backend/internal/events"
	"appointly/backend/internal/guard"
	"appointly/backend/internal/metrics"
	"appointly/backend/internal/policy"
	"appointly/backend/internal/schedule"
	"appointly/backend/internal/service/availability"
	"appointly/backend/internal/service/booking"
	"appointly/backend/internal/service/calendar"
	"appointly/backend/internal/store/postgres"
	grpcTransport "appointly/backend/internal/transport/grpc"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", "appointly-server"),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", "appointly-server"),
	)
	slog.SetDefault(log)

	log.Info("starting",
		slog.String("grpc_addr", cfg.GRPCAddr),
		slog.String("log_level", cfg.LogLevel),
		slog.String("guard_backend", cfg.GuardBackend),
		slog.Bool("redis_enabled", cfg.RedisEnabled),
		slog.Bool("events_enabled", cfg.EventsEnabled))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		os.Exit(1)
	}
	defer func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	appointmentRepo := postgres.NewAppointmentRepo(db)
	calendarRepo := postgres.NewCalendarRepo(db)
	policies := policy.NewProvider(cfg.Policy, calendarRepo)

	resolver := schedule.NewResolver(calendarRepo)
	var (
		availabilitySource schedule.Source = resolver
		invalidator        calendar.Invalidator
		g                  guard.Guard = guard.NewLocal(cfg.GuardWaitTimeout, m, log)
	)

	if cfg.RedisEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn("redis close failed", slog.Any("err", err))
			}
		}()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error("redis connection failed", slog.Any("err", err), slog.String("redis_addr", cfg.RedisAddr))
			os.Exit(1)
		}

		intervals := cache.NewIntervals(rdb, cfg.CacheTTL)
		availabilitySource = schedule.NewCachedResolver(resolver, intervals, log)
		invalidator = intervals
		if cfg.GuardBackend == config.GuardBackendRedis {
			g = guard.NewRedis(rdb, cfg.GuardWaitTimeout, cfg.GuardLockTTL, m, log)
		}
	}

	sink := events.NewFanOut(m).Add("log", events.NewLogSink(log))
	if cfg.EventsEnabled {
		client := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() {
			if err := client.Close(); err != nil {
				log.Warn("asynq client close failed", slog.Any("err", err))
			}
		}()
		sink.Add("asynq", events.NewAsynqPublisher(client, cfg.EventsQueue))
	}

	// Booking always validates against the uncached resolver.
	bookingSvc := booking.NewService(appointmentRepo, calendarRepo, resolver, g, policies, sink,
		booking.WithLogger(log), booking.WithMetrics(m))
	availabilitySvc := availability.NewService(calendarRepo, availabilitySource, appointmentRepo, policies,
		availability.WithLogger(log), availability.WithMetrics(m))
	calendarSvc := calendar.NewService(calendarRepo, calendarRepo, invalidator, log)

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpcTransport.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, log),
			grpcTransport.RequestTimeout(cfg.GRPCRequestTimeout),
		),
	)
	grpcTransport.RegisterSchedulingServiceServer(grpcServer,
		grpcTransport.NewSchedulingServer(bookingSvc, availabilitySvc, calendarSvc, log))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsHandler(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info("grpc server started", slog.String("grpc_addr", cfg.GRPCAddr), slog.String("metrics_addr", cfg.MetricsAddr))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("server stopped with error", slog.Any("err", err))
			shutdown(log, grpcServer, metricsServer, cfg.ShutdownTimeout)
			os.Exit(1)
		}
	}
	shutdown(log, grpcServer, metricsServer, cfg.ShutdownTimeout)
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func shutdown(log *slog.Logger, s *grpc.Server, metricsServer *http.Server, timeout time.Duration) {
	log.Info("shutting down grpc server", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := metricsServer.Shutdown(ctx); err != nil {
		log.Warn("metrics server shutdown failed", slog.Any("err", err))
	}

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-ctx.Done():
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
