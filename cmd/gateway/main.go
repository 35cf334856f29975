package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scorpius-gateway/internal/audit"
	"scorpius-gateway/internal/auth"
	"scorpius-gateway/internal/platform/config"
	"scorpius-gateway/internal/platform/httpserver"
	"scorpius-gateway/internal/platform/logger"
	"scorpius-gateway/internal/platform/metrics"
	platformredis "scorpius-gateway/internal/platform/redis"
	"scorpius-gateway/internal/proxy"
	"scorpius-gateway/internal/ratelimit"
	"scorpius-gateway/internal/registry"
	httpapi "scorpius-gateway/internal/transport/http"
)

// main wires the pipeline stages together and owns the process lifecycle.
// Business logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if cfg.JWT.Secret == config.DevJWTSecret {
		log.Warn("JWT_SECRET is unset, running on the development signing secret")
	}

	m := metrics.New()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var limiter ratelimit.Limiter
	if redisClient != nil {
		primary := ratelimit.NewRedisStore(redisClient.Client)
		limiter = ratelimit.NewFailover(primary, cfg.RateLimit.Requests, cfg.RateLimit.Window, log, m.LimiterDegraded)
		log.Info("rate limiter using redis sliding window", "limit", cfg.RateLimit.Requests, "window", cfg.RateLimit.Window)
	} else {
		limiter = ratelimit.NewStoreLimiter(ratelimit.NewMemoryStore(), cfg.RateLimit.Requests, cfg.RateLimit.Window)
		log.Info("rate limiter using in-process sliding window", "limit", cfg.RateLimit.Requests, "window", cfg.RateLimit.Window)
	}

	auditStore, closeStore, err := buildAuditStore(cfg, log, redisClient)
	if err != nil {
		log.Error("audit store setup failed", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	recorderOpts := []audit.Option{
		audit.WithDropCounter(m.AuditDropsTotal),
		audit.WithSinkErrorCounter(m.AuditSinkErrors),
	}
	if len(cfg.Audit.KafkaBrokers) > 0 {
		kafkaPub, err := audit.NewKafkaPublisher(context.Background(), cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic, log)
		if err != nil {
			log.Error("kafka publisher setup failed", "error", err)
			os.Exit(1)
		}
		defer kafkaPub.Close(context.Background())
		recorderOpts = append(recorderOpts, audit.WithPublisher(kafkaPub))
		log.Info("audit events publishing to kafka", "topic", cfg.Audit.KafkaTopic)
	}
	recorder := audit.NewRecorder(log, auditStore, cfg.Audit.QueueSize, recorderOpts...)

	reg, err := registry.New(cfg.ServiceURLs)
	if err != nil {
		log.Error("invalid service registry override", "error", err)
		os.Exit(1)
	}

	authenticator := auth.New(cfg.JWT, log, m)
	forwarder := proxy.New(cfg.Proxy.Timeout)
	checker := registry.NewChecker(reg, cfg.Proxy.ProbeTimeout)

	handler := httpapi.NewHandler(log, m, limiter, authenticator, reg, checker, forwarder, recorder,
		cfg.Proxy.PublicServices, cfg.RateLimit.Window)
	router := httpapi.NewRouter(handler, cfg.Server, cfg.JWT.TTL)

	srv := httpserver.New(cfg.Server.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	auditDone := make(chan struct{})
	go func() {
		defer close(auditDone)
		recorder.Run(ctx)
	}()

	go func() {
		log.Info("gateway listening", "addr", cfg.Server.Addr, "services", reg.Len())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	// The recorder drains its queue once ctx is cancelled; wait so queued
	// events reach the durable store before process exit.
	select {
	case <-auditDone:
	case <-shutdownCtx.Done():
		log.Warn("audit drain timed out")
	}
}

// buildAuditStore selects the durable audit sink: Postgres when a DSN is
// configured, otherwise Redis when available, otherwise in-process memory.
func buildAuditStore(cfg config.Config, log *slog.Logger, redisClient *platformredis.Client) (audit.Store, func(), error) {
	if cfg.Audit.PostgresDSN != "" {
		store, err := audit.NewPostgresStore(context.Background(), cfg.Audit.PostgresDSN, cfg.Audit.RetentionDays)
		if err != nil {
			return nil, nil, err
		}
		log.Info("audit events persisting to postgres")
		return store, store.Close, nil
	}
	if redisClient != nil {
		log.Info("audit events persisting to redis", "retention_days", cfg.Audit.RetentionDays)
		return audit.NewRedisStore(redisClient.Client, cfg.Audit.RetentionDays), func() {}, nil
	}
	log.Info("audit events persisting in process memory only")
	return audit.NewMemoryStore(), func() {}, nil
}
