package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"idstore/internal/identity/audit"
	auditkafka "idstore/internal/identity/audit/kafka"
	identitymetrics "idstore/internal/identity/metrics"
	"idstore/internal/identity/service"
	"idstore/internal/identity/store/user"
	jwttoken "idstore/internal/jwt_token"
	"idstore/internal/platform/config"
	"idstore/internal/platform/httpserver"
	"idstore/internal/platform/logger"
	"idstore/internal/platform/metrics"
	"idstore/internal/platform/middleware"
	"idstore/internal/platform/postgres"
	"idstore/internal/platform/redis"
	httptransport "idstore/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Store: Postgres when configured, in-memory otherwise (dev mode).
	var store user.Store
	if cfg.Postgres.URL != "" {
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			log.Error("failed to open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store = user.NewPostgres(db)
	} else {
		log.Warn("no database configured, using in-memory store")
		store = user.NewInMemory()
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		store = user.NewCached(store, redisClient.Client, cfg.Redis.CacheTTL)
	}

	// Audit pipeline: events always land in the in-process store for the
	// admin endpoints; with brokers configured they also stream to Kafka.
	auditStore := audit.NewInMemoryStore()
	var sink audit.Sink = auditStore
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := auditkafka.NewSink(ctx, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			log.Error("failed to connect to kafka", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		sink = fanoutSink{auditStore, kafkaSink}
	}

	inbox := make(chan audit.Event, 256)
	worker := audit.NewWorker(sink, inbox, log)

	svc := service.New(store,
		service.WithLogger(log),
		service.WithAuditPublisher(audit.NewChannelPublisher(inbox)),
		service.WithMetrics(identitymetrics.New()),
	)

	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Users:       httptransport.NewUserHandler(svc, log),
		Audit:       httptransport.NewAuditHandler(auditStore),
		Auth:        middleware.RequireAuth(jwtService, log),
		HTTPMetrics: metrics.New(),
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := worker.Run(groupCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		log.Info("starting idstore", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// fanoutSink appends to every sink; the first failure wins so the worker
// logs it.
type fanoutSink []audit.Sink

func (f fanoutSink) Append(ctx context.Context, event audit.Event) error {
	var firstErr error
	for _, sink := range f {
		if err := sink.Append(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
