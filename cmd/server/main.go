package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/openoutcry/crier/internal/api"
	"github.com/openoutcry/crier/internal/auction"
	"github.com/openoutcry/crier/internal/config"
	"github.com/openoutcry/crier/internal/eventlog"
	"github.com/openoutcry/crier/internal/eventlog/pglog"
	"github.com/openoutcry/crier/internal/eventlog/redislog"
	"github.com/openoutcry/crier/internal/events"
	"github.com/openoutcry/crier/internal/fanout"
	"github.com/openoutcry/crier/internal/identity"
	"github.com/openoutcry/crier/internal/index"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Server identity
	id, err := identity.Load(cfg.DataDir)
	if err != nil {
		logger.Error("failed to load identity", "error", err)
		os.Exit(1)
	}
	logger.Info("identity loaded", "publicKey", id.PublicKeyHex())

	// 2. Event log backend
	log, err := openLog(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open event log", "backend", cfg.LogBackend, "error", err)
		os.Exit(1)
	}
	defer log.Close()
	logger.Info("event log ready", "backend", cfg.LogBackend)

	// 3. Subscriber registry + notification fanout
	registry := fanout.NewRegistry()
	if err := registry.Start(ctx, log, logger); err != nil {
		logger.Error("failed to start subscriber replay", "error", err)
		os.Exit(1)
	}
	notifiers := []auction.Notifier{fanout.NewBroadcaster(registry, cfg.FanoutLimit, logger)}

	if cfg.RabbitURL != "" {
		amqpConn, dialErr := amqp091.Dial(cfg.RabbitURL)
		if dialErr != nil {
			logger.Error("failed to connect to RabbitMQ", "error", dialErr)
			os.Exit(1)
		}
		defer amqpConn.Close()

		publisher, pubErr := events.NewRabbitMQPublisher(amqpConn)
		if pubErr != nil {
			logger.Error("failed to create RabbitMQ publisher", "error", pubErr)
			os.Exit(1)
		}
		defer publisher.Close()
		notifiers = append(notifiers, events.NewBrokerNotifier(publisher, logger))
		logger.Info("RabbitMQ connected")
	}

	// 4. Auction index replay
	ix := index.New(log, logger)
	if err := ix.Start(ctx); err != nil {
		logger.Error("failed to start index replay", "error", err)
		os.Exit(1)
	}

	// 5. Command dispatcher + API
	service := auction.NewService(log, ix, auction.CombineNotifiers(notifiers...), logger)
	router := api.NewRouter(service, logger)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: h2c.NewHandler(router, &http2.Server{}),
	}

	go func() {
		logger.Info("starting auction server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

func openLog(ctx context.Context, cfg config.Config, logger *slog.Logger) (eventlog.Log, error) {
	switch cfg.LogBackend {
	case config.BackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			// Accept a bare host:port too.
			opts = &redis.Options{Addr: cfg.RedisURL}
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		return redislog.New(rdb, "crier", logger), nil
	case config.BackendPostgres:
		if err := pglog.Migrate(cfg.PostgresURL); err != nil {
			return nil, err
		}
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return pglog.New(pool, logger), nil
	default:
		return eventlog.NewMemoryLog(), nil
	}
}
