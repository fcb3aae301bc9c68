package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"taskagent/config"
	"taskagent/internal/agent"
	"taskagent/internal/api"
	"taskagent/internal/chat"
	"taskagent/internal/repository"
	"taskagent/internal/service/auth"
	"taskagent/internal/taskops"
	"taskagent/pkg/circuitbreaker"
	"taskagent/pkg/db"
	"taskagent/pkg/logger"
	"taskagent/pkg/mq"
	"taskagent/pkg/otel"
	"taskagent/pkg/outbox"
	"taskagent/pkg/redis"
)

var version = "dev"

func main() {
	log := logger.NewLogger("api")
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, otel.Config{
		ServiceName:    cfg.Otel.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.Otel.Endpoint,
		Enabled:        cfg.Otel.Enabled,
		SampleRatio:    cfg.Otel.SampleRatio,
	}, log)
	if err != nil {
		log.Fatal("Failed to init OpenTelemetry", zap.Error(err))
	}
	defer shutdownTracing()

	// DB
	dbConn, err := db.NewConnection(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()
	if err := db.Migrate(ctx, dbConn, log); err != nil {
		log.Fatal("DB migration failed", zap.Error(err))
	}

	// Redis
	rdb, err := redis.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	// MQ Publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	loc, err := time.LoadLocation(cfg.Agent.DisplayTimezone)
	if err != nil {
		log.Fatal("Invalid display timezone", zap.Error(err))
	}

	// Repositories
	outboxRepo := outbox.NewRepository(dbConn)
	userRepo := repository.NewUserRepository(dbConn)
	taskRepo := repository.NewTaskRepository(dbConn, outboxRepo, log)

	// Services
	authService := auth.NewService(userRepo, cfg.JWT.Secret, cfg.JWT.TTL, log)
	taskService := taskops.NewService(taskRepo, log, taskops.WithLocation(loc))
	chatService := chat.NewService(
		agent.NewClassifier(log),
		agent.NewSelector(log),
		taskService,
		chat.NewRedisPendingStore(rdb),
		log,
		chat.WithConfirmationTTL(cfg.Agent.ConfirmationTTL),
		chat.WithPublisher(publisher, circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig(),
			circuitbreaker.OnStateChange(func(from, to circuitbreaker.State) {
				log.Warn("Unclassified publisher breaker state changed",
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			}),
		)),
	)

	// Outbox Dispatcher
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log,
		outbox.WithInterval(cfg.Outbox.Interval),
		outbox.WithBatchSize(cfg.Outbox.BatchSize),
		outbox.WithMaxRetries(cfg.Outbox.MaxRetries),
	)
	go dispatcher.Start(ctx)

	router := api.NewRouter(api.Handlers{
		Auth:  api.NewAuthHandler(authService, log),
		Tasks: api.NewTaskHandler(taskService, log),
		Chat:  api.NewChatHandler(chatService, log),
		Admin: api.NewAdminHandler(outbox.NewReplayService(outboxRepo, publisher, log), outboxRepo, log),
	}, cfg.JWT.Secret, dbConn, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("Starting API server", zap.String("port", cfg.Server.Port), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server start failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down API server gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
		return
	}
	log.Info("API server stopped")
}
