package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"taskagent/config"
	mqcontracts "taskagent/contracts/mq"
	"taskagent/internal/mqhandler"
	"taskagent/internal/repository"
	"taskagent/internal/scheduler"
	"taskagent/pkg/db"
	"taskagent/pkg/logger"
	"taskagent/pkg/mq"
	"taskagent/pkg/otel"
	"taskagent/pkg/outbox"
	"taskagent/pkg/redis"
	"taskagent/pkg/util"
)

func main() {
	log := logger.NewLogger("worker")
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Starting worker...")

	shutdownTracing, err := otel.Init(ctx, otel.Config{
		ServiceName: cfg.Otel.ServiceName + "-worker",
		Endpoint:    cfg.Otel.Endpoint,
		Enabled:     cfg.Otel.Enabled,
		SampleRatio: cfg.Otel.SampleRatio,
	}, log)
	if err != nil {
		log.Fatal("Failed to init OpenTelemetry", zap.Error(err))
	}
	defer shutdownTracing()

	// Redis
	rdb, err := redis.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	deduper := util.NewDeduper(rdb, time.Hour, log)
	retryCounter := util.NewRetryCounter(rdb, time.Hour)

	// DB
	dbConn, err := db.NewConnection(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal("DB connection failed", zap.Error(err))
	}
	defer dbConn.Close()
	if err := db.Migrate(ctx, dbConn, log); err != nil {
		log.Fatal("DB migration failed", zap.Error(err))
	}

	// DLQ publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()
	if err := publisher.DeclareDLQs(mqcontracts.RoutingMessageUnclassified, mqcontracts.RoutingTaskAll); err != nil {
		log.Fatal("Failed to declare DLQ queues", zap.Error(err))
	}

	unclassifiedRepo := repository.NewUnclassifiedRepository(dbConn)
	taskEventRepo := repository.NewTaskEventRepository(dbConn)

	unclassifiedHandler := mqhandler.NewUnclassifiedHandler(unclassifiedRepo, retryCounter, deduper, publisher, log)
	taskEventHandler := mqhandler.NewTaskEventHandler(taskEventRepo, retryCounter, deduper, publisher, log)

	consumers := []struct {
		queue      string
		routingKey string
		handler    mq.MessageHandler
	}{
		{"message.unclassified.q", mqcontracts.RoutingMessageUnclassified, unclassifiedHandler.Handle},
		{"task.events.audit.q", mqcontracts.RoutingTaskAll, taskEventHandler.Handle},
	}

	for _, c := range consumers {
		log.Info("Init consumer", zap.String("queue", c.queue), zap.String("routing_key", c.routingKey))
		consumer, err := mq.NewConsumer(cfg.MQ.URL, c.queue, c.routingKey, log)
		if err != nil {
			log.Fatal("Consumer init failed", zap.String("queue", c.queue), zap.Error(err))
		}
		defer consumer.Close()
		consumer.SetHandler(c.handler)

		go func(queue string) {
			if err := consumer.StartConsuming(ctx); err != nil {
				log.Error("Consumer crashed", zap.String("queue", queue), zap.Error(err))
				stop()
			}
		}(c.queue)
	}

	// 保留期清理
	sched := scheduler.New(log, time.UTC)
	spec := cfg.Retention.Schedule
	jobs := []scheduler.Job{
		scheduler.RetentionJob("outbox_sent", spec, cfg.Retention.OutboxSent, outbox.NewRepository(dbConn).DeleteSentBefore, log),
		scheduler.RetentionJob("unclassified_messages", spec, cfg.Retention.Unclassified, unclassifiedRepo.DeleteBefore, log),
		scheduler.RetentionJob("task_events", spec, cfg.Retention.TaskEvents, taskEventRepo.DeleteBefore, log),
	}
	for _, job := range jobs {
		if err := sched.Add(job); err != nil {
			log.Fatal("Invalid retention job", zap.Error(err))
		}
	}
	sched.Start()
	defer sched.Stop()

	log.Info("Worker running")
	<-ctx.Done()
	log.Info("Worker stopped")
}
