package main

import (
	"context"
	"time"

	"exambook/internal/bookings/handler"
	"exambook/internal/bookings/repository"
	"exambook/internal/bookings/service"
	"exambook/internal/bookings/validator"
	"exambook/internal/capacity"
	"exambook/internal/dedup"
	"exambook/internal/idempotency"
	"exambook/internal/notifications"
	"exambook/pkg/app"
	"exambook/pkg/cache"
	"exambook/pkg/client"
	"exambook/pkg/config"
	"exambook/pkg/contracts"
	"exambook/pkg/kafka"
	kafka_config "exambook/pkg/kafka/config"
	kafka_middleware "exambook/pkg/kafka/middleware"
	"exambook/pkg/lock"
	"exambook/pkg/lockstore"
	"exambook/pkg/metrics"
	"exambook/pkg/tasks"
)

const ServiceName = "bookings"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	cfg.SetRedis()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting Bookings service")
	m := metrics.New()
	records := repository.NewMongoRecordStore(cfg)
	store := lockstore.NewRedisStore(cfg.Client.Redis.Client)
	locks := lock.NewManager(store, cfg.Log, lock.WithMetrics(m))
	counter := capacity.NewCounter(store, records, cfg.CounterTTL, cfg.Log, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue := initTasks(ctx, cfg, records, counter, m)

	responses := cache.New(cache.Config{
		DefaultTTL:    cfg.ResponseCacheTTL,
		MaxEntries:    cfg.ResponseCacheMaxEntries,
		SweepInterval: time.Minute,
	})

	bookingService := service.NewBookingService(service.Deps{
		Records:     records,
		Locks:       locks,
		Counter:     counter,
		Idempotency: idempotency.NewController(records, cfg.IdempotencyBucket, nil, cfg.Log),
		Duplicates:  dedup.NewCache(store, cfg.DuplicateTTL),
		Tasks:       queue,
		Cache:       responses,
		Validator:   validator.NewBookingValidator(cfg.Log),
		Metrics:     m,
	}, cfg)
	cfg.Log.Info("Booking service initialized", "database", cfg.MongoDatabaseName, "tasks_backend", cfg.TasksBackend)

	serverApp := app.NewApplication()
	serverApp.SetApp(cfg, app.Options{
		Handlers:      []contracts.Handler{handler.NewBookingHandler(bookingService, cfg.Log)},
		Checks:        healthChecks(records, store),
		Metrics:       m,
		ResponseCache: responses,
		OnShutdown: []func(){func() {
			if err := queue.Close(); err != nil {
				cfg.Log.Error("Failed to close task queue", "error", err)
			}
		}},
	})
	serverApp.Run()
}

func healthChecks(records repository.RecordStore, store lockstore.Store) []app.HealthCheck {
	return []app.HealthCheck{
		{Name: "mongo", Check: records.Ping},
		{Name: "redis", Check: store.Ping},
	}
}

// initTasks picks the side-effect queue. The memory backend runs the
// notifier in process, for local runs without a broker.
func initTasks(ctx context.Context, cfg *config.Config, records repository.RecordStore, counter *capacity.Counter, m *metrics.Metrics) tasks.Queue {
	if cfg.TasksBackend == config.TasksBackendMemory {
		var webhook notifications.Webhook
		if cfg.WebhookURL != "" {
			webhook = client.NewHttpClient(cfg.WebhookURL)
		}
		router := tasks.NewRouter()
		notifications.NewNotifier(records, counter, webhook, cfg.Log).Register(router)

		queue := tasks.NewMemoryQueue(router.Handle, tasks.MemoryOptions{}, cfg.Log, m)
		queue.Start(ctx)
		cfg.Log.Info("Using in-process task queue")
		return queue
	}

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log)

	producer, err := kafka.NewProducer(kafkaCfg, cfg.TasksTopic, cfg.TasksDLQTopic, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	if kafkaCfg.EnableMiddleware {
		producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
		producer.Use(kafka_middleware.MetricsProducerMiddleware(m))
	}
	cfg.Log.Info("Using Kafka task queue", "topic", cfg.TasksTopic)
	return tasks.NewKafkaQueue(producer, ServiceName)
}
