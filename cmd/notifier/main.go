package main

import (
	"context"
	"errors"

	"exambook/internal/bookings/repository"
	"exambook/internal/capacity"
	"exambook/internal/notifications"
	"exambook/pkg/app"
	"exambook/pkg/client"
	"exambook/pkg/config"
	"exambook/pkg/kafka"
	kafka_config "exambook/pkg/kafka/config"
	kafka_middleware "exambook/pkg/kafka/middleware"
	"exambook/pkg/lockstore"
	"exambook/pkg/metrics"
	"exambook/pkg/tasks"
)

const ServiceName = "notifier"

func main() {
	cfg := config.Load(ServiceName)
	if cfg.TasksBackend != config.TasksBackendKafka {
		cfg.Log.Fatal("Notifier consumes from Kafka; the memory backend runs tasks inside the bookings service", "tasks_backend", cfg.TasksBackend)
	}
	cfg.SetMongo()
	cfg.SetRedis()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting Notifier service")
	m := metrics.New()
	records := repository.NewMongoRecordStore(cfg)
	store := lockstore.NewRedisStore(cfg.Client.Redis.Client)

	var webhook notifications.Webhook
	if cfg.WebhookURL != "" {
		webhook = client.NewHttpClient(cfg.WebhookURL)
	}
	router := tasks.NewRouter()
	notifications.NewNotifier(records, capacity.NewCounter(store, records, cfg.CounterTTL, cfg.Log, m), webhook, cfg.Log).Register(router)

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log)

	consumer, err := kafka.NewConsumer(kafkaCfg, cfg.TasksTopic, cfg.TasksGroupID, cfg.TasksDLQTopic, tasks.MessageHandler(router.Handle), cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka consumer", "error", err)
	}
	if kafkaCfg.EnableMiddleware {
		consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
		consumer.Use(kafka_middleware.MetricsConsumerMiddleware(m))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		cfg.Log.Info("Consuming tasks", "topic", cfg.TasksTopic, "group_id", cfg.TasksGroupID, "types", router.Types())
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, kafka.ErrConsumerClosed) && !errors.Is(err, context.Canceled) {
			cfg.Log.Fatal("Task consumer stopped", "error", err)
		}
	}()

	serverApp := app.NewApplication()
	serverApp.SetApp(cfg, app.Options{
		Checks: []app.HealthCheck{
			{Name: "mongo", Check: records.Ping},
			{Name: "redis", Check: store.Ping},
		},
		Metrics: m,
		OnShutdown: []func(){func() {
			cancel()
			if err := consumer.Close(); err != nil {
				cfg.Log.Error("Failed to close task consumer", "error", err)
			}
		}},
	})
	serverApp.Run()
}
