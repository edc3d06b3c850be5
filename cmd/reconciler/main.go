package main

import (
	"context"

	"exambook/internal/bookings/repository"
	"exambook/internal/capacity"
	"exambook/internal/dedup"
	"exambook/internal/reconcile"
	"exambook/pkg/app"
	"exambook/pkg/config"
	"exambook/pkg/contracts"
	"exambook/pkg/lock"
	"exambook/pkg/lockstore"
	"exambook/pkg/metrics"
)

const ServiceName = "reconciler"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	cfg.SetRedis()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting Reconciler service", "interval", cfg.ReconcileInterval)
	m := metrics.New()
	records := repository.NewMongoRecordStore(cfg)
	store := lockstore.NewRedisStore(cfg.Client.Redis.Client)
	locks := lock.NewManager(store, cfg.Log, lock.WithMetrics(m))

	engine := reconcile.NewEngine(
		records,
		capacity.NewCounter(store, records, cfg.CounterTTL, cfg.Log, m),
		dedup.NewCache(store, cfg.DuplicateTTL),
		reconcile.Options{CompletionBatchSize: cfg.CompletionBatchSize},
		cfg.Log,
		m,
	)
	runner := reconcile.NewRunner(engine, locks, cfg.ReconcileInterval, nil, cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.Start(ctx)

	serverApp := app.NewApplication()
	serverApp.SetApp(cfg, app.Options{
		Handlers: []contracts.Handler{reconcile.NewHandler(runner, cfg.Log)},
		Checks: []app.HealthCheck{
			{Name: "mongo", Check: records.Ping},
			{Name: "redis", Check: store.Ping},
		},
		Metrics:    m,
		OnShutdown: []func(){runner.Stop},
	})
	serverApp.Run()
}
