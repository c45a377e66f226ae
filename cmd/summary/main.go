// Command summary runs the Match Summary Worker (C7, spec §4.7): it
// consumes match.discovered, writes per-participant summary rows, and
// republishes match.telemetry.
package main

import (
	"github.com/pewstats/collectors/internal/applog"
	"github.com/pewstats/collectors/internal/broker"
	"github.com/pewstats/collectors/internal/cache"
	"github.com/pewstats/collectors/internal/config"
	"github.com/pewstats/collectors/internal/credentials"
	"github.com/pewstats/collectors/internal/db"
	"github.com/pewstats/collectors/internal/ledger"
	"github.com/pewstats/collectors/internal/pubgapi"
	"github.com/pewstats/collectors/internal/runctx"
	"github.com/pewstats/collectors/internal/summary"
)

func main() {
	applog.Info("starting match summary worker...")

	cfg, err := config.Load()
	if err != nil {
		applog.Fatal("load config: %v", err)
	}

	database, err := db.NewDatabase(db.Config{
		Host: cfg.Postgres.Host, Port: cfg.Postgres.Port, User: cfg.Postgres.User,
		Password: cfg.Postgres.Password, DBName: cfg.Postgres.DB, SSLMode: cfg.Postgres.SSLMode,
	})
	if err != nil {
		applog.Fatal("connect to database: %v", err)
	}
	defer database.Close()
	if err := database.Migrate(); err != nil {
		applog.Fatal("run migrations: %v", err)
	}
	store := ledger.New(database.DB)

	gw, err := broker.Connect(broker.Config{URL: cfg.Broker.URL, Environment: cfg.Environment})
	if err != nil {
		applog.Fatal("connect to broker: %v", err)
	}

	cacheSvc := cache.NewService(cache.Config{
		Host: cfg.Redis.Host, Port: cfg.Redis.Port, Enabled: cfg.Redis.Enabled,
	})
	pool := credentials.NewPool("main", cfg.Credentials.MainKeys, cfg.Credentials.RPMLimit, cacheSvc)
	client := pubgapi.New(pubgapi.Config{UserAgent: "pewstats-collectors/summary"}, pool, cacheSvc)

	worker := summary.NewWorker(summary.Config{Shard: cfg.Shard}, client, store, gw)

	ctx, wg, cancel := runctx.DrainOnSignal()
	defer cancel()
	runctx.Go(wg, func() {
		if err := worker.Run(ctx, gw); err != nil {
			applog.Warn("summary worker stopped: %v", err)
		}
	})
	wg.Wait()
}
