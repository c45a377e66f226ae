// Command discovery runs the Main Discovery Service (C5, spec §4.5): a
// periodic scan of tracked players' recent matches that discovers new
// ledger rows and publishes match.discovered.
package main

import (
	"github.com/pewstats/collectors/internal/applog"
	"github.com/pewstats/collectors/internal/broker"
	"github.com/pewstats/collectors/internal/cache"
	"github.com/pewstats/collectors/internal/config"
	"github.com/pewstats/collectors/internal/credentials"
	"github.com/pewstats/collectors/internal/db"
	"github.com/pewstats/collectors/internal/discovery"
	"github.com/pewstats/collectors/internal/ledger"
	"github.com/pewstats/collectors/internal/pubgapi"
	"github.com/pewstats/collectors/internal/runctx"
)

func main() {
	applog.Info("starting main discovery service...")

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
	client := pubgapi.New(pubgapi.Config{UserAgent: "pewstats-collectors/discovery"}, pool, cacheSvc)

	svc := discovery.NewMainService(discovery.MainServiceConfig{
		Shard:              cfg.Shard,
		TrackedPlayerLimit: cfg.Discovery.SampleSize,
		Interval:           cfg.Discovery.Interval,
	}, client, store, gw)

	ctx, wg, cancel := runctx.DrainOnSignal()
	defer cancel()
	runctx.Go(wg, func() { svc.Run(ctx) })
	wg.Wait()
}
