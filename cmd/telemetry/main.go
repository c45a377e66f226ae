// Command telemetry runs the Telemetry Processing Engine (C9, spec §4.9)
// plus Fight Detector (C10, spec §4.10): it consumes
// match.processing.telemetry, extracts every per-match table, detects
// team fights, and publishes match.stats.
package main

import (
	"github.com/pewstats/collectors/internal/applog"
	"github.com/pewstats/collectors/internal/broker"
	"github.com/pewstats/collectors/internal/config"
	"github.com/pewstats/collectors/internal/db"
	"github.com/pewstats/collectors/internal/ledger"
	"github.com/pewstats/collectors/internal/runctx"
	"github.com/pewstats/collectors/internal/telemetry"
)

func main() {
	applog.Info("starting telemetry processing engine...")

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

	engine := telemetry.NewEngine(store, gw)

	ctx, wg, cancel := runctx.DrainOnSignal()
	defer cancel()
	runctx.Go(wg, func() {
		if err := engine.Run(ctx, gw); err != nil {
			applog.Warn("telemetry engine stopped: %v", err)
		}
	})
	wg.Wait()
}
