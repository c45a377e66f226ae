// Command download runs the Telemetry Download Worker (C8, spec §4.8):
// it consumes match.telemetry, streams the raw telemetry file to disk,
// and republishes match.processing.telemetry.
package main

import (
	"github.com/pewstats/collectors/internal/applog"
	"github.com/pewstats/collectors/internal/broker"
	"github.com/pewstats/collectors/internal/config"
	"github.com/pewstats/collectors/internal/db"
	"github.com/pewstats/collectors/internal/download"
	"github.com/pewstats/collectors/internal/ledger"
	"github.com/pewstats/collectors/internal/runctx"
)

func main() {
	applog.Info("starting telemetry download worker...")

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

	worker := download.NewWorker(download.Config{
		StorageRoot: cfg.Download.StorageRoot,
		Timeout:     cfg.Download.Timeout,
		MaxRetries:  cfg.Download.MaxRetries,
	}, store, gw)

	ctx, wg, cancel := runctx.DrainOnSignal()
	defer cancel()
	runctx.Go(wg, func() {
		if err := worker.Run(ctx, gw); err != nil {
			applog.Warn("download worker stopped: %v", err)
		}
	})
	wg.Wait()
}
