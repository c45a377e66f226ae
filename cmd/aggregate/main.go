// Command aggregate runs the Stats Aggregation Worker (C11, spec §4.11):
// a poll loop (not a broker consumer) that folds completed matches'
// match_participants summary stats into the career_aggregates table.
package main

import (
	"github.com/pewstats/collectors/internal/aggregate"
	"github.com/pewstats/collectors/internal/applog"
	"github.com/pewstats/collectors/internal/config"
	"github.com/pewstats/collectors/internal/db"
	"github.com/pewstats/collectors/internal/ledger"
	"github.com/pewstats/collectors/internal/runctx"
)

func main() {
	applog.Info("starting stats aggregation worker...")

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

	worker := aggregate.NewWorker(aggregate.Config{
		BatchSize: cfg.Aggregation.BatchSize,
		Interval:  cfg.Aggregation.AggregationInterval,
	}, store)

	ctx, wg, cancel := runctx.DrainOnSignal()
	defer cancel()
	runctx.Go(wg, func() { worker.Run(ctx) })
	wg.Wait()
}
