// Command tournament runs the Tournament Discovery Service (C6, spec
// §4.6): a scheduled, stratified-sample scan of tournament rosters that
// discovers competitive matches and publishes match.discovered.
package main

import (
	"strconv"
	"strings"
	"time"

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
	applog.Info("starting tournament discovery service...")

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
	pool := credentials.NewPool("tournament", cfg.Credentials.TournamentKeys, cfg.Credentials.RPMLimit, cacheSvc)
	client := pubgapi.New(pubgapi.Config{UserAgent: "pewstats-collectors/tournament"}, pool, cacheSvc)

	svc := discovery.NewTournamentService(discovery.TournamentServiceConfig{
		Shard:        cfg.Shard,
		SampleSize:   cfg.Tournament.SampleSize,
		PollInterval: cfg.Tournament.Interval,
		Window:       parseWindow(cfg.Tournament),
	}, client, store, gw)

	ctx, wg, cancel := runctx.DrainOnSignal()
	defer cancel()
	runctx.Go(wg, func() { svc.Run(ctx) })
	wg.Wait()
}

// parseWindow turns the flat schedule_* config knobs into the
// discovery.ScheduleWindow the tournament service consumes, leaving an
// empty (always-open) window when scheduling is disabled.
func parseWindow(cfg config.TournamentConfig) discovery.ScheduleWindow {
	if !cfg.ScheduleEnabled {
		return discovery.ScheduleWindow{}
	}
	return discovery.ScheduleWindow{
		Days:      weekdays(cfg.ScheduleDays),
		StartTime: parseClock(cfg.ScheduleStart),
		EndTime:   parseClock(cfg.ScheduleEnd),
	}
}

// weekdays maps spec §6's 0=Mon..6=Sun mask onto time.Weekday (0=Sun).
func weekdays(mask []int) []time.Weekday {
	days := make([]time.Weekday, 0, len(mask))
	for _, d := range mask {
		days = append(days, time.Weekday((d+1)%7))
	}
	return days
}

func parseClock(hhmm string) time.Duration {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return 0
	}
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
}
