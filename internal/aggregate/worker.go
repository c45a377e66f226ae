// Package aggregate implements the Stats Aggregation Worker (C11, spec
// §4.11): a polling loop, grounded on harvest-api's batch_worker.go /
// process_matches_worker.go poll-batch-update-flag shape, that folds each
// completed match's match_participants summary stats into the
// career_aggregates table partitioned by match-type class, then flips
// stats_aggregated. The telemetry detail tables (damage_events,
// weapon_kill_events, player_weapon_stats) are not read.
package aggregate

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/pewstats/collectors/internal/ledger"
	"github.com/pewstats/collectors/internal/weapons"
)

// Config configures the aggregation worker's poll loop.
type Config struct {
	BatchSize int           // default 100, mirrors harvest-api's SplitIntoBatches(matches, 100)
	Interval  time.Duration // default 30s between polls
}

// Worker rolls match_participants stats up into per-player career totals.
type Worker struct {
	cfg    Config
	db     *sql.DB
	ledger *ledger.Store
}

func NewWorker(cfg Config, store *ledger.Store) *Worker {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Worker{cfg: cfg, db: store.DB(), ledger: store}
}

// BatchResult is the per-poll outcome, mirroring the metrics harvest-api's
// process_matches_worker.go accumulates per batch.
type BatchResult struct {
	Candidates int
	Aggregated int
	Failed     int
}

// Run polls until ctx is cancelled, waiting for the next cfg.Interval tick
// after every poll, whether or not it found anything pending (spec §4.11:
// "polls the ledger... in configurable batches").
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		result := w.RunOnce(ctx)
		if result.Candidates > 0 {
			log.Printf("📊 stats aggregation: candidates=%d aggregated=%d failed=%d",
				result.Candidates, result.Aggregated, result.Failed)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce processes one batch of pending matches. Returning early on a
// database error leaves the remaining candidates for the next poll.
func (w *Worker) RunOnce(ctx context.Context) BatchResult {
	var result BatchResult

	matchIDs, err := w.ledger.ListPendingStatsAggregation(w.cfg.BatchSize)
	if err != nil {
		log.Printf("⚠️  stats aggregation: list pending: %v", err)
		return result
	}
	result.Candidates = len(matchIDs)

	for _, matchID := range matchIDs {
		if err := w.aggregateMatch(ctx, matchID); err != nil {
			log.Printf("⚠️  stats aggregation: aggregate %s: %v", matchID, err)
			result.Failed++
			continue
		}
		if _, err := w.ledger.MarkStatsAggregated(matchID, time.Now().UTC()); err != nil {
			log.Printf("⚠️  stats aggregation: mark stats aggregated for %s: %v", matchID, err)
			result.Failed++
			continue
		}
		result.Aggregated++
	}

	return result
}

// aggregateMatch folds one match's match_participants rows into
// career_aggregates twice: once under the match's own type class and once
// under "all" (spec §4.11: "partitioned by match-type class ('ranked',
// 'normal', 'all')"), in a single transaction so a mid-way failure never
// leaves the "all" rollup out of sync with the class-specific one.
func (w *Worker) aggregateMatch(ctx context.Context, matchID string) error {
	row, err := w.ledger.GetByID(matchID)
	if err != nil {
		return fmt.Errorf("load match %s: %w", matchID, err)
	}
	if row == nil {
		return fmt.Errorf("match %s not found", matchID)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	class := weapons.MatchTypeClass(row.GameType)
	if err := upsertCareerTotals(tx, matchID, class); err != nil {
		return fmt.Errorf("upsert %s totals: %w", class, err)
	}
	if err := upsertCareerTotals(tx, matchID, "all"); err != nil {
		return fmt.Errorf("upsert all totals: %w", err)
	}

	return tx.Commit()
}

// upsertCareerTotals adds one match's per-player contributions into
// career_aggregates for the given partition. Additive by design: a
// backfill that resets stats_aggregated on an already-aggregated match
// double-counts unless the operator first zeroes that match's prior
// contribution, the same caveat harvest-api's additive batch workers carry.
func upsertCareerTotals(tx *sql.Tx, matchID, class string) error {
	_, err := tx.Exec(`
		INSERT INTO career_aggregates (
			player_name, match_type_class, matches_count, kills, assists,
			damage_dealt, wins, top10s, time_survived, headshot_kills, updated_at
		)
		SELECT
			player_name, $2, 1, COALESCE(kills, 0), COALESCE(assists, 0),
			COALESCE(damage_dealt, 0),
			CASE WHEN won THEN 1 ELSE 0 END,
			CASE WHEN team_rank <= 10 THEN 1 ELSE 0 END,
			COALESCE(time_survived, 0), COALESCE(headshot_kills, 0), now()
		FROM match_participants
		WHERE match_id = $1
		ON CONFLICT (player_name, match_type_class) DO UPDATE SET
			matches_count  = career_aggregates.matches_count + EXCLUDED.matches_count,
			kills          = career_aggregates.kills + EXCLUDED.kills,
			assists        = career_aggregates.assists + EXCLUDED.assists,
			damage_dealt   = career_aggregates.damage_dealt + EXCLUDED.damage_dealt,
			wins           = career_aggregates.wins + EXCLUDED.wins,
			top10s         = career_aggregates.top10s + EXCLUDED.top10s,
			time_survived  = career_aggregates.time_survived + EXCLUDED.time_survived,
			headshot_kills = career_aggregates.headshot_kills + EXCLUDED.headshot_kills,
			updated_at     = EXCLUDED.updated_at
	`, matchID, class)
	if err != nil {
		return fmt.Errorf("upsert career totals for %s/%s: %w", matchID, class, err)
	}
	return nil
}
