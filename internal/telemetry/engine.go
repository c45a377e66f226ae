// Package telemetry implements the Telemetry Processing Engine (C9, spec
// §4.9): seven independent extractors fan out over one decoded event
// slice in Phase 1, two dependent extractors (knock lifecycle/finishing,
// fight detection) run sequentially in Phase 2, and a roll-up pass writes
// per-match weapon distribution and enhanced participant columns in
// Phase 3.
package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pewstats/collectors/internal/broker"
	"github.com/pewstats/collectors/internal/fight"
	"github.com/pewstats/collectors/internal/ledger"
	"github.com/pewstats/collectors/internal/pubgapi"
)

// circleSampleInterval bounds the cost of the positioning extractor to
// roughly one sample per 10s of real time (spec §4.9: "every N events").
const circleSampleInterval = 10

// Engine owns the database connection used by every extractor and the
// ledger used for idempotent stage tracking.
type Engine struct {
	db     *sql.DB
	ledger *ledger.Store
	gw     broker.Publisher
}

func NewEngine(store *ledger.Store, gw broker.Publisher) *Engine {
	return &Engine{db: store.DB(), ledger: store, gw: gw}
}

type processingMessage struct {
	MatchID  string `json:"match_id"`
	FilePath string `json:"file_path"`
}

type statsMessage struct {
	MatchID string `json:"match_id"`
}

// Run subscribes to match.processing.telemetry until ctx is cancelled.
func (e *Engine) Run(ctx context.Context, sub broker.Subscriber) error {
	return sub.Consume(ctx, broker.TypeProcessingTelemetry, "telemetry", func(payload json.RawMessage) error {
		var msg processingMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("decode match.processing.telemetry payload: %w", err)
		}
		if err := e.ProcessMatch(ctx, msg.MatchID, msg.FilePath); err != nil {
			log.Printf("⚠️  telemetry engine: process match %s: %v", msg.MatchID, err)
			return err
		}
		return nil
	})
}

// matchContext carries the decoded events plus the bookkeeping every
// extractor needs: elapsed-time conversion and the tracked-player set.
// circle carries Phase 1's unfiltered positional means forward to Phase 3
// (see circles.go) so the roll-up still covers every player even though
// circle_positions itself is filtered storage.
type matchContext struct {
	matchID string
	events  []pubgapi.TelemetryEvent
	start   time.Time
	tracked map[string]bool
	circle  *circleAggregate
}

func (m matchContext) elapsed(timestamp string) float64 {
	t, err := time.Parse(time.RFC3339, timestamp)
	if err != nil || m.start.IsZero() {
		return 0
	}
	return t.Sub(m.start).Seconds()
}

// isTracked reports whether name is one of the pipeline's tracked players.
// damage_events and circle_positions are filtered storage (spec §3): detail
// rows are retained only for tracked players, even though the aggregates
// derived from them still cover every participant.
func (m matchContext) isTracked(name string) bool {
	return m.tracked[name]
}

// ProcessMatch implements the full Phase 1/2/3 sequence of spec §4.9 for
// one match. Idempotency: every table this engine inserts rows into is
// cleared for matchID before any extractor runs, and the match_participants
// columns it fills are overwritten, so a half-finished prior attempt never
// leaves stale rows mixed with fresh ones.
func (e *Engine) ProcessMatch(ctx context.Context, matchID, filePath string) error {
	events, err := LoadEvents(filePath)
	if err != nil {
		e.ledger.SetStatus(matchID, "failed", err.Error())
		return err
	}

	tracked, err := e.ledger.ListTrackedPlayerNames()
	if err != nil {
		return fmt.Errorf("list tracked players for %s: %w", matchID, err)
	}

	mc := matchContext{matchID: matchID, events: events, tracked: tracked, circle: &circleAggregate{}}
	if len(events) > 0 {
		if t, err := time.Parse(time.RFC3339, events[0].Timestamp); err == nil {
			mc.start = t
		}
	}

	if err := e.clearChildRows(matchID); err != nil {
		return fmt.Errorf("clear existing telemetry rows for %s: %w", matchID, err)
	}

	if err := e.runPhase1(mc); err != nil {
		return fmt.Errorf("phase 1 extractors for %s: %w", matchID, err)
	}

	knocks, err := e.runPhase2(ctx, mc)
	if err != nil {
		return fmt.Errorf("phase 2 extractors for %s: %w", matchID, err)
	}

	if err := e.runPhase3(mc, knocks); err != nil {
		return fmt.Errorf("phase 3 roll-up for %s: %w", matchID, err)
	}

	// stats_aggregated is the aggregate worker's flag, not this engine's:
	// it flips once the match's match_participants stats have been folded
	// into career_aggregates (internal/aggregate), not merely extracted.
	_, pubErr := e.gw.Publish(broker.TypeStats, "stats", statsMessage{MatchID: matchID}, "normal")
	return pubErr
}

// clearChildRows deletes every row this engine owns for matchID, across
// every table it writes to, so a re-run never mixes rows from a prior
// half-finished pass with fresh ones (spec §4.9 "Idempotency").
func (e *Engine) clearChildRows(matchID string) error {
	tables := []string{
		"landings", "kill_positions", "weapon_kill_events", "damage_events",
		"circle_positions", "knock_distance_histograms", "teammate_support_histograms",
		"player_weapon_stats", "fight_participants",
	}
	for _, table := range tables {
		if _, err := e.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE match_id = $1`, table), matchID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	// fights cascades fight_participants via FK, but fight_participants was
	// already cleared above by match_id directly; clear fights after it.
	if _, err := e.db.Exec(`DELETE FROM fights WHERE match_id = $1`, matchID); err != nil {
		return fmt.Errorf("clear fights: %w", err)
	}
	if _, err := e.db.Exec(`DELETE FROM knock_events WHERE match_id = $1`, matchID); err != nil {
		return fmt.Errorf("clear knock_events: %w", err)
	}
	return nil
}

// runPhase1 fans the seven independent extractors out over one errgroup,
// each inside its own transaction; item usage and advanced stats both
// update match_participants, the other five each insert into a table of
// their own (spec §4.9 Phase
// 1, grounded on internal/workers/analytics_worker_pool.go's concurrent
// task shape generalized from a channel pool to a fixed fan-out set).
func (e *Engine) runPhase1(mc matchContext) error {
	g := new(errgroup.Group)

	g.Go(func() error { return e.extractLandings(mc) })
	g.Go(func() error { return e.extractKillPositions(mc) })
	g.Go(func() error { return e.extractWeaponKills(mc) })
	g.Go(func() error { return e.extractDamageEvents(mc) })
	g.Go(func() error { return e.extractItemUsage(mc) })
	g.Go(func() error { return e.extractAdvancedStats(mc) })
	g.Go(func() error { return e.extractCirclePositions(mc) })

	return g.Wait()
}

// runPhase2 runs the knock lifecycle/finishing extractor then fight
// detection, sequentially, since fight detection consumes the knock
// outcomes the first extractor produces.
func (e *Engine) runPhase2(ctx context.Context, mc matchContext) ([]knockRecord, error) {
	knocks, err := e.extractKnockLifecycle(mc)
	if err != nil {
		return nil, err
	}

	fights := fight.Detect(fightInput(mc, knocks))
	if err := fight.Save(e.db, mc.matchID, fights); err != nil {
		return nil, fmt.Errorf("save fights: %w", err)
	}
	if _, err := e.ledger.MarkStageComplete(mc.matchID, "fights_processed"); err != nil {
		log.Printf("⚠️  telemetry engine: mark fights processed for %s: %v", mc.matchID, err)
	}

	return knocks, nil
}
