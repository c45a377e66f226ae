// Package summary implements the Match Summary Worker (C7, spec §4.7):
// it consumes match.discovered, turns one match document into its
// per-participant summary rows, resolves tournament context for
// tournament-discovered matches, and republishes match.telemetry for the
// download worker to pick up.
package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pewstats/collectors/internal/broker"
	"github.com/pewstats/collectors/internal/ledger"
	"github.com/pewstats/collectors/internal/pubgapi"
	"github.com/pewstats/collectors/internal/weapons"
)

// Config configures the summary worker.
type Config struct {
	Shard    string
	WorkerID string
}

// Counters tracks processed/error totals for the worker's lifetime,
// exposed for the success-rate metric spec §4.7 asks for.
type Counters struct {
	mu        sync.Mutex
	Processed int
	Errors    int
}

func (c *Counters) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Processed++
}

func (c *Counters) recordError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Errors++
}

// SuccessRate returns the fraction of processed messages that completed
// without error, or 1.0 when nothing has run yet.
func (c *Counters) SuccessRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.Processed + c.Errors
	if total == 0 {
		return 1.0
	}
	return float64(c.Processed) / float64(total)
}

// Worker turns match.discovered messages into participant summary rows.
type Worker struct {
	cfg      Config
	client   *pubgapi.Client
	ledger   *ledger.Store
	gw       broker.Publisher
	Counters Counters
}

func NewWorker(cfg Config, client *pubgapi.Client, store *ledger.Store, gw broker.Publisher) *Worker {
	if cfg.WorkerID == "" {
		cfg.WorkerID = "summary-worker"
	}
	return &Worker{cfg: cfg, client: client, ledger: store, gw: gw}
}

// discoveredMessage is the payload shape published by internal/discovery.
type discoveredMessage struct {
	MatchID string `json:"match_id"`
}

// telemetryMessage is the payload published onward to the download worker.
type telemetryMessage struct {
	MatchID          string `json:"match_id"`
	TelemetryURL     string `json:"telemetry_url"`
	MapName          string `json:"map_name"`
	GameMode         string `json:"game_mode"`
	MatchDatetime    string `json:"match_datetime"`
	ParticipantCount int    `json:"participant_count"`
	WorkerID         string `json:"worker_id"`
}

// rosterInfo is the {team_id, team_rank, won} lookup entry keyed by
// participant id (spec §4.7 step 5).
type rosterInfo struct {
	teamID   int
	teamRank int
	won      bool
}

// Run subscribes to match.discovered at prefetch 1 until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, sub broker.Subscriber) error {
	return sub.Consume(ctx, broker.TypeDiscovered, "discovered", func(payload json.RawMessage) error {
		var msg discoveredMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			w.Counters.recordError()
			return fmt.Errorf("decode match.discovered payload: %w", err)
		}
		if err := w.ProcessMatch(ctx, msg.MatchID); err != nil {
			w.Counters.recordError()
			log.Printf("⚠️  summary worker: process match %s: %v", msg.MatchID, err)
			return err
		}
		w.Counters.recordSuccess()
		return nil
	})
}

// ProcessMatch implements the full step sequence of spec §4.7 for one
// match id.
func (w *Worker) ProcessMatch(ctx context.Context, matchID string) error {
	if err := w.ledger.SetStatus(matchID, "processing", ""); err != nil {
		return err
	}

	hasSummaries, err := w.ledger.HasParticipants(matchID)
	if err != nil {
		return err
	}
	if hasSummaries {
		return w.reenter(ctx, matchID)
	}

	resp, err := w.client.GetMatch(ctx, w.cfg.Shard, matchID)
	if err != nil {
		w.ledger.SetStatus(matchID, "failed", err.Error())
		return fmt.Errorf("fetch match %s: %w", matchID, err)
	}

	telemetryURL, telemetryErr := pubgapi.TelemetryAssetURL(resp)
	if telemetryErr != nil {
		log.Printf("⚠️  summary worker: no telemetry asset for %s: %v", matchID, telemetryErr)
	}

	rosterLookup := buildRosterLookup(resp)

	mapName := weapons.TranslateMapName(resp.Data.Attributes.MapName)
	gameMode := resp.Data.Attributes.GameMode
	matchDatetime, err := time.Parse(time.RFC3339, resp.Data.Attributes.CreatedAt)
	if err != nil {
		w.ledger.SetStatus(matchID, "failed", err.Error())
		return fmt.Errorf("parse match datetime for %s: %w", matchID, err)
	}

	rows := make([]ledger.ParticipantRow, 0, len(resp.Included))
	for _, inc := range resp.Included {
		if inc.Type != "participant" {
			continue
		}
		attrs, err := inc.AsParticipant()
		if err != nil {
			log.Printf("⚠️  summary worker: decode participant %s in %s: %v", inc.ID, matchID, err)
			continue
		}
		info := rosterLookup[inc.ID]
		rows = append(rows, participantRow(matchID, inc.ID, info, attrs))
	}

	if _, err := w.ledger.InsertParticipants(rows); err != nil {
		w.ledger.SetStatus(matchID, "failed", err.Error())
		return fmt.Errorf("insert participants for %s: %w", matchID, err)
	}

	// Per spec §8 scenario 2: a match with no included[type=asset] entry has
	// nothing for the download worker to fetch. Participant rows still stand,
	// but the match is marked failed and match.telemetry is never published
	// with a blank URL.
	if telemetryErr != nil {
		if err := w.ledger.SetStatus(matchID, "failed", "missing telemetry URL"); err != nil {
			log.Printf("⚠️  summary worker: set failed status for %s: %v", matchID, err)
		}
		return nil
	}

	if telemetryURL != "" {
		if err := w.ledger.SetTelemetryURL(matchID, telemetryURL); err != nil {
			log.Printf("⚠️  summary worker: set telemetry url for %s: %v", matchID, err)
		}
	}

	row, err := w.ledger.GetByID(matchID)
	if err != nil {
		return err
	}
	if row != nil && row.DiscoveredBy == "tournament" {
		names, err := w.ledger.ParticipantNames(matchID)
		if err != nil {
			log.Printf("⚠️  summary worker: list participant names for %s: %v", matchID, err)
		} else if _, err := w.ledger.AssignTournamentContext(matchID, names, matchDatetime, mapName); err != nil {
			log.Printf("⚠️  summary worker: assign tournament context for %s: %v", matchID, err)
		}
	}

	if _, err := w.ledger.MarkStageComplete(matchID, "summaries_processed"); err != nil {
		log.Printf("⚠️  summary worker: mark summaries processed for %s: %v", matchID, err)
	}

	return w.publishTelemetry(telemetryMessage{
		MatchID:          matchID,
		TelemetryURL:     telemetryURL,
		MapName:          mapName,
		GameMode:         gameMode,
		MatchDatetime:    matchDatetime.Format(time.RFC3339),
		ParticipantCount: len(rows),
		WorkerID:         w.cfg.WorkerID,
	})
}

// reenter implements the idempotent re-entry path of spec §4.7 step 2:
// summaries already exist, so only the telemetry URL needs (re)fetching
// before republishing.
func (w *Worker) reenter(ctx context.Context, matchID string) error {
	row, err := w.ledger.GetByID(matchID)
	if err != nil {
		return err
	}
	if row == nil {
		return fmt.Errorf("reenter match %s: no ledger row", matchID)
	}

	telemetryURL := row.TelemetryURL
	if telemetryURL == "" {
		resp, err := w.client.GetMatch(ctx, w.cfg.Shard, matchID)
		if err != nil {
			return fmt.Errorf("reenter fetch match %s: %w", matchID, err)
		}
		telemetryURL, _ = pubgapi.TelemetryAssetURL(resp)
		if telemetryURL != "" {
			if err := w.ledger.SetTelemetryURL(matchID, telemetryURL); err != nil {
				log.Printf("⚠️  summary worker: set telemetry url for %s: %v", matchID, err)
			}
		}
	}

	names, err := w.ledger.ParticipantNames(matchID)
	participantCount := len(names)
	if err != nil {
		participantCount = 0
	}

	return w.publishTelemetry(telemetryMessage{
		MatchID:          matchID,
		TelemetryURL:     telemetryURL,
		MapName:          weapons.TranslateMapName(row.MapName),
		GameMode:         row.GameMode,
		MatchDatetime:    row.MatchDatetime.Format(time.RFC3339),
		ParticipantCount: participantCount,
		WorkerID:         w.cfg.WorkerID,
	})
}

func (w *Worker) publishTelemetry(msg telemetryMessage) error {
	_, err := w.gw.Publish(broker.TypeTelemetry, "telemetry", msg, "normal")
	return err
}

// buildRosterLookup walks every included roster's participant
// relationships so each participant id resolves to its team's placement
// (spec §4.7 step 5).
func buildRosterLookup(resp *pubgapi.MatchResponse) map[string]rosterInfo {
	lookup := map[string]rosterInfo{}
	for _, inc := range resp.Included {
		if inc.Type != "roster" {
			continue
		}
		attrs, participants, err := inc.AsRoster()
		if err != nil {
			continue
		}
		info := rosterInfo{teamID: attrs.TeamID, teamRank: attrs.Rank, won: attrs.Won}
		for _, p := range participants {
			lookup[p.ID] = info
		}
	}
	return lookup
}

func participantRow(matchID, participantID string, info rosterInfo, attrs pubgapi.ParticipantAttributes) ledger.ParticipantRow {
	s := attrs.Stats
	return ledger.ParticipantRow{
		MatchID:         matchID,
		ParticipantID:   participantID,
		PlayerID:        s.PlayerID,
		PlayerName:      s.Name,
		TeamID:          info.teamID,
		TeamRank:        info.teamRank,
		Won:             info.won,
		Kills:           s.Kills,
		Assists:         s.Assists,
		Boosts:          s.Boosts,
		Heals:           s.Heals,
		DamageDealt:     s.DamageDealt,
		DBNOs:           s.DBNOs,
		DeathType:       s.DeathType,
		HeadshotKills:   s.HeadshotKills,
		KillPlace:       s.KillPlace,
		LongestKill:     s.LongestKill,
		RideDistance:    s.RideDistance,
		RoadKills:       s.RoadKills,
		SwimDistance:    s.SwimDistance,
		TeamKills:       s.TeamKills,
		TimeSurvived:    s.TimeSurvived,
		VehicleDestroys: s.VehicleDestroys,
		WalkDistance:    s.WalkDistance,
		WeaponsAcquired: s.WeaponsAcquired,
		WinPlace:        s.WinPlace,
	}
}
