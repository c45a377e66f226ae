// Package ledger implements the match ledger (C3): race-safe first-writer-
// wins insertion, idempotent per-stage flag transitions, and tournament
// context assignment.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Store wraps the shared *sql.DB with the ledger's query set.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying connection for packages (telemetry, fight,
// aggregate) that need to run their own transactions against tables the
// ledger's own query set doesn't cover.
func (s *Store) DB() *sql.DB {
	return s.db
}

// DiscoveredMatch is the row shape a discovery service has enough
// information to insert without yet having fetched the full match document.
type DiscoveredMatch struct {
	MatchID            string
	MapName            string
	GameMode            string
	GameType            string
	MatchDatetime       time.Time
	Duration            int
	TelemetryURL        string
	DiscoveredBy        string // "main" | "tournament"
	DiscoveryPriority   string // "normal" | "high"
}

// InsertDiscovered performs the first-writer-wins insert described in
// spec §4.3: ON CONFLICT DO NOTHING means a second discoverer's insert
// affects zero rows and must not mutate any existing attribute. The
// returned bool reports whether THIS call was the first writer.
func (s *Store) InsertDiscovered(m DiscoveredMatch) (bool, error) {
	if m.DiscoveryPriority == "" {
		m.DiscoveryPriority = "normal"
	}
	res, err := s.db.Exec(`
		INSERT INTO matches (
			match_id, map_name, game_mode, game_type, match_datetime, duration,
			telemetry_url, status, discovered_by, discovery_priority
		) VALUES ($1,$2,$3,$4,$5,$6,$7,'discovered',$8,$9)
		ON CONFLICT (match_id) DO NOTHING
	`, m.MatchID, m.MapName, m.GameMode, m.GameType, m.MatchDatetime, m.Duration,
		nullableString(m.TelemetryURL), m.DiscoveredBy, m.DiscoveryPriority)
	if err != nil {
		return false, fmt.Errorf("insert discovered match %s: %w", m.MatchID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected for %s: %w", m.MatchID, err)
	}
	return n == 1, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// ExistingMatchIDs returns the subset of candidateIDs already present in
// the ledger, used by discovery services to diff freshly discovered ids
// against what is already tracked.
func (s *Store) ExistingMatchIDs(candidateIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(candidateIDs))
	if len(candidateIDs) == 0 {
		return out, nil
	}

	rows, err := s.db.Query(`SELECT match_id FROM matches WHERE match_id = ANY($1)`, pq.Array(candidateIDs))
	if err != nil {
		return nil, fmt.Errorf("query existing match ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan match id: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

// stageColumns is the allow-list of boolean column names for the
// processing stages, guarding against building a query from unvalidated
// input.
var stageColumns = map[string]bool{
	"summaries_processed":  true,
	"telemetry_downloaded": true,
	"landings_processed":   true,
	"kills_processed":      true,
	"circles_processed":    true,
	"weapons_processed":    true,
	"damage_processed":     true,
	"items_processed":      true,
	"advanced_processed":   true,
	"finishing_processed":  true,
	"fights_processed":     true,
}

// MarkStageComplete idempotently flips one stage flag from false to true.
// Re-running against an already-complete stage is a no-op (returns false,
// nil) so callers can safely retry without double-counting work.
func (s *Store) MarkStageComplete(matchID, stage string) (bool, error) {
	if !stageColumns[stage] {
		return false, fmt.Errorf("unknown ledger stage %q", stage)
	}
	query := fmt.Sprintf(`UPDATE matches SET %s = true WHERE match_id = $1 AND %s = false`, stage, stage)
	res, err := s.db.Exec(query, matchID)
	if err != nil {
		return false, fmt.Errorf("mark stage %s complete for %s: %w", stage, matchID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkStatsAggregated flips stats_aggregated and stamps stats_aggregated_at
// in a single statement, idempotent the same way as MarkStageComplete.
func (s *Store) MarkStatsAggregated(matchID string, at time.Time) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE matches SET stats_aggregated = true, stats_aggregated_at = $2
		WHERE match_id = $1 AND stats_aggregated = false
	`, matchID, at)
	if err != nil {
		return false, fmt.Errorf("mark stats aggregated for %s: %w", matchID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetTelemetryURL records the telemetry URL captured by the summary worker
// when it was not already known at discovery time.
func (s *Store) SetTelemetryURL(matchID, url string) error {
	_, err := s.db.Exec(`UPDATE matches SET telemetry_url = $2 WHERE match_id = $1`, matchID, url)
	if err != nil {
		return fmt.Errorf("set telemetry url for %s: %w", matchID, err)
	}
	return nil
}

// SetStatus transitions the ledger row's top-level status, recording an
// error message when moving to "failed".
func (s *Store) SetStatus(matchID, status, errMessage string) error {
	_, err := s.db.Exec(`UPDATE matches SET status = $2, error_message = $3 WHERE match_id = $1`,
		matchID, status, nullableString(errMessage))
	if err != nil {
		return fmt.Errorf("set status for %s: %w", matchID, err)
	}
	return nil
}

// MatchRow is the full ledger row, used by workers that need the
// telemetry URL, tournament context, or current stage flags.
type MatchRow struct {
	MatchID              string
	MapName              string
	GameMode             string
	GameType             string
	MatchDatetime        time.Time
	Duration             int
	TelemetryURL         string
	Status               string
	IsTournamentMatch    bool
	DiscoveredBy         string
	RoundRef             sql.NullString
	ScheduleSlotRef      sql.NullString
	ValidationStatus     sql.NullString
	TeamCount            sql.NullInt64
	TelemetryDownloaded  bool
	FightsProcessed      bool
	StatsAggregated      bool
}

func (s *Store) GetByID(matchID string) (*MatchRow, error) {
	row := s.db.QueryRow(`
		SELECT match_id, map_name, game_mode, game_type, match_datetime, duration,
		       COALESCE(telemetry_url, ''), status, is_tournament_match, discovered_by,
		       round_ref, schedule_slot_ref, validation_status, team_count,
		       telemetry_downloaded, fights_processed, stats_aggregated
		FROM matches WHERE match_id = $1
	`, matchID)

	var m MatchRow
	err := row.Scan(&m.MatchID, &m.MapName, &m.GameMode, &m.GameType, &m.MatchDatetime, &m.Duration,
		&m.TelemetryURL, &m.Status, &m.IsTournamentMatch, &m.DiscoveredBy,
		&m.RoundRef, &m.ScheduleSlotRef, &m.ValidationStatus, &m.TeamCount,
		&m.TelemetryDownloaded, &m.FightsProcessed, &m.StatsAggregated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get match %s: %w", matchID, err)
	}
	return &m, nil
}

// ListPendingStage returns up to limit match ids whose prerequisite stage
// is complete but target stage is not, for a worker that polls the ledger
// instead of consuming from the broker.
func (s *Store) ListPendingStage(prereqColumn, targetColumn string, limit int) ([]string, error) {
	if !stageColumns[targetColumn] || (prereqColumn != "" && !stageColumns[prereqColumn] && prereqColumn != "summaries_processed") {
		return nil, fmt.Errorf("unknown ledger stage column")
	}
	query := fmt.Sprintf(`
		SELECT match_id FROM matches
		WHERE status != 'failed' AND %s = true AND %s = false
		ORDER BY created_at ASC
		LIMIT $1
	`, prereqColumn, targetColumn)

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending stage %s: %w", targetColumn, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListPendingStatsAggregation returns up to limit match ids with status =
// completed and fights_processed = true whose match_participants stats
// have not yet been folded into career_aggregates (spec §4.11). A backfill
// reuses this same query after an operator resets stats_aggregated back
// to false on the affected rows.
func (s *Store) ListPendingStatsAggregation(limit int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT match_id FROM matches
		WHERE status = 'completed' AND fights_processed = true AND stats_aggregated = false
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending stats aggregation: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
