package ledger

import (
	"fmt"
)

// ParticipantRow is one participant's per-match summary, joining the
// roster lookup (team id/rank/won) with the upstream stats object (spec
// §4.7 steps 5-6).
type ParticipantRow struct {
	MatchID        string
	ParticipantID  string
	PlayerID       string
	PlayerName     string
	TeamID         int
	TeamRank       int
	Won            bool
	Kills          int
	Assists        int
	Boosts         int
	Heals          int
	DamageDealt    float64
	DBNOs          int
	DeathType      string
	HeadshotKills  int
	KillPlace      int
	LongestKill    float64
	RideDistance   float64
	RoadKills      int
	SwimDistance   float64
	TeamKills      int
	TimeSurvived   float64
	VehicleDestroys int
	WalkDistance   float64
	WeaponsAcquired int
	WinPlace       int
}

// HasParticipants reports whether summaries already exist for matchID,
// the idempotent re-entry check of spec §4.7 step 2.
func (s *Store) HasParticipants(matchID string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT count(*) FROM match_participants WHERE match_id = $1`, matchID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count participants for %s: %w", matchID, err)
	}
	return n > 0, nil
}

// InsertParticipants bulk-inserts one row per participant inside a single
// transaction, first-writer-wins per row via ON CONFLICT DO NOTHING so a
// re-delivered message cannot duplicate or overwrite an existing summary.
// Returns the number of rows actually inserted.
func (s *Store) InsertParticipants(rows []ParticipantRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin participant insert tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO match_participants (
			match_id, participant_id, player_id, player_name, team_id, team_rank, won,
			kills, assists, boosts, heals, damage_dealt, dbnos, death_type, headshot_kills,
			kill_place, longest_kill, ride_distance, road_kills, swim_distance, team_kills,
			time_survived, vehicle_destroys, walk_distance, weapons_acquired, win_place
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
		ON CONFLICT (match_id, participant_id) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare participant insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range rows {
		res, err := stmt.Exec(
			r.MatchID, r.ParticipantID, nullableString(r.PlayerID), r.PlayerName, r.TeamID, r.TeamRank, r.Won,
			r.Kills, r.Assists, r.Boosts, r.Heals, r.DamageDealt, r.DBNOs, nullableString(r.DeathType), r.HeadshotKills,
			r.KillPlace, r.LongestKill, r.RideDistance, r.RoadKills, r.SwimDistance, r.TeamKills,
			r.TimeSurvived, r.VehicleDestroys, r.WalkDistance, r.WeaponsAcquired, r.WinPlace,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert participant %s/%s: %w", r.MatchID, r.ParticipantID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, err
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return inserted, fmt.Errorf("commit participant insert tx: %w", err)
	}
	return inserted, nil
}

// ParticipantNames returns the distinct player names recorded for matchID,
// used to feed tournament context assignment after summaries are inserted.
func (s *Store) ParticipantNames(matchID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT player_name FROM match_participants WHERE match_id = $1`, matchID)
	if err != nil {
		return nil, fmt.Errorf("list participant names for %s: %w", matchID, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
