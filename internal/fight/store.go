package fight

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// Save persists fights and their participants inside one transaction per
// fight: the fight row is inserted with RETURNING id, that id is stamped
// onto every participant before the bulk participant insert runs. A
// participant ending up with no fight_id is a defect, not a condition this
// function tolerates silently.
func Save(db *sql.DB, matchID string, fights []Fight) error {
	for _, f := range fights {
		if err := saveOne(db, matchID, f); err != nil {
			return err
		}
	}
	return nil
}

func saveOne(db *sql.DB, matchID string, f Fight) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin fight tx: %w", err)
	}
	defer tx.Rollback()

	var fightID int64
	err = tx.QueryRow(`
		INSERT INTO fights (
			match_id, start_time, end_time, duration, teams, primary_pair, third_party_teams,
			center_x, center_y, spread_radius, total_knocks, total_kills, total_damage,
			total_damage_events, total_attack_events, outcome, winning_team, losing_team,
			team_outcomes, fight_reason
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20
		) RETURNING id
	`,
		matchID, f.StartTime, f.EndTime, f.Duration, pq.Array(f.Teams), pq.Array(f.PrimaryPair),
		pq.Array(f.ThirdPartyTeams), f.CenterX, f.CenterY, f.SpreadRadius, f.TotalKnocks, f.TotalKills,
		f.TotalDamage, f.TotalDamageEvents, f.TotalAttackEvents, f.Outcome,
		nullableString(f.WinningTeam), nullableString(f.LosingTeam), teamOutcomesJSON(f.TeamOutcomes), f.FightReason,
	).Scan(&fightID)
	if err != nil {
		return fmt.Errorf("insert fight for %s: %w", matchID, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO fight_participants (
			fight_id, match_id, player_name, team_ref, knocks_dealt, kills_dealt,
			damage_dealt, damage_taken, attacks_made, mean_x, mean_y,
			was_knocked, was_killed, survived, knocked_at, killed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`)
	if err != nil {
		return fmt.Errorf("prepare fight_participants insert for %s: %w", matchID, err)
	}
	defer stmt.Close()

	for _, p := range f.Participants {
		if fightID == 0 {
			return fmt.Errorf("participant %s has no fight_id for match %s", p.PlayerName, matchID)
		}
		if _, err := stmt.Exec(fightID, matchID, p.PlayerName, p.TeamRef, p.KnocksDealt, p.KillsDealt,
			p.DamageDealt, p.DamageTaken, p.AttacksMade, p.MeanX, p.MeanY,
			p.WasKnocked, p.WasKilled, p.Survived, nullableFloat(p.KnockedAt), nullableFloat(p.KilledAt)); err != nil {
			return fmt.Errorf("insert participant %s for %s: %w", p.PlayerName, matchID, err)
		}
	}

	return tx.Commit()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

// teamOutcomesJSON renders the per-team outcome map as a jsonb literal;
// nil/empty maps persist as an empty object rather than NULL so downstream
// readers never need a null check.
func teamOutcomesJSON(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	out := "{"
	first := true
	for k, v := range m {
		if !first {
			out += ","
		}
		first = false
		out += fmt.Sprintf("%q:%q", k, v)
	}
	out += "}"
	return out
}
