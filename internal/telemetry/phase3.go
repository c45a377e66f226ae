package telemetry

import (
	"fmt"

	"github.com/pewstats/collectors/internal/weapons"
)

// runPhase3 rolls up the per-match weapon distribution table and fills in
// the enhanced match_participants columns that depend on Phase 2's knock
// map (killsteals) and Phase 1's sampled circle positions (the three
// positional means) (spec §4.9 Phase 3).
func (e *Engine) runPhase3(mc matchContext, knocks []knockRecord) error {
	if err := e.rollUpWeaponStats(mc); err != nil {
		return fmt.Errorf("roll up weapon stats: %w", err)
	}
	if err := e.rollUpKillsteals(mc.matchID, knocks); err != nil {
		return fmt.Errorf("roll up killsteals: %w", err)
	}
	if err := e.rollUpPositionalMeans(mc); err != nil {
		return fmt.Errorf("roll up positional means: %w", err)
	}
	return nil
}

// rollUpWeaponStats condenses kills (from weapon_kill_events) and damage
// dealt into one row per (player, category), the shape the match-report
// views read; the career aggregate does not read it. Damage is summed from the
// in-memory event scan rather than the damage_events table: that table is
// filtered storage (spec §3, tracked players only), but this roll-up must
// still cover every player.
func (e *Engine) rollUpWeaponStats(mc matchContext) error {
	if err := e.rollUpWeaponKillCounts(mc.matchID); err != nil {
		return err
	}
	return e.rollUpWeaponDamage(mc)
}

func (e *Engine) rollUpWeaponKillCounts(matchID string) error {
	_, err := e.db.Exec(`
		INSERT INTO player_weapon_stats (match_id, player_name, weapon_category, kills, damage)
		SELECT match_id, killer_name AS player_name, weapon_category, COUNT(*), 0
		FROM weapon_kill_events
		WHERE match_id = $1 AND killer_name IS NOT NULL AND killer_name != ''
		GROUP BY match_id, killer_name, weapon_category
		ON CONFLICT (match_id, player_name, weapon_category)
		DO UPDATE SET kills = player_weapon_stats.kills + EXCLUDED.kills
	`, matchID)
	return err
}

func (e *Engine) rollUpWeaponDamage(mc matchContext) error {
	type key struct {
		player   string
		category string
	}
	totals := map[key]float64{}
	for _, rec := range decodeEvents[takeDamage](mc, eventTakeDamage) {
		d := rec.v
		if d.Damage <= 0 || d.Attacker.Name == "" {
			continue
		}
		k := key{player: d.Attacker.Name, category: string(weapons.WeaponCategory(d.DamageCauserName))}
		totals[k] += d.Damage
	}
	if len(totals) == 0 {
		return nil
	}

	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin player_weapon_stats damage tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO player_weapon_stats (match_id, player_name, weapon_category, kills, damage)
		VALUES ($1,$2,$3,0,$4)
		ON CONFLICT (match_id, player_name, weapon_category)
		DO UPDATE SET damage = player_weapon_stats.damage + EXCLUDED.damage
	`)
	if err != nil {
		return fmt.Errorf("prepare player_weapon_stats damage upsert: %w", err)
	}
	defer stmt.Close()

	for k, dmg := range totals {
		if _, err := stmt.Exec(mc.matchID, k.player, k.category, dmg); err != nil {
			return fmt.Errorf("upsert weapon damage for %s: %w", k.player, err)
		}
	}
	return tx.Commit()
}

// rollUpKillsteals credits a killsteal against the original knocker every
// time a teammate finishes their knock instead of them.
func (e *Engine) rollUpKillsteals(matchID string, knocks []knockRecord) error {
	counts := map[string]int{}
	for _, k := range knocks {
		if k.finisherMate {
			counts[k.attacker]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	tx, err := e.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`UPDATE match_participants SET killsteals = $3 WHERE match_id = $1 AND player_name = $2`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for player, n := range counts {
		if _, err := stmt.Exec(matchID, player, n); err != nil {
			return fmt.Errorf("update killsteals for %s: %w", player, err)
		}
	}
	return tx.Commit()
}

// rollUpPositionalMeans writes the three summary columns match reports
// read directly, from the means extractCirclePositions already computed
// over every sampled player (mc.circle) rather than re-reading
// circle_positions: that table is filtered storage (spec §3) and no longer
// carries non-tracked players' samples.
func (e *Engine) rollUpPositionalMeans(mc matchContext) error {
	means := mc.circle.snapshot()
	if len(means) == 0 {
		return nil
	}

	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin positional means tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		UPDATE match_participants
		SET avg_distance_from_center = $3, avg_distance_from_edge = $4, time_in_zone_pct = $5
		WHERE match_id = $1 AND player_name = $2
	`)
	if err != nil {
		return fmt.Errorf("prepare positional means update: %w", err)
	}
	defer stmt.Close()

	for player, m := range means {
		if _, err := stmt.Exec(mc.matchID, player, m.avgCenter, m.avgEdge, m.inZonePct); err != nil {
			return fmt.Errorf("update positional means for %s: %w", player, err)
		}
	}
	return tx.Commit()
}
