package telemetry

import (
	"fmt"

	"github.com/pewstats/collectors/internal/weapons"
)

// extractKillPositions writes one row per kill recording both ends'
// positions and the DBNO id the kill finished off (spec §4.9 Phase 1
// "Kill positions").
func (e *Engine) extractKillPositions(mc matchContext) error {
	kills := decodeEvents[playerKillV2](mc, eventPlayerKillV2)
	if len(kills) == 0 {
		_, err := e.ledger.MarkStageComplete(mc.matchID, "kills_processed")
		return err
	}

	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin kill_positions tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO kill_positions (
			match_id, dbno_id, attacker_name, victim_name,
			attacker_x, attacker_y, victim_x, victim_y, distance, weapon_id, event_time
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`)
	if err != nil {
		return fmt.Errorf("prepare kill_positions insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range kills {
		k := rec.v
		if _, err := stmt.Exec(mc.matchID, k.DBNOID, k.Attacker.Name, k.Victim.Name,
			k.Attacker.Location.X, k.Attacker.Location.Y, k.Victim.Location.X, k.Victim.Location.Y,
			k.FinishDamageInfo.Distance, k.FinishDamageInfo.DamageCauserName, mc.elapsed(rec.ts)); err != nil {
			return fmt.Errorf("insert kill_position for %s: %w", k.Victim.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit kill_positions tx: %w", err)
	}
	_, err = e.ledger.MarkStageComplete(mc.matchID, "kills_processed")
	return err
}

// extractWeaponKills writes one row per kill classified by weapon
// category, the source table for Phase 3's per-match weapon distribution
// roll-up (spec §4.9 Phase 1 "Weapon kills").
func (e *Engine) extractWeaponKills(mc matchContext) error {
	kills := decodeEvents[playerKillV2](mc, eventPlayerKillV2)
	if len(kills) == 0 {
		_, err := e.ledger.MarkStageComplete(mc.matchID, "weapons_processed")
		return err
	}

	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin weapon_kill_events tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO weapon_kill_events (match_id, killer_name, victim_name, weapon_id, weapon_category, distance, event_time)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`)
	if err != nil {
		return fmt.Errorf("prepare weapon_kill_events insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range kills {
		k := rec.v
		weaponID := k.FinishDamageInfo.DamageCauserName
		category := weapons.WeaponCategory(weaponID)
		if _, err := stmt.Exec(mc.matchID, k.Attacker.Name, k.Victim.Name, weaponID, string(category),
			k.FinishDamageInfo.Distance, mc.elapsed(rec.ts)); err != nil {
			return fmt.Errorf("insert weapon_kill_event for %s: %w", k.Victim.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit weapon_kill_events tx: %w", err)
	}
	_, err = e.ledger.MarkStageComplete(mc.matchID, "weapons_processed")
	return err
}
