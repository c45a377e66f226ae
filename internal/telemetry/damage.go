package telemetry

import "fmt"

// extractDamageEvents writes one row per damage instance involving a
// tracked player (spec §3: damage_events is filtered storage; spec §4.9
// Phase 1 "Damage events"). The fight detector's combat events
// (convert.go) and Phase 3's weapon damage roll-up both cover every player
// by scanning the event feed directly rather than this table.
func (e *Engine) extractDamageEvents(mc matchContext) error {
	events := decodeEvents[takeDamage](mc, eventTakeDamage)
	if len(events) == 0 {
		_, err := e.ledger.MarkStageComplete(mc.matchID, "damage_processed")
		return err
	}

	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin damage_events tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO damage_events (match_id, attacker_name, victim_name, weapon_id, damage, damage_type_category, event_time)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`)
	if err != nil {
		return fmt.Errorf("prepare damage_events insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range events {
		d := rec.v
		if d.Damage <= 0 {
			continue
		}
		if !mc.isTracked(d.Attacker.Name) && !mc.isTracked(d.Victim.Name) {
			continue
		}
		if _, err := stmt.Exec(mc.matchID, d.Attacker.Name, d.Victim.Name, d.DamageCauserName,
			d.Damage, d.DamageTypeCategory, mc.elapsed(rec.ts)); err != nil {
			return fmt.Errorf("insert damage_event for %s: %w", d.Victim.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit damage_events tx: %w", err)
	}
	_, err = e.ledger.MarkStageComplete(mc.matchID, "damage_processed")
	return err
}
