package telemetry

import (
	"fmt"

	"github.com/pewstats/collectors/internal/weapons"
)

// extractAdvancedStats computes the two damage-derived enhanced columns
// that don't depend on knock lifecycle or positioning data (spec §4.9
// Phase 1 "Advanced stats"): total damage received, and the slice of that
// damage caused by throwables specifically. The remaining enhanced
// columns (killsteals, positional means) need the knock map and sampled
// circle positions respectively, so they're filled in by Phase 3 once
// those other extractors have run.
func (e *Engine) extractAdvancedStats(mc matchContext) error {
	events := decodeEvents[takeDamage](mc, eventTakeDamage)
	if len(events) == 0 {
		_, err := e.ledger.MarkStageComplete(mc.matchID, "advanced_processed")
		return err
	}

	type tally struct {
		received, throwable float64
	}
	byPlayer := map[string]*tally{}

	for _, rec := range events {
		d := rec.v
		if d.Damage <= 0 {
			continue
		}
		// damage_received excludes self-damage (e.g. own-thrown grenades)
		// and blue-zone damage: neither reflects damage taken from another
		// player (spec §4.9 "Advanced stats").
		if d.Attacker.Name == d.Victim.Name || d.DamageCauserName == "BlueZone" {
			continue
		}
		t, ok := byPlayer[d.Victim.Name]
		if !ok {
			t = &tally{}
			byPlayer[d.Victim.Name] = t
		}
		t.received += d.Damage
		if weapons.WeaponCategory(d.DamageCauserName) == weapons.CategoryThrowable {
			t.throwable += d.Damage
		}
	}

	if len(byPlayer) == 0 {
		_, err := e.ledger.MarkStageComplete(mc.matchID, "advanced_processed")
		return err
	}

	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin advanced stats tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		UPDATE match_participants SET damage_received = $3, throwable_damage = $4
		WHERE match_id = $1 AND player_name = $2
	`)
	if err != nil {
		return fmt.Errorf("prepare advanced stats update: %w", err)
	}
	defer stmt.Close()

	for player, t := range byPlayer {
		if _, err := stmt.Exec(mc.matchID, player, t.received, t.throwable); err != nil {
			return fmt.Errorf("update advanced stats for %s: %w", player, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit advanced stats tx: %w", err)
	}
	_, err = e.ledger.MarkStageComplete(mc.matchID, "advanced_processed")
	return err
}
