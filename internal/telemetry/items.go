package telemetry

import (
	"fmt"
	"strings"

	"github.com/pewstats/collectors/internal/weapons"
)

// extractItemUsage tallies throwable use per player directly into
// match_participants (spec §4.9 Phase 1 "Item usage"); smoke grenades get
// their own counter since they carry no damage and would otherwise be
// indistinguishable from frags in the aggregate throwables_used count.
func (e *Engine) extractItemUsage(mc matchContext) error {
	uses := decodeEvents[itemUse](mc, eventItemUse)
	if len(uses) == 0 {
		_, err := e.ledger.MarkStageComplete(mc.matchID, "items_processed")
		return err
	}

	type tally struct {
		throwables, smokes int
	}
	byPlayer := map[string]*tally{}

	for _, rec := range uses {
		iu := rec.v
		if weapons.WeaponCategory(iu.Item.ItemID) != weapons.CategoryThrowable {
			continue
		}
		t, ok := byPlayer[iu.Character.Name]
		if !ok {
			t = &tally{}
			byPlayer[iu.Character.Name] = t
		}
		t.throwables++
		if strings.Contains(strings.ToLower(iu.Item.ItemID), "smoke") {
			t.smokes++
		}
	}

	if len(byPlayer) == 0 {
		_, err := e.ledger.MarkStageComplete(mc.matchID, "items_processed")
		return err
	}

	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin item usage tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		UPDATE match_participants SET throwables_used = $3, smokes_thrown = $4
		WHERE match_id = $1 AND player_name = $2
	`)
	if err != nil {
		return fmt.Errorf("prepare item usage update: %w", err)
	}
	defer stmt.Close()

	for player, t := range byPlayer {
		if _, err := stmt.Exec(mc.matchID, player, t.throwables, t.smokes); err != nil {
			return fmt.Errorf("update item usage for %s: %w", player, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit item usage tx: %w", err)
	}
	_, err = e.ledger.MarkStageComplete(mc.matchID, "items_processed")
	return err
}
