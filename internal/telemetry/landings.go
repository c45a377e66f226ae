package telemetry

import (
	"encoding/json"
	"fmt"
)

// decodeEvents filters mc's raw events to those matching eventType and
// unmarshals each into T, skipping (not failing on) any entry that fails
// to decode — the upstream telemetry schema grows new optional fields
// over time and a malformed one-off record should not sink the whole
// extractor.
func decodeEvents[T any](mc matchContext, eventType string) []struct {
	ts string
	v  T
} {
	var out []struct {
		ts string
		v  T
	}
	for _, ev := range mc.events {
		if ev.EventType != eventType {
			continue
		}
		var v T
		if err := json.Unmarshal(ev.Raw, &v); err != nil {
			continue
		}
		out = append(out, struct {
			ts string
			v  T
		}{ts: ev.Timestamp, v: v})
	}
	return out
}

// extractLandings writes one row per parachute landing (spec §4.9 Phase 1
// "Landings"), grounded the same way internal/ledger writes participant
// rows: a prepared statement inside one transaction for the whole table.
func (e *Engine) extractLandings(mc matchContext) error {
	landings := decodeEvents[parachuteLanding](mc, eventParachuteLanding)
	if len(landings) == 0 {
		_, err := e.ledger.MarkStageComplete(mc.matchID, "landings_processed")
		return err
	}

	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin landings tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO landings (match_id, player_name, x, y, event_time) VALUES ($1,$2,$3,$4,$5)`)
	if err != nil {
		return fmt.Errorf("prepare landings insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range landings {
		if _, err := stmt.Exec(mc.matchID, rec.v.Character.Name, rec.v.Character.Location.X, rec.v.Character.Location.Y, mc.elapsed(rec.ts)); err != nil {
			return fmt.Errorf("insert landing for %s: %w", rec.v.Character.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit landings tx: %w", err)
	}
	_, err = e.ledger.MarkStageComplete(mc.matchID, "landings_processed")
	return err
}
