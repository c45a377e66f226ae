package telemetry

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func pqFloatArray(vals []float64) interface{} {
	return pq.Array(vals)
}

// insertHistogram upserts one row per (player, bucket) pair, summing
// knock_count on conflict so repeated buckets for the same player
// accumulate instead of overwriting.
func insertHistogram(tx *sql.Tx, table, matchID string, hist map[string]map[string]int) error {
	if len(hist) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(fmt.Sprintf(`
		INSERT INTO %s (match_id, player_name, bucket, knock_count) VALUES ($1,$2,$3,$4)
		ON CONFLICT (match_id, player_name, bucket) DO UPDATE SET knock_count = %s.knock_count + EXCLUDED.knock_count
	`, table, table))
	if err != nil {
		return fmt.Errorf("prepare %s insert: %w", table, err)
	}
	defer stmt.Close()

	for player, buckets := range hist {
		for bucket, count := range buckets {
			if _, err := stmt.Exec(matchID, player, bucket, count); err != nil {
				return fmt.Errorf("insert %s row for %s: %w", table, player, err)
			}
		}
	}
	return nil
}
