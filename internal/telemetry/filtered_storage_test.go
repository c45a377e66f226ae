package telemetry

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/pewstats/collectors/internal/ledger"
	"github.com/pewstats/collectors/internal/pubgapi"
)

// TestExtractDamageEventsSkipsUntrackedPairs verifies spec §3's filtered
// storage rule: a damage_events row is only written when the attacker or
// the victim is a tracked player.
func TestExtractDamageEventsSkipsUntrackedPairs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := ledger.New(db)
	e := NewEngine(store, nil)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO damage_events")
	// only the alice->bob row (alice tracked) should be inserted; the
	// untracked carl->dave row is skipped.
	mock.ExpectExec("INSERT INTO damage_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectExec("UPDATE matches SET damage_processed").WillReturnResult(sqlmock.NewResult(0, 1))

	start, _ := time.Parse(time.RFC3339, "2024-03-01T12:00:00Z")
	mc := matchContext{
		matchID: "match-1",
		start:   start,
		tracked: map[string]bool{"alice": true},
		circle:  &circleAggregate{},
		events: []pubgapi.TelemetryEvent{
			rawEvent(t, eventTakeDamage, "2024-03-01T12:00:01Z", map[string]interface{}{
				"attacker": map[string]interface{}{"name": "alice"},
				"victim":   map[string]interface{}{"name": "bob"},
				"damage":   25.0,
			}),
			rawEvent(t, eventTakeDamage, "2024-03-01T12:00:02Z", map[string]interface{}{
				"attacker": map[string]interface{}{"name": "carl"},
				"victim":   map[string]interface{}{"name": "dave"},
				"damage":   25.0,
			}),
		},
	}

	require.NoError(t, e.extractDamageEvents(mc))
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestExtractCirclePositionsAggregatesAllButStoresTrackedOnly verifies
// spec §4.9 Phase 1's circle-positions rule: detail rows are written only
// for tracked players, but the positional means stashed on mc.circle cover
// every sampled player.
func TestExtractCirclePositionsAggregatesAllButStoresTrackedOnly(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := ledger.New(db)
	e := NewEngine(store, nil)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO circle_positions")
	mock.ExpectExec("INSERT INTO circle_positions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectExec("UPDATE matches SET circles_processed").WillReturnResult(sqlmock.NewResult(0, 1))

	start, _ := time.Parse(time.RFC3339, "2024-03-01T12:00:00Z")
	events := []pubgapi.TelemetryEvent{
		rawEvent(t, eventGameStatePeriodic, "2024-03-01T12:00:00Z", map[string]interface{}{
			"gameState": map[string]interface{}{
				"safetyZonePosition": map[string]interface{}{"x": 0.0, "y": 0.0, "z": 0.0},
				"safetyZoneRadius":   100.0,
			},
		}),
	}
	for i := 0; i < circleSampleInterval; i++ {
		events = append(events,
			rawEvent(t, eventPlayerPosition, "2024-03-01T12:00:01Z", map[string]interface{}{
				"character": map[string]interface{}{"name": "alice", "location": map[string]interface{}{"x": 10.0, "y": 0.0, "z": 0.0}},
			}),
			rawEvent(t, eventPlayerPosition, "2024-03-01T12:00:01Z", map[string]interface{}{
				"character": map[string]interface{}{"name": "bob", "location": map[string]interface{}{"x": 20.0, "y": 0.0, "z": 0.0}},
			}),
		)
	}

	mc := matchContext{
		matchID: "match-1",
		start:   start,
		tracked: map[string]bool{"alice": true},
		circle:  &circleAggregate{},
		events:  events,
	}

	require.NoError(t, e.extractCirclePositions(mc))
	require.NoError(t, mock.ExpectationsWereMet())

	means := mc.circle.snapshot()
	require.Contains(t, means, "alice")
	require.Contains(t, means, "bob", "positional means must cover every player, not just tracked ones")
}
