package telemetry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pewstats/collectors/internal/ledger"
	"github.com/pewstats/collectors/internal/pubgapi"
)

func rawEvent(t *testing.T, eventType, timestamp string, body map[string]interface{}) pubgapi.TelemetryEvent {
	body["_T"] = eventType
	body["_D"] = timestamp
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return pubgapi.TelemetryEvent{EventType: eventType, Timestamp: timestamp, Raw: raw}
}

func TestMatchContextElapsedComputesSecondsSinceStart(t *testing.T) {
	start, err := time.Parse(time.RFC3339, "2024-03-01T12:00:00Z")
	require.NoError(t, err)
	mc := matchContext{start: start}

	assert.Equal(t, 30.0, mc.elapsed("2024-03-01T12:00:30Z"))
	assert.Equal(t, 0.0, mc.elapsed("not-a-timestamp"))
}

func TestDecodeEventsFiltersByType(t *testing.T) {
	mc := matchContext{events: []pubgapi.TelemetryEvent{
		rawEvent(t, eventParachuteLanding, "2024-03-01T12:00:01Z", map[string]interface{}{
			"character": map[string]interface{}{"name": "alice", "teamId": 1, "location": map[string]interface{}{"x": 1.0, "y": 2.0, "z": 0.0}},
		}),
		rawEvent(t, eventItemUse, "2024-03-01T12:00:02Z", map[string]interface{}{
			"character": map[string]interface{}{"name": "bob"},
			"item":      map[string]interface{}{"itemId": "WeapFragGrenade"},
		}),
	}}

	landings := decodeEvents[parachuteLanding](mc, eventParachuteLanding)
	require.Len(t, landings, 1)
	assert.Equal(t, "alice", landings[0].v.Character.Name)
}

func TestExtractLandingsInsertsOneRowPerEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := ledger.New(db)
	e := NewEngine(store, nil)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO landings")
	mock.ExpectExec("INSERT INTO landings").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectExec("UPDATE matches SET landings_processed").WillReturnResult(sqlmock.NewResult(0, 1))

	start, _ := time.Parse(time.RFC3339, "2024-03-01T12:00:00Z")
	mc := matchContext{matchID: "match-1", start: start, events: []pubgapi.TelemetryEvent{
		rawEvent(t, eventParachuteLanding, "2024-03-01T12:00:00Z", map[string]interface{}{
			"character": map[string]interface{}{"name": "alice", "teamId": 1, "location": map[string]interface{}{"x": 1.0, "y": 2.0, "z": 0.0}},
		}),
	}}

	require.NoError(t, e.extractLandings(mc))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExtractLandingsSkipsEmptyMatchWithoutOpeningTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := ledger.New(db)
	e := NewEngine(store, nil)

	mock.ExpectExec("UPDATE matches SET landings_processed").WillReturnResult(sqlmock.NewResult(0, 1))

	mc := matchContext{matchID: "match-2"}
	require.NoError(t, e.extractLandings(mc))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBucketForAssignsFixedDistanceRanges(t *testing.T) {
	assert.Equal(t, "0-10m", bucketFor(5))
	assert.Equal(t, "10-25m", bucketFor(15))
	assert.Equal(t, "200m+", bucketFor(5000))
}
