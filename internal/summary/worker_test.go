package summary

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pewstats/collectors/internal/credentials"
	"github.com/pewstats/collectors/internal/ledger"
	"github.com/pewstats/collectors/internal/pubgapi"
)

type fakePublisher struct {
	published []string
	last      interface{}
}

func (f *fakePublisher) Publish(messageType, step string, payload interface{}, priority string) (bool, error) {
	f.published = append(f.published, messageType+"."+step+"."+priority)
	f.last = payload
	return true, nil
}

const matchFixture = `{"data":{"type":"match","id":"match-1","attributes":{
	"createdAt":"2024-03-01T12:00:00Z","duration":1800,"gameMode":"squad",
	"mapName":"Baltic_Main","matchType":"official"}},
	"included":[
		{"type":"asset","id":"a1","attributes":{"URL":"https://cdn/telemetry.json"}},
		{"type":"roster","id":"r1","attributes":{"rank":1,"won":"true","teamId":1},
			"relationships":{"participants":{"data":[{"type":"participant","id":"p1"}]}}},
		{"type":"participant","id":"p1","attributes":{"stats":{
			"playerId":"acct.1","name":"player-one","kills":3,"winPlace":1}}}
	]}`

func mustParseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestProcessMatchFreshInsertsAndPublishes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(matchFixture))
	}))
	defer srv.Close()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := ledger.New(db)

	mock.ExpectExec("UPDATE matches SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM match_participants").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO match_participants")
	mock.ExpectExec("INSERT INTO match_participants").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec("UPDATE matches SET telemetry_url").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT match_id, map_name").
		WillReturnRows(sqlmock.NewRows([]string{
			"match_id", "map_name", "game_mode", "game_type", "match_datetime", "duration",
			"telemetry_url", "status", "is_tournament_match", "discovered_by",
			"round_ref", "schedule_slot_ref", "validation_status", "team_count",
			"telemetry_downloaded", "fights_processed", "stats_aggregated",
		}).AddRow("match-1", "Baltic_Main", "squad", "official",
			mustParseTime("2024-03-01T12:00:00Z"), 1800, "https://cdn/telemetry.json", "processing",
			false, "main", nil, nil, nil, nil, false, false, false))
	mock.ExpectExec("UPDATE matches SET summaries_processed").WillReturnResult(sqlmock.NewResult(0, 1))

	pool := credentials.NewPool("main", []string{"key"}, 1000, nil)
	client := pubgapi.New(pubgapi.Config{BaseURL: srv.URL}, pool, nil)
	pub := &fakePublisher{}

	w := NewWorker(Config{Shard: "steam"}, client, store, pub)
	err = w.ProcessMatch(context.Background(), "match-1")
	require.NoError(t, err)

	require.Len(t, pub.published, 1)
	assert.Equal(t, "match.telemetry.telemetry.normal", pub.published[0])
	require.NoError(t, mock.ExpectationsWereMet())
}

const matchFixtureNoAsset = `{"data":{"type":"match","id":"match-2","attributes":{
	"createdAt":"2024-03-01T12:00:00Z","duration":1800,"gameMode":"squad",
	"mapName":"Baltic_Main","matchType":"official"}},
	"included":[
		{"type":"roster","id":"r1","attributes":{"rank":1,"won":"true","teamId":1},
			"relationships":{"participants":{"data":[{"type":"participant","id":"p1"}]}}},
		{"type":"participant","id":"p1","attributes":{"stats":{
			"playerId":"acct.1","name":"player-one","kills":3,"winPlace":1}}}
	]}`

// TestMissingTelemetryURL covers spec §8 scenario 2: the match document has
// no included[type=asset] entry, so participant rows are still written but
// the match is marked failed and nothing is published to match.telemetry.
func TestMissingTelemetryURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(matchFixtureNoAsset))
	}))
	defer srv.Close()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := ledger.New(db)

	mock.ExpectExec("UPDATE matches SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM match_participants").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO match_participants")
	mock.ExpectExec("INSERT INTO match_participants").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec("UPDATE matches SET status").WillReturnResult(sqlmock.NewResult(0, 1))

	pool := credentials.NewPool("main", []string{"key"}, 1000, nil)
	client := pubgapi.New(pubgapi.Config{BaseURL: srv.URL}, pool, nil)
	pub := &fakePublisher{}

	w := NewWorker(Config{Shard: "steam"}, client, store, pub)
	err = w.ProcessMatch(context.Background(), "match-2")
	require.NoError(t, err)

	assert.Empty(t, pub.published)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessMatchReentryPathSkipsRefetch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := ledger.New(db)

	mock.ExpectExec("UPDATE matches SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM match_participants").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectQuery("SELECT match_id, map_name").
		WillReturnRows(sqlmock.NewRows([]string{
			"match_id", "map_name", "game_mode", "game_type", "match_datetime", "duration",
			"telemetry_url", "status", "is_tournament_match", "discovered_by",
			"round_ref", "schedule_slot_ref", "validation_status", "team_count",
			"telemetry_downloaded", "fights_processed", "stats_aggregated",
		}).AddRow("match-1", "Baltic_Main", "squad", "official",
			mustParseTime("2024-03-01T12:00:00Z"), 1800, "https://cdn/telemetry.json", "processing",
			false, "main", nil, nil, nil, nil, false, false, false))
	mock.ExpectQuery("SELECT player_name FROM match_participants").
		WillReturnRows(sqlmock.NewRows([]string{"player_name"}).AddRow("player-one"))

	pool := credentials.NewPool("main", []string{"key"}, 1000, nil)
	client := pubgapi.New(pubgapi.Config{BaseURL: "http://unused.invalid"}, pool, nil)
	pub := &fakePublisher{}

	w := NewWorker(Config{Shard: "steam"}, client, store, pub)
	err = w.ProcessMatch(context.Background(), "match-1")
	require.NoError(t, err)

	require.Len(t, pub.published, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
