package discovery

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pewstats/collectors/internal/credentials"
	"github.com/pewstats/collectors/internal/ledger"
	"github.com/pewstats/collectors/internal/pubgapi"
)

type fakePublisher struct {
	published []string
}

func (f *fakePublisher) Publish(messageType, step string, payload interface{}, priority string) (bool, error) {
	f.published = append(f.published, messageType+"."+step+"."+priority)
	return true, nil
}

func newSQLMockLedger(t *testing.T) (*ledger.Store, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return ledger.New(db), mock, db
}

func TestMainServiceDiscoversNewMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/shards/steam/players":
			w.Write([]byte(`{"data":[{"type":"player","id":"acct.1","attributes":{"name":"tracked"},
				"relationships":{"matches":{"data":[{"type":"match","id":"match-new"}]}}}]}`))
		case r.URL.Path == "/shards/steam/matches/match-new":
			w.Write([]byte(`{"data":{"type":"match","id":"match-new","attributes":{
				"createdAt":"2024-01-01T00:00:00Z","duration":1800,"gameMode":"squad",
				"mapName":"Baltic_Main","matchType":"official"}},
				"included":[{"type":"asset","id":"a1","attributes":{"URL":"https://cdn/telemetry.json"}}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	store, mock, db := newSQLMockLedger(t)
	defer db.Close()

	mock.ExpectQuery("SELECT player_id, player_name").
		WillReturnRows(sqlmock.NewRows([]string{"player_id", "player_name", "platform", "tracking_enabled"}).
			AddRow("acct.1", "tracked", "steam", true))

	mock.ExpectQuery("SELECT match_id FROM matches WHERE match_id = ANY").
		WillReturnRows(sqlmock.NewRows([]string{"match_id"}))

	mock.ExpectExec("INSERT INTO matches").
		WillReturnResult(sqlmock.NewResult(0, 1))

	pool := credentials.NewPool("main", []string{"key"}, 1000, nil)
	client := pubgapi.New(pubgapi.Config{BaseURL: srv.URL}, pool, nil)
	pub := &fakePublisher{}

	svc := NewMainService(MainServiceConfig{Shard: "steam"}, client, store, pub)
	summary := svc.RunOnce(context.Background())

	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 1, summary.Queued)
	require.Len(t, pub.published, 1)
	assert.Equal(t, "match.discovered.discovered.normal", pub.published[0])
}

func TestMainServiceContinuesPastPerMatchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/shards/steam/players":
			w.Write([]byte(`{"data":[{"type":"player","id":"acct.1","attributes":{"name":"tracked"},
				"relationships":{"matches":{"data":[{"type":"match","id":"match-bad"}]}}}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	store, mock, db := newSQLMockLedger(t)
	defer db.Close()

	mock.ExpectQuery("SELECT player_id, player_name").
		WillReturnRows(sqlmock.NewRows([]string{"player_id", "player_name", "platform", "tracking_enabled"}).
			AddRow("acct.1", "tracked", "steam", true))
	mock.ExpectQuery("SELECT match_id FROM matches WHERE match_id = ANY").
		WillReturnRows(sqlmock.NewRows([]string{"match_id"}))
	mock.ExpectExec("INSERT INTO matches").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE matches SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))

	pool := credentials.NewPool("main", []string{"key"}, 1000, nil)
	client := pubgapi.New(pubgapi.Config{BaseURL: srv.URL, MaxRetries: 0}, pool, nil)
	pub := &fakePublisher{}

	svc := NewMainService(MainServiceConfig{Shard: "steam"}, client, store, pub)
	summary := svc.RunOnce(context.Background())

	assert.Equal(t, 1, summary.Failed)
	assert.Empty(t, pub.published)
}
