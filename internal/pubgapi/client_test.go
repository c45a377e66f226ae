package pubgapi

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pewstats/collectors/internal/credentials"
	"github.com/pewstats/collectors/internal/pipelineerr"
)

func testPool() *credentials.Pool {
	return credentials.NewPool("main", []string{"test-key"}, 1000, nil)
}

func TestLookupPlayersChunksAtTenNames(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/vnd.api+json")
		w.Write([]byte(`{"data":[{"type":"player","id":"acct.1","attributes":{"name":"p"}}]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, testPool(), nil)

	names := make([]string, 23)
	for i := range names {
		names[i] = "player"
	}
	players, err := c.LookupPlayers(context.Background(), "steam", names)
	require.NoError(t, err)
	assert.Equal(t, 3, calls, "23 names at 10/call should take 3 requests")
	assert.Len(t, players, 3)
}

func TestGetMatchNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, testPool(), nil)
	_, err := c.GetMatch(context.Background(), "steam", "match-1")

	var notFound *pipelineerr.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestTelemetryAssetURLExtractsFromIncluded(t *testing.T) {
	resp := &MatchResponse{
		Included: []IncludedEnvelope{
			{Type: "roster", ID: "r1"},
			{Type: "asset", ID: "a1", Attributes: []byte(`{"URL":"https://cdn.example/telemetry.json"}`)},
		},
	}
	url, err := TelemetryAssetURL(resp)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/telemetry.json", url)
}

func TestTelemetryAssetURLMissingIsMalformed(t *testing.T) {
	resp := &MatchResponse{Included: []IncludedEnvelope{{Type: "roster", ID: "r1"}}}
	_, err := TelemetryAssetURL(resp)

	var malformed *pipelineerr.MalformedResponseError
	require.ErrorAs(t, err, &malformed)
}

func TestDownloadTelemetryHandlesGzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte(`[{"_T":"LogPlayerKillV2","_D":"2024-01-01T00:00:00Z"}]`))
	zw.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, testPool(), nil)
	events, err := c.DownloadTelemetry(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "LogPlayerKillV2", events[0].EventType)
}

func TestDownloadTelemetryPlainJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"_T":"LogMatchStart","_D":"2024-01-01T00:00:00Z"}]`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, testPool(), nil)
	events, err := c.DownloadTelemetry(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "LogMatchStart", events[0].EventType)
}

func TestDownloadTelemetryNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, testPool(), nil)
	_, err := c.DownloadTelemetry(context.Background(), srv.URL)

	var notFound *pipelineerr.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestDoGetRetriesOnThrottle(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, MaxRetries: 2}, testPool(), nil)
	body, err := c.doGet(context.Background(), "/shards/steam/players")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, string(body), "data")
}
