package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pewstats/collectors/internal/ledger"
)

type fakePublisher struct {
	published []interface{}
}

func (f *fakePublisher) Publish(messageType, step string, payload interface{}, priority string) (bool, error) {
	f.published = append(f.published, payload)
	return true, nil
}

func TestProcessMessageDownloadsAndCompresses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"_T":"LogMatchStart","_D":"2024-03-01T12:00:00Z"}]`))
	}))
	defer srv.Close()

	root := t.TempDir()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := ledger.New(db)

	mock.ExpectExec("UPDATE matches SET telemetry_downloaded").WillReturnResult(sqlmock.NewResult(0, 1))

	pub := &fakePublisher{}
	w := NewWorker(Config{StorageRoot: root}, store, pub)

	err = w.ProcessMessage(context.Background(), "match-1", srv.URL)
	require.NoError(t, err)

	dest := filepath.Join(root, "matchID=match-1", "raw.json.gz")
	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
	require.Len(t, pub.published, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessMessageIsIdempotentWhenFileExists(t *testing.T) {
	root := t.TempDir()
	dest := filepath.Join(root, "matchID=match-2", "raw.json.gz")
	require.NoError(t, os.MkdirAll(filepath.Dir(dest), 0o755))
	require.NoError(t, os.WriteFile(dest, []byte("already-here"), 0o644))

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := ledger.New(db)

	pub := &fakePublisher{}
	w := NewWorker(Config{StorageRoot: root}, store, pub)

	err = w.ProcessMessage(context.Background(), "match-2", "http://unused.invalid")
	require.NoError(t, err)
	require.Len(t, pub.published, 1)
}
