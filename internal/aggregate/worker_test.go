package aggregate

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/pewstats/collectors/internal/ledger"
)

func TestRunOnceAggregatesPendingMatchAndMarksFlag(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := ledger.New(db)
	w := NewWorker(Config{}, store)

	mock.ExpectQuery("SELECT match_id FROM matches").
		WillReturnRows(sqlmock.NewRows([]string{"match_id"}).AddRow("match-1"))

	mock.ExpectQuery("SELECT match_id, map_name").
		WillReturnRows(sqlmock.NewRows([]string{
			"match_id", "map_name", "game_mode", "game_type", "match_datetime", "duration",
			"telemetry_url", "status", "is_tournament_match", "discovered_by",
			"round_ref", "schedule_slot_ref", "validation_status", "team_count",
			"telemetry_downloaded", "fights_processed", "stats_aggregated",
		}).AddRow(
			"match-1", "Baltic_Main", "squad", "official", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 1800,
			"https://cdn/raw.json.gz", "completed", false, "main",
			nil, nil, nil, nil,
			true, true, false,
		))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO career_aggregates").
		WithArgs("match-1", "ranked").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO career_aggregates").
		WithArgs("match-1", "all").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectExec("UPDATE matches SET stats_aggregated").
		WillReturnResult(sqlmock.NewResult(0, 1))

	result := w.RunOnce(context.Background())
	require.Equal(t, 1, result.Candidates)
	require.Equal(t, 1, result.Aggregated)
	require.Equal(t, 0, result.Failed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunOnceReportsNoCandidatesWhenNothingPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := ledger.New(db)
	w := NewWorker(Config{}, store)

	mock.ExpectQuery("SELECT match_id FROM matches").
		WillReturnRows(sqlmock.NewRows([]string{"match_id"}))

	result := w.RunOnce(context.Background())
	require.Equal(t, 0, result.Candidates)
	require.NoError(t, mock.ExpectationsWereMet())
}
