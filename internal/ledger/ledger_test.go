package ledger

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type LedgerTestSuite struct {
	suite.Suite
	db    *sql.DB
	mock  sqlmock.Sqlmock
	store *Store
}

func (s *LedgerTestSuite) SetupTest() {
	var err error
	s.db, s.mock, err = sqlmock.New()
	require.NoError(s.T(), err)
	s.store = New(s.db)
}

func (s *LedgerTestSuite) TearDownTest() {
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
	s.db.Close()
}

func (s *LedgerTestSuite) TestInsertDiscoveredFirstWriterWins() {
	s.mock.ExpectExec("INSERT INTO matches").
		WithArgs("match-1", "Erangel", "squad", "competitive", sqlmock.AnyArg(), 1800,
			"https://cdn/telemetry.json", "main", "normal").
		WillReturnResult(sqlmock.NewResult(0, 1))

	first, err := s.store.InsertDiscovered(DiscoveredMatch{
		MatchID: "match-1", MapName: "Erangel", GameMode: "squad", GameType: "competitive",
		MatchDatetime: time.Now(), Duration: 1800, TelemetryURL: "https://cdn/telemetry.json",
		DiscoveredBy: "main",
	})
	require.NoError(s.T(), err)
	assert.True(s.T(), first)
}

func (s *LedgerTestSuite) TestInsertDiscoveredSecondWriterLoses() {
	s.mock.ExpectExec("INSERT INTO matches").
		WithArgs("match-1", "Erangel", "squad", "competitive", sqlmock.AnyArg(), 1800, nil, "tournament", "high").
		WillReturnResult(sqlmock.NewResult(0, 0))

	first, err := s.store.InsertDiscovered(DiscoveredMatch{
		MatchID: "match-1", MapName: "Erangel", GameMode: "squad", GameType: "competitive",
		MatchDatetime: time.Now(), Duration: 1800,
		DiscoveredBy: "tournament", DiscoveryPriority: "high",
	})
	require.NoError(s.T(), err)
	assert.False(s.T(), first, "second writer must observe zero affected rows")
}

func (s *LedgerTestSuite) TestMarkStageCompleteIsIdempotent() {
	s.mock.ExpectExec("UPDATE matches SET telemetry_downloaded = true").
		WithArgs("match-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := s.store.MarkStageComplete("match-1", "telemetry_downloaded")
	require.NoError(s.T(), err)
	assert.False(s.T(), changed, "re-running against an already-complete stage is a no-op")
}

func (s *LedgerTestSuite) TestMarkStageCompleteRejectsUnknownStage() {
	_, err := s.store.MarkStageComplete("match-1", "not_a_real_stage")
	assert.Error(s.T(), err)
}

func TestLedgerTestSuite(t *testing.T) {
	suite.Run(t, new(LedgerTestSuite))
}
