package ledger

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignTournamentContextMixedDivision(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := New(db)

	rosterRows := sqlmock.NewRows([]string{"player_name", "team_ref", "division", "group_name"}).
		AddRow("alice", "team-a", "open", sql.NullString{String: "A", Valid: true}).
		AddRow("bob", "team-b", "open", sql.NullString{String: "B", Valid: true})
	mock.ExpectQuery("SELECT r.player_name, r.team_ref").WillReturnRows(rosterRows)

	mock.ExpectExec("UPDATE matches SET").
		WithArgs("match-1", false, "mixed_division", nil, 0, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assignment, err := store.AssignTournamentContext("match-1", []string{"alice", "bob"}, time.Now(), "Erangel")
	require.NoError(t, err)
	assert.Equal(t, "mixed_division", assignment.ValidationStatus)
	assert.False(t, assignment.IsTournamentMatch)
}

func TestAssignTournamentContextRemakeCandidate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := New(db)

	rosterRows := sqlmock.NewRows([]string{"player_name", "team_ref", "division", "group_name"}).
		AddRow("alice", "team-a", "open", sql.NullString{String: "A", Valid: true}).
		AddRow("bob", "team-b", "open", sql.NullString{String: "A", Valid: true})
	mock.ExpectQuery("SELECT r.player_name, r.team_ref").WillReturnRows(rosterRows)

	mock.ExpectExec("UPDATE matches SET").
		WithArgs("match-2", true, "remake_candidate", 2, 0, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assignment, err := store.AssignTournamentContext("match-2", []string{"alice", "bob"}, time.Now(), "Erangel")
	require.NoError(t, err)
	assert.Equal(t, "remake_candidate", assignment.ValidationStatus)
	assert.Equal(t, 2, assignment.TeamCount)
}
