package ledger

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/lib/pq"
)

// minTeamsForValidMatch is the team_count threshold below which a match is
// treated as a remake rather than a real tournament game (spec §4.3 step 4).
const minTeamsForValidMatch = 8

// scheduleSlotTolerance bounds how far a schedule slot's scheduled_datetime
// may drift from the actual match_datetime and still bind (spec §4.3 step
// 6, "closest time within a small tolerance").
const scheduleSlotTolerance = 30 * time.Minute

// TournamentAssignment is the outcome of resolving a match's tournament
// context, ready to persist against the ledger row.
type TournamentAssignment struct {
	IsTournamentMatch    bool
	ValidationStatus     string
	TeamCount            int
	UnmatchedPlayerCount int
	RoundRef             string
	ScheduleSlotRef      string
}

type rosterMatch struct {
	playerName string
	teamRef    string
	division   string
	groupName  sql.NullString
}

// AssignTournamentContext implements spec §4.3's tournament context
// assignment algorithm and persists the result on the match row.
func (s *Store) AssignTournamentContext(matchID string, participantNames []string, matchDatetime time.Time, mapName string) (*TournamentAssignment, error) {
	matched, err := s.matchRosterEntries(participantNames)
	if err != nil {
		return nil, fmt.Errorf("match roster entries for %s: %w", matchID, err)
	}

	unmatched := len(participantNames) - len(matched)
	if unmatched < 0 {
		unmatched = 0
	}

	lobbies := map[string]bool{}
	for _, m := range matched {
		lobbies[m.division+"\x00"+m.groupName.String] = true
	}

	assignment := &TournamentAssignment{UnmatchedPlayerCount: unmatched}

	if len(lobbies) != 1 {
		assignment.IsTournamentMatch = false
		assignment.ValidationStatus = "mixed_division"
		return assignment, s.persistTournamentContext(matchID, assignment)
	}

	teams := map[string]bool{}
	for _, m := range matched {
		teams[m.teamRef] = true
	}
	assignment.TeamCount = len(teams)
	assignment.IsTournamentMatch = true

	if assignment.TeamCount < minTeamsForValidMatch {
		assignment.ValidationStatus = "remake_candidate"
		return assignment, s.persistTournamentContext(matchID, assignment)
	}

	division, group := matched[0].division, matched[0].groupName
	roundRef, err := s.findRound(division, group, matchDatetime)
	if err != nil {
		return nil, err
	}
	if roundRef == "" {
		assignment.ValidationStatus = "unscheduled"
		return assignment, s.persistTournamentContext(matchID, assignment)
	}
	assignment.RoundRef = roundRef

	slotRef, err := s.findScheduleSlot(roundRef, matchDatetime, mapName)
	if err != nil {
		return nil, err
	}
	if slotRef == "" {
		assignment.ValidationStatus = "unscheduled"
		return assignment, s.persistTournamentContext(matchID, assignment)
	}

	assignment.ScheduleSlotRef = slotRef
	assignment.ValidationStatus = "confirmed"
	return assignment, s.persistTournamentContext(matchID, assignment)
}

func (s *Store) matchRosterEntries(participantNames []string) ([]rosterMatch, error) {
	if len(participantNames) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(`
		SELECT r.player_name, r.team_ref, t.division, t.group_name
		FROM tournament_roster_entries r
		JOIN teams t ON t.team_ref = r.team_ref
		WHERE r.active = true AND t.active = true AND r.player_name = ANY($1)
	`, pq.Array(participantNames))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rosterMatch
	for rows.Next() {
		var m rosterMatch
		if err := rows.Scan(&m.playerName, &m.teamRef, &m.division, &m.groupName); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) findRound(division string, group sql.NullString, matchDatetime time.Time) (string, error) {
	row := s.db.QueryRow(`
		SELECT round_ref FROM rounds
		WHERE division = $1 AND group_name IS NOT DISTINCT FROM $2
		  AND start_date <= $3 AND end_date >= $3
		LIMIT 1
	`, division, group, matchDatetime)

	var ref string
	err := row.Scan(&ref)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return ref, err
}

func (s *Store) findScheduleSlot(roundRef string, matchDatetime time.Time, mapName string) (string, error) {
	rows, err := s.db.Query(`
		SELECT slot_ref, scheduled_datetime FROM schedule_slots
		WHERE round_ref = $1 AND map_name = $2
	`, roundRef, mapName)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	best, bestDelta := "", time.Duration(math.MaxInt64)
	for rows.Next() {
		var ref string
		var scheduled time.Time
		if err := rows.Scan(&ref, &scheduled); err != nil {
			return "", err
		}
		delta := matchDatetime.Sub(scheduled)
		if delta < 0 {
			delta = -delta
		}
		if delta <= scheduleSlotTolerance && delta < bestDelta {
			best, bestDelta = ref, delta
		}
	}
	return best, rows.Err()
}

func (s *Store) persistTournamentContext(matchID string, a *TournamentAssignment) error {
	_, err := s.db.Exec(`
		UPDATE matches SET
			is_tournament_match = $2,
			validation_status = $3,
			team_count = $4,
			unmatched_player_count = $5,
			round_ref = $6,
			schedule_slot_ref = $7
		WHERE match_id = $1
	`, matchID, a.IsTournamentMatch, a.ValidationStatus, nullInt(a.TeamCount), a.UnmatchedPlayerCount,
		nullableString(a.RoundRef), nullableString(a.ScheduleSlotRef))
	if err != nil {
		return fmt.Errorf("persist tournament context for %s: %w", matchID, err)
	}
	return nil
}

func nullInt(n int) interface{} {
	if n == 0 {
		return nil
	}
	return n
}
