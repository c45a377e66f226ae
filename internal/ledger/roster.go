package ledger

import "fmt"

// TrackedPlayer is a subset of the tracked_players table read by the main
// discovery service.
type TrackedPlayer struct {
	PlayerID         string
	PlayerName       string
	Platform         string
	TrackingEnabled  bool
}

// ListTrackedPlayers returns up to limit enabled tracked players (spec
// §4.5: "fetches up to K (default 500) tracked players").
func (s *Store) ListTrackedPlayers(limit int) ([]TrackedPlayer, error) {
	rows, err := s.db.Query(`
		SELECT player_id, player_name, platform, tracking_enabled
		FROM tracked_players
		WHERE tracking_enabled = true
		ORDER BY player_id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list tracked players: %w", err)
	}
	defer rows.Close()

	var out []TrackedPlayer
	for rows.Next() {
		var p TrackedPlayer
		if err := rows.Scan(&p.PlayerID, &p.PlayerName, &p.Platform, &p.TrackingEnabled); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListTrackedPlayerNames returns the full set of enabled tracked players'
// names, used by the telemetry engine to decide which per-player detail
// rows (damage_events, circle_positions) count as filtered storage under
// spec §3, rather than the paginated subset ListTrackedPlayers hands the
// discovery service.
func (s *Store) ListTrackedPlayerNames() (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT player_name FROM tracked_players WHERE tracking_enabled = true`)
	if err != nil {
		return nil, fmt.Errorf("list tracked player names: %w", err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}

// Lobby identifies one (division, group) stratification bucket.
type Lobby struct {
	Division string
	Group    string
}

// ActiveLobbies returns every distinct (division, group) pair spanned by
// active teams, used by the tournament discovery service's stratified
// sampling pass (spec §4.6 step 1).
func (s *Store) ActiveLobbies() ([]Lobby, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT division, COALESCE(group_name, '') FROM teams WHERE active = true
	`)
	if err != nil {
		return nil, fmt.Errorf("list active lobbies: %w", err)
	}
	defer rows.Close()

	var out []Lobby
	for rows.Next() {
		var l Lobby
		if err := rows.Scan(&l.Division, &l.Group); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// SampleLobbyRoster returns up to sampleSize player names from lobby's
// primary, preferred, active roster entries, ordered by ascending
// sample_priority (spec §4.6 step 1: "1 is best").
func (s *Store) SampleLobbyRoster(lobby Lobby, sampleSize int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT r.player_name
		FROM tournament_roster_entries r
		JOIN teams t ON t.team_ref = r.team_ref
		WHERE t.division = $1 AND t.group_name IS NOT DISTINCT FROM NULLIF($2, '')
		  AND t.active = true AND r.active = true
		  AND r.primary_sample = true AND r.preferred_team = true
		ORDER BY r.sample_priority ASC
		LIMIT $3
	`, lobby.Division, lobby.Group, sampleSize)
	if err != nil {
		return nil, fmt.Errorf("sample lobby roster: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
