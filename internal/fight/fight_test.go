package fight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectReciprocalDamageDrawsWhenNoCasualties(t *testing.T) {
	events := []CombatEvent{
		{Timestamp: 0, Kind: KindDamage, Attacker: "alice", AttackerTeam: 1, Victim: "bob", VictimTeam: 2, Damage: 80, X: 0, Y: 0},
		{Timestamp: 2, Kind: KindDamage, Attacker: "bob", AttackerTeam: 2, Victim: "alice", VictimTeam: 1, Damage: 80, X: 1, Y: 1},
	}

	fights := Detect(events)
	require.Len(t, fights, 1)
	assert.Equal(t, "reciprocal_damage", fights[0].FightReason)
	assert.Equal(t, "DRAW", fights[0].Outcome)
	assert.Equal(t, 160.0, fights[0].TotalDamage)
}

func TestDetectMultipleCasualtiesIsDecisiveWin(t *testing.T) {
	events := []CombatEvent{
		{Timestamp: 0, Kind: KindKnock, Attacker: "alice", AttackerTeam: 1, Victim: "carl", VictimTeam: 2, X: 0, Y: 0},
		{Timestamp: 1, Kind: KindKill, Attacker: "alice", AttackerTeam: 1, Victim: "carl", VictimTeam: 2, X: 0, Y: 0},
		{Timestamp: 3, Kind: KindKnock, Attacker: "alice", AttackerTeam: 1, Victim: "dana", VictimTeam: 2, X: 2, Y: 0},
		{Timestamp: 4, Kind: KindKill, Attacker: "alice", AttackerTeam: 1, Victim: "dana", VictimTeam: 2, X: 2, Y: 0},
	}

	fights := Detect(events)
	require.Len(t, fights, 1)
	f := fights[0]
	assert.Equal(t, "multiple_casualties", f.FightReason)
	assert.Equal(t, "DECISIVE_WIN", f.Outcome)
	assert.Equal(t, "team-1", f.WinningTeam)
	assert.Equal(t, "team-2", f.LosingTeam)
	assert.Equal(t, 2, f.TotalKills)
}

func TestDetectSingleKillWithoutResistanceIsDiscarded(t *testing.T) {
	events := []CombatEvent{
		{Timestamp: 0, Kind: KindKill, Attacker: "alice", AttackerTeam: 1, Victim: "bob", VictimTeam: 2, X: 0, Y: 0},
	}

	fights := Detect(events)
	assert.Empty(t, fights)
}

func TestDetectFiltersNPCCombatants(t *testing.T) {
	events := []CombatEvent{
		{Timestamp: 0, Kind: KindDamage, Attacker: "alice", AttackerTeam: 1, Victim: "Guard", VictimTeam: 99, Damage: 200, X: 0, Y: 0},
	}

	fights := Detect(events)
	assert.Empty(t, fights)
}

func TestDetectSplitsEngagementsSeparatedByTime(t *testing.T) {
	events := []CombatEvent{
		{Timestamp: 0, Kind: KindDamage, Attacker: "alice", AttackerTeam: 1, Victim: "bob", VictimTeam: 2, Damage: 80, X: 0, Y: 0},
		{Timestamp: 2, Kind: KindDamage, Attacker: "bob", AttackerTeam: 2, Victim: "alice", VictimTeam: 1, Damage: 80, X: 1, Y: 1},
		{Timestamp: 200, Kind: KindDamage, Attacker: "alice", AttackerTeam: 1, Victim: "bob", VictimTeam: 2, Damage: 80, X: 0, Y: 0},
		{Timestamp: 202, Kind: KindDamage, Attacker: "bob", AttackerTeam: 2, Victim: "alice", VictimTeam: 1, Damage: 80, X: 1, Y: 1},
	}

	fights := Detect(events)
	assert.Len(t, fights, 2)
}

func TestDetectWipedSquadIsDecisiveWinRegardlessOfOpponentLosses(t *testing.T) {
	events := []CombatEvent{
		// team-2 wipes all four of team-1's present members.
		{Timestamp: 0, Kind: KindKill, Attacker: "b1", AttackerTeam: 2, Victim: "a1", VictimTeam: 1, X: 0, Y: 0},
		{Timestamp: 1, Kind: KindKill, Attacker: "b2", AttackerTeam: 2, Victim: "a2", VictimTeam: 1, X: 0, Y: 0},
		{Timestamp: 2, Kind: KindKill, Attacker: "b3", AttackerTeam: 2, Victim: "a3", VictimTeam: 1, X: 0, Y: 0},
		{Timestamp: 3, Kind: KindKill, Attacker: "b4", AttackerTeam: 2, Victim: "a4", VictimTeam: 1, X: 0, Y: 0},
		// team-1 also takes three of team-2's four members before going down.
		{Timestamp: 4, Kind: KindKill, Attacker: "a1", AttackerTeam: 1, Victim: "b1", VictimTeam: 2, X: 0, Y: 0},
		{Timestamp: 5, Kind: KindKill, Attacker: "a2", AttackerTeam: 1, Victim: "b2", VictimTeam: 2, X: 0, Y: 0},
		{Timestamp: 6, Kind: KindKill, Attacker: "a3", AttackerTeam: 1, Victim: "b3", VictimTeam: 2, X: 0, Y: 0},
	}

	fights := Detect(events)
	require.Len(t, fights, 1)
	f := fights[0]
	// team-1 lost all 4 of its present members (fully wiped); team-2 only
	// lost 3 of its 4. The death-difference is just 1, but spec §4.10 rule
	// 1 still mandates a decisive win for the survivor.
	assert.Equal(t, "DECISIVE_WIN", f.Outcome)
	assert.Equal(t, "team-2", f.WinningTeam)
	assert.Equal(t, "team-1", f.LosingTeam)
}

func TestDetectThirdPartyOutcomeForThreeTeams(t *testing.T) {
	events := []CombatEvent{
		{Timestamp: 0, Kind: KindKnock, Attacker: "alice", AttackerTeam: 1, Victim: "carl", VictimTeam: 2, X: 0, Y: 0},
		{Timestamp: 1, Kind: KindKill, Attacker: "alice", AttackerTeam: 1, Victim: "carl", VictimTeam: 2, X: 0, Y: 0},
		{Timestamp: 3, Kind: KindKnock, Attacker: "alice", AttackerTeam: 1, Victim: "dave", VictimTeam: 2, X: 0, Y: 0},
		{Timestamp: 4, Kind: KindKill, Attacker: "alice", AttackerTeam: 1, Victim: "dave", VictimTeam: 2, X: 0, Y: 0},
		{Timestamp: 6, Kind: KindKnock, Attacker: "eve", AttackerTeam: 3, Victim: "alice", VictimTeam: 1, X: 0, Y: 0},
		{Timestamp: 7, Kind: KindKill, Attacker: "eve", AttackerTeam: 3, Victim: "alice", VictimTeam: 1, X: 0, Y: 0},
	}

	fights := Detect(events)
	require.Len(t, fights, 1)
	f := fights[0]
	assert.Equal(t, "THIRD_PARTY", f.Outcome)
	// team2 took two casualties (most deaths) -> loser; team1's two kills
	// beat team3's one -> winner despite taking a casualty itself.
	assert.Equal(t, "WON", f.TeamOutcomes["team-1"])
	assert.Equal(t, "LOST", f.TeamOutcomes["team-2"])
	assert.Equal(t, "DRAW", f.TeamOutcomes["team-3"])
}
