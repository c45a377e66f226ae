package fight

import "fmt"

// intToTeamRef renders a numeric team id as the string ref stored on
// Fight/Participant, keeping the detector's internal team keys distinct
// from any other identifier scheme a caller's combat events might use.
func intToTeamRef(team int) string {
	return fmt.Sprintf("team-%d", team)
}

// assignOutcome implements spec §4.10's outcome assignment: two-team
// fights get DECISIVE_WIN/MARGINAL_WIN/DRAW, three-or-more-team fights
// are always THIRD_PARTY with a per-team outcome map.
func assignOutcome(f *Fight, eng *engagement) {
	deaths := map[int]int{}
	kills := map[int]int{}
	knocksBy := map[int]int{}
	damageBy := map[int]float64{}
	teams := map[int]bool{}
	teamPlayers := map[int]map[string]bool{}

	addPlayer := func(team int, name string) {
		if teamPlayers[team] == nil {
			teamPlayers[team] = map[string]bool{}
		}
		teamPlayers[team][name] = true
	}

	for _, ev := range eng.events {
		teams[ev.AttackerTeam] = true
		teams[ev.VictimTeam] = true
		addPlayer(ev.AttackerTeam, ev.Attacker)
		addPlayer(ev.VictimTeam, ev.Victim)
		damageBy[ev.AttackerTeam] += ev.Damage
		switch ev.Kind {
		case KindKill:
			deaths[ev.VictimTeam]++
			kills[ev.AttackerTeam]++
		case KindKnock:
			knocksBy[ev.AttackerTeam]++
		}
	}

	if len(teams) <= 2 {
		assignTwoTeamOutcome(f, teams, deaths, teamPlayers)
		return
	}
	assignThirdPartyOutcome(f, teams, deaths, kills, knocksBy, damageBy)
}

func assignTwoTeamOutcome(f *Fight, teams map[int]bool, deaths map[int]int, teamPlayers map[int]map[string]bool) {
	var a, b int
	i := 0
	for t := range teams {
		if i == 0 {
			a = t
		} else {
			b = t
		}
		i++
	}

	f.PrimaryPair = []string{intToTeamRef(a)}
	if i == 2 {
		f.PrimaryPair = append(f.PrimaryPair, intToTeamRef(b))
	}

	deathsA, deathsB := deaths[a], deaths[b]

	// spec §4.10 rule 1: a side that lost every one of its present members
	// in the engagement is DECISIVE_WIN for the survivor, independent of
	// how many the other side lost.
	sizeA, sizeB := len(teamPlayers[a]), len(teamPlayers[b])
	wipedA := sizeA > 0 && deathsA == sizeA
	wipedB := sizeB > 0 && deathsB == sizeB

	diff := deathsA - deathsB
	if diff < 0 {
		diff = -diff
	}

	switch {
	case deathsA == 0 && deathsB == 0:
		f.Outcome = "DRAW"
	case wipedA != wipedB:
		f.Outcome = "DECISIVE_WIN"
		if wipedA {
			f.WinningTeam, f.LosingTeam = intToTeamRef(b), intToTeamRef(a)
		} else {
			f.WinningTeam, f.LosingTeam = intToTeamRef(a), intToTeamRef(b)
		}
	case diff == 0:
		f.Outcome = "DRAW"
	case diff >= 2:
		f.Outcome = "DECISIVE_WIN"
		if deathsA > deathsB {
			f.WinningTeam, f.LosingTeam = intToTeamRef(b), intToTeamRef(a)
		} else {
			f.WinningTeam, f.LosingTeam = intToTeamRef(a), intToTeamRef(b)
		}
	default:
		f.Outcome = "MARGINAL_WIN"
		if deathsA > deathsB {
			f.WinningTeam, f.LosingTeam = intToTeamRef(b), intToTeamRef(a)
		} else {
			f.WinningTeam, f.LosingTeam = intToTeamRef(a), intToTeamRef(b)
		}
	}
}

func assignThirdPartyOutcome(f *Fight, teams map[int]bool, deaths, kills, knocksBy map[int]int, damageBy map[int]float64) {
	f.Outcome = "THIRD_PARTY"
	f.TeamOutcomes = make(map[string]string, len(teams))

	loser, maxDeaths := -1, -1
	for t := range teams {
		if deaths[t] > maxDeaths {
			maxDeaths, loser = deaths[t], t
		}
	}

	winner, maxKills := -1, -1
	for t := range teams {
		if t == loser {
			continue
		}
		switch {
		case kills[t] > maxKills:
			maxKills, winner = kills[t], t
		case kills[t] == maxKills && winner != -1 && knocksBy[t] > knocksBy[winner]:
			winner = t
		case kills[t] == maxKills && winner != -1 && knocksBy[t] == knocksBy[winner] && damageBy[t] > damageBy[winner]:
			winner = t
		}
	}

	for t := range teams {
		ref := intToTeamRef(t)
		switch {
		case t == winner:
			f.TeamOutcomes[ref] = "WON"
			f.WinningTeam = ref
		case t == loser:
			f.TeamOutcomes[ref] = "LOST"
			f.LosingTeam = ref
		default:
			f.TeamOutcomes[ref] = "DRAW"
		}
	}
}

// buildParticipants aggregates one Participant per player touched by the
// engagement: damage/knocks/kills dealt and taken, mean position, and the
// knocked/killed/survived status flags with their timestamps.
func buildParticipants(eng *engagement) []Participant {
	type acc struct {
		team                        int
		knocksDealt, killsDealt     int
		damageDealt, damageTaken    float64
		attacksMade                 int
		sumX, sumY                  float64
		posSamples                  int
		wasKnocked, wasKilled       bool
		knockedAt, killedAt         *float64
	}
	players := map[string]*acc{}

	get := func(name string, team int) *acc {
		a, ok := players[name]
		if !ok {
			a = &acc{team: team}
			players[name] = a
		}
		return a
	}

	for _, ev := range eng.events {
		attacker := get(ev.Attacker, ev.AttackerTeam)
		victim := get(ev.Victim, ev.VictimTeam)

		attacker.attacksMade++
		attacker.damageDealt += ev.Damage
		victim.damageTaken += ev.Damage

		attacker.sumX += ev.X
		attacker.sumY += ev.Y
		attacker.posSamples++
		victim.sumX += ev.X
		victim.sumY += ev.Y
		victim.posSamples++

		ts := ev.Timestamp
		switch ev.Kind {
		case KindKnock:
			attacker.knocksDealt++
			victim.wasKnocked = true
			victim.knockedAt = &ts
		case KindKill:
			attacker.killsDealt++
			victim.wasKilled = true
			victim.killedAt = &ts
		}
	}

	out := make([]Participant, 0, len(players))
	for name, a := range players {
		p := Participant{
			PlayerName:  name,
			TeamRef:     intToTeamRef(a.team),
			KnocksDealt: a.knocksDealt,
			KillsDealt:  a.killsDealt,
			DamageDealt: a.damageDealt,
			DamageTaken: a.damageTaken,
			AttacksMade: a.attacksMade,
			WasKnocked:  a.wasKnocked,
			WasKilled:   a.wasKilled,
			Survived:    !a.wasKilled,
			KnockedAt:   a.knockedAt,
			KilledAt:    a.killedAt,
		}
		if a.posSamples > 0 {
			p.MeanX = a.sumX / float64(a.posSamples)
			p.MeanY = a.sumY / float64(a.posSamples)
		}
		out = append(out, p)
	}
	return out
}
