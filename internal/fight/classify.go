package fight

// classify applies spec §4.10's priority ladder against one engagement,
// returning the populated Fight skeleton (minus outcome/participants),
// the fight_reason it matched, and whether it survives as a fight at all.
func classify(eng *engagement) (Fight, string, bool) {
	knocks, kills := 0, 0
	var totalDamage float64
	damageEvents, attackEvents := 0, 0
	teamDamage := map[int]float64{}
	teamPlayers := map[int]map[string]bool{}

	addPlayer := func(team int, name string) {
		if teamPlayers[team] == nil {
			teamPlayers[team] = map[string]bool{}
		}
		teamPlayers[team][name] = true
	}

	for _, ev := range eng.events {
		addPlayer(ev.AttackerTeam, ev.Attacker)
		addPlayer(ev.VictimTeam, ev.Victim)
		attackEvents++
		switch ev.Kind {
		case KindKnock:
			knocks++
		case KindKill:
			kills++
		case KindDamage:
			damageEvents++
		}
		totalDamage += ev.Damage
		teamDamage[ev.AttackerTeam] += ev.Damage
	}

	f := Fight{
		StartTime:         eng.start,
		EndTime:           eng.end,
		Duration:          eng.end - eng.start,
		CenterX:           eng.centerX,
		CenterY:           eng.centerY,
		SpreadRadius:      spreadRadius(eng),
		TotalKnocks:       knocks,
		TotalKills:        kills,
		TotalDamage:       totalDamage,
		TotalDamageEvents: damageEvents,
		TotalAttackEvents: attackEvents,
	}
	f.Teams = teamRefs(teamPlayers)

	casualties := knocks + kills
	switch {
	case casualties >= 2:
		return f, "multiple_casualties", true

	case kills == 1 && knocks == 0:
		if singleKillHasResistance(eng, teamPlayers, teamDamage) {
			return f, "single_kill_resistance", true
		}
		return f, "", false

	case casualties == 0:
		if reciprocalDamage(teamDamage, totalDamage) {
			return f, "reciprocal_damage", true
		}
		return f, "", false

	case knocks == 1 && kills == 0:
		if singleKnockReturnFire(teamDamage) {
			return f, "single_knock_return_fire", true
		}
		return f, "", false

	default:
		return f, "", false
	}
}

// singleKillHasResistance implements spec §4.10 rule 2: the victim's team
// must have dealt a minimum damage depending on team-size imbalance, else
// the kill is an execution rather than a fight.
func singleKillHasResistance(eng *engagement, teamPlayers map[int]map[string]bool, teamDamage map[int]float64) bool {
	var kill CombatEvent
	for _, ev := range eng.events {
		if ev.Kind == KindKill {
			kill = ev
			break
		}
	}

	attackerTeamSize := len(teamPlayers[kill.AttackerTeam])
	victimTeamSize := len(teamPlayers[kill.VictimTeam])

	threshold := 25.0
	switch {
	case attackerTeamSize >= 4 && victimTeamSize <= 1:
		threshold = 75.0
	case attackerTeamSize >= 4 && victimTeamSize == 2:
		threshold = 50.0
	}

	return teamDamage[kill.VictimTeam] >= threshold
}

// reciprocalDamage implements spec §4.10 rule 3.
func reciprocalDamage(teamDamage map[int]float64, total float64) bool {
	if total < 150 {
		return false
	}
	teamA, teamB := topTwoTeams(teamDamage)
	if teamB == nil {
		return false
	}
	return *teamA >= 0.2*total && *teamB >= 0.2*total
}

// singleKnockReturnFire implements spec §4.10 rule 4.
func singleKnockReturnFire(teamDamage map[int]float64) bool {
	teamA, teamB := topTwoTeams(teamDamage)
	if teamB == nil {
		return false
	}
	return *teamA >= 75 && *teamB >= 75
}

// topTwoTeams returns the two highest per-team damage totals, or a nil
// second value when fewer than two teams dealt any damage.
func topTwoTeams(teamDamage map[int]float64) (*float64, *float64) {
	var first, second float64
	seen := 0
	for _, v := range teamDamage {
		if v > first {
			second = first
			first = v
		} else if v > second {
			second = v
		}
		seen++
	}
	if seen < 2 {
		return &first, nil
	}
	return &first, &second
}

func spreadRadius(eng *engagement) float64 {
	var max float64
	for _, ev := range eng.events {
		d := distance(ev.X, ev.Y, eng.centerX, eng.centerY)
		if d > max {
			max = d
		}
	}
	return max
}

func teamRefs(teamPlayers map[int]map[string]bool) []string {
	refs := make([]string, 0, len(teamPlayers))
	for team := range teamPlayers {
		refs = append(refs, intToTeamRef(team))
	}
	return refs
}
