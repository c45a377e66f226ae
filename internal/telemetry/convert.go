package telemetry

import "github.com/pewstats/collectors/internal/fight"

// fightInput builds the combat event stream the fight detector clusters
// over: every damage tick, every knock (already resolved in Phase 2), and
// every kill, each carrying the team ids and location the detector needs.
func fightInput(mc matchContext, knocks []knockRecord) []fight.CombatEvent {
	var events []fight.CombatEvent

	for _, rec := range decodeEvents[takeDamage](mc, eventTakeDamage) {
		d := rec.v
		if d.Damage <= 0 {
			continue
		}
		events = append(events, fight.CombatEvent{
			Timestamp:    mc.elapsed(rec.ts),
			Kind:         fight.KindDamage,
			Attacker:     d.Attacker.Name,
			AttackerTeam: d.Attacker.TeamID,
			Victim:       d.Victim.Name,
			VictimTeam:   d.Victim.TeamID,
			Damage:       d.Damage,
			X:            d.Victim.Location.X,
			Y:            d.Victim.Location.Y,
		})
	}

	for _, k := range knocks {
		events = append(events, fight.CombatEvent{
			Timestamp:    k.elapsed,
			Kind:         fight.KindKnock,
			Attacker:     k.attacker,
			AttackerTeam: k.attackerTeam,
			Victim:       k.victim,
			VictimTeam:   k.victimTeam,
			X:            k.x,
			Y:            k.y,
		})
	}

	for _, rec := range decodeEvents[playerKillV2](mc, eventPlayerKillV2) {
		k := rec.v
		events = append(events, fight.CombatEvent{
			Timestamp:    mc.elapsed(rec.ts),
			Kind:         fight.KindKill,
			Attacker:     k.Attacker.Name,
			AttackerTeam: k.Attacker.TeamID,
			Victim:       k.Victim.Name,
			VictimTeam:   k.Victim.TeamID,
			X:            k.Victim.Location.X,
			Y:            k.Victim.Location.Y,
		})
	}

	return events
}
