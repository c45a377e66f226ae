package telemetry

import (
	"fmt"
	"math"
	"sort"
)

// knockRecord is one resolved knockdown, carried out of Phase 2 so the
// fight detector can build its combat events without re-walking the raw
// telemetry a second time.
type knockRecord struct {
	dbnoID       int64
	attacker     string
	attackerTeam int
	victim       string
	victimTeam   int
	weaponID     string
	distance     float64
	x, y         float64 // victim's location at the moment of the knock
	attackerX    float64
	attackerY    float64
	eventTime    string
	elapsed      float64
	outcome      string // "killed", "revived", "survived", "unknown"
	finisher     string
	finisherSelf bool
	finisherMate bool
	timeToFinish float64
}

type posSample struct {
	name      string
	team      int
	elapsed   float64
	x, y      float64
}

var distanceBuckets = []struct {
	label string
	upper float64
}{
	{"0-10m", 10}, {"10-25m", 25}, {"25-50m", 50}, {"50-100m", 100}, {"100-200m", 200}, {"200m+", math.MaxFloat64},
}

func bucketFor(d float64) string {
	for _, b := range distanceBuckets {
		if d <= b.upper {
			return b.label
		}
	}
	return "200m+"
}

// extractKnockLifecycle builds the dBNOId -> knock map from
// LogPlayerMakeGroggy, resolves each knock's outcome against
// LogPlayerKillV2/LogPlayerRevive, and attaches teammate-proximity
// snapshots from the ±5s window of position samples around each knock
// (spec §4.9 Phase 2 "Knock lifecycle/finishing").
func (e *Engine) extractKnockLifecycle(mc matchContext) ([]knockRecord, error) {
	open := map[int64]*knockRecord{}
	openByVictim := map[string]*knockRecord{}
	var resolved []*knockRecord
	var positions []posSample

	for _, ev := range mc.events {
		switch ev.EventType {
		case eventMakeGroggy:
			var mg makeGroggy
			if err := unmarshalInto(ev.Raw, &mg); err != nil {
				continue
			}
			rec := &knockRecord{
				dbnoID:       mg.DBNOID,
				attacker:     mg.Attacker.Name,
				attackerTeam: mg.Attacker.TeamID,
				victim:       mg.Victim.Name,
				victimTeam:   mg.Victim.TeamID,
				weaponID:     mg.DamageCauserName,
				distance:     mg.Distance,
				x:            mg.Victim.Location.X,
				y:            mg.Victim.Location.Y,
				attackerX:    mg.Attacker.Location.X,
				attackerY:    mg.Attacker.Location.Y,
				eventTime:    ev.Timestamp,
				elapsed:      mc.elapsed(ev.Timestamp),
				outcome:      "unknown",
			}
			open[rec.dbnoID] = rec
			openByVictim[rec.victim] = rec
			resolved = append(resolved, rec)

		case eventPlayerKillV2:
			var pk playerKillV2
			if err := unmarshalInto(ev.Raw, &pk); err != nil {
				continue
			}
			rec, ok := open[pk.DBNOID]
			if !ok {
				continue
			}
			rec.outcome = "killed"
			rec.finisher = pk.Finisher.Name
			rec.finisherSelf = pk.Finisher.Name == rec.attacker
			rec.finisherMate = !rec.finisherSelf && pk.Finisher.TeamID == rec.attackerTeam
			rec.timeToFinish = mc.elapsed(ev.Timestamp) - rec.elapsed
			delete(open, pk.DBNOID)
			delete(openByVictim, rec.victim)

		case eventRevive:
			var pr playerRevive
			if err := unmarshalInto(ev.Raw, &pr); err != nil {
				continue
			}
			rec, ok := openByVictim[pr.Victim.Name]
			if !ok {
				continue
			}
			rec.outcome = "revived"
			delete(open, rec.dbnoID)
			delete(openByVictim, rec.victim)

		case eventPlayerPosition:
			var pp playerPosition
			if err := unmarshalInto(ev.Raw, &pp); err != nil {
				continue
			}
			positions = append(positions, posSample{
				name:    pp.Character.Name,
				team:    pp.Character.TeamID,
				elapsed: mc.elapsed(ev.Timestamp),
				x:       pp.Character.Location.X,
				y:       pp.Character.Location.Y,
			})
		}
	}

	for _, rec := range open {
		if rec.outcome == "unknown" {
			rec.outcome = "survived"
		}
	}

	sort.Slice(positions, func(i, j int) bool { return positions[i].elapsed < positions[j].elapsed })

	if err := e.persistKnocks(mc.matchID, resolved, positions); err != nil {
		return nil, err
	}

	knocks := make([]knockRecord, 0, len(resolved))
	for _, rec := range resolved {
		knocks = append(knocks, *rec)
	}

	if _, err := e.ledger.MarkStageComplete(mc.matchID, "finishing_processed"); err != nil {
		return nil, err
	}
	return knocks, nil
}

// teammateSnapshot computes nearest/mean teammate distance, the fixed
// proximity-bucket counts, and team spread variance for one knock, using
// the closest position sample within +/-5s of the knock for each
// teammate of the victim.
func teammateSnapshot(rec *knockRecord, positions []posSample) (nearest, mean float64, within50, within100, within200 int, spreadVariance float64, alive int, distances []float64) {
	const window = 5.0
	bestByPlayer := map[string]posSample{}
	bestDelta := map[string]float64{}

	for _, p := range positions {
		if p.name == rec.victim || p.team != rec.victimTeam {
			continue
		}
		delta := p.elapsed - rec.elapsed
		if delta < 0 {
			delta = -delta
		}
		if delta > window {
			continue
		}
		if prev, ok := bestDelta[p.name]; !ok || delta < prev {
			bestDelta[p.name] = delta
			bestByPlayer[p.name] = p
		}
	}

	if len(bestByPlayer) == 0 {
		return 0, 0, 0, 0, 0, 0, 0, nil
	}

	var sum, sumSq float64
	nearest = math.MaxFloat64
	for _, p := range bestByPlayer {
		d := math.Sqrt(math.Pow(p.x-rec.x, 2) + math.Pow(p.y-rec.y, 2))
		distances = append(distances, d)
		sum += d
		if d < nearest {
			nearest = d
		}
		switch {
		case d <= 50:
			within50++
			within100++
			within200++
		case d <= 100:
			within100++
			within200++
		case d <= 200:
			within200++
		}
	}
	alive = len(bestByPlayer)
	mean = sum / float64(alive)
	for _, d := range distances {
		sumSq += (d - mean) * (d - mean)
	}
	spreadVariance = sumSq / float64(alive)
	return nearest, mean, within50, within100, within200, spreadVariance, alive, distances
}

func (e *Engine) persistKnocks(matchID string, recs []*knockRecord, positions []posSample) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin knock_events tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO knock_events (
			match_id, dbno_id, attacker_name, victim_name, weapon_id,
			attacker_x, attacker_y, attacker_z, victim_x, victim_y, victim_z, distance, event_time,
			outcome, finisher_name, finisher_is_self, finisher_is_teammate, time_to_finish,
			nearest_teammate_distance, mean_teammate_distance,
			teammates_within_50m, teammates_within_100m, teammates_within_200m,
			team_spread_variance, alive_teammates, teammate_distances
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
		ON CONFLICT (match_id, dbno_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare knock_events insert: %w", err)
	}
	defer stmt.Close()

	distHist := map[string]map[string]int{}
	supportHist := map[string]map[string]int{}

	for _, rec := range recs {
		nearest, mean, w50, w100, w200, spreadVar, alive, distances := teammateSnapshot(rec, positions)
		if nearest == math.MaxFloat64 {
			nearest = 0
		}

		if _, err := stmt.Exec(matchID, rec.dbnoID, rec.attacker, rec.victim, rec.weaponID,
			rec.attackerX, rec.attackerY, 0.0, rec.x, rec.y, 0.0, rec.distance, rec.elapsed,
			rec.outcome, nullableString(rec.finisher), rec.finisherSelf, rec.finisherMate, timeToFinishOrNull(rec),
			nullZero(nearest), nullZero(mean), w50, w100, w200, nullZero(spreadVar), alive, pqFloatArray(distances)); err != nil {
			return fmt.Errorf("insert knock_event dbno=%d: %w", rec.dbnoID, err)
		}

		addBucket(distHist, rec.attacker, bucketFor(rec.distance))
		addBucket(supportHist, rec.victim, bucketFor(nearest))
	}

	if err := insertHistogram(tx, "knock_distance_histograms", matchID, distHist); err != nil {
		return err
	}
	if err := insertHistogram(tx, "teammate_support_histograms", matchID, supportHist); err != nil {
		return err
	}

	return tx.Commit()
}

func addBucket(hist map[string]map[string]int, player, bucket string) {
	if hist[player] == nil {
		hist[player] = map[string]int{}
	}
	hist[player][bucket]++
}

func nullZero(f float64) interface{} {
	if f == 0 {
		return nil
	}
	return f
}

func timeToFinishOrNull(rec *knockRecord) interface{} {
	if rec.outcome != "killed" {
		return nil
	}
	return rec.timeToFinish
}
