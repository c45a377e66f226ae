package telemetry

import (
	"fmt"
	"math"
	"sync"
)

type zoneState struct {
	phase    int
	centerX  float64
	centerY  float64
	radius   float64
}

// circleMean is one player's positional summary across the whole match,
// computed once from every sampled position regardless of tracked status
// (spec §4.9 Phase 1: "For all players, maintain running averages").
type circleMean struct {
	avgCenter float64
	avgEdge   float64
	inZonePct float64
}

// circleAggregate carries extractCirclePositions' unfiltered per-player
// means forward to Phase 3 (phase3.go's rollUpPositionalMeans), since
// circle_positions itself only retains detail rows for tracked players
// (spec §3) and can no longer be re-read to recover the full roster.
type circleAggregate struct {
	mu    sync.Mutex
	means map[string]circleMean
}

func (a *circleAggregate) set(player string, m circleMean) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.means == nil {
		a.means = map[string]circleMean{}
	}
	a.means[player] = m
}

func (a *circleAggregate) snapshot() map[string]circleMean {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]circleMean, len(a.means))
	for k, v := range a.means {
		out[k] = v
	}
	return out
}

// extractCirclePositions walks the event stream once in order, tracking
// the most recent safety zone broadcast and sampling every
// circleSampleInterval-th position update per player against it (spec
// §4.9 Phase 1 "Circle positions/positioning").
func (e *Engine) extractCirclePositions(mc matchContext) error {
	type sample struct {
		player                           string
		phase                            int
		playerX, playerY                float64
		centerX, centerY, radius        float64
		distFromCenter, distFromEdge    float64
		inZone                          bool
		eventTime                       float64
	}

	var zone zoneState
	sawZone := false
	counts := map[string]int{}
	var samples []sample

	for _, ev := range mc.events {
		switch ev.EventType {
		case eventGameStatePeriodic:
			var gs gameStatePeriodic
			if err := unmarshalInto(ev.Raw, &gs); err != nil {
				continue
			}
			zone.phase++
			zone.centerX = gs.GameState.SafetyZonePosition.X
			zone.centerY = gs.GameState.SafetyZonePosition.Y
			zone.radius = gs.GameState.SafetyZoneRadius
			sawZone = true

		case eventPlayerPosition:
			var pp playerPosition
			if err := unmarshalInto(ev.Raw, &pp); err != nil {
				continue
			}
			counts[pp.Character.Name]++
			if counts[pp.Character.Name]%circleSampleInterval != 0 {
				continue
			}
			if !sawZone {
				continue
			}
			dist := math.Sqrt(math.Pow(pp.Character.Location.X-zone.centerX, 2) + math.Pow(pp.Character.Location.Y-zone.centerY, 2))
			samples = append(samples, sample{
				player:         pp.Character.Name,
				phase:          zone.phase,
				playerX:        pp.Character.Location.X,
				playerY:        pp.Character.Location.Y,
				centerX:        zone.centerX,
				centerY:        zone.centerY,
				radius:         zone.radius,
				distFromCenter: dist,
				distFromEdge:   zone.radius - dist,
				inZone:         dist <= zone.radius,
				eventTime:      mc.elapsed(ev.Timestamp),
			})
		}
	}

	if len(samples) == 0 {
		_, err := e.ledger.MarkStageComplete(mc.matchID, "circles_processed")
		return err
	}

	// Aggregate over every sampled player before the tracked-player filter
	// below narrows what actually lands in circle_positions.
	totals := map[string]struct {
		sumCenter, sumEdge float64
		inZoneCount, n     int
	}{}
	for _, s := range samples {
		t := totals[s.player]
		t.sumCenter += s.distFromCenter
		t.sumEdge += s.distFromEdge
		if s.inZone {
			t.inZoneCount++
		}
		t.n++
		totals[s.player] = t
	}
	for player, t := range totals {
		if t.n == 0 {
			continue
		}
		mc.circle.set(player, circleMean{
			avgCenter: t.sumCenter / float64(t.n),
			avgEdge:   t.sumEdge / float64(t.n),
			inZonePct: float64(t.inZoneCount) / float64(t.n),
		})
	}

	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin circle_positions tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO circle_positions (
			match_id, player_name, phase, player_x, player_y, center_x, center_y, radius,
			distance_from_center, distance_from_edge, in_zone, event_time
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`)
	if err != nil {
		return fmt.Errorf("prepare circle_positions insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		if !mc.isTracked(s.player) {
			continue
		}
		if _, err := stmt.Exec(mc.matchID, s.player, s.phase, s.playerX, s.playerY, s.centerX, s.centerY, s.radius,
			s.distFromCenter, s.distFromEdge, s.inZone, s.eventTime); err != nil {
			return fmt.Errorf("insert circle_position for %s: %w", s.player, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit circle_positions tx: %w", err)
	}
	_, err = e.ledger.MarkStageComplete(mc.matchID, "circles_processed")
	return err
}
