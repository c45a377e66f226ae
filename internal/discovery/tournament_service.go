package discovery

import (
	"context"
	"log"
	"time"

	"github.com/pewstats/collectors/internal/broker"
	"github.com/pewstats/collectors/internal/ledger"
	"github.com/pewstats/collectors/internal/pubgapi"
)

// acceptedGameTypes are the only upstream game_type values the tournament
// service will discover a match for (spec §4.6 step 2).
var acceptedGameTypes = map[string]bool{
	"competitive":     true,
	"official":        true,
	"custom-esports":  true,
}

// maxSampleSize bounds the adaptive expansion of TournamentServiceConfig's
// SampleSize (spec §4.6: "bump sample_size up one step (capped)").
const maxSampleSize = 16

// ScheduleWindow restricts the tournament service to a recurring window
// of the week; outside it the loop sleeps without scanning.
type ScheduleWindow struct {
	Days      []time.Weekday
	StartTime time.Duration // offset from midnight
	EndTime   time.Duration
}

func (w ScheduleWindow) contains(t time.Time) bool {
	if len(w.Days) == 0 {
		return true
	}
	dayMatch := false
	for _, d := range w.Days {
		if t.Weekday() == d {
			dayMatch = true
			break
		}
	}
	if !dayMatch {
		return false
	}
	offset := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
	return offset >= w.StartTime && offset <= w.EndTime
}

// TournamentServiceConfig configures the tournament discovery service.
type TournamentServiceConfig struct {
	Shard       string
	SampleSize  int // default 6
	Window      ScheduleWindow
	CutoffDate  time.Time
	PollInterval time.Duration // default 60s
	NowFunc     func() time.Time
}

// TournamentService samples active lobbies' rosters for competitive
// matches inside a weekly schedule window, expanding its sample size
// adaptively when runs come up empty.
type TournamentService struct {
	cfg          TournamentServiceConfig
	client       *pubgapi.Client
	ledger       *ledger.Store
	gw           broker.Publisher
	sampleSize   int
	emptyStreak  int
}

func NewTournamentService(cfg TournamentServiceConfig, client *pubgapi.Client, store *ledger.Store, gw broker.Publisher) *TournamentService {
	if cfg.SampleSize == 0 {
		cfg.SampleSize = 6
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 60 * time.Second
	}
	if cfg.NowFunc == nil {
		cfg.NowFunc = time.Now
	}
	return &TournamentService{cfg: cfg, client: client, ledger: store, gw: gw, sampleSize: cfg.SampleSize}
}

// Run executes the scheduled loop until ctx is cancelled, sleeping outside
// the configured window.
func (t *TournamentService) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if t.cfg.Window.contains(t.cfg.NowFunc()) {
			summary := t.RunOnce(ctx)
			log.Printf("🏆 tournament discovery run: total=%d processed=%d failed=%d queued=%d sample_size=%d",
				summary.Total, summary.Processed, summary.Failed, summary.Queued, t.sampleSize)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs one stratified-sample scan across active lobbies.
func (t *TournamentService) RunOnce(ctx context.Context) RunSummary {
	var summary RunSummary

	lobbies, err := t.ledger.ActiveLobbies()
	if err != nil {
		log.Printf("⚠️  tournament discovery: list active lobbies: %v", err)
		return summary
	}

	nameSet := map[string]bool{}
	for _, lobby := range lobbies {
		names, err := t.ledger.SampleLobbyRoster(lobby, t.sampleSize)
		if err != nil {
			log.Printf("⚠️  tournament discovery: sample lobby %+v: %v", lobby, err)
			continue
		}
		for _, n := range names {
			nameSet[n] = true
		}
	}
	names := make([]string, 0, len(nameSet))
	for n := range nameSet {
		names = append(names, n)
	}

	looked, err := t.client.LookupPlayers(ctx, t.cfg.Shard, names)
	if err != nil {
		log.Printf("⚠️  tournament discovery: lookup players: %v", err)
		return summary
	}

	candidateSet := map[string]bool{}
	for _, p := range looked {
		for _, id := range p.RecentMatchIDs() {
			candidateSet[id] = true
		}
	}
	candidates := make([]string, 0, len(candidateSet))
	for id := range candidateSet {
		candidates = append(candidates, id)
	}

	existing, err := t.ledger.ExistingMatchIDs(candidates)
	if err != nil {
		log.Printf("⚠️  tournament discovery: diff existing match ids: %v", err)
		return summary
	}

	for _, matchID := range candidates {
		if existing[matchID] {
			continue
		}
		summary.Total++
		t.discoverOne(ctx, matchID, &summary)
	}

	t.adjustSampleSize(summary.Queued > 0)
	return summary
}

func (t *TournamentService) discoverOne(ctx context.Context, matchID string, summary *RunSummary) {
	resp, err := t.client.GetMatch(ctx, t.cfg.Shard, matchID)
	if err != nil {
		summary.Failed++
		return
	}

	gameType := resp.Data.Attributes.MatchType
	if !acceptedGameTypes[gameType] {
		return
	}

	matchDatetime, err := time.Parse(time.RFC3339, resp.Data.Attributes.CreatedAt)
	if err != nil {
		summary.Failed++
		return
	}
	if matchDatetime.Before(t.cfg.CutoffDate) {
		return
	}

	telemetryURL, _ := pubgapi.TelemetryAssetURL(resp)

	first, err := t.ledger.InsertDiscovered(ledger.DiscoveredMatch{
		MatchID:           matchID,
		MapName:           resp.Data.Attributes.MapName,
		GameMode:          resp.Data.Attributes.GameMode,
		GameType:          gameType,
		MatchDatetime:     matchDatetime,
		Duration:          resp.Data.Attributes.Duration,
		TelemetryURL:      telemetryURL,
		DiscoveredBy:      "tournament",
		DiscoveryPriority: "high",
	})
	if err != nil {
		summary.Failed++
		return
	}
	summary.Processed++
	if !first {
		return
	}

	ok, err := t.gw.Publish(broker.TypeDiscovered, "discovered", discoveredPayload(matchID), "high")
	if err != nil {
		log.Printf("⚠️  tournament discovery: publish failed for %s: %v", matchID, err)
		return
	}
	if ok {
		summary.Queued++
	}
}

// adjustSampleSize implements the adaptive expansion: three consecutive
// empty runs bump sample_size up one step (capped), any hit resets it.
func (t *TournamentService) adjustSampleSize(hadHit bool) {
	if hadHit {
		t.emptyStreak = 0
		return
	}
	t.emptyStreak++
	if t.emptyStreak >= 3 && t.sampleSize < maxSampleSize {
		t.sampleSize++
		t.emptyStreak = 0
	}
}
